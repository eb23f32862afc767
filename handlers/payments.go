package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/jjnnsslimaye/seedling-backend/middleware"
	"github.com/jjnnsslimaye/seedling-backend/services"
)

func SetupPaymentRoutes(app *fiber.App, payments *services.PaymentService, users *services.UserService) {
	// The processor calls this directly; authentication is the webhook
	// signature, not the gateway.
	app.Post("/payments/webhook", payments.HandleWebhook)

	secured := app.Group("/", middleware.UserContextMiddleware())
	secured.Get("/users/me", users.GetMe)
	secured.Get("/users/me/winnings", payments.GetMyWinnings)
}

package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/jjnnsslimaye/seedling-backend/middleware"
	"github.com/jjnnsslimaye/seedling-backend/services"
)

func SetupSubmissionRoutes(app *fiber.App, submissions *services.SubmissionService) {
	secured := app.Group("/submissions", middleware.UserContextMiddleware())

	secured.Post("/", submissions.CreateSubmission)
	secured.Get("/", submissions.ListMySubmissions)
	secured.Get("/:id", submissions.GetSubmission)
	secured.Put("/:id", submissions.UpdateSubmission)
	secured.Delete("/:id", submissions.DeleteSubmission)

	secured.Post("/:id/attachments", submissions.UploadAttachment)
	secured.Get("/:id/attachments/url", submissions.GetAttachmentURL)

	// Entry flow: free competitions submit directly, paid ones go
	// through the payment intent and converge via webhook or poll.
	secured.Post("/:id/submit", submissions.SubmitSubmission)
	secured.Post("/:id/payment-intent", submissions.CreatePaymentIntent)
	secured.Get("/:id/payment-status", submissions.CheckPaymentStatus)
}

package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/jjnnsslimaye/seedling-backend/middleware"
	"github.com/jjnnsslimaye/seedling-backend/models"
	"github.com/jjnnsslimaye/seedling-backend/services"
)

func SetupCompetitionRoutes(app *fiber.App, competitions *services.CompetitionService) {
	// Public: listings, detail, and final results.
	app.Get("/competitions", competitions.ListCompetitions)
	app.Get("/competitions/:id", competitions.GetCompetition)
	app.Get("/competitions/:id/results", competitions.GetCompetitionResults)

	// Admin-managed lifecycle.
	admin := app.Group("/admin/competitions",
		middleware.UserContextMiddleware(),
		middleware.RequireRole(string(models.RoleAdmin)))
	admin.Post("/", competitions.CreateCompetition)
	admin.Put("/:id", competitions.UpdateCompetition)
	admin.Patch("/:id/status", competitions.UpdateCompetitionStatus)
	admin.Post("/:id/image", competitions.UploadCompetitionImage)
	admin.Delete("/:id", competitions.DeleteCompetition)
}

package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/jjnnsslimaye/seedling-backend/middleware"
	"github.com/jjnnsslimaye/seedling-backend/models"
	"github.com/jjnnsslimaye/seedling-backend/services"
)

func SetupJudgingRoutes(app *fiber.App, judging *services.JudgingService) {
	secured := app.Group("/judging",
		middleware.UserContextMiddleware(),
		middleware.RequireRole(string(models.RoleJudge), string(models.RoleAdmin)))

	secured.Get("/assignments", judging.GetMyAssignments)
	secured.Get("/submissions/:id", judging.GetSubmissionForJudging)
	secured.Post("/submissions/:id/score", judging.SubmitScore)
}

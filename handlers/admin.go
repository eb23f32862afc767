package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/jjnnsslimaye/seedling-backend/middleware"
	"github.com/jjnnsslimaye/seedling-backend/models"
	"github.com/jjnnsslimaye/seedling-backend/services"
)

func SetupAdminRoutes(app *fiber.App, admin *services.AdminService, users *services.UserService) {
	grp := app.Group("/admin",
		middleware.UserContextMiddleware(),
		middleware.RequireRole(string(models.RoleAdmin)))

	// Judge management
	grp.Get("/judges", users.ListJudges)
	grp.Patch("/users/:id/role", users.UpdateUserRole)
	grp.Patch("/users/:id/connect", users.UpdateConnectAccount)

	// Assignment management
	grp.Post("/competitions/:id/assignments", admin.AssignJudges)
	grp.Get("/competitions/:id/assignments", admin.ListAssignments)
	grp.Patch("/assignments/:assignment_id", admin.ReassignAssignment)

	// Ranking and settlement
	grp.Get("/competitions/:id/leaderboard", admin.GetLeaderboard)
	grp.Post("/competitions/:id/winners", admin.SelectWinners)
	grp.Post("/competitions/:id/distribute-prizes", admin.DistributePrizes)
	grp.Get("/competitions/:id/payments", admin.ListCompetitionPayments)
}

package services

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/jjnnsslimaye/seedling-backend/errs"
	"github.com/jjnnsslimaye/seedling-backend/middleware"
	"github.com/jjnnsslimaye/seedling-backend/models"
)

type UserService struct {
	DB *gorm.DB
}

func NewUserService(db *gorm.DB) *UserService {
	return &UserService{DB: db}
}

// GetMe returns the caller's profile, creating the local row on first
// sight from the gateway's identity headers.
func (s *UserService) GetMe(c *fiber.Ctx) error {
	userID := middleware.UserID(c)
	var user models.User
	err := s.DB.First(&user, "id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		email, _ := c.Locals("user_email").(string)
		name, _ := c.Locals("user_name").(string)
		user = models.User{
			ID:       userID,
			Email:    email,
			Username: name,
			Role:     models.RoleFounder,
		}
		if middleware.HasRole(c, string(models.RoleAdmin)) {
			user.Role = models.RoleAdmin
		} else if middleware.HasRole(c, string(models.RoleJudge)) {
			user.Role = models.RoleJudge
		}
		if err := s.DB.Create(&user).Error; err != nil {
			return c.Status(500).JSON(fiber.Map{"error": "failed to create user"})
		}
	} else if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to load user"})
	}
	return c.JSON(user)
}

// ListJudges is the admin roster used when assigning submissions.
func (s *UserService) ListJudges(c *fiber.Ctx) error {
	var judges []models.User
	if err := s.DB.Where("role = ?", models.RoleJudge).Order("username").Find(&judges).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to list judges"})
	}
	return c.JSON(judges)
}

// UpdateUserRole lets an admin change a user's role.
func (s *UserService) UpdateUserRole(c *fiber.Ctx) error {
	var req struct {
		Role models.UserRole `json:"role"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request body"})
	}
	switch req.Role {
	case models.RoleFounder, models.RoleJudge, models.RoleAdmin:
	default:
		return errs.Respond(c, errs.ValidationFailed("unknown role %q", req.Role))
	}

	var user models.User
	if err := s.DB.First(&user, "id = ?", c.Params("id")).Error; err != nil {
		return errs.Respond(c, errs.NotFound("user %s not found", c.Params("id")))
	}
	user.Role = req.Role
	if err := s.DB.Save(&user).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to update role"})
	}
	return c.JSON(user)
}

// UpdateConnectAccount mirrors the processor's view of a user's payout
// account onto the local row. Prize distribution reads these flags.
func (s *UserService) UpdateConnectAccount(c *fiber.Ctx) error {
	var req struct {
		StripeConnectAccountID string `json:"stripe_connect_account_id"`
		OnboardingComplete     *bool  `json:"connect_onboarding_complete"`
		PayoutsEnabled         *bool  `json:"connect_payouts_enabled"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request body"})
	}

	var user models.User
	if err := s.DB.First(&user, "id = ?", c.Params("id")).Error; err != nil {
		return errs.Respond(c, errs.NotFound("user %s not found", c.Params("id")))
	}

	if req.StripeConnectAccountID != "" {
		user.StripeConnectAccountID = &req.StripeConnectAccountID
	}
	if req.OnboardingComplete != nil {
		user.ConnectOnboardingComplete = *req.OnboardingComplete
		if *req.OnboardingComplete && user.ConnectOnboardedAt == nil {
			now := time.Now().UTC()
			user.ConnectOnboardedAt = &now
		}
	}
	if req.PayoutsEnabled != nil {
		user.ConnectPayoutsEnabled = *req.PayoutsEnabled
	}

	if err := s.DB.Save(&user).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to update payout account"})
	}
	return c.JSON(user)
}

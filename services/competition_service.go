package services

import (
	"errors"
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"gorm.io/gorm"

	"github.com/jjnnsslimaye/seedling-backend/errs"
	"github.com/jjnnsslimaye/seedling-backend/middleware"
	"github.com/jjnnsslimaye/seedling-backend/models"
	"github.com/jjnnsslimaye/seedling-backend/utils"
)

type CompetitionService struct {
	DB       *gorm.DB
	Notifier *NotificationService
}

func NewCompetitionService(db *gorm.DB, notifier *NotificationService) *CompetitionService {
	return &CompetitionService{DB: db, Notifier: notifier}
}

type competitionRequest struct {
	Title                 string                `json:"title"`
	Description           string                `json:"description"`
	Domain                string                `json:"domain"`
	EntryFee              *float64              `json:"entry_fee"`
	PlatformFeePercentage *float64              `json:"platform_fee_percentage"`
	MaxEntries            *int                  `json:"max_entries"`
	OpenDate              *time.Time            `json:"open_date"`
	Deadline              *time.Time            `json:"deadline"`
	JudgingSLADays        *int                  `json:"judging_sla_days"`
	Rubric                models.Rubric         `json:"rubric"`
	PrizeStructure        models.PrizeStructure `json:"prize_structure"`
}

// validatePrizeStructure requires each fraction in (0, 1]. Fractions
// need not sum to 1; any unallocated share of the pool is simply not
// paid out.
func validatePrizeStructure(ps models.PrizeStructure) error {
	for place, fraction := range ps {
		if fraction <= 0 || fraction > 1 {
			return errs.ValidationFailed("prize_structure place %q has fraction %v, must be in (0, 1]", place, fraction)
		}
	}
	return nil
}

func (s *CompetitionService) CreateCompetition(c *fiber.Ctx) error {
	var req competitionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request body"})
	}
	if req.Title == "" {
		return c.Status(400).JSON(fiber.Map{"error": "title is required"})
	}
	if req.OpenDate == nil || req.Deadline == nil {
		return c.Status(400).JSON(fiber.Map{"error": "open_date and deadline are required"})
	}
	if !req.Deadline.After(*req.OpenDate) {
		return c.Status(400).JSON(fiber.Map{"error": "deadline must be after open_date"})
	}

	comp := models.Competition{
		ID:             uuid.NewString(),
		Title:          req.Title,
		Description:    req.Description,
		Domain:         req.Domain,
		OpenDate:       *req.OpenDate,
		Deadline:       *req.Deadline,
		Status:         models.CompetitionDraft,
		Rubric:         req.Rubric,
		PrizeStructure: req.PrizeStructure,
		CreatedBy:      middleware.UserID(c),
	}
	comp.Slug = slug.Make(req.Title) + "-" + comp.ID[:8]

	if req.EntryFee != nil {
		if *req.EntryFee < 0 {
			return c.Status(400).JSON(fiber.Map{"error": "entry_fee must be non-negative"})
		}
		comp.EntryFee = *req.EntryFee
	}
	comp.PlatformFeePercentage = 10
	if req.PlatformFeePercentage != nil {
		if *req.PlatformFeePercentage < 0 || *req.PlatformFeePercentage > 100 {
			return c.Status(400).JSON(fiber.Map{"error": "platform_fee_percentage must be between 0 and 100"})
		}
		comp.PlatformFeePercentage = *req.PlatformFeePercentage
	}
	if req.MaxEntries != nil {
		if *req.MaxEntries < 0 {
			return c.Status(400).JSON(fiber.Map{"error": "max_entries must be non-negative"})
		}
		comp.MaxEntries = *req.MaxEntries
	}
	comp.JudgingSLADays = 14
	if req.JudgingSLADays != nil && *req.JudgingSLADays > 0 {
		comp.JudgingSLADays = *req.JudgingSLADays
	}
	if err := validatePrizeStructure(comp.PrizeStructure); err != nil {
		return errs.Respond(c, err)
	}

	if err := s.DB.Create(&comp).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to create competition"})
	}
	return c.Status(201).JSON(comp)
}

func (s *CompetitionService) ListCompetitions(c *fiber.Ctx) error {
	q := s.DB.Model(&models.Competition{})
	if !middleware.HasRole(c, string(models.RoleAdmin)) {
		q = q.Where("status <> ?", models.CompetitionDraft)
	}
	if status := c.Query("status"); status != "" {
		q = q.Where("status = ?", status)
	}
	if domain := c.Query("domain"); domain != "" {
		q = q.Where("domain = ?", domain)
	}

	var comps []models.Competition
	if err := q.Order("open_date DESC").Find(&comps).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to list competitions"})
	}
	return c.JSON(comps)
}

func (s *CompetitionService) GetCompetition(c *fiber.Ctx) error {
	comp, err := s.findCompetition(c.Params("id"))
	if err != nil {
		return errs.Respond(c, err)
	}
	if comp.Status == models.CompetitionDraft && !middleware.HasRole(c, string(models.RoleAdmin)) {
		return errs.Respond(c, errs.NotFound("competition %s not found", c.Params("id")))
	}
	return c.JSON(comp)
}

func (s *CompetitionService) UpdateCompetition(c *fiber.Ctx) error {
	comp, err := s.findCompetition(c.Params("id"))
	if err != nil {
		return errs.Respond(c, err)
	}

	var req competitionRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request body"})
	}

	// Money and structure fields freeze once entries can exist.
	editable := comp.Status == models.CompetitionDraft || comp.Status == models.CompetitionUpcoming
	structural := req.EntryFee != nil || req.PlatformFeePercentage != nil ||
		req.MaxEntries != nil || req.Rubric != nil || req.PrizeStructure != nil
	if structural && !editable {
		return errs.Respond(c, errs.PreconditionFailed(
			"entry fee, rubric, and prize structure can only change while draft or upcoming, competition is %s", comp.Status))
	}

	if req.Title != "" {
		comp.Title = req.Title
	}
	if req.Description != "" {
		comp.Description = req.Description
	}
	if req.Domain != "" {
		comp.Domain = req.Domain
	}
	if req.OpenDate != nil {
		comp.OpenDate = *req.OpenDate
	}
	if req.Deadline != nil {
		comp.Deadline = *req.Deadline
	}
	if !comp.Deadline.After(comp.OpenDate) {
		return c.Status(400).JSON(fiber.Map{"error": "deadline must be after open_date"})
	}
	if req.JudgingSLADays != nil && *req.JudgingSLADays > 0 {
		comp.JudgingSLADays = *req.JudgingSLADays
	}
	if req.EntryFee != nil {
		if *req.EntryFee < 0 {
			return c.Status(400).JSON(fiber.Map{"error": "entry_fee must be non-negative"})
		}
		comp.EntryFee = *req.EntryFee
	}
	if req.PlatformFeePercentage != nil {
		if *req.PlatformFeePercentage < 0 || *req.PlatformFeePercentage > 100 {
			return c.Status(400).JSON(fiber.Map{"error": "platform_fee_percentage must be between 0 and 100"})
		}
		comp.PlatformFeePercentage = *req.PlatformFeePercentage
	}
	if req.MaxEntries != nil {
		comp.MaxEntries = *req.MaxEntries
	}
	if req.Rubric != nil {
		comp.Rubric = req.Rubric
	}
	if req.PrizeStructure != nil {
		if err := validatePrizeStructure(req.PrizeStructure); err != nil {
			return errs.Respond(c, err)
		}
		comp.PrizeStructure = req.PrizeStructure
	}

	if err := s.DB.Save(comp).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to update competition"})
	}
	return c.JSON(comp)
}

func (s *CompetitionService) UploadCompetitionImage(c *fiber.Ctx) error {
	comp, err := s.findCompetition(c.Params("id"))
	if err != nil {
		return errs.Respond(c, err)
	}
	image, err := c.FormFile("image")
	if err != nil || image.Size == 0 {
		return c.Status(400).JSON(fiber.Map{"error": "image file is required"})
	}
	ext := filepath.Ext(image.Filename)
	if ext == "" {
		ext = ".jpg"
	}
	key := "competitions/images/" + uuid.NewString() + ext
	url, err := utils.UploadFile(image, key)
	if err != nil {
		return errs.Respond(c, errs.ExternalService("failed to upload competition image", err))
	}
	comp.ImageKey = key
	comp.ImageURL = url
	if err := s.DB.Save(comp).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to save competition image"})
	}
	return c.JSON(fiber.Map{"image_url": url})
}

func (s *CompetitionService) UpdateCompetitionStatus(c *fiber.Ctx) error {
	var req struct {
		Status models.CompetitionStatus `json:"status"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request body"})
	}

	comp, err := s.findCompetition(c.Params("id"))
	if err != nil {
		return errs.Respond(c, err)
	}
	if err := s.AdvanceStatus(comp, req.Status); err != nil {
		return errs.Respond(c, err)
	}
	return c.JSON(comp)
}

// AdvanceStatus moves a competition one step forward in its lifecycle,
// enforcing the no-skip rule and the winners gate on complete.
func (s *CompetitionService) AdvanceStatus(comp *models.Competition, next models.CompetitionStatus) error {
	if !next.Valid() {
		return errs.ValidationFailed("unknown competition status %q", next)
	}
	if !comp.Status.CanAdvanceTo(next) {
		return errs.PreconditionFailed("cannot move competition from %s to %s", comp.Status, next)
	}
	if next == models.CompetitionComplete {
		var winners int64
		if err := s.DB.Model(&models.Submission{}).
			Where("competition_id = ? AND status = ?", comp.ID, models.SubmissionWinner).
			Count(&winners).Error; err != nil {
			return err
		}
		if winners == 0 {
			return errs.PreconditionFailed("cannot complete competition %s: winners have not been selected", comp.ID)
		}
		if places := len(comp.PrizeStructure); places > 0 && winners != int64(places) {
			return errs.PreconditionFailed(
				"cannot complete competition %s: prize structure defines %d places but %d winners are selected",
				comp.ID, places, winners)
		}
	}

	comp.Status = next
	if err := s.DB.Save(comp).Error; err != nil {
		return err
	}

	if next == models.CompetitionUpcoming && s.Notifier != nil {
		go s.Notifier.AnnounceCompetition(comp)
	}
	return nil
}

func (s *CompetitionService) DeleteCompetition(c *fiber.Ctx) error {
	comp, err := s.findCompetition(c.Params("id"))
	if err != nil {
		return errs.Respond(c, err)
	}
	if comp.Status != models.CompetitionDraft {
		return errs.Respond(c, errs.PreconditionFailed(
			"only draft competitions can be deleted, competition is %s", comp.Status))
	}
	if err := s.DB.Delete(comp).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to delete competition"})
	}
	if comp.ImageKey != "" {
		if err := utils.DeleteObject(c.Context(), comp.ImageKey); err != nil {
			log.Printf("[Competitions] failed to delete image %s: %v", comp.ImageKey, err)
		}
	}
	return c.JSON(fiber.Map{"deleted": comp.ID})
}

// GetCompetitionResults returns the public outcome of a finished
// competition: winners by place with prize amounts, plus the full
// ranking with usernames redacted for founders who did not opt into
// public display.
func (s *CompetitionService) GetCompetitionResults(c *fiber.Ctx) error {
	comp, err := s.findCompetition(c.Params("id"))
	if err != nil {
		return errs.Respond(c, err)
	}
	if comp.Status != models.CompetitionComplete {
		return errs.Respond(c, errs.PreconditionFailed(
			"results are available once the competition is complete, competition is %s", comp.Status))
	}

	var winners []models.Submission
	if err := s.DB.Preload("User").
		Where("competition_id = ? AND status = ?", comp.ID, models.SubmissionWinner).
		Find(&winners).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to load winners"})
	}

	type winnerRow struct {
		SubmissionID string  `json:"submission_id"`
		Title        string  `json:"title"`
		Username     string  `json:"username"`
		Place        string  `json:"place"`
		PrizeAmount  float64 `json:"prize_amount"`
	}
	rows := make([]winnerRow, 0, len(winners))
	for _, w := range winners {
		place := ""
		if w.Placement != nil {
			place = *w.Placement
		}
		rows = append(rows, winnerRow{
			SubmissionID: w.ID,
			Title:        w.Title,
			Username:     w.User.Username,
			Place:        place,
			PrizeAmount:  comp.PrizeAmountFor(place),
		})
	}

	rankings, err := buildLeaderboard(s.DB, comp.ID)
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to load rankings"})
	}
	for i := range rankings {
		if !rankings[i].IsPublic {
			rankings[i].Username = "anonymous"
		}
	}

	return c.JSON(fiber.Map{
		"competition_id": comp.ID,
		"title":          comp.Title,
		"prize_pool":     comp.PrizePool,
		"winners":        rows,
		"rankings":       rankings,
	})
}

func (s *CompetitionService) findCompetition(id string) (*models.Competition, error) {
	var comp models.Competition
	err := s.DB.Where("id = ? OR slug = ?", id, id).First(&comp).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errs.NotFound("competition %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("load competition: %w", err)
	}
	return &comp, nil
}

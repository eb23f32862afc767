package services

import (
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/jjnnsslimaye/seedling-backend/errs"
	"github.com/jjnnsslimaye/seedling-backend/ledger"
	"github.com/jjnnsslimaye/seedling-backend/middleware"
	"github.com/jjnnsslimaye/seedling-backend/models"
	"github.com/jjnnsslimaye/seedling-backend/utils"
)

type SubmissionService struct {
	DB     *gorm.DB
	Ledger ledger.Client
}

func NewSubmissionService(db *gorm.DB, lc ledger.Client) *SubmissionService {
	return &SubmissionService{DB: db, Ledger: lc}
}

func (s *SubmissionService) CreateSubmission(c *fiber.Ctx) error {
	var req struct {
		CompetitionID string `json:"competition_id"`
		Title         string `json:"title"`
		Description   string `json:"description"`
		IsPublic      bool   `json:"is_public"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request body"})
	}
	if req.CompetitionID == "" || req.Title == "" {
		return c.Status(400).JSON(fiber.Map{"error": "competition_id and title are required"})
	}

	var comp models.Competition
	if err := s.DB.First(&comp, "id = ?", req.CompetitionID).Error; err != nil {
		return errs.Respond(c, errs.NotFound("competition %s not found", req.CompetitionID))
	}
	if comp.Status != models.CompetitionActive {
		return errs.Respond(c, errs.PreconditionFailed(
			"submissions are only accepted while the competition is active, competition is %s", comp.Status))
	}

	sub := models.Submission{
		ID:            uuid.NewString(),
		CompetitionID: comp.ID,
		UserID:        middleware.UserID(c),
		Title:         req.Title,
		Description:   req.Description,
		IsPublic:      req.IsPublic,
		Status:        models.SubmissionDraft,
	}
	if err := s.DB.Create(&sub).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to create submission"})
	}
	return c.Status(201).JSON(sub)
}

func (s *SubmissionService) ListMySubmissions(c *fiber.Ctx) error {
	var subs []models.Submission
	q := s.DB.Preload("Competition").Where("user_id = ?", middleware.UserID(c))
	if compID := c.Query("competition_id"); compID != "" {
		q = q.Where("competition_id = ?", compID)
	}
	if err := q.Order("created_at DESC").Find(&subs).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to list submissions"})
	}
	return c.JSON(subs)
}

func (s *SubmissionService) GetSubmission(c *fiber.Ctx) error {
	sub, err := s.findSubmission(c.Params("id"))
	if err != nil {
		return errs.Respond(c, err)
	}
	if sub.UserID != middleware.UserID(c) && !middleware.HasRole(c, string(models.RoleAdmin)) {
		return errs.Respond(c, errs.Forbidden("submission %s does not belong to you", sub.ID))
	}
	return c.JSON(sub)
}

func (s *SubmissionService) UpdateSubmission(c *fiber.Ctx) error {
	sub, err := s.findSubmission(c.Params("id"))
	if err != nil {
		return errs.Respond(c, err)
	}
	isAdmin := middleware.HasRole(c, string(models.RoleAdmin))
	if sub.UserID != middleware.UserID(c) && !isAdmin {
		return errs.Respond(c, errs.Forbidden("submission %s does not belong to you", sub.ID))
	}

	var req struct {
		Title       *string `json:"title"`
		Description *string `json:"description"`
		IsPublic    *bool   `json:"is_public"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request body"})
	}

	// Admins may correct content at any stage; founders only before entry.
	editable := isAdmin ||
		sub.Status == models.SubmissionDraft || sub.Status == models.SubmissionPendingPayment
	if (req.Title != nil || req.Description != nil) && !editable {
		return errs.Respond(c, errs.PreconditionFailed(
			"content can only change before submission, submission is %s", sub.Status))
	}
	if req.Title != nil && *req.Title != "" {
		sub.Title = *req.Title
	}
	if req.Description != nil {
		sub.Description = *req.Description
	}
	// Visibility stays under the founder's control at any stage.
	if req.IsPublic != nil {
		sub.IsPublic = *req.IsPublic
	}

	if err := s.DB.Save(sub).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to update submission"})
	}
	return c.JSON(sub)
}

func (s *SubmissionService) UploadAttachment(c *fiber.Ctx) error {
	sub, err := s.findSubmission(c.Params("id"))
	if err != nil {
		return errs.Respond(c, err)
	}
	if sub.UserID != middleware.UserID(c) {
		return errs.Respond(c, errs.Forbidden("submission %s does not belong to you", sub.ID))
	}
	if sub.Status != models.SubmissionDraft && sub.Status != models.SubmissionPendingPayment {
		return errs.Respond(c, errs.PreconditionFailed(
			"attachments can only change before submission, submission is %s", sub.Status))
	}

	file, err := c.FormFile("file")
	if err != nil || file.Size == 0 {
		return c.Status(400).JSON(fiber.Map{"error": "file is required"})
	}
	kind := c.FormValue("type")
	if kind == "" {
		kind = "document"
	}

	ext := filepath.Ext(file.Filename)
	key := fmt.Sprintf("submissions/%s/%s%s", sub.ID, uuid.NewString(), ext)
	if _, err := utils.UploadFile(file, key); err != nil {
		return errs.Respond(c, errs.ExternalService("failed to upload attachment", err))
	}

	att := models.Attachment{
		Type:        kind,
		Key:         key,
		Filename:    file.Filename,
		ContentType: file.Header.Get("Content-Type"),
		SizeBytes:   file.Size,
		UploadedAt:  time.Now().UTC(),
	}
	// One attachment per type; re-upload replaces.
	replaced := false
	for i := range sub.Attachments {
		if sub.Attachments[i].Type == kind {
			sub.Attachments[i] = att
			replaced = true
			break
		}
	}
	if !replaced {
		sub.Attachments = append(sub.Attachments, att)
	}

	if err := s.DB.Save(sub).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to save attachment"})
	}
	return c.JSON(sub)
}

// GetAttachmentURL mints a short-lived download URL. Owners, admins, and
// judges assigned to the submission may fetch it.
func (s *SubmissionService) GetAttachmentURL(c *fiber.Ctx) error {
	sub, err := s.findSubmission(c.Params("id"))
	if err != nil {
		return errs.Respond(c, err)
	}
	userID := middleware.UserID(c)
	allowed := sub.UserID == userID || middleware.HasRole(c, string(models.RoleAdmin))
	if !allowed {
		var n int64
		s.DB.Model(&models.JudgeAssignment{}).
			Where("submission_id = ? AND judge_id = ?", sub.ID, userID).
			Count(&n)
		allowed = n > 0
	}
	if !allowed {
		return errs.Respond(c, errs.Forbidden("no access to submission %s", sub.ID))
	}

	att := sub.AttachmentOfType(c.Query("type", "document"))
	if att == nil {
		return errs.Respond(c, errs.NotFound("submission %s has no such attachment", sub.ID))
	}
	url, err := utils.PresignDownload(c.Context(), att.Key, 15*time.Minute)
	if err != nil {
		return errs.Respond(c, errs.ExternalService("failed to presign attachment", err))
	}
	return c.JSON(fiber.Map{"url": url, "expires_in": 900})
}

func (s *SubmissionService) DeleteSubmission(c *fiber.Ctx) error {
	sub, err := s.findSubmission(c.Params("id"))
	if err != nil {
		return errs.Respond(c, err)
	}
	if sub.UserID != middleware.UserID(c) && !middleware.HasRole(c, string(models.RoleAdmin)) {
		return errs.Respond(c, errs.Forbidden("submission %s does not belong to you", sub.ID))
	}
	if sub.Status != models.SubmissionDraft {
		return errs.Respond(c, errs.PreconditionFailed(
			"only draft submissions can be deleted, submission is %s", sub.Status))
	}
	if err := s.DB.Delete(sub).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to delete submission"})
	}
	return c.JSON(fiber.Map{"deleted": sub.ID})
}

// SubmitSubmission finalizes an entry into a free competition. Paid
// competitions go through the payment-intent flow instead; their
// submitted flip happens when the charge confirms.
func (s *SubmissionService) SubmitSubmission(c *fiber.Ctx) error {
	sub, err := s.findSubmission(c.Params("id"))
	if err != nil {
		return errs.Respond(c, err)
	}
	if sub.UserID != middleware.UserID(c) {
		return errs.Respond(c, errs.Forbidden("submission %s does not belong to you", sub.ID))
	}

	var comp models.Competition
	if err := s.DB.First(&comp, "id = ?", sub.CompetitionID).Error; err != nil {
		return errs.Respond(c, errs.NotFound("competition %s not found", sub.CompetitionID))
	}
	if comp.Status != models.CompetitionActive {
		return errs.Respond(c, errs.PreconditionFailed(
			"competition is %s, submissions are closed", comp.Status))
	}
	if comp.EntryFee > 0 {
		return errs.Respond(c, errs.PreconditionFailed(
			"competition has an entry fee of %.2f, create a payment intent instead", comp.EntryFee))
	}
	if comp.Full() {
		return errs.Respond(c, errs.PreconditionFailed("competition is full"))
	}

	err = s.DB.Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()
		res := tx.Model(&models.Submission{}).
			Where("id = ? AND status IN ?", sub.ID,
				[]models.SubmissionStatus{models.SubmissionDraft, models.SubmissionPendingPayment}).
			Updates(map[string]interface{}{
				"status":       models.SubmissionSubmitted,
				"submitted_at": now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errs.Conflict("submission %s was already submitted", sub.ID)
		}
		return tx.Model(&models.Competition{}).
			Where("id = ?", comp.ID).
			Update("current_entries", gorm.Expr("current_entries + 1")).Error
	})
	if err != nil {
		return errs.Respond(c, err)
	}

	if err := s.DB.First(sub, "id = ?", sub.ID).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to reload submission"})
	}
	return c.JSON(sub)
}

// CreatePaymentIntent opens (or resumes) the entry-fee charge for a
// submission. At most one live charge exists per submission: an existing
// pending payment is reconciled against the processor before any new
// charge is created, so retries and double-clicks never double-charge.
func (s *SubmissionService) CreatePaymentIntent(c *fiber.Ctx) error {
	sub, err := s.findSubmission(c.Params("id"))
	if err != nil {
		return errs.Respond(c, err)
	}
	userID := middleware.UserID(c)
	if sub.UserID != userID {
		return errs.Respond(c, errs.Forbidden("submission %s does not belong to you", sub.ID))
	}

	var comp models.Competition
	if err := s.DB.First(&comp, "id = ?", sub.CompetitionID).Error; err != nil {
		return errs.Respond(c, errs.NotFound("competition %s not found", sub.CompetitionID))
	}
	if comp.Status != models.CompetitionActive {
		return errs.Respond(c, errs.PreconditionFailed(
			"competition is %s, entries are closed", comp.Status))
	}
	if comp.EntryFee <= 0 {
		return errs.Respond(c, errs.PreconditionFailed("competition has no entry fee, submit directly"))
	}
	if comp.Full() {
		return errs.Respond(c, errs.PreconditionFailed("competition is full"))
	}
	switch sub.Status {
	case models.SubmissionDraft, models.SubmissionPendingPayment:
	case models.SubmissionSubmitted, models.SubmissionUnderReview,
		models.SubmissionWinner, models.SubmissionNotSelected:
		return errs.Respond(c, errs.Conflict("entry fee for submission %s is already paid", sub.ID))
	default:
		return errs.Respond(c, errs.PreconditionFailed(
			"submission is %s and cannot be entered", sub.Status))
	}

	// Reconcile an existing charge before creating another.
	var existing models.Payment
	err = s.DB.Where("submission_id = ? AND type = ?", sub.ID, models.PaymentEntryFee).
		Order("created_at DESC").First(&existing).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return c.Status(500).JSON(fiber.Map{"error": "failed to load payment"})
	}
	if err == nil {
		switch existing.Status {
		case models.PaymentCompleted:
			return errs.Respond(c, errs.Conflict("entry fee for submission %s is already paid", sub.ID))
		case models.PaymentPending:
			if existing.StripePaymentIntentID != nil {
				charge, cerr := s.Ledger.GetCharge(c.Context(), *existing.StripePaymentIntentID)
				if cerr != nil {
					return errs.Respond(c, errs.ExternalService("failed to check existing charge", cerr))
				}
				switch charge.Status {
				case ledger.ChargeSucceeded:
					if _, aerr := applyEntryFeeSuccess(s.DB, existing.ID); aerr != nil {
						return errs.Respond(c, aerr)
					}
					return c.JSON(fiber.Map{
						"payment_id": existing.ID,
						"status":     ledger.ChargeSucceeded,
					})
				case ledger.ChargeCanceled:
					// Replace the dead charge below.
					s.markPaymentFailed(existing.ID, "payment intent canceled at processor")
				default:
					// Still collectible: hand the same charge back.
					return c.JSON(fiber.Map{
						"payment_id":    existing.ID,
						"client_secret": charge.ClientSecret,
						"status":        charge.Status,
						"amount":        existing.Amount,
					})
				}
			}
		}
	}

	payment := models.Payment{
		ID:            uuid.NewString(),
		UserID:        userID,
		CompetitionID: comp.ID,
		SubmissionID:  &sub.ID,
		Type:          models.PaymentEntryFee,
		Status:        models.PaymentPending,
		Amount:        comp.EntryFee,
		Currency:      "usd",
	}
	charge, err := s.Ledger.CreateCharge(c.Context(), ledger.MinorUnits(comp.EntryFee), payment.Currency, map[string]string{
		"payment_id":     payment.ID,
		"payment_type":   string(models.PaymentEntryFee),
		"submission_id":  sub.ID,
		"competition_id": comp.ID,
		"user_id":        userID,
	})
	if err != nil {
		return errs.Respond(c, errs.ExternalService("failed to create entry fee charge", err))
	}
	payment.StripePaymentIntentID = &charge.ID

	err = s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&payment).Error; err != nil {
			return err
		}
		if sub.Status == models.SubmissionDraft {
			return tx.Model(&models.Submission{}).
				Where("id = ? AND status = ?", sub.ID, models.SubmissionDraft).
				Update("status", models.SubmissionPendingPayment).Error
		}
		return nil
	})
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to record payment"})
	}

	return c.JSON(fiber.Map{
		"payment_id":    payment.ID,
		"client_secret": charge.ClientSecret,
		"status":        charge.Status,
		"amount":        payment.Amount,
	})
}

// CheckPaymentStatus polls the processor for the submission's entry-fee
// charge and converges local state. Safe to call any number of times and
// concurrently with webhook delivery.
func (s *SubmissionService) CheckPaymentStatus(c *fiber.Ctx) error {
	sub, err := s.findSubmission(c.Params("id"))
	if err != nil {
		return errs.Respond(c, err)
	}
	if sub.UserID != middleware.UserID(c) && !middleware.HasRole(c, string(models.RoleAdmin)) {
		return errs.Respond(c, errs.Forbidden("submission %s does not belong to you", sub.ID))
	}

	var payment models.Payment
	err = s.DB.Where("submission_id = ? AND type = ?", sub.ID, models.PaymentEntryFee).
		Order("created_at DESC").First(&payment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return errs.Respond(c, errs.NotFound("submission %s has no entry fee payment", sub.ID))
	}
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to load payment"})
	}

	if payment.Status == models.PaymentPending && payment.StripePaymentIntentID != nil {
		charge, cerr := s.Ledger.GetCharge(c.Context(), *payment.StripePaymentIntentID)
		if cerr != nil {
			return errs.Respond(c, errs.ExternalService("failed to check charge status", cerr))
		}
		switch charge.Status {
		case ledger.ChargeSucceeded:
			if _, aerr := applyEntryFeeSuccess(s.DB, payment.ID); aerr != nil {
				return errs.Respond(c, aerr)
			}
		case ledger.ChargeCanceled:
			s.markPaymentFailed(payment.ID, "payment intent canceled at processor")
		}
	}

	if err := s.DB.First(&payment, "id = ?", payment.ID).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to reload payment"})
	}
	if err := s.DB.First(sub, "id = ?", sub.ID).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to reload submission"})
	}
	return c.JSON(fiber.Map{
		"payment_id":        payment.ID,
		"payment_status":    payment.Status,
		"submission_status": sub.Status,
	})
}

func (s *SubmissionService) markPaymentFailed(paymentID, reason string) {
	s.DB.Model(&models.Payment{}).
		Where("id = ? AND status = ?", paymentID, models.PaymentPending).
		Updates(map[string]interface{}{
			"status":         models.PaymentFailed,
			"failure_reason": reason,
			"processed_at":   time.Now().UTC(),
		})
}

func (s *SubmissionService) findSubmission(id string) (*models.Submission, error) {
	var sub models.Submission
	err := s.DB.First(&sub, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errs.NotFound("submission %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("load submission: %w", err)
	}
	return &sub, nil
}

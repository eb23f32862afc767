package services

import (
	"errors"
	"fmt"
	"log"
	"sort"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/jjnnsslimaye/seedling-backend/errs"
	"github.com/jjnnsslimaye/seedling-backend/ledger"
	"github.com/jjnnsslimaye/seedling-backend/middleware"
	"github.com/jjnnsslimaye/seedling-backend/models"
	"github.com/jjnnsslimaye/seedling-backend/scoring"
)

type AdminService struct {
	DB       *gorm.DB
	Ledger   ledger.Client
	Notifier *NotificationService
}

func NewAdminService(db *gorm.DB, lc ledger.Client, notifier *NotificationService) *AdminService {
	return &AdminService{DB: db, Ledger: lc, Notifier: notifier}
}

// AssignJudges creates judge assignments for a competition's eligible
// submissions. Existing assignments survive unless replace is set, in
// which case uncompleted ones for the named submissions are dropped
// first. Completed assignments are never removed.
func (s *AdminService) AssignJudges(c *fiber.Ctx) error {
	var req struct {
		Assignments []struct {
			SubmissionID string   `json:"submission_id"`
			JudgeIDs     []string `json:"judge_ids"`
		} `json:"assignments"`
		Replace bool `json:"replace"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request body"})
	}
	if len(req.Assignments) == 0 {
		return c.Status(400).JSON(fiber.Map{"error": "assignments is required"})
	}

	var comp models.Competition
	if err := s.DB.First(&comp, "id = ?", c.Params("id")).Error; err != nil {
		return errs.Respond(c, errs.NotFound("competition %s not found", c.Params("id")))
	}
	if comp.Status != models.CompetitionClosed && comp.Status != models.CompetitionJudging {
		return errs.Respond(c, errs.PreconditionFailed(
			"judges can be assigned once entries close, competition is %s", comp.Status))
	}

	adminID := middleware.UserID(c)
	created := 0
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		for _, a := range req.Assignments {
			var sub models.Submission
			if err := tx.First(&sub, "id = ? AND competition_id = ?", a.SubmissionID, comp.ID).Error; err != nil {
				return errs.NotFound("submission %s not found in competition %s", a.SubmissionID, comp.ID)
			}
			if !sub.JudgingEligible() {
				return errs.PreconditionFailed("submission %s is %s and cannot be judged", sub.ID, sub.Status)
			}

			if req.Replace {
				if err := tx.Where("submission_id = ? AND status = ?", sub.ID, models.AssignmentAssigned).
					Delete(&models.JudgeAssignment{}).Error; err != nil {
					return err
				}
			}

			for _, judgeID := range a.JudgeIDs {
				var judge models.User
				if err := tx.First(&judge, "id = ?", judgeID).Error; err != nil {
					return errs.NotFound("judge %s not found", judgeID)
				}
				if judge.Role != models.RoleJudge && judge.Role != models.RoleAdmin {
					return errs.ValidationFailed("user %s does not have the judge role", judgeID)
				}
				var n int64
				if err := tx.Model(&models.JudgeAssignment{}).
					Where("judge_id = ? AND submission_id = ?", judgeID, sub.ID).
					Count(&n).Error; err != nil {
					return err
				}
				if n > 0 {
					continue
				}
				if err := tx.Create(&models.JudgeAssignment{
					ID:           uuid.NewString(),
					JudgeID:      judgeID,
					SubmissionID: sub.ID,
					Status:       models.AssignmentAssigned,
					AssignedBy:   adminID,
				}).Error; err != nil {
					return err
				}
				created++
			}
		}
		return nil
	})
	if err != nil {
		return errs.Respond(c, err)
	}
	return c.JSON(fiber.Map{"created": created})
}

// ListAssignments returns all assignments for a competition.
func (s *AdminService) ListAssignments(c *fiber.Ctx) error {
	var assignments []models.JudgeAssignment
	err := s.DB.Preload("Judge").Preload("Submission").
		Joins("JOIN submissions ON submissions.id = judge_assignments.submission_id").
		Where("submissions.competition_id = ?", c.Params("id")).
		Find(&assignments).Error
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to list assignments"})
	}
	return c.JSON(assignments)
}

// ReassignAssignment moves an uncompleted assignment to another judge.
func (s *AdminService) ReassignAssignment(c *fiber.Ctx) error {
	var req struct {
		JudgeID string `json:"judge_id"`
	}
	if err := c.BodyParser(&req); err != nil || req.JudgeID == "" {
		return c.Status(400).JSON(fiber.Map{"error": "judge_id is required"})
	}

	var assignment models.JudgeAssignment
	if err := s.DB.First(&assignment, "id = ?", c.Params("assignment_id")).Error; err != nil {
		return errs.Respond(c, errs.NotFound("assignment %s not found", c.Params("assignment_id")))
	}
	if assignment.Status == models.AssignmentCompleted {
		return errs.Respond(c, errs.PreconditionFailed("assignment %s is already completed", assignment.ID))
	}

	var judge models.User
	if err := s.DB.First(&judge, "id = ?", req.JudgeID).Error; err != nil {
		return errs.Respond(c, errs.NotFound("judge %s not found", req.JudgeID))
	}
	if judge.Role != models.RoleJudge && judge.Role != models.RoleAdmin {
		return errs.Respond(c, errs.ValidationFailed("user %s does not have the judge role", req.JudgeID))
	}
	var n int64
	s.DB.Model(&models.JudgeAssignment{}).
		Where("judge_id = ? AND submission_id = ?", req.JudgeID, assignment.SubmissionID).
		Count(&n)
	if n > 0 {
		return errs.Respond(c, errs.Conflict("judge %s is already assigned to submission %s", req.JudgeID, assignment.SubmissionID))
	}

	assignment.JudgeID = req.JudgeID
	assignment.AssignedBy = middleware.UserID(c)
	if err := s.DB.Save(&assignment).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to reassign"})
	}
	return c.JSON(assignment)
}

// GetLeaderboard ranks a competition's eligible submissions.
func (s *AdminService) GetLeaderboard(c *fiber.Ctx) error {
	var comp models.Competition
	if err := s.DB.First(&comp, "id = ?", c.Params("id")).Error; err != nil {
		return errs.Respond(c, errs.NotFound("competition %s not found", c.Params("id")))
	}
	switch comp.Status {
	case models.CompetitionClosed, models.CompetitionJudging, models.CompetitionComplete:
	default:
		return errs.Respond(c, errs.PreconditionFailed(
			"leaderboard is available once entries close, competition is %s", comp.Status))
	}

	entries, err := buildLeaderboard(s.DB, comp.ID)
	if err != nil {
		return errs.Respond(c, err)
	}
	return c.JSON(fiber.Map{
		"competition_id": comp.ID,
		"status":         comp.Status,
		"prize_pool":     comp.PrizePool,
		"entries":        entries,
	})
}

// buildLeaderboard ranks a competition's scoreable submissions. Decided
// submissions stay in the ranking so the board survives winner selection.
func buildLeaderboard(db *gorm.DB, compID string) ([]scoring.Entry, error) {
	var subs []models.Submission
	if err := db.Preload("User").Preload("Assignments").
		Where("competition_id = ? AND status IN ?", compID, models.RankableStatuses).
		Find(&subs).Error; err != nil {
		return nil, fmt.Errorf("load submissions: %w", err)
	}

	entries := make([]scoring.Entry, 0, len(subs))
	for _, sub := range subs {
		assigned := len(sub.Assignments)
		completed := 0
		for _, a := range sub.Assignments {
			if a.Status == models.AssignmentCompleted {
				completed++
			}
		}
		entries = append(entries, scoring.Entry{
			SubmissionID:    sub.ID,
			Title:           sub.Title,
			UserID:          sub.UserID,
			Username:        sub.User.Username,
			FinalScore:      sub.FinalScore,
			HumanAverage:    sub.HumanAverage(),
			JudgesAssigned:  assigned,
			JudgesCompleted: completed,
			JudgingComplete: scoring.JudgingComplete(assigned, completed),
			IsPublic:        sub.IsPublic,
		})
	}
	return scoring.Rank(entries), nil
}

type winnerPick struct {
	SubmissionID string `json:"submission_id"`
	Place        string `json:"place"`
}

// SelectWinners validates a full slate of winners against the prize
// structure and applies it atomically: winners get their placement,
// every other eligible submission becomes not_selected. The competition
// stays in judging until an explicit transition to complete.
func (s *AdminService) SelectWinners(c *fiber.Ctx) error {
	var req struct {
		Winners []winnerPick `json:"winners"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request body"})
	}

	var comp models.Competition
	if err := s.DB.First(&comp, "id = ?", c.Params("id")).Error; err != nil {
		return errs.Respond(c, errs.NotFound("competition %s not found", c.Params("id")))
	}
	if err := s.selectWinners(&comp, req.Winners); err != nil {
		return errs.Respond(c, err)
	}

	if s.Notifier != nil {
		go s.notifyOutcome(comp.ID)
	}
	return c.JSON(fiber.Map{
		"competition_id": comp.ID,
		"winners":        req.Winners,
	})
}

func (s *AdminService) selectWinners(comp *models.Competition, picks []winnerPick) error {
	if comp.Status != models.CompetitionJudging {
		return errs.PreconditionFailed(
			"winners can be selected while the competition is judging, competition is %s", comp.Status)
	}

	var eligible []models.Submission
	if err := s.DB.Preload("Assignments").
		Where("competition_id = ? AND status IN ?", comp.ID, models.JudgingEligibleStatuses).
		Find(&eligible).Error; err != nil {
		return fmt.Errorf("load eligible submissions: %w", err)
	}

	pendingJudging := 0
	eligibleIDs := make(map[string]bool, len(eligible))
	for _, sub := range eligible {
		eligibleIDs[sub.ID] = true
		assigned := len(sub.Assignments)
		completed := 0
		for _, a := range sub.Assignments {
			if a.Status == models.AssignmentCompleted {
				completed++
			}
		}
		if !scoring.JudgingComplete(assigned, completed) {
			pendingJudging++
		}
	}
	if pendingJudging > 0 {
		return errs.PreconditionFailed(
			"%d submissions still await judging, all eligible submissions must be fully judged", pendingJudging)
	}

	if len(picks) != len(comp.PrizeStructure) {
		return errs.ValidationFailed(
			"prize structure defines %d places but %d winners were provided",
			len(comp.PrizeStructure), len(picks))
	}

	seenSub := make(map[string]bool, len(picks))
	seenPlace := make(map[string]bool, len(picks))
	for _, p := range picks {
		if seenSub[p.SubmissionID] {
			return errs.ValidationFailed("submission %s appears more than once", p.SubmissionID)
		}
		seenSub[p.SubmissionID] = true
		if seenPlace[p.Place] {
			return errs.ValidationFailed("place %q appears more than once", p.Place)
		}
		seenPlace[p.Place] = true
	}

	var missing, extra []string
	for place := range comp.PrizeStructure {
		if !seenPlace[place] {
			missing = append(missing, place)
		}
	}
	for place := range seenPlace {
		if _, ok := comp.PrizeStructure[place]; !ok {
			extra = append(extra, place)
		}
	}
	if len(missing) > 0 || len(extra) > 0 {
		sort.Strings(missing)
		sort.Strings(extra)
		return errs.ValidationFailed(
			"places do not match the prize structure, missing %v, unexpected %v", missing, extra)
	}

	for _, p := range picks {
		if !eligibleIDs[p.SubmissionID] {
			return errs.ValidationFailed(
				"submission %s is not an eligible submission of this competition", p.SubmissionID)
		}
	}

	return s.DB.Transaction(func(tx *gorm.DB) error {
		winnerIDs := make([]string, 0, len(picks))
		for _, p := range picks {
			place := p.Place
			if err := tx.Model(&models.Submission{}).
				Where("id = ?", p.SubmissionID).
				Updates(map[string]interface{}{
					"status":    models.SubmissionWinner,
					"placement": place,
				}).Error; err != nil {
				return err
			}
			winnerIDs = append(winnerIDs, p.SubmissionID)
		}
		return tx.Model(&models.Submission{}).
			Where("competition_id = ? AND status IN ? AND id NOT IN ?",
				comp.ID, models.JudgingEligibleStatuses, winnerIDs).
			Update("status", models.SubmissionNotSelected).Error
	})
}

// notifyOutcome fans out winner/non-winner notifications. Failures are
// logged and swallowed; the selection itself is already committed.
func (s *AdminService) notifyOutcome(compID string) {
	var comp models.Competition
	if err := s.DB.First(&comp, "id = ?", compID).Error; err != nil {
		log.Printf("[Admin] outcome notify: %v", err)
		return
	}
	var decided []models.Submission
	err := s.DB.Where("competition_id = ? AND status IN ?", compID,
		[]models.SubmissionStatus{models.SubmissionWinner, models.SubmissionNotSelected}).
		Find(&decided).Error
	if err != nil {
		log.Printf("[Admin] outcome notify: %v", err)
		return
	}
	for _, sub := range decided {
		s.Notifier.NotifyOutcome(&comp, &sub)
	}
}

type payoutResult struct {
	SubmissionID string  `json:"submission_id"`
	UserID       string  `json:"user_id"`
	Place        string  `json:"place"`
	Amount       float64 `json:"amount"`
	Status       string  `json:"status"`
	Detail       string  `json:"detail,omitempty"`
}

// DistributePrizes pays each winner its share of the prize pool. The
// operation is idempotent: transfers carry a stable idempotency key per
// competition and submission, and winners with an existing payout are
// reported as already_paid. Partial failure is expected and surfaced
// per winner so the call can simply be repeated.
func (s *AdminService) DistributePrizes(c *fiber.Ctx) error {
	var comp models.Competition
	if err := s.DB.First(&comp, "id = ?", c.Params("id")).Error; err != nil {
		return errs.Respond(c, errs.NotFound("competition %s not found", c.Params("id")))
	}
	if comp.Status != models.CompetitionComplete {
		return errs.Respond(c, errs.PreconditionFailed(
			"prizes are distributed once the competition is complete, competition is %s", comp.Status))
	}

	var winners []models.Submission
	if err := s.DB.Preload("User").
		Where("competition_id = ? AND status = ?", comp.ID, models.SubmissionWinner).
		Find(&winners).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to load winners"})
	}
	if len(winners) == 0 {
		return errs.Respond(c, errs.PreconditionFailed("competition %s has no winners to pay", comp.ID))
	}

	// total_expected covers every winner's theoretical share on every
	// run; owed tracks what this run may still transfer.
	var totalExpected, payable float64
	owed := make(map[string]float64, len(winners))
	for _, w := range winners {
		if w.Placement == nil {
			continue
		}
		amount := comp.PrizeAmountFor(*w.Placement)
		if amount <= 0 {
			continue
		}
		totalExpected += amount
		paid, err := s.hasLivePayout(comp.ID, w.ID)
		if err != nil {
			return errs.Respond(c, err)
		}
		if paid {
			continue
		}
		owed[w.ID] = amount
		if w.User.PayoutReady() {
			payable += amount
		}
	}

	// Pre-flight the platform balance against what this run can actually
	// transfer: winners without a payout-capable account are reported,
	// not paid. A balance check that errors does not block the run; only
	// a confirmed shortfall does.
	if payable > 0 {
		if available, err := s.Ledger.AvailableBalance(c.Context(), "usd"); err == nil {
			if available < ledger.MinorUnits(payable) {
				return errs.Respond(c, errs.PreconditionFailed(
					"insufficient platform balance: need %.2f, available %.2f",
					payable, float64(available)/100))
			}
		} else {
			log.Printf("[Admin] balance check failed, proceeding: %v", err)
		}
	}

	successful := make([]payoutResult, 0, len(winners))
	pendingBank := make([]payoutResult, 0)
	failed := make([]payoutResult, 0)
	alreadyPaid := make([]payoutResult, 0)
	var totalDistributed float64
	for i := range winners {
		r := s.payWinner(c, &comp, &winners[i], owed)
		switch r.Status {
		case "success":
			totalDistributed += r.Amount
			successful = append(successful, r)
		case "already_paid":
			alreadyPaid = append(alreadyPaid, r)
		case "pending_connect_account", "pending_connect_onboarding":
			pendingBank = append(pendingBank, r)
		default:
			failed = append(failed, r)
		}
	}

	return c.JSON(fiber.Map{
		"competition_id":    comp.ID,
		"successful":        successful,
		"pending_bank_info": pendingBank,
		"failed":            failed,
		"already_paid":      alreadyPaid,
		"total_expected":    scoring.Round2(totalExpected),
		"total_distributed": scoring.Round2(totalDistributed),
		"summary": fmt.Sprintf("%d paid, %d awaiting payout setup, %d failed, %d already paid",
			len(successful), len(pendingBank), len(failed), len(alreadyPaid)),
	})
}

func (s *AdminService) payWinner(c *fiber.Ctx, comp *models.Competition, sub *models.Submission, owed map[string]float64) payoutResult {
	r := payoutResult{SubmissionID: sub.ID, UserID: sub.UserID}
	if sub.Placement == nil {
		r.Status = "error"
		r.Detail = "winner has no placement recorded"
		return r
	}
	r.Place = *sub.Placement
	r.Amount = comp.PrizeAmountFor(r.Place)
	if r.Amount <= 0 {
		r.Status = "error"
		r.Detail = fmt.Sprintf("place %q is not in the prize structure", r.Place)
		return r
	}

	if _, pending := owed[sub.ID]; !pending {
		r.Status = "already_paid"
		return r
	}

	if !sub.User.HasConnectAccount() {
		r.Status = "pending_connect_account"
		r.Detail = "winner has not created a payout account"
		return r
	}
	if !sub.User.PayoutReady() {
		r.Status = "pending_connect_onboarding"
		r.Detail = "winner's payout account has not finished onboarding"
		return r
	}

	idemKey := fmt.Sprintf("comp-%s-sub-%s-v1", comp.ID, sub.ID)
	transfer, err := s.Ledger.CreateTransfer(c.Context(),
		ledger.MinorUnits(r.Amount), "usd", *sub.User.StripeConnectAccountID, idemKey,
		map[string]string{
			"competition_id": comp.ID,
			"submission_id":  sub.ID,
			"user_id":        sub.UserID,
			"place":          r.Place,
			"payment_type":   string(models.PaymentPrizePayout),
		})
	if err != nil {
		log.Printf("[Admin] transfer failed for submission %s: %v", sub.ID, err)
		r.Status = "error"
		r.Detail = err.Error()
		return r
	}

	payment := models.Payment{
		ID:               uuid.NewString(),
		UserID:           sub.UserID,
		CompetitionID:    comp.ID,
		SubmissionID:     &sub.ID,
		Type:             models.PaymentPrizePayout,
		Status:           models.PaymentPending,
		Amount:           r.Amount,
		Currency:         "usd",
		StripeTransferID: &transfer.ID,
	}
	if err := s.DB.Create(&payment).Error; err != nil {
		// The transfer went out; the row must be recorded for the
		// webhook to settle it. Surface loudly.
		log.Printf("[Admin] ALERT transfer %s sent but payment row failed: %v", transfer.ID, err)
		r.Status = "error"
		r.Detail = "transfer sent but local record failed, do not retry without reconciliation"
		return r
	}

	r.Status = "success"
	return r
}

// hasLivePayout reports whether a completed or in-flight payout already
// exists for the submission.
func (s *AdminService) hasLivePayout(compID, subID string) (bool, error) {
	var payment models.Payment
	err := s.DB.Where(
		"competition_id = ? AND submission_id = ? AND type = ? AND status IN ?",
		compID, subID, models.PaymentPrizePayout,
		[]models.PaymentStatus{models.PaymentPending, models.PaymentCompleted}).
		First(&payment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ListCompetitionPayments is the admin money view for one competition.
func (s *AdminService) ListCompetitionPayments(c *fiber.Ctx) error {
	var payments []models.Payment
	err := s.DB.Preload("User").
		Where("competition_id = ?", c.Params("id")).
		Order("created_at DESC").
		Find(&payments).Error
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to list payments"})
	}

	var feesCollected, payoutsSent float64
	for _, p := range payments {
		if p.Status != models.PaymentCompleted {
			continue
		}
		switch p.Type {
		case models.PaymentEntryFee:
			feesCollected += p.Amount
		case models.PaymentPrizePayout:
			payoutsSent += p.Amount
		}
	}
	return c.JSON(fiber.Map{
		"payments":       payments,
		"fees_collected": scoring.Round2(feesCollected),
		"payouts_sent":   scoring.Round2(payoutsSent),
	})
}

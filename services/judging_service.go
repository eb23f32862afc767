package services

import (
	"errors"
	"sort"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/jjnnsslimaye/seedling-backend/errs"
	"github.com/jjnnsslimaye/seedling-backend/middleware"
	"github.com/jjnnsslimaye/seedling-backend/models"
	"github.com/jjnnsslimaye/seedling-backend/scoring"
)

type JudgingService struct {
	DB *gorm.DB
}

func NewJudgingService(db *gorm.DB) *JudgingService {
	return &JudgingService{DB: db}
}

// GetMyAssignments lists the caller's judge assignments with submission
// and competition context.
func (s *JudgingService) GetMyAssignments(c *fiber.Ctx) error {
	var assignments []models.JudgeAssignment
	q := s.DB.Preload("Submission").Preload("Submission.Competition").
		Where("judge_id = ?", middleware.UserID(c))
	if status := c.Query("status"); status != "" {
		q = q.Where("status = ?", status)
	}
	if err := q.Order("assigned_at DESC").Find(&assignments).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to list assignments"})
	}
	return c.JSON(assignments)
}

// GetSubmissionForJudging returns a submission to its assigned judge,
// including the rubric and the judge's own prior score if any. Other
// judges' scores are not exposed.
func (s *JudgingService) GetSubmissionForJudging(c *fiber.Ctx) error {
	judgeID := middleware.UserID(c)
	subID := c.Params("id")
	assignment, err := s.findAssignment(c, judgeID, subID)
	if err != nil {
		return errs.Respond(c, err)
	}

	var sub models.Submission
	if err := s.DB.Preload("Competition").First(&sub, "id = ?", subID).Error; err != nil {
		return errs.Respond(c, errs.NotFound("submission %s not found", subID))
	}

	var myScore *models.JudgeScore
	if sub.HumanScores != nil {
		for i := range sub.HumanScores.Judges {
			if sub.HumanScores.Judges[i].JudgeID == judgeID {
				myScore = &sub.HumanScores.Judges[i]
				break
			}
		}
	}

	return c.JSON(fiber.Map{
		"assignment": assignment,
		"submission": fiber.Map{
			"id":          sub.ID,
			"title":       sub.Title,
			"description": sub.Description,
			"attachments": sub.Attachments,
			"status":      sub.Status,
		},
		"rubric":   sub.Competition.Rubric,
		"my_score": myScore,
	})
}

// SubmitScore records a judge's scorecard. Re-submission replaces the
// judge's earlier score and the aggregates are recomputed either way.
func (s *JudgingService) SubmitScore(c *fiber.Ctx) error {
	var req struct {
		CriteriaScores map[string]float64 `json:"criteria_scores"`
		Feedback       string             `json:"feedback"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request body"})
	}
	if len(req.CriteriaScores) == 0 {
		return c.Status(400).JSON(fiber.Map{"error": "criteria_scores is required"})
	}

	judgeID := middleware.UserID(c)
	subID := c.Params("id")
	assignment, err := s.findAssignment(c, judgeID, subID)
	if err != nil {
		return errs.Respond(c, err)
	}

	var sub models.Submission
	if err := s.DB.Preload("Competition").First(&sub, "id = ?", subID).Error; err != nil {
		return errs.Respond(c, errs.NotFound("submission %s not found", subID))
	}
	if sub.Competition.Status != models.CompetitionJudging {
		return errs.Respond(c, errs.PreconditionFailed(
			"scores are accepted while the competition is judging, competition is %s", sub.Competition.Status))
	}
	if !sub.JudgingEligible() {
		return errs.Respond(c, errs.PreconditionFailed(
			"submission is %s and cannot be scored", sub.Status))
	}

	rubric := sub.Competition.Rubric
	if len(rubric) == 0 {
		return errs.Respond(c, errs.ValidationFailed(
			"competition rubric is invalid or missing, scores cannot be accepted"))
	}
	for criterion, score := range req.CriteriaScores {
		if score < 0 || score > 10 {
			return errs.Respond(c, errs.ValidationFailed(
				"score for %q is %v, must be between 0 and 10", criterion, score))
		}
	}
	var missing, extra []string
	for criterion := range rubric {
		if _, ok := req.CriteriaScores[criterion]; !ok {
			missing = append(missing, criterion)
		}
	}
	for criterion := range req.CriteriaScores {
		if _, ok := rubric[criterion]; !ok {
			extra = append(extra, criterion)
		}
	}
	if len(missing) > 0 || len(extra) > 0 {
		sort.Strings(missing)
		sort.Strings(extra)
		return errs.Respond(c, errs.ValidationFailed(
			"criteria do not match the rubric, missing %v, unexpected %v", missing, extra))
	}

	var judge models.User
	if err := s.DB.First(&judge, "id = ?", judgeID).Error; err != nil {
		return errs.Respond(c, errs.NotFound("judge %s not found", judgeID))
	}

	now := time.Now().UTC()
	entry := models.JudgeScore{
		JudgeID:        judgeID,
		JudgeName:      judge.Username,
		CriteriaScores: req.CriteriaScores,
		Overall:        scoring.Overall(req.CriteriaScores, rubric.Weights()),
		Feedback:       req.Feedback,
		SubmittedAt:    now,
	}

	err = s.DB.Transaction(func(tx *gorm.DB) error {
		// Re-read inside the transaction so concurrent judges both land.
		var fresh models.Submission
		if err := tx.First(&fresh, "id = ?", sub.ID).Error; err != nil {
			return err
		}
		fresh.UpsertJudgeScore(entry)
		if fresh.Status == models.SubmissionSubmitted {
			fresh.Status = models.SubmissionUnderReview
		}
		if err := tx.Save(&fresh).Error; err != nil {
			return err
		}
		if assignment == nil {
			return nil
		}
		// completed_at is set once; score edits do not move it.
		return tx.Model(&models.JudgeAssignment{}).
			Where("id = ? AND status <> ?", assignment.ID, models.AssignmentCompleted).
			Updates(map[string]interface{}{
				"status":       models.AssignmentCompleted,
				"completed_at": now,
			}).Error
	})
	if err != nil {
		return errs.Respond(c, err)
	}

	var updated models.Submission
	if err := s.DB.First(&updated, "id = ?", sub.ID).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to reload submission"})
	}
	return c.JSON(fiber.Map{
		"submission_id": updated.ID,
		"overall":       entry.Overall,
		"final_score":   updated.FinalScore,
		"status":        updated.Status,
	})
}

// findAssignment resolves the caller's assignment for a submission.
// Admins may act without one and get a nil assignment back.
func (s *JudgingService) findAssignment(c *fiber.Ctx, judgeID, submissionID string) (*models.JudgeAssignment, error) {
	var assignment models.JudgeAssignment
	err := s.DB.Where("judge_id = ? AND submission_id = ?", judgeID, submissionID).
		First(&assignment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		if middleware.HasRole(c, string(models.RoleAdmin)) {
			return nil, nil
		}
		return nil, errs.Forbidden("submission %s is not assigned to you", submissionID)
	}
	if err != nil {
		return nil, err
	}
	return &assignment, nil
}

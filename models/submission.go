package models

import (
	"time"

	"github.com/jjnnsslimaye/seedling-backend/scoring"
)

type SubmissionStatus string

const (
	SubmissionDraft          SubmissionStatus = "draft"
	SubmissionPendingPayment SubmissionStatus = "pending_payment"
	SubmissionSubmitted      SubmissionStatus = "submitted"
	SubmissionUnderReview    SubmissionStatus = "under_review"
	SubmissionWinner         SubmissionStatus = "winner"
	SubmissionNotSelected    SubmissionStatus = "not_selected"
	SubmissionRejected       SubmissionStatus = "rejected"
)

// JudgingEligibleStatuses are the submission states that count toward
// judging and winner selection.
var JudgingEligibleStatuses = []SubmissionStatus{
	SubmissionSubmitted,
	SubmissionUnderReview,
}

// RankableStatuses are the submission states the leaderboard ranks,
// including decided ones so rankings remain visible after selection.
var RankableStatuses = []SubmissionStatus{
	SubmissionSubmitted,
	SubmissionUnderReview,
	SubmissionWinner,
	SubmissionNotSelected,
}

// Attachment is an uploaded artifact stored in object storage. Key is the
// storage key; URLs are minted per request.
type Attachment struct {
	Type        string    `json:"type"`
	Key         string    `json:"key"`
	Filename    string    `json:"filename,omitempty"`
	ContentType string    `json:"content_type,omitempty"`
	SizeBytes   int64     `json:"size_bytes,omitempty"`
	UploadedAt  time.Time `json:"uploaded_at"`
}

// JudgeScore is one judge's full scorecard for a submission.
type JudgeScore struct {
	JudgeID        string             `json:"judge_id"`
	JudgeName      string             `json:"judge_name"`
	CriteriaScores map[string]float64 `json:"criteria_scores"`
	Overall        float64            `json:"overall"`
	Feedback       string             `json:"feedback,omitempty"`
	SubmittedAt    time.Time          `json:"submitted_at"`
}

// ScoreSummary aggregates per-judge scores with their running average.
type ScoreSummary struct {
	Judges  []JudgeScore `json:"judges"`
	Average float64      `json:"average"`
}

// FeedbackEntry mirrors a judge's written feedback for founder-facing
// display, kept separately so scores can stay private.
type FeedbackEntry struct {
	JudgeID     string    `json:"judge_id"`
	JudgeName   string    `json:"judge_name"`
	Feedback    string    `json:"feedback"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// Submission is a founder's entry into a competition.
type Submission struct {
	ID            string `json:"id" gorm:"primaryKey"`
	CompetitionID string `json:"competition_id" gorm:"not null;index"`
	UserID        string `json:"user_id" gorm:"not null;index"`

	Title       string `json:"title" gorm:"not null"`
	Description string `json:"description" gorm:"type:text"`
	IsPublic    bool   `json:"is_public" gorm:"default:false"`

	Attachments []Attachment `json:"attachments,omitempty" gorm:"serializer:json"`

	Status SubmissionStatus `json:"status" gorm:"type:varchar(24);default:'draft';index"`

	AIScores      *ScoreSummary   `json:"ai_scores,omitempty" gorm:"serializer:json"`
	HumanScores   *ScoreSummary   `json:"human_scores,omitempty" gorm:"serializer:json"`
	JudgeFeedback []FeedbackEntry `json:"judge_feedback,omitempty" gorm:"serializer:json"`
	FinalScore    *float64        `json:"final_score,omitempty"`
	Placement     *string         `json:"placement,omitempty"`

	SubmittedAt *time.Time `json:"submitted_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt   time.Time  `json:"updated_at" gorm:"autoUpdateTime"`

	// Relationships
	Competition Competition       `json:"competition,omitempty" gorm:"foreignKey:CompetitionID"`
	User        User              `json:"user,omitempty" gorm:"foreignKey:UserID"`
	Assignments []JudgeAssignment `json:"assignments,omitempty" gorm:"foreignKey:SubmissionID"`
	Payments    []Payment         `json:"payments,omitempty" gorm:"foreignKey:SubmissionID"`
}

// JudgingEligible reports whether this submission counts for judging and
// winner selection.
func (s *Submission) JudgingEligible() bool {
	for _, st := range JudgingEligibleStatuses {
		if s.Status == st {
			return true
		}
	}
	return false
}

// UpsertJudgeScore records or replaces a judge's score, mirrors the
// feedback entry, and recomputes the blended final score. Re-submission
// by the same judge overwrites rather than appends.
func (s *Submission) UpsertJudgeScore(entry JudgeScore) {
	hs := s.HumanScores
	if hs == nil {
		hs = &ScoreSummary{}
	}
	replaced := false
	for i := range hs.Judges {
		if hs.Judges[i].JudgeID == entry.JudgeID {
			hs.Judges[i] = entry
			replaced = true
			break
		}
	}
	if !replaced {
		hs.Judges = append(hs.Judges, entry)
	}
	var total float64
	for _, js := range hs.Judges {
		total += js.Overall
	}
	hs.Average = total / float64(len(hs.Judges))
	s.HumanScores = hs

	fb := FeedbackEntry{
		JudgeID:     entry.JudgeID,
		JudgeName:   entry.JudgeName,
		Feedback:    entry.Feedback,
		SubmittedAt: entry.SubmittedAt,
	}
	replaced = false
	for i := range s.JudgeFeedback {
		if s.JudgeFeedback[i].JudgeID == entry.JudgeID {
			s.JudgeFeedback[i] = fb
			replaced = true
			break
		}
	}
	if !replaced {
		s.JudgeFeedback = append(s.JudgeFeedback, fb)
	}

	s.RecalculateFinalScore()
}

// RecalculateFinalScore re-derives FinalScore from the stored summaries.
func (s *Submission) RecalculateFinalScore() {
	var aiAvg, humanAvg float64
	if s.AIScores != nil {
		aiAvg = s.AIScores.Average
	}
	if s.HumanScores != nil {
		humanAvg = s.HumanScores.Average
	}
	final := scoring.FinalScore(aiAvg, humanAvg)
	s.FinalScore = &final
}

// HumanAverage returns the human score average if any judge has scored.
func (s *Submission) HumanAverage() *float64 {
	if s.HumanScores == nil || len(s.HumanScores.Judges) == 0 {
		return nil
	}
	avg := s.HumanScores.Average
	return &avg
}

// AttachmentOfType returns the first attachment of the given type.
func (s *Submission) AttachmentOfType(kind string) *Attachment {
	for i := range s.Attachments {
		if s.Attachments[i].Type == kind {
			return &s.Attachments[i]
		}
	}
	return nil
}

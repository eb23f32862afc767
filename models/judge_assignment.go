package models

import "time"

type AssignmentStatus string

const (
	AssignmentAssigned  AssignmentStatus = "assigned"
	AssignmentCompleted AssignmentStatus = "completed"
)

// JudgeAssignment links a judge to one submission. A judge holds at most
// one assignment per submission; completion flips when the scorecard
// lands.
type JudgeAssignment struct {
	ID           string `json:"id" gorm:"primaryKey"`
	JudgeID      string `json:"judge_id" gorm:"not null;uniqueIndex:idx_judge_submission"`
	SubmissionID string `json:"submission_id" gorm:"not null;uniqueIndex:idx_judge_submission;index"`

	Status      AssignmentStatus `json:"status" gorm:"type:varchar(16);default:'assigned';index"`
	AssignedBy  string           `json:"assigned_by"`
	AssignedAt  time.Time        `json:"assigned_at" gorm:"autoCreateTime"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`

	// Relationships
	Judge      User       `json:"judge,omitempty" gorm:"foreignKey:JudgeID"`
	Submission Submission `json:"submission,omitempty" gorm:"foreignKey:SubmissionID"`
}

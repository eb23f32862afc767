package models

import "time"

type PaymentType string

const (
	PaymentEntryFee    PaymentType = "entry_fee"
	PaymentPrizePayout PaymentType = "prize_payout"
	PaymentRefund      PaymentType = "refund"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
	PaymentRefunded  PaymentStatus = "refunded"
)

// Payment is the local ledger row for money movement at the processor:
// entry-fee charges in, prize transfers out. Status transitions away from
// pending are guarded so replayed webhooks and concurrent polls cannot
// apply effects twice.
type Payment struct {
	ID            string  `json:"id" gorm:"primaryKey"`
	UserID        string  `json:"user_id" gorm:"not null;index"`
	CompetitionID string  `json:"competition_id" gorm:"not null;index"`
	SubmissionID  *string `json:"submission_id,omitempty" gorm:"index"`

	Type     PaymentType   `json:"type" gorm:"type:varchar(16);not null;index"`
	Status   PaymentStatus `json:"status" gorm:"type:varchar(16);default:'pending';index"`
	Amount   float64       `json:"amount" gorm:"not null"`
	Currency string        `json:"currency" gorm:"type:varchar(8);default:'usd'"`

	StripePaymentIntentID *string `json:"stripe_payment_intent_id,omitempty" gorm:"index"`
	StripeTransferID      *string `json:"stripe_transfer_id,omitempty" gorm:"index"`
	FailureReason         *string `json:"failure_reason,omitempty"`

	ProcessedAt *time.Time `json:"processed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt   time.Time  `json:"updated_at" gorm:"autoUpdateTime"`

	// Relationships
	User        User        `json:"user,omitempty" gorm:"foreignKey:UserID"`
	Competition Competition `json:"competition,omitempty" gorm:"foreignKey:CompetitionID"`
}

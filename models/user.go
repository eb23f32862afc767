package models

import "time"

type UserRole string

const (
	RoleFounder UserRole = "founder"
	RoleJudge   UserRole = "judge"
	RoleAdmin   UserRole = "admin"
)

// User is a platform account. Identity lives at the gateway; this row
// carries the role and the payout-account linkage needed for prize
// distribution.
type User struct {
	ID       string   `json:"id" gorm:"primaryKey"`
	Email    string   `json:"email" gorm:"uniqueIndex;not null"`
	Username string   `json:"username" gorm:"not null"`
	FullName string   `json:"full_name"`
	Role     UserRole `json:"role" gorm:"type:varchar(16);default:'founder';index"`

	// Connected payout account state, mirrored from the processor.
	StripeConnectAccountID    *string    `json:"stripe_connect_account_id,omitempty" gorm:"index"`
	ConnectOnboardingComplete bool       `json:"connect_onboarding_complete" gorm:"default:false"`
	ConnectPayoutsEnabled     bool       `json:"connect_payouts_enabled" gorm:"default:false"`
	ConnectOnboardedAt        *time.Time `json:"connect_onboarded_at,omitempty"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// PayoutReady reports whether prize transfers can reach this user.
func (u *User) PayoutReady() bool {
	return u.StripeConnectAccountID != nil && *u.StripeConnectAccountID != "" &&
		u.ConnectOnboardingComplete && u.ConnectPayoutsEnabled
}

// HasConnectAccount reports whether a payout account exists at all,
// onboarded or not.
func (u *User) HasConnectAccount() bool {
	return u.StripeConnectAccountID != nil && *u.StripeConnectAccountID != ""
}

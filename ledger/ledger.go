// Package ledger adapts the external payment processor. The rest of the
// application talks to the Client interface; tests substitute a double.
package ledger

import (
	"context"
	"encoding/json"
)

// Charge statuses as reported by the processor. Only the values the
// reconciliation paths branch on are named.
const (
	ChargeSucceeded             = "succeeded"
	ChargeProcessing            = "processing"
	ChargeCanceled              = "canceled"
	ChargeRequiresPaymentMethod = "requires_payment_method"
	ChargeRequiresAction        = "requires_action"
	ChargeRequiresConfirmation  = "requires_confirmation"
)

// Webhook event types the handler recognizes.
const (
	EventChargeSucceeded = "payment_intent.succeeded"
	EventChargeFailed    = "payment_intent.payment_failed"
	EventTransferPaid    = "transfer.paid"
	EventTransferFailed  = "transfer.failed"
	EventTransferCreated = "transfer.created"
)

// Charge is an entry-fee payment intent held at the processor.
type Charge struct {
	ID           string
	ClientSecret string
	Status       string
	AmountMinor  int64
	Metadata     map[string]string
}

// Transfer is a prize payout to a connected payout account.
type Transfer struct {
	ID          string
	AmountMinor int64
	Destination string
}

// Event is a verified webhook notification.
type Event struct {
	ID     string
	Type   string
	Object json.RawMessage
}

// Client is the processor adapter. Implementations must be safe for
// concurrent use; a single instance is constructed at startup and
// injected into the services that need it.
type Client interface {
	// CreateCharge opens a new payment intent for an entry fee.
	CreateCharge(ctx context.Context, amountMinor int64, currency string, metadata map[string]string) (*Charge, error)
	// GetCharge fetches the processor's current view of a charge.
	GetCharge(ctx context.Context, id string) (*Charge, error)
	// CreateTransfer moves prize money to a connected account. The
	// idempotency key makes retries safe: the processor returns the
	// original transfer instead of moving money twice.
	CreateTransfer(ctx context.Context, amountMinor int64, currency, destination, idempotencyKey string, metadata map[string]string) (*Transfer, error)
	// AvailableBalance returns the platform's available balance in
	// minor units for the given currency.
	AvailableBalance(ctx context.Context, currency string) (int64, error)
	// VerifyWebhook checks the signature and parses the event. A nil
	// error means the payload is authentic.
	VerifyWebhook(payload []byte, signature string) (*Event, error)
}

// MinorUnits converts a decimal currency amount to integer minor units,
// rounding half away from zero.
func MinorUnits(amount float64) int64 {
	if amount < 0 {
		return -MinorUnits(-amount)
	}
	return int64(amount*100 + 0.5)
}

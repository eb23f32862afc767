package ledger

import (
	"context"
	"strings"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
)

// StripeClient implements Client against Stripe. It owns its own API
// handle instead of mutating the SDK's package-level key so multiple
// configurations can coexist in one process.
type StripeClient struct {
	api           *client.API
	webhookSecret string
}

func NewStripeClient(secretKey, webhookSecret string) *StripeClient {
	api := &client.API{}
	api.Init(secretKey, nil)
	return &StripeClient{api: api, webhookSecret: webhookSecret}
}

func (s *StripeClient) CreateCharge(ctx context.Context, amountMinor int64, currency string, metadata map[string]string) (*Charge, error) {
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(amountMinor),
		Currency: stripe.String(strings.ToLower(currency)),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled:        stripe.Bool(true),
			AllowRedirects: stripe.String("never"),
		},
	}
	params.Context = ctx
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}
	pi, err := s.api.PaymentIntents.New(params)
	if err != nil {
		return nil, err
	}
	return chargeFromIntent(pi), nil
}

func (s *StripeClient) GetCharge(ctx context.Context, id string) (*Charge, error) {
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	pi, err := s.api.PaymentIntents.Get(id, params)
	if err != nil {
		return nil, err
	}
	return chargeFromIntent(pi), nil
}

func (s *StripeClient) CreateTransfer(ctx context.Context, amountMinor int64, currency, destination, idempotencyKey string, metadata map[string]string) (*Transfer, error) {
	params := &stripe.TransferParams{
		Amount:      stripe.Int64(amountMinor),
		Currency:    stripe.String(strings.ToLower(currency)),
		Destination: stripe.String(destination),
	}
	params.Context = ctx
	params.IdempotencyKey = stripe.String(idempotencyKey)
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}
	tr, err := s.api.Transfers.New(params)
	if err != nil {
		return nil, err
	}
	out := &Transfer{ID: tr.ID, AmountMinor: tr.Amount}
	if tr.Destination != nil {
		out.Destination = tr.Destination.ID
	}
	return out, nil
}

func (s *StripeClient) AvailableBalance(ctx context.Context, currency string) (int64, error) {
	params := &stripe.BalanceParams{}
	params.Context = ctx
	bal, err := s.api.Balance.Get(params)
	if err != nil {
		return 0, err
	}
	want := stripe.Currency(strings.ToLower(currency))
	for _, a := range bal.Available {
		if a.Currency == want {
			return a.Amount, nil
		}
	}
	return 0, nil
}

func (s *StripeClient) VerifyWebhook(payload []byte, signature string) (*Event, error) {
	event, err := webhook.ConstructEvent(payload, signature, s.webhookSecret)
	if err != nil {
		return nil, err
	}
	return &Event{ID: event.ID, Type: string(event.Type), Object: event.Data.Raw}, nil
}

func chargeFromIntent(pi *stripe.PaymentIntent) *Charge {
	return &Charge{
		ID:           pi.ID,
		ClientSecret: pi.ClientSecret,
		Status:       string(pi.Status),
		AmountMinor:  pi.Amount,
		Metadata:     pi.Metadata,
	}
}

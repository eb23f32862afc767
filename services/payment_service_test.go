package services

import (
	"bytes"
	"fmt"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/jjnnsslimaye/seedling-backend/models"
)

func seedPendingEntryFee(t *testing.T, db *gorm.DB, comp *models.Competition, sub *models.Submission, intentID string) *models.Payment {
	t.Helper()
	p := &models.Payment{
		ID:                    uuid.NewString(),
		UserID:                sub.UserID,
		CompetitionID:         comp.ID,
		SubmissionID:          &sub.ID,
		Type:                  models.PaymentEntryFee,
		Status:                models.PaymentPending,
		Amount:                comp.EntryFee,
		Currency:              "usd",
		StripePaymentIntentID: &intentID,
	}
	if err := db.Create(p).Error; err != nil {
		t.Fatalf("seed payment: %v", err)
	}
	return p
}

func webhookApp(svc *PaymentService) *fiber.App {
	app := fiber.New()
	app.Post("/payments/webhook", svc.HandleWebhook)
	return app
}

func postWebhook(t *testing.T, app *fiber.App, signature, payload string) int {
	t.Helper()
	req := httptest.NewRequest("POST", "/payments/webhook", bytes.NewReader([]byte(payload)))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Stripe-Signature", signature)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("webhook request: %v", err)
	}
	return resp.StatusCode
}

func TestApplyEntryFeeSuccessIsOneShot(t *testing.T) {
	db := setupTestDB(t)
	comp := seedCompetition(t, db, models.CompetitionActive)
	founder := seedUser(t, db, models.RoleFounder)
	sub := seedSubmission(t, db, comp, founder, models.SubmissionPendingPayment)
	payment := seedPendingEntryFee(t, db, comp, sub, "pi_once")

	applied, err := applyEntryFeeSuccess(db, payment.ID)
	if err != nil {
		t.Fatalf("first apply: %v", err)
	}
	if !applied {
		t.Fatal("first apply should win the pending->completed flip")
	}

	applied, err = applyEntryFeeSuccess(db, payment.ID)
	if err != nil {
		t.Fatalf("second apply: %v", err)
	}
	if applied {
		t.Fatal("second apply must be a no-op")
	}

	var gotComp models.Competition
	db.First(&gotComp, "id = ?", comp.ID)
	if gotComp.CurrentEntries != 1 {
		t.Fatalf("current_entries = %d, want 1", gotComp.CurrentEntries)
	}
	// 100 entry fee at 10% platform cut credits 90 to the pool, once.
	if gotComp.PrizePool != 90 {
		t.Fatalf("prize_pool = %v, want 90", gotComp.PrizePool)
	}

	var gotSub models.Submission
	db.First(&gotSub, "id = ?", sub.ID)
	if gotSub.Status != models.SubmissionSubmitted {
		t.Fatalf("submission status = %s, want submitted", gotSub.Status)
	}
	if gotSub.SubmittedAt == nil {
		t.Fatal("submitted_at should be set")
	}

	var gotPay models.Payment
	db.First(&gotPay, "id = ?", payment.ID)
	if gotPay.Status != models.PaymentCompleted {
		t.Fatalf("payment status = %s, want completed", gotPay.Status)
	}
	if gotPay.ProcessedAt == nil {
		t.Fatal("processed_at should be set")
	}
}

func TestWebhookChargeSucceededDoubleDelivery(t *testing.T) {
	db := setupTestDB(t)
	lc := newFakeLedger()
	svc := NewPaymentService(db, lc, nil)
	app := webhookApp(svc)

	comp := seedCompetition(t, db, models.CompetitionActive)
	founder := seedUser(t, db, models.RoleFounder)
	sub := seedSubmission(t, db, comp, founder, models.SubmissionPendingPayment)
	payment := seedPendingEntryFee(t, db, comp, sub, "pi_dup")

	payload := fmt.Sprintf(`{
		"id": "evt_1",
		"type": "payment_intent.succeeded",
		"data": {"object": {"id": "pi_dup", "metadata": {"payment_id": %q}}}
	}`, payment.ID)

	for i := 0; i < 2; i++ {
		if code := postWebhook(t, app, "valid", payload); code != 200 {
			t.Fatalf("delivery %d: status %d, want 200", i+1, code)
		}
	}

	var gotComp models.Competition
	db.First(&gotComp, "id = ?", comp.ID)
	if gotComp.PrizePool != 90 {
		t.Fatalf("prize_pool = %v after replay, want 90 (credited once)", gotComp.PrizePool)
	}
	if gotComp.CurrentEntries != 1 {
		t.Fatalf("current_entries = %d after replay, want 1", gotComp.CurrentEntries)
	}
}

func TestWebhookBadSignatureRejected(t *testing.T) {
	db := setupTestDB(t)
	svc := NewPaymentService(db, newFakeLedger(), nil)
	app := webhookApp(svc)

	if code := postWebhook(t, app, "forged", `{"type":"payment_intent.succeeded"}`); code != 400 {
		t.Fatalf("status = %d, want 400 for bad signature", code)
	}
}

func TestWebhookChargeFailedLeavesRetryOpen(t *testing.T) {
	db := setupTestDB(t)
	svc := NewPaymentService(db, newFakeLedger(), nil)
	app := webhookApp(svc)

	comp := seedCompetition(t, db, models.CompetitionActive)
	founder := seedUser(t, db, models.RoleFounder)
	sub := seedSubmission(t, db, comp, founder, models.SubmissionPendingPayment)
	payment := seedPendingEntryFee(t, db, comp, sub, "pi_fail")

	payload := fmt.Sprintf(`{
		"type": "payment_intent.payment_failed",
		"data": {"object": {"id": "pi_fail", "metadata": {"payment_id": %q},
			"last_payment_error": {"message": "card declined"}}}
	}`, payment.ID)
	if code := postWebhook(t, app, "valid", payload); code != 200 {
		t.Fatalf("status = %d, want 200", code)
	}

	var gotPay models.Payment
	db.First(&gotPay, "id = ?", payment.ID)
	if gotPay.Status != models.PaymentFailed {
		t.Fatalf("payment status = %s, want failed", gotPay.Status)
	}
	if gotPay.FailureReason == nil || *gotPay.FailureReason != "card declined" {
		t.Fatalf("failure_reason = %v, want card declined", gotPay.FailureReason)
	}
	if gotPay.ProcessedAt == nil {
		t.Fatal("processed_at must be set on a terminal failure")
	}

	var gotSub models.Submission
	db.First(&gotSub, "id = ?", sub.ID)
	if gotSub.Status != models.SubmissionPendingPayment {
		t.Fatalf("submission status = %s, failed charge must leave retry open", gotSub.Status)
	}

	var gotComp models.Competition
	db.First(&gotComp, "id = ?", comp.ID)
	if gotComp.PrizePool != 0 || gotComp.CurrentEntries != 0 {
		t.Fatal("failed charge must not touch pool or entries")
	}
}

func TestWebhookTransferLifecycle(t *testing.T) {
	db := setupTestDB(t)
	svc := NewPaymentService(db, newFakeLedger(), nil)
	app := webhookApp(svc)

	comp := seedCompetition(t, db, models.CompetitionComplete)
	winner := seedPayoutReadyUser(t, db)
	sub := seedSubmission(t, db, comp, winner, models.SubmissionWinner)

	transferID := "tr_settle"
	payout := &models.Payment{
		ID:               uuid.NewString(),
		UserID:           winner.ID,
		CompetitionID:    comp.ID,
		SubmissionID:     &sub.ID,
		Type:             models.PaymentPrizePayout,
		Status:           models.PaymentPending,
		Amount:           500,
		Currency:         "usd",
		StripeTransferID: &transferID,
	}
	if err := db.Create(payout).Error; err != nil {
		t.Fatalf("seed payout: %v", err)
	}

	created := `{"type": "transfer.created", "data": {"object": {"id": "tr_settle"}}}`
	if code := postWebhook(t, app, "valid", created); code != 200 {
		t.Fatalf("transfer.created status = %d, want 200", code)
	}
	var gotPay models.Payment
	db.First(&gotPay, "id = ?", payout.ID)
	if gotPay.Status != models.PaymentPending {
		t.Fatalf("transfer.created must not change status, got %s", gotPay.Status)
	}

	paid := `{"type": "transfer.paid", "data": {"object": {"id": "tr_settle"}}}`
	if code := postWebhook(t, app, "valid", paid); code != 200 {
		t.Fatalf("transfer.paid status = %d, want 200", code)
	}
	db.First(&gotPay, "id = ?", payout.ID)
	if gotPay.Status != models.PaymentCompleted {
		t.Fatalf("payout status = %s, want completed", gotPay.Status)
	}
	if gotPay.ProcessedAt == nil {
		t.Fatal("processed_at should be set on settlement")
	}
}

func TestWebhookTransferFailed(t *testing.T) {
	db := setupTestDB(t)
	svc := NewPaymentService(db, newFakeLedger(), nil)
	app := webhookApp(svc)

	comp := seedCompetition(t, db, models.CompetitionComplete)
	winner := seedPayoutReadyUser(t, db)
	sub := seedSubmission(t, db, comp, winner, models.SubmissionWinner)

	transferID := "tr_dead"
	payout := &models.Payment{
		ID:               uuid.NewString(),
		UserID:           winner.ID,
		CompetitionID:    comp.ID,
		SubmissionID:     &sub.ID,
		Type:             models.PaymentPrizePayout,
		Status:           models.PaymentPending,
		Amount:           300,
		Currency:         "usd",
		StripeTransferID: &transferID,
	}
	if err := db.Create(payout).Error; err != nil {
		t.Fatalf("seed payout: %v", err)
	}

	payload := `{"type": "transfer.failed", "data": {"object": {"id": "tr_dead"}}}`
	if code := postWebhook(t, app, "valid", payload); code != 200 {
		t.Fatalf("status = %d, want 200", code)
	}

	var gotPay models.Payment
	db.First(&gotPay, "id = ?", payout.ID)
	if gotPay.Status != models.PaymentFailed {
		t.Fatalf("payout status = %s, want failed", gotPay.Status)
	}
}

func TestWebhookUnknownEventAcked(t *testing.T) {
	db := setupTestDB(t)
	svc := NewPaymentService(db, newFakeLedger(), nil)
	app := webhookApp(svc)

	payload := `{"type": "customer.created", "data": {"object": {"id": "cus_1"}}}`
	if code := postWebhook(t, app, "valid", payload); code != 200 {
		t.Fatalf("status = %d, unknown events must be acked", code)
	}
}

func TestWebhookUnknownPaymentAcked(t *testing.T) {
	db := setupTestDB(t)
	svc := NewPaymentService(db, newFakeLedger(), nil)
	app := webhookApp(svc)

	payload := `{"type": "payment_intent.succeeded", "data": {"object": {"id": "pi_ghost", "metadata": {}}}}`
	if code := postWebhook(t, app, "valid", payload); code != 200 {
		t.Fatalf("status = %d, events for unknown payments must be acked", code)
	}
}

package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/jjnnsslimaye/seedling-backend/ledger"
	"github.com/jjnnsslimaye/seedling-backend/models"
)

var errTest = errors.New("processor unavailable")

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if err := db.AutoMigrate(
		&models.User{},
		&models.Competition{},
		&models.Submission{},
		&models.JudgeAssignment{},
		&models.Payment{},
	); err != nil {
		t.Fatalf("migrate test db: %v", err)
	}
	return db
}

// fakeLedger is an in-memory stand-in for the payment processor. Charge
// statuses are scripted per test; transfers honor idempotency keys the
// way the real processor does.
type fakeLedger struct {
	mu sync.Mutex

	charges        map[string]*ledger.Charge
	chargesCreated int

	transfersByKey  map[string]*ledger.Transfer
	transferCalls   int
	transferErr     error
	transfersMade   int

	balance    int64
	balanceErr error
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		charges:        make(map[string]*ledger.Charge),
		transfersByKey: make(map[string]*ledger.Transfer),
		balance:        1 << 40,
	}
}

func (f *fakeLedger) CreateCharge(_ context.Context, amountMinor int64, _ string, metadata map[string]string) (*ledger.Charge, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.chargesCreated++
	id := fmt.Sprintf("pi_test_%d", f.chargesCreated)
	ch := &ledger.Charge{
		ID:           id,
		ClientSecret: id + "_secret",
		Status:       ledger.ChargeRequiresPaymentMethod,
		AmountMinor:  amountMinor,
		Metadata:     metadata,
	}
	f.charges[id] = ch
	return ch, nil
}

func (f *fakeLedger) GetCharge(_ context.Context, id string) (*ledger.Charge, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch, ok := f.charges[id]
	if !ok {
		return nil, errors.New("no such charge")
	}
	cp := *ch
	return &cp, nil
}

func (f *fakeLedger) setChargeStatus(id, status string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if ch, ok := f.charges[id]; ok {
		ch.Status = status
	}
}

// seedCharge registers a charge the fake did not create itself.
func (f *fakeLedger) seedCharge(id, status string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.charges[id] = &ledger.Charge{ID: id, ClientSecret: id + "_secret", Status: status}
}

func (f *fakeLedger) CreateTransfer(_ context.Context, amountMinor int64, _, destination, idempotencyKey string, _ map[string]string) (*ledger.Transfer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transferCalls++
	if f.transferErr != nil {
		return nil, f.transferErr
	}
	if tr, ok := f.transfersByKey[idempotencyKey]; ok {
		cp := *tr
		return &cp, nil
	}
	f.transfersMade++
	tr := &ledger.Transfer{
		ID:          fmt.Sprintf("tr_test_%d", f.transfersMade),
		AmountMinor: amountMinor,
		Destination: destination,
	}
	f.transfersByKey[idempotencyKey] = tr
	cp := *tr
	return &cp, nil
}

func (f *fakeLedger) AvailableBalance(_ context.Context, _ string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balance, f.balanceErr
}

// VerifyWebhook treats the literal signature "valid" as authentic and
// parses the standard event envelope.
func (f *fakeLedger) VerifyWebhook(payload []byte, signature string) (*ledger.Event, error) {
	if signature != "valid" {
		return nil, errors.New("signature verification failed")
	}
	var envelope struct {
		ID   string `json:"id"`
		Type string `json:"type"`
		Data struct {
			Object json.RawMessage `json:"object"`
		} `json:"data"`
	}
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, err
	}
	return &ledger.Event{ID: envelope.ID, Type: envelope.Type, Object: envelope.Data.Object}, nil
}

func seedUser(t *testing.T, db *gorm.DB, role models.UserRole) *models.User {
	t.Helper()
	u := &models.User{
		ID:       uuid.NewString(),
		Email:    uuid.NewString() + "@example.com",
		Username: "user-" + uuid.NewString()[:8],
		Role:     role,
	}
	if err := db.Create(u).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return u
}

func seedPayoutReadyUser(t *testing.T, db *gorm.DB) *models.User {
	t.Helper()
	u := seedUser(t, db, models.RoleFounder)
	acct := "acct_" + uuid.NewString()[:8]
	now := time.Now().UTC()
	u.StripeConnectAccountID = &acct
	u.ConnectOnboardingComplete = true
	u.ConnectPayoutsEnabled = true
	u.ConnectOnboardedAt = &now
	if err := db.Save(u).Error; err != nil {
		t.Fatalf("seed payout user: %v", err)
	}
	return u
}

func seedCompetition(t *testing.T, db *gorm.DB, status models.CompetitionStatus) *models.Competition {
	t.Helper()
	now := time.Now().UTC()
	comp := &models.Competition{
		ID:                    uuid.NewString(),
		Title:                 "Pitch Sprint",
		Domain:                "fintech",
		Slug:                  "pitch-sprint-" + uuid.NewString()[:8],
		EntryFee:              100,
		PlatformFeePercentage: 10,
		MaxEntries:            50,
		OpenDate:              now.Add(-48 * time.Hour),
		Deadline:              now.Add(48 * time.Hour),
		JudgingSLADays:        14,
		Status:                status,
		Rubric: models.Rubric{
			"innovation": {Weight: f64(2)},
			"execution":  {Weight: f64(1)},
		},
		PrizeStructure: models.PrizeStructure{"1": 0.5, "2": 0.3, "3": 0.2},
		CreatedBy:      uuid.NewString(),
	}
	if err := db.Create(comp).Error; err != nil {
		t.Fatalf("seed competition: %v", err)
	}
	return comp
}

func seedSubmission(t *testing.T, db *gorm.DB, comp *models.Competition, user *models.User, status models.SubmissionStatus) *models.Submission {
	t.Helper()
	sub := &models.Submission{
		ID:            uuid.NewString(),
		CompetitionID: comp.ID,
		UserID:        user.ID,
		Title:         "Entry " + uuid.NewString()[:8],
		Status:        status,
	}
	if status != models.SubmissionDraft && status != models.SubmissionPendingPayment {
		now := time.Now().UTC()
		sub.SubmittedAt = &now
	}
	if err := db.Create(sub).Error; err != nil {
		t.Fatalf("seed submission: %v", err)
	}
	return sub
}

func seedAssignment(t *testing.T, db *gorm.DB, judge *models.User, sub *models.Submission, status models.AssignmentStatus) *models.JudgeAssignment {
	t.Helper()
	a := &models.JudgeAssignment{
		ID:           uuid.NewString(),
		JudgeID:      judge.ID,
		SubmissionID: sub.ID,
		Status:       status,
	}
	if status == models.AssignmentCompleted {
		now := time.Now().UTC()
		a.CompletedAt = &now
	}
	if err := db.Create(a).Error; err != nil {
		t.Fatalf("seed assignment: %v", err)
	}
	return a
}

func f64(v float64) *float64 { return &v }

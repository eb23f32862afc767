package services

import (
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/jjnnsslimaye/seedling-backend/ledger"
	"github.com/jjnnsslimaye/seedling-backend/middleware"
	"github.com/jjnnsslimaye/seedling-backend/models"
)

type PaymentService struct {
	DB       *gorm.DB
	Ledger   ledger.Client
	Notifier *NotificationService
}

func NewPaymentService(db *gorm.DB, lc ledger.Client, notifier *NotificationService) *PaymentService {
	return &PaymentService{DB: db, Ledger: lc, Notifier: notifier}
}

// applyEntryFeeSuccess applies the one-time effects of a confirmed entry
// fee: payment completed, submission submitted, entry counter and prize
// pool bumped. The conditional update on the payment row is the
// idempotency guard; whichever caller wins the pending->completed flip
// applies the effects, every other caller (webhook replay, concurrent
// poll) sees zero rows and does nothing.
func applyEntryFeeSuccess(db *gorm.DB, paymentID string) (bool, error) {
	applied := false
	err := db.Transaction(func(tx *gorm.DB) error {
		now := time.Now().UTC()
		res := tx.Model(&models.Payment{}).
			Where("id = ? AND status = ?", paymentID, models.PaymentPending).
			Updates(map[string]interface{}{
				"status":       models.PaymentCompleted,
				"processed_at": now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		applied = true

		var payment models.Payment
		if err := tx.First(&payment, "id = ?", paymentID).Error; err != nil {
			return err
		}

		if payment.SubmissionID != nil {
			var sub models.Submission
			if err := tx.First(&sub, "id = ?", *payment.SubmissionID).Error; err != nil {
				return err
			}
			updates := map[string]interface{}{"status": models.SubmissionSubmitted}
			if sub.SubmittedAt == nil {
				updates["submitted_at"] = now
			}
			if err := tx.Model(&models.Submission{}).
				Where("id = ? AND status IN ?", sub.ID,
					[]models.SubmissionStatus{models.SubmissionDraft, models.SubmissionPendingPayment}).
				Updates(updates).Error; err != nil {
				return err
			}
		}

		var comp models.Competition
		if err := tx.First(&comp, "id = ?", payment.CompetitionID).Error; err != nil {
			return err
		}
		return tx.Model(&models.Competition{}).
			Where("id = ?", comp.ID).
			Updates(map[string]interface{}{
				"current_entries": gorm.Expr("current_entries + 1"),
				"prize_pool":      gorm.Expr("prize_pool + ?", comp.PrizeContribution()),
			}).Error
	})
	return applied, err
}

// HandleWebhook receives processor events. Signature verification happens
// before any lookup; a bad signature or unparseable payload is the only
// 400. Everything after that point is acknowledged with 200 so the
// processor does not retry forever, and processing errors are logged for
// the poll path to converge later.
func (s *PaymentService) HandleWebhook(c *fiber.Ctx) error {
	event, err := s.Ledger.VerifyWebhook(c.Body(), c.Get("Stripe-Signature"))
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid webhook payload"})
	}

	switch event.Type {
	case ledger.EventChargeSucceeded:
		if err := s.handleChargeSucceeded(event.Object); err != nil {
			log.Printf("[Webhook] %s: %v", event.Type, err)
		}
	case ledger.EventChargeFailed:
		if err := s.handleChargeFailed(event.Object); err != nil {
			log.Printf("[Webhook] %s: %v", event.Type, err)
		}
	case ledger.EventTransferPaid:
		if err := s.handleTransferPaid(event.Object); err != nil {
			log.Printf("[Webhook] %s: %v", event.Type, err)
		}
	case ledger.EventTransferFailed:
		if err := s.handleTransferFailed(event.Object); err != nil {
			log.Printf("[Webhook] %s: %v", event.Type, err)
		}
	case ledger.EventTransferCreated:
		log.Printf("[Webhook] transfer created, awaiting settlement")
	default:
		log.Printf("[Webhook] ignoring event type %s", event.Type)
	}

	return c.JSON(fiber.Map{"received": true})
}

type chargeEvent struct {
	ID       string            `json:"id"`
	Metadata map[string]string `json:"metadata"`
	LastErr  *struct {
		Message string `json:"message"`
	} `json:"last_payment_error"`
}

func (s *PaymentService) handleChargeSucceeded(raw json.RawMessage) error {
	var obj chargeEvent
	if err := json.Unmarshal(raw, &obj); err != nil {
		return err
	}
	payment, err := s.findEntryFeePayment(obj)
	if err != nil {
		return err
	}
	if payment == nil {
		log.Printf("[Webhook] no payment found for intent %s, ignoring", obj.ID)
		return nil
	}
	applied, err := applyEntryFeeSuccess(s.DB, payment.ID)
	if err != nil {
		return err
	}
	if applied {
		log.Printf("[Webhook] entry fee confirmed: payment=%s competition=%s", payment.ID, payment.CompetitionID)
		if s.Notifier != nil {
			go s.Notifier.NotifyEntryConfirmed(payment)
		}
	}
	return nil
}

func (s *PaymentService) handleChargeFailed(raw json.RawMessage) error {
	var obj chargeEvent
	if err := json.Unmarshal(raw, &obj); err != nil {
		return err
	}
	payment, err := s.findEntryFeePayment(obj)
	if err != nil {
		return err
	}
	if payment == nil {
		return nil
	}
	reason := "payment failed at processor"
	if obj.LastErr != nil && obj.LastErr.Message != "" {
		reason = obj.LastErr.Message
	}
	// The submission stays pending_payment so the founder can retry.
	return s.DB.Model(&models.Payment{}).
		Where("id = ? AND status = ?", payment.ID, models.PaymentPending).
		Updates(map[string]interface{}{
			"status":         models.PaymentFailed,
			"failure_reason": reason,
			"processed_at":   time.Now().UTC(),
		}).Error
}

type transferEvent struct {
	ID       string            `json:"id"`
	Metadata map[string]string `json:"metadata"`
}

func (s *PaymentService) handleTransferPaid(raw json.RawMessage) error {
	var obj transferEvent
	if err := json.Unmarshal(raw, &obj); err != nil {
		return err
	}
	var payment models.Payment
	err := s.DB.Where("stripe_transfer_id = ? AND type = ?", obj.ID, models.PaymentPrizePayout).
		First(&payment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		log.Printf("[Webhook] no payout found for transfer %s, ignoring", obj.ID)
		return nil
	}
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	res := s.DB.Model(&models.Payment{}).
		Where("id = ? AND status = ?", payment.ID, models.PaymentPending).
		Updates(map[string]interface{}{
			"status":       models.PaymentCompleted,
			"processed_at": now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		log.Printf("[Webhook] prize payout settled: payment=%s transfer=%s", payment.ID, obj.ID)
		if s.Notifier != nil {
			go s.Notifier.NotifyPrizePaid(&payment)
		}
	}
	return nil
}

func (s *PaymentService) handleTransferFailed(raw json.RawMessage) error {
	var obj transferEvent
	if err := json.Unmarshal(raw, &obj); err != nil {
		return err
	}
	var payment models.Payment
	err := s.DB.Where("stripe_transfer_id = ? AND type = ?", obj.ID, models.PaymentPrizePayout).
		First(&payment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	log.Printf("[Webhook] ALERT prize transfer failed: payment=%s transfer=%s user=%s",
		payment.ID, obj.ID, payment.UserID)
	return s.DB.Model(&models.Payment{}).
		Where("id = ? AND status = ?", payment.ID, models.PaymentPending).
		Updates(map[string]interface{}{
			"status":         models.PaymentFailed,
			"failure_reason": "transfer failed at processor",
		}).Error
}

// findEntryFeePayment resolves a charge event to the local payment row,
// preferring the payment_id stamped into metadata at charge creation and
// falling back to the intent id.
func (s *PaymentService) findEntryFeePayment(obj chargeEvent) (*models.Payment, error) {
	var payment models.Payment
	if id := obj.Metadata["payment_id"]; id != "" {
		err := s.DB.Where("id = ? AND type = ?", id, models.PaymentEntryFee).First(&payment).Error
		if err == nil {
			return &payment, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}
	err := s.DB.Where("stripe_payment_intent_id = ? AND type = ?", obj.ID, models.PaymentEntryFee).
		First(&payment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

// GetMyWinnings lists the caller's prize payouts with running totals.
func (s *PaymentService) GetMyWinnings(c *fiber.Ctx) error {
	var payouts []models.Payment
	err := s.DB.Preload("Competition").
		Where("user_id = ? AND type = ?", middleware.UserID(c), models.PaymentPrizePayout).
		Order("created_at DESC").
		Find(&payouts).Error
	if err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to load winnings"})
	}

	var totalPaid, totalPending float64
	for _, p := range payouts {
		switch p.Status {
		case models.PaymentCompleted:
			totalPaid += p.Amount
		case models.PaymentPending:
			totalPending += p.Amount
		}
	}
	return c.JSON(fiber.Map{
		"payouts":       payouts,
		"total_paid":    totalPaid,
		"total_pending": totalPending,
	})
}

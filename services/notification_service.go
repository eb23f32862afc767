package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/jjnnsslimaye/seedling-backend/models"
)

// NotificationService delivers user notifications through the platform's
// notification gateway. Delivery is best effort everywhere it is used:
// failures are logged, never propagated, and never block the state
// change that triggered them.
type NotificationService struct {
	BaseURL      string
	ServiceToken string
	HTTP         *http.Client

	printer *message.Printer
}

func NewNotificationService(baseURL, serviceToken string) *NotificationService {
	return &NotificationService{
		BaseURL:      baseURL,
		ServiceToken: serviceToken,
		HTTP:         &http.Client{Timeout: 10 * time.Second},
		printer:      message.NewPrinter(language.English),
	}
}

func (n *NotificationService) send(userID, title, body string) {
	if n.BaseURL == "" {
		log.Printf("[Notify] (no gateway) %s: %s — %s", userID, title, body)
		return
	}
	payload, err := json.Marshal(map[string]string{
		"user_id": userID,
		"title":   title,
		"body":    body,
	})
	if err != nil {
		log.Printf("[Notify] marshal failed for %s: %v", userID, err)
		return
	}
	req, err := http.NewRequest(http.MethodPost, n.BaseURL+"/api/v1/notifications", bytes.NewReader(payload))
	if err != nil {
		log.Printf("[Notify] request build failed for %s: %v", userID, err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Service-Token", n.ServiceToken)

	resp, err := n.HTTP.Do(req)
	if err != nil {
		log.Printf("[Notify] delivery failed for %s: %v", userID, err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		log.Printf("[Notify] gateway returned %d for %s", resp.StatusCode, userID)
	}
}

func (n *NotificationService) money(amount float64) string {
	return n.printer.Sprintf("$%.2f", amount)
}

// AnnounceCompetition tells judges a competition has been published.
func (n *NotificationService) AnnounceCompetition(comp *models.Competition) {
	log.Printf("[Notify] competition announced: %s (%s), entry fee %s",
		comp.Title, comp.ID, n.money(comp.EntryFee))
}

// NotifyEntryConfirmed tells a founder their entry fee cleared.
func (n *NotificationService) NotifyEntryConfirmed(payment *models.Payment) {
	n.send(payment.UserID, "Entry confirmed",
		fmt.Sprintf("Your entry fee of %s was received and your submission is in.", n.money(payment.Amount)))
}

// NotifyOutcome tells a founder whether their submission won.
func (n *NotificationService) NotifyOutcome(comp *models.Competition, sub *models.Submission) {
	switch sub.Status {
	case models.SubmissionWinner:
		place := ""
		if sub.Placement != nil {
			place = *sub.Placement
		}
		n.send(sub.UserID, "You won!",
			fmt.Sprintf("Your submission %q took place %s in %s. Prize: %s.",
				sub.Title, place, comp.Title, n.money(comp.PrizeAmountFor(place))))
	case models.SubmissionNotSelected:
		n.send(sub.UserID, "Results are in",
			fmt.Sprintf("Winners for %s have been announced. Your submission %q was not selected this time.",
				comp.Title, sub.Title))
	}
}

// NotifyPrizePaid tells a winner their transfer settled.
func (n *NotificationService) NotifyPrizePaid(payment *models.Payment) {
	n.send(payment.UserID, "Prize paid",
		fmt.Sprintf("Your prize of %s has been transferred to your payout account.", n.money(payment.Amount)))
}

package services

import (
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/jjnnsslimaye/seedling-backend/models"
)

// StartLifecycleScheduler sweeps competitions through the date-driven
// lifecycle edges every minute: upcoming opens when open_date passes,
// active closes when the deadline passes. The judging and complete
// transitions stay manual.
func (s *CompetitionService) StartLifecycleScheduler() {
	sched, _ := gocron.NewScheduler()
	sched.Start()

	_, _ = sched.NewJob(
		gocron.DurationJob(1*time.Minute),
		gocron.NewTask(func() {
			s.sweepLifecycle(time.Now().UTC())
		}),
	)
}

func (s *CompetitionService) sweepLifecycle(now time.Time) {
	var opening []models.Competition
	err := s.DB.Where("status = ? AND open_date <= ?", models.CompetitionUpcoming, now).
		Find(&opening).Error
	if err != nil {
		log.Printf("[Scheduler] DB error: %v", err)
		return
	}
	for i := range opening {
		if err := s.AdvanceStatus(&opening[i], models.CompetitionActive); err != nil {
			log.Printf("[Scheduler] failed to open competition %s: %v", opening[i].ID, err)
		} else {
			log.Printf("[Scheduler] competition opened: %s", opening[i].Title)
		}
	}

	var closing []models.Competition
	err = s.DB.Where("status = ? AND deadline <= ?", models.CompetitionActive, now).
		Find(&closing).Error
	if err != nil {
		log.Printf("[Scheduler] DB error: %v", err)
		return
	}
	for i := range closing {
		if err := s.AdvanceStatus(&closing[i], models.CompetitionClosed); err != nil {
			log.Printf("[Scheduler] failed to close competition %s: %v", closing[i].ID, err)
		} else {
			log.Printf("[Scheduler] competition closed: %s", closing[i].Title)
		}
	}
}

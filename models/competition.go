package models

import (
	"encoding/json"
	"time"

	"github.com/jjnnsslimaye/seedling-backend/scoring"
)

type CompetitionStatus string

const (
	CompetitionDraft    CompetitionStatus = "draft"
	CompetitionUpcoming CompetitionStatus = "upcoming"
	CompetitionActive   CompetitionStatus = "active"
	CompetitionClosed   CompetitionStatus = "closed"
	CompetitionJudging  CompetitionStatus = "judging"
	CompetitionComplete CompetitionStatus = "complete"
)

// competitionStatusOrder is the forward lifecycle chain. Transitions may
// not skip a state.
var competitionStatusOrder = map[CompetitionStatus]int{
	CompetitionDraft:    0,
	CompetitionUpcoming: 1,
	CompetitionActive:   2,
	CompetitionClosed:   3,
	CompetitionJudging:  4,
	CompetitionComplete: 5,
}

func (s CompetitionStatus) Valid() bool {
	_, ok := competitionStatusOrder[s]
	return ok
}

// CanAdvanceTo reports whether next is the immediate successor of s.
func (s CompetitionStatus) CanAdvanceTo(next CompetitionStatus) bool {
	a, ok := competitionStatusOrder[s]
	if !ok {
		return false
	}
	b, ok := competitionStatusOrder[next]
	if !ok {
		return false
	}
	return b == a+1
}

// RubricCriterion is one judging criterion. Weight is a pointer so an
// absent weight (default 1.0) is distinguishable from an explicit zero.
type RubricCriterion struct {
	Weight      *float64 `json:"weight,omitempty"`
	Description string   `json:"description,omitempty"`
}

func (rc *RubricCriterion) UnmarshalJSON(data []byte) error {
	type plain RubricCriterion
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		// Malformed entries degrade to the default weight rather than
		// rejecting the whole rubric.
		*rc = RubricCriterion{}
		return nil
	}
	*rc = RubricCriterion(p)
	return nil
}

// Rubric maps criterion name to its definition. Historical rows stored
// the criteria nested under a top-level "criteria" key; both shapes are
// accepted on read.
type Rubric map[string]RubricCriterion

func (r *Rubric) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		*r = Rubric{}
		return nil
	}
	if inner, ok := raw["criteria"]; ok && len(raw) == 1 {
		var nested map[string]json.RawMessage
		if err := json.Unmarshal(inner, &nested); err == nil {
			raw = nested
		}
	}
	out := make(Rubric, len(raw))
	for name, entry := range raw {
		var rc RubricCriterion
		_ = json.Unmarshal(entry, &rc)
		out[name] = rc
	}
	*r = out
	return nil
}

// Weights resolves each criterion to its effective weight.
func (r Rubric) Weights() map[string]float64 {
	weights := make(map[string]float64, len(r))
	for name, c := range r {
		w := scoring.DefaultCriterionWeight
		if c.Weight != nil {
			w = *c.Weight
		}
		weights[name] = w
	}
	return weights
}

// PrizeStructure maps place ("1", "2", ...) to the fraction of the prize
// pool awarded for that place.
type PrizeStructure map[string]float64

// Competition is a paid skills contest.
type Competition struct {
	ID          string `json:"id" gorm:"primaryKey"`
	Title       string `json:"title" gorm:"not null"`
	Description string `json:"description" gorm:"type:text"`
	Domain      string `json:"domain" gorm:"index"`
	Slug        string `json:"slug" gorm:"uniqueIndex"`
	ImageKey    string `json:"-"`
	ImageURL    string `json:"image_url,omitempty"`

	EntryFee              float64 `json:"entry_fee" gorm:"not null"`
	PlatformFeePercentage float64 `json:"platform_fee_percentage" gorm:"not null;default:10"`
	PrizePool             float64 `json:"prize_pool" gorm:"not null;default:0"`

	MaxEntries     int `json:"max_entries" gorm:"not null"`
	CurrentEntries int `json:"current_entries" gorm:"not null;default:0"`

	OpenDate       time.Time `json:"open_date" gorm:"index"`
	Deadline       time.Time `json:"deadline" gorm:"index"`
	JudgingSLADays int       `json:"judging_sla_days" gorm:"column:judging_sla_days;default:14"`

	Status CompetitionStatus `json:"status" gorm:"type:varchar(16);default:'draft';index"`

	Rubric         Rubric         `json:"rubric" gorm:"serializer:json"`
	PrizeStructure PrizeStructure `json:"prize_structure" gorm:"serializer:json"`

	CreatedBy string    `json:"created_by" gorm:"not null;index"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`

	// Relationships
	Submissions []Submission `json:"submissions,omitempty" gorm:"foreignKey:CompetitionID"`
	Payments    []Payment    `json:"payments,omitempty" gorm:"foreignKey:CompetitionID"`
}

// PrizeContribution is the amount one confirmed entry fee adds to the
// prize pool after the platform's cut.
func (c *Competition) PrizeContribution() float64 {
	fee := c.EntryFee * c.PlatformFeePercentage / 100
	return scoring.Round2(c.EntryFee - fee)
}

// PrizeAmountFor returns the payout for a place, zero when the place is
// not in the prize structure.
func (c *Competition) PrizeAmountFor(place string) float64 {
	return scoring.Round2(c.PrizePool * c.PrizeStructure[place])
}

// Full reports whether the entry cap has been reached.
func (c *Competition) Full() bool {
	return c.MaxEntries > 0 && c.CurrentEntries >= c.MaxEntries
}

package scoring

import (
	"math"
	"sort"
)

// UnrankedSentinel marks leaderboard entries that have no final score yet.
const UnrankedSentinel = 999

// Entry is one leaderboard row. Rank and HasTie are filled in by Rank.
type Entry struct {
	SubmissionID    string   `json:"submission_id"`
	Title           string   `json:"title"`
	UserID          string   `json:"user_id"`
	Username        string   `json:"username"`
	FinalScore      *float64 `json:"final_score"`
	HumanAverage    *float64 `json:"human_average"`
	JudgesAssigned  int      `json:"judges_assigned"`
	JudgesCompleted int      `json:"judges_completed"`
	JudgingComplete bool     `json:"judging_complete"`
	IsPublic        bool     `json:"is_public"`
	Rank            int      `json:"rank"`
	HasTie          bool     `json:"has_tie"`
}

// JudgingComplete reports whether every assigned judge has scored. A row
// with no judges assigned is never complete.
func JudgingComplete(assigned, completed int) bool {
	return assigned > 0 && completed == assigned
}

// Rank sorts entries and assigns competition-style ranks. Fully judged
// entries come first, then final score descending with nil scores lowest,
// then submission id as a deterministic tie-break that does not affect
// the rank number. Equal scores share a rank and the next distinct score
// takes its 1-based position, so three entries scoring 90, 90, 85 rank
// 1, 1, 3. Entries without a final score get UnrankedSentinel.
func Rank(entries []Entry) []Entry {
	ranked := make([]Entry, len(entries))
	copy(ranked, entries)

	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.JudgingComplete != b.JudgingComplete {
			return a.JudgingComplete
		}
		av, bv := math.Inf(-1), math.Inf(-1)
		if a.FinalScore != nil {
			av = *a.FinalScore
		}
		if b.FinalScore != nil {
			bv = *b.FinalScore
		}
		if av != bv {
			return av > bv
		}
		return a.SubmissionID < b.SubmissionID
	})

	currentRank := 1
	var prev *float64
	for i := range ranked {
		e := &ranked[i]
		if e.FinalScore == nil {
			e.Rank = UnrankedSentinel
			e.HasTie = false
			continue
		}
		score := *e.FinalScore
		if prev != nil && score == *prev {
			e.HasTie = true
			ranked[i-1].HasTie = true
		} else if prev != nil {
			currentRank = i + 1
		}
		e.Rank = currentRank
		v := score
		prev = &v
	}
	return ranked
}

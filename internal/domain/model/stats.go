package model

import "time"

// maxRecentMatches bounds the match ids remembered for idempotent stats.
const maxRecentMatches = 32

// Outcome of a match from one player's point of view.
type Outcome string

const (
	OutcomeWon     Outcome = "won"
	OutcomeLost    Outcome = "lost"
	OutcomeDraw    Outcome = "draw"
	OutcomeForfeit Outcome = "forfeit"
)

// PlayerStats keeps running-average bookkeeping per player.
type PlayerStats struct {
	PlayerID      string    `json:"playerId"`
	GamesPlayed   int       `json:"gamesPlayed"`
	Wins          int       `json:"wins"`
	Losses        int       `json:"losses"`
	Draws         int       `json:"draws"`
	Forfeits      int       `json:"forfeits"`
	TotalScore    int64     `json:"totalScore"`
	AverageScore  float64   `json:"averageScore"`
	BestScore     int       `json:"bestScore"`
	RecentMatches []string  `json:"recentMatches,omitempty"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Seen reports whether matchID was already recorded.
func (s *PlayerStats) Seen(matchID string) bool {
	for _, id := range s.RecentMatches {
		if id == matchID {
			return true
		}
	}
	return false
}

// Apply folds one finished match into the stats. It returns false when the
// match was already counted.
func (s *PlayerStats) Apply(matchID string, outcome Outcome, score int, at time.Time) bool {
	if s.Seen(matchID) {
		return false
	}
	s.GamesPlayed++
	switch outcome {
	case OutcomeWon:
		s.Wins++
	case OutcomeLost:
		s.Losses++
	case OutcomeDraw:
		s.Draws++
	case OutcomeForfeit:
		s.Losses++
		s.Forfeits++
	}
	s.TotalScore += int64(score)
	s.AverageScore = float64(s.TotalScore) / float64(s.GamesPlayed)
	if score > s.BestScore {
		s.BestScore = score
	}
	s.RecentMatches = append(s.RecentMatches, matchID)
	if len(s.RecentMatches) > maxRecentMatches {
		s.RecentMatches = s.RecentMatches[len(s.RecentMatches)-maxRecentMatches:]
	}
	s.UpdatedAt = at
	return true
}

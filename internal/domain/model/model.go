// Package model contains domain models passed between layers.
// Field names mirror the JSON documents kept in the shared store.
package model

import (
	"strings"
	"time"
)

// Mode selects how opponents see each other's progress.
type Mode string

const (
	ModeBlindRace  Mode = "BLIND_RACE"
	ModeLiveBattle Mode = "LIVE_BATTLE"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool { return m == ModeBlindRace || m == ModeLiveBattle }

// Difficulty is shared by puzzles and scoring.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
	DifficultyExpert Difficulty = "expert"
)

// Valid reports whether d is a known difficulty.
func (d Difficulty) Valid() bool {
	switch d {
	case DifficultyEasy, DifficultyMedium, DifficultyHard, DifficultyExpert:
		return true
	}
	return false
}

// ParseDifficulty is case-insensitive and falls back to medium.
func ParseDifficulty(s string) Difficulty {
	d := Difficulty(strings.ToLower(strings.TrimSpace(s)))
	if d.Valid() {
		return d
	}
	return DifficultyMedium
}

// QueueStatus is the state of a matchmaking request.
type QueueStatus string

const (
	QueueSearching QueueStatus = "searching"
	QueueMatched   QueueStatus = "matched"
	QueueCancelled QueueStatus = "cancelled"
)

// MatchmakingRequest is one player's entry in the matchmaking queue.
type MatchmakingRequest struct {
	PlayerID    string      `json:"playerId"`
	DisplayName string      `json:"displayName"`
	RatingHint  int         `json:"ratingHint"`
	Mode        Mode        `json:"mode"`
	EnqueuedAt  time.Time   `json:"enqueuedAt"`
	Status      QueueStatus `json:"status"`
	MatchID     string      `json:"matchId,omitempty"`
}

// Puzzle is immutable once a match is created around it.
type Puzzle struct {
	Clue       string     `json:"clue"`
	Solution   string     `json:"solution"`
	Difficulty Difficulty `json:"difficulty"`
}

// PvpMove is a single Live Battle placement. Value 0 erases a cell.
type PvpMove struct {
	MatchID    string    `json:"matchId"`
	PlayerID   string    `json:"playerId"`
	Row        int       `json:"row"`
	Col        int       `json:"col"`
	Value      int       `json:"value"`
	IsCorrect  bool      `json:"isCorrect"`
	MoveNumber int       `json:"moveNumber"`
	Timestamp  time.Time `json:"timestamp"`
}

// Index returns the 0..80 cell index of the move.
func (m PvpMove) Index() int { return m.Row*9 + m.Col }

// PresenceStatus is online or offline.
type PresenceStatus string

const (
	PresenceOnline  PresenceStatus = "online"
	PresenceOffline PresenceStatus = "offline"
)

// PresenceRecord is a player's liveness document for one match.
type PresenceRecord struct {
	MatchID  string         `json:"matchId"`
	PlayerID string         `json:"playerId"`
	Status   PresenceStatus `json:"status"`
	LastSeen time.Time      `json:"lastSeen"`
}

// Online reports whether the record is online and was refreshed within ttl of now.
// A zero ttl disables the staleness check.
func (p PresenceRecord) Online(now time.Time, ttl time.Duration) bool {
	if p.Status != PresenceOnline {
		return false
	}
	return ttl <= 0 || now.Sub(p.LastSeen) <= ttl
}

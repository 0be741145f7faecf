package model

import (
	"fmt"
	"sort"
	"time"
)

// MatchStatus is a node of the match state machine.
type MatchStatus string

const (
	MatchWaiting    MatchStatus = "WAITING"
	MatchInProgress MatchStatus = "IN_PROGRESS"
	MatchCompleted  MatchStatus = "COMPLETED"
	MatchCancelled  MatchStatus = "CANCELLED"
)

// Terminal reports whether no further transitions are possible.
func (s MatchStatus) Terminal() bool { return s == MatchCompleted || s == MatchCancelled }

// CanTransition reports whether from -> to is an edge of the state machine.
func CanTransition(from, to MatchStatus) bool {
	switch from {
	case MatchWaiting:
		return to == MatchInProgress || to == MatchCancelled
	case MatchInProgress:
		return to == MatchCompleted || to == MatchCancelled
	}
	return false
}

// EndReason explains why a match reached a terminal state.
type EndReason string

const (
	EndCompleted    EndReason = "completed"
	EndTimeLimit    EndReason = "time_limit"
	EndForfeit      EndReason = "forfeit"
	EndOpponentLeft EndReason = "opponent_left"
)

// PlayerStatus tracks a participant inside a match.
type PlayerStatus string

const (
	PlayerReady    PlayerStatus = "READY"
	PlayerPlaying  PlayerStatus = "PLAYING"
	PlayerFinished PlayerStatus = "FINISHED"
)

// PlayerResult is written only by its owner. In Blind Race it doubles as the
// periodic progress snapshot; CompletedAt is set once the board is solved.
type PlayerResult struct {
	CompletedAt       *time.Time `json:"completedAt,omitempty"`
	Score             int        `json:"score"`
	TimeElapsedMs     int64      `json:"timeElapsedMs"`
	AccuracyPct       float64    `json:"accuracyPct"`
	BasePoints        int        `json:"basePoints,omitempty"`
	StreakBonus       int        `json:"streakBonus,omitempty"`
	TimeBonus         int        `json:"timeBonus,omitempty"`
	CompletionBonuses int        `json:"completionBonuses,omitempty"`
	MaxStreak         int        `json:"maxStreak,omitempty"`
	TotalMoves        int        `json:"totalMoves,omitempty"`
	CorrectMoves      int        `json:"correctMoves,omitempty"`
	WrongMoves        int        `json:"wrongMoves,omitempty"`
	IsPerfectGame     bool       `json:"isPerfectGame,omitempty"`
	IsFirstFinish     bool       `json:"isFirstFinish,omitempty"`
	CellsFilled       int        `json:"cellsFilled,omitempty"`
	// FinishReason is why the owner stopped playing: completed or time_limit.
	FinishReason EndReason `json:"finishReason,omitempty"`
}

// Completed reports whether the owner finished the board.
func (r *PlayerResult) Completed() bool { return r != nil && r.CompletedAt != nil }

// PlayerMatchData is a participant's sub-document of a match.
type PlayerMatchData struct {
	UserID      string        `json:"userId"`
	DisplayName string        `json:"displayName"`
	Status      PlayerStatus  `json:"status"`
	JoinedAt    time.Time     `json:"joinedAt"`
	Result      *PlayerResult `json:"result,omitempty"`
}

// Match is the shared document both participants observe.
type Match struct {
	MatchID   string                      `json:"matchId"`
	Mode      Mode                        `json:"mode"`
	Status    MatchStatus                 `json:"status"`
	CreatedAt time.Time                   `json:"createdAt"`
	StartedAt *time.Time                  `json:"startedAt,omitempty"`
	EndedAt   *time.Time                  `json:"endedAt,omitempty"`
	Puzzle    Puzzle                      `json:"puzzle"`
	Players   map[string]*PlayerMatchData `json:"players"`
	WinnerID  string                      `json:"winnerId,omitempty"`
	EndReason EndReason                   `json:"endReason,omitempty"`
}

// Validate checks the document invariants.
func (m *Match) Validate() error {
	if m.MatchID == "" {
		return fmt.Errorf("%w: empty match id", ErrInvalidMatch)
	}
	if !m.Mode.Valid() {
		return fmt.Errorf("%w: mode %q", ErrInvalidMatch, m.Mode)
	}
	if m.Status != MatchWaiting && len(m.Players) != 2 {
		return fmt.Errorf("%w: %s match has %d players", ErrInvalidMatch, m.Status, len(m.Players))
	}
	if len(m.Players) > 2 {
		return fmt.Errorf("%w: %d players", ErrInvalidMatch, len(m.Players))
	}
	if m.WinnerID != "" && !m.HasPlayer(m.WinnerID) {
		return fmt.Errorf("%w: winner %q is not a participant", ErrInvalidMatch, m.WinnerID)
	}
	return nil
}

// HasPlayer reports whether id participates in the match.
func (m *Match) HasPlayer(id string) bool {
	_, ok := m.Players[id]
	return ok
}

// PlayerIDs returns participant ids in ascending order.
func (m *Match) PlayerIDs() []string {
	ids := make([]string, 0, len(m.Players))
	for id := range m.Players {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Opponent returns the other participant's id, or "" if there is none.
func (m *Match) Opponent(playerID string) string {
	for id := range m.Players {
		if id != playerID {
			return id
		}
	}
	return ""
}

// AllReady reports whether both participants are present and READY.
func (m *Match) AllReady() bool {
	if len(m.Players) != 2 {
		return false
	}
	for _, p := range m.Players {
		if p.Status != PlayerReady {
			return false
		}
	}
	return true
}

// Result returns the result of a participant or nil.
func (m *Match) Result(playerID string) *PlayerResult {
	if p, ok := m.Players[playerID]; ok {
		return p.Result
	}
	return nil
}

// DecideBlindWinner returns the participant that completed first. Ties on
// CompletedAt go to the smaller player id. It returns "" when nobody finished.
func DecideBlindWinner(m *Match) string {
	winner := ""
	var best time.Time
	for _, id := range m.PlayerIDs() {
		r := m.Result(id)
		if !r.Completed() {
			continue
		}
		if winner == "" || r.CompletedAt.Before(best) {
			winner, best = id, *r.CompletedAt
		}
	}
	return winner
}

// DecideLiveWinner needs both results. Higher score wins, then earlier
// CompletedAt, then the smaller player id. ok is false while a result is missing.
func DecideLiveWinner(m *Match) (winner string, ok bool) {
	ids := m.PlayerIDs()
	if len(ids) != 2 {
		return "", false
	}
	a, b := m.Result(ids[0]), m.Result(ids[1])
	if a == nil || b == nil || a.CompletedAt == nil || b.CompletedAt == nil {
		return "", false
	}
	switch {
	case a.Score > b.Score:
		return ids[0], true
	case b.Score > a.Score:
		return ids[1], true
	case b.CompletedAt.Before(*a.CompletedAt):
		return ids[1], true
	default:
		return ids[0], true
	}
}

// LiveEndReason is the reason carried by the earliest completed result, ties
// going to the smaller player id. Both participants read the same stored
// results, so they agree on it whichever side ends the match.
func LiveEndReason(m *Match) EndReason {
	reason := EndCompleted
	var first time.Time
	seen := false
	for _, id := range m.PlayerIDs() {
		r := m.Result(id)
		if !r.Completed() {
			continue
		}
		if !seen || r.CompletedAt.Before(first) {
			seen, first = true, *r.CompletedAt
			reason = r.FinishReason
		}
	}
	if reason == "" {
		return EndCompleted
	}
	return reason
}

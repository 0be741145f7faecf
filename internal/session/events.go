package session

import (
	"github.com/okian/gridduel/internal/domain/model"
	"github.com/okian/gridduel/internal/domain/scoring"
)

// EventKind tells the UI layer what happened.
type EventKind string

const (
	EventStarted          EventKind = "started"
	EventMoveApplied      EventKind = "move_applied"
	EventOverlay          EventKind = "overlay"
	EventOpponentProgress EventKind = "opponent_progress"
	EventReconnecting     EventKind = "reconnecting"
	EventResynced         EventKind = "resynced"
	EventFinished         EventKind = "finished"
)

// Event is pushed on Controller.Events. Only the fields relevant to Kind are set.
type Event struct {
	Kind EventKind

	Match    *model.Match
	Move     *model.PvpMove
	Score    scoring.GameScore
	Overlay  map[int]int
	Opponent *model.PlayerResult

	Outcome  model.Outcome
	Reason   model.EndReason
	WinnerID string

	Err error
}

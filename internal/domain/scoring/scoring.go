// Package scoring implements the deterministic score accumulator shared by
// single-player and PvP games. Every function is pure: it takes a GameScore
// value and returns the updated value. Derived totals are always recomputed
// from the primitive counters.
package scoring

import (
	"math"
	"time"

	"github.com/okian/gridduel/internal/domain/model"
)

// Scoring constants.
const (
	PointsCorrect       = 100
	PenaltyWrong        = 300
	PenaltyHint         = 1000
	PenaltyErrorCheck   = 500
	StreakStep          = 10
	RegionBonus         = 250
	TimeDecayPerSecond  = 20
	BonusPerfectGame    = 10000
	BonusNoNotes        = 5000
	BonusSpeed          = 3000
	BonusFirstFinish    = 5000
	DefaultMaxHints     = 3
	regionsPerDimension = 9
)

type difficultyRules struct {
	timePool   int
	ceiling    time.Duration
	multiplier float64
}

var rulesByDifficulty = map[model.Difficulty]difficultyRules{ //nolint:gochecknoglobals // immutable lookup table
	model.DifficultyEasy:   {timePool: 10000, ceiling: 180 * time.Second, multiplier: 1.0},
	model.DifficultyMedium: {timePool: 20000, ceiling: 300 * time.Second, multiplier: 1.5},
	model.DifficultyHard:   {timePool: 40000, ceiling: 480 * time.Second, multiplier: 2.5},
	model.DifficultyExpert: {timePool: 60000, ceiling: 600 * time.Second, multiplier: 4.0},
}

func rulesFor(d model.Difficulty) difficultyRules {
	if r, ok := rulesByDifficulty[d]; ok {
		return r
	}
	return rulesByDifficulty[model.DifficultyMedium]
}

// Multiplier returns the final-score multiplier of a difficulty.
func Multiplier(d model.Difficulty) float64 { return rulesFor(d).multiplier }

// TimePool returns the time-bonus pool of a difficulty.
func TimePool(d model.Difficulty) int { return rulesFor(d).timePool }

// SpeedCeiling returns the elapsed time under which the speed bonus is paid.
func SpeedCeiling(d model.Difficulty) time.Duration { return rulesFor(d).ceiling }

// Region identifies a kind of completable region.
type Region int

const (
	RegionBox Region = iota
	RegionRow
	RegionColumn
)

func (r Region) String() string {
	switch r {
	case RegionBox:
		return "box"
	case RegionRow:
		return "row"
	case RegionColumn:
		return "column"
	}
	return "unknown"
}

// GameScore is the accumulator for one player in one game.
type GameScore struct {
	Difficulty           model.Difficulty `json:"difficulty"`
	DifficultyMultiplier float64          `json:"difficultyMultiplier"`

	// Primitive counters.
	CurrentStreak      int                       `json:"currentStreak"`
	MaxStreak          int                       `json:"maxStreak"`
	StreakBroken       int                       `json:"streakBroken"`
	StreakBonus        int                       `json:"streakBonus"`
	CorrectMoves       int                       `json:"correctMoves"`
	WrongMoves         int                       `json:"wrongMoves"`
	TotalMoves         int                       `json:"totalMoves"`
	HintsUsed          int                       `json:"hintsUsed"`
	ErrorChecksUsed    int                       `json:"errorChecksUsed"`
	BoxesCompleted     [regionsPerDimension]bool `json:"boxesCompleted"`
	RowsCompleted      [regionsPerDimension]bool `json:"rowsCompleted"`
	ColumnsCompleted   [regionsPerDimension]bool `json:"columnsCompleted"`
	PlayedWithoutNotes bool                      `json:"playedWithoutNotes"`
	ElapsedTimeMs      int64                     `json:"elapsedTimeMs"`
	Finished           bool                      `json:"finished"`
	Solved             bool                      `json:"solved"`
	FirstFinish        bool                      `json:"firstFinish"`
	PerfectGame        bool                      `json:"perfectGame"`
	SpeedBonus         bool                      `json:"speedBonus"`

	// Derived totals, rebuilt by recalculate.
	BasePoints        int     `json:"basePoints"`
	Penalties         int     `json:"penalties"`
	CompletionBonuses int     `json:"completionBonuses"`
	TimeBonus         int     `json:"timeBonus"`
	SpecialBonuses    int     `json:"specialBonuses"`
	Accuracy          float64 `json:"accuracy"`
	FinalScore        int     `json:"finalScore"`
}

// New returns a fresh accumulator for a game at difficulty d.
func New(d model.Difficulty) GameScore {
	if !d.Valid() {
		d = model.DifficultyMedium
	}
	return recalculate(GameScore{
		Difficulty:           d,
		DifficultyMultiplier: Multiplier(d),
		PlayedWithoutNotes:   true,
	})
}

// CalculateStreakBonus is the bonus paid for the n-th consecutive correct placement.
func CalculateStreakBonus(n int) int {
	if n < 0 {
		return 0
	}
	return n * StreakStep
}

// CalculateAccuracy returns correct/total*100, or 100 when total is zero.
func CalculateAccuracy(correct, total int) float64 {
	if total == 0 {
		return 100
	}
	return float64(correct) / float64(total) * 100
}

// CalculateTimeBonus returns max(0, pool - elapsedSeconds*20).
func CalculateTimeBonus(d model.Difficulty, elapsed time.Duration) int {
	seconds := int(elapsed / time.Second)
	return max(0, TimePool(d)-seconds*TimeDecayPerSecond)
}

// RecordCorrect applies a correct placement.
func RecordCorrect(s GameScore) GameScore {
	if s.Finished {
		return s
	}
	s.CorrectMoves++
	s.TotalMoves++
	s.CurrentStreak++
	s.MaxStreak = max(s.MaxStreak, s.CurrentStreak)
	s.StreakBonus += CalculateStreakBonus(s.CurrentStreak)
	return recalculate(s)
}

// RecordWrong applies a wrong placement. It always breaks the streak.
func RecordWrong(s GameScore) GameScore {
	if s.Finished {
		return s
	}
	s.WrongMoves++
	s.TotalMoves++
	s.CurrentStreak = 0
	s.StreakBroken++
	return recalculate(s)
}

// UseHint charges a hint. It fails with ErrHintLimit once maxHints were used.
func UseHint(s GameScore, maxHints int) (GameScore, error) {
	if s.Finished {
		return s, ErrFinished
	}
	if s.HintsUsed >= maxHints {
		return s, ErrHintLimit
	}
	s.HintsUsed++
	return recalculate(resetStreak(s)), nil
}

// UseErrorCheck charges an error check.
func UseErrorCheck(s GameScore) (GameScore, error) {
	if s.Finished {
		return s, ErrFinished
	}
	s.ErrorChecksUsed++
	return recalculate(resetStreak(s)), nil
}

// MarkNotesUsed forfeits the no-notes bonus.
func MarkNotesUsed(s GameScore) GameScore {
	if s.Finished {
		return s
	}
	s.PlayedWithoutNotes = false
	return recalculate(s)
}

// RecordRegionCompletion pays the region bonus once per region index.
// The second return value is false when the region was already paid or the
// index is out of range.
func RecordRegionCompletion(s GameScore, region Region, index int) (GameScore, bool) {
	if s.Finished || index < 0 || index >= regionsPerDimension {
		return s, false
	}
	var done *[regionsPerDimension]bool
	switch region {
	case RegionBox:
		done = &s.BoxesCompleted
	case RegionRow:
		done = &s.RowsCompleted
	case RegionColumn:
		done = &s.ColumnsCompleted
	default:
		return s, false
	}
	if done[index] {
		return s, false
	}
	done[index] = true
	return recalculate(s), true
}

// SetElapsed records the time spent so far; ignored once finished.
func SetElapsed(s GameScore, elapsed time.Duration) GameScore {
	if s.Finished || elapsed < 0 {
		return s
	}
	s.ElapsedTimeMs = elapsed.Milliseconds()
	return s
}

// FinishOptions carry facts only known when the game ends.
type FinishOptions struct {
	Elapsed time.Duration
	// FirstFinish pays the Blind Race first-to-finish bonus.
	FirstFinish bool
	// Solved is false when the game ends without a full board (time limit,
	// forfeit). Unsolved games get no time or special bonuses.
	Solved bool
}

// Finish freezes the accumulator and pays the end-of-game bonuses.
// Finishing twice returns the first result unchanged.
func Finish(s GameScore, opts FinishOptions) GameScore {
	if s.Finished {
		return s
	}
	s.Finished = true
	if opts.Elapsed >= 0 {
		s.ElapsedTimeMs = opts.Elapsed.Milliseconds()
	}
	s.Solved = opts.Solved
	if opts.Solved {
		elapsed := time.Duration(s.ElapsedTimeMs) * time.Millisecond
		s.TimeBonus = CalculateTimeBonus(s.Difficulty, elapsed)
		s.PerfectGame = s.WrongMoves == 0 && s.CorrectMoves >= 1
		s.SpeedBonus = elapsed <= SpeedCeiling(s.Difficulty)
		s.FirstFinish = opts.FirstFinish
	}
	return recalculate(s)
}

// SetFirstFinish settles the first-finish bonus of a solved, finished game
// once the store has decided it. Other games are returned unchanged.
func SetFirstFinish(s GameScore, first bool) GameScore {
	if !s.Finished || !s.Solved || s.FirstFinish == first {
		return s
	}
	s.FirstFinish = first
	return recalculate(s)
}

func resetStreak(s GameScore) GameScore {
	if s.CurrentStreak > 0 {
		s.StreakBroken++
	}
	s.CurrentStreak = 0
	return s
}

func countTrue(a [regionsPerDimension]bool) int {
	n := 0
	for _, v := range a {
		if v {
			n++
		}
	}
	return n
}

// recalculate rebuilds every derived total from the counters.
func recalculate(s GameScore) GameScore {
	s.DifficultyMultiplier = Multiplier(s.Difficulty)
	s.BasePoints = s.CorrectMoves * PointsCorrect
	s.Penalties = s.WrongMoves*PenaltyWrong + s.HintsUsed*PenaltyHint + s.ErrorChecksUsed*PenaltyErrorCheck
	s.CompletionBonuses = (countTrue(s.BoxesCompleted) + countTrue(s.RowsCompleted) + countTrue(s.ColumnsCompleted)) * RegionBonus
	s.Accuracy = CalculateAccuracy(s.CorrectMoves, s.TotalMoves)

	s.SpecialBonuses = 0
	if s.Finished && s.Solved {
		if s.PerfectGame {
			s.SpecialBonuses += BonusPerfectGame
		}
		if s.PlayedWithoutNotes {
			s.SpecialBonuses += BonusNoNotes
		}
		if s.SpeedBonus {
			s.SpecialBonuses += BonusSpeed
		}
		if s.FirstFinish {
			s.SpecialBonuses += BonusFirstFinish
		}
	} else {
		s.TimeBonus = 0
	}

	subtotal := s.BasePoints + s.StreakBonus + s.TimeBonus + s.CompletionBonuses + s.SpecialBonuses - s.Penalties
	s.FinalScore = int(math.Floor(math.Max(0, float64(subtotal)) * s.DifficultyMultiplier))
	return s
}

// Result projects the accumulator into the document a player publishes.
// completedAt is nil for progress snapshots.
func (s GameScore) Result(completedAt *time.Time, cellsFilled int) model.PlayerResult {
	return model.PlayerResult{
		CompletedAt:       completedAt,
		Score:             s.FinalScore,
		TimeElapsedMs:     s.ElapsedTimeMs,
		AccuracyPct:       s.Accuracy,
		BasePoints:        s.BasePoints,
		StreakBonus:       s.StreakBonus,
		TimeBonus:         s.TimeBonus,
		CompletionBonuses: s.CompletionBonuses,
		MaxStreak:         s.MaxStreak,
		TotalMoves:        s.TotalMoves,
		CorrectMoves:      s.CorrectMoves,
		WrongMoves:        s.WrongMoves,
		IsPerfectGame:     s.PerfectGame,
		IsFirstFinish:     s.FirstFinish,
		CellsFilled:       cellsFilled,
	}
}

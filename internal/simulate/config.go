package simulate

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/okian/gridduel/internal/adapters/store"
	"github.com/okian/gridduel/internal/config"
	"github.com/okian/gridduel/internal/domain/model"
)

// Bot defaults.
const (
	defaultAccuracy = 0.9
	defaultThink    = 150 * time.Millisecond
)

// Config holds configuration for one simulator run.
type Config struct {
	Service *config.Config // Store, matchmaking and session settings
	Store   store.Store    // Optional store shared with other runs; overrides the configured backend
	Mode    model.Mode     // Mode every bot queues for
	Bots    []BotConfig    // Bots driven by this process
	Timeout time.Duration  // Upper bound for the whole run
	LogFile string         // Log file for simulator output
	Verbose bool           // Enable debug logging
}

// BotConfig describes one simulated player.
type BotConfig struct {
	ID       string
	Name     string
	Accuracy float64       // Probability that a placement is correct
	Think    time.Duration // Mean pause before each placement
	Seed     uint64
}

// ParseMode accepts the wire names and the short forms "blind" and "live".
func ParseMode(s string) (model.Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "blind", "blind_race":
		return model.ModeBlindRace, nil
	case "live", "live_battle":
		return model.ModeLiveBattle, nil
	}
	return "", fmt.Errorf("%w: mode %q", ErrInvalidConfig, s)
}

// ParseBots reads a comma separated list of id[:accuracy[:think]] entries,
// e.g. "alice:0.95:100ms,bob".
func ParseBots(list string) ([]BotConfig, error) {
	var bots []BotConfig
	seen := map[string]bool{}
	for i, entry := range strings.Split(list, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.Split(entry, ":")
		if len(parts) > 3 {
			return nil, fmt.Errorf("%w: bot %q", ErrInvalidConfig, entry)
		}
		b := BotConfig{
			ID:       parts[0],
			Name:     parts[0],
			Accuracy: defaultAccuracy,
			Think:    defaultThink,
			Seed:     uint64(time.Now().UnixNano()) + uint64(i),
		}
		if b.ID == "" || seen[b.ID] {
			return nil, fmt.Errorf("%w: bot id %q", ErrInvalidConfig, b.ID)
		}
		seen[b.ID] = true
		if len(parts) > 1 {
			acc, err := strconv.ParseFloat(parts[1], 64)
			if err != nil || acc <= 0 || acc > 1 {
				return nil, fmt.Errorf("%w: bot %s accuracy %q", ErrInvalidConfig, b.ID, parts[1])
			}
			b.Accuracy = acc
		}
		if len(parts) > 2 {
			d, err := time.ParseDuration(parts[2])
			if err != nil || d < 0 {
				return nil, fmt.Errorf("%w: bot %s think time %q", ErrInvalidConfig, b.ID, parts[2])
			}
			b.Think = d
		}
		bots = append(bots, b)
	}
	if len(bots) == 0 {
		return nil, fmt.Errorf("%w: no bots", ErrInvalidConfig)
	}
	return bots, nil
}

// Result is what one bot saw at the end of its match.
type Result struct {
	PlayerID   string
	MatchID    string
	OpponentID string
	Outcome    model.Outcome
	Reason     model.EndReason
	WinnerID   string
	Score      int
	Correct    int
	Wrong      int
	Duration   time.Duration
}

package simulate

import (
	"fmt"

	"github.com/okian/gridduel/internal/domain/model"
)

// verifyResults checks that bots that met in the same match agree on how
// it ended. Bots whose opponent ran in another process are only checked
// against their own winner field.
func verifyResults(results []Result) error {
	byMatch := make(map[string][]Result, len(results))
	for _, r := range results {
		if err := verifyOwn(r); err != nil {
			return err
		}
		byMatch[r.MatchID] = append(byMatch[r.MatchID], r)
	}
	for mid, side := range byMatch {
		if len(side) != 2 {
			continue
		}
		a, b := side[0], side[1]
		if a.WinnerID != b.WinnerID || a.Reason != b.Reason {
			return fmt.Errorf("%w: match %s winner %q/%q reason %q/%q",
				ErrInconsistent, mid, a.WinnerID, b.WinnerID, a.Reason, b.Reason)
		}
		if a.Outcome == model.OutcomeWon && b.Outcome == model.OutcomeWon {
			return fmt.Errorf("%w: match %s has two winners", ErrInconsistent, mid)
		}
	}
	return nil
}

func verifyOwn(r Result) error {
	switch r.Outcome {
	case model.OutcomeWon:
		if r.WinnerID != r.PlayerID {
			return fmt.Errorf("%w: %s won but winner is %q", ErrInconsistent, r.PlayerID, r.WinnerID)
		}
	case model.OutcomeLost, model.OutcomeForfeit:
		if r.WinnerID == r.PlayerID {
			return fmt.Errorf("%w: %s is winner but saw %s", ErrInconsistent, r.PlayerID, r.Outcome)
		}
	case model.OutcomeDraw:
		if r.WinnerID != "" {
			return fmt.Errorf("%w: draw with winner %q", ErrInconsistent, r.WinnerID)
		}
	default:
		return fmt.Errorf("%w: %s has outcome %q", ErrInconsistent, r.PlayerID, r.Outcome)
	}
	return nil
}

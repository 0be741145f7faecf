package puzzle

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/okian/gridduel/internal/domain/model"
)

// Source supplies puzzles. The coordinator never generates puzzles itself.
type Source interface {
	GetPuzzlesByDifficulty(ctx context.Context, d model.Difficulty, limit int) ([]model.Puzzle, error)
}

// StaticSource serves a fixed list, defaulting to the bundled puzzles.
type StaticSource struct {
	puzzles []model.Puzzle
}

// NewStaticSource returns a source over puzzles. An empty list serves the
// bundled set for whatever difficulty is asked.
func NewStaticSource(puzzles ...model.Puzzle) *StaticSource {
	return &StaticSource{puzzles: puzzles}
}

// GetPuzzlesByDifficulty implements Source.
func (s *StaticSource) GetPuzzlesByDifficulty(ctx context.Context, d model.Difficulty, limit int) ([]model.Puzzle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(s.puzzles) == 0 {
		return truncate(Bundled(d), limit), nil
	}
	var out []model.Puzzle
	for _, p := range s.puzzles {
		if p.Difficulty == d {
			out = append(out, p)
		}
	}
	return truncate(out, limit), nil
}

// FileSource reads a JSON array of puzzles on every call so operators can
// swap the file without a restart.
type FileSource struct {
	path string
}

// NewFileSource returns a source backed by the JSON file at path.
func NewFileSource(path string) *FileSource { return &FileSource{path: path} }

type filePuzzle struct {
	Clue       string `json:"clue"`
	Solution   string `json:"solution"`
	Difficulty string `json:"difficulty"`
}

// GetPuzzlesByDifficulty implements Source. Entries are returned as stored;
// validation is the provider's job.
func (s *FileSource) GetPuzzlesByDifficulty(ctx context.Context, d model.Difficulty, limit int) ([]model.Puzzle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("read puzzles %s: %w", s.path, err)
	}
	var entries []filePuzzle
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("decode puzzles %s: %w", s.path, err)
	}
	var out []model.Puzzle
	for _, e := range entries {
		if model.Difficulty(e.Difficulty) != d {
			continue
		}
		out = append(out, model.Puzzle{Clue: e.Clue, Solution: e.Solution, Difficulty: d})
	}
	if len(out) == 0 {
		return nil, ErrNoPuzzles
	}
	return truncate(out, limit), nil
}

func truncate(p []model.Puzzle, limit int) []model.Puzzle {
	if limit > 0 && len(p) > limit {
		return p[:limit]
	}
	return p
}

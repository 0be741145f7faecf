package puzzle

import (
	"context"
	"errors"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/okian/gridduel/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func TestValidate(t *testing.T) {
	Convey("Given the reference puzzle", t, func() {
		So(Validate(ReferenceClue, ReferenceSolution), ShouldBeTrue)

		Convey("When a clue digit disagrees with the solution", func() {
			bad := "6" + ReferenceClue[1:]
			err := ValidateDetailed(bad, ReferenceSolution)
			So(errors.Is(err, ErrMismatch), ShouldBeTrue)
			So(Validate(bad, ReferenceSolution), ShouldBeFalse)
		})

		Convey("When either string is not 81 characters", func() {
			So(errors.Is(ValidateDetailed(ReferenceClue[:80], ReferenceSolution), ErrLength), ShouldBeTrue)
			So(errors.Is(ValidateDetailed(ReferenceClue, ReferenceSolution+"1"), ErrLength), ShouldBeTrue)
		})

		Convey("When the solution has a blank", func() {
			sol := ReferenceSolution[:80] + "0"
			So(errors.Is(ValidateDetailed(ReferenceClue, sol), ErrSolutionDigit), ShouldBeTrue)
		})

		Convey("When the clue has a non-digit", func() {
			clue := "x" + ReferenceClue[1:]
			So(errors.Is(ValidateDetailed(clue, ReferenceSolution), ErrClueDigit), ShouldBeTrue)
		})

		Convey("Then every bundled relabelling is valid", func() {
			for _, p := range Bundled(model.DifficultyHard) {
				So(Validate(p.Clue, p.Solution), ShouldBeTrue)
				So(p.Difficulty, ShouldEqual, model.DifficultyHard)
			}
		})
	})
}

func TestBoard(t *testing.T) {
	Convey("Given a board over the reference puzzle", t, func() {
		b, err := NewBoard(Reference(model.DifficultyMedium))
		So(err, ShouldBeNil)

		Convey("Then index 2 is blank with solution 4", func() {
			So(b.IsClue(2), ShouldBeFalse)
			So(b.Value(2), ShouldEqual, 0)
			i, correct, err := b.Check(0, 2, 4)
			So(err, ShouldBeNil)
			So(i, ShouldEqual, 2)
			So(correct, ShouldBeTrue)
		})

		Convey("When placing on a clue cell", func() {
			_, _, err := b.Check(0, 0, 5)
			So(errors.Is(err, ErrClueCell), ShouldBeTrue)
		})

		Convey("When placing out of range", func() {
			_, _, err := b.Check(9, 0, 1)
			So(errors.Is(err, ErrOutOfRange), ShouldBeTrue)
			_, _, err = b.Check(0, 2, 10)
			So(errors.Is(err, ErrBadValue), ShouldBeTrue)
		})

		Convey("When a correct digit was placed", func() {
			b.Set(2, 4)
			_, _, err := b.Check(0, 2, 1)
			So(errors.Is(err, ErrLocked), ShouldBeTrue)
		})

		Convey("When a wrong digit was placed", func() {
			b.Set(2, 9)
			So(b.Wrong(), ShouldResemble, []int{2})
			_, correct, err := b.Check(0, 2, 4)
			So(err, ShouldBeNil)
			So(correct, ShouldBeTrue)
		})

		Convey("When every blank of row 0 is filled correctly", func() {
			So(b.RowComplete(0), ShouldBeFalse)
			for c := 0; c < 9; c++ {
				b.Set(c, b.Solution(c))
			}

			Convey("Then the row completes but box 0 does not", func() {
				So(b.RowComplete(0), ShouldBeTrue)
				So(b.BoxComplete(0), ShouldBeFalse)
				So(b.ColComplete(0), ShouldBeFalse)
			})
		})

		Convey("When the whole board is filled", func() {
			for i := 0; i < Cells; i++ {
				b.Set(i, b.Solution(i))
			}
			So(b.Solved(), ShouldBeTrue)
			So(b.Filled(), ShouldEqual, Cells)
			So(b.BoxComplete(8), ShouldBeTrue)
			So(b.ColComplete(8), ShouldBeTrue)
		})

		Convey("Then geometry helpers agree", func() {
			So(BoxOf(0), ShouldEqual, 0)
			So(BoxOf(80), ShouldEqual, 8)
			So(BoxOf(4*9+4), ShouldEqual, 4)
			So(RowOf(80), ShouldEqual, 8)
			So(ColOf(10), ShouldEqual, 1)
			So(RowCells(1), ShouldResemble, []int{9, 10, 11, 12, 13, 14, 15, 16, 17})
			So(ColCells(2), ShouldResemble, []int{2, 11, 20, 29, 38, 47, 56, 65, 74})
			So(BoxCells(4), ShouldResemble, []int{30, 31, 32, 39, 40, 41, 48, 49, 50})
			for _, i := range BoxCells(8) {
				So(BoxOf(i), ShouldEqual, 8)
			}
		})
	})
}

type failingSource struct{ err error }

func (f failingSource) GetPuzzlesByDifficulty(context.Context, model.Difficulty, int) ([]model.Puzzle, error) {
	return nil, f.err
}

func TestProvider(t *testing.T) {
	ctx := context.Background()

	Convey("Given a provider", t, func() {
		Convey("When the source fails", func() {
			p := NewProvider(failingSource{err: errors.New("down")})
			got, fallback := p.Pick(ctx, model.DifficultyHard)

			Convey("Then the bundled puzzle is used", func() {
				So(fallback, ShouldBeTrue)
				So(got.Clue, ShouldEqual, ReferenceClue)
				So(got.Difficulty, ShouldEqual, model.DifficultyHard)
			})
		})

		Convey("When the source returns only garbage", func() {
			src := NewStaticSource(model.Puzzle{Clue: strings.Repeat("0", 81), Solution: strings.Repeat("0", 81), Difficulty: model.DifficultyEasy})
			got, fallback := NewProvider(src).Pick(ctx, model.DifficultyEasy)
			So(fallback, ShouldBeTrue)
			So(Validate(got.Clue, got.Solution), ShouldBeTrue)
		})

		Convey("When the source is empty for the difficulty", func() {
			src := NewStaticSource(Bundled(model.DifficultyEasy)...)
			_, fallback := NewProvider(src).Pick(ctx, model.DifficultyExpert)
			So(fallback, ShouldBeTrue)
		})

		Convey("When the source has valid puzzles", func() {
			p := NewProvider(NewStaticSource(), WithRand(rand.New(rand.NewPCG(1, 2))), WithFetchLimit(3))
			got, fallback := p.Pick(ctx, model.DifficultyMedium)

			Convey("Then one of them is chosen", func() {
				So(fallback, ShouldBeFalse)
				So(Validate(got.Clue, got.Solution), ShouldBeTrue)
				So(got.Difficulty, ShouldEqual, model.DifficultyMedium)
			})
		})

		Convey("When no source is configured", func() {
			_, fallback := NewProvider(nil).Pick(ctx, "bogus")
			So(fallback, ShouldBeTrue)
		})
	})
}

func TestFileSource(t *testing.T) {
	Convey("Given a puzzles file", t, func() {
		dir := t.TempDir()
		path := filepath.Join(dir, "puzzles.json")
		content := `[{"clue":"` + ReferenceClue + `","solution":"` + ReferenceSolution + `","difficulty":"hard"}]`
		So(os.WriteFile(path, []byte(content), 0o600), ShouldBeNil)
		src := NewFileSource(path)

		Convey("Then matching puzzles are returned", func() {
			got, err := src.GetPuzzlesByDifficulty(context.Background(), model.DifficultyHard, 5)
			So(err, ShouldBeNil)
			So(len(got), ShouldEqual, 1)
		})

		Convey("Then other difficulties are empty", func() {
			_, err := src.GetPuzzlesByDifficulty(context.Background(), model.DifficultyEasy, 5)
			So(errors.Is(err, ErrNoPuzzles), ShouldBeTrue)
		})

		Convey("Then a missing file is an error", func() {
			_, err := NewFileSource(filepath.Join(dir, "nope.json")).GetPuzzlesByDifficulty(context.Background(), model.DifficultyHard, 5)
			So(err, ShouldNotBeNil)
		})
	})
}

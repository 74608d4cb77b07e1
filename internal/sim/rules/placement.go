package rules

import (
	"errors"
	"fmt"

	"blockroom.ai/internal/sim/board"
	"blockroom.ai/internal/sim/catalogs"
)

var (
	// ErrRejected is returned for any placement that does not fit. It is a
	// validation result, not a fault.
	ErrRejected    = errors.New("placement rejected")
	ErrOutOfBounds = fmt.Errorf("%w: out of bounds", ErrRejected)
	ErrOverlap     = fmt.Errorf("%w: overlaps a filled cell", ErrRejected)
)

// Placement is a candidate shape anchored at (Row, Col), the top-left of its
// bounding box.
type Placement struct {
	Shape *catalogs.Shape
	Row   int
	Col   int
}

func (p Placement) Cells() []catalogs.Cell { return board.Covered(p.Shape, p.Row, p.Col) }

// Check explains why p does not fit b, or returns nil.
func Check(b *board.Board, p Placement) error {
	if p.Shape == nil {
		return fmt.Errorf("%w: no shape", ErrRejected)
	}
	for _, c := range p.Cells() {
		if !board.InBounds(c.Row, c.Col) {
			return fmt.Errorf("%w (%d,%d)", ErrOutOfBounds, c.Row, c.Col)
		}
		if b.Filled(c.Row, c.Col) {
			return fmt.Errorf("%w (%d,%d)", ErrOverlap, c.Row, c.Col)
		}
	}
	return nil
}

// AttemptPlacement fills the shape, then clears every full row and column in
// one step. The board is untouched when the placement is rejected.
func AttemptPlacement(b *board.Board, shape *catalogs.Shape, row, col int) (board.ClearResult, error) {
	p := Placement{Shape: shape, Row: row, Col: col}
	if err := Check(b, p); err != nil {
		return board.ClearResult{}, err
	}
	b.ApplyFill(p.Cells())
	res := b.DetectFullLines()
	b.ClearLines(res.Rows, res.Cols)
	return res, nil
}

// PreviewClears reports the lines a placement would complete, without
// clearing them and without touching b. ok is false when the shape does not
// fit.
func PreviewClears(b *board.Board, shape *catalogs.Shape, row, col int) (res board.ClearResult, ok bool) {
	if shape == nil || !b.CanFit(shape, row, col) {
		return board.ClearResult{}, false
	}
	sim := *b
	sim.ApplyFill(board.Covered(shape, row, col))
	return sim.DetectFullLines(), true
}

// Anchors lists every anchor where shape fits, row-major.
func Anchors(b *board.Board, shape *catalogs.Shape) []Placement {
	var out []Placement
	for r := 0; r < board.Size; r++ {
		for c := 0; c < board.Size; c++ {
			if b.CanFit(shape, r, c) {
				out = append(out, Placement{Shape: shape, Row: r, Col: c})
			}
		}
	}
	return out
}

package rules

import (
	"blockroom.ai/internal/sim/board"
	"blockroom.ai/internal/sim/catalogs"
)

// IsPlaceable is the direct test: the shape fits somewhere on b as it is.
func IsPlaceable(shape *catalogs.Shape, b *board.Board) bool {
	for r := 0; r < board.Size; r++ {
		for c := 0; c < board.Size; c++ {
			if b.CanFit(shape, r, c) {
				return true
			}
		}
	}
	return false
}

// PlaceableAfterClear is the one-ply lookahead: clear the lines that are
// already full on b (on a copy) and test the shape against the result. It
// does not simulate the shape's own placement or sequences of placements.
func PlaceableAfterClear(shape *catalogs.Shape, b *board.Board) bool {
	full := b.DetectFullLines()
	if full.Empty() {
		return false
	}
	sim := *b
	sim.ClearLines(full.Rows, full.Cols)
	return IsPlaceable(shape, &sim)
}

// HandHasLegalMove reports whether any non-empty slot is placeable directly
// or after the board's pending clears. A hand with no pieces left is not a
// deadlock.
func HandHasLegalMove(hand Hand, b *board.Board) bool {
	hasPieces := false
	for _, shape := range hand {
		if shape == nil {
			continue
		}
		hasPieces = true
		if IsPlaceable(shape, b) || PlaceableAfterClear(shape, b) {
			return true
		}
	}
	return !hasPieces
}

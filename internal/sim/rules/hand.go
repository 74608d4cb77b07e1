package rules

import (
	"math"
	"sort"
	"strings"

	"blockroom.ai/internal/sim/board"
	"blockroom.ai/internal/sim/catalogs"
)

// HandSize is the number of slots in a hand.
const HandSize = 3

// DefaultTopFraction is the share of the sorted candidate list each slot
// draws from.
const DefaultTopFraction = 0.5

// Hand holds the pieces available to the turn holder. A nil slot has been
// played.
type Hand [HandSize]*catalogs.Shape

func (h Hand) Empty() bool {
	for _, s := range h {
		if s != nil {
			return false
		}
	}
	return true
}

// Remaining counts non-empty slots.
func (h Hand) Remaining() int {
	n := 0
	for _, s := range h {
		if s != nil {
			n++
		}
	}
	return n
}

func (h Hand) IDs() []string {
	out := make([]string, HandSize)
	for i, s := range h {
		if s != nil {
			out[i] = s.ID
		}
	}
	return out
}

func (h Hand) String() string {
	ids := h.IDs()
	for i, id := range ids {
		if id == "" {
			ids[i] = "-"
		}
	}
	return "[" + strings.Join(ids, " ") + "]"
}

// Intn is the random source the generator draws from; *rand.Rand satisfies
// it.
type Intn interface {
	Intn(n int) int
}

// Candidates returns the pieces that fit the board directly, largest first
// (stable for equal sizes), or the whole catalog when nothing fits.
func Candidates(cat *catalogs.Catalog, b *board.Board) []*catalogs.Shape {
	placeable := make([]*catalogs.Shape, 0, len(cat.Shapes))
	for _, s := range cat.Shapes {
		if IsPlaceable(s, b) {
			placeable = append(placeable, s)
		}
	}
	if len(placeable) == 0 {
		return cat.Shapes
	}
	sort.SliceStable(placeable, func(i, j int) bool { return placeable[i].Size() > placeable[j].Size() })
	return placeable
}

// RefillHand draws each slot independently and uniformly from the top
// fraction of the candidate list. Duplicates across slots are allowed.
func RefillHand(cat *catalogs.Catalog, b *board.Board, rng Intn) Hand {
	return RefillHandFraction(cat, b, rng, DefaultTopFraction)
}

func RefillHandFraction(cat *catalogs.Catalog, b *board.Board, rng Intn, fraction float64) Hand {
	if fraction <= 0 || fraction > 1 {
		fraction = DefaultTopFraction
	}
	source := Candidates(cat, b)
	span := int(math.Ceil(float64(len(source)) * fraction))
	if span < 1 {
		span = 1
	}
	var h Hand
	for i := range h {
		h[i] = source[rng.Intn(span)]
	}
	return h
}

package board

import (
	"strings"

	"blockroom.ai/internal/sim/catalogs"
)

// Size is the board edge length.
const Size = 8

// Board is the 8x8 occupancy grid. It is a value type; assigning a Board
// copies it, which is how throwaway simulation boards are made.
type Board [Size][Size]bool

// ClearResult lists the full rows and columns found by DetectFullLines, in
// ascending order. Either list may be empty.
type ClearResult struct {
	Rows []int `json:"rows"`
	Cols []int `json:"cols"`
}

func (r ClearResult) Empty() bool { return len(r.Rows) == 0 && len(r.Cols) == 0 }

// Lines is the number of cleared lines.
func (r ClearResult) Lines() int { return len(r.Rows) + len(r.Cols) }

func InBounds(row, col int) bool {
	return row >= 0 && row < Size && col >= 0 && col < Size
}

// FromInts copies a wire grid. Missing rows/cols stay empty; any non-zero
// value is filled.
func FromInts(grid [][]int) Board {
	var b Board
	for r := 0; r < Size && r < len(grid); r++ {
		for c := 0; c < Size && c < len(grid[r]); c++ {
			b[r][c] = grid[r][c] != 0
		}
	}
	return b
}

func (b *Board) Ints() [][]int {
	out := make([][]int, Size)
	for r := range out {
		out[r] = make([]int, Size)
		for c := 0; c < Size; c++ {
			if b[r][c] {
				out[r][c] = 1
			}
		}
	}
	return out
}

func (b *Board) Filled(row, col int) bool {
	if !InBounds(row, col) {
		return false
	}
	return b[row][col]
}

func (b *Board) FilledCount() int {
	n := 0
	for r := 0; r < Size; r++ {
		for c := 0; c < Size; c++ {
			if b[r][c] {
				n++
			}
		}
	}
	return n
}

// CanFit reports whether every occupied cell of shape anchored at (row, col)
// lands on an in-bounds empty cell.
func (b *Board) CanFit(shape *catalogs.Shape, row, col int) bool {
	ok := true
	shape.Each(func(r, c int) bool {
		tr, tc := row+r, col+c
		if !InBounds(tr, tc) || b[tr][tc] {
			ok = false
		}
		return ok
	})
	return ok
}

// Covered returns the absolute cells shape would occupy at (row, col),
// whether or not they are in bounds.
func Covered(shape *catalogs.Shape, row, col int) []catalogs.Cell {
	cells := shape.Cells()
	for i := range cells {
		cells[i].Row += row
		cells[i].Col += col
	}
	return cells
}

// ApplyFill marks cells filled without validation. Out-of-bounds cells are
// skipped.
func (b *Board) ApplyFill(cells []catalogs.Cell) {
	for _, c := range cells {
		if InBounds(c.Row, c.Col) {
			b[c.Row][c.Col] = true
		}
	}
}

// ApplyDelta sets one cell and reports whether it went from filled to empty.
// Out-of-bounds deltas are ignored.
func (b *Board) ApplyDelta(row, col int, filled bool) (cleared, placed bool) {
	if !InBounds(row, col) {
		return false, false
	}
	prev := b[row][col]
	b[row][col] = filled
	return prev && !filled, !prev && filled
}

func (b *Board) DetectFullLines() ClearResult {
	var res ClearResult
	for r := 0; r < Size; r++ {
		full := true
		for c := 0; c < Size; c++ {
			if !b[r][c] {
				full = false
				break
			}
		}
		if full {
			res.Rows = append(res.Rows, r)
		}
	}
	for c := 0; c < Size; c++ {
		full := true
		for r := 0; r < Size; r++ {
			if !b[r][c] {
				full = false
				break
			}
		}
		if full {
			res.Cols = append(res.Cols, c)
		}
	}
	return res
}

// ClearLines empties the given rows and columns. Out-of-range indices are
// ignored.
func (b *Board) ClearLines(rows, cols []int) {
	for _, r := range rows {
		if r < 0 || r >= Size {
			continue
		}
		for c := 0; c < Size; c++ {
			b[r][c] = false
		}
	}
	for _, c := range cols {
		if c < 0 || c >= Size {
			continue
		}
		for r := 0; r < Size; r++ {
			b[r][c] = false
		}
	}
}

// String renders the board as 8 lines of '#'/'.'.
func (b *Board) String() string {
	var sb strings.Builder
	for r := 0; r < Size; r++ {
		for c := 0; c < Size; c++ {
			if b[r][c] {
				sb.WriteByte('#')
			} else {
				sb.WriteByte('.')
			}
		}
		if r < Size-1 {
			sb.WriteByte('\n')
		}
	}
	return sb.String()
}

// Parse is the inverse of String; used by tests and the replay tool.
func Parse(s string) Board {
	var b Board
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for r := 0; r < Size && r < len(lines); r++ {
		line := strings.TrimSpace(lines[r])
		for c := 0; c < Size && c < len(line); c++ {
			b[r][c] = line[c] == '#'
		}
	}
	return b
}

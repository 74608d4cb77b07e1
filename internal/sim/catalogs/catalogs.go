package catalogs

import (
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// MaxSpan bounds a shape's rows and columns; nothing larger fits the board.
const MaxSpan = 8

//go:embed pieces.yaml
var defaultPieces []byte

// Shape is an immutable polyomino pattern.
type Shape struct {
	ID string

	rows  []string
	cells []Cell
}

// Cell is an offset inside a shape, or an absolute board coordinate.
type Cell struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

func (s *Shape) Height() int { return len(s.rows) }
func (s *Shape) Width() int  { return len(s.rows[0]) }

// Size is the number of occupied cells.
func (s *Shape) Size() int { return len(s.cells) }

// Key is the canonical pattern, rows joined by '/'. Two shapes with the same
// key are the same piece.
func (s *Shape) Key() string { return strings.Join(s.rows, "/") }

// Occupied reports whether offset (r, c) is part of the shape.
func (s *Shape) Occupied(r, c int) bool {
	if r < 0 || r >= len(s.rows) || c < 0 || c >= len(s.rows[r]) {
		return false
	}
	return s.rows[r][c] == '#'
}

// Cells returns a copy of the occupied offsets in row-major order.
func (s *Shape) Cells() []Cell {
	out := make([]Cell, len(s.cells))
	copy(out, s.cells)
	return out
}

// Each calls fn for every occupied offset in row-major order and stops early
// when fn returns false.
func (s *Shape) Each(fn func(r, c int) bool) {
	for _, cell := range s.cells {
		if !fn(cell.Row, cell.Col) {
			return
		}
	}
}

func (s *Shape) String() string { return s.ID + "[" + s.Key() + "]" }

// NewShape builds a shape from '#'/'.' rows.
func NewShape(id string, rows ...string) (*Shape, error) {
	if id == "" {
		return nil, fmt.Errorf("shape: empty id")
	}
	if len(rows) == 0 || len(rows) > MaxSpan {
		return nil, fmt.Errorf("shape %s: %d rows", id, len(rows))
	}
	w := len(rows[0])
	if w == 0 || w > MaxSpan {
		return nil, fmt.Errorf("shape %s: width %d", id, w)
	}
	s := &Shape{ID: id, rows: make([]string, len(rows))}
	for r, row := range rows {
		if len(row) != w {
			return nil, fmt.Errorf("shape %s: row %d has width %d, want %d", id, r, len(row), w)
		}
		for c := 0; c < w; c++ {
			switch row[c] {
			case '#':
				s.cells = append(s.cells, Cell{Row: r, Col: c})
			case '.':
			default:
				return nil, fmt.Errorf("shape %s: bad cell %q at %d,%d", id, row[c], r, c)
			}
		}
		s.rows[r] = row
	}
	if len(s.cells) == 0 {
		return nil, fmt.Errorf("shape %s: no occupied cells", id)
	}
	return s, nil
}

// MustShape is NewShape for literals known to be valid.
func MustShape(id string, rows ...string) *Shape {
	s, err := NewShape(id, rows...)
	if err != nil {
		panic(err)
	}
	return s
}

// Catalog is the ordered set of pieces the hand generator draws from.
type Catalog struct {
	Shapes []*Shape
	ByID   map[string]*Shape
	Digest string
}

func (c *Catalog) Len() int { return len(c.Shapes) }

type pieceFile struct {
	Pieces []pieceDef `yaml:"pieces"`
}

type pieceDef struct {
	ID   string   `yaml:"id"`
	Rows []string `yaml:"rows"`
}

// Default returns the built-in catalog.
func Default() *Catalog {
	c, err := Parse(defaultPieces)
	if err != nil {
		panic(fmt.Sprintf("embedded pieces.yaml: %v", err))
	}
	return c
}

// Load reads a catalog file; an empty path yields the built-in catalog.
func Load(path string) (*Catalog, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c, err := Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

func Parse(raw []byte) (*Catalog, error) {
	var f pieceFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("pieces.yaml: %w", err)
	}
	if len(f.Pieces) == 0 {
		return nil, fmt.Errorf("pieces.yaml: no pieces")
	}
	c := &Catalog{ByID: make(map[string]*Shape, len(f.Pieces))}
	seen := map[string]string{}
	for _, d := range f.Pieces {
		s, err := NewShape(d.ID, d.Rows...)
		if err != nil {
			return nil, fmt.Errorf("pieces.yaml: %w", err)
		}
		if _, dup := c.ByID[s.ID]; dup {
			return nil, fmt.Errorf("pieces.yaml: duplicate id %s", s.ID)
		}
		if other, dup := seen[s.Key()]; dup {
			return nil, fmt.Errorf("pieces.yaml: %s repeats the pattern of %s", s.ID, other)
		}
		seen[s.Key()] = s.ID
		c.ByID[s.ID] = s
		c.Shapes = append(c.Shapes, s)
	}
	sum := sha256.Sum256(raw)
	c.Digest = hex.EncodeToString(sum[:])
	return c, nil
}

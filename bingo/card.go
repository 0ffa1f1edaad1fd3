// Package bingo holds the rules of 75-ball bingo: card generation, win
// detection, claim validation against the call history and number calling.
package bingo

import (
	"encoding/json"
	"fmt"
	rand "math/rand/v2"
)

const (
	// Size is the number of rows and columns on a card.
	Size = 5
	// Cells is the number of cells on a card.
	Cells = Size * Size
	// FreeIndex is the row-major index of the centre cell.
	FreeIndex = 12
	// MaxNumber is the highest number that can be called.
	MaxNumber = 75

	columnSpan = MaxNumber / Size
)

// Range is an inclusive number range for one card column.
type Range struct {
	Letter   string
	Min, Max int
}

// Ranges lists the column buckets in column order.
var Ranges = [Size]Range{
	{Letter: "B", Min: 1, Max: 15},
	{Letter: "I", Min: 16, Max: 30},
	{Letter: "N", Min: 31, Max: 45},
	{Letter: "G", Min: 46, Max: 60},
	{Letter: "O", Min: 61, Max: 75},
}

// Cell is one square of a card.
type Cell struct {
	Value   int
	Free    bool
	Marked  bool
	Winning bool
}

type cellJSON struct {
	Value     any  `json:"value"`
	IsMarked  bool `json:"isMarked"`
	IsWinning bool `json:"isWinning,omitempty"`
}

// MarshalJSON encodes the FREE cell's value as the string "FREE".
func (c Cell) MarshalJSON() ([]byte, error) {
	out := cellJSON{Value: c.Value, IsMarked: c.Marked, IsWinning: c.Winning}
	if c.Free {
		out.Value = "FREE"
	}
	return json.Marshal(out)
}

// UnmarshalJSON accepts either an integer value or "FREE".
func (c *Cell) UnmarshalJSON(data []byte) error {
	var raw struct {
		Value     json.RawMessage `json:"value"`
		IsMarked  bool            `json:"isMarked"`
		IsWinning bool            `json:"isWinning"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*c = Cell{Marked: raw.IsMarked, Winning: raw.IsWinning}
	if string(raw.Value) == `"FREE"` {
		c.Free = true
		return nil
	}
	if err := json.Unmarshal(raw.Value, &c.Value); err != nil {
		return fmt.Errorf("cell value: %w", err)
	}
	return nil
}

// Card is a 5x5 grid in row-major order.
type Card [Cells]Cell

// NewCard draws a card from rng. Each column gets five distinct numbers from
// its own range, drawn by rejection sampling within that range.
func NewCard(rng *rand.Rand) Card {
	var columns [Size][Size]int
	for col, r := range Ranges {
		used := make(map[int]bool, Size)
		for n := 0; n < Size; {
			v := r.Min + rng.IntN(r.Max-r.Min+1)
			if used[v] {
				continue
			}
			used[v] = true
			columns[col][n] = v
			n++
		}
	}

	var card Card
	for row := 0; row < Size; row++ {
		for col := 0; col < Size; col++ {
			card[row*Size+col] = Cell{Value: columns[col][row]}
		}
	}
	card[FreeIndex] = Cell{Free: true, Marked: true}
	return card
}

// NewCardOptions returns n independently drawn cards.
func NewCardOptions(rng *rand.Rand, n int) []Card {
	if n <= 0 {
		return nil
	}
	options := make([]Card, n)
	for i := range options {
		options[i] = NewCard(rng)
	}
	return options
}

// Letter returns the column letter for a called number. The free cell
// belongs to the N column.
func Letter(n int) string {
	if n < 1 || n > MaxNumber {
		return ""
	}
	return Ranges[(n-1)/columnSpan].Letter
}

// Label formats a called number for display, e.g. "B-7".
func Label(n int) string {
	if l := Letter(n); l != "" {
		return fmt.Sprintf("%s-%d", l, n)
	}
	return ""
}

// String returns the display text of the cell.
func (c Cell) String() string {
	if c.Free {
		return "FREE"
	}
	return fmt.Sprintf("%d", c.Value)
}

// Toggle flips the mark on cell i. The free cell stays marked.
func (c *Card) Toggle(i int) {
	if i < 0 || i >= Cells || c[i].Free {
		return
	}
	c[i].Marked = !c[i].Marked
}

// SetWinning flags exactly the given indices as winning.
func (c *Card) SetWinning(indices []int) {
	for i := range c {
		c[i].Winning = false
	}
	for _, i := range indices {
		if i >= 0 && i < Cells {
			c[i].Winning = true
		}
	}
}

// MarkedCount returns the number of marked cells, the free cell included.
func (c Card) MarkedCount() int {
	n := 0
	for _, cell := range c {
		if cell.Marked {
			n++
		}
	}
	return n
}

// Index returns the cell index holding value, or -1.
func (c Card) Index(value int) int {
	for i, cell := range c {
		if !cell.Free && cell.Value == value {
			return i
		}
	}
	return -1
}

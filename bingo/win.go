package bingo

import (
	"fmt"
	"slices"
	"strings"
)

// Mode selects the winning patterns for a room.
type Mode string

const (
	Classic  Mode = "CLASSIC"
	Blackout Mode = "BLACKOUT"
)

// ParseMode accepts a mode name in any case.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToUpper(strings.TrimSpace(s))) {
	case Classic:
		return Classic, nil
	case Blackout:
		return Blackout, nil
	}
	return "", fmt.Errorf("unknown game mode %q", s)
}

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	return m == Classic || m == Blackout
}

// Shout is the word a winner calls out in this mode.
func (m Mode) Shout() string {
	if m == Blackout {
		return "BLACKOUT!"
	}
	return "BINGO!"
}

var (
	classicPatterns  = buildClassicPatterns()
	blackoutPatterns = [][]int{allIndices()}
)

func buildClassicPatterns() [][]int {
	patterns := make([][]int, 0, 2*Size+2)
	for r := 0; r < Size; r++ {
		row := make([]int, Size)
		for c := range row {
			row[c] = r*Size + c
		}
		patterns = append(patterns, row)
	}
	for c := 0; c < Size; c++ {
		col := make([]int, Size)
		for r := range col {
			col[r] = r*Size + c
		}
		patterns = append(patterns, col)
	}
	patterns = append(patterns,
		[]int{0, 6, 12, 18, 24},
		[]int{4, 8, 12, 16, 20},
	)
	return patterns
}

func allIndices() []int {
	all := make([]int, Cells)
	for i := range all {
		all[i] = i
	}
	return all
}

// Patterns returns the candidate winning patterns for mode. The result must
// not be modified.
func Patterns(mode Mode) [][]int {
	if mode == Blackout {
		return blackoutPatterns
	}
	return classicPatterns
}

// Detection is the result of looking for completed patterns on a card.
type Detection struct {
	Won      bool
	Cells    []int
	Patterns [][]int
}

// Detect finds every candidate pattern whose cells are all marked.
func Detect(card Card, mode Mode) Detection {
	var matched [][]int
	for _, p := range Patterns(mode) {
		if allMarked(card, p) {
			matched = append(matched, slices.Clone(p))
		}
	}
	return Detection{
		Won:      len(matched) > 0,
		Cells:    union(matched),
		Patterns: matched,
	}
}

// Validation is the result of checking a claim against the call history.
type Validation struct {
	Valid    bool
	Cells    []int
	Patterns [][]int
}

// Validate re-derives a claimed win from the called numbers. Only patterns
// that are both marked and fully called count; the free cell is always
// satisfied. Marks alone never make a win.
func Validate(card Card, called []int, mode Mode) Validation {
	det := Detect(card, mode)
	if !det.Won {
		return Validation{}
	}

	calledSet := make(map[int]bool, len(called))
	for _, n := range called {
		calledSet[n] = true
	}

	var surviving [][]int
	for _, p := range det.Patterns {
		if allCalled(card, p, calledSet) {
			surviving = append(surviving, p)
		}
	}
	if len(surviving) == 0 {
		return Validation{}
	}
	return Validation{
		Valid:    true,
		Cells:    union(surviving),
		Patterns: surviving,
	}
}

func allMarked(card Card, pattern []int) bool {
	for _, i := range pattern {
		if !card[i].Marked {
			return false
		}
	}
	return true
}

func allCalled(card Card, pattern []int, called map[int]bool) bool {
	for _, i := range pattern {
		cell := card[i]
		if !cell.Free && !called[cell.Value] {
			return false
		}
	}
	return true
}

func union(patterns [][]int) []int {
	if len(patterns) == 0 {
		return nil
	}
	var seen [Cells]bool
	out := make([]int, 0, Cells)
	for _, p := range patterns {
		for _, i := range p {
			if !seen[i] {
				seen[i] = true
				out = append(out, i)
			}
		}
	}
	slices.Sort(out)
	return out
}

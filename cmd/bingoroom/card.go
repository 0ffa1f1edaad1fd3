package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/lox/bingoroom/bingo"
	"github.com/lox/bingoroom/internal/randutil"
)

// CardCmd prints freshly drawn cards, useful for checking a seed
type CardCmd struct {
	Count int    `default:"1" help:"Number of cards to draw"`
	Seed  *int64 `help:"Deterministic RNG seed (optional)"`
}

func (c *CardCmd) Run() error {
	if c.Count < 1 {
		return fmt.Errorf("count must be positive")
	}
	rng, seed := randutil.FromOptionalSeed(c.Seed)
	for i, card := range bingo.NewCardOptions(rng, c.Count) {
		if i > 0 {
			fmt.Println()
		}
		printCard(os.Stdout, card)
	}
	_, _ = fmt.Fprintf(os.Stderr, "seed: %d\n", seed)
	return nil
}

func printCard(w io.Writer, card bingo.Card) {
	var header []string
	for _, r := range bingo.Ranges {
		header = append(header, fmt.Sprintf("%5s", r.Letter))
	}
	_, _ = fmt.Fprintln(w, strings.Join(header, ""))
	for row := 0; row < bingo.Size; row++ {
		var cells []string
		for col := 0; col < bingo.Size; col++ {
			cells = append(cells, fmt.Sprintf("%5s", card[row*bingo.Size+col].String()))
		}
		_, _ = fmt.Fprintln(w, strings.Join(cells, ""))
	}
}

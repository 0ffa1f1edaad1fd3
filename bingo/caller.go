package bingo

import (
	"errors"
	rand "math/rand/v2"
)

// ErrCallExhausted is returned once every number has been called.
var ErrCallExhausted = errors.New("all 75 numbers have been called")

// NextCall draws a number uniformly from those not yet in called.
func NextCall(rng *rand.Rand, called []int) (int, error) {
	seen := make(map[int]bool, len(called))
	for _, n := range called {
		if n >= 1 && n <= MaxNumber {
			seen[n] = true
		}
	}
	if len(seen) >= MaxNumber {
		return 0, ErrCallExhausted
	}
	for {
		n := rng.IntN(MaxNumber) + 1
		if !seen[n] {
			return n, nil
		}
	}
}

// Remaining returns how many numbers are still available to call.
func Remaining(called []int) int {
	seen := make(map[int]bool, len(called))
	for _, n := range called {
		if n >= 1 && n <= MaxNumber {
			seen[n] = true
		}
	}
	return MaxNumber - len(seen)
}

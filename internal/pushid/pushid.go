// Package pushid allocates keys for records created in the store. Keys are
// 26 characters of Crockford base32 encoding a 48-bit millisecond timestamp
// followed by 80 random bits, so they sort in creation order. Keys created
// by one Generator within the same millisecond increment the random part
// instead of redrawing it, which keeps them strictly increasing.
package pushid

import (
	"crypto/rand"
	"fmt"
	"sync"

	"github.com/coder/quartz"
)

// Length is the number of characters in a key.
const Length = 26

// Base32 alphabet (Crockford); ascending ASCII order keeps keys sortable.
const alphabet = "0123456789abcdefghjkmnpqrstvwxyz"

// RandSource allows deterministic keys in tests.
type RandSource interface {
	Intn(n int) int
}

// Generator produces monotonically increasing keys.
type Generator struct {
	mu         sync.Mutex
	clock      quartz.Clock
	randSource RandSource
	lastMs     int64
	lastRand   [10]byte
}

// NewGenerator returns a generator reading time from clock. A nil clock uses
// the real clock; a nil randSource uses crypto/rand.
func NewGenerator(clock quartz.Clock, randSource RandSource) *Generator {
	if clock == nil {
		clock = quartz.NewReal()
	}
	return &Generator{clock: clock, randSource: randSource}
}

var defaultGenerator = NewGenerator(nil, nil)

// New returns a key from the package-level generator.
func New() string {
	return defaultGenerator.Next()
}

// Next returns the next key.
func (g *Generator) Next() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	ms := g.clock.Now().UnixMilli()
	if ms <= g.lastMs {
		ms = g.lastMs
		if !increment(&g.lastRand) {
			// 80 bits exhausted within one millisecond: borrow the next one.
			ms++
			g.fillRandom(&g.lastRand)
		}
	} else {
		g.fillRandom(&g.lastRand)
	}
	g.lastMs = ms

	var id [16]byte
	id[0] = byte(ms >> 40)
	id[1] = byte(ms >> 32)
	id[2] = byte(ms >> 24)
	id[3] = byte(ms >> 16)
	id[4] = byte(ms >> 8)
	id[5] = byte(ms)
	copy(id[6:], g.lastRand[:])
	return encode(id)
}

func (g *Generator) fillRandom(buf *[10]byte) {
	if g.randSource != nil {
		for i := range buf {
			buf[i] = byte(g.randSource.Intn(256))
		}
		return
	}
	if _, err := rand.Read(buf[:]); err != nil {
		panic("failed to generate random bytes: " + err.Error())
	}
}

// increment adds one to buf as a big-endian integer and reports false on
// overflow.
func increment(buf *[10]byte) bool {
	for i := len(buf) - 1; i >= 0; i-- {
		buf[i]++
		if buf[i] != 0 {
			return true
		}
	}
	return false
}

// encode writes the 128-bit value as 26 base32 characters, most significant
// first. The first character carries only the top three bits.
func encode(data [16]byte) string {
	var hi, lo uint64
	for i := 0; i < 8; i++ {
		hi = hi<<8 | uint64(data[i])
		lo = lo<<8 | uint64(data[i+8])
	}

	out := make([]byte, Length)
	for i := Length - 1; i >= 0; i-- {
		out[i] = alphabet[lo&0x1f]
		lo = lo>>5 | hi<<59
		hi >>= 5
	}
	return string(out)
}

// Validate checks that key has the shape of a generated key.
func Validate(key string) error {
	if len(key) != Length {
		return fmt.Errorf("key must be exactly %d characters, got %d", Length, len(key))
	}
	if key[0] > '7' {
		return fmt.Errorf("key first character must be 0-7, got %c", key[0])
	}
	for i := 0; i < len(key); i++ {
		if !validChar(key[i]) {
			return fmt.Errorf("invalid character %c at position %d", key[i], i)
		}
	}
	return nil
}

func validChar(c byte) bool {
	for i := 0; i < len(alphabet); i++ {
		if alphabet[i] == c {
			return true
		}
	}
	return false
}

package room

import (
	"maps"
	"slices"

	"github.com/lox/bingoroom/internal/store"
)

// Patch collects field writes for a partial room update. Fields that are
// never set are left untouched by UpdateRoom.
type Patch struct {
	fields map[string]any
}

// NewPatch returns an empty patch.
func NewPatch() *Patch {
	return &Patch{fields: map[string]any{}}
}

// CalledNumbers replaces the call history. An empty history removes the
// field.
func (p *Patch) CalledNumbers(nums []int) *Patch {
	if len(nums) == 0 {
		p.fields["calledNumbers"] = nil
		return p
	}
	p.fields["calledNumbers"] = slices.Clone(nums)
	return p
}

func (p *Patch) LastCalled(n int) *Patch {
	p.fields["lastCalled"] = n
	return p
}

func (p *Patch) ClearLastCalled() *Patch {
	p.fields["lastCalled"] = nil
	return p
}

func (p *Patch) GameState(s GameState) *Patch {
	p.fields["gameState"] = s
	return p
}

func (p *Patch) Winner(name string) *Patch {
	p.fields["winner"] = name
	return p
}

func (p *Patch) ClearWinner() *Patch {
	p.fields["winner"] = nil
	return p
}

// Player inserts or overwrites one roster entry.
func (p *Patch) Player(id string, player Player) *Patch {
	p.fields[store.Join("players", id)] = player
	return p
}

// Fields returns the store update described by the patch.
func (p *Patch) Fields() map[string]any {
	return maps.Clone(p.fields)
}

// Empty reports whether the patch writes nothing.
func (p *Patch) Empty() bool {
	return len(p.fields) == 0
}

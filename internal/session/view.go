package session

import (
	"fmt"
	"slices"

	"github.com/lox/bingoroom/bingo"
	"github.com/lox/bingoroom/internal/room"
)

// Player is a roster entry as presented.
type Player struct {
	ID     string
	Name   string
	IsHost bool
}

// View is a read-only copy of everything a presentation layer renders.
type View struct {
	RoomID       string
	Self         Identity
	State        State
	Shared       room.GameState
	Mode         bingo.Mode
	IsHost       bool
	Card         bingo.Card
	Options      []bingo.Card
	Called       []int
	LastCalled   int
	Winner       string
	Players      []Player
	Chat         []room.ChatMessage
	AutoCalling  bool
	ClaimPending bool
}

// View snapshots the session.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := View{
		RoomID:       s.roomID,
		Self:         s.id,
		State:        s.state,
		Mode:         s.mode,
		IsHost:       s.isHost,
		Card:         s.card,
		Options:      slices.Clone(s.options),
		AutoCalling:  s.auto != nil,
		ClaimPending: s.claimPending,
	}
	if s.shared == nil {
		return v
	}

	r := s.shared
	v.Shared = r.GameState
	v.Called = slices.Clone(r.CalledNumbers)
	if n, ok := r.LastCall(); ok {
		v.LastCalled = n
	}
	v.Winner = r.WinnerName()
	for _, id := range r.PlayerIDs() {
		p := r.Players[id]
		v.Players = append(v.Players, Player{ID: id, Name: p.Name, IsHost: p.IsHost})
	}
	v.Chat = r.Messages()
	return v
}

// WinnerMessage is the winner's shout, e.g. "Ann: BINGO!". Empty until the
// room records a winner.
func (v View) WinnerMessage() string {
	if v.Winner == "" {
		return ""
	}
	return fmt.Sprintf("%s: %s", v.Winner, v.Mode.Shout())
}

// Banner is the end-of-game headline, e.g. "Ann WON!".
func (v View) Banner() string {
	if v.Shared != room.StateEnded || v.Winner == "" {
		return ""
	}
	return fmt.Sprintf("%s WON!", v.Winner)
}

// IsCalled reports whether n is in the call history.
func (v View) IsCalled(n int) bool {
	return slices.Contains(v.Called, n)
}

// Package room keeps one shared record per bingo room in a store.Store and
// fans its changes out to every participant.
package room

import (
	"cmp"
	"slices"

	"github.com/lox/bingoroom/bingo"
)

// Collection is the store path under which room records live.
const Collection = "rooms"

// GameState is the shared lifecycle state of a room.
type GameState string

const (
	StateLobby   GameState = "LOBBY"
	StatePlaying GameState = "PLAYING"
	StateEnded   GameState = "ENDED"
)

// Player is a roster entry.
type Player struct {
	Name   string `json:"name"`
	IsHost bool   `json:"isHost"`
}

// ChatMessage is one chat log entry. ID is the store key it was pushed
// under.
type ChatMessage struct {
	ID        string `json:"-"`
	Sender    string `json:"sender"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
}

// Room mirrors the shared record at rooms/{id}.
type Room struct {
	ID            string                 `json:"id,omitempty"`
	HostID        string                 `json:"hostId"`
	HostName      string                 `json:"hostName"`
	GameMode      bingo.Mode             `json:"gameMode"`
	CalledNumbers []int                  `json:"calledNumbers,omitempty"`
	LastCalled    *int                   `json:"lastCalled,omitempty"`
	GameState     GameState              `json:"gameState"`
	Winner        *string                `json:"winner,omitempty"`
	Players       map[string]Player      `json:"players,omitempty"`
	Chat          map[string]ChatMessage `json:"chat,omitempty"`
}

// WinnerName returns the recorded winner, or "" while there is none.
func (r Room) WinnerName() string {
	if r.Winner == nil {
		return ""
	}
	return *r.Winner
}

// LastCall returns the most recent call, falling back to the tail of the
// call history when lastCalled is absent.
func (r Room) LastCall() (int, bool) {
	if r.LastCalled != nil {
		return *r.LastCalled, true
	}
	if n := len(r.CalledNumbers); n > 0 {
		return r.CalledNumbers[n-1], true
	}
	return 0, false
}

// IsHost reports whether the roster marks participantID as host.
func (r Room) IsHost(participantID string) bool {
	p, ok := r.Players[participantID]
	return ok && p.IsHost
}

// Messages returns the chat log ordered by timestamp, then key.
func (r Room) Messages() []ChatMessage {
	msgs := make([]ChatMessage, 0, len(r.Chat))
	for id, m := range r.Chat {
		m.ID = id
		msgs = append(msgs, m)
	}
	slices.SortFunc(msgs, func(a, b ChatMessage) int {
		if c := cmp.Compare(a.Timestamp, b.Timestamp); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return msgs
}

// PlayerIDs returns roster ids with the host first, then by name.
func (r Room) PlayerIDs() []string {
	ids := make([]string, 0, len(r.Players))
	for id := range r.Players {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, func(a, b string) int {
		pa, pb := r.Players[a], r.Players[b]
		if pa.IsHost != pb.IsHost {
			if pa.IsHost {
				return -1
			}
			return 1
		}
		if c := cmp.Compare(pa.Name, pb.Name); c != 0 {
			return c
		}
		return cmp.Compare(a, b)
	})
	return ids
}

package session

import "github.com/lox/bingoroom/internal/room"

// Transition describes the edges between two consecutive room snapshots.
type Transition struct {
	// Ended is set when the room moved into ENDED from any other state.
	Ended bool
	// Restarted is set when the room left ENDED.
	Restarted bool
}

// Diff compares the previously observed room with the next one. prev is
// nil before the first snapshot and counts as not ended, so joining a room
// that has already finished reports the win once.
func Diff(prev *room.Room, next room.Room) Transition {
	wasEnded := prev != nil && prev.GameState == room.StateEnded
	isEnded := next.GameState == room.StateEnded
	return Transition{
		Ended:     !wasEnded && isEnded,
		Restarted: wasEnded && !isEnded,
	}
}

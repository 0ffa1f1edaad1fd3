package room

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/lox/bingoroom/bingo"
	"github.com/lox/bingoroom/internal/store"
)

var (
	// ErrRoomNotFound is returned when a room id does not resolve to a
	// record.
	ErrRoomNotFound = errors.New("room not found")

	// ErrSyncFailure wraps every failed store round-trip. The triggering
	// action may be retried.
	ErrSyncFailure = errors.New("sync failure")

	// ErrEmptyMessage is returned for blank chat messages.
	ErrEmptyMessage = errors.New("empty chat message")
)

// Sync is the room synchronizer: create, join, partial update, point read
// and subscription over a shared record store.
type Sync struct {
	store  store.Store
	logger *log.Logger
}

// NewSync creates a synchronizer backed by s.
func NewSync(s store.Store, logger *log.Logger) *Sync {
	return &Sync{
		store:  s,
		logger: logger.WithPrefix("room"),
	}
}

func recordPath(roomID string, rest ...string) string {
	return store.Join(append([]string{Collection, roomID}, rest...)...)
}

func syncErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrSyncFailure, err)
}

// CreateRoom allocates a fresh room id and writes a LOBBY record holding
// the host as its only player.
func (s *Sync) CreateRoom(ctx context.Context, hostID, hostName string, mode bingo.Mode) (string, error) {
	if !mode.Valid() {
		return "", fmt.Errorf("create room: unknown game mode %q", mode)
	}
	record := Room{
		HostID:    hostID,
		HostName:  hostName,
		GameMode:  mode,
		GameState: StateLobby,
		Players: map[string]Player{
			hostID: {Name: hostName, IsHost: true},
		},
	}

	// The key is only known once the record exists, so the id field is
	// filled in by a second write.
	roomID, err := s.store.Push(ctx, Collection, record)
	if err != nil {
		return "", syncErr("create room", err)
	}
	if err := s.store.Update(ctx, recordPath(roomID), map[string]any{"id": roomID}); err != nil {
		return "", syncErr("create room", err)
	}

	s.logger.Info("Room created", "room", roomID, "host", hostName, "mode", mode)
	return roomID, nil
}

// JoinRoom adds participantID to the roster. Joining again overwrites the
// entry; the room's own host keeps its host flag.
func (s *Sync) JoinRoom(ctx context.Context, roomID, participantID, name string) error {
	r, err := s.Get(ctx, roomID)
	if err != nil {
		return err
	}

	player := Player{Name: name, IsHost: r.HostID == participantID}
	if err := s.UpdateRoom(ctx, r.ID, NewPatch().Player(participantID, player)); err != nil {
		return err
	}

	s.logger.Info("Player joined", "room", r.ID, "player", name, "host", player.IsHost)
	return nil
}

// UpdateRoom merges patch into the record without touching other fields.
func (s *Sync) UpdateRoom(ctx context.Context, roomID string, patch *Patch) error {
	if patch == nil || patch.Empty() {
		return nil
	}
	if err := s.store.Update(ctx, recordPath(roomID), patch.Fields()); err != nil {
		return syncErr("update room", err)
	}
	return nil
}

// Get reads the current record.
func (s *Sync) Get(ctx context.Context, roomID string) (Room, error) {
	roomID = strings.TrimSpace(roomID)
	if segs, err := store.SplitPath(roomID); err != nil || len(segs) != 1 {
		return Room{}, fmt.Errorf("%w: %q", ErrRoomNotFound, roomID)
	}

	snap, err := s.store.Get(ctx, recordPath(roomID))
	if errors.Is(err, store.ErrInvalidPath) {
		return Room{}, fmt.Errorf("%w: %q", ErrRoomNotFound, roomID)
	}
	if err != nil {
		return Room{}, syncErr("get room", err)
	}
	if !snap.Exists {
		return Room{}, fmt.Errorf("%w: %q", ErrRoomNotFound, roomID)
	}
	return decode(snap)
}

// Subscribe calls fn with the current record, if it exists, and again after
// every change until the returned function is called or ctx ends. Each call
// receives its own decoded copy. Intermediate states may be skipped.
func (s *Sync) Subscribe(ctx context.Context, roomID string, fn func(Room)) (func(), error) {
	unsubscribe, err := s.store.Subscribe(ctx, recordPath(roomID), func(snap store.Snapshot) {
		if !snap.Exists {
			return
		}
		r, err := decode(snap)
		if err != nil {
			s.logger.Warn("Dropping undecodable room snapshot", "room", roomID, "error", err)
			return
		}
		fn(r)
	})
	if err != nil {
		return nil, syncErr("subscribe", err)
	}
	return unsubscribe, nil
}

// SendChatMessage appends a message stamped with the store's clock.
func (s *Sync) SendChatMessage(ctx context.Context, roomID, sender, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}
	msg := map[string]any{
		"sender":    sender,
		"text":      text,
		"timestamp": store.ServerTimestamp,
	}
	if _, err := s.store.Push(ctx, recordPath(roomID, "chat"), msg); err != nil {
		return syncErr("send chat", err)
	}
	return nil
}

func decode(snap store.Snapshot) (Room, error) {
	var r Room
	if err := snap.Decode(&r); err != nil {
		return Room{}, fmt.Errorf("decode room %q: %w", snap.Key(), err)
	}
	if r.ID == "" {
		r.ID = snap.Key()
	}
	return r, nil
}

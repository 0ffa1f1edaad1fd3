// Package session runs one participant's view of a bingo room: card choice,
// marking, host calls, win claims and restarts, reconciled against the
// shared room record.
package session

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/coder/quartz"

	"github.com/lox/bingoroom/bingo"
	"github.com/lox/bingoroom/internal/room"
)

var (
	ErrNotHost       = errors.New("only the host can do that")
	ErrGameEnded     = errors.New("game has ended")
	ErrGameNotEnded  = errors.New("game has not ended")
	ErrNoRoom        = errors.New("not in a room")
	ErrAlreadyInRoom = errors.New("already in a room")
	ErrNotPlaying    = errors.New("no card in play")
	ErrInvalidCell   = errors.New("invalid cell")
	ErrInvalidChoice = errors.New("invalid card choice")
	ErrInvalidClaim  = errors.New("claim does not validate against called numbers")
	ErrClaimPending  = errors.New("claim already pending")
	ErrClosed        = errors.New("session closed")
)

// State is the local, unshared session state.
type State string

const (
	StateLobby         State = "LOBBY"
	StateSelectingCard State = "SELECTING_CARD"
	StatePlaying       State = "PLAYING"
	StateEnded         State = "ENDED"
)

// Identity is the participant this session acts for.
type Identity struct {
	ID   string
	Name string
}

// Config tunes a session.
type Config struct {
	// CardOptions is how many cards are offered to choose from. With one or
	// fewer the session deals a single card and goes straight to play.
	CardOptions int
	// AutoCallInterval is the period of host auto-calling.
	AutoCallInterval time.Duration
	// OnWin runs once each time the room moves into ENDED.
	OnWin func(winner string)
	// OnChange runs after every applied room snapshot.
	OnChange func()
}

// DefaultConfig returns the standard game settings.
func DefaultConfig() Config {
	return Config{
		CardOptions:      5,
		AutoCallInterval: 5 * time.Second,
	}
}

// Session is safe for concurrent use. Snapshot callbacks and user actions are
// serialised by one mutex; hooks run outside it.
type Session struct {
	id     Identity
	rooms  *room.Sync
	clock  quartz.Clock
	logger *log.Logger
	cfg    Config

	ctx    context.Context
	cancel context.CancelFunc

	// callMu serialises CallNext from its read of the history to its write.
	callMu sync.Mutex

	mu           sync.Mutex
	rng          *rand.Rand
	state        State
	roomID       string
	mode         bingo.Mode
	shared       *room.Room
	isHost       bool
	card         bingo.Card
	options      []bingo.Card
	claimPending bool
	unsubscribe  func()
	auto         *autoCaller
	closed       bool
}

// New creates a session in LOBBY. rng and clock are owned by the session
// from here on; a nil clock means the real one.
func New(rooms *room.Sync, id Identity, rng *rand.Rand, clock quartz.Clock, logger *log.Logger, cfg Config) *Session {
	if clock == nil {
		clock = quartz.NewReal()
	}
	if cfg.AutoCallInterval <= 0 {
		cfg.AutoCallInterval = DefaultConfig().AutoCallInterval
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		id:     id,
		rooms:  rooms,
		clock:  clock,
		logger: logger.WithPrefix("session"),
		cfg:    cfg,
		ctx:    ctx,
		cancel: cancel,
		rng:    rng,
		state:  StateLobby,
	}
}

// Identity returns the participant this session acts for.
func (s *Session) Identity() Identity {
	return s.id
}

// CreateRoom creates a room hosted by this participant and enters it.
func (s *Session) CreateRoom(ctx context.Context, mode bingo.Mode) (string, error) {
	if err := s.checkIdle(); err != nil {
		return "", err
	}
	roomID, err := s.rooms.CreateRoom(ctx, s.id.ID, s.id.Name, mode)
	if err != nil {
		return "", err
	}
	if err := s.enter(roomID, mode, true); err != nil {
		return "", err
	}
	return roomID, nil
}

// JoinRoom joins an existing room and enters it.
func (s *Session) JoinRoom(ctx context.Context, roomID string) error {
	if err := s.checkIdle(); err != nil {
		return err
	}
	roomID = strings.TrimSpace(roomID)
	if err := s.rooms.JoinRoom(ctx, roomID, s.id.ID, s.id.Name); err != nil {
		return err
	}
	return s.enter(roomID, bingo.Classic, false)
}

func (s *Session) checkIdle() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.roomID != "" {
		return ErrAlreadyInRoom
	}
	return nil
}

// enter deals cards and starts following roomID. mode is a placeholder
// until the first snapshot arrives.
func (s *Session) enter(roomID string, mode bingo.Mode, host bool) error {
	s.mu.Lock()
	s.roomID = roomID
	s.mode = mode
	s.isHost = host
	s.dealLocked()
	s.mu.Unlock()

	unsubscribe, err := s.rooms.Subscribe(s.ctx, roomID, s.apply)
	if err != nil {
		s.mu.Lock()
		s.roomID = ""
		s.isHost = false
		s.state = StateLobby
		s.card = bingo.Card{}
		s.options = nil
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	s.unsubscribe = unsubscribe
	s.mu.Unlock()

	s.logger.Info("Entered room", "room", roomID, "host", host)
	return nil
}

// dealLocked draws a fresh card, or a set of candidates to choose from.
func (s *Session) dealLocked() {
	s.claimPending = false
	if s.cfg.CardOptions <= 1 {
		s.card = bingo.NewCard(s.rng)
		s.options = nil
		s.state = StatePlaying
		return
	}
	s.card = bingo.Card{}
	s.options = bingo.NewCardOptions(s.rng, s.cfg.CardOptions)
	s.state = StateSelectingCard
}

// ChooseCard picks one of the offered candidates and starts play.
func (s *Session) ChooseCard(i int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateSelectingCard {
		return fmt.Errorf("%w: not choosing a card", ErrInvalidChoice)
	}
	if i < 0 || i >= len(s.options) {
		return fmt.Errorf("%w: %d", ErrInvalidChoice, i)
	}
	s.card = s.options[i]
	s.options = nil
	s.state = StatePlaying
	return nil
}

// CallNext draws the next number from the room's authoritative call
// history and appends it. Only the host may call.
func (s *Session) CallNext(ctx context.Context) (int, error) {
	s.mu.Lock()
	roomID, isHost := s.roomID, s.isHost
	ended := s.shared != nil && s.shared.GameState == room.StateEnded
	s.mu.Unlock()

	switch {
	case roomID == "":
		return 0, ErrNoRoom
	case !isHost:
		return 0, ErrNotHost
	case ended:
		return 0, ErrGameEnded
	}

	s.callMu.Lock()
	defer s.callMu.Unlock()

	current, err := s.rooms.Get(ctx, roomID)
	if err != nil {
		return 0, err
	}
	if current.GameState == room.StateEnded {
		return 0, ErrGameEnded
	}

	s.mu.Lock()
	n, err := bingo.NextCall(s.rng, current.CalledNumbers)
	s.mu.Unlock()
	if err != nil {
		return 0, err
	}

	called := append(slices.Clone(current.CalledNumbers), n)
	patch := room.NewPatch().
		CalledNumbers(called).
		LastCalled(n)
	// Only the first call moves the room out of LOBBY. Writing PLAYING on
	// every call would undo a claim that lands between the read and the write.
	if current.GameState == room.StateLobby {
		patch.GameState(room.StatePlaying)
	}
	if err := s.rooms.UpdateRoom(ctx, roomID, patch); err != nil {
		return 0, err
	}

	s.logger.Debug("Called number", "room", roomID, "number", bingo.Label(n), "count", len(called))
	return n, nil
}

// ToggleMark flips the local mark on cell i. Marks are never shared.
func (s *Session) ToggleMark(i int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StateEnded:
		return ErrGameEnded
	case StatePlaying:
	default:
		return ErrNotPlaying
	}
	if i < 0 || i >= bingo.Cells {
		return fmt.Errorf("%w: %d", ErrInvalidCell, i)
	}
	s.card.Toggle(i)
	return nil
}

// ClaimWin validates the local card against the latest observed call
// history and, if it holds, records this participant as winner. Whoever's
// claim lands last in the store is the recorded winner; the outcome is only
// known once it comes back through the subscription.
func (s *Session) ClaimWin(ctx context.Context) (bingo.Validation, error) {
	s.mu.Lock()
	switch {
	case s.roomID == "":
		s.mu.Unlock()
		return bingo.Validation{}, ErrNoRoom
	case s.state == StateEnded:
		s.mu.Unlock()
		return bingo.Validation{}, ErrGameEnded
	case s.state != StatePlaying:
		s.mu.Unlock()
		return bingo.Validation{}, ErrNotPlaying
	case s.claimPending:
		s.mu.Unlock()
		return bingo.Validation{}, ErrClaimPending
	}

	var called []int
	if s.shared != nil {
		called = s.shared.CalledNumbers
	}
	v := bingo.Validate(s.card, called, s.mode)
	if !v.Valid {
		s.mu.Unlock()
		return v, ErrInvalidClaim
	}
	s.card.SetWinning(v.Cells)
	s.claimPending = true
	roomID := s.roomID
	s.mu.Unlock()

	patch := room.NewPatch().GameState(room.StateEnded).Winner(s.id.Name)
	if err := s.rooms.UpdateRoom(ctx, roomID, patch); err != nil {
		s.mu.Lock()
		s.claimPending = false
		s.card.SetWinning(nil)
		s.mu.Unlock()
		return v, err
	}

	s.logger.Info("Claimed win", "room", roomID, "cells", v.Cells)
	return v, nil
}

// Restart clears the call history and winner and resumes play. Host only,
// and only once the game has ended.
func (s *Session) Restart(ctx context.Context) error {
	s.mu.Lock()
	roomID, isHost := s.roomID, s.isHost
	ended := s.shared != nil && s.shared.GameState == room.StateEnded
	s.mu.Unlock()

	switch {
	case roomID == "":
		return ErrNoRoom
	case !isHost:
		return ErrNotHost
	case !ended:
		return ErrGameNotEnded
	}

	patch := room.NewPatch().
		CalledNumbers(nil).
		ClearLastCalled().
		ClearWinner().
		GameState(room.StatePlaying)
	if err := s.rooms.UpdateRoom(ctx, roomID, patch); err != nil {
		return err
	}

	s.mu.Lock()
	s.stopAutoCallLocked()
	s.mu.Unlock()
	s.logger.Info("Restarted game", "room", roomID)
	return nil
}

// SendChat posts a chat message as this participant.
func (s *Session) SendChat(ctx context.Context, text string) error {
	s.mu.Lock()
	roomID := s.roomID
	s.mu.Unlock()
	if roomID == "" {
		return ErrNoRoom
	}
	return s.rooms.SendChatMessage(ctx, roomID, s.id.Name, text)
}

// Close stops auto-calling and the room subscription. It is safe to call
// more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.stopAutoCallLocked()
	unsubscribe := s.unsubscribe
	s.unsubscribe = nil
	s.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
	s.cancel()
	return nil
}

// apply reconciles a room snapshot into local state.
func (s *Session) apply(next room.Room) {
	s.mu.Lock()
	if s.closed || next.ID != s.roomID {
		s.mu.Unlock()
		return
	}

	t := Diff(s.shared, next)
	s.shared = &next
	if next.GameMode.Valid() {
		s.mode = next.GameMode
	}
	if _, ok := next.Players[s.id.ID]; ok {
		s.isHost = next.IsHost(s.id.ID)
	}
	if !s.isHost {
		s.stopAutoCallLocked()
	}

	if t.Ended {
		s.state = StateEnded
		s.claimPending = false
		s.stopAutoCallLocked()
	}
	if t.Restarted {
		s.dealLocked()
	}

	onWin, onChange := s.cfg.OnWin, s.cfg.OnChange
	s.mu.Unlock()

	if t.Ended {
		s.logger.Info("Game ended", "room", next.ID, "winner", next.WinnerName())
		if onWin != nil {
			onWin(next.WinnerName())
		}
	}
	if t.Restarted {
		s.logger.Info("Game restarted", "room", next.ID)
	}
	if onChange != nil {
		onChange()
	}
}

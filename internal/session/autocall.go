package session

import (
	"context"
	"errors"

	"github.com/coder/quartz"

	"github.com/lox/bingoroom/bingo"
	"github.com/lox/bingoroom/internal/room"
)

// autoCaller is one running auto-call ticker.
type autoCaller struct {
	cancel context.CancelFunc
	waiter quartz.Waiter
}

// StartAutoCall makes the host call a number every AutoCallInterval. It is a
// no-op when auto-calling is already running. The ticker stops by itself
// when the game ends, numbers run out, the host role is lost, the game is
// restarted or the session is closed.
func (s *Session) StartAutoCall() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.closed:
		return ErrClosed
	case s.roomID == "":
		return ErrNoRoom
	case !s.isHost:
		return ErrNotHost
	case s.shared != nil && s.shared.GameState == room.StateEnded:
		return ErrGameEnded
	}
	if s.auto != nil {
		return nil
	}

	ctx, cancel := context.WithCancel(s.ctx)
	a := &autoCaller{cancel: cancel}
	a.waiter = s.clock.TickerFunc(ctx, s.cfg.AutoCallInterval, func() error {
		return s.autoCall(ctx, a)
	}, "session", "autocall")
	s.auto = a

	s.logger.Info("Auto-call started", "room", s.roomID, "interval", s.cfg.AutoCallInterval)
	return nil
}

// StopAutoCall stops auto-calling. Stopping twice is harmless.
func (s *Session) StopAutoCall() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopAutoCallLocked()
}

// AutoCalling reports whether the auto-call ticker is running.
func (s *Session) AutoCalling() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.auto != nil
}

func (s *Session) stopAutoCallLocked() {
	if s.auto == nil {
		return
	}
	s.auto.cancel()
	s.auto = nil
	s.logger.Debug("Auto-call stopped", "room", s.roomID)
}

func (s *Session) autoCall(ctx context.Context, a *autoCaller) error {
	n, err := s.CallNext(ctx)
	switch {
	case err == nil:
		s.logger.Debug("Auto-called", "number", bingo.Label(n))
		return nil
	case ctx.Err() != nil,
		errors.Is(err, bingo.ErrCallExhausted),
		errors.Is(err, ErrGameEnded),
		errors.Is(err, ErrNotHost),
		errors.Is(err, ErrNoRoom):
		s.mu.Lock()
		if s.auto == a {
			s.auto = nil
		}
		s.mu.Unlock()
		a.cancel()
		s.logger.Info("Auto-call finished", "reason", err)
		return err
	default:
		// Transient store failures skip a beat.
		s.logger.Warn("Auto-call failed", "error", err)
		return nil
	}
}

package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/coder/quartz"

	"github.com/lox/bingoroom/bingo"
	"github.com/lox/bingoroom/internal/randutil"
	"github.com/lox/bingoroom/internal/room"
	"github.com/lox/bingoroom/internal/session"
	"github.com/lox/bingoroom/internal/tui"
)

// HostCommand creates a room and starts the TUI as its host
type HostCommand struct {
	Mode    string `short:"m" help:"Game mode: classic or blackout (overrides config)"`
	Options int    `help:"Number of cards to choose from (overrides config)"`
	Seed    *int64 `help:"Deterministic RNG seed for cards and calls (optional)"`
}

func (cmd *HostCommand) Run(flags *GlobalFlags) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	env, cleanup, err := Setup(ctx, flags)
	if err != nil {
		return err
	}
	defer cleanup()

	mode := env.Config.GameMode()
	if cmd.Mode != "" {
		if mode, err = bingo.ParseMode(cmd.Mode); err != nil {
			return err
		}
	}

	cfg := env.Config.SessionConfig()
	if cmd.Options > 0 {
		cfg.CardOptions = cmd.Options
	}

	p := newPlayer(env, cfg, cmd.Seed)
	defer func() { _ = p.session.Close() }()

	roomID, err := p.session.CreateRoom(ctx, mode)
	if err != nil {
		return fmt.Errorf("failed to create room: %w", err)
	}
	env.Logger.Info("Hosting room", "room", roomID, "mode", mode, "player", env.Identity.Name)

	return p.run(env)
}

// JoinCommand joins a room by id or invite link and starts the TUI
type JoinCommand struct {
	Invite string `arg:"" help:"Room id or invite link"`
	Seed   *int64 `help:"Deterministic RNG seed for cards (optional)"`
}

func (cmd *JoinCommand) Run(flags *GlobalFlags) error {
	roomID, err := session.ParseInvite(cmd.Invite)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	env, cleanup, err := Setup(ctx, flags)
	if err != nil {
		return err
	}
	defer cleanup()

	p := newPlayer(env, env.Config.SessionConfig(), cmd.Seed)
	defer func() { _ = p.session.Close() }()

	if err := p.session.JoinRoom(ctx, roomID); err != nil {
		return fmt.Errorf("failed to join room %s: %w", roomID, err)
	}
	env.Logger.Info("Joined room", "room", roomID, "player", env.Identity.Name)

	return p.run(env)
}

// player is a session wired to a TUI event bridge
type player struct {
	session *session.Session
	events  *tui.Events
}

func newPlayer(env *Env, cfg session.Config, seed *int64) *player {
	rng, used := randutil.FromOptionalSeed(seed)
	env.Logger.Info("Using seed", "seed", used)

	events := tui.NewEvents()
	rooms := room.NewSync(env.Client, env.Logger)
	s := session.New(rooms, env.Identity, rng, quartz.NewReal(), env.Logger, events.Hooks(cfg))
	return &player{session: s, events: events}
}

func (p *player) run(env *Env) error {
	model := tui.NewTUIModel(p.session, p.events, env.Logger, env.inviteBase())
	program := tea.NewProgram(model, tea.WithAltScreen())
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}
	return nil
}

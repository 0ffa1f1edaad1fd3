package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/lox/bingoroom/cmd/bingoroom/shared"
	"github.com/lox/bingoroom/internal/bot"
	"github.com/lox/bingoroom/internal/client"
	"github.com/lox/bingoroom/internal/client/commands"
	"github.com/lox/bingoroom/internal/randutil"
	"github.com/lox/bingoroom/internal/room"
	"github.com/lox/bingoroom/internal/session"
)

// BotCmd fills a room with automated players
type BotCmd struct {
	Invite  string `arg:"" help:"Room id or invite link"`
	Count   int    `default:"1" help:"Number of bots to add"`
	Prefix  string `default:"bot" help:"Prefix for generated bot names"`
	Seed    *int64 `help:"Deterministic RNG seed (optional)"`
	LogJSON bool   `help:"Output JSON logs instead of console format"`
}

func (c *BotCmd) Run(flags *commands.GlobalFlags) error {
	if c.Count < 1 {
		return fmt.Errorf("count must be positive")
	}
	roomID, err := session.ParseInvite(c.Invite)
	if err != nil {
		return err
	}

	cfg, err := commands.LoadConfig(flags)
	if err != nil {
		return err
	}

	logger := createBotLogger(os.Stderr, cfg.Client.LogLevel, c.LogJSON)
	sessionLogger := shared.SetupLogger(os.Stderr, cfg.Client.LogLevel, false)

	ctx, cancel := shared.SetupSignalHandlerWithLogger(sessionLogger)
	defer cancel()

	wsClient := client.NewClient(cfg.Client.URL, sessionLogger, client.WithRequestTimeout(cfg.RequestTimeout()))
	connectCtx, connectCancel := context.WithTimeout(ctx, cfg.RequestTimeout())
	defer connectCancel()
	if err := wsClient.Connect(connectCtx); err != nil {
		return fmt.Errorf("failed to connect to server: %w", err)
	}
	defer func() { _ = wsClient.Close() }()

	rng, seed := randutil.FromOptionalSeed(c.Seed)
	logger.Info().Int64("seed", seed).Str("room", roomID).Int("count", c.Count).Msg("Starting bots")

	rooms := room.NewSync(wsClient, sessionLogger)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < c.Count; i++ {
		b := bot.New(rooms, randutil.Split(rng),
			bot.WithPrefix(c.Prefix),
			bot.WithLogger(logger),
			bot.WithSessionLogger(sessionLogger),
		)
		if err := b.Join(gctx, roomID); err != nil {
			cancel()
			_ = g.Wait()
			return fmt.Errorf("%s failed to join room %s: %w", b.Name(), roomID, err)
		}
		g.Go(func() error { return b.Run(gctx) })
	}

	err = g.Wait()
	logger.Info().Msg("Bots stopped")
	return err
}

func createBotLogger(w io.Writer, level string, jsonFormat bool) zerolog.Logger {
	zLevel, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		zLevel = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if jsonFormat {
		zerolog.TimeFieldFormat = time.RFC3339Nano
		logger = zerolog.New(w)
	} else {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen})
	}

	return logger.Level(zLevel).With().Timestamp().Logger()
}

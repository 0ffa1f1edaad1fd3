package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lox/bingoroom/cmd/bingoroom/shared"
	"github.com/lox/bingoroom/internal/client/commands"
	"github.com/lox/bingoroom/internal/config"
	"github.com/lox/bingoroom/internal/room"
	"github.com/lox/bingoroom/internal/server"
	"github.com/lox/bingoroom/internal/store"
)

// ServeCmd runs the record server that rooms live in
type ServeCmd struct {
	Addr  string `help:"Listen address, e.g. ':8080' (overrides config)"`
	Debug bool   `help:"Enable debug logging"`
	JSON  bool   `help:"Log as JSON"`
}

func (c *ServeCmd) Run(flags *commands.GlobalFlags) error {
	cfg, err := config.LoadConfig(flags.Config)
	if err != nil {
		return fmt.Errorf("error loading config: %w", err)
	}
	if flags.LogLevel != "" {
		cfg.Server.LogLevel = flags.LogLevel
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger := shared.SetupLogger(os.Stderr, cfg.Server.LogLevel, c.Debug)
	if c.JSON {
		logger = shared.SetupStructuredLogger(os.Stderr, cfg.Server.LogLevel, c.Debug)
	}

	addr := c.Addr
	if addr == "" {
		addr = cfg.GetServerAddress()
	}

	schema, err := room.CompileSchema()
	if err != nil {
		return fmt.Errorf("room schema: %w", err)
	}
	mem := store.NewMemory(logger, store.WithValidator(room.Collection, schema.ValidateRecord))
	defer func() { _ = mem.Close() }()

	srv := server.NewServer(addr, mem, logger)
	logger.Info("Starting bingoroom server", "address", addr, "version", version)

	ctx, cancel := shared.SetupSignalHandlerWithLogger(logger)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.Start)
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

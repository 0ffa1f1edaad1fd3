// Package commands implements the interactive client commands: hosting a
// room, joining one and setting the display name.
package commands

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/lox/bingoroom/internal/client"
	"github.com/lox/bingoroom/internal/config"
	"github.com/lox/bingoroom/internal/identity"
	"github.com/lox/bingoroom/internal/session"
)

// GlobalFlags holds common configuration for all commands
type GlobalFlags struct {
	Config   string `short:"c" long:"config" default:"bingoroom.hcl" help:"Path to HCL configuration file"`
	Server   string `short:"s" long:"server" help:"Server URL to connect to (overrides config)"`
	Name     string `short:"n" long:"name" help:"Display name (overrides config and saved identity)"`
	LogLevel string `short:"l" long:"log-level" help:"Log level (overrides config)"`
	LogFile  string `long:"log-file" help:"Log file path (overrides config)"`
	Identity string `long:"identity" help:"Identity file path (defaults to the user config directory)"`
}

// Env is everything a connected client command needs
type Env struct {
	Client   *client.Client
	Config   *config.Config
	Logger   *log.Logger
	Identity session.Identity
}

// LoadConfig loads the configuration file and applies command line overrides
func LoadConfig(flags *GlobalFlags) (*config.Config, error) {
	cfg, err := config.LoadConfig(flags.Config)
	if err != nil {
		return nil, fmt.Errorf("error loading config: %w", err)
	}

	if flags.Server != "" {
		cfg.Client.URL = flags.Server
	}
	if flags.Name != "" {
		cfg.Client.Name = flags.Name
	}
	if flags.LogLevel != "" {
		cfg.Client.LogLevel = flags.LogLevel
	}
	if flags.LogFile != "" {
		cfg.Client.LogFile = flags.LogFile
	}
	if flags.Identity != "" {
		cfg.Client.IdentityFile = flags.Identity
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// NewLogger creates a logger at the named level
func NewLogger(w io.Writer, level string) *log.Logger {
	logger := log.New(w)
	lvl, err := log.ParseLevel(level)
	if err != nil {
		lvl = log.WarnLevel // Default to warn to reduce noise
	}
	logger.SetLevel(lvl)
	return logger
}

// identityPath returns the configured identity file or the default one
func identityPath(cfg *config.Config) (string, error) {
	if cfg.Client.IdentityFile != "" {
		return cfg.Client.IdentityFile, nil
	}
	return identity.DefaultPath()
}

// resolveIdentity loads the saved identity and settles its display name,
// prompting on in when none is known yet
func resolveIdentity(cfg *config.Config, in io.Reader, out io.Writer) (session.Identity, error) {
	path, err := identityPath(cfg)
	if err != nil {
		return session.Identity{}, fmt.Errorf("identity: %w", err)
	}

	id, err := identity.Load(path)
	if err != nil {
		return session.Identity{}, err
	}

	name := cfg.Client.Name
	if name == "" && id.Name == "" {
		_, _ = fmt.Fprint(out, "Enter your name: ")
		line, _ := bufio.NewReader(in).ReadString('\n')
		name = strings.TrimSpace(line)
	}
	if name == "" {
		if id.Name == "" {
			return session.Identity{}, identity.ErrNameRequired
		}
		return id, nil
	}
	return identity.SetName(path, name)
}

// Setup loads configuration and identity, opens the log file and connects
// to the server. The TUI owns the terminal, so logs go to the file.
func Setup(ctx context.Context, flags *GlobalFlags) (*Env, func(), error) {
	cfg, err := LoadConfig(flags)
	if err != nil {
		return nil, nil, err
	}

	id, err := resolveIdentity(cfg, os.Stdin, os.Stdout)
	if err != nil {
		return nil, nil, err
	}

	// Setup logging to file (overwrite each time)
	logFile, err := os.OpenFile(cfg.Client.LogFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open log file: %w", err)
	}
	logger := NewLogger(logFile, cfg.Client.LogLevel)

	wsClient := client.NewClient(cfg.Client.URL, logger, client.WithRequestTimeout(cfg.RequestTimeout()))
	connectCtx, cancel := context.WithTimeout(ctx, cfg.RequestTimeout())
	defer cancel()
	if err := wsClient.Connect(connectCtx); err != nil {
		_ = logFile.Close()
		return nil, nil, fmt.Errorf("failed to connect to server: %w", err)
	}

	cleanup := func() {
		_ = wsClient.Close()
		_ = logFile.Close()
	}

	return &Env{Client: wsClient, Config: cfg, Logger: logger, Identity: id}, cleanup, nil
}

// inviteBase is where invite links point
func (e *Env) inviteBase() string {
	if e.Config.Game.InviteBaseURL != "" {
		return e.Config.Game.InviteBaseURL
	}
	return e.Config.Client.URL
}

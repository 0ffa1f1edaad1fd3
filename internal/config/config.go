// Package config loads bingoroom settings from an HCL file.
//
//	server {
//	  address   = "0.0.0.0"
//	  port      = 8080
//	  log_level = "info"
//	}
//
//	game {
//	  mode              = "classic"
//	  card_options      = 5
//	  auto_call_seconds = 5
//	}
//
//	client {
//	  url  = "http://localhost:8080"
//	  name = "Ann"
//	}
//
// Every block and attribute is optional.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"github.com/lox/bingoroom/bingo"
	"github.com/lox/bingoroom/internal/session"
)

// Config represents the complete configuration
type Config struct {
	Server *ServerSettings `hcl:"server,block"`
	Game   *GameSettings   `hcl:"game,block"`
	Client *ClientSettings `hcl:"client,block"`
}

// ServerSettings contains record server configuration
type ServerSettings struct {
	Address  string `hcl:"address,optional"`
	Port     int    `hcl:"port,optional"`
	LogLevel string `hcl:"log_level,optional"`
	LogFile  string `hcl:"log_file,optional"`
}

// GameSettings contains game rules applied by hosting sessions
type GameSettings struct {
	Mode            string `hcl:"mode,optional"`
	CardOptions     int    `hcl:"card_options,optional"`
	AutoCallSeconds int    `hcl:"auto_call_seconds,optional"`
	InviteBaseURL   string `hcl:"invite_base_url,optional"`
}

// ClientSettings contains terminal client configuration
type ClientSettings struct {
	URL            string `hcl:"url,optional"`
	Name           string `hcl:"name,optional"`
	IdentityFile   string `hcl:"identity_file,optional"`
	RequestTimeout int    `hcl:"request_timeout,optional"`
	LogLevel       string `hcl:"log_level,optional"`
	LogFile        string `hcl:"log_file,optional"`
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	game := session.DefaultConfig()
	return &Config{
		Server: &ServerSettings{
			Address:  "localhost",
			Port:     8080,
			LogLevel: "info",
		},
		Game: &GameSettings{
			Mode:            string(bingo.Classic),
			CardOptions:     game.CardOptions,
			AutoCallSeconds: int(game.AutoCallInterval / time.Second),
		},
		Client: &ClientSettings{
			URL:            "http://localhost:8080",
			RequestTimeout: 30,
			LogLevel:       "warn",
			LogFile:        "bingoroom.log",
		},
	}
}

// LoadConfig loads configuration from an HCL file. A missing file yields
// the defaults.
func LoadConfig(filename string) (*Config, error) {
	if _, err := os.Stat(filename); errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file: %s", diags.Error())
	}

	var config Config
	diags = gohcl.DecodeBody(file.Body, nil, &config)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL: %s", diags.Error())
	}

	config.applyDefaults()
	return &config, nil
}

// applyDefaults fills in missing blocks and zero values
func (c *Config) applyDefaults() {
	defaults := DefaultConfig()

	if c.Server == nil {
		c.Server = defaults.Server
	}
	if c.Server.Address == "" {
		c.Server.Address = defaults.Server.Address
	}
	if c.Server.Port == 0 {
		c.Server.Port = defaults.Server.Port
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = defaults.Server.LogLevel
	}

	if c.Game == nil {
		c.Game = defaults.Game
	}
	if c.Game.Mode == "" {
		c.Game.Mode = defaults.Game.Mode
	}
	if c.Game.CardOptions == 0 {
		c.Game.CardOptions = defaults.Game.CardOptions
	}
	if c.Game.AutoCallSeconds == 0 {
		c.Game.AutoCallSeconds = defaults.Game.AutoCallSeconds
	}

	if c.Client == nil {
		c.Client = defaults.Client
	}
	if c.Client.URL == "" {
		c.Client.URL = defaults.Client.URL
	}
	if c.Client.RequestTimeout == 0 {
		c.Client.RequestTimeout = defaults.Client.RequestTimeout
	}
	if c.Client.LogLevel == "" {
		c.Client.LogLevel = defaults.Client.LogLevel
	}
	if c.Client.LogFile == "" {
		c.Client.LogFile = defaults.Client.LogFile
	}
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}
	if !validLogLevels[c.Server.LogLevel] {
		return fmt.Errorf("server: invalid log level: %s", c.Server.LogLevel)
	}

	if _, err := bingo.ParseMode(c.Game.Mode); err != nil {
		return fmt.Errorf("game: %w", err)
	}
	if c.Game.CardOptions < 1 || c.Game.CardOptions > 10 {
		return fmt.Errorf("game: card options must be between 1 and 10")
	}
	if c.Game.AutoCallSeconds < 1 {
		return fmt.Errorf("game: auto call interval must be positive")
	}

	if c.Client.URL == "" {
		return fmt.Errorf("client: server URL is required")
	}
	if c.Client.RequestTimeout <= 0 {
		return fmt.Errorf("client: request timeout must be positive")
	}
	if !validLogLevels[c.Client.LogLevel] {
		return fmt.Errorf("client: invalid log level: %s", c.Client.LogLevel)
	}

	return nil
}

// GetServerAddress returns the full listen address
func (c *Config) GetServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Address, c.Server.Port)
}

// GameMode returns the configured default mode
func (c *Config) GameMode() bingo.Mode {
	mode, err := bingo.ParseMode(c.Game.Mode)
	if err != nil {
		return bingo.Classic
	}
	return mode
}

// SessionConfig returns the session settings derived from the game block
func (c *Config) SessionConfig() session.Config {
	cfg := session.DefaultConfig()
	cfg.CardOptions = c.Game.CardOptions
	cfg.AutoCallInterval = time.Duration(c.Game.AutoCallSeconds) * time.Second
	return cfg
}

// RequestTimeout returns the client request timeout
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Client.RequestTimeout) * time.Second
}

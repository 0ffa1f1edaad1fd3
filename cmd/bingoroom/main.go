package main

import (
	"github.com/alecthomas/kong"

	"github.com/lox/bingoroom/internal/client/commands"
)

// version is set by ldflags during build
var version = "dev"

type CLI struct {
	commands.GlobalFlags `embed:""`

	Version kong.VersionFlag     `short:"v" help:"Show version"`
	Serve   ServeCmd             `cmd:"" help:"Run the room server"`
	Host    commands.HostCommand `cmd:"" help:"Create a room and host it"`
	Join    commands.JoinCommand `cmd:"" help:"Join a room by id or invite link"`
	SetName commands.NameCommand `cmd:"" name:"name" help:"Set your display name"`
	Bot     BotCmd               `cmd:"" help:"Add automated players to a room"`
	Card    CardCmd              `cmd:"" help:"Print bingo cards"`
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("bingoroom"),
		kong.Description("Multiplayer bingo rooms in the terminal"),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{
			Compact: true,
		}),
		kong.Vars{
			"version": version,
		},
		kong.Bind(&cli.GlobalFlags),
	)
	err := ctx.Run()
	ctx.FatalIfErrorf(err)
}

package commands

import (
	"fmt"

	"github.com/lox/bingoroom/internal/identity"
)

// NameCommand saves the display name used in future rooms
type NameCommand struct {
	Name string `arg:"" help:"New display name"`
}

func (cmd *NameCommand) Run(flags *GlobalFlags) error {
	cfg, err := LoadConfig(flags)
	if err != nil {
		return err
	}
	path, err := identityPath(cfg)
	if err != nil {
		return err
	}

	id, err := identity.SetName(path, cmd.Name)
	if err != nil {
		return err
	}
	fmt.Printf("Name set to %s (id %s)\n", id.Name, id.ID)
	return nil
}

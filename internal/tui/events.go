package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/lox/bingoroom/internal/session"
)

// changeMsg reports that the session applied a new room snapshot
type changeMsg struct{}

// winMsg reports that the room moved into ENDED
type winMsg struct {
	winner string
}

// Events carries session hooks into the Bubble Tea loop. Hooks fire on
// store goroutines and never block: repeated changes collapse into one
// pending notification.
type Events struct {
	changes chan struct{}
	wins    chan string
}

// NewEvents creates an unattached event bridge
func NewEvents() *Events {
	return &Events{
		changes: make(chan struct{}, 1),
		wins:    make(chan string, 8),
	}
}

// Hooks returns cfg with OnChange and OnWin routed through e
func (e *Events) Hooks(cfg session.Config) session.Config {
	cfg.OnChange = e.changed
	cfg.OnWin = e.won
	return cfg
}

func (e *Events) changed() {
	select {
	case e.changes <- struct{}{}:
	default:
	}
}

func (e *Events) won(winner string) {
	select {
	case e.wins <- winner:
	default:
	}
	e.changed()
}

// listenForChange returns a command that waits for the next snapshot
func (e *Events) listenForChange() tea.Cmd {
	return func() tea.Msg {
		<-e.changes
		return changeMsg{}
	}
}

// listenForWin returns a command that waits for the next win
func (e *Events) listenForWin() tea.Cmd {
	return func() tea.Msg {
		return winMsg{winner: <-e.wins}
	}
}

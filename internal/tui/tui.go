// Package tui is the terminal front end for a bingo session.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"

	"github.com/lox/bingoroom/bingo"
	"github.com/lox/bingoroom/internal/room"
	"github.com/lox/bingoroom/internal/session"
)

const (
	paneCard  = 0
	paneInput = 1

	requestTimeout = 10 * time.Second
)

// TUIModel represents the Bubble Tea model for one bingo session
type TUIModel struct {
	session    *session.Session
	events     *Events
	logger     *log.Logger
	inviteBase string

	// UI components
	logViewport viewport.Model
	input       textinput.Model

	// State
	view        session.View
	gameLog     []string
	seenChat    map[string]bool
	cursor      int
	option      int
	focusedPane int
	notice      string
	noticeErr   bool
	quitting    bool

	// Dimensions
	width  int
	height int
}

// resultMsg carries the outcome of a session action run off the UI loop
type resultMsg struct {
	notice string
	err    error
}

// NewTUIModel creates a model over s. events must be the bridge whose hooks
// were installed in the session's config. inviteBase is the URL invite
// links are built from.
func NewTUIModel(s *session.Session, events *Events, logger *log.Logger, inviteBase string) *TUIModel {
	vp := viewport.New(10, 5)
	vp.SetContent("")

	ti := textinput.New()
	ti.Placeholder = "Type to chat, /help for commands"
	ti.CharLimit = 200
	ti.Width = 100
	ti.PromptStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#04B575")).Bold(true)
	ti.TextStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FAFAFA"))
	ti.Prompt = "> "

	m := &TUIModel{
		session:     s,
		events:      events,
		logger:      logger.WithPrefix("tui"),
		inviteBase:  inviteBase,
		logViewport: vp,
		input:       ti,
		seenChat:    map[string]bool{},
		cursor:      bingo.FreeIndex,
		focusedPane: paneCard,
	}
	m.refresh()
	if m.view.RoomID != "" {
		m.AddLogEntry(fmt.Sprintf("Room %s • invite: %s", m.view.RoomID, session.InviteLink(inviteBase, m.view.RoomID)))
	}
	return m
}

// Init initializes the TUI model
func (m *TUIModel) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, m.events.listenForChange(), m.events.listenForWin())
}

// Update handles messages in the TUI
func (m *TUIModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case changeMsg:
		m.refresh()
		return m, m.events.listenForChange()

	case winMsg:
		m.refresh()
		m.AddBoldLogEntry(m.winLine(msg.winner))
		return m, m.events.listenForWin()

	case resultMsg:
		m.setNotice(msg.notice, msg.err)
		return m, nil

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.logger.Debug("Updating dimensions", "width", m.width, "height", m.height)

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Sequence(tea.ClearScreen, tea.Quit)
		case "tab":
			m.toggleFocus()
			return m, nil
		}
		if m.focusedPane == paneCard {
			return m, m.handleCardKey(msg)
		}
		if msg.String() == "enter" {
			input := strings.TrimSpace(m.input.Value())
			m.input.SetValue("")
			return m, m.Execute(input)
		}
	}

	if m.focusedPane == paneInput {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		cmds = append(cmds, cmd)
	}

	var cmd tea.Cmd
	m.logViewport, cmd = m.logViewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

func (m *TUIModel) toggleFocus() {
	if m.focusedPane == paneCard {
		m.focusedPane = paneInput
		m.input.Focus()
	} else {
		m.focusedPane = paneCard
		m.input.Blur()
	}
}

// handleCardKey moves the cursor, marks cells and picks cards
func (m *TUIModel) handleCardKey(msg tea.KeyMsg) tea.Cmd {
	if m.view.State == session.StateSelectingCard {
		switch msg.String() {
		case "left", "h":
			m.option = (m.option + len(m.view.Options) - 1) % max(len(m.view.Options), 1)
		case "right", "l":
			m.option = (m.option + 1) % max(len(m.view.Options), 1)
		case "enter", " ":
			m.pick(m.option)
		default:
			if n, err := strconv.Atoi(msg.String()); err == nil {
				m.pick(n - 1)
			}
		}
		return nil
	}

	row, col := m.cursor/bingo.Size, m.cursor%bingo.Size
	switch msg.String() {
	case "up", "k":
		row = (row + bingo.Size - 1) % bingo.Size
	case "down", "j":
		row = (row + 1) % bingo.Size
	case "left", "h":
		col = (col + bingo.Size - 1) % bingo.Size
	case "right", "l":
		col = (col + 1) % bingo.Size
	case " ", "enter", "x":
		m.mark(m.cursor)
		return nil
	case "c":
		return m.Execute("/call")
	case "b":
		return m.Execute("/bingo")
	case "a":
		return m.Execute("/auto")
	case "r":
		return m.Execute("/restart")
	case "/":
		m.toggleFocus()
		m.input.SetValue("/")
		m.input.CursorEnd()
		return nil
	}
	m.cursor = row*bingo.Size + col
	return nil
}

// Execute runs one line of input. Lines starting with "/" are commands,
// anything else is sent as chat. Local actions apply immediately; actions
// that write to the room run as a command.
func (m *TUIModel) Execute(input string) tea.Cmd {
	if input == "" {
		return nil
	}
	if !strings.HasPrefix(input, "/") {
		return m.run(func(ctx context.Context) (string, error) {
			return "", m.session.SendChat(ctx, input)
		})
	}

	fields := strings.Fields(strings.ToLower(input[1:]))
	if len(fields) == 0 {
		return nil
	}
	name, args := fields[0], fields[1:]

	switch name {
	case "call", "c":
		return m.run(func(ctx context.Context) (string, error) {
			n, err := m.session.CallNext(ctx)
			if err != nil {
				return "", err
			}
			return "Called " + bingo.Label(n), nil
		})

	case "auto", "a":
		if m.session.AutoCalling() {
			m.session.StopAutoCall()
			m.setNotice("Auto-call off", nil)
		} else {
			m.setNotice("Auto-call on", m.session.StartAutoCall())
		}

	case "mark", "m":
		if len(args) != 1 {
			m.setNotice("", errors.New("usage: /mark <number>"))
			return nil
		}
		i, err := m.cellFor(args[0])
		if err != nil {
			m.setNotice("", err)
			return nil
		}
		m.cursor = i
		m.mark(i)

	case "bingo", "claim", "b":
		return m.run(func(ctx context.Context) (string, error) {
			if _, err := m.session.ClaimWin(ctx); err != nil {
				return "", err
			}
			return "Claim accepted", nil
		})

	case "restart", "r":
		return m.run(func(ctx context.Context) (string, error) {
			return "New game", m.session.Restart(ctx)
		})

	case "pick", "p":
		if len(args) != 1 {
			m.setNotice("", errors.New("usage: /pick <n>"))
			return nil
		}
		n, err := strconv.Atoi(args[0])
		if err != nil {
			m.setNotice("", fmt.Errorf("not a card number: %s", args[0]))
			return nil
		}
		m.pick(n - 1)

	case "invite":
		m.AddLogEntry("Invite: " + session.InviteLink(m.inviteBase, m.view.RoomID))

	case "help", "h", "?":
		m.AddLogEntry(InfoStyle.Render("/call /auto /mark <n> /bingo /restart /pick <n> /invite /quit • plain text chats"))

	case "quit", "q":
		m.quitting = true
		return tea.Sequence(tea.ClearScreen, tea.Quit)

	default:
		m.setNotice("", fmt.Errorf("unknown command: /%s", name))
	}
	return nil
}

// run executes fn off the UI loop and reports its result
func (m *TUIModel) run(fn func(ctx context.Context) (string, error)) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		notice, err := fn(ctx)
		return resultMsg{notice: notice, err: err}
	}
}

func (m *TUIModel) mark(i int) {
	if err := m.session.ToggleMark(i); err != nil {
		m.setNotice("", err)
		return
	}
	m.refresh()
	m.notice = ""
}

func (m *TUIModel) pick(i int) {
	if err := m.session.ChooseCard(i); err != nil {
		m.setNotice("", err)
		return
	}
	m.option = 0
	m.refresh()
	m.setNotice(fmt.Sprintf("Playing card %d", i+1), nil)
}

// cellFor resolves "7", "B7" or "B-7" to the cell holding that number
func (m *TUIModel) cellFor(arg string) (int, error) {
	arg = strings.TrimLeft(strings.ToUpper(arg), "BINGO-")
	n, err := strconv.Atoi(arg)
	if err != nil {
		return -1, fmt.Errorf("not a number: %s", arg)
	}
	i := m.view.Card.Index(n)
	if i < 0 {
		return -1, fmt.Errorf("%d is not on your card", n)
	}
	return i, nil
}

func (m *TUIModel) setNotice(notice string, err error) {
	if err != nil {
		m.notice = m.describe(err)
		m.noticeErr = true
		return
	}
	m.notice = notice
	m.noticeErr = false
}

// describe turns session errors into player-facing text
func (m *TUIModel) describe(err error) string {
	switch {
	case errors.Is(err, bingo.ErrCallExhausted):
		return "All numbers have been called"
	case errors.Is(err, session.ErrInvalidClaim):
		return "Not a valid " + strings.TrimSuffix(m.view.Mode.Shout(), "!") + " yet"
	case errors.Is(err, room.ErrSyncFailure):
		m.logger.Warn("Room update failed", "error", err)
		return "Could not reach the room, try again"
	}
	return err.Error()
}

func (m *TUIModel) winLine(winner string) string {
	if banner := m.view.Banner(); banner != "" {
		return fmt.Sprintf("%s  %s", m.view.WinnerMessage(), banner)
	}
	return fmt.Sprintf("%s: %s", winner, m.view.Mode.Shout())
}

// refresh pulls a new view from the session and logs what changed
func (m *TUIModel) refresh() {
	prev := m.view
	next := m.session.View()
	m.view = next

	if prev.RoomID == "" {
		for _, msg := range next.Chat {
			m.seenChat[msg.ID] = true
		}
	}

	known := map[string]bool{}
	for _, p := range prev.Players {
		known[p.ID] = true
	}
	for _, p := range next.Players {
		if prev.RoomID != "" && !known[p.ID] {
			m.AddLogEntry(PlayerInfoStyle.Render(p.Name + " joined"))
		}
	}

	switch {
	case len(next.Called) > len(prev.Called):
		for _, n := range next.Called[len(prev.Called):] {
			m.AddLogEntry(LastCalledStyle.Render("Called " + bingo.Label(n)))
		}
	case len(next.Called) < len(prev.Called) && next.Shared != room.StateEnded:
		m.AddLogEntry(SuccessStyle.Render("New game started"))
	}

	if next.State == session.StateSelectingCard && prev.State != session.StateSelectingCard {
		m.option = 0
		m.AddLogEntry(WarningStyle.Render(fmt.Sprintf("Choose one of %d cards", len(next.Options))))
	}

	for _, msg := range next.Chat {
		if m.seenChat[msg.ID] {
			continue
		}
		m.seenChat[msg.ID] = true
		m.AddLogEntry(fmt.Sprintf("%s: %s", msg.Sender, msg.Text))
	}
}

// View renders the TUI
func (m *TUIModel) View() string {
	if m.quitting {
		return ""
	}

	// Don't render until we have valid dimensions
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	actionContent := m.renderActionPane()
	actionHeight := lipgloss.Height(actionContent)
	actionStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(m.borderColor(paneInput)).
		Width(max(m.width-2, 1))
	actionPane := actionStyle.Render(actionContent)

	cardContent := m.renderCardPane()
	cardStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(m.borderColor(paneCard)).
		Padding(0, 1)
	cardPane := cardStyle.Render(cardContent)

	sidebarStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#626262")).
		Width(max(m.width-lipgloss.Width(cardPane)-2, 1)).
		Height(max(lipgloss.Height(cardPane)-2, 1))
	sidebarPane := sidebarStyle.Render(m.renderSidebarPane())

	topRow := lipgloss.JoinHorizontal(lipgloss.Top, cardPane, sidebarPane)

	m.logViewport.Width = max(m.width-2, 1)
	m.logViewport.Height = max(m.height-lipgloss.Height(topRow)-actionHeight-4, 1)
	m.logViewport.SetContent(strings.Join(m.gameLog, "\n"))
	m.logViewport.GotoBottom()

	logStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(lipgloss.Color("#626262"))
	logPane := logStyle.Render(m.logViewport.View())

	return lipgloss.JoinVertical(lipgloss.Left, topRow, logPane, actionPane)
}

func (m *TUIModel) borderColor(pane int) lipgloss.Color {
	if m.focusedPane == pane {
		return lipgloss.Color("#04B575")
	}
	return lipgloss.Color("#626262")
}

// renderCardPane shows the card in play, the choices on offer or the banner
func (m *TUIModel) renderCardPane() string {
	v := m.view
	switch v.State {
	case session.StateSelectingCard:
		return renderOptions(v, m.option)
	case session.StateLobby:
		return InfoStyle.Render("Not in a room")
	}

	cursor := -1
	if m.focusedPane == paneCard && v.State == session.StatePlaying {
		cursor = m.cursor
	}
	parts := []string{
		renderCard(v.Card, v, cursor),
		InfoStyle.Render(fmt.Sprintf("Marked %d/%d", v.Card.MarkedCount(), bingo.Cells)),
	}
	if banner := v.Banner(); banner != "" {
		parts = append(parts, "", WinningCellStyle.Render(" "+banner+" "))
	}
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

// renderSidebarPane shows the room, the last call and the players
func (m *TUIModel) renderSidebarPane() string {
	v := m.view
	var content strings.Builder

	content.WriteString(HeaderStyle.Render(fmt.Sprintf(" %s ", v.Mode)))
	content.WriteString(" ")
	content.WriteString(InfoStyle.Render("Room " + v.RoomID))
	content.WriteString("\n\n")

	if v.LastCalled != 0 {
		content.WriteString(LastCalledStyle.Render("Last: " + bingo.Label(v.LastCalled)))
	} else {
		content.WriteString(InfoStyle.Render("No numbers called"))
	}
	content.WriteString(InfoStyle.Render(fmt.Sprintf("  (%d left)", bingo.Remaining(v.Called))))
	content.WriteString("\n")
	if v.AutoCalling {
		content.WriteString(SuccessStyle.Render("Auto-calling"))
		content.WriteString("\n")
	}
	content.WriteString("\n")

	content.WriteString(InfoStyle.Render("Players:"))
	content.WriteString("\n")
	for _, p := range v.Players {
		line := "  " + p.Name
		if p.IsHost {
			line += " (host)"
		}
		if p.ID == v.Self.ID {
			line += " ← you"
		}
		content.WriteString(PlayerInfoStyle.Render(line))
		content.WriteString("\n")
	}

	return content.String()
}

// renderActionPane shows the notice line, the input and key help
func (m *TUIModel) renderActionPane() string {
	var content strings.Builder

	switch {
	case m.notice != "" && m.noticeErr:
		content.WriteString(ErrorStyle.Render(m.notice))
	case m.notice != "":
		content.WriteString(SuccessStyle.Render(m.notice))
	default:
		content.WriteString(InfoStyle.Render(m.statusLine()))
	}
	content.WriteString("\n")
	content.WriteString(m.input.View())
	content.WriteString("\n")

	help := "Tab to chat • ↑↓←→ move • Space mark • b bingo • Ctrl+C quit"
	if m.view.IsHost {
		help = "Tab to chat • ↑↓←→ move • Space mark • c call • a auto • b bingo • r restart • Ctrl+C quit"
	}
	if m.focusedPane == paneInput {
		help = "Tab to card • Enter to send • /help for commands • Ctrl+C quit"
	}
	content.WriteString(InfoStyle.Render(help))

	return content.String()
}

func (m *TUIModel) statusLine() string {
	v := m.view
	switch {
	case v.State == session.StateEnded:
		if v.IsHost {
			return "Game over. Press r to start a new game"
		}
		return "Game over. Waiting for the host to restart"
	case v.ClaimPending:
		return "Checking your claim..."
	case v.State == session.StateSelectingCard:
		return "Pick a card to start playing"
	case v.IsHost:
		return "You are the host. Press c to call a number"
	default:
		return "Waiting for the host to call numbers"
	}
}

// AddLogEntry adds an entry to the game log
func (m *TUIModel) AddLogEntry(entry string) {
	m.gameLog = append(m.gameLog, entry)
}

// AddBoldLogEntry adds a highlighted entry to the game log
func (m *TUIModel) AddBoldLogEntry(entry string) {
	m.gameLog = append(m.gameLog, WinningCellStyle.Render(" "+entry+" "))
}

// GameLog returns a copy of the log entries
func (m *TUIModel) GameLog() []string {
	out := make([]string, len(m.gameLog))
	copy(out, m.gameLog)
	return out
}

// Notice returns the current status notice and whether it is an error
func (m *TUIModel) Notice() (string, bool) {
	return m.notice, m.noticeErr
}

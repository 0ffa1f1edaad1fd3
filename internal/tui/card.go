package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/lox/bingoroom/bingo"
	"github.com/lox/bingoroom/internal/session"
)

const cellWidth = 6

// renderCard draws the card grid under a B I N G O header. cursor is the
// highlighted cell, or -1 for none.
func renderCard(card bingo.Card, v session.View, cursor int) string {
	var b strings.Builder

	header := make([]string, bingo.Size)
	for col, r := range bingo.Ranges {
		header[col] = ColumnHeaderStyle.Render(center(r.Letter, cellWidth))
	}
	b.WriteString(strings.Join(header, ""))
	b.WriteString("\n")

	for row := 0; row < bingo.Size; row++ {
		cells := make([]string, bingo.Size)
		for col := 0; col < bingo.Size; col++ {
			i := row*bingo.Size + col
			cells[col] = renderCell(card[i], v, i == cursor)
		}
		b.WriteString(strings.Join(cells, ""))
		if row < bingo.Size-1 {
			b.WriteString("\n")
		}
	}
	return b.String()
}

func renderCell(cell bingo.Cell, v session.View, focused bool) string {
	text := center(cell.String(), cellWidth)
	if cell.Marked && !cell.Free {
		text = center("*"+cell.String(), cellWidth)
	}

	style := CellStyle
	switch {
	case cell.Winning:
		style = WinningCellStyle
	case cell.Marked:
		style = MarkedCellStyle
	case v.IsCalled(cell.Value):
		style = CalledCellStyle
	}
	if focused {
		style = style.Inherit(CursorStyle)
	}
	return style.Render(text)
}

// renderOptions draws the card on offer with its position among the choices
func renderOptions(v session.View, selected int) string {
	if len(v.Options) == 0 {
		return ""
	}
	if selected < 0 || selected >= len(v.Options) {
		selected = 0
	}
	title := WarningStyle.Render(fmt.Sprintf("Choose a card (%d of %d)", selected+1, len(v.Options)))
	hint := InfoStyle.Render("←/→ browse • Enter to pick")
	return lipgloss.JoinVertical(lipgloss.Left, title, "", renderCard(v.Options[selected], v, -1), "", hint)
}

func center(s string, width int) string {
	pad := width - lipgloss.Width(s)
	if pad <= 0 {
		return s
	}
	left := pad / 2
	return strings.Repeat(" ", left) + s + strings.Repeat(" ", pad-left)
}

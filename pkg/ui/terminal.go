// Package ui holds the plain terminal output of the CLI: colours, the
// console progress reporter, run summaries and desktop notifications.
package ui

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
)

const ASCIILogo = `
  ╦╔═╗  ╔═╗╦  ╦╔═╗╔╗╔╔╦╗╔═╗
  ║║ ╦  ║╣ ╚╗╔╝║╣ ║║║ ║ ╚═╗
  ╩╚═╝  ╚═╝ ╚╝ ╚═╝╝╚╝ ╩ ╚═╝
  poster scraping · OCR · event calendar
`

// Out is where the Print helpers write.
var Out io.Writer = os.Stdout

// ANSI colours. Styles render plain text when Out is not a terminal.
var (
	Cyan    = paint(lipgloss.NewStyle().Foreground(lipgloss.Color("6")))
	Yellow  = paint(lipgloss.NewStyle().Foreground(lipgloss.Color("3")))
	Red     = paint(lipgloss.NewStyle().Foreground(lipgloss.Color("1")))
	Green   = paint(lipgloss.NewStyle().Foreground(lipgloss.Color("2")))
	Magenta = paint(lipgloss.NewStyle().Foreground(lipgloss.Color("5")))
	Dim     = paint(lipgloss.NewStyle().Faint(true))
)

func paint(s lipgloss.Style) func(string) string {
	return func(text string) string { return s.Render(text) }
}

func PrintLogo() {
	fmt.Fprint(Out, Cyan(ASCIILogo))
}

// withCause appends ": cause" to msg when a cause is given.
func withCause(msg string, cause []any) string {
	if len(cause) == 0 {
		return msg
	}
	return fmt.Sprintf("%s: %v", msg, cause[0])
}

func PrintError(msg string, cause ...any) {
	fmt.Fprintln(Out, Red(withCause(msg, cause)))
}

func PrintWarning(msg string, cause ...any) {
	fmt.Fprintln(Out, Yellow(withCause(msg, cause)))
}

func PrintSuccess(msg string) {
	fmt.Fprintln(Out, Green(msg))
}

// PrintInfo prints a "label: value" line.
func PrintInfo(label, value string) {
	fmt.Fprintln(Out, Cyan(label)+": "+Yellow(value))
}

func PrintHighlight(msg string) {
	fmt.Fprintln(Out, Magenta(msg))
}

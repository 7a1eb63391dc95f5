package ui

import (
	"fmt"
	"io"
	"os"
	"strings"
)

type ConsoleStyle int

const (
	StyleNormal ConsoleStyle = iota
	StyleError
	StyleWarning
	StyleSuccess
	StyleInfo
	StyleStage
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
	colorGreen  = "\033[32m"
	colorBlue   = "\033[34m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
)

// Console prints progress lines for the orchestrator. Customer code shares the
// same stdout/stderr, so every line is prefixed to keep it distinguishable.
type Console struct {
	useColors bool
	out       io.Writer
	errOut    io.Writer
}

func NewConsole() *Console {
	return &Console{
		useColors: isTerminal(),
		out:       os.Stdout,
		errOut:    os.Stderr,
	}
}

// NewConsoleWithWriters builds a console without colors that writes to the given writers.
func NewConsoleWithWriters(out, errOut io.Writer) *Console {
	return &Console{out: out, errOut: errOut}
}

func isTerminal() bool {
	stat, err := os.Stderr.Stat()
	if err != nil {
		return false
	}
	return (stat.Mode() & os.ModeCharDevice) != 0
}

func (c *Console) formatMessage(style ConsoleStyle, message string) string {
	if !c.useColors {
		return message
	}

	var color string
	switch style {
	case StyleError:
		color = colorRed + colorBold
	case StyleWarning:
		color = colorYellow
	case StyleSuccess:
		color = colorGreen
	case StyleInfo:
		color = colorBlue
	case StyleStage:
		color = colorCyan + colorBold
	default:
		return message
	}

	return color + message + colorReset
}

func (c *Console) PrintError(message string) {
	fmt.Fprintf(c.errOut, "%s\n", c.formatMessage(StyleError, "Error: "+message))
}

func (c *Console) PrintWarning(message string) {
	fmt.Fprintf(c.errOut, "%s\n", c.formatMessage(StyleWarning, "Warning: "+message))
}

func (c *Console) PrintSuccess(message string) {
	fmt.Fprintf(c.out, "%s\n", c.formatMessage(StyleSuccess, message))
}

func (c *Console) PrintInfo(message string) {
	fmt.Fprintf(c.out, "%s\n", c.formatMessage(StyleInfo, message))
}

// PrintStage announces the start of a numbered pipeline stage.
func (c *Console) PrintStage(number int, name string) {
	fmt.Fprintf(c.out, "%s\n", c.formatMessage(StyleStage, fmt.Sprintf("[jobentry] Stage %d: %s", number, name)))
}

// FormatFailureMessage joins message parts the way they are written to the
// failure artifact, indenting continuation lines for the terminal.
func (c *Console) FormatFailureMessage(parts ...string) string {
	joined := strings.Join(parts, "")
	lines := strings.Split(strings.TrimRight(joined, "\n"), "\n")
	for i := 1; i < len(lines); i++ {
		lines[i] = "  " + lines[i]
	}
	return strings.Join(lines, "\n")
}

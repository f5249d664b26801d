package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
	statusError
)

var statusKinds = map[statusKind]struct {
	label string
	color string
}{
	statusInfo:  {"INFO", "\x1b[34m"},
	statusOK:    {"OK", "\x1b[32m"},
	statusWarn:  {"WARN", "\x1b[33m"},
	statusError: {"ERROR", "\x1b[31m"},
}

const (
	ansiReset        = "\x1b[0m"
	statusLabelWidth = 18
)

func renderStatusLine(label string, kind statusKind, message string, colorize bool) string {
	meta := statusKinds[kind]
	badge := "[" + meta.label + "]"
	if message != "" {
		badge += " " + message
	}
	line := fmt.Sprintf("  %-*s %s", statusLabelWidth, label+":", badge)
	if colorize {
		return meta.color + line + ansiReset
	}
	return line
}

func renderSectionHeader(title string, colorize bool) []string {
	line := "== " + strings.TrimSpace(title) + " =="
	rule := strings.Repeat("-", len(line))
	if colorize {
		color := statusKinds[statusInfo].color
		return []string{color + line + ansiReset, color + rule + ansiReset}
	}
	return []string{line, rule}
}

// shouldColorize reports whether writer is a terminal.
func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"

	"librarian/internal/preflight"
)

type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
	statusError
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
)

var statusStyles = [...]struct {
	tag   string
	color string
}{
	statusInfo:  {"INFO", ansiBlue},
	statusOK:    {"OK", ansiGreen},
	statusWarn:  {"WARN", ansiYellow},
	statusError: {"ERROR", ansiRed},
}

const labelWidth = 20

// statusPrinter writes aligned "label: [TAG] message" lines grouped under
// section headers, colouring them when the writer is a terminal.
type statusPrinter struct {
	out      io.Writer
	color    bool
	sections int
}

func newStatusPrinter(out io.Writer, color bool) *statusPrinter {
	return &statusPrinter{out: out, color: color}
}

func (p *statusPrinter) section(title string) {
	if p.sections > 0 {
		fmt.Fprintln(p.out)
	}
	p.sections++
	heading := "== " + strings.TrimSpace(title) + " =="
	rule := strings.Repeat("-", len(heading))
	fmt.Fprintln(p.out, p.paint(ansiBlue, heading))
	fmt.Fprintln(p.out, p.paint(ansiBlue, rule))
}

func (p *statusPrinter) line(label string, kind statusKind, message string) {
	fmt.Fprintln(p.out, p.format(label, kind, message))
}

func (p *statusPrinter) text(message string) {
	fmt.Fprintln(p.out, message)
}

// checks prints one line per readiness result and a summary naming the
// failures, if any.
func (p *statusPrinter) checks(results []preflight.Result) {
	var failed []string
	for _, result := range results {
		kind := statusOK
		if !result.Passed {
			kind = statusError
			failed = append(failed, result.Name)
		}
		p.line(result.Name, kind, result.Detail)
	}
	if len(failed) > 0 {
		p.line("Failed checks", statusWarn, strings.Join(failed, ", "))
	}
}

func (p *statusPrinter) format(label string, kind statusKind, message string) string {
	style := statusStyles[kind]
	body := "[" + style.tag + "]"
	if message != "" {
		body += " " + message
	}
	return p.paint(style.color, fmt.Sprintf("  %-*s %s", labelWidth, label+":", body))
}

func (p *statusPrinter) paint(color, s string) string {
	if !p.color || color == "" {
		return s
	}
	return color + s + ansiReset
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

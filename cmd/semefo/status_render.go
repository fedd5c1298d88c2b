package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
)

// severity tags one status line.
type severity uint8

const (
	sevInfo severity = iota
	sevOK
	sevWarn
	sevError
)

var severityStyle = map[severity]struct {
	tag   string
	color string
}{
	sevInfo:  {"INFO", "\x1b[34m"},
	sevOK:    {"OK", "\x1b[32m"},
	sevWarn:  {"WARN", "\x1b[33m"},
	sevError: {"ERROR", "\x1b[31m"},
}

const (
	colorReset = "\x1b[0m"
	labelWidth = 22
)

func severityFor(ok bool) severity {
	if ok {
		return sevOK
	}
	return sevError
}

// report accumulates aligned "label: [TAG] message" lines grouped under
// section headers.
type report struct {
	color bool
	lines []string
}

func newReport(w io.Writer) *report {
	return &report{color: isTerminal(w)}
}

func (r *report) section(title string) {
	if len(r.lines) > 0 {
		r.lines = append(r.lines, "")
	}
	header := "== " + strings.TrimSpace(title) + " =="
	rule := strings.Repeat("-", len(header))
	r.lines = append(r.lines, r.paint(severityStyle[sevInfo].color, header), r.paint(severityStyle[sevInfo].color, rule))
}

func (r *report) add(label string, sev severity, message string) {
	style := severityStyle[sev]
	text := "[" + style.tag + "]"
	if message != "" {
		text += " " + message
	}
	r.lines = append(r.lines, r.paint(style.color, fmt.Sprintf("  %-*s %s", labelWidth, label+":", text)))
}

func (r *report) paint(color, s string) string {
	if !r.color {
		return s
	}
	return color + s + colorReset
}

func (r *report) writeTo(w io.Writer) {
	if len(r.lines) == 0 {
		return
	}
	fmt.Fprintln(w, strings.Join(r.lines, "\n"))
}

func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

// Copyright 2026 The sv Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

// SchemaVersion tags every JSON envelope sv emits.
const SchemaVersion = "sv.v1"

// Output accumulates a command's result for either rendering mode:
// structured human sections or a single JSON envelope.
type Output struct {
	command   string
	header    string
	data      any
	summary   []summaryRow
	details   []string
	warnings  []string
	nextSteps []string
}

type summaryRow struct {
	key   string
	value string
}

// NewOutput starts an output for the named command. data is the JSON
// result payload; pass nil for commands with no structured result.
func NewOutput(command, header string, data any) *Output {
	return &Output{command: command, header: header, data: data}
}

// Summary adds a key/value row. An empty value renders the key alone.
func (o *Output) Summary(key, value string) *Output {
	o.summary = append(o.summary, summaryRow{key: key, value: value})
	return o
}

// Summaryf adds a formatted key/value row.
func (o *Output) Summaryf(key, format string, args ...any) *Output {
	return o.Summary(key, fmt.Sprintf(format, args...))
}

// Detail adds a line to the Details section.
func (o *Output) Detail(value string) *Output {
	o.details = append(o.details, value)
	return o
}

// Warning adds a line to the Warnings section.
func (o *Output) Warning(value string) *Output {
	o.warnings = append(o.warnings, value)
	return o
}

// NextStep adds a line to the Next steps section.
func (o *Output) NextStep(value string) *Output {
	o.nextSteps = append(o.nextSteps, value)
	return o
}

// Emit renders to stdout. JSON mode wins over quiet.
func (o *Output) Emit(jsonMode, quiet bool) error {
	if jsonMode {
		return o.emitJSON()
	}
	if quiet {
		return nil
	}
	o.emitHuman(os.Stdout)
	return nil
}

type successEnvelope struct {
	SchemaVersion string   `json:"schema_version"`
	Command       string   `json:"command"`
	OK            bool     `json:"ok"`
	Result        any      `json:"result"`
	Warnings      []string `json:"warnings,omitempty"`
	NextSteps     []string `json:"next_steps,omitempty"`
}

func (o *Output) emitJSON() error {
	return WriteJSON(successEnvelope{
		SchemaVersion: SchemaVersion,
		Command:       o.command,
		OK:            true,
		Result:        normalizeNilSlice(o.data),
		Warnings:      o.warnings,
		NextSteps:     o.nextSteps,
	})
}

func (o *Output) emitHuman(w io.Writer) {
	styled := term.IsTerminal(int(os.Stdout.Fd()))
	headerStyle := lipgloss.NewStyle().Bold(styled)
	sectionStyle := lipgloss.NewStyle().Bold(styled)
	warningStyle := lipgloss.NewStyle()
	if styled {
		warningStyle = warningStyle.Foreground(lipgloss.Color("3"))
	}

	fmt.Fprintln(w, headerStyle.Render(o.header))

	if len(o.summary) > 0 {
		fmt.Fprintf(w, "\n%s\n", sectionStyle.Render("Summary:"))
		for _, row := range o.summary {
			if row.value == "" {
				fmt.Fprintf(w, "- %s\n", row.key)
			} else {
				fmt.Fprintf(w, "- %s: %s\n", row.key, row.value)
			}
		}
	}
	printSection(w, sectionStyle, lipgloss.NewStyle(), "Details", o.details)
	printSection(w, sectionStyle, warningStyle, "Warnings", o.warnings)
	printSection(w, sectionStyle, lipgloss.NewStyle(), "Next steps", o.nextSteps)
}

func printSection(w io.Writer, title, item lipgloss.Style, name string, lines []string) {
	if len(lines) == 0 {
		return
	}
	fmt.Fprintf(w, "\n%s\n", title.Render(name+":"))
	for _, line := range lines {
		fmt.Fprintf(w, "- %s\n", item.Render(line))
	}
}

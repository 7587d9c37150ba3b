package main

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/therealutkarshpriyadarshi/hdmsp/pkg/models"
)

const maxBarWidth = 40

// progressPrinter redraws one status line on a terminal. Piped output
// only gets a line per phase change.
type progressPrinter struct {
	out     io.Writer
	tty     bool
	width   int
	phase   string
	lastLen int
}

func newProgressPrinter(out io.Writer, tty bool, width int) *progressPrinter {
	return &progressPrinter{out: out, tty: tty, width: width}
}

func (p *progressPrinter) update(evt models.ProgressEvent) {
	if !p.tty {
		if evt.Phase != p.phase {
			fmt.Fprintln(p.out, evt.Phase)
			p.phase = evt.Phase
		}
		return
	}

	line := progressLine(evt, p.width)
	n := utf8.RuneCountInString(line)
	pad := ""
	if n < p.lastLen {
		pad = strings.Repeat(" ", p.lastLen-n)
	}
	fmt.Fprintf(p.out, "\r%s%s", line, pad)
	p.lastLen = n
}

func (p *progressPrinter) finish() {
	if p.tty && p.lastLen > 0 {
		fmt.Fprintln(p.out)
	}
}

func progressLine(evt models.ProgressEvent, width int) string {
	tail := fmt.Sprintf("%5.1f%%", evt.Fraction*100)
	if evt.Speed != "" {
		tail += "  " + evt.Speed
	}
	if evt.ETA != "" {
		tail += "  ETA " + evt.ETA
	}

	barWidth := width - utf8.RuneCountInString(evt.Phase) - utf8.RuneCountInString(tail) - 5
	if barWidth > maxBarWidth {
		barWidth = maxBarWidth
	}
	if barWidth < 10 {
		return evt.Phase + " " + tail
	}
	return evt.Phase + " " + renderBar(evt.Fraction, barWidth) + " " + tail
}

func renderBar(fraction float64, width int) string {
	if fraction < 0 {
		fraction = 0
	}
	if fraction > 1 {
		fraction = 1
	}
	filled := int(fraction * float64(width))
	return "[" + strings.Repeat("#", filled) + strings.Repeat("-", width-filled) + "]"
}

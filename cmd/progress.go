package cmd

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/creativeprojects/mailarchive/lib"
	"github.com/pterm/pterm"
	"golang.org/x/term"
)

// newProgress picks the display of the marks: nothing when quiet or when the output is not a terminal,
// every mark in verbose mode, a progress bar otherwise.
func newProgress() lib.Progress {
	switch {
	case global.quiet:
		return &lib.NoProgress{}
	case global.verbose || global.debug:
		return newMarksProgress(os.Stdout)
	case term.IsTerminal(int(os.Stdout.Fd())):
		return &barProgress{}
	default:
		return &lib.NoProgress{}
	}
}

type barProgress struct {
	pbar *pterm.ProgressbarPrinter
}

func (p *barProgress) Start(name string, total int) {
	if total == 0 {
		return
	}
	p.pbar, _ = pterm.DefaultProgressbar.WithTotal(total).WithTitle(name).Start()
}

func (p *barProgress) Increment(mark string) {
	if p.pbar == nil {
		return
	}
	p.pbar.Increment()
}

func (p *barProgress) Stop() {
	if p.pbar == nil {
		return
	}
	_, _ = p.pbar.Stop()
	p.pbar = nil
}

// marksProgress prints every mark, then a tally per source
type marksProgress struct {
	output io.Writer
	name   string
	marks  map[string]int
}

func newMarksProgress(output io.Writer) *marksProgress {
	return &marksProgress{
		output: output,
	}
}

func (p *marksProgress) Start(name string, total int) {
	p.name = name
	p.marks = make(map[string]int)
	fmt.Fprintf(p.output, "%s (%d): ", name, total)
}

func (p *marksProgress) Increment(mark string) {
	p.marks[mark]++
	fmt.Fprint(p.output, mark)
}

func (p *marksProgress) Stop() {
	fmt.Fprintf(p.output, "\n%s: %s\n", p.name, p.tally())
}

func (p *marksProgress) tally() string {
	if len(p.marks) == 0 {
		return "nothing to do"
	}
	marks := make([]string, 0, len(p.marks))
	for mark := range p.marks {
		marks = append(marks, mark)
	}
	sort.Strings(marks)
	parts := make([]string, len(marks))
	for i, mark := range marks {
		parts[i] = fmt.Sprintf("%q %d", mark, p.marks[mark])
	}
	return strings.Join(parts, ", ")
}

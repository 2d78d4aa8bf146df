package cmd

import (
	"fmt"
	"io"
	"os"
	"sync"
	"text/tabwriter"

	"brokerCtl/internal/model"

	"golang.org/x/term"
)

const (
	colorGreen  = "\x1b[32m"
	colorRed    = "\x1b[31m"
	colorYellow = "\x1b[33m"
	colorReset  = "\x1b[0m"
)

// printer echoes live task output. On a terminal it prints events with
// colored terminal states; otherwise it prints the timestamped log lines.
type printer struct {
	mu    sync.Mutex
	out   io.Writer
	color bool
}

func newPrinter(out io.Writer) *printer {
	color := false
	if f, ok := out.(*os.File); ok {
		color = term.IsTerminal(int(f.Fd()))
	}
	return &printer{out: out, color: color}
}

// hooks returns the eventlog mirrors to install. Exactly one is non-nil.
func (p *printer) hooks() (func(string), func(model.TaskEvent)) {
	if p.color {
		return nil, p.event
	}
	return p.line, nil
}

func (p *printer) line(line string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintln(p.out, line)
}

func (p *printer) event(ev model.TaskEvent) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c := colorFor(ev); c != "" {
		fmt.Fprintf(p.out, "%s%s%s\n", c, ev.String(), colorReset)
		return
	}
	fmt.Fprintln(p.out, ev.String())
}

func colorFor(ev model.TaskEvent) string {
	switch ev.Kind() {
	case model.KindFinished:
		return colorGreen
	case model.KindFailed, model.KindTimeout, model.KindInternalError:
		return colorRed
	case model.KindCanceled, model.KindRetrying:
		return colorYellow
	}
	return ""
}

func (p *printer) summary(outcomes []model.Outcome) {
	p.mu.Lock()
	defer p.mu.Unlock()
	printOutcomes(p.out, outcomes)
}

func printOutcomes(out io.Writer, outcomes []model.Outcome) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTATE\tATTEMPTS\tEXIT\tDURATION\tCOMMAND")
	for _, o := range outcomes {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%.3fs\t%s\n",
			o.ID, o.State, o.Attempts, o.ExitCode, o.Duration.Seconds(), o.Descriptor.CommandLine())
	}
	w.Flush()
}

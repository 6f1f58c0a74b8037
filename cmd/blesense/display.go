package main

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/fatih/color"
	"github.com/srg/blesense/internal/sensor"
	"golang.org/x/term"
)

// display prints status and reading lines. Colors are used on terminals only.
// out serializes writes, so a ProgressPrinter writing to it cannot split a line.
type display struct {
	out     io.Writer
	tty     bool
	status  *color.Color
	warning *color.Color
	failure *color.Color
	data    *color.Color
}

func newDisplay(out io.Writer) *display {
	d := &display{
		out:     &lockedWriter{w: out},
		tty:     isTerminal(out),
		status:  color.New(color.FgCyan),
		warning: color.New(color.FgYellow),
		failure: color.New(color.FgRed, color.Bold),
		data:    color.New(color.FgGreen, color.Bold),
	}
	if !d.tty {
		for _, c := range []*color.Color{d.status, d.warning, d.failure, d.data} {
			c.DisableColor()
		}
	}
	return d
}

// Event prints one client event.
func (d *display) Event(ev sensor.Event) {
	switch ev.Kind {
	case sensor.EventStatus:
		d.Status(ev.Status)
	case sensor.EventReading:
		d.Reading(ev.Reading)
	}
}

// Status prints "Status: <message>", with the error when there is one.
func (d *display) Status(st sensor.Status) {
	c := d.status
	switch {
	case st.State == sensor.StateFailed:
		c = d.failure
	case st.Err != nil:
		c = d.warning
	}

	line := st.Message
	if st.Err != nil {
		line = fmt.Sprintf("%s (%v)", st.Message, st.Err)
	}
	fmt.Fprintf(d.out, "%sStatus: %s\n", d.lineStart(), c.Sprint(line))
}

// Reading prints "Data: <value>°C".
func (d *display) Reading(r sensor.Reading) {
	fmt.Fprintf(d.out, "%sData: %s\n", d.lineStart(), d.data.Sprint(r.String()))
}

// lineStart clears a progress line the terminal may be showing.
func (d *display) lineStart() string {
	if d.tty {
		return clearLineSequence
	}
	return ""
}

// lockedWriter makes each Write atomic with respect to other writers.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

// Package console prints the tagged, optionally coloured lines users see
// while runcfg locates, lists and runs services.
package console

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/mitchellh/colorstring"
	"golang.org/x/term"
)

// Printer writes tagged lines such as "[ERROR] ..." to an output stream.
type Printer struct {
	mu    sync.Mutex
	out   io.Writer
	color *colorstring.Colorize
}

// New returns a Printer writing to out. Colour codes are stripped unless
// color is set.
func New(out io.Writer, color bool) *Printer {
	return &Printer{
		out: out,
		color: &colorstring.Colorize{
			Colors:  colorstring.DefaultColors,
			Disable: !color,
			Reset:   true,
		},
	}
}

// ColorEnabled reports whether f is a terminal and NO_COLOR is unset.
func ColorEnabled(f *os.File) bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

// Writer returns the underlying stream.
func (p *Printer) Writer() io.Writer { return p.out }

func (p *Printer) tag(color, tag, format string, args ...interface{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.out, p.color.Color("["+color+"][bold]%s[reset] %s\n"), "["+tag+"]", fmt.Sprintf(format, args...))
}

func (p *Printer) Info(format string, args ...interface{}) { p.tag("cyan", "INFO", format, args...) }
func (p *Printer) Warning(format string, args ...interface{}) { p.tag("yellow", "WARNING", format, args...) }
func (p *Printer) Error(format string, args ...interface{}) { p.tag("red", "ERROR", format, args...) }
func (p *Printer) Start(format string, args ...interface{}) { p.tag("blue", "START", format, args...) }
func (p *Printer) Target(format string, args ...interface{}) { p.tag("blue", "TARGET", format, args...) }
func (p *Printer) Run(format string, args ...interface{}) { p.tag("blue", "RUN", format, args...) }
func (p *Printer) Cmd(format string, args ...interface{}) { p.tag("dark_gray", "CMD", format, args...) }
func (p *Printer) Dir(format string, args ...interface{}) { p.tag("dark_gray", "DIR", format, args...) }
func (p *Printer) Env(format string, args ...interface{}) { p.tag("dark_gray", "ENV", format, args...) }
func (p *Printer) Success(format string, args ...interface{}) { p.tag("green", "SUCCESS", format, args...) }
func (p *Printer) Complete(format string, args ...interface{}) { p.tag("green", "COMPLETE", format, args...) }
func (p *Printer) Failed(format string, args ...interface{}) { p.tag("red", "FAILED", format, args...) }
func (p *Printer) Stop(format string, args ...interface{}) { p.tag("yellow", "STOP", format, args...) }
func (p *Printer) List(format string, args ...interface{}) { p.tag("cyan", "LIST", format, args...) }

// Line relays a line verbatim. Build tool output is never colour-parsed.
func (p *Printer) Line(s string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	io.WriteString(p.out, s+"\n")
}

// Blank writes an empty line.
func (p *Printer) Blank() { p.Line("") }

// Rule writes a horizontal separator of width n.
func (p *Printer) Rule(n int) { p.Line(strings.Repeat("=", n)) }

// Plain writes an untagged formatted line.
func (p *Printer) Plain(format string, args ...interface{}) {
	p.Line(fmt.Sprintf(format, args...))
}

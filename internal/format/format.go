// Package format turns raw terminal output from a scan into a fragment that is
// safe to place inside a single server-sent event.
//
// Every Formatter in this package guarantees that its output contains no CR or
// LF characters, so a formatted line can never terminate an SSE record early.
package format

import (
	"fmt"
	"html"
	"strings"

	"github.com/charmbracelet/x/ansi"
)

// Formatter renders one raw output line for display.
type Formatter interface {
	Format(raw string) string
}

// FormatterFunc adapts a plain function to Formatter.
type FormatterFunc func(raw string) string

func (f FormatterFunc) Format(raw string) string { return f(raw) }

// Kind names a built-in formatter.
type Kind string

const (
	KindHTML  Kind = "html"
	KindPlain Kind = "plain"
)

// New returns the built-in formatter for kind.
func New(kind Kind) (Formatter, error) {
	switch kind {
	case KindHTML, "":
		return ANSIHTML{}, nil
	case KindPlain:
		return Plain{}, nil
	default:
		return nil, fmt.Errorf("unknown console format %q", kind)
	}
}

// Plain strips escape sequences and control characters and leaves the text as is.
type Plain struct{}

func (Plain) Format(raw string) string {
	return strings.Map(func(r rune) rune {
		if isControl(r) {
			return -1
		}
		return r
	}, ansi.Strip(raw))
}

// ANSIHTML converts SGR colour and emphasis sequences into inline-styled spans.
// Text is HTML-escaped; all other escape sequences are dropped.
type ANSIHTML struct{}

func (ANSIHTML) Format(raw string) string {
	var (
		b    strings.Builder
		cur  style
		open style
	)
	text := func(s string) {
		if cur != open {
			if !open.zero() {
				b.WriteString("</span>")
			}
			if !cur.zero() {
				b.WriteString(`<span style="`)
				b.WriteString(cur.css())
				b.WriteString(`">`)
			}
			open = cur
		}
		b.WriteString(html.EscapeString(s))
	}
	walk(raw, text, func(params []int) { cur = cur.apply(params) })
	if !open.zero() {
		b.WriteString("</span>")
	}
	return b.String()
}

// isControl reports C0 and C1 control characters other than TAB.
func isControl(r rune) bool {
	return r != '\t' && (r < 0x20 || (r >= 0x7f && r <= 0x9f))
}

// walk splits raw into printable graphemes and escape sequences. Graphemes are
// passed to text; SGR parameter lists are passed to sgr. Control characters
// other than TAB never reach text.
func walk(raw string, text func(string), sgr func([]int)) {
	var state byte
	for len(raw) > 0 {
		seq, _, n, next := ansi.DecodeSequence(raw, state, nil)
		if n == 0 {
			seq, n = raw[:1], 1
		}
		raw, state = raw[n:], next

		switch c := seq[0]; {
		case c == ansi.ESC || (c >= 0x80 && c <= 0x9f && len(seq) > 1):
			if params, ok := sgrParams(seq); ok {
				sgr(params)
			}
		case len(seq) == 1 && isControl(rune(c)):
		default:
			text(seq)
		}
	}
}

// sgrParams returns the parameters of seq when it is a complete SGR sequence
// (CSI ... m without prefix or intermediate bytes). Missing parameters are 0.
func sgrParams(seq string) ([]int, bool) {
	if !ansi.HasCsiPrefix(seq) || seq[len(seq)-1] != 'm' {
		return nil, false
	}
	// the parameter buffer must fit every parameter in seq
	var p ansi.Parser
	p.SetParamsSize(len(seq) + 1)
	ansi.DecodeSequence(seq, ansi.NormalState, &p)
	cmd := ansi.Cmd(p.Command())
	if cmd.Final() != 'm' || cmd.Prefix() != 0 || cmd.Intermediate() != 0 {
		return nil, false
	}
	params := p.Params()
	if len(params) == 0 {
		return []int{0}, true
	}
	out := make([]int, len(params))
	for i, v := range params {
		out[i] = v.Param(0)
	}
	return out, true
}

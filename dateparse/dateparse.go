// Package dateparse turns user-typed date phrases into grus.Session and
// time.Time values. It lives outside package grus because
// natural-language date parsing is caller input serialization, not
// storage; the original metent/grus-lib Rust crate shows the same
// split with its optional interim-crate-backed FromStr for Session.
package dateparse

import (
	"fmt"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"

	grus "github.com/metent/grus-lib"
)

// Parser wraps a configured when.Parser. The zero value is not usable;
// construct one with New.
type Parser struct {
	w *when.Parser
}

// New builds a Parser with the common + English rule sets, the same
// combination the when package's own examples use.
func New() *Parser {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)
	return &Parser{w: w}
}

// At parses a single date/time phrase ("tomorrow at 5pm", "2023-01-01")
// relative to base.
func (p *Parser) At(phrase string, base time.Time) (time.Time, error) {
	r, err := p.w.Parse(phrase, base)
	if err != nil {
		return time.Time{}, err
	}
	if r == nil {
		return time.Time{}, fmt.Errorf("dateparse: could not parse %q", phrase)
	}
	return r.Time, nil
}

// Session parses "<start phrase> to <end phrase>" into a grus.Session,
// mirroring the "<s> to <e>" grammar of the original crate's
// FromStr for Session.
func (p *Parser) Session(phrase string, base time.Time) (grus.Session, error) {
	s, e, ok := strings.Cut(phrase, " to ")
	if !ok {
		return grus.Session{}, fmt.Errorf("dateparse: %q: missing \" to \" separator", phrase)
	}
	start, err := p.At(strings.TrimSpace(s), base)
	if err != nil {
		return grus.Session{}, err
	}
	end, err := p.At(strings.TrimSpace(e), base)
	if err != nil {
		return grus.Session{}, err
	}
	return grus.Session{Start: start, End: end}, nil
}

package grus

import (
	"errors"
	"fmt"
)

// ErrCorrupted is wrapped into every error raised when an invariant the
// store depends on is found violated: a partial schema at Open, a
// missing RLinks entry reached mid-splice or mid-traversal, a Names
// value that isn't valid UTF-8, or a counter root slot with no value
// when a Writer opens. Use errors.Is(err, ErrCorrupted) to test for it.
var ErrCorrupted = errors.New("grus: invalid or corrupted data")

func corruptedf(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrCorrupted)...)
}

// assertf panics on programmer-contract violations (e.g. an empty name
// passed to AddChild): these are bugs in the caller, not operational
// failures, and are never returned as errors.
func assertf(cond bool, format string, args ...any) {
	if !cond {
		panic(fmt.Sprintf(format, args...))
	}
}

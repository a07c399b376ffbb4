// Package errutil holds the assertions guarding internal invariants of the
// builder. They only fire in binaries built with the fsadebug tag.
package errutil

import (
	"fmt"
)

// Enabled reports whether assertions are compiled in.
func Enabled() bool {
	return debug
}

func Bug(format string, msg ...any) {
	if debug {
		panic("BUG: " + fmt.Sprintf(format, msg...))
	}
}

func BugOn(cond bool, format string, msg ...any) {
	if debug && cond {
		Bug(format, msg...)
	}
}

// BugOnNotEq asserts that the two values of what are equal.
func BugOnNotEq[T comparable](what string, a, b T) {
	if debug && a != b {
		Bug("%s: %v != %v", what, a, b)
	}
}

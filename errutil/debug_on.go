//go:build fsadebug

package errutil

const debug = true

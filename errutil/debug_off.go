//go:build !fsadebug

package errutil

const debug = false

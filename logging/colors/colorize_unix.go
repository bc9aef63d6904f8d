//go:build !windows
// +build !windows

package colors

import "fmt"

// enabled is toggled off by DisableColor, e.g. when stdout is not a terminal.
var enabled = true

// EnableColor turns ANSI output on. Non-windows terminals are assumed to support ANSI escape codes.
func EnableColor() {
	enabled = true
}

// DisableColor turns ANSI output off.
func DisableColor() {
	enabled = false
}

// Colorize returns the string s wrapped in ANSI code c.
func Colorize(s any, c Color) string {
	if !enabled {
		return fmt.Sprintf("%v", s)
	}
	return fmt.Sprintf("\x1b[%dm%v\x1b[0m", c, s)
}

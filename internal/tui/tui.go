// SPDX-License-Identifier: MPL-2.0

// Package tui renders interactive terminal output for long-running
// operations. Callers check IsInteractive before starting a program and
// fall back to plain logging on non-terminal outputs.
package tui

import (
	"io"
	"os"

	"github.com/mattn/go-isatty"
)

// IsInteractive reports whether w is attached to a terminal.
func IsInteractive(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

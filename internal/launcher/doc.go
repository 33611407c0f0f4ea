// SPDX-License-Identifier: MPL-2.0

// Package launcher starts the update-service check harness the way the
// run-checks wrapper does: prefer the project-local instagent build under
// bin/, fall back to the one on PATH with a warning, forward the caller's
// arguments verbatim, and hold the window open afterwards.
//
// Arguments are passed through as an argv slice, never through a shell, so
// spacing and quoting survive untouched. The closing prompt is written and
// awaited on every path, including resolution and spawn failures, so a
// double-clicked console window never vanishes before its output can be
// read.
package launcher

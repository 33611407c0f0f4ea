// SPDX-License-Identifier: MPL-2.0

// run-checks launches the deployment check harness and keeps the console
// window open afterwards, so double-clicked runs stay readable.
//
// It resolves the instagent executable, preferring a project-local build in
// <project-dir>/bin over the one on PATH, merges an optional .env file into
// the child environment, runs `instagent check` with the forwarded
// arguments and exits with the child's exit code.
//
// Usage:
//
//	run-checks [-project-dir DIR] [-env-file FILE] [-no-pause] [-- check-args...]
package main

import (
	"context"
	"flag"
	"os"

	"instagent/internal/launcher"
)

func main() {
	projectDir := flag.String("project-dir", "", "project directory (default: current directory)")
	envFile := flag.String("env-file", "", "dotenv file merged into the child environment (default: <project-dir>/.env)")
	noPause := flag.Bool("no-pause", false, "do not wait for a keypress before exiting")
	flag.Parse()

	res := launcher.Run(context.Background(), launcher.Options{
		ProjectDir: *projectDir,
		EnvFile:    *envFile,
		NoPause:    *noPause,
		Args:       flag.Args(),
	})

	os.Exit(int(res.ExitCode))
}

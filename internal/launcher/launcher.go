// SPDX-License-Identifier: MPL-2.0

package launcher

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"instagent/internal/issue"
)

const (
	// ToolName is the harness executable resolved on PATH when no
	// project-local build exists.
	ToolName = "instagent"

	// BinDirName is the project directory holding the local build.
	BinDirName = "bin"

	// EnvFileName is the optional dotenv file merged into the child
	// environment.
	EnvFileName = ".env"

	// checkSubcommand is the harness entry point the launcher invokes.
	checkSubcommand = "check"

	// pausePrompt is written before waiting for the closing keypress.
	pausePrompt = "Press Enter to close this window..."
)

type (
	// Options configures a launcher run.
	Options struct {
		// ProjectDir is the directory the local tool, the env file, and
		// the child working directory are resolved against. Empty means
		// the current working directory.
		ProjectDir string

		// Args are forwarded to the check entry point verbatim, in order,
		// after the subcommand itself. They never pass through a shell.
		Args []string

		// EnvFile overrides the dotenv path. Empty means
		// <ProjectDir>/.env. The file is optional either way; only a
		// malformed file is an error.
		EnvFile string

		// NoPause skips the closing keypress wait.
		NoPause bool

		// Stdin, Stdout, and Stderr default to the process streams.
		// The child inherits all three.
		Stdin  io.Reader
		Stdout io.Writer
		Stderr io.Writer

		// LookPath resolves the fallback tool on the system PATH.
		// Defaults to exec.LookPath.
		LookPath func(file string) (string, error)
	}

	// Result reports how a launcher run went.
	Result struct {
		// ExitCode is the status to propagate: the child's own exit code,
		// or 1 when the run failed before or at spawn.
		ExitCode ExitCode

		// ToolPath is the resolved harness executable, empty when
		// resolution failed.
		ToolPath string

		// LocalTool reports whether the project-local build was used.
		LocalTool bool

		// Error holds a launcher-level failure. A child that ran and
		// exited non-zero is not an Error.
		Error error
	}
)

func (o Options) withDefaults() Options {
	if o.Stdin == nil {
		o.Stdin = os.Stdin
	}
	if o.Stdout == nil {
		o.Stdout = os.Stdout
	}
	if o.Stderr == nil {
		o.Stderr = os.Stderr
	}
	if o.LookPath == nil {
		o.LookPath = exec.LookPath
	}
	if o.EnvFile == "" {
		o.EnvFile = filepath.Join(o.ProjectDir, EnvFileName)
	}
	return o
}

// LocalToolPath returns the path checked for a project-local build:
// <projectDir>/bin/instagent, with .exe appended on Windows.
func LocalToolPath(projectDir string) string {
	return filepath.Join(projectDir, BinDirName, toolFileName())
}

func toolFileName() string {
	if runtime.GOOS == "windows" {
		return ToolName + ".exe"
	}
	return ToolName
}

// Run resolves the harness executable, invokes its check entry point with
// the forwarded arguments, and waits for the closing keypress. The pause
// happens on every path, including resolution and spawn failures, unless
// Options.NoPause is set.
func Run(ctx context.Context, opts Options) *Result {
	opts = opts.withDefaults()
	defer pause(opts)

	toolPath, local, err := resolveTool(opts)
	if err != nil {
		printIssueCard(opts.Stderr, issue.LocalToolNotFoundId)
		reportFailure(opts.Stderr, err)
		return &Result{ExitCode: 1, Error: err}
	}

	env, err := childEnv(opts, local)
	if err != nil {
		reportFailure(opts.Stderr, err)
		return &Result{ExitCode: 1, ToolPath: toolPath, LocalTool: local, Error: err}
	}

	args := append([]string{checkSubcommand}, opts.Args...)
	cmd := exec.CommandContext(ctx, toolPath, args...)
	cmd.Dir = opts.ProjectDir
	cmd.Env = env
	cmd.Stdin = opts.Stdin
	cmd.Stdout = opts.Stdout
	cmd.Stderr = opts.Stderr

	result := &Result{ToolPath: toolPath, LocalTool: local}
	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code := exitErr.ExitCode()
			if code < 0 {
				// Signal-terminated children report -1.
				code = 1
			}
			result.ExitCode = ExitCode(code)
			return result
		}
		result.ExitCode = 1
		result.Error = issue.NewErrorContext().
			WithOperation("run check harness").
			WithResource(toolPath).
			WithSuggestion("Check the executable is not corrupted").
			Wrap(err).
			BuildError()
		reportFailure(opts.Stderr, result.Error)
		return result
	}

	return result
}

// reportFailure writes a launcher-level error to stderr before the closing
// pause runs, so double-clicked runs show it while the window is still open.
func reportFailure(w io.Writer, err error) {
	var ae *issue.ActionableError
	if errors.As(err, &ae) {
		fmt.Fprintln(w, ae.Format(false))
		return
	}
	fmt.Fprintln(w, "Error:", err)
}

// printIssueCard renders the registry card for id to w, best effort.
func printIssueCard(w io.Writer, id issue.Id) {
	rendered, _ := issue.Get(id).Render("auto")
	fmt.Fprint(w, rendered)
}

// resolveTool prefers the project-local build and falls back to the one on
// PATH, warning when the local build is absent. It mirrors how the run
// script prefers an activated project environment over the system one.
func resolveTool(opts Options) (string, bool, error) {
	local := LocalToolPath(opts.ProjectDir)
	if info, err := os.Stat(local); err == nil && !info.IsDir() {
		// Absolute so the child's working directory cannot re-resolve it.
		abs, err := filepath.Abs(local)
		if err != nil {
			return "", false, issue.NewErrorContext().
				WithOperation("resolve check harness path").
				WithResource(local).
				Wrap(err).
				BuildError()
		}
		return abs, true, nil
	}

	fmt.Fprintf(opts.Stderr, "Warning: %s not found. Using %s from PATH.\n", local, ToolName)

	path, err := opts.LookPath(ToolName)
	if err != nil {
		return "", false, issue.NewErrorContext().
			WithOperation("locate check harness").
			WithResource(ToolName).
			WithSuggestion(fmt.Sprintf("Build the project-local tool into %s", filepath.Join(opts.ProjectDir, BinDirName))).
			WithSuggestion("Or install instagent somewhere on PATH").
			Wrap(err).
			BuildError()
	}
	return path, false, nil
}

// childEnv builds the child environment: the parent environment, then the
// project bin directory prepended to PATH when the local tool was found,
// then the optional dotenv overrides. Later entries win.
func childEnv(opts Options, local bool) ([]string, error) {
	environ := os.Environ()

	if local {
		binDir := filepath.Join(opts.ProjectDir, BinDirName)
		if abs, err := filepath.Abs(binDir); err == nil {
			binDir = abs
		}
		environ = append(environ, "PATH="+binDir+string(os.PathListSeparator)+os.Getenv("PATH"))
	}

	overrides := make(map[string]string)
	if _, err := MergeEnvFile(overrides, opts.EnvFile); err != nil {
		return nil, issue.NewErrorContext().
			WithOperation("load env file").
			WithResource(opts.EnvFile).
			WithSuggestion("Fix the reported line or remove the file").
			Wrap(err).
			BuildError()
	}

	return append(environ, envToSlice(overrides)...), nil
}

// pause writes the closing prompt and waits for Enter. EOF counts as a
// keypress so non-interactive runs never hang.
func pause(opts Options) {
	if opts.NoPause {
		return
	}
	fmt.Fprintln(opts.Stdout, pausePrompt)
	_, _ = bufio.NewReader(opts.Stdin).ReadString('\n')
}

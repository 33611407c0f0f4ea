// SPDX-License-Identifier: MPL-2.0

// Package checker verifies a deployment end to end: configuration,
// data directories, the vector index, and the HTTP endpoints of a
// running service. Results are printed as they are produced and
// aggregated into a Report for machine consumption.
package checker

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"instagent/internal/config"
)

const (
	// DefaultBaseURL is the service endpoint checked when no --url is given.
	DefaultBaseURL = "http://localhost:8000"

	timestampLayout = "2006-01-02 15:04:05"

	healthCheckTimeout = 10 * time.Second
	queryCheckTimeout  = 30 * time.Second
	updateCheckTimeout = 60 * time.Second

	maxResponseBytes = 1 << 20
)

var (
	passStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981"))
	failStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444"))
)

type (
	// Result is the outcome of a single check.
	Result struct {
		Check     string `json:"check"`
		Passed    bool   `json:"passed"`
		Message   string `json:"message"`
		Timestamp string `json:"timestamp"`
	}

	// Report aggregates the results of one checker run.
	Report struct {
		Total       int      `json:"total"`
		Passed      int      `json:"passed"`
		SuccessRate float64  `json:"success_rate"`
		Results     []Result `json:"results"`
	}

	// Checker runs the deployment checks. Create one with NewChecker.
	Checker struct {
		cfg        *config.Config
		baseURL    string
		httpClient *http.Client
		out        io.Writer
		confirm    func() bool
		skipUpdate bool

		results []Result
	}

	// Option configures a Checker.
	Option func(*Checker)
)

// WithBaseURL sets the service endpoint to check.
func WithBaseURL(baseURL string) Option {
	return func(c *Checker) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithHTTPClient sets the HTTP client used for endpoint checks.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Checker) {
		c.httpClient = client
	}
}

// WithOutput sets where check progress is printed.
func WithOutput(w io.Writer) Option {
	return func(c *Checker) {
		c.out = w
	}
}

// WithConfirm replaces the interactive confirmation prompt shown before
// the update check.
func WithConfirm(confirm func() bool) Option {
	return func(c *Checker) {
		c.confirm = confirm
	}
}

// WithSkipUpdate skips the update endpoint check entirely.
func WithSkipUpdate(skip bool) Option {
	return func(c *Checker) {
		c.skipUpdate = skip
	}
}

// NewChecker creates a Checker for the given configuration.
func NewChecker(cfg *config.Config, opts ...Option) *Checker {
	c := &Checker{
		cfg:        cfg,
		baseURL:    DefaultBaseURL,
		httpClient: &http.Client{},
		out:        os.Stdout,
	}
	c.confirm = c.defaultConfirm

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Run executes all checks in order and returns the aggregated report.
// Endpoint checks are skipped when the service health check fails; the
// update check additionally requires confirmation since it triggers real
// Instagram and GenAI API calls.
func (c *Checker) Run(ctx context.Context) *Report {
	c.results = nil

	fmt.Fprintf(c.out, "🧪 Starting Instagram Agent service checks\n\n")

	c.checkConfig()
	c.checkDirectories()
	c.checkStore(ctx)

	if c.checkHealth(ctx) {
		c.checkQuery(ctx)

		if !c.skipUpdate {
			fmt.Fprintf(c.out, "\n⚠️  Running update check - this will make actual API calls and process videos\n")
			if c.confirm() {
				c.checkUpdate(ctx)
			} else {
				c.log("Update Endpoint (skipped)", true, "Skipped by user choice")
			}
		}
	} else {
		fmt.Fprintf(c.out, "\n⚠️  Service checks skipped - service not running\n")
		fmt.Fprintf(c.out, "   Start the service with: instagent serve\n")
	}

	report := c.report()

	fmt.Fprintf(c.out, "\n📊 Check Summary: %d/%d checks passed\n", report.Passed, report.Total)
	if report.AllPassed() {
		fmt.Fprintln(c.out, "🎉 All checks passed!")
	} else {
		fmt.Fprintln(c.out, "⚠️  Some checks failed. Check the output above for details.")
	}

	return report
}

// AllPassed reports whether every check passed. An empty report counts
// as a failure.
func (r *Report) AllPassed() bool {
	return r.Total > 0 && r.Passed == r.Total
}

// log prints one check outcome and records it for the report.
func (c *Checker) log(name string, passed bool, message string) {
	status := failStyle.Render("❌ FAIL")
	if passed {
		status = passStyle.Render("✅ PASS")
	}
	fmt.Fprintf(c.out, "%s %s\n", status, name)
	if message != "" {
		fmt.Fprintf(c.out, "   └── %s\n", message)
	}

	c.results = append(c.results, Result{
		Check:     name,
		Passed:    passed,
		Message:   message,
		Timestamp: time.Now().Format(timestampLayout),
	})
}

func (c *Checker) report() *Report {
	passed := 0
	for _, r := range c.results {
		if r.Passed {
			passed++
		}
	}

	rate := 0.0
	if len(c.results) > 0 {
		rate = float64(passed) / float64(len(c.results))
	}

	return &Report{
		Total:       len(c.results),
		Passed:      passed,
		SuccessRate: rate,
		Results:     c.results,
	}
}

func (c *Checker) defaultConfirm() bool {
	fmt.Fprint(c.out, "Continue? (y/N): ")
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false
	}
	return strings.EqualFold(strings.TrimSpace(line), "y")
}

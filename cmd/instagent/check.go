// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"instagent/internal/checker"
	"instagent/internal/issue"
)

var (
	checkURL      string
	checkNoUpdate bool
	checkJSON     bool
	checkYes      bool

	checkCmd = &cobra.Command{
		Use:   "check",
		Short: "Verify the deployment end to end",
		Long: `Verify the deployment end to end.

Validates the configuration, the data directories and the vector store,
then probes a running service: health, a test query and a limit-1 update
run. The update check makes real Instagram and Gemini calls, so it asks
for confirmation first unless --yes or --no-update is given.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd.Context())
		},
	}
)

func init() {
	checkCmd.Flags().StringVar(&checkURL, "url", checker.DefaultBaseURL, "base URL of the running service")
	checkCmd.Flags().BoolVar(&checkNoUpdate, "no-update", false, "skip the update endpoint check")
	checkCmd.Flags().BoolVar(&checkJSON, "json", false, "also print the report as JSON")
	checkCmd.Flags().BoolVar(&checkYes, "yes", false, "run the update check without asking")
}

func runCheck(ctx context.Context) error {
	cfg, _, err := loadAgentConfig()
	if err != nil {
		return err
	}

	opts := []checker.Option{
		checker.WithBaseURL(checkURL),
		checker.WithSkipUpdate(checkNoUpdate),
	}
	if checkYes {
		opts = append(opts, checker.WithConfirm(func() bool { return true }))
	}

	report := checker.NewChecker(cfg, opts...).Run(ctx)

	if checkJSON {
		data, err := json.MarshalIndent(report, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(data))
	}

	if !report.AllPassed() {
		for _, result := range report.Results {
			if result.Check == "Service Health Check" && !result.Passed {
				renderIssue(issue.ServiceUnreachableId)
				break
			}
		}
		return &ExitError{Code: 1}
	}
	return nil
}

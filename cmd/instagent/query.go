// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"instagent/internal/store"
)

var (
	queryTopK int

	queryCmd = &cobra.Command{
		Use:   "query <question>",
		Short: "Ask a question over the indexed transcripts",
		Long: `Ask a question over the indexed transcripts.

Embeds the question, retrieves the closest transcript chunks from the
vector store and has Gemini answer using only those chunks as context.
Multiple arguments are joined into one question.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd.Context(), strings.Join(args, " "))
		},
	}
)

func init() {
	queryCmd.Flags().IntVar(&queryTopK, "top-k", 3, "number of transcript chunks to retrieve")
}

func runQuery(ctx context.Context, question string) error {
	cfg, _, err := loadAgentConfig()
	if err != nil {
		return err
	}

	comps, err := buildComponents(ctx, cfg)
	if err != nil {
		return err
	}
	defer comps.Close()

	topK := queryTopK
	if topK < 1 {
		topK = 3
	}

	vector, err := comps.engine.EmbedQuery(ctx, question)
	if err != nil {
		return fmt.Errorf("embedding question: %w", err)
	}

	hits, err := comps.store.Query(ctx, store.DefaultCollection, vector, topK)
	if err != nil {
		return err
	}

	chunks := make([]string, 0, len(hits))
	for _, hit := range hits {
		chunks = append(chunks, hit.Content)
	}

	answer, err := comps.agent.Answer(ctx, question, chunks)
	if err != nil {
		return err
	}

	fmt.Println(answer)

	if verbose && len(hits) > 0 {
		fmt.Println()
		fmt.Println(VerboseStyle.Render("Sources:"))
		for _, hit := range hits {
			fmt.Println(VerboseStyle.Render(fmt.Sprintf("  %s (score %.3f)", hit.Source, hit.Score)))
		}
	}

	return nil
}

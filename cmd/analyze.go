package main

import (
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JGarfunkel/ordinizer-sub000/internal/orchestrator"
)

var analyzeOpts struct {
	domain       string
	jurisdiction string
	force        bool
	question     string
	reindex      bool
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Analyze documents and write scored analysis records",
	Long:  "Runs the full pipeline for the selected domains and jurisdictions: plans which questions need analysis, answers them, scores the results, and persists a new record version.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		sum, err := e.orchestrator.Run(ctx, orchestrator.Options{
			DomainID:       analyzeOpts.domain,
			JurisdictionID: analyzeOpts.jurisdiction,
			Force:          analyzeOpts.force,
			QuestionID:     analyzeOpts.question,
			Reindex:        analyzeOpts.reindex,
		})
		if err != nil {
			return err
		}

		cmd.Printf("run %s: %d analyzed, %d skipped, %d failed (%d model calls, %s)\n",
			sum.RunID, sum.Analyzed, sum.Skipped, sum.Failed, sum.ModelCalls, sum.Duration.Round(time.Millisecond))
		if sum.Failed > 0 {
			zap.L().Warn("analyze: run finished with failures", zap.Int("failed", sum.Failed))
		}
		return nil
	},
}

func init() {
	analyzeCmd.Flags().StringVar(&analyzeOpts.domain, "domain", "", "limit to one domain")
	analyzeCmd.Flags().StringVar(&analyzeOpts.jurisdiction, "jurisdiction", "", "limit to one jurisdiction")
	analyzeCmd.Flags().BoolVar(&analyzeOpts.force, "force", false, "re-analyze every question")
	analyzeCmd.Flags().StringVar(&analyzeOpts.question, "question", "", "re-analyze a single question id, keeping all others")
	analyzeCmd.Flags().BoolVar(&analyzeOpts.reindex, "reindex", false, "rebuild the similarity index before analysis")
	rootCmd.AddCommand(analyzeCmd)
}

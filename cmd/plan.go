package main

import (
	"github.com/spf13/cobra"

	"github.com/JGarfunkel/ordinizer-sub000/internal/docstore"
	"github.com/JGarfunkel/ordinizer-sub000/internal/model"
	"github.com/JGarfunkel/ordinizer-sub000/internal/planner"
)

var planOpts struct {
	domain       string
	jurisdiction string
	force        bool
	question     string
}

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Show what analyze would do, without calling any model",
	RunE: func(cmd *cobra.Command, args []string) error {
		store := docstore.New(cfg.Data.Root)

		domains := []string{planOpts.domain}
		if planOpts.domain == "" {
			var err error
			if domains, err = store.Domains(); err != nil {
				return err
			}
		}

		for _, domainID := range domains {
			catalog, err := store.Catalog(domainID)
			if err != nil {
				return err
			}

			jurisdictions := []string{planOpts.jurisdiction}
			if planOpts.jurisdiction == "" {
				if jurisdictions, err = store.Jurisdictions(domainID); err != nil {
					return err
				}
			}

			for _, jurisdictionID := range jurisdictions {
				printPlan(cmd, store, domainID, jurisdictionID, catalog)
			}
		}
		return nil
	},
}

func printPlan(cmd *cobra.Command, store *docstore.Store, domainID, jurisdictionID string, catalog []model.Question) {
	doc, err := store.FindDocument(domainID, jurisdictionID)
	if err != nil || doc == nil {
		cmd.Printf("%s/%s: no document\n", domainID, jurisdictionID)
		return
	}

	var existing []model.AnswerRecord
	rec, err := store.Record(domainID, jurisdictionID)
	recMT, mtErr := store.RecordModTime(domainID, jurisdictionID)
	switch {
	case err != nil:
		cmd.Printf("%s/%s: existing record unreadable, all questions treated as new\n", domainID, jurisdictionID)
	case rec == nil:
		// First analysis.
	case mtErr == nil && doc.ModTime.After(recMT):
		cmd.Printf("%s/%s: document newer than record, all questions treated as new\n", domainID, jurisdictionID)
	default:
		existing = rec.Questions
	}

	p := planner.Build(catalog, existing, planner.Options{
		Force:            planOpts.force,
		TargetQuestionID: planOpts.question,
	})

	cmd.Printf("%s/%s: analyze %d, keep %d, remove %d\n",
		domainID, jurisdictionID, len(p.ToAnalyze), len(p.ToKeep), len(p.ToRemove))
	for _, q := range p.ToAnalyze {
		cmd.Printf("  analyze  %s\n", q.ID)
	}
	for _, a := range p.ToRemove {
		cmd.Printf("  remove   %s\n", a.QuestionID)
	}
}

func init() {
	planCmd.Flags().StringVar(&planOpts.domain, "domain", "", "limit to one domain")
	planCmd.Flags().StringVar(&planOpts.jurisdiction, "jurisdiction", "", "limit to one jurisdiction")
	planCmd.Flags().BoolVar(&planOpts.force, "force", false, "plan as if --force were set")
	planCmd.Flags().StringVar(&planOpts.question, "question", "", "plan for a single question id")
	rootCmd.AddCommand(planCmd)
}

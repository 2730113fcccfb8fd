package main

import (
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var indexOpts struct {
	domain       string
	jurisdiction string
}

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Rebuild the similarity index for a jurisdiction's document",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		e, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		doc, err := e.store.FindDocument(indexOpts.domain, indexOpts.jurisdiction)
		if err != nil {
			return err
		}
		if doc == nil {
			return eris.Errorf("no document for %s/%s", indexOpts.domain, indexOpts.jurisdiction)
		}

		n, err := e.indexer.Index(ctx, doc.Text, indexOpts.jurisdiction, indexOpts.domain, doc.Type)
		if err != nil {
			return err
		}
		cmd.Printf("indexed %s/%s (%s): %d chunks\n",
			indexOpts.domain, indexOpts.jurisdiction, doc.Type, n)
		return nil
	},
}

func init() {
	indexCmd.Flags().StringVar(&indexOpts.domain, "domain", "", "domain id")
	indexCmd.Flags().StringVar(&indexOpts.jurisdiction, "jurisdiction", "", "jurisdiction id")
	indexCmd.MarkFlagRequired("domain")
	indexCmd.MarkFlagRequired("jurisdiction")
	rootCmd.AddCommand(indexCmd)
}

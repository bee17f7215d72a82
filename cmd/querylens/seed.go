package main

import (
	"context"

	"github.com/autom8ter/querylens"
	"github.com/autom8ter/querylens/store/embedded"
	"github.com/autom8ter/querylens/testutil"
	"github.com/spf13/cobra"
)

func seedCmd(flags *globalFlags) *cobra.Command {
	var (
		storagePath string
		opts        testutil.SeedOpts
	)
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "fill an embedded store with fake run records, results and query stats",
		RunE: func(_ *cobra.Command, _ []string) error {
			ctx := context.Background()
			logger, err := querylens.NewLogger(*flags.logLevel, map[string]any{"service": "querylens"})
			if err != nil {
				return err
			}
			defer logger.Sync(ctx)
			store, err := embedded.Open(ctx, embedded.DefaultProvider, map[string]any{"storage_path": storagePath})
			if err != nil {
				return err
			}
			defer store.Close(ctx)
			result, err := testutil.Seed(ctx, store, opts)
			if err != nil {
				return err
			}
			logger.Info(ctx, "seeded embedded store", map[string]any{
				"storage_path": storagePath,
				"runs":         len(result.RunIDs),
				"results":      result.Results,
				"query_stats":  result.QueryStats,
			})
			return printJSON(result)
		},
	}
	cmd.Flags().StringVarP(&storagePath, "storage-path", "p", "./querylens-data", "embedded store directory")
	cmd.Flags().IntVar(&opts.Runs, "runs", 5, "number of runs")
	cmd.Flags().IntVar(&opts.ResultsPerRun, "results", 20, "number of results per run")
	cmd.Flags().IntVar(&opts.QueryStats, "query-stats", 10, "number of query stats documents")
	return cmd
}

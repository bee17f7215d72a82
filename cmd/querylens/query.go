package main

import (
	"context"
	"encoding/json"

	"github.com/autom8ter/querylens/errors"
	"github.com/spf13/cobra"
)

func runIDsCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "run-ids",
		Short: "list the most recent run ids, newest first",
		RunE: func(_ *cobra.Command, _ []string) error {
			ctx := context.Background()
			a, err := flags.open(ctx)
			if err != nil {
				return err
			}
			defer a.Close(ctx)
			result, err := a.svc.RunIDs(ctx)
			if err != nil {
				return err
			}
			return printJSON(result)
		},
	}
}

func collectionsCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "collections",
		Short: "list the collection names of the store",
		RunE: func(_ *cobra.Command, _ []string) error {
			ctx := context.Background()
			a, err := flags.open(ctx)
			if err != nil {
				return err
			}
			defer a.Close(ctx)
			collections, err := a.svc.Collections(ctx)
			if err != nil {
				return err
			}
			return printJSON(collections)
		},
	}
}

func queryStatsCmd(flags *globalFlags) *cobra.Command {
	var transformIdentifiers string
	cmd := &cobra.Command{
		Use:   "querystats",
		Short: "print a query stats snapshot",
		RunE: func(_ *cobra.Command, _ []string) error {
			ctx := context.Background()
			var identifiers map[string]any
			if transformIdentifiers != "" {
				if err := json.Unmarshal([]byte(transformIdentifiers), &identifiers); err != nil {
					return errors.WrapKind(err, errors.ErrInvalidArgument, "invalid transform identifiers")
				}
			}
			a, err := flags.open(ctx)
			if err != nil {
				return err
			}
			defer a.Close(ctx)
			result, err := a.svc.QueryStats(ctx, identifiers)
			if err != nil {
				return err
			}
			return printJSON(result)
		},
	}
	cmd.Flags().StringVar(&transformIdentifiers, "transform-identifiers", "", `transform identifiers as json, e.g. {"algorithm":"hmac-sha-256"}`)
	return cmd
}

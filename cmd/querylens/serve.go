package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/autom8ter/querylens/transport/openapi"
	"github.com/spf13/cobra"
)

func serveCmd(flags *globalFlags) *cobra.Command {
	var (
		title   string
		version string
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "serve the query performance api",
		RunE: func(_ *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			a, err := flags.open(ctx)
			if err != nil {
				return err
			}
			defer a.Close(context.Background())
			server, err := openapi.New(openapi.Config{
				Title:            title,
				Version:          version,
				Description:      "query performance results and live query statistics",
				Port:             a.cfg.Server.Port,
				CORSOrigins:      a.cfg.Server.CORS.Origins,
				ValidateRequests: a.cfg.Server.ValidateRequests,
				FeedInterval:     a.cfg.Server.FeedInterval,
			}, a.svc, a.logger)
			if err != nil {
				return err
			}
			return server.Serve(ctx)
		},
	}
	cmd.Flags().StringVarP(&title, "title", "t", "querylens", "title of the openapi spec")
	cmd.Flags().StringVarP(&version, "version", "v", "v0.0.0", "version of the openapi spec")
	return cmd
}

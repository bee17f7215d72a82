package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	var (
		configPath string
		logLevel   string
	)
	cmd := &cobra.Command{
		Use:   "querylens",
		Short: "querylens browses query performance results and live query statistics",
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a json or yaml settings file")
	cmd.PersistentFlags().StringVarP(&logLevel, "log-level", "l", "", "log level (debug, info, warn, error)")
	flags := &globalFlags{configPath: &configPath, logLevel: &logLevel}
	cmd.AddCommand(
		serveCmd(flags),
		runIDsCmd(flags),
		collectionsCmd(flags),
		queryStatsCmd(flags),
		seedCmd(flags),
	)
	if err := cmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

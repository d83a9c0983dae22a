package cmd

import (
	"github.com/jrschumacher/folio/internal/config"
	"github.com/jrschumacher/folio/internal/logger"
	"github.com/jrschumacher/folio/server"
	"github.com/spf13/cobra"
)

var serverCmd = &cobra.Command{
	Use:     "server",
	Aliases: []string{"start"},
	Short:   "Start the folio server",
	RunE: func(_ *cobra.Command, _ []string) error {
		if err := config.Validate(cfg); err != nil {
			logger.Error("Invalid configuration", "error", err)
			return err
		}
		server.Start(cfg)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)
}

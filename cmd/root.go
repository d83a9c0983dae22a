package cmd

import (
	"os"

	"github.com/jrschumacher/folio/internal/config"
	"github.com/jrschumacher/folio/internal/logger"
	"github.com/spf13/cobra"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "folio",
	Short: "folio CLI",
	Long:  `folio: reading web app with backend-issued sessions`,
}

func Execute(c *config.Config) {
	cfg = c
	logger.Info("Starting CLI", "env", cfg.AppEnv)
	if err := rootCmd.Execute(); err != nil {
		logger.Error("CLI error", "error", err)
		os.Exit(1)
	}
}

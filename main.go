// Package main is the entry point for the folio application
package main

import (
	"github.com/jrschumacher/folio/cmd"
	"github.com/jrschumacher/folio/internal/config"
	"github.com/jrschumacher/folio/internal/logger"
)

func main() {
	cfg := config.Load()
	logger.Init(cfg.LogLevel, cfg.AppEnv)

	cmd.Execute(cfg)
}

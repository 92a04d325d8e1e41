package main

import (
	"fmt"
	"os"

	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"
	"go.uber.org/fx"

	"github.com/ArDangerUS/LegalFlowService-sub000/internal/daemon"
	"github.com/ArDangerUS/LegalFlowService-sub000/internal/workdir"
)

var opts struct {
	DataDir string `long:"data-dir" env:"LEGALFLOW_HOME" description:"relay data directory (default ~/.legalflow)"`
	Token   string `long:"token" env:"TELEGRAM_BOT_TOKEN" description:"telegram bot token (overrides config.toml)"`
}

func main() {
	// .env is optional; variables already set in the environment win.
	_ = godotenv.Load()

	if _, err := flags.Parse(&opts); err != nil {
		os.Exit(1)
	}

	dataDir := workdir.Resolve(opts.DataDir)
	if err := workdir.EnsureDir(dataDir); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	app := fx.New(
		daemon.Module(daemon.Params{
			DataDir: dataDir,
			Token:   opts.Token,
		}),
	)

	app.Run()
}

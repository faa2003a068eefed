package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrijs2005/liusync/internal/buildinfo"
	"github.com/dmitrijs2005/liusync/internal/client/cli"
	"github.com/dmitrijs2005/liusync/internal/client/config"
	"github.com/dmitrijs2005/liusync/internal/logging"
)

func main() {

	buildinfo.PrintBuildData(os.Stdout)

	cfg := config.LoadConfig()

	logger, closer := logging.NewFileLogger(logging.FileOptions{
		Path:       cfg.LogFile,
		MaxSizeMB:  10,
		MaxBackups: 3,
		MaxAgeDays: 28,
	})
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	secret := []byte(cfg.DeviceSecret)
	if len(secret) == 0 {
		var err error
		secret, err = cli.GetSecret(os.Stdout, "Device passphrase (empty keeps the session in memory only)")
		if err != nil {
			log.Fatalf("%v", err)
		}
	}

	app, err := cli.NewApp(ctx, cfg, logger, secret)
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer app.Close()

	if err := app.Run(ctx); err != nil {
		logger.Error(ctx, "client stopped", "error", err)
	}
}

package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/app"
	"github.com/IlyaStepanov1104/Backgammon-sub000/internal/config"
	log "github.com/sirupsen/logrus"
)

func main() {
	var cfg config.AppConfig
	var migrateOnly bool
	flag.StringVar(&cfg.ConfigPath, "config", "", "path to config.yaml (default $BGCARDS_CONFIG or config.yaml)")
	flag.BoolVar(&migrateOnly, "migrate", false, "apply database migrations and exit")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if migrateOnly {
		if errMigrate := app.Migrate(ctx, cfg); errMigrate != nil {
			log.WithError(errMigrate).Fatal("migrate failed")
		}
		return
	}
	if errRun := app.RunServer(ctx, cfg); errRun != nil {
		log.WithError(errRun).Fatal("server stopped")
	}
}

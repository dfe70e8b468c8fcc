package main

import (
	"context"
	"fmt"

	"github.com/MKhiriev/go-row-sync/internal/config"
	"github.com/MKhiriev/go-row-sync/internal/crypto"
	handler "github.com/MKhiriev/go-row-sync/internal/handler/http"
	"github.com/MKhiriev/go-row-sync/internal/logger"
	"github.com/MKhiriev/go-row-sync/internal/provider/postgres"
	"github.com/MKhiriev/go-row-sync/internal/server"
	"github.com/MKhiriev/go-row-sync/internal/sync"
	"github.com/MKhiriev/go-row-sync/internal/token"
	"github.com/MKhiriev/go-row-sync/migrations"
)

var (
	buildVersion string
	buildDate    string
	buildCommit  string
)

func main() {
	printBuildInfo()

	log := logger.NewLogger("row-sync-server")
	cfg, err := config.GetStructuredConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("error getting configs")
	}

	log.Debug().Any("config", cfg).Msg("received configs")

	factory, err := postgres.NewFactory(context.Background(), cfg.Storage.DB, log)
	if err != nil {
		log.Fatal().Err(err).Msg("error connecting to hub database")
	}

	if err = migrations.Migrate(factory.DB, "postgres"); err != nil {
		log.Fatal().Err(err).Msg("error running migrations")
	}

	opts := sync.OptionsFromConfig(cfg.Sync)
	if cfg.Sync.BatchEncryptionKey != "" {
		opts.Serializer = crypto.NewBatchCipher(cfg.Sync.BatchEncryptionKey)
	}

	coordinator := sync.NewCoordinator(factory, opts, log)
	tokens := token.NewService(cfg.Server.TokenSignKey, cfg.Server.TokenIssuer, token.DefaultTTL)

	router := handler.NewHandler(coordinator, tokens, log).Init()

	srv, err := server.NewServer(router, cfg.Server, log)
	if err != nil {
		log.Fatal().Err(err).Msg("error creating server")
	}

	srv.RunServer()
}

func printBuildInfo() {
	if buildVersion == "" {
		buildVersion = "N/A"
	}

	if buildDate == "" {
		buildDate = "N/A"
	}

	if buildCommit == "" {
		buildCommit = "N/A"
	}

	fmt.Printf("Build version: %s\n", buildVersion)
	fmt.Printf("Build date: %s\n", buildDate)
	fmt.Printf("Build commit: %s\n", buildCommit)
}

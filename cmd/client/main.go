package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"

	"github.com/MKhiriev/go-row-sync/internal/adapter"
	"github.com/MKhiriev/go-row-sync/internal/config"
	"github.com/MKhiriev/go-row-sync/internal/crypto"
	"github.com/MKhiriev/go-row-sync/internal/logger"
	"github.com/MKhiriev/go-row-sync/internal/provider/sqlite"
	"github.com/MKhiriev/go-row-sync/internal/sync"
	"github.com/MKhiriev/go-row-sync/internal/workers"
	"github.com/MKhiriev/go-row-sync/models"
)

var (
	buildVersion string
	buildDate    string
	buildCommit  string
)

func main() {
	printBuildInfo()

	log := logger.NewAgentLogger("row-sync-agent")
	cfg, err := config.GetStructuredConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("error getting configs")
	}

	clientID := cfg.Agent.ClientID
	if clientID == "" {
		clientID = uuid.NewString()
		log.Info().Str("client_id", clientID).Msg("generated client id")
	}

	factory, err := sqlite.NewFactory(context.Background(), cfg.Storage.SQLite, log)
	if err != nil {
		log.Fatal().Err(err).Msg("error opening replica database")
	}

	opts := sync.OptionsFromConfig(cfg.Sync)
	if cfg.Sync.BatchEncryptionKey != "" {
		opts.Serializer = crypto.NewBatchCipher(cfg.Sync.BatchEncryptionKey)
	}

	local := sync.NewLocalOrchestrator(factory, opts, log)
	remote := adapter.NewRemoteClient(adapter.HTTPClientConfig{
		BaseURL:      cfg.Remote.BaseURL,
		ClientID:     clientID,
		Timeout:      cfg.Remote.Timeout,
		TokenSignKey: cfg.Remote.TokenSignKey,
		TokenIssuer:  cfg.Remote.TokenIssuer,
	})

	setup, err := models.ParseSyncSetup(cfg.Agent.Tables...)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid agent tables")
	}
	agent := sync.NewAgent(local, remote, cfg.Agent.ScopeName, clientID, setup, opts, log)

	if cfg.Agent.SyncInterval <= 0 {
		result, err := agent.Synchronize(context.Background(), models.SyncTypeNormal)
		if err != nil {
			log.Fatal().Err(err).Msg("sync session failed")
		}

		log.Info().
			Int("uploaded", result.TotalChangesUploadedToServer).
			Int("downloaded", result.TotalChangesDownloaded).
			Int("conflicts", result.TotalResolvedConflicts).
			Msg("sync session finished")

		return
	}

	job := workers.NewSyncJob(agent, cfg.Agent.SyncInterval, log)
	workers.NewWorkers(job).Run()

	ctx, stop := signal.NotifyContext(
		context.Background(),
		syscall.SIGTERM,
		syscall.SIGINT,
		syscall.SIGQUIT,
	)
	defer stop()

	<-ctx.Done()
	job.Stop()
	log.Info().Msg("agent stopped")
	os.Exit(0)
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

// Package main is the ttconnectd entry point: an operational sidecar that
// keeps one broker's instrument cache fresh, checkpoints and backs up the
// database, and serves health/system endpoints for monitoring.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/tradetools/ttconnect/brokers"
	_ "github.com/tradetools/ttconnect/brokers/angelone"
	_ "github.com/tradetools/ttconnect/brokers/zerodha"
	"github.com/tradetools/ttconnect/config"
	"github.com/tradetools/ttconnect/internal/daemon"
	"github.com/tradetools/ttconnect/internal/maintenance"
	"github.com/tradetools/ttconnect/internal/objstore"
	"github.com/tradetools/ttconnect/internal/reliability"
	"github.com/tradetools/ttconnect/store"
)

func main() {
	var (
		brokerID      = flag.String("broker", "zerodha", "broker id to serve")
		port          = flag.Int("port", 8330, "HTTP listen port")
		retentionDays = flag.Int("retention-days", 30, "backup retention window, 0 keeps everything")
		logLevel      = flag.String("log-level", "info", "zerolog level")
	)
	flag.Parse()

	level, err := zerolog.ParseLevel(*logLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).
		With().Timestamp().Str("broker", *brokerID).Logger()

	cfg := config.FromEnv(*brokerID)

	adapter, err := brokers.New(*brokerID, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to construct adapter")
	}
	defer adapter.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := adapter.Login(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to authenticate")
	}

	st, err := store.Open(store.Options{
		Path:     filepath.Join(cfg.CacheDir(), *brokerID+"_instruments.db"),
		BrokerID: *brokerID,
		OnStale:  cfg.OnStale(),
		Log:      log,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open instrument store")
	}
	defer st.Close()

	if err := st.EnsureFresh(ctx, adapter.FetchInstruments); err != nil {
		log.Fatal().Err(err).Msg("Failed to prepare instrument master")
	}

	// Backups need a bucket; without one the daemon still serves
	// health/system/refresh.
	var backups *reliability.Backups
	if cfg.Has("s3_bucket") {
		obj, err := objstore.New(
			cfg.String("s3_endpoint"),
			cfg.String("s3_access_key"),
			cfg.String("s3_secret_key"),
			cfg.String("s3_bucket"),
			log,
		)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to construct object store client")
		}
		backups = reliability.NewBackups(st.DB(), obj, *brokerID, log)
	}

	scheduler := maintenance.New(log)
	jobs := []struct {
		schedule string
		job      maintenance.Job
	}{
		{maintenance.DefaultRefreshSchedule, maintenance.NewRefreshJob(st, adapter.FetchInstruments, log)},
		{maintenance.DefaultCheckpointSchedule, maintenance.NewCheckpointJob(st.DB(), log)},
	}
	if backups != nil {
		jobs = append(jobs, struct {
			schedule string
			job      maintenance.Job
		}{maintenance.DefaultBackupSchedule, maintenance.NewBackupJob(backups, *retentionDays, log)})
	}
	for _, entry := range jobs {
		if err := scheduler.AddJob(entry.schedule, entry.job); err != nil {
			log.Fatal().Err(err).Str("job", entry.job.Name()).Msg("Failed to register job")
		}
	}
	scheduler.Start()
	defer scheduler.Stop()

	srv := daemon.New(daemon.Config{
		Log:      log,
		BrokerID: *brokerID,
		Store:    st,
		Fetch:    adapter.FetchInstruments,
		Backups:  backups,
		Port:     *port,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("Shutdown signal received")
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("Daemon failed")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Graceful shutdown failed")
	}
}

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/LexiconIndonesia/tesauro-crawler/common/config"
	"github.com/LexiconIndonesia/tesauro-crawler/common/db"
	"github.com/LexiconIndonesia/tesauro-crawler/common/logger"
	"github.com/LexiconIndonesia/tesauro-crawler/common/messaging"
	"github.com/LexiconIndonesia/tesauro-crawler/common/redis"
	"github.com/LexiconIndonesia/tesauro-crawler/common/storage"
	"github.com/LexiconIndonesia/tesauro-crawler/common/work"
	"github.com/LexiconIndonesia/tesauro-crawler/crawlers/tesauro"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// infra holds the optional backing services. Fields are nil when the
// matching configuration is empty.
type infra struct {
	db    *db.DB
	redis *redis.RedisClient
	nats  *messaging.NatsBroker
	gcs   *storage.GCSStorage
}

func (i *infra) close() {
	if i.nats != nil {
		if err := i.nats.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to drain NATS connection")
		}
	}
	if i.gcs != nil {
		if err := i.gcs.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close GCS client")
		}
	}
	if i.redis != nil {
		if err := i.redis.Close(); err != nil {
			log.Warn().Err(err).Msg("Failed to close Redis client")
		}
	}
	if i.db != nil {
		i.db.Close()
	}
}

func setupInfra(ctx context.Context, cfg config.Config) (*infra, error) {
	i := &infra{}

	if cfg.PgSql.Enabled() {
		dbConn, err := db.SetupDatabase(ctx, cfg)
		if err != nil {
			return i, err
		}
		i.db = dbConn
		log.Info().Msg("Database connected")
	}

	if cfg.Redis.Enabled() {
		client, err := redis.NewClient(ctx, cfg)
		if err != nil {
			return i, err
		}
		i.redis = client
		log.Info().Str("addr", cfg.Redis.Addr()).Msg("Redis connected")
	}

	if cfg.Nats.Enabled() {
		broker, err := messaging.SetupNatsBroker(ctx, cfg)
		if err != nil {
			return i, err
		}
		i.nats = broker
		log.Info().Bool("jetstream", broker.JetStream()).Msg("NATS connected")
	}

	if cfg.GCS.Enabled() {
		gcs, err := storage.NewGCSStorage(ctx, cfg.GCS)
		if err != nil {
			return i, err
		}
		i.gcs = gcs
		log.Info().Str("bucket", cfg.GCS.Bucket).Msg("GCS storage ready")
	}

	return i, nil
}

// serviceOptions registers the sinks of the configured infrastructure. The
// storage sink goes first so later sinks see the uploaded document URL.
func serviceOptions(i *infra) []tesauro.ServiceOption {
	var sinks []tesauro.Sink
	var opts []tesauro.ServiceOption

	if i.gcs != nil {
		sinks = append(sinks, tesauro.NewStorageSink(i.gcs))
	}
	if i.db != nil {
		sinks = append(sinks, tesauro.NewPostgresSink(i.db.Queries))

		hook := logger.NewCrawlerLogHook(i.db.Queries)
		logger.InitializeLogging(hook)
		opts = append(opts, tesauro.WithRunScope(hook.BindRun))
		log.Info().Msg("Zerolog database hook initialized")
	}
	if i.nats != nil {
		sinks = append(sinks, tesauro.NewNatsSink(i.nats))
	}

	return append(opts, tesauro.WithServiceSinks(sinks...))
}

func main() {
	// INITIATE CONFIGURATION
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("Error loading .env file, using environment variables")
	}

	cfg := config.DefaultConfig()
	cfg.LoadFromEnv()
	logger.Setup(cfg.Log.Level, cfg.Log.Format)

	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// INITIATE INFRASTRUCTURE
	deps, err := setupInfra(ctx, cfg)
	if err != nil {
		deps.close()
		log.Fatal().Err(err).Msg("Failed to setup infrastructure")
	}
	defer deps.close()

	svc, err := tesauro.NewService(
		tesauro.OptionsFromConfig(cfg.Tesauro),
		tesauro.RodPortalOpener(cfg.Browser),
		work.NewRunManager(deps.redis, deps.db),
		serviceOptions(deps)...,
	)
	if err != nil {
		deps.close()
		log.Fatal().Err(err).Msg("Failed to create tesauro service")
	}

	switch cfg.Mode {
	case config.RunModeServe:
		err = serve(ctx, cfg, svc, deps)
	default:
		err = runOnce(ctx, svc)
	}
	if err != nil {
		deps.close()
		log.Fatal().Err(err).Msg("Exiting with error")
	}
}

func runOnce(ctx context.Context, svc *tesauro.Service) error {
	runID, err := work.NewRunID()
	if err != nil {
		return err
	}

	opts := svc.Options()
	log.Info().Str("runID", runID).Str("url", opts.URL).Int("pages", opts.Pages).Str("output", opts.OutputFile).Msg("Starting run")

	summary, err := svc.RunOnce(ctx, runID, opts)
	if err != nil {
		return err
	}

	log.Info().
		Str("runID", runID).
		Int("records", summary.Records).
		Int("skipped", summary.Skipped).
		Int("pagesSkipped", summary.PagesSkipped).
		Str("output", opts.OutputFile).
		Msg("Run finished")
	return nil
}

func serve(ctx context.Context, cfg config.Config, svc *tesauro.Service, deps *infra) error {
	svc.Start(ctx)
	defer svc.Stop()

	if deps.nats != nil {
		consumer, err := messaging.ConsumeRunRequests(ctx, deps.nats, svc.HandleRunRequest)
		if err != nil {
			return err
		}
		defer consumer.Stop()
		log.Info().Str("subject", messaging.SubjectRunRequest).Msg("Listening for run requests")
	}

	// INITIATE SERVER
	server := NewAppHttpServer(cfg, svc)
	if deps.db != nil {
		server.SetLogStore(deps.db.Queries)
		server.AddDependency("postgres", deps.db)
	}
	if deps.redis != nil {
		server.AddDependency("redis", deps.redis)
	}
	if deps.nats != nil {
		server.AddDependency("nats", deps.nats)
	}
	if deps.gcs != nil {
		server.AddDependency("gcs", deps.gcs)
	}
	server.setupRoute()

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.start()
	}()

	var err error
	select {
	case <-ctx.Done():
		log.Info().Msg("Shutdown signal received")
	case err = <-serverErr:
		if err != nil {
			log.Error().Err(err).Msg("Server error")
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if stopErr := server.stop(shutdownCtx); stopErr != nil {
		log.Error().Err(stopErr).Msg("Server shutdown failed")
	}

	log.Info().Msg("Server gracefully stopped")
	return err
}

package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/LexiconIndonesia/tesauro-crawler/common/config"
	"github.com/LexiconIndonesia/tesauro-crawler/repository"
	zerolog "github.com/jackc/pgx-zerolog"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/tracelog"

	"github.com/rs/zerolog/log"
)

// DB provides access to the database
type DB struct {
	Pool    *pgxpool.Pool
	Queries *repository.Queries
}

// New creates a new DB instance
func New(pool *pgxpool.Pool, queries *repository.Queries) (*DB, error) {
	if pool == nil {
		return nil, errors.New("cannot use nil database pool")
	}
	if queries == nil {
		return nil, errors.New("cannot use nil queries")
	}
	return &DB{
		Pool:    pool,
		Queries: queries,
	}, nil
}

// Close closes the database connection
func (db *DB) Close() {
	if db.Pool != nil {
		db.Pool.Close()
	}
}

// Ping checks if the database connection is alive
func (db *DB) Ping(ctx context.Context) error {
	return db.Pool.Ping(ctx)
}

// Migrate creates the crawler tables when they do not exist yet.
func (db *DB) Migrate(ctx context.Context) error {
	if _, err := db.Pool.Exec(ctx, repository.Schema); err != nil {
		return fmt.Errorf("applying schema: %w", err)
	}
	log.Info().Msg("Database schema is up to date")
	return nil
}

// SetupDatabase connects to Postgres, verifies the connection and applies the schema.
func SetupDatabase(ctx context.Context, cfg config.Config) (*DB, error) {
	config, err := pgxpool.ParseConfig(cfg.PgSql.ConnStr())
	if err != nil {
		return nil, fmt.Errorf("parsing database config: %w", err)
	}

	// A run writes sequentially; a small pool is enough.
	config.MaxConns = 5
	config.MinConns = 1
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute
	config.HealthCheckPeriod = 1 * time.Minute

	// crawler_logs inserts come from the log hook; tracing them would loop.
	logger := zerolog.NewLogger(log.Logger)
	config.ConnConfig.Tracer = &FilteredTracer{
		inner: &tracelog.TraceLog{
			Logger:   logger,
			LogLevel: tracelog.LogLevelWarn,
		},
		skipTable: "crawler_logs",
	}

	pgsqlClient, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	if err := pgsqlClient.Ping(ctx); err != nil {
		pgsqlClient.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	dbConn, err := New(pgsqlClient, repository.New(pgsqlClient))
	if err != nil {
		pgsqlClient.Close()
		return nil, fmt.Errorf("creating DB handler: %w", err)
	}

	if err := dbConn.Migrate(ctx); err != nil {
		dbConn.Close()
		return nil, err
	}

	return dbConn, nil
}

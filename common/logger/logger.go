package logger

import (
	"context"
	"encoding/json"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/LexiconIndonesia/tesauro-crawler/repository"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const storeTimeout = 5 * time.Second

// Setup configures the global zerolog logger. format is "console" or "json".
func Setup(level, format string) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	zerolog.TimeFieldFormat = time.RFC3339

	if strings.EqualFold(format, "json") {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	} else {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	if err != nil && level != "" {
		log.Warn().Str("level", level).Msg("Unknown log level, using info")
	}
}

// LogStore persists crawler log rows.
type LogStore interface {
	CreateCrawlerLog(ctx context.Context, arg repository.CreateCrawlerLogParams) error
}

// CrawlerLogHook implements zerolog.Hook and stores warnings and errors in
// the crawler_logs table, tagged with the run that is currently bound.
type CrawlerLogHook struct {
	store    LogStore
	minLevel zerolog.Level
	runID    atomic.Pointer[string]
	// fallback reports store failures without going through the hook.
	fallback zerolog.Logger
}

// NewCrawlerLogHook creates a new log hook
func NewCrawlerLogHook(store LogStore) *CrawlerLogHook {
	return &CrawlerLogHook{
		store:    store,
		minLevel: zerolog.WarnLevel,
		fallback: log.Logger,
	}
}

// BindRun tags subsequent events with runID until the returned function is
// called.
func (h *CrawlerLogHook) BindRun(runID string) func() {
	bound := &runID
	h.runID.Store(bound)
	return func() {
		h.runID.CompareAndSwap(bound, nil)
	}
}

func (h *CrawlerLogHook) currentRun() string {
	if id := h.runID.Load(); id != nil {
		return *id
	}
	return ""
}

// Run implements zerolog.Hook.Run
func (h *CrawlerLogHook) Run(e *zerolog.Event, level zerolog.Level, msg string) {
	if level < h.minLevel || level == zerolog.NoLevel || level == zerolog.Disabled {
		return
	}

	params, err := newLogParams(h.currentRun(), level, msg)
	if err != nil {
		h.fallback.Error().Err(err).Msg("Failed to build crawler log entry")
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		defer cancel()
		if err := h.store.CreateCrawlerLog(ctx, params); err != nil {
			h.fallback.Error().Err(err).Msg("Failed to log to database via hook")
		}
	}()
}

func newLogParams(runID string, level zerolog.Level, msg string) (repository.CreateCrawlerLogParams, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return repository.CreateCrawlerLogParams{}, err
	}

	details, err := json.Marshal(map[string]string{"level": level.String()})
	if err != nil {
		details = []byte("{}")
	}

	return repository.CreateCrawlerLogParams{
		ID:        id.String(),
		RunID:     pgtype.Text{String: runID, Valid: runID != ""},
		EventType: "log." + level.String(),
		Message:   pgtype.Text{String: msg, Valid: msg != ""},
		Details:   details,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// InitializeLogging installs hook on the global logger.
func InitializeLogging(hook *CrawlerLogHook) {
	log.Logger = log.Logger.Hook(hook)
}

package work

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/LexiconIndonesia/tesauro-crawler/common/db"
	"github.com/LexiconIndonesia/tesauro-crawler/common/redis"
	"github.com/LexiconIndonesia/tesauro-crawler/repository"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/rs/zerolog/log"
)

const (
	workStateKeyPrefix = "work:state:"
	activeRunKey       = "tesauro:run:active"
	runningState       = "running"
	// workTimeout bounds how long a crashed run can keep its locks.
	workTimeout = 24 * time.Hour
)

var (
	ErrRunInProgress = errors.New("a run is already in progress")
	ErrRunNotFound   = errors.New("run not found")
)

type RunStatus string

const (
	RunQueued    RunStatus = "queued"
	RunRunning   RunStatus = "running"
	RunFinished  RunStatus = "finished"
	RunFailed    RunStatus = "failed"
	RunCancelled RunStatus = "cancelled"
)

func (s RunStatus) Terminal() bool {
	return s == RunFinished || s == RunFailed || s == RunCancelled
}

// RunCounts are the progress counters of a run.
type RunCounts struct {
	PagesVisited int `json:"pages_visited"`
	Records      int `json:"records"`
	Skipped      int `json:"skipped"`
	Documents    int `json:"documents"`
}

// RunState is the externally visible state of a run.
type RunState struct {
	ID         string     `json:"id"`
	Status     RunStatus  `json:"status"`
	Pages      int        `json:"pages"`
	Counts     RunCounts  `json:"counts"`
	Error      string     `json:"error,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// RunManager tracks runs and guarantees at most one active run. Locks live
// in Redis when configured and in process memory otherwise; run rows are
// persisted to Postgres when configured.
type RunManager struct {
	redis *redis.RedisClient
	db    *db.DB

	mu      sync.Mutex
	pending map[string]struct{}
	runs    map[string]*RunState
}

// NewRunManager creates a RunManager. Both dependencies may be nil.
func NewRunManager(redisClient *redis.RedisClient, dbConn *db.DB) *RunManager {
	return &RunManager{
		redis:   redisClient,
		db:      dbConn,
		pending: make(map[string]struct{}),
		runs:    make(map[string]*RunState),
	}
}

func (m *RunManager) workKey(runID string) string {
	return fmt.Sprintf("%s%s", workStateKeyPrefix, runID)
}

// Busy reports whether a run is queued or running here, or running on any
// instance sharing the Redis lock.
func (m *RunManager) Busy(ctx context.Context) (bool, error) {
	m.mu.Lock()
	local := len(m.pending) > 0
	m.mu.Unlock()
	if local || m.redis == nil {
		return local, nil
	}

	_, err := m.redis.Get(ctx, activeRunKey)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("reading active run: %w", err)
	}
	return true, nil
}

// Enqueue registers runID as queued. It fails with ErrRunInProgress when
// another run is queued or running.
func (m *RunManager) Enqueue(ctx context.Context, runID string, pages int) error {
	busy, err := m.Busy(ctx)
	if err != nil {
		return err
	}

	m.mu.Lock()
	if busy || len(m.pending) > 0 {
		m.mu.Unlock()
		return ErrRunInProgress
	}
	m.pending[runID] = struct{}{}
	m.runs[runID] = &RunState{
		ID:        runID,
		Status:    RunQueued,
		Pages:     pages,
		CreatedAt: time.Now().UTC(),
	}
	m.mu.Unlock()

	if m.db != nil {
		if _, err := m.db.Queries.CreateRun(ctx, repository.CreateRunParams{
			ID:     runID,
			Status: string(RunQueued),
			Pages:  int32(pages),
		}); err != nil {
			log.Warn().Err(err).Str("runID", runID).Msg("failed to persist run to DB")
		}
	}
	return nil
}

// Start takes the run locks and marks runID as running. On failure the run
// is marked failed and released.
func (m *RunManager) Start(ctx context.Context, runID string) error {
	m.mu.Lock()
	state, enqueued := m.runs[runID]
	if !enqueued {
		// Runs started without Enqueue (single-shot mode).
		m.pending[runID] = struct{}{}
		state = &RunState{ID: runID, CreatedAt: time.Now().UTC()}
		m.runs[runID] = state
	}
	m.mu.Unlock()

	if m.db != nil && !enqueued {
		if _, err := m.db.Queries.CreateRun(ctx, repository.CreateRunParams{
			ID:     runID,
			Status: string(RunQueued),
		}); err != nil {
			log.Warn().Err(err).Str("runID", runID).Msg("failed to persist run to DB")
		}
	}

	if err := m.lock(ctx, runID); err != nil {
		m.Abandon(ctx, runID, err)
		return err
	}

	now := time.Now().UTC()
	m.mu.Lock()
	state.Status = RunRunning
	state.StartedAt = &now
	m.mu.Unlock()

	m.persistStatus(ctx, runID, RunRunning, "")
	return nil
}

func (m *RunManager) lock(ctx context.Context, runID string) error {
	if m.redis == nil {
		return nil
	}

	acquired, err := m.redis.SetNX(ctx, activeRunKey, runID, workTimeout)
	if err != nil {
		return fmt.Errorf("failed to start run %s: %w", runID, err)
	}
	if !acquired {
		return ErrRunInProgress
	}
	if err := m.redis.Set(ctx, m.workKey(runID), runningState, workTimeout); err != nil {
		_, _ = m.redis.DeleteIfValue(ctx, activeRunKey, runID)
		return fmt.Errorf("failed to record run %s state: %w", runID, err)
	}
	return nil
}

// Progress records counters of a running run and refreshes its locks.
func (m *RunManager) Progress(ctx context.Context, runID string, counts RunCounts) {
	m.mu.Lock()
	if state, ok := m.runs[runID]; ok {
		state.Counts = counts
	}
	m.mu.Unlock()

	if m.redis != nil {
		if err := m.redis.Expire(ctx, m.workKey(runID), workTimeout); err != nil {
			log.Warn().Err(err).Str("runID", runID).Msg("failed to extend run state")
		}
	}
	m.persistCounts(ctx, runID, counts)
}

func (m *RunManager) persistCounts(ctx context.Context, runID string, counts RunCounts) {
	if m.db == nil {
		return
	}
	if err := m.db.Queries.UpdateRunCounts(ctx, repository.UpdateRunCountsParams{
		ID:           runID,
		PagesVisited: int32(counts.PagesVisited),
		Records:      int32(counts.Records),
		Skipped:      int32(counts.Skipped),
		Documents:    int32(counts.Documents),
	}); err != nil {
		log.Warn().Err(err).Str("runID", runID).Msg("failed to persist run progress to DB")
	}
}

// Finish releases the run locks and stores the final status. A nil runErr
// means finished, context cancellation means cancelled, anything else failed.
func (m *RunManager) Finish(ctx context.Context, runID string, counts RunCounts, runErr error) RunStatus {
	status := RunFinished
	msg := ""
	switch {
	case runErr == nil:
	case errors.Is(runErr, context.Canceled):
		status = RunCancelled
		msg = runErr.Error()
	default:
		status = RunFailed
		msg = runErr.Error()
	}

	now := time.Now().UTC()
	m.mu.Lock()
	delete(m.pending, runID)
	if state, ok := m.runs[runID]; ok {
		state.Status = status
		state.Counts = counts
		state.Error = msg
		state.FinishedAt = &now
	}
	m.mu.Unlock()

	if m.redis != nil {
		if _, err := m.redis.DeleteIfValue(ctx, activeRunKey, runID); err != nil {
			log.Warn().Err(err).Str("runID", runID).Msg("failed to release run lock")
		}
		if err := m.redis.Delete(ctx, m.workKey(runID)); err != nil {
			log.Warn().Err(err).Str("runID", runID).Msg("failed to remove run state")
		}
	}

	m.persistCounts(ctx, runID, counts)
	m.persistStatus(ctx, runID, status, msg)
	return status
}

// Abandon drops a queued run that never started.
func (m *RunManager) Abandon(ctx context.Context, runID string, reason error) {
	m.mu.Lock()
	delete(m.pending, runID)
	if state, ok := m.runs[runID]; ok {
		now := time.Now().UTC()
		state.Status = RunFailed
		state.Error = reason.Error()
		state.FinishedAt = &now
	}
	m.mu.Unlock()

	m.persistStatus(ctx, runID, RunFailed, reason.Error())
}

// Get returns the state of runID from memory, falling back to Postgres.
func (m *RunManager) Get(ctx context.Context, runID string) (RunState, error) {
	m.mu.Lock()
	if state, ok := m.runs[runID]; ok {
		out := *state
		m.mu.Unlock()
		return out, nil
	}
	m.mu.Unlock()

	if m.db == nil {
		return RunState{}, ErrRunNotFound
	}

	run, err := m.db.Queries.GetRun(ctx, runID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return RunState{}, ErrRunNotFound
		}
		return RunState{}, fmt.Errorf("get run: %w", err)
	}
	return stateFromRow(run), nil
}

// List returns up to limit runs, newest first. Postgres is the source when
// configured; otherwise only runs of this process are known.
func (m *RunManager) List(ctx context.Context, limit int) ([]RunState, error) {
	if m.db != nil {
		rows, err := m.db.Queries.ListRuns(ctx, int32(limit))
		if err != nil {
			return nil, fmt.Errorf("list runs: %w", err)
		}
		states := make([]RunState, 0, len(rows))
		for _, row := range rows {
			states = append(states, stateFromRow(row))
		}
		return states, nil
	}

	m.mu.Lock()
	states := make([]RunState, 0, len(m.runs))
	for _, state := range m.runs {
		states = append(states, *state)
	}
	m.mu.Unlock()

	sort.Slice(states, func(i, j int) bool {
		return states[i].CreatedAt.After(states[j].CreatedAt)
	})
	if len(states) > limit {
		states = states[:limit]
	}
	return states, nil
}

func (m *RunManager) persistStatus(ctx context.Context, runID string, status RunStatus, msg string) {
	if m.db == nil || m.db.Queries == nil {
		return
	}

	if _, err := m.db.Queries.UpdateRunStatus(ctx, repository.UpdateRunStatusParams{
		ID:     runID,
		Status: string(status),
		Error:  pgtype.Text{String: msg, Valid: msg != ""},
	}); err != nil {
		log.Warn().Err(err).Str("runID", runID).Str("status", string(status)).Msg("failed to persist run status to DB")
	}
}

func stateFromRow(run repository.Run) RunState {
	state := RunState{
		ID:     run.ID,
		Status: RunStatus(run.Status),
		Pages:  int(run.Pages),
		Counts: RunCounts{
			PagesVisited: int(run.PagesVisited),
			Records:      int(run.Records),
			Skipped:      int(run.Skipped),
			Documents:    int(run.Documents),
		},
		CreatedAt: run.CreatedAt.Time,
	}
	if run.Error.Valid {
		state.Error = run.Error.String
	}
	if run.StartedAt.Valid {
		t := run.StartedAt.Time
		state.StartedAt = &t
	}
	if run.FinishedAt.Valid {
		t := run.FinishedAt.Time
		state.FinishedAt = &t
	}
	return state
}

package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/LexiconIndonesia/tesauro-crawler/common/messaging"
	"github.com/LexiconIndonesia/tesauro-crawler/common/work"
	"github.com/LexiconIndonesia/tesauro-crawler/crawlers/tesauro"
	"github.com/LexiconIndonesia/tesauro-crawler/repository"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRunService struct {
	submitted []messaging.RunRequest
	submitErr error
	runs      map[string]work.RunState
	records   []tesauro.Record
	stats     work.PoolStats
}

func (f *fakeRunService) Submit(ctx context.Context, req messaging.RunRequest) (string, error) {
	if f.submitErr != nil {
		return "", f.submitErr
	}
	f.submitted = append(f.submitted, req)
	return "run-new", nil
}

func (f *fakeRunService) Run(ctx context.Context, runID string) (work.RunState, error) {
	state, ok := f.runs[runID]
	if !ok {
		return work.RunState{}, work.ErrRunNotFound
	}
	return state, nil
}

func (f *fakeRunService) Runs(ctx context.Context, limit int) ([]work.RunState, error) {
	out := make([]work.RunState, 0, len(f.runs))
	for _, s := range f.runs {
		out = append(out, s)
	}
	return out, nil
}

func (f *fakeRunService) QueueStats() work.PoolStats {
	return f.stats
}

func (f *fakeRunService) Records() ([]tesauro.Record, error) {
	return f.records, nil
}

type fakeLogStore struct {
	rows []repository.CrawlerLog
}

func (f *fakeLogStore) ListCrawlerLogsByRun(ctx context.Context, arg repository.ListCrawlerLogsByRunParams) ([]repository.CrawlerLog, error) {
	return f.rows, nil
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestCreateRun(t *testing.T) {
	svc := &fakeRunService{}
	h := NewRunHandler(svc, nil).Router()

	rec := do(t, h, http.MethodPost, "/", `{"pages":2,"download_documents":true}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.JSONEq(t, `{"data":{"run_id":"run-new"}}`, rec.Body.String())

	require.Len(t, svc.submitted, 1)
	assert.Equal(t, 2, svc.submitted[0].Pages)
	require.NotNil(t, svc.submitted[0].DownloadDocuments)
	assert.True(t, *svc.submitted[0].DownloadDocuments)

	rec = do(t, h, http.MethodPost, "/", "")
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestCreateRunRejects(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		err    error
		status int
	}{
		{"malformed body", `{"pages":`, nil, http.StatusBadRequest},
		{"negative pages", `{"pages":-1}`, nil, http.StatusBadRequest},
		{"run in progress", `{}`, work.ErrRunInProgress, http.StatusConflict},
		{"queue failure", `{}`, errors.New("queue full"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewRunHandler(&fakeRunService{submitErr: tt.err}, nil).Router()
			rec := do(t, h, http.MethodPost, "/", tt.body)
			assert.Equal(t, tt.status, rec.Code)
		})
	}
}

func TestGetRun(t *testing.T) {
	svc := &fakeRunService{runs: map[string]work.RunState{
		"run-1": {ID: "run-1", Status: work.RunRunning, Pages: 30, Counts: work.RunCounts{Records: 12}},
	}}
	h := NewRunHandler(svc, nil).Router()

	rec := do(t, h, http.MethodGet, "/run-1", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data work.RunState `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, work.RunRunning, body.Data.Status)
	assert.Equal(t, 12, body.Data.Counts.Records)

	rec = do(t, h, http.MethodGet, "/missing", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestQueueStats(t *testing.T) {
	svc := &fakeRunService{stats: work.PoolStats{Running: 1, Queued: 3, Completed: 2}}
	h := NewRunHandler(svc, nil).Router()

	rec := do(t, h, http.MethodGet, "/queue", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"data":{"running":1,"queued":3,"completed":2,"in_queue":0}}`, rec.Body.String())
}

func TestRunLogs(t *testing.T) {
	svc := &fakeRunService{}
	assert.Equal(t, http.StatusNotFound, do(t, NewRunHandler(svc, nil).Router(), http.MethodGet, "/run-1/logs", "").Code)

	store := &fakeLogStore{rows: []repository.CrawlerLog{{
		ID:        "log-1",
		RunID:     pgtype.Text{String: "run-1", Valid: true},
		EventType: "log.warn",
		Message:   pgtype.Text{String: "Page advance timed out", Valid: true},
		Details:   []byte(`{"level":"warn"}`),
		CreatedAt: pgtype.Timestamptz{Time: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC), Valid: true},
	}}}
	rec := do(t, NewRunHandler(svc, store).Router(), http.MethodGet, "/run-1/logs", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"data":[{"id":"log-1","run_id":"run-1","event_type":"log.warn","message":"Page advance timed out","details":{"level":"warn"},"created_at":"2026-01-02T03:04:05Z"}]}`, rec.Body.String())
}

func TestListRecordsPaginates(t *testing.T) {
	records := make([]tesauro.Record, 0, 7)
	for i := 1; i <= 7; i++ {
		records = append(records, tesauro.Record{Page: 1, Card: i, Title: "Sentencia", ProcessNumber: "2023-800-1"})
	}
	h := NewRecordHandler(&fakeRunService{records: records}).Router()

	rec := do(t, h, http.MethodGet, "/?page=2&per_page=5", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Data []tesauro.Record `json:"data"`
		Meta struct {
			LastPage int `json:"last_page"`
			Total    int `json:"total"`
		} `json:"meta"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Data, 2)
	assert.Equal(t, 6, body.Data[0].Card)
	assert.Equal(t, 2, body.Meta.LastPage)
	assert.Equal(t, 7, body.Meta.Total)

	rec = do(t, h, http.MethodGet, "/?page=9", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Empty(t, body.Data)
}

func TestListRecordsHugePage(t *testing.T) {
	records := make([]tesauro.Record, 7)
	h := NewRecordHandler(&fakeRunService{records: records}).Router()

	for _, target := range []string{"/?page=4611686018427387905&per_page=3", "/?page=9223372036854775807&per_page=500"} {
		rec := do(t, h, http.MethodGet, target, "")
		require.Equal(t, http.StatusOK, rec.Code, target)

		var body struct {
			Data []tesauro.Record `json:"data"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Empty(t, body.Data, target)
	}
}

func TestHealth(t *testing.T) {
	healthy := pingFunc(func(ctx context.Context) error { return nil })
	down := pingFunc(func(ctx context.Context) error { return errors.New("connection refused") })

	h := NewHealthHandler(map[string]Pinger{"postgres": healthy}).Router()
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/", "").Code)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/ready", "").Code)

	h = NewHealthHandler(map[string]Pinger{"postgres": healthy, "redis": down}).Router()
	rec := do(t, h, http.MethodGet, "/ready", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "connection refused")
}

package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const runColumns = `id, status, pages, pages_visited, records, skipped, documents, error, created_at, started_at, finished_at`

func scanRun(row interface{ Scan(...any) error }) (Run, error) {
	var i Run
	err := row.Scan(
		&i.ID,
		&i.Status,
		&i.Pages,
		&i.PagesVisited,
		&i.Records,
		&i.Skipped,
		&i.Documents,
		&i.Error,
		&i.CreatedAt,
		&i.StartedAt,
		&i.FinishedAt,
	)
	return i, err
}

const createRun = `-- name: CreateRun :one
INSERT INTO runs (id, status, pages)
VALUES ($1, $2, $3)
ON CONFLICT (id) DO UPDATE SET status = EXCLUDED.status, pages = EXCLUDED.pages
RETURNING ` + runColumns

type CreateRunParams struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Pages  int32  `json:"pages"`
}

func (q *Queries) CreateRun(ctx context.Context, arg CreateRunParams) (Run, error) {
	row := q.db.QueryRow(ctx, createRun, arg.ID, arg.Status, arg.Pages)
	return scanRun(row)
}

const updateRunStatus = `-- name: UpdateRunStatus :one
UPDATE runs
SET status      = $2,
    error       = $3,
    started_at  = CASE WHEN $2 = 'running' AND started_at IS NULL THEN now() ELSE started_at END,
    finished_at = CASE WHEN $2 IN ('finished', 'failed', 'cancelled') THEN now() ELSE finished_at END
WHERE id = $1
RETURNING ` + runColumns

type UpdateRunStatusParams struct {
	ID     string      `json:"id"`
	Status string      `json:"status"`
	Error  pgtype.Text `json:"error"`
}

func (q *Queries) UpdateRunStatus(ctx context.Context, arg UpdateRunStatusParams) (Run, error) {
	row := q.db.QueryRow(ctx, updateRunStatus, arg.ID, arg.Status, arg.Error)
	return scanRun(row)
}

const updateRunCounts = `-- name: UpdateRunCounts :exec
UPDATE runs
SET pages_visited = $2,
    records       = $3,
    skipped       = $4,
    documents     = $5
WHERE id = $1`

type UpdateRunCountsParams struct {
	ID           string `json:"id"`
	PagesVisited int32  `json:"pages_visited"`
	Records      int32  `json:"records"`
	Skipped      int32  `json:"skipped"`
	Documents    int32  `json:"documents"`
}

func (q *Queries) UpdateRunCounts(ctx context.Context, arg UpdateRunCountsParams) error {
	_, err := q.db.Exec(ctx, updateRunCounts,
		arg.ID,
		arg.PagesVisited,
		arg.Records,
		arg.Skipped,
		arg.Documents,
	)
	return err
}

const getRun = `-- name: GetRun :one
SELECT ` + runColumns + `
FROM runs
WHERE id = $1`

func (q *Queries) GetRun(ctx context.Context, id string) (Run, error) {
	row := q.db.QueryRow(ctx, getRun, id)
	return scanRun(row)
}

const listRuns = `-- name: ListRuns :many
SELECT ` + runColumns + `
FROM runs
ORDER BY created_at DESC
LIMIT $1`

func (q *Queries) ListRuns(ctx context.Context, limit int32) ([]Run, error) {
	rows, err := q.db.Query(ctx, listRuns, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Run
	for rows.Next() {
		i, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

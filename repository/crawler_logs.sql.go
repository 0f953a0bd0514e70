package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

const createCrawlerLog = `-- name: CreateCrawlerLog :exec
INSERT INTO crawler_logs (id, run_id, event_type, message, details, created_at)
VALUES ($1, $2, $3, $4, $5, $6)`

type CreateCrawlerLogParams struct {
	ID        string      `json:"id"`
	RunID     pgtype.Text `json:"run_id"`
	EventType string      `json:"event_type"`
	Message   pgtype.Text `json:"message"`
	Details   []byte      `json:"details"`
	CreatedAt time.Time   `json:"created_at"`
}

func (q *Queries) CreateCrawlerLog(ctx context.Context, arg CreateCrawlerLogParams) error {
	_, err := q.db.Exec(ctx, createCrawlerLog,
		arg.ID,
		arg.RunID,
		arg.EventType,
		arg.Message,
		arg.Details,
		arg.CreatedAt,
	)
	return err
}

const listCrawlerLogsByRun = `-- name: ListCrawlerLogsByRun :many
SELECT id, run_id, event_type, message, details, created_at
FROM crawler_logs
WHERE run_id = $1
ORDER BY created_at
LIMIT $2`

type ListCrawlerLogsByRunParams struct {
	RunID pgtype.Text `json:"run_id"`
	Limit int32       `json:"limit"`
}

func (q *Queries) ListCrawlerLogsByRun(ctx context.Context, arg ListCrawlerLogsByRunParams) ([]CrawlerLog, error) {
	rows, err := q.db.Query(ctx, listCrawlerLogsByRun, arg.RunID, arg.Limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []CrawlerLog
	for rows.Next() {
		var i CrawlerLog
		if err := rows.Scan(
			&i.ID,
			&i.RunID,
			&i.EventType,
			&i.Message,
			&i.Details,
			&i.CreatedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

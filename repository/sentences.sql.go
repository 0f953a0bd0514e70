package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const upsertSentence = `-- name: UpsertSentence :exec
INSERT INTO sentences (
    id, run_id, page, card, title, process_number, date, theme, filing_number, pdf_file_name, document_url
) VALUES (
    $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11
)
ON CONFLICT (run_id, page, card) DO UPDATE SET
    title          = EXCLUDED.title,
    process_number = EXCLUDED.process_number,
    date           = EXCLUDED.date,
    theme          = EXCLUDED.theme,
    filing_number  = EXCLUDED.filing_number,
    pdf_file_name  = EXCLUDED.pdf_file_name,
    document_url   = COALESCE(EXCLUDED.document_url, sentences.document_url)`

type UpsertSentenceParams struct {
	ID            string      `json:"id"`
	RunID         string      `json:"run_id"`
	Page          int32       `json:"page"`
	Card          int32       `json:"card"`
	Title         string      `json:"title"`
	ProcessNumber string      `json:"process_number"`
	Date          string      `json:"date"`
	Theme         string      `json:"theme"`
	FilingNumber  string      `json:"filing_number"`
	PdfFileName   pgtype.Text `json:"pdf_file_name"`
	DocumentUrl   pgtype.Text `json:"document_url"`
}

func (q *Queries) UpsertSentence(ctx context.Context, arg UpsertSentenceParams) error {
	_, err := q.db.Exec(ctx, upsertSentence,
		arg.ID,
		arg.RunID,
		arg.Page,
		arg.Card,
		arg.Title,
		arg.ProcessNumber,
		arg.Date,
		arg.Theme,
		arg.FilingNumber,
		arg.PdfFileName,
		arg.DocumentUrl,
	)
	return err
}

const listSentencesByRun = `-- name: ListSentencesByRun :many
SELECT id, run_id, page, card, title, process_number, date, theme, filing_number, pdf_file_name, document_url, created_at
FROM sentences
WHERE run_id = $1
ORDER BY page, card
LIMIT $2 OFFSET $3`

type ListSentencesByRunParams struct {
	RunID  string `json:"run_id"`
	Limit  int32  `json:"limit"`
	Offset int32  `json:"offset"`
}

func (q *Queries) ListSentencesByRun(ctx context.Context, arg ListSentencesByRunParams) ([]Sentence, error) {
	rows, err := q.db.Query(ctx, listSentencesByRun, arg.RunID, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []Sentence
	for rows.Next() {
		var i Sentence
		if err := rows.Scan(
			&i.ID,
			&i.RunID,
			&i.Page,
			&i.Card,
			&i.Title,
			&i.ProcessNumber,
			&i.Date,
			&i.Theme,
			&i.FilingNumber,
			&i.PdfFileName,
			&i.DocumentUrl,
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

const countSentencesByRun = `-- name: CountSentencesByRun :one
SELECT count(*) FROM sentences WHERE run_id = $1`

func (q *Queries) CountSentencesByRun(ctx context.Context, runID string) (int64, error) {
	row := q.db.QueryRow(ctx, countSentencesByRun, runID)
	var count int64
	err := row.Scan(&count)
	return count, err
}

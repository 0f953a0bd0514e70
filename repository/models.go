package repository

import (
	"github.com/jackc/pgx/v5/pgtype"
)

type CrawlerLog struct {
	ID        string             `json:"id"`
	RunID     pgtype.Text        `json:"run_id"`
	EventType string             `json:"event_type"`
	Message   pgtype.Text        `json:"message"`
	Details   []byte             `json:"details"`
	CreatedAt pgtype.Timestamptz `json:"created_at"`
}

type Run struct {
	ID           string             `json:"id"`
	Status       string             `json:"status"`
	Pages        int32              `json:"pages"`
	PagesVisited int32              `json:"pages_visited"`
	Records      int32              `json:"records"`
	Skipped      int32              `json:"skipped"`
	Documents    int32              `json:"documents"`
	Error        pgtype.Text        `json:"error"`
	CreatedAt    pgtype.Timestamptz `json:"created_at"`
	StartedAt    pgtype.Timestamptz `json:"started_at"`
	FinishedAt   pgtype.Timestamptz `json:"finished_at"`
}

type Sentence struct {
	ID            string             `json:"id"`
	RunID         string             `json:"run_id"`
	Page          int32              `json:"page"`
	Card          int32              `json:"card"`
	Title         string             `json:"title"`
	ProcessNumber string             `json:"process_number"`
	Date          string             `json:"date"`
	Theme         string             `json:"theme"`
	FilingNumber  string             `json:"filing_number"`
	PdfFileName   pgtype.Text        `json:"pdf_file_name"`
	DocumentUrl   pgtype.Text        `json:"document_url"`
	CreatedAt     pgtype.Timestamptz `json:"created_at"`
}

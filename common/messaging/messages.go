package messaging

import "time"

// NATS subjects
const (
	SubjectRunRequest   = "tesauro.run.request"
	SubjectRecordSaved  = "tesauro.record.saved"
	SubjectRunFinished  = "tesauro.run.finished"
	runRequestConsumer  = "tesauro-run-request"
	defaultStreamName   = "TESAURO"
	streamSubjectPrefix = "tesauro.>"

	runRequestRedelivery = 30 * time.Second
)

// RunRequest asks the service to start a scrape. Zero values fall back to
// the configured defaults.
type RunRequest struct {
	ID                string `json:"id,omitempty"`
	Pages             int    `json:"pages,omitempty"`
	DownloadDocuments *bool  `json:"download_documents,omitempty"`
}

// RecordSavedMessage is published for every record written to the results file.
type RecordSavedMessage struct {
	RunID         string    `json:"run_id"`
	Page          int       `json:"page"`
	Card          int       `json:"card"`
	Title         string    `json:"title"`
	ProcessNumber string    `json:"process_number"`
	Date          string    `json:"date"`
	Theme         string    `json:"theme"`
	FilingNumber  string    `json:"filing_number"`
	PDFFileName   string    `json:"pdf_file_name,omitempty"`
	DocumentURL   string    `json:"document_url,omitempty"`
	SavedAt       time.Time `json:"saved_at"`
}

// RunFinishedMessage is published once a run completed all its pages.
type RunFinishedMessage struct {
	RunID        string `json:"run_id"`
	PagesVisited int    `json:"pages_visited"`
	PagesSkipped int    `json:"pages_skipped"`
	Records      int    `json:"records"`
	Skipped      int    `json:"skipped"`
	Documents    int    `json:"documents"`
	DurationMs   int64  `json:"duration_ms"`
}

package tesauro

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"path/filepath"
	"time"

	"github.com/LexiconIndonesia/tesauro-crawler/common/messaging"
	"github.com/LexiconIndonesia/tesauro-crawler/common/storage"
	"github.com/LexiconIndonesia/tesauro-crawler/repository"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

const (
	pdfMediaType      = "application/pdf"
	markdownMediaType = "text/markdown; charset=utf-8"
	jsonMediaType     = "application/json"
)

// Sink mirrors saved records somewhere besides the results file. Sink
// errors never stop a run.
type Sink interface {
	Name() string
	RecordSaved(ctx context.Context, runID string, rec Record, doc *Document) error
	RunFinished(ctx context.Context, summary Summary, resultsPath string) error
}

// SentenceStore is the subset of repository.Queries used by PostgresSink.
type SentenceStore interface {
	UpsertSentence(ctx context.Context, arg repository.UpsertSentenceParams) error
}

// PostgresSink upserts every record into the sentences table.
type PostgresSink struct {
	store SentenceStore
}

func NewPostgresSink(store SentenceStore) *PostgresSink {
	return &PostgresSink{store: store}
}

func (s *PostgresSink) Name() string { return "postgres" }

func (s *PostgresSink) RecordSaved(ctx context.Context, runID string, rec Record, doc *Document) error {
	id, err := uuid.NewV7()
	if err != nil {
		return err
	}

	params := repository.UpsertSentenceParams{
		ID:            id.String(),
		RunID:         runID,
		Page:          int32(rec.Page),
		Card:          int32(rec.Card),
		Title:         rec.Title,
		ProcessNumber: rec.ProcessNumber,
		Date:          rec.Date,
		Theme:         rec.Theme,
		FilingNumber:  rec.FilingNumber,
		PdfFileName:   pgtype.Text{String: rec.PDFFileName, Valid: rec.PDFFileName != ""},
	}
	if doc != nil && doc.RemoteURL != "" {
		params.DocumentUrl = pgtype.Text{String: doc.RemoteURL, Valid: true}
	}

	if err := s.store.UpsertSentence(ctx, params); err != nil {
		return fmt.Errorf("upserting sentence %s: %w", rec.ProcessNumber, err)
	}
	return nil
}

func (s *PostgresSink) RunFinished(ctx context.Context, summary Summary, resultsPath string) error {
	return nil
}

// Publisher is the subset of messaging.NatsBroker used by NatsSink.
type Publisher interface {
	PublishSync(ctx context.Context, subject string, data []byte) error
}

// NatsSink publishes a message per saved record and one per finished run.
type NatsSink struct {
	publisher Publisher
}

func NewNatsSink(publisher Publisher) *NatsSink {
	return &NatsSink{publisher: publisher}
}

func (s *NatsSink) Name() string { return "nats" }

func (s *NatsSink) RecordSaved(ctx context.Context, runID string, rec Record, doc *Document) error {
	msg := messaging.RecordSavedMessage{
		RunID:         runID,
		Page:          rec.Page,
		Card:          rec.Card,
		Title:         rec.Title,
		ProcessNumber: rec.ProcessNumber,
		Date:          rec.Date,
		Theme:         rec.Theme,
		FilingNumber:  rec.FilingNumber,
		PDFFileName:   rec.PDFFileName,
		SavedAt:       time.Now().UTC(),
	}
	if doc != nil {
		msg.DocumentURL = doc.RemoteURL
	}
	return s.publish(ctx, messaging.SubjectRecordSaved, msg)
}

func (s *NatsSink) RunFinished(ctx context.Context, summary Summary, resultsPath string) error {
	return s.publish(ctx, messaging.SubjectRunFinished, messaging.RunFinishedMessage{
		RunID:        summary.RunID,
		PagesVisited: summary.PagesVisited,
		PagesSkipped: summary.PagesSkipped,
		Records:      summary.Records,
		Skipped:      summary.Skipped,
		Documents:    summary.Documents,
		DurationMs:   summary.Duration.Milliseconds(),
	})
}

func (s *NatsSink) publish(ctx context.Context, subject string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s message: %w", subject, err)
	}
	return s.publisher.PublishSync(ctx, subject, data)
}

// StorageSink mirrors documents, analysis snapshots and the final results
// file to object storage under <runID>/.
type StorageSink struct {
	storage storage.StorageService
}

func NewStorageSink(svc storage.StorageService) *StorageSink {
	return &StorageSink{storage: svc}
}

func (s *StorageSink) Name() string { return "storage" }

// RecordSaved uploads the record's document and sets doc.RemoteURL, so sinks
// registered after this one can reference the uploaded copy.
func (s *StorageSink) RecordSaved(ctx context.Context, runID string, rec Record, doc *Document) error {
	if doc == nil {
		return nil
	}

	folder := filepath.Base(filepath.Dir(doc.Path))
	url, err := s.storage.UploadFile(ctx, path.Join(runID, folder, doc.FileName), doc.Path, pdfMediaType)
	if err != nil {
		return fmt.Errorf("uploading %s: %w", doc.FileName, err)
	}
	doc.RemoteURL = url

	if doc.AnalysisPath != "" {
		name := filepath.Base(doc.AnalysisPath)
		if _, err := s.storage.UploadFile(ctx, path.Join(runID, folder, name), doc.AnalysisPath, markdownMediaType); err != nil {
			return fmt.Errorf("uploading %s: %w", name, err)
		}
	}
	return nil
}

func (s *StorageSink) RunFinished(ctx context.Context, summary Summary, resultsPath string) error {
	name := path.Join(summary.RunID, filepath.Base(resultsPath))
	if _, err := s.storage.UploadFile(ctx, name, resultsPath, jsonMediaType); err != nil {
		return fmt.Errorf("uploading results: %w", err)
	}
	return nil
}

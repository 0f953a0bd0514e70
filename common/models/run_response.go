package models

import (
	"encoding/json"
	"time"

	"github.com/LexiconIndonesia/tesauro-crawler/repository"
)

type RunCreatedResponse struct {
	RunID string `json:"run_id"`
}

type CrawlerLogResponse struct {
	ID        string          `json:"id"`
	RunID     string          `json:"run_id"`
	EventType string          `json:"event_type"`
	Message   string          `json:"message"`
	Details   json.RawMessage `json:"details,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// NewCrawlerLogResponse flattens the nullable columns of a log row.
func NewCrawlerLogResponse(l repository.CrawlerLog) CrawlerLogResponse {
	resp := CrawlerLogResponse{
		ID:        l.ID,
		RunID:     l.RunID.String,
		EventType: l.EventType,
		Message:   l.Message.String,
		CreatedAt: l.CreatedAt.Time,
	}
	if json.Valid(l.Details) {
		resp.Details = l.Details
	}
	return resp
}

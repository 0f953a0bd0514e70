package tesauro

import (
	"time"

	"github.com/LexiconIndonesia/tesauro-crawler/common/config"
)

// Record is one scraped sentence entry. Field order and JSON keys are the
// output file format.
type Record struct {
	Page          int    `json:"page"`
	Card          int    `json:"card"`
	Title         string `json:"title"`
	ProcessNumber string `json:"process_number"`
	Date          string `json:"date"`
	Theme         string `json:"theme"`
	FilingNumber  string `json:"filing_number"`
	PDFFileName   string `json:"pdf_file_name,omitempty"`
}

// CardFields are the values read from a result card.
type CardFields struct {
	Title         string
	ProcessNumber string
	Date          string
	Theme         string
}

// Options controls a single run.
type Options struct {
	URL               string
	Pages             int
	MinCards          int
	PageTimeout       time.Duration
	PollInterval      time.Duration
	ReadRetries       int
	RetryDelay        time.Duration
	DetailPanel       bool
	DownloadDocuments bool
	DocumentTimeout   time.Duration
	DocumentSettle    time.Duration
	SaveAnalysis      bool
	PageDelay         time.Duration
	RunTimeout        time.Duration
	OutputFile        string
	DownloadsDir      string
}

// OptionsFromConfig maps the environment configuration onto run options.
func OptionsFromConfig(cfg config.TesauroConfig) Options {
	return Options{
		URL:               cfg.URL,
		Pages:             cfg.Pages,
		MinCards:          cfg.MinCards,
		PageTimeout:       cfg.PageTimeout,
		PollInterval:      cfg.PollInterval,
		ReadRetries:       cfg.ReadRetries,
		RetryDelay:        cfg.RetryDelay,
		DetailPanel:       cfg.DetailPanel,
		DownloadDocuments: cfg.DownloadDocuments,
		DocumentTimeout:   cfg.DocumentTimeout,
		DocumentSettle:    cfg.DocumentSettle,
		SaveAnalysis:      cfg.SaveAnalysis,
		PageDelay:         cfg.PageDelay,
		RunTimeout:        cfg.RunTimeout,
		OutputFile:        cfg.OutputFile,
		DownloadsDir:      cfg.DownloadsDir,
	}
}

// Summary describes the outcome of a run.
type Summary struct {
	RunID        string        `json:"run_id"`
	PagesVisited int           `json:"pages_visited"`
	PagesSkipped int           `json:"pages_skipped"`
	Records      int           `json:"records"`
	Skipped      int           `json:"skipped"`
	Documents    int           `json:"documents"`
	Duration     time.Duration `json:"duration"`
}

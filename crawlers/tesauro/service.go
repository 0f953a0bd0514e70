package tesauro

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/LexiconIndonesia/tesauro-crawler/common/config"
	"github.com/LexiconIndonesia/tesauro-crawler/common/crawler"
	"github.com/LexiconIndonesia/tesauro-crawler/common/messaging"
	"github.com/LexiconIndonesia/tesauro-crawler/common/work"
	"github.com/rs/zerolog/log"
)

const (
	runPoolName = "tesauro-runs"

	// maxRunDuration bounds a queued run without its own timeout.
	maxRunDuration = 6 * time.Hour
)

// PortalOpener prepares a browser-backed Portal for one run. The returned
// close function releases the browser.
type PortalOpener func(ctx context.Context, opts Options) (Portal, func() error, error)

// RodPortalOpener launches (or connects to) a browser per run.
func RodPortalOpener(cfg config.BrowserConfig) PortalOpener {
	return func(ctx context.Context, opts Options) (Portal, func() error, error) {
		browser, err := crawler.NewBrowser(cfg, opts.DownloadsDir)
		if err != nil {
			return nil, nil, err
		}
		portal, err := NewRodPortal(browser, opts.URL, opts.PageTimeout)
		if err != nil {
			_ = browser.Close()
			return nil, nil, err
		}
		return portal, browser.Close, nil
	}
}

// Service runs scrapes one at a time, either directly or through its queue.
type Service struct {
	opts    Options
	manager *work.RunManager
	pool    *work.Pool[Summary]
	sinks   []Sink
	open    PortalOpener
	scope   func(runID string) func()
}

type ServiceOption func(*Service)

func WithServiceSinks(sinks ...Sink) ServiceOption {
	return func(s *Service) {
		s.sinks = append(s.sinks, sinks...)
	}
}

// WithRunScope calls bind when a run starts and the returned function when
// it ends.
func WithRunScope(bind func(runID string) func()) ServiceOption {
	return func(s *Service) {
		s.scope = bind
	}
}

func NewService(opts Options, open PortalOpener, manager *work.RunManager, options ...ServiceOption) (*Service, error) {
	pool, err := work.NewPool[Summary](work.RunQueueConfig(1, maxRunDuration))
	if err != nil {
		return nil, err
	}

	s := &Service{
		opts:    opts,
		manager: manager,
		pool:    pool,
		open:    open,
	}
	for _, opt := range options {
		opt(s)
	}
	return s, nil
}

// Options returns the default run options.
func (s *Service) Options() Options {
	return s.opts
}

// Start launches the run queue.
func (s *Service) Start(ctx context.Context) {
	s.pool.Start(ctx, runPoolName)

	go func() {
		for res := range s.pool.Results() {
			if res.Err != nil {
				log.Error().Err(res.Err).Str("runID", res.TaskID).Dur("duration", res.Duration).Msg("Queued run failed")
				continue
			}
			log.Info().Str("runID", res.TaskID).Int("records", res.Value.Records).Dur("duration", res.Duration).Msg("Queued run completed")
		}
	}()
}

// Stop stops accepting runs and waits for the current one.
func (s *Service) Stop() {
	s.pool.Stop()
}

// RunOnce executes a run synchronously under the run locks.
func (s *Service) RunOnce(ctx context.Context, runID string, opts Options) (Summary, error) {
	if err := s.manager.Start(ctx, runID); err != nil {
		return Summary{RunID: runID}, err
	}
	if s.scope != nil {
		defer s.scope(runID)()
	}

	summary, err := s.execute(ctx, runID, opts)
	status := s.manager.Finish(context.WithoutCancel(ctx), runID, countsOf(summary), err)

	l := log.Info()
	if err != nil {
		l = log.Error().Err(err)
	}
	l.Str("runID", runID).Str("status", string(status)).Dur("duration", summary.Duration).Msg("Run ended")
	return summary, err
}

func (s *Service) execute(ctx context.Context, runID string, opts Options) (Summary, error) {
	portal, closePortal, err := s.open(ctx, opts)
	if err != nil {
		return Summary{RunID: runID}, fmt.Errorf("%w: %w", crawler.ErrBrowserSetup, err)
	}
	defer func() {
		if err := closePortal(); err != nil {
			log.Warn().Err(err).Str("runID", runID).Msg("Failed to close browser")
		}
	}()

	if l, ok := portal.(downloadLocator); ok && l.DownloadDir() != "" {
		opts.DownloadsDir = l.DownloadDir()
	}

	c := NewCrawler(portal, opts, runID,
		WithSinks(s.sinks...),
		WithProgress(func(summary Summary) {
			s.manager.Progress(ctx, runID, countsOf(summary))
		}),
	)
	return c.Run(ctx)
}

// Submit queues a run built from req on top of the default options and
// returns its ID. It fails with work.ErrRunInProgress while another run is
// queued or running.
func (s *Service) Submit(ctx context.Context, req messaging.RunRequest) (string, error) {
	runID := req.ID
	if runID == "" {
		id, err := work.NewRunID()
		if err != nil {
			return "", err
		}
		runID = id
	}

	opts := s.opts
	if req.Pages > 0 {
		opts.Pages = req.Pages
	}
	if req.DownloadDocuments != nil {
		opts.DownloadDocuments = *req.DownloadDocuments
	}

	if err := s.manager.Enqueue(ctx, runID, opts.Pages); err != nil {
		return "", err
	}

	task, err := work.NewTask(
		func(ctx context.Context) (Summary, error) {
			return s.RunOnce(ctx, runID, opts)
		},
		work.WithID[Summary](runID),
		work.WithTimeout[Summary](opts.RunTimeout),
	)
	if err == nil {
		err = s.pool.TrySubmit(task)
	}
	if err != nil {
		s.manager.Abandon(ctx, runID, err)
		return "", err
	}

	log.Info().Str("runID", runID).Int("pages", opts.Pages).Bool("downloadDocuments", opts.DownloadDocuments).Msg("Run queued")
	return runID, nil
}

// HandleRunRequest is the NATS entry point. A busy service rejects the
// request so it is redelivered later.
func (s *Service) HandleRunRequest(ctx context.Context, req messaging.RunRequest) error {
	if req.ID != "" {
		if state, err := s.manager.Get(ctx, req.ID); err == nil {
			log.Info().Str("runID", req.ID).Str("status", string(state.Status)).Msg("Ignoring duplicate run request")
			return nil
		}
	}

	_, err := s.Submit(ctx, req)
	if errors.Is(err, work.ErrRunInProgress) {
		return err
	}
	if err != nil {
		log.Error().Err(err).Msg("Failed to queue run request")
	}
	return nil
}

// Run returns the state of a run.
func (s *Service) Run(ctx context.Context, runID string) (work.RunState, error) {
	return s.manager.Get(ctx, runID)
}

// Runs returns the most recent runs, newest first.
func (s *Service) Runs(ctx context.Context, limit int) ([]work.RunState, error) {
	return s.manager.List(ctx, limit)
}

// QueueStats reports the run queue counters.
func (s *Service) QueueStats() work.PoolStats {
	return s.pool.Stats()
}

// Records returns the current contents of the results file.
func (s *Service) Records() ([]Record, error) {
	return ReadResults(s.opts.OutputFile)
}

func countsOf(summary Summary) work.RunCounts {
	return work.RunCounts{
		PagesVisited: summary.PagesVisited,
		Records:      summary.Records,
		Skipped:      summary.Skipped,
		Documents:    summary.Documents,
	}
}

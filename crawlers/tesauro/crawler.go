package tesauro

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/LexiconIndonesia/tesauro-crawler/common/crawler"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
	"github.com/samber/mo"
)

var (
	errFilingNotFound  = errors.New("filing number not found in detail panel")
	errPanelNotUpdated = errors.New("detail panel still shows the previous entry")
	errIncompleteEntry = errors.New("entry has no title or process number")
)

// ProgressFunc receives the running totals after every page.
type ProgressFunc func(Summary)

// Crawler scrapes the results list page by page.
type Crawler struct {
	portal   Portal
	opts     Options
	runID    string
	docs     *DocumentFetcher
	sinks    []Sink
	progress ProgressFunc

	// lastPanel is the detail panel HTML of the previous entry.
	lastPanel string
}

type CrawlerOption func(*Crawler)

// WithSinks mirrors every saved record to the given sinks.
func WithSinks(sinks ...Sink) CrawlerOption {
	return func(c *Crawler) {
		c.sinks = append(c.sinks, sinks...)
	}
}

func WithProgress(fn ProgressFunc) CrawlerOption {
	return func(c *Crawler) {
		c.progress = fn
	}
}

// NewCrawler creates a Crawler for one run.
func NewCrawler(portal Portal, opts Options, runID string, options ...CrawlerOption) *Crawler {
	c := &Crawler{
		portal: portal,
		opts:   opts,
		runID:  runID,
	}
	if opts.DownloadDocuments {
		c.docs = NewDocumentFetcher(portal, opts)
	}
	for _, opt := range options {
		opt(c)
	}
	return c
}

// Run scrapes pages 1..Pages. Only a failure to reach the first result set,
// to create the output file, or cancellation of ctx stops it early; every
// other failure skips a page or an entry.
func (c *Crawler) Run(ctx context.Context) (summary Summary, err error) {
	started := time.Now()
	summary.RunID = c.runID
	defer func() {
		summary.Duration = time.Since(started)
	}()

	results, err := NewResultsFile(c.opts.OutputFile)
	if err != nil {
		return summary, err
	}

	log.Info().
		Str("runID", c.runID).
		Int("pages", c.opts.Pages).
		Bool("detailPanel", c.opts.DetailPanel).
		Bool("downloadDocuments", c.opts.DownloadDocuments).
		Msg("Starting Tesauro run")

	if err := c.portal.Open(ctx); err != nil {
		return summary, fmt.Errorf("opening results list: %w", err)
	}

	var previous map[string]struct{}
	for page := 1; page <= c.opts.Pages; page++ {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		stale := false
		if page > 1 {
			stale, err = c.advance(ctx, page)
			if err != nil {
				if ctx.Err() != nil {
					return summary, ctx.Err()
				}
				log.Warn().Err(err).Str("runID", c.runID).Int("page", page).Msg("Could not open page, skipping it")
				summary.PagesSkipped++
				c.report(summary)
				continue
			}
		}

		summary.PagesVisited++
		guard := lo.Ternary(stale, previous, nil)
		captured, err := c.scrapePage(ctx, page, guard, results, &summary)
		if err != nil {
			return summary, err
		}
		previous = captured
		c.report(summary)

		if page < c.opts.Pages {
			if err := crawler.Sleep(ctx, c.opts.PageDelay); err != nil {
				return summary, err
			}
		}
	}

	for _, sink := range c.sinks {
		if err := sink.RunFinished(ctx, summary, results.Path()); err != nil {
			log.Warn().Err(err).Str("runID", c.runID).Str("sink", sink.Name()).Msg("Sink failed to finish run")
		}
	}

	log.Info().
		Str("runID", c.runID).
		Int("pagesVisited", summary.PagesVisited).
		Int("pagesSkipped", summary.PagesSkipped).
		Int("records", summary.Records).
		Int("skipped", summary.Skipped).
		Int("documents", summary.Documents).
		Msg("Tesauro run finished")
	return summary, nil
}

func (c *Crawler) report(summary Summary) {
	if c.progress != nil {
		c.progress(summary)
	}
}

// advance moves the list to page and waits for its content to replace the
// previous page. It reports stale when the wait gave up while the first
// entry was still the one seen before the click, or when that entry could not
// be read at all and the change is unverified.
func (c *Crawler) advance(ctx context.Context, page int) (stale bool, err error) {
	before := c.firstProcessNumber(ctx)

	if err := c.portal.GoToPage(ctx, page); err != nil {
		return false, err
	}

	err = c.waitForNewPage(ctx, before)
	if err == nil {
		if before.IsAbsent() {
			log.Debug().Str("runID", c.runID).Int("page", page).Msg("Previous first entry unknown, guarding against repeats")
		}
		return before.IsAbsent(), nil
	}
	if !crawler.IsTimeout(err) {
		return false, err
	}

	old, known := before.Get()
	current := c.firstProcessNumber(ctx)
	stale = known && current.OrEmpty() == old
	log.Warn().
		Err(err).
		Str("runID", c.runID).
		Int("page", page).
		Str("previousFirst", old).
		Str("currentFirst", current.OrEmpty()).
		Bool("stale", stale).
		Msg("Page did not finish changing, continuing with what is on screen")
	return stale, nil
}

// waitForNewPage blocks until at least MinCards entries are shown and the
// first entry differs from before. Read errors while the list re-renders
// are polled through.
func (c *Crawler) waitForNewPage(ctx context.Context, before mo.Option[string]) error {
	return crawler.Until(ctx, c.opts.PollInterval, c.opts.PageTimeout, func(ctx context.Context) (bool, error) {
		cards, err := c.portal.Cards(ctx)
		if err != nil {
			return false, err
		}
		if len(cards) < c.opts.MinCards {
			return false, nil
		}

		old, known := before.Get()
		if !known {
			return true, nil
		}

		html, err := cards[0].HTML(ctx)
		if err != nil {
			return false, err
		}
		fields, err := ParseCard(html)
		if err != nil {
			return false, err
		}
		return fields.ProcessNumber != "" && fields.ProcessNumber != old, nil
	})
}

func (c *Crawler) firstProcessNumber(ctx context.Context) mo.Option[string] {
	fields, err := crawler.Retry(ctx, c.readPolicy(), func(ctx context.Context) (CardFields, error) {
		cards, err := c.portal.Cards(ctx)
		if err != nil {
			return CardFields{}, err
		}
		if len(cards) == 0 {
			return CardFields{}, nil
		}
		return c.readCard(ctx, cards[0])
	})
	if err != nil || fields.ProcessNumber == "" {
		return mo.None[string]()
	}
	return mo.Some(fields.ProcessNumber)
}

func (c *Crawler) readPolicy() crawler.RetryPolicy {
	return crawler.StaleElementPolicy(c.opts.ReadRetries, c.opts.RetryDelay)
}

func (c *Crawler) readCard(ctx context.Context, card Card) (CardFields, error) {
	html, err := card.HTML(ctx)
	if err != nil {
		return CardFields{}, err
	}
	return ParseCard(html)
}

// scrapePage saves every entry of the current page and returns the process
// numbers it saw. Entries whose process number is in skip are dropped.
func (c *Crawler) scrapePage(ctx context.Context, page int, skip map[string]struct{}, results *ResultsFile, summary *Summary) (map[string]struct{}, error) {
	captured := make(map[string]struct{})

	cards, err := crawler.Retry(ctx, c.readPolicy(), c.portal.Cards)
	if err != nil {
		if ctx.Err() != nil {
			return captured, ctx.Err()
		}
		log.Warn().Err(err).Str("runID", c.runID).Int("page", page).Msg("Could not list result cards")
		return captured, nil
	}

	log.Info().Str("runID", c.runID).Int("page", page).Int("cards", len(cards)).Msg("Scraping page")

	for i, card := range cards {
		if err := ctx.Err(); err != nil {
			return captured, err
		}

		index := i + 1
		rec, doc, err := c.scrapeEntry(ctx, page, index, card, skip, captured)
		if err != nil {
			if ctx.Err() != nil {
				return captured, ctx.Err()
			}
			summary.Skipped++
			log.Warn().Err(err).Str("runID", c.runID).Int("page", page).Int("card", index).Msg("Skipping entry")
			continue
		}

		if err := results.Append(rec); err != nil {
			return captured, err
		}
		summary.Records++
		if doc != nil {
			summary.Documents++
		}

		for _, sink := range c.sinks {
			if err := sink.RecordSaved(ctx, c.runID, rec, doc); err != nil {
				log.Warn().Err(err).Str("runID", c.runID).Str("sink", sink.Name()).Int("page", page).Int("card", index).Msg("Sink failed to save record")
			}
		}

		log.Debug().
			Str("runID", c.runID).
			Int("page", page).
			Int("card", index).
			Str("processNumber", rec.ProcessNumber).
			Str("filingNumber", rec.FilingNumber).
			Msg("Record saved")
	}
	return captured, nil
}

func (c *Crawler) scrapeEntry(ctx context.Context, page, index int, card Card, skip, captured map[string]struct{}) (Record, *Document, error) {
	fields, err := crawler.Retry(ctx, c.readPolicy(), func(ctx context.Context) (CardFields, error) {
		return c.readCard(ctx, card)
	})
	if err != nil {
		return Record{}, nil, fmt.Errorf("reading card: %w", err)
	}
	if fields.ProcessNumber != "" {
		captured[fields.ProcessNumber] = struct{}{}
	}
	if fields.Title == "" || fields.ProcessNumber == "" {
		return Record{}, nil, errIncompleteEntry
	}
	if _, dup := skip[fields.ProcessNumber]; dup {
		return Record{}, nil, fmt.Errorf("process number %s already captured on the previous page", fields.ProcessNumber)
	}

	rec := Record{
		Page:          page,
		Card:          index,
		Title:         fields.Title,
		ProcessNumber: fields.ProcessNumber,
		Date:          fields.Date,
		Theme:         fields.Theme,
	}

	if c.opts.DetailPanel || c.docs != nil {
		if err := card.Click(ctx); err != nil {
			return Record{}, nil, fmt.Errorf("selecting card: %w", err)
		}
	}

	if c.opts.DetailPanel {
		rec.FilingNumber = c.filingNumber(ctx, page, index)
	}

	if c.docs == nil {
		return rec, nil, nil
	}

	fileName, lossy := crawler.DocumentFileName(rec.FilingNumber, rec.Date, rec.ProcessNumber)
	if lossy {
		log.Warn().
			Str("runID", c.runID).
			Str("filingNumber", rec.FilingNumber).
			Str("date", rec.Date).
			Str("file", fileName).
			Msg("Document name was sanitized")
	}

	doc, err := c.docs.Fetch(ctx, crawler.FolderName(rec.Theme), fileName)
	if err != nil {
		return Record{}, nil, fmt.Errorf("retrieving document: %w", err)
	}
	rec.PDFFileName = doc.FileName
	return rec, &doc, nil
}

// filingNumber reads the side panel of the selected card. A panel identical
// to the one read for the previous entry has not re-rendered yet and is read
// again. Failures leave the filing number empty.
func (c *Crawler) filingNumber(ctx context.Context, page, index int) string {
	policy := crawler.RetryPolicy{Attempts: c.opts.ReadRetries, Delay: c.opts.RetryDelay}
	filing, err := crawler.Retry(ctx, policy, func(ctx context.Context) (string, error) {
		html, err := c.portal.DetailPanel(ctx)
		if err != nil {
			return "", err
		}
		if c.lastPanel != "" && html == c.lastPanel {
			return "", errPanelNotUpdated
		}
		c.lastPanel = html

		value, err := ParseFilingNumber(html)
		if err != nil {
			return "", err
		}
		if value == "" {
			return "", errFilingNotFound
		}
		return value, nil
	})
	if err != nil {
		log.Warn().Err(err).Str("runID", c.runID).Int("page", page).Int("card", index).Msg("Filing number unavailable")
		return ""
	}
	return filing
}

package tesauro

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"
)

var errDetached = errors.New("cdp: Could not find node with given id")

func cardHTML(title, process, date, theme string) string {
	return fmt.Sprintf(`<div class="result_card">
  <span class="card__title"> %s </span>
  <div class="card__info">
    <div class="card__info-title">Número de proceso:</div>
    <div class="card__info-value">%s</div>
  </div>
  <div class="card__info">
    <div class="card__info-title">Fecha:</div>
    <div class="card__info-value">%s</div>
  </div>
  <div class="card__info">
    <div class="card__info-title">Tema:</div>
    <div class="card__info-value">%s</div>
  </div>
</div>`, title, process, date, theme)
}

func panelHTML(filing string) string {
	return fmt.Sprintf(`<div class="side-detail__actors">
  <span class="side-detail__label">Demandante <span class="side-detail__value">ACME S.A.S.</span></span>
  <span class="side-detail__label">Número de radicado <span class="side-detail__value"> %s </span></span>
</div>`, filing)
}

type fakeCard struct {
	portal   *fakePortal
	html     string
	panel    string
	htmlErrs []error
	clickErr error
}

func (c *fakeCard) HTML(ctx context.Context) (string, error) {
	c.portal.mu.Lock()
	defer c.portal.mu.Unlock()
	if len(c.htmlErrs) > 0 {
		err := c.htmlErrs[0]
		c.htmlErrs = c.htmlErrs[1:]
		return "", err
	}
	return c.html, nil
}

func (c *fakeCard) Click(ctx context.Context) error {
	c.portal.mu.Lock()
	defer c.portal.mu.Unlock()
	if c.clickErr != nil {
		return c.clickErr
	}
	if prev := c.portal.selected; prev != nil && c.portal.panelLag > 0 {
		c.portal.stalePanel = prev.panel
		c.portal.staleReads = c.portal.panelLag
	}
	c.portal.selected = c
	return nil
}

// fakePortal serves fixed pages of cards. Pages listed in stuck keep showing
// the previous page after GoToPage.
type fakePortal struct {
	mu       sync.Mutex
	pages    map[int][]*fakeCard
	current  int
	stuck    map[int]bool
	gotoErr  map[int]error
	openErr  error
	selected *fakeCard
	visits   []int

	// panelLag is how many reads after a click still return the panel of
	// the previously selected card.
	panelLag   int
	stalePanel string
	staleReads int

	analysisURL string
	tab         *fakeTab
	openedTabs  int
}

func newFakePortal() *fakePortal {
	return &fakePortal{
		pages:   make(map[int][]*fakeCard),
		stuck:   make(map[int]bool),
		gotoErr: make(map[int]error),
	}
}

// addPage registers n cards for page, numbered from the page so process
// numbers are unique across pages.
func (p *fakePortal) addPage(page, n int) []*fakeCard {
	cards := make([]*fakeCard, 0, n)
	for i := 1; i <= n; i++ {
		process := fmt.Sprintf("2023-800-%03d%02d", page, i)
		cards = append(cards, &fakeCard{
			portal: p,
			html:   cardHTML(fmt.Sprintf("Sentencia %d-%d", page, i), process, fmt.Sprintf("2023-05-%02d", i), "Insolvencia"),
			panel:  panelHTML(fmt.Sprintf("2023-01-%06d", page*100+i)),
		})
	}
	p.pages[page] = cards
	return cards
}

func (p *fakePortal) Open(ctx context.Context) error {
	if p.openErr != nil {
		return p.openErr
	}
	p.mu.Lock()
	p.current = 1
	p.mu.Unlock()
	return nil
}

func (p *fakePortal) Cards(ctx context.Context) ([]Card, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	cards := make([]Card, 0, len(p.pages[p.current]))
	for _, c := range p.pages[p.current] {
		cards = append(cards, c)
	}
	return cards, nil
}

func (p *fakePortal) GoToPage(ctx context.Context, page int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.visits = append(p.visits, page)
	if err := p.gotoErr[page]; err != nil {
		return err
	}
	if !p.stuck[page] {
		p.current = page
	}
	return nil
}

func (p *fakePortal) DetailPanel(ctx context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.staleReads > 0 && p.stalePanel != "" {
		p.staleReads--
		return p.stalePanel, nil
	}
	if p.selected == nil || p.selected.panel == "" {
		return "", errors.New("detail panel not rendered")
	}
	return p.selected.panel, nil
}

func (p *fakePortal) AnalysisURL(ctx context.Context) (string, error) {
	if p.analysisURL == "" {
		return "", errors.New("analysis link not found")
	}
	return p.analysisURL, nil
}

func (p *fakePortal) OpenTab(ctx context.Context, url string) (DocumentTab, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.openedTabs++
	if p.tab == nil {
		return nil, errors.New("no tab configured")
	}
	return p.tab, nil
}

// fakeTab simulates the analysis tab. On ClickDownload it either navigates to
// pdfURL or drops a file into downloadDir, first as .crdownload.
type fakeTab struct {
	mu          sync.Mutex
	html        string
	url         string
	pdfURL      string
	downloadDir string
	download    string
	downloadErr error
	cookies     []*http.Cookie
	closed      int
}

func (t *fakeTab) WaitReady(ctx context.Context) error { return nil }

func (t *fakeTab) HTML(ctx context.Context) (string, error) { return t.html, nil }

func (t *fakeTab) URL(ctx context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.url, nil
}

func (t *fakeTab) Cookies(ctx context.Context) ([]*http.Cookie, error) { return t.cookies, nil }

func (t *fakeTab) ClickDownload(ctx context.Context) error {
	if t.downloadErr != nil {
		return t.downloadErr
	}
	if t.pdfURL != "" {
		t.mu.Lock()
		t.url = t.pdfURL
		t.mu.Unlock()
		return nil
	}
	if t.download == "" {
		return nil
	}

	partial := filepath.Join(t.downloadDir, t.download+".crdownload")
	if err := os.WriteFile(partial, []byte("%PDF-1.4 partial"), 0o644); err != nil {
		return err
	}
	go func() {
		time.Sleep(30 * time.Millisecond)
		_ = os.WriteFile(partial, []byte("%PDF-1.4 complete"), 0o644)
		_ = os.Rename(partial, filepath.Join(t.downloadDir, t.download))
	}()
	return nil
}

func (t *fakeTab) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed++
	return nil
}

func testOptions(dir string) Options {
	return Options{
		URL:             "https://tesauro.example/results#/",
		Pages:           3,
		MinCards:        5,
		PageTimeout:     200 * time.Millisecond,
		PollInterval:    10 * time.Millisecond,
		ReadRetries:     3,
		RetryDelay:      5 * time.Millisecond,
		DetailPanel:     true,
		DocumentTimeout: time.Second,
		OutputFile:      filepath.Join(dir, "results.json"),
		DownloadsDir:    filepath.Join(dir, "downloads"),
	}
}

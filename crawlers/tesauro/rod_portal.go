package tesauro

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/LexiconIndonesia/tesauro-crawler/common/crawler"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rs/zerolog/log"
)

type rodPortal struct {
	browser *crawler.Browser
	page    *rod.Page
	url     string
	timeout time.Duration
}

// NewRodPortal opens a blank results tab in browser.
func NewRodPortal(browser *crawler.Browser, targetURL string, timeout time.Duration) (Portal, error) {
	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("opening results tab: %w", err)
	}
	return &rodPortal{
		browser: browser,
		page:    page,
		url:     targetURL,
		timeout: timeout,
	}, nil
}

// DownloadDir is where the browser writes downloads, as an absolute path.
func (p *rodPortal) DownloadDir() string {
	return p.browser.DownloadDir()
}

func (p *rodPortal) bounded(ctx context.Context) *rod.Page {
	return p.page.Context(ctx).Timeout(p.timeout)
}

func (p *rodPortal) Open(ctx context.Context) error {
	page := p.bounded(ctx)

	if err := page.Navigate(p.url); err != nil {
		return fmt.Errorf("navigating to %s: %w", p.url, err)
	}
	if err := page.WaitLoad(); err != nil {
		return fmt.Errorf("waiting for results application: %w", err)
	}

	tab, err := page.ElementR(resultsTabSelector, resultsTabText)
	if err != nil {
		return fmt.Errorf("finding %q tab: %w", resultsTabText, err)
	}
	if err := click(tab); err != nil {
		return fmt.Errorf("selecting %q tab: %w", resultsTabText, err)
	}

	if _, err := page.Element(cardSelector); err != nil {
		return fmt.Errorf("waiting for first result card: %w", err)
	}

	log.Info().Str("url", p.url).Msg("Results list ready")
	return nil
}

func (p *rodPortal) Cards(ctx context.Context) ([]Card, error) {
	els, err := p.page.Context(ctx).Elements(cardSelector)
	if err != nil {
		return nil, err
	}

	cards := make([]Card, 0, len(els))
	for _, el := range els {
		cards = append(cards, &rodCard{el: el, timeout: p.timeout})
	}
	return cards, nil
}

func (p *rodPortal) GoToPage(ctx context.Context, n int) error {
	page := p.bounded(ctx)

	btn, err := page.ElementX(paginationButtonXPath(n))
	if err != nil {
		return fmt.Errorf("finding pagination button for page %d: %w", n, err)
	}
	if err := click(btn); err != nil {
		return fmt.Errorf("clicking pagination button for page %d: %w", n, err)
	}
	if _, err := page.ElementX(currentPageXPath(n)); err != nil {
		return fmt.Errorf("waiting for page %d to become current: %w", n, err)
	}
	return nil
}

func (p *rodPortal) DetailPanel(ctx context.Context) (string, error) {
	panel, err := p.bounded(ctx).Element(detailPanelSelector)
	if err != nil {
		return "", fmt.Errorf("waiting for detail panel: %w", err)
	}
	if err := panel.WaitVisible(); err != nil {
		return "", fmt.Errorf("waiting for detail panel visibility: %w", err)
	}
	return panel.HTML()
}

func (p *rodPortal) AnalysisURL(ctx context.Context) (string, error) {
	page := p.bounded(ctx)

	link, err := page.ElementR(analysisLinkSelector, analysisLinkPattern)
	if err != nil {
		return "", fmt.Errorf("finding analysis link: %w", err)
	}
	href, err := link.Attribute("href")
	if err != nil {
		return "", fmt.Errorf("reading analysis link: %w", err)
	}
	if href == nil || *href == "" {
		return "", fmt.Errorf("analysis link has no href")
	}

	info, err := page.Info()
	if err != nil {
		return "", fmt.Errorf("reading results page url: %w", err)
	}
	return resolveURL(info.URL, *href)
}

func (p *rodPortal) OpenTab(ctx context.Context, target string) (DocumentTab, error) {
	tab, err := p.browser.Page(proto.TargetCreateTarget{URL: target})
	if err != nil {
		return nil, fmt.Errorf("opening document tab: %w", err)
	}

	t := &rodTab{page: tab, origin: p.page, timeout: p.timeout}
	if err := tab.Context(ctx).Timeout(p.timeout).WaitLoad(); err != nil {
		_ = t.Close()
		return nil, fmt.Errorf("loading document tab: %w", err)
	}
	return t, nil
}

type rodCard struct {
	el      *rod.Element
	timeout time.Duration
}

func (c *rodCard) HTML(ctx context.Context) (string, error) {
	return c.el.Context(ctx).HTML()
}

func (c *rodCard) Click(ctx context.Context) error {
	return click(c.el.Context(ctx).Timeout(c.timeout))
}

type rodTab struct {
	page    *rod.Page
	origin  *rod.Page
	timeout time.Duration
}

func (t *rodTab) WaitReady(ctx context.Context) error {
	if _, err := t.page.Context(ctx).Timeout(t.timeout).Element(documentActionsSelector); err != nil {
		return fmt.Errorf("waiting for document actions: %w", err)
	}
	return nil
}

func (t *rodTab) HTML(ctx context.Context) (string, error) {
	return t.page.Context(ctx).HTML()
}

func (t *rodTab) URL(ctx context.Context) (string, error) {
	info, err := t.page.Context(ctx).Info()
	if err != nil {
		return "", err
	}
	return info.URL, nil
}

func (t *rodTab) Cookies(ctx context.Context) ([]*http.Cookie, error) {
	u, err := t.URL(ctx)
	if err != nil {
		return nil, err
	}
	raw, err := t.page.Context(ctx).Cookies([]string{u})
	if err != nil {
		return nil, err
	}

	cookies := make([]*http.Cookie, 0, len(raw))
	for _, c := range raw {
		cookies = append(cookies, &http.Cookie{Name: c.Name, Value: c.Value})
	}
	return cookies, nil
}

func (t *rodTab) ClickDownload(ctx context.Context) error {
	btn, err := t.page.Context(ctx).Timeout(t.timeout).Element(downloadButtonSelector)
	if err != nil {
		return fmt.Errorf("finding download button: %w", err)
	}
	return click(btn)
}

func (t *rodTab) Close() error {
	err := t.page.Close()
	if _, activateErr := t.origin.Activate(); activateErr != nil {
		log.Warn().Err(activateErr).Msg("Failed to re-activate results tab")
	}
	return err
}

// click waits for el to be visible and clicks it, falling back to a DOM
// click when the element is covered by an overlay.
func click(el *rod.Element) error {
	if err := el.WaitVisible(); err != nil {
		return err
	}
	err := el.Click(proto.InputMouseButtonLeft, 1)
	if err == nil {
		return nil
	}
	if crawler.IsStaleElement(err) {
		return err
	}
	log.Debug().Err(err).Msg("Pointer click failed, falling back to DOM click")
	if _, evalErr := el.Eval(`() => this.click()`); evalErr != nil {
		return fmt.Errorf("%w (dom click: %v)", err, evalErr)
	}
	return nil
}

func resolveURL(base, href string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parsing base url: %w", err)
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", fmt.Errorf("parsing link %q: %w", href, err)
	}
	return b.ResolveReference(ref).String(), nil
}

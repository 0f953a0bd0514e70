package tesauro

import (
	"context"
	"net/http"
)

// Portal is the browser-facing surface of the results application. All
// waits inside an implementation are bounded by its own page timeout.
type Portal interface {
	// Open loads the results application, selects the written-sentences tab
	// and waits for the first result card.
	Open(ctx context.Context) error

	// Cards returns the result cards currently rendered, without waiting.
	Cards(ctx context.Context) ([]Card, error)

	// GoToPage clicks the pagination button of page and waits until the
	// pager marks it as current.
	GoToPage(ctx context.Context, page int) error

	// DetailPanel waits for the side panel of the selected card and returns
	// its outer HTML.
	DetailPanel(ctx context.Context) (string, error)

	// AnalysisURL returns the absolute target of the "VER ANÁLISIS" link.
	AnalysisURL(ctx context.Context) (string, error)

	// OpenTab opens url in a new tab. Closing the tab re-activates the
	// results page.
	OpenTab(ctx context.Context, url string) (DocumentTab, error)
}

// downloadLocator is implemented by portals whose browser saves downloads
// into a directory of its own choosing.
type downloadLocator interface {
	DownloadDir() string
}

// Card is one rendered result entry. Handles may go stale on re-render.
type Card interface {
	HTML(ctx context.Context) (string, error)
	Click(ctx context.Context) error
}

// DocumentTab is the analysis page of a single sentence.
type DocumentTab interface {
	WaitReady(ctx context.Context) error
	HTML(ctx context.Context) (string, error)
	URL(ctx context.Context) (string, error)
	Cookies(ctx context.Context) ([]*http.Cookie, error)
	ClickDownload(ctx context.Context) error
	Close() error
}

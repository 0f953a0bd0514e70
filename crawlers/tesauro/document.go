package tesauro

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/LexiconIndonesia/tesauro-crawler/common/crawler"
	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

const (
	pdfExt     = ".pdf"
	partialExt = ".crdownload"
	userAgent  = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36"
)

// Document is a retrieved sentence PDF.
type Document struct {
	FileName     string
	Path         string
	AnalysisPath string
	Direct       bool
	// RemoteURL is set once a sink uploaded the file.
	RemoteURL string
}

// DocumentFetcher drives the analysis tab of a card and collects its PDF,
// either from a direct .pdf navigation or from the browser's download folder.
type DocumentFetcher struct {
	portal       Portal
	downloadRoot string
	timeout      time.Duration
	poll         time.Duration
	settle       time.Duration
	saveAnalysis bool
	http         *resty.Client
	converter    *md.Converter
}

func NewDocumentFetcher(portal Portal, opts Options) *DocumentFetcher {
	client := resty.New()
	client.SetHeader("user-agent", userAgent)
	client.SetTimeout(opts.DocumentTimeout)
	client.SetRetryCount(0)

	return &DocumentFetcher{
		portal:       portal,
		downloadRoot: opts.DownloadsDir,
		timeout:      opts.DocumentTimeout,
		poll:         opts.PollInterval,
		settle:       opts.DocumentSettle,
		saveAnalysis: opts.SaveAnalysis,
		http:         client,
		converter:    md.NewConverter("", true, nil),
	}
}

// Fetch retrieves the document of the currently selected card into
// <downloadRoot>/<folder>/<fileName>. The analysis tab is always closed and
// the results tab re-activated before returning.
func (f *DocumentFetcher) Fetch(ctx context.Context, folder, fileName string) (doc Document, err error) {
	targetDir := filepath.Join(f.downloadRoot, folder)
	doc = Document{FileName: fileName, Path: filepath.Join(targetDir, fileName)}

	href, err := f.portal.AnalysisURL(ctx)
	if err != nil {
		return doc, err
	}

	tab, err := f.portal.OpenTab(ctx, href)
	if err != nil {
		return doc, err
	}
	defer func() {
		if closeErr := tab.Close(); closeErr != nil {
			log.Warn().Err(closeErr).Str("url", href).Msg("Failed to close document tab")
		}
	}()

	if err := tab.WaitReady(ctx); err != nil {
		return doc, err
	}
	if err := crawler.Sleep(ctx, f.settle); err != nil {
		return doc, err
	}

	if f.saveAnalysis {
		analysisPath := strings.TrimSuffix(doc.Path, pdfExt) + ".md"
		if err := f.snapshotAnalysis(ctx, tab, analysisPath); err != nil {
			log.Warn().Err(err).Str("url", href).Msg("Failed to save analysis snapshot")
		} else {
			doc.AnalysisPath = analysisPath
		}
	}

	before, err := listDownloads(f.downloadRoot)
	if err != nil {
		return doc, err
	}

	if err := tab.ClickDownload(ctx); err != nil {
		return doc, err
	}

	err = crawler.Until(ctx, f.poll, f.timeout, func(ctx context.Context) (bool, error) {
		current, err := tab.URL(ctx)
		if err != nil {
			return false, err
		}
		if isPDFURL(current) {
			if err := f.fetchDirect(ctx, tab, current, doc.Path); err != nil {
				return false, err
			}
			doc.Direct = true
			return true, nil
		}

		after, err := listDownloads(f.downloadRoot)
		if err != nil {
			return false, err
		}
		src, ok := newCompletedPDF(before, after)
		if !ok {
			return false, nil
		}
		if err := crawler.MoveFile(filepath.Join(f.downloadRoot, src), doc.Path); err != nil {
			return false, err
		}
		return true, nil
	})
	if err != nil {
		return doc, fmt.Errorf("document %s not completed: %w", fileName, err)
	}

	log.Info().
		Str("file", doc.Path).
		Bool("direct", doc.Direct).
		Msg("Document saved")
	return doc, nil
}

func (f *DocumentFetcher) fetchDirect(ctx context.Context, tab DocumentTab, pdfURL, dst string) error {
	req := f.http.R().SetContext(ctx)
	if cookies, err := tab.Cookies(ctx); err == nil {
		req.SetCookies(cookies)
	}

	res, err := req.Get(pdfURL)
	if err != nil {
		return fmt.Errorf("fetching %s: %w", pdfURL, err)
	}
	if res.IsError() {
		return fmt.Errorf("fetching %s: unexpected status %s", pdfURL, res.Status())
	}
	return crawler.WriteFileAtomic(dst, res.Body())
}

func (f *DocumentFetcher) snapshotAnalysis(ctx context.Context, tab DocumentTab, dst string) error {
	html, err := tab.HTML(ctx)
	if err != nil {
		return err
	}
	content, err := AnalysisContent(html)
	if err != nil {
		return err
	}
	markdown := strings.TrimSpace(f.converter.Convert(content))
	return crawler.WriteFileAtomic(dst, []byte(markdown+"\n"))
}

func isPDFURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return strings.HasSuffix(strings.ToLower(raw), pdfExt)
	}
	return strings.HasSuffix(strings.ToLower(u.Path), pdfExt) || strings.HasSuffix(strings.ToLower(raw), pdfExt)
}

// listDownloads returns the finished and in-progress PDF downloads sitting
// directly in dir.
func listDownloads(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing downloads: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		lower := strings.ToLower(e.Name())
		if strings.HasSuffix(lower, pdfExt) || strings.HasSuffix(lower, partialExt) {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// newCompletedPDF picks a finished .pdf present in after but not in before.
func newCompletedPDF(before, after []string) (string, bool) {
	fresh := lo.Without(after, before...)
	return lo.Find(fresh, func(name string) bool {
		return strings.HasSuffix(strings.ToLower(name), pdfExt)
	})
}

package crawler

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/LexiconIndonesia/tesauro-crawler/common/config"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/launcher/flags"
	"github.com/go-rod/rod/lib/proto"
	"github.com/rs/zerolog/log"
)

// Browser owns a connected rod browser and, when it launched one, the
// local process behind it.
type Browser struct {
	*rod.Browser
	launcher    *launcher.Launcher
	downloadDir string
}

// NewBrowser launches a browser (or connects to cfg.ControlURL) with a fixed
// window size. When downloadDir is set, downloads land there without prompting.
func NewBrowser(cfg config.BrowserConfig, downloadDir string) (*Browser, error) {
	b := &Browser{}

	controlURL := cfg.ControlURL
	if controlURL == "" {
		l := launcher.New().
			Headless(cfg.Headless).
			Set(flags.Flag("window-size"), fmt.Sprintf("%d,%d", cfg.WindowWidth, cfg.WindowHeight)).
			Set(flags.Flag("disable-gpu")).
			Set(flags.Flag("no-sandbox"))
		if cfg.Bin != "" {
			l = l.Bin(cfg.Bin)
		}

		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("%w: launching browser: %v", ErrBrowserSetup, err)
		}
		b.launcher = l
		controlURL = u
	}

	browser := rod.New().ControlURL(controlURL).NoDefaultDevice()
	if err := browser.Connect(); err != nil {
		b.kill()
		return nil, fmt.Errorf("%w: connecting to browser: %v", ErrBrowserSetup, err)
	}
	b.Browser = browser

	if downloadDir != "" {
		if err := b.allowDownloads(downloadDir); err != nil {
			_ = b.Close()
			return nil, err
		}
	}

	log.Info().
		Bool("headless", cfg.Headless).
		Bool("remote", cfg.ControlURL != "").
		Str("downloadDir", b.downloadDir).
		Msg("Browser ready")

	return b, nil
}

func (b *Browser) allowDownloads(dir string) error {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("%w: resolving download dir: %v", ErrBrowserSetup, err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return fmt.Errorf("%w: creating download dir: %v", ErrBrowserSetup, err)
	}

	err = proto.BrowserSetDownloadBehavior{
		Behavior:     proto.BrowserSetDownloadBehaviorBehaviorAllow,
		DownloadPath: abs,
	}.Call(b.Browser)
	if err != nil {
		return fmt.Errorf("%w: setting download behavior: %v", ErrBrowserSetup, err)
	}
	b.downloadDir = abs
	return nil
}

// DownloadDir is the absolute directory downloads are written to, or "".
func (b *Browser) DownloadDir() string {
	return b.downloadDir
}

// Close disconnects and stops a locally launched browser process.
func (b *Browser) Close() error {
	var err error
	if b.Browser != nil {
		err = b.Browser.Close()
	}
	b.kill()
	return err
}

func (b *Browser) kill() {
	if b.launcher != nil {
		b.launcher.Kill()
		b.launcher.Cleanup()
	}
}

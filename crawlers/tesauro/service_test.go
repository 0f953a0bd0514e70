package tesauro

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/LexiconIndonesia/tesauro-crawler/common/crawler"
	"github.com/LexiconIndonesia/tesauro-crawler/common/messaging"
	"github.com/LexiconIndonesia/tesauro-crawler/common/work"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fakeOpener(portal Portal, closed *int) PortalOpener {
	return func(ctx context.Context, opts Options) (Portal, func() error, error) {
		return portal, func() error {
			*closed++
			return nil
		}, nil
	}
}

func TestServiceRunOnce(t *testing.T) {
	dir := t.TempDir()
	portal := newFakePortal()
	portal.addPage(1, 5)
	opts := testOptions(dir)
	opts.Pages = 1

	var closed int
	manager := work.NewRunManager(nil, nil)
	svc, err := NewService(opts, fakeOpener(portal, &closed), manager)
	require.NoError(t, err)

	summary, err := svc.RunOnce(context.Background(), "run-once", opts)
	require.NoError(t, err)
	assert.Equal(t, 5, summary.Records)
	assert.Equal(t, 1, closed)

	state, err := svc.Run(context.Background(), "run-once")
	require.NoError(t, err)
	assert.Equal(t, work.RunFinished, state.Status)
	assert.Equal(t, 5, state.Counts.Records)

	records, err := svc.Records()
	require.NoError(t, err)
	assert.Len(t, records, 5)
}

func TestServiceRunOnceBrowserFailure(t *testing.T) {
	opts := testOptions(t.TempDir())
	manager := work.NewRunManager(nil, nil)
	svc, err := NewService(opts, func(ctx context.Context, opts Options) (Portal, func() error, error) {
		return nil, nil, errors.New("chrome not found")
	}, manager)
	require.NoError(t, err)

	_, err = svc.RunOnce(context.Background(), "run-fail", opts)
	assert.ErrorIs(t, err, crawler.ErrBrowserSetup)

	state, err := svc.Run(context.Background(), "run-fail")
	require.NoError(t, err)
	assert.Equal(t, work.RunFailed, state.Status)
}

func TestServiceSubmitQueuesOneRunAtATime(t *testing.T) {
	dir := t.TempDir()
	portal := newFakePortal()
	portal.addPage(1, 5)
	portal.addPage(2, 5)
	opts := testOptions(dir)
	opts.Pages = 1

	var closed int
	svc, err := NewService(opts, fakeOpener(portal, &closed), work.NewRunManager(nil, nil))
	require.NoError(t, err)
	ctx := context.Background()
	svc.Start(ctx)
	defer svc.Stop()

	runID, err := svc.Submit(ctx, messaging.RunRequest{Pages: 2})
	require.NoError(t, err)
	require.NotEmpty(t, runID)

	_, err = svc.Submit(ctx, messaging.RunRequest{})
	assert.ErrorIs(t, err, work.ErrRunInProgress)

	require.Eventually(t, func() bool {
		state, err := svc.Run(ctx, runID)
		return err == nil && state.Status.Terminal()
	}, 5*time.Second, 20*time.Millisecond)

	state, err := svc.Run(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, work.RunFinished, state.Status)
	assert.Equal(t, 2, state.Pages)
	assert.Equal(t, 10, state.Counts.Records)

	require.Eventually(t, func() bool {
		return svc.QueueStats().Completed == 1
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, int64(0), svc.QueueStats().InQueue)

	next, err := svc.Submit(ctx, messaging.RunRequest{})
	require.NoError(t, err)
	assert.NotEqual(t, runID, next)
}

func TestServiceSubmitAppliesRunTimeout(t *testing.T) {
	portal := newFakePortal()
	portal.addPage(1, 5)
	portal.stuck[2] = true
	portal.stuck[3] = true
	opts := testOptions(t.TempDir())
	opts.RunTimeout = 50 * time.Millisecond

	svc, err := NewService(opts, fakeOpener(portal, new(int)), work.NewRunManager(nil, nil))
	require.NoError(t, err)
	ctx := context.Background()
	svc.Start(ctx)
	defer svc.Stop()

	runID, err := svc.Submit(ctx, messaging.RunRequest{})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		state, err := svc.Run(ctx, runID)
		return err == nil && state.Status.Terminal()
	}, 5*time.Second, 10*time.Millisecond)

	state, err := svc.Run(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, work.RunFailed, state.Status)
	assert.Contains(t, state.Error, context.DeadlineExceeded.Error())
}

// locatedPortal reports its own download directory like a launched browser.
type locatedPortal struct {
	*fakePortal
	dir string
}

func (p *locatedPortal) DownloadDir() string { return p.dir }

func TestServiceUsesBrowserDownloadDir(t *testing.T) {
	browserDir := t.TempDir()
	opts := testOptions(t.TempDir())
	opts.Pages = 1
	opts.DownloadDocuments = true

	portal := newFakePortal()
	portal.addPage(1, 1)
	portal.analysisURL = "https://tesauro.example/analisis/1"
	portal.tab = &fakeTab{url: portal.analysisURL, downloadDir: browserDir, download: "Sentencia.pdf"}

	svc, err := NewService(opts, fakeOpener(&locatedPortal{fakePortal: portal, dir: browserDir}, new(int)), work.NewRunManager(nil, nil))
	require.NoError(t, err)

	summary, err := svc.RunOnce(context.Background(), "run-located", opts)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Documents)

	_, err = os.Stat(filepath.Join(browserDir, "Insolvencia", "sentencia_2023-01-000101_2023-05-01.pdf"))
	assert.NoError(t, err)
	_, err = os.Stat(opts.DownloadsDir)
	assert.True(t, os.IsNotExist(err))
}

func TestServiceHandleRunRequestIgnoresKnownRun(t *testing.T) {
	opts := testOptions(t.TempDir())
	manager := work.NewRunManager(nil, nil)
	require.NoError(t, manager.Enqueue(context.Background(), "known", 1))

	svc, err := NewService(opts, fakeOpener(newFakePortal(), new(int)), manager)
	require.NoError(t, err)

	assert.NoError(t, svc.HandleRunRequest(context.Background(), messaging.RunRequest{ID: "known"}))
	assert.ErrorIs(t, svc.HandleRunRequest(context.Background(), messaging.RunRequest{ID: "other"}), work.ErrRunInProgress)
}

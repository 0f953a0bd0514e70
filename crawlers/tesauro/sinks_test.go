package tesauro

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/LexiconIndonesia/tesauro-crawler/common/messaging"
	"github.com/LexiconIndonesia/tesauro-crawler/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSentenceStore struct {
	params []repository.UpsertSentenceParams
}

func (s *fakeSentenceStore) UpsertSentence(ctx context.Context, arg repository.UpsertSentenceParams) error {
	s.params = append(s.params, arg)
	return nil
}

type fakePublisher struct {
	mu       sync.Mutex
	subjects []string
	payloads [][]byte
}

func (p *fakePublisher) PublishSync(ctx context.Context, subject string, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subjects = append(p.subjects, subject)
	p.payloads = append(p.payloads, data)
	return nil
}

type fakeStorage struct {
	objects map[string][]byte
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{objects: make(map[string][]byte)}
}

func (s *fakeStorage) Upload(ctx context.Context, objectName string, content []byte, contentType string) (string, error) {
	s.objects[objectName] = content
	return "gs://bucket/" + objectName, nil
}

func (s *fakeStorage) UploadFile(ctx context.Context, objectName, path, contentType string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return s.Upload(ctx, objectName, data, contentType)
}

func (s *fakeStorage) Download(ctx context.Context, objectName string) ([]byte, error) {
	return s.objects[objectName], nil
}

func (s *fakeStorage) Delete(ctx context.Context, objectName string) error {
	delete(s.objects, objectName)
	return nil
}

func (s *fakeStorage) StreamUpload(ctx context.Context, objectName string, reader io.Reader, contentType string) (string, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return "", err
	}
	return s.Upload(ctx, objectName, data, contentType)
}

var sampleRecord = Record{
	Page:          1,
	Card:          2,
	Title:         "Sentencia",
	ProcessNumber: "2023-800-1",
	Date:          "2023-05-10",
	Theme:         "Insolvencia",
	FilingNumber:  "2023-01-9",
	PDFFileName:   "sentencia_2023-01-9_2023-05-10.pdf",
}

func TestStorageSinkUploadsDocumentAndResults(t *testing.T) {
	dir := t.TempDir()
	docPath := filepath.Join(dir, "Insolvencia", sampleRecord.PDFFileName)
	require.NoError(t, os.MkdirAll(filepath.Dir(docPath), 0o755))
	require.NoError(t, os.WriteFile(docPath, []byte("%PDF"), 0o644))
	resultsPath := filepath.Join(dir, "results.json")
	require.NoError(t, os.WriteFile(resultsPath, []byte("[]"), 0o644))

	store := newFakeStorage()
	sink := NewStorageSink(store)
	doc := &Document{FileName: sampleRecord.PDFFileName, Path: docPath}

	require.NoError(t, sink.RecordSaved(context.Background(), "run-1", sampleRecord, doc))
	assert.Equal(t, "gs://bucket/run-1/Insolvencia/"+sampleRecord.PDFFileName, doc.RemoteURL)

	require.NoError(t, sink.RunFinished(context.Background(), Summary{RunID: "run-1"}, resultsPath))
	assert.Equal(t, []byte("[]"), store.objects["run-1/results.json"])

	require.NoError(t, sink.RecordSaved(context.Background(), "run-1", sampleRecord, nil))
}

func TestPostgresSinkCarriesRemoteURL(t *testing.T) {
	store := &fakeSentenceStore{}
	sink := NewPostgresSink(store)

	doc := &Document{RemoteURL: "gs://bucket/run-1/x.pdf"}
	require.NoError(t, sink.RecordSaved(context.Background(), "run-1", sampleRecord, doc))
	require.NoError(t, sink.RecordSaved(context.Background(), "run-1", Record{Page: 1, Card: 3, Title: "T", ProcessNumber: "p"}, nil))

	require.Len(t, store.params, 2)
	first := store.params[0]
	assert.Equal(t, "run-1", first.RunID)
	assert.Equal(t, int32(2), first.Card)
	assert.True(t, first.PdfFileName.Valid)
	assert.Equal(t, "gs://bucket/run-1/x.pdf", first.DocumentUrl.String)
	assert.NotEmpty(t, first.ID)

	second := store.params[1]
	assert.False(t, second.PdfFileName.Valid)
	assert.False(t, second.DocumentUrl.Valid)
}

func TestNatsSinkPublishes(t *testing.T) {
	pub := &fakePublisher{}
	sink := NewNatsSink(pub)

	require.NoError(t, sink.RecordSaved(context.Background(), "run-1", sampleRecord, nil))
	require.NoError(t, sink.RunFinished(context.Background(), Summary{RunID: "run-1", Records: 1, Duration: 2 * time.Second}, "results.json"))

	require.Equal(t, []string{messaging.SubjectRecordSaved, messaging.SubjectRunFinished}, pub.subjects)

	var saved messaging.RecordSavedMessage
	require.NoError(t, json.Unmarshal(pub.payloads[0], &saved))
	assert.Equal(t, "run-1", saved.RunID)
	assert.Equal(t, sampleRecord.ProcessNumber, saved.ProcessNumber)
	assert.Equal(t, sampleRecord.PDFFileName, saved.PDFFileName)

	var finished messaging.RunFinishedMessage
	require.NoError(t, json.Unmarshal(pub.payloads[1], &finished))
	assert.Equal(t, int64(2000), finished.DurationMs)
}

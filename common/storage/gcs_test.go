package storage

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/LexiconIndonesia/tesauro-crawler/common/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
)

// newTestGCS points a GCSStorage at a JSON API server that only knows the
// tesauro-test bucket.
func newTestGCS(t *testing.T, bucket string) *GCSStorage {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.Method == http.MethodGet && r.URL.Path == "/storage/v1/b/tesauro-test" {
			_, _ = w.Write([]byte(`{"kind":"storage#bucket","name":"tesauro-test"}`))
			return
		}
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"code":404,"message":"Not Found"}}`))
	}))
	t.Cleanup(srv.Close)

	client, err := storage.NewClient(context.Background(),
		option.WithEndpoint(srv.URL+"/storage/v1/"),
		option.WithoutAuthentication(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	return &GCSStorage{client: client, config: config.GCSConfig{Bucket: bucket, Prefix: "tesauro"}}
}

func TestGCSStoragePing(t *testing.T) {
	assert.NoError(t, newTestGCS(t, "tesauro-test").Ping(context.Background()))

	err := newTestGCS(t, "missing-bucket").Ping(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing-bucket")
}

package messaging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeRunRequest(t *testing.T) {
	req, err := DecodeRunRequest([]byte(`{"id":"run-7","pages":4,"download_documents":false}`))
	require.NoError(t, err)
	assert.Equal(t, "run-7", req.ID)
	assert.Equal(t, 4, req.Pages)
	require.NotNil(t, req.DownloadDocuments)
	assert.False(t, *req.DownloadDocuments)

	req, err = DecodeRunRequest([]byte("  \n"))
	require.NoError(t, err)
	assert.Equal(t, RunRequest{}, req)

	_, err = DecodeRunRequest([]byte(`{"pages":"ten"}`))
	assert.Error(t, err)

	_, err = DecodeRunRequest([]byte(`{"pages":-2}`))
	assert.Error(t, err)
}

func TestMissingSubjects(t *testing.T) {
	tests := []struct {
		name string
		have []string
		want []string
		out  []string
	}{
		{"empty stream", nil, []string{SubjectRunRequest}, []string{SubjectRunRequest}},
		{"exact match", []string{SubjectRunRequest}, []string{SubjectRunRequest}, nil},
		{"wildcard covers", []string{streamSubjectPrefix}, []string{SubjectRunRequest, SubjectRecordSaved, SubjectRunFinished}, nil},
		{"other prefix", []string{"crawler.>"}, []string{SubjectRecordSaved}, []string{SubjectRecordSaved}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.out, missingSubjects(tt.have, tt.want))
		})
	}
}

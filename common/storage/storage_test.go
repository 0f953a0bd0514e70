package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestObjectPath(t *testing.T) {
	tests := []struct {
		prefix string
		name   string
		want   string
	}{
		{"tesauro", "run-1/results.json", "tesauro/run-1/results.json"},
		{"tesauro/", "/run-1/x.pdf", "tesauro/run-1/x.pdf"},
		{"", "run-1/x.pdf", "run-1/x.pdf"},
		{"a/b", "../c.pdf", "a/c.pdf"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ObjectPath(tt.prefix, tt.name), "prefix=%q name=%q", tt.prefix, tt.name)
	}
}

package crawler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/go-rod/rod/lib/cdp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUntil(t *testing.T) {
	t.Run("returns once the condition holds", func(t *testing.T) {
		calls := 0
		err := Until(context.Background(), time.Millisecond, time.Second, func(ctx context.Context) (bool, error) {
			calls++
			return calls == 3, nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("swallows transient errors while polling", func(t *testing.T) {
		calls := 0
		err := Until(context.Background(), time.Millisecond, time.Second, func(ctx context.Context) (bool, error) {
			calls++
			if calls < 3 {
				return false, ErrStaleElement
			}
			return true, nil
		})
		require.NoError(t, err)
	})

	t.Run("times out with the last error", func(t *testing.T) {
		err := Until(context.Background(), 5*time.Millisecond, 30*time.Millisecond, func(ctx context.Context) (bool, error) {
			return false, ErrStaleElement
		})
		require.Error(t, err)
		assert.True(t, IsTimeout(err))

		var te *TimeoutError
		require.True(t, errors.As(err, &te))
		assert.Equal(t, 30*time.Millisecond, te.Timeout)
		assert.ErrorIs(t, te.Last, ErrStaleElement)
	})

	t.Run("stops on context cancellation", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := Until(ctx, time.Millisecond, time.Second, func(ctx context.Context) (bool, error) {
			return false, nil
		})
		assert.ErrorIs(t, err, context.Canceled)
		assert.False(t, IsTimeout(err))
	})
}

func TestRetry(t *testing.T) {
	policy := StaleElementPolicy(3, time.Millisecond)

	t.Run("retries stale reads then succeeds", func(t *testing.T) {
		calls := 0
		got, err := Retry(context.Background(), policy, func(ctx context.Context) (string, error) {
			calls++
			if calls < 3 {
				return "", fmt.Errorf("reading card: %w", ErrStaleElement)
			}
			return "ok", nil
		})
		require.NoError(t, err)
		assert.Equal(t, "ok", got)
		assert.Equal(t, 3, calls)
	})

	t.Run("propagates after the last attempt", func(t *testing.T) {
		calls := 0
		_, err := Retry(context.Background(), policy, func(ctx context.Context) (int, error) {
			calls++
			return 0, ErrStaleElement
		})
		assert.ErrorIs(t, err, ErrStaleElement)
		assert.Equal(t, 3, calls)
	})

	t.Run("does not retry other errors", func(t *testing.T) {
		boom := errors.New("boom")
		calls := 0
		_, err := Retry(context.Background(), policy, func(ctx context.Context) (int, error) {
			calls++
			return 0, boom
		})
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 1, calls)
	})
}

func TestIsStaleElement(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"sentinel", ErrStaleElement, true},
		{"wrapped sentinel", fmt.Errorf("x: %w", ErrStaleElement), true},
		{"cdp context", &cdp.Error{Code: -32000, Message: "Cannot find context with specified id"}, true},
		{"cdp object", &cdp.Error{Code: -32000, Message: "Could not find object with given id"}, true},
		{"cdp other", &cdp.Error{Code: -32601, Message: "method not found"}, false},
		{"plain", errors.New("connection refused"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsStaleElement(tt.err))
		})
	}
}

func TestFolderName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Societario", "Societario"},
		{"Insolvencia - Reorganización", "Insolvencia_-_Reorganizacion"},
		{"  ", EmptyThemeFolder},
		{"../../etc", "etc"},
		{"Acción / Responsabilidad", "Accion___Responsabilidad"},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got := FolderName(tt.in)
			assert.Equal(t, tt.want, got)
			assert.NotContains(t, got, "/")
		})
	}

	long := FolderName(strings.Repeat("a", 300))
	assert.Len(t, long, maxFolderNameLength)
}

func TestDocumentFileName(t *testing.T) {
	name, lossy := DocumentFileName("2023-800-00123", "2023-05-10", "2023-800-00999")
	assert.Equal(t, "sentencia_2023-800-00123_2023-05-10.pdf", name)
	assert.False(t, lossy)

	name, lossy = DocumentFileName("2023/800 123", "10/05/2023", "")
	assert.True(t, lossy)
	assert.True(t, strings.HasPrefix(name, "sentencia_2023-800-123_10-05-2023_"))
	assert.True(t, strings.HasSuffix(name, ".pdf"))
	assert.NotContains(t, name, "/")

	name, lossy = DocumentFileName("", "2023-05-10", "2023-800-00101")
	assert.True(t, lossy)
	assert.True(t, strings.HasPrefix(name, "sentencia_sin-radicado_2023-800-00101_2023-05-10_"))

	name, _ = DocumentFileName("", "2023-05-10", "")
	assert.True(t, strings.HasPrefix(name, "sentencia_sin-radicado_sin-proceso_2023-05-10_"))
}

func TestDocumentFileNameWithoutFilingUsesProcessNumber(t *testing.T) {
	first, _ := DocumentFileName("", "2023-05-10", "2023-800-00101")
	second, _ := DocumentFileName("", "2023-05-10", "2023-800-00102")
	assert.NotEqual(t, first, second)

	again, _ := DocumentFileName("  ", "2023-05-10", "2023-800-00101")
	assert.Equal(t, first, again)

	withFiling, _ := DocumentFileName("2023-01-000101", "2023-05-10", "2023-800-00101")
	otherProcess, _ := DocumentFileName("2023-01-000101", "2023-05-10", "2023-800-00102")
	assert.Equal(t, withFiling, otherProcess)
}

func TestDocumentFileNameDistinctPairsDoNotCollide(t *testing.T) {
	pairs := [][3]string{
		{"2023/800", "2023-05-10", ""},
		{"2023-800", "2023-05-10", ""},
		{"2023 800", "2023-05-10", ""},
		{"2023-800", "2023/05/10", ""},
		{"a-b", "c", ""},
		{"a", "b-c", ""},
		{"", "2023-05-10", "2023-800-001"},
		{"", "2023-05-10", "2023-800-002"},
		{"", "2023-05-10", "2023/800/001"},
		{"", "2023-05-10", ""},
		{"sin-radicado", "2023-05-10", ""},
	}

	seen := make(map[string][3]string)
	for _, p := range pairs {
		name, _ := DocumentFileName(p[0], p[1], p[2])
		if prev, ok := seen[name]; ok {
			t.Fatalf("%v and %v both map to %s", prev, p, name)
		}
		seen[name] = p
	}
}

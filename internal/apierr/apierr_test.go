package apierr

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNotAuthenticatedMatchesSentinel(t *testing.T) {
	err := fmt.Errorf("save reading: %w", NotAuthenticated("save-reading"))

	assert.True(t, errors.Is(err, ErrNotAuthenticated))
	assert.False(t, errors.Is(FromStatus("login", 401, ""), ErrNotAuthenticated))

	kind, ok := KindOf(err)
	assert.True(t, ok)
	assert.Equal(t, KindNotAuthenticated, kind)
}

func TestRecoverable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"network", Network("op", errors.New("connection refused")), true},
		{"server error", FromStatus("op", 503, ""), true},
		{"too many requests", FromStatus("op", 429, ""), true},
		{"request timeout", FromStatus("op", 408, ""), true},
		{"bad request", FromStatus("op", 400, ""), false},
		{"not found", FromStatus("op", 404, ""), false},
		{"decode", Decode("op", errors.New("eof")), false},
		{"not authenticated", NotAuthenticated("op"), false},
		{"plain error", errors.New("boom"), false},
		{"canceled", Network("op", context.Canceled), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Recoverable(tt.err))
		})
	}
}

func TestFallbackable(t *testing.T) {
	assert.True(t, Fallbackable(Network("op", errors.New("dial"))))
	assert.True(t, Fallbackable(FromStatus("op", 404, "")))
	assert.True(t, Fallbackable(Decode("op", errors.New("bad json"))))
	assert.False(t, Fallbackable(NotAuthenticated("op")))
	assert.False(t, Fallbackable(InvalidInput("op", errors.New("bad"))))
	assert.False(t, Fallbackable(Network("op", context.Canceled)))
	assert.False(t, Fallbackable(nil))
}

func TestErrorString(t *testing.T) {
	assert.Equal(t, "analyze-image: [status] HTTP 500", FromStatus("analyze-image", 500, "").Error())
	assert.Equal(t, "login: [network] dial tcp: refused", Network("login", errors.New("dial tcp: refused")).Error())
	assert.Equal(t, "unknown(42)", Kind(42).String())
}

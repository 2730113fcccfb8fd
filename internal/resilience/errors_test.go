package resilience

import (
	"errors"
	"fmt"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
)

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"marked transient", NewTransientError(errors.New("rate limited"), 429), true},
		{"wrapped transient", fmt.Errorf("embed: %w", NewTransientError(errors.New("bad gateway"), 502)), true},
		{"eris-wrapped transient", eris.Wrap(NewTransientError(errors.New("overloaded"), 529), "completion"), true},
		{"network timeout string", errors.New("dial tcp: i/o timeout"), true},
		{"connection reset string", errors.New("read: connection reset by peer"), true},
		{"plain provider error", errors.New("invalid api key"), false},
		{"overloaded without marker", errors.New("provider overloaded"), false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsTransient(tc.err))
		})
	}
}

func TestIsTransientHTTPStatus(t *testing.T) {
	for _, code := range []int{408, 429, 500, 502, 503, 504, 529} {
		assert.True(t, IsTransientHTTPStatus(code), "status %d", code)
	}
	for _, code := range []int{200, 201, 400, 401, 403, 404, 422} {
		assert.False(t, IsTransientHTTPStatus(code), "status %d", code)
	}
}

func TestTransientError_Unwrap(t *testing.T) {
	base := errors.New("boom")
	te := NewTransientError(base, 503)
	assert.ErrorIs(t, te, base)
	assert.Equal(t, 503, te.StatusCode)
	assert.Equal(t, "boom", te.Error())
}

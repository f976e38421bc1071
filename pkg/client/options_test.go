package client

import (
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBareClient(t *testing.T, opts ...Option) *Client {
	t.Helper()
	c, err := NewClient("http://fpindex.local", "", opts...)
	require.NoError(t, err)
	return c
}

func TestWithHTTPClient(t *testing.T) {
	custom := &http.Client{Timeout: 60 * time.Second}
	assert.Same(t, custom, newBareClient(t, WithHTTPClient(custom)).httpClient)
	assert.NotNil(t, newBareClient(t, WithHTTPClient(nil)).httpClient)
}

func TestWithTimeout(t *testing.T) {
	shared := &http.Client{Timeout: time.Minute}
	c := newBareClient(t, WithHTTPClient(shared), WithTimeout(2*time.Second))

	assert.Equal(t, 2*time.Second, c.httpClient.Timeout)
	assert.Equal(t, time.Minute, shared.Timeout, "caller's client must not be mutated")

	c = newBareClient(t, WithTimeout(0))
	assert.Equal(t, 30*time.Second, c.httpClient.Timeout)
}

func TestWithLogger(t *testing.T) {
	logger := &testLogger{}
	assert.Equal(t, logger, newBareClient(t, WithLogger(logger)).logger)
	assert.NotNil(t, newBareClient(t, WithLogger(nil)).logger)
}

func TestWithRetryMax(t *testing.T) {
	tests := []struct {
		name     string
		input    int
		expected int
	}{
		{"positive value", 5, 5},
		{"zero value", 0, 0},
		{"negative value keeps default", -1, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, newBareClient(t, WithRetryMax(tt.input)).retryMax)
		})
	}
}

func TestWithRetryWait(t *testing.T) {
	tests := []struct {
		name      string
		min, max  time.Duration
		expectMin time.Duration
		expectMax time.Duration
	}{
		{"valid range", time.Second, 5 * time.Second, time.Second, 5 * time.Second},
		{"equal values", 2 * time.Second, 2 * time.Second, 2 * time.Second, 2 * time.Second},
		{"zero min keeps defaults", 0, 9 * time.Second, 500 * time.Millisecond, 5 * time.Second},
		{"max below min keeps default max", 8 * time.Second, 2 * time.Second, 8 * time.Second, 5 * time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newBareClient(t, WithRetryWait(tt.min, tt.max))
			assert.Equal(t, tt.expectMin, c.retryWaitMin)
			assert.Equal(t, tt.expectMax, c.retryWaitMax)
		})
	}
}

func TestWithUserAgent(t *testing.T) {
	assert.Equal(t, "custom-agent/1.0", newBareClient(t, WithUserAgent("custom-agent/1.0")).userAgent)
	assert.Contains(t, newBareClient(t, WithUserAgent("")).userAgent, "fpindex-go-sdk/")
}

//Personal.AI order the ending

package spotify

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryLogger_Fields(t *testing.T) {
	var buf bytes.Buffer
	l := retryLogger{l: zerolog.New(&buf)}

	l.Warn("request failed, will retry", "attempt", 2, "status", 503)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "request failed, will retry", entry["message"])
	assert.EqualValues(t, 2, entry["attempt"])
	assert.EqualValues(t, 503, entry["status"])
}

func TestRetryLogger_RespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	l := retryLogger{l: zerolog.New(&buf).Level(zerolog.Disabled)}

	l.Debug("starting request", "method", "GET")
	l.Error("request failed after all retries", "attempts", 1)

	assert.Empty(t, buf.String())
}

func TestNewHTTPClient_LogsThroughZerolog(t *testing.T) {
	var std bytes.Buffer
	log.SetOutput(&std)
	t.Cleanup(func() { log.SetOutput(os.Stderr) })

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	var zl bytes.Buffer
	hc, err := NewHTTPClient(0, zerolog.New(&zl))
	require.NoError(t, err)

	req, err := http.NewRequestWithContext(context.Background(), http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	resp, err := hc.DoWithContext(context.Background(), req)
	if resp != nil {
		resp.Body.Close()
	}
	assert.Error(t, err)

	assert.EqualValues(t, 1, calls.Load())
	assert.Empty(t, std.String(), "retry events must not reach the standard logger")
	assert.Contains(t, zl.String(), "request failed after all retries")
}

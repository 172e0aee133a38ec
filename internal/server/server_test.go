package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/naka-gawa/loc-stats/internal/domain"
	"github.com/naka-gawa/loc-stats/internal/metrics"
)

type memoryStore struct {
	cache domain.Cache
	err   error
}

func (m *memoryStore) Load(context.Context) (domain.Cache, error) {
	if m.err != nil {
		return domain.NewCache(), m.err
	}
	return m.cache.Clone(), nil
}

func (m *memoryStore) Save(_ context.Context, c domain.Cache) error {
	m.cache = c.Clone()
	return nil
}

var now = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func setupServer(t *testing.T) *httptest.Server {
	t.Helper()
	c := domain.NewCache()
	c.LastUpdated = now.Add(-time.Hour)
	c.Repos["owner/a"] = domain.CacheEntry{Weeks: map[int64]domain.WeekBucket{
		time.Date(2024, 5, 27, 0, 0, 0, 0, time.UTC).Unix(): {Additions: 1500, Deletions: 20},
	}}

	handler := NewRouter(&memoryStore{cache: c}, metrics.NewRecorder(), "", func() time.Time { return now }, zerolog.Nop())
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return server
}

func get(t *testing.T, url string) (*http.Response, string) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func TestServer_Healthz(t *testing.T) {
	server := setupServer(t)

	resp, body := get(t, server.URL+"/healthz")

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"ok"}`, body)
}

func TestServer_Summary(t *testing.T) {
	server := setupServer(t)

	resp, body := get(t, server.URL+"/api/v1/summary")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	var got struct {
		LastUpdated  time.Time              `json:"last_updated"`
		Repositories int                    `json:"repositories"`
		Windows      domain.AggregateResult `json:"windows"`
	}
	require.NoError(t, json.Unmarshal([]byte(body), &got))
	assert.Equal(t, 1, got.Repositories)
	assert.True(t, got.LastUpdated.Equal(now.Add(-time.Hour)))
	last, ok := got.Windows.Get("Last Week")
	require.True(t, ok)
	assert.Equal(t, 1520, last.Total)
}

func TestServer_Badge(t *testing.T) {
	server := setupServer(t)

	resp, body := get(t, server.URL+"/badge.svg")

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/svg+xml", resp.Header.Get("Content-Type"))
	assert.Contains(t, body, "1,520 lines")
}

func TestServer_Metrics(t *testing.T) {
	server := setupServer(t)

	_, _ = get(t, server.URL+"/api/v1/summary")
	resp, body := get(t, server.URL+"/metrics")

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, body, `loc_stats_lines{kind="total",window="All Time"} 1520`)
}

func TestServer_CacheUnavailable(t *testing.T) {
	store := &memoryStore{err: errors.New("cache unavailable: connection refused")}
	server := httptest.NewServer(NewRouter(store, metrics.NewRecorder(), "", func() time.Time { return now }, zerolog.Nop()))
	t.Cleanup(server.Close)

	for _, path := range []string{"/api/v1/summary", "/badge.svg"} {
		resp, body := get(t, server.URL+path)
		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode, path)
		assert.JSONEq(t, `{"error":"Cache unavailable"}`, body, path)
	}
}

func TestServer_NotFound(t *testing.T) {
	server := setupServer(t)

	resp, _ := get(t, server.URL+"/nope")

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRun_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- Run(ctx, "127.0.0.1:0", http.NotFoundHandler(), zerolog.Nop())
	}()

	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

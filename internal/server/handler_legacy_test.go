package server

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/basictheprogram/crossfire-nexxus/internal/config"
	"github.com/basictheprogram/crossfire-nexxus/internal/ratelimit"
	"github.com/basictheprogram/crossfire-nexxus/internal/security"
	"github.com/basictheprogram/crossfire-nexxus/internal/storage"
)

// countingCounter tracks whether the rate limiter was ever invoked.
type countingCounter struct {
	calls int
}

func (c *countingCounter) Increment(_ context.Context, _ string, _ time.Duration) (int64, error) {
	c.calls++
	return int64(c.calls), nil
}

func newTestRepo(t *testing.T) *storage.Repository {
	t.Helper()

	repo, err := storage.New(filepath.Join(t.TempDir(), "nexxus.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func newTestHandler(repo *storage.Repository, checks ...security.Check) http.Handler {
	cfg := &config.Config{}
	cfg.Server.MaxBodySize = 4096
	cfg.Registry.StaleWindow = 3600

	return New(repo, nil, security.NewPipeline(checks...), cfg).Run()
}

func newTestServer(t *testing.T, checks ...security.Check) (http.Handler, *storage.Repository) {
	t.Helper()

	repo := newTestRepo(t)
	return newTestHandler(repo, checks...), repo
}

func postHeartbeat(handler http.Handler, form url.Values, mutate ...func(*http.Request)) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/meta_update.php", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	for _, m := range mutate {
		m(req)
	}

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestHeartbeatCreateThenUpdate(t *testing.T) {
	handler, repo := newTestServer(t)

	form := url.Values{}
	form.Set("hostname", "alpha.example.com")
	form.Set("port", "27500")
	form.Set("num_players", "5")

	rec := postHeartbeat(handler, form)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), "Nexxus created alpha.example.com")

	form.Set("num_players", "10")
	rec = postHeartbeat(handler, form)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Nexxus updated alpha.example.com")

	all, err := repo.GetAllServers()
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, int64(10), all[0].NumPlayers)
}

func TestHeartbeatNormalizesHostname(t *testing.T) {
	handler, repo := newTestServer(t)

	form := url.Values{}
	form.Set("hostname", "  ExaMple.LOCAL ")
	form.Set("port", "13327")

	rec := postHeartbeat(handler, form)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Contains(t, rec.Body.String(), "Nexxus created example.local")

	all, err := repo.GetAllServers()
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "example.local", all[0].Hostname)
}

func TestHeartbeatMissingFields(t *testing.T) {
	handler, _ := newTestServer(t)

	form := url.Values{}
	form.Set("hostname", "hostonly.example.com")

	rec := postHeartbeat(handler, form)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Missing required fields hostname and/or port")
}

func TestHeartbeatInvalidPortValue(t *testing.T) {
	handler, _ := newTestServer(t)

	form := url.Values{}
	form.Set("hostname", "test.example.com")
	form.Set("port", "abc")

	rec := postHeartbeat(handler, form)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid port value")
}

func TestHeartbeatPortOutOfBounds(t *testing.T) {
	handler, _ := newTestServer(t)

	for _, port := range []string{"0", "65536"} {
		form := url.Values{}
		form.Set("hostname", "test.example.com")
		form.Set("port", port)

		rec := postHeartbeat(handler, form)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "port %s", port)
		assert.Contains(t, rec.Body.String(), "port")
	}
}

func TestHeartbeatDefaultsOptionalCounters(t *testing.T) {
	handler, repo := newTestServer(t)

	form := url.Values{}
	form.Set("hostname", "test.example.com")
	form.Set("port", "13327")
	form.Set("in_bytes", "")

	rec := postHeartbeat(handler, form)
	require.Equal(t, http.StatusCreated, rec.Code)

	all, err := repo.GetAllServers()
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Zero(t, all[0].NumPlayers)
	assert.Zero(t, all[0].InBytes)
	assert.Zero(t, all[0].Uptime)
}

func TestHeartbeatBlacklistedIPSkipsLaterChecks(t *testing.T) {
	counter := &countingCounter{}
	repo := newTestRepo(t)
	require.NoError(t, repo.AddBlacklistEntry("", "192.0.2.1"))

	handler := newTestHandler(repo,
		&security.IPBlacklistCheck{Store: repo},
		&security.RateLimitCheck{Counter: counter, Threshold: 5, Window: time.Minute},
	)

	form := url.Values{}
	form.Set("hostname", "alpha.example.com")
	form.Set("port", "27500")

	// httptest.NewRequest sets RemoteAddr to 192.0.2.1.
	rec := postHeartbeat(handler, form)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Contains(t, rec.Body.String(), "Forbidden: Blacklisted IP")

	// The rate limiter is never consulted for a blacklisted request.
	assert.Zero(t, counter.calls)
}

func TestHeartbeatRateLimited(t *testing.T) {
	handler, _ := newTestServer(t, &security.RateLimitCheck{
		Counter:   ratelimit.NewMemoryStore(),
		Threshold: 5,
		Window:    time.Minute,
	})

	form := url.Values{}
	form.Set("hostname", "alpha.example.com")
	form.Set("port", "27500")

	for i := 1; i <= 5; i++ {
		rec := postHeartbeat(handler, form)
		assert.NotEqual(t, http.StatusTooManyRequests, rec.Code, "request %d", i)
	}

	rec := postHeartbeat(handler, form)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, rec.Body.String(), "Too Many Requests")
}

func TestHeartbeatSignatureMissingVsInvalid(t *testing.T) {
	secret := []byte("supersecurekey")
	handler, _ := newTestServer(t, &security.HMACSignatureCheck{Secret: secret})

	form := url.Values{}
	form.Set("hostname", "alpha.example.com")
	form.Set("port", "27500")

	rec := postHeartbeat(handler, form)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "Missing Signature")

	rec = postHeartbeat(handler, form, func(r *http.Request) {
		r.Header.Set(security.HeaderSignature, "deadbeef")
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid Signature")

	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(form.Encode()))
	signature := hex.EncodeToString(mac.Sum(nil))

	rec = postHeartbeat(handler, form, func(r *http.Request) {
		r.Header.Set(security.HeaderSignature, signature)
	})
	assert.Equal(t, http.StatusCreated, rec.Code)
}

func TestActiveListingFiltersStaleAndOrders(t *testing.T) {
	handler, repo := newTestServer(t)

	for _, h := range []string{"bravo.example.com", "alpha.example.com"} {
		form := url.Values{}
		form.Set("hostname", h)
		form.Set("port", "13327")
		require.Equal(t, http.StatusCreated, postHeartbeat(handler, form).Code)
	}

	form := url.Values{}
	form.Set("hostname", "stale.example.com")
	form.Set("port", "13327")
	require.Equal(t, http.StatusCreated, postHeartbeat(handler, form).Code)
	require.NoError(t, repo.SetLastUpdate("stale.example.com", 13327, time.Now().UTC().Add(-7200*time.Second)))

	req := httptest.NewRequest(http.MethodGet, "/meta_client.php", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "alpha.example.com|13327|")
	assert.Contains(t, body, "bravo.example.com|13327|")
	assert.NotContains(t, body, "stale.example.com")

	lines := strings.Split(strings.TrimSpace(body), "\n")
	require.Len(t, lines, 2)
	assert.True(t, strings.HasPrefix(lines[0], "alpha.example.com|"))
	assert.True(t, strings.HasPrefix(lines[1], "bravo.example.com|"))
}

func TestFullListingIncludesStale(t *testing.T) {
	handler, repo := newTestServer(t)

	form := url.Values{}
	form.Set("hostname", "stale.example.com")
	form.Set("port", "13327")
	require.Equal(t, http.StatusCreated, postHeartbeat(handler, form).Code)
	require.NoError(t, repo.SetLastUpdate("stale.example.com", 13327, time.Now().UTC().Add(-7200*time.Second)))

	req := httptest.NewRequest(http.MethodGet, "/meta_html.php", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "stale.example.com")
}

func TestListingETagRoundTrip(t *testing.T) {
	handler, _ := newTestServer(t)

	form := url.Values{}
	form.Set("hostname", "alpha.example.com")
	form.Set("port", "13327")
	require.Equal(t, http.StatusCreated, postHeartbeat(handler, form).Code)

	req := httptest.NewRequest(http.MethodGet, "/meta_client.php", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	etag := rec.Header().Get("ETag")
	require.NotEmpty(t, etag)

	req = httptest.NewRequest(http.MethodGet, "/meta_client.php", nil)
	req.Header.Set("If-None-Match", etag)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotModified, rec.Code)
}

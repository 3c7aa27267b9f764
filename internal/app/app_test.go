package app

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/davidleathers/compliance-gateway/internal/domain/compliance"
	"github.com/davidleathers/compliance-gateway/internal/infrastructure/config"
	"github.com/davidleathers/compliance-gateway/internal/service/compliance/checkers"
)

// newProviderFake answers every provider endpoint with a clean verdict.
func newProviderFake(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("POST /scrub/phone", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"results":{"clean":1}}`))
	})
	mux.HandleFunc("GET /lookup", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"message":"Good","code":"","scrubs":false}`))
	})
	mux.HandleFunc("POST /phone_scrub/{key}", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"Rows":[{"Phones":"5551234567","Scores":"0"}]}`))
	})
	mux.HandleFunc("GET /blacklist/check", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"rejection_reason":null}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(baseURL string) *config.Config {
	cfg := config.Defaults()
	cfg.Storage.Driver = config.StorageDriverMemory
	cfg.Providers.Litigation.HTTP.BaseURL = baseURL
	cfg.Providers.Blacklist.HTTP.BaseURL = baseURL
	cfg.Providers.WebReputation.HTTP.BaseURL = baseURL
	cfg.Providers.Partner.HTTP.BaseURL = baseURL
	return cfg
}

func checkNumber(t *testing.T, h http.Handler, phone string) compliance.Report {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/compliance/check", strings.NewReader(`{"phone_number":"`+phone+`"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var report compliance.Report
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	return report
}

func sources(report compliance.Report) []string {
	out := make([]string, len(report.Results))
	for i, r := range report.Results {
		out[i] = r.Source
	}
	return out
}

func TestNew_WiresCheckersInOrder(t *testing.T) {
	fake := newProviderFake(t)
	a, err := New(context.Background(), testConfig(fake.URL), zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(a.Close)

	report := checkNumber(t, a.Handler, "(555) 123-4567")
	assert.True(t, report.IsCompliant)
	assert.Equal(t, "+15551234567", report.PhoneNumber)
	assert.Equal(t, []string{
		checkers.LitigationSource,
		checkers.BlacklistSource,
		checkers.WebReputationSource,
		checkers.InternalDNCSource,
		checkers.PartnerSource,
	}, sources(report))
}

func TestNew_SeedsInternalList(t *testing.T) {
	fake := newProviderFake(t)
	a, err := New(context.Background(), testConfig(fake.URL), zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(a.Close)

	report := checkNumber(t, a.Handler, "9999999999")
	assert.False(t, report.IsCompliant)
	require.Len(t, report.Results, 5)
	assert.False(t, report.Results[3].IsCompliant)
	assert.Equal(t, []string{checkers.SeedRequest.Reason}, report.Results[3].Reasons)
}

func TestNew_DisabledProviders(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:1")
	cfg.Providers.Litigation.HTTP.Enabled = false
	cfg.Providers.Blacklist.HTTP.Enabled = false
	cfg.Providers.WebReputation.HTTP.Enabled = false
	cfg.Providers.Partner.HTTP.Enabled = false
	cfg.Providers.InternalDNC.Seed = false

	a, err := New(context.Background(), cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(a.Close)

	assert.Equal(t, []string{checkers.InternalDNCSource}, a.Engine.Checkers())

	report := checkNumber(t, a.Handler, "9999999999")
	assert.True(t, report.IsCompliant)
}

func TestNew_InternalListDisabledKeepsAdminAPI(t *testing.T) {
	fake := newProviderFake(t)
	cfg := testConfig(fake.URL)
	cfg.Providers.InternalDNC.Enabled = false

	a, err := New(context.Background(), cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(a.Close)

	assert.NotContains(t, a.Engine.Checkers(), checkers.InternalDNCSource)

	req := httptest.NewRequest(http.MethodGet, "/v1/dnc/9999999999", nil)
	rec := httptest.NewRecorder()
	a.Handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestNew_CacheWrapsStatelessProviders(t *testing.T) {
	fake := newProviderFake(t)
	mr := miniredis.RunT(t)

	cfg := testConfig(fake.URL)
	cfg.Cache.Enabled = true
	cfg.Redis.URL = mr.Addr()

	a, err := New(context.Background(), cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(a.Close)

	checkNumber(t, a.Handler, "5551234567")

	assert.True(t, mr.Exists(checkers.CacheKey(checkers.BlacklistSource, "5551234567")))
	assert.True(t, mr.Exists(checkers.CacheKey(checkers.WebReputationSource, "5551234567")))
	assert.False(t, mr.Exists(checkers.CacheKey(checkers.LitigationSource, "5551234567")))
	assert.False(t, mr.Exists(checkers.CacheKey(checkers.PartnerSource, "5551234567")))
}

func TestNew_Errors(t *testing.T) {
	t.Run("unsupported storage driver", func(t *testing.T) {
		cfg := testConfig("http://127.0.0.1:1")
		cfg.Storage.Driver = "sqlite"
		_, err := New(context.Background(), cfg, zaptest.NewLogger(t))
		assert.ErrorContains(t, err, `unsupported storage driver "sqlite"`)
	})

	t.Run("unreachable redis", func(t *testing.T) {
		cfg := testConfig("http://127.0.0.1:1")
		cfg.Cache.Enabled = true
		cfg.Redis.URL = "127.0.0.1:1"
		_, err := New(context.Background(), cfg, zaptest.NewLogger(t))
		assert.ErrorContains(t, err, "redis connection failed")
	})
}

func TestMetricsEndpoint(t *testing.T) {
	fake := newProviderFake(t)
	cfg := testConfig(fake.URL)
	cfg.Version = "1.2.3"

	a, err := New(context.Background(), cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(a.Close)

	rec := httptest.NewRecorder()
	a.Handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, `compliance_build_info{version="1.2.3"} 1`)
	assert.Contains(t, body, "go_goroutines")
}

func TestRun_ServesUntilCancelled(t *testing.T) {
	fake := newProviderFake(t)
	cfg := testConfig(fake.URL)
	cfg.Server.ShutdownTimeout = time.Second

	a, err := New(context.Background(), cfg, zaptest.NewLogger(t))
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("gateway did not shut down")
	}
}

package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eval-cache/configs"
	"eval-cache/internal/app/handlers"
	"eval-cache/internal/cache"
	"eval-cache/internal/infrastructure/stores/memory"
	"eval-cache/pkg/logger"
)

func newTestServer(t *testing.T, mutate func(*configs.Config)) http.Handler {
	t.Helper()
	cfg := configs.DefaultConfig()
	if mutate != nil {
		mutate(cfg)
	}
	require.NoError(t, cfg.Validate())

	log := logger.Discard()
	resultCache := cache.New(memory.New(), &cfg.Cache, log)
	return NewServer(cfg, handlers.NewCacheHandler(resultCache, log), log).Handler()
}

func post(h http.Handler, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func get(h http.Handler, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	return w
}

func TestEvaluateFlow(t *testing.T) {
	h := newTestServer(t, nil)

	w := post(h, "/v1/evaluate/save", `{"request":{"model":"x","temp":0.5},"response":{"text":"hi","Score":0.9}}`)
	require.Equal(t, http.StatusOK, w.Code)
	var saved struct {
		Stored  bool   `json:"stored"`
		Message string `json:"message"`
		ID      string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &saved))
	assert.True(t, saved.Stored)
	assert.Equal(t, cache.SavedMessage, saved.Message)

	w = post(h, "/v1/evaluate/cache", `{"temp":0.5,"model":"x"}`)
	require.Equal(t, http.StatusOK, w.Code)
	var hit struct {
		Cached bool `json:"cached"`
		Result struct {
			ID       string         `json:"id"`
			Response map[string]any `json:"response"`
			Score    float64        `json:"score"`
			HitCount int64          `json:"hitCount"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &hit))
	assert.True(t, hit.Cached)
	assert.Equal(t, saved.ID, hit.Result.ID)
	assert.Equal(t, 0.9, hit.Result.Response["Score"])
	assert.Equal(t, int64(1), hit.Result.HitCount)

	w = post(h, "/v1/evaluate/cache", `{"model":"y"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"cached":false,"result":null}`, w.Body.String())

	w = get(h, "/v1/evaluate/entries/"+saved.ID)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"hitCount":1`)

	w = get(h, "/v1/evaluate/statistics")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"entries":1`)

	w = get(h, "/v1/evaluate/health")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestLargeIntegerKeysDoNotCollide(t *testing.T) {
	h := newTestServer(t, nil)

	w := post(h, "/v1/evaluate/save", `{"request":{"model":"x","seed":9007199254740993},"response":{"Score":0.9,"text":"A"}}`)
	require.Equal(t, http.StatusOK, w.Code)

	w = post(h, "/v1/evaluate/cache", `{"model":"x","seed":9007199254740992}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"cached":false,"result":null}`, w.Body.String())

	w = post(h, "/v1/evaluate/cache", `{"model":"x","seed":9007199254740993}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"cached":true`)
	// 返回的请求保留原始整数
	assert.Contains(t, w.Body.String(), `"seed":9007199254740993`)
}

func TestNegativeZeroMatchesZero(t *testing.T) {
	h := newTestServer(t, nil)

	w := post(h, "/v1/evaluate/save", `{"request":{"temp":0},"response":{"Score":1}}`)
	require.Equal(t, http.StatusOK, w.Code)

	w = post(h, "/v1/evaluate/cache", `{"temp":-0.0}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"cached":true`)
}

func TestLegacyRoutes(t *testing.T) {
	h := newTestServer(t, nil)

	w := post(h, "/evaluate/save", `{"request":{"model":"x"},"respond":{"Score":0.4}}`)
	require.Equal(t, http.StatusOK, w.Code)

	w = post(h, "/evaluate/cache", `{"model":"x"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"cached":true`)
}

func TestSave_MissingScoreIsBadRequest(t *testing.T) {
	h := newTestServer(t, nil)

	w := post(h, "/v1/evaluate/save", `{"request":{"model":"x"},"response":{"text":"no score"}}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), `"INVALID_PARAM"`)
}

func TestMetricsEndpoint(t *testing.T) {
	h := newTestServer(t, nil)
	post(h, "/v1/evaluate/cache", `{"model":"x"}`)

	w := get(h, "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "evalcache_lookups_total")
	assert.Contains(t, w.Body.String(), "evalcache_http_requests_total")

	disabled := newTestServer(t, func(c *configs.Config) { c.Metrics.Enabled = false })
	assert.Equal(t, http.StatusNotFound, get(disabled, "/metrics").Code)
}

func TestCORS(t *testing.T) {
	h := newTestServer(t, func(c *configs.Config) {
		c.CORS.AllowOrigins = []string{"http://localhost:3000"}
	})

	req := httptest.NewRequest(http.MethodOptions, "/v1/evaluate/cache", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
}

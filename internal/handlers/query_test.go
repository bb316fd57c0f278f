package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"go-lakehouse-gateway/internal/backend"
	"go-lakehouse-gateway/internal/cache"
	"go-lakehouse-gateway/internal/sqlcore"
)

// fakeBackend serves canned rows and records calls.
type fakeBackend struct {
	rows     []sqlcore.Row
	fetchErr error
	fetches  int
	executes int
}

func (f *fakeBackend) Execute(context.Context, string, ...any) (int64, error) {
	f.executes++
	return 7, nil
}

func (f *fakeBackend) Fetch(ctx context.Context, sql string, args ...any) (backend.RowIterator, error) {
	return nil, errors.New("not used")
}

func (f *fakeBackend) FetchOne(context.Context, string, ...any) (sqlcore.Row, bool, error) {
	return sqlcore.Row{}, false, nil
}

func (f *fakeBackend) FetchValue(context.Context, string, ...any) (any, error) {
	return int64(1), nil
}

func (f *fakeBackend) FetchAll(context.Context, string, ...any) ([]sqlcore.Row, error) {
	f.fetches++
	return f.rows, f.fetchErr
}

func (f *fakeBackend) SaveTable(context.Context, string, []any, string) error { return nil }
func (f *fakeBackend) CreateTable(context.Context, string, any) error         { return nil }
func (f *fakeBackend) Close(context.Context) error                            { return nil }

type fakeProvider struct {
	backend *fakeBackend
	err     error
}

func (f *fakeProvider) Backend(context.Context, string) (backend.SqlBackend, error) {
	return f.backend, f.err
}

func makeRows(t *testing.T) []sqlcore.Row {
	t.Helper()
	factory, err := sqlcore.NewRowFactory([]string{"id", "name"})
	require.NoError(t, err)
	row, err := factory.Row([]any{int64(1), "alpha"})
	require.NoError(t, err)
	return []sqlcore.Row{row}
}

func newQueryRouter(h *QueryHandler) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/query", h.Execute)
	return router
}

func postQuery(t *testing.T, router *gin.Engine, body any) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/query", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestQueryExecute(t *testing.T) {
	fb := &fakeBackend{rows: makeRows(t)}
	h := NewQueryHandler(&fakeProvider{backend: fb}, cache.NewTTLLRU(8), time.Minute, zaptest.NewLogger(t))
	router := newQueryRouter(h)

	w := postQuery(t, router, gin.H{"sql": "SELECT id, name FROM things", "source": "postgres"})
	require.Equal(t, http.StatusOK, w.Code)

	var resp QueryResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Count)
	assert.False(t, resp.Cached)
	assert.Equal(t, "alpha", resp.Rows[0]["name"])
}

func TestQueryCachedOnSecondCall(t *testing.T) {
	fb := &fakeBackend{rows: makeRows(t)}
	h := NewQueryHandler(&fakeProvider{backend: fb}, cache.NewTTLLRU(8), time.Minute, zaptest.NewLogger(t))
	router := newQueryRouter(h)

	postQuery(t, router, gin.H{"sql": "SELECT id, name FROM things", "source": "postgres"})
	w := postQuery(t, router, gin.H{"sql": "SELECT id, name FROM things", "source": "postgres"})

	var resp QueryResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Cached)
	assert.Equal(t, 1, fb.fetches, "second call is served from cache")
}

// jsonCache stores values as serialized JSON and decodes into interface{} on
// read, reproducing the type erasure of the Redis adapter.
type jsonCache struct {
	entries map[string][]byte
}

func newJSONCache() *jsonCache {
	return &jsonCache{entries: make(map[string][]byte)}
}

func (j *jsonCache) Get(_ context.Context, key string) (interface{}, bool, error) {
	raw, ok := j.entries[key]
	if !ok {
		return nil, false, nil
	}
	var data interface{}
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (j *jsonCache) Set(_ context.Context, key string, value interface{}, _ time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	j.entries[key] = raw
	return nil
}

func (j *jsonCache) Delete(_ context.Context, key string) error {
	delete(j.entries, key)
	return nil
}

func (j *jsonCache) Invalidate(context.Context, string) error { return nil }

func (j *jsonCache) Stats(context.Context) (map[string]interface{}, error) {
	return map[string]interface{}{"size": len(j.entries)}, nil
}

func (j *jsonCache) Close() error { return nil }

func TestQueryCachedThroughJSONRoundTrip(t *testing.T) {
	fb := &fakeBackend{rows: makeRows(t)}
	h := NewQueryHandler(&fakeProvider{backend: fb}, newJSONCache(), time.Minute, zaptest.NewLogger(t))
	router := newQueryRouter(h)

	postQuery(t, router, gin.H{"sql": "SELECT id, name FROM things", "source": "postgres"})
	w := postQuery(t, router, gin.H{"sql": "SELECT id, name FROM things", "source": "postgres"})

	var resp QueryResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Cached, "second identical query is a cache hit")
	assert.Equal(t, 1, fb.fetches)
	require.Len(t, resp.Rows, 1)
	assert.Equal(t, "alpha", resp.Rows[0]["name"])
}

func TestQueryDMLBypassesCache(t *testing.T) {
	fb := &fakeBackend{}
	h := NewQueryHandler(&fakeProvider{backend: fb}, cache.NewTTLLRU(8), time.Minute, zaptest.NewLogger(t))
	router := newQueryRouter(h)

	w := postQuery(t, router, gin.H{"sql": "DELETE FROM things WHERE id = 1", "source": "postgres"})
	require.Equal(t, http.StatusOK, w.Code)

	var resp QueryResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.Affected)
	assert.Equal(t, int64(7), *resp.Affected)
	assert.Equal(t, 1, fb.executes)
	assert.Equal(t, 0, fb.fetches)
}

func TestQueryValidation(t *testing.T) {
	h := NewQueryHandler(&fakeProvider{backend: &fakeBackend{}}, nil, time.Minute, zaptest.NewLogger(t))
	router := newQueryRouter(h)

	w := postQuery(t, router, gin.H{"source": "postgres"})
	assert.Equal(t, http.StatusBadRequest, w.Code, "sql is required")

	w = postQuery(t, router, gin.H{"sql": "SELECT 1", "source": "mainframe"})
	assert.Equal(t, http.StatusBadRequest, w.Code, "source must be warehouse or postgres")
}

func TestQueryErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{"timeout", &backend.TimeoutError{Elapsed: time.Second}, http.StatusGatewayTimeout},
		{"config", &backend.ConfigError{Reason: "no host"}, http.StatusServiceUnavailable},
		{"generic", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fb := &fakeBackend{fetchErr: tt.err}
			h := NewQueryHandler(&fakeProvider{backend: fb}, nil, time.Minute, zaptest.NewLogger(t))
			router := newQueryRouter(h)

			w := postQuery(t, router, gin.H{"sql": "SELECT 1", "source": "warehouse"})
			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}
}

type fakeProber struct {
	failing map[string]bool
}

func (f *fakeProber) Probe(_ context.Context, source string) error {
	if f.failing[source] {
		return errors.New("unreachable")
	}
	return nil
}

func TestReady(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/ready", Ready(&fakeProber{}, []string{"warehouse", "postgres"}))

	req := httptest.NewRequest(http.MethodGet, "/ready", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	router = gin.New()
	router.GET("/ready", Ready(&fakeProber{failing: map[string]bool{"postgres": true}}, []string{"warehouse", "postgres"}))
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), `"postgres":"unhealthy"`)
}

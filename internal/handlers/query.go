package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"go-lakehouse-gateway/internal/backend"
	"go-lakehouse-gateway/internal/cache"
)

// BackendProvider hands out a SQL backend for a request's source name.
type BackendProvider interface {
	Backend(ctx context.Context, source string) (backend.SqlBackend, error)
}

type QueryHandler struct {
	backends BackendProvider
	cache    cache.Cache
	cacheTTL time.Duration
	logger   *zap.Logger
}

func NewQueryHandler(backends BackendProvider, queryCache cache.Cache, cacheTTL time.Duration, logger *zap.Logger) *QueryHandler {
	if queryCache == nil {
		queryCache = &cache.NoOp{}
	}
	return &QueryHandler{
		backends: backends,
		cache:    queryCache,
		cacheTTL: cacheTTL,
		logger:   logger,
	}
}

type QueryRequest struct {
	SQL    string `json:"sql" binding:"required"`
	Source string `json:"source" binding:"omitempty,oneof=warehouse postgres"`
}

type QueryResponse struct {
	Source string           `json:"source"`
	Count  int              `json:"count"`
	Rows   []map[string]any `json:"rows,omitempty"`
	// Affected is set for statements that return no rows.
	Affected *int64 `json:"affected,omitempty"`
	Cached   bool   `json:"cached"`
}

// Execute runs a statement against the requested backend. Query results are
// cached; DML goes straight through.
func (h *QueryHandler) Execute(c *gin.Context) {
	var req QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	h.logger.Info("Executing query",
		zap.String("source", req.Source),
		zap.String("sql", req.SQL))

	ctx := c.Request.Context()
	b, err := h.backends.Backend(ctx, req.Source)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}

	if !isQuery(req.SQL) {
		affected, err := b.Execute(ctx, req.SQL)
		if err != nil {
			h.respondError(c, req.Source, err)
			return
		}
		c.JSON(http.StatusOK, QueryResponse{Source: req.Source, Affected: &affected})
		return
	}

	key := cache.Key(req.Source, req.SQL)
	if cached, ok, _ := h.cache.Get(ctx, key); ok {
		if rows, ok := cachedRows(cached); ok {
			c.JSON(http.StatusOK, QueryResponse{
				Source: req.Source,
				Count:  len(rows),
				Rows:   rows,
				Cached: true,
			})
			return
		}
	}

	rows, err := b.FetchAll(ctx, req.SQL)
	if err != nil {
		h.respondError(c, req.Source, err)
		return
	}

	mapped := make([]map[string]any, len(rows))
	for i, row := range rows {
		mapped[i] = row.AsMap()
	}
	if err := h.cache.Set(ctx, key, mapped, h.cacheTTL); err != nil {
		h.logger.Warn("Caching query result failed", zap.Error(err))
	}

	c.JSON(http.StatusOK, QueryResponse{
		Source: req.Source,
		Count:  len(mapped),
		Rows:   mapped,
	})
}

func (h *QueryHandler) respondError(c *gin.Context, source string, err error) {
	h.logger.Error("Query execution failed",
		zap.String("source", source),
		zap.Error(err))

	status := http.StatusInternalServerError
	switch err.(type) {
	case *backend.TimeoutError:
		status = http.StatusGatewayTimeout
	case *backend.ConfigError:
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// cachedRows recovers the row maps from a cached value. In-memory caches hand
// the stored slice back as-is; Redis round-trips through JSON, which erases
// the slice's element type, so both shapes must be accepted.
func cachedRows(v any) ([]map[string]any, bool) {
	switch rows := v.(type) {
	case []map[string]any:
		return rows, true
	case []any:
		out := make([]map[string]any, len(rows))
		for i, r := range rows {
			m, ok := r.(map[string]any)
			if !ok {
				return nil, false
			}
			out[i] = m
		}
		return out, true
	}
	return nil, false
}

func isQuery(sql string) bool {
	head := strings.ToUpper(strings.TrimSpace(sql))
	for _, prefix := range []string{"SELECT", "WITH", "SHOW", "DESCRIBE", "EXPLAIN"} {
		if strings.HasPrefix(head, prefix) {
			return true
		}
	}
	return false
}

package service

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"go-lakehouse-gateway/internal/auth"
	"go-lakehouse-gateway/internal/backend"
	"go-lakehouse-gateway/internal/cache"
	"go-lakehouse-gateway/internal/config"
	"go-lakehouse-gateway/internal/workspace"
)

// Backend source names accepted by Backend.
const (
	SourceWarehouse = "warehouse"
	SourcePostgres  = "postgres"
)

const (
	lookupCacheSize = 64
	lookupCacheTTL  = 10 * time.Minute

	warehouseCacheKey = "lookup:warehouse"
	postgresCacheKey  = "lookup:postgres"
)

// Service wires the workspace client, token manager and SQL backends from
// settings, initializing each lazily on first use. It owns the cache
// registry and the background token refresh lifecycle.
type Service struct {
	cfg     *config.Config
	logger  *zap.Logger
	caches  *cache.Registry
	lookups *cache.TTLLRU

	mu        sync.Mutex
	wsClient  *workspace.Client
	tokens    *auth.Manager
	warehouse *backend.WarehouseBackend
	postgres  *backend.PostgresBackend
	pgPool    *backend.PostgresPoolBackend
}

func New(cfg *config.Config, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}

	caches := cache.NewRegistry()
	lookups := cache.NewTTLLRU(lookupCacheSize)
	caches.Register("lookups", lookups)

	var queryCache cache.Cache
	if cfg.Redis.Host != "" {
		redisCache, err := cache.NewRedis(cfg.Redis, logger)
		if err != nil {
			logger.Warn("Redis unavailable, using in-memory query cache", zap.Error(err))
			queryCache = cache.NewMemory(cfg.CacheTTL, logger)
		} else {
			queryCache = redisCache
		}
	} else {
		queryCache = cache.NewMemory(cfg.CacheTTL, logger)
	}
	caches.Register("query", cache.WithMetrics(queryCache))

	return &Service{
		cfg:     cfg,
		logger:  logger,
		caches:  caches,
		lookups: lookups,
	}
}

func (s *Service) Caches() *cache.Registry { return s.caches }

// QueryCache returns the cache used for query results.
func (s *Service) QueryCache() cache.Cache {
	c, _ := s.caches.Lookup("query")
	return c
}

// Workspace returns the lazily initialized workspace client.
func (s *Service) Workspace() (*workspace.Client, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.workspaceLocked()
}

func (s *Service) workspaceLocked() (*workspace.Client, error) {
	if s.wsClient != nil {
		return s.wsClient, nil
	}
	client, err := workspace.NewClient(s.cfg.Workspace, s.logger)
	if err != nil {
		return nil, err
	}
	s.wsClient = client
	return client, nil
}

// TokenManager returns the shared OAuth token manager. With a configured
// database instance the manager is exclusive: environment fallbacks are
// disabled so stale credentials never mask the issuance flow.
func (s *Service) TokenManager() (*auth.Manager, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tokenManagerLocked()
}

func (s *Service) tokenManagerLocked() (*auth.Manager, error) {
	if s.tokens != nil {
		return s.tokens, nil
	}
	client, err := s.workspaceLocked()
	if err != nil {
		return nil, err
	}
	if instance := s.cfg.Workspace.InstanceName; instance != "" {
		s.tokens = auth.NewExclusiveManager(client, instance, s.logger)
	} else {
		s.tokens = auth.NewManager(client, auth.Options{Logger: s.logger})
	}
	return s.tokens, nil
}

// WarehouseBackend returns the statement-execution backend, auto-selecting
// a warehouse when none is configured.
func (s *Service) WarehouseBackend(ctx context.Context) (backend.SqlBackend, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.warehouse != nil {
		return s.warehouse, nil
	}
	client, err := s.workspaceLocked()
	if err != nil {
		return nil, err
	}

	warehouseCfg := s.cfg.Warehouse
	if warehouseCfg.WarehouseID == "" {
		warehouseCfg.WarehouseID, err = s.findBestWarehouse(ctx, client)
		if err != nil {
			return nil, err
		}
	}
	s.warehouse = backend.NewWarehouseBackend(client, warehouseCfg, s.logger)
	return s.warehouse, nil
}

// findBestWarehouse auto-selects a warehouse, preferring running shared over
// running over stopped shared over stopped. The choice is memoized.
func (s *Service) findBestWarehouse(ctx context.Context, client *workspace.Client) (string, error) {
	if cached, ok, _ := s.lookups.Get(ctx, warehouseCacheKey); ok {
		return cached.(string), nil
	}

	warehouses, err := client.ListWarehouses(ctx)
	if err != nil {
		return "", fmt.Errorf("listing warehouses: %w", err)
	}
	if len(warehouses) == 0 {
		return "", errors.New("no SQL warehouse available: set DATABRICKS_WAREHOUSE or create one")
	}

	best := warehouses[0]
	bestRank := warehouseRank(best)
	for _, w := range warehouses[1:] {
		if rank := warehouseRank(w); rank < bestRank {
			best, bestRank = w, rank
		}
	}

	s.logger.Info("Auto-selected warehouse",
		zap.String("name", best.Name),
		zap.String("id", best.ID))
	_ = s.lookups.Set(ctx, warehouseCacheKey, best.ID, lookupCacheTTL)
	return best.ID, nil
}

func warehouseRank(w workspace.Warehouse) int {
	running := w.State == "RUNNING"
	shared := strings.Contains(strings.ToLower(w.Name), "shared")
	switch {
	case running && shared:
		return 0
	case running:
		return 1
	case shared:
		return 2
	default:
		return 3
	}
}

// PostgresBackend returns the single-connection backend. Not safe for
// concurrent callers; prefer PostgresPoolBackend in request handlers.
func (s *Service) PostgresBackend(ctx context.Context) (backend.SqlBackend, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.postgres != nil {
		return s.postgres, nil
	}
	pgCfg, tokens, err := s.postgresPartsLocked(ctx)
	if err != nil {
		return nil, err
	}
	s.postgres = backend.NewPostgresBackend(pgCfg, tokens, s.logger)
	return s.postgres, nil
}

// PostgresPoolBackend returns the pool-backed backend shared by concurrent
// request handlers.
func (s *Service) PostgresPoolBackend(ctx context.Context) (backend.SqlBackend, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pgPool != nil {
		return s.pgPool, nil
	}
	pgCfg, tokens, err := s.postgresPartsLocked(ctx)
	if err != nil {
		return nil, err
	}
	s.pgPool = backend.NewPostgresPoolBackend(pgCfg, tokens, s.logger)
	return s.pgPool, nil
}

func (s *Service) postgresPartsLocked(ctx context.Context) (config.PostgresConfig, *auth.Manager, error) {
	tokens, err := s.tokenManagerLocked()
	if err != nil {
		return config.PostgresConfig{}, nil, err
	}
	pgCfg, err := s.resolvePostgres(ctx)
	if err != nil {
		return config.PostgresConfig{}, nil, err
	}
	return pgCfg, tokens, nil
}

// resolvePostgres fills in the Postgres host from the configured database
// instance when PGHOST is not set, pre-resolving the DNS name so the
// connection string can pin hostaddr. The resolution is memoized.
func (s *Service) resolvePostgres(ctx context.Context) (config.PostgresConfig, error) {
	pgCfg := s.cfg.Postgres
	if pgCfg.Host != "" {
		return pgCfg, nil
	}

	if cached, ok, _ := s.lookups.Get(ctx, postgresCacheKey); ok {
		resolved := cached.(config.PostgresConfig)
		return resolved, nil
	}

	instanceName := s.cfg.Workspace.InstanceName
	if instanceName == "" {
		return pgCfg, &backend.ConfigError{Reason: "set PGHOST or DATABRICKS_DATABASE_INSTANCE"}
	}
	client, err := s.workspaceLocked()
	if err != nil {
		return pgCfg, err
	}
	instance, err := client.GetDatabaseInstance(ctx, instanceName)
	if err != nil {
		return pgCfg, fmt.Errorf("resolving database instance %q: %w", instanceName, err)
	}
	if instance.ReadWriteDNS == "" {
		return pgCfg, &backend.ConfigError{Reason: fmt.Sprintf("instance %q reports no read-write DNS", instanceName)}
	}

	pgCfg.Host = instance.ReadWriteDNS
	if addrs, err := net.DefaultResolver.LookupHost(ctx, instance.ReadWriteDNS); err == nil && len(addrs) > 0 {
		pgCfg.HostAddr = addrs[0]
	}

	_ = s.lookups.Set(ctx, postgresCacheKey, pgCfg, lookupCacheTTL)
	return pgCfg, nil
}

// Backend dispatches on the request's source name.
func (s *Service) Backend(ctx context.Context, source string) (backend.SqlBackend, error) {
	switch source {
	case SourceWarehouse, "":
		return s.WarehouseBackend(ctx)
	case SourcePostgres:
		return s.PostgresPoolBackend(ctx)
	default:
		return nil, fmt.Errorf("unknown source %q", source)
	}
}

// Probe verifies connectivity of the named backend with a trivial query.
func (s *Service) Probe(ctx context.Context, source string) error {
	b, err := s.Backend(ctx, source)
	if err != nil {
		return err
	}
	_, err = b.FetchValue(ctx, "SELECT 1")
	return err
}

// Start begins background token refresh when a token manager can be built.
// Missing workspace config is not fatal at boot; backends will surface it.
func (s *Service) Start(ctx context.Context) {
	tokens, err := s.TokenManager()
	if err != nil {
		s.logger.Warn("Token manager unavailable, skipping background refresh", zap.Error(err))
		return
	}
	tokens.StartBackgroundRefresh(ctx)
}

// Shutdown stops background refresh and releases backends and caches.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	tokens := s.tokens
	postgres := s.postgres
	pgPool := s.pgPool
	s.mu.Unlock()

	if tokens != nil {
		tokens.Stop()
	}

	var errs []error
	if postgres != nil {
		errs = append(errs, postgres.Close(ctx))
	}
	if pgPool != nil {
		errs = append(errs, pgPool.Close(ctx))
	}
	errs = append(errs, s.caches.CloseAll())
	return errors.Join(errs...)
}

package auth

import (
	"context"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"go-lakehouse-gateway/internal/workspace"
)

// DefaultRefreshInterval keeps refreshed tokens comfortably inside the
// one-hour credential TTL.
const DefaultRefreshInterval = 50 * time.Minute

// Environment fallbacks consumed when enabled.
const (
	envPassword    = "PGPASSWORD"
	envToken       = "DATABRICKS_TOKEN"
	minEnvTokenLen = 20
)

// CredentialSource is the slice of the workspace client the manager needs.
type CredentialSource interface {
	GenerateDatabaseCredential(ctx context.Context, requestID string, instanceNames []string) (*workspace.DatabaseCredential, error)
	OAuthToken(ctx context.Context) (string, error)
	AuthHeaders(ctx context.Context) (map[string]string, error)
}

// Manager owns the OAuth token used as the database password: acquisition,
// caching, proactive refresh and invalidation-on-demand. Token and
// Invalidate are safe for concurrent use; a refresh never runs twice
// concurrently.
type Manager struct {
	mu              sync.Mutex
	token           string
	lastRefresh     time.Time // zero means never refreshed
	refreshInterval time.Duration
	source          CredentialSource
	instanceName    string
	envFallback     bool
	logger          *zap.Logger
	now             func() time.Time

	cancel context.CancelFunc
	done   chan struct{}
}

// Options configures a Manager.
type Options struct {
	// InstanceName enables the dedicated credential-issuance strategy,
	// scoped to this database instance.
	InstanceName string
	// RefreshInterval overrides DefaultRefreshInterval when positive.
	RefreshInterval time.Duration
	// DisableEnvFallback turns off the PGPASSWORD/DATABRICKS_TOKEN
	// strategies so stale environment credentials never mask the
	// workspace flow.
	DisableEnvFallback bool
	Logger             *zap.Logger
}

// NewManager creates a token manager. A nil source limits refresh to the
// environment fallbacks.
func NewManager(source CredentialSource, opts Options) *Manager {
	interval := opts.RefreshInterval
	if interval <= 0 {
		interval = DefaultRefreshInterval
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		refreshInterval: interval,
		source:          source,
		instanceName:    opts.InstanceName,
		envFallback:     !opts.DisableEnvFallback,
		logger:          logger,
		now:             time.Now,
	}
}

// NewExclusiveManager creates a manager that refreshes only through the
// workspace client, never from the environment.
func NewExclusiveManager(source CredentialSource, instanceName string, logger *zap.Logger) *Manager {
	return NewManager(source, Options{
		InstanceName:       instanceName,
		DisableEnvFallback: true,
		Logger:             logger,
	})
}

// Token returns a valid OAuth token, refreshing synchronously when the
// cached one has aged past the refresh interval. All strategies failing
// leaves the previous token in place and returns it; a manager that never
// obtained a token returns the empty string, which callers must treat as an
// authentication failure.
func (m *Manager) Token(ctx context.Context) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.token == "" || m.now().Sub(m.lastRefresh) > m.refreshInterval {
		m.refreshLocked(ctx)
	}
	return m.token
}

// Invalidate forces the next Token call to refresh. The cached value is not
// cleared; it remains available as an emergency fallback if refresh fails.
func (m *Manager) Invalidate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastRefresh = time.Time{}
}

// refreshLocked tries each strategy in order and stops at the first success.
func (m *Manager) refreshLocked(ctx context.Context) bool {
	m.logger.Debug("Refreshing database OAuth token")

	if m.source != nil {
		if m.instanceName != "" {
			cred, err := m.source.GenerateDatabaseCredential(ctx, uuid.NewString(), []string{m.instanceName})
			if err == nil && cred != nil && cred.Token != "" {
				m.adopt(cred.Token, "database_credential")
				return true
			}
			if err != nil {
				m.logger.Debug("Database credential issuance failed", zap.Error(err))
			}
		}

		if token, err := m.source.OAuthToken(ctx); err == nil && token != "" {
			m.adopt(token, "oauth_token")
			return true
		} else if err != nil {
			m.logger.Debug("Workspace OAuth token failed", zap.Error(err))
		}

		if headers, err := m.source.AuthHeaders(ctx); err == nil {
			if bearer, ok := strings.CutPrefix(headers["Authorization"], "Bearer "); ok && bearer != "" {
				m.adopt(bearer, "auth_header")
				return true
			}
		} else {
			m.logger.Debug("Auth header factory failed", zap.Error(err))
		}
	}

	if m.envFallback {
		// A human-typed placeholder is too short to be a real token.
		if password := os.Getenv(envPassword); len(password) > minEnvTokenLen {
			m.adopt(password, envPassword)
			return true
		}
		if token := os.Getenv(envToken); token != "" {
			m.adopt(token, envToken)
			return true
		}
	}

	m.logger.Warn("All token refresh strategies failed")
	return false
}

func (m *Manager) adopt(token, source string) {
	m.token = token
	m.lastRefresh = m.now()
	m.logger.Info("Database OAuth token refreshed", zap.String("source", source))
}

// StartBackgroundRefresh performs an initial synchronous refresh, then keeps
// the token warm on the refresh interval until Stop is called. Starting an
// already started manager is a no-op.
func (m *Manager) StartBackgroundRefresh(ctx context.Context) {
	m.mu.Lock()
	if m.done != nil {
		m.mu.Unlock()
		return
	}
	m.refreshLocked(ctx)

	loopCtx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.done = make(chan struct{})
	done := m.done
	m.mu.Unlock()

	go m.refreshLoop(loopCtx, done)
}

func (m *Manager) refreshLoop(ctx context.Context, done chan struct{}) {
	defer close(done)
	timer := time.NewTimer(m.refreshInterval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			m.mu.Lock()
			m.refreshLocked(ctx)
			m.mu.Unlock()
			timer.Reset(m.refreshInterval)
		}
	}
}

// Stop cancels the background refresh and waits briefly for the loop to
// confirm termination.
func (m *Manager) Stop() {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.cancel, m.done = nil, nil
	m.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		m.logger.Warn("Token refresh loop did not stop in time")
	}
}

package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-lakehouse-gateway/internal/workspace"
)

type fakeSource struct {
	mu sync.Mutex

	credentialCalls int
	credentialErr   error
	oauthCalls      int
	oauthErr        error
	headerCalls     int
	headerErr       error
}

func (f *fakeSource) GenerateDatabaseCredential(_ context.Context, requestID string, _ []string) (*workspace.DatabaseCredential, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.credentialCalls++
	if f.credentialErr != nil {
		return nil, f.credentialErr
	}
	if requestID == "" {
		return nil, errors.New("missing request id")
	}
	return &workspace.DatabaseCredential{Token: fmt.Sprintf("cred-token-%d", f.credentialCalls)}, nil
}

func (f *fakeSource) OAuthToken(_ context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.oauthCalls++
	if f.oauthErr != nil {
		return "", f.oauthErr
	}
	return fmt.Sprintf("oauth-token-%d", f.oauthCalls), nil
}

func (f *fakeSource) AuthHeaders(_ context.Context) (map[string]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.headerCalls++
	if f.headerErr != nil {
		return nil, f.headerErr
	}
	return map[string]string{"Authorization": fmt.Sprintf("Bearer header-token-%d", f.headerCalls)}, nil
}

func (f *fakeSource) calls() (int, int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.credentialCalls, f.oauthCalls, f.headerCalls
}

func newTestManager(source CredentialSource, instanceName string) (*Manager, *time.Time) {
	m := NewManager(source, Options{
		InstanceName:       instanceName,
		DisableEnvFallback: true,
	})
	clock := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return clock }
	return m, &clock
}

func TestTokenCachedWhileFresh(t *testing.T) {
	source := &fakeSource{}
	m, clock := newTestManager(source, "instance-a")

	first := m.Token(context.Background())
	require.Equal(t, "cred-token-1", first)

	*clock = clock.Add(49 * time.Minute)
	second := m.Token(context.Background())
	assert.Equal(t, first, second)

	credCalls, _, _ := source.calls()
	assert.Equal(t, 1, credCalls, "fresh token should not trigger a second refresh")
}

func TestTokenRefreshesAfterInterval(t *testing.T) {
	source := &fakeSource{}
	m, clock := newTestManager(source, "instance-a")

	first := m.Token(context.Background())
	*clock = clock.Add(51 * time.Minute)
	second := m.Token(context.Background())

	assert.NotEqual(t, first, second)
	credCalls, _, _ := source.calls()
	assert.Equal(t, 2, credCalls)
}

func TestInvalidateForcesRefresh(t *testing.T) {
	source := &fakeSource{}
	m, _ := newTestManager(source, "instance-a")

	first := m.Token(context.Background())
	m.Invalidate()
	second := m.Token(context.Background())

	assert.NotEqual(t, first, second)
	credCalls, _, _ := source.calls()
	assert.Equal(t, 2, credCalls)
}

func TestRefreshStrategyOrder(t *testing.T) {
	tests := []struct {
		name      string
		source    *fakeSource
		instance  string
		wantToken string
	}{
		{
			name:      "credential issuance wins when instance is set",
			source:    &fakeSource{},
			instance:  "instance-a",
			wantToken: "cred-token-1",
		},
		{
			name:      "oauth token without instance",
			source:    &fakeSource{},
			wantToken: "oauth-token-1",
		},
		{
			name:      "auth header after oauth failure",
			source:    &fakeSource{oauthErr: errors.New("oauth down")},
			wantToken: "header-token-1",
		},
		{
			name:      "credential failure falls through to oauth",
			source:    &fakeSource{credentialErr: errors.New("issuance down")},
			instance:  "instance-a",
			wantToken: "oauth-token-1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, _ := newTestManager(tt.source, tt.instance)
			assert.Equal(t, tt.wantToken, m.Token(context.Background()))
		})
	}
}

func TestAllStrategiesFailKeepsPreviousToken(t *testing.T) {
	source := &fakeSource{}
	m, _ := newTestManager(source, "")

	first := m.Token(context.Background())
	require.Equal(t, "oauth-token-1", first)

	source.mu.Lock()
	source.oauthErr = errors.New("oauth down")
	source.headerErr = errors.New("headers down")
	source.mu.Unlock()

	m.Invalidate()
	assert.Equal(t, first, m.Token(context.Background()), "stale token remains the emergency fallback")
}

func TestExclusiveManagerIgnoresEnv(t *testing.T) {
	t.Setenv("PGPASSWORD", "an-environment-password-long-enough")
	t.Setenv("DATABRICKS_TOKEN", "env-token")

	m := NewExclusiveManager(nil, "instance-a", nil)
	assert.Empty(t, m.Token(context.Background()))
}

func TestEnvFallback(t *testing.T) {
	t.Setenv("PGPASSWORD", "short")
	t.Setenv("DATABRICKS_TOKEN", "env-token")

	m := NewManager(nil, Options{})
	assert.Equal(t, "env-token", m.Token(context.Background()),
		"short PGPASSWORD should be skipped in favor of DATABRICKS_TOKEN")

	t.Setenv("PGPASSWORD", "an-environment-password-long-enough")
	m2 := NewManager(nil, Options{})
	assert.Equal(t, "an-environment-password-long-enough", m2.Token(context.Background()))
}

func TestBackgroundRefreshStops(t *testing.T) {
	source := &fakeSource{}
	m := NewManager(source, Options{
		InstanceName:       "instance-a",
		RefreshInterval:    10 * time.Millisecond,
		DisableEnvFallback: true,
	})

	m.StartBackgroundRefresh(context.Background())
	credCalls, _, _ := source.calls()
	require.GreaterOrEqual(t, credCalls, 1, "start performs an initial synchronous refresh")

	assert.Eventually(t, func() bool {
		calls, _, _ := source.calls()
		return calls >= 2
	}, time.Second, 5*time.Millisecond)

	m.Stop()
	stopped, _, _ := source.calls()
	time.Sleep(30 * time.Millisecond)
	after, _, _ := source.calls()
	assert.Equal(t, stopped, after, "no refreshes after Stop")
}

func TestConcurrentTokenSingleRefresh(t *testing.T) {
	source := &fakeSource{}
	m, _ := newTestManager(source, "instance-a")

	var wg sync.WaitGroup
	tokens := make([]string, 16)
	for i := range tokens {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tokens[i] = m.Token(context.Background())
		}(i)
	}
	wg.Wait()

	credCalls, _, _ := source.calls()
	assert.Equal(t, 1, credCalls)
	for _, token := range tokens {
		assert.Equal(t, "cred-token-1", token)
	}
}

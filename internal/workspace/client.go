package workspace

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"go-lakehouse-gateway/internal/config"
	"go-lakehouse-gateway/internal/retry"
)

// Client talks to the workspace REST API: short-lived database credential
// issuance, the statement execution endpoints, warehouse listing, and
// database instance lookup. All calls authenticate with either an OAuth
// client-credentials token source or a static PAT.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	token       string
	tokenSource oauth2.TokenSource
	retryPolicy retry.Policy
	logger      *zap.Logger
}

// apiError is a non-2xx response from the workspace API.
type apiError struct {
	Status int
	Body   string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.Status, e.Body)
}

// transient reports whether a request failure is worth another attempt:
// throttling, server-side errors, and network failures. Everything else
// (auth, bad requests, decode errors) propagates immediately.
func transient(err error) bool {
	var apiErr *apiError
	if errors.As(err, &apiErr) {
		return apiErr.Status == http.StatusTooManyRequests || apiErr.Status >= http.StatusInternalServerError
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}

// NewClient builds a workspace client from config. The host is required;
// when a client id/secret pair is configured the client prefers the OAuth
// client-credentials flow over the static token.
func NewClient(cfg config.WorkspaceConfig, logger *zap.Logger) (*Client, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("workspace host is required")
	}

	c := &Client{
		baseURL:    strings.TrimRight(cfg.Host, "/"),
		httpClient: &http.Client{Timeout: 120 * time.Second},
		token:      cfg.Token,
		retryPolicy: retry.Policy{
			MaxAttempts:  3,
			InitialDelay: 500 * time.Millisecond,
			MaxDelay:     5 * time.Second,
			Multiplier:   2,
			Jitter:       true,
			Retryable:    transient,
		},
		logger: logger,
	}

	if cfg.ClientID != "" && cfg.ClientSecret != "" {
		oauthCfg := &clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     c.baseURL + "/oidc/v1/token",
			Scopes:       []string{"all-apis"},
			AuthStyle:    oauth2.AuthStyleInParams,
		}
		c.tokenSource = oauthCfg.TokenSource(context.Background())
	}

	return c, nil
}

// OAuthToken returns a fresh workspace OAuth access token from the
// client-credentials flow.
func (c *Client) OAuthToken(ctx context.Context) (string, error) {
	if c.tokenSource == nil {
		return "", fmt.Errorf("no OAuth client credentials configured")
	}
	tok, err := c.tokenSource.Token()
	if err != nil {
		return "", fmt.Errorf("oauth token request failed: %w", err)
	}
	return tok.AccessToken, nil
}

// AuthHeaders returns the authorization headers the client would attach to a
// request, for callers that need the raw bearer token.
func (c *Client) AuthHeaders(ctx context.Context) (map[string]string, error) {
	if c.tokenSource != nil {
		tok, err := c.tokenSource.Token()
		if err != nil {
			return nil, err
		}
		return map[string]string{"Authorization": "Bearer " + tok.AccessToken}, nil
	}
	if c.token != "" {
		return map[string]string{"Authorization": "Bearer " + c.token}, nil
	}
	return nil, fmt.Errorf("no workspace credentials configured")
}

// DatabaseCredential is a short-lived token scoped to database instances.
type DatabaseCredential struct {
	Token          string `json:"token"`
	ExpirationTime string `json:"expiration_time"`
}

// GenerateDatabaseCredential requests a short-lived credential for the named
// database instances. The request id makes the call idempotent and traceable.
func (c *Client) GenerateDatabaseCredential(ctx context.Context, requestID string, instanceNames []string) (*DatabaseCredential, error) {
	payload := map[string]interface{}{
		"request_id":     requestID,
		"instance_names": instanceNames,
	}
	var cred DatabaseCredential
	if err := c.doJSON(ctx, http.MethodPost, "/api/2.0/database/credentials", payload, &cred); err != nil {
		return nil, err
	}
	return &cred, nil
}

// DatabaseInstance describes a managed Postgres-compatible instance.
type DatabaseInstance struct {
	Name         string `json:"name"`
	ReadWriteDNS string `json:"read_write_dns"`
	State        string `json:"state"`
}

// GetDatabaseInstance looks up a database instance by name.
func (c *Client) GetDatabaseInstance(ctx context.Context, name string) (*DatabaseInstance, error) {
	var instance DatabaseInstance
	if err := c.doJSON(ctx, http.MethodGet, "/api/2.0/database/instances/"+name, nil, &instance); err != nil {
		return nil, err
	}
	return &instance, nil
}

// Warehouse describes a SQL warehouse.
type Warehouse struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	State string `json:"state"` // RUNNING, STARTING, STOPPING, STOPPED
}

// ListWarehouses lists available SQL warehouses.
func (c *Client) ListWarehouses(ctx context.Context) ([]Warehouse, error) {
	var result struct {
		Warehouses []Warehouse `json:"warehouses"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/2.0/sql/warehouses", nil, &result); err != nil {
		return nil, err
	}
	return result.Warehouses, nil
}

// doJSON issues one API call, retrying transient failures per the client's
// retry policy.
func (c *Client) doJSON(ctx context.Context, method, path string, payload, out interface{}) error {
	var data []byte
	if payload != nil {
		var err error
		data, err = json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
	}

	return c.retryPolicy.Do(ctx, func() error {
		var body io.Reader
		if data != nil {
			body = bytes.NewReader(data)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		if data != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if err := c.setAuthHeader(req); err != nil {
			return err
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
			raw, _ := io.ReadAll(resp.Body)
			return &apiError{Status: resp.StatusCode, Body: string(raw)}
		}

		if out != nil {
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return fmt.Errorf("failed to decode response: %w", err)
			}
		}
		return nil
	})
}

func (c *Client) setAuthHeader(req *http.Request) error {
	if c.tokenSource != nil {
		tok, err := c.tokenSource.Token()
		if err != nil {
			return fmt.Errorf("oauth token request failed: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+tok.AccessToken)
		return nil
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	return nil
}

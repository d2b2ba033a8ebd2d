// Package client resolves an account domain to its homeserver base URL for
// the client-server API.
//
// Resolution fetches /.well-known/matrix/client from the domain and, when a
// delegation is announced, validates the delegated homeserver (and optional
// identity server) before returning it. Failures split into two tiers:
// *PromptError for transient transport trouble reaching the domain, and
// *FailError for delegation content that is structurally broken.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
)

// WellKnown is the discovery document served at /.well-known/matrix/client.
type WellKnown struct {
	// Homeserver announces the homeserver to connect to.
	Homeserver HomeserverInfo `json:"m.homeserver"`
	// IdentityServer optionally announces an identity server.
	IdentityServer *IdentityServerInfo `json:"m.identity_server,omitempty"`
}

// HomeserverInfo carries the base URL for client-server API endpoints.
type HomeserverInfo struct {
	BaseURL string `json:"base_url"`
}

// IdentityServerInfo carries the base URL for identity server API endpoints.
type IdentityServerInfo struct {
	BaseURL string `json:"base_url"`
}

// versions mirrors the /_matrix/client/versions response. It is decoded
// purely to validate that the delegated target speaks the client-server API.
type versions struct {
	Versions         []string        `json:"versions"`
	UnstableFeatures map[string]bool `json:"unstable_features"`
}

// Resolver performs client-server well-known lookups. It holds no per-call
// state and is safe for concurrent use.
type Resolver struct {
	http   *http.Client
	logger *zap.Logger
	scheme string
}

// Option is a functional option for configuring a Resolver.
type Option func(*Resolver)

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(r *Resolver) { r.http = hc }
}

// WithLogger sets the logger. The default is a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Resolver) { r.logger = logger }
}

// WithScheme overrides the URL scheme used for lookups. Production
// resolution always uses https; tests point this at a plain HTTP stub.
func WithScheme(scheme string) Option {
	return func(r *Resolver) { r.scheme = scheme }
}

// New creates a Resolver with a pooled HTTP client and a 10s timeout unless
// overridden.
func New(opts ...Option) *Resolver {
	r := &Resolver{
		http:   &http.Client{Timeout: 10 * time.Second},
		logger: zap.NewNop(),
		scheme: "https",
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the validated homeserver base URL for the account domain
// name.
//
// A 404 on the well-known document means no delegation: the domain itself is
// returned. Transport trouble or an unparseable document is a *PromptError.
// Once a delegation is announced, a malformed base URL or a delegated target
// failing validation is a *FailError.
func (r *Resolver) Resolve(ctx context.Context, name string) (*url.URL, error) {
	base, err := url.Parse(fmt.Sprintf("%s://%s", r.scheme, name))
	if err != nil {
		return nil, &FailError{Err: err}
	}

	resp, err := r.get(ctx, base.JoinPath(".well-known", "matrix", "client"))
	if err != nil {
		return nil, &PromptError{Err: err}
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode == http.StatusNotFound {
		r.logger.Debug("no client well-known, using domain directly", zap.String("name", name))
		return base, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return nil, &PromptError{Err: err}
	}
	var wk WellKnown
	if err := json.Unmarshal(body, &wk); err != nil {
		return nil, &PromptError{Err: fmt.Errorf("decode well-known document: %w", err)}
	}

	homeserver, err := url.Parse(wk.Homeserver.BaseURL)
	if err != nil {
		return nil, &FailError{Err: fmt.Errorf("homeserver base_url: %w", err)}
	}
	if err := r.checkVersions(ctx, homeserver); err != nil {
		return nil, &FailError{Err: err}
	}

	if wk.IdentityServer != nil {
		identity, err := url.Parse(wk.IdentityServer.BaseURL)
		if err != nil {
			return nil, &FailError{Err: fmt.Errorf("identity server base_url: %w", err)}
		}
		if err := r.checkIdentity(ctx, identity); err != nil {
			return nil, &FailError{Err: err}
		}
	}

	r.logger.Debug("homeserver delegation validated",
		zap.String("name", name),
		zap.String("base_url", homeserver.String()),
	)
	return homeserver, nil
}

// checkVersions validates that base speaks the client-server API by fetching
// and decoding its versions endpoint.
func (r *Resolver) checkVersions(ctx context.Context, base *url.URL) error {
	resp, err := r.get(ctx, base.JoinPath("_matrix", "client", "versions"))
	if err != nil {
		return fmt.Errorf("fetch versions: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("versions endpoint returned status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return fmt.Errorf("read versions: %w", err)
	}
	var v versions
	if err := json.Unmarshal(body, &v); err != nil {
		return fmt.Errorf("decode versions: %w", err)
	}
	return nil
}

// checkIdentity validates the announced identity server with a status probe.
func (r *Resolver) checkIdentity(ctx context.Context, base *url.URL) error {
	resp, err := r.get(ctx, base.JoinPath("_matrix", "identity", "api", "v1"))
	if err != nil {
		return fmt.Errorf("probe identity server: %w", err)
	}
	resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return fmt.Errorf("identity server returned status %d", resp.StatusCode)
	}
	return nil
}

func (r *Resolver) get(ctx context.Context, u *url.URL) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	return r.http.Do(req)
}

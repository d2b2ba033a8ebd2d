// Package oracle exposes server and client discovery over a small REST API,
// fronting the resolvers with a TTL result cache, rate limiting, and
// Prometheus metrics. The resolver core stays cache-free; all caching lives
// here.
package oracle

import (
	"context"
	"errors"
	"net/netip"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/famedly/matrix-oracle/pkg/client"
	"github.com/famedly/matrix-oracle/pkg/server"
)

// ServerResolver is the server-discovery capability the service consumes.
type ServerResolver interface {
	Resolve(ctx context.Context, name string) (server.Server, error)
	Addr(ctx context.Context, s server.Server) (netip.AddrPort, error)
}

// ClientResolver is the client-discovery capability the service consumes.
type ClientResolver interface {
	Resolve(ctx context.Context, name string) (*url.URL, error)
}

// Config holds service configuration.
type Config struct {
	CacheTTL time.Duration // 0 disables caching
}

// Service orchestrates both discovery paths for the REST API.
type Service struct {
	servers ServerResolver
	clients ClientResolver
	cache   *resolveCache
	logger  *zap.Logger
}

// NewService creates a Service.
func NewService(servers ServerResolver, clients ClientResolver, cfg Config, logger *zap.Logger) *Service {
	svc := &Service{
		servers: servers,
		clients: clients,
		logger:  logger,
	}
	if cfg.CacheTTL > 0 {
		svc.cache = newResolveCache(cfg.CacheTTL)
	}
	return svc
}

// ResolveServer resolves a server name, serving repeated lookups from the
// cache when one is configured.
func (s *Service) ResolveServer(ctx context.Context, name string) (server.Server, error) {
	key := "server/" + name
	if s.cache != nil {
		if e, ok := s.cache.get(key); ok {
			recordCacheHit("server")
			return e.server, nil
		}
	}

	resolved, err := s.servers.Resolve(ctx, name)
	if err != nil {
		recordResolution("server", "error")
		return server.Server{}, err
	}
	recordResolution("server", "ok")

	if s.cache != nil {
		s.cache.setServer(key, resolved)
	}
	s.logger.Info("server resolved",
		zap.String("name", name),
		zap.String("kind", resolved.Kind.String()),
		zap.String("address", resolved.Address()),
	)
	return resolved, nil
}

// ServerAddr resolves a server name down to a concrete socket address.
// The name resolution is cached; the forward address lookup is not.
func (s *Service) ServerAddr(ctx context.Context, name string) (netip.AddrPort, error) {
	resolved, err := s.ResolveServer(ctx, name)
	if err != nil {
		return netip.AddrPort{}, err
	}
	return s.servers.Addr(ctx, resolved)
}

// ResolveClient resolves an account domain to its homeserver base URL,
// serving repeated lookups from the cache when one is configured.
func (s *Service) ResolveClient(ctx context.Context, domain string) (string, error) {
	key := "client/" + domain
	if s.cache != nil {
		if e, ok := s.cache.get(key); ok {
			recordCacheHit("client")
			return e.baseURL, nil
		}
	}

	base, err := s.clients.Resolve(ctx, domain)
	if err != nil {
		var fail *client.FailError
		if errors.As(err, &fail) {
			recordResolution("client", "fail")
		} else {
			recordResolution("client", "prompt")
		}
		return "", err
	}
	recordResolution("client", "ok")

	baseURL := base.String()
	if s.cache != nil {
		s.cache.setBaseURL(key, baseURL)
	}
	s.logger.Info("client resolved",
		zap.String("domain", domain),
		zap.String("base_url", baseURL),
	)
	return baseURL, nil
}

// CacheStats returns the current cache size (for metrics/health).
func (s *Service) CacheStats() int {
	if s.cache == nil {
		return 0
	}
	return s.cache.len()
}

// StartCacheEviction starts a background goroutine that periodically evicts
// expired cache entries. Cancel ctx to stop it.
func (s *Service) StartCacheEviction(ctx context.Context, interval time.Duration) {
	if s.cache == nil {
		return
	}
	if interval == 0 {
		interval = time.Minute
	}
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				n := s.cache.evict()
				if n > 0 {
					s.logger.Debug("cache eviction", zap.Int("evicted", n))
				}
			}
		}
	}()
}

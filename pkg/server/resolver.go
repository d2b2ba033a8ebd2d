package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/netip"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/famedly/matrix-oracle/pkg/servername"
)

// ErrNoAddresses is returned by Addr when the forward lookup for a resolved
// host yields no address records.
var ErrNoAddresses = errors.New("no address records")

// WellKnown is the delegation document served at /.well-known/matrix/server.
type WellKnown struct {
	// Server is the delegated server name, with optional port.
	Server string `json:"m.server"`
}

// DNS is the lookup capability the resolver consumes. Implementations must
// be safe for concurrent use; internal/dnsx provides the production ones.
type DNS interface {
	LookupSRV(ctx context.Context, service, proto, name string) ([]*net.SRV, error)
	LookupIP(ctx context.Context, host string) ([]net.IP, error)
}

// systemDNS is the default DNS backend, delegating to the system resolver.
type systemDNS struct{}

func (systemDNS) LookupSRV(ctx context.Context, service, proto, name string) ([]*net.SRV, error) {
	_, records, err := net.DefaultResolver.LookupSRV(ctx, service, proto, name)
	return records, err
}

func (systemDNS) LookupIP(ctx context.Context, host string) ([]net.IP, error) {
	return net.DefaultResolver.LookupIP(ctx, "ip", host)
}

// Resolver performs server-name resolution. It holds no per-call state and
// is safe for concurrent use; the pooled HTTP and DNS clients are the only
// shared resources.
type Resolver struct {
	http   *http.Client
	dns    DNS
	logger *zap.Logger
	scheme string
}

// Option is a functional option for configuring a Resolver.
type Option func(*Resolver)

// WithHTTPClient sets a custom http.Client for well-known fetches.
func WithHTTPClient(hc *http.Client) Option {
	return func(r *Resolver) { r.http = hc }
}

// WithDNS sets the DNS backend.
func WithDNS(dns DNS) Option {
	return func(r *Resolver) { r.dns = dns }
}

// WithLogger sets the logger. The default is a no-op logger.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Resolver) { r.logger = logger }
}

// WithScheme overrides the URL scheme used for well-known fetches.
// Production resolution always uses https; tests point this at a plain
// HTTP stub server.
func WithScheme(scheme string) Option {
	return func(r *Resolver) { r.scheme = scheme }
}

// New creates a Resolver using the system DNS configuration and a pooled
// HTTP client with a 10s timeout unless overridden.
func New(opts ...Option) *Resolver {
	r := &Resolver{
		http:   &http.Client{Timeout: 10 * time.Second},
		dns:    systemDNS{},
		logger: zap.NewNop(),
		scheme: "https",
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve runs the server discovery procedure for name:
//
//  1. IP literal with port → socket
//  2. bare IP literal → IP
//  3. hostname with port → host-port
//  4. delegation via /.well-known/matrix/server, the delegated name going
//     through the same literal checks and then an SRV lookup
//  5. SRV lookup on name itself, else the name used directly
//
// The procedure short-circuits at the first match and performs at most one
// HTTP and one DNS round trip. The only error is a connect-level failure on
// the well-known fetch; every other condition degrades to a later step.
func (r *Resolver) Resolve(ctx context.Context, name string) (Server, error) {
	if ap, ok := servername.ParseSocket(name); ok {
		r.logger.Debug("server name is a socket literal", zap.String("name", name))
		return SocketServer(ap), nil
	}
	if ip, ok := servername.ParseIP(name); ok {
		r.logger.Debug("server name is an IP literal", zap.String("name", name))
		return IPServer(ip), nil
	}
	if _, _, ok := servername.SplitHostPort(name); ok {
		r.logger.Debug("server name is a host with port", zap.String("name", name))
		return HostPortServer(name), nil
	}

	wk, err := r.wellKnown(ctx, name)
	if err != nil {
		return Server{}, err
	}
	if wk != nil {
		delegated := wk.Server
		r.logger.Debug("delegation received",
			zap.String("name", name),
			zap.String("delegated", delegated),
		)
		if ap, ok := servername.ParseSocket(delegated); ok {
			return SocketServer(ap), nil
		}
		if ip, ok := servername.ParseIP(delegated); ok {
			return IPServer(ip), nil
		}
		if _, _, ok := servername.SplitHostPort(delegated); ok {
			return HostPortServer(delegated), nil
		}
		if target, ok := r.srvLookup(ctx, delegated); ok {
			return SRVServer(target, delegated), nil
		}
		return HostServer(delegated), nil
	}

	if target, ok := r.srvLookup(ctx, name); ok {
		r.logger.Debug("server name resolved via SRV", zap.String("name", name))
		return SRVServer(target, name), nil
	}
	r.logger.Debug("using server name directly", zap.String("name", name))
	return HostServer(name), nil
}

// Addr resolves a Server to a concrete socket address. Literal variants
// resolve directly; the host variants forward-resolve the host part and
// pair the first returned address with the already-known port.
func (r *Resolver) Addr(ctx context.Context, s Server) (netip.AddrPort, error) {
	var host string
	var port uint16
	switch s.Kind {
	case KindIP:
		return netip.AddrPortFrom(s.IP, DefaultPort), nil
	case KindSocket:
		return s.Socket, nil
	case KindHost:
		host, port = s.Host, DefaultPort
	case KindHostPort:
		h, p, ok := servername.SplitHostPort(s.Host)
		if !ok {
			return netip.AddrPort{}, fmt.Errorf("malformed host-port %q", s.Host)
		}
		host, port = h, p
	case KindSRV:
		h, p, ok := servername.SplitHostPort(s.Target)
		if !ok {
			return netip.AddrPort{}, fmt.Errorf("malformed SRV target %q", s.Target)
		}
		host, port = h, p
	default:
		return netip.AddrPort{}, fmt.Errorf("cannot resolve server of kind %s", s.Kind)
	}

	ips, err := r.dns.LookupIP(ctx, host)
	if err != nil {
		return netip.AddrPort{}, fmt.Errorf("lookup %s: %w", host, err)
	}
	if len(ips) == 0 {
		return netip.AddrPort{}, fmt.Errorf("lookup %s: %w", host, ErrNoAddresses)
	}
	addr, ok := netip.AddrFromSlice(ips[0])
	if !ok {
		return netip.AddrPort{}, fmt.Errorf("lookup %s: invalid address %v", host, ips[0])
	}
	return netip.AddrPortFrom(addr.Unmap(), port), nil
}

// wellKnown fetches the delegation document for name. A connect-level
// failure is fatal and propagates; any other failure — non-2xx status,
// timeout, unreadable or malformed body — means no delegation, and the
// caller falls through to SRV resolution.
func (r *Resolver) wellKnown(ctx context.Context, name string) (*WellKnown, error) {
	url := fmt.Sprintf("%s://%s/.well-known/matrix/server", r.scheme, name)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		r.logger.Debug("well-known request build failed", zap.String("name", name), zap.Error(err))
		return nil, nil
	}

	resp, err := r.http.Do(req)
	if err != nil {
		if isConnectError(err) {
			return nil, fmt.Errorf("well-known fetch for %s: %w", name, err)
		}
		r.logger.Debug("well-known fetch failed", zap.String("name", name), zap.Error(err))
		return nil, nil
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, nil
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return nil, nil
	}
	var wk WellKnown
	if err := json.Unmarshal(body, &wk); err != nil || wk.Server == "" {
		return nil, nil
	}
	return &wk, nil
}

// srvLookup queries the _matrix._tcp SRV record for name and returns the
// "target:port" of the lowest-priority record. Weight is not consulted and
// ties keep the first record seen. Lookup errors and empty answers are a
// normal not-found, never an error.
func (r *Resolver) srvLookup(ctx context.Context, name string) (string, bool) {
	records, err := r.dns.LookupSRV(ctx, "matrix", "tcp", name)
	if err != nil || len(records) == 0 {
		return "", false
	}
	best := records[0]
	for _, rec := range records[1:] {
		if rec.Priority < best.Priority {
			best = rec
		}
	}
	host := strings.TrimSuffix(best.Target, ".")
	return fmt.Sprintf("%s:%d", host, best.Port), true
}

// isConnectError reports whether err is a connect-level failure: no socket
// could be established at all. Timeouts and cancellations are not connect
// failures; they degrade to the no-delegation path.
func isConnectError(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return false
	}
	var op *net.OpError
	return errors.As(err, &op) && op.Op == "dial"
}

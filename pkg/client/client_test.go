package client_test

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/famedly/matrix-oracle/pkg/client"
)

// mappedClient returns an http.Client whose dials are rewritten through
// mapping ("host:port" → "host:port"), so fixed test hostnames land on the
// stub server. Unmapped addresses dial through unchanged.
func mappedClient(mapping map[string]string) *http.Client {
	transport := &http.Transport{
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			if to, ok := mapping[addr]; ok {
				addr = to
			}
			var d net.Dialer
			return d.DialContext(ctx, network, addr)
		},
	}
	return &http.Client{Transport: transport}
}

func stubHost(t *testing.T, srv *httptest.Server) string {
	t.Helper()
	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatalf("parse stub URL: %v", err)
	}
	return u.Host
}

func testResolver(t *testing.T, srv *httptest.Server, hosts ...string) *client.Resolver {
	t.Helper()
	mapping := make(map[string]string, len(hosts))
	for _, h := range hosts {
		mapping[h] = stubHost(t, srv)
	}
	return client.New(
		client.WithScheme("http"),
		client.WithHTTPClient(mappedClient(mapping)),
	)
}

func TestResolveNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		http.NotFound(w, req)
	}))
	defer srv.Close()

	r := testResolver(t, srv, "example.test:80")
	u, err := r.Resolve(context.Background(), "example.test")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if u.String() != "http://example.test" {
		t.Errorf("expected the bare domain back, got %q", u)
	}
}

func TestResolveDelegated(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/matrix/client", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"m.homeserver": {"base_url": "http://destination.test"}}`)) //nolint:errcheck
	})
	mux.HandleFunc("/_matrix/client/versions", func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"versions": ["r0.0.1"]}`)) //nolint:errcheck
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	r := testResolver(t, srv, "example.test:80", "destination.test:80")
	u, err := r.Resolve(context.Background(), "example.test")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if u.String() != "http://destination.test" {
		t.Errorf("expected the delegated base URL, got %q", u)
	}
}

func TestResolveMalformedDocument(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Write([]byte("<html>not json</html>")) //nolint:errcheck
	}))
	defer srv.Close()

	r := testResolver(t, srv, "example.test:80")
	_, err := r.Resolve(context.Background(), "example.test")
	var prompt *client.PromptError
	if !errors.As(err, &prompt) {
		t.Errorf("expected *PromptError, got %v", err)
	}
}

func TestResolveTransportFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	closed := ln.Addr().String()
	ln.Close() //nolint:errcheck

	r := client.New(
		client.WithScheme("http"),
		client.WithHTTPClient(mappedClient(map[string]string{"example.test:80": closed})),
	)
	_, err = r.Resolve(context.Background(), "example.test")
	var prompt *client.PromptError
	if !errors.As(err, &prompt) {
		t.Errorf("expected *PromptError, got %v", err)
	}
}

func TestResolveVersionsUnreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	closed := ln.Addr().String()
	ln.Close() //nolint:errcheck

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"m.homeserver": {"base_url": "http://` + closed + `"}}`)) //nolint:errcheck
	}))
	defer srv.Close()

	r := testResolver(t, srv, "example.test:80")
	_, err = r.Resolve(context.Background(), "example.test")
	var fail *client.FailError
	if !errors.As(err, &fail) {
		t.Errorf("expected *FailError, got %v", err)
	}
}

func TestResolveBadVersionsBody(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/matrix/client", func(w http.ResponseWriter, req *http.Request) {
		w.Write([]byte(`{"m.homeserver": {"base_url": "http://destination.test"}}`)) //nolint:errcheck
	})
	mux.HandleFunc("/_matrix/client/versions", func(w http.ResponseWriter, req *http.Request) {
		w.Write([]byte("not json at all")) //nolint:errcheck
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	r := testResolver(t, srv, "example.test:80", "destination.test:80")
	_, err := r.Resolve(context.Background(), "example.test")
	var fail *client.FailError
	if !errors.As(err, &fail) {
		t.Errorf("expected *FailError, got %v", err)
	}
}

func TestResolveIdentityServerFailure(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/matrix/client", func(w http.ResponseWriter, req *http.Request) {
		w.Write([]byte(`{
			"m.homeserver": {"base_url": "http://destination.test"},
			"m.identity_server": {"base_url": "http://identity.test"}
		}`)) //nolint:errcheck
	})
	mux.HandleFunc("/_matrix/client/versions", func(w http.ResponseWriter, req *http.Request) {
		w.Write([]byte(`{"versions": ["r0.0.1"]}`)) //nolint:errcheck
	})
	mux.HandleFunc("/_matrix/identity/api/v1", func(w http.ResponseWriter, req *http.Request) {
		http.Error(w, "broken", http.StatusInternalServerError)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	r := testResolver(t, srv, "example.test:80", "destination.test:80", "identity.test:80")
	_, err := r.Resolve(context.Background(), "example.test")
	var fail *client.FailError
	if !errors.As(err, &fail) {
		t.Errorf("expected *FailError, got %v", err)
	}
}

func TestResolveIdentityServerOK(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/.well-known/matrix/client", func(w http.ResponseWriter, req *http.Request) {
		w.Write([]byte(`{
			"m.homeserver": {"base_url": "http://destination.test"},
			"m.identity_server": {"base_url": "http://identity.test"}
		}`)) //nolint:errcheck
	})
	mux.HandleFunc("/_matrix/client/versions", func(w http.ResponseWriter, req *http.Request) {
		w.Write([]byte(`{"versions": ["r0.0.1"], "unstable_features": {"m.lazy_load_members": true}}`)) //nolint:errcheck
	})
	mux.HandleFunc("/_matrix/identity/api/v1", func(w http.ResponseWriter, req *http.Request) {
		w.Write([]byte(`{}`)) //nolint:errcheck
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	r := testResolver(t, srv, "example.test:80", "destination.test:80", "identity.test:80")
	u, err := r.Resolve(context.Background(), "example.test")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if u.String() != "http://destination.test" {
		t.Errorf("expected the delegated base URL, got %q", u)
	}
}

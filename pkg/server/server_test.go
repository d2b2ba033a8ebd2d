package server_test

import (
	"net/netip"
	"testing"

	"github.com/famedly/matrix-oracle/pkg/server"
)

func TestHostHeader(t *testing.T) {
	cases := []struct {
		in   server.Server
		want string
	}{
		{server.IPServer(netip.MustParseAddr("1.2.3.4")), "1.2.3.4"},
		{server.SocketServer(netip.MustParseAddrPort("1.2.3.4:9999")), "1.2.3.4:9999"},
		{server.HostServer("example.com"), "example.com"},
		{server.HostPortServer("example.com:1234"), "example.com:1234"},
		// The SRV variant presents the delegating name, not the record target.
		{server.SRVServer("backend.example:8449", "example.com"), "example.com"},
	}
	for _, c := range cases {
		if got := c.in.HostHeader(); got != c.want {
			t.Errorf("HostHeader(%+v) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestAddress(t *testing.T) {
	cases := []struct {
		in   server.Server
		want string
	}{
		{server.IPServer(netip.MustParseAddr("1.2.3.4")), "1.2.3.4:8448"},
		{server.IPServer(netip.MustParseAddr("::1")), "[::1]:8448"},
		{server.SocketServer(netip.MustParseAddrPort("[2001:db8::1]:9999")), "[2001:db8::1]:9999"},
		{server.HostServer("example.com"), "example.com:8448"},
		{server.HostPortServer("example.com:1234"), "example.com:1234"},
		{server.SRVServer("backend.example:8449", "example.com"), "backend.example:8449"},
	}
	for _, c := range cases {
		if got := c.in.Address(); got != c.want {
			t.Errorf("Address(%+v) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestKindString(t *testing.T) {
	kinds := map[server.Kind]string{
		server.KindIP:       "ip",
		server.KindSocket:   "socket",
		server.KindHost:     "host",
		server.KindHostPort: "host-port",
		server.KindSRV:      "srv",
	}
	for k, want := range kinds {
		if got := k.String(); got != want {
			t.Errorf("Kind(%d).String() = %q, want %q", k, got, want)
		}
	}
}

// Package server resolves Matrix server names for the server-server API.
//
// Resolution follows the federation discovery order: literal IP forms first,
// then the /.well-known/matrix/server delegation document, then the
// _matrix._tcp SRV record, falling back to the name itself. The outcome is a
// Server value that knows both the address to connect to and the identity to
// present in the Host header.
package server

import (
	"fmt"
	"net"
	"net/netip"
)

// DefaultPort is the implicit federation port used when a resolved server
// carries no explicit port.
const DefaultPort = 8448

// Kind discriminates the possible forms of a resolved server.
type Kind uint8

const (
	// KindIP is a bare IP literal with the implicit default port.
	KindIP Kind = iota + 1
	// KindSocket is an IP literal with an explicit port.
	KindSocket
	// KindHost is a hostname with the implicit default port.
	KindHost
	// KindHostPort is a hostname with an explicit port.
	KindHostPort
	// KindSRV is a target taken from an SRV record, keeping the delegating
	// name as the Host-header identity.
	KindSRV
)

// String returns the lower-case name of the kind.
func (k Kind) String() string {
	switch k {
	case KindIP:
		return "ip"
	case KindSocket:
		return "socket"
	case KindHost:
		return "host"
	case KindHostPort:
		return "host-port"
	case KindSRV:
		return "srv"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Server is the terminal result of resolving a server name. Exactly the
// fields implied by Kind are populated; values are immutable once returned
// and comparable with ==.
type Server struct {
	// Kind selects which of the remaining fields are meaningful.
	Kind Kind
	// IP is set for KindIP.
	IP netip.Addr
	// Socket is set for KindSocket.
	Socket netip.AddrPort
	// Host is the hostname for KindHost, the "host:port" string for
	// KindHostPort, and the delegating server name for KindSRV.
	Host string
	// Target is the "host:port" taken from the SRV record, KindSRV only.
	Target string
}

// IPServer wraps a bare IP literal.
func IPServer(addr netip.Addr) Server { return Server{Kind: KindIP, IP: addr} }

// SocketServer wraps an IP literal with an explicit port.
func SocketServer(ap netip.AddrPort) Server { return Server{Kind: KindSocket, Socket: ap} }

// HostServer wraps a hostname with the implicit default port.
func HostServer(host string) Server { return Server{Kind: KindHost, Host: host} }

// HostPortServer wraps a "host:port" string.
func HostPortServer(hostport string) Server { return Server{Kind: KindHostPort, Host: hostport} }

// SRVServer wraps an SRV record target together with the delegating name
// whose identity the connection must present.
func SRVServer(target, host string) Server {
	return Server{Kind: KindSRV, Host: host, Target: target}
}

// HostHeader returns the value to use for the HTTP Host header.
func (s Server) HostHeader() string {
	switch s.Kind {
	case KindIP:
		return s.IP.String()
	case KindSocket:
		return s.Socket.String()
	default:
		return s.Host
	}
}

// Address returns the "host:port" address to connect to. IPv6 addresses are
// bracketed so the result is always unambiguous.
func (s Server) Address() string {
	switch s.Kind {
	case KindIP:
		return netip.AddrPortFrom(s.IP, DefaultPort).String()
	case KindSocket:
		return s.Socket.String()
	case KindHost:
		return net.JoinHostPort(s.Host, fmt.Sprint(DefaultPort))
	case KindSRV:
		return s.Target
	default: // KindHostPort carries its port in Host.
		return s.Host
	}
}

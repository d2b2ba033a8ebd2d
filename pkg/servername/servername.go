// Package servername classifies the literal forms a Matrix server name
// can take before any network discovery is attempted.
//
// A server name is an opaque string that may be:
//
//	1.2.3.4            bare IP literal
//	1.2.3.4:8448       IP literal with explicit port
//	[::1]:8448         bracketed IPv6 literal with explicit port
//	example.com        hostname
//	example.com:8448   hostname with explicit port
//
// All functions are pure and never return an error: a name that matches no
// literal form simply reports no match, and the caller falls through to the
// next discovery step.
package servername

import (
	"net/netip"
	"strconv"
	"strings"
)

// ParseSocket reports whether name is an IP literal with an explicit port,
// such as "1.2.3.4:8448" or "[::1]:8448".
func ParseSocket(name string) (netip.AddrPort, bool) {
	ap, err := netip.ParseAddrPort(name)
	if err != nil {
		return netip.AddrPort{}, false
	}
	return ap, true
}

// ParseIP reports whether name is a bare IP literal, v4 or v6.
func ParseIP(name string) (netip.Addr, bool) {
	addr, err := netip.ParseAddr(name)
	if err != nil {
		return netip.Addr{}, false
	}
	return addr, true
}

// SplitHostPort reports whether name is a hostname followed by exactly one
// colon and an unsigned 16-bit port, returning the two halves.
//
// Bare IPv6 literals contain more than one colon and never match; they must
// be handled by ParseIP before this rule is consulted.
func SplitHostPort(name string) (host string, port uint16, ok bool) {
	i := strings.IndexByte(name, ':')
	if i < 0 || strings.IndexByte(name[i+1:], ':') >= 0 {
		return "", 0, false
	}
	host = name[:i]
	if host == "" {
		return "", 0, false
	}
	p, err := strconv.ParseUint(name[i+1:], 10, 16)
	if err != nil {
		return "", 0, false
	}
	return host, uint16(p), true
}

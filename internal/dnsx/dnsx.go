// Package dnsx provides the DNS backends consumed by the server resolver.
//
// The zero value delegates every lookup to the system resolver. Setting
// NameServer pins all queries to that upstream, speaking raw DNS via
// miekg/dns — useful when discovery must bypass the host's stub resolver.
package dnsx

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/miekg/dns"
)

const defaultTimeout = 5 * time.Second

// Resolver implements server.DNS. Safe for concurrent use.
type Resolver struct {
	// NameServer is the upstream to query, "host" or "host:port" (port 53
	// implied). Empty means the system resolver configuration.
	NameServer string
	// Timeout bounds each raw DNS exchange. Zero means 5 seconds.
	Timeout time.Duration

	std net.Resolver
}

// LookupSRV queries the _service._proto.name SRV record set.
func (r *Resolver) LookupSRV(ctx context.Context, service, proto, name string) ([]*net.SRV, error) {
	if r.NameServer == "" {
		_, records, err := r.std.LookupSRV(ctx, service, proto, name)
		return records, err
	}

	q := fmt.Sprintf("_%s._%s.%s", service, proto, name)
	resp, err := r.exchange(ctx, q, dns.TypeSRV)
	if err != nil {
		return nil, err
	}
	return srvRecords(resp.Answer), nil
}

// LookupIP queries A and AAAA records for host.
func (r *Resolver) LookupIP(ctx context.Context, host string) ([]net.IP, error) {
	if r.NameServer == "" {
		return r.std.LookupIP(ctx, "ip", host)
	}

	v4, err4 := r.exchange(ctx, host, dns.TypeA)
	v6, err6 := r.exchange(ctx, host, dns.TypeAAAA)

	var ips []net.IP
	if err4 == nil {
		ips = append(ips, ipRecords(v4.Answer)...)
	}
	if err6 == nil {
		ips = append(ips, ipRecords(v6.Answer)...)
	}
	if len(ips) == 0 {
		if err4 != nil {
			return nil, err4
		}
		if err6 != nil {
			return nil, err6
		}
	}
	return ips, nil
}

// exchange sends a single question to the configured upstream.
func (r *Resolver) exchange(ctx context.Context, name string, qtype uint16) (*dns.Msg, error) {
	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(name), qtype)
	m.RecursionDesired = true

	timeout := r.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}
	c := &dns.Client{Timeout: timeout}
	resp, _, err := c.ExchangeContext(ctx, m, r.upstreamAddr())
	if err != nil {
		return nil, err
	}
	if resp.Rcode != dns.RcodeSuccess {
		return nil, &net.DNSError{
			Err:        dns.RcodeToString[resp.Rcode],
			Name:       name,
			Server:     r.upstreamAddr(),
			IsNotFound: resp.Rcode == dns.RcodeNameError,
		}
	}
	return resp, nil
}

// upstreamAddr normalizes NameServer to "host:port".
func (r *Resolver) upstreamAddr() string {
	if _, _, err := net.SplitHostPort(r.NameServer); err != nil {
		return net.JoinHostPort(r.NameServer, "53")
	}
	return r.NameServer
}

// srvRecords converts SRV answers to the net.SRV shape the resolver consumes.
func srvRecords(answers []dns.RR) []*net.SRV {
	records := make([]*net.SRV, 0, len(answers))
	for _, ans := range answers {
		if rr, ok := ans.(*dns.SRV); ok {
			records = append(records, &net.SRV{
				Target:   rr.Target,
				Port:     rr.Port,
				Priority: rr.Priority,
				Weight:   rr.Weight,
			})
		}
	}
	return records
}

// ipRecords extracts addresses from A and AAAA answers.
func ipRecords(answers []dns.RR) []net.IP {
	ips := make([]net.IP, 0, len(answers))
	for _, ans := range answers {
		switch rr := ans.(type) {
		case *dns.A:
			ips = append(ips, rr.A)
		case *dns.AAAA:
			ips = append(ips, rr.AAAA)
		}
	}
	return ips
}

package probe

import (
	"context"
	"errors"
	"net"
	"net/url"
	"strings"
	"time"
)

// DNS classes reported by CheckDNS.
const (
	DNSResolves      = "RESOLVES"
	DNSNXDomain      = "NXDOMAIN"
	DNSNoARecord     = "NO_A_RECORD"
	DNSServFailOrTTL = "SERVFAIL_or_TIMEOUT"
	DNSInvalidName   = "INVALID_NAME"
)

type DNSStatus struct {
	Domain        string   `json:"domain"`
	HasAOrAAAA    bool     `json:"hasAOrAAAA"`
	IPs           []string `json:"ips,omitempty"`
	CNAME         string   `json:"cname,omitempty"`
	HasNS         bool     `json:"hasNS"`
	Nameservers   []string `json:"nameservers,omitempty"`
	Class         string   `json:"class"`
	ResolverError string   `json:"resolverError,omitempty"`
}

// Resolver is the subset of *net.Resolver used for diagnostics.
type Resolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
	LookupCNAME(ctx context.Context, host string) (string, error)
	LookupNS(ctx context.Context, name string) ([]*net.NS, error)
}

type DNSDiagnoser struct {
	Resolver Resolver
	Timeout  time.Duration
}

func NewDNSDiagnoser() *DNSDiagnoser {
	return &DNSDiagnoser{Resolver: net.DefaultResolver, Timeout: 3 * time.Second}
}

// DiagnoseURL classifies DNS resolution for the host of rawURL.
func (d *DNSDiagnoser) DiagnoseURL(ctx context.Context, rawURL string) DNSStatus {
	return d.CheckDNS(ctx, HostOf(rawURL))
}

func (d *DNSDiagnoser) CheckDNS(ctx context.Context, domain string) DNSStatus {
	s := DNSStatus{Domain: strings.TrimSpace(domain)}
	if s.Domain == "" || strings.Contains(s.Domain, "://") {
		s.Class = DNSInvalidName
		return s
	}
	if ip := net.ParseIP(s.Domain); ip != nil {
		s.HasAOrAAAA = true
		s.IPs = []string{ip.String()}
		s.Class = DNSResolves
		return s
	}

	if d.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.Timeout)
		defer cancel()
	}

	addrs, err := d.Resolver.LookupIPAddr(ctx, s.Domain)
	if err == nil && len(addrs) > 0 {
		s.HasAOrAAAA = true
		for _, a := range addrs {
			s.IPs = append(s.IPs, a.IP.String())
		}
		s.Class = DNSResolves
	} else if err != nil {
		var de *net.DNSError
		s.ResolverError = err.Error()
		if errors.As(err, &de) {
			if de.IsNotFound {
				s.Class = DNSNXDomain
			} else if de.IsTemporary || de.Timeout() {
				s.Class = DNSServFailOrTTL
			}
		}
	}

	if cname, err := d.Resolver.LookupCNAME(ctx, s.Domain); err == nil && !strings.EqualFold(cname, s.Domain+".") {
		s.CNAME = strings.TrimSuffix(cname, ".")
	}

	if ns, err := d.Resolver.LookupNS(ctx, s.Domain); err == nil && len(ns) > 0 {
		s.HasNS = true
		for _, n := range ns {
			s.Nameservers = append(s.Nameservers, strings.TrimSuffix(n.Host, "."))
		}
		if s.Class == DNSNXDomain {
			s.Class = DNSNoARecord
		}
	}

	if s.Class == "" {
		switch {
		case s.HasAOrAAAA:
			s.Class = DNSResolves
		case s.HasNS:
			s.Class = DNSNoARecord
		case s.ResolverError != "":
			s.Class = DNSServFailOrTTL
		default:
			s.Class = DNSNXDomain
		}
	}
	return s
}

// HostOf pulls the hostname from a URL string.
func HostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return raw
	}
	return u.Hostname()
}

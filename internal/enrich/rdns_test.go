package enrich

import (
	"net"
	"testing"
)

func TestPtrNameIPv4(t *testing.T) {
	got := ptrName(net.ParseIP("8.8.8.8"))
	want := "8.8.8.8.in-addr.arpa"
	if got != want {
		t.Errorf("ptrName() = %q, want %q", got, want)
	}
}

func TestPtrNameAllOctets(t *testing.T) {
	got := ptrName(net.ParseIP("192.168.1.100"))
	want := "100.1.168.192.in-addr.arpa"
	if got != want {
		t.Errorf("ptrName() = %q, want %q", got, want)
	}
}

func TestPtrNameIPv6(t *testing.T) {
	got := ptrName(net.ParseIP("2001:db8::1"))
	want := "1.0.0.0.0.0.0.0.0.0.0.0.0.0.0.0.0.0.0.0.0.0.0.0.8.b.d.0.1.0.0.2.ip6.arpa"
	if got != want {
		t.Errorf("ptrName(v6) = %q, want %q", got, want)
	}
}

func TestDomainFromHostnamePassesThroughIP(t *testing.T) {
	got := domainFromHostname("8.8.8.8", "8.8.8.8")
	if got != "8.8.8.8" {
		t.Errorf("domainFromHostname() = %q, want the IP unchanged", got)
	}
}

func TestDomainFromHostnameTakesLastTwoLabels(t *testing.T) {
	got := domainFromHostname("8.8.8.8", "dns.google")
	if got != "dns.google" {
		t.Errorf("domainFromHostname() = %q, want dns.google", got)
	}

	got = domainFromHostname("1.2.3.4", "host.sub.example.com")
	if got != "example.com" {
		t.Errorf("domainFromHostname() = %q, want example.com", got)
	}
}

func TestDomainFromHostnameSingleLabel(t *testing.T) {
	got := domainFromHostname("1.2.3.4", "localhost")
	if got != "localhost" {
		t.Errorf("domainFromHostname() = %q, want localhost unchanged", got)
	}
}

func TestNewHostnameLookupHasResolver(t *testing.T) {
	l := NewHostnameLookup()
	if l == nil || l.resolver == nil {
		t.Fatal("expected a HostnameLookup with a resolver")
	}
}

func TestParseWhoisDomainExtractsDomainNameField(t *testing.T) {
	body := "NetRange: 8.8.8.0 - 8.8.8.255\nDomain Name: GOOGLE.COM\nOrgName: Google LLC\n"
	got := parseWhoisDomain(body)
	if got != "google.com" {
		t.Errorf("parseWhoisDomain() = %q, want google.com", got)
	}
}

func TestParseWhoisDomainMatchesLowercasePrefix(t *testing.T) {
	body := "domain: example.nl\nstatus: active\n"
	got := parseWhoisDomain(body)
	if got != "example.nl" {
		t.Errorf("parseWhoisDomain() = %q, want example.nl", got)
	}
}

func TestParseWhoisDomainReturnsEmptyWhenAbsent(t *testing.T) {
	body := "NetRange: 10.0.0.0 - 10.255.255.255\nOrgName: Private Use\n"
	if got := parseWhoisDomain(body); got != "" {
		t.Errorf("parseWhoisDomain() = %q, want empty", got)
	}
}

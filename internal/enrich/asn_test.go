package enrich

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestCymruQueryIPv4(t *testing.T) {
	got := cymruQuery(net.ParseIP("8.8.8.8"))
	want := "8.8.8.8.origin.asn.cymru.com"
	if got != want {
		t.Errorf("cymruQuery() = %q, want %q", got, want)
	}
}

func TestCymruQueryIPv6NibbleReversed(t *testing.T) {
	got := cymruQuery(net.ParseIP("2001:4860:4860::8888"))
	want := "8.8.8.8.0.0.0.0.0.0.0.0.0.0.0.0.0.0.0.0.0.6.8.4.0.6.8.4.1.0.0.2.origin6.asn.cymru.com"
	if got != want {
		t.Errorf("cymruQuery(v6) = %q, want %q", got, want)
	}
}

func TestParseCymruOrigin(t *testing.T) {
	result, err := parseCymruOrigin("15169 | 8.8.8.0/24 | US | arin | 2014-03-14")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.ASN != "AS15169" {
		t.Errorf("ASN = %q, want AS15169", result.ASN)
	}
	if result.CIDR != "8.8.8.0/24" {
		t.Errorf("CIDR = %q, want 8.8.8.0/24", result.CIDR)
	}
	if result.Country != "US" {
		t.Errorf("Country = %q, want US", result.Country)
	}
}

func TestParseCymruOriginMultipleOriginASNs(t *testing.T) {
	result, err := parseCymruOrigin("13335 15169 | 1.1.1.0/24 | US | arin | 2010-07-14")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.ASN != "AS13335" {
		t.Errorf("ASN = %q, want AS13335 (first of the set)", result.ASN)
	}
}

func TestParseCymruOriginRejectsMalformed(t *testing.T) {
	if _, err := parseCymruOrigin("not a cymru response"); err == nil {
		t.Error("expected error for malformed response")
	}
	if _, err := parseCymruOrigin(""); err == nil {
		t.Error("expected error for empty response")
	}
}

func TestRDAPResponseDecodesHandleAndCIDR(t *testing.T) {
	body := `{
		"handle": "AS3215",
		"name": "France Telecom",
		"country": "FR",
		"cidr0_cidrs": [{"v4prefix": "80.10.248.0", "length": 21}]
	}`

	var parsed rdapIPResponse
	if err := json.Unmarshal([]byte(body), &parsed); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if parsed.Handle != "AS3215" {
		t.Errorf("Handle = %q, want AS3215", parsed.Handle)
	}
	if len(parsed.Cidr0) != 1 || parsed.Cidr0[0].V4Prefix != "80.10.248.0" {
		t.Errorf("unexpected cidr0_cidrs: %+v", parsed.Cidr0)
	}
}

func TestRegistryHTTPClientSeesRateLimitStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	l := NewRegistryLookup()
	l.httpClient = server.Client()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server.URL, nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := l.httpClient.Do(req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Errorf("expected 429, got %d", resp.StatusCode)
	}
}

func TestNibbleReverseMatchesPTRConvention(t *testing.T) {
	ip := net.ParseIP("2001:db8::1").To16()
	got := nibbleReverse(ip)
	want := "1.0.0.0.0.0.0.0.0.0.0.0.0.0.0.0.0.0.0.0.0.0.0.0.8.b.d.0.1.0.0.2"
	if got != want {
		t.Errorf("nibbleReverse() = %q, want %q", got, want)
	}
}

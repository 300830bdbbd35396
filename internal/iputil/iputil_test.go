package iputil

import "testing"

func TestValidIP(t *testing.T) {
	cases := []struct {
		addr   string
		family Family
		want   bool
	}{
		{"8.8.8.8", FamilyAny, true},
		{"8.8.8.8", FamilyV4, true},
		{"8.8.8.8", FamilyV6, false},
		{"2001:4860:4860::8888", FamilyV6, true},
		{"2001:4860:4860::8888", FamilyV4, false},
		{"not-an-ip", FamilyAny, false},
	}
	for _, c := range cases {
		if got := ValidIP(c.addr, c.family); got != c.want {
			t.Errorf("ValidIP(%q, %v) = %v, want %v", c.addr, c.family, got, c.want)
		}
	}
}

func TestExcluded(t *testing.T) {
	cases := []struct {
		addr string
		want bool
	}{
		{"127.0.0.1", true},
		{"::1", true},
		{"fe80::1", true},
		{"::ffff:192.168.1.1", true},
		{"8.8.8.8", false},
	}
	for _, c := range cases {
		if got := Excluded(c.addr); got != c.want {
			t.Errorf("Excluded(%q) = %v, want %v", c.addr, got, c.want)
		}
	}
}

func TestIsPrivate(t *testing.T) {
	if !IsPrivate("10.0.0.1") {
		t.Error("expected 10.0.0.1 to be private")
	}
	if !IsPrivate("fd12:3456:789a::1") {
		t.Error("expected ULA address to be private")
	}
	if IsPrivate("8.8.8.8") {
		t.Error("expected 8.8.8.8 to not be private")
	}
}

func TestLocalEgressIP(t *testing.T) {
	ip, err := LocalEgressIP()
	if err != nil {
		t.Fatalf("LocalEgressIP() error: %v", err)
	}
	if ip == "" {
		t.Fatal("expected a non-empty egress IP")
	}
}

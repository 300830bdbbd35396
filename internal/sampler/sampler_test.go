package sampler

import (
	"context"
	"testing"

	"github.com/sidn/pathtraced/pkg/hop"
)

func TestFilterSnapshotExcludesReservedAddresses(t *testing.T) {
	raw := hop.DestinationSnapshot{
		"127.0.0.1":           hop.NewPortSet("443"),
		"::1":                 hop.NewPortSet("443"),
		"fe80::1":              hop.NewPortSet("443"),
		"::ffff:192.168.1.1":  hop.NewPortSet("443"),
		"8.8.8.8":             hop.NewPortSet("443"),
	}

	got, err := filterSnapshot(raw, false)
	if err != nil {
		t.Fatalf("filterSnapshot() error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 surviving destination, got %d: %v", len(got), got)
	}
	if _, ok := got["8.8.8.8"]; !ok {
		t.Fatalf("expected 8.8.8.8 to survive filtering, got %v", got)
	}
}

func TestFilterSnapshotRejectsNonIPKey(t *testing.T) {
	raw := hop.DestinationSnapshot{"not-an-ip": hop.NewPortSet("443")}
	if _, err := filterSnapshot(raw, false); err == nil {
		t.Fatal("expected an error for a non-IP key")
	}
}

func TestFilterSnapshotRestrictsToIPv4WhenRequested(t *testing.T) {
	raw := hop.DestinationSnapshot{
		"8.8.8.8":                 hop.NewPortSet("443"),
		"2001:4860:4860::8888":    hop.NewPortSet("443"),
	}

	got, err := filterSnapshot(raw, true)
	if err != nil {
		t.Fatalf("filterSnapshot() error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 surviving destination under ipv4Only, got %d: %v", len(got), got)
	}
	if _, ok := got["8.8.8.8"]; !ok {
		t.Fatalf("expected 8.8.8.8 to survive ipv4Only filtering, got %v", got)
	}

	allFamilies, err := filterSnapshot(raw, false)
	if err != nil {
		t.Fatalf("filterSnapshot() error: %v", err)
	}
	if len(allFamilies) != 2 {
		t.Fatalf("expected both destinations without ipv4Only, got %d: %v", len(allFamilies), allFamilies)
	}
}

func TestSplitRemoteColumn(t *testing.T) {
	ip, port, ok := splitRemoteColumn("93.184.216.34:443", ':')
	if !ok || ip != "93.184.216.34" || port != "443" {
		t.Fatalf("splitRemoteColumn() = %q, %q, %v", ip, port, ok)
	}

	ip, port, ok = splitRemoteColumn("fe80::1%en0.443", '.')
	if !ok || ip != "fe80::1" || port != "443" {
		t.Fatalf("splitRemoteColumn() scoped = %q, %q, %v", ip, port, ok)
	}
}

func TestMockSourceRotates(t *testing.T) {
	a := hop.DestinationSnapshot{"8.8.8.8": hop.NewPortSet("443")}
	b := hop.DestinationSnapshot{"1.1.1.1": hop.NewPortSet("443")}
	m := NewMockSource(a, b)

	ctx := context.Background()
	first, _ := m.Sample(ctx)
	second, _ := m.Sample(ctx)
	third, _ := m.Sample(ctx)

	if _, ok := first["8.8.8.8"]; !ok {
		t.Fatalf("expected first sample to be snapshot a, got %v", first)
	}
	if _, ok := second["1.1.1.1"]; !ok {
		t.Fatalf("expected second sample to be snapshot b, got %v", second)
	}
	if _, ok := third["8.8.8.8"]; !ok {
		t.Fatalf("expected third sample to wrap back to snapshot a, got %v", third)
	}
}

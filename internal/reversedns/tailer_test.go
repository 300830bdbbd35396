package reversedns

import "testing"

func TestProcessLineChainsCNAMEsByQueryID(t *testing.T) {
	store := NewStore()
	open := make(map[int]*openQuery)

	processLine("Jun 10 12:00:00 dnsmasq[1]: 1024 192.168.1.5/54321 query[A] example.com from 192.168.1.5", open, store)
	processLine("Jun 10 12:00:00 dnsmasq[1]: 1024 192.168.1.5/54321 reply example.com is <CNAME>", open, store)
	processLine("Jun 10 12:00:00 dnsmasq[1]: 1024 192.168.1.5/54321 reply cname.example.net is 93.184.216.34", open, store)

	got := store.Lookup("93.184.216.34")
	want := []string{"example.com", "cname.example.net"}
	if len(got) != len(want) {
		t.Fatalf("Lookup() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Lookup() = %v, want %v", got, want)
		}
	}
}

func TestProcessLineDoesNotCrossContaminateInterleavedQueryIDs(t *testing.T) {
	store := NewStore()
	open := make(map[int]*openQuery)

	// Two distinct query ids, each passing through a CNAME hop, with
	// their lines interleaved the way concurrent lookups land in a real
	// log.
	processLine("Jun 10 12:00:00 dnsmasq[1]: 10 10.0.0.1/1 reply a.example.com is <CNAME>", open, store)
	processLine("Jun 10 12:00:00 dnsmasq[1]: 20 10.0.0.2/2 reply b.example.org is <CNAME>", open, store)
	processLine("Jun 10 12:00:00 dnsmasq[1]: 10 10.0.0.1/1 reply edge-a.example.net is 1.1.1.1", open, store)
	processLine("Jun 10 12:00:00 dnsmasq[1]: 20 10.0.0.2/2 reply edge-b.example.net is 2.2.2.2", open, store)

	gotA := store.Lookup("1.1.1.1")
	wantA := []string{"a.example.com", "edge-a.example.net"}
	if len(gotA) != len(wantA) || gotA[0] != wantA[0] || gotA[1] != wantA[1] {
		t.Fatalf("Lookup(1.1.1.1) = %v, want %v", gotA, wantA)
	}

	gotB := store.Lookup("2.2.2.2")
	wantB := []string{"b.example.org", "edge-b.example.net"}
	if len(gotB) != len(wantB) || gotB[0] != wantB[0] || gotB[1] != wantB[1] {
		t.Fatalf("Lookup(2.2.2.2) = %v, want %v", gotB, wantB)
	}
}

func TestProcessLineSkipsNXDOMAINWithoutRecording(t *testing.T) {
	store := NewStore()
	open := make(map[int]*openQuery)

	processLine("Jun 10 12:00:00 dnsmasq[1]: 30 10.0.0.3/3 reply nosuchhost.example is NXDOMAIN", open, store)

	if q, ok := open[30]; !ok || q.seenAt.IsZero() {
		t.Fatal("expected query id 30 to remain open after an NXDOMAIN reply")
	}
}

func TestProcessLineIgnoresShortOrMalformedLines(t *testing.T) {
	store := NewStore()
	open := make(map[int]*openQuery)

	processLine("not a dnsmasq line at all", open, store)
	processLine("Jun 10 12:00:00 dnsmasq[1]: notanint 10.0.0.1/1 reply a.example.com is 1.2.3.4", open, store)

	if len(open) != 0 {
		t.Fatalf("expected no open queries from malformed lines, got %v", open)
	}
	if got := store.Lookup("1.2.3.4"); got != nil {
		t.Fatalf("expected nothing recorded from malformed lines, got %v", got)
	}
}

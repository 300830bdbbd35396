package sampler

import (
	"context"
	"sync/atomic"

	"github.com/sidn/pathtraced/pkg/hop"
)

// MockSource cycles through a fixed list of snapshots, advancing one
// step every call to Sample. Grounded on the Python original's
// mock_active_remote_hosts rotation, used only as a test collaborator
// (spec.md §1) behind -M/--mock.
type MockSource struct {
	snapshots []hop.DestinationSnapshot
	idx       int64
}

// NewMockSource builds a MockSource over the given snapshots. If none
// are given, a single-destination default rotation is used.
func NewMockSource(snapshots ...hop.DestinationSnapshot) *MockSource {
	if len(snapshots) == 0 {
		snapshots = []hop.DestinationSnapshot{
			{"8.8.8.8": hop.NewPortSet("443")},
			{"8.8.8.8": hop.NewPortSet("443"), "1.1.1.1": hop.NewPortSet("443")},
			{"1.1.1.1": hop.NewPortSet("443")},
		}
	}
	return &MockSource{snapshots: snapshots}
}

// Sample returns the next snapshot in rotation.
func (m *MockSource) Sample(ctx context.Context) (hop.DestinationSnapshot, error) {
	n := atomic.AddInt64(&m.idx, 1) - 1
	return m.snapshots[int(n)%len(m.snapshots)], nil
}

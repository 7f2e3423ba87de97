package registry

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/patchwire/intercept/pkg/models"
)

// RecordedRequest is one entry in the Registry's bounded dispatch history
// (SPEC_FULL.md §4 "Recorded-request introspection", grounded on basecamp-sdk's
// Requests []*http.Request — generalized here into a bounded ring rather
// than an unbounded slice, since this core has no test-lifecycle reset
// hook to clear it).
type RecordedRequest struct {
	Request  *models.Request
	Matched  bool
	RecipeID uuid.UUID
	At       time.Time
}

// ring is a fixed-capacity circular history, guarded by its own mutex so
// recording a dispatch never contends with the Registry's lookup lock.
type ring struct {
	mu       sync.Mutex
	capacity int
	entries  []RecordedRequest
}

func newRing(capacity int) *ring {
	if capacity <= 0 {
		capacity = 1
	}
	return &ring{capacity: capacity}
}

func (r *ring) record(e RecordedRequest) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
	if len(r.entries) > r.capacity {
		r.entries = r.entries[len(r.entries)-r.capacity:]
	}
}

func (r *ring) snapshot() []RecordedRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]RecordedRequest, len(r.entries))
	copy(out, r.entries)
	return out
}

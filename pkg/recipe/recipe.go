// Package recipe implements the Recipe value type and its fluent Builder
// (spec.md §4.2, §4.3): the immutable-at-registration snapshot of what to
// match and how to respond, and the mutable assembler that produces it.
package recipe

import (
	"context"
	"io"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/patchwire/intercept/internal/canon"
	"github.com/patchwire/intercept/pkg/contracts"
	"github.com/patchwire/intercept/pkg/models"
)

// ContentKind tags which producer shape a Recipe carries (spec.md §3
// "Content producer"): static bytes, a byte-thunk (which also serves as
// the async byte-thunk, since it receives a context and may block), or a
// stream-thunk. All of them reduce to the same contracts.ContentProducer
// signature once built; the kind is stored on the Recipe and is not read
// by dispatch, the bundle loader, or Registry.Snapshot.
type ContentKind int

const (
	ContentNone ContentKind = iota
	ContentStatic
	ContentThunk
	ContentStream
)

// Recipe is an immutable snapshot of a fully-built match-and-respond
// entry. Once handed to a Registry, later mutation of the Builder that
// produced it has no effect — value fields are copied and header and
// user-data collections are deep copies, while thunks and callbacks are
// kept as references to the user's closures (spec.md §4.2 "Construction
// contract").
type Recipe struct {
	id uuid.UUID

	// CanonicalKey is the zero value when this Recipe was built as a
	// free-form predicate (via When); HasCanonicalKey distinguishes a
	// legitimately all-Any key from "not canonical".
	canonicalKey    canon.Key
	hasCanonicalKey bool

	matcher contracts.Matcher

	priority    int
	hasPriority bool

	status       int
	reason       string
	protoVersion string

	responseHeaders      models.Headers
	responseHeadersThunk contracts.HeaderThunk
	contentHeaders       models.Headers
	contentHeadersThunk  contracts.HeaderThunk

	contentKind     ContentKind
	contentProducer contracts.ContentProducer

	preDispatch contracts.PreDispatchCallback

	reusable      bool
	mustBeMatched bool

	userData map[string]any

	matched atomic.Bool
}

// ID returns the Recipe's identity, assigned at snapshot time.
func (r *Recipe) ID() uuid.UUID { return r.id }

// CanonicalKey returns the Recipe's index tuple and whether it has one.
func (r *Recipe) CanonicalKey() (canon.Key, bool) { return r.canonicalKey, r.hasCanonicalKey }

// Matcher returns the Recipe's attached sub-matchers (canonical) or its
// whole predicate (free-form), composed per spec.md §4.1.
func (r *Recipe) Matcher() contracts.Matcher { return r.matcher }

// Priority returns the Recipe's priority and whether one was set; an
// unset priority sorts as the lowest (spec.md §3).
func (r *Recipe) Priority() (int, bool) { return r.priority, r.hasPriority }

// Reusable reports whether this Recipe may be dispatched more than once.
func (r *Recipe) Reusable() bool { return r.reusable }

// MustBeMatched reports whether Registry.Verify should flag this Recipe as
// unmatched if it was never dispatched (SPEC_FULL.md §4 "Verify-all-
// matched", grounded on the basecamp-sdk registry's Verify()).
func (r *Recipe) MustBeMatched() bool { return r.mustBeMatched }

// MarkMatched records that this Recipe was successfully dispatched at
// least once.
func (r *Recipe) MarkMatched() { r.matched.Store(true) }

// WasMatched reports whether MarkMatched has been called.
func (r *Recipe) WasMatched() bool { return r.matched.Load() }

// UserData returns the opaque user data snapshot (spec.md §3).
func (r *Recipe) UserData() map[string]any { return r.userData }

// Synthesize runs the Recipe's response-headers thunk, content-headers
// thunk, and content producer (in that order, spec.md §4.2 steps 1-3) and
// assembles a models.Response (step 4).
func (r *Recipe) Synthesize(ctx context.Context) (*models.Response, error) {
	msgHeaders := r.responseHeaders.Clone()
	if r.responseHeadersThunk != nil {
		thunked, err := r.responseHeadersThunk(ctx)
		if err != nil {
			return nil, err
		}
		msgHeaders = models.MergeOver(msgHeaders, thunked)
	}
	if msgHeaders == nil {
		msgHeaders = models.NewHeaders()
	}

	entityHeaders := r.contentHeaders.Clone()
	if r.contentHeadersThunk != nil {
		thunked, err := r.contentHeadersThunk(ctx)
		if err != nil {
			return nil, err
		}
		entityHeaders = models.MergeOver(entityHeaders, thunked)
	}
	if entityHeaders == nil {
		entityHeaders = models.NewHeaders()
	}

	var entity io.Reader
	if r.contentProducer != nil {
		var err error
		entity, err = r.contentProducer(ctx)
		if err != nil {
			return nil, err
		}
	}

	return &models.Response{
		Status:         r.status,
		Reason:         r.reason,
		ProtoVersion:   r.protoVersion,
		MessageHeaders: msgHeaders,
		EntityHeaders:  entityHeaders,
		Entity:         entity,
	}, nil
}

// PreDispatch returns the pre-dispatch callback, or nil.
func (r *Recipe) PreDispatch() contracts.PreDispatchCallback { return r.preDispatch }

// Package registry implements the scoped recipe index described in
// spec.md §4.4: a canonical-key lookup layered under a stack of scopes,
// a predicate list consulted only when no canonical entry matches, and
// the push/pop scope machinery tests use to install and then discard
// temporary overrides.
package registry

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/patchwire/intercept/internal/canon"
	"github.com/patchwire/intercept/pkg/contracts"
	"github.com/patchwire/intercept/pkg/models"
	"github.com/patchwire/intercept/pkg/recipe"
)

type canonicalEntry struct {
	key     canon.Key
	rec     *recipe.Recipe
	seq     uint64
	removed bool
}

type predicateEntry struct {
	rec     *recipe.Recipe
	seq     uint64
	removed bool
}

// layer is one scope's slice of the index: the base layer (index 0) lives
// for the Registry's lifetime; every BeginScope call pushes another.
type layer struct {
	canonical  []*canonicalEntry
	predicates []*predicateEntry
}

// Registry is the scoped, concurrency-safe recipe index. Reads (Lookup)
// take the read lock; registration and scope changes take the write lock
// — the same reader-biased sync.RWMutex shape
// internal/auth.ProviderChain uses for its provider list, generalized
// here to a layered stack instead of a flat slice.
type Registry struct {
	mu       sync.RWMutex
	layers   []*layer
	scopeIDs []uuid.UUID
	seq      uint64

	locations map[uuid.UUID]*canonicalEntry
	predLocs  map[uuid.UUID]*predicateEntry

	opts   options
	recent *ring
}

// New constructs a Registry with one base layer and no registrations.
func New(opts ...RegistryOption) *Registry {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Registry{
		layers:    []*layer{{}},
		locations: make(map[uuid.UUID]*canonicalEntry),
		predLocs:  make(map[uuid.UUID]*predicateEntry),
		opts:      o,
		recent:    newRing(o.recentCapacity),
	}
}

// Register installs rec, indexed by its canonical key, into the
// innermost (most recently pushed) scope. A prior, still-live
// registration in that same scope with an identical key is removed and
// does not come back if the new one is later deregistered — spec.md
// §4.4's "newest registration for an identical key wins".
func (r *Registry) Register(rec *recipe.Recipe) {
	key, ok := rec.CanonicalKey()
	if !ok {
		log.Warn().Str("recipe_id", rec.ID().String()).Msg("registry: Register called with a predicate recipe, routing to RegisterPredicate")
		r.RegisterPredicate(rec)
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	top := r.layers[len(r.layers)-1]
	for _, e := range top.canonical {
		if !e.removed && e.key.Equal(key) {
			e.removed = true
			delete(r.locations, e.rec.ID())
			log.Debug().
				Str("shadowed_recipe_id", e.rec.ID().String()).
				Str("recipe_id", rec.ID().String()).
				Msg("registry: canonical recipe shadowed by new registration")
		}
	}

	r.seq++
	entry := &canonicalEntry{key: key, rec: rec, seq: r.seq}
	top.canonical = append(top.canonical, entry)
	r.locations[rec.ID()] = entry

	log.Debug().
		Str("recipe_id", rec.ID().String()).
		Str("method", key.Method).
		Str("host", key.Host).
		Str("path", key.Path).
		Int("scope_depth", len(r.layers)-1).
		Msg("registry: canonical recipe registered")
}

// RegisterPredicate installs rec as a free-form predicate, consulted
// for a request only when no canonical entry in any scope matches it
// (spec.md §4.1, §4.4).
func (r *Registry) RegisterPredicate(rec *recipe.Recipe) {
	r.mu.Lock()
	defer r.mu.Unlock()

	top := r.layers[len(r.layers)-1]
	r.seq++
	entry := &predicateEntry{rec: rec, seq: r.seq}
	top.predicates = append(top.predicates, entry)
	r.predLocs[rec.ID()] = entry

	log.Debug().
		Str("recipe_id", rec.ID().String()).
		Int("scope_depth", len(r.layers)-1).
		Msg("registry: predicate recipe registered")
}

// Deregister removes rec from whichever layer still holds it, wherever in
// the stack that is. Used by the Dispatcher to retire a non-reusable
// Recipe after a successful dispatch (spec.md §4.2 "Reusable flag").
func (r *Registry) Deregister(rec *recipe.Recipe) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.locations[rec.ID()]; ok {
		e.removed = true
		delete(r.locations, rec.ID())
	}
	if e, ok := r.predLocs[rec.ID()]; ok {
		e.removed = true
		delete(r.predLocs, rec.ID())
	}
}

// BeginScope pushes a new, empty override layer and returns a handle that
// must be passed to EndScope to pop it (spec.md §4.4 "Scope stack").
func (r *Registry) BeginScope() uuid.UUID {
	r.mu.Lock()
	defer r.mu.Unlock()

	handle := uuid.New()
	r.layers = append(r.layers, &layer{})
	r.scopeIDs = append(r.scopeIDs, handle)

	log.Debug().Str("scope", handle.String()).Int("depth", len(r.layers)-1).Msg("registry: scope begun")
	return handle
}

// EndScope pops the innermost scope, discarding every registration made
// within it. handle must match the most recently begun, not-yet-ended
// scope — any other order is a ScopeMisuse (spec.md §4.4, §7).
func (r *Registry) EndScope(handle uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.scopeIDs) == 0 {
		return contracts.NewFailure(contracts.ScopeMisuse, "endScope called with no scope active").
			WithDetail("handle", handle.String())
	}
	top := r.scopeIDs[len(r.scopeIDs)-1]
	if top != handle {
		return contracts.NewFailure(contracts.ScopeMisuse, "endScope called out of order").
			WithDetail("expected", top.String()).
			WithDetail("got", handle.String())
	}

	popped := r.layers[len(r.layers)-1]
	for _, e := range popped.canonical {
		delete(r.locations, e.rec.ID())
	}
	for _, e := range popped.predicates {
		delete(r.predLocs, e.rec.ID())
	}

	r.layers = r.layers[:len(r.layers)-1]
	r.scopeIDs = r.scopeIDs[:len(r.scopeIDs)-1]

	log.Debug().Str("scope", handle.String()).Int("depth", len(r.layers)-1).Msg("registry: scope ended")
	return nil
}

// ScopeDepth reports how many scopes are currently pushed, above the base
// layer.
func (r *Registry) ScopeDepth() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.scopeIDs)
}

func effectivePriority(rec *recipe.Recipe) int {
	if p, ok := rec.Priority(); ok {
		return p
	}
	return -1
}

// Lookup resolves req against the index (spec.md §4.4): every layer,
// newest first, is scanned for canonical matches; the first layer with
// any match wins, and within it the most specific (ties: most recently
// registered) candidate is chosen. Only when no layer has a canonical
// match does Lookup fall through to the predicate list, gathered newest-
// layer-first and newest-within-layer-first, then stably sorted by
// descending priority so ties keep that gather order (DESIGN.md,
// "Additional resolved ambiguity").
func (r *Registry) Lookup(req *models.Request) (*recipe.Recipe, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for i := len(r.layers) - 1; i >= 0; i-- {
		l := r.layers[i]
		var best *canonicalEntry
		for j := len(l.canonical) - 1; j >= 0; j-- {
			e := l.canonical[j]
			if e.removed || !e.key.CompatibleWith(req) || !e.rec.Matcher().IsMatch(req) {
				continue
			}
			if best == nil {
				best = e
				continue
			}
			if e.key.Specificity() > best.key.Specificity() {
				best = e
			} else if e.key.Specificity() == best.key.Specificity() && e.seq > best.seq {
				best = e
			}
		}
		if best != nil {
			return best.rec, true
		}
	}

	var candidates []*predicateEntry
	for i := len(r.layers) - 1; i >= 0; i-- {
		l := r.layers[i]
		for j := len(l.predicates) - 1; j >= 0; j-- {
			e := l.predicates[j]
			if e.removed {
				continue
			}
			if e.rec.Matcher().IsMatch(req) {
				candidates = append(candidates, e)
			}
		}
	}
	if len(candidates) == 0 {
		return nil, false
	}
	sort.SliceStable(candidates, func(a, b int) bool {
		return effectivePriority(candidates[a].rec) > effectivePriority(candidates[b].rec)
	})
	return candidates[0].rec, true
}

// OnMissingRecipe returns the configured fallback, or nil.
func (r *Registry) OnMissingRecipe() contracts.MissingRecipeFunc { return r.opts.onMissingRecipe }

// ResponseMutator returns the configured post-synthesis hook, or nil.
func (r *Registry) ResponseMutator() contracts.ResponseMutator { return r.opts.responseMutator }

// ThrowOnUnmatched reports whether an unmatched request should raise an
// UnmatchedRequest Failure.
func (r *Registry) ThrowOnUnmatched() bool { return r.opts.throwOnUnmatched }

// RecordDispatch appends one entry to the bounded dispatch history
// (SPEC_FULL.md §4).
func (r *Registry) RecordDispatch(req *models.Request, rec *recipe.Recipe, matched bool) {
	var id uuid.UUID
	if rec != nil {
		id = rec.ID()
	}
	r.recent.record(RecordedRequest{Request: req, Matched: matched, RecipeID: id, At: time.Now()})
}

// Recent returns a snapshot of the bounded dispatch history, oldest
// first.
func (r *Registry) Recent() []RecordedRequest { return r.recent.snapshot() }

// Verify reports an UnmatchedRequest Failure naming every still-live
// Recipe built with MustBeMatched() that was never dispatched
// (SPEC_FULL.md §4 "Verify-all-matched", grounded on basecamp-sdk's
// registry Verify()). A nil result means every such Recipe was hit.
func (r *Registry) Verify() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var unmatchedIDs []string
	for _, l := range r.layers {
		for _, e := range l.canonical {
			if !e.removed && e.rec.MustBeMatched() && !e.rec.WasMatched() {
				unmatchedIDs = append(unmatchedIDs, e.rec.ID().String())
			}
		}
		for _, e := range l.predicates {
			if !e.removed && e.rec.MustBeMatched() && !e.rec.WasMatched() {
				unmatchedIDs = append(unmatchedIDs, e.rec.ID().String())
			}
		}
	}
	if len(unmatchedIDs) == 0 {
		return nil
	}
	return contracts.NewFailure(contracts.UnmatchedRequest, "recipes marked MustBeMatched were never dispatched").
		WithDetail("recipe_ids", unmatchedIDs)
}

// Entry is a read-only introspection view of one still-live registration
// (SPEC_FULL.md §4, consumed by internal/introspect).
type Entry struct {
	ID            uuid.UUID
	Canonical     bool
	Key           canon.Key
	Priority      int
	HasPriority   bool
	Reusable      bool
	MustBeMatched bool
	Matched       bool
	ScopeDepth    int
}

// Snapshot returns every still-live registration across all scopes, base
// layer first.
func (r *Registry) Snapshot() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Entry
	for depth, l := range r.layers {
		for _, e := range l.canonical {
			if e.removed {
				continue
			}
			p, hasP := e.rec.Priority()
			out = append(out, Entry{
				ID: e.rec.ID(), Canonical: true, Key: e.key,
				Priority: p, HasPriority: hasP,
				Reusable: e.rec.Reusable(), MustBeMatched: e.rec.MustBeMatched(),
				Matched: e.rec.WasMatched(), ScopeDepth: depth,
			})
		}
		for _, e := range l.predicates {
			if e.removed {
				continue
			}
			p, hasP := e.rec.Priority()
			out = append(out, Entry{
				ID: e.rec.ID(), Canonical: false,
				Priority: p, HasPriority: hasP,
				Reusable: e.rec.Reusable(), MustBeMatched: e.rec.MustBeMatched(),
				Matched: e.rec.WasMatched(), ScopeDepth: depth,
			})
		}
	}
	return out
}

// Package contracts defines the boundary types between the interception
// core and its callers: the Matcher/ContentProducer/callback function
// shapes a Recipe is built from, and the Failure error type the core uses
// to surface the five failure kinds in spec.md §7.
//
// These types exist in pkg/ (not internal/) so host applications, the
// bundle loader, and the demo command can all reference them without
// reaching into internal/.
package contracts

import (
	"context"
	"io"

	"github.com/patchwire/intercept/pkg/models"
)

// Matcher decides whether a request satisfies a Recipe's preconditions
// (spec.md §4.1). Implementations must be pure with respect to the
// request; a Matcher with side effects is undefined behavior.
type Matcher interface {
	IsMatch(req *models.Request) bool
}

// MatcherFunc adapts a plain function to a Matcher.
type MatcherFunc func(req *models.Request) bool

// IsMatch implements Matcher.
func (f MatcherFunc) IsMatch(req *models.Request) bool { return f(req) }

// PreDispatchCallback runs before response synthesis (spec.md §4.5 step 4).
// It may block; the Dispatcher threads the request's cancellation signal
// through it cooperatively.
type PreDispatchCallback func(ctx context.Context, req *models.Request) error

// ContentProducer lazily produces an entity body. It is invoked at
// dispatch time, once per dispatch — a stream producer must open a fresh
// stream on every call, never memoize an already-open one (spec.md §4.2,
// §9 "Streaming bodies").
type ContentProducer func(ctx context.Context) (io.Reader, error)

// HeaderThunk lazily produces a Headers multimap, merged over a Recipe's
// static headers at dispatch time (spec.md §4.2 steps 1-2).
type HeaderThunk func(ctx context.Context) (models.Headers, error)

// MissingRecipeFunc is the Registry's configurable fallback, invoked when
// no Recipe matches a request (spec.md §4.5 step 3). Returning ok=false
// means "I decline to handle this one either".
type MissingRecipeFunc func(ctx context.Context, req *models.Request) (resp *models.Response, ok bool)

// ResponseMutator is a registry-level post-synthesis hook applied to every
// dispatched response (spec.md §4.5 step 6), regardless of which Recipe
// produced it.
type ResponseMutator func(resp *models.Response)

// FailureKind enumerates the failure classes the core surfaces (spec.md
// §7). It is a normalized, machine-comparable code in the spirit of the
// DIRPX-derrors `code.Code` pattern, kept narrow to the five kinds the
// core actually raises rather than derrors's general-purpose catalog.
type FailureKind string

const (
	// UnmatchedRequest: no Recipe accepted the request and no fallback
	// produced a response, raised only when the Registry is strict.
	UnmatchedRequest FailureKind = "unmatched_request"
	// UserCallbackFailure: a pre-dispatch callback or thunk raised an
	// error; propagated unchanged as the Cause.
	UserCallbackFailure FailureKind = "user_callback_failure"
	// Cancelled: the request's cancellation signal fired during dispatch.
	Cancelled FailureKind = "cancelled"
	// ScopeMisuse: endScope was called out of LIFO order or with an
	// unknown handle.
	ScopeMisuse FailureKind = "scope_misuse"
	// BuilderMisuse: a Builder was registered in an inconsistent state.
	BuilderMisuse FailureKind = "builder_misuse"
)

// Failure is the core's rich error type. It carries a Kind, a
// human-readable Message, an optional Details payload, and an optional
// wrapped Cause — the same shape as DIRPX-derrors's Error, reimplemented
// here (not imported: dirpx.dev/derrors is retrieval-only reference code,
// not a fetchable module for this project).
//
// All WithX mutators return a shallow copy, so a Failure can be built up
// and shared without risk of a caller mutating a shared instance.
type Failure struct {
	Kind    FailureKind
	Message string
	Details map[string]any
	Cause   error
}

// NewFailure constructs a Failure of the given kind.
func NewFailure(kind FailureKind, message string) *Failure {
	return &Failure{Kind: kind, Message: message}
}

// Error implements the error interface.
func (f *Failure) Error() string {
	if f == nil {
		return "<nil>"
	}
	if f.Cause != nil {
		return string(f.Kind) + ": " + f.Message + ": " + f.Cause.Error()
	}
	return string(f.Kind) + ": " + f.Message
}

// Unwrap enables errors.Is / errors.As against Cause.
func (f *Failure) Unwrap() error { return f.Cause }

// WithCause returns a shallow copy of f with Cause set. A nil err leaves f
// unchanged.
func (f *Failure) WithCause(err error) *Failure {
	if err == nil {
		return f
	}
	cp := *f
	cp.Cause = err
	return &cp
}

// WithDetail returns a shallow copy of f with one extra Details entry.
func (f *Failure) WithDetail(key string, value any) *Failure {
	cp := *f
	m := make(map[string]any, len(cp.Details)+1)
	for k, v := range cp.Details {
		m[k] = v
	}
	m[key] = value
	cp.Details = m
	return &cp
}

// IsKind reports whether err is a *Failure of the given kind.
func IsKind(err error, kind FailureKind) bool {
	f, ok := err.(*Failure)
	return ok && f.Kind == kind
}

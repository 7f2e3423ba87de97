// Package matcher implements the two Matcher variants from spec.md §4.1:
// the canonical matcher's attached sub-matchers (header, content, raw
// predicate) and the free-form predicate matcher, plus matchAll
// composition.
//
// The walk-until-accept shape below is the same one
// internal/auth.ProviderChain uses to walk registered auth providers
// (generalized here into a short-circuiting AND instead of a first-match
// OR).
package matcher

import (
	"bytes"

	"github.com/patchwire/intercept/pkg/contracts"
	"github.com/patchwire/intercept/pkg/models"
)

// MatchAll returns a Matcher that accepts only if every matcher in ms
// accepts, short-circuiting on the first rejection (spec.md §4.1).
func MatchAll(ms []contracts.Matcher) contracts.Matcher {
	subs := make([]contracts.Matcher, len(ms))
	copy(subs, ms)
	return contracts.MatcherFunc(func(req *models.Request) bool {
		for _, m := range subs {
			if !m.IsMatch(req) {
				return false
			}
		}
		return true
	})
}

// Header returns a Matcher requiring the request header named key to
// carry exactly the set of values in want (order-independent). An empty
// want means "present with any value" (spec.md §4.1).
func Header(key string, want []string) contracts.Matcher {
	return contracts.MatcherFunc(func(req *models.Request) bool {
		return models.EqualSet(want, req.Headers.Get(key))
	})
}

// Content returns a Matcher that evaluates fn against the buffered request
// body. Reading here never consumes the body for a later callback or
// second matcher (spec.md §4.1, §5).
func Content(fn func(body []byte) bool) contracts.Matcher {
	return contracts.MatcherFunc(func(req *models.Request) bool {
		body, err := req.BodyBytes()
		if err != nil {
			return false
		}
		return fn(body)
	})
}

// ContentEquals is a Content convenience matching the body byte-for-byte.
func ContentEquals(want []byte) contracts.Matcher {
	return Content(func(body []byte) bool { return bytes.Equal(body, want) })
}

// Raw adapts an arbitrary request predicate directly, for cases header/
// content matchers don't cover (spec.md §3 "raw-request predicate").
func Raw(fn func(req *models.Request) bool) contracts.Matcher {
	return contracts.MatcherFunc(fn)
}

// Predicate wraps a user-supplied function as the free-form predicate
// matcher variant (spec.md §4.1's "Predicate matcher"). It is distinct
// from Raw only in intent: Raw composes as a canonical sub-matcher, while
// Predicate is the leading matcher of a Recipe in the Registry's predicate
// list (composed with that Recipe's other sub-matchers via MatchAll).
func Predicate(fn func(req *models.Request) bool) contracts.Matcher {
	return contracts.MatcherFunc(fn)
}

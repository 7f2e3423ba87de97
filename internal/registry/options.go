package registry

import "github.com/patchwire/intercept/pkg/contracts"

// options holds a Registry's configurable behavior (SPEC_FULL.md §2.2:
// functional options in the style of internal/config.Config, generalized
// from environment-variable defaults to caller-supplied functions since
// this core has no process environment of its own).
type options struct {
	recentCapacity   int
	throwOnUnmatched bool
	onMissingRecipe  contracts.MissingRecipeFunc
	responseMutator  contracts.ResponseMutator
}

func defaultOptions() options {
	return options{
		recentCapacity:   256,
		throwOnUnmatched: true,
	}
}

// RegistryOption configures a Registry at construction time.
type RegistryOption func(*options)

// WithRecentCapacity bounds how many dispatched requests Recent() recalls.
func WithRecentCapacity(n int) RegistryOption {
	return func(o *options) { o.recentCapacity = n }
}

// WithThrowOnUnmatched controls whether an unmatched request raises an
// UnmatchedRequest Failure (true, the default) or is answered with an
// empty 200 sentinel response (false). In both modes the
// WithMissingRecipeFunc fallback is tried first.
func WithThrowOnUnmatched(throw bool) RegistryOption {
	return func(o *options) { o.throwOnUnmatched = throw }
}

// WithMissingRecipeFunc installs a fallback tried when no Recipe matches
// (spec.md §4.5 step 3), before throwOnUnmatched is consulted.
func WithMissingRecipeFunc(fn contracts.MissingRecipeFunc) RegistryOption {
	return func(o *options) { o.onMissingRecipe = fn }
}

// WithResponseMutator installs a registry-wide post-synthesis hook
// (spec.md §4.5 step 6), applied to every dispatched response regardless
// of which Recipe produced it.
func WithResponseMutator(fn contracts.ResponseMutator) RegistryOption {
	return func(o *options) { o.responseMutator = fn }
}

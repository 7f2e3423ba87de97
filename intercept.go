// Package intercept is the host-facing façade over this module's
// interception core: a thin set of type aliases and constructors so a
// caller depends on one import instead of reaching into internal/ and
// across pkg/recipe, pkg/hook, and pkg/contracts directly.
package intercept

import (
	"github.com/patchwire/intercept/internal/dispatch"
	"github.com/patchwire/intercept/internal/registry"
	"github.com/patchwire/intercept/pkg/contracts"
	"github.com/patchwire/intercept/pkg/hook"
	"github.com/patchwire/intercept/pkg/models"
	"github.com/patchwire/intercept/pkg/recipe"
)

type (
	// Registry is the scoped recipe index (spec.md §4.4).
	Registry = registry.Registry
	// RegistryOption configures a Registry at construction time.
	RegistryOption = registry.RegistryOption
	// Builder fluently assembles a Recipe (spec.md §4.3).
	Builder = recipe.Builder
	// Recipe is an immutable match-and-respond entry (spec.md §4.2).
	Recipe = recipe.Recipe
	// Dispatcher runs the per-request dispatch algorithm (spec.md §4.5).
	Dispatcher = dispatch.Dispatcher
	// Hook adapts the core to net/http (spec.md §4.6).
	Hook = hook.Hook
	// Request is the structured inbound request (spec.md §3).
	Request = models.Request
	// Response is the structured synthesized response (spec.md §6.2).
	Response = models.Response
	// Headers is the case-insensitive multimap shared by Request and
	// Response.
	Headers = models.Headers
	// Failure is the core's rich error type (spec.md §7).
	Failure = contracts.Failure
	// FailureKind enumerates the failure classes in spec.md §7.
	FailureKind = contracts.FailureKind
)

// The five failure kinds the core raises (spec.md §7): dispatch raises
// the first three, EndScope raises ScopeMisuse, and Builder.RegisterWith
// raises BuilderMisuse.
const (
	UnmatchedRequest    = contracts.UnmatchedRequest
	UserCallbackFailure = contracts.UserCallbackFailure
	Cancelled           = contracts.Cancelled
	ScopeMisuse         = contracts.ScopeMisuse
	BuilderMisuse       = contracts.BuilderMisuse
)

// NewRegistry constructs an empty, ready-to-use Registry.
func NewRegistry(opts ...RegistryOption) *Registry { return registry.New(opts...) }

// NewBuilder constructs an empty Builder for assembling one Recipe.
func NewBuilder() *Builder { return recipe.NewBuilder() }

// NewHook builds a Hook dispatching against reg, installable directly as
// an *http.Client's Transport.
func NewHook(reg *Registry) *Hook { return hook.New(reg) }

// NewDispatcher builds a Dispatcher against reg, for hosts that want the
// models.Request/Response boundary directly instead of net/http's.
func NewDispatcher(reg *Registry) *Dispatcher { return dispatch.New(reg) }

// IsFailureKind reports whether err is a *Failure of the given kind.
func IsFailureKind(err error, kind FailureKind) bool { return contracts.IsKind(err, kind) }

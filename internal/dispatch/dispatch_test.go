package dispatch_test

import (
	"context"
	"errors"
	"testing"

	"github.com/patchwire/intercept/internal/dispatch"
	"github.com/patchwire/intercept/internal/registry"
	"github.com/patchwire/intercept/pkg/contracts"
	"github.com/patchwire/intercept/pkg/models"
	"github.com/patchwire/intercept/pkg/recipe"
)

func newReq(ctx context.Context) *models.Request {
	return models.NewRequest(ctx, "GET", "http", "api.test", "80", "/widgets", "", models.NewHeaders(), nil)
}

func registerRecipe(t *testing.T, reg *registry.Registry, opts ...func(*recipe.Builder)) {
	t.Helper()
	b := recipe.NewBuilder()
	b.Requests().Get().ForScheme("http").ForHost("api.test").ForPort("80").ForPath("/widgets")
	b.Responds().WithStatus(200)
	for _, opt := range opts {
		opt(b)
	}
	if _, err := b.RegisterWith(reg); err != nil {
		t.Fatalf("RegisterWith() error = %v", err)
	}
}

func TestDispatch_PreCancelledRequestShortCircuits(t *testing.T) {
	reg := registry.New()
	registerRecipe(t, reg)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := dispatch.New(reg).Dispatch(ctx, newReq(ctx))
	if !contracts.IsKind(err, contracts.Cancelled) {
		t.Fatalf("error = %v, want Cancelled", err)
	}
}

func TestDispatch_UnmatchedRequest_StrictModeFails(t *testing.T) {
	reg := registry.New(registry.WithThrowOnUnmatched(true))
	ctx := context.Background()

	_, err := dispatch.New(reg).Dispatch(ctx, newReq(ctx))
	if !contracts.IsKind(err, contracts.UnmatchedRequest) {
		t.Fatalf("error = %v, want UnmatchedRequest", err)
	}
}

func TestDispatch_UnmatchedRequest_PermissiveModeReturnsSentinel(t *testing.T) {
	reg := registry.New(registry.WithThrowOnUnmatched(false))
	ctx := context.Background()

	resp, err := dispatch.New(reg).Dispatch(ctx, newReq(ctx))
	if err != nil {
		t.Fatalf("Dispatch() error = %v, want nil in permissive mode", err)
	}
	if resp.Status != 200 {
		t.Errorf("sentinel Status = %d, want 200", resp.Status)
	}
}

func TestDispatch_OnMissingRecipeFallbackIsUsed(t *testing.T) {
	called := false
	reg := registry.New(registry.WithThrowOnUnmatched(true), registry.WithMissingRecipeFunc(
		func(ctx context.Context, req *models.Request) (*models.Response, bool) {
			called = true
			return &models.Response{Status: 418, MessageHeaders: models.NewHeaders(), EntityHeaders: models.NewHeaders()}, true
		}))
	ctx := context.Background()

	resp, err := dispatch.New(reg).Dispatch(ctx, newReq(ctx))
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if !called {
		t.Fatal("expected the missing-recipe fallback to be invoked")
	}
	if resp.Status != 418 {
		t.Errorf("Status = %d, want 418", resp.Status)
	}
}

func TestDispatch_PreDispatchCallbackFailurePropagates(t *testing.T) {
	reg := registry.New()
	registerRecipe(t, reg, func(b *recipe.Builder) {
		b.Responds().WithPreDispatchCallback(func(ctx context.Context, req *models.Request) error {
			return errors.New("boom")
		})
	})

	_, err := dispatch.New(reg).Dispatch(context.Background(), newReq(context.Background()))
	if !contracts.IsKind(err, contracts.UserCallbackFailure) {
		t.Fatalf("error = %v, want UserCallbackFailure", err)
	}
}

func TestDispatch_PreDispatchCallbackCancellationPropagates(t *testing.T) {
	reg := registry.New()
	registerRecipe(t, reg, func(b *recipe.Builder) {
		b.Responds().WithPreDispatchCallback(func(ctx context.Context, req *models.Request) error {
			<-ctx.Done()
			return ctx.Err()
		})
	})

	ctx, cancel := context.WithCancel(context.Background())
	go cancel()

	_, err := dispatch.New(reg).Dispatch(ctx, newReq(ctx))
	if !contracts.IsKind(err, contracts.Cancelled) {
		t.Fatalf("error = %v, want Cancelled", err)
	}
}

func TestDispatch_SuccessfulDispatchMarksMatchedAndDeregistersOnce(t *testing.T) {
	reg := registry.New(registry.WithThrowOnUnmatched(true))
	registerRecipe(t, reg, func(b *recipe.Builder) {
		b.Responds().Reusable(false)
	})

	d := dispatch.New(reg)
	ctx := context.Background()

	if _, err := d.Dispatch(ctx, newReq(ctx)); err != nil {
		t.Fatalf("first Dispatch() error = %v", err)
	}

	// The recipe was not reusable, so a second dispatch for the same
	// request must find nothing left to match.
	_, err := d.Dispatch(ctx, newReq(ctx))
	if !contracts.IsKind(err, contracts.UnmatchedRequest) {
		t.Fatalf("second Dispatch() error = %v, want UnmatchedRequest (recipe consumed)", err)
	}
}

func TestDispatch_ResponseMutatorAppliesToEveryPath(t *testing.T) {
	reg := registry.New(registry.WithResponseMutator(func(resp *models.Response) {
		resp.MessageHeaders.Set("X-Mutated", "yes")
	}))
	registerRecipe(t, reg)

	resp, err := dispatch.New(reg).Dispatch(context.Background(), newReq(context.Background()))
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if got := resp.MessageHeaders.Get("X-Mutated"); len(got) != 1 || got[0] != "yes" {
		t.Errorf("MessageHeaders[X-Mutated] = %v, want [yes]", got)
	}

	// The permissive sentinel response for an unmatched request is mutated too.
	permissive := registry.New(registry.WithThrowOnUnmatched(false), registry.WithResponseMutator(func(resp *models.Response) {
		resp.MessageHeaders.Set("X-Mutated", "yes")
	}))
	resp, err = dispatch.New(permissive).Dispatch(context.Background(), newReq(context.Background()))
	if err != nil {
		t.Fatalf("permissive Dispatch() error = %v", err)
	}
	if got := resp.MessageHeaders.Get("X-Mutated"); len(got) != 1 || got[0] != "yes" {
		t.Errorf("sentinel MessageHeaders[X-Mutated] = %v, want [yes]", got)
	}
}

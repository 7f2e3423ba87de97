package recipe_test

import (
	"context"
	"testing"

	"github.com/patchwire/intercept/pkg/models"
	"github.com/patchwire/intercept/pkg/recipe"
)

type fakeRegistry struct {
	canonical  []*recipe.Recipe
	predicates []*recipe.Recipe
}

func (f *fakeRegistry) Register(rec *recipe.Recipe)          { f.canonical = append(f.canonical, rec) }
func (f *fakeRegistry) RegisterPredicate(rec *recipe.Recipe) { f.predicates = append(f.predicates, rec) }

func TestBuilder_RegisterWith_SnapshotIsImmutable(t *testing.T) {
	reg := &fakeRegistry{}
	b := recipe.NewBuilder()
	b.Requests().Get().ForUrl("http://example.test/a")
	b.Responds().WithStatus(200).WithContent([]byte("first"))

	if _, err := b.RegisterWith(reg); err != nil {
		t.Fatalf("RegisterWith() error = %v", err)
	}
	if len(reg.canonical) != 1 {
		t.Fatalf("expected one registered recipe, got %d", len(reg.canonical))
	}
	first := reg.canonical[0]

	// Mutate the same Builder and register again; the first snapshot must
	// be unaffected (spec.md §8 "Registration snapshot").
	b.Requests().ForPath("/b")
	b.Responds().WithStatus(404).WithContent([]byte("second"))
	if _, err := b.RegisterWith(reg); err != nil {
		t.Fatalf("RegisterWith() second call error = %v", err)
	}
	if len(reg.canonical) != 2 {
		t.Fatalf("expected two registered recipes, got %d", len(reg.canonical))
	}

	firstResp, err := first.Synthesize(context.Background())
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if firstResp.Status != 200 {
		t.Errorf("first snapshot Status = %d, want 200 (later mutation must not leak back)", firstResp.Status)
	}
	body, _ := firstResp.EntityBytes()
	if string(body) != "first" {
		t.Errorf("first snapshot body = %q, want %q", body, "first")
	}
}

func TestRecipe_Synthesize_MergesThunkOverStatic(t *testing.T) {
	reg := &fakeRegistry{}
	b := recipe.NewBuilder()
	b.Requests().Get().ForUrl("http://example.test/a")
	b.Responds().
		WithResponseHeader("X-Static", "static-value").
		WithResponseHeadersThunk(func(ctx context.Context) (models.Headers, error) {
			h := models.NewHeaders()
			h.Set("X-Dynamic", "thunked-value")
			return h, nil
		})
	if _, err := b.RegisterWith(reg); err != nil {
		t.Fatalf("RegisterWith() error = %v", err)
	}

	resp, err := reg.canonical[0].Synthesize(context.Background())
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if got := resp.MessageHeaders.Get("X-Static"); len(got) != 1 || got[0] != "static-value" {
		t.Errorf("MessageHeaders[X-Static] = %v, want [static-value]", got)
	}
	if got := resp.MessageHeaders.Get("X-Dynamic"); len(got) != 1 || got[0] != "thunked-value" {
		t.Errorf("MessageHeaders[X-Dynamic] = %v, want [thunked-value]", got)
	}
}

func TestRecipe_Synthesize_ContentThunkRegeneratesPerCall(t *testing.T) {
	reg := &fakeRegistry{}
	calls := 0
	b := recipe.NewBuilder()
	b.Requests().Get().ForUrl("http://example.test/a")
	b.Responds().WithContentThunk(func(ctx context.Context) ([]byte, error) {
		calls++
		return []byte("generation"), nil
	})
	if _, err := b.RegisterWith(reg); err != nil {
		t.Fatalf("RegisterWith() error = %v", err)
	}

	rec := reg.canonical[0]
	if _, err := rec.Synthesize(context.Background()); err != nil {
		t.Fatalf("Synthesize() first call error = %v", err)
	}
	if _, err := rec.Synthesize(context.Background()); err != nil {
		t.Fatalf("Synthesize() second call error = %v", err)
	}
	if calls != 2 {
		t.Errorf("content thunk called %d times, want 2 (regenerated per dispatch)", calls)
	}
}

func TestBuilder_ForUrl_MalformedURISurfacesAsBuilderMisuse(t *testing.T) {
	reg := &fakeRegistry{}
	b := recipe.NewBuilder()
	b.Requests().Get().ForUrl("http://[::1")
	if _, err := b.RegisterWith(reg); err == nil {
		t.Fatal("expected a malformed URI to surface as an error from RegisterWith")
	}
}

func TestRequestBuilder_When_RegistersAsPredicate(t *testing.T) {
	reg := &fakeRegistry{}
	b := recipe.NewBuilder()
	b.Requests().When(func(req *models.Request) bool { return true })
	b.Responds().WithStatus(204)
	if _, err := b.RegisterWith(reg); err != nil {
		t.Fatalf("RegisterWith() error = %v", err)
	}
	if len(reg.predicates) != 1 {
		t.Fatalf("expected the recipe to register as a predicate, got %d canonical, %d predicate",
			len(reg.canonical), len(reg.predicates))
	}
}

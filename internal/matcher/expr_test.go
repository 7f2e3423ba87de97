package matcher_test

import (
	"context"
	"testing"

	"github.com/patchwire/intercept/internal/matcher"
	"github.com/patchwire/intercept/pkg/models"
)

func TestExprPredicate_MatchesAcrossFields(t *testing.T) {
	m, err := matcher.ExprPredicate(`method == "POST" && path == "/v1/orders" && headers["x-trace"][0] == "abc"`)
	if err != nil {
		t.Fatalf("ExprPredicate() error = %v", err)
	}

	h := models.NewHeaders()
	h.Set("X-Trace", "abc")
	req := models.NewRequest(context.Background(), "POST", "https", "api.example.com", "443", "/v1/orders", "", h, nil)

	if !m.IsMatch(req) {
		t.Fatal("expected compiled expression to match")
	}

	req.Method = "GET"
	if m.IsMatch(req) {
		t.Fatal("expected compiled expression to reject a different method")
	}
}

func TestExprPredicate_CompileError(t *testing.T) {
	if _, err := matcher.ExprPredicate("method ==="); err == nil {
		t.Fatal("expected a compile error for malformed expression")
	}
}

func TestExprPredicate_RuntimeMismatchFailsClosed(t *testing.T) {
	// A well-typed expression that evaluates to false for this request
	// (its body is empty) should simply not match.
	m, err := matcher.ExprPredicate(`body == "nope"`)
	if err != nil {
		t.Fatalf("ExprPredicate() error = %v", err)
	}
	req := models.NewRequest(context.Background(), "GET", "http", "x", "80", "/", "", models.NewHeaders(), nil)
	if m.IsMatch(req) {
		t.Fatal("expected body comparison against empty body to fail")
	}
}

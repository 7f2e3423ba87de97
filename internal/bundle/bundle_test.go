package bundle_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/patchwire/intercept/internal/bundle"
	"github.com/patchwire/intercept/internal/registry"
	"github.com/patchwire/intercept/pkg/models"
)

func newReq(method, scheme, host, port, path, query string) *models.Request {
	return models.NewRequest(context.Background(), method, scheme, host, port, path, query, models.NewHeaders(), nil)
}

func newReqWithHeader(method, scheme, host, port, path, query, headerName, headerValue string) *models.Request {
	h := models.NewHeaders()
	h.Set(headerName, headerValue)
	return models.NewRequest(context.Background(), method, scheme, host, port, path, query, h, nil)
}

func TestLoad_FullSchemaRoundTrip(t *testing.T) {
	doc := `{
		"id": "demo",
		"version": 1,
		"items": [
			{
				"uri": "http://api.test/v1/widgets",
				"status": 201,
				"responseHeaders": {"X-Reply": "yes", "X-Multi": ["a", "b"]},
				"contentFormat": "json",
				"contentJson": {"ok": true}
			}
		]
	}`
	reg := registry.New()
	if err := bundle.Load(reg, []byte(doc)); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	rec, ok := reg.Lookup(newReq("GET", "http", "api.test", "80", "/v1/widgets", ""))
	if !ok {
		t.Fatal("expected the bundle item to register and match (method defaults to GET)")
	}
	resp, err := rec.Synthesize(context.Background())
	if err != nil {
		t.Fatalf("Synthesize() error = %v", err)
	}
	if resp.Status != 201 {
		t.Errorf("Status = %d, want 201", resp.Status)
	}
	if got := resp.MessageHeaders.Get("X-Multi"); len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Errorf("MessageHeaders[X-Multi] = %v, want [a b]", got)
	}
	body, _ := resp.EntityBytes()
	if string(body) != `{"ok":true}` {
		t.Errorf("body = %q, want %q", body, `{"ok":true}`)
	}
}

func TestLoad_IgnoreFlagsWidenToAny(t *testing.T) {
	doc := `{
		"items": [
			{"uri": "http://api.test/v1/widgets?x=1", "ignoreHost": true, "ignorePath": true, "ignoreQuery": true, "status": 200}
		]
	}`
	reg := registry.New()
	if err := bundle.Load(reg, []byte(doc)); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if _, ok := reg.Lookup(newReq("GET", "http", "other.host", "80", "/anything", "y=2")); !ok {
		t.Fatal("expected ignoreHost/ignorePath/ignoreQuery to widen the match to any host/path/query")
	}
}

func TestLoad_SkippedItemIsNotRegistered(t *testing.T) {
	doc := `{"items": [{"uri": "http://api.test/skipped", "skip": true}]}`
	reg := registry.New()
	if err := bundle.Load(reg, []byte(doc)); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if _, ok := reg.Lookup(newReq("GET", "http", "api.test", "80", "/skipped", "")); ok {
		t.Fatal("expected a skip:true item to be left unregistered")
	}
}

func TestLoad_PriorityAndStatusByName(t *testing.T) {
	doc := `{
		"items": [
			{"uri": "http://api.test/named", "status": "Not Found", "priority": 5}
		]
	}`
	reg := registry.New()
	if err := bundle.Load(reg, []byte(doc)); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	rec, ok := reg.Lookup(newReq("GET", "http", "api.test", "80", "/named", ""))
	if !ok {
		t.Fatal("expected a match")
	}
	resp, _ := rec.Synthesize(context.Background())
	if resp.Status != 404 {
		t.Errorf("Status = %d, want 404 (from status name 'Not Found')", resp.Status)
	}
}

func TestLoad_ContentBase64(t *testing.T) {
	doc := `{"items": [{"uri": "http://api.test/bin", "contentFormat": "base64", "contentBase64": "aGVsbG8="}]}`
	reg := registry.New()
	if err := bundle.Load(reg, []byte(doc)); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	rec, _ := reg.Lookup(newReq("GET", "http", "api.test", "80", "/bin", ""))
	resp, _ := rec.Synthesize(context.Background())
	body, _ := resp.EntityBytes()
	if string(body) != "hello" {
		t.Errorf("body = %q, want %q", body, "hello")
	}
}

func TestLoad_MatchExpressionWiresToPredicate(t *testing.T) {
	doc := `{"items": [{"uri": "http://api.test/any", "matchExpression": "headers[\"x-flag\"][0] == \"yes\""}]}`
	reg := registry.New()
	if err := bundle.Load(reg, []byte(doc)); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if _, ok := reg.Lookup(newReq("GET", "http", "api.test", "80", "/any", "")); ok {
		t.Fatal("expected the matchExpression to reject a request without the header")
	}
	if _, ok := reg.Lookup(newReqWithHeader("GET", "http", "api.test", "80", "/any", "", "X-Flag", "yes")); !ok {
		t.Fatal("expected the matchExpression to accept a request carrying the matching header")
	}
}

func TestLoad_MalformedDocumentIsWrappedError(t *testing.T) {
	reg := registry.New()
	err := bundle.Load(reg, []byte("not json"))
	if err == nil {
		t.Fatal("expected an error for a malformed document")
	}
	if errors.Unwrap(err) == nil {
		t.Errorf("error = %v, want it to wrap the underlying parse error", err)
	}
}

func TestLoad_MalformedItemIsWrappedWithLabel(t *testing.T) {
	reg := registry.New()
	err := bundle.Load(reg, []byte(`{"items": [{"id": "bad-one", "uri": "http://api.test/x", "status": {}}]}`))
	if err == nil {
		t.Fatal("expected an error for an item with a malformed status value")
	}
	if !strings.Contains(err.Error(), "bad-one") {
		t.Errorf("error = %v, want it labelled with the item id %q", err, "bad-one")
	}
}

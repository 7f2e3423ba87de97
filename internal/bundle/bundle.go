// Package bundle loads the JSON stub-bundle format from spec.md §6.1
// into Builder calls (SPEC_FULL.md §4 "Bundle loader"). The shape is
// grounded on imposter-project-imposter-go's RequestMatcher/Response
// config model (its YAML orientation translated to this spec's fixed
// JSON schema) and cross-checked against gooddata-goodmock's record
// format for the contentFormat variants.
package bundle

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/patchwire/intercept/internal/matcher"
	"github.com/patchwire/intercept/pkg/models"
	"github.com/patchwire/intercept/pkg/recipe"
)

// registerer is the subset of *registry.Registry the loader needs.
type registerer interface {
	Register(rec *recipe.Recipe)
	RegisterPredicate(rec *recipe.Recipe)
}

type document struct {
	ID      string `json:"id"`
	Comment string `json:"comment"`
	Version int    `json:"version"`
	Items   []item `json:"items"`
}

type item struct {
	ID              string                     `json:"id"`
	Comment         string                     `json:"comment"`
	Method          string                     `json:"method"`
	URI             string                     `json:"uri"`
	Version         string                     `json:"version"`
	Status          json.RawMessage            `json:"status"`
	RequestHeaders  map[string]json.RawMessage `json:"requestHeaders"`
	ResponseHeaders map[string]json.RawMessage `json:"responseHeaders"`
	ContentHeaders  map[string]json.RawMessage `json:"contentHeaders"`
	ContentFormat   string                     `json:"contentFormat"`
	ContentString   string                     `json:"contentString"`
	ContentJSON     json.RawMessage            `json:"contentJson"`
	ContentBase64   string                     `json:"contentBase64"`
	IgnoreHost      bool                       `json:"ignoreHost"`
	IgnorePath      bool                       `json:"ignorePath"`
	IgnoreQuery     bool                       `json:"ignoreQuery"`
	Priority        *int                       `json:"priority"`
	Skip            bool                       `json:"skip"`

	// MatchExpression is a supplemented escape hatch (SPEC_FULL.md §4):
	// an expr-lang expression evaluated via internal/matcher.ExprPredicate
	// for match conditions the fixed schema above cannot express.
	MatchExpression string `json:"matchExpression"`
}

// Load parses a bundle document and registers every non-skipped item
// into reg. The loader's only effect is to emit equivalent Builder calls
// (spec.md §6.1).
func Load(reg registerer, data []byte) error {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("bundle: invalid document: %w", err)
	}
	for i, it := range doc.Items {
		if it.Skip {
			continue
		}
		if err := registerItem(reg, it); err != nil {
			label := it.ID
			if label == "" {
				label = strconv.Itoa(i)
			}
			return fmt.Errorf("bundle: item %s: %w", label, err)
		}
	}
	return nil
}

func registerItem(reg registerer, it item) error {
	b := recipe.NewBuilder()
	req := b.Requests()

	method := it.Method
	if method == "" {
		method = "GET"
	}
	req.Method(method)
	req.ForUrl(it.URI)

	if it.IgnoreHost {
		req.ForAnyHost()
	}
	if it.IgnorePath {
		req.ForAnyPath()
	}
	if it.IgnoreQuery {
		req.ForAnyQuery()
	}

	for name, raw := range it.RequestHeaders {
		values, err := parseHeaderSet(raw)
		if err != nil {
			return fmt.Errorf("requestHeaders[%s]: %w", name, err)
		}
		req.ForHeader(name, values...)
	}

	if it.MatchExpression != "" {
		m, err := matcher.ExprPredicate(it.MatchExpression)
		if err != nil {
			return fmt.Errorf("matchExpression: %w", err)
		}
		req.ForRawPredicate(func(r *models.Request) bool { return m.IsMatch(r) })
	}

	if it.Priority != nil {
		req.WithPriority(*it.Priority)
	}

	resp := b.Responds()

	status, err := parseStatus(it.Status)
	if err != nil {
		return fmt.Errorf("status: %w", err)
	}
	resp.WithStatus(status)

	if it.Version != "" {
		resp.WithVersion(it.Version)
	}

	for name, raw := range it.ResponseHeaders {
		values, err := parseHeaderSet(raw)
		if err != nil {
			return fmt.Errorf("responseHeaders[%s]: %w", name, err)
		}
		resp.WithResponseHeader(name, values...)
	}
	for name, raw := range it.ContentHeaders {
		values, err := parseHeaderSet(raw)
		if err != nil {
			return fmt.Errorf("contentHeaders[%s]: %w", name, err)
		}
		resp.WithContentHeader(name, values...)
	}

	body, err := decodeContent(it)
	if err != nil {
		return fmt.Errorf("content: %w", err)
	}
	if body != nil {
		resp.WithContent(body)
	}

	_, err = b.RegisterWith(reg)
	return err
}

func decodeContent(it item) ([]byte, error) {
	switch it.ContentFormat {
	case "", "string":
		if it.ContentString == "" {
			return nil, nil
		}
		return []byte(it.ContentString), nil
	case "json":
		if len(it.ContentJSON) == 0 {
			return nil, nil
		}
		var buf bytes.Buffer
		if err := json.Compact(&buf, it.ContentJSON); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case "base64":
		if it.ContentBase64 == "" {
			return nil, nil
		}
		return base64.StdEncoding.DecodeString(it.ContentBase64)
	default:
		return nil, fmt.Errorf("unknown contentFormat %q", it.ContentFormat)
	}
}

// parseHeaderSet accepts either a JSON string or an array of strings, the
// shape spec.md §6.1 specifies for every header map value.
func parseHeaderSet(raw json.RawMessage) ([]string, error) {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return []string{s}, nil
	}
	var arr []string
	if err := json.Unmarshal(raw, &arr); err == nil {
		return arr, nil
	}
	return nil, fmt.Errorf("must be a string or array of strings")
}

// parseStatus accepts a JSON integer, a numeric string, or a standard
// status name ("Not Found", "not-found", case- and space-insensitive),
// defaulting to 200 when absent (spec.md §6.1).
func parseStatus(raw json.RawMessage) (int, error) {
	if len(raw) == 0 {
		return 200, nil
	}
	var n int
	if err := json.Unmarshal(raw, &n); err == nil {
		return n, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, fmt.Errorf("must be an integer or string")
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n, nil
	}
	if code, ok := statusByName(s); ok {
		return code, nil
	}
	return 0, fmt.Errorf("unrecognized status name %q", s)
}

func statusByName(name string) (int, bool) {
	target := normalizeStatusName(name)
	for code := 100; code < 600; code++ {
		text := http.StatusText(code)
		if text == "" {
			continue
		}
		if normalizeStatusName(text) == target {
			return code, true
		}
	}
	return 0, false
}

func normalizeStatusName(s string) string {
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, "-", "")
	s = strings.ReplaceAll(s, "_", "")
	return s
}

package recipe

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/patchwire/intercept/internal/canon"
	"github.com/patchwire/intercept/internal/matcher"
	"github.com/patchwire/intercept/pkg/contracts"
	"github.com/patchwire/intercept/pkg/models"
)

// registerer is the subset of *registry.Registry the Builder needs, kept
// as a local interface so pkg/recipe does not import internal/registry
// (which depends on pkg/recipe for the *Recipe type — an import cycle
// this interface breaks, the same boundary trick pkg/contracts uses
// between callers and implementations elsewhere in this module).
type registerer interface {
	Register(rec *Recipe)
	RegisterPredicate(rec *Recipe)
}

// Builder is the mutable fluent assembler described in spec.md §4.3. Its
// state is captured by value into a new *Recipe on every RegisterWith
// call; later mutation of the Builder never reaches back into a Recipe
// already registered (spec.md §4.3, §8 "Registration snapshot").
type Builder struct {
	// preconditions
	method       string
	scheme       string
	host         string
	port         string
	path         string
	query        string
	queryMode    canon.QueryMode
	usePredicate bool
	predicate    func(req *models.Request) bool
	subMatchers  []contracts.Matcher
	priority     int
	hasPriority  bool

	// postconditions
	status               int
	reason               string
	protoVersion         string
	responseHeaders      models.Headers
	responseHeadersThunk contracts.HeaderThunk
	contentHeaders       models.Headers
	contentHeadersThunk  contracts.HeaderThunk
	contentKind          ContentKind
	contentProducer      contracts.ContentProducer
	preDispatch          contracts.PreDispatchCallback
	reusable             bool
	mustBeMatched        bool
	userData             map[string]any

	buildErr error
}

// NewBuilder creates an empty Builder. Method defaults to GET and status
// to 200 (spec.md §3's stated defaults); Reusable defaults to true.
func NewBuilder() *Builder {
	return &Builder{
		method:   "GET",
		status:   200,
		reusable: true,
	}
}

// RequestBuilder is the "requests()" phase view of a Builder (spec.md
// §4.3's "requests()" marker).
type RequestBuilder struct{ *Builder }

// ResponseBuilder is the "responds()" phase view of a Builder (spec.md
// §4.3's "responds()" marker).
type ResponseBuilder struct{ *Builder }

// Requests begins the precondition-setting phase.
func (b *Builder) Requests() *RequestBuilder { return &RequestBuilder{b} }

// Responds begins the postcondition-setting phase.
func (b *Builder) Responds() *ResponseBuilder { return &ResponseBuilder{b} }

// ── Preconditions ───────────────────────────────────────────

func (rb *RequestBuilder) Method(method string) *RequestBuilder {
	rb.method = method
	return rb
}
func (rb *RequestBuilder) Get() *RequestBuilder  { return rb.Method("GET") }
func (rb *RequestBuilder) Post() *RequestBuilder { return rb.Method("POST") }
func (rb *RequestBuilder) Put() *RequestBuilder  { return rb.Method("PUT") }

// ForAnyMethod widens the canonical key's method field to Any.
func (rb *RequestBuilder) ForAnyMethod() *RequestBuilder {
	rb.method = canon.Any
	return rb
}

// parsedURL holds the components url.Parse extracts for ForUrl.
type parsedURL struct {
	scheme, host, port, path, query string
}

func parseURL(raw string) (parsedURL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return parsedURL{}, contracts.NewFailure(contracts.BuilderMisuse, "malformed URL").
			WithCause(err).WithDetail("url", raw)
	}
	return parsedURL{
		scheme: u.Scheme,
		host:   u.Hostname(),
		port:   u.Port(),
		path:   u.Path,
		query:  u.RawQuery,
	}, nil
}

// ForUrl sets scheme/host/port/path/query in one call, splitting uri into
// its canonical components (spec.md §3). A malformed URI is recorded as a
// BuilderMisuse, surfaced when RegisterWith is called.
func (rb *RequestBuilder) ForUrl(rawURL string) *RequestBuilder {
	u, err := parseURL(rawURL)
	if err != nil {
		rb.buildErr = err
		return rb
	}
	rb.scheme = u.scheme
	rb.host = u.host
	rb.port = u.port
	rb.path = u.path
	rb.query = u.query
	rb.queryMode = canon.Verbatim
	return rb
}

func (rb *RequestBuilder) ForScheme(scheme string) *RequestBuilder {
	rb.scheme = scheme
	return rb
}

func (rb *RequestBuilder) ForHost(host string) *RequestBuilder {
	rb.host = host
	return rb
}

// ForAnyHost widens the canonical key's host field to Any — the "any-host
// switch" from spec.md §4.3.
func (rb *RequestBuilder) ForAnyHost() *RequestBuilder {
	rb.host = canon.Any
	return rb
}

func (rb *RequestBuilder) ForPort(port string) *RequestBuilder {
	rb.port = port
	return rb
}

// ForAnyPort widens the canonical key's port field to Any. Omitting a
// port entirely (the common case) still defaults from the scheme
// (spec.md §3) — this setter is the explicit opt-in for a recipe that
// must match every port.
func (rb *RequestBuilder) ForAnyPort() *RequestBuilder {
	rb.port = canon.Any
	return rb
}

func (rb *RequestBuilder) ForPath(path string) *RequestBuilder {
	rb.path = path
	return rb
}

// ForAnyPath widens the canonical key's path field to Any.
func (rb *RequestBuilder) ForAnyPath() *RequestBuilder {
	rb.path = canon.Any
	return rb
}

// ForQuery sets a verbatim query-string match.
func (rb *RequestBuilder) ForQuery(query string) *RequestBuilder {
	rb.query = query
	rb.queryMode = canon.Verbatim
	return rb
}

// ForQueryParams sets an unordered k=v parameter-set match (spec.md §3).
// Mutually exclusive with ForQuery — whichever is called last wins, the
// same last-write-wins rule every other precondition setter uses
// (DESIGN.md, Open Question 3).
func (rb *RequestBuilder) ForQueryParams(params map[string]string) *RequestBuilder {
	values := url.Values{}
	for k, v := range params {
		values.Set(k, v)
	}
	rb.query = canon.SortedQuery(values.Encode())
	rb.queryMode = canon.ParamSet
	return rb
}

// ForAnyQuery widens the canonical key's query field to Any.
func (rb *RequestBuilder) ForAnyQuery() *RequestBuilder {
	rb.query = canon.Any
	return rb
}

// ForHeader attaches a header-equality sub-matcher (spec.md §4.1). An
// empty want means "present with any value".
func (rb *RequestBuilder) ForHeader(name string, want ...string) *RequestBuilder {
	rb.subMatchers = append(rb.subMatchers, matcher.Header(name, want))
	return rb
}

// ForContent attaches a request-content predicate sub-matcher (spec.md
// §3). Reading the body here does not consume it for the pre-dispatch
// callback that may follow (spec.md §4.1).
func (rb *RequestBuilder) ForContent(fn func(body []byte) bool) *RequestBuilder {
	rb.subMatchers = append(rb.subMatchers, matcher.Content(fn))
	return rb
}

// ForRawPredicate attaches an arbitrary request predicate sub-matcher.
func (rb *RequestBuilder) ForRawPredicate(fn func(req *models.Request) bool) *RequestBuilder {
	rb.subMatchers = append(rb.subMatchers, matcher.Raw(fn))
	return rb
}

// When switches this Builder to the free-form predicate variant (spec.md
// §4.1's "Predicate matcher"): fn, together with any header/content/raw
// sub-matchers also attached, decides whether the Recipe matches; the
// canonical-key setters are ignored, and the Recipe is stored in the
// Registry's predicate list rather than indexed by canonical key.
func (rb *RequestBuilder) When(fn func(req *models.Request) bool) *RequestBuilder {
	rb.usePredicate = true
	rb.predicate = fn
	return rb
}

// WithPriority sets the Recipe's priority (spec.md §3); negative values
// are a BuilderMisuse, surfaced at RegisterWith.
func (rb *RequestBuilder) WithPriority(priority int) *RequestBuilder {
	if priority < 0 {
		rb.buildErr = contracts.NewFailure(contracts.BuilderMisuse, "priority must be non-negative").
			WithDetail("priority", priority)
		return rb
	}
	rb.priority = priority
	rb.hasPriority = true
	return rb
}

// ── Postconditions ──────────────────────────────────────────

func (resp *ResponseBuilder) WithStatus(status int) *ResponseBuilder {
	resp.status = status
	return resp
}

func (resp *ResponseBuilder) WithReason(reason string) *ResponseBuilder {
	resp.reason = reason
	return resp
}

func (resp *ResponseBuilder) WithVersion(version string) *ResponseBuilder {
	resp.protoVersion = version
	return resp
}

func (resp *ResponseBuilder) WithResponseHeader(name string, values ...string) *ResponseBuilder {
	if resp.responseHeaders == nil {
		resp.responseHeaders = models.NewHeaders()
	}
	resp.responseHeaders.Set(name, values...)
	return resp
}

func (resp *ResponseBuilder) WithResponseHeadersThunk(thunk contracts.HeaderThunk) *ResponseBuilder {
	resp.responseHeadersThunk = thunk
	return resp
}

func (resp *ResponseBuilder) WithContentHeader(name string, values ...string) *ResponseBuilder {
	if resp.contentHeaders == nil {
		resp.contentHeaders = models.NewHeaders()
	}
	resp.contentHeaders.Set(name, values...)
	return resp
}

func (resp *ResponseBuilder) WithContentHeadersThunk(thunk contracts.HeaderThunk) *ResponseBuilder {
	resp.contentHeadersThunk = thunk
	return resp
}

// WithMediaType is the content-header convenience setter from spec.md
// §4.3 ("content-header convenience for media type").
func (resp *ResponseBuilder) WithMediaType(mediaType string) *ResponseBuilder {
	return resp.WithContentHeader("Content-Type", mediaType)
}

// WithContent sets a static byte body, shared by reference across every
// dispatch (spec.md §5 "Static-bytes producers may be shared by
// reference").
func (resp *ResponseBuilder) WithContent(body []byte) *ResponseBuilder {
	resp.contentKind = ContentStatic
	resp.contentProducer = func(ctx context.Context) (io.Reader, error) {
		return bytes.NewReader(body), nil
	}
	return resp
}

// WithJSONContent marshals v at registration time and installs it as a
// static body with a JSON media type.
func (resp *ResponseBuilder) WithJSONContent(v any) *ResponseBuilder {
	b, err := json.Marshal(v)
	if err != nil {
		resp.buildErr = contracts.NewFailure(contracts.BuilderMisuse, "content is not JSON-serializable").WithCause(err)
		return resp
	}
	resp.WithMediaType("application/json")
	return resp.WithContent(b)
}

// WithContentThunk installs a byte-thunk producer, regenerated on every
// dispatch of a reusable Recipe (spec.md §5 "Thunk freshness").
func (resp *ResponseBuilder) WithContentThunk(thunk func(ctx context.Context) ([]byte, error)) *ResponseBuilder {
	resp.contentKind = ContentThunk
	resp.contentProducer = func(ctx context.Context) (io.Reader, error) {
		b, err := thunk(ctx)
		if err != nil {
			return nil, err
		}
		return bytes.NewReader(b), nil
	}
	return resp
}

// WithContentStream installs a stream-thunk producer: open opens a fresh
// stream on every dispatch, never memoized (spec.md §9 "Streaming
// bodies").
func (resp *ResponseBuilder) WithContentStream(open func(ctx context.Context) (io.Reader, error)) *ResponseBuilder {
	resp.contentKind = ContentStream
	resp.contentProducer = open
	return resp
}

// WithPreDispatchCallback sets the callback invoked before synthesis
// (spec.md §4.5 step 4).
func (resp *ResponseBuilder) WithPreDispatchCallback(cb contracts.PreDispatchCallback) *ResponseBuilder {
	resp.preDispatch = cb
	return resp
}

// Reusable sets whether this Recipe may dispatch more than once (spec.md
// §3 "Reusable flag"); default true (set by NewBuilder).
func (resp *ResponseBuilder) Reusable(reusable bool) *ResponseBuilder {
	resp.reusable = reusable
	return resp
}

// MustBeMatched opts this Recipe into Registry.Verify's unmatched-recipe
// check (SPEC_FULL.md §4).
func (resp *ResponseBuilder) MustBeMatched() *ResponseBuilder {
	resp.mustBeMatched = true
	return resp
}

// WithUserData attaches opaque data retrievable from the Recipe during a
// callback (spec.md §3 "User data").
func (resp *ResponseBuilder) WithUserData(key string, value any) *ResponseBuilder {
	if resp.userData == nil {
		resp.userData = make(map[string]any)
	}
	resp.userData[key] = value
	return resp
}

// ── Snapshot & registration ─────────────────────────────────

func normalizeMethod(method string) string {
	if method == "" {
		return "GET"
	}
	if method == canon.Any {
		return canon.Any
	}
	return strings.ToUpper(method)
}

func orAny(s string) string {
	if s == "" {
		return canon.Any
	}
	return s
}

func cloneUserData(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// snapshot freezes the Builder's current state into a new *Recipe (spec.md
// §4.2 "Construction contract", §8 "Registration snapshot"). Mutable
// collections (headers, user data) are deep-copied; thunks and callbacks
// are kept as opaque references — the user owns their closures' state
// (spec.md §9).
func (b *Builder) snapshot() (*Recipe, error) {
	if b.buildErr != nil {
		return nil, b.buildErr
	}

	rec := &Recipe{
		id:                   uuid.New(),
		priority:             b.priority,
		hasPriority:          b.hasPriority,
		status:               b.status,
		reason:               b.reason,
		protoVersion:         b.protoVersion,
		responseHeaders:      b.responseHeaders.Clone(),
		responseHeadersThunk: b.responseHeadersThunk,
		contentHeaders:       b.contentHeaders.Clone(),
		contentHeadersThunk:  b.contentHeadersThunk,
		contentKind:          b.contentKind,
		contentProducer:      b.contentProducer,
		preDispatch:          b.preDispatch,
		reusable:             b.reusable,
		mustBeMatched:        b.mustBeMatched,
		userData:             cloneUserData(b.userData),
	}

	if b.usePredicate {
		subs := append([]contracts.Matcher{matcher.Predicate(b.predicate)}, b.subMatchers...)
		rec.matcher = matcher.MatchAll(subs)
		rec.hasCanonicalKey = false
		return rec, nil
	}

	rec.canonicalKey = canon.Key{
		Method:    normalizeMethod(b.method),
		Scheme:    canon.NormalizeScheme(orAny(b.scheme)),
		Host:      canon.NormalizeHost(orAny(b.host)),
		Port:      canon.NormalizePort(b.scheme, b.port),
		Path:      canon.NormalizePath(orAny(b.path)),
		Query:     orAny(b.query),
		QueryMode: b.queryMode,
	}
	rec.hasCanonicalKey = true
	rec.matcher = matcher.MatchAll(b.subMatchers)
	return rec, nil
}

// RegisterWith snapshots the Builder's current state into a Recipe and
// installs it into reg, then returns the Builder so further chained
// registrations can reuse it for another host (spec.md §4.3
// "registerWith(registry)").
func (b *Builder) RegisterWith(reg registerer) (*Builder, error) {
	rec, err := b.snapshot()
	if err != nil {
		return b, err
	}
	if rec.hasCanonicalKey {
		reg.Register(rec)
	} else {
		reg.RegisterPredicate(rec)
	}
	return b, nil
}

// Package canon implements the canonical-key normalization rules from
// spec.md §3: scheme/host lower-casing, port defaulting, percent-decoded
// path canonicalization, and the verbatim-vs-parameter-set query
// comparison styles.
package canon

import (
	"net/url"
	"sort"
	"strings"

	"github.com/patchwire/intercept/pkg/models"
)

// Any is the sentinel meaning "matches any value for this field". It is
// chosen to be unrepresentable as a real scheme/host/port/path/query
// value so it can never collide with user data.
const Any = "\x00any\x00"

// QueryMode selects how a Key's Query field is interpreted.
type QueryMode int

const (
	// Verbatim compares the query string byte-for-byte.
	Verbatim QueryMode = iota
	// ParamSet compares the query string as an unordered set of k=v
	// pairs.
	ParamSet
)

// Key is a Recipe's canonical index tuple (spec.md §3). Any field may be
// the Any sentinel, meaning that field is unconstrained.
type Key struct {
	Method, Scheme, Host, Port, Path, Query string
	QueryMode                               QueryMode
}

// defaultPort returns the scheme's conventional port.
func defaultPort(scheme string) string {
	switch strings.ToLower(scheme) {
	case "https":
		return "443"
	case "http":
		return "80"
	default:
		return ""
	}
}

// NormalizeScheme lower-cases a scheme, leaving Any untouched.
func NormalizeScheme(scheme string) string {
	if scheme == Any {
		return Any
	}
	return strings.ToLower(scheme)
}

// NormalizeHost lower-cases a host, leaving Any untouched.
func NormalizeHost(host string) string {
	if host == Any {
		return Any
	}
	return strings.ToLower(host)
}

// NormalizePort fills in the scheme's default port when port is empty,
// leaving Any untouched.
func NormalizePort(scheme, port string) string {
	if port == Any {
		return Any
	}
	if port == "" {
		return defaultPort(scheme)
	}
	return port
}

// NormalizePath percent-decodes the path with url.PathUnescape, which
// decodes every escaped octet, reserved ones such as %2F included (a path
// that fails to decode is kept as given), then ensures exactly one leading
// slash. Any is left untouched.
func NormalizePath(path string) string {
	if path == Any {
		return Any
	}
	if decoded, err := url.PathUnescape(path); err == nil {
		path = decoded
	}
	if path == "" {
		return "/"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	for strings.HasPrefix(path, "//") {
		path = path[1:]
	}
	return path
}

// SortedQuery re-renders a raw query string as a canonical, order-
// independent form: pairs sorted by key then value, joined with "&". Used
// for ParamSet comparisons so "b=2&a=1" and "a=1&b=2" compare equal.
func SortedQuery(raw string) string {
	values, err := url.ParseQuery(raw)
	if err != nil {
		return raw
	}
	pairs := make([]string, 0, len(values))
	for k, vs := range values {
		for _, v := range vs {
			pairs = append(pairs, k+"="+v)
		}
	}
	sort.Strings(pairs)
	return strings.Join(pairs, "&")
}

// RequestQuery renders req's query the way k expects it compared, so that
// CompatibleWith can do a plain string comparison regardless of the Key's
// QueryMode.
func RequestQuery(mode QueryMode, rawQuery string) string {
	if mode == ParamSet {
		return SortedQuery(rawQuery)
	}
	return rawQuery
}

// CompatibleWith reports whether k accepts req: every non-Any field of k
// must equal req's corresponding (normalized) field.
func (k Key) CompatibleWith(req *models.Request) bool {
	if k.Method != Any && !strings.EqualFold(k.Method, req.Method) {
		return false
	}
	if k.Scheme != Any && k.Scheme != NormalizeScheme(req.Scheme) {
		return false
	}
	if k.Host != Any && k.Host != NormalizeHost(req.Host) {
		return false
	}
	if k.Port != Any && k.Port != NormalizePort(req.Scheme, req.Port) {
		return false
	}
	if k.Path != Any && k.Path != NormalizePath(req.Path) {
		return false
	}
	if k.Query != Any && k.Query != RequestQuery(k.QueryMode, req.Query) {
		return false
	}
	return true
}

// Specificity counts the non-Any fields in k — used to rank two canonical
// entries in the same scope layer that both match the same request (see
// DESIGN.md, "Additional resolved ambiguity").
func (k Key) Specificity() int {
	n := 0
	for _, f := range []string{k.Method, k.Scheme, k.Host, k.Port, k.Path, k.Query} {
		if f != Any {
			n++
		}
	}
	return n
}

// Equal reports whether two Keys are the exact same tuple (used to decide
// whether a new canonical registration overwrites a prior one within the
// same scope layer, spec.md §4.4).
func (k Key) Equal(other Key) bool {
	return k == other
}

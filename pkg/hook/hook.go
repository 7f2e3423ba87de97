// Package hook adapts the dispatch core to Go's net/http extension seam
// (spec.md §4.6): Hook implements http.RoundTripper the same way
// basecamp-sdk's internal testing Registry does, so installing
// interception into any *http.Client is a one-line WithTransport-style
// swap.
package hook

import (
	"bytes"
	"io"
	"net/http"
	"strconv"

	"github.com/patchwire/intercept/internal/dispatch"
	"github.com/patchwire/intercept/internal/registry"
	"github.com/patchwire/intercept/pkg/models"
)

// Hook has no state beyond a reference to the Registry (spec.md §4.6): it
// is a thin translation layer, not a second source of truth.
type Hook struct {
	dispatcher *dispatch.Dispatcher
}

// New builds a Hook dispatching against reg.
func New(reg *registry.Registry) *Hook {
	return &Hook{dispatcher: dispatch.New(reg)}
}

// Handle is the core sink the spec calls "handle(request) → response"
// (spec.md §4.6), operating on this module's own Request/Response types
// rather than net/http's.
func (h *Hook) Handle(req *models.Request) (*models.Response, error) {
	return h.dispatcher.Dispatch(req.Ctx, req)
}

// RoundTrip implements http.RoundTripper, letting a Hook be installed
// directly as an *http.Client's Transport.
func (h *Hook) RoundTrip(r *http.Request) (*http.Response, error) {
	req, err := fromHTTPRequest(r)
	if err != nil {
		return nil, err
	}

	resp, err := h.dispatcher.Dispatch(r.Context(), req)
	if err != nil {
		return nil, err
	}
	return toHTTPResponse(resp, r), nil
}

// Client returns an *http.Client whose Transport is this Hook.
func (h *Hook) Client() *http.Client {
	return &http.Client{Transport: h}
}

func fromHTTPRequest(r *http.Request) (*models.Request, error) {
	headers := models.NewHeaders()
	for k, v := range r.Header {
		headers.Set(k, v...)
	}

	var body io.Reader
	if r.Body != nil {
		b, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, err
		}
		r.Body = io.NopCloser(bytes.NewReader(b))
		body = bytes.NewReader(b)
	}

	port := r.URL.Port()
	return models.NewRequest(r.Context(), r.Method, r.URL.Scheme, r.URL.Hostname(), port, r.URL.Path, r.URL.RawQuery, headers, body), nil
}

func toHTTPResponse(resp *models.Response, r *http.Request) *http.Response {
	header := make(http.Header)
	for k, v := range resp.MessageHeaders {
		header[httpCanonicalKey(k)] = append(header[httpCanonicalKey(k)], v...)
	}
	for k, v := range resp.EntityHeaders {
		header[httpCanonicalKey(k)] = append(header[httpCanonicalKey(k)], v...)
	}

	var bodyReader io.ReadCloser
	if resp.Entity != nil {
		bodyReader = io.NopCloser(resp.Entity)
	} else {
		bodyReader = io.NopCloser(bytes.NewReader(nil))
	}

	status := resp.Status
	reason := resp.Reason
	if reason == "" {
		reason = http.StatusText(status)
	}

	return &http.Response{
		Status:        strconv.Itoa(status) + " " + reason,
		StatusCode:    status,
		Proto:         protoOrDefault(resp.ProtoVersion),
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          bodyReader,
		Request:       r,
		ContentLength: -1,
	}
}

func protoOrDefault(version string) string {
	if version == "" {
		return "HTTP/1.1"
	}
	return version
}

// httpCanonicalKey renders a lower-cased internal header name the way
// net/http.Header expects it (e.g. "content-type" -> "Content-Type").
func httpCanonicalKey(key string) string {
	return http.CanonicalHeaderKey(key)
}

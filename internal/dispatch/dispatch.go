// Package dispatch implements the per-request state machine from spec.md
// §4.5: lookup, pre-dispatch callback, synthesis, registry-level
// mutation, and consumption of non-reusable recipes, wrapped in an
// OpenTelemetry span and Prometheus counters the way
// internal/telemetry.Init wires tracing for the rest of this codebase's
// teacher lineage.
package dispatch

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/patchwire/intercept/internal/registry"
	"github.com/patchwire/intercept/pkg/contracts"
	"github.com/patchwire/intercept/pkg/models"
)

var tracer = otel.Tracer("github.com/patchwire/intercept/internal/dispatch")

// Dispatcher runs the dispatch algorithm against a single Registry.
type Dispatcher struct {
	reg *registry.Registry
}

// New builds a Dispatcher bound to reg.
func New(reg *registry.Registry) *Dispatcher {
	return &Dispatcher{reg: reg}
}

// Dispatch resolves req against the bound Registry and returns the
// synthesized response, or a *contracts.Failure describing why none
// could be produced (spec.md §4.5, §7).
func (d *Dispatcher) Dispatch(ctx context.Context, req *models.Request) (*models.Response, error) {
	ctx, span := tracer.Start(ctx, "intercept.dispatch")
	defer span.End()

	start := time.Now()
	outcome := "matched"
	defer func() {
		dispatchDuration.Observe(time.Since(start).Seconds())
		dispatchTotal.WithLabelValues(outcome).Inc()
	}()

	fail := func(err error) (*models.Response, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	if req.Cancelled() {
		outcome = "cancelled"
		return fail(contracts.NewFailure(contracts.Cancelled, "request already cancelled before dispatch"))
	}

	rec, found := d.reg.Lookup(req)
	d.reg.RecordDispatch(req, rec, found)

	if !found {
		outcome = "unmatched"
		if fn := d.reg.OnMissingRecipe(); fn != nil {
			if resp, ok := fn(ctx, req); ok {
				return d.finish(resp), nil
			}
		}
		if d.reg.ThrowOnUnmatched() {
			return fail(contracts.NewFailure(contracts.UnmatchedRequest, "no recipe matched the request").
				WithDetail("method", req.Method).
				WithDetail("host", req.Host).
				WithDetail("path", req.Path))
		}
		// Permissive mode: the legacy sentinel empty response (spec.md
		// §4.5 step 3).
		return d.finish(&models.Response{
			Status:         200,
			MessageHeaders: models.NewHeaders(),
			EntityHeaders:  models.NewHeaders(),
		}), nil
	}

	span.SetAttributes(attribute.String("intercept.recipe_id", rec.ID().String()))

	if cb := rec.PreDispatch(); cb != nil {
		if err := runCancellable(ctx, req, cb); err != nil {
			outcome = outcomeFor(err)
			return fail(err)
		}
	}

	resp, err := rec.Synthesize(ctx)
	if err != nil {
		outcome = "callback_failure"
		return fail(contracts.NewFailure(contracts.UserCallbackFailure, "response synthesis failed").WithCause(err))
	}

	if req.Cancelled() {
		outcome = "cancelled"
		return fail(contracts.NewFailure(contracts.Cancelled, "request cancelled during dispatch"))
	}

	rec.MarkMatched()
	if !rec.Reusable() {
		d.reg.Deregister(rec)
	}

	return d.finish(resp), nil
}

// finish applies the registry-level response mutator, if any (spec.md
// §4.5 step 6), uniformly across every response this dispatcher returns.
func (d *Dispatcher) finish(resp *models.Response) *models.Response {
	if mutate := d.reg.ResponseMutator(); mutate != nil {
		mutate(resp)
	}
	return resp
}

// runCancellable awaits cb, racing it against ctx's cancellation signal
// so a callback that never returns cannot hang dispatch forever (spec.md
// §4.5 "Suspension points", §5 "Cancellation").
func runCancellable(ctx context.Context, req *models.Request, cb contracts.PreDispatchCallback) error {
	done := make(chan error, 1)
	go func() {
		done <- cb(ctx, req)
	}()
	select {
	case err := <-done:
		if err != nil {
			if ctx.Err() != nil {
				return contracts.NewFailure(contracts.Cancelled, "request cancelled during pre-dispatch callback").WithCause(ctx.Err())
			}
			return contracts.NewFailure(contracts.UserCallbackFailure, "pre-dispatch callback failed").WithCause(err)
		}
		return nil
	case <-ctx.Done():
		return contracts.NewFailure(contracts.Cancelled, "request cancelled during pre-dispatch callback").WithCause(ctx.Err())
	}
}

func outcomeFor(err error) string {
	if contracts.IsKind(err, contracts.Cancelled) {
		return "cancelled"
	}
	return "callback_failure"
}

// Package reconcile applies a changed definition to the orchestration
// service with a create, then update-on-conflict, protocol.
package reconcile

import (
	"context"
	"slices"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/zjrosen/flowsync/internal/definition"
	"github.com/zjrosen/flowsync/internal/log"
	"github.com/zjrosen/flowsync/internal/metrics"
	"github.com/zjrosen/flowsync/internal/remote"
	"github.com/zjrosen/flowsync/internal/tracing"
)

// DefaultDelay is the pause after every remote call.
const DefaultDelay = time.Second

var (
	// SuccessStatuses end a create or update successfully.
	SuccessStatuses = []int{200, 201}
	// DefaultUpdateStatuses on create mean the flow already exists.
	DefaultUpdateStatuses = []int{409, 422}
)

// Action is what a successful reconciliation did remotely.
type Action string

const (
	Created Action = "created"
	Updated Action = "updated"
)

type (
	// Flows is the remote API surface the reconciler drives.
	Flows interface {
		Create(ctx context.Context, def *definition.Definition) (remote.Response, error)
		Update(ctx context.Context, ref definition.Ref, def *definition.Definition) (remote.Response, error)
	}

	// Sleeper pauses between remote calls. It returns early when ctx is done.
	Sleeper func(ctx context.Context, d time.Duration)

	// Options configures a Reconciler.
	Options struct {
		Delay          time.Duration
		UpdateStatuses []int
		Sleep          Sleeper
		Metrics        metrics.Recorder
		Tracer         trace.Tracer
	}

	// Reconciler performs create-or-update for one definition at a time.
	Reconciler struct {
		flows          Flows
		delay          time.Duration
		updateStatuses []int
		sleep          Sleeper
		metrics        metrics.Recorder
		tracer         trace.Tracer
	}

	// Result describes a successful reconciliation.
	Result struct {
		Action Action
		Ref    definition.Ref
		Status int
		Calls  int
	}
)

// New returns a Reconciler. A negative delay is treated as zero; nil
// UpdateStatuses fall back to DefaultUpdateStatuses.
func New(flows Flows, opts Options) *Reconciler {
	r := &Reconciler{
		flows:          flows,
		delay:          max(opts.Delay, 0),
		updateStatuses: opts.UpdateStatuses,
		sleep:          opts.Sleep,
		metrics:        opts.Metrics,
		tracer:         tracing.OrNoop(opts.Tracer),
	}
	if r.updateStatuses == nil {
		r.updateStatuses = DefaultUpdateStatuses
	}
	if r.sleep == nil {
		r.sleep = ContextSleep
	}
	if r.metrics == nil {
		r.metrics = metrics.Discard
	}
	return r
}

// ContextSleep waits for d or until ctx is done.
func ContextSleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

// Reconcile creates def remotely, falling back to an update addressed at
// def's (namespace, id) when the create reports the flow already exists.
// There is no retry: a failure leaves the caller's cache untouched so the
// next pass tries again. Any error is a *RemoteFailure.
func (r *Reconciler) Reconcile(ctx context.Context, def *definition.Definition) (Result, error) {
	ref := def.Ref()

	resp, err := r.call(ctx, OpCreate, ref, func(ctx context.Context) (remote.Response, error) {
		return r.flows.Create(ctx, def)
	})
	if err != nil {
		return Result{Ref: ref, Calls: 1}, &RemoteFailure{Op: OpCreate, RequestID: resp.RequestID, Err: err}
	}
	if isSuccess(resp.Status) {
		log.Info(log.CatRemote, "flow created", "flow", ref.String(), "status", resp.Status)
		return Result{Action: Created, Ref: ref, Status: resp.Status, Calls: 1}, nil
	}
	if !slices.Contains(r.updateStatuses, resp.Status) {
		return Result{Ref: ref, Status: resp.Status, Calls: 1}, &RemoteFailure{
			Op: OpCreate, Status: resp.Status, Body: resp.Body, RequestID: resp.RequestID,
		}
	}

	log.Debug(log.CatRemote, "flow exists, updating", "flow", ref.String(), "create_status", resp.Status)

	resp, err = r.call(ctx, OpUpdate, ref, func(ctx context.Context) (remote.Response, error) {
		return r.flows.Update(ctx, ref, def)
	})
	if err != nil {
		return Result{Ref: ref, Calls: 2}, &RemoteFailure{Op: OpUpdate, RequestID: resp.RequestID, Err: err}
	}
	if !isSuccess(resp.Status) {
		return Result{Ref: ref, Status: resp.Status, Calls: 2}, &RemoteFailure{
			Op: OpUpdate, Status: resp.Status, Body: resp.Body, RequestID: resp.RequestID,
		}
	}

	log.Info(log.CatRemote, "flow updated", "flow", ref.String(), "status", resp.Status)
	return Result{Action: Updated, Ref: ref, Status: resp.Status, Calls: 2}, nil
}

// call runs one remote request inside a span, records metrics and then
// applies the inter-request delay regardless of the outcome.
func (r *Reconciler) call(
	ctx context.Context, op Op, ref definition.Ref,
	fn func(context.Context) (remote.Response, error),
) (remote.Response, error) {
	name := tracing.SpanRemoteCreate
	if op == OpUpdate {
		name = tracing.SpanRemoteUpdate
	}
	spanCtx, span := tracing.Start(ctx, r.tracer, name,
		attribute.String(tracing.AttrFlowNamespace, ref.Namespace),
		attribute.String(tracing.AttrFlowID, ref.ID),
	)

	resp, err := fn(spanCtx)

	status := "error"
	if err == nil {
		status = strconv.Itoa(resp.Status)
		span.SetAttributes(attribute.Int(tracing.AttrHTTPStatus, resp.Status))
		if !isSuccess(resp.Status) && !(op == OpCreate && slices.Contains(r.updateStatuses, resp.Status)) {
			tracing.Fail(span, &RemoteFailure{Op: op, Status: resp.Status, Body: resp.Body})
		}
	} else {
		tracing.Fail(span, err)
	}
	if resp.RequestID != "" {
		span.SetAttributes(attribute.String(tracing.AttrRequestID, resp.RequestID))
	}
	span.End()

	r.metrics.Count(metrics.RemoteRequest, 1,
		metrics.Tag(metrics.TagOp, op), metrics.Tag(metrics.TagStatus, status))
	if resp.Duration > 0 {
		r.metrics.Timing(metrics.RemoteLatency, resp.Duration, metrics.Tag(metrics.TagOp, op))
	}

	r.sleep(ctx, r.delay)
	return resp, err
}

func isSuccess(status int) bool {
	return slices.Contains(SuccessStatuses, status)
}

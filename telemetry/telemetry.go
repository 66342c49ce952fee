// Package telemetry bridges machine observability notifications into
// OpenTelemetry traces. Each notification becomes a short span carrying
// the machine name and the relevant state/event attributes, so a machine
// embedded in a larger request flow shows up in the same trace view.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/asytsai/finny"
)

const scopeName = "github.com/asytsai/finny/telemetry"

// Inspector emits one span per machine notification. It is safe to share
// across machines; the machine name is attached as a span attribute.
type Inspector struct {
	tracer trace.Tracer
	table  *finny.TransitionTable
}

var _ finny.Inspector = (*Inspector)(nil)

// NewInspector builds an Inspector on the given tracer provider. A nil
// provider falls back to the global one. The table, when provided, is
// used to resolve state and event names for span attributes; without it
// only numeric identifiers are recorded.
func NewInspector(tp trace.TracerProvider, table *finny.TransitionTable) *Inspector {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &Inspector{
		tracer: tp.Tracer(scopeName),
		table:  table,
	}
}

func (i *Inspector) span(name string, attrs ...attribute.KeyValue) {
	_, span := i.tracer.Start(context.Background(), name,
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(attrs...))
	span.End()
}

func (i *Inspector) stateAttr(key string, id finny.StateID) attribute.KeyValue {
	if i.table != nil {
		if name := i.table.StateName(id); name != "" {
			return attribute.String(key, name)
		}
	}
	return attribute.Int(key, int(id))
}

func (i *Inspector) eventAttr(evt finny.Event) attribute.KeyValue {
	if i.table != nil {
		if name := i.table.EventName(evt.ID); name != "" {
			return attribute.String("fsm.event", name)
		}
	}
	return attribute.Int("fsm.event", int(evt.ID))
}

func (i *Inspector) QueuePushed(machine string, evt finny.Event) {
	i.span("fsm.queue.push",
		attribute.String("fsm.machine", machine),
		i.eventAttr(evt))
}

func (i *Inspector) GuardEvaluated(machine string, region finny.RegionID, evt finny.Event, from, to finny.StateID, result bool) {
	i.span("fsm.guard",
		attribute.String("fsm.machine", machine),
		attribute.Int("fsm.region", int(region)),
		i.eventAttr(evt),
		i.stateAttr("fsm.from", from),
		i.stateAttr("fsm.to", to),
		attribute.Bool("fsm.guard.result", result))
}

func (i *Inspector) ActionExecuted(machine string, region finny.RegionID, evt finny.Event, from, to finny.StateID) {
	i.span("fsm.action",
		attribute.String("fsm.machine", machine),
		attribute.Int("fsm.region", int(region)),
		i.eventAttr(evt),
		i.stateAttr("fsm.from", from),
		i.stateAttr("fsm.to", to))
}

func (i *Inspector) StateExited(machine string, region finny.RegionID, state finny.StateID, evt finny.Event) {
	i.span("fsm.state.exit",
		attribute.String("fsm.machine", machine),
		attribute.Int("fsm.region", int(region)),
		i.stateAttr("fsm.state", state),
		i.eventAttr(evt))
}

func (i *Inspector) StateEntered(machine string, region finny.RegionID, state finny.StateID, evt finny.Event) {
	i.span("fsm.state.enter",
		attribute.String("fsm.machine", machine),
		attribute.Int("fsm.region", int(region)),
		i.stateAttr("fsm.state", state),
		i.eventAttr(evt))
}

func (i *Inspector) TimerArmed(machine string, state finny.StateID, d time.Duration) {
	i.span("fsm.timer.arm",
		attribute.String("fsm.machine", machine),
		i.stateAttr("fsm.state", state),
		attribute.Int64("fsm.timer.ms", d.Milliseconds()))
}

func (i *Inspector) TimerDisarmed(machine string, state finny.StateID) {
	i.span("fsm.timer.disarm",
		attribute.String("fsm.machine", machine),
		i.stateAttr("fsm.state", state))
}

func (i *Inspector) EventUnhandled(machine string, region finny.RegionID, evt finny.Event, reason finny.UnhandledReason) {
	i.span("fsm.event.unhandled",
		attribute.String("fsm.machine", machine),
		attribute.Int("fsm.region", int(region)),
		i.eventAttr(evt),
		attribute.String("fsm.reason", reason.String()))
}

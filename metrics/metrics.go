// Package metrics exposes machine activity as Prometheus collectors. One
// Inspector can serve any number of machines; series are partitioned by
// the machine label.
package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/asytsai/finny"
)

// Inspector counts machine notifications. Construct one per registry and
// attach it to every Dispatcher whose activity should be visible.
type Inspector struct {
	queuePushed   *prometheus.CounterVec
	guards        *prometheus.CounterVec
	actions       *prometheus.CounterVec
	statesEntered *prometheus.CounterVec
	statesExited  *prometheus.CounterVec
	timersArmed   *prometheus.CounterVec
	timersStopped *prometheus.CounterVec
	unhandled     *prometheus.CounterVec
}

var _ finny.Inspector = (*Inspector)(nil)

// NewInspector registers the collectors with the given registerer. A nil
// registerer uses prometheus.DefaultRegisterer.
func NewInspector(reg prometheus.Registerer) *Inspector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Inspector{
		queuePushed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fsm_queue_pushed_total",
			Help: "Events accepted into the machine queue.",
		}, []string{"machine"}),
		guards: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fsm_guards_evaluated_total",
			Help: "Guard evaluations, partitioned by outcome.",
		}, []string{"machine", "result"}),
		actions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fsm_actions_executed_total",
			Help: "Transition actions executed.",
		}, []string{"machine"}),
		statesEntered: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fsm_states_entered_total",
			Help: "State entries, external transitions and start included.",
		}, []string{"machine"}),
		statesExited: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fsm_states_exited_total",
			Help: "State exits, external transitions and stop included.",
		}, []string{"machine"}),
		timersArmed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fsm_timers_armed_total",
			Help: "State timers armed on entry.",
		}, []string{"machine"}),
		timersStopped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fsm_timers_disarmed_total",
			Help: "State timers cancelled before expiry.",
		}, []string{"machine"}),
		unhandled: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fsm_events_unhandled_total",
			Help: "Events consumed without effect, partitioned by reason.",
		}, []string{"machine", "reason"}),
	}
}

func (m *Inspector) QueuePushed(machine string, evt finny.Event) {
	m.queuePushed.WithLabelValues(machine).Inc()
}

func (m *Inspector) GuardEvaluated(machine string, region finny.RegionID, evt finny.Event, from, to finny.StateID, result bool) {
	m.guards.WithLabelValues(machine, strconv.FormatBool(result)).Inc()
}

func (m *Inspector) ActionExecuted(machine string, region finny.RegionID, evt finny.Event, from, to finny.StateID) {
	m.actions.WithLabelValues(machine).Inc()
}

func (m *Inspector) StateExited(machine string, region finny.RegionID, state finny.StateID, evt finny.Event) {
	m.statesExited.WithLabelValues(machine).Inc()
}

func (m *Inspector) StateEntered(machine string, region finny.RegionID, state finny.StateID, evt finny.Event) {
	m.statesEntered.WithLabelValues(machine).Inc()
}

func (m *Inspector) TimerArmed(machine string, state finny.StateID, d time.Duration) {
	m.timersArmed.WithLabelValues(machine).Inc()
}

func (m *Inspector) TimerDisarmed(machine string, state finny.StateID) {
	m.timersStopped.WithLabelValues(machine).Inc()
}

func (m *Inspector) EventUnhandled(machine string, region finny.RegionID, evt finny.Event, reason finny.UnhandledReason) {
	m.unhandled.WithLabelValues(machine, reason.String()).Inc()
}

// Package metrics exports auth activity as Prometheus counters.
package metrics

import (
	"context"
	"fmt"
	"strings"

	"github.com/habit-tracker/go-auth"
	"github.com/prometheus/client_golang/prometheus"
)

var _ auth.ActivitySink = (*PrometheusSink)(nil)

// PrometheusSink is an auth.ActivitySink counting events by type and session
// state changes by edge.
type PrometheusSink struct {
	events      *prometheus.CounterVec
	transitions *prometheus.CounterVec
}

// NewPrometheusSink creates the counters and registers them on reg.
func NewPrometheusSink(reg prometheus.Registerer) *PrometheusSink {
	s := &PrometheusSink{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "habit_auth_events_total",
			Help: "Authentication activity events by type.",
		}, []string{"event"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "habit_auth_session_transitions_total",
			Help: "Session state changes by source and target state.",
		}, []string{"from", "to"}),
	}

	reg.MustRegister(s.events, s.transitions)
	return s
}

// Record implements auth.ActivitySink.
func (s *PrometheusSink) Record(_ context.Context, event auth.ActivityEvent) error {
	s.events.WithLabelValues(string(event.EventType)).Inc()
	if event.EventType == auth.ActivityEventSessionStateChanged {
		s.transitions.WithLabelValues(event.FromState.String(), event.ToState.String()).Inc()
	}
	return nil
}

// Counters gathers every counter from g keyed by name and labels, for
// example habit_auth_events_total{event="auth.logout"}.
func Counters(g prometheus.Gatherer) (map[string]float64, error) {
	families, err := g.Gather()
	if err != nil {
		return nil, err
	}

	out := map[string]float64{}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			if m.GetCounter() == nil {
				continue
			}
			labels := make([]string, 0, len(m.GetLabel()))
			for _, label := range m.GetLabel() {
				labels = append(labels, fmt.Sprintf("%s=%q", label.GetName(), label.GetValue()))
			}
			key := mf.GetName()
			if len(labels) > 0 {
				key += "{" + strings.Join(labels, ",") + "}"
			}
			out[key] = m.GetCounter().GetValue()
		}
	}
	return out, nil
}

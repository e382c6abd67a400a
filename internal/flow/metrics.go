// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

package flow

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the Prometheus instruments exported by the flow-table
// core: packet dispositions broken out by reason, traps broken out by
// reason, and gauges tracking the backpressure signal.
type Metrics struct {
	Drops     *prometheus.CounterVec
	Traps     *prometheus.CounterVec
	Forwarded prometheus.Counter
	NAT       prometheus.Counter

	HoldCount   prometheus.Gauge
	ActionCount prometheus.Counter

	TableEntries prometheus.Gauge
	OverflowEntries prometheus.Gauge
}

// NewMetrics builds the instrument set and registers it against reg. A nil
// reg is accepted (used by tests and the CLI's non-serving code paths):
// the instruments are still created, just never scraped.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Drops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vrflow_flow_drops_total",
			Help: "Packets freed by the flow core, broken out by reason.",
		}, []string{"reason"}),
		Traps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vrflow_flow_traps_total",
			Help: "Packet copies delivered to the agent, broken out by reason.",
		}, []string{"reason"}),
		Forwarded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vrflow_flow_forwarded_total",
			Help: "Packets dispatched via the forward action.",
		}),
		NAT: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vrflow_flow_nat_total",
			Help: "Packets dispatched via the NAT action.",
		}),
		HoldCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vrflow_flow_unresolved_holds",
			Help: "Approximate count of entries awaiting an agent decision.",
		}),
		ActionCount: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "vrflow_flow_action_count_total",
			Help: "Number of Hold entries resolved to a concrete action by the control plane.",
		}),
		TableEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vrflow_flow_table_primary_entries",
			Help: "Configured primary table size.",
		}),
		OverflowEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vrflow_flow_table_overflow_entries",
			Help: "Configured overflow table size.",
		}),
	}

	if reg != nil {
		reg.MustRegister(m.Drops, m.Traps, m.Forwarded, m.NAT, m.HoldCount,
			m.ActionCount, m.TableEntries, m.OverflowEntries)
	}
	return m
}

func (m *Metrics) recordDrop(reason DropReason) {
	m.Drops.WithLabelValues(reason.String()).Inc()
}

func (m *Metrics) recordTrap(reason TrapReason) {
	m.Traps.WithLabelValues(reason.String()).Inc()
}

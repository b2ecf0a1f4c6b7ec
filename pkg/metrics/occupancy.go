package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Reconciler effect labels.
const (
	EffectIncrement = "increment"
	EffectDecrement = "decrement"
	EffectNone      = "none"
)

// Sweep step and outcome labels.
const (
	SweepStepReminder = "reminder"
	SweepStepRisk     = "risk"

	SweepOutcomeApplied = "applied"
	SweepOutcomeSkipped = "skipped"
	SweepOutcomeFailed  = "failed"
)

// OccupancyMetrics tracks the occupancy engine: reconciler effects, capacity
// conflicts, missing beds, drift found by recalculation and sweep outcomes.
type OccupancyMetrics struct {
	effects    *prometheus.CounterVec
	conflicts  prometheus.Counter
	bedMissing prometheus.Counter
	drift      *prometheus.CounterVec
	unassigned prometheus.Counter
	sweep      *prometheus.CounterVec
}

// NewOccupancyMetrics registers the occupancy collectors on reg. A nil
// registerer yields a no-op recorder.
func NewOccupancyMetrics(reg prometheus.Registerer) *OccupancyMetrics {
	if reg == nil {
		return &OccupancyMetrics{}
	}
	effects := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "occupancy",
		Name:      "reconcile_total",
		Help:      "Reconciler applications by occupancy effect.",
	}, []string{"effect"})
	conflicts := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "occupancy",
		Name:      "capacity_conflicts_total",
		Help:      "Increments rejected because the room was full.",
	})
	bedMissing := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "occupancy",
		Name:      "bed_missing_total",
		Help:      "Bed toggles skipped because the bed row was missing.",
	})
	drift := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "occupancy",
		Name:      "drift_corrections_total",
		Help:      "Rooms whose stored projection differed from the recalculated one.",
	}, []string{"kind"})
	unassigned := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "occupancy",
		Name:      "unassigned_holders_total",
		Help:      "Slot-holding reservations found without a bed during recalculation.",
	})
	sweep := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "reservations",
		Name:      "sweep_records_total",
		Help:      "Risk sweep record outcomes by step.",
	}, []string{"step", "outcome"})
	reg.MustRegister(effects, conflicts, bedMissing, drift, unassigned, sweep)
	return &OccupancyMetrics{
		effects:    effects,
		conflicts:  conflicts,
		bedMissing: bedMissing,
		drift:      drift,
		unassigned: unassigned,
		sweep:      sweep,
	}
}

// IncEffect counts one reconciler application.
func (m *OccupancyMetrics) IncEffect(effect string) {
	if m == nil || m.effects == nil {
		return
	}
	m.effects.WithLabelValues(normalizeLabel(effect)).Inc()
}

// IncConflict counts a rejected increment.
func (m *OccupancyMetrics) IncConflict() {
	if m == nil || m.conflicts == nil {
		return
	}
	m.conflicts.Inc()
}

// IncBedMissing counts a skipped bed toggle.
func (m *OccupancyMetrics) IncBedMissing() {
	if m == nil || m.bedMissing == nil {
		return
	}
	m.bedMissing.Inc()
}

// AddDrift records drift of the given kind ("occupancy" or "beds").
func (m *OccupancyMetrics) AddDrift(kind string, n int) {
	if m == nil || m.drift == nil || n <= 0 {
		return
	}
	m.drift.WithLabelValues(normalizeLabel(kind)).Add(float64(n))
}

// AddUnassigned records slot holders with no bed.
func (m *OccupancyMetrics) AddUnassigned(n int) {
	if m == nil || m.unassigned == nil || n <= 0 {
		return
	}
	m.unassigned.Add(float64(n))
}

// IncSweep counts one sweep record outcome.
func (m *OccupancyMetrics) IncSweep(step, outcome string) {
	if m == nil || m.sweep == nil {
		return
	}
	m.sweep.WithLabelValues(normalizeLabel(step), normalizeLabel(outcome)).Inc()
}

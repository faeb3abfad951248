package metrics

import "github.com/prometheus/client_golang/prometheus"

// InventoryMetrics counts allocation and reversal outcomes.
type InventoryMetrics struct {
	allocations *prometheus.CounterVec
	reversals   *prometheus.CounterVec
	shortfalls  prometheus.Counter
}

// NewInventoryMetrics registers allocation metrics on the provided registerer.
func NewInventoryMetrics(reg prometheus.Registerer) *InventoryMetrics {
	if reg == nil {
		return &InventoryMetrics{}
	}
	allocations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "inventory_allocations",
		Help: "FIFO allocation calls by outcome.",
	}, []string{"outcome"})
	reversals := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "inventory_reversals",
		Help: "Allocation reversal calls by outcome.",
	}, []string{"outcome"})
	shortfalls := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "inventory_allocation_shortfall_units",
		Help: "Units requested that no batch could supply.",
	})
	reg.MustRegister(allocations, reversals, shortfalls)
	return &InventoryMetrics{
		allocations: allocations,
		reversals:   reversals,
		shortfalls:  shortfalls,
	}
}

// IncAllocation counts one allocation call with the given outcome label.
func (m *InventoryMetrics) IncAllocation(outcome string) {
	if m == nil || m.allocations == nil {
		return
	}
	m.allocations.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// IncReversal counts one reversal call with the given outcome label.
func (m *InventoryMetrics) IncReversal(outcome string) {
	if m == nil || m.reversals == nil {
		return
	}
	m.reversals.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// AddShortfall records units that could not be allocated.
func (m *InventoryMetrics) AddShortfall(units int) {
	if m == nil || m.shortfalls == nil || units <= 0 {
		return
	}
	m.shortfalls.Add(float64(units))
}

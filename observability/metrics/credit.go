package metrics

import (
	"math/big"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// CreditMetrics tracks protocol operations, reputation movement and the loan
// book's pool counters.
type CreditMetrics struct {
	operations      *prometheus.CounterVec
	latency         *prometheus.HistogramVec
	reputationDelta *prometheus.CounterVec
	loans           *prometheus.CounterVec
	circleSlashes   prometheus.Counter
	poolLiquidity   prometheus.Gauge
	poolBorrowed    prometheus.Gauge
	poolInterest    prometheus.Gauge
}

var (
	creditOnce     sync.Once
	creditRegistry *CreditMetrics
)

func Credit() *CreditMetrics {
	creditOnce.Do(func() {
		creditRegistry = &CreditMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "credit_operations_total",
				Help: "Protocol operations by name and outcome.",
			}, []string{"operation", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "credit_operation_duration_seconds",
				Help:    "Latency of protocol operations including commit.",
				Buckets: prometheus.DefBuckets,
			}, []string{"operation"}),
			reputationDelta: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "credit_reputation_delta_points_total",
				Help: "Reputation points applied by direction.",
			}, []string{"direction"}),
			loans: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "credit_loans_total",
				Help: "Loan lifecycle transitions by kind.",
			}, []string{"kind"}),
			circleSlashes: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "credit_circle_slashes_total",
				Help: "Trust circles slashed after a default.",
			}),
			poolLiquidity: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "credit_pool_liquidity",
				Help: "Total liquidity deposited in the pool, in base units.",
			}),
			poolBorrowed: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "credit_pool_borrowed",
				Help: "Outstanding principal lent from the pool, in base units.",
			}),
			poolInterest: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "credit_pool_interest_earned",
				Help: "Accrued protocol fees not yet withdrawn, in base units.",
			}),
		}
		prometheus.MustRegister(
			creditRegistry.operations,
			creditRegistry.latency,
			creditRegistry.reputationDelta,
			creditRegistry.loans,
			creditRegistry.circleSlashes,
			creditRegistry.poolLiquidity,
			creditRegistry.poolBorrowed,
			creditRegistry.poolInterest,
		)
	})
	return creditRegistry
}

// ObserveOperation records the outcome and latency of a protocol call.
func (m *CreditMetrics) ObserveOperation(operation string, err error, d time.Duration) {
	if m == nil {
		return
	}
	if operation == "" {
		operation = "unknown"
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.operations.WithLabelValues(operation, outcome).Inc()
	m.latency.WithLabelValues(operation).Observe(d.Seconds())
}

func (m *CreditMetrics) ObserveReputationDelta(delta int64) {
	if m == nil || delta == 0 {
		return
	}
	if delta > 0 {
		m.reputationDelta.WithLabelValues("up").Add(float64(delta))
		return
	}
	m.reputationDelta.WithLabelValues("down").Add(float64(-delta))
}

// RecordLoan counts a lifecycle transition (originated, repaid, defaulted).
func (m *CreditMetrics) RecordLoan(kind string) {
	if m == nil {
		return
	}
	m.loans.WithLabelValues(kind).Inc()
}

func (m *CreditMetrics) RecordSlash() {
	if m == nil {
		return
	}
	m.circleSlashes.Inc()
}

// SetPool publishes the pool counters.
func (m *CreditMetrics) SetPool(liquidity, borrowed, interest *big.Int) {
	if m == nil {
		return
	}
	m.poolLiquidity.Set(bigToFloat(liquidity))
	m.poolBorrowed.Set(bigToFloat(borrowed))
	m.poolInterest.Set(bigToFloat(interest))
}

func bigToFloat(value *big.Int) float64 {
	if value == nil {
		return 0
	}
	f, _ := new(big.Float).SetInt(value).Float64()
	return f
}

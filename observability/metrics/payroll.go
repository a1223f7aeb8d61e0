package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

type PayrollMetrics struct {
	depositsTotal  *prometheus.CounterVec
	claimsTotal    *prometheus.CounterVec
	claimsRejected *prometheus.CounterVec
}

var (
	payrollOnce     sync.Once
	payrollRegistry *PayrollMetrics
)

func Payroll() *PayrollMetrics {
	payrollOnce.Do(func() {
		payrollRegistry = &PayrollMetrics{
			depositsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "payroll_deposits_total",
				Help: "Count of registered payroll commitments by token.",
			}, []string{"token"}),
			claimsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "payroll_claims_total",
				Help: "Count of successful payouts by token.",
			}, []string{"token"}),
			claimsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "payroll_claims_rejected_total",
				Help: "Count of rejected claim attempts by reason.",
			}, []string{"reason"}),
		}
		prometheus.MustRegister(
			payrollRegistry.depositsTotal,
			payrollRegistry.claimsTotal,
			payrollRegistry.claimsRejected,
		)
	})
	return payrollRegistry
}

func (m *PayrollMetrics) ObserveDeposit(token string) {
	if m == nil {
		return
	}
	if token == "" {
		token = "unknown"
	}
	m.depositsTotal.WithLabelValues(token).Inc()
}

func (m *PayrollMetrics) ObserveClaim(token string) {
	if m == nil {
		return
	}
	if token == "" {
		token = "unknown"
	}
	m.claimsTotal.WithLabelValues(token).Inc()
}

func (m *PayrollMetrics) ObserveClaimRejected(reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "other"
	}
	m.claimsRejected.WithLabelValues(reason).Inc()
}

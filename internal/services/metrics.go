// internal/services/metrics.go
package services

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
)

// Metrics holds the workflow counters. A nil *Metrics records nothing.
type Metrics struct {
	licenseTransitions *prometheus.CounterVec
	chainsIssued       prometheus.Counter
	chainsDeactivated  prometheus.Counter
	issueCollisions    prometheus.Counter
	verifications      *prometheus.CounterVec
	checkoutLines      prometheus.Counter
	checkoutAmount     prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		licenseTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "imi_license_transitions_total",
			Help: "License application state transitions",
		}, []string{"status"}),
		chainsIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "imi_authorization_chains_issued_total",
			Help: "Authorization chains issued",
		}),
		chainsDeactivated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "imi_authorization_chains_deactivated_total",
			Help: "Authorization chains deactivated",
		}),
		issueCollisions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "imi_verification_code_collisions_total",
			Help: "Verification code collisions retried during issuance",
		}),
		verifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "imi_verifications_total",
			Help: "Verification lookups by outcome",
		}, []string{"valid"}),
		checkoutLines: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "imi_checkout_lines_total",
			Help: "Cart lines converted into product sale transactions",
		}),
		checkoutAmount: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "imi_checkout_amount_total",
			Help: "Gross amount of product sales",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.licenseTransitions,
			m.chainsIssued,
			m.chainsDeactivated,
			m.issueCollisions,
			m.verifications,
			m.checkoutLines,
			m.checkoutAmount,
		)
	}
	return m
}

func (m *Metrics) licenseTransition(status string) {
	if m != nil {
		m.licenseTransitions.WithLabelValues(status).Inc()
	}
}

func (m *Metrics) chainIssued(collisions int) {
	if m == nil {
		return
	}
	m.chainsIssued.Inc()
	m.issueCollisions.Add(float64(collisions))
}

func (m *Metrics) chainDeactivated() {
	if m != nil {
		m.chainsDeactivated.Inc()
	}
}

func (m *Metrics) verified(valid bool) {
	if m == nil {
		return
	}
	label := "false"
	if valid {
		label = "true"
	}
	m.verifications.WithLabelValues(label).Inc()
}

func (m *Metrics) sold(amount decimal.Decimal) {
	if m == nil {
		return
	}
	f, _ := amount.Float64()
	m.checkoutLines.Inc()
	m.checkoutAmount.Add(f)
}

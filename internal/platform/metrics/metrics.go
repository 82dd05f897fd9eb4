package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the ledger's Prometheus metrics.
type Metrics struct {
	Transactions         *prometheus.CounterVec
	TransactionDuration  *prometheus.HistogramVec
	TotalSupply          prometheus.Gauge
	TokensBurned         prometheus.Counter
	CheckIns             prometheus.Counter
	ProposalTransitions  *prometheus.CounterVec
	SettlementDuplicates prometheus.Counter
	OutboxRelayed        prometheus.Counter
}

// New creates and registers all ledger metrics on reg. Tests pass a fresh
// prometheus.NewRegistry so repeated construction does not collide.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Transactions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_transactions_total",
			Help: "Ledger transactions by operation and outcome",
		}, []string{"op", "outcome"}),
		TransactionDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ledger_transaction_duration_seconds",
			Help:    "Time spent applying a ledger transaction, including lock wait",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
		}, []string{"op"}),
		TotalSupply: f.NewGauge(prometheus.GaugeOpts{
			Name: "ledger_total_supply",
			Help: "Current token total supply",
		}),
		TokensBurned: f.NewCounter(prometheus.CounterOpts{
			Name: "ledger_tokens_burned_total",
			Help: "Tokens destroyed by transfer burns, explicit burns and utility use",
		}),
		CheckIns: f.NewCounter(prometheus.CounterOpts{
			Name: "ledger_checkins_total",
			Help: "Accepted presence check-ins",
		}),
		ProposalTransitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_proposal_transitions_total",
			Help: "Governance proposal state transitions",
		}, []string{"state"}),
		SettlementDuplicates: f.NewCounter(prometheus.CounterOpts{
			Name: "ledger_settlement_duplicates_total",
			Help: "Settlement instructions ignored because their reference was already applied",
		}),
		OutboxRelayed: f.NewCounter(prometheus.CounterOpts{
			Name: "ledger_outbox_relayed_total",
			Help: "Audit outbox rows published to the broker",
		}),
	}
}

// ObserveTransaction records one transaction outcome. Call with time.Now() at
// the start of the operation.
func (m *Metrics) ObserveTransaction(op string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.Transactions.WithLabelValues(op, outcome).Inc()
	m.TransactionDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func (m *Metrics) SetTotalSupply(v uint64) {
	m.TotalSupply.Set(float64(v))
}

func (m *Metrics) AddBurned(v uint64) {
	if v > 0 {
		m.TokensBurned.Add(float64(v))
	}
}

func (m *Metrics) IncCheckIns() {
	m.CheckIns.Inc()
}

func (m *Metrics) IncProposalTransition(state string) {
	m.ProposalTransitions.WithLabelValues(state).Inc()
}

func (m *Metrics) IncSettlementDuplicates() {
	m.SettlementDuplicates.Inc()
}

func (m *Metrics) AddOutboxRelayed(n int) {
	m.OutboxRelayed.Add(float64(n))
}

// Package metrics exports claim outcomes and faucet state to prometheus.
package metrics

import (
	"math/big"
	"sync"
	"time"

	"github.com/emmanuelist/wallet-wave/claim"
	"github.com/emmanuelist/wallet-wave/orchestrator"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
)

const namespace = "wallet_wave"

// Recorder turns orchestrator snapshots into metrics. Feed it with
// Orchestrator.Subscribe(recorder.Observe).
type Recorder struct {
	claims     *prometheus.CounterVec
	balance    prometheus.Gauge
	cooldown   prometheus.Gauge
	eligible   prometheus.Gauge
	readErrors prometheus.Counter
	pending    prometheus.Gauge

	mu          sync.Mutex
	lastOutcome uint64
	lastReadErr time.Time
}

var _ prometheus.Collector = (*Recorder)(nil)

func New(constLabels prometheus.Labels) *Recorder {
	return &Recorder{
		claims: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "claims_total",
			Help:        "Finished claim attempts by outcome",
			ConstLabels: constLabels,
		}, []string{"outcome"}),
		balance: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "faucet_balance_eth",
			Help:        "Last read faucet balance in ETH",
			ConstLabels: constLabels,
		}),
		cooldown: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "cooldown_seconds",
			Help:        "Seconds until the account may claim again",
			ConstLabels: constLabels,
		}),
		eligible: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "eligible",
			Help:        "1 when the account may claim, 0 when not, -1 when unknown",
			ConstLabels: constLabels,
		}),
		readErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "read_errors_total",
			Help:        "Failed faucet reads",
			ConstLabels: constLabels,
		}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "claim_in_flight",
			Help:        "1 while a claim attempt is in progress",
			ConstLabels: constLabels,
		}),
	}
}

func (r *Recorder) Describe(ch chan<- *prometheus.Desc) {
	r.claims.Describe(ch)
	r.balance.Describe(ch)
	r.cooldown.Describe(ch)
	r.eligible.Describe(ch)
	r.readErrors.Describe(ch)
	r.pending.Describe(ch)
}

func (r *Recorder) Collect(ch chan<- prometheus.Metric) {
	r.claims.Collect(ch)
	r.balance.Collect(ch)
	r.cooldown.Collect(ch)
	r.eligible.Collect(ch)
	r.readErrors.Collect(ch)
	r.pending.Collect(ch)
}

// Observe records one snapshot. Each finished attempt is counted once.
func (r *Recorder) Observe(st orchestrator.State) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if o := st.LastOutcome; o != nil && o.ID != r.lastOutcome {
		r.lastOutcome = o.ID
		r.claims.WithLabelValues(Outcome(*o)).Inc()
	}
	if st.ReadErr != nil && st.UpdatedAt.After(r.lastReadErr) {
		r.lastReadErr = st.UpdatedAt
		r.readErrors.Inc()
	}

	switch {
	case st.Eligibility == nil:
		r.eligible.Set(-1)
	case st.CanClaim():
		r.eligible.Set(1)
	default:
		r.eligible.Set(0)
	}
	r.cooldown.Set(float64(st.SecondsRemaining))
	if st.Balance != nil {
		r.balance.Set(EtherFloat(st.Balance))
	}
	if st.Attempt != nil && !st.Attempt.Phase.Terminal() {
		r.pending.Set(1)
	} else {
		r.pending.Set(0)
	}
}

// Outcome is the claims_total label for a finished attempt.
func Outcome(a claim.Attempt) string {
	if a.Phase == claim.Confirmed || a.Err == nil {
		return a.Phase.String()
	}
	return a.Err.Kind.String()
}

// EtherFloat converts wei to ETH as a float, for gauges only.
func EtherFloat(wei *big.Int) float64 {
	f, _ := decimal.NewFromBigInt(wei, -18).Float64()
	return f
}

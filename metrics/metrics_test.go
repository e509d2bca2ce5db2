package metrics

import (
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/emmanuelist/wallet-wave/claim"
	"github.com/emmanuelist/wallet-wave/faucet"
	"github.com/emmanuelist/wallet-wave/orchestrator"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorder_Observe(t *testing.T) {
	r := New(prometheus.Labels{"network": "base-sepolia"})
	reg := prometheus.NewRegistry()
	require.NoError(t, reg.Register(r))

	e := faucet.Eligibility{Eligible: true}
	st := orchestrator.State{
		Eligibility: &e,
		Balance:     big.NewInt(20_000_000_000_000_000),
		UpdatedAt:   time.Now(),
	}
	r.Observe(st)
	assert.Equal(t, float64(1), testutil.ToFloat64(r.eligible))
	assert.InDelta(t, 0.02, testutil.ToFloat64(r.balance), 1e-12)
	assert.Equal(t, float64(0), testutil.ToFloat64(r.pending))

	st.Attempt = &claim.Attempt{ID: 1, Phase: claim.PendingConfirmation}
	r.Observe(st)
	assert.Equal(t, float64(1), testutil.ToFloat64(r.pending))
	assert.Equal(t, float64(0), testutil.ToFloat64(r.eligible))

	confirmed := claim.Attempt{ID: 1, Phase: claim.Confirmed}
	ineligible := faucet.Eligibility{SecondsRemaining: 86400}
	st.Attempt = nil
	st.LastOutcome = &confirmed
	st.Eligibility = &ineligible
	st.SecondsRemaining = 86400
	r.Observe(st)
	r.Observe(st) // same outcome seen twice counts once
	assert.Equal(t, float64(1), testutil.ToFloat64(r.claims.WithLabelValues("confirmed")))
	assert.Equal(t, float64(86400), testutil.ToFloat64(r.cooldown))

	failed := claim.Attempt{ID: 2, Phase: claim.Failed, Err: &claim.Error{Kind: claim.KindClaimTooSoon}}
	st.LastOutcome = &failed
	r.Observe(st)
	assert.Equal(t, float64(1), testutil.ToFloat64(r.claims.WithLabelValues("ClaimTooSoon")))

	st.Eligibility = nil
	st.ReadErr = errors.New("dial tcp: connection refused")
	st.UpdatedAt = time.Now().Add(time.Second)
	r.Observe(st)
	r.Observe(st)
	assert.Equal(t, float64(-1), testutil.ToFloat64(r.eligible))
	assert.Equal(t, float64(1), testutil.ToFloat64(r.readErrors))

	n, err := testutil.GatherAndCount(reg)
	require.NoError(t, err)
	assert.Equal(t, 7, n)
}

func TestOutcome(t *testing.T) {
	assert.Equal(t, "confirmed", Outcome(claim.Attempt{Phase: claim.Confirmed}))
	assert.Equal(t, "SignerRejected", Outcome(claim.Attempt{Phase: claim.Rejected, Err: &claim.Error{Kind: claim.KindSignerRejected}}))
	assert.Equal(t, "InsufficientBalance", Outcome(claim.Attempt{Phase: claim.Failed, Err: &claim.Error{Kind: claim.KindInsufficientBalance}}))
}

package orchestrator

import (
	"encoding/json"
	"math/big"
	"time"

	"github.com/emmanuelist/wallet-wave/claim"
	"github.com/emmanuelist/wallet-wave/faucet"
	"github.com/ethereum/go-ethereum/common"
)

// State is a point-in-time snapshot of everything a presentation layer shows.
//
// A nil Eligibility means unknown: either nothing was read yet or the last
// read failed (ReadErr). Stale is set whenever ReadErr is.
type State struct {
	Account          common.Address      `json:"account"`
	ChainID          uint64              `json:"chainId"`
	Eligibility      *faucet.Eligibility `json:"eligibility"`
	SecondsRemaining uint64              `json:"secondsRemaining"`
	Balance          *big.Int            `json:"faucetBalance"`
	Parameters       *faucet.Parameters  `json:"parameters,omitempty"`
	Attempt          *claim.Attempt      `json:"attempt,omitempty"`
	LastOutcome      *claim.Attempt      `json:"lastOutcome,omitempty"`
	ReadErr          error               `json:"-"`
	Stale            bool                `json:"stale"`
	UpdatedAt        time.Time           `json:"updatedAt"`
}

// CanClaim mirrors the RequestClaim gate.
func (s State) CanClaim() bool {
	return s.Eligibility != nil && s.Eligibility.Eligible && s.SecondsRemaining == 0 && s.Attempt == nil
}

// Phase is the in-flight attempt's phase, Idle when there is none.
func (s State) Phase() claim.Phase {
	if s.Attempt == nil {
		return claim.Idle
	}
	return s.Attempt.Phase
}

func (s State) MarshalJSON() ([]byte, error) {
	type plain State
	out := struct {
		plain
		Phase     claim.Phase `json:"phase"`
		CanClaim  bool        `json:"canClaim"`
		ReadError string      `json:"readError,omitempty"`
	}{
		plain:    plain(s),
		Phase:    s.Phase(),
		CanClaim: s.CanClaim(),
	}
	if s.ReadErr != nil {
		out.ReadError = s.ReadErr.Error()
	}
	return json.Marshal(out)
}

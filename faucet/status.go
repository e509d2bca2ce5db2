package faucet

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Status is an operator snapshot of the faucet and one account's standing.
type Status struct {
	Address       common.Address `json:"address"`
	Owner         common.Address `json:"owner"`
	Balance       *big.Int       `json:"balance"`
	Parameters    Parameters     `json:"parameters"`
	Account       common.Address `json:"account"`
	Eligibility   Eligibility    `json:"eligibility"`
	LastClaimTime time.Time      `json:"lastClaimTime"`
}

// NeverClaimed reports whether the account has no recorded claim.
func (s Status) NeverClaimed() bool {
	return s.LastClaimTime.IsZero()
}

// ReadStatus reads every field of Status. The first failing read aborts.
func (r *Reader) ReadStatus(ctx context.Context, account common.Address) (Status, error) {
	st := Status{Address: r.contract.Address(), Account: account}

	var err error
	if st.Balance, err = r.ReadBalance(ctx); err != nil {
		return Status{}, err
	}
	if st.Owner, err = r.ReadOwner(ctx); err != nil {
		return Status{}, err
	}
	if st.Parameters, err = r.ReadParameters(ctx); err != nil {
		return Status{}, err
	}
	if st.Eligibility, err = r.ReadEligibility(ctx, account); err != nil {
		return Status{}, err
	}
	if st.LastClaimTime, err = r.ReadLastClaimTime(ctx, account); err != nil {
		return Status{}, err
	}
	return st, nil
}

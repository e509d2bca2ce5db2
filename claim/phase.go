package claim

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Phase is the lifecycle position of a claim attempt.
type Phase int

const (
	Idle Phase = iota
	Submitting
	PendingConfirmation
	Confirmed
	Rejected
	Failed
)

var phaseNames = map[Phase]string{
	Idle:                "idle",
	Submitting:          "submitting",
	PendingConfirmation: "pending_confirmation",
	Confirmed:           "confirmed",
	Rejected:            "rejected",
	Failed:              "failed",
}

func (p Phase) String() string {
	if name, ok := phaseNames[p]; ok {
		return name
	}
	return "unknown"
}

func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// Terminal reports whether no further transition is possible.
func (p Phase) Terminal() bool {
	return p == Confirmed || p == Rejected || p == Failed
}

// CanTransition encodes the two forward paths:
// Idle -> Submitting -> PendingConfirmation -> Confirmed|Failed, and
// Submitting -> Rejected|Failed.
func (p Phase) CanTransition(to Phase) bool {
	switch p {
	case Idle:
		return to == Submitting
	case Submitting:
		return to == PendingConfirmation || to == Rejected || to == Failed
	case PendingConfirmation:
		return to == Confirmed || to == Failed
	default:
		return false
	}
}

// Attempt is one submission-to-outcome cycle. Values handed out by the
// Submitter are copies.
type Attempt struct {
	ID          uint64      `json:"id"`
	Phase       Phase       `json:"phase"`
	SubmittedAt time.Time   `json:"submittedAt"`
	TxHash      common.Hash `json:"txHash,omitempty"`
	BlockNumber *big.Int    `json:"blockNumber,omitempty"`
	BlockHash   common.Hash `json:"blockHash,omitempty"`
	GasUsed     uint64      `json:"gasUsed,omitempty"`
	// EffectiveGasPrice lets callers net gas out of a balance delta.
	EffectiveGasPrice *big.Int `json:"effectiveGasPrice,omitempty"`
	Err               *Error   `json:"error,omitempty"`
}

// HasTx reports whether the network assigned the attempt a hash.
func (a Attempt) HasTx() bool {
	return a.TxHash != (common.Hash{})
}

func (a Attempt) clone() Attempt {
	c := a
	if a.BlockNumber != nil {
		c.BlockNumber = new(big.Int).Set(a.BlockNumber)
	}
	if a.EffectiveGasPrice != nil {
		c.EffectiveGasPrice = new(big.Int).Set(a.EffectiveGasPrice)
	}
	return c
}

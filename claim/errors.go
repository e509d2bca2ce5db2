package claim

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/emmanuelist/wallet-wave/faucet"
)

// ErrAlreadyInProgress is returned by Submit while a non-idle attempt exists.
var ErrAlreadyInProgress = errors.New("claim already in progress")

// Kind classifies a failed attempt for the user.
type Kind int

const (
	KindUnknownRevert Kind = iota
	KindSignerRejected
	KindClaimTooSoon
	KindInsufficientBalance
)

var kindNames = map[Kind]string{
	KindUnknownRevert:       "UnknownRevert",
	KindSignerRejected:      "SignerRejected",
	KindClaimTooSoon:        "ClaimTooSoon",
	KindInsufficientBalance: "InsufficientBalance",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "Unknown"
}

func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// Message is the user-facing text for the kind.
func (k Kind) Message() string {
	switch k {
	case KindSignerRejected:
		return "Transaction was rejected in the wallet. Please try again."
	case KindClaimTooSoon:
		return "You need to wait for the cooldown to pass between claims."
	case KindInsufficientBalance:
		return "Faucet is empty. Please try again later."
	default:
		return "Claim failed. Please try again."
	}
}

// Retryable is false only when retrying in this session cannot help.
func (k Kind) Retryable() bool {
	return k != KindInsufficientBalance
}

// Error is a classified attempt failure. Raw is the cause exactly as the
// signer or network reported it.
type Error struct {
	Kind   Kind
	Raw    error
	Revert faucet.Revert
}

func (e *Error) Error() string {
	if e.Raw == nil {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Raw)
}

func (e *Error) Unwrap() error {
	return e.Raw
}

func (e *Error) MarshalJSON() ([]byte, error) {
	raw := ""
	if e.Raw != nil {
		raw = e.Raw.Error()
	}
	return json.Marshal(struct {
		Kind    Kind   `json:"kind"`
		Message string `json:"message"`
		Raw     string `json:"raw,omitempty"`
	}{e.Kind, e.Kind.Message(), raw})
}

// IsKind reports whether err is a claim Error of the given kind.
func IsKind(err error, kind Kind) bool {
	var ce *Error
	return errors.As(err, &ce) && ce.Kind == kind
}

// classifyRevert maps an on-chain failure to a kind, keeping raw as is.
func classifyRevert(raw error) *Error {
	rev, _ := faucet.DecodeRevert(raw)
	kind := KindUnknownRevert
	switch rev.Name {
	case faucet.ErrNameClaimTooSoon:
		kind = KindClaimTooSoon
	case faucet.ErrNameInsufficientBalance:
		kind = KindInsufficientBalance
	}
	return &Error{Kind: kind, Raw: raw, Revert: rev}
}

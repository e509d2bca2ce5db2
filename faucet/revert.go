package faucet

import (
	"bytes"
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

// Revert is what could be recovered from a reverted call or transaction.
type Revert struct {
	// Name is the custom error name (ClaimTooSoon, InsufficientBalance) when the
	// revert data matched one of the faucet's declared errors.
	Name string
	// Reason is the Error(string) message, if any.
	Reason string
	Data   []byte
}

// DecodeRevert extracts revert details from an RPC error. It returns false
// when err carries no sign of an execution revert.
func DecodeRevert(err error) (Revert, bool) {
	if err == nil {
		return Revert{}, false
	}
	var rev Revert
	found := false

	var dataErr rpc.DataError
	if errors.As(err, &dataErr) {
		if data, ok := revertData(dataErr.ErrorData()); ok {
			rev.Data = data
			found = true
			if name, ok := matchError(data); ok {
				rev.Name = name
			} else if reason, uerr := abi.UnpackRevert(data); uerr == nil {
				rev.Reason = reason
			}
		}
	}

	msg := err.Error()
	if rev.Name == "" {
		for _, name := range []string{ErrNameClaimTooSoon, ErrNameInsufficientBalance} {
			if strings.Contains(msg, name) || strings.Contains(rev.Reason, name) {
				rev.Name = name
				found = true
				break
			}
		}
	}
	if strings.Contains(strings.ToLower(msg), "execution reverted") {
		found = true
	}
	return rev, found
}

func revertData(v interface{}) ([]byte, bool) {
	switch d := v.(type) {
	case string:
		b, err := hexutil.Decode(d)
		if err != nil || len(b) < 4 {
			return nil, false
		}
		return b, true
	case []byte:
		return d, len(d) >= 4
	default:
		return nil, false
	}
}

func matchError(data []byte) (string, bool) {
	for name, e := range ABI.Errors {
		if bytes.Equal(e.ID.Bytes()[:4], data[:4]) {
			return name, true
		}
	}
	return "", false
}

// ErrorSelector returns the 4-byte selector of a declared faucet error.
func ErrorSelector(name string) []byte {
	e, ok := ABI.Errors[name]
	if !ok {
		return nil
	}
	return e.ID.Bytes()[:4]
}

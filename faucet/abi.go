package faucet

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// ABI is the parsed interface of the TokenFaucet contract.
var ABI abi.ABI

const faucetABIJSON = `[
	{"type":"constructor","inputs":[{"name":"_claimAmount","type":"uint256"},{"name":"_claimInterval","type":"uint256"}],"stateMutability":"nonpayable"},
	{"type":"function","name":"canClaim","inputs":[{"name":"user","type":"address"}],"outputs":[{"name":"","type":"bool"},{"name":"","type":"uint256"}],"stateMutability":"view"},
	{"type":"function","name":"claim","inputs":[],"outputs":[],"stateMutability":"nonpayable"},
	{"type":"function","name":"claimAmount","inputs":[],"outputs":[{"name":"","type":"uint256"}],"stateMutability":"view"},
	{"type":"function","name":"claimInterval","inputs":[],"outputs":[{"name":"","type":"uint256"}],"stateMutability":"view"},
	{"type":"function","name":"owner","inputs":[],"outputs":[{"name":"","type":"address"}],"stateMutability":"view"},
	{"type":"function","name":"getBalance","inputs":[],"outputs":[{"name":"","type":"uint256"}],"stateMutability":"view"},
	{"type":"function","name":"lastClaimTime","inputs":[{"name":"","type":"address"}],"outputs":[{"name":"","type":"uint256"}],"stateMutability":"view"},
	{"type":"event","name":"Claimed","inputs":[{"name":"user","type":"address","indexed":true},{"name":"amount","type":"uint256","indexed":false}],"anonymous":false},
	{"type":"error","name":"ClaimTooSoon","inputs":[]},
	{"type":"error","name":"InsufficientBalance","inputs":[]},
	{"type":"receive","stateMutability":"payable"}
]`

const (
	ErrNameClaimTooSoon        = "ClaimTooSoon"
	ErrNameInsufficientBalance = "InsufficientBalance"
)

func init() {
	parsed, err := abi.JSON(strings.NewReader(faucetABIJSON))
	if err != nil {
		panic(err)
	}
	ABI = parsed
}

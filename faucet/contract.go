package faucet

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
)

// Backend is the read side of an RPC connection. *ethclient.Client satisfies it.
type Backend interface {
	bind.ContractCaller
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}

// Contract is a thin binding over the faucet's view functions.
type Contract struct {
	address  common.Address
	backend  Backend
	contract *bind.BoundContract
}

// NewContract binds the faucet at address. Only the call side of the backend is used.
func NewContract(address common.Address, backend Backend) *Contract {
	return &Contract{
		address:  address,
		backend:  backend,
		contract: bind.NewBoundContract(address, ABI, backend, nil, nil),
	}
}

func (c *Contract) Address() common.Address {
	return c.address
}

// CanClaim returns the contract's own eligibility verdict for user.
func (c *Contract) CanClaim(ctx context.Context, user common.Address) (bool, *big.Int, error) {
	out, err := c.call(ctx, nil, "canClaim", user)
	if err != nil {
		return false, nil, err
	}
	if len(out) != 2 {
		return false, nil, fmt.Errorf("canClaim returned %d values", len(out))
	}
	eligible := *abi.ConvertType(out[0], new(bool)).(*bool)
	remaining := abi.ConvertType(out[1], new(big.Int)).(*big.Int)
	return eligible, remaining, nil
}

func (c *Contract) ClaimAmount(ctx context.Context) (*big.Int, error) {
	return c.callUint(ctx, "claimAmount")
}

func (c *Contract) ClaimInterval(ctx context.Context) (*big.Int, error) {
	return c.callUint(ctx, "claimInterval")
}

func (c *Contract) GetBalance(ctx context.Context) (*big.Int, error) {
	return c.callUint(ctx, "getBalance")
}

func (c *Contract) LastClaimTime(ctx context.Context, user common.Address) (*big.Int, error) {
	return c.callUint(ctx, "lastClaimTime", user)
}

func (c *Contract) Owner(ctx context.Context) (common.Address, error) {
	out, err := c.call(ctx, nil, "owner")
	if err != nil {
		return common.Address{}, err
	}
	if len(out) == 0 {
		return common.Address{}, fmt.Errorf("owner returned empty result")
	}
	return *abi.ConvertType(out[0], new(common.Address)).(*common.Address), nil
}

// NativeBalance is the chain balance of the contract account itself.
func (c *Contract) NativeBalance(ctx context.Context) (*big.Int, error) {
	return c.backend.BalanceAt(ctx, c.address, nil)
}

// CallClaim executes claim() as from at the given block without sending it.
// A nil error means the call would succeed; otherwise the revert is returned as is.
func (c *Contract) CallClaim(ctx context.Context, from common.Address, block *big.Int) error {
	_, err := c.call(ctx, &bind.CallOpts{Context: ctx, From: from, BlockNumber: block}, "claim")
	return err
}

// PackClaim returns the calldata for claim().
func PackClaim() []byte {
	data, err := ABI.Pack("claim")
	if err != nil {
		panic(err)
	}
	return data
}

func (c *Contract) callUint(ctx context.Context, method string, params ...interface{}) (*big.Int, error) {
	out, err := c.call(ctx, nil, method, params...)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%s returned empty result", method)
	}
	return abi.ConvertType(out[0], new(big.Int)).(*big.Int), nil
}

func (c *Contract) call(ctx context.Context, opts *bind.CallOpts, method string, params ...interface{}) ([]interface{}, error) {
	if opts == nil {
		opts = &bind.CallOpts{Context: ctx}
	}
	var out []interface{}
	if err := c.contract.Call(opts, &out, method, params...); err != nil {
		return nil, err
	}
	return out, nil
}

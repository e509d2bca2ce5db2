package faucet

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/emmanuelist/wallet-wave/logger"
	"github.com/ethereum/go-ethereum/common"
)

// Eligibility is the contract's canClaim verdict at the time of the read.
type Eligibility struct {
	Eligible         bool   `json:"eligible"`
	SecondsRemaining uint64 `json:"secondsRemaining"`
}

// Parameters are the faucet's claim settings, read once per session.
type Parameters struct {
	ClaimAmount   *big.Int `json:"claimAmount"`
	ClaimInterval uint64   `json:"claimInterval"`
}

func (p Parameters) ClaimIntervalDuration() time.Duration {
	return time.Duration(p.ClaimInterval) * time.Second
}

// ChainReader is the read-only view of faucet state.
type ChainReader interface {
	ReadEligibility(ctx context.Context, account common.Address) (Eligibility, error)
	ReadParameters(ctx context.Context) (Parameters, error)
	ReadBalance(ctx context.Context) (*big.Int, error)
}

// ReadError reports a failed query. The state it was meant to observe is unknown.
type ReadError struct {
	Op      string
	Account common.Address
	Err     error
}

func (e *ReadError) Error() string {
	if e.Account != (common.Address{}) {
		return fmt.Sprintf("faucet read %s(%s): %v", e.Op, e.Account.Hex(), e.Err)
	}
	return fmt.Sprintf("faucet read %s: %v", e.Op, e.Err)
}

func (e *ReadError) Unwrap() error {
	return e.Err
}

type cacheKey struct {
	account common.Address
	param   string
}

// Reader implements ChainReader over a Contract, with an optional
// read-through cache that only expires when the caller invalidates it.
type Reader struct {
	contract *Contract
	log      *logger.Logger

	cacheEnabled bool
	mu           sync.Mutex
	cache        map[cacheKey]interface{}
}

type ReaderOption func(*Reader)

// WithCache enables the (account, parameter) read-through cache.
func WithCache() ReaderOption {
	return func(r *Reader) {
		r.cacheEnabled = true
	}
}

func WithReaderLogger(l *logger.Logger) ReaderOption {
	return func(r *Reader) {
		r.log = l
	}
}

func NewReader(contract *Contract, opts ...ReaderOption) *Reader {
	r := &Reader{
		contract: contract,
		log:      logger.GetLogger().Named("reader"),
		cache:    make(map[cacheKey]interface{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Reader) Contract() *Contract {
	return r.contract
}

func (r *Reader) ReadEligibility(ctx context.Context, account common.Address) (Eligibility, error) {
	v, err := r.cached(account, "canClaim", func() (interface{}, error) {
		eligible, remaining, err := r.contract.CanClaim(ctx, account)
		if err != nil {
			return nil, err
		}
		if !remaining.IsUint64() {
			return nil, fmt.Errorf("time remaining %s overflows uint64", remaining)
		}
		return Eligibility{Eligible: eligible, SecondsRemaining: remaining.Uint64()}, nil
	})
	if err != nil {
		return Eligibility{}, &ReadError{Op: "canClaim", Account: account, Err: err}
	}
	e := v.(Eligibility)
	r.log.Debug("read eligibility", "account", account.Hex(), "eligible", e.Eligible, "remaining", e.SecondsRemaining)
	return e, nil
}

func (r *Reader) ReadParameters(ctx context.Context) (Parameters, error) {
	amount, err := r.cached(common.Address{}, "claimAmount", func() (interface{}, error) {
		return r.contract.ClaimAmount(ctx)
	})
	if err != nil {
		return Parameters{}, &ReadError{Op: "claimAmount", Err: err}
	}
	interval, err := r.cached(common.Address{}, "claimInterval", func() (interface{}, error) {
		v, err := r.contract.ClaimInterval(ctx)
		if err != nil {
			return nil, err
		}
		if !v.IsUint64() {
			return nil, fmt.Errorf("claim interval %s overflows uint64", v)
		}
		return v.Uint64(), nil
	})
	if err != nil {
		return Parameters{}, &ReadError{Op: "claimInterval", Err: err}
	}
	return Parameters{
		ClaimAmount:   new(big.Int).Set(amount.(*big.Int)),
		ClaimInterval: interval.(uint64),
	}, nil
}

// ReadBalance prefers the contract's getBalance() and falls back to the
// native balance of the contract account when that call fails.
func (r *Reader) ReadBalance(ctx context.Context) (*big.Int, error) {
	v, err := r.cached(common.Address{}, "balance", func() (interface{}, error) {
		bal, err := r.contract.GetBalance(ctx)
		if err == nil {
			return bal, nil
		}
		r.log.Debug("getBalance failed, falling back to native balance", "err", err)
		native, nerr := r.contract.NativeBalance(ctx)
		if nerr != nil {
			return nil, fmt.Errorf("getBalance: %v; native balance: %w", err, nerr)
		}
		return native, nil
	})
	if err != nil {
		return nil, &ReadError{Op: "getBalance", Err: err}
	}
	return new(big.Int).Set(v.(*big.Int)), nil
}

func (r *Reader) ReadOwner(ctx context.Context) (common.Address, error) {
	v, err := r.cached(common.Address{}, "owner", func() (interface{}, error) {
		return r.contract.Owner(ctx)
	})
	if err != nil {
		return common.Address{}, &ReadError{Op: "owner", Err: err}
	}
	return v.(common.Address), nil
}

// ReadLastClaimTime returns the unix time of the account's last claim, zero if never.
func (r *Reader) ReadLastClaimTime(ctx context.Context, account common.Address) (time.Time, error) {
	v, err := r.cached(account, "lastClaimTime", func() (interface{}, error) {
		return r.contract.LastClaimTime(ctx, account)
	})
	if err != nil {
		return time.Time{}, &ReadError{Op: "lastClaimTime", Account: account, Err: err}
	}
	ts := v.(*big.Int)
	if ts.Sign() == 0 || !ts.IsInt64() {
		return time.Time{}, nil
	}
	return time.Unix(ts.Int64(), 0), nil
}

// Invalidate drops every cached value for account.
func (r *Reader) Invalidate(account common.Address) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k := range r.cache {
		if k.account == account {
			delete(r.cache, k)
		}
	}
}

// InvalidateBalance drops the cached faucet balance.
func (r *Reader) InvalidateBalance() {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.cache, cacheKey{param: "balance"})
}

func (r *Reader) InvalidateAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache = make(map[cacheKey]interface{})
}

func (r *Reader) cached(account common.Address, param string, load func() (interface{}, error)) (interface{}, error) {
	if !r.cacheEnabled {
		return load()
	}
	key := cacheKey{account: account, param: param}
	r.mu.Lock()
	v, ok := r.cache[key]
	r.mu.Unlock()
	if ok {
		return v, nil
	}

	v, err := load()
	if err != nil {
		return nil, err
	}
	r.mu.Lock()
	r.cache[key] = v
	r.mu.Unlock()
	return v, nil
}

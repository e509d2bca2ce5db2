// Package operator holds the faucet owner's tooling: deployment, status
// reporting and scheduled refills.
package operator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"os"
	"time"

	"github.com/emmanuelist/wallet-wave/faucet"
	"github.com/emmanuelist/wallet-wave/logger"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
)

// ErrNoCode is returned when a mined deployment left no code at its address.
var ErrNoCode = errors.New("no contract code after deployment")

// Artifact is a compiled contract as emitted by hardhat.
type Artifact struct {
	ContractName string
	ABI          abi.ABI
	Bytecode     []byte
}

type rawArtifact struct {
	ContractName string          `json:"contractName"`
	ABI          json.RawMessage `json:"abi"`
	Bytecode     string          `json:"bytecode"`
}

// LoadArtifact reads a hardhat artifact file.
func LoadArtifact(path string) (*Artifact, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact: %w", err)
	}
	return ParseArtifact(data)
}

// ParseArtifact decodes a hardhat artifact. The constructor must take the
// claim amount and claim interval.
func ParseArtifact(data []byte) (*Artifact, error) {
	var raw rawArtifact
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode artifact: %w", err)
	}
	if len(raw.ABI) == 0 {
		return nil, errors.New("artifact has no abi")
	}
	parsed, err := abi.JSON(bytes.NewReader(raw.ABI))
	if err != nil {
		return nil, fmt.Errorf("invalid artifact abi: %w", err)
	}
	if len(parsed.Constructor.Inputs) != 2 {
		return nil, fmt.Errorf("constructor takes %d arguments, want (claimAmount, claimInterval)", len(parsed.Constructor.Inputs))
	}
	code, err := hexutil.Decode(raw.Bytecode)
	if err != nil || len(code) == 0 {
		return nil, errors.New("artifact has no deployable bytecode")
	}
	return &Artifact{ContractName: raw.ContractName, ABI: parsed, Bytecode: code}, nil
}

// HeadReader reports the latest block number.
type HeadReader interface {
	BlockNumber(ctx context.Context) (uint64, error)
}

// Chain is the RPC surface a deployment needs. *ethclient.Client satisfies it.
type Chain interface {
	bind.ContractBackend
	bind.DeployBackend
	HeadReader
}

// Deployer is a Funder that can also sign contract creations.
type Deployer interface {
	Funder
	TransactOpts(ctx context.Context) (*bind.TransactOpts, error)
}

type DeployParams struct {
	ClaimAmount   *big.Int
	ClaimInterval time.Duration
	// FundAmount is sent to the new contract after deployment. Zero skips funding.
	FundAmount    *big.Int
	Confirmations uint64
}

type Deployment struct {
	Address     common.Address
	DeployTx    common.Hash
	DeployBlock uint64
	FundTx      common.Hash
	FundBlock   uint64
}

type DeployOption func(*deployOptions)

type deployOptions struct {
	pollInterval time.Duration
	log          *logger.Logger
}

// WithBlockPollInterval sets how often the head is polled while waiting for confirmations.
func WithBlockPollInterval(d time.Duration) DeployOption {
	return func(o *deployOptions) {
		o.pollInterval = d
	}
}

func WithDeployLogger(l *logger.Logger) DeployOption {
	return func(o *deployOptions) {
		o.log = l
	}
}

// Deploy creates the faucet contract, funds it and waits until the last
// transaction has the requested number of confirmations.
func Deploy(ctx context.Context, chain Chain, deployer Deployer, art *Artifact, p DeployParams, opts ...DeployOption) (*Deployment, error) {
	o := deployOptions{pollInterval: 2 * time.Second, log: logger.GetLogger().Named("deploy")}
	for _, opt := range opts {
		opt(&o)
	}
	if p.ClaimAmount == nil || p.ClaimAmount.Sign() <= 0 {
		return nil, errors.New("claim amount must be positive")
	}
	if p.ClaimInterval < time.Second {
		return nil, errors.New("claim interval must be at least one second")
	}

	txOpts, err := deployer.TransactOpts(ctx)
	if err != nil {
		return nil, err
	}
	interval := new(big.Int).SetUint64(uint64(p.ClaimInterval / time.Second))
	o.log.Info("deploying faucet", "from", deployer.Address().Hex(), "claimAmount", faucet.FormatEther(p.ClaimAmount), "interval", p.ClaimInterval)

	addr, tx, _, err := bind.DeployContract(txOpts, art.ABI, art.Bytecode, chain, p.ClaimAmount, interval)
	if err != nil {
		return nil, fmt.Errorf("failed to deploy: %w", err)
	}
	receipt, err := bind.WaitMined(ctx, chain, tx)
	if err != nil {
		return nil, fmt.Errorf("wait for deployment %s: %w", tx.Hash().Hex(), err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, fmt.Errorf("deployment %s reverted", tx.Hash().Hex())
	}
	if code, err := chain.CodeAt(ctx, addr, nil); err != nil {
		return nil, err
	} else if len(code) == 0 {
		return nil, ErrNoCode
	}
	d := &Deployment{Address: addr, DeployTx: tx.Hash(), DeployBlock: receipt.BlockNumber.Uint64()}
	o.log.Info("faucet deployed", "address", addr.Hex(), "block", d.DeployBlock)

	last := d.DeployBlock
	if p.FundAmount != nil && p.FundAmount.Sign() > 0 {
		fundTx, err := deployer.Send(ctx, addr, p.FundAmount)
		if err != nil {
			return d, fmt.Errorf("failed to fund faucet: %w", err)
		}
		fr, err := deployer.WaitMined(ctx, fundTx)
		if err != nil {
			return d, fmt.Errorf("wait for funding %s: %w", fundTx.Hash().Hex(), err)
		}
		if fr.Status != types.ReceiptStatusSuccessful {
			return d, fmt.Errorf("funding %s reverted", fundTx.Hash().Hex())
		}
		d.FundTx, d.FundBlock = fundTx.Hash(), fr.BlockNumber.Uint64()
		last = d.FundBlock
		o.log.Info("faucet funded", "amount", faucet.FormatEther(p.FundAmount), "tx", fundTx.Hash().Hex())
	}

	if err := WaitConfirmations(ctx, chain, last, p.Confirmations, o.pollInterval); err != nil {
		return d, err
	}
	return d, nil
}

// WaitConfirmations blocks until the block at height has n confirmations,
// counting the block itself as the first.
func WaitConfirmations(ctx context.Context, chain HeadReader, height, n uint64, poll time.Duration) error {
	if n <= 1 {
		return nil
	}
	target := height + n - 1
	ticker := time.NewTicker(poll)
	defer ticker.Stop()
	for {
		head, err := chain.BlockNumber(ctx)
		if err == nil && head >= target {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for %d confirmations of block %d: %w", n, height, ctx.Err())
		case <-ticker.C:
		}
	}
}

package wallet

import (
	"context"
	"math/big"

	"github.com/emmanuelist/wallet-wave/faucet"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Signer claims from one faucet contract with a key-backed Client.
type Signer struct {
	*Client
	faucet *faucet.Contract
}

func NewSigner(client *Client, contract *faucet.Contract) *Signer {
	return &Signer{Client: client, faucet: contract}
}

// SignClaim signs a claim() call without broadcasting it. A revert during
// gas estimation is returned as the node reported it.
func (s *Signer) SignClaim(ctx context.Context) (*types.Transaction, error) {
	to := s.faucet.Address()
	return s.signTx(ctx, &to, nil, faucet.PackClaim())
}

func (s *Signer) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	eth, err := s.conn()
	if err != nil {
		return err
	}
	return eth.SendTransaction(ctx, tx)
}

func (s *Signer) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	eth, err := s.conn()
	if err != nil {
		return nil, err
	}
	return eth.TransactionReceipt(ctx, txHash)
}

// ReplayClaim re-runs claim() as the sender at block to recover the revert reason.
func (s *Signer) ReplayClaim(ctx context.Context, tx *types.Transaction, block *big.Int) error {
	return s.faucet.CallClaim(ctx, s.Address(), block)
}

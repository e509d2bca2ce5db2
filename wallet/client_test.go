package wallet

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/emmanuelist/wallet-wave/claim"
	"github.com/emmanuelist/wallet-wave/config"
	"github.com/emmanuelist/wallet-wave/ethtest"
	"github.com/emmanuelist/wallet-wave/faucet"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var faucetAddr = common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")

func customRevert(name string) error {
	return &ethtest.RevertError{Data: faucet.ErrorSelector(name)}
}

func dialTest(t *testing.T, node *ethtest.Node, opts ...ClientOption) *Client {
	t.Helper()
	w, err := FromHex(testKey)
	require.NoError(t, err)
	network := &config.Network{Name: "local", ChainID: node.ChainID(), RPCURL: node.URL}
	c, err := Dial(context.Background(), w, network, opts...)
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func TestClient_Send(t *testing.T) {
	node := ethtest.NewNode(t, 31337)
	c := dialTest(t, node)
	node.SetNonce(c.Address(), 7)
	node.SetBalance(c.Address(), big.NewInt(5))

	bal, err := c.Balance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(5), bal.Int64())

	value := big.NewInt(20_000_000_000_000_000)
	tx, err := c.Send(context.Background(), faucetAddr, value)
	require.NoError(t, err)

	sent := node.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, tx.Hash(), sent[0].Hash())
	assert.Equal(t, uint64(7), sent[0].Nonce())
	assert.Equal(t, uint64(21000), sent[0].Gas())
	assert.Equal(t, faucetAddr, *sent[0].To())
	assert.Equal(t, value, sent[0].Value())

	from, err := types.Sender(types.NewEIP155Signer(big.NewInt(31337)), sent[0])
	require.NoError(t, err)
	assert.Equal(t, c.Address(), from)

	r, err := c.WaitMined(context.Background(), tx)
	require.NoError(t, err)
	assert.Equal(t, types.ReceiptStatusSuccessful, r.Status)
}

func TestSigner_SignClaimDoesNotBroadcast(t *testing.T) {
	node := ethtest.NewNode(t, 31337)
	c := dialTest(t, node)
	node.SetNonce(c.Address(), 1)
	s := NewSigner(c, faucet.NewContract(faucetAddr, c))

	tx, err := s.SignClaim(context.Background())
	require.NoError(t, err)
	assert.Equal(t, faucetAddr, *tx.To())
	assert.Equal(t, faucet.PackClaim(), tx.Data())
	assert.Equal(t, uint64(60000), tx.Gas())
	assert.Equal(t, uint64(1), tx.Nonce())
	assert.Empty(t, node.Sent())

	id, err := s.ChainID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(31337), id)
}

func TestSigner_ClaimThroughNode(t *testing.T) {
	tests := []struct {
		name        string
		estimateErr error
		status      uint64
		callErr     error
		wantPhase   claim.Phase
		wantKind    claim.Kind
		wantSent    int
	}{
		{
			name:      "confirmed",
			status:    types.ReceiptStatusSuccessful,
			wantPhase: claim.Confirmed,
			wantSent:  1,
		},
		{
			name:        "cooldown revert while estimating",
			estimateErr: customRevert(faucet.ErrNameClaimTooSoon),
			status:      types.ReceiptStatusSuccessful,
			wantPhase:   claim.Failed,
			wantKind:    claim.KindClaimTooSoon,
		},
		{
			name:      "faucet emptied before inclusion",
			status:    types.ReceiptStatusFailed,
			callErr:   customRevert(faucet.ErrNameInsufficientBalance),
			wantPhase: claim.Failed,
			wantKind:  claim.KindInsufficientBalance,
			wantSent:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			node := ethtest.NewNode(t, 31337)
			node.SetEstimateError(tt.estimateErr)
			node.SetCallError(tt.callErr)
			node.SetReceiptStatus(tt.status)
			c := dialTest(t, node)
			s := NewSigner(c, faucet.NewContract(faucetAddr, c))

			sub := claim.NewSubmitter(s, claim.WithPollInterval(5*time.Millisecond))
			a, err := sub.Submit(context.Background())

			assert.Equal(t, tt.wantPhase, a.Phase)
			assert.Len(t, node.Sent(), tt.wantSent)
			if tt.wantPhase == claim.Confirmed {
				require.NoError(t, err)
				assert.Equal(t, int64(2), a.BlockNumber.Int64())
				return
			}
			assert.True(t, claim.IsKind(err, tt.wantKind), "got %v", err)
		})
	}
}

func TestClient_SwitchNetwork(t *testing.T) {
	mainnet := ethtest.NewNode(t, 1)
	local := ethtest.NewNode(t, 31337)
	liar := ethtest.NewNode(t, 1)

	localNet := &config.Network{Name: "local", ChainID: 31337, RPCURL: local.URL}
	liarNet := &config.Network{Name: "liar", ChainID: 5, RPCURL: liar.URL}
	c := dialTest(t, mainnet, WithNetworks(localNet, liarNet))

	id, _ := c.ChainID(context.Background())
	assert.Equal(t, uint64(1), id)

	require.NoError(t, c.SwitchNetwork(context.Background(), 31337))
	id, _ = c.ChainID(context.Background())
	assert.Equal(t, uint64(31337), id)
	assert.Equal(t, "local", c.Network().Name)

	// switching to the current network is a no-op
	require.NoError(t, c.SwitchNetwork(context.Background(), 31337))

	err := c.SwitchNetwork(context.Background(), 999)
	assert.ErrorIs(t, err, ErrUnknownNetwork)

	err = c.SwitchNetwork(context.Background(), 5)
	assert.Error(t, err)
	assert.Equal(t, "local", c.Network().Name, "a failed switch keeps the current connection")
}

func TestClient_CallsAfterClose(t *testing.T) {
	node := ethtest.NewNode(t, 31337)
	c := dialTest(t, node)
	reader := faucet.NewReader(faucet.NewContract(faucetAddr, c))
	signer := NewSigner(c, reader.Contract())

	c.Close()
	c.Close()

	ctx := context.Background()
	_, err := c.Balance(ctx)
	assert.ErrorIs(t, err, ErrClosed)
	_, err = c.Send(ctx, faucetAddr, big.NewInt(1))
	assert.ErrorIs(t, err, ErrClosed)
	_, err = c.TransactOpts(ctx)
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, c.SwitchNetwork(ctx, 1), ErrClosed)

	_, err = signer.SignClaim(ctx)
	assert.ErrorIs(t, err, ErrClosed)
	_, err = signer.TransactionReceipt(ctx, common.Hash{})
	assert.ErrorIs(t, err, ErrClosed)

	_, err = reader.ReadBalance(ctx)
	var readErr *faucet.ReadError
	require.ErrorAs(t, err, &readErr)
	assert.ErrorIs(t, err, ErrClosed)
	assert.Empty(t, node.Sent())
}

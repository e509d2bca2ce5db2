package wallet

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/emmanuelist/wallet-wave/config"
	"github.com/emmanuelist/wallet-wave/logger"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Client is a wallet connected to one network at a time. It also serves as
// the read backend of a faucet.Contract, so reads follow network switches.
type Client struct {
	wallet   *Wallet
	networks []*config.Network
	log      *logger.Logger

	mu      sync.RWMutex
	eth     *ethclient.Client
	network *config.Network
	chainID uint64
	closed  bool
}

type ClientOption func(*Client)

// WithNetworks registers the networks SwitchNetwork may move to.
func WithNetworks(networks ...*config.Network) ClientOption {
	return func(c *Client) {
		c.networks = append(c.networks, networks...)
	}
}

func WithClientLogger(l *logger.Logger) ClientOption {
	return func(c *Client) {
		c.log = l
	}
}

// Dial connects w to network. The chain id is taken from the node; a
// mismatch with the configured one is logged and later caught by callers
// comparing ChainID.
func Dial(ctx context.Context, w *Wallet, network *config.Network, opts ...ClientOption) (*Client, error) {
	c := &Client{
		wallet:   w,
		networks: []*config.Network{network},
		log:      logger.GetLogger().Named("wallet"),
	}
	for _, opt := range opts {
		opt(c)
	}

	eth, chainID, err := dial(ctx, network)
	if err != nil {
		return nil, err
	}
	if network.ChainID != 0 && network.ChainID != chainID {
		c.log.Warn("rpc reports a different chain than configured", "network", network.Name, "configured", network.ChainID, "reported", chainID)
	}
	c.eth, c.network, c.chainID = eth, network, chainID
	return c, nil
}

func dial(ctx context.Context, network *config.Network) (*ethclient.Client, uint64, error) {
	eth, err := ethclient.DialContext(ctx, network.RPCURL)
	if err != nil {
		return nil, 0, fmt.Errorf("dial %s: %w", network.Name, err)
	}
	id, err := eth.ChainID(ctx)
	if err != nil {
		eth.Close()
		return nil, 0, fmt.Errorf("chain id of %s: %w", network.Name, err)
	}
	return eth, id.Uint64(), nil
}

func (c *Client) Address() common.Address {
	return c.wallet.Address
}

// Eth is the RPC client of the current network.
func (c *Client) Eth() *ethclient.Client {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.eth
}

// conn is the RPC client for wallet calls, or ErrClosed after Close.
func (c *Client) conn() (*ethclient.Client, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return nil, ErrClosed
	}
	return c.eth, nil
}

// Network is the network the client is currently connected to.
func (c *Client) Network() *config.Network {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.network
}

// Balance returns the wallet's native balance in wei
func (c *Client) Balance(ctx context.Context) (*big.Int, error) {
	return c.BalanceAt(ctx, c.wallet.Address, nil)
}

func (c *Client) BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error) {
	eth, err := c.conn()
	if err != nil {
		return nil, err
	}
	return eth.BalanceAt(ctx, account, blockNumber)
}

func (c *Client) CodeAt(ctx context.Context, contract common.Address, blockNumber *big.Int) ([]byte, error) {
	eth, err := c.conn()
	if err != nil {
		return nil, err
	}
	return eth.CodeAt(ctx, contract, blockNumber)
}

func (c *Client) CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	eth, err := c.conn()
	if err != nil {
		return nil, err
	}
	return eth.CallContract(ctx, call, blockNumber)
}

// Send transfers value wei to an address and returns the broadcast transaction.
func (c *Client) Send(ctx context.Context, to common.Address, value *big.Int) (*types.Transaction, error) {
	tx, err := c.signTx(ctx, &to, value, nil)
	if err != nil {
		return nil, err
	}
	eth, err := c.conn()
	if err != nil {
		return nil, err
	}
	if err := eth.SendTransaction(ctx, tx); err != nil {
		return nil, fmt.Errorf("send transaction: %w", err)
	}
	c.log.Info("transfer sent", "to", to.Hex(), "value", value, "tx", tx.Hash().Hex())
	return tx, nil
}

// WaitMined blocks until tx is included.
func (c *Client) WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	eth, err := c.conn()
	if err != nil {
		return nil, err
	}
	return bind.WaitMined(ctx, eth, tx)
}

// TransactOpts returns keyed transact options for the current network.
func (c *Client) TransactOpts(ctx context.Context) (*bind.TransactOpts, error) {
	if c.isClosed() {
		return nil, ErrClosed
	}
	opts, err := bind.NewKeyedTransactorWithChainID(c.wallet.privateKey, new(big.Int).SetUint64(c.currentChainID()))
	if err != nil {
		return nil, err
	}
	opts.Context = ctx
	return opts, nil
}

// Close releases the RPC connection. Readers and signers still holding c get
// ErrClosed from then on.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.eth.Close()
}

// signTx builds and signs a legacy transaction with estimated gas. Gas
// estimation errors are returned unwrapped so revert data survives.
func (c *Client) signTx(ctx context.Context, to *common.Address, value *big.Int, data []byte) (*types.Transaction, error) {
	eth, err := c.conn()
	if err != nil {
		return nil, err
	}
	from := c.wallet.Address
	if value == nil {
		value = new(big.Int)
	}

	nonce, err := eth.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, fmt.Errorf("failed to get nonce: %w", err)
	}
	gasPrice, err := eth.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to suggest gas price: %w", err)
	}
	gasLimit, err := eth.EstimateGas(ctx, ethereum.CallMsg{From: from, To: to, Value: value, Data: data})
	if err != nil {
		return nil, err
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       to,
		Value:    value,
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     data,
	})
	chainID := new(big.Int).SetUint64(c.currentChainID())
	signed, err := types.SignTx(tx, types.NewEIP155Signer(chainID), c.wallet.privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}
	return signed, nil
}

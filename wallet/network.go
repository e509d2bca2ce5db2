package wallet

import (
	"context"
	"errors"
	"fmt"

	"github.com/emmanuelist/wallet-wave/config"
)

var (
	ErrUnknownNetwork = errors.New("unknown network")
	ErrClosed         = errors.New("wallet client closed")
)

// ChainID is the chain the wallet currently signs for, as reported by its node.
func (c *Client) ChainID(ctx context.Context) (uint64, error) {
	return c.currentChainID(), nil
}

func (c *Client) currentChainID() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.chainID
}

// SwitchNetwork reconnects to the registered network with chainID. The old
// connection is kept when the new one cannot be established.
func (c *Client) SwitchNetwork(ctx context.Context, chainID uint64) error {
	if c.isClosed() {
		return ErrClosed
	}
	if c.currentChainID() == chainID {
		return nil
	}
	target := c.lookup(chainID)
	if target == nil {
		return fmt.Errorf("%w: chain %d", ErrUnknownNetwork, chainID)
	}

	eth, reported, err := dial(ctx, target)
	if err != nil {
		return err
	}
	if reported != chainID {
		eth.Close()
		return fmt.Errorf("network %s reports chain %d, expected %d", target.Name, reported, chainID)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		eth.Close()
		return ErrClosed
	}
	old := c.eth
	c.eth, c.network, c.chainID = eth, target, reported
	c.mu.Unlock()
	old.Close()
	c.log.Info("switched network", "network", target.Name, "chainId", chainID)
	return nil
}

func (c *Client) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

func (c *Client) lookup(chainID uint64) *config.Network {
	for _, n := range c.networks {
		if n.ChainID == chainID {
			return n
		}
	}
	return nil
}

package config

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

const (
	DefaultClaimAmount    = "0.01"
	DefaultClaimInterval  = 24 * time.Hour
	DefaultFundAmount     = "0.02"
	DefaultConfirmations  = 5
	DefaultPollInterval   = 2 * time.Second
	DefaultConfirmTimeout = 2 * time.Minute
	DefaultRefillSchedule = "@every 30m"
)

type Schema struct {
	Global   Global     `yaml:"global"`
	Network  *Network   `yaml:"network"`
	Networks []*Network `yaml:"networks"`
	Faucet   Faucet     `yaml:"faucet"`
	Wallet   Wallet     `yaml:"wallet"`
	Deploy   Deploy     `yaml:"deploy"`
	Refill   *Refill    `yaml:"refill"`
}

type Global struct {
	LogLevel   string `yaml:"logLevel"`
	ListenAddr string `yaml:"listenAddr"`
}

// Network is an RPC endpoint for one chain.
type Network struct {
	Name      string `yaml:"name"`
	ChainID   uint64 `yaml:"chainId"`
	RPCURL    string `yaml:"rpcUrl"`
	RPCURLEnv string `yaml:"rpcUrlEnv"`
}

type Faucet struct {
	Address        string        `yaml:"address"`
	AddressEnv     string        `yaml:"addressEnv"`
	PollInterval   time.Duration `yaml:"pollInterval"`
	ConfirmTimeout time.Duration `yaml:"confirmTimeout"`
}

type Wallet struct {
	KeyFile string `yaml:"keyFile"`
	KeyEnv  string `yaml:"keyEnv"`
}

// Deploy holds operator deployment parameters. Amounts are in ETH.
type Deploy struct {
	Artifact      string        `yaml:"artifact"`
	ClaimAmount   string        `yaml:"claimAmount"`
	ClaimInterval time.Duration `yaml:"claimInterval"`
	FundAmount    string        `yaml:"fundAmount"`
	Confirmations uint64        `yaml:"confirmations"`
}

// Refill configures the operator auto top-up. Amounts are in ETH.
type Refill struct {
	Schedule  string `yaml:"schedule"`
	Threshold string `yaml:"threshold"`
	Amount    string `yaml:"amount"`
}

// FaucetAddress returns the configured faucet contract address.
func (s *Schema) FaucetAddress() common.Address {
	return common.HexToAddress(s.Faucet.Address)
}

// NetworkByChainID looks up the primary network or one of the switch targets.
func (s *Schema) NetworkByChainID(chainID uint64) (*Network, bool) {
	if s.Network != nil && s.Network.ChainID == chainID {
		return s.Network, true
	}
	for _, n := range s.Networks {
		if n.ChainID == chainID {
			return n, true
		}
	}
	return nil, false
}

func (s *Schema) Normalize() error {
	if s.Global.LogLevel == "" {
		s.Global.LogLevel = "info"
	}
	if s.Network != nil {
		s.Network.Normalize()
	}
	for _, n := range s.Networks {
		n.Normalize()
	}
	s.Faucet.Normalize()
	s.Deploy.Normalize()
	if s.Refill != nil {
		s.Refill.Normalize()
	}
	return nil
}

func (n *Network) Normalize() {
	if n.RPCURLEnv != "" {
		if v := os.Getenv(n.RPCURLEnv); v != "" {
			n.RPCURL = v
		}
	}
}

func (f *Faucet) Normalize() {
	if f.AddressEnv != "" {
		if v := os.Getenv(f.AddressEnv); v != "" {
			f.Address = v
		}
	}
	if f.PollInterval <= 0 {
		f.PollInterval = DefaultPollInterval
	}
	if f.ConfirmTimeout <= 0 {
		f.ConfirmTimeout = DefaultConfirmTimeout
	}
}

func (d *Deploy) Normalize() {
	if d.ClaimAmount == "" {
		d.ClaimAmount = DefaultClaimAmount
	}
	if d.ClaimInterval <= 0 {
		d.ClaimInterval = DefaultClaimInterval
	}
	if d.FundAmount == "" {
		d.FundAmount = DefaultFundAmount
	}
	if d.Confirmations == 0 {
		d.Confirmations = DefaultConfirmations
	}
}

func (r *Refill) Normalize() {
	if r.Schedule == "" {
		r.Schedule = DefaultRefillSchedule
	}
}

// Validate checks the fields every command needs: a network and a faucet address.
func (s *Schema) Validate() error {
	if s.Network == nil {
		return fmt.Errorf("network is required")
	}
	if s.Network.RPCURL == "" {
		return fmt.Errorf("network %q is missing rpcUrl", s.Network.Name)
	}
	if s.Network.ChainID == 0 {
		return fmt.Errorf("network %q is missing chainId", s.Network.Name)
	}
	for _, n := range s.Networks {
		if n.ChainID == 0 || n.RPCURL == "" {
			return fmt.Errorf("network %q needs both chainId and rpcUrl", n.Name)
		}
	}
	if s.Faucet.Address != "" && !common.IsHexAddress(s.Faucet.Address) {
		return fmt.Errorf("invalid faucet address %q", s.Faucet.Address)
	}
	return nil
}

// RequireFaucet fails when no faucet contract address is configured.
func (s *Schema) RequireFaucet() error {
	if s.Faucet.Address == "" {
		return fmt.Errorf("faucet address is required (set faucet.address or %s)", envOr(s.Faucet.AddressEnv, "faucet.addressEnv"))
	}
	return nil
}

func envOr(env, fallback string) string {
	if env != "" {
		return env
	}
	return fallback
}

// Read decodes, normalizes and validates a config document.
func Read(r io.Reader) (*Schema, error) {
	cfg := &Schema{}
	if err := yaml.NewDecoder(r).Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Normalize(); err != nil {
		return nil, fmt.Errorf("failed to normalize config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// Load reads the config file at path.
func Load(path string) (*Schema, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer f.Close()
	return Read(f)
}

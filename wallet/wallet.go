package wallet

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/emmanuelist/wallet-wave/config"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var ErrNoKey = errors.New("no wallet key configured")

// Wallet is a local secp256k1 key and its account address.
type Wallet struct {
	Address    common.Address
	privateKey *ecdsa.PrivateKey
}

// Generate creates a new random wallet
func Generate() (*Wallet, error) {
	privateKey, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	return fromKey(privateKey), nil
}

// FromHex loads a wallet from a hex private key, with or without 0x.
func FromHex(hexKey string) (*Wallet, error) {
	hexKey = strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	privateKey, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return fromKey(privateKey), nil
}

// Load reads a wallet from a key file written by Save
func Load(path string) (*Wallet, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}
	return FromHex(string(b))
}

// LoadFromConfig prefers the key in cfg.KeyEnv and falls back to cfg.KeyFile.
func LoadFromConfig(cfg config.Wallet) (*Wallet, error) {
	if cfg.KeyEnv != "" {
		if v := os.Getenv(cfg.KeyEnv); v != "" {
			return FromHex(v)
		}
	}
	if cfg.KeyFile != "" {
		return Load(cfg.KeyFile)
	}
	return nil, ErrNoKey
}

func fromKey(privateKey *ecdsa.PrivateKey) *Wallet {
	return &Wallet{
		Address:    crypto.PubkeyToAddress(privateKey.PublicKey),
		privateKey: privateKey,
	}
}

func (w *Wallet) PrivateKeyHex() string {
	return fmt.Sprintf("%x", crypto.FromECDSA(w.privateKey))
}

// Save writes the private key to path, readable by the owner only.
func (w *Wallet) Save(path string) error {
	if err := os.WriteFile(path, []byte(w.PrivateKeyHex()), 0600); err != nil {
		return fmt.Errorf("write key file: %w", err)
	}
	return nil
}

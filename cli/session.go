package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/emmanuelist/wallet-wave/claim"
	"github.com/emmanuelist/wallet-wave/config"
	"github.com/emmanuelist/wallet-wave/faucet"
	"github.com/emmanuelist/wallet-wave/logger"
	"github.com/emmanuelist/wallet-wave/orchestrator"
	"github.com/emmanuelist/wallet-wave/wallet"
)

// ConfigPath is bound to the root --config flag.
var ConfigPath = "config.yaml"

func loadConfig() (*config.Schema, error) {
	cfg, err := config.Load(ConfigPath)
	if err != nil {
		return nil, err
	}
	if err := logger.InitFromLevel(cfg.Global.LogLevel); err != nil {
		return nil, err
	}
	return cfg, nil
}

// session is a configured wallet connected to the primary network, plus the
// faucet binding when an address is configured.
type session struct {
	cfg    *config.Schema
	client *wallet.Client
	reader *faucet.Reader
}

func openSession(ctx context.Context, requireFaucet bool) (*session, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if requireFaucet {
		if err := cfg.RequireFaucet(); err != nil {
			return nil, err
		}
	}
	w, err := wallet.LoadFromConfig(cfg.Wallet)
	if err != nil {
		return nil, err
	}
	client, err := wallet.Dial(ctx, w, cfg.Network, wallet.WithNetworks(cfg.Networks...))
	if err != nil {
		return nil, err
	}

	s := &session{cfg: cfg, client: client}
	if cfg.Faucet.Address != "" {
		s.reader = faucet.NewReader(faucet.NewContract(cfg.FaucetAddress(), client), faucet.WithCache())
	}
	return s, nil
}

func (s *session) faucetContract() *faucet.Contract {
	return s.reader.Contract()
}

// orchestrator wires the claim flow for the session's wallet.
func (s *session) orchestrator() *orchestrator.Orchestrator {
	signer := wallet.NewSigner(s.client, s.faucetContract())
	return orchestrator.New(orchestrator.Session{
		Account: s.client.Address(),
		ChainID: s.cfg.Network.ChainID,
		Signer:  signer,
	}, s.reader,
		orchestrator.WithConfirmTimeout(s.cfg.Faucet.ConfirmTimeout),
		orchestrator.WithSubmitterOptions(claim.WithPollInterval(s.cfg.Faucet.PollInterval)),
	)
}

func (s *session) Close() {
	s.client.Close()
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func fatal(err error) {
	logger.Fatalf("%v", err)
}

func printf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stdout, format, args...)
}

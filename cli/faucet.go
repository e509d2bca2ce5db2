package cli

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"os"

	"github.com/emmanuelist/wallet-wave/claim"
	"github.com/emmanuelist/wallet-wave/cooldown"
	"github.com/emmanuelist/wallet-wave/faucet"
	"github.com/emmanuelist/wallet-wave/operator"
	"github.com/emmanuelist/wallet-wave/orchestrator"
	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
)

var (
	claimSwitch bool
	claimWait   bool

	statusAccount string
)

var ClaimCmd = &cobra.Command{
	Use:   "claim",
	Short: "Claim ETH from the faucet",
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := signalContext()
		defer cancel()

		s, err := openSession(ctx, true)
		if err != nil {
			fatal(err)
		}
		defer s.Close()

		if err := runClaim(ctx, s); err != nil {
			fatal(err)
		}
	},
}

var StatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show faucet status and claim eligibility",
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := signalContext()
		defer cancel()

		s, err := openSession(ctx, true)
		if err != nil {
			fatal(err)
		}
		defer s.Close()

		account := s.client.Address()
		if statusAccount != "" {
			if !common.IsHexAddress(statusAccount) {
				fatal(errors.New("invalid account address"))
			}
			account = common.HexToAddress(statusAccount)
		}
		st, err := s.reader.ReadStatus(ctx, account)
		if err != nil {
			fatal(err)
		}
		if err := operator.WriteStatus(os.Stdout, st); err != nil {
			fatal(err)
		}
	},
}

func runClaim(ctx context.Context, s *session) error {
	before, err := s.client.Balance(ctx)
	if err != nil {
		return err
	}
	printf("Account: %s\nBalance: %s ETH\n", s.client.Address().Hex(), faucet.FormatEther(before))

	o := s.orchestrator()
	defer o.Close()

	ready := make(chan struct{}, 1)
	last := claim.Idle
	cancelSub := o.Subscribe(func(st orchestrator.State) {
		if p := st.Phase(); p != last {
			last = p
			printPhase(st)
		}
		if st.CanClaim() {
			select {
			case ready <- struct{}{}:
			default:
			}
		}
	})
	defer cancelSub()

	if err := o.Connect(ctx); err != nil {
		return err
	}

	st := o.State()
	if !st.CanClaim() && claimWait && st.Eligibility != nil {
		printf("Waiting %s for the next claim window...\n", cooldown.Format(st.SecondsRemaining))
		select {
		case <-ready:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	err = o.RequestClaim(ctx)
	if errors.Is(err, orchestrator.ErrWrongNetwork) && claimSwitch {
		printf("Switching wallet to chain %d...\n", s.cfg.Network.ChainID)
		if err := o.SwitchNetwork(ctx); err != nil {
			return err
		}
		err = o.RequestClaim(ctx)
	}
	if err != nil {
		return err
	}
	o.Wait()

	st = o.State()
	switch {
	case st.LastOutcome == nil && st.Attempt != nil:
		printf("Claim still pending (tx %s); run status later to see whether it landed.\n", st.Attempt.TxHash.Hex())
		return nil
	case st.LastOutcome == nil:
		return errors.New("claim finished without an outcome")
	case st.LastOutcome.Phase != claim.Confirmed:
		if st.LastOutcome.Err != nil {
			return st.LastOutcome.Err
		}
		return fmt.Errorf("claim %s", st.LastOutcome.Phase)
	}

	after, err := s.client.Balance(ctx)
	if err != nil {
		return err
	}
	printf("New balance: %s ETH\nClaimed: %s ETH\n", faucet.FormatEther(after), faucet.FormatEther(netClaimed(before, after, *st.LastOutcome)))
	return nil
}

func printPhase(st orchestrator.State) {
	a := st.Attempt
	if a == nil {
		if o := st.LastOutcome; o != nil && o.Phase == claim.Confirmed {
			printf("Claim confirmed in block %s\n", o.BlockNumber)
		}
		return
	}
	switch a.Phase {
	case claim.Submitting:
		printf("Submitting claim...\n")
	case claim.PendingConfirmation:
		printf("Transaction sent: %s\nWaiting for confirmation...\n", a.TxHash.Hex())
	}
}

// netClaimed is the balance increase with the claim's gas cost added back.
func netClaimed(before, after *big.Int, a claim.Attempt) *big.Int {
	delta := new(big.Int).Sub(after, before)
	if a.EffectiveGasPrice != nil {
		gas := new(big.Int).Mul(new(big.Int).SetUint64(a.GasUsed), a.EffectiveGasPrice)
		delta.Add(delta, gas)
	}
	return delta
}

func init() {
	ClaimCmd.Flags().BoolVar(&claimSwitch, "switch", false, "switch the wallet to the faucet network when it is on another chain")
	ClaimCmd.Flags().BoolVar(&claimWait, "wait", false, "wait for the cooldown to end instead of failing")
	StatusCmd.Flags().StringVar(&statusAccount, "account", "", "account to check (defaults to the configured wallet)")
}

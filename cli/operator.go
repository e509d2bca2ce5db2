package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/emmanuelist/wallet-wave/faucet"
	"github.com/emmanuelist/wallet-wave/logger"
	"github.com/emmanuelist/wallet-wave/operator"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/spf13/cobra"
)

var (
	deployArtifact string
	deployAmount   string
	deployInterval time.Duration
	deployFund     string
	deployConfirms uint64

	refillOnce bool
)

var DeployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Deploy and fund a new faucet contract",
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := signalContext()
		defer cancel()

		s, err := openSession(ctx, false)
		if err != nil {
			fatal(err)
		}
		defer s.Close()

		d := s.cfg.Deploy
		if deployArtifact != "" {
			d.Artifact = deployArtifact
		}
		if deployAmount != "" {
			d.ClaimAmount = deployAmount
		}
		if deployInterval > 0 {
			d.ClaimInterval = deployInterval
		}
		if deployFund != "" {
			d.FundAmount = deployFund
		}
		if cmd.Flags().Changed("confirmations") {
			d.Confirmations = deployConfirms
		}
		if d.Artifact == "" {
			fatal(fmt.Errorf("artifact path is required (deploy.artifact or --artifact)"))
		}

		art, err := operator.LoadArtifact(d.Artifact)
		if err != nil {
			fatal(err)
		}
		amount, err := faucet.ParseEther(d.ClaimAmount)
		if err != nil {
			fatal(err)
		}
		fund, err := faucet.ParseEther(d.FundAmount)
		if err != nil {
			fatal(err)
		}

		bal, err := s.client.Balance(ctx)
		if err != nil {
			fatal(err)
		}
		printf("Deploying %s with account %s (balance %s ETH)\n", art.ContractName, s.client.Address().Hex(), faucet.FormatEther(bal))
		printf("- Claim Amount: %s ETH\n- Claim Interval: %s\n- Funding: %s ETH\n\n", faucet.FormatEther(amount), d.ClaimInterval, faucet.FormatEther(fund))

		dep, err := operator.Deploy(ctx, s.client.Eth(), s.client, art, operator.DeployParams{
			ClaimAmount:   amount,
			ClaimInterval: d.ClaimInterval,
			FundAmount:    fund,
			Confirmations: d.Confirmations,
		}, operator.WithBlockPollInterval(s.cfg.Faucet.PollInterval))
		if err != nil {
			if dep != nil {
				printf("Contract was deployed to %s before the failure\n", dep.Address.Hex())
			}
			fatal(err)
		}

		reader := faucet.NewReader(faucet.NewContract(dep.Address, s.client))
		st, err := reader.ReadStatus(ctx, s.client.Address())
		if err != nil {
			fatal(err)
		}
		if err := operator.WriteDeployment(os.Stdout, dep, st); err != nil {
			fatal(err)
		}
	},
}

var FundCmd = &cobra.Command{
	Use:   "fund [amount]",
	Short: "Send ETH from the wallet to the faucet contract",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := signalContext()
		defer cancel()

		s, err := openSession(ctx, true)
		if err != nil {
			fatal(err)
		}
		defer s.Close()

		amount, err := faucet.ParseEther(args[0])
		if err != nil {
			fatal(err)
		}
		tx, err := s.client.Send(ctx, s.cfg.FaucetAddress(), amount)
		if err != nil {
			fatal(err)
		}
		printf("Funding faucet with %s ETH: %s\n", faucet.FormatEther(amount), tx.Hash().Hex())
		receipt, err := s.client.WaitMined(ctx, tx)
		if err != nil {
			fatal(err)
		}
		if receipt.Status != types.ReceiptStatusSuccessful {
			fatal(fmt.Errorf("funding transaction %s reverted", tx.Hash().Hex()))
		}

		bal, err := s.reader.ReadBalance(ctx)
		if err != nil {
			fatal(err)
		}
		printf("Faucet balance: %s ETH\n", faucet.FormatEther(bal))
	},
}

var RefillCmd = &cobra.Command{
	Use:   "refill",
	Short: "Top up the faucet on a schedule whenever its balance is low",
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := signalContext()
		defer cancel()

		s, err := openSession(ctx, true)
		if err != nil {
			fatal(err)
		}
		defer s.Close()
		if s.cfg.Refill == nil {
			fatal(fmt.Errorf("refill section is missing from the config"))
		}

		r, err := newRefiller(s)
		if err != nil {
			fatal(err)
		}
		if refillOnce {
			if _, err := r.Check(ctx); err != nil {
				fatal(err)
			}
			return
		}

		if err := r.Start(); err != nil {
			fatal(err)
		}
		printf("Next check at %s\n", r.NextRun().Format(time.RFC1123))
		<-ctx.Done()
		r.Stop()
	},
}

// newRefiller builds the refiller from the config's refill section.
func newRefiller(s *session) (*operator.Refiller, error) {
	threshold, err := faucet.ParseEther(s.cfg.Refill.Threshold)
	if err != nil {
		return nil, fmt.Errorf("refill threshold: %w", err)
	}
	amount, err := faucet.ParseEther(s.cfg.Refill.Amount)
	if err != nil {
		return nil, fmt.Errorf("refill amount: %w", err)
	}
	log := logger.GetLogger().Named("refill")
	return operator.NewRefiller(s.reader, s.client, s.cfg.FaucetAddress(), s.cfg.Refill.Schedule, threshold, amount,
		operator.WithRefillLogger(log),
		operator.WithOnEvent(func(ev operator.RefillEvent) {
			s.reader.InvalidateBalance()
			if ev.Refilled {
				log.Info("faucet refilled", "amount", faucet.FormatEther(ev.Amount), "tx", ev.TxHash.Hex(), "took", ev.Duration)
			}
		}),
	)
}

func init() {
	DeployCmd.Flags().StringVar(&deployArtifact, "artifact", "", "hardhat artifact of the faucet contract")
	DeployCmd.Flags().StringVar(&deployAmount, "claim-amount", "", "ETH paid per claim")
	DeployCmd.Flags().DurationVar(&deployInterval, "claim-interval", 0, "cooldown between claims")
	DeployCmd.Flags().StringVar(&deployFund, "fund", "", "ETH sent to the contract after deployment")
	DeployCmd.Flags().Uint64Var(&deployConfirms, "confirmations", 0, "confirmations to wait for")
	RefillCmd.Flags().BoolVar(&refillOnce, "once", false, "run a single check and exit")
}

package cli

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/emmanuelist/wallet-wave/faucet"
	"github.com/emmanuelist/wallet-wave/wallet"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/spf13/cobra"
)

var generateOut string

var WalletCmd = &cobra.Command{
	Use:   "wallet",
	Short: "Manage the claiming wallet",
}

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a new wallet",
	Run: func(cmd *cobra.Command, args []string) {
		w, err := wallet.Generate()
		if err != nil {
			fatal(err)
		}
		printf("Address: %s\n", w.Address.Hex())
		if generateOut == "" {
			printf("Private key: %s\n", w.PrivateKeyHex())
			return
		}
		if err := w.Save(generateOut); err != nil {
			fatal(err)
		}
		printf("Key saved to %s\n", generateOut)
	},
}

var balanceCmd = &cobra.Command{
	Use:   "balance [address]",
	Short: "Check a balance (defaults to the configured wallet)",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ctx, cancel := signalContext()
		defer cancel()

		s, err := openSession(ctx, false)
		if err != nil {
			fatal(err)
		}
		defer s.Close()

		addr := s.client.Address()
		if len(args) == 1 {
			if !common.IsHexAddress(args[0]) {
				fatal(errors.New("invalid address"))
			}
			addr = common.HexToAddress(args[0])
		}
		bal, err := s.client.BalanceAt(ctx, addr, nil)
		if err != nil {
			fatal(err)
		}
		printf("%s: %s ETH on %s\n", addr.Hex(), faucet.FormatEther(bal), s.client.Network().Name)
	},
}

var sendCmd = &cobra.Command{
	Use:   "send [toAddress] [amount]",
	Short: "Send ETH",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		if !common.IsHexAddress(args[0]) {
			fatal(errors.New("invalid recipient address"))
		}
		amount, err := faucet.ParseEther(args[1])
		if err != nil {
			fatal(err)
		}

		ctx, cancel := signalContext()
		defer cancel()
		s, err := openSession(ctx, false)
		if err != nil {
			fatal(err)
		}
		defer s.Close()

		tx, err := s.client.Send(ctx, common.HexToAddress(args[0]), amount)
		if err != nil {
			fatal(err)
		}
		printf("Transaction sent: %s\n", tx.Hash().Hex())
		receipt, err := s.client.WaitMined(ctx, tx)
		if err != nil {
			fatal(err)
		}
		if receipt.Status != types.ReceiptStatusSuccessful {
			fatal(fmt.Errorf("transaction %s reverted", tx.Hash().Hex()))
		}
		printf("Confirmed in block %s\n", receipt.BlockNumber)
	},
}

var switchCmd = &cobra.Command{
	Use:   "switch [chainId]",
	Short: "Check that the wallet can switch to a configured network",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		chainID, err := strconv.ParseUint(args[0], 10, 64)
		if err != nil {
			fatal(fmt.Errorf("invalid chain id %q", args[0]))
		}

		ctx, cancel := signalContext()
		defer cancel()
		s, err := openSession(ctx, false)
		if err != nil {
			fatal(err)
		}
		defer s.Close()

		if err := s.client.SwitchNetwork(ctx, chainID); err != nil {
			fatal(err)
		}
		bal, err := s.client.Balance(ctx)
		if err != nil {
			fatal(err)
		}
		printf("Switched to %s (chain %d), balance %s ETH\n", s.client.Network().Name, chainID, faucet.FormatEther(bal))
	},
}

func init() {
	generateCmd.Flags().StringVar(&generateOut, "out", "", "write the key to this file instead of printing it")

	WalletCmd.AddCommand(generateCmd)
	WalletCmd.AddCommand(balanceCmd)
	WalletCmd.AddCommand(sendCmd)
	WalletCmd.AddCommand(switchCmd)
}

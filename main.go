package main

import (
	"fmt"
	"os"

	"github.com/emmanuelist/wallet-wave/cli"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "wallet-wave",
	Short: "A command-line client for a rate-limited ETH faucet",
}

func main() {
	rootCmd.PersistentFlags().StringVar(&cli.ConfigPath, "config", cli.ConfigPath, "path to the config file")

	rootCmd.AddCommand(cli.ClaimCmd)
	rootCmd.AddCommand(cli.StatusCmd)
	rootCmd.AddCommand(cli.WatchCmd)
	rootCmd.AddCommand(cli.DeployCmd)
	rootCmd.AddCommand(cli.FundCmd)
	rootCmd.AddCommand(cli.RefillCmd)
	rootCmd.AddCommand(cli.WalletCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

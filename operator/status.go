package operator

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/emmanuelist/wallet-wave/cooldown"
	"github.com/emmanuelist/wallet-wave/faucet"
)

// WriteStatus prints a faucet status snapshot for an operator.
func WriteStatus(w io.Writer, st faucet.Status) error {
	interval := strconv.FormatFloat(st.Parameters.ClaimIntervalDuration().Hours(), 'f', -1, 64)

	lines := []string{
		fmt.Sprintf("Contract Address: %s", st.Address.Hex()),
		"",
		"Contract Status:",
		fmt.Sprintf("- Balance: %s ETH", faucet.FormatEther(st.Balance)),
		fmt.Sprintf("- Owner: %s", st.Owner.Hex()),
		fmt.Sprintf("- Claim Amount: %s ETH", faucet.FormatEther(st.Parameters.ClaimAmount)),
		fmt.Sprintf("- Claim Interval: %s hours", interval),
		"",
		fmt.Sprintf("Account: %s", st.Account.Hex()),
	}
	if st.Eligibility.Eligible {
		lines = append(lines, "- Can Claim: Yes")
	} else {
		lines = append(lines,
			"- Can Claim: No",
			fmt.Sprintf("- Time Until Next Claim: %s", cooldown.Format(st.Eligibility.SecondsRemaining)),
		)
	}
	if st.NeverClaimed() {
		lines = append(lines, "- Last Claimed: Never")
	} else {
		lines = append(lines, fmt.Sprintf("- Last Claimed: %s", st.LastClaimTime.Local().Format(time.RFC1123)))
	}

	for _, l := range lines {
		if _, err := fmt.Fprintln(w, l); err != nil {
			return err
		}
	}
	return nil
}

// WriteDeployment prints the deployment result and the line to put in the
// client configuration.
func WriteDeployment(w io.Writer, d *Deployment, st faucet.Status) error {
	if _, err := fmt.Fprintf(w, "Faucet deployed to: %s (tx %s)\n", d.Address.Hex(), d.DeployTx.Hex()); err != nil {
		return err
	}
	if d.FundBlock != 0 {
		if _, err := fmt.Fprintf(w, "Funded in tx %s\n", d.FundTx.Hex()); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintln(w); err != nil {
		return err
	}
	if err := WriteStatus(w, st); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "\nSet this address in your configuration:\nFAUCET_CONTRACT_ADDRESS=%s\n", d.Address.Hex())
	return err
}

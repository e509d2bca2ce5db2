package operator

import (
	"bytes"
	"testing"
	"time"

	"github.com/emmanuelist/wallet-wave/faucet"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStatus() faucet.Status {
	return faucet.Status{
		Address: faucetAddr,
		Owner:   common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"),
		Balance: eth(20),
		Parameters: faucet.Parameters{
			ClaimAmount:   eth(10),
			ClaimInterval: 86400,
		},
		Account:     common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8"),
		Eligibility: faucet.Eligibility{Eligible: true},
	}
}

func TestWriteStatus(t *testing.T) {
	t.Run("eligible, never claimed", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, WriteStatus(&buf, testStatus()))
		out := buf.String()
		assert.Contains(t, out, "Contract Address: 0x5FbDB2315678afecb367f032d93F642f64180aa3")
		assert.Contains(t, out, "- Balance: 0.02 ETH")
		assert.Contains(t, out, "- Owner: 0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
		assert.Contains(t, out, "- Claim Amount: 0.01 ETH")
		assert.Contains(t, out, "- Claim Interval: 24 hours")
		assert.Contains(t, out, "- Can Claim: Yes")
		assert.NotContains(t, out, "Time Until Next Claim")
		assert.Contains(t, out, "- Last Claimed: Never")
	})

	t.Run("cooling down", func(t *testing.T) {
		st := testStatus()
		st.Parameters.ClaimInterval = 5400
		st.Eligibility = faucet.Eligibility{Eligible: false, SecondsRemaining: 3723}
		st.LastClaimTime = time.Unix(1700000000, 0)

		var buf bytes.Buffer
		require.NoError(t, WriteStatus(&buf, st))
		out := buf.String()
		assert.Contains(t, out, "- Claim Interval: 1.5 hours")
		assert.Contains(t, out, "- Can Claim: No")
		assert.Contains(t, out, "- Time Until Next Claim: 1h 2m")
		assert.NotContains(t, out, "Never")
	})
}

func TestWriteDeployment(t *testing.T) {
	d := &Deployment{
		Address:   faucetAddr,
		DeployTx:  common.HexToHash("0x01"),
		FundTx:    common.HexToHash("0x02"),
		FundBlock: 3,
	}
	var buf bytes.Buffer
	require.NoError(t, WriteDeployment(&buf, d, testStatus()))
	out := buf.String()
	assert.Contains(t, out, "Faucet deployed to: 0x5FbDB2315678afecb367f032d93F642f64180aa3")
	assert.Contains(t, out, "Funded in tx 0x0000000000000000000000000000000000000000000000000000000000000002")
	assert.Contains(t, out, "FAUCET_CONTRACT_ADDRESS=0x5FbDB2315678afecb367f032d93F642f64180aa3")
}

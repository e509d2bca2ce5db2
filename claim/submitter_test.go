package claim

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/emmanuelist/wallet-wave/faucet"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockTransactor struct {
	mock.Mock
}

func (m *mockTransactor) SignClaim(ctx context.Context) (*types.Transaction, error) {
	args := m.Called(ctx)
	tx, _ := args.Get(0).(*types.Transaction)
	return tx, args.Error(1)
}

func (m *mockTransactor) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	return m.Called(ctx, tx).Error(0)
}

func (m *mockTransactor) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	args := m.Called(ctx, txHash)
	r, _ := args.Get(0).(*types.Receipt)
	return r, args.Error(1)
}

func (m *mockTransactor) ReplayClaim(ctx context.Context, tx *types.Transaction, block *big.Int) error {
	return m.Called(ctx, tx, block).Error(0)
}

// revertErr mimics the JSON-RPC error for a reverted call.
type revertErr struct {
	data string
}

func (e *revertErr) Error() string          { return "execution reverted" }
func (e *revertErr) ErrorCode() int         { return 3 }
func (e *revertErr) ErrorData() interface{} { return e.data }

func customRevert(name string) error {
	return &revertErr{data: hexutil.Encode(faucet.ErrorSelector(name))}
}

func claimTx(nonce uint64) *types.Transaction {
	to := common.HexToAddress("0x5FbDB2315678afecb367f032d93F642f64180aa3")
	return types.NewTx(&types.LegacyTx{Nonce: nonce, To: &to, Gas: 60000, GasPrice: big.NewInt(1), Data: faucet.PackClaim()})
}

func receipt(tx *types.Transaction, status uint64, block int64) *types.Receipt {
	return &types.Receipt{
		Status:            status,
		TxHash:            tx.Hash(),
		BlockNumber:       big.NewInt(block),
		BlockHash:         common.HexToHash("0xb10c"),
		GasUsed:           45000,
		EffectiveGasPrice: big.NewInt(2),
	}
}

type phaseRecorder struct {
	mu     sync.Mutex
	phases []Phase
}

func (r *phaseRecorder) record(a Attempt) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.phases = append(r.phases, a.Phase)
}

func (r *phaseRecorder) get() []Phase {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Phase(nil), r.phases...)
}

func newTestSubmitter(tx Transactor) (*Submitter, *phaseRecorder) {
	s := NewSubmitter(tx, WithPollInterval(5*time.Millisecond))
	rec := &phaseRecorder{}
	s.OnPhase(rec.record)
	return s, rec
}

func TestSubmitter_HappyPath(t *testing.T) {
	m := &mockTransactor{}
	tx := claimTx(1)
	m.On("SignClaim", mock.Anything).Return(tx, nil)
	m.On("SendTransaction", mock.Anything, tx).Return(nil)
	m.On("TransactionReceipt", mock.Anything, tx.Hash()).Return(nil, ethereum.NotFound).Twice()
	m.On("TransactionReceipt", mock.Anything, tx.Hash()).Return(receipt(tx, types.ReceiptStatusSuccessful, 100), nil)

	s, rec := newTestSubmitter(m)
	a, err := s.Submit(context.Background())
	require.NoError(t, err)

	assert.Equal(t, Confirmed, a.Phase)
	assert.Equal(t, tx.Hash(), a.TxHash)
	assert.Equal(t, int64(100), a.BlockNumber.Int64())
	assert.Equal(t, uint64(45000), a.GasUsed)
	assert.Equal(t, []Phase{Submitting, PendingConfirmation, Confirmed}, rec.get())
	m.AssertNotCalled(t, "ReplayClaim", mock.Anything, mock.Anything, mock.Anything)
}

func TestSubmitter_SignerRejected(t *testing.T) {
	m := &mockTransactor{}
	cause := errors.New("user denied transaction signature")
	m.On("SignClaim", mock.Anything).Return(nil, cause)

	s, rec := newTestSubmitter(m)
	a, err := s.Submit(context.Background())
	require.Error(t, err)

	assert.Equal(t, Rejected, a.Phase)
	assert.True(t, IsKind(err, KindSignerRejected))
	assert.Same(t, cause, errors.Unwrap(err), "cause must be preserved verbatim")
	assert.Equal(t, []Phase{Submitting, Rejected}, rec.get())
	m.AssertNotCalled(t, "SendTransaction", mock.Anything, mock.Anything)
}

func TestSubmitter_RevertDuringPreparationFails(t *testing.T) {
	m := &mockTransactor{}
	m.On("SignClaim", mock.Anything).Return(nil, customRevert(faucet.ErrNameClaimTooSoon))

	s, rec := newTestSubmitter(m)
	a, err := s.Submit(context.Background())

	assert.Equal(t, Failed, a.Phase)
	assert.True(t, IsKind(err, KindClaimTooSoon))
	assert.Equal(t, []Phase{Submitting, Failed}, rec.get())
}

func TestSubmitter_BroadcastRejected(t *testing.T) {
	m := &mockTransactor{}
	tx := claimTx(2)
	cause := errors.New("nonce too low")
	m.On("SignClaim", mock.Anything).Return(tx, nil)
	m.On("SendTransaction", mock.Anything, tx).Return(cause)

	s, rec := newTestSubmitter(m)
	a, err := s.Submit(context.Background())

	assert.Equal(t, Failed, a.Phase)
	assert.True(t, IsKind(err, KindUnknownRevert))
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, []Phase{Submitting, Failed}, rec.get())
}

func TestSubmitter_OnChainRevertClassified(t *testing.T) {
	tests := []struct {
		name     string
		replay   error
		// replayed at the inclusion block when the parent-block replay passes
		replayAt error
		wantKind Kind
	}{
		{"too soon", customRevert(faucet.ErrNameClaimTooSoon), nil, KindClaimTooSoon},
		{"depleted", customRevert(faucet.ErrNameInsufficientBalance), nil, KindInsufficientBalance},
		{"other", errors.New("execution reverted: paused"), nil, KindUnknownRevert},
		{"same block claim", nil, customRevert(faucet.ErrNameClaimTooSoon), KindClaimTooSoon},
		{"both replays succeed", nil, nil, KindUnknownRevert},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &mockTransactor{}
			tx := claimTx(3)
			m.On("SignClaim", mock.Anything).Return(tx, nil)
			m.On("SendTransaction", mock.Anything, tx).Return(nil)
			m.On("TransactionReceipt", mock.Anything, tx.Hash()).Return(receipt(tx, types.ReceiptStatusFailed, 50), nil)
			m.On("ReplayClaim", mock.Anything, tx, big.NewInt(49)).Return(tt.replay).Once()
			if tt.replay == nil {
				m.On("ReplayClaim", mock.Anything, tx, big.NewInt(50)).Return(tt.replayAt).Once()
			}

			s, rec := newTestSubmitter(m)
			a, err := s.Submit(context.Background())
			require.Error(t, err)

			assert.Equal(t, Failed, a.Phase)
			assert.Equal(t, tt.wantKind, a.Err.Kind)
			assert.True(t, IsKind(err, tt.wantKind))
			assert.NotNil(t, a.Err.Raw)
			if raw := tt.replay; raw != nil {
				assert.Same(t, raw, a.Err.Raw)
			} else if tt.replayAt != nil {
				assert.Same(t, tt.replayAt, a.Err.Raw)
			}
			m.AssertExpectations(t)
			assert.Equal(t, []Phase{Submitting, PendingConfirmation, Failed}, rec.get())
		})
	}
}

func TestSubmitter_AlreadyInProgress(t *testing.T) {
	m := &mockTransactor{}
	tx := claimTx(4)
	release := make(chan struct{})
	m.On("SignClaim", mock.Anything).Return(tx, nil).Once()
	m.On("SendTransaction", mock.Anything, tx).Return(nil).Once()
	m.On("TransactionReceipt", mock.Anything, tx.Hash()).Return(nil, ethereum.NotFound).Run(func(mock.Arguments) { <-release }).Once()
	m.On("TransactionReceipt", mock.Anything, tx.Hash()).Return(receipt(tx, types.ReceiptStatusSuccessful, 7), nil)

	s, rec := newTestSubmitter(m)
	done := make(chan error, 1)
	go func() {
		_, err := s.Submit(context.Background())
		done <- err
	}()

	require.Eventually(t, func() bool { return s.Attempt().Phase == PendingConfirmation }, 2*time.Second, time.Millisecond)
	before := rec.get()

	a, err := s.Submit(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyInProgress)
	assert.Equal(t, PendingConfirmation, a.Phase)
	assert.Equal(t, before, rec.get(), "rejected submit must not transition")

	close(release)
	require.NoError(t, <-done)
	m.AssertNumberOfCalls(t, "SignClaim", 1)

	// terminal attempts block new submissions until reset
	_, err = s.Submit(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyInProgress)
	require.NoError(t, s.Reset())
	assert.Equal(t, Idle, s.Attempt().Phase)
}

func TestSubmitter_AbandonAndResume(t *testing.T) {
	m := &mockTransactor{}
	tx := claimTx(5)
	m.On("SignClaim", mock.Anything).Return(tx, nil)
	m.On("SendTransaction", mock.Anything, tx).Return(nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.On("TransactionReceipt", mock.Anything, tx.Hash()).Return(nil, ethereum.NotFound).Run(func(mock.Arguments) { cancel() }).Once()
	m.On("TransactionReceipt", mock.Anything, tx.Hash()).Return(nil, ethereum.NotFound).Twice()
	m.On("TransactionReceipt", mock.Anything, tx.Hash()).Return(nil, errors.New("503 service unavailable")).Once()
	m.On("TransactionReceipt", mock.Anything, tx.Hash()).Return(receipt(tx, types.ReceiptStatusSuccessful, 9), nil)

	s, rec := newTestSubmitter(m)
	a, err := s.Submit(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, PendingConfirmation, a.Phase, "abandoning must not make the attempt terminal")
	assert.True(t, s.Abandoned())
	assert.Error(t, s.Reset())

	a, err = s.Resume(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Confirmed, a.Phase)
	assert.Equal(t, []Phase{Submitting, PendingConfirmation, Confirmed}, rec.get())

	_, err = s.Resume(context.Background())
	assert.Error(t, err)
}

func TestPhase_CanTransition(t *testing.T) {
	all := []Phase{Idle, Submitting, PendingConfirmation, Confirmed, Rejected, Failed}
	allowed := map[[2]Phase]bool{
		{Idle, Submitting}:                true,
		{Submitting, PendingConfirmation}: true,
		{Submitting, Rejected}:            true,
		{Submitting, Failed}:              true,
		{PendingConfirmation, Confirmed}:  true,
		{PendingConfirmation, Failed}:     true,
	}
	for _, from := range all {
		for _, to := range all {
			assert.Equal(t, allowed[[2]Phase{from, to}], from.CanTransition(to), "%s -> %s", from, to)
		}
	}
}

func TestErrorJSON(t *testing.T) {
	e := &Error{Kind: KindInsufficientBalance, Raw: errors.New("execution reverted")}
	b, err := e.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"kind":"InsufficientBalance","message":"Faucet is empty. Please try again later.","raw":"execution reverted"}`, string(b))
	assert.False(t, KindInsufficientBalance.Retryable())
	assert.True(t, KindClaimTooSoon.Retryable())
}

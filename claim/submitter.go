package claim

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/emmanuelist/wallet-wave/faucet"
	"github.com/emmanuelist/wallet-wave/logger"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

const DefaultPollInterval = 2 * time.Second

var (
	errNotPending = errors.New("no attempt is pending confirmation")
	errWaiting    = errors.New("confirmation is already being awaited")
	errNotDone    = errors.New("attempt has not reached a terminal phase")
)

// Transactor is the wallet capability needed to claim: sign, broadcast,
// observe receipts and replay a reverted claim to recover its reason.
type Transactor interface {
	// SignClaim builds and signs a claim() transaction without sending it.
	SignClaim(ctx context.Context) (*types.Transaction, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	// TransactionReceipt returns ethereum.NotFound while tx is not yet included.
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	// ReplayClaim re-executes tx's claim call against the state at block.
	ReplayClaim(ctx context.Context, tx *types.Transaction, block *big.Int) error
}

// Submitter drives one claim attempt at a time through its phases.
type Submitter struct {
	tx           Transactor
	pollInterval time.Duration
	log          *logger.Logger

	notifyMu  sync.Mutex
	mu        sync.Mutex
	attempt   Attempt
	pending   *types.Transaction
	waiting   bool
	nextID    uint64
	observers []func(Attempt)
}

type SubmitterOption func(*Submitter)

// WithPollInterval sets how often receipts are polled while pending.
func WithPollInterval(d time.Duration) SubmitterOption {
	return func(s *Submitter) {
		if d > 0 {
			s.pollInterval = d
		}
	}
}

func WithLogger(l *logger.Logger) SubmitterOption {
	return func(s *Submitter) {
		s.log = l
	}
}

func NewSubmitter(tx Transactor, opts ...SubmitterOption) *Submitter {
	s := &Submitter{
		tx:           tx,
		pollInterval: DefaultPollInterval,
		log:          logger.GetLogger().Named("submitter"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OnPhase registers fn to be called, in order, with every phase the attempt enters.
func (s *Submitter) OnPhase(fn func(Attempt)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, fn)
}

// Attempt returns a copy of the current attempt.
func (s *Submitter) Attempt() Attempt {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempt.clone()
}

// Submit runs a claim from Idle to a terminal phase. It fails with
// ErrAlreadyInProgress, without any transition, unless the submitter is Idle.
//
// If ctx ends while waiting for inclusion the attempt stays
// PendingConfirmation and ctx's error is returned; the broadcast transaction
// is not revoked. Use Resume to keep waiting.
func (s *Submitter) Submit(ctx context.Context) (Attempt, error) {
	if err := s.begin(); err != nil {
		return s.Attempt(), err
	}

	signed, err := s.tx.SignClaim(ctx)
	if err != nil {
		if _, reverted := faucet.DecodeRevert(err); reverted {
			// the node refused the call while preparing it: an on-chain failure
			return s.fail(classifyRevert(err))
		}
		cerr := &Error{Kind: KindSignerRejected, Raw: err}
		a := s.transition(Rejected, func(a *Attempt) { a.Err = cerr })
		return a, cerr
	}

	if err := s.tx.SendTransaction(ctx, signed); err != nil {
		return s.fail(classifyRevert(err))
	}

	s.mu.Lock()
	s.pending = signed
	s.waiting = true
	s.mu.Unlock()
	s.transition(PendingConfirmation, func(a *Attempt) { a.TxHash = signed.Hash() })
	s.log.Info("claim broadcast", "tx", signed.Hash().Hex())

	return s.await(ctx, signed)
}

// Resume keeps waiting for the outcome of an attempt left PendingConfirmation.
func (s *Submitter) Resume(ctx context.Context) (Attempt, error) {
	s.mu.Lock()
	if s.attempt.Phase != PendingConfirmation || s.pending == nil {
		s.mu.Unlock()
		return s.Attempt(), errNotPending
	}
	if s.waiting {
		s.mu.Unlock()
		return s.Attempt(), errWaiting
	}
	s.waiting = true
	signed := s.pending
	s.mu.Unlock()

	return s.await(ctx, signed)
}

// Abandoned reports whether an attempt is pending with nobody waiting on it.
func (s *Submitter) Abandoned() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempt.Phase == PendingConfirmation && !s.waiting
}

// Reset discards a terminal attempt and returns to Idle.
func (s *Submitter) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.attempt.Phase == Idle:
		return nil
	case !s.attempt.Phase.Terminal():
		return errNotDone
	}
	s.attempt = Attempt{}
	s.pending = nil
	return nil
}

func (s *Submitter) begin() error {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	if s.attempt.Phase != Idle {
		s.mu.Unlock()
		return ErrAlreadyInProgress
	}
	s.nextID++
	s.attempt = Attempt{ID: s.nextID, Phase: Submitting, SubmittedAt: time.Now()}
	snapshot, observers := s.attempt.clone(), s.observers
	s.mu.Unlock()

	s.log.Debug("claim attempt started", "attempt", snapshot.ID)
	for _, fn := range observers {
		fn(snapshot)
	}
	return nil
}

func (s *Submitter) await(ctx context.Context, signed *types.Transaction) (Attempt, error) {
	defer func() {
		s.mu.Lock()
		s.waiting = false
		s.mu.Unlock()
	}()

	receipt, err := s.waitMined(ctx, signed.Hash())
	if err != nil {
		s.log.Warn("stopped waiting for claim confirmation", "tx", signed.Hash().Hex(), "err", err)
		return s.Attempt(), err
	}

	if receipt.Status == types.ReceiptStatusSuccessful {
		a := s.transition(Confirmed, func(a *Attempt) { setReceipt(a, receipt) })
		s.log.Info("claim confirmed", "tx", signed.Hash().Hex(), "block", receipt.BlockNumber)
		return a, nil
	}

	raw := s.revertCause(ctx, signed, receipt)
	cerr := classifyRevert(raw)
	a := s.transition(Failed, func(a *Attempt) {
		setReceipt(a, receipt)
		a.Err = cerr
	})
	s.log.Warn("claim reverted", "tx", signed.Hash().Hex(), "kind", cerr.Kind.String(), "err", raw)
	return a, cerr
}

// waitMined polls for the receipt. Lookup errors other than NotFound are
// transient: the outcome is unknown, not failed.
func (s *Submitter) waitMined(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		receipt, err := s.tx.TransactionReceipt(ctx, hash)
		switch {
		case err == nil && receipt != nil:
			return receipt, nil
		case err != nil && !errors.Is(err, ethereum.NotFound):
			s.log.Debug("receipt lookup failed", "tx", hash.Hex(), "err", err)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *Submitter) revertCause(ctx context.Context, signed *types.Transaction, receipt *types.Receipt) error {
	var block *big.Int
	if receipt.BlockNumber != nil && receipt.BlockNumber.Sign() > 0 {
		block = new(big.Int).Sub(receipt.BlockNumber, big.NewInt(1))
	}
	err := s.tx.ReplayClaim(ctx, signed, block)
	if err == nil && block != nil {
		// a claim earlier in the same block can be what made this one revert
		err = s.tx.ReplayClaim(ctx, signed, receipt.BlockNumber)
	}
	if err == nil {
		return fmt.Errorf("transaction %s reverted in block %v", signed.Hash().Hex(), receipt.BlockNumber)
	}
	return err
}

func (s *Submitter) fail(cerr *Error) (Attempt, error) {
	a := s.transition(Failed, func(a *Attempt) { a.Err = cerr })
	s.log.Warn("claim failed", "kind", cerr.Kind.String(), "err", cerr.Raw)
	return a, cerr
}

// transition moves the attempt forward and notifies observers in order.
// Backward or skipping moves are programming errors and are ignored.
func (s *Submitter) transition(to Phase, mutate func(*Attempt)) Attempt {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	from := s.attempt.Phase
	if !from.CanTransition(to) {
		snapshot := s.attempt.clone()
		s.mu.Unlock()
		s.log.Error("invalid claim phase transition", "from", from.String(), "to", to.String())
		return snapshot
	}
	if mutate != nil {
		mutate(&s.attempt)
	}
	s.attempt.Phase = to
	snapshot, observers := s.attempt.clone(), s.observers
	s.mu.Unlock()

	s.log.Debug("claim phase", "attempt", snapshot.ID, "from", from.String(), "to", to.String())
	for _, fn := range observers {
		fn(snapshot)
	}
	return snapshot
}

func setReceipt(a *Attempt, r *types.Receipt) {
	if r.TxHash != (common.Hash{}) {
		a.TxHash = r.TxHash
	}
	a.BlockHash = r.BlockHash
	a.GasUsed = r.GasUsed
	if r.BlockNumber != nil {
		a.BlockNumber = new(big.Int).Set(r.BlockNumber)
	}
	if r.EffectiveGasPrice != nil {
		a.EffectiveGasPrice = new(big.Int).Set(r.EffectiveGasPrice)
	}
}

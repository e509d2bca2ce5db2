// Package orchestrator composes the faucet reader, the cooldown clock and the
// claim submitter into one claim flow for a single account.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/emmanuelist/wallet-wave/claim"
	"github.com/emmanuelist/wallet-wave/cooldown"
	"github.com/emmanuelist/wallet-wave/faucet"
	"github.com/emmanuelist/wallet-wave/logger"
	"github.com/ethereum/go-ethereum/common"
)

var (
	// ErrNotEligible rejects a claim locally, before anything is sent.
	ErrNotEligible  = errors.New("not eligible to claim")
	ErrWrongNetwork = errors.New("wallet is connected to the wrong network")
	ErrClosed       = errors.New("orchestrator is closed")
)

const defaultReadTimeout = 30 * time.Second

// Signer is the wallet side of a session.
type Signer interface {
	claim.Transactor
	// ChainID is the network the wallet currently signs for.
	ChainID(ctx context.Context) (uint64, error)
	SwitchNetwork(ctx context.Context, chainID uint64) error
}

// Session is the explicit wallet context of one orchestrator.
type Session struct {
	Account common.Address
	// ChainID is the network the faucet lives on.
	ChainID uint64
	Signer  Signer
}

// invalidator is implemented by caching readers.
type invalidator interface {
	Invalidate(account common.Address)
	InvalidateBalance()
}

type Orchestrator struct {
	session        Session
	reader         faucet.ChainReader
	submitter      *claim.Submitter
	clock          *cooldown.Clock
	log            *logger.Logger
	confirmTimeout time.Duration
	readTimeout    time.Duration
	clockOpts      []cooldown.Option
	submitterOpts  []claim.SubmitterOption

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup // every background goroutine
	claims sync.WaitGroup // attempts only

	mu          sync.Mutex
	params      *faucet.Parameters
	eligibility *faucet.Eligibility
	balance     *big.Int
	readErr     error
	paramsErr   error
	lastOutcome *claim.Attempt
	inFlight    bool
	closed      bool
	updatedAt   time.Time

	notifyMu    sync.Mutex
	subMu       sync.Mutex
	subscribers map[uint64]func(State)
	nextSub     uint64
}

type Option func(*Orchestrator)

func WithLogger(l *logger.Logger) Option {
	return func(o *Orchestrator) {
		o.log = l
	}
}

// WithConfirmTimeout bounds how long one attempt waits for its receipt.
// When it fires the attempt stays pending; Refresh resumes it.
func WithConfirmTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		o.confirmTimeout = d
	}
}

func WithReadTimeout(d time.Duration) Option {
	return func(o *Orchestrator) {
		if d > 0 {
			o.readTimeout = d
		}
	}
}

func WithClockOptions(opts ...cooldown.Option) Option {
	return func(o *Orchestrator) {
		o.clockOpts = append(o.clockOpts, opts...)
	}
}

func WithSubmitterOptions(opts ...claim.SubmitterOption) Option {
	return func(o *Orchestrator) {
		o.submitterOpts = append(o.submitterOpts, opts...)
	}
}

func New(session Session, reader faucet.ChainReader, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		session:     session,
		reader:      reader,
		log:         logger.GetLogger().Named("orchestrator"),
		readTimeout: defaultReadTimeout,
		subscribers: make(map[uint64]func(State)),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.ctx, o.cancel = context.WithCancel(context.Background())

	clockOpts := append([]cooldown.Option{cooldown.WithOnTick(func(uint64) { o.notify() })}, o.clockOpts...)
	o.clock = cooldown.New(o.onReachZero, clockOpts...)

	submitterOpts := append([]claim.SubmitterOption{claim.WithLogger(o.log.Named("submitter"))}, o.submitterOpts...)
	o.submitter = claim.NewSubmitter(session.Signer, submitterOpts...)
	o.submitter.OnPhase(func(claim.Attempt) { o.notify() })
	return o
}

// Connect reads the faucet parameters once, then eligibility and balance.
// Read failures are recorded in the state and the first one is returned.
func (o *Orchestrator) Connect(ctx context.Context) error {
	if o.isClosed() {
		return ErrClosed
	}
	first := o.readParams(ctx)
	if err := o.sync(ctx, true); err != nil && first == nil {
		first = err
	}
	return first
}

// readParams reads the faucet parameters. The error stays in the state until
// a later read succeeds.
func (o *Orchestrator) readParams(ctx context.Context) error {
	params, err := o.reader.ReadParameters(ctx)
	o.mu.Lock()
	defer o.mu.Unlock()
	if err != nil {
		o.paramsErr = err
		return err
	}
	o.params, o.paramsErr = &params, nil
	return nil
}

// State returns the current snapshot.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.stateLocked()
}

// Subscribe calls fn with a fresh snapshot after every change, in order.
// fn runs synchronously on the notifying goroutine and must not call back
// into the orchestrator except through State.
func (o *Orchestrator) Subscribe(fn func(State)) (cancel func()) {
	o.subMu.Lock()
	defer o.subMu.Unlock()
	o.nextSub++
	id := o.nextSub
	o.subscribers[id] = fn
	return func() {
		o.subMu.Lock()
		defer o.subMu.Unlock()
		delete(o.subscribers, id)
	}
}

// RequestClaim starts a claim attempt in the background. It fails
// synchronously with ErrNotEligible unless the last read showed the account
// eligible, the countdown is at zero and no attempt is in progress.
func (o *Orchestrator) RequestClaim(ctx context.Context) error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return ErrClosed
	}
	if err := o.gateLocked(); err != nil {
		o.mu.Unlock()
		return err
	}
	o.inFlight = true
	o.mu.Unlock()

	if err := o.checkNetwork(ctx); err != nil {
		o.mu.Lock()
		o.inFlight = false
		o.mu.Unlock()
		return err
	}

	return o.startAttempt(func(ctx context.Context) (claim.Attempt, error) {
		return o.submitter.Submit(ctx)
	})
}

// Refresh re-reads eligibility and balance, and the parameters if they were
// never read. An attempt left pending by an earlier timeout is resumed.
func (o *Orchestrator) Refresh(ctx context.Context) error {
	if o.isClosed() {
		return ErrClosed
	}
	o.mu.Lock()
	needParams := o.params == nil
	o.mu.Unlock()
	var err error
	if needParams {
		err = o.readParams(ctx)
	}
	if serr := o.sync(ctx, true); serr != nil && err == nil {
		err = serr
	}

	o.mu.Lock()
	resume := !o.inFlight && o.submitter.Abandoned()
	if resume {
		o.inFlight = true
	}
	o.mu.Unlock()
	if resume {
		o.log.Info("resuming pending claim", "tx", o.submitter.Attempt().TxHash.Hex())
		if serr := o.startAttempt(o.submitter.Resume); serr != nil {
			return serr
		}
	}
	return err
}

// SwitchNetwork asks the wallet to move to the faucet's network and re-reads.
func (o *Orchestrator) SwitchNetwork(ctx context.Context) error {
	if err := o.session.Signer.SwitchNetwork(ctx, o.session.ChainID); err != nil {
		return fmt.Errorf("switch to chain %d: %w", o.session.ChainID, err)
	}
	return o.Refresh(ctx)
}

// Wait blocks until no attempt is running.
func (o *Orchestrator) Wait() {
	o.claims.Wait()
}

// Close stops the countdown and abandons any confirmation wait. A broadcast
// claim is not revoked by closing.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	o.mu.Unlock()

	o.cancel()
	o.clock.Stop()
	o.wg.Wait()
}

func (o *Orchestrator) gateLocked() error {
	st := o.stateLocked()
	switch {
	case o.inFlight || st.Attempt != nil:
		return fmt.Errorf("%w: a claim is already in progress", ErrNotEligible)
	case st.Eligibility == nil:
		return fmt.Errorf("%w: eligibility unknown", ErrNotEligible)
	case !st.Eligibility.Eligible || st.SecondsRemaining > 0:
		return fmt.Errorf("%w: next claim in %s", ErrNotEligible, cooldown.Format(st.SecondsRemaining))
	}
	return nil
}

func (o *Orchestrator) checkNetwork(ctx context.Context) error {
	current, err := o.session.Signer.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("wallet chain id: %w", err)
	}
	if current != o.session.ChainID {
		return fmt.Errorf("%w: wallet on %d, faucet on %d", ErrWrongNetwork, current, o.session.ChainID)
	}
	return nil
}

func (o *Orchestrator) startAttempt(run func(ctx context.Context) (claim.Attempt, error)) error {
	o.mu.Lock()
	if o.closed {
		o.inFlight = false
		o.mu.Unlock()
		return ErrClosed
	}
	o.wg.Add(1)
	o.claims.Add(1)
	o.mu.Unlock()

	go func() {
		defer o.wg.Done()
		defer o.claims.Done()

		ctx, cancel := o.ctx, context.CancelFunc(func() {})
		if o.confirmTimeout > 0 {
			ctx, cancel = context.WithTimeout(o.ctx, o.confirmTimeout)
		}
		defer cancel()

		a, err := run(ctx)
		o.settle(a, err)
	}()
	return nil
}

// settle resynchronizes after an attempt ends. A terminal attempt is moved
// to LastOutcome and the submitter returns to Idle once the re-read is done.
func (o *Orchestrator) settle(a claim.Attempt, err error) {
	if !a.Phase.Terminal() {
		o.log.Warn("claim outcome unknown, attempt left pending", "tx", a.TxHash.Hex(), "err", err)
		o.mu.Lock()
		o.inFlight = false
		o.mu.Unlock()
		o.notify()
		return
	}

	if a.Phase == claim.Confirmed {
		o.log.Info("claim confirmed", "tx", a.TxHash.Hex(), "block", a.BlockNumber)
	} else {
		o.log.Warn("claim ended", "phase", a.Phase.String(), "err", err)
	}

	// a failed claim may or may not have consumed the cooldown, so always re-read
	ctx, cancel := context.WithTimeout(o.ctx, o.readTimeout)
	defer cancel()
	_ = o.sync(ctx, true)

	o.mu.Lock()
	outcome := a
	o.lastOutcome = &outcome
	o.inFlight = false
	o.updatedAt = time.Now()
	if rerr := o.submitter.Reset(); rerr != nil {
		o.log.Error("reset submitter", "err", rerr)
	}
	o.mu.Unlock()
	o.notify()
}

// onReachZero runs on the clock goroutine: the re-read happens elsewhere.
func (o *Orchestrator) onReachZero() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.wg.Add(1)
	o.mu.Unlock()

	go func() {
		defer o.wg.Done()
		ctx, cancel := context.WithTimeout(o.ctx, o.readTimeout)
		defer cancel()
		o.log.Debug("cooldown reached zero, re-reading eligibility")
		_ = o.sync(ctx, false)
	}()
}

// sync re-reads eligibility, and the balance when withBalance is set, then
// reseeds the clock from the fresh value.
func (o *Orchestrator) sync(ctx context.Context, withBalance bool) error {
	if inv, ok := o.reader.(invalidator); ok {
		inv.Invalidate(o.session.Account)
		if withBalance {
			inv.InvalidateBalance()
		}
	}

	var first error
	e, err := o.reader.ReadEligibility(ctx, o.session.Account)
	o.mu.Lock()
	if err != nil {
		first = err
		o.eligibility = nil
		o.seedLocked(0)
	} else {
		o.eligibility = &e
		switch {
		case e.Eligible:
			o.seedLocked(0)
		case e.SecondsRemaining == 0:
			// ineligible with nothing left to wait: read again on the next tick
			o.seedLocked(1)
		default:
			o.seedLocked(e.SecondsRemaining)
		}
	}
	o.mu.Unlock()

	if withBalance {
		bal, berr := o.reader.ReadBalance(ctx)
		o.mu.Lock()
		if berr != nil {
			o.balance = nil
			if first == nil {
				first = berr
			}
		} else {
			o.balance = bal
		}
		o.mu.Unlock()
	}

	o.mu.Lock()
	o.readErr = first
	o.updatedAt = time.Now()
	o.mu.Unlock()

	if first != nil {
		o.log.Warn("faucet read failed", "account", o.session.Account.Hex(), "err", first)
	}
	o.notify()
	return first
}

// seedLocked reseeds the clock unless Close already stopped it.
func (o *Orchestrator) seedLocked(seconds uint64) {
	if !o.closed {
		o.clock.Start(seconds)
	}
}

func (o *Orchestrator) stateLocked() State {
	st := State{
		Account:   o.session.Account,
		ChainID:   o.session.ChainID,
		ReadErr:   o.readErr,
		UpdatedAt: o.updatedAt,
	}
	if st.ReadErr == nil {
		st.ReadErr = o.paramsErr
	}
	st.Stale = st.ReadErr != nil
	if o.eligibility != nil {
		e := *o.eligibility
		st.Eligibility = &e
		if !e.Eligible {
			st.SecondsRemaining = o.clock.Remaining()
		}
	}
	if o.balance != nil {
		st.Balance = new(big.Int).Set(o.balance)
	}
	if o.params != nil {
		p := *o.params
		st.Parameters = &p
	}
	if a := o.submitter.Attempt(); a.Phase != claim.Idle {
		st.Attempt = &a
	}
	if o.lastOutcome != nil {
		a := *o.lastOutcome
		st.LastOutcome = &a
	}
	return st
}

func (o *Orchestrator) notify() {
	o.notifyMu.Lock()
	defer o.notifyMu.Unlock()

	st := o.State()
	o.subMu.Lock()
	subs := make([]func(State), 0, len(o.subscribers))
	for _, fn := range o.subscribers {
		subs = append(subs, fn)
	}
	o.subMu.Unlock()

	for _, fn := range subs {
		fn(st)
	}
}

func (o *Orchestrator) isClosed() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closed
}

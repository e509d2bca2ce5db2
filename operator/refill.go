package operator

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/emmanuelist/wallet-wave/faucet"
	"github.com/emmanuelist/wallet-wave/logger"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/robfig/cron/v3"
)

// BalanceReader reads the faucet balance.
type BalanceReader interface {
	ReadBalance(ctx context.Context) (*big.Int, error)
}

// Funder sends ETH from the operator wallet. *wallet.Client satisfies it.
type Funder interface {
	Address() common.Address
	Send(ctx context.Context, to common.Address, value *big.Int) (*types.Transaction, error)
	WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error)
}

// RefillEvent records one balance check.
type RefillEvent struct {
	Balance   *big.Int
	Threshold *big.Int
	Amount    *big.Int
	Refilled  bool
	TxHash    common.Hash
	Err       error
	Timestamp time.Time
	Duration  time.Duration
}

// Refiller tops up the faucet on a cron schedule whenever its balance
// falls below a threshold.
type Refiller struct {
	reader    BalanceReader
	funder    Funder
	faucet    common.Address
	threshold *big.Int
	amount    *big.Int
	schedule  string
	timeout   time.Duration
	onEvent   func(RefillEvent)
	log       *logger.Logger

	cron    *cron.Cron
	running bool
	mutex   sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
}

type RefillOption func(*Refiller)

// WithOnEvent is called after every check, scheduled or not.
func WithOnEvent(fn func(RefillEvent)) RefillOption {
	return func(r *Refiller) {
		r.onEvent = fn
	}
}

// WithCheckTimeout bounds a single scheduled check.
func WithCheckTimeout(d time.Duration) RefillOption {
	return func(r *Refiller) {
		r.timeout = d
	}
}

func WithRefillLogger(l *logger.Logger) RefillOption {
	return func(r *Refiller) {
		r.log = l
	}
}

// NewRefiller validates the refill settings. schedule uses cron syntax
// with an optional seconds field, or descriptors such as "@every 30m".
func NewRefiller(reader BalanceReader, funder Funder, faucetAddr common.Address, schedule string, threshold, amount *big.Int, opts ...RefillOption) (*Refiller, error) {
	if threshold == nil || threshold.Sign() <= 0 {
		return nil, fmt.Errorf("refill threshold must be positive")
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, fmt.Errorf("refill amount must be positive")
	}
	ctx, cancel := context.WithCancel(context.Background())
	r := &Refiller{
		reader:    reader,
		funder:    funder,
		faucet:    faucetAddr,
		threshold: threshold,
		amount:    amount,
		schedule:  schedule,
		timeout:   5 * time.Minute,
		log:       logger.GetLogger().Named("refill"),
		cron:      cron.New(cron.WithSeconds()),
		ctx:       ctx,
		cancel:    cancel,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Start schedules the check. It does not run one immediately.
func (r *Refiller) Start() error {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if r.running {
		return fmt.Errorf("refiller is already running")
	}
	if r.ctx.Err() != nil {
		return fmt.Errorf("refiller is stopped")
	}
	if _, err := r.cron.AddFunc(r.schedule, r.runScheduled); err != nil {
		return fmt.Errorf("failed to add cron job: %w", err)
	}
	r.cron.Start()
	r.running = true
	r.log.Infof("auto-refill scheduled (%s) below %s ETH", r.schedule, faucet.FormatEther(r.threshold))
	return nil
}

// Stop waits for a running check to finish.
func (r *Refiller) Stop() {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.cancel()
	if !r.running {
		return
	}
	<-r.cron.Stop().Done()
	r.running = false
	r.log.Infof("auto-refill stopped")
}

// NextRun is the time of the next scheduled check, zero when not running.
func (r *Refiller) NextRun() time.Time {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if !r.running {
		return time.Time{}
	}
	entries := r.cron.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

func (r *Refiller) runScheduled() {
	ctx, cancel := context.WithTimeout(r.ctx, r.timeout)
	defer cancel()
	if _, err := r.Check(ctx); err != nil {
		r.log.Error("refill check failed", "err", err)
	}
}

// Check reads the faucet balance and sends the refill amount when it is
// below the threshold, waiting for the transfer to be mined.
func (r *Refiller) Check(ctx context.Context) (RefillEvent, error) {
	ev := RefillEvent{Threshold: r.threshold, Amount: r.amount, Timestamp: time.Now()}
	defer func() {
		ev.Duration = time.Since(ev.Timestamp)
		if r.onEvent != nil {
			r.onEvent(ev)
		}
	}()

	bal, err := r.reader.ReadBalance(ctx)
	if err != nil {
		ev.Err = err
		return ev, err
	}
	ev.Balance = bal
	if bal.Cmp(r.threshold) >= 0 {
		r.log.Debug("faucet balance above threshold", "balance", faucet.FormatEther(bal), "threshold", faucet.FormatEther(r.threshold))
		return ev, nil
	}

	r.log.Info("faucet balance below threshold, refilling", "balance", faucet.FormatEther(bal), "amount", faucet.FormatEther(r.amount))
	tx, err := r.funder.Send(ctx, r.faucet, r.amount)
	if err != nil {
		ev.Err = fmt.Errorf("send refill: %w", err)
		return ev, ev.Err
	}
	ev.TxHash = tx.Hash()
	receipt, err := r.funder.WaitMined(ctx, tx)
	if err != nil {
		ev.Err = fmt.Errorf("wait for refill %s: %w", tx.Hash().Hex(), err)
		return ev, ev.Err
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		ev.Err = fmt.Errorf("refill %s reverted", tx.Hash().Hex())
		return ev, ev.Err
	}
	ev.Refilled = true
	return ev, nil
}

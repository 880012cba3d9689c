// Package txcoord serializes ledger transaction submission per account.
//
// Every account gets one worker goroutine draining a FIFO queue, so no
// two transactions for the same account are ever in flight at once and
// nonce collisions cannot happen. Different accounts submit
// concurrently with no ordering between them.
package txcoord

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// ErrConfirmTimeout is returned when a submitted transaction's nonce
// did not advance within the confirmation window. The transaction may
// still land later; the caller decides whether to alert or retry.
var ErrConfirmTimeout = errors.New("txcoord: nonce confirmation timed out")

// Tier selects which gas price estimate a submission uses.
type Tier string

const (
	TierSafeLow Tier = "safeLow"
	TierAverage Tier = "average"
	TierFast    Tier = "fast"
)

// GasTiers is a three-tier gas price estimate in wei.
type GasTiers struct {
	SafeLow *big.Int
	Average *big.Int
	Fast    *big.Int
}

// fallbackGasTiers is used when the external estimator is unreachable.
var fallbackGasTiers = GasTiers{
	SafeLow: new(big.Int).Mul(big.NewInt(10), big.NewInt(1e9)),
	Average: new(big.Int).Mul(big.NewInt(25), big.NewInt(1e9)),
	Fast:    new(big.Int).Mul(big.NewInt(40), big.NewInt(1e9)),
}

// Ledger is the slice of the chain client the coordinator needs.
type Ledger interface {
	// PendingNonce must return a fresh nonce for the account,
	// bypassing any local cache: the previous transaction may not
	// have landed yet.
	PendingNonce(ctx context.Context, account common.Address) (uint64, error)

	// ConfirmedNonce returns the account's current on-chain nonce.
	ConfirmedNonce(ctx context.Context, account common.Address) (uint64, error)

	// GasPriceTiers may fail; the coordinator falls back to a
	// hardcoded table.
	GasPriceTiers(ctx context.Context) (GasTiers, error)

	// SendTransaction signs and broadcasts the operation.
	SendTransaction(ctx context.Context, account common.Address, operation string, args []any, value, gasPrice *big.Int, nonce uint64) (common.Hash, error)
}

// Result describes one accepted submission.
type Result struct {
	TxHash   common.Hash
	Nonce    uint64
	GasPrice *big.Int
}

// Config tunes the coordinator. Zero values get sensible defaults.
type Config struct {
	Tier Tier

	// PollInterval is the nonce-confirmation poll period.
	PollInterval time.Duration

	// ConfirmTimeout bounds the confirmation wait. On timeout the
	// account lock is released and the caller gets ErrConfirmTimeout.
	ConfirmTimeout time.Duration

	// Local treats confirmation as immediate (dev chains mine
	// instantly).
	Local bool
}

func (c Config) withDefaults() Config {
	if c.Tier == "" {
		c.Tier = TierAverage
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 2 * time.Second
	}
	if c.ConfirmTimeout <= 0 {
		c.ConfirmTimeout = 10 * time.Minute
	}
	return c
}

type pending struct {
	ctx       context.Context
	operation string
	args      []any
	value     *big.Int
	done      chan outcome
}

type outcome struct {
	res *Result
	err error
}

// Coordinator owns the per-account queues. Construct with New; the
// account map is instance state, not a package singleton.
type Coordinator struct {
	ledger Ledger
	cfg    Config

	mu     sync.Mutex
	queues map[common.Address]chan *pending
	quit   chan struct{}
	once   sync.Once
}

func New(ledger Ledger, cfg Config) *Coordinator {
	return &Coordinator{
		ledger: ledger,
		cfg:    cfg.withDefaults(),
		queues: make(map[common.Address]chan *pending),
		quit:   make(chan struct{}),
	}
}

// Close stops processing. Queued and late submissions fail with the
// coordinator-closed error; none are left unanswered.
func (c *Coordinator) Close() {
	c.once.Do(func() { close(c.quit) })
}

// Submit enqueues the operation for the account and waits for the
// outcome. Submissions for one account run strictly FIFO; there is no
// withdrawal once queued.
func (c *Coordinator) Submit(ctx context.Context, account common.Address, operation string, args []any, value *big.Int) (*Result, error) {
	if operation == "" {
		return nil, fmt.Errorf("txcoord: operation name required")
	}
	p := &pending{
		ctx:       ctx,
		operation: operation,
		args:      args,
		value:     value,
		done:      make(chan outcome, 1),
	}

	select {
	case c.queueFor(account) <- p:
	case <-c.quit:
		return nil, fmt.Errorf("txcoord: coordinator closed")
	}

	out := <-p.done
	return out.res, out.err
}

func (c *Coordinator) queueFor(account common.Address) chan *pending {
	c.mu.Lock()
	defer c.mu.Unlock()
	q, ok := c.queues[account]
	if !ok {
		q = make(chan *pending, 1024)
		c.queues[account] = q
		go c.runAccount(account, q)
	}
	return q
}

// runAccount is the per-account worker: IDLE between queue reads, BUSY
// while a submission is in flight. It lives for the process lifetime.
func (c *Coordinator) runAccount(account common.Address, q chan *pending) {
	for {
		select {
		case <-c.quit:
			// Keep draining after close: a Submit racing with Close
			// can still win the buffered send, and its record must be
			// answered or the caller blocks forever on the outcome.
			c.drain(q)
			return
		case p := <-q:
			res, err := c.process(account, p)
			p.done <- outcome{res: res, err: err}
		}
	}
}

func (c *Coordinator) drain(q chan *pending) {
	for p := range q {
		p.done <- outcome{err: fmt.Errorf("txcoord: coordinator closed")}
	}
}

func (c *Coordinator) process(account common.Address, p *pending) (*Result, error) {
	nonce, err := c.ledger.PendingNonce(p.ctx, account)
	if err != nil {
		return nil, fmt.Errorf("fetch nonce for %s: %w", account.Hex(), err)
	}

	gasPrice := c.gasPrice(p.ctx)

	txHash, err := c.ledger.SendTransaction(p.ctx, account, p.operation, p.args, p.value, gasPrice, nonce)
	if err != nil {
		// Lock releases right away: the worker moves on to the
		// next queued submission.
		return nil, fmt.Errorf("submit %s (nonce %d): %w", p.operation, nonce, err)
	}

	res := &Result{TxHash: txHash, Nonce: nonce, GasPrice: gasPrice}
	if c.cfg.Local {
		return res, nil
	}
	if err := c.awaitNonce(p.ctx, account, nonce+1); err != nil {
		return res, err
	}
	return res, nil
}

// awaitNonce polls until the account's confirmed nonce reaches target.
func (c *Coordinator) awaitNonce(ctx context.Context, account common.Address, target uint64) error {
	deadline := time.NewTimer(c.cfg.ConfirmTimeout)
	defer deadline.Stop()
	tick := time.NewTicker(c.cfg.PollInterval)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return fmt.Errorf("%w: account %s still below nonce %d after %s",
				ErrConfirmTimeout, account.Hex(), target, c.cfg.ConfirmTimeout)
		case <-tick.C:
			current, err := c.ledger.ConfirmedNonce(ctx, account)
			if err != nil {
				log.Printf("[warn] txcoord: nonce poll for %s: %v", account.Hex(), err)
				continue
			}
			if current >= target {
				return nil
			}
		}
	}
}

// gasPrice picks the configured tier from the estimator, falling back
// to the hardcoded table when the estimator is down.
func (c *Coordinator) gasPrice(ctx context.Context) *big.Int {
	tiers, err := c.ledger.GasPriceTiers(ctx)
	if err != nil {
		log.Printf("[warn] txcoord: gas estimator unavailable, using fallback table: %v", err)
		tiers = fallbackGasTiers
	}
	price := tiers.pick(c.cfg.Tier)
	if price == nil || price.Sign() <= 0 {
		price = fallbackGasTiers.pick(c.cfg.Tier)
	}
	return new(big.Int).Set(price)
}

func (t GasTiers) pick(tier Tier) *big.Int {
	switch tier {
	case TierSafeLow:
		return t.SafeLow
	case TierFast:
		return t.Fast
	default:
		return t.Average
	}
}

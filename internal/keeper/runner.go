// Package keeper drives the periodic decision loop: for every
// configured market it resolves the auction state, tops up sell-side
// funding, buys along the rule table once the auction runs, and probes
// the pool spread for arbitrage.
package keeper

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"dutch-gokeeper/internal/arbitrage"
	"dutch-gokeeper/internal/auction"
	"dutch-gokeeper/internal/journal"
	"dutch-gokeeper/internal/jsonl"
	"dutch-gokeeper/internal/liquidity"
	"dutch-gokeeper/internal/notify"
)

// stateResolver, liquidityEngine and arbitrageEngine are the three
// decision surfaces the loop drives; narrowed to interfaces so tests
// can run the loop against fakes.
type stateResolver interface {
	Resolve(ctx context.Context, market auction.Market) (*auction.StateInfo, error)
}

type liquidityEngine interface {
	EnsureSellLiquidity(ctx context.Context, market auction.Market, account common.Address) ([]liquidity.OrderDescriptor, error)
	EnsureBuyLiquidity(ctx context.Context, market auction.Market, account common.Address) ([]liquidity.OrderDescriptor, error)
}

type arbitrageEngine interface {
	CheckOpportunity(ctx context.Context, market auction.Market, account common.Address) (*arbitrage.Opportunity, error)
}

// orderJournal is the persistent record of executed orders. Nil-able.
type orderJournal interface {
	RecordOrder(o *journal.Order) error
}

// Config tunes the runner.
type Config struct {
	Account common.Address
	Markets []auction.Market

	// CycleInterval is the pause between evaluation rounds.
	CycleInterval time.Duration

	// DryRun tags events and skips journal writes; the wired
	// submitter decides whether anything reaches the chain.
	DryRun bool
}

func (c Config) withDefaults() Config {
	if c.CycleInterval <= 0 {
		c.CycleInterval = 30 * time.Second
	}
	return c
}

// Runner owns one keeper loop. Events, journal and notifier are all
// optional; a nil engine disables that concern.
type Runner struct {
	resolver  stateResolver
	liquidity liquidityEngine
	arbitrage arbitrageEngine

	journal  orderJournal
	events   *jsonl.Writer
	notifier *notify.Notifier

	cfg       Config
	startedAt time.Time
}

func New(resolver stateResolver, liq liquidityEngine, arb arbitrageEngine, cfg Config) (*Runner, error) {
	if resolver == nil {
		return nil, fmt.Errorf("keeper: state resolver is required")
	}
	if len(cfg.Markets) == 0 {
		return nil, fmt.Errorf("keeper: at least one market is required")
	}
	return &Runner{
		resolver:  resolver,
		liquidity: liq,
		arbitrage: arb,
		cfg:       cfg.withDefaults(),
	}, nil
}

// WithJournal persists executed orders to the store.
func (r *Runner) WithJournal(store orderJournal) *Runner {
	r.journal = store
	return r
}

// WithEvents emits a JSONL record per decision.
func (r *Runner) WithEvents(w *jsonl.Writer) *Runner {
	r.events = w
	return r
}

// WithNotifier posts executed orders and errors to a webhook.
func (r *Runner) WithNotifier(n *notify.Notifier) *Runner {
	r.notifier = n
	return r
}

// Run evaluates every market once immediately, then on each tick until
// ctx is cancelled. Per-market failures are logged and skipped; they
// never stop the loop.
func (r *Runner) Run(ctx context.Context) error {
	r.startedAt = time.Now()
	logKeeperEvent(r.events, keeperEvent{
		TsMs:    time.Now().UnixMilli(),
		Event:   "start",
		Account: r.cfg.Account.Hex(),
		DryRun:  r.cfg.DryRun,
	})
	defer func() {
		logKeeperEvent(r.events, keeperEvent{
			TsMs:     time.Now().UnixMilli(),
			Event:    "summary",
			Account:  r.cfg.Account.Hex(),
			UptimeMs: uptimeMs(r.startedAt),
		})
	}()

	ticker := time.NewTicker(r.cfg.CycleInterval)
	defer ticker.Stop()

	for {
		r.RunCycle(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunCycle evaluates every configured market once.
func (r *Runner) RunCycle(ctx context.Context) {
	for _, market := range r.cfg.Markets {
		if ctx.Err() != nil {
			return
		}
		r.evaluateMarket(ctx, market)
	}
}

func (r *Runner) evaluateMarket(ctx context.Context, market auction.Market) {
	info, err := r.resolver.Resolve(ctx, market)
	if err != nil {
		r.reportError(ctx, market, "resolve", err)
		return
	}
	logKeeperEvent(r.events, keeperEvent{
		TsMs:    time.Now().UnixMilli(),
		Event:   "cycle",
		Market:  market.Key(),
		Account: r.cfg.Account.Hex(),
		State:   info.State.String(),
		DryRun:  r.cfg.DryRun,
	})

	if r.liquidity != nil {
		orders, err := r.liquidity.EnsureSellLiquidity(ctx, market, r.cfg.Account)
		if err != nil {
			r.reportError(ctx, market, "ensure-sell", err)
		}
		r.recordOrders(ctx, market, orders)

		orders, err = r.liquidity.EnsureBuyLiquidity(ctx, market, r.cfg.Account)
		if err != nil {
			r.reportError(ctx, market, "ensure-buy", err)
		}
		r.recordOrders(ctx, market, orders)
	}

	if r.arbitrage != nil {
		opp, err := r.arbitrage.CheckOpportunity(ctx, market, r.cfg.Account)
		if err != nil {
			r.reportError(ctx, market, "arbitrage", err)
		} else if opp != nil {
			r.recordOpportunity(ctx, market, opp)
		}
	}
}

func (r *Runner) recordOrders(ctx context.Context, market auction.Market, orders []liquidity.OrderDescriptor) {
	for _, o := range orders {
		log.Printf("[info] keeper: %s order market=%s amount=%s usd=%s tx=%s",
			o.Kind, market.Key(), o.Amount, o.AmountUSD, o.TxHash.Hex())
		logKeeperEvent(r.events, keeperEvent{
			TsMs:         time.Now().UnixMilli(),
			Event:        "order",
			Market:       market.Key(),
			Account:      r.cfg.Account.Hex(),
			OrderKind:    string(o.Kind),
			SellToken:    o.SellToken.Hex(),
			BuyToken:     o.BuyToken.Hex(),
			AuctionIndex: o.AuctionIndex.String(),
			Amount:       o.Amount.String(),
			AmountUSD:    o.AmountUSD.String(),
			TxHash:       o.TxHash.Hex(),
			Nonce:        o.Nonce,
			DryRun:       r.cfg.DryRun,
			UptimeMs:     uptimeMs(r.startedAt),
		})
		if r.journal != nil && !r.cfg.DryRun {
			err := r.journal.RecordOrder(&journal.Order{
				Account:      r.cfg.Account.Hex(),
				Kind:         string(o.Kind),
				SellToken:    o.SellToken.Hex(),
				BuyToken:     o.BuyToken.Hex(),
				AuctionIndex: o.AuctionIndex.String(),
				Amount:       o.Amount.String(),
				AmountUSD:    o.AmountUSD.String(),
				TxHash:       o.TxHash.Hex(),
				Nonce:        o.Nonce,
			})
			if err != nil {
				log.Printf("[warn] keeper: journal write failed: %v", err)
			}
		}
		r.notifier.Notify(ctx, "%s order on %s: amount=%s (%s USD) tx=%s",
			o.Kind, market.Key(), o.Amount, o.AmountUSD, o.TxHash.Hex())
	}
}

func (r *Runner) recordOpportunity(ctx context.Context, market auction.Market, opp *arbitrage.Opportunity) {
	log.Printf("[info] keeper: arbitrage opportunity market=%s direction=%s spend=%s",
		market.Key(), opp.Direction, opp.SpendAmount)
	logKeeperEvent(r.events, keeperEvent{
		TsMs:      time.Now().UnixMilli(),
		Event:     "opportunity",
		Market:    market.Key(),
		Account:   r.cfg.Account.Hex(),
		Direction: string(opp.Direction),
		Spend:     opp.SpendAmount.String(),
		DryRun:    r.cfg.DryRun,
		UptimeMs:  uptimeMs(r.startedAt),
	})
	r.notifier.Notify(ctx, "arbitrage opportunity on %s: direction=%s spend=%s",
		market.Key(), opp.Direction, opp.SpendAmount)
}

func (r *Runner) reportError(ctx context.Context, market auction.Market, step string, err error) {
	log.Printf("[warn] keeper: %s failed market=%s: %v", step, market.Key(), err)
	logKeeperEvent(r.events, keeperEvent{
		TsMs:     time.Now().UnixMilli(),
		Event:    "error",
		Market:   market.Key(),
		Account:  r.cfg.Account.Hex(),
		Step:     step,
		Err:      err.Error(),
		UptimeMs: uptimeMs(r.startedAt),
	})
	r.notifier.Notify(ctx, "keeper %s failed on %s: %v", step, market.Key(), err)
}

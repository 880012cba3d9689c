// Command keeper runs the decision loop against a config file: it
// watches every configured market, funds auctions below threshold,
// buys along the rule table and probes the pool spread.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"log/slog"
	"math/big"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"dutch-gokeeper/internal/arbitrage"
	"dutch-gokeeper/internal/auction"
	"dutch-gokeeper/internal/botlog"
	"dutch-gokeeper/internal/config"
	"dutch-gokeeper/internal/dotenv"
	"dutch-gokeeper/internal/journal"
	"dutch-gokeeper/internal/jsonl"
	"dutch-gokeeper/internal/keeper"
	"dutch-gokeeper/internal/ledger"
	"dutch-gokeeper/internal/liquidity"
	"dutch-gokeeper/internal/notify"
	"dutch-gokeeper/internal/pricefeed"
	"dutch-gokeeper/internal/txcoord"
)

func main() {
	log.SetFlags(0)

	if err := dotenv.Load(); err != nil {
		log.Printf("[warn] %v", err)
	}

	var (
		configPath string
		eventsPath string
		dryRun     bool
	)
	flag.StringVar(&configPath, "config", "keeper.yaml", "Path to the YAML config file")
	flag.StringVar(&eventsPath, "events", "", "JSONL event log path (empty disables)")
	flag.BoolVar(&dryRun, "dry-run", false, "Decide but do not submit transactions")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("[fatal] %v", err)
	}
	if cfg.Logging.Dir != "" {
		slog.SetDefault(botlog.New(cfg.Logging.Dir, cfg.Logging.Level))
	}

	if strings.TrimSpace(cfg.Keeper.PrivateKey) == "" {
		log.Fatalf("[fatal] keeper private key missing (set KEEPER_PRIVATE_KEY)")
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(cfg.Keeper.PrivateKey), "0x"))
	if err != nil {
		log.Fatalf("[fatal] bad private key: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		log.Printf("Shutting down…")
		cancel()
	}()

	var estimator *ledger.GasEstimator
	if cfg.Ethereum.GasEstimatorURL != "" {
		if estimator, err = ledger.NewGasEstimator(cfg.Ethereum.GasEstimatorURL); err != nil {
			log.Fatalf("[fatal] %v", err)
		}
	}

	client, err := ledger.Dial(ctx, ledger.Config{
		RPCURL:         cfg.Ethereum.RPCURL,
		ChainID:        big.NewInt(cfg.Ethereum.ChainID),
		AuctionAddr:    common.HexToAddress(cfg.Ethereum.AuctionContract),
		ReferenceToken: common.HexToAddress(cfg.Ethereum.ReferenceToken),
		Pools:          cfg.Pools(),
		GasEstimator:   estimator,
		GasLimit:       cfg.Ethereum.GasLimit,
	}, key)
	if err != nil {
		log.Fatalf("[fatal] %v", err)
	}
	defer client.Close()
	account := client.SignerAddress()
	log.Printf("Keeper account: %s", account.Hex())

	coordinator := txcoord.New(client, txcoord.Config{
		Tier:           txcoord.Tier(cfg.Coordinator.GasTier),
		PollInterval:   cfg.Coordinator.PollInterval.Std(),
		ConfirmTimeout: cfg.Coordinator.ConfirmTimeout.Std(),
		Local:          cfg.Ethereum.Local,
	})
	defer coordinator.Close()

	var store *journal.Store
	if cfg.Journal.Path != "" && !dryRun {
		if store, err = journal.Open(cfg.Journal.Path); err != nil {
			log.Fatalf("[fatal] %v", err)
		}
	}

	var submitter liquidity.Submitter = coordinator
	if dryRun {
		log.Printf("Dry-run: transactions are logged, not submitted")
		submitter = drySubmitter{}
	} else if store != nil {
		// Every submission outcome lands in the journal, not just the
		// orders that succeed.
		submitter = store.WrapSubmitter(coordinator)
	}

	markets := make([]auction.Market, 0, len(cfg.Keeper.Markets))
	for _, m := range cfg.Keeper.Markets {
		market, err := auction.NewMarket(common.HexToAddress(m.TokenA), common.HexToAddress(m.TokenB))
		if err != nil {
			log.Fatalf("[fatal] %v", err)
		}
		markets = append(markets, market)
	}

	feedClient, err := pricefeed.NewClient(cfg.Feed.HTTPURL)
	if err != nil {
		log.Fatalf("[fatal] %v", err)
	}
	feed := pricefeed.NewCache(feedClient, cfg.Feed.MaxAge.Std())
	if cfg.Feed.StreamURL != "" {
		pairs := make([]pricefeed.Pair, 0, len(markets))
		for _, m := range markets {
			pairs = append(pairs, pricefeed.Pair{Base: m.TokenA, Quote: m.TokenB})
		}
		ticks, errs := pricefeed.Stream(ctx, cfg.Feed.StreamURL, pairs, pricefeed.StreamOptions{})
		go feed.Run(ctx, ticks)
		go func() {
			for err := range errs {
				log.Printf("[warn] price stream: %v", err)
			}
		}()
	}

	resolver := auction.NewResolver(client)

	liqCfg, err := cfg.LiquidityConfig()
	if err != nil {
		log.Fatalf("[fatal] %v", err)
	}
	liqEngine, err := liquidity.NewEngine(resolver, feed, submitter, liqCfg)
	if err != nil {
		log.Fatalf("[fatal] %v", err)
	}

	var arbEngine *arbitrage.Engine
	if cfg.Arbitrage.Enabled {
		minSpend, maxSpend := cfg.ArbitrageSpend()
		arbEngine = arbitrage.NewEngine(client, client, client, arbitrage.Config{
			ReferenceToken: common.HexToAddress(cfg.Ethereum.ReferenceToken),
			PoolFee:        cfg.PoolFee(),
			MinSpend:       minSpend,
			MaxSpend:       maxSpend,
		})
	}

	runner, err := keeper.New(resolver, liqEngine, arbRunner(arbEngine), keeper.Config{
		Account:       account,
		Markets:       markets,
		CycleInterval: cfg.Keeper.CycleInterval.Std(),
		DryRun:        dryRun,
	})
	if err != nil {
		log.Fatalf("[fatal] %v", err)
	}

	if store != nil {
		runner.WithJournal(store)
	}
	if eventsPath != "" {
		events, err := jsonl.Open(eventsPath)
		if err != nil {
			log.Fatalf("[fatal] %v", err)
		}
		defer func() {
			if err := events.Close(); err != nil {
				log.Printf("[warn] event log close: %v", err)
			}
		}()
		log.Printf("Event log: %s (JSONL)", eventsPath)
		runner.WithEvents(events)
	}
	runner.WithNotifier(notify.New(cfg.Notify.WebhookURL))

	log.Printf("Watching %d market(s) every %s", len(markets), cfg.Keeper.CycleInterval.Std())
	if err := runner.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("[fatal] %v", err)
	}
}

// drySubmitter satisfies the submitter surface without touching the
// chain.
type drySubmitter struct{}

func (drySubmitter) Submit(ctx context.Context, account common.Address, operation string, args []any, value *big.Int) (*txcoord.Result, error) {
	log.Printf("[info] dry-run: would submit %s args=%v", operation, args)
	return &txcoord.Result{}, nil
}

// arbRunner keeps a typed-nil *arbitrage.Engine from sneaking into the
// runner's interface field.
func arbRunner(e *arbitrage.Engine) interface {
	CheckOpportunity(ctx context.Context, market auction.Market, account common.Address) (*arbitrage.Opportunity, error)
} {
	if e == nil {
		return nil
	}
	return e
}

// Package liquidity decides when a market needs keeper funding or
// keeper buying, and sizes the orders that fix the imbalance.
//
// Sell liquidity starts an auction that sits below the funding
// threshold; buy liquidity closes the gap between what the rule table
// wants bought at the current price and what the market has bought on
// its own.
package liquidity

import (
	"context"
	"fmt"
	"log"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"dutch-gokeeper/internal/auction"
	"dutch-gokeeper/internal/fraction"
	"dutch-gokeeper/internal/guard"
	"dutch-gokeeper/internal/txcoord"
)

// OrderKind tags what the keeper posted.
type OrderKind string

const (
	OrderSell OrderKind = "sell"
	OrderBuy  OrderKind = "buy"
)

// OrderDescriptor reports one executed order.
type OrderDescriptor struct {
	Kind         OrderKind
	SellToken    common.Address
	BuyToken     common.Address
	AuctionIndex *big.Int
	Amount       *big.Int // token smallest units
	AmountUSD    decimal.Decimal
	TxHash       common.Hash
	Nonce        uint64
}

// StateResolver yields the market snapshot the engine decides on.
type StateResolver interface {
	Resolve(ctx context.Context, market auction.Market) (*auction.StateInfo, error)
}

// PriceFeed is the external reference market. Failures propagate; the
// engine never guesses a price.
type PriceFeed interface {
	// PriceUSD returns USD (reference currency) per smallest token
	// unit.
	PriceUSD(ctx context.Context, token common.Address) (decimal.Decimal, error)

	// Price returns quote-token smallest units per base-token
	// smallest unit.
	Price(ctx context.Context, base, quote common.Address) (decimal.Decimal, error)
}

// Submitter is the transaction coordinator surface the engine uses.
type Submitter interface {
	Submit(ctx context.Context, account common.Address, operation string, args []any, value *big.Int) (*txcoord.Result, error)
}

// Config tunes the engine.
type Config struct {
	// MinFundingUSD is the funding threshold below which a side needs
	// a keeper sell order before the auction can start.
	MinFundingUSD decimal.Decimal

	// MaxFee is the worst-case protocol fee; shortfalls are inflated
	// by it so the threshold is met even if the full fee applies.
	MaxFee fraction.Fraction

	// Rules is the buy-side table; validated and sorted once here.
	Rules []Rule

	// GuardCoolDown delays guard release after a settling
	// transaction so a re-check sees the updated chain state.
	GuardCoolDown time.Duration
}

// Engine evaluates markets. Its guard registry is owned instance
// state.
type Engine struct {
	resolver  StateResolver
	feed      PriceFeed
	submitter Submitter
	guards    *guard.Registry

	minFundingUSD decimal.Decimal
	feeFactor     fraction.Fraction // 1/(1-maxFee), kept exact
	rules         []Rule
	coolDown      time.Duration
}

func NewEngine(resolver StateResolver, feed PriceFeed, submitter Submitter, cfg Config) (*Engine, error) {
	rules, err := prepareRules(cfg.Rules)
	if err != nil {
		return nil, err
	}
	if cfg.MinFundingUSD.Sign() <= 0 {
		return nil, fmt.Errorf("liquidity: funding threshold must be positive")
	}
	if !cfg.MaxFee.Determined() || cfg.MaxFee.Cmp(fraction.New(1, 1)) >= 0 {
		return nil, fmt.Errorf("liquidity: max fee must be a determined fraction below 1")
	}
	coolDown := cfg.GuardCoolDown
	if coolDown <= 0 {
		coolDown = 2 * time.Minute
	}

	// 1/(1 - n/d) = d/(d-n), exact.
	fee := cfg.MaxFee
	return &Engine{
		resolver:      resolver,
		feed:          feed,
		submitter:     submitter,
		guards:        guard.NewRegistry(),
		minFundingUSD: cfg.MinFundingUSD,
		feeFactor:     fraction.FromBig(fee.Den, new(big.Int).Sub(fee.Den, fee.Num)),
		rules:         rules,
		coolDown:      coolDown,
	}, nil
}

// EnsureSellLiquidity funds both sides of a market that is waiting for
// funding. It returns the posted orders, empty when nothing was
// needed or when another evaluation for the same key is in flight.
func (e *Engine) EnsureSellLiquidity(ctx context.Context, market auction.Market, account common.Address) ([]OrderDescriptor, error) {
	key := guard.Key("ensure-sell", market.Key(), account.Hex())
	if !e.guards.TryAcquire(key) {
		return nil, nil
	}

	orders, err := e.ensureSell(ctx, market, account)
	e.finishGuard(key, len(orders), err)
	return orders, err
}

// EnsureBuyLiquidity tops up the bought volume of each running side to
// the rule table's target. Same guard semantics as the sell side.
func (e *Engine) EnsureBuyLiquidity(ctx context.Context, market auction.Market, account common.Address) ([]OrderDescriptor, error) {
	key := guard.Key("ensure-buy", market.Key(), account.Hex())
	if !e.guards.TryAcquire(key) {
		return nil, nil
	}

	orders, err := e.ensureBuy(ctx, market, account)
	e.finishGuard(key, len(orders), err)
	return orders, err
}

// finishGuard releases immediately on error and for no-op checks;
// settling checks hold the guard through the cool-down so the next
// evaluation sees the chain change.
func (e *Engine) finishGuard(key string, submitted int, err error) {
	if err != nil || submitted == 0 {
		e.guards.Release(key)
		return
	}
	e.guards.ReleaseAfter(key, e.coolDown)
}

func (e *Engine) ensureSell(ctx context.Context, market auction.Market, account common.Address) ([]OrderDescriptor, error) {
	info, err := e.resolver.Resolve(ctx, market)
	if err != nil {
		return nil, err
	}
	if info.State != auction.StateWaitingForFunding {
		return nil, nil
	}

	var orders []OrderDescriptor
	sides := []struct {
		sell, buy common.Address
		side      auction.SideInfo
	}{
		{market.TokenA, market.TokenB, info.Direct},
		{market.TokenB, market.TokenA, info.Opposite},
	}
	for _, s := range sides {
		order, err := e.fundSide(ctx, s.sell, s.buy, s.side, info.AuctionIndex, account)
		if err != nil {
			return orders, err
		}
		if order != nil {
			orders = append(orders, *order)
		}
	}
	return orders, nil
}

// fundSide posts a sell order when the side's USD funding sits below
// the threshold. Sizing always rounds up so the threshold is met after
// fees and integer truncation.
func (e *Engine) fundSide(ctx context.Context, sell, buy common.Address, side auction.SideInfo, index *big.Int, account common.Address) (*OrderDescriptor, error) {
	price, err := e.feed.PriceUSD(ctx, sell)
	if err != nil {
		return nil, err
	}
	if price.Sign() <= 0 {
		return nil, fmt.Errorf("liquidity: non-positive USD price for %s", sell.Hex())
	}

	funding := decimal.NewFromBigInt(side.SellVolume, 0).Mul(price)
	if funding.Cmp(e.minFundingUSD) >= 0 {
		return nil, nil
	}

	// All in fraction space: decimal division rounds before Ceil and
	// can land one unit short of the threshold.
	shortfall := fraction.FromDecimal(e.minFundingUSD.Sub(funding)).Mul(e.feeFactor)
	amount := shortfall.Div(fraction.FromDecimal(price)).Ceil()
	if amount.Sign() <= 0 {
		return nil, nil
	}
	shortfallUSD := shortfall.Decimal().RoundCeil(2)

	log.Printf("[info] liquidity: funding %s->%s below threshold (have %s USD, posting %s units)",
		sell.Hex(), buy.Hex(), funding.StringFixed(2), amount)

	res, err := e.submitter.Submit(ctx, account, "postSellOrder", []any{sell, buy, index, amount}, nil)
	if err != nil {
		return nil, err
	}
	return &OrderDescriptor{
		Kind:         OrderSell,
		SellToken:    sell,
		BuyToken:     buy,
		AuctionIndex: index,
		Amount:       amount,
		AmountUSD:    shortfallUSD,
		TxHash:       res.TxHash,
		Nonce:        res.Nonce,
	}, nil
}

func (e *Engine) ensureBuy(ctx context.Context, market auction.Market, account common.Address) ([]OrderDescriptor, error) {
	info, err := e.resolver.Resolve(ctx, market)
	if err != nil {
		return nil, err
	}
	if info.State != auction.StateRunning {
		return nil, nil
	}

	var orders []OrderDescriptor
	sides := []struct {
		sell, buy common.Address
		side      auction.SideInfo
	}{
		{market.TokenA, market.TokenB, info.Direct},
		{market.TokenB, market.TokenA, info.Opposite},
	}
	for _, s := range sides {
		order, err := e.buySide(ctx, s.sell, s.buy, s.side, info.AuctionIndex, account)
		if err != nil {
			return orders, err
		}
		if order != nil {
			orders = append(orders, *order)
		}
	}
	return orders, nil
}

// buySide checks one direction independently: open, not closed, not
// theoretically closed, with sell volume to buy into.
func (e *Engine) buySide(ctx context.Context, sell, buy common.Address, side auction.SideInfo, index *big.Int, account common.Address) (*OrderDescriptor, error) {
	if side.IsClosed || side.IsTheoreticallyClosed || side.SellVolume.Sign() == 0 {
		return nil, nil
	}
	if !side.Price.Determined() {
		return nil, nil
	}

	refDecimal, err := e.feed.Price(ctx, sell, buy)
	if err != nil {
		return nil, err
	}
	if refDecimal.Sign() <= 0 {
		return nil, fmt.Errorf("liquidity: non-positive reference price for %s/%s", sell.Hex(), buy.Hex())
	}
	refPrice := fraction.FromDecimal(refDecimal)

	// priceRatio = (auction.n * ref.d) / (auction.d * ref.n)
	ratio := fraction.Ratio(side.Price, refPrice)
	rule, ok := matchRule(e.rules, ratio)
	if !ok {
		return nil, nil
	}

	// Target bought volume, expressed in buy-token terms.
	sellInBuyTerms := side.Price.MulFloor(side.SellVolume)
	target := rule.TargetBuyRatio.MulFloor(sellInBuyTerms)
	if target.Cmp(side.BuyVolume) <= 0 {
		return nil, nil
	}

	shortfall := new(big.Int).Sub(target, side.BuyVolume)
	amount := e.feeFactor.MulCeil(shortfall)

	log.Printf("[info] liquidity: buy side %s->%s below target (bought %s of %s, posting %s units)",
		sell.Hex(), buy.Hex(), side.BuyVolume, target, amount)

	res, err := e.submitter.Submit(ctx, account, "postBuyOrder", []any{sell, buy, index, amount}, nil)
	if err != nil {
		return nil, err
	}
	return &OrderDescriptor{
		Kind:         OrderBuy,
		SellToken:    sell,
		BuyToken:     buy,
		AuctionIndex: index,
		Amount:       amount,
		TxHash:       res.TxHash,
		Nonce:        res.Nonce,
	}, nil
}

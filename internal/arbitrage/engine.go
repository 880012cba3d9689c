// Package arbitrage finds profitable spreads between a running auction
// and a constant-product liquidity pool, and sizes the trade with a
// coarse-then-fine greedy search over the pool's pricing curve.
package arbitrage

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"dutch-gokeeper/internal/auction"
	"dutch-gokeeper/internal/fraction"
)

// Direction names which venue the spend enters first.
type Direction string

const (
	// DirectionAuctionToPool buys the token cheap in the auction and
	// sells it to the pool.
	DirectionAuctionToPool Direction = "auction-to-pool"

	// DirectionPoolToAuction buys the token cheap from the pool and
	// sells it into the auction.
	DirectionPoolToAuction Direction = "pool-to-auction"
)

// Opportunity is a transient sizing decision; it is never persisted.
type Opportunity struct {
	Direction Direction

	// SpendAmount is denominated in the reference token's smallest
	// unit; the reference token is the input on both directions.
	SpendAmount *big.Int

	ReferenceToken common.Address
}

// PoolReader reads the constant-product pool pairing a token against
// the reference currency.
type PoolReader interface {
	// Reserves returns (tokenReserve, referenceReserve).
	Reserves(ctx context.Context, token common.Address) (*big.Int, *big.Int, error)
}

// BalanceReader reads the keeper contract's own holdings, which cap
// the spend: the agent never risks more than it has on deposit.
type BalanceReader interface {
	ContractBalance(ctx context.Context, token common.Address, account common.Address) (*big.Int, error)
}

// PriceReader is the slice of the auction reader the engine needs.
type PriceReader interface {
	AuctionIndex(ctx context.Context, sell, buy common.Address) (*big.Int, error)
	CurrentPrice(ctx context.Context, sell, buy common.Address, auctionIndex *big.Int) (fraction.Fraction, error)
}

// Config tunes the engine.
type Config struct {
	// ReferenceToken is the currency leg of every market (WETH).
	ReferenceToken common.Address

	// PoolFee is the pool's swap fee taken from the input amount;
	// Uniswap v1 charges 3/1000.
	PoolFee fraction.Fraction

	// MinSpend is the probe size for the marginal-price test and the
	// floor of the sizing search.
	MinSpend *big.Int

	// MaxSpend optionally clamps the balance-derived cap. Nil means
	// the contract balance alone bounds the trade.
	MaxSpend *big.Int
}

func (c Config) withDefaults() Config {
	if !c.PoolFee.Determined() {
		c.PoolFee = fraction.New(3, 1000)
	}
	if c.MinSpend == nil || c.MinSpend.Sign() <= 0 {
		c.MinSpend = big.NewInt(1000)
	}
	return c
}

// Engine evaluates one market at a time; it holds no mutable state
// besides its collaborators.
type Engine struct {
	prices   PriceReader
	pool     PoolReader
	balances BalanceReader
	cfg      Config
}

func NewEngine(prices PriceReader, pool PoolReader, balances BalanceReader, cfg Config) *Engine {
	return &Engine{prices: prices, pool: pool, balances: balances, cfg: cfg.withDefaults()}
}

// CheckOpportunity returns the largest still-profitable spend for the
// market, or nil when no spread exists. Read errors propagate.
func (e *Engine) CheckOpportunity(ctx context.Context, market auction.Market, account common.Address) (*Opportunity, error) {
	token, err := e.nonReferenceToken(market)
	if err != nil {
		return nil, err
	}

	index, err := e.prices.AuctionIndex(ctx, token, e.cfg.ReferenceToken)
	if err != nil {
		return nil, err
	}
	if index.Sign() == 0 {
		return nil, fmt.Errorf("arbitrage: unknown token pair %s", market)
	}

	// Price of the token in reference units: selling token for
	// reference currency.
	price, err := e.prices.CurrentPrice(ctx, token, e.cfg.ReferenceToken, index)
	if err != nil {
		return nil, err
	}
	if !price.Determined() || price.IsZero() {
		return nil, nil
	}

	tokenReserve, refReserve, err := e.pool.Reserves(ctx, token)
	if err != nil {
		return nil, err
	}
	if tokenReserve.Sign() <= 0 || refReserve.Sign() <= 0 {
		return nil, nil
	}

	spendCap, err := e.spendCap(ctx, account)
	if err != nil {
		return nil, err
	}
	if spendCap.Cmp(e.cfg.MinSpend) < 0 {
		return nil, nil
	}

	pool := poolCurve{
		tokenReserve: tokenReserve,
		refReserve:   refReserve,
		feeNum:       new(big.Int).Sub(e.cfg.PoolFee.Den, e.cfg.PoolFee.Num),
		feeDen:       e.cfg.PoolFee.Den,
	}

	for _, dir := range []Direction{DirectionAuctionToPool, DirectionPoolToAuction} {
		profit := profitFunc(dir, price, pool)
		if !profit(e.cfg.MinSpend) {
			continue
		}
		spend := e.size(profit, spendCap)
		return &Opportunity{
			Direction:      dir,
			SpendAmount:    spend,
			ReferenceToken: e.cfg.ReferenceToken,
		}, nil
	}
	return nil, nil
}

func (e *Engine) nonReferenceToken(market auction.Market) (common.Address, error) {
	switch e.cfg.ReferenceToken {
	case market.TokenA:
		return market.TokenB, nil
	case market.TokenB:
		return market.TokenA, nil
	default:
		return common.Address{}, fmt.Errorf("arbitrage: market %s has no reference-token side", market)
	}
}

func (e *Engine) spendCap(ctx context.Context, account common.Address) (*big.Int, error) {
	balance, err := e.balances.ContractBalance(ctx, e.cfg.ReferenceToken, account)
	if err != nil {
		return nil, err
	}
	limit := new(big.Int).Set(balance)
	if e.cfg.MaxSpend != nil && limit.Cmp(e.cfg.MaxSpend) > 0 {
		limit.Set(e.cfg.MaxSpend)
	}
	return limit, nil
}

// size runs the greedy search: grow by the coarse step while the
// opportunity stays open and under the cap, then refine with the fine
// step. Greedy by construction, not a closed-form optimum; the
// step/backoff behavior is load-bearing for parity with live sizing.
func (e *Engine) size(profitable func(*big.Int) bool, limit *big.Int) *big.Int {
	coarse := new(big.Int).Div(limit, big.NewInt(20))
	if coarse.Sign() <= 0 {
		coarse = big.NewInt(1)
	}
	fine := new(big.Int).Div(coarse, big.NewInt(20))
	if fine.Sign() <= 0 {
		fine = big.NewInt(1)
	}

	spend := new(big.Int).Set(e.cfg.MinSpend)
	spend = grow(spend, coarse, limit, profitable)
	spend = grow(spend, fine, limit, profitable)
	return spend
}

func grow(spend, step, limit *big.Int, profitable func(*big.Int) bool) *big.Int {
	for {
		next := new(big.Int).Add(spend, step)
		if next.Cmp(limit) > 0 || !profitable(next) {
			return spend
		}
		spend = next
	}
}

// poolCurve prices swaps with the fee taken out of the input:
// out = in*fee*outRes / (inRes*feeDen + in*fee).
type poolCurve struct {
	tokenReserve *big.Int
	refReserve   *big.Int
	feeNum       *big.Int // feeDen - fee, e.g. 997
	feeDen       *big.Int // e.g. 1000
}

func (p poolCurve) out(in, inReserve, outReserve *big.Int) *big.Int {
	inWithFee := new(big.Int).Mul(in, p.feeNum)
	num := new(big.Int).Mul(inWithFee, outReserve)
	den := new(big.Int).Mul(inReserve, p.feeDen)
	den.Add(den, inWithFee)
	return num.Div(num, den)
}

func (p poolCurve) tokenOut(refIn *big.Int) *big.Int {
	return p.out(refIn, p.refReserve, p.tokenReserve)
}

func (p poolCurve) refOut(tokenIn *big.Int) *big.Int {
	return p.out(tokenIn, p.tokenReserve, p.refReserve)
}

// profitFunc builds the round-trip profitability test for a direction.
// price is reference units per token.
func profitFunc(dir Direction, price fraction.Fraction, pool poolCurve) func(*big.Int) bool {
	switch dir {
	case DirectionAuctionToPool:
		// Spend reference in the auction at the current price, sell
		// the bought tokens to the pool.
		return func(spend *big.Int) bool {
			tokens := price.Inv().MulFloor(spend)
			if tokens.Sign() <= 0 {
				return false
			}
			back := pool.refOut(tokens)
			return back.Cmp(spend) > 0
		}
	default:
		// Spend reference in the pool, sell the bought tokens into
		// the auction at the current price.
		return func(spend *big.Int) bool {
			tokens := pool.tokenOut(spend)
			if tokens.Sign() <= 0 {
				return false
			}
			back := price.MulFloor(tokens)
			return back.Cmp(spend) > 0
		}
	}
}

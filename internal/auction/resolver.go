// Package auction derives the lifecycle state of a token-pair auction
// from raw on-chain counters. Snapshots are fetched on demand and never
// cached: the chain is the source of truth and may advance between
// calls.
package auction

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"dutch-gokeeper/internal/fraction"
)

// State classifies a market's current auction.
type State int

const (
	StateUnknownTokenPair State = iota
	StateWaitingForFunding
	StateWaitingForAuctionToStart
	StatePendingCloseTheoretical
	StateOneAuctionHasClosed
	StateRunning
)

func (s State) String() string {
	switch s {
	case StateUnknownTokenPair:
		return "UNKNOWN_TOKEN_PAIR"
	case StateWaitingForFunding:
		return "WAITING_FOR_FUNDING"
	case StateWaitingForAuctionToStart:
		return "WAITING_FOR_AUCTION_TO_START"
	case StatePendingCloseTheoretical:
		return "PENDING_CLOSE_THEORETICAL"
	case StateOneAuctionHasClosed:
		return "ONE_AUCTION_HAS_CLOSED"
	case StateRunning:
		return "RUNNING"
	default:
		return "UNKNOWN"
	}
}

// Reader is the slice of the ledger client the resolver needs. All
// methods hit the chain; errors propagate to the resolver's caller.
type Reader interface {
	AuctionIndex(ctx context.Context, sell, buy common.Address) (*big.Int, error)
	AuctionStart(ctx context.Context, sell, buy common.Address) (time.Time, error)
	SellVolume(ctx context.Context, sell, buy common.Address) (*big.Int, error)
	BuyVolume(ctx context.Context, sell, buy common.Address) (*big.Int, error)
	CurrentPrice(ctx context.Context, sell, buy common.Address, auctionIndex *big.Int) (fraction.Fraction, error)
	ClosingPrice(ctx context.Context, sell, buy common.Address, auctionIndex *big.Int) (fraction.Fraction, error)
}

// SideInfo holds one direction of the pair.
type SideInfo struct {
	SellVolume   *big.Int
	BuyVolume    *big.Int
	Price        fraction.Fraction
	ClosingPrice fraction.Fraction

	// IsClosed is true once the chain recorded a closing price.
	IsClosed bool

	// IsTheoreticallyClosed is true when the buy volume already
	// matches the sell volume at the current price, i.e.
	// price.num*sellVolume == price.den*buyVolume.
	IsTheoreticallyClosed bool
}

// StateInfo is the resolved snapshot for a market.
type StateInfo struct {
	Market       Market
	AuctionIndex *big.Int

	// Start is the scheduled auction start; the zero value means the
	// pair is still waiting for funding.
	Start time.Time

	// Direct is the TokenA->TokenB direction, Opposite the reverse.
	Direct   SideInfo
	Opposite SideInfo

	State State
}

// Resolver classifies markets. Resolve is a pure function of the chain
// values it reads.
type Resolver struct {
	reader Reader
	now    func() time.Time
}

func NewResolver(reader Reader) *Resolver {
	return &Resolver{reader: reader, now: time.Now}
}

// Resolve fetches both directions of the pair and classifies the
// auction. Ledger-read errors are returned untouched.
func (r *Resolver) Resolve(ctx context.Context, market Market) (*StateInfo, error) {
	index, err := r.reader.AuctionIndex(ctx, market.TokenA, market.TokenB)
	if err != nil {
		return nil, err
	}

	info := &StateInfo{Market: market, AuctionIndex: index}
	if index.Sign() == 0 {
		info.State = StateUnknownTokenPair
		return info, nil
	}

	start, err := r.reader.AuctionStart(ctx, market.TokenA, market.TokenB)
	if err != nil {
		return nil, err
	}
	info.Start = start

	info.Direct, err = r.readSide(ctx, market.TokenA, market.TokenB, index)
	if err != nil {
		return nil, err
	}
	info.Opposite, err = r.readSide(ctx, market.TokenB, market.TokenA, index)
	if err != nil {
		return nil, err
	}

	info.State = r.classify(info)
	return info, nil
}

func (r *Resolver) readSide(ctx context.Context, sell, buy common.Address, index *big.Int) (SideInfo, error) {
	var side SideInfo
	var err error

	if side.SellVolume, err = r.reader.SellVolume(ctx, sell, buy); err != nil {
		return SideInfo{}, err
	}
	if side.BuyVolume, err = r.reader.BuyVolume(ctx, sell, buy); err != nil {
		return SideInfo{}, err
	}
	if side.Price, err = r.reader.CurrentPrice(ctx, sell, buy, index); err != nil {
		return SideInfo{}, err
	}
	if side.ClosingPrice, err = r.reader.ClosingPrice(ctx, sell, buy, index); err != nil {
		return SideInfo{}, err
	}

	side.IsClosed = side.ClosingPrice.Determined()
	side.IsTheoreticallyClosed = theoreticallyClosed(side.Price, side.SellVolume, side.BuyVolume)
	return side, nil
}

// theoreticallyClosed compares price.num*sellVolume against
// price.den*buyVolume in integer space; no division, no precision loss.
func theoreticallyClosed(price fraction.Fraction, sellVolume, buyVolume *big.Int) bool {
	if !price.Determined() {
		return false
	}
	left := new(big.Int).Mul(price.Num, sellVolume)
	right := new(big.Int).Mul(price.Den, buyVolume)
	return left.Cmp(right) == 0
}

// classify applies the state rules in order; the first match wins.
func (r *Resolver) classify(info *StateInfo) State {
	switch {
	case info.Start.IsZero():
		return StateWaitingForFunding
	case info.Start.After(r.now()):
		return StateWaitingForAuctionToStart
	case (info.Direct.IsTheoreticallyClosed && !info.Direct.IsClosed) ||
		(info.Opposite.IsTheoreticallyClosed && !info.Opposite.IsClosed):
		return StatePendingCloseTheoretical
	case info.Direct.IsClosed != info.Opposite.IsClosed:
		return StateOneAuctionHasClosed
	default:
		return StateRunning
	}
}

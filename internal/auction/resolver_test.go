package auction

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"dutch-gokeeper/internal/fraction"
)

var (
	tokenWETH = common.HexToAddress("0x1111111111111111111111111111111111111111")
	tokenRDN  = common.HexToAddress("0x2222222222222222222222222222222222222222")
)

type sideFixture struct {
	sellVolume   int64
	buyVolume    int64
	price        fraction.Fraction
	closingPrice fraction.Fraction
}

type fakeReader struct {
	index    int64
	start    time.Time
	direct   sideFixture
	opposite sideFixture
	err      error
}

func (f *fakeReader) side(sell common.Address) sideFixture {
	if sell == tokenWETH {
		return f.direct
	}
	return f.opposite
}

func (f *fakeReader) AuctionIndex(ctx context.Context, sell, buy common.Address) (*big.Int, error) {
	if f.err != nil {
		return nil, f.err
	}
	return big.NewInt(f.index), nil
}

func (f *fakeReader) AuctionStart(ctx context.Context, sell, buy common.Address) (time.Time, error) {
	return f.start, nil
}

func (f *fakeReader) SellVolume(ctx context.Context, sell, buy common.Address) (*big.Int, error) {
	return big.NewInt(f.side(sell).sellVolume), nil
}

func (f *fakeReader) BuyVolume(ctx context.Context, sell, buy common.Address) (*big.Int, error) {
	return big.NewInt(f.side(sell).buyVolume), nil
}

func (f *fakeReader) CurrentPrice(ctx context.Context, sell, buy common.Address, index *big.Int) (fraction.Fraction, error) {
	return f.side(sell).price, nil
}

func (f *fakeReader) ClosingPrice(ctx context.Context, sell, buy common.Address, index *big.Int) (fraction.Fraction, error) {
	return f.side(sell).closingPrice, nil
}

func resolverAt(reader Reader, now time.Time) *Resolver {
	r := NewResolver(reader)
	r.now = func() time.Time { return now }
	return r
}

func mustMarket(t *testing.T) Market {
	t.Helper()
	m, err := NewMarket(tokenWETH, tokenRDN)
	if err != nil {
		t.Fatalf("market: %v", err)
	}
	return m
}

func TestResolveClassification(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	running := sideFixture{sellVolume: 100, buyVolume: 10, price: fraction.New(1, 2)}

	cases := []struct {
		name   string
		reader fakeReader
		want   State
	}{
		{
			name:   "unknown pair",
			reader: fakeReader{index: 0},
			want:   StateUnknownTokenPair,
		},
		{
			name:   "waiting for funding",
			reader: fakeReader{index: 1, direct: running, opposite: running},
			want:   StateWaitingForFunding,
		},
		{
			name:   "waiting for start",
			reader: fakeReader{index: 1, start: now.Add(time.Hour), direct: running, opposite: running},
			want:   StateWaitingForAuctionToStart,
		},
		{
			name: "pending theoretical close",
			reader: fakeReader{
				index: 2,
				start: now.Add(-time.Hour),
				// 1/2 * 100 == 50 bought: outstanding volume is zero.
				direct:   sideFixture{sellVolume: 100, buyVolume: 50, price: fraction.New(1, 2)},
				opposite: running,
			},
			want: StatePendingCloseTheoretical,
		},
		{
			name: "one side closed",
			reader: fakeReader{
				index:    2,
				start:    now.Add(-time.Hour),
				direct:   sideFixture{sellVolume: 100, buyVolume: 50, price: fraction.New(1, 2), closingPrice: fraction.New(1, 2)},
				opposite: running,
			},
			want: StateOneAuctionHasClosed,
		},
		{
			name:   "running",
			reader: fakeReader{index: 2, start: now.Add(-time.Hour), direct: running, opposite: running},
			want:   StateRunning,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			info, err := resolverAt(&tc.reader, now).Resolve(context.Background(), mustMarket(t))
			if err != nil {
				t.Fatalf("resolve: %v", err)
			}
			if info.State != tc.want {
				t.Fatalf("state = %s, want %s", info.State, tc.want)
			}
		})
	}
}

func TestResolveIsDeterministic(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	reader := fakeReader{
		index:    3,
		start:    now.Add(-time.Minute),
		direct:   sideFixture{sellVolume: 500, buyVolume: 20, price: fraction.New(3, 7)},
		opposite: sideFixture{sellVolume: 900, buyVolume: 1, price: fraction.New(7, 3)},
	}
	r := resolverAt(&reader, now)

	first, err := r.Resolve(context.Background(), mustMarket(t))
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	for i := 0; i < 5; i++ {
		again, err := r.Resolve(context.Background(), mustMarket(t))
		if err != nil {
			t.Fatalf("resolve: %v", err)
		}
		if again.State != first.State {
			t.Fatalf("state changed on identical inputs: %s vs %s", again.State, first.State)
		}
	}
}

func TestResolvePropagatesReadErrors(t *testing.T) {
	readErr := errors.New("rpc: connection refused")
	reader := fakeReader{err: readErr}
	_, err := NewResolver(&reader).Resolve(context.Background(), mustMarket(t))
	if !errors.Is(err, readErr) {
		t.Fatalf("expected ledger error to propagate, got %v", err)
	}
}

func TestMarketKeyIsOrientationFree(t *testing.T) {
	m, _ := NewMarket(tokenWETH, tokenRDN)
	if m.Key() != m.Reverse().Key() {
		t.Fatalf("key differs by orientation: %s vs %s", m.Key(), m.Reverse().Key())
	}
	if _, err := NewMarket(tokenWETH, tokenWETH); err == nil {
		t.Fatalf("same-token market should be rejected")
	}
}

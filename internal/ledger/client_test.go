package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestPackCallLayout(t *testing.T) {
	sell := common.HexToAddress("0x1111111111111111111111111111111111111111")
	buy := common.HexToAddress("0x2222222222222222222222222222222222222222")
	index := big.NewInt(7)

	data, err := packCallChecked(selCurrentPrice, sell, buy, index)
	if err != nil {
		t.Fatalf("pack: %v", err)
	}
	if len(data) != 4+3*32 {
		t.Fatalf("calldata length = %d, want %d", len(data), 4+3*32)
	}
	if !bytes.Equal(data[:4], selCurrentPrice) {
		t.Fatalf("selector mismatch")
	}
	if !bytes.Equal(data[4:36], common.LeftPadBytes(sell.Bytes(), 32)) {
		t.Fatalf("first word is not the left-padded sell address")
	}
	if data[4+2*32+31] != 7 {
		t.Fatalf("index word not encoded: % x", data[4+2*32:])
	}
}

func TestPackCallRejectsUnsupportedArgs(t *testing.T) {
	if _, err := packCallChecked(selAuctionIndex, "not-an-address"); err == nil {
		t.Fatalf("string argument must be rejected")
	}
	if _, err := packCallChecked(selAuctionIndex, (*big.Int)(nil)); err == nil {
		t.Fatalf("nil big.Int must be rejected")
	}
	if _, err := packCallChecked(selAuctionIndex, big.NewInt(-1)); err == nil {
		t.Fatalf("negative big.Int must be rejected")
	}
}

func TestOperationSelectorsCoverCoordinatorOps(t *testing.T) {
	for _, op := range []string{"postSellOrder", "postBuyOrder", "deposit", "withdraw", "claimBuyerFunds", "claimSellerFunds"} {
		sel, ok := operationSelectors[op]
		if !ok {
			t.Fatalf("operation %q has no selector", op)
		}
		if len(sel) != 4 {
			t.Fatalf("operation %q selector is %d bytes", op, len(sel))
		}
	}
}

func TestGasEstimatorTiers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(gasOracleResp{SafeLow: 10, Average: 25.5, Fast: 40})
	}))
	defer srv.Close()

	est, err := NewGasEstimator(srv.URL)
	if err != nil {
		t.Fatalf("estimator: %v", err)
	}
	tiers, err := est.Tiers(context.Background())
	if err != nil {
		t.Fatalf("tiers: %v", err)
	}
	if want := big.NewInt(10_000_000_000); tiers.SafeLow.Cmp(want) != 0 {
		t.Fatalf("safeLow = %s, want %s", tiers.SafeLow, want)
	}
	if want := big.NewInt(25_500_000_000); tiers.Average.Cmp(want) != 0 {
		t.Fatalf("average = %s, want %s", tiers.Average, want)
	}
}

func TestGweiToWeiRoundsFloatError(t *testing.T) {
	// 32.3 has no exact float64 form: 32.3*1000 is 32299.999999999996,
	// which a bare int64 cast truncates to 32299 milli-gwei.
	if want := big.NewInt(32_300_000_000); gweiToWei(32.3).Cmp(want) != 0 {
		t.Fatalf("32.3 gwei = %s wei, want %s", gweiToWei(32.3), want)
	}
	if want := big.NewInt(25_500_000_000); gweiToWei(25.5).Cmp(want) != 0 {
		t.Fatalf("25.5 gwei = %s wei, want %s", gweiToWei(25.5), want)
	}
}

func TestGasEstimatorRejectsBadResponses(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "oracle down", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	est, err := NewGasEstimator(srv.URL)
	if err != nil {
		t.Fatalf("estimator: %v", err)
	}
	if _, err := est.Tiers(context.Background()); err == nil {
		t.Fatalf("expected an error on 503")
	}

	if _, err := NewGasEstimator("ftp://oracle"); err == nil {
		t.Fatalf("non-http URL must be rejected")
	}
}

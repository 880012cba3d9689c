package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"math/big"
	"net/http"
	"strings"
	"time"

	"dutch-gokeeper/internal/txcoord"
)

// GasEstimator fetches tiered gas prices from an external oracle. The
// oracle reports gwei; Tiers converts to wei.
type GasEstimator struct {
	url        string
	httpClient *http.Client
}

type gasOracleResp struct {
	SafeLow float64 `json:"safeLow"`
	Average float64 `json:"average"`
	Fast    float64 `json:"fast"`
}

func NewGasEstimator(url string) (*GasEstimator, error) {
	url = strings.TrimSpace(url)
	if !strings.HasPrefix(url, "http") {
		return nil, fmt.Errorf("gas estimator URL must be http(s), got %q", url)
	}
	return &GasEstimator{
		url:        url,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}, nil
}

// Tiers may fail; the caller falls back to its hardcoded table.
func (g *GasEstimator) Tiers(ctx context.Context) (txcoord.GasTiers, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.url, nil)
	if err != nil {
		return txcoord.GasTiers{}, err
	}
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return txcoord.GasTiers{}, err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return txcoord.GasTiers{}, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return txcoord.GasTiers{}, fmt.Errorf("gas oracle: status %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}

	var raw gasOracleResp
	if err := json.Unmarshal(b, &raw); err != nil {
		return txcoord.GasTiers{}, fmt.Errorf("decode gas oracle response: %w", err)
	}
	if raw.SafeLow <= 0 || raw.Average <= 0 || raw.Fast <= 0 {
		return txcoord.GasTiers{}, fmt.Errorf("gas oracle returned non-positive tier: %+v", raw)
	}
	return txcoord.GasTiers{
		SafeLow: gweiToWei(raw.SafeLow),
		Average: gweiToWei(raw.Average),
		Fast:    gweiToWei(raw.Fast),
	}, nil
}

// gweiToWei keeps milli-gwei resolution, enough for any oracle quote.
// Rounds to the nearest milli-gwei: a bare int64 cast truncates float
// error downward (29.3 would become 29299).
func gweiToWei(gwei float64) *big.Int {
	milli := big.NewInt(int64(math.Round(gwei * 1000)))
	return milli.Mul(milli, big.NewInt(1e6))
}

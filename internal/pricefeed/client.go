// Package pricefeed provides the external reference market prices the
// engines compare auctions against: an HTTP client for on-demand reads
// and a WebSocket stream for a warm last-tick cache.
package pricefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// Client reads prices from the feed's REST API. Failures propagate to
// the engine that asked; no retry and no guessing here.
type Client struct {
	host       string
	httpClient *http.Client
}

func NewClient(host string) (*Client, error) {
	host = strings.TrimRight(strings.TrimSpace(host), "/")
	if !strings.HasPrefix(host, "http") {
		return nil, fmt.Errorf("pricefeed host must be http(s), got %q", host)
	}
	return &Client{
		host:       host,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}, nil
}

type priceResp struct {
	Price decimal.Decimal `json:"price"`
}

// PriceUSD returns USD per smallest unit of the token.
func (c *Client) PriceUSD(ctx context.Context, token common.Address) (decimal.Decimal, error) {
	params := url.Values{"token": []string{token.Hex()}}
	return c.fetch(ctx, "/v1/prices/usd", params)
}

// Price returns quote smallest units per base smallest unit.
func (c *Client) Price(ctx context.Context, base, quote common.Address) (decimal.Decimal, error) {
	params := url.Values{
		"base":  []string{base.Hex()},
		"quote": []string{quote.Hex()},
	}
	return c.fetch(ctx, "/v1/prices/pair", params)
}

func (c *Client) fetch(ctx context.Context, path string, params url.Values) (decimal.Decimal, error) {
	u := c.host + path + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return decimal.Zero, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return decimal.Zero, err
	}
	defer resp.Body.Close()

	b, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return decimal.Zero, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decimal.Zero, fmt.Errorf("pricefeed %s: status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(b)))
	}

	var out priceResp
	if err := json.Unmarshal(b, &out); err != nil {
		return decimal.Zero, fmt.Errorf("decode %s response: %w", path, err)
	}
	if out.Price.Sign() <= 0 {
		return decimal.Zero, fmt.Errorf("pricefeed %s: non-positive price %s", path, out.Price)
	}
	return out.Price, nil
}

package keeper

import (
	"log"
	"time"

	"dutch-gokeeper/internal/jsonl"
)

// keeperEvent is one JSONL record in the keeper's event log. Every
// decision cycle emits at least one line per market.
type keeperEvent struct {
	TsMs  int64  `json:"ts_ms"`
	Event string `json:"event"` // start | cycle | order | opportunity | error | summary

	Market  string `json:"market,omitempty"`
	Account string `json:"account,omitempty"`
	State   string `json:"state,omitempty"`
	Step    string `json:"step,omitempty"`

	// Per-order fields.
	OrderKind    string `json:"order_kind,omitempty"`
	SellToken    string `json:"sell_token,omitempty"`
	BuyToken     string `json:"buy_token,omitempty"`
	AuctionIndex string `json:"auction_index,omitempty"`
	Amount       string `json:"amount,omitempty"`
	AmountUSD    string `json:"amount_usd,omitempty"`
	TxHash       string `json:"tx_hash,omitempty"`
	Nonce        uint64 `json:"nonce,omitempty"`

	// Arbitrage fields.
	Direction string `json:"direction,omitempty"`
	Spend     string `json:"spend,omitempty"`

	DryRun bool `json:"dry_run,omitempty"`

	Err string `json:"err,omitempty"`

	UptimeMs int64 `json:"uptime_ms,omitempty"`
}

func logKeeperEvent(w *jsonl.Writer, ev keeperEvent) {
	if w == nil {
		return
	}
	if err := w.Write(ev); err != nil {
		log.Printf("[warn] event log write failed: %v", err)
	}
}

func uptimeMs(startedAt time.Time) int64 {
	return time.Since(startedAt).Milliseconds()
}

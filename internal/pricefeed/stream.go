package pricefeed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"
)

const defaultPingInterval = 5 * time.Second

// Tick is one streamed pair price.
type Tick struct {
	Base      common.Address  `json:"base"`
	Quote     common.Address  `json:"quote"`
	Price     decimal.Decimal `json:"price"`
	Timestamp int64           `json:"timestamp"`
}

type subscribeRequest struct {
	Action string   `json:"action"`
	Pairs  []string `json:"pairs"`
}

// Pair names a streamed pair subscription.
type Pair struct {
	Base  common.Address
	Quote common.Address
}

func (p Pair) topic() string {
	return p.Base.Hex() + "/" + p.Quote.Hex()
}

// StreamOptions tune the connection loop.
type StreamOptions struct {
	PingInterval time.Duration
	BackoffMin   time.Duration
	BackoffMax   time.Duration
	OutBuffer    int
}

func (o StreamOptions) withDefaults() StreamOptions {
	if o.PingInterval <= 0 {
		o.PingInterval = defaultPingInterval
	}
	if o.BackoffMin <= 0 {
		o.BackoffMin = 500 * time.Millisecond
	}
	if o.BackoffMax <= 0 {
		o.BackoffMax = 15 * time.Second
	}
	if o.OutBuffer <= 0 {
		o.OutBuffer = 256
	}
	return o
}

// Stream connects to the feed's WebSocket endpoint and emits decoded
// ticks, reconnecting with jittered backoff until the context ends.
// Slow consumers lose ticks rather than stalling the reader.
func Stream(ctx context.Context, url string, pairs []Pair, opts StreamOptions) (<-chan Tick, <-chan error) {
	opts = opts.withDefaults()
	out := make(chan Tick, opts.OutBuffer)
	errs := make(chan error, 16)

	go func() {
		defer close(out)
		defer close(errs)

		backoff := opts.BackoffMin
		for {
			if ctx.Err() != nil {
				return
			}

			conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
			if err != nil {
				emitErrNonBlocking(errs, fmt.Errorf("pricefeed dial: %w", err))
				sleepWithJitter(ctx, backoff)
				backoff = nextBackoff(backoff, opts.BackoffMax)
				continue
			}

			backoff = opts.BackoffMin
			if err := runSession(ctx, conn, pairs, opts.PingInterval, out, errs); err != nil && ctx.Err() == nil {
				emitErrNonBlocking(errs, err)
			}

			_ = conn.Close()
			if ctx.Err() != nil {
				return
			}
			sleepWithJitter(ctx, backoff)
			backoff = nextBackoff(backoff, opts.BackoffMax)
		}
	}()

	return out, errs
}

func runSession(ctx context.Context, conn *websocket.Conn, pairs []Pair, pingInterval time.Duration, out chan<- Tick, errs chan<- error) error {
	reqBytes, err := subscribeFrame(pairs)
	if err != nil {
		return err
	}
	if err := conn.WriteMessage(websocket.TextMessage, reqBytes); err != nil {
		return fmt.Errorf("pricefeed subscribe write: %w", err)
	}

	var writeMu sync.Mutex
	stop := make(chan struct{})
	var stopOnce sync.Once
	stopAll := func() { stopOnce.Do(func() { close(stop) }) }

	go func() {
		defer stopAll()
		t := time.NewTicker(pingInterval)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-stop:
				return
			case <-t.C:
				writeMu.Lock()
				_ = conn.SetWriteDeadline(time.Now().Add(3 * time.Second))
				werr := conn.WriteMessage(websocket.TextMessage, []byte("ping"))
				writeMu.Unlock()
				if werr != nil {
					emitErrNonBlocking(errs, fmt.Errorf("pricefeed ping: %w", werr))
					_ = conn.Close()
					return
				}
			}
		}
	}()

	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	for {
		typ, msg, err := conn.ReadMessage()
		if err != nil {
			stopAll()
			if errors.Is(err, websocket.ErrCloseSent) || ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("pricefeed read: %w", err)
		}
		if typ != websocket.TextMessage && typ != websocket.BinaryMessage {
			continue
		}
		if len(msg) == 0 || string(msg) == "pong" || string(msg) == "ping" {
			continue
		}

		var tick Tick
		if err := json.Unmarshal(msg, &tick); err != nil {
			emitErrNonBlocking(errs, fmt.Errorf("pricefeed decode: %w", err))
			continue
		}

		select {
		case out <- tick:
		default:
		}
	}
}

func subscribeFrame(pairs []Pair) ([]byte, error) {
	req := subscribeRequest{Action: "subscribe"}
	for _, p := range pairs {
		req.Pairs = append(req.Pairs, p.topic())
	}
	b, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("pricefeed subscribe marshal: %w", err)
	}
	return b, nil
}

func emitErrNonBlocking(ch chan<- error, err error) {
	if err == nil {
		return
	}
	select {
	case ch <- err:
	default:
	}
}

func nextBackoff(cur, max time.Duration) time.Duration {
	next := cur * 2
	if next > max {
		return max
	}
	return next
}

func sleepWithJitter(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	j := int64(d) / 7
	if j > 0 {
		d = time.Duration(int64(d) + rand.Int64N(2*j+1) - j)
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

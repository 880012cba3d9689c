// Package notify posts keeper events to an optional webhook. It is
// strictly fire-and-forget: delivery failures are logged and dropped,
// never propagated to the decision path.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"
)

// Notifier posts messages to one webhook URL. A nil Notifier is valid
// and does nothing, so callers never branch on configuration.
type Notifier struct {
	url        string
	httpClient *http.Client
}

type payload struct {
	Text string `json:"text"`
}

// New returns nil when url is blank.
func New(url string) *Notifier {
	url = strings.TrimSpace(url)
	if url == "" {
		return nil
	}
	return &Notifier{
		url:        url,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Notify delivers the message, logging failures.
func (n *Notifier) Notify(ctx context.Context, format string, args ...any) {
	if n == nil {
		return
	}
	msg := fmt.Sprintf(format, args...)

	body, err := json.Marshal(payload{Text: msg})
	if err != nil {
		log.Printf("[warn] notify: marshal: %v", err)
		return
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		log.Printf("[warn] notify: build request: %v", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		log.Printf("[warn] notify: %v", err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Printf("[warn] notify: webhook status %d", resp.StatusCode)
	}
}

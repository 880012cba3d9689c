package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNotifyPostsJSON(t *testing.T) {
	got := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		var p payload
		if err := json.Unmarshal(b, &p); err != nil {
			t.Errorf("bad payload: %v", err)
		}
		got <- p.Text
	}))
	defer srv.Close()

	n := New(srv.URL)
	n.Notify(context.Background(), "posted %d orders for %s", 2, "WETH/RDN")

	if msg := <-got; msg != "posted 2 orders for WETH/RDN" {
		t.Fatalf("message = %q", msg)
	}
}

func TestNilNotifierIsSafe(t *testing.T) {
	var n *Notifier
	n.Notify(context.Background(), "nobody is listening")

	if New("  ") != nil {
		t.Fatalf("blank URL should yield a nil notifier")
	}
}

func TestFailuresNeverPropagate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "teapot", http.StatusTeapot)
	}))
	defer srv.Close()

	// Must not panic or error; failures are logged only.
	New(srv.URL).Notify(context.Background(), "oops")
	New("http://127.0.0.1:1").Notify(context.Background(), "unreachable")
}

package monitor

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/bosley/parley/conversation"
	"github.com/bosley/parley/interview"
	"github.com/bosley/parley/phase"
	"github.com/gorilla/websocket"
)

type fakeSource struct {
	log *conversation.Log
}

func (f *fakeSource) Status() interview.Status {
	return interview.Status{SessionID: "abc", Mode: "interview", Running: true, Phase: phase.Technical, Exchanges: f.log.Len()}
}

func (f *fakeSource) Log() *conversation.Log { return f.log }

func newTestMonitor(t *testing.T, cfg Config) (*Monitor, *fakeSource, *httptest.Server) {
	t.Helper()
	src := &fakeSource{log: conversation.NewLog()}
	m := New(cfg, src, slog.New(slog.NewTextHandler(io.Discard, nil)))
	srv := httptest.NewServer(m.Handler())
	t.Cleanup(func() {
		m.Stop(context.Background())
		srv.Close()
	})
	return m, src, srv
}

func exchange(seq int, user string) conversation.Exchange {
	return conversation.Exchange{Seq: seq, Timestamp: time.Now(), User: user, Assistant: "ok", Phase: phase.Technical}
}

func getJSON(t *testing.T, url string, v any) int {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusOK && v != nil {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			t.Fatalf("decode %s: %v", url, err)
		}
	}
	return resp.StatusCode
}

func TestMonitor_Session(t *testing.T) {
	t.Parallel()

	_, src, srv := newTestMonitor(t, Config{})
	src.log.Append(exchange(1, "hello"))

	var st interview.Status
	if code := getJSON(t, srv.URL+"/api/session", &st); code != http.StatusOK {
		t.Fatalf("status code = %d", code)
	}
	if st.SessionID != "abc" || st.Phase != phase.Technical || st.Exchanges != 1 {
		t.Errorf("status = %+v", st)
	}
}

func TestMonitor_Exchanges(t *testing.T) {
	t.Parallel()

	_, src, srv := newTestMonitor(t, Config{})
	for i, u := range []string{"one", "two", "three"} {
		src.log.Append(exchange(i+1, u))
	}

	var all []conversation.Exchange
	getJSON(t, srv.URL+"/api/exchanges", &all)
	if len(all) != 3 {
		t.Errorf("exchanges = %d; want 3", len(all))
	}

	var since []conversation.Exchange
	getJSON(t, srv.URL+"/api/exchanges?since=2", &since)
	if len(since) != 1 || since[0].User != "three" {
		t.Errorf("since=2 gave %+v", since)
	}

	if code := getJSON(t, srv.URL+"/api/exchanges?since=x", nil); code != http.StatusBadRequest {
		t.Errorf("bad since code = %d", code)
	}

	var one conversation.Exchange
	if code := getJSON(t, srv.URL+"/api/exchanges/2", &one); code != http.StatusOK || one.User != "two" {
		t.Errorf("exchange 2 = %d %+v", code, one)
	}
	if code := getJSON(t, srv.URL+"/api/exchanges/9", nil); code != http.StatusNotFound {
		t.Errorf("missing exchange code = %d", code)
	}
}

func TestMonitor_Metrics(t *testing.T) {
	t.Parallel()

	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "parley_exchanges_total 2\n")
	})
	_, _, srv := newTestMonitor(t, Config{Metrics: metrics})

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "parley_exchanges_total") {
		t.Errorf("metrics body = %q", body)
	}
}

func TestMonitor_WebSocketPushesExchanges(t *testing.T) {
	t.Parallel()

	m, src, srv := newTestMonitor(t, Config{})
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for m.subscriberCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	src.log.Append(exchange(1, "I use Go daily."))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var msg struct {
		Type      string                `json:"type"`
		SessionID string                `json:"sessionId"`
		Payload   conversation.Exchange `json:"payload"`
	}
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	if msg.Type != "exchange" || msg.SessionID != "abc" || msg.Payload.User != "I use Go daily." {
		t.Errorf("message = %+v", msg)
	}
}

func TestMonitor_RejectsOrigin(t *testing.T) {
	t.Parallel()

	_, _, srv := newTestMonitor(t, Config{AllowedOrigins: []string{"http://localhost:3000"}})
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	header := http.Header{"Origin": []string{"http://evil.example"}}
	if _, resp, err := websocket.DefaultDialer.Dial(wsURL, header); err == nil {
		t.Fatal("dial succeeded from a disallowed origin")
	} else if resp != nil && resp.StatusCode != http.StatusForbidden {
		t.Errorf("status = %d; want 403", resp.StatusCode)
	}

	header.Set("Origin", "http://localhost:3000")
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, header)
	if err != nil {
		t.Fatalf("dial from allowed origin: %v", err)
	}
	conn.Close()
}

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"quantbroker/internal/domain"
	"quantbroker/internal/execution/live"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeGateway serves the REST and websocket API with crypto order payloads.
type fakeGateway struct {
	srv      *httptest.Server
	upgrader websocket.Upgrader

	mu     sync.Mutex
	orders map[string]map[string]any
	nextID int
	status int    // forced HTTP status, 0 serves normally
	code   string // forced business code

	subs     chan subscribeMessage
	push     chan any
	drop     chan struct{}
	done     chan struct{}
	sessions atomic.Int32
}

func newFakeGateway(t *testing.T) *fakeGateway {
	g := &fakeGateway{
		orders: make(map[string]map[string]any),
		subs:   make(chan subscribeMessage, 4),
		push:   make(chan any, 16),
		drop:   make(chan struct{}),
		done:   make(chan struct{}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc(pathTime, func(w http.ResponseWriter, r *http.Request) {
		g.reply(w, map[string]any{"serverTime": time.Now().UnixMilli()})
	})
	mux.HandleFunc(pathOrders, g.handleOrders)
	mux.HandleFunc(pathCancel, g.handleCancel)
	mux.HandleFunc(pathBalance, func(w http.ResponseWriter, r *http.Request) {
		g.reply(w, map[string]any{"free": "5000", "total": "5200.5"})
	})
	mux.HandleFunc(pathPositions, func(w http.ResponseWriter, r *http.Request) {
		g.reply(w, []map[string]any{{"symbol": "ETH/USDT", "contracts": 3, "entryPrice": "2000", "side": "short"}})
	})
	mux.HandleFunc("/ws", g.handleStream)

	g.srv = httptest.NewServer(g.auth(mux))
	t.Cleanup(func() {
		close(g.done)
		g.srv.Close()
	})
	return g
}

func (g *fakeGateway) wsURL() string {
	return "ws" + strings.TrimPrefix(g.srv.URL, "http") + "/ws"
}

func (g *fakeGateway) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("ACCESS-KEY") != "key" || r.Header.Get("ACCESS-SIGN") == "" {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		g.mu.Lock()
		status := g.status
		g.mu.Unlock()
		if status != 0 {
			http.Error(w, "forced", status)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (g *fakeGateway) reply(w http.ResponseWriter, data any) {
	g.mu.Lock()
	code := g.code
	g.mu.Unlock()
	if code == "" {
		code = successCode
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"code": code, "msg": "msg-" + code, "data": data})
}

func (g *fakeGateway) handleOrders(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodGet {
		g.mu.Lock()
		o, ok := g.orders[r.URL.Query().Get("clientOrderId")]
		g.mu.Unlock()
		if !ok {
			http.Error(w, `{"code":"40404","msg":"order not found"}`, http.StatusNotFound)
			return
		}
		g.reply(w, o)
		return
	}

	var req map[string]any
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad body", http.StatusBadRequest)
		return
	}
	g.mu.Lock()
	g.nextID++
	req["id"] = fmt.Sprintf("V%d", g.nextID)
	req["status"] = "open"
	req["filled"] = "0"
	g.orders[fmt.Sprint(req["clientOrderId"])] = req
	g.mu.Unlock()
	g.reply(w, req)
}

func (g *fakeGateway) handleCancel(w http.ResponseWriter, r *http.Request) {
	var req map[string]any
	json.NewDecoder(r.Body).Decode(&req)
	g.mu.Lock()
	o, ok := g.orders[fmt.Sprint(req["clientOrderId"])]
	if ok {
		o["status"] = "canceled"
	}
	g.mu.Unlock()
	if !ok {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}
	g.reply(w, o)
}

func (g *fakeGateway) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	g.sessions.Add(1)

	var sub subscribeMessage
	if err := conn.ReadJSON(&sub); err != nil {
		return
	}
	g.subs <- sub

	for {
		select {
		case msg := <-g.push:
			if err := conn.WriteJSON(msg); err != nil {
				return
			}
		case <-g.drop:
			return
		case <-g.done:
			return
		}
	}
}

func (g *fakeGateway) force(status int, code string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.status, g.code = status, code
}

func newTestGateway(t *testing.T, g *fakeGateway, ws bool) *Gateway {
	opts := Options{
		RestURL:     g.srv.URL,
		AccessKey:   "key",
		SecretKey:   "secret",
		Instruments: []string{"BTC/USDT"},
		Timeout:     2 * time.Second,
	}
	if ws {
		opts.WSURL = g.wsURL()
	}
	gw := New(opts)
	t.Cleanup(func() { gw.Close() })
	return gw
}

func TestClient_OrderRoundTrip(t *testing.T) {
	g := newFakeGateway(t)
	gw := newTestGateway(t, g, false)
	ctx := context.Background()

	require.NoError(t, gw.Connect(ctx))
	assert.True(t, gw.Connected())
	assert.Nil(t, gw.Events(), "no stream means polling only")

	created, err := gw.CreateOrder(ctx, domain.Payload{"symbol": "BTC/USDT", "side": "buy", "amount": "0.5", "clientOrderId": "c-1"})
	require.NoError(t, err)
	assert.Equal(t, "V1", created["id"])
	assert.Equal(t, "open", created["status"])

	fetched, err := gw.FetchOrder(ctx, domain.Payload{"clientOrderId": "c-1", "symbol": "BTC/USDT"})
	require.NoError(t, err)
	assert.Equal(t, "0.5", fetched["amount"])

	canceled, err := gw.CancelOrder(ctx, domain.Payload{"clientOrderId": "c-1"})
	require.NoError(t, err)
	assert.Equal(t, "canceled", canceled["status"])

	bal, err := gw.FetchBalance(ctx)
	require.NoError(t, err)
	assert.Equal(t, "5200.5", bal["total"])

	positions, err := gw.Positions(ctx)
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, json.Number("3"), positions[0]["contracts"], "numbers keep their text")
}

func TestClient_ErrorMapping(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		code      string
		retriable bool
		venue     bool
	}{
		{"server error", http.StatusServiceUnavailable, "", true, false},
		{"rate limited", http.StatusTooManyRequests, "", true, false},
		{"unauthorized", http.StatusUnauthorized, "", false, false},
		{"bad request", http.StatusBadRequest, "", false, true},
		{"business code", 0, "43012", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newFakeGateway(t)
			gw := newTestGateway(t, g, false)
			g.force(tt.status, tt.code)

			_, err := gw.CreateOrder(context.Background(), domain.Payload{"clientOrderId": "x"})
			require.Error(t, err)
			assert.Equal(t, tt.retriable, domain.IsRetriable(err))

			var ve *domain.VenueError
			assert.Equal(t, tt.venue, errors.As(err, &ve))
			if tt.code != "" {
				assert.Equal(t, tt.code, ve.Code)
			}
		})
	}
}

func TestClient_TransportFailureIsRetriable(t *testing.T) {
	g := newFakeGateway(t)
	gw := newTestGateway(t, g, false)
	g.srv.Close()

	err := gw.Connect(context.Background())
	require.Error(t, err)
	assert.True(t, domain.IsRetriable(err))
	assert.False(t, gw.Connected())
}

func TestClient_BadCredentials(t *testing.T) {
	g := newFakeGateway(t)
	gw := New(Options{RestURL: g.srv.URL, AccessKey: "wrong"})

	err := gw.Connect(context.Background())
	require.Error(t, err)
	assert.False(t, domain.IsRetriable(err), "auth failures must stop reconnecting")
}

func TestGateway_StreamRouting(t *testing.T) {
	g := newFakeGateway(t)
	gw := newTestGateway(t, g, true)

	require.NoError(t, gw.Connect(context.Background()))
	sub := <-g.subs
	assert.Equal(t, "subscribe", sub.Op)
	assert.Equal(t, []string{"BTC/USDT"}, sub.Instruments)

	g.push <- map[string]any{"event": "order", "clientOrderId": "c-9", "filled": 1.25}
	g.push <- map[string]any{"event": "bar", "instrument": "BTC/USDT", "time": "2024-01-02T00:00:00Z", "open": 1, "high": 2, "low": 0.5, "close": 1.5, "volume": 10}

	select {
	case p := <-gw.Events():
		assert.Equal(t, "c-9", p["clientOrderId"])
		assert.Equal(t, json.Number("1.25"), p["filled"])
	case <-time.After(2 * time.Second):
		t.Fatal("no order event")
	}

	select {
	case ev := <-gw.Bars():
		assert.Equal(t, "BTC/USDT", ev.Instrument)
		assert.Equal(t, 1.5, ev.Bar.Close)
		assert.True(t, ev.Bar.Time.Equal(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)))
	case <-time.After(2 * time.Second):
		t.Fatal("no bar event")
	}
}

func TestGateway_SessionLossAndReconnect(t *testing.T) {
	g := newFakeGateway(t)
	gw := newTestGateway(t, g, true)
	ctx := context.Background()

	require.NoError(t, gw.Connect(ctx))
	<-g.subs
	require.True(t, gw.Connected())

	g.drop <- struct{}{}
	require.Eventually(t, func() bool { return !gw.Connected() }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, gw.Connect(ctx))
	<-g.subs
	assert.True(t, gw.Connected())
	assert.Equal(t, int32(2), g.sessions.Load())
}

func TestGateway_DrivesLiveBroker(t *testing.T) {
	g := newFakeGateway(t)
	gw := newTestGateway(t, g, true)

	broker := live.New(live.Crypto, gw, live.Config{
		Workers:        2,
		QueueSize:      16,
		ConnectTimeout: 2 * time.Second,
		RequestTimeout: time.Second,
		ReconnectBase:  10 * time.Millisecond,
		ReconnectMax:   50 * time.Millisecond,
		Heartbeat:      10 * time.Millisecond,
	})
	require.NoError(t, broker.Start(context.Background()))
	t.Cleanup(broker.Stop)
	<-g.subs

	assert.Equal(t, 5000.0, broker.Cash())
	assert.Equal(t, -3.0, broker.Position("ETH/USDT").Size)

	o := broker.Submit(domain.NewOrder("BTC/USDT", 2, domain.KindLimit, 100))
	require.Equal(t, domain.StatusSubmitted, o.Status)
	clientID := o.ClientID

	require.Eventually(t, func() bool {
		g.mu.Lock()
		defer g.mu.Unlock()
		return len(g.orders) == 1
	}, 2*time.Second, 10*time.Millisecond)

	g.push <- map[string]any{"clientOrderId": clientID, "id": "V1", "status": "closed", "filled": "2", "average": "99.5"}

	require.Eventually(t, func() bool {
		return broker.Position("BTC/USDT").Size == 2
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 99.5, broker.Position("BTC/USDT").Price)

	var last *domain.Order
	for broker.HasNotifications() {
		last = broker.Notification()
	}
	require.NotNil(t, last)
	assert.Equal(t, domain.StatusCompleted, last.Status)
}

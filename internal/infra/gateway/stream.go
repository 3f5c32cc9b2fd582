package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"quantbroker/internal/domain"

	"github.com/gorilla/websocket"
)

const (
	streamHandshakeTimeout = 10 * time.Second
	streamReadTimeout      = 60 * time.Second
	streamBufferSize       = 256
)

// BarEvent is a completed bar pushed by the gateway.
type BarEvent struct {
	Instrument string
	Bar        domain.Bar
}

type barMessage struct {
	Instrument   string    `json:"instrument"`
	Time         time.Time `json:"time"`
	Open         float64   `json:"open"`
	High         float64   `json:"high"`
	Low          float64   `json:"low"`
	Close        float64   `json:"close"`
	Volume       float64   `json:"volume"`
	OpenInterest float64   `json:"open_interest"`
}

const eventBar = "bar"

// stream is the push side of the gateway: one websocket session that
// fans messages out to the event and bar channels.
type stream struct {
	url         string
	instruments []string
	signer      *Signer
	logger      *slog.Logger

	conn      *websocket.Conn
	mu        sync.RWMutex
	writeMu   sync.Mutex
	connected bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup

	events chan domain.Payload
	bars   chan BarEvent
}

func newStream(url string, instruments []string, signer *Signer) *stream {
	return &stream{
		url:         url,
		instruments: instruments,
		signer:      signer,
		logger:      slog.Default().With("module", "gateway_stream"),
		events:      make(chan domain.Payload, streamBufferSize),
		bars:        make(chan BarEvent, streamBufferSize),
	}
}

type subscribeMessage struct {
	Op          string   `json:"op"`
	Channels    []string `json:"channels"`
	Instruments []string `json:"instruments,omitempty"`
}

// connect dials a fresh session and starts reading it. A previous session
// is closed first.
func (s *stream) connect(ctx context.Context) error {
	s.close()

	dialer := websocket.Dialer{
		HandshakeTimeout: streamHandshakeTimeout,
	}

	header := make(http.Header)
	for k, v := range s.signer.GenerateHeaders(http.MethodGet, "/ws", "", "") {
		header.Set(k, v)
	}

	conn, _, err := dialer.DialContext(ctx, s.url, header)
	if err != nil {
		return domain.NewNetworkError("stream_dial", fmt.Errorf("dial failed: %w", err))
	}

	readCtx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	s.conn = conn
	s.connected = true
	s.cancel = cancel
	s.mu.Unlock()

	// Subscribe to account reports and bars
	sub := subscribeMessage{Op: "subscribe", Channels: []string{"orders", "account", "bars"}, Instruments: s.instruments}
	if err := s.send(sub); err != nil {
		cancel()
		s.close()
		return domain.NewNetworkError("stream_subscribe", fmt.Errorf("subscribe failed: %w", err))
	}

	s.wg.Add(1)
	go s.readLoop(readCtx, conn)

	s.logger.Info("Gateway stream connected",
		slog.String("url", s.url),
		slog.Int("instruments", len(s.instruments)),
	)
	return nil
}

// readLoop reads messages until the session breaks or ctx is done.
func (s *stream) readLoop(ctx context.Context, conn *websocket.Conn) {
	defer s.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Stream panic recovered", slog.Any("panic", r))
		}
		s.markDown(conn)
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		conn.SetReadDeadline(time.Now().Add(streamReadTimeout))

		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("Gateway stream read error", slog.Any("error", err))
			}
			return
		}

		s.handleMessage(message)
	}
}

// handleMessage routes bars to the bar channel and everything else to
// the event channel.
func (s *stream) handleMessage(message []byte) {
	dec := json.NewDecoder(bytes.NewReader(message))
	dec.UseNumber()

	var p domain.Payload
	if err := dec.Decode(&p); err != nil {
		s.logger.Debug("Stream message parse error", slog.Any("error", err))
		return
	}

	if p[domain.EventKey] == eventBar {
		var msg barMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			s.logger.Debug("Bar message parse error", slog.Any("error", err))
			return
		}
		ev := BarEvent{Instrument: msg.Instrument, Bar: domain.Bar{
			Time:         msg.Time,
			Open:         msg.Open,
			High:         msg.High,
			Low:          msg.Low,
			Close:        msg.Close,
			Volume:       msg.Volume,
			OpenInterest: msg.OpenInterest,
		}}
		select {
		case s.bars <- ev:
		default:
			s.logger.Warn("Bar channel full, dropping data", slog.String("instrument", msg.Instrument))
		}
		return
	}

	// A dropped report is recovered by the next order poll.
	select {
	case s.events <- p:
	default:
		s.logger.Warn("Event channel full, dropping data")
	}
}

// send writes a message to the session in a thread-safe manner
func (s *stream) send(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.RLock()
	conn := s.conn
	s.mu.RUnlock()

	if conn == nil {
		return domain.ErrNotConnected
	}
	return conn.WriteMessage(websocket.TextMessage, data)
}

// markDown clears the session if conn is still the current one.
func (s *stream) markDown(conn *websocket.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == conn {
		s.conn.Close()
		s.conn = nil
		s.connected = false
	}
}

// close ends the session and waits for its reader.
func (s *stream) close() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	s.connected = false
	s.mu.Unlock()

	s.wg.Wait()
}

func (s *stream) isConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

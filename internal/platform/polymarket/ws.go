package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"polyarb/internal/domain"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next pong from the peer.
	pongWait = 60 * time.Second

	// pingPeriod sends pings at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// defaultBackoffFloor and defaultBackoffCeiling bound the exponential
	// reconnect backoff.
	defaultBackoffFloor   = 1 * time.Second
	defaultBackoffCeiling = 60 * time.Second
)

// State is the connection state of the subscription client.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateReconnecting State = "reconnecting"
	StateClosed       State = "closed"
)

// PriceUpdate is emitted on the updates channel whenever a subscribed
// token's price changes.
type PriceUpdate struct {
	TokenID string
	Price   float64
}

// WSStats is a point-in-time snapshot of subscription client counters.
type WSStats struct {
	State            State `json:"state"`
	SubscribedTokens int   `json:"subscribed_tokens"`
	MessagesReceived int64 `json:"messages_received"`
	ReconnectCount   int64 `json:"reconnect_count"`
	CachedPrices     int   `json:"cached_prices"`
}

// WSClient maintains a persistent stream of price updates for a subscribed
// token set. Subscriptions survive reconnects: the full set is replayed
// after every successful connect. Changed prices are delivered on a
// buffered channel; when the buffer is full the oldest pending update is
// dropped in favor of the newest, so the read loop never blocks on a slow
// consumer.
type WSClient struct {
	url    string
	logger *slog.Logger

	backoffFloor   time.Duration
	backoffCeiling time.Duration

	mu         sync.Mutex
	conn       *websocket.Conn
	state      State
	subscribed map[string]struct{}
	prices     map[string]float64
	closed     bool

	updates chan PriceUpdate
	done    chan struct{}

	messagesReceived atomic.Int64
	reconnectCount   atomic.Int64
}

// NewWSClient creates a subscription client for the given WebSocket URL.
//
// wsURL is the price stream endpoint, e.g.
// "wss://ws-subscriptions-clob.polymarket.com/ws/market". buffer sizes the
// updates channel; values below 1 fall back to 256.
func NewWSClient(wsURL string, buffer int, logger *slog.Logger) *WSClient {
	if buffer < 1 {
		buffer = 256
	}
	return &WSClient{
		url:            wsURL,
		logger:         logger.With(slog.String("component", "ws_client")),
		backoffFloor:   defaultBackoffFloor,
		backoffCeiling: defaultBackoffCeiling,
		state:          StateDisconnected,
		subscribed:     make(map[string]struct{}),
		prices:         make(map[string]float64),
		updates:        make(chan PriceUpdate, buffer),
		done:           make(chan struct{}),
	}
}

// SetBackoff overrides the reconnect backoff bounds. Non-positive values
// are ignored. Call before Listen.
func (w *WSClient) SetBackoff(floor, ceiling time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if floor > 0 {
		w.backoffFloor = floor
	}
	if ceiling >= w.backoffFloor {
		w.backoffCeiling = ceiling
	}
}

// Updates returns the channel on which changed prices are delivered.
func (w *WSClient) Updates() <-chan PriceUpdate {
	return w.updates
}

// Connect establishes the WebSocket connection and replays every recorded
// subscription. A successful connect resets the reconnect backoff to its
// floor (handled by Listen).
func (w *WSClient) Connect(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return fmt.Errorf("polymarket/ws: connect: %w", domain.ErrClientClosed)
	}
	if w.conn != nil {
		return nil
	}

	w.state = StateConnecting

	dialer := websocket.Dialer{
		HandshakeTimeout: connectTimeout,
	}
	conn, _, err := dialer.DialContext(ctx, w.url, nil)
	if err != nil {
		w.state = StateDisconnected
		return fmt.Errorf("polymarket/ws: connect: %w", err)
	}

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	w.conn = conn
	w.state = StateConnected

	go w.pingLoop(conn, pingPeriod)

	// Replay subscriptions so callers never notice the reconnect.
	for tokenID := range w.subscribed {
		if err := w.sendCommand(WSCommand{Type: "subscribe", Channel: "price", TokenID: tokenID}); err != nil {
			return fmt.Errorf("polymarket/ws: restore subscription: %w", err)
		}
	}

	return nil
}

// Subscribe records the given token IDs and, when connected, sends a
// subscribe command for each token not already subscribed. It is
// idempotent; while disconnected the delta is flushed on the next connect.
func (w *WSClient) Subscribe(ctx context.Context, tokenIDs []string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return fmt.Errorf("polymarket/ws: subscribe: %w", domain.ErrClientClosed)
	}

	for _, id := range tokenIDs {
		if id == "" {
			continue
		}
		if _, ok := w.subscribed[id]; ok {
			continue
		}
		w.subscribed[id] = struct{}{}
		if w.conn != nil {
			if err := w.sendCommand(WSCommand{Type: "subscribe", Channel: "price", TokenID: id}); err != nil {
				return fmt.Errorf("polymarket/ws: subscribe %s: %w", id, err)
			}
		}
	}
	return nil
}

// Unsubscribe removes the given token IDs from the subscription set and,
// when connected, sends an unsubscribe command for each token that was
// actually subscribed.
func (w *WSClient) Unsubscribe(ctx context.Context, tokenIDs []string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	for _, id := range tokenIDs {
		if _, ok := w.subscribed[id]; !ok {
			continue
		}
		delete(w.subscribed, id)
		if w.conn != nil {
			if err := w.sendCommand(WSCommand{Type: "unsubscribe", Channel: "price", TokenID: id}); err != nil {
				return fmt.Errorf("polymarket/ws: unsubscribe %s: %w", id, err)
			}
		}
	}
	return nil
}

// Listen reads and dispatches inbound messages until Close is called or
// ctx is cancelled. Read errors and connect failures transition the client
// to reconnecting and retry with exponential backoff; they never terminate
// the loop. Calling Listen on a closed client returns immediately.
func (w *WSClient) Listen(ctx context.Context) error {
	failures := 0

	for {
		select {
		case <-w.done:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		conn := w.currentConn()
		if conn == nil {
			if err := w.Connect(ctx); err != nil {
				if w.isClosed() {
					return nil
				}
				w.logger.Warn("connect failed",
					slog.String("error", err.Error()),
					slog.Int("consecutive_failures", failures+1),
				)
				if err := w.waitBackoff(ctx, failures); err != nil {
					return err
				}
				failures++
				continue
			}
			failures = 0
			w.logger.Info("stream connected", slog.Int("subscriptions", w.subscriptionCount()))
			continue
		}

		_, raw, err := conn.ReadMessage()
		if err != nil {
			if w.isClosed() {
				return nil
			}
			w.logger.Warn("stream read failed, reconnecting", slog.String("error", err.Error()))
			w.dropConn(conn)
			w.reconnectCount.Add(1)
			if err := w.waitBackoff(ctx, failures); err != nil {
				return err
			}
			failures++
			continue
		}

		w.handleMessage(raw)
	}
}

// Close shuts the client down permanently. It is safe to call multiple
// times; the first call closes the underlying connection and releases the
// listen loop.
func (w *WSClient) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	w.state = StateClosed
	close(w.done)

	if w.conn != nil {
		_ = w.conn.WriteMessage(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		)
		err := w.conn.Close()
		w.conn = nil
		return err
	}
	return nil
}

// Price returns the last received price for a token, or 0 if none was seen.
func (w *WSClient) Price(tokenID string) float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.prices[tokenID]
}

// State returns the current connection state.
func (w *WSClient) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Stats returns a snapshot of the client counters.
func (w *WSClient) Stats() WSStats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return WSStats{
		State:            w.state,
		SubscribedTokens: len(w.subscribed),
		MessagesReceived: w.messagesReceived.Load(),
		ReconnectCount:   w.reconnectCount.Load(),
		CachedPrices:     len(w.prices),
	}
}

// --------------------------------------------------------------------------
// Internal methods
// --------------------------------------------------------------------------

// backoffDelay returns the reconnect wait after the given number of prior
// waits: min(floor << n, ceiling).
func backoffDelay(floor, ceiling time.Duration, n int) time.Duration {
	if n < 0 {
		return floor
	}
	// floor<<31 already exceeds any sane ceiling; cap early to avoid
	// overflow.
	if n > 30 {
		return ceiling
	}
	d := floor << uint(n)
	if d > ceiling {
		return ceiling
	}
	return d
}

// waitBackoff sleeps the backoff delay for the given failure count, waking
// early on shutdown or context cancellation.
func (w *WSClient) waitBackoff(ctx context.Context, failures int) error {
	w.mu.Lock()
	if !w.closed {
		w.state = StateReconnecting
	}
	w.mu.Unlock()

	t := time.NewTimer(backoffDelay(w.backoffFloor, w.backoffCeiling, failures))
	defer t.Stop()

	select {
	case <-t.C:
		return nil
	case <-w.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// handleMessage parses one inbound frame. Malformed frames are dropped and
// logged; unknown message types are ignored.
func (w *WSClient) handleMessage(raw []byte) {
	var msg WSMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		w.logger.Warn("dropping malformed message", slog.String("error", err.Error()))
		return
	}
	w.messagesReceived.Add(1)

	switch msg.Type {
	case "price":
		if msg.TokenID == "" {
			return
		}
		price := float64(msg.Price)

		w.mu.Lock()
		old, seen := w.prices[msg.TokenID]
		w.prices[msg.TokenID] = price
		w.mu.Unlock()

		if seen && old == price {
			return
		}
		w.dispatch(PriceUpdate{TokenID: msg.TokenID, Price: price})

	case "subscribed":
		w.logger.Debug("subscription confirmed", slog.String("token_id", msg.TokenID))
	}
}

// dispatch delivers an update without ever blocking the read loop. When
// the buffer is full the oldest pending update is discarded: a stale price
// is worthless once a newer one exists, and the poll loop re-converges
// regardless.
func (w *WSClient) dispatch(u PriceUpdate) {
	select {
	case w.updates <- u:
		return
	default:
	}

	select {
	case <-w.updates:
	default:
	}
	select {
	case w.updates <- u:
	default:
	}
}

// sendCommand sends a JSON command. Caller must hold w.mu.
func (w *WSClient) sendCommand(cmd WSCommand) error {
	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshal command: %w", err)
	}
	w.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return w.conn.WriteMessage(websocket.TextMessage, data)
}

// pingLoop keeps the given connection alive. It exits when the connection
// is replaced or the client shuts down.
func (w *WSClient) pingLoop(conn *websocket.Conn, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			// The write happens under w.mu: the connection allows one
			// writer at a time and sendCommand writes under the same lock.
			w.mu.Lock()
			if w.conn != conn {
				w.mu.Unlock()
				return
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			w.mu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func (w *WSClient) currentConn() *websocket.Conn {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.conn
}

func (w *WSClient) isClosed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}

func (w *WSClient) subscriptionCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.subscribed)
}

// dropConn discards a failed connection so the listen loop reconnects.
func (w *WSClient) dropConn(conn *websocket.Conn) {
	conn.Close()
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.conn == conn {
		w.conn = nil
		if !w.closed {
			w.state = StateReconnecting
		}
	}
}

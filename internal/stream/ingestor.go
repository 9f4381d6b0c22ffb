package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/sawpanic/equityrun/internal/bus"
	"github.com/sawpanic/equityrun/internal/metrics"
	"github.com/sawpanic/equityrun/internal/models"
)

const (
	maxReconnectAttempts = 10
	reconnectBaseDelay   = time.Second
	maxReconnectBackoff  = 30 * time.Second
	pingInterval         = 30 * time.Second
	staleAfter           = 60 * time.Second
	writeTimeout         = 10 * time.Second
)

// reconnectDelay scales the base delay linearly with the attempt number,
// capped at maxReconnectBackoff.
func reconnectDelay(attempt int) time.Duration {
	d := time.Duration(attempt) * reconnectBaseDelay
	if d > maxReconnectBackoff {
		d = maxReconnectBackoff
	}
	return d
}

// topics are the vendor channels subscribed per symbol.
var topics = []string{"A", "AM", "T", "Q"}

// Ingestor maintains the vendor WebSocket connection, demultiplexes
// events onto the typed Bus streams and applies subscription commands
// from the command stream. One goroutine reads, one pings, one consumes
// commands; writes to the socket are serialized by a mutex.
type Ingestor struct {
	url     string
	apiKey  string
	bus     *bus.Bus
	metrics *metrics.Registry

	mu   sync.Mutex
	conn *websocket.Conn

	state      atomic.Int32
	subscribed map[string]struct{}
	subMu      sync.Mutex

	lastMessage atomic.Int64
	reconnects  atomic.Int32
}

// New wires the ingestor in DISCONNECTED state with an empty
// subscription set.
func New(url, apiKey string, b *bus.Bus, m *metrics.Registry) *Ingestor {
	return &Ingestor{
		url:        url,
		apiKey:     apiKey,
		bus:        b,
		metrics:    m,
		subscribed: make(map[string]struct{}),
	}
}

// State returns the current connection state.
func (w *Ingestor) State() State { return State(w.state.Load()) }

// ActiveSymbols returns a copy of the currently subscribed set.
func (w *Ingestor) ActiveSymbols() []string {
	w.subMu.Lock()
	defer w.subMu.Unlock()
	out := make([]string, 0, len(w.subscribed))
	for s := range w.subscribed {
		out = append(out, s)
	}
	return out
}

// Run drives the connect/read/reconnect cycle until the context ends,
// the reconnect budget is spent, or the vendor rejects the credentials.
// Reconnects re-authenticate and replay the current subscription set.
func (w *Ingestor) Run(ctx context.Context) error {
	go w.watchStale(ctx)

	for attempt := 0; ; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if attempt > 0 {
			if attempt > maxReconnectAttempts {
				return fmt.Errorf("websocket reconnect budget exhausted after %d attempts", maxReconnectAttempts)
			}
			backoff := reconnectDelay(attempt)
			log.Warn().Int("attempt", attempt).Dur("backoff", backoff).Msg("Reconnecting websocket")
			w.metrics.WSReconnects.Inc()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}

		if err := w.connect(ctx); err != nil {
			if w.State() == StateClosed {
				return fmt.Errorf("websocket authentication rejected: %w", err)
			}
			w.setState(StateDisconnected)
			continue
		}
		attempt = 0

		err := w.readLoop(ctx)
		w.closeConn()
		w.setState(StateDisconnected)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warn().Err(err).Msg("Websocket read loop ended")
	}
}

// connect dials, authenticates and replays subscriptions.
func (w *Ingestor) connect(ctx context.Context) error {
	w.setState(StateConnecting)

	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.DialContext(ctx, w.url, nil)
	if err != nil {
		return fmt.Errorf("websocket dial failed: %w", err)
	}
	w.mu.Lock()
	w.conn = conn
	w.mu.Unlock()

	w.setState(StateAuthenticating)
	if err := w.writeJSON(map[string]string{"action": "auth", "params": w.apiKey}); err != nil {
		w.closeConn()
		return err
	}
	if err := w.awaitAuth(conn); err != nil {
		w.closeConn()
		return err
	}
	w.setState(StateAuthenticated)

	if err := w.replaySubscriptions(); err != nil {
		w.closeConn()
		return err
	}
	w.setState(StateSubscribed)
	w.lastMessage.Store(time.Now().UnixMilli())
	go w.pingLoop(ctx, conn)
	log.Info().Int("symbols", len(w.ActiveSymbols())).Msg("Websocket connected and subscribed")
	return nil
}

// awaitAuth reads status frames until the vendor confirms or rejects
// the credentials. A rejection is terminal: the machine enters CLOSED.
func (w *Ingestor) awaitAuth(conn *websocket.Conn) error {
	deadline := time.Now().Add(15 * time.Second)
	conn.SetReadDeadline(deadline)
	defer conn.SetReadDeadline(time.Time{})

	for time.Now().Before(deadline) {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("auth read failed: %w", err)
		}
		var events []statusEvent
		if err := json.Unmarshal(data, &events); err != nil {
			continue
		}
		for _, ev := range events {
			if ev.Event != "status" {
				continue
			}
			switch ev.Status {
			case "auth_success":
				return nil
			case "auth_failed":
				w.setState(StateClosed)
				return fmt.Errorf("vendor rejected credentials: %s", ev.Message)
			}
		}
	}
	return fmt.Errorf("auth confirmation timed out")
}

type statusEvent struct {
	Event   string `json:"ev"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

func (w *Ingestor) replaySubscriptions() error {
	symbols := w.ActiveSymbols()
	if len(symbols) == 0 {
		return nil
	}
	return w.sendSubscribe("subscribe", symbols)
}

// readLoop reads frames until the connection fails and demultiplexes
// every event onto its typed stream.
func (w *Ingestor) readLoop(ctx context.Context) error {
	w.mu.Lock()
	conn := w.conn
	w.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("no connection")
	}

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		w.lastMessage.Store(time.Now().UnixMilli())
		if w.State() == StateDegraded {
			w.setState(StateSubscribed)
		}
		w.demux(ctx, data)
	}
}

// demux decodes a frame of events and publishes each one by type. A row
// that fails to decode is dropped alone; the frame continues.
func (w *Ingestor) demux(ctx context.Context, data []byte) {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return
	}
	for _, raw := range raws {
		var head struct {
			Event string `json:"ev"`
		}
		if err := json.Unmarshal(raw, &head); err != nil {
			continue
		}
		w.metrics.WSMessages.WithLabelValues(head.Event).Inc()

		switch head.Event {
		case "A":
			w.forward(ctx, raw, bus.StreamAggregates, bus.MaxLenAggregates)
		case "AM":
			w.forward(ctx, raw, bus.StreamMinutes, bus.MaxLenMinutes)
		case "T":
			w.forward(ctx, raw, bus.StreamTrades, bus.MaxLenTrades)
		case "Q":
			w.forward(ctx, raw, bus.StreamQuotes, bus.MaxLenQuotes)
		case "status":
			var st statusEvent
			if json.Unmarshal(raw, &st) == nil && st.Status != "success" {
				log.Debug().Str("status", st.Status).Str("message", st.Message).Msg("Websocket status")
			}
		}
	}
}

func (w *Ingestor) forward(ctx context.Context, raw json.RawMessage, stream string, maxLen int64) {
	if _, err := w.bus.Publish(ctx, stream, map[string]any{"data": string(raw)}, maxLen); err != nil {
		log.Warn().Err(err).Str("stream", stream).Msg("Stream publish failed")
	}
}

// pingLoop keeps the connection alive; it exits with the connection.
func (w *Ingestor) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.mu.Lock()
			if w.conn != conn {
				w.mu.Unlock()
				return
			}
			err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
			w.mu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// watchStale degrades the state when no frame arrives within staleAfter
// while subscribed. The read loop promotes back on the next frame.
func (w *Ingestor) watchStale(ctx context.Context) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if w.State() != StateSubscribed {
				continue
			}
			last := time.UnixMilli(w.lastMessage.Load())
			if time.Since(last) > staleAfter {
				log.Warn().Time("last_message", last).Msg("Websocket stream stale")
				w.setState(StateDegraded)
			}
		}
	}
}

const commandGroup = "ws:commands"

// RunCommandConsumer applies subscription commands from the command
// stream. Commands accumulate across a batch and go to the vendor as
// one subscribe and one unsubscribe frame.
func (w *Ingestor) RunCommandConsumer(ctx context.Context) error {
	if err := w.bus.EnsureGroup(ctx, bus.StreamSubscriptions, commandGroup); err != nil {
		return err
	}

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		msgs, err := w.bus.ReadGroup(ctx, bus.StreamSubscriptions, commandGroup, "ws-1", 500, 2*time.Second)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Warn().Err(err).Msg("Command read failed")
			time.Sleep(time.Second)
			continue
		}
		if len(msgs) == 0 {
			continue
		}

		var subs, unsubs []string
		ids := make([]string, 0, len(msgs))
		for _, msg := range msgs {
			ids = append(ids, msg.ID)
			raw, ok := msg.Values["data"].(string)
			if !ok {
				continue
			}
			var cmd models.SubscriptionCommand
			if err := json.Unmarshal([]byte(raw), &cmd); err != nil || cmd.Symbol == "" {
				continue
			}
			switch cmd.Action {
			case "subscribe":
				subs = append(subs, cmd.Symbol)
			case "unsubscribe":
				unsubs = append(unsubs, cmd.Symbol)
			}
		}

		w.apply(subs, unsubs)
		if err := w.bus.Ack(ctx, bus.StreamSubscriptions, commandGroup, ids...); err != nil {
			log.Warn().Err(err).Msg("Command ack failed")
		}
	}
}

// apply updates the tracked set and, when connected, tells the vendor.
// While disconnected the set still updates; the next connect replays it.
func (w *Ingestor) apply(subs, unsubs []string) {
	w.subMu.Lock()
	added := make([]string, 0, len(subs))
	removed := make([]string, 0, len(unsubs))
	for _, s := range subs {
		if _, ok := w.subscribed[s]; !ok {
			w.subscribed[s] = struct{}{}
			added = append(added, s)
		}
	}
	for _, s := range unsubs {
		if _, ok := w.subscribed[s]; ok {
			delete(w.subscribed, s)
			removed = append(removed, s)
		}
	}
	w.subMu.Unlock()

	st := w.State()
	if st != StateSubscribed && st != StateDegraded && st != StateAuthenticated {
		return
	}
	if len(added) > 0 {
		if err := w.sendSubscribe("subscribe", added); err != nil {
			log.Warn().Err(err).Int("symbols", len(added)).Msg("Subscribe send failed")
		}
	}
	if len(removed) > 0 {
		if err := w.sendSubscribe("unsubscribe", removed); err != nil {
			log.Warn().Err(err).Int("symbols", len(removed)).Msg("Unsubscribe send failed")
		}
	}
}

// sendSubscribe sends one action frame covering every topic for the
// given symbols.
func (w *Ingestor) sendSubscribe(action string, symbols []string) error {
	params := make([]string, 0, len(symbols)*len(topics))
	for _, sym := range symbols {
		for _, topic := range topics {
			params = append(params, topic+"."+sym)
		}
	}
	return w.writeJSON(map[string]string{
		"action": action,
		"params": strings.Join(params, ","),
	})
}

func (w *Ingestor) writeJSON(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.conn == nil {
		return fmt.Errorf("not connected")
	}
	w.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return w.conn.WriteJSON(v)
}

func (w *Ingestor) closeConn() {
	w.mu.Lock()
	if w.conn != nil {
		w.conn.Close()
		w.conn = nil
	}
	w.mu.Unlock()
}

// setState transitions the machine, ignoring invalid transitions with a
// warning so a race never corrupts the state.
func (w *Ingestor) setState(next State) {
	for {
		cur := State(w.state.Load())
		if cur == next {
			return
		}
		if !cur.validNext(next) {
			log.Warn().Str("from", cur.String()).Str("to", next.String()).
				Msg("Ignoring invalid websocket state transition")
			return
		}
		if w.state.CompareAndSwap(int32(cur), int32(next)) {
			w.metrics.WSState.Set(float64(next))
			log.Info().Str("from", cur.String()).Str("to", next.String()).Msg("Websocket state")
			return
		}
	}
}

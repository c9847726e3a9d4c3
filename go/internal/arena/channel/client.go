package channel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/roast-arena/go/internal/arena/events"
	"github.com/rs/zerolog/log"
)

var (
	// ErrNotConnected is returned by outbound commands while the socket is down
	ErrNotConnected = errors.New("event channel not connected")
	// ErrReconnectExhausted is returned by Run after the last reconnect attempt failed
	ErrReconnectExhausted = errors.New("event channel reconnect attempts exhausted")

	errServerClosed = errors.New("server closed the connection")
	errRebind       = errors.New("identity changed")
)

// Config holds configuration for the event channel connection
type Config struct {
	URL              string
	ReconnectBase    time.Duration
	ReconnectMax     time.Duration
	MaxAttempts      int
	PingInterval     time.Duration
	WriteTimeout     time.Duration
	ReadTimeout      time.Duration
	HandshakeTimeout time.Duration
	MaxMessageSize   int64
}

// DefaultConfig returns the default connection configuration for url
func DefaultConfig(url string) Config {
	return Config{
		URL:              url,
		ReconnectBase:    time.Second,
		ReconnectMax:     30 * time.Second,
		MaxAttempts:      5,
		PingInterval:     25 * time.Second,
		WriteTimeout:     10 * time.Second,
		ReadTimeout:      90 * time.Second,
		HandshakeTimeout: 10 * time.Second,
		MaxMessageSize:   64 * 1024,
	}
}

// ConnectionState is the adapter's view of the socket
type ConnectionState struct {
	Connected         bool `json:"connected"`
	ReconnectAttempts int  `json:"reconnect_attempts"`
}

// Backoff returns the delay before reconnect attempt n (0-based): base*2^n capped at max.
func Backoff(attempt int, base, max time.Duration) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > 30 {
		return max
	}
	d := base << uint(attempt)
	if d > max || d <= 0 {
		return max
	}
	return d
}

// Client is a persistent connection to the arena event channel. Inbound events are delivered
// through its Registry; outbound commands are written directly to the socket.
type Client struct {
	cfg      Config
	clock    clockwork.Clock
	dialer   *websocket.Dialer
	header   http.Header
	registry *Registry

	mu       sync.Mutex
	conn     *websocket.Conn
	identity string
	state    ConnectionState
	rebind   bool
	onState  []func(ConnectionState)

	writeMu sync.Mutex
}

// NewClient creates a client. Nothing is dialed until Run.
func NewClient(cfg Config, clock clockwork.Clock) *Client {
	def := DefaultConfig(cfg.URL)
	if cfg.ReconnectBase <= 0 {
		cfg.ReconnectBase = def.ReconnectBase
	}
	if cfg.ReconnectMax <= 0 {
		cfg.ReconnectMax = def.ReconnectMax
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = def.ReadTimeout
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = def.HandshakeTimeout
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = def.MaxMessageSize
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	return &Client{
		cfg:   cfg,
		clock: clock,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: cfg.HandshakeTimeout,
		},
		header:   http.Header{},
		registry: NewRegistry(),
	}
}

// Registry returns the inbound handler registry.
func (c *Client) Registry() *Registry {
	return c.registry
}

// Subscribe registers h for inbound events of type t.
func (c *Client) Subscribe(t events.Type, h Handler) *Subscription {
	return c.registry.Subscribe(t, h)
}

// SetHeader adds a header sent with every dial.
func (c *Client) SetHeader(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.header.Set(key, value)
}

// OnStateChange registers fn to be called after every connect and disconnect.
func (c *Client) OnStateChange(fn func(ConnectionState)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onState = append(c.onState, fn)
}

// State returns the current connection state.
func (c *Client) State() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// SetIdentity changes the wallet address used for the handshake. A live connection is torn
// down and re-established immediately so the server sees the new identity.
func (c *Client) SetIdentity(address string) {
	c.mu.Lock()
	if c.identity == address {
		c.mu.Unlock()
		return
	}
	c.identity = address
	conn := c.conn
	if conn != nil {
		c.rebind = true
	}
	c.mu.Unlock()

	if conn != nil {
		log.Info().Str("address", address).Msg("identity changed, rebinding event channel")
		conn.Close()
	}
}

// Run connects and keeps the connection alive until ctx is cancelled, the server closes the
// connection normally, or MaxAttempts consecutive reconnects fail.
func (c *Client) Run(ctx context.Context) error {
	for {
		err := c.connectAndServe(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		switch {
		case errors.Is(err, errServerClosed):
			log.Info().Msg("event channel closed by server, not reconnecting")
			return nil
		case errors.Is(err, errRebind):
			continue
		}

		c.mu.Lock()
		attempt := c.state.ReconnectAttempts
		if attempt >= c.cfg.MaxAttempts {
			c.mu.Unlock()
			log.Warn().Int("attempts", attempt).Msg("event channel giving up, polling only")
			return ErrReconnectExhausted
		}
		c.state.ReconnectAttempts++
		c.mu.Unlock()

		delay := Backoff(attempt, c.cfg.ReconnectBase, c.cfg.ReconnectMax)
		log.Warn().
			Err(err).
			Int("attempt", attempt+1).
			Dur("delay", delay).
			Msg("event channel disconnected, reconnecting")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.clock.After(delay):
		}
	}
}

func (c *Client) connectAndServe(ctx context.Context) error {
	c.mu.Lock()
	header := c.header.Clone()
	identity := c.identity
	c.mu.Unlock()

	conn, _, err := c.dialer.DialContext(ctx, c.cfg.URL, header)
	if err != nil {
		return fmt.Errorf("failed to dial event channel: %w", err)
	}
	conn.SetReadLimit(c.cfg.MaxMessageSize)

	c.mu.Lock()
	c.conn = conn
	c.rebind = false
	c.state = ConnectionState{Connected: true}
	c.mu.Unlock()

	log.Info().Str("url", c.cfg.URL).Msg("event channel connected")

	if identity != "" {
		if err := c.send(ctx, events.TypeAuthenticate, events.AuthenticatePayload{Address: identity}); err != nil {
			log.Error().Err(err).Msg("failed to send authenticate")
		}
	}
	c.notifyState()

	serveCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		<-serveCtx.Done()
		conn.Close()
	}()
	if c.cfg.PingInterval > 0 {
		go c.pingLoop(serveCtx)
	}

	err = c.readLoop(conn)

	c.mu.Lock()
	c.conn = nil
	c.state.Connected = false
	rebind := c.rebind
	c.rebind = false
	c.mu.Unlock()
	c.notifyState()

	if rebind {
		return errRebind
	}
	return err
}

func (c *Client) readLoop(conn *websocket.Conn) error {
	for {
		conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return errServerClosed
			}
			return err
		}

		var ev events.Event
		if err := json.Unmarshal(message, &ev); err != nil {
			log.Warn().Err(err).Msg("dropping malformed event")
			continue
		}
		if ev.Type == "" {
			continue
		}

		if n := c.registry.Dispatch(&ev); n == 0 {
			log.Debug().Str("event_type", string(ev.Type)).Msg("no handler for event")
		}
	}
}

func (c *Client) pingLoop(ctx context.Context) {
	ticker := c.clock.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			if err := c.Ping(ctx); err != nil && !errors.Is(err, ErrNotConnected) {
				log.Warn().Err(err).Msg("failed to send ping")
			}
		}
	}
}

func (c *Client) notifyState() {
	c.mu.Lock()
	state := c.state
	listeners := append(([]func(ConnectionState))(nil), c.onState...)
	c.mu.Unlock()

	for _, fn := range listeners {
		fn(state)
	}
}

// JoinRound subscribes the socket to a round's broadcasts.
func (c *Client) JoinRound(ctx context.Context, roundID int64) error {
	return c.send(ctx, events.TypeJoinRound, events.JoinRoundPayload{RoundID: roundID})
}

// LeaveRound unsubscribes the socket from a round's broadcasts.
func (c *Client) LeaveRound(ctx context.Context, roundID int64) error {
	return c.send(ctx, events.TypeLeaveRound, events.LeaveRoundPayload{RoundID: roundID})
}

// SubmitRoast sends a paid roast. Confirmation arrives later as roast-submitted.
func (c *Client) SubmitRoast(ctx context.Context, roundID int64, text string, proof events.PaymentProof) error {
	return c.send(ctx, events.TypeSubmitRoast, events.SubmitRoastPayload{
		RoundID:      roundID,
		RoastText:    text,
		PaymentProof: proof,
	})
}

// CastVote sends a vote. Confirmation arrives later as vote-cast-success.
func (c *Client) CastVote(ctx context.Context, roundID int64, characterID string) error {
	return c.send(ctx, events.TypeCastVote, events.CastVotePayload{RoundID: roundID, CharacterID: characterID})
}

// Ping sends the liveness command.
func (c *Client) Ping(ctx context.Context) error {
	return c.send(ctx, events.TypePing, events.PingPayload{SentAt: c.clock.Now().UTC()})
}

func (c *Client) send(ctx context.Context, t events.Type, payload interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ev, err := events.New(t, payload)
	if err != nil {
		return err
	}
	ev.ID = uuid.New().String()
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", t, err)
	}

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	deadline := time.Now().Add(c.cfg.WriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	conn.SetWriteDeadline(deadline)
	if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("failed to write %s: %w", t, err)
	}

	log.Debug().Str("event_type", string(t)).Str("event_id", ev.ID).Msg("command sent")
	return nil
}

// Package channel maintains a live update feed from the backend: socket
// first, with automatic degrade-to-polling when the socket never comes up and
// reconnect-on-failure once it has.
package channel

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"feedwatch/internal/fetch"
	"feedwatch/internal/poller"
)

// TransportErrorID is the fixed identifier reported for abnormal connection
// closures.
const TransportErrorID = "Socket.Connection.Close"

const (
	// DefaultReconnectDelay is the fixed delay before a reconnect attempt
	// after an abnormal closure.
	DefaultReconnectDelay = 5 * time.Second

	// DefaultDialTimeout bounds the WebSocket handshake.
	DefaultDialTimeout = 10 * time.Second
)

// UpdateFunc receives one update item per call, in arrival order within a
// transport.
type UpdateFunc func(item json.RawMessage)

// TransportErrorFunc reports unexpected disconnects to the error handling
// layer.
type TransportErrorFunc func(id, message string)

// Options tunes a channel. Zero values select the fixed defaults.
type Options struct {
	ReconnectDelay time.Duration
	PollInterval   time.Duration
	DialTimeout    time.Duration
	// HTTPClient is used by the polling fallback. A default client is
	// created when nil.
	HTTPClient *fetch.Client
}

// Channel is one logical update subscription. Reconnects mutate the current
// connection slot in place, so the single teardown handle returned by Open
// always reaches the live attempt.
type Channel struct {
	socketURL   string
	fallbackURL string
	onUpdate    UpdateFunc
	onError     TransportErrorFunc
	opts        Options
	logger      zerolog.Logger

	mu               sync.Mutex
	conn             *websocket.Conn
	fallback         *poller.Engine
	reconnectTimer   *time.Timer
	release          []func()
	timerReleased    bool
	hasEverConnected bool
	reconnecting     bool
	closed           bool
}

// Open connects to the primary endpoint and streams parsed update objects to
// onUpdate. On handshake failure it degrades to polling the fallback endpoint
// (empty disables the fallback); on abnormal closure after a successful
// handshake it reports to onTransportError and reconnects after a fixed
// delay. The returned teardown is idempotent and must be called exactly once
// by the owner; it never triggers a reconnect.
//
// The primary endpoint is given as an HTTP(S) URL and normalized to the
// WebSocket scheme; a malformed URL is the only synchronous failure.
func Open(primaryEndpoint, fallbackEndpoint string, onUpdate UpdateFunc, onTransportError TransportErrorFunc, opts Options, logger zerolog.Logger) (func(), error) {
	socketURL, err := ToWebSocketURL(primaryEndpoint)
	if err != nil {
		return nil, err
	}

	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = DefaultReconnectDelay
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = poller.DefaultInterval
	}
	if opts.DialTimeout <= 0 {
		opts.DialTimeout = DefaultDialTimeout
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = fetch.NewClient(30*time.Second, nil, logger)
	}

	c := &Channel{
		socketURL:   socketURL,
		fallbackURL: fallbackEndpoint,
		onUpdate:    onUpdate,
		onError:     onTransportError,
		opts:        opts,
		logger:      logger.With().Str("component", "channel").Str("url", socketURL).Logger(),
	}
	c.release = append(c.release, c.closeSocket)

	go c.connect()
	return c.Teardown, nil
}

// connect performs one connection attempt. It is re-entered by the reconnect
// timer with hasEverConnected and reconnecting carried forward.
func (c *Channel) connect() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	dialer := websocket.Dialer{HandshakeTimeout: c.opts.DialTimeout}
	conn, _, err := dialer.Dial(c.socketURL, nil)
	if err != nil {
		c.handleDialFailure(err)
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		return
	}
	c.conn = conn
	c.hasEverConnected = true
	c.reconnecting = false
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	if c.fallback != nil {
		c.fallback.Stop()
		c.fallback = nil
	}
	c.mu.Unlock()

	c.logger.Info().Msg("WebSocket connected")
	c.readLoop(conn)
}

// handleDialFailure degrades to polling on a first-ever failure, or schedules
// the next serialized reconnect attempt when the socket has worked before.
func (c *Channel) handleDialFailure(err error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}

	if !c.hasEverConnected && !c.reconnecting {
		if c.fallbackURL == "" || c.fallback != nil {
			c.mu.Unlock()
			c.logger.Warn().Err(err).Msg("WebSocket connect failed, no polling fallback configured")
			return
		}
		engine := poller.New(c.fallbackURL, c.onUpdate, c.opts.HTTPClient, c.opts.PollInterval, c.logger)
		c.fallback = engine
		c.release = append(c.release, engine.Stop)
		c.mu.Unlock()

		c.logger.Warn().Err(err).Msg("WebSocket connect failed, falling back to polling")
		engine.Start()
		return
	}
	c.mu.Unlock()

	c.logger.Warn().Err(err).Msg("WebSocket reconnect attempt failed, will retry")
	c.scheduleReconnect()
}

func (c *Channel) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.handleClose(err)
			return
		}
		c.onUpdate(json.RawMessage(data))
	}
}

// handleClose maps the read error to a close code and decides whether to
// reconnect. A close frame carries its own code; any abrupt failure without
// one counts as 1006. Only abnormal closures (1006, 1011) after a successful
// handshake reconnect; everything else is treated as an intentional close or
// an already-degraded first failure.
func (c *Channel) handleClose(err error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	everConnected := c.hasEverConnected
	c.mu.Unlock()

	code := websocket.CloseAbnormalClosure
	var closeErr *websocket.CloseError
	if errors.As(err, &closeErr) {
		code = closeErr.Code
	}

	abnormal := code == websocket.CloseAbnormalClosure || code == websocket.CloseInternalServerErr
	if !abnormal || !everConnected {
		c.logger.Debug().Int("code", code).Err(err).Msg("WebSocket closed")
		return
	}

	c.logger.Warn().Int("code", code).Err(err).Msg("WebSocket closed abnormally, scheduling reconnect")
	if c.onError != nil {
		c.onError(TransportErrorID, fmt.Sprintf("Connection to %s closed unexpectedly (code %d). Trying to reconnect.", c.socketURL, code))
	}
	c.scheduleReconnect()
}

// scheduleReconnect arms a single reconnect attempt after the fixed delay.
// Attempts are unbounded in count but serialized: at most one timer exists
// per channel, held in the channel's own field.
func (c *Channel) scheduleReconnect() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.reconnecting = true
	c.reconnectTimer = time.AfterFunc(c.opts.ReconnectDelay, c.connect)
	if !c.timerReleased {
		c.timerReleased = true
		c.release = append(c.release, c.stopReconnectTimer)
	}
	c.mu.Unlock()
}

func (c *Channel) stopReconnectTimer() {
	c.mu.Lock()
	timer := c.reconnectTimer
	c.reconnectTimer = nil
	c.mu.Unlock()

	if timer != nil {
		timer.Stop()
	}
}

func (c *Channel) closeSocket() {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn == nil {
		return
	}
	deadline := time.Now().Add(time.Second)
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "closing update channel"), deadline)
	_ = conn.Close()
}

// Teardown releases the subscription: every registered release action runs
// exactly once, in registration order. Safe to call multiple times and from
// within the channel's own callbacks. The closed flag is set before the
// socket goes down, so the close can never trigger a reconnect.
func (c *Channel) Teardown() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	actions := c.release
	c.release = nil
	c.mu.Unlock()

	for _, action := range actions {
		action()
	}
	c.logger.Debug().Msg("update channel released")
}

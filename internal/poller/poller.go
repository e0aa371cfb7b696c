// Package poller implements the timer-driven fallback data source used while
// the socket transport is unavailable. A monotonic cursor guarantees that no
// update interval is processed twice.
package poller

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"feedwatch/internal/fetch"
)

// DefaultInterval is the fixed polling cadence.
const DefaultInterval = time.Second

// updatePayload is the server contract for a poll response. Pointer and slice
// fields distinguish absent from zero: a response missing either field is
// skipped without advancing the cursor.
type updatePayload struct {
	Timestamp *int64            `json:"timestamp"`
	Updates   []json.RawMessage `json:"updates"`
}

// Engine polls one fallback endpoint and delivers updates in arrival order.
type Engine struct {
	endpoint string
	onUpdate func(json.RawMessage)
	client   *fetch.Client
	interval time.Duration
	logger   zerolog.Logger

	mu      sync.Mutex
	cursor  int64
	stopped bool
	cancel  context.CancelFunc
}

// New creates an Engine for the given endpoint. The cursor starts at zero and
// advances only from server responses.
func New(endpoint string, onUpdate func(json.RawMessage), client *fetch.Client, interval time.Duration, logger zerolog.Logger) *Engine {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Engine{
		endpoint: endpoint,
		onUpdate: onUpdate,
		client:   client,
		interval: interval,
		logger:   logger.With().Str("component", "poller").Logger(),
	}
}

// Start begins polling on a fixed interval until Stop is called.
func (e *Engine) Start() {
	e.mu.Lock()
	if e.stopped || e.cancel != nil {
		e.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.mu.Unlock()

	e.logger.Info().Str("endpoint", e.endpoint).Dur("interval", e.interval).Msg("polling fallback started")
	go e.run(ctx)
}

func (e *Engine) run(ctx context.Context) {
	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// The request deliberately does not share the loop context:
			// Stop never cancels an in-flight poll, it only discards
			// the result.
			e.poll(context.Background())
		}
	}
}

// poll issues one request carrying the current cursor. A failed request is
// not retried within the tick; a response missing either field is skipped so
// a malformed response can never regress the cursor.
func (e *Engine) poll(ctx context.Context) {
	e.mu.Lock()
	cursor := e.cursor
	e.mu.Unlock()

	separator := "?"
	if strings.Contains(e.endpoint, "?") {
		separator = "&"
	}
	url := e.endpoint + separator + "timestamp=" + strconv.FormatInt(cursor, 10)

	payload, err := fetch.JSON[updatePayload](ctx, e.client, fetch.Options{URL: url})
	if err != nil {
		e.logger.Debug().Err(err).Str("url", url).Msg("poll request failed, waiting for next tick")
		return
	}

	if payload.Timestamp == nil || payload.Updates == nil {
		e.logger.Debug().Str("url", url).Msg("poll response missing timestamp or updates, skipping tick")
		return
	}

	e.mu.Lock()
	if e.stopped {
		// The engine was stopped while this request was in flight;
		// discard the result.
		e.mu.Unlock()
		return
	}
	e.cursor = *payload.Timestamp
	e.mu.Unlock()

	for _, update := range payload.Updates {
		e.onUpdate(update)
	}
}

// Stop halts polling. Idempotent; an in-flight request is not cancelled but
// its result is discarded.
func (e *Engine) Stop() {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return
	}
	e.stopped = true
	cancel := e.cancel
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	e.logger.Info().Str("endpoint", e.endpoint).Msg("polling fallback stopped")
}

// Cursor returns the last server-acknowledged timestamp.
func (e *Engine) Cursor() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cursor
}

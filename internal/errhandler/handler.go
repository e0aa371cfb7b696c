// Package errhandler is the single entry point application code uses to
// report a failure. It classifies the cause, applies suppression rules and
// decides whether to write to the error registry, emit a notification
// descriptor, or just log.
package errhandler

import (
	"net/http"

	"github.com/rs/zerolog"

	"feedwatch/internal/errstore"
	"feedwatch/internal/fetch"
)

// Intent selects the presentation of a notification.
type Intent string

const (
	IntentDanger  Intent = "danger"
	IntentWarning Intent = "warning"
)

// TemporarilyUnavailableID is the fixed registry id that coalesces all
// concurrent 503 failures into a single entry, regardless of which operation
// triggered them.
const TemporarilyUnavailableID = "temporarily-unavailable"

// Notification describes an error surface for the caller to render. Detail,
// when non-empty, is shown in an expandable panel.
type Notification struct {
	Message   string
	Detail    string
	Intent    Intent
	OnDismiss func()
}

// Options tunes a single registration.
type Options struct {
	// Group isolates where the error is displayed, e.g. one modal
	// instance. Empty means the global notification surface.
	Group     string
	Intent    Intent
	OnDismiss func()
}

// Handler applies the registration rules against one error store.
type Handler struct {
	store     *errstore.Store
	translate func(key string) string
	logger    zerolog.Logger
}

// New creates a Handler. translate may be nil, in which case translation keys
// are used as messages verbatim.
func New(store *errstore.Store, translate func(key string) string, logger zerolog.Logger) *Handler {
	if translate == nil {
		translate = func(key string) string { return key }
	}
	return &Handler{
		store:     store,
		translate: translate,
		logger:    logger.With().Str("component", "errhandler").Logger(),
	}
}

// Register reports a failure. First matching rule wins: ignorable causes are
// dropped entirely, 503s coalesce under a fixed id with warning intent, 404s
// are logged and otherwise silent, everything else is stored under the
// caller's id. Returns the notification to display, or nil when the error
// must stay invisible.
func (h *Handler) Register(errorID, message string, cause error, opts *Options) *Notification {
	if opts == nil {
		opts = &Options{}
	}

	classified := fetch.Classify(cause)
	var resp fetch.ErrorResponse
	if classified != nil {
		resp = classified.Response()
	}

	if resp.Ignorable {
		return nil
	}

	switch resp.Status {
	case http.StatusServiceUnavailable:
		rec := errstore.Record{
			ID:      TemporarilyUnavailableID,
			Message: resp.String(),
			Cause:   classified,
		}
		if err := h.store.Set(opts.Group, rec); err != nil {
			h.logger.Error().Err(err).Msg("failed to store error record")
		}
		return &Notification{
			Message:   notificationMessage(resp),
			Intent:    IntentWarning,
			OnDismiss: opts.OnDismiss,
		}

	case http.StatusNotFound:
		h.logger.Info().Str("errorId", errorID).Str("cause", resp.String()).Msg("suppressed not-found error")
		return nil
	}

	rec := errstore.Record{ID: errorID, Message: message, Cause: classified}
	if err := h.store.Set(opts.Group, rec); err != nil {
		h.logger.Error().Err(err).Str("errorId", errorID).Msg("failed to store error record")
		return nil
	}

	notification := &Notification{
		Message:   message,
		Intent:    IntentDanger,
		OnDismiss: opts.OnDismiss,
	}
	if opts.Intent != "" {
		notification.Intent = opts.Intent
	}
	if classified != nil {
		notification.Detail = resp.String()
	}
	return notification
}

// RegisterKey is sugar over Register that supplies a translation key as both
// the error id and the (translated) message.
func (h *Handler) RegisterKey(key string, cause error, opts *Options) *Notification {
	return h.Register(key, h.translate(key), cause, opts)
}

// ClearErrors removes the named entries from the global group, or all of them
// when no ids are given.
func (h *Handler) ClearErrors(ids ...string) {
	h.store.Clear("", ids...)
}

// ClearGroupErrors removes the named entries from one group.
func (h *Handler) ClearGroupErrors(group string, ids ...string) {
	h.store.Clear(group, ids...)
}

// All returns the registered errors of the global group, newest first.
func (h *Handler) All() []errstore.Record {
	return h.store.All("")
}

// notificationMessage prefers the classified detail text over the title.
func notificationMessage(resp fetch.ErrorResponse) string {
	if resp.Detail != "" {
		return resp.Detail
	}
	return resp.Title
}

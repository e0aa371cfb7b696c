package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

// Error is the closed set of failure kinds produced by the request layer.
// Exactly four kinds exist: *HTTPError, *NetworkError, *AbortError and
// *GenericError. Consumers either switch on the concrete type or use the
// uniform Response projection; no further subclassing.
type Error interface {
	error
	// Response returns the normalized projection that the error registry
	// and notification surfaces consume. Kind-specific fields beyond it
	// exist only for diagnostics.
	Response() ErrorResponse
	fetchError()
}

// ErrorResponse is the only error shape the registry and UI ever see.
type ErrorResponse struct {
	Title     string
	Detail    string
	Status    int // 0 when no HTTP status is associated
	Ignorable bool
}

func (r ErrorResponse) String() string {
	if r.Detail != "" {
		return r.Title + " Details: " + r.Detail
	}
	return r.Title
}

// ErrorBody is the structured error shape servers may return:
// { "title": ..., "detail": ..., "cause": { ... } }.
type ErrorBody struct {
	Title  string     `json:"title"`
	Detail string     `json:"detail"`
	Cause  *ErrorBody `json:"cause,omitempty"`
}

// HTTPError means the server responded with an error status.
type HTTPError struct {
	Status int
	Title  string
	Detail string
	Body   []byte
	Cause  *ErrorBody
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.Status, e.Title)
}

func (e *HTTPError) Response() ErrorResponse {
	return ErrorResponse{Title: e.Title, Detail: e.Detail, Status: e.Status}
}

func (e *HTTPError) fetchError() {}

// NetworkError means no response reached the client at all.
type NetworkError struct {
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error: %v", e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

func (e *NetworkError) Response() ErrorResponse {
	return ErrorResponse{
		Title:  "Network Error",
		Detail: "Please check your connection or contact support.",
	}
}

func (e *NetworkError) fetchError() {}

// AbortError means the client cancelled the request, or it timed out on the
// client side. Always ignorable: it must never reach a visible error surface.
type AbortError struct {
	Err error
}

func (e *AbortError) Error() string {
	return fmt.Sprintf("request aborted: %v", e.Err)
}

func (e *AbortError) Unwrap() error { return e.Err }

func (e *AbortError) Response() ErrorResponse {
	return ErrorResponse{
		Title:     "Request cancelled",
		Detail:    "The request was cancelled before a response arrived.",
		Ignorable: true,
	}
}

func (e *AbortError) fetchError() {}

// GenericError is a local, non-network failure raised before any request was
// sent. It is passed through as-is and never wrapped in the other kinds.
type GenericError struct {
	Name    string
	Message string
}

func (e *GenericError) Error() string {
	return fmt.Sprintf("%s: %s", e.Name, e.Message)
}

func (e *GenericError) Response() ErrorResponse {
	return ErrorResponse{Title: e.Name, Detail: e.Message}
}

func (e *GenericError) fetchError() {}

// Classify turns an arbitrary failure into one of the four error kinds.
// Already-classified errors pass through unchanged.
func Classify(err error) Error {
	if err == nil {
		return nil
	}

	var classified Error
	if errors.As(err, &classified) {
		return classified
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &AbortError{Err: err}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return &AbortError{Err: err}
		}
		var urlErr *url.Error
		requestURL := ""
		if errors.As(err, &urlErr) {
			requestURL = urlErr.URL
		}
		return &NetworkError{URL: requestURL, Err: err}
	}

	return &GenericError{Name: errorName(err), Message: err.Error()}
}

// classifyResponse builds an HTTPError from a non-2xx response. A structured
// {title, detail} body is used verbatim; otherwise the title falls back to a
// fixed status table and the detail stays empty.
func classifyResponse(status int, body []byte) *HTTPError {
	httpErr := &HTTPError{Status: status, Body: body}

	var parsed ErrorBody
	if len(body) > 0 && json.Unmarshal(body, &parsed) == nil && (parsed.Title != "" || parsed.Detail != "") {
		httpErr.Title = parsed.Title
		httpErr.Detail = parsed.Detail
		httpErr.Cause = parsed.Cause
		return httpErr
	}

	httpErr.Title = statusTitle(status)
	return httpErr
}

func statusTitle(status int) string {
	switch status {
	case 401:
		return "Not authenticated"
	case 403:
		return "Not authorized"
	case 404:
		return "Not found"
	case 407:
		return "Proxy authentication required"
	case 413:
		return "Request too large"
	case 503:
		return "Temporarily unavailable"
	case 504:
		return "Server timeout"
	}
	switch {
	case status >= 500:
		return "Server error"
	case status >= 400:
		return "Invalid request"
	}
	return fmt.Sprintf("HTTP error %d", status)
}

func errorName(err error) string {
	name := fmt.Sprintf("%T", err)
	name = strings.TrimPrefix(name, "*")
	if name == "errors.errorString" || name == "fmt.wrapError" {
		return "Error"
	}
	return name
}

// Package apperr defines the application-wide error taxonomy and its HTTP
// mapping.
//
// Every subsystem returns an *Error with one of four kinds (config, database,
// network, api) or the ErrNoProviderAvailable sentinel. Handlers translate
// them into a JSON error envelope with the appropriate status code.
package apperr

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/valyala/fasthttp"
)

// Kind classifies an application error.
type Kind int

const (
	// KindConfig — bad or missing configuration, credentials, or files.
	// Fatal at startup; surfaced to the caller.
	KindConfig Kind = iota
	// KindDatabase — pool or query failure in the embedded store.
	KindDatabase
	// KindNetwork — transport failure before an HTTP status was received.
	KindNetwork
	// KindAPI — an upstream returned a non-2xx status or a malformed body,
	// or a stored credential failed authenticated decryption.
	KindAPI
)

func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindDatabase:
		return "database"
	case KindNetwork:
		return "network"
	default:
		return "api"
	}
}

// Error is the structured application error.
type Error struct {
	Kind Kind
	Msg  string
	Err  error // optional wrapped cause
}

func (e *Error) Error() string {
	switch {
	case e.Msg != "" && e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	case e.Err != nil:
		return e.Err.Error()
	default:
		return e.Msg
	}
}

func (e *Error) Unwrap() error { return e.Err }

// ErrNoProviderAvailable is the terminal error of a fallback walk that
// exhausted every candidate without a successful generation.
var ErrNoProviderAvailable = errors.New(
	"no available AI provider to handle the request; check provider health and credential configuration")

// Config returns a configuration error.
func Config(format string, args ...any) *Error {
	return &Error{Kind: KindConfig, Msg: fmt.Sprintf(format, args...)}
}

// Database wraps a store failure.
func Database(err error) *Error {
	return &Error{Kind: KindDatabase, Msg: "database query failed", Err: err}
}

// Network returns a transport error.
func Network(err error) *Error {
	return &Error{Kind: KindNetwork, Msg: "network error", Err: err}
}

// API returns an upstream API error.
func API(format string, args ...any) *Error {
	return &Error{Kind: KindAPI, Msg: fmt.Sprintf(format, args...)}
}

// IsKind reports whether err is (or wraps) an *Error of the given kind.
func IsKind(err error, k Kind) bool {
	var ae *Error
	return errors.As(err, &ae) && ae.Kind == k
}

type envelope struct {
	Error string `json:"error"`
}

// Write serialises err as a JSON error envelope on the fasthttp response.
//
//	NoProviderAvailable → 503
//	everything else     → 500
func Write(ctx *fasthttp.RequestCtx, err error) {
	status := fasthttp.StatusInternalServerError
	msg := err.Error()

	if errors.Is(err, ErrNoProviderAvailable) {
		status = fasthttp.StatusServiceUnavailable
		msg = "All AI providers are currently unavailable or have exceeded their quotas."
	} else if IsKind(err, KindDatabase) {
		msg = fmt.Sprintf("Internal database issue: %s", msg)
	}

	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json")
	body, _ := json.Marshal(envelope{Error: msg})
	ctx.SetBody(body)
}

// WriteStatus writes an arbitrary message with an explicit status code using
// the same envelope (used for request validation failures).
func WriteStatus(ctx *fasthttp.RequestCtx, status int, msg string) {
	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json")
	body, _ := json.Marshal(envelope{Error: msg})
	ctx.SetBody(body)
}

// Package apperr defines the closed set of failure kinds the gateway reports to callers.
package apperr

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/exec"
)

// Kind classifies a failure. The set is closed; anything unclassified is Internal.
type Kind string

const (
	KindInvalidInput        Kind = "invalid_input"
	KindDecodeFailure       Kind = "decode_failure"
	KindUpstreamUnavailable Kind = "upstream_unavailable"
	KindUpstreamError       Kind = "upstream_error"
	KindInternal            Kind = "internal"
)

// ErrNotConfigured marks a collaborator that has no backend wired in this process.
var ErrNotConfigured = errors.New("collaborator not configured")

// Error carries a Kind plus a caller-safe message. Err holds the underlying cause.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Msg)
	default:
		return e.Msg
	}
}

func (e *Error) Unwrap() error { return e.Err }

func InvalidInput(msg string) *Error {
	return &Error{Kind: KindInvalidInput, Msg: msg}
}

func DecodeFailure(msg string, err error) *Error {
	return &Error{Kind: KindDecodeFailure, Msg: msg, Err: err}
}

func Unavailable(op string, err error) *Error {
	return &Error{Kind: KindUpstreamUnavailable, Op: op, Msg: "upstream service unavailable", Err: err}
}

func UpstreamError(op string, err error) *Error {
	return &Error{Kind: KindUpstreamError, Op: op, Msg: "upstream service returned an error", Err: err}
}

func Internal(op string, err error) *Error {
	return &Error{Kind: KindInternal, Op: op, Msg: "internal error", Err: err}
}

// Upstream classifies a collaborator failure. status is the HTTP status the collaborator
// answered with, or 0 when no response was received.
func Upstream(op string, status int, err error) *Error {
	var ae *Error
	if errors.As(err, &ae) && (ae.Kind == KindUpstreamUnavailable || ae.Kind == KindUpstreamError) {
		return ae
	}
	if status == http.StatusTooManyRequests || status >= 500 || isTransient(err) {
		return Unavailable(op, err)
	}
	return UpstreamError(op, err)
}

func isTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrNotConfigured) || errors.Is(err, exec.ErrNotFound) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}

// KindOf reports the kind of err, defaulting to Internal.
func KindOf(err error) Kind {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	return KindInternal
}

// HTTPStatus maps err to the status code returned to callers.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindInvalidInput, KindDecodeFailure:
		return http.StatusBadRequest
	case KindUpstreamUnavailable:
		if errors.Is(err, context.DeadlineExceeded) {
			return http.StatusGatewayTimeout
		}
		return http.StatusBadGateway
	case KindUpstreamError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage is the text placed in the error envelope. Causes of internal and
// upstream failures are not exposed.
func PublicMessage(err error) string {
	var ae *Error
	if !errors.As(err, &ae) {
		return "internal error"
	}
	if ae.Kind == KindUpstreamUnavailable && errors.Is(err, context.DeadlineExceeded) {
		return "upstream service timed out"
	}
	return ae.Msg
}

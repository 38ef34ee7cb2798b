// Package daaperr defines the typed error kinds the router and HTTP writer
// agree on. Each sentinel carries the HTTP status and the short text body
// that accompanies it, the same way the teacher's internal/proto/status.go
// enumerates a fixed set of wire-level status bytes, generalized here to Go
// error values checked with errors.Is.
package daaperr

import "errors"

// Kind is a coarse error classification. The router takes the status and
// body for an error response from a Kind via StatusOf and BodyOf and
// writes them with httpio.ResponseWriter.WriteError.
type Kind struct {
	status int
	body   string
}

func (k *Kind) Error() string { return k.body }

// Status returns the HTTP status code associated with this error kind.
func (k *Kind) Status() int { return k.status }

var (
	ErrMalformedRequest  = &Kind{status: 400, body: "malformed request"}
	ErrForbiddenNoSession = &Kind{status: 403, body: ""}
	ErrUnauthorized      = &Kind{status: 401, body: ""}
	ErrTooManyUsers      = &Kind{status: 503, body: "too many users"}
	ErrNotFound          = &Kind{status: 404, body: "not found"}
	ErrInternal          = &Kind{status: 500, body: "internal error"}
	ErrNoFile            = &Kind{status: 500, body: "no file"}
)

// StatusOf extracts the HTTP status for err, defaulting to 500 when err does
// not wrap one of the sentinels above.
func StatusOf(err error) int {
	var k *Kind
	for _, cand := range []*Kind{ErrMalformedRequest, ErrForbiddenNoSession, ErrUnauthorized, ErrTooManyUsers, ErrNotFound, ErrInternal, ErrNoFile} {
		if errors.Is(err, cand) {
			k = cand
			break
		}
	}
	if k == nil {
		return 500
	}
	return k.status
}

// BodyOf extracts the short text body for err, defaulting to err's own
// message when it doesn't wrap one of the sentinels above.
func BodyOf(err error) string {
	var k *Kind
	for _, cand := range []*Kind{ErrMalformedRequest, ErrForbiddenNoSession, ErrUnauthorized, ErrTooManyUsers, ErrNotFound, ErrInternal, ErrNoFile} {
		if errors.Is(err, cand) {
			k = cand
			break
		}
	}
	if k == nil {
		if err == nil {
			return ""
		}
		return err.Error()
	}
	if k.body != "" {
		return k.body
	}
	if err != k {
		return err.Error()
	}
	return ""
}

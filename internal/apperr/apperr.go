// Package apperr defines the error taxonomy shared by the HTTP layer and the services
// beneath it, and maps each kind to a status code and JSON body.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync/atomic"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// Kind classifies an error for HTTP mapping.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindAuth
	KindAuthorization
	KindNotFound
	KindConflict
	KindRateLimit
	KindUpstream
	KindCanceled
)

// StatusClientClosedRequest is reported when the caller went away before work started.
const StatusClientClosedRequest = 499

// Codes used in the "error" field of response bodies.
const (
	CodeValidation   = "VALIDATION_ERROR"
	CodeUnauthorized = "UNAUTHORIZED"
	CodeInvalidToken = "INVALID_TOKEN"
	CodeInvalidLogin = "INVALID_CREDENTIALS"
	CodeMFARequired  = "MFA_REQUIRED"
	CodeForbidden    = "FORBIDDEN"
	CodeNotFound     = "NOT_FOUND"
	CodeConflict     = "CONFLICT"
	CodeRateLimited  = "RATE_LIMITED"
	CodeUpstream     = "GENERATION_FAILED"
	CodeInternal     = "INTERNAL_ERROR"
	CodeCanceled     = "REQUEST_CANCELED"
)

var exposeDetails atomic.Bool

// ExposeDetails toggles whether wrapped causes are returned to clients. Development only.
func ExposeDetails(enabled bool) {
	exposeDetails.Store(enabled)
}

// Error is a classified application error.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Fields  map[string]any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Status returns the HTTP status for the error kind.
func (e *Error) Status() int {
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuth:
		return http.StatusUnauthorized
	case KindAuthorization:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindRateLimit:
		return http.StatusTooManyRequests
	case KindCanceled:
		return StatusClientClosedRequest
	default:
		return http.StatusInternalServerError
	}
}

// With returns a copy of e carrying an extra body field.
func (e *Error) With(key string, value any) *Error {
	cp := *e
	cp.Fields = make(map[string]any, len(e.Fields)+1)
	for k, v := range e.Fields {
		cp.Fields[k] = v
	}
	cp.Fields[key] = value
	return &cp
}

// Wrap returns a copy of e with cause attached.
func (e *Error) Wrap(cause error) *Error {
	cp := *e
	cp.Err = cause
	return &cp
}

func Validation(message string) *Error {
	return &Error{Kind: KindValidation, Code: CodeValidation, Message: message}
}

func Auth(code, message string) *Error {
	return &Error{Kind: KindAuth, Code: code, Message: message}
}

func Authorization(code, message string) *Error {
	return &Error{Kind: KindAuthorization, Code: code, Message: message}
}

func NotFound(message string) *Error {
	return &Error{Kind: KindNotFound, Code: CodeNotFound, Message: message}
}

func Conflict(message string) *Error {
	return &Error{Kind: KindConflict, Code: CodeConflict, Message: message}
}

// RateLimit reports a rejected request; retryAfter is rounded up to whole seconds.
func RateLimit(message string, retryAfterSeconds int) *Error {
	if retryAfterSeconds < 1 {
		retryAfterSeconds = 1
	}
	return &Error{
		Kind:    KindRateLimit,
		Code:    CodeRateLimited,
		Message: message,
		Fields:  map[string]any{"retryAfter": retryAfterSeconds},
	}
}

func Upstream(message string, cause error) *Error {
	return &Error{Kind: KindUpstream, Code: CodeUpstream, Message: message, Err: cause}
}

func Canceled(cause error) *Error {
	return &Error{Kind: KindCanceled, Code: CodeCanceled, Message: "request canceled", Err: cause}
}

func Internal(cause error) *Error {
	return &Error{Kind: KindInternal, Code: CodeInternal, Message: "internal server error", Err: cause}
}

// From classifies err, treating anything unclassified as internal.
func From(err error) *Error {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return Internal(err)
}

// Body renders the JSON body for err.
func Body(err error) (int, gin.H) {
	e := From(err)
	body := gin.H{"message": e.Message, "error": e.Code}
	for k, v := range e.Fields {
		body[k] = v
	}
	if exposeDetails.Load() && e.Err != nil {
		body["details"] = e.Err.Error()
	}
	return e.Status(), body
}

// Respond writes err to the response and logs server-side failures.
func Respond(c *gin.Context, err error) {
	status, body := write(c, err)
	c.JSON(status, body)
}

// Abort writes err and stops the handler chain.
func Abort(c *gin.Context, err error) {
	status, body := write(c, err)
	c.AbortWithStatusJSON(status, body)
}

func write(c *gin.Context, err error) (int, gin.H) {
	status, body := Body(err)
	e := From(err)
	if status >= http.StatusInternalServerError {
		log.WithError(err).WithFields(log.Fields{
			"path":   c.FullPath(),
			"method": c.Request.Method,
			"code":   e.Code,
		}).Error("request failed")
	}
	if e.Kind == KindRateLimit {
		if retry, ok := e.Fields["retryAfter"].(int); ok {
			c.Header("Retry-After", strconv.Itoa(retry))
		}
	}
	return status, body
}

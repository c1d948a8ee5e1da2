// Package errors renders service errors as JSON responses.
package errors

import (
	stderrors "errors"
	"net/http"

	"github.com/go-chi/render"
	"github.com/sociodev/sociodev/internal/app/system/apperr"
	"github.com/sociodev/sociodev/internal/app/system/auth"
	"go.uber.org/zap"
)

// Response is the body of every error reply: {"error": "..."}.
type Response struct {
	Err    error `json:"-"`
	Status int   `json:"-"`

	Message string `json:"error"`
}

func (e *Response) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, e.Status)
	return nil
}

// StatusOf maps the error taxonomy to an HTTP status.
func StatusOf(err error) int {
	switch {
	case stderrors.Is(err, apperr.ErrInvalid):
		return http.StatusBadRequest
	case stderrors.Is(err, apperr.ErrAuth):
		return http.StatusUnauthorized
	case stderrors.Is(err, apperr.ErrForbidden):
		return http.StatusForbidden
	case stderrors.Is(err, apperr.ErrNotFound):
		return http.StatusNotFound
	case stderrors.Is(err, apperr.ErrUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// From builds the Response for err. Server-side failures get a generic
// message; sign-in failures never say which credential was wrong.
func From(err error) *Response {
	status := StatusOf(err)
	msg := err.Error()
	switch {
	case stderrors.Is(err, auth.ErrInvalidCredentials):
		msg = auth.ErrInvalidCredentials.Error()
	case status == http.StatusServiceUnavailable:
		msg = apperr.ErrUnavailable.Error()
	case status == http.StatusInternalServerError:
		msg = "internal error"
	}
	return &Response{Err: err, Status: status, Message: msg}
}

// InvalidRequest is the reply for a body that could not be decoded.
func InvalidRequest(err error) *Response {
	return &Response{Err: err, Status: http.StatusBadRequest, Message: "invalid request body: " + err.Error()}
}

// Write renders err, logging anything that is not the caller's fault.
func Write(w http.ResponseWriter, r *http.Request, log *zap.Logger, err error) {
	resp := From(err)
	if resp.Status >= http.StatusInternalServerError && log != nil {
		log.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", resp.Status),
			zap.Error(err))
	}
	_ = render.Render(w, r, resp)
}

// NotFound answers unknown routes.
func NotFound(w http.ResponseWriter, r *http.Request) {
	_ = render.Render(w, r, &Response{Status: http.StatusNotFound, Message: "no such endpoint"})
}

// MethodNotAllowed answers known routes called with the wrong method.
func MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	_ = render.Render(w, r, &Response{Status: http.StatusMethodNotAllowed, Message: "method not allowed"})
}

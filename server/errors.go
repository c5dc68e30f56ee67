package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"TrackShelf/core/library"
	"TrackShelf/core/media"
	"TrackShelf/logger"
	"TrackShelf/repository"
	"TrackShelf/storage"
)

// errorKind 决定返回给客户端的状态码
type errorKind int

const (
	InputError errorKind = iota
	NotFoundError
	UpstreamError
	InternalError
	TooLargeError
)

func (k errorKind) status() int {
	switch k {
	case InputError:
		return http.StatusBadRequest
	case NotFoundError:
		return http.StatusNotFound
	case UpstreamError:
		return http.StatusBadGateway
	case TooLargeError:
		return http.StatusRequestEntityTooLarge
	default:
		return http.StatusInternalServerError
	}
}

// apiError is the only error shape handlers turn into responses.
type apiError struct {
	Kind    errorKind
	Message string
	Err     error
}

func (e *apiError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *apiError) Unwrap() error { return e.Err }

func inputErr(msg string) *apiError {
	return &apiError{Kind: InputError, Message: msg}
}

func notFound(msg string) *apiError {
	return &apiError{Kind: NotFoundError, Message: msg}
}

func upstream(msg string, err error) *apiError {
	return &apiError{Kind: UpstreamError, Message: msg, Err: err}
}

// classify maps errors from the lower layers. msg is used for upstream and
// internal failures; input errors keep their own text.
func classify(err error, msg string) *apiError {
	var ae *apiError
	switch {
	case errors.As(err, &ae):
		return ae
	case errors.Is(err, repository.ErrNotFound):
		return &apiError{Kind: NotFoundError, Message: "not found", Err: err}
	case errors.Is(err, media.ErrNotFound), errors.Is(err, storage.ErrNotFound):
		return &apiError{Kind: NotFoundError, Message: "file not found in storage", Err: err}
	case errors.Is(err, library.ErrTooLarge):
		return &apiError{Kind: TooLargeError, Message: strings.TrimPrefix(err.Error(), "library: "), Err: err}
	case errors.Is(err, library.ErrInvalidUpload):
		return &apiError{Kind: InputError, Message: inputMessage(err), Err: err}
	case errors.Is(err, storage.ErrUpstream), errors.Is(err, storage.ErrAccessDenied):
		return upstream(msg, err)
	default:
		return &apiError{Kind: InternalError, Message: msg, Err: err}
	}
}

// inputMessage drops the sentinel prefix of upload validation errors.
func inputMessage(err error) string {
	if msg, ok := strings.CutPrefix(err.Error(), library.ErrInvalidUpload.Error()+": "); ok {
		return msg
	}
	return err.Error()
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("encode response failed", logger.ErrorField(err))
	}
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	ae := classify(err, "internal error")
	status := ae.Kind.status()
	if status >= http.StatusInternalServerError {
		logger.Error("request failed",
			logger.String("method", r.Method),
			logger.String("path", r.URL.Path),
			logger.Int("status", status),
			logger.ErrorField(err))
	}
	writeJSON(w, status, map[string]string{"error": ae.Message})
}

// writeAuthError is the auth middleware's error writer.
func writeAuthError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

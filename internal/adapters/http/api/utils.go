package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/okian/starchallenge/internal/domain/model"
	"github.com/okian/starchallenge/internal/domain/ranking"
	"github.com/okian/starchallenge/internal/domain/rewards"
	"github.com/okian/starchallenge/internal/domain/scoring"
	"github.com/okian/starchallenge/pkg/logger"
	"github.com/okian/starchallenge/pkg/metrics"
)

const maxBodyBytes = 1 << 20

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeJSON encodes v before writing headers; a value JSON cannot encode
// is answered with a 500.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		metrics.RecordErrorByComponent("http", "encode")
		status = http.StatusInternalServerError
		data, _ = json.Marshal(errorResponse{Code: "internal_error", Message: http.StatusText(status)})
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(append(data, '\n'))
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// statusFor maps an error chain to a response status and code.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, ErrBadRequest),
		errors.Is(err, model.ErrInvalid),
		errors.Is(err, scoring.ErrInvalidInput),
		errors.Is(err, ranking.ErrInvalidInput),
		errors.Is(err, rewards.ErrInvalidInput):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, model.ErrDuplicate):
		return http.StatusConflict, "conflict"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// respond writes err with the status it maps to. Server errors are logged and
// their details hidden from the client.
func respond(w http.ResponseWriter, r *http.Request, log logger.Logger, op string, err error) {
	status, code := statusFor(err)
	if status >= http.StatusInternalServerError {
		log.Error(r.Context(), "request failed",
			logger.String("op", op),
			logger.String("path", r.URL.Path),
			logger.Error(err),
		)
		writeError(w, status, code, nil)
		return
	}
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		err = Wrap(op, err)
	}
	writeError(w, status, code, err)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, op string, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return WrapKind(op, ErrBadRequest, fmt.Errorf("invalid JSON body: %w", err))
	}
	return nil
}

func pathID(r *http.Request, op string) (string, error) {
	id := strings.TrimSpace(chi.URLParam(r, "id"))
	if id == "" {
		return "", WrapKind(op, ErrBadRequest, errors.New("missing id"))
	}
	return id, nil
}

func queryInt(r *http.Request, key string) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", ErrBadRequest, key)
	}
	return n, nil
}

func queryBool(r *http.Request, key string) (bool, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(key))
	if raw == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("%w: %s must be a boolean", ErrBadRequest, key)
	}
	return b, nil
}

// Package handler содержит HTTP-обработчики сервисов магазина, склада и кошельков.
package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/checkout-saga/internal/api"
	"github.com/mmeshcher/checkout-saga/internal/logger"
	"github.com/mmeshcher/checkout-saga/internal/middleware"
	"github.com/mmeshcher/checkout-saga/internal/model"
	"github.com/mmeshcher/checkout-saga/internal/validation"
)

const maxBodySize = 1 << 20

// HealthCheck проверяет одну зависимость сервиса.
type HealthCheck func(ctx context.Context) error

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func health(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := healthResponse{Status: "ok", Checks: make(map[string]string, len(checks))}
		status := http.StatusOK
		for name, check := range checks {
			if err := check(r.Context()); err != nil {
				resp.Checks[name] = err.Error()
				resp.Status = "unavailable"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "ok"
		}
		writeJSON(w, status, resp)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError отвечает {"code","message"} со статусом, соответствующим доменной ошибке.
// Внутренние ошибки пишутся в лог, а клиент получает только общий текст.
func writeError(w http.ResponseWriter, r *http.Request, log *zap.Logger, err error) {
	status := api.StatusCode(err)
	resp := api.ErrorResponse{Code: model.ErrorCode(err), Message: err.Error()}

	if status == http.StatusInternalServerError {
		logger.FromContext(r.Context(), log).Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		resp.Message = http.StatusText(status)
	}
	writeJSON(w, status, resp)
}

// decodeJSON читает тело запроса в v и проверяет его правила validate.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodySize))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: malformed body: %v", model.ErrValidation, err)
	}
	return validation.Struct(v)
}

func principal(r *http.Request) (model.Principal, error) {
	p, ok := middleware.PrincipalFromContext(r.Context())
	if !ok {
		return model.Principal{}, fmt.Errorf("%w: no principal", model.ErrForbidden)
	}
	return p, nil
}

func idParam(r *http.Request, name string) (int64, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid %s %q", model.ErrValidation, name, raw)
	}
	return id, nil
}

func intQuery(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid %s %q", model.ErrValidation, name, raw)
	}
	return v, nil
}

func notFound(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusNotFound, api.ErrorResponse{Code: "NOT_FOUND", Message: http.StatusText(http.StatusNotFound)})
}

func methodNotAllowed(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusMethodNotAllowed, api.ErrorResponse{Code: "METHOD_NOT_ALLOWED", Message: http.StatusText(http.StatusMethodNotAllowed)})
}

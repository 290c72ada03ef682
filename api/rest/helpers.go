package rest

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"freyr/domain/exchange"
	"freyr/domain/ledger"
)

type envelope map[string]any

func (s *Server) writeJSON(w http.ResponseWriter, status int, data envelope) {
	body, err := json.Marshal(data)
	if err != nil {
		s.log.Error("encode response", zap.Error(err))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func (s *Server) readJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "malformed request body")
		return false
	}
	return true
}

func (s *Server) errorResponse(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, envelope{"error": message})
}

func (s *Server) notFoundResponse(w http.ResponseWriter, _ *http.Request) {
	s.errorResponse(w, http.StatusNotFound, "the requested resource could not be found")
}

func (s *Server) methodNotAllowedResponse(w http.ResponseWriter, r *http.Request) {
	s.errorResponse(w, http.StatusMethodNotAllowed,
		fmt.Sprintf("the %s method is not supported for this resource", r.Method))
}

// serviceError maps domain errors to HTTP statuses.
func (s *Server) serviceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, exchange.ErrNotFound):
		s.errorResponse(w, http.StatusNotFound, err.Error())
	case errors.Is(err, exchange.ErrNotOwner):
		s.errorResponse(w, http.StatusForbidden, err.Error())
	case errors.Is(err, exchange.ErrOrderExpired):
		s.errorResponse(w, http.StatusGone, err.Error())
	case errors.Is(err, exchange.ErrTradingDisabled),
		errors.Is(err, ledger.ErrInsufficientBalance):
		s.errorResponse(w, http.StatusConflict, err.Error())
	case errors.Is(err, exchange.ErrInvalidOrder),
		errors.Is(err, ledger.ErrInvalidAmount):
		s.errorResponse(w, http.StatusBadRequest, err.Error())
	default:
		s.log.Error("internal error", zap.Error(err))
		s.errorResponse(w, http.StatusInternalServerError, "internal error")
	}
}

// account extracts the caller identity. Write endpoints refuse
// anonymous requests.
func (s *Server) account(w http.ResponseWriter, r *http.Request) (string, bool) {
	acct := r.Header.Get("X-Account")
	if acct == "" {
		s.errorResponse(w, http.StatusUnauthorized, "missing X-Account header")
		return "", false
	}
	return acct, true
}

func parseAmount(raw string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("invalid amount %q", raw)
	}
	return amount, nil
}

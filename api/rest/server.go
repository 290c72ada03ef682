// Package rest exposes the exchange service over HTTP/JSON. Handlers
// are thin: decode, call the service, map errors to status codes. The
// caller's account comes from the X-Account header; request ids are
// generated per request and echoed in X-Request-ID.
package rest

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"

	"freyr/service"
)

type Server struct {
	svc    *service.ExchangeService
	log    *zap.Logger
	router *httprouter.Router
}

func NewServer(svc *service.ExchangeService, log *zap.Logger) *Server {
	s := &Server{svc: svc, log: log, router: httprouter.New()}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.HandlerFunc(http.MethodGet, "/v1/healthz", s.handleHealth)

	s.router.HandlerFunc(http.MethodPost, "/v1/deposits", s.handleDeposit)
	s.router.HandlerFunc(http.MethodPost, "/v1/withdrawals", s.handleWithdraw)
	s.router.HandlerFunc(http.MethodGet, "/v1/balances/:token", s.handleBalance)

	s.router.HandlerFunc(http.MethodPost, "/v1/offers", s.handleMakeOffer)
	s.router.HandlerFunc(http.MethodGet, "/v1/offers", s.handleOpenOrders)
	s.router.HandlerFunc(http.MethodGet, "/v1/offers/:id", s.handleOrderDetails)
	s.router.HandlerFunc(http.MethodPost, "/v1/offers/:id/take", s.handleTakeOffer)
	s.router.HandlerFunc(http.MethodDelete, "/v1/offers/:id", s.handleCancelOffer)

	s.router.HandlerFunc(http.MethodGet, "/v1/books/:sell/:buy", s.handleBook)

	s.router.HandlerFunc(http.MethodPut, "/v1/admin/trading", s.handleSetTrading)

	s.router.NotFound = http.HandlerFunc(s.notFoundResponse)
	s.router.MethodNotAllowed = http.HandlerFunc(s.methodNotAllowedResponse)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID := uuid.NewString()
	w.Header().Set("X-Request-ID", reqID)

	s.log.Debug("request",
		zap.String("request_id", reqID),
		zap.String("method", r.Method),
		zap.String("url", r.URL.String()))

	s.router.ServeHTTP(w, r)
}

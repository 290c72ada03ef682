package rest

import (
	"net/http"
	"strconv"

	"github.com/julienschmidt/httprouter"

	"freyr/domain/exchange"
)

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, envelope{
		"status":  "ok",
		"trading": s.svc.TradingEnabled(),
	})
}

type transferRequest struct {
	Token  string `json:"token"`
	Amount string `json:"amount"`
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	acct, ok := s.account(w, r)
	if !ok {
		return
	}
	var req transferRequest
	if !s.readJSON(w, r, &req) {
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.svc.Deposit(acct, req.Token, amount); err != nil {
		s.serviceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, envelope{
		"token":   req.Token,
		"balance": s.svc.Balance(acct, req.Token),
	})
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	acct, ok := s.account(w, r)
	if !ok {
		return
	}
	var req transferRequest
	if !s.readJSON(w, r, &req) {
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.svc.Withdraw(acct, req.Token, amount); err != nil {
		s.serviceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, envelope{
		"token":   req.Token,
		"balance": s.svc.Balance(acct, req.Token),
	})
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	acct, ok := s.account(w, r)
	if !ok {
		return
	}
	token := httprouter.ParamsFromContext(r.Context()).ByName("token")
	s.writeJSON(w, http.StatusOK, envelope{
		"token":   token,
		"balance": s.svc.Balance(acct, token),
	})
}

type offerRequest struct {
	SellAmount string `json:"sell_amount"`
	SellToken  string `json:"sell_token"`
	BuyAmount  string `json:"buy_amount"`
	BuyToken   string `json:"buy_token"`
	Expiry     int64  `json:"expiry"`
}

func (s *Server) handleMakeOffer(w http.ResponseWriter, r *http.Request) {
	acct, ok := s.account(w, r)
	if !ok {
		return
	}
	var req offerRequest
	if !s.readJSON(w, r, &req) {
		return
	}
	sellAmt, err := parseAmount(req.SellAmount)
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	buyAmt, err := parseAmount(req.BuyAmount)
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}

	id, err := s.svc.MakeOffer(acct, sellAmt, req.SellToken, buyAmt, req.BuyToken, req.Expiry)
	if err != nil {
		s.serviceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, envelope{
		"order_id": id,
		"order":    orderView(s.svc.OrderDetails(id)),
	})
}

func (s *Server) handleOrderDetails(w http.ResponseWriter, r *http.Request) {
	id, ok := s.orderID(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, envelope{"order": orderView(s.svc.OrderDetails(id))})
}

func (s *Server) handleOpenOrders(w http.ResponseWriter, r *http.Request) {
	acct, ok := s.account(w, r)
	if !ok {
		return
	}
	orders := s.svc.OpenOrders(acct)
	if orders == nil {
		orders = []uint64{}
	}
	s.writeJSON(w, http.StatusOK, envelope{"orders": orders})
}

type takeRequest struct {
	Amount string `json:"amount"`
}

func (s *Server) handleTakeOffer(w http.ResponseWriter, r *http.Request) {
	acct, ok := s.account(w, r)
	if !ok {
		return
	}
	id, ok := s.orderID(w, r)
	if !ok {
		return
	}
	var req takeRequest
	if !s.readJSON(w, r, &req) {
		return
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		s.errorResponse(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.svc.TakeOffer(acct, id, amount); err != nil {
		s.serviceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, envelope{"order": orderView(s.svc.OrderDetails(id))})
}

func (s *Server) handleCancelOffer(w http.ResponseWriter, r *http.Request) {
	acct, ok := s.account(w, r)
	if !ok {
		return
	}
	id, ok := s.orderID(w, r)
	if !ok {
		return
	}
	if err := s.svc.CancelOffer(acct, id); err != nil {
		s.serviceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, envelope{"status": "canceled", "order_id": id})
}

func (s *Server) handleBook(w http.ResponseWriter, r *http.Request) {
	params := httprouter.ParamsFromContext(r.Context())
	pair := exchange.Pair{Sell: params.ByName("sell"), Buy: params.ByName("buy")}

	levels := 0
	if raw := r.URL.Query().Get("levels"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			s.errorResponse(w, http.StatusBadRequest, "invalid levels parameter")
			return
		}
		levels = n
	}

	depth := s.svc.Depth(pair, levels)
	if depth == nil {
		depth = []exchange.BookLevel{}
	}
	s.writeJSON(w, http.StatusOK, envelope{
		"pair":  pair.String(),
		"first": s.svc.FirstOffer(pair),
		"last":  s.svc.LastOffer(pair),
		"depth": depth,
	})
}

type tradingRequest struct {
	Enabled bool `json:"enabled"`
}

func (s *Server) handleSetTrading(w http.ResponseWriter, r *http.Request) {
	acct, ok := s.account(w, r)
	if !ok {
		return
	}
	var req tradingRequest
	if !s.readJSON(w, r, &req) {
		return
	}
	if err := s.svc.SetTrading(acct, req.Enabled); err != nil {
		s.serviceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, envelope{"trading": req.Enabled})
}

func (s *Server) orderID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	raw := httprouter.ParamsFromContext(r.Context()).ByName("id")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		s.errorResponse(w, http.StatusBadRequest, "invalid order id")
		return 0, false
	}
	return id, true
}

// orderView shapes an order record for JSON responses.
func orderView(o exchange.Order) envelope {
	return envelope{
		"id":          o.ID,
		"sell_amount": o.SellAmount,
		"sell_token":  o.SellToken,
		"buy_amount":  o.BuyAmount,
		"buy_token":   o.BuyToken,
		"owner":       o.Owner,
		"expiry":      o.Expiry,
		"closed":      o.Closed(),
	}
}

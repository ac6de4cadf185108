package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"

	"skoll/internal/common"
	"skoll/internal/exchange"
	"skoll/internal/journal"
)

// Server exposes the read-only query surface over HTTP: order book
// snapshots, balances and the trade journal. All endpoints are
// side-effect-free; order flow goes through the TCP gateway.
type Server struct {
	exch    *exchange.Exchange
	journal *journal.Journal // optional
	router  *mux.Router
	http    *http.Server
}

func NewServer(exch *exchange.Exchange, jnl *journal.Journal) *Server {
	s := &Server{
		exch:    exch,
		journal: jnl,
		router:  mux.NewRouter(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/books/{symbol}/{side}", s.handleGetOrderBook).Methods("GET")
	api.HandleFunc("/balances/{account}/{symbol}", s.handleGetBalance).Methods("GET")
	api.HandleFunc("/trades", s.handleGetTrades).Methods("GET")

	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
}

func (s *Server) Start(addr string) error {
	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	log.Info().Str("address", addr).Msg("query api running")
	return s.http.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

// orderView is the JSON shape of a resting order snapshot.
type orderView struct {
	ID     uint64 `json:"id"`
	Side   string `json:"side"`
	Symbol string `json:"symbol"`
	Owner  string `json:"owner"`
	Price  uint64 `json:"price"`
	Amount uint64 `json:"amount"`
	Filled uint64 `json:"filled"`
}

func (s *Server) handleGetOrderBook(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	sd, err := parseSide(vars["side"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	orders, err := s.exch.OrderBook(common.NewSymbol(vars["symbol"]), sd)
	if err != nil {
		writeError(w, statusFor(err), err)
		return
	}

	views := make([]orderView, len(orders))
	for i, o := range orders {
		views[i] = orderView{
			ID:     o.ID,
			Side:   o.Side.String(),
			Symbol: o.Symbol.String(),
			Owner:  string(o.Owner),
			Price:  o.Price,
			Amount: o.Amount,
			Filled: o.Filled,
		}
	}
	writeJSON(w, views)
}

func (s *Server) handleGetBalance(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	balance := s.exch.Balance(
		common.AccountID(vars["account"]),
		common.NewSymbol(vars["symbol"]),
	)
	writeJSON(w, map[string]uint64{"balance": balance})
}

func (s *Server) handleGetTrades(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		writeError(w, http.StatusNotFound, errors.New("trade journal disabled"))
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, errors.New("invalid limit"))
			return
		}
		limit = n
	}

	trades, err := s.journal.Recent(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, trades)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, map[string]string{"status": "ok"})
}

func parseSide(v string) (common.Side, error) {
	switch v {
	case "buy", "0":
		return common.Buy, nil
	case "sell", "1":
		return common.Sell, nil
	}
	return 0, errors.New("side must be buy or sell")
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, common.ErrUnknownAsset):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("unable to encode response")
	}
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

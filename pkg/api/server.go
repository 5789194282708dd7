package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/uhyunpark/goldex/pkg/app/core"
	"github.com/uhyunpark/goldex/pkg/app/exchange"
)

// Exchange is the set of marketplace operations the API exposes
type Exchange interface {
	PlaceOrder(ctx context.Context, req exchange.PlaceOrderRequest) (*exchange.PlaceOrderResult, error)
	CancelOrder(ctx context.Context, id uint64) (*core.Order, error)
	ListOrders(ctx context.Context, page int, withTrades bool) (*exchange.OrderPage, error)
	GetOrder(ctx context.Context, id uint64) (*exchange.OrderView, error)
	Deposit(ctx context.Context, owner uint64, qty decimal.Decimal) (*core.Account, error)
	Account(ctx context.Context, owner uint64) (*core.Account, error)
}

type Options struct {
	CORSOrigins []string

	// MetricsHandler is mounted on /metrics when set
	MetricsHandler http.Handler

	Logger *zap.SugaredLogger
}

// Server handles the REST API
type Server struct {
	exchange Exchange
	router   *mux.Router
	opts     Options
	logger   *zap.SugaredLogger
}

// NewServer creates a new API server
func NewServer(ex Exchange, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}

	s := &Server{
		exchange: ex,
		router:   mux.NewRouter(),
		opts:     opts,
		logger:   logger,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	// API v1 routes
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Order endpoints
	api.HandleFunc("/orders", s.handleListOrders).Methods("GET")
	api.HandleFunc("/orders", s.handlePlaceOrder).Methods("POST")
	api.HandleFunc("/orders/{id}", s.handleGetOrder).Methods("GET")
	api.HandleFunc("/orders/{id}/cancel", s.handleCancelOrder).Methods("POST")

	// Account endpoints
	api.HandleFunc("/accounts/{id}", s.handleGetAccount).Methods("GET")
	api.HandleFunc("/accounts/{id}/deposit", s.handleDeposit).Methods("POST")

	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	if s.opts.MetricsHandler != nil {
		s.router.Handle("/metrics", s.opts.MetricsHandler).Methods("GET")
	}
}

// Handler returns the router wrapped in CORS, request id and access logging
func (s *Server) Handler() http.Handler {
	origins := s.opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", RequestIDHeader},
		ExposedHeaders:   []string{RequestIDHeader},
		AllowCredentials: true,
	})

	return c.Handler(withRequestID(recoverAndLog(s.logger, s.router)))
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Infow("api_server_starting", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.logger.Infow("api_server_stopping", "addr", addr)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ==============================
// REST Handlers
// ==============================

func (s *Server) handlePlaceOrder(w http.ResponseWriter, r *http.Request) {
	var req PlaceOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}

	side := req.Type
	if side == "" {
		side = req.Side
	}
	if msg := validatePlaceOrder(req, side); msg != "" {
		respondError(w, http.StatusUnprocessableEntity, "validation failed", msg)
		return
	}

	res, err := s.exchange.PlaceOrder(r.Context(), exchange.PlaceOrderRequest{
		OwnerID:  req.UserID,
		Side:     core.Side(side),
		Quantity: *req.Quantity,
		Price:    *req.Price,
	})
	if err != nil {
		s.respondExchangeError(w, r, err, "error placing order")
		return
	}

	respondJSONStatus(w, http.StatusCreated, PlaceOrderResponse{
		Message: "order placed successfully",
		Order:   toOrderInfo(res.Order),
		Trades:  toTradeInfos(res.Trades),
	})
}

// validatePlaceOrder is the field-level validation layer in front of the
// exchange. Returns "" when the request is acceptable.
func validatePlaceOrder(req PlaceOrderRequest, side string) string {
	switch {
	case req.UserID == 0:
		return "user_id is required"
	case side != string(core.Buy) && side != string(core.Sell):
		return "type must be buy or sell"
	case req.Quantity == nil:
		return "quantity is required"
	case req.Quantity.LessThan(core.MinQuantity):
		return "quantity must be at least " + core.MinQuantity.String()
	case !req.Quantity.Equal(req.Quantity.Truncate(core.QuantityPrecision)):
		return "quantity must have at most 3 decimal places"
	case req.Price == nil:
		return "price is required"
	case *req.Price < 1:
		return "price must be an integer of at least 1"
	}
	return ""
}

func (s *Server) handleListOrders(w http.ResponseWriter, r *http.Request) {
	page := 1
	if p := r.URL.Query().Get("page"); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil || n < 1 {
			respondError(w, http.StatusUnprocessableEntity, "validation failed", "page must be a positive integer")
			return
		}
		page = n
	}
	withTrades, _ := strconv.ParseBool(r.URL.Query().Get("trades"))

	result, err := s.exchange.ListOrders(r.Context(), page, withTrades)
	if err != nil {
		s.respondExchangeError(w, r, err, "error listing orders")
		return
	}

	response := ListOrdersResponse{
		Orders: make([]OrderInfo, 0, len(result.Orders)),
		OrdersMeta: OrdersMeta{
			CurrentPage: result.CurrentPage,
			LastPage:    result.LastPage,
			Total:       result.Total,
		},
	}
	for _, v := range result.Orders {
		response.Orders = append(response.Orders, toOrderView(v))
	}
	respondJSON(w, response)
}

func (s *Server) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	view, err := s.exchange.GetOrder(r.Context(), id)
	if err != nil {
		s.respondExchangeError(w, r, err, "error loading order")
		return
	}
	respondJSON(w, toOrderView(view))
}

func (s *Server) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	order, err := s.exchange.CancelOrder(r.Context(), id)
	if err != nil {
		s.respondExchangeError(w, r, err, "error cancelling order")
		return
	}

	respondJSON(w, CancelOrderResponse{
		Message: "order cancelled successfully",
		Order:   toOrderInfo(order),
	})
}

func (s *Server) handleGetAccount(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	acc, err := s.exchange.Account(r.Context(), id)
	if err != nil {
		s.respondExchangeError(w, r, err, "error loading account")
		return
	}
	respondJSON(w, toAccountInfo(acc))
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var req DepositRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body", err.Error())
		return
	}
	if req.Quantity == nil {
		respondError(w, http.StatusUnprocessableEntity, "validation failed", "quantity is required")
		return
	}

	acc, err := s.exchange.Deposit(r.Context(), id, *req.Quantity)
	if err != nil {
		s.respondExchangeError(w, r, err, "error depositing gold")
		return
	}
	respondJSON(w, toAccountInfo(acc))
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, map[string]string{"status": "ok"})
}

// ==============================
// Helper Functions
// ==============================

func pathID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	raw := mux.Vars(r)["id"]
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || id == 0 {
		respondError(w, http.StatusNotFound, "not found", "invalid id "+strconv.Quote(raw))
		return 0, false
	}
	return id, true
}

// respondExchangeError maps core error kinds to HTTP status codes
func (s *Server) respondExchangeError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	switch {
	case errors.Is(err, core.ErrInvalidOrder):
		respondError(w, http.StatusUnprocessableEntity, "validation failed", err.Error())
	case errors.Is(err, core.ErrInsufficientBalance):
		respondError(w, http.StatusBadRequest, "insufficient gold balance", err.Error())
	case errors.Is(err, core.ErrInvalidOrderState):
		respondError(w, http.StatusBadRequest, "only open orders can be cancelled", err.Error())
	case errors.Is(err, core.ErrOrderNotFound):
		respondError(w, http.StatusNotFound, "order not found", err.Error())
	default:
		s.logger.Errorw("request_failed",
			"request_id", RequestID(r.Context()),
			"path", r.URL.Path,
			"err", err,
		)
		respondError(w, http.StatusInternalServerError, fallback, err.Error())
	}
}

func respondJSON(w http.ResponseWriter, data interface{}) {
	respondJSONStatus(w, http.StatusOK, data)
}

func respondJSONStatus(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, error string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   error,
		Message: message,
	})
}

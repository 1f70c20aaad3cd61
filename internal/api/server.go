package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	buspkg "github.com/glkeru/gamification/internal/bus"
	interf "github.com/glkeru/gamification/internal/interfaces"
	model "github.com/glkeru/gamification/internal/models"
	serv "github.com/glkeru/gamification/internal/services"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Handler exposes the read API, the trusted award endpoint and operational
// health over HTTP.
type Handler struct {
	router      *mux.Router
	logger      *zap.Logger
	points      *serv.PointsEngine
	leaderboard *serv.LeaderboardService
	bus         *buspkg.Bus
	ledger      interf.LedgerStorage
}

func NewHandler(logger *zap.Logger, points *serv.PointsEngine, leaderboard *serv.LeaderboardService, bus *buspkg.Bus, ledger interf.LedgerStorage) *Handler {
	router := mux.NewRouter()
	handler := &Handler{router, logger, points, leaderboard, bus, ledger}
	router.HandleFunc("/health", handler.HealthHandler).Methods(http.MethodGet)
	router.HandleFunc("/award", handler.AwardHandler).Methods(http.MethodPost)
	router.HandleFunc("/balance/{user}", handler.BalanceHandler).Methods(http.MethodGet)
	router.HandleFunc("/transactions/{user}", handler.TransactionsHandler).Methods(http.MethodGet)
	router.HandleFunc("/leaderboard/{category}/{timeframe}", handler.TopHandler).Methods(http.MethodGet)
	router.HandleFunc("/leaderboard/{category}/{timeframe}/{user}", handler.RankHandler).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	router.Use(MiddlewareLog())

	return handler
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

func (h *Handler) Log(msg string, service string, err error) {
	h.logger.Error(msg,
		zap.String("service", service),
		zap.Error(err),
	)
}

type healthResponse struct {
	BusStatus    string `json:"bus_status"`
	CircuitState string `json:"circuit_state"`
	Published    uint64 `json:"published_count"`
	Failed       uint64 `json:"failed_count"`
	LedgerStatus string `json:"ledger_status"`
}

func (h *Handler) HealthHandler(w http.ResponseWriter, req *http.Request) {
	health := h.bus.Health()
	resp := healthResponse{
		BusStatus:    health.Status,
		CircuitState: health.CircuitState,
		Published:    health.Published,
		Failed:       health.Failed,
		LedgerStatus: "ok",
	}

	code := http.StatusOK
	ctx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
	defer cancel()
	if err := h.ledger.Ping(ctx); err != nil {
		resp.LedgerStatus = "unavailable"
		code = http.StatusServiceUnavailable
	}

	h.writeJSON(w, code, resp)
}

type awardRequest struct {
	UserID      string         `json:"user_id"`
	ActionType  string         `json:"action_type"`
	Amount      int64          `json:"amount"`
	Context     map[string]any `json:"context"`
	OperationID string         `json:"operation_id"`
}

// AwardHandler serves trusted internal producers
func (h *Handler) AwardHandler(w http.ResponseWriter, req *http.Request) {
	var body awardRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		http.Error(w, "Body is not correct", http.StatusBadRequest)
		return
	}
	defer req.Body.Close()

	result, err := h.points.Award(req.Context(), body.UserID, body.ActionType, body.Amount, body.Context, body.OperationID)
	if err != nil {
		h.writeError(w, "AwardHandler", err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

func (h *Handler) BalanceHandler(w http.ResponseWriter, req *http.Request) {
	vars := mux.Vars(req)
	bal, err := h.points.GetBalance(req.Context(), vars["user"])
	if err != nil {
		h.writeError(w, "BalanceHandler", err)
		return
	}
	h.writeJSON(w, http.StatusOK, bal)
}

func (h *Handler) TransactionsHandler(w http.ResponseWriter, req *http.Request) {
	vars := mux.Vars(req)
	from, to, err := parseRange(req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	tnxs, err := h.points.ListTransactions(req.Context(), vars["user"], from, to)
	if err != nil {
		h.writeError(w, "TransactionsHandler", err)
		return
	}
	h.writeJSON(w, http.StatusOK, tnxs)
}

func (h *Handler) TopHandler(w http.ResponseWriter, req *http.Request) {
	vars := mux.Vars(req)
	limit := 10
	if raw := req.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			http.Error(w, "limit is not correct", http.StatusBadRequest)
			return
		}
		limit = n
	}

	entries, err := h.leaderboard.Top(req.Context(), vars["category"], vars["timeframe"], limit)
	if err != nil {
		h.writeError(w, "TopHandler", err)
		return
	}
	h.writeJSON(w, http.StatusOK, entries)
}

func (h *Handler) RankHandler(w http.ResponseWriter, req *http.Request) {
	vars := mux.Vars(req)
	entry, err := h.leaderboard.UserRank(req.Context(), vars["user"], vars["category"], vars["timeframe"])
	if err != nil {
		h.writeError(w, "RankHandler", err)
		return
	}
	h.writeJSON(w, http.StatusOK, entry)
}

func (h *Handler) writeJSON(w http.ResponseWriter, code int, body any) {
	j, err := json.Marshal(body)
	if err != nil {
		h.Log("Marshal", "writeJSON", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(j)
}

// map the error taxonomy onto HTTP statuses, keeping the message
func (h *Handler) writeError(w http.ResponseWriter, service string, err error) {
	switch {
	case errors.Is(err, model.ErrValidation):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, model.ErrNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, model.ErrAbuseDetected):
		http.Error(w, err.Error(), http.StatusTooManyRequests)
	case errors.Is(err, model.ErrLockTimeout):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, model.ErrBusUnavailable):
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
	default:
		h.Log("Internal error", service, err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func parseRange(req *http.Request) (from, to time.Time, err error) {
	from = time.Time{}
	to = time.Now().UTC()
	if raw := req.URL.Query().Get("from"); raw != "" {
		from, err = time.Parse("2006-01-02", raw)
		if err != nil {
			return from, to, err
		}
	}
	if raw := req.URL.Query().Get("to"); raw != "" {
		to, err = time.Parse("2006-01-02", raw)
		if err != nil {
			return from, to, err
		}
		to = to.Add(24*time.Hour - time.Second)
	}
	return from, to, nil
}

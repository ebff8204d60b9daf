// handler.go provides the HTTP REST API of the trading service.
//
// Routes, all under /api/v1:
//   - GET  /state          full store snapshot
//   - GET  /banks          tradable banks
//   - GET  /active-group   the selected market
//   - POST /active-bank    select a market by bank address
//   - POST /actions/check  validator verdict for a prospective loop
//   - POST /actions/simulate  verdict plus simulated trade stats
//   - POST /actions/loop   validate and submit a loop
//   - GET  /history        recent transactions of the wallet
//   - POST /refresh        refetch on-chain state
//   - GET  /stream         websocket push of the state after every change
package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/archon-research/stl-trade/internal/domain/entity"
	"github.com/archon-research/stl-trade/internal/ports/inbound"
	"github.com/archon-research/stl-trade/internal/services/trade_executor"
	"github.com/archon-research/stl-trade/internal/services/trade_store"
	"github.com/archon-research/stl-trade/internal/services/trading"
)

const maxRequestBody = 1 << 20

// Handler implements HTTP handlers for the API.
type Handler struct {
	service  inbound.TradeService
	logger   *slog.Logger
	stream   StreamConfig
	upgrader websocket.Upgrader
}

// NewHandler creates a new HTTP handler with the given service.
func NewHandler(service inbound.TradeService, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		service: service,
		logger:  logger.With("component", "http-api"),
		stream:  StreamConfigDefaults(),
	}
}

// SetStreamConfig overrides the state stream timing.
func (h *Handler) SetStreamConfig(cfg StreamConfig) {
	h.stream = cfg.withDefaults()
}

// Router returns the API routes mounted under /api/v1.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(h.requestID)
	r.Use(middleware.Recoverer)
	r.Use(h.logRequests)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/state", h.State)
		r.Get("/banks", h.Banks)
		r.Get("/active-group", h.ActiveGroup)
		r.Post("/active-bank", h.SelectBank)
		r.Post("/actions/check", h.CheckAction)
		r.Post("/actions/simulate", h.PreviewAction)
		r.Post("/actions/loop", h.ExecuteLoop)
		r.Get("/history", h.History)
		r.Post("/refresh", h.Refresh)
		r.Get("/stream", h.Stream)
	})
	return r
}

// State returns the full store snapshot.
func (h *Handler) State(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, newStateResponse(h.service.State()))
}

// Banks returns the tradable banks.
func (h *Handler) Banks(w http.ResponseWriter, r *http.Request) {
	h.respondJSON(w, http.StatusOK, newBankResponses(h.service.State().Banks))
}

// ActiveGroup returns the selected market, or 404 when none is selected.
func (h *Handler) ActiveGroup(w http.ResponseWriter, r *http.Request) {
	group := newActiveGroupResponse(h.service.State().ActiveGroup)
	if group == nil {
		h.respondError(w, http.StatusNotFound, "no active group")
		return
	}
	h.respondJSON(w, http.StatusOK, group)
}

type selectBankRequest struct {
	Bank entity.Address `json:"bank"`
}

// SelectBank makes the group of the posted bank the active group.
func (h *Handler) SelectBank(w http.ResponseWriter, r *http.Request) {
	var req selectBankRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.Bank.IsZero() {
		h.respondError(w, http.StatusBadRequest, "bank is required")
		return
	}

	if err := h.service.SelectBank(r.Context(), req.Bank); err != nil {
		h.respondStoreError(w, r, "failed to select bank", err)
		return
	}
	group := newActiveGroupResponse(h.service.State().ActiveGroup)
	if group == nil {
		// A concurrent selection or refresh cleared it.
		h.respondError(w, http.StatusConflict, "active group changed, retry")
		return
	}
	h.respondJSON(w, http.StatusOK, group)
}

// CheckAction returns the validator verdict.
func (h *Handler) CheckAction(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeAction(w, r)
	if !ok {
		return
	}
	h.respondJSON(w, http.StatusOK, map[string]any{
		"messages": h.service.CheckAction(r.Context(), req),
	})
}

// PreviewAction returns the verdict and the simulated trade stats.
func (h *Handler) PreviewAction(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeAction(w, r)
	if !ok {
		return
	}
	preview, err := h.service.PreviewAction(r.Context(), req)
	if err != nil {
		h.logger.Error("failed to preview action", "requestId", requestID(r), "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to preview action")
		return
	}
	h.respondJSON(w, http.StatusOK, previewResponse{
		Messages:        preview.Messages,
		Stats:           newTradeStatsResponse(preview.Stats),
		SimulationError: preview.SimulationError,
	})
}

// ExecuteLoop validates and submits a loop.
func (h *Handler) ExecuteLoop(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeAction(w, r)
	if !ok {
		return
	}

	result, err := h.service.ExecuteLoop(r.Context(), req)
	var blocked *trading.BlockedError
	var txErr *trade_executor.TransactionError
	switch {
	case err == nil:
	case errors.As(err, &blocked):
		h.respondJSON(w, http.StatusUnprocessableEntity, blockedResponse{Error: "action blocked", Messages: blocked.Messages})
		return
	case errors.As(err, &txErr):
		h.respondJSON(w, http.StatusBadGateway, loopErrorResponse{
			Error:      txErr.Message,
			Signatures: txErr.Signatures,
			Steps:      newStepResponses(txErr.Steps),
		})
		return
	case errors.Is(err, trade_executor.ErrClientNotReady):
		h.respondError(w, http.StatusServiceUnavailable, trade_executor.ExtractErrorMessage(err))
		return
	default:
		h.logger.Error("failed to execute loop", "requestId", requestID(r), "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to execute loop")
		return
	}

	resp := loopResponse{Signatures: result.Signatures, Steps: newStepResponses(result.Steps)}
	if result.Record != nil {
		rec := newTxRecordResponse(result.Record)
		resp.Record = &rec
	}
	h.respondJSON(w, http.StatusOK, resp)
}

// History returns the wallet's recent transactions. ?limit= bounds the count.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			h.respondError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	records, err := h.service.History(r.Context(), limit)
	switch {
	case err == nil:
	case errors.Is(err, trading.ErrNoHistory):
		h.respondError(w, http.StatusNotImplemented, "transaction history is not configured")
		return
	default:
		h.logger.Error("failed to list history", "requestId", requestID(r), "error", err)
		h.respondError(w, http.StatusInternalServerError, "failed to list history")
		return
	}

	out := make([]txRecordResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, newTxRecordResponse(rec))
	}
	h.respondJSON(w, http.StatusOK, out)
}

// Refresh refetches on-chain state.
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	err := h.service.Refresh(r.Context())
	if err != nil && !errors.Is(err, trade_store.ErrSuperseded) {
		h.respondStoreError(w, r, "failed to refresh", err)
		return
	}
	h.respondJSON(w, http.StatusOK, newStateResponse(h.service.State()))
}

func (h *Handler) respondStoreError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	var fetchErr *trade_store.FetchError
	switch {
	case errors.Is(err, trade_store.ErrBankNotFound):
		h.respondError(w, http.StatusNotFound, "bank not found")
	case errors.Is(err, trade_store.ErrSuperseded):
		h.respondError(w, http.StatusConflict, "superseded by a newer request")
	case errors.Is(err, trade_store.ErrNotInitialized):
		h.respondError(w, http.StatusServiceUnavailable, "store is not initialized")
	case errors.Is(err, trade_store.ErrDisposed):
		h.respondError(w, http.StatusServiceUnavailable, "shutting down")
	case errors.As(err, &fetchErr):
		h.logger.Warn(msg, "requestId", requestID(r), "stage", fetchErr.Stage, "error", err)
		h.respondError(w, http.StatusBadGateway, fmt.Sprintf("%s: %s failed", msg, fetchErr.Stage))
	default:
		h.logger.Error(msg, "requestId", requestID(r), "error", err)
		h.respondError(w, http.StatusInternalServerError, msg)
	}
}

func (h *Handler) decodeAction(w http.ResponseWriter, r *http.Request) (inbound.ActionRequest, bool) {
	var body actionRequest
	if !h.decode(w, r, &body) {
		return inbound.ActionRequest{}, false
	}
	req, err := body.toInbound()
	if err != nil {
		h.respondError(w, http.StatusBadRequest, err.Error())
		return inbound.ActionRequest{}, false
	}
	return req, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode JSON response", "error", err)
	}
}

func (h *Handler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}

const requestIDHeader = "X-Request-Id"

// requestID keeps an incoming request id or assigns a new one.
func (h *Handler) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
			r.Header.Set(requestIDHeader, id)
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

func requestID(r *http.Request) string {
	return r.Header.Get(requestIDHeader)
}

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		h.logger.Debug("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"requestId", requestID(r),
		)
	})
}

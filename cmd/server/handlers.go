package main

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/karnies/moomanager/internal/backup"
	"github.com/karnies/moomanager/internal/portfolio"
	"go.uber.org/zap"
)

// APIHandler holds dependencies for the API endpoints.
type APIHandler struct {
	log        *zap.Logger
	portfolio  *portfolio.Service
	backup     *backup.Service
	includeFee bool
}

// NewAPIHandler creates a new APIHandler.
func NewAPIHandler(log *zap.Logger, p *portfolio.Service, b *backup.Service, includeFee bool) *APIHandler {
	return &APIHandler{log: log, portfolio: p, backup: b, includeFee: includeFee}
}

// Routes wires all API endpoints onto a mux.
func (h *APIHandler) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", h.HealthHandler)
	mux.HandleFunc("GET /api/portfolio", h.PortfolioHandler)
	mux.HandleFunc("GET /api/stocks", h.ListStocksHandler)
	mux.HandleFunc("POST /api/stocks", h.CreateStockHandler)
	mux.HandleFunc("PUT /api/stocks/{id}", h.UpdateStockHandler)
	mux.HandleFunc("DELETE /api/stocks/{id}", h.DeleteStockHandler)
	mux.HandleFunc("GET /api/stocks/{id}/trades", h.ListTradesHandler)
	mux.HandleFunc("POST /api/stocks/{id}/trades", h.RecordTradeHandler)
	mux.HandleFunc("POST /api/stocks/{id}/settle", h.SettleHandler)
	mux.HandleFunc("GET /api/settlements", h.SettlementsHandler)
	mux.HandleFunc("GET /api/backup", h.ExportHandler)
	mux.HandleFunc("POST /api/backup", h.ImportHandler)
	return mux
}

func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	io.WriteString(w, "OK\n")
}

// PortfolioHandler returns the assembled portfolio summary. Pass ?force=true
// to bypass the price cache staleness check.
func (h *APIHandler) PortfolioHandler(w http.ResponseWriter, r *http.Request) {
	opts := portfolio.Options{
		IncludeFee:   h.includeFee,
		ForceRefresh: r.URL.Query().Get("force") == "true",
	}

	summary, err := h.portfolio.BuildPortfolio(r.Context(), opts)
	if err != nil {
		h.log.Error("Failed to build portfolio", zap.Error(err))
		http.Error(w, "Failed to build portfolio", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, summary)
}

func (h *APIHandler) ListStocksHandler(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("all") != "true"
	stocks, err := h.portfolio.ListStocks(activeOnly)
	if err != nil {
		h.log.Error("Failed to list stocks", zap.Error(err))
		http.Error(w, "Failed to list stocks", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, stocks)
}

func (h *APIHandler) CreateStockHandler(w http.ResponseWriter, r *http.Request) {
	var in portfolio.CreateStockInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	stock, err := h.portfolio.CreateStock(in)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, stock)
}

func (h *APIHandler) UpdateStockHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	var in portfolio.UpdateStockInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	stock, err := h.portfolio.UpdateStock(id, in)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, stock)
}

func (h *APIHandler) DeleteStockHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}
	if err := h.portfolio.DeleteStock(id); err != nil {
		h.writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) ListTradesHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	from, err := h.queryDate(r, "from")
	if err != nil {
		http.Error(w, "Invalid from date", http.StatusBadRequest)
		return
	}
	to, err := h.queryDate(r, "to")
	if err != nil {
		http.Error(w, "Invalid to date", http.StatusBadRequest)
		return
	}

	trades, err := h.portfolio.ListTrades(id, from, to)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, trades)
}

func (h *APIHandler) RecordTradeHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	var in portfolio.RecordTradeInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	in.StockID = id

	trade, err := h.portfolio.RecordTrade(in)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, trade)
}

func (h *APIHandler) SettleHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.pathID(w, r)
	if !ok {
		return
	}

	settlement, err := h.portfolio.Settle(id)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, settlement)
}

func (h *APIHandler) SettlementsHandler(w http.ResponseWriter, r *http.Request) {
	settlements, totals, err := h.portfolio.SettlementHistory()
	if err != nil {
		h.log.Error("Failed to load settlements", zap.Error(err))
		http.Error(w, "Failed to load settlements", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"settlements": settlements,
		"totals":      totals,
	})
}

func (h *APIHandler) ExportHandler(w http.ResponseWriter, r *http.Request) {
	data, err := h.backup.Export()
	if err != nil {
		h.log.Error("Export failed", zap.Error(err))
		http.Error(w, "Export failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="moomanager-backup.json"`)
	w.Write(data)
}

func (h *APIHandler) ImportHandler(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return
	}

	result, err := h.backup.Import(data)
	if err != nil {
		if errors.Is(err, backup.ErrInvalidFormat) {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		h.log.Error("Import failed", zap.Error(err))
		http.Error(w, "Import failed", http.StatusInternalServerError)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

func (h *APIHandler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error("Failed to encode response", zap.Error(err))
	}
}

// writeServiceError maps service errors onto HTTP statuses: validation and
// precondition failures are the caller's fault, everything else is ours.
func (h *APIHandler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, portfolio.ErrStockNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, portfolio.ErrNoUnsettledTrades):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, portfolio.ErrInvalidSeedMoney),
		errors.Is(err, portfolio.ErrInvalidDivisions),
		errors.Is(err, portfolio.ErrInvalidPrice),
		errors.Is(err, portfolio.ErrInvalidQuantity),
		errors.Is(err, portfolio.ErrInvalidFee),
		errors.Is(err, portfolio.ErrInvalidSide),
		errors.Is(err, portfolio.ErrInvalidOrderType):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		h.log.Error("Request failed", zap.Error(err))
		http.Error(w, "Internal error", http.StatusInternalServerError)
	}
}

func (h *APIHandler) pathID(w http.ResponseWriter, r *http.Request) (uint, bool) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 32)
	if err != nil {
		http.Error(w, "Invalid id", http.StatusBadRequest)
		return 0, false
	}
	return uint(id), true
}

func (h *APIHandler) queryDate(r *http.Request, key string) (*time.Time, error) {
	value := r.URL.Query().Get(key)
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

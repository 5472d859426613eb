package inventory

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Handler wires HTTP endpoints for the inventory module.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the inventory handler.
func NewHandler(logger *slog.Logger, service *Service, validate *validator.Validate) *Handler {
	return &Handler{logger: logger, service: service, validate: validate}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/stocks", h.handleListStocks)
	r.Post("/stocks/adjust", h.handleAdjust)
	r.Post("/stocks/transfer", h.handleTransfer)
	r.Post("/stocks/reserve", h.handleReserve)
	r.Post("/stocks/release", h.handleRelease)
	r.Get("/movements", h.handleListMovements)
	r.Get("/statistics", h.handleStatistics)
}

type adjustRequest struct {
	WarehouseID int64           `json:"warehouse_id" validate:"required"`
	ProductID   int64           `json:"product_id" validate:"required"`
	Quantity    decimal.Decimal `json:"quantity" validate:"required"`
	Notes       string          `json:"notes"`
}

type transferRequest struct {
	FromWarehouseID int64           `json:"from_warehouse_id" validate:"required"`
	ToWarehouseID   int64           `json:"to_warehouse_id" validate:"required"`
	ProductID       int64           `json:"product_id" validate:"required"`
	Quantity        decimal.Decimal `json:"quantity" validate:"required"`
	Notes           string          `json:"notes"`
}

type reservationRequest struct {
	WarehouseID int64           `json:"warehouse_id" validate:"required"`
	ProductID   int64           `json:"product_id" validate:"required"`
	Quantity    decimal.Decimal `json:"quantity" validate:"required"`
}

func (h *Handler) handleAdjust(w http.ResponseWriter, r *http.Request) {
	var req adjustRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "validation_error", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "validation_error", err.Error())
		return
	}
	stock, err := h.service.Adjust(r.Context(), AdjustInput{
		WarehouseID: req.WarehouseID,
		ProductID:   req.ProductID,
		Quantity:    req.Quantity,
		Notes:       req.Notes,
		ActorID:     shared.ActorFromContext(r.Context()),
	})
	if err != nil {
		h.logger.Warn("stock adjustment failed", "error", err, "warehouse_id", req.WarehouseID, "product_id", req.ProductID)
		httpx.Error(w, err)
		return
	}
	httpx.OK(w, stock)
}

func (h *Handler) handleTransfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "validation_error", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "validation_error", err.Error())
		return
	}
	result, err := h.service.Transfer(r.Context(), TransferInput{
		FromWarehouseID: req.FromWarehouseID,
		ToWarehouseID:   req.ToWarehouseID,
		ProductID:       req.ProductID,
		Quantity:        req.Quantity,
		Notes:           req.Notes,
		ActorID:         shared.ActorFromContext(r.Context()),
	})
	if err != nil {
		h.logger.Warn("stock transfer failed", "error", err, "product_id", req.ProductID)
		httpx.Error(w, err)
		return
	}
	httpx.OK(w, result)
}

func (h *Handler) handleReserve(w http.ResponseWriter, r *http.Request) {
	h.handleReservation(w, r, h.service.Reserve)
}

func (h *Handler) handleRelease(w http.ResponseWriter, r *http.Request) {
	h.handleReservation(w, r, h.service.Release)
}

func (h *Handler) handleReservation(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, input ReservationInput) (Stock, error)) {
	var req reservationRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "validation_error", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "validation_error", err.Error())
		return
	}
	stock, err := op(r.Context(), ReservationInput{
		WarehouseID: req.WarehouseID,
		ProductID:   req.ProductID,
		Quantity:    req.Quantity,
		ActorID:     shared.ActorFromContext(r.Context()),
	})
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.OK(w, stock)
}

func (h *Handler) handleListStocks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := StockFilter{
		WarehouseID: queryInt64(q.Get("warehouse_id")),
		ProductID:   queryInt64(q.Get("product_id")),
		LowOnly:     q.Get("low") == "true",
		OutOnly:     q.Get("out") == "true",
		Page:        int(queryInt64(q.Get("page"))),
		PerPage:     int(queryInt64(q.Get("per_page"))),
	}
	stocks, pagination, err := h.service.ListStocks(r.Context(), filter)
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.OK(w, map[string]any{"stocks": stocks, "pagination": pagination})
}

func (h *Handler) handleListMovements(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := MovementFilter{
		WarehouseID: queryInt64(q.Get("warehouse_id")),
		ProductID:   queryInt64(q.Get("product_id")),
		Type:        MovementType(q.Get("movement_type")),
		Limit:       int(queryInt64(q.Get("limit"))),
	}
	if from := q.Get("from"); from != "" {
		if t, err := time.Parse(time.RFC3339, from); err == nil {
			filter.From = t
		}
	}
	if to := q.Get("to"); to != "" {
		if t, err := time.Parse(time.RFC3339, to); err == nil {
			filter.To = t
		}
	}
	movements, err := h.service.ListMovements(r.Context(), filter)
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.OK(w, movements)
}

func (h *Handler) handleStatistics(w http.ResponseWriter, r *http.Request) {
	warehouseID := queryInt64(r.URL.Query().Get("warehouse_id"))
	stats, err := h.service.Statistics(r.Context(), warehouseID)
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.OK(w, stats)
}

func queryInt64(raw string) int64 {
	if raw == "" {
		return 0
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0
	}
	return v
}

package production

import (
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

// Handler wires HTTP endpoints for the production module.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the production handler.
func NewHandler(logger *slog.Logger, service *Service, validate *validator.Validate) *Handler {
	return &Handler{logger: logger, service: service, validate: validate}
}

// MountRoutes registers production routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/boms", h.handleListBOMs)
	r.Post("/boms", h.handleCreateBOM)
	r.Get("/boms/{id}", h.handleGetBOM)
	r.Put("/boms/{id}", h.handleUpdateBOM)
	r.Get("/boms/{id}/availability", h.handleAvailability)

	r.Get("/orders", h.handleListOrders)
	r.Post("/assembly", h.handleCreateAssembly)
	r.Post("/disassembly", h.handleCreateDisassembly)
	r.Get("/orders/{id}", h.handleGetOrder)
	r.Get("/orders/{id}/phases", h.handleListPhases)
	r.Post("/orders/{id}/confirm", h.handleConfirm)
	r.Post("/orders/{id}/start", h.handleStart)
	r.Post("/orders/{id}/complete", h.handleComplete)
	r.Post("/orders/{id}/cancel", h.handleCancel)

	r.Get("/history/{productID}", h.handleHistory)
	r.Get("/statistics", h.handleStatistics)
}

type componentRequest struct {
	ProductID  int64           `json:"product_id" validate:"required"`
	Quantity   decimal.Decimal `json:"quantity" validate:"required"`
	UnitCost   decimal.Decimal `json:"unit_cost"`
	IsVariable bool            `json:"is_variable"`
}

type bomRequest struct {
	ProductID      int64              `json:"product_id"`
	Version        string             `json:"version" validate:"required"`
	IsActive       bool               `json:"is_active"`
	OutputQuantity decimal.Decimal    `json:"output_quantity"`
	LaborCost      decimal.Decimal    `json:"labor_cost"`
	OverheadCost   decimal.Decimal    `json:"overhead_cost"`
	Notes          string             `json:"notes"`
	Components     []componentRequest `json:"components" validate:"required,min=1,dive"`
}

type assemblyRequest struct {
	ProductID     int64           `json:"product_id" validate:"required"`
	Quantity      decimal.Decimal `json:"quantity" validate:"required"`
	WarehouseID   int64           `json:"warehouse_id" validate:"required"`
	ScheduledDate string          `json:"scheduled_date"`
	Notes         string          `json:"notes"`
}

type phaseComponentRequest struct {
	ProductID int64           `json:"product_id" validate:"required"`
	Quantity  decimal.Decimal `json:"quantity"`
}

type disassemblyRequest struct {
	ProductID       int64                   `json:"product_id" validate:"required"`
	Quantity        decimal.Decimal         `json:"quantity" validate:"required"`
	WarehouseID     int64                   `json:"warehouse_id" validate:"required"`
	ScheduledDate   string                  `json:"scheduled_date"`
	ParentOrderID   int64                   `json:"parent_order_id"`
	Phase           int                     `json:"phase"`
	PhaseName       string                  `json:"phase_name"`
	PhaseComponents []phaseComponentRequest `json:"phase_components" validate:"omitempty,dive"`
	Notes           string                  `json:"notes"`
}

type actualComponentRequest struct {
	ProductID int64           `json:"product_id" validate:"required"`
	Quantity  decimal.Decimal `json:"quantity"`
}

type completeRequest struct {
	ActualQuantity decimal.Decimal          `json:"actual_quantity"`
	Components     []actualComponentRequest `json:"components" validate:"omitempty,dive"`
}

func bomInput(req bomRequest, actorID int64) BOMInput {
	components := make([]ComponentInput, 0, len(req.Components))
	for _, c := range req.Components {
		components = append(components, ComponentInput{
			ProductID:  c.ProductID,
			Quantity:   c.Quantity,
			UnitCost:   c.UnitCost,
			IsVariable: c.IsVariable,
		})
	}
	return BOMInput{
		ProductID:      req.ProductID,
		Version:        req.Version,
		IsActive:       req.IsActive,
		OutputQuantity: req.OutputQuantity,
		LaborCost:      req.LaborCost,
		OverheadCost:   req.OverheadCost,
		Notes:          req.Notes,
		Components:     components,
		ActorID:        actorID,
	}
}

func (h *Handler) decodeBOM(w http.ResponseWriter, r *http.Request) (bomRequest, bool) {
	var req bomRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "validation_error", "invalid JSON body")
		return req, false
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "validation_error", err.Error())
		return req, false
	}
	return req, true
}

func (h *Handler) handleCreateBOM(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeBOM(w, r)
	if !ok {
		return
	}
	bom, err := h.service.CreateBOM(r.Context(), bomInput(req, shared.ActorFromContext(r.Context())))
	if err != nil {
		h.logger.Warn("bom create failed", "error", err)
		httpx.Error(w, err)
		return
	}
	httpx.Created(w, bom)
}

func (h *Handler) handleUpdateBOM(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeBOM(w, r)
	if !ok {
		return
	}
	bom, err := h.service.UpdateBOM(r.Context(), pathID(r, "id"), bomInput(req, shared.ActorFromContext(r.Context())))
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.OK(w, bom)
}

func (h *Handler) handleGetBOM(w http.ResponseWriter, r *http.Request) {
	bom, err := h.service.GetBOM(r.Context(), pathID(r, "id"))
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.OK(w, bom)
}

func (h *Handler) handleListBOMs(w http.ResponseWriter, r *http.Request) {
	productID := queryInt64(r.URL.Query().Get("product_id"))
	if productID == 0 {
		httpx.Fail(w, http.StatusBadRequest, "validation_error", "product_id is required")
		return
	}
	boms, err := h.service.ListBOMs(r.Context(), productID)
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.OK(w, boms)
}

func (h *Handler) handleAvailability(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	qty, err := decimal.NewFromString(q.Get("quantity"))
	if err != nil {
		httpx.Fail(w, http.StatusBadRequest, "validation_error", "quantity is required")
		return
	}
	report, err := h.service.CheckAvailability(r.Context(), pathID(r, "id"), qty, queryInt64(q.Get("warehouse_id")))
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.OK(w, report)
}

func (h *Handler) handleCreateAssembly(w http.ResponseWriter, r *http.Request) {
	var req assemblyRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "validation_error", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "validation_error", err.Error())
		return
	}
	order, err := h.service.CreateAssembly(r.Context(), AssemblyInput{
		ProductID:     req.ProductID,
		Quantity:      req.Quantity,
		WarehouseID:   req.WarehouseID,
		ScheduledDate: parseDate(req.ScheduledDate),
		Notes:         req.Notes,
		ActorID:       shared.ActorFromContext(r.Context()),
	})
	if err != nil {
		h.logger.Warn("assembly create failed", "error", err)
		httpx.Error(w, err)
		return
	}
	httpx.Created(w, order)
}

func (h *Handler) handleCreateDisassembly(w http.ResponseWriter, r *http.Request) {
	var req disassemblyRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "validation_error", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "validation_error", err.Error())
		return
	}
	phaseComponents := make([]PhaseComponent, 0, len(req.PhaseComponents))
	for _, pc := range req.PhaseComponents {
		phaseComponents = append(phaseComponents, PhaseComponent{ProductID: pc.ProductID, Quantity: pc.Quantity})
	}
	order, err := h.service.CreateDisassembly(r.Context(), DisassemblyInput{
		ProductID:       req.ProductID,
		Quantity:        req.Quantity,
		WarehouseID:     req.WarehouseID,
		ScheduledDate:   parseDate(req.ScheduledDate),
		ParentOrderID:   req.ParentOrderID,
		Phase:           req.Phase,
		PhaseName:       req.PhaseName,
		PhaseComponents: phaseComponents,
		Notes:           req.Notes,
		ActorID:         shared.ActorFromContext(r.Context()),
	})
	if err != nil {
		h.logger.Warn("disassembly create failed", "error", err)
		httpx.Error(w, err)
		return
	}
	httpx.Created(w, order)
}

func (h *Handler) handleConfirm(w http.ResponseWriter, r *http.Request) {
	order, err := h.service.Confirm(r.Context(), pathID(r, "id"), shared.ActorFromContext(r.Context()))
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.OK(w, order)
}

func (h *Handler) handleStart(w http.ResponseWriter, r *http.Request) {
	order, err := h.service.Start(r.Context(), pathID(r, "id"), shared.ActorFromContext(r.Context()))
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.OK(w, order)
}

func (h *Handler) handleComplete(w http.ResponseWriter, r *http.Request) {
	id := pathID(r, "id")
	var req completeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "validation_error", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "validation_error", err.Error())
		return
	}
	existing, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.Error(w, err)
		return
	}
	actuals := make([]ActualComponent, 0, len(req.Components))
	for _, c := range req.Components {
		actuals = append(actuals, ActualComponent{ProductID: c.ProductID, Quantity: c.Quantity})
	}
	actorID := shared.ActorFromContext(r.Context())
	var order Order
	if existing.Type == TypeDisassembly {
		order, err = h.service.CompleteDisassembly(r.Context(), id, actorID, actuals)
	} else {
		order, err = h.service.CompleteAssembly(r.Context(), id, actorID, req.ActualQuantity, actuals)
	}
	if err != nil {
		h.logger.Warn("order completion failed", "error", err, "order_id", id)
		httpx.Error(w, err)
		return
	}
	httpx.OK(w, order)
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	order, err := h.service.Cancel(r.Context(), pathID(r, "id"), shared.ActorFromContext(r.Context()))
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.OK(w, order)
}

func (h *Handler) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.service.Get(r.Context(), pathID(r, "id"))
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.OK(w, order)
}

func (h *Handler) handleListOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := OrderFilter{
		Type:      OrderType(q.Get("order_type")),
		Status:    OrderStatus(q.Get("status")),
		ProductID: queryInt64(q.Get("product_id")),
		Page:      int(queryInt64(q.Get("page"))),
		PerPage:   int(queryInt64(q.Get("per_page"))),
	}
	orders, pagination, err := h.service.List(r.Context(), filter)
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.OK(w, map[string]any{"orders": orders, "pagination": pagination})
}

func (h *Handler) handleListPhases(w http.ResponseWriter, r *http.Request) {
	phases, err := h.service.ListPhases(r.Context(), pathID(r, "id"))
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.OK(w, phases)
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	orders, err := h.service.History(r.Context(), pathID(r, "productID"), int(queryInt64(r.URL.Query().Get("limit"))))
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.OK(w, orders)
}

func (h *Handler) handleStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.GetStatistics(r.Context())
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.OK(w, stats)
}

func parseDate(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t
	}
	t, _ := time.Parse(time.RFC3339, raw)
	return t
}

func pathID(r *http.Request, name string) int64 {
	id, _ := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	return id
}

func queryInt64(raw string) int64 {
	v, _ := strconv.ParseInt(raw, 10, 64)
	return v
}

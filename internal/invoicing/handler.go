package invoicing

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

// Handler wires HTTP endpoints for the invoicing module.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the invoicing handler.
func NewHandler(logger *slog.Logger, service *Service, validate *validator.Validate) *Handler {
	return &Handler{logger: logger, service: service, validate: validate}
}

// MountRoutes registers invoicing routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Post("/", h.handleCreate)
	r.Get("/overdue", h.handleOverdue)
	r.Get("/dashboard", h.handleDashboard)
	r.Get("/{id}", h.handleGet)
	r.Put("/{id}", h.handleUpdate)
	r.Post("/{id}/approve", h.handleApprove)
	r.Post("/{id}/cancel", h.handleCancel)
	r.Get("/{id}/payments", h.handleListPayments)
	r.Post("/{id}/payments", h.handleAddPayment)
	r.Delete("/{id}/payments/{paymentID}", h.handleDeletePayment)
}

type itemRequest struct {
	ProductID          int64           `json:"product_id" validate:"required"`
	Quantity           decimal.Decimal `json:"quantity" validate:"required"`
	UnitPrice          decimal.Decimal `json:"unit_price"`
	DiscountPercentage decimal.Decimal `json:"discount_percentage"`
	TaxPercentage      decimal.Decimal `json:"tax_percentage"`
}

type invoiceRequest struct {
	Type               InvoiceType     `json:"invoice_type" validate:"omitempty,oneof=sales purchase"`
	ContactID          int64           `json:"contact_id"`
	WarehouseID        int64           `json:"warehouse_id"`
	InvoiceDate        string          `json:"invoice_date"`
	PaymentTerms       PaymentTerms    `json:"payment_terms" validate:"omitempty,oneof=immediate net_15 net_30 net_45 net_60 net_90"`
	DiscountPercentage decimal.Decimal `json:"discount_percentage"`
	TaxPercentage      decimal.Decimal `json:"tax_percentage"`
	ShippingCost       decimal.Decimal `json:"shipping_cost"`
	Notes              string          `json:"notes"`
	Items              []itemRequest   `json:"items" validate:"required,min=1,dive"`
}

type paymentRequest struct {
	Amount      decimal.Decimal `json:"amount" validate:"required"`
	Method      string          `json:"method" validate:"required"`
	PaymentDate string          `json:"payment_date"`
	Reference   string          `json:"reference"`
	Notes       string          `json:"notes"`
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

func itemInputs(items []itemRequest) []ItemInput {
	out := make([]ItemInput, 0, len(items))
	for _, item := range items {
		out = append(out, ItemInput{
			ProductID:          item.ProductID,
			Quantity:           item.Quantity,
			UnitPrice:          item.UnitPrice,
			DiscountPercentage: item.DiscountPercentage,
			TaxPercentage:      item.TaxPercentage,
		})
	}
	return out
}

func (h *Handler) decodeInvoice(w http.ResponseWriter, r *http.Request) (invoiceRequest, bool) {
	var req invoiceRequest
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

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decodeInvoice(w, r)
	if !ok {
		return
	}
	inv, err := h.service.Create(r.Context(), CreateInput{
		Type:               req.Type,
		ContactID:          req.ContactID,
		WarehouseID:        req.WarehouseID,
		InvoiceDate:        parseDate(req.InvoiceDate),
		PaymentTerms:       req.PaymentTerms,
		DiscountPercentage: req.DiscountPercentage,
		TaxPercentage:      req.TaxPercentage,
		ShippingCost:       req.ShippingCost,
		Notes:              req.Notes,
		Items:              itemInputs(req.Items),
		ActorID:            shared.ActorFromContext(r.Context()),
	})
	if err != nil {
		h.logger.Warn("invoice create failed", "error", err)
		httpx.Error(w, err)
		return
	}
	httpx.Created(w, inv)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id := pathID(r, "id")
	req, ok := h.decodeInvoice(w, r)
	if !ok {
		return
	}
	inv, err := h.service.Update(r.Context(), id, UpdateInput{
		ContactID:          req.ContactID,
		WarehouseID:        req.WarehouseID,
		InvoiceDate:        parseDate(req.InvoiceDate),
		PaymentTerms:       req.PaymentTerms,
		DiscountPercentage: req.DiscountPercentage,
		TaxPercentage:      req.TaxPercentage,
		ShippingCost:       req.ShippingCost,
		Notes:              req.Notes,
		Items:              itemInputs(req.Items),
		ActorID:            shared.ActorFromContext(r.Context()),
	})
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.OK(w, inv)
}

func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) {
	id := pathID(r, "id")
	inv, err := h.service.Approve(r.Context(), id, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.logger.Warn("invoice approval failed", "error", err, "invoice_id", id)
		httpx.Error(w, err)
		return
	}
	httpx.OK(w, inv)
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	id := pathID(r, "id")
	inv, err := h.service.Cancel(r.Context(), id, shared.ActorFromContext(r.Context()))
	if err != nil {
		h.logger.Warn("invoice cancellation failed", "error", err, "invoice_id", id)
		httpx.Error(w, err)
		return
	}
	httpx.OK(w, inv)
}

func (h *Handler) handleAddPayment(w http.ResponseWriter, r *http.Request) {
	id := pathID(r, "id")
	var req paymentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "validation_error", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "validation_error", err.Error())
		return
	}
	inv, err := h.service.AddPayment(r.Context(), id, PaymentInput{
		Amount:      req.Amount,
		Method:      req.Method,
		PaymentDate: parseDate(req.PaymentDate),
		Reference:   req.Reference,
		Notes:       req.Notes,
		ActorID:     shared.ActorFromContext(r.Context()),
	})
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.OK(w, inv)
}

func (h *Handler) handleDeletePayment(w http.ResponseWriter, r *http.Request) {
	inv, err := h.service.DeletePayment(r.Context(),
		pathID(r, "id"), pathID(r, "paymentID"), shared.ActorFromContext(r.Context()))
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.OK(w, inv)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	inv, err := h.service.Get(r.Context(), pathID(r, "id"))
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.OK(w, inv)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := Filter{
		Type:      InvoiceType(q.Get("invoice_type")),
		Status:    InvoiceStatus(q.Get("status")),
		ContactID: queryInt64(q.Get("contact_id")),
		Page:      int(queryInt64(q.Get("page"))),
		PerPage:   int(queryInt64(q.Get("per_page"))),
	}
	invoices, pagination, err := h.service.List(r.Context(), filter)
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.OK(w, map[string]any{"invoices": invoices, "pagination": pagination})
}

func (h *Handler) handleOverdue(w http.ResponseWriter, r *http.Request) {
	invoices, err := h.service.ListOverdue(r.Context())
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.OK(w, invoices)
}

func (h *Handler) handleListPayments(w http.ResponseWriter, r *http.Request) {
	payments, err := h.service.ListPayments(r.Context(), pathID(r, "id"))
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.OK(w, payments)
}

func (h *Handler) handleDashboard(w http.ResponseWriter, r *http.Request) {
	totals, err := h.service.Dashboard(r.Context())
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.OK(w, totals)
}

func pathID(r *http.Request, name string) int64 {
	id, _ := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	return id
}

func queryInt64(raw string) int64 {
	v, _ := strconv.ParseInt(raw, 10, 64)
	return v
}

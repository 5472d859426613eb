package contacts

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/masterdata/shared"
	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
)

type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

func NewHandler(logger *slog.Logger, service *Service, validate *validator.Validate) *Handler {
	return &Handler{logger: logger, service: service, validate: validate}
}

// MountRoutes registers contact routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Post("/", h.handleCreate)
	r.Get("/{id}", h.handleGet)
	r.Put("/{id}", h.handleUpdate)
	r.Delete("/{id}", h.handleDelete)
	r.Get("/{id}/credit-check", h.handleCreditCheck)
}

type contactRequest struct {
	Code        string          `json:"code" validate:"required"`
	Name        string          `json:"name" validate:"required"`
	ContactType string          `json:"contact_type" validate:"required,oneof=customer supplier both"`
	Email       string          `json:"email" validate:"omitempty,email"`
	Phone       string          `json:"phone"`
	Address     string          `json:"address"`
	CreditLimit decimal.Decimal `json:"credit_limit"`
	IsActive    *bool           `json:"is_active"`
}

func (req contactRequest) toContact() Contact {
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	return Contact{
		Code:        req.Code,
		Name:        req.Name,
		ContactType: ContactType(req.ContactType),
		Email:       req.Email,
		Phone:       req.Phone,
		Address:     req.Address,
		CreditLimit: req.CreditLimit,
		IsActive:    active,
	}
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))
	filters := shared.ListFilters{
		Page:        page,
		Limit:       limit,
		Search:      q.Get("search"),
		ContactType: q.Get("contact_type"),
	}
	if q.Get("is_active") != "" {
		isActive := q.Get("is_active") == "true"
		filters.IsActive = &isActive
	}
	items, total, err := h.service.List(r.Context(), filters)
	if err != nil {
		h.logger.Error("list contacts failed", "error", err)
		httpx.Error(w, err)
		return
	}
	httpx.OK(w, map[string]any{"contacts": items, "total": total})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Fail(w, http.StatusBadRequest, "validation_error", "invalid contact id")
		return
	}
	contact, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.OK(w, contact)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req contactRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "validation_error", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "validation_error", err.Error())
		return
	}
	created, err := h.service.Create(r.Context(), req.toContact())
	if err != nil {
		h.logger.Warn("create contact failed", "error", err, "code", req.Code)
		httpx.Error(w, err)
		return
	}
	httpx.Created(w, created)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Fail(w, http.StatusBadRequest, "validation_error", "invalid contact id")
		return
	}
	var req contactRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "validation_error", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "validation_error", err.Error())
		return
	}
	if err := h.service.Update(r.Context(), id, req.toContact()); err != nil {
		httpx.Error(w, err)
		return
	}
	contact, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.OK(w, contact)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Fail(w, http.StatusBadRequest, "validation_error", "invalid contact id")
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.NoContent(w)
}

func (h *Handler) handleCreditCheck(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Fail(w, http.StatusBadRequest, "validation_error", "invalid contact id")
		return
	}
	amount := decimal.Zero
	if raw := r.URL.Query().Get("amount"); raw != "" {
		amount, err = decimal.NewFromString(raw)
		if err != nil {
			httpx.Fail(w, http.StatusBadRequest, "validation_error", "invalid amount")
			return
		}
	}
	check, err := h.service.CheckCredit(r.Context(), id, amount)
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.OK(w, check)
}

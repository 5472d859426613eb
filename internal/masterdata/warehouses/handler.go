package warehouses

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

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

// MountRoutes registers warehouse routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Post("/", h.handleCreate)
	r.Get("/{id}", h.handleGet)
	r.Put("/{id}", h.handleUpdate)
	r.Delete("/{id}", h.handleDelete)
	r.Post("/{id}/default", h.handleSetDefault)
}

type warehouseRequest struct {
	Code      string `json:"code" validate:"required"`
	Name      string `json:"name" validate:"required"`
	Address   string `json:"address"`
	IsDefault bool   `json:"is_default"`
	IsActive  *bool  `json:"is_active"`
}

func (req warehouseRequest) toWarehouse() Warehouse {
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	return Warehouse{
		Code:      req.Code,
		Name:      req.Name,
		Address:   req.Address,
		IsDefault: req.IsDefault,
		IsActive:  active,
	}
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))
	filters := shared.ListFilters{
		Page:   page,
		Limit:  limit,
		Search: q.Get("search"),
	}
	if q.Get("is_active") != "" {
		isActive := q.Get("is_active") == "true"
		filters.IsActive = &isActive
	}
	items, total, err := h.service.List(r.Context(), filters)
	if err != nil {
		h.logger.Error("list warehouses failed", "error", err)
		httpx.Error(w, err)
		return
	}
	httpx.OK(w, map[string]any{"warehouses": items, "total": total})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Fail(w, http.StatusBadRequest, "validation_error", "invalid warehouse id")
		return
	}
	warehouse, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.OK(w, warehouse)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req warehouseRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "validation_error", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "validation_error", err.Error())
		return
	}
	created, err := h.service.Create(r.Context(), req.toWarehouse())
	if err != nil {
		h.logger.Warn("create warehouse failed", "error", err, "code", req.Code)
		httpx.Error(w, err)
		return
	}
	httpx.Created(w, created)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Fail(w, http.StatusBadRequest, "validation_error", "invalid warehouse id")
		return
	}
	var req warehouseRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "validation_error", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Fail(w, http.StatusBadRequest, "validation_error", err.Error())
		return
	}
	if err := h.service.Update(r.Context(), id, req.toWarehouse()); err != nil {
		httpx.Error(w, err)
		return
	}
	warehouse, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.OK(w, warehouse)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Fail(w, http.StatusBadRequest, "validation_error", "invalid warehouse id")
		return
	}
	if err := h.service.Delete(r.Context(), id); err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.NoContent(w)
}

func (h *Handler) handleSetDefault(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Fail(w, http.StatusBadRequest, "validation_error", "invalid warehouse id")
		return
	}
	warehouse, err := h.service.SetDefault(r.Context(), id)
	if err != nil {
		httpx.Error(w, err)
		return
	}
	httpx.OK(w, warehouse)
}

package admin

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/bundleworks/bundle-api/internal/bundle"
	"github.com/bundleworks/bundle-api/internal/common"
	"github.com/bundleworks/bundle-api/internal/store"
)

// Store is the persistence surface the admin API needs.
type Store interface {
	Get(ctx context.Context, shop, id string) (bundle.Bundle, error)
	List(ctx context.Context, shop string, limit, offset int) ([]bundle.Bundle, int, error)
	Create(ctx context.Context, b bundle.Bundle) (bundle.Bundle, error)
	Update(ctx context.Context, b bundle.Bundle) (bundle.Bundle, error)
	Delete(ctx context.Context, shop, id string) error
	SetStatus(ctx context.Context, shop, id string, status bundle.Status) error
	Duplicate(ctx context.Context, shop, id string) (bundle.Bundle, error)
}

// Handler exposes merchant-facing bundle management endpoints.
type Handler struct {
	Store           Store
	Validate        *validator.Validate
	DefaultPageSize int
	MaxPageSize     int
}

// Routes registers the bundle management endpoints on the router. Every
// mutating endpoint is wrapped with idem when non-nil.
func (h *Handler) Routes(r chi.Router, idem func(http.Handler) http.Handler) {
	if idem == nil {
		idem = func(next http.Handler) http.Handler { return next }
	}
	r.Get("/", h.List)
	r.With(idem).Post("/", h.Create)
	r.Post("/preview", h.Preview)
	r.Get("/{id}", h.Get)
	r.With(idem).Put("/{id}", h.Update)
	r.With(idem).Delete("/{id}", h.Delete)
	r.With(idem).Post("/{id}/duplicate", h.Duplicate)
	r.Post("/{id}/preview", h.PreviewByID)
	r.With(idem).Patch("/{id}/status", h.SetStatus)
}

// List handles GET /bundles.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	shop, ok := common.Shop(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing session", nil)
		return
	}
	perDefault := h.DefaultPageSize
	if perDefault <= 0 {
		perDefault = 20
	}
	page, perPage := common.ParsePagination(r, perDefault)
	if h.MaxPageSize > 0 && perPage > h.MaxPageSize {
		perPage = h.MaxPageSize
	}
	bundles, total, err := h.Store.List(r.Context(), shop, perPage, (page-1)*perPage)
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.Header().Set("X-Total-Count", strconv.Itoa(total))
	common.JSON(w, http.StatusOK, map[string]any{
		"data":       bundles,
		"pagination": common.Pagination{Page: page, PerPage: perPage, TotalItems: total},
	})
}

// Get handles GET /bundles/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	shop, ok := common.Shop(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing session", nil)
		return
	}
	b, err := h.Store.Get(r.Context(), shop, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": b})
}

// Create handles POST /bundles.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	shop, ok := common.Shop(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing session", nil)
		return
	}
	payload, ok := h.decodePayload(w, r)
	if !ok {
		return
	}
	b := payload.toBundle(shop, "")
	if result := bundle.ValidateConfig(b); !result.Valid {
		common.JSONError(w, http.StatusUnprocessableEntity, "VALIDATION_FAILED", "bundle configuration is invalid", result.Errors)
		return
	}
	created, err := h.Store.Create(r.Context(), b)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": created})
}

// Update handles PUT /bundles/{id}.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	shop, ok := common.Shop(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing session", nil)
		return
	}
	payload, ok := h.decodePayload(w, r)
	if !ok {
		return
	}
	b := payload.toBundle(shop, chi.URLParam(r, "id"))
	if result := bundle.ValidateConfig(b); !result.Valid {
		common.JSONError(w, http.StatusUnprocessableEntity, "VALIDATION_FAILED", "bundle configuration is invalid", result.Errors)
		return
	}
	updated, err := h.Store.Update(r.Context(), b)
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": updated})
}

// Delete handles DELETE /bundles/{id}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	shop, ok := common.Shop(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing session", nil)
		return
	}
	if err := h.Store.Delete(r.Context(), shop, chi.URLParam(r, "id")); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Duplicate handles POST /bundles/{id}/duplicate. The copy is created as a
// draft regardless of the source bundle's status.
func (h *Handler) Duplicate(w http.ResponseWriter, r *http.Request) {
	shop, ok := common.Shop(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing session", nil)
		return
	}
	dup, err := h.Store.Duplicate(r.Context(), shop, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{"data": dup})
}

// SetStatus handles PATCH /bundles/{id}/status.
func (h *Handler) SetStatus(w http.ResponseWriter, r *http.Request) {
	shop, ok := common.Shop(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing session", nil)
		return
	}
	var payload statusPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	if err := h.validate(payload); err != nil {
		common.JSONError(w, http.StatusUnprocessableEntity, "VALIDATION_FAILED", "invalid status", fieldErrors(err))
		return
	}
	if err := h.Store.SetStatus(r.Context(), shop, chi.URLParam(r, "id"), bundle.Status(payload.Status)); err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": map[string]string{"status": payload.Status}})
}

// Preview handles POST /bundles/preview: prices a candidate configuration
// against a sample selection without persisting anything.
func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	shop, ok := common.Shop(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing session", nil)
		return
	}
	var payload previewPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	if err := h.validate(payload); err != nil {
		common.JSONError(w, http.StatusUnprocessableEntity, "VALIDATION_FAILED", "invalid preview request", fieldErrors(err))
		return
	}
	b := payload.Bundle.toBundle(shop, "preview")
	result := bundle.CalculatePricing(b, payload.Selected, payload.TierID, payload.Quantity)
	validation := bundle.ValidateSelection(b, payload.Selected, payload.TierID, payload.Quantity)
	result.Valid = result.Valid && validation.Valid
	result.Errors = append(result.Errors, validation.Errors...)
	common.JSON(w, http.StatusOK, map[string]any{"data": result})
}

// PreviewByID handles POST /bundles/{id}/preview: prices a posted selection
// against a stored bundle.
func (h *Handler) PreviewByID(w http.ResponseWriter, r *http.Request) {
	shop, ok := common.Shop(r.Context())
	if !ok {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing session", nil)
		return
	}
	b, err := h.Store.Get(r.Context(), shop, chi.URLParam(r, "id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	var payload struct {
		Selected []bundle.SelectedItem `json:"selectedItems"`
		TierID   string                `json:"tierId"`
		Quantity int                   `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return
	}
	result := bundle.CalculatePricing(b, payload.Selected, payload.TierID, payload.Quantity)
	validation := bundle.ValidateSelection(b, payload.Selected, payload.TierID, payload.Quantity)
	result.Valid = result.Valid && validation.Valid
	result.Errors = append(result.Errors, validation.Errors...)
	common.JSON(w, http.StatusOK, map[string]any{"data": result})
}

func (h *Handler) decodePayload(w http.ResponseWriter, r *http.Request) (bundlePayload, bool) {
	var payload bundlePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return payload, false
	}
	if err := h.validate(payload); err != nil {
		common.JSONError(w, http.StatusUnprocessableEntity, "VALIDATION_FAILED", "bundle payload is invalid", fieldErrors(err))
		return payload, false
	}
	return payload, true
}

func (h *Handler) validate(v any) error {
	if h.Validate == nil {
		return nil
	}
	return h.Validate.Struct(v)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "bundle not found", nil)
		return
	}
	var appErr *common.AppError
	if errors.As(err, &appErr) {
		status := appErr.HTTPStatus
		if status == 0 {
			status = http.StatusInternalServerError
		}
		code := appErr.Code
		if code == "" {
			code = "INTERNAL"
		}
		common.JSONError(w, status, code, appErr.Message, appErr.Details)
		return
	}
	common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unexpected error", nil)
}

func fieldErrors(err error) []bundle.ValidationError {
	var vErrs validator.ValidationErrors
	if !errors.As(err, &vErrs) {
		return nil
	}
	out := make([]bundle.ValidationError, 0, len(vErrs))
	for _, fe := range vErrs {
		out = append(out, bundle.ValidationError{
			Field:   strings.ToLower(fe.Field()[:1]) + fe.Field()[1:],
			Message: "failed validation on " + fe.Tag(),
			Code:    "INVALID_FIELD",
		})
	}
	return out
}

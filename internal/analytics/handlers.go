package analytics

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bundleworks/bundle-api/internal/common"
)

// Handler exposes analytics read endpoints.
type Handler struct {
	Svc *Service
}

// Routes registers the analytics endpoints on the router.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/overview", h.Overview)
	r.Get("/bundles", h.Bundles)
	r.Get("/export", h.Export)
}

// Overview returns shop-wide engagement metrics for the requested range.
func (h *Handler) Overview(w http.ResponseWriter, r *http.Request) {
	shop, from, to, ok := h.parseRange(w, r)
	if !ok {
		return
	}
	report, err := h.Svc.Overview(r.Context(), shop, from, to)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to load analytics", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": report})
}

// Bundles returns per-bundle rollups for the requested range.
func (h *Handler) Bundles(w http.ResponseWriter, r *http.Request) {
	shop, from, to, ok := h.parseRange(w, r)
	if !ok {
		return
	}
	reports, err := h.Svc.Bundles(r.Context(), shop, from, to)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to load analytics", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": reports})
}

// Export streams the per-bundle rollup as a CSV download.
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	shop, from, to, ok := h.parseRange(w, r)
	if !ok {
		return
	}
	reports, err := h.Svc.Bundles(r.Context(), shop, from, to)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to load analytics", nil)
		return
	}

	filename := fmt.Sprintf("bundles-%s-%s.csv", from.Format("2006-01-02"), to.Format("2006-01-02"))
	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="`+filename+`"`)

	writer := csv.NewWriter(w)
	_ = writer.Write([]string{"bundle_id", "title", "views", "adds_to_cart", "revenue", "conversion_rate"})
	for _, report := range reports {
		_ = writer.Write([]string{
			report.BundleID,
			report.Title,
			fmt.Sprint(report.Views),
			fmt.Sprint(report.AddsToCart),
			report.Revenue.StringFixed(2),
			report.ConversionRate.StringFixed(2),
		})
	}
	writer.Flush()
}

func (h *Handler) parseRange(w http.ResponseWriter, r *http.Request) (shop string, from, to time.Time, ok bool) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "ANALYTICS_NOT_CONFIGURED", "analytics service not configured", nil)
		return "", time.Time{}, time.Time{}, false
	}
	shop, found := common.Shop(r.Context())
	if !found {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing session", nil)
		return "", time.Time{}, time.Time{}, false
	}
	query := r.URL.Query()
	fromStr := query.Get("from")
	toStr := query.Get("to")
	now := h.Svc.now()

	if fromStr != "" && toStr != "" {
		var err error
		from, err = time.Parse(time.RFC3339, fromStr)
		if err != nil {
			common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid from date", nil)
			return "", time.Time{}, time.Time{}, false
		}
		to, err = time.Parse(time.RFC3339, toStr)
		if err != nil {
			common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid to date", nil)
			return "", time.Time{}, time.Time{}, false
		}
	} else {
		days := h.Svc.DefaultRange
		if days <= 0 {
			days = 30
		}
		if raw := query.Get("days"); raw != "" {
			parsed := common.AtoiDefault(raw, days)
			if parsed > 0 {
				days = parsed
			}
		}
		to = now
		from = to.AddDate(0, 0, -days)
	}
	if !from.Before(to) {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "from must be before to", nil)
		return "", time.Time{}, time.Time{}, false
	}
	return shop, from, to, true
}

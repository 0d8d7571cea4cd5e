// Package storefront serves the public app-proxy endpoints used by the
// shop theme: bundle display, live pricing, and cart validation.
package storefront

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/bundleworks/bundle-api/internal/bundle"
	"github.com/bundleworks/bundle-api/internal/cache"
	"github.com/bundleworks/bundle-api/internal/common"
	"github.com/bundleworks/bundle-api/internal/inventory"
	"github.com/bundleworks/bundle-api/internal/obs"
	"github.com/bundleworks/bundle-api/internal/store"
	"github.com/bundleworks/bundle-api/internal/track"
)

// BundleGetter loads a bundle for a shop.
type BundleGetter interface {
	Get(ctx context.Context, shop, id string) (bundle.Bundle, error)
}

// Handler exposes the storefront endpoints.
type Handler struct {
	Store     BundleGetter
	Inventory inventory.Lookup
	Track     track.Enqueuer
	Cache     *redis.Client
	CacheTTL  time.Duration
	Currency  string
	Logger    zerolog.Logger
	Now       func() time.Time
}

type selectionPayload struct {
	Selected []bundle.SelectedItem `json:"selectedItems"`
	TierID   string                `json:"tierId"`
	Quantity int                   `json:"quantity"`
}

// Routes registers the storefront endpoints on the router.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/{id}", h.Display)
	r.Post("/{id}/price", h.Price)
	r.Post("/{id}/validate", h.Validate)
	r.Post("/{id}/cart", h.Cart)
}

// Display handles GET /{id}. Only active bundles inside their schedule
// window are served; everything else is a 404 so the theme falls back to
// regular product rendering.
func (h *Handler) Display(w http.ResponseWriter, r *http.Request) {
	shop, ok := h.shopFromRequest(w, r)
	if !ok {
		return
	}
	ctx := common.WithShop(r.Context(), shop)
	id := chi.URLParam(r, "id")

	if payload, ok := h.cachedDisplay(ctx, id); ok {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(payload)
		h.trackEvent(ctx, id, shop, track.EventView, bundle.PricingResult{})
		return
	}

	b, err := h.loadServableBundle(ctx, shop, id)
	if err != nil {
		h.writeLoadError(w, err)
		return
	}

	body, err := json.Marshal(map[string]any{"data": b, "currency": h.currency()})
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unexpected error", nil)
		return
	}
	h.storeDisplay(ctx, id, body)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
	h.trackEvent(ctx, id, shop, track.EventView, bundle.PricingResult{})
}

// Price handles POST /{id}/price.
func (h *Handler) Price(w http.ResponseWriter, r *http.Request) {
	shop, ok := h.shopFromRequest(w, r)
	if !ok {
		return
	}
	b, payload, ok := h.loadBundleAndSelection(w, r, shop)
	if !ok {
		return
	}
	result := h.price(b, payload)
	common.JSON(w, http.StatusOK, map[string]any{"data": result})
}

// Validate handles POST /{id}/validate: selection-time validation without
// touching inventory.
func (h *Handler) Validate(w http.ResponseWriter, r *http.Request) {
	shop, ok := h.shopFromRequest(w, r)
	if !ok {
		return
	}
	b, payload, ok := h.loadBundleAndSelection(w, r, shop)
	if !ok {
		return
	}
	result := bundle.ValidateSelection(b, payload.Selected, payload.TierID, payload.Quantity)
	h.recordValidation("selection", result)
	common.JSON(w, http.StatusOK, map[string]any{"data": result})
}

// Cart handles POST /{id}/cart: full checkout validation including live
// inventory, returning the line items the theme should add to the cart.
func (h *Handler) Cart(w http.ResponseWriter, r *http.Request) {
	shop, ok := h.shopFromRequest(w, r)
	if !ok {
		return
	}
	b, payload, ok := h.loadBundleAndSelection(w, r, shop)
	if !ok {
		return
	}

	stock, err := h.lookupStock(r.Context(), shop, payload.Selected)
	if err != nil {
		h.Logger.Warn().Err(err).Str("bundle_id", b.ID).Msg("inventory_unavailable")
		common.JSONError(w, http.StatusServiceUnavailable, "INVENTORY_UNAVAILABLE", "inventory could not be verified, try again", nil)
		return
	}

	validation := bundle.ValidateCheckout(b, payload.Selected, payload.TierID, payload.Quantity, stock)
	h.recordValidation("checkout", validation)
	pricing := h.price(b, payload)

	if !validation.Valid {
		common.JSON(w, http.StatusUnprocessableEntity, map[string]any{
			"data": map[string]any{"validation": validation, "pricing": pricing},
		})
		return
	}

	h.trackEvent(common.WithShop(r.Context(), shop), b.ID, shop, track.EventAddToCart, pricing)
	common.JSON(w, http.StatusOK, map[string]any{
		"data": map[string]any{
			"validation": validation,
			"pricing":    pricing,
			"lineItems":  cartLines(b, payload.Selected, pricing),
		},
	})
}

// cartLine is the shape the theme forwards to the platform cart API.
type cartLine struct {
	VariantID  string            `json:"variantId"`
	Quantity   int               `json:"quantity"`
	Properties map[string]string `json:"properties"`
}

func cartLines(b bundle.Bundle, selected []bundle.SelectedItem, pricing bundle.PricingResult) []cartLine {
	lines := make([]cartLine, 0, len(selected))
	for i, sel := range selected {
		props := map[string]string{
			"_bundle_id":    b.ID,
			"_bundle_title": b.Title,
		}
		if i < len(pricing.Items) {
			props["_bundle_price"] = pricing.Items[i].DiscountedPrice.StringFixed(2)
		}
		lines = append(lines, cartLine{
			VariantID:  bundle.NormalizeID(sel.VariantID),
			Quantity:   sel.Quantity,
			Properties: props,
		})
	}
	return lines
}

func (h *Handler) price(b bundle.Bundle, payload selectionPayload) bundle.PricingResult {
	started := time.Now()
	result := bundle.CalculatePricing(b, payload.Selected, payload.TierID, payload.Quantity)
	if obs.PricingTotal != nil {
		valid := "true"
		if !result.Valid {
			valid = "false"
		}
		obs.PricingTotal.WithLabelValues(string(b.Type), valid).Inc()
	}
	if obs.PricingDuration != nil {
		obs.PricingDuration.WithLabelValues(string(b.Type)).Observe(float64(time.Since(started).Microseconds()) / 1000)
	}
	return result
}

func (h *Handler) recordValidation(scope string, result bundle.ValidationResult) {
	if result.Valid || obs.ValidationFailTotal == nil {
		return
	}
	for _, e := range result.Errors {
		obs.ValidationFailTotal.WithLabelValues(scope, e.Code).Inc()
	}
}

func (h *Handler) loadBundleAndSelection(w http.ResponseWriter, r *http.Request, shop string) (bundle.Bundle, selectionPayload, bool) {
	var payload selectionPayload
	b, err := h.loadServableBundle(r.Context(), shop, chi.URLParam(r, "id"))
	if err != nil {
		h.writeLoadError(w, err)
		return b, payload, false
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "invalid payload", nil)
		return b, payload, false
	}
	return b, payload, true
}

func (h *Handler) currency() string {
	if h.Currency == "" {
		return "EUR"
	}
	return h.Currency
}

var errNotServable = errors.New("storefront: bundle not servable")

func (h *Handler) loadServableBundle(ctx context.Context, shop, id string) (bundle.Bundle, error) {
	b, err := h.Store.Get(ctx, shop, id)
	if err != nil {
		return bundle.Bundle{}, err
	}
	now := time.Now()
	if h.Now != nil {
		now = h.Now()
	}
	if b.Status != bundle.StatusActive || !bundle.ScheduleActive(b, now) {
		return bundle.Bundle{}, errNotServable
	}
	return b, nil
}

func (h *Handler) writeLoadError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) || errors.Is(err, errNotServable) {
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "bundle not available", nil)
		return
	}
	common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "unexpected error", nil)
}

func (h *Handler) shopFromRequest(w http.ResponseWriter, r *http.Request) (string, bool) {
	shop := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("shop")))
	if shop == "" || !strings.HasSuffix(shop, ".myshopify.com") {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", "missing or invalid shop parameter", nil)
		return "", false
	}
	return shop, true
}

func (h *Handler) cachedDisplay(ctx context.Context, id string) ([]byte, bool) {
	if h.Cache == nil {
		return nil, false
	}
	payload, err := h.Cache.Get(ctx, cache.KeyBundleDisplay(ctx, id)).Bytes()
	if err != nil {
		return nil, false
	}
	return payload, true
}

func (h *Handler) storeDisplay(ctx context.Context, id string, payload []byte) {
	if h.Cache == nil {
		return
	}
	ttl := h.CacheTTL
	if ttl <= 0 {
		ttl = time.Minute
	}
	if err := h.Cache.Set(ctx, cache.KeyBundleDisplay(ctx, id), payload, ttl).Err(); err != nil {
		h.Logger.Warn().Err(err).Msg("display_cache_write_failed")
	}
}

func (h *Handler) trackEvent(ctx context.Context, bundleID, shop, kind string, pricing bundle.PricingResult) {
	if h.Track == nil {
		return
	}
	e := track.Event{BundleID: bundleID, Shop: shop, Kind: kind}
	if kind == track.EventAddToCart {
		e.Revenue = pricing.DiscountedPrice
	}
	if err := h.Track.Enqueue(ctx, e); err != nil {
		h.Logger.Warn().Err(err).Str("bundle_id", bundleID).Msg("track_enqueue_failed")
	}
}

func (h *Handler) lookupStock(ctx context.Context, shop string, selected []bundle.SelectedItem) (map[string]bundle.StockLevel, error) {
	if h.Inventory == nil {
		return nil, nil
	}
	ids := make([]string, 0, len(selected))
	seen := make(map[string]struct{}, len(selected))
	for _, sel := range selected {
		id := sel.VariantID
		if id == "" {
			id = sel.ProductID
		}
		normalized := bundle.NormalizeID(id)
		if _, dup := seen[normalized]; dup {
			continue
		}
		seen[normalized] = struct{}{}
		ids = append(ids, normalized)
	}
	return h.Inventory.Levels(ctx, shop, ids)
}

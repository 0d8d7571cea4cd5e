package admin

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/bundleworks/bundle-api/internal/bundle"
	"github.com/bundleworks/bundle-api/internal/common"
	"github.com/bundleworks/bundle-api/internal/store"
)

type fakeStore struct {
	bundles   map[string]bundle.Bundle
	created   []bundle.Bundle
	createErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{bundles: map[string]bundle.Bundle{}}
}

func (f *fakeStore) Get(_ context.Context, shop, id string) (bundle.Bundle, error) {
	b, ok := f.bundles[id]
	if !ok || b.Shop != shop {
		return bundle.Bundle{}, store.ErrNotFound
	}
	return b, nil
}

func (f *fakeStore) List(_ context.Context, shop string, limit, offset int) ([]bundle.Bundle, int, error) {
	var out []bundle.Bundle
	for _, b := range f.bundles {
		if b.Shop == shop {
			out = append(out, b)
		}
	}
	return out, len(out), nil
}

func (f *fakeStore) Create(_ context.Context, b bundle.Bundle) (bundle.Bundle, error) {
	if f.createErr != nil {
		return bundle.Bundle{}, f.createErr
	}
	b.ID = "new-id"
	f.bundles[b.ID] = b
	f.created = append(f.created, b)
	return b, nil
}

func (f *fakeStore) Update(_ context.Context, b bundle.Bundle) (bundle.Bundle, error) {
	if _, ok := f.bundles[b.ID]; !ok {
		return bundle.Bundle{}, store.ErrNotFound
	}
	f.bundles[b.ID] = b
	return b, nil
}

func (f *fakeStore) Delete(_ context.Context, shop, id string) error {
	if _, ok := f.bundles[id]; !ok {
		return store.ErrNotFound
	}
	delete(f.bundles, id)
	return nil
}

func (f *fakeStore) SetStatus(_ context.Context, shop, id string, status bundle.Status) error {
	b, ok := f.bundles[id]
	if !ok {
		return store.ErrNotFound
	}
	b.Status = status
	f.bundles[id] = b
	return nil
}

func (f *fakeStore) Duplicate(_ context.Context, shop, id string) (bundle.Bundle, error) {
	src, ok := f.bundles[id]
	if !ok {
		return bundle.Bundle{}, store.ErrNotFound
	}
	src.ID = "copy-id"
	src.Title = src.Title + " (copy)"
	src.Status = bundle.StatusDraft
	f.bundles[src.ID] = src
	return src, nil
}

func newHandler(fs *fakeStore) *Handler {
	return &Handler{
		Store:           fs,
		Validate:        validator.New(),
		DefaultPageSize: 20,
		MaxPageSize:     100,
	}
}

func newRequest(t *testing.T, method, target string, body any, params map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	req = req.WithContext(common.WithShop(req.Context(), "demo-shop.myshopify.com"))
	if len(params) > 0 {
		rctx := chi.NewRouteContext()
		for k, v := range params {
			rctx.URLParams.Add(k, v)
		}
		req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
	}
	return req
}

func fixedBundlePayload() map[string]any {
	return map[string]any{
		"title": "Starter Kit",
		"type":  "fixed",
		"price": "49.99",
		"items": []map[string]any{
			{"productId": "111", "quantity": 1, "originalPrice": "30.00"},
			{"productId": "222", "quantity": 1, "originalPrice": "25.00"},
		},
	}
}

func TestCreateBundle(t *testing.T) {
	fs := newFakeStore()
	h := newHandler(fs)

	rr := httptest.NewRecorder()
	h.Create(rr, newRequest(t, http.MethodPost, "/bundles", fixedBundlePayload(), nil))

	require.Equal(t, http.StatusCreated, rr.Code)
	require.Len(t, fs.created, 1)
	require.Equal(t, "demo-shop.myshopify.com", fs.created[0].Shop)
	require.Equal(t, bundle.StatusDraft, fs.created[0].Status)
}

func TestCreateBundleRejectsBadType(t *testing.T) {
	h := newHandler(newFakeStore())
	payload := fixedBundlePayload()
	payload["type"] = "bogo"

	rr := httptest.NewRecorder()
	h.Create(rr, newRequest(t, http.MethodPost, "/bundles", payload, nil))

	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
}

func TestCreateBundleRejectsInvalidConfig(t *testing.T) {
	h := newHandler(newFakeStore())
	payload := map[string]any{
		"title": "Empty Fixed",
		"type":  "fixed",
		"price": "10.00",
	}

	rr := httptest.NewRecorder()
	h.Create(rr, newRequest(t, http.MethodPost, "/bundles", payload, nil))

	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
	var body struct {
		Error struct {
			Code    string                   `json:"code"`
			Details []bundle.ValidationError `json:"details"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, "VALIDATION_FAILED", body.Error.Code)
	require.NotEmpty(t, body.Error.Details)
}

func TestCreateBundlePropagatesAppError(t *testing.T) {
	fs := newFakeStore()
	fs.createErr = common.NewAppError("STORE_UNAVAILABLE", "bundle storage unavailable", http.StatusServiceUnavailable, nil)
	h := newHandler(fs)

	rr := httptest.NewRecorder()
	h.Create(rr, newRequest(t, http.MethodPost, "/bundles", fixedBundlePayload(), nil))

	require.Equal(t, http.StatusServiceUnavailable, rr.Code)
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, "STORE_UNAVAILABLE", body.Error.Code)
}

func TestGetBundleNotFound(t *testing.T) {
	h := newHandler(newFakeStore())

	rr := httptest.NewRecorder()
	h.Get(rr, newRequest(t, http.MethodGet, "/bundles/missing", nil, map[string]string{"id": "missing"}))

	require.Equal(t, http.StatusNotFound, rr.Code)
}

func TestSetStatus(t *testing.T) {
	fs := newFakeStore()
	fs.bundles["b1"] = bundle.Bundle{ID: "b1", Shop: "demo-shop.myshopify.com", Status: bundle.StatusDraft}
	h := newHandler(fs)

	rr := httptest.NewRecorder()
	h.SetStatus(rr, newRequest(t, http.MethodPost, "/bundles/b1/status", map[string]string{"status": "active"}, map[string]string{"id": "b1"}))

	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, bundle.StatusActive, fs.bundles["b1"].Status)
}

func TestDuplicateResetsStatus(t *testing.T) {
	fs := newFakeStore()
	fs.bundles["b1"] = bundle.Bundle{ID: "b1", Shop: "demo-shop.myshopify.com", Title: "Kit", Status: bundle.StatusActive}
	h := newHandler(fs)

	rr := httptest.NewRecorder()
	h.Duplicate(rr, newRequest(t, http.MethodPost, "/bundles/b1/duplicate", nil, map[string]string{"id": "b1"}))

	require.Equal(t, http.StatusCreated, rr.Code)
	require.Equal(t, bundle.StatusDraft, fs.bundles["copy-id"].Status)
	require.Equal(t, "Kit (copy)", fs.bundles["copy-id"].Title)
}

func TestPreviewPricesSelection(t *testing.T) {
	h := newHandler(newFakeStore())
	payload := map[string]any{
		"bundle": fixedBundlePayload(),
		"selectedItems": []map[string]any{
			{"productId": "111", "quantity": 1, "price": "30.00"},
			{"productId": "222", "quantity": 1, "price": "25.00"},
		},
	}

	rr := httptest.NewRecorder()
	h.Preview(rr, newRequest(t, http.MethodPost, "/bundles/preview", payload, nil))

	require.Equal(t, http.StatusOK, rr.Code)
	var body struct {
		Data bundle.PricingResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.True(t, body.Data.Valid)
	require.True(t, body.Data.DiscountedPrice.Equal(decimal.RequireFromString("49.99")))
	require.True(t, body.Data.OriginalPrice.Equal(decimal.RequireFromString("55.00")))
}

func TestRoutesServeRegisteredEndpoints(t *testing.T) {
	fs := newFakeStore()
	fs.bundles["b1"] = bundle.Bundle{ID: "b1", Shop: "demo-shop.myshopify.com", Status: bundle.StatusDraft}
	h := newHandler(fs)

	r := chi.NewRouter()
	r.Route("/bundles", func(b chi.Router) { h.Routes(b, nil) })

	req := newRequest(t, http.MethodPatch, "/bundles/b1/status", map[string]string{"status": "active"}, nil)
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	require.Equal(t, bundle.StatusActive, fs.bundles["b1"].Status)
}

func TestPreviewResolvesClientTierIDs(t *testing.T) {
	h := newHandler(newFakeStore())
	payload := map[string]any{
		"bundle": map[string]any{
			"title": "Gift Box",
			"type":  "tiered",
			"tiers": []map[string]any{
				{"id": "t1", "name": "Small", "price": "25.00", "productCount": 2},
			},
		},
		"selectedItems": []map[string]any{
			{"productId": "111", "quantity": 1, "price": "15.00"},
			{"productId": "222", "quantity": 1, "price": "15.00"},
		},
		"tierId": "t1",
	}

	rr := httptest.NewRecorder()
	h.Preview(rr, newRequest(t, http.MethodPost, "/bundles/preview", payload, nil))

	require.Equal(t, http.StatusOK, rr.Code)
	var body struct {
		Data bundle.PricingResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.True(t, body.Data.Valid, "errors: %+v", body.Data.Errors)
	require.True(t, body.Data.DiscountedPrice.Equal(decimal.RequireFromString("25.00")))
}

func TestMissingSessionRejected(t *testing.T) {
	h := newHandler(newFakeStore())

	req := httptest.NewRequest(http.MethodGet, "/bundles", nil)
	rr := httptest.NewRecorder()
	h.List(rr, req)

	require.Equal(t, http.StatusUnauthorized, rr.Code)
}

package cart_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-ledger/internal/cart"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

func newRouter(f *fixture) http.Handler {
	h := cart.NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), f.service)
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			id, _ := strconv.ParseInt(req.Header.Get("X-Actor-ID"), 10, 64)
			ctx := shared.ContextWithRequestInfo(req.Context(), shared.RequestInfo{ActorID: id})
			next.ServeHTTP(w, req.WithContext(ctx))
		})
	})
	r.Route("/api/cart", h.MountRoutes)
	return r
}

func send(t *testing.T, router http.Handler, method, path, actor string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	if actor != "" {
		req.Header.Set("X-Actor-ID", actor)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestCartEndpointsNeedActor(t *testing.T) {
	f := newFixture(t)
	rec := send(t, newRouter(f), http.MethodGet, "/api/cart/", "", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCartEndpointsFlow(t *testing.T) {
	f := newFixture(t)
	router := newRouter(f)

	rec := send(t, router, http.MethodPost, "/api/cart/add", "5", map[string]any{"product_id": f.a.ID, "qty": 3})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var c cart.Cart
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &c))
	require.Len(t, c.Items, 1)
	require.Equal(t, "110.7", c.Total.String())

	path := "/api/cart/items/" + strconv.FormatInt(c.Items[0].ID, 10)
	rec = send(t, router, http.MethodPut, path, "5", map[string]any{"qty": 2})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = send(t, router, http.MethodPut, path, "6", map[string]any{"qty": 1})
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = send(t, router, http.MethodPost, "/api/cart/add", "5", map[string]any{"product_id": f.b.ID, "qty": 2})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = send(t, router, http.MethodPost, "/api/cart/checkout", "5", map[string]any{
		"buyer_name":     "Jan Kowalski",
		"payment_method": "cod",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Equal(t, 6, f.store.Product(f.a.ID).StockQuantity)

	rec = send(t, router, http.MethodGet, "/api/cart/", "5", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &c))
	require.Empty(t, c.Items)
}

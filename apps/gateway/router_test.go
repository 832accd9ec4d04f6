package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-storefront/apps/gateway/middleware"
	ordermodel "go-storefront/apps/order/model"
	"go-storefront/apps/user"
	usermodel "go-storefront/apps/user/model"
	"go-storefront/pkg/jwt"
	"go-storefront/pkg/testutil"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	dir, err := os.MkdirTemp("", "sentinel")
	if err == nil {
		os.Setenv("SENTINEL_LOG_DIR", dir)
	}
	if err := middleware.InitSentinel(nil); err != nil {
		panic(err)
	}
	code := m.Run()
	os.RemoveAll(dir)
	os.Exit(code)
}

type recordedEvent struct {
	key   string
	event any
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (p *recordingPublisher) Publish(_ context.Context, key string, event any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, recordedEvent{key, event})
	return nil
}

func (p *recordingPublisher) keys() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.key)
	}
	return out
}

type harness struct {
	t       *testing.T
	srv     *server
	engine  *gin.Engine
	events  *recordingPublisher
	cookies []*http.Cookie
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db := testutil.DB(t)
	rdb, _ := testutil.Redis(t)
	root := t.TempDir()
	events := &recordingPublisher{}
	srv := newServer(deps{
		DB:        db,
		Redis:     rdb,
		Tokens:    jwt.NewManager("test-secret", time.Hour, "storefront"),
		Events:    events,
		Media:     user.NewLocalStorage(root),
		MediaRoot: root,
		MediaURL:  "/media/",
	})
	return &harness{t: t, srv: srv, engine: srv.router("storefront-test"), events: events}
}

func (h *harness) do(method, path string, body any, token string) *httptest.ResponseRecorder {
	h.t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(h.t, err)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return h.send(req, token)
}

func (h *harness) send(req *http.Request, token string) *httptest.ResponseRecorder {
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for _, c := range h.cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	h.engine.ServeHTTP(w, req)
	for _, c := range w.Result().Cookies() {
		if c.Name == middleware.SessionCookie {
			h.cookies = []*http.Cookie{c}
		}
	}
	return w
}

func itoa(id uint) string { return strconv.FormatUint(uint64(id), 10) }

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func (h *harness) signUp(username string) string {
	h.t.Helper()
	w := h.do(http.MethodPost, "/api/v1/sign-up", map[string]string{"name": "Ann Lee", "username": username, "password": "secret1"}, "")
	require.Equal(h.t, http.StatusCreated, w.Code, w.Body.String())
	return decode[map[string]string](h.t, w)["token"]
}

func TestHealthz(t *testing.T) {
	h := newHarness(t)
	w := h.do(http.MethodGet, "/healthz", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAccountFlow(t *testing.T) {
	h := newHarness(t)
	token := h.signUp("ann")

	w := h.do(http.MethodGet, "/api/v1/profile", nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	profile := decode[user.ProfileView](t, w)
	assert.Equal(t, "Ann Lee", profile.FullName)
	assert.Equal(t, "/media/"+usermodel.DefaultAvatarSrc, profile.Avatar.Src)

	w = h.do(http.MethodPost, "/api/v1/profile", map[string]string{"fullName": "Ann B. Lee", "email": "ann@example.com", "phone": "+1"}, token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "ann@example.com", decode[user.ProfileView](t, w).Email)

	w = h.do(http.MethodPost, "/api/v1/profile", map[string]string{"fullName": "", "email": "bad"}, token)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode[map[string][]string](t, w), "email")

	w = h.do(http.MethodPost, "/api/v1/sign-in", map[string]string{"username": "ann", "password": "nope"}, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w = h.do(http.MethodPost, "/api/v1/sign-in", map[string]string{"username": "ann", "password": "secret1"}, "")
	assert.Equal(t, http.StatusCreated, w.Code)

	w = h.do(http.MethodPost, "/api/v1/sign-out", nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	w = h.do(http.MethodGet, "/api/v1/profile", nil, token)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = h.do(http.MethodGet, "/api/v1/profile", nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAvatarUpload(t *testing.T) {
	h := newHarness(t)
	token := h.signUp("ann")

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("avatar", "me.png")
	require.NoError(t, err)
	_, err = fw.Write(append([]byte("\x89PNG\r\n\x1a\n"), make([]byte, 32)...))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/profile/avatar", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	w := h.send(req, token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	v := decode[user.ProfileView](t, w)
	assert.Equal(t, "Avatar Ann Lee", v.Avatar.Alt)

	w = h.do(http.MethodGet, v.Avatar.Src, nil, "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = h.do(http.MethodPost, "/api/v1/profile/avatar", map[string]string{}, token)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCatalogEndpoints(t *testing.T) {
	h := newHarness(t)
	testutil.Product(t, h.srv.DB, "Alpha", "10", 1)
	testutil.Product(t, h.srv.DB, "Beta", "20", 1)

	w := h.do(http.MethodGet, "/api/v1/catalog?sort=price&sortType=inc", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	page := decode[struct {
		Items []struct {
			Title string `json:"title"`
		} `json:"items"`
		CurrentPage int `json:"currentPage"`
		LastPage    int `json:"lastPage"`
	}](t, w)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "Alpha", page.Items[0].Title)
	assert.Equal(t, 1, page.LastPage)

	w = h.do(http.MethodGet, "/api/v1/catalog?sort=colour", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode[map[string][]string](t, w), "sort")

	w = h.do(http.MethodGet, "/api/v1/catalog?currentPage=5", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = h.do(http.MethodGet, "/api/v1/products/1", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	w = h.do(http.MethodGet, "/api/v1/products/999", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = h.do(http.MethodGet, "/api/v1/products/abc", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	for _, path := range []string{"/api/v1/products/popular", "/api/v1/products/limited", "/api/v1/banners", "/api/v1/tags", "/api/v1/categories", "/api/v1/search?q=alp"} {
		w = h.do(http.MethodGet, path, nil, "")
		assert.Equal(t, http.StatusOK, w.Code, path)
	}
	w = h.do(http.MethodGet, "/api/v1/sales", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestReviewEndpoint(t *testing.T) {
	h := newHarness(t)
	p := testutil.Product(t, h.srv.DB, "Alpha", "10", 1)

	path := "/api/v1/products/" + itoa(p.ID) + "/reviews"

	w := h.do(http.MethodPost, path, map[string]any{"author": "Bob", "email": "bob@x.io", "text": "Nice", "rate": 4}, "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Len(t, decode[[]map[string]any](t, w), 1)

	w = h.do(http.MethodPost, path, map[string]any{"text": "Nice", "rate": 9}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = h.do(http.MethodGet, path, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, decode[map[string]any](t, w)["total"])
}

func TestBasketCheckoutAndPayment(t *testing.T) {
	h := newHarness(t)
	token := h.signUp("ann")
	a := testutil.Product(t, h.srv.DB, "A", "10", 5)
	b := testutil.Product(t, h.srv.DB, "B", "5", 2)

	w := h.do(http.MethodPost, "/api/v1/basket", map[string]any{"id": a.ID, "count": 2}, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Len(t, h.cookies, 1, "session cookie issued")
	w = h.do(http.MethodPost, "/api/v1/basket", map[string]any{"id": b.ID, "count": 1}, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode[[]map[string]any](t, w), 2)

	w = h.do(http.MethodPost, "/api/v1/basket", map[string]any{"id": 999, "count": 1}, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = h.do(http.MethodPost, "/api/v1/basket", map[string]any{"id": a.ID, "count": 0}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// 10*2 + 5*1
	w = h.do(http.MethodPost, "/api/v1/orders", []map[string]any{{"id": a.ID, "count": 2}, {"id": b.ID, "count": 1}}, token)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	orderID := uint(decode[map[string]float64](t, w)["orderId"])

	w = h.do(http.MethodGet, "/api/v1/basket", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode[[]map[string]any](t, w), "basket cleared after checkout")

	w = h.do(http.MethodPost, "/api/v1/orders", []map[string]any{{"id": b.ID, "count": 5}}, token)
	assert.Equal(t, http.StatusConflict, w.Code)
	w = h.do(http.MethodPost, "/api/v1/orders", []map[string]any{}, token)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = h.do(http.MethodGet, "/api/v1/orders", nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	orders := decode[[]map[string]any](t, w)
	require.Len(t, orders, 1)
	assert.Equal(t, "25", orders[0]["totalCost"])

	w = h.do(http.MethodPatch, "/api/v1/orders/"+itoa(orderID), map[string]any{"deliveryType": "express", "city": "Oslo"}, token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = h.do(http.MethodGet, "/api/v1/orders/"+itoa(orderID), nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	o := decode[map[string]any](t, w)
	assert.Equal(t, "30", o["totalCost"])
	assert.Equal(t, "Oslo", o["city"])

	card := map[string]string{"number": "4242424242424242", "name": "Ann Lee", "month": "12", "year": "2030", "code": "123"}
	bad := map[string]string{"number": "4242", "name": "Ann Lee", "month": "13", "year": "2030", "code": "123"}
	w = h.do(http.MethodPost, "/api/v1/payment/"+itoa(orderID), bad, token)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decode[map[string][]string](t, w), "non_field_errors")

	w = h.do(http.MethodPost, "/api/v1/payment/"+itoa(orderID), card, token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = h.do(http.MethodPost, "/api/v1/payment/"+itoa(orderID), card, token)
	assert.Equal(t, http.StatusConflict, w.Code)
	w = h.do(http.MethodPatch, "/api/v1/orders/"+itoa(orderID), map[string]any{"totalCost": "1"}, token)
	assert.Equal(t, http.StatusConflict, w.Code, "paid order is locked")

	other := h.signUp("bob")
	w = h.do(http.MethodGet, "/api/v1/orders/"+itoa(orderID), nil, other)
	assert.Equal(t, http.StatusNotFound, w.Code)
	w = h.do(http.MethodPost, "/api/v1/payment/"+itoa(orderID), card, other)
	assert.Equal(t, http.StatusNotFound, w.Code)

	assert.Equal(t, []string{"order.created", "order.updated", "order.paid"}, h.events.keys())

	var stored ordermodel.Order
	require.NoError(t, h.srv.DB.First(&stored, orderID).Error)
	assert.Equal(t, ordermodel.StatusAccepted, stored.Status)
}

func TestBasketCountDefaultsToOne(t *testing.T) {
	h := newHarness(t)
	a := testutil.Product(t, h.srv.DB, "A", "10", 5)

	basketCount := func(w *httptest.ResponseRecorder) float64 {
		t.Helper()
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		items := decode[[]map[string]any](t, w)
		require.Len(t, items, 1)
		return items[0]["count"].(float64)
	}

	assert.Equal(t, 1.0, basketCount(h.do(http.MethodPost, "/api/v1/basket", map[string]any{"id": a.ID}, "")))
	assert.Equal(t, 2.0, basketCount(h.do(http.MethodPost, "/api/v1/basket", map[string]any{"id": a.ID}, "")))
	assert.Equal(t, 1.0, basketCount(h.do(http.MethodDelete, "/api/v1/basket", map[string]any{"id": a.ID}, "")))

	w := h.do(http.MethodPost, "/api/v1/basket", map[string]any{"id": a.ID, "count": 0}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code, "explicit zero is still rejected")
	w = h.do(http.MethodDelete, "/api/v1/basket", map[string]any{"id": a.ID, "count": -1}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdminRequiresRole(t *testing.T) {
	h := newHarness(t)
	token := h.signUp("ann")
	w := h.do(http.MethodGet, "/api/v1/admin/stats", nil, token)
	assert.Equal(t, http.StatusForbidden, w.Code)

	boss := &usermodel.User{Username: "boss", Password: "x", Role: usermodel.RoleAdmin}
	require.NoError(t, h.srv.DB.Create(boss).Error)
	adminToken, err := h.srv.Tokens.GenerateToken(boss.ID, boss.Username, boss.Role)
	require.NoError(t, err)

	p := testutil.Product(t, h.srv.DB, "A", "10", 5)
	w = h.do(http.MethodGet, "/api/v1/admin/stats", nil, adminToken)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, decode[map[string]any](t, w)["productCount"])

	w = h.do(http.MethodPatch, "/api/v1/admin/products/"+itoa(p.ID), map[string]any{"count": 9}, adminToken)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	w = h.do(http.MethodPut, "/api/v1/admin/products/"+itoa(p.ID)+"/sale", map[string]any{"salePrice": "8"}, adminToken)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = h.do(http.MethodGet, "/api/v1/products/"+itoa(p.ID), nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	got := decode[map[string]any](t, w)
	assert.Equal(t, "8", got["price"])
	assert.EqualValues(t, 9, got["count"])

	w = h.do(http.MethodDelete, "/api/v1/admin/products/"+itoa(p.ID)+"/sale", nil, adminToken)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = h.do(http.MethodPost, "/api/v1/admin/search/reindex", nil, adminToken)
	assert.Equal(t, http.StatusInternalServerError, w.Code, "no search index configured")
}

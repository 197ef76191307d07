package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/xenking/tshirt-store/internal/domain/admin"
	"github.com/xenking/tshirt-store/internal/domain/apperr"
	"github.com/xenking/tshirt-store/internal/domain/auth"
	"github.com/xenking/tshirt-store/internal/domain/cart"
	"github.com/xenking/tshirt-store/internal/domain/order"
	"github.com/xenking/tshirt-store/internal/domain/payment"
	"github.com/xenking/tshirt-store/internal/domain/product"
	"github.com/xenking/tshirt-store/internal/storage/files"
	"github.com/xenking/tshirt-store/internal/storage/memory"
)

const gatewaySecret = "gw-test-secret"

// --- Mock implementations ---

type fakeGateway struct {
	mu    sync.Mutex
	seq   int
	fail  error
	calls []payment.IntentRequest
}

var _ payment.Gateway = (*fakeGateway)(nil)

func (g *fakeGateway) CreateIntent(_ context.Context, req payment.IntentRequest) (*payment.Intent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, req)
	if g.fail != nil {
		return nil, g.fail
	}
	g.seq++
	return &payment.Intent{
		ID:          fmt.Sprintf("order_%03d", g.seq),
		AmountMinor: req.AmountMinor,
		Currency:    req.Currency,
		Status:      "created",
	}, nil
}

func (g *fakeGateway) VerifySignature(intentID, receiptID, signature string) bool {
	return payment.VerifySign(gatewaySecret, intentID, receiptID, signature)
}

// --- Test environment ---

type testEnv struct {
	t       *testing.T
	store   *memory.Store
	gateway *fakeGateway
	router  http.Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store := memory.NewStore()
	tokens := auth.NewTokenIssuer([]byte("handler-test-secret"), time.Hour)
	images, err := files.New(t.TempDir(), files.DefaultURLPrefix)
	require.NoError(t, err)

	carts := cart.NewService(store.Carts, store.Products)
	gw := &fakeGateway{}
	orders, err := order.NewService(
		order.Config{Currency: "INR", GatewayKeyID: "rzp_test_key"},
		store.Orders, carts, gw, store.Tx,
	)
	require.NoError(t, err)

	h := New(Config{}, Services{
		Accounts:  auth.NewService(store.Users, auth.BcryptHasher{Cost: bcrypt.MinCost}, tokens, nil),
		Gate:      auth.NewGate(tokens, store.Users),
		Catalog:   product.NewService(store.Products, images, nil),
		Carts:     carts,
		Orders:    orders,
		Dashboard: admin.NewService(store.Products, store.Users, store.Orders),
	})
	r := chi.NewRouter()
	r.Mount("/api", h.Routes())

	return &testEnv{t: t, store: store, gateway: gw, router: r}
}

func (e *testEnv) do(method, path, token string, body any) *httptest.ResponseRecorder {
	e.t.Helper()
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(e.t, err)
		rd = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return e.send(req, token)
}

func (e *testEnv) send(req *http.Request, token string) *httptest.ResponseRecorder {
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func requireError(t *testing.T, rec *httptest.ResponseRecorder, status int, kind apperr.Kind) {
	t.Helper()
	require.Equal(t, status, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	assert.Equal(t, string(kind), body["error"])
	assert.NotEmpty(t, body["message"])
}

// signup registers and logs in a principal, returning its id and token.
func (e *testEnv) signup(name string, role auth.Role) (string, string) {
	e.t.Helper()
	email := name + "@example.com"
	rec := e.do(http.MethodPost, "/api/auth/register", "", map[string]string{
		"username": name, "email": email, "password": "secret123",
	})
	require.Equal(e.t, http.StatusCreated, rec.Code, rec.Body.String())
	id := decodeBody(e.t, rec)["user"].(map[string]any)["id"].(string)

	if role == auth.RoleAdmin {
		require.NoError(e.t, e.store.Users.SetRole(context.Background(), id, auth.RoleAdmin, time.Now()))
	}

	rec = e.do(http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": email, "password": "secret123",
	})
	require.Equal(e.t, http.StatusOK, rec.Code, rec.Body.String())
	return id, decodeBody(e.t, rec)["token"].(string)
}

func (e *testEnv) seedProduct(id, name, category string, price, discount int64) {
	e.t.Helper()
	now := time.Now().UTC()
	require.NoError(e.t, e.store.Products.Create(context.Background(), &product.Product{
		ID:        id,
		Name:      name,
		Price:     decimal.NewFromInt(price),
		Discount:  decimal.NewFromInt(discount),
		Category:  category,
		Variants:  []product.Variant{{Sizes: []string{"M", "L"}, Colors: []string{"black"}}},
		Images:    []string{"/uploads/" + id + ".png"},
		CreatedAt: now,
		UpdatedAt: now,
	}))
}

var testAddress = map[string]any{
	"shippingAddress": map[string]string{
		"name":       "Asha",
		"street":     "1 MG Road",
		"city":       "Pune",
		"postalCode": "411001",
		"country":    "IN",
	},
}

// --- Tests ---

func TestAuth(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.signup("alice", auth.RoleUser)

	t.Run("duplicate email", func(t *testing.T) {
		rec := env.do(http.MethodPost, "/api/auth/register", "", map[string]string{
			"username": "alice2", "email": "ALICE@example.com", "password": "secret123",
		})
		requireError(t, rec, http.StatusConflict, apperr.Conflict)
	})

	t.Run("password too long", func(t *testing.T) {
		rec := env.do(http.MethodPost, "/api/auth/register", "", map[string]string{
			"username": "longpw", "email": "longpw@example.com", "password": strings.Repeat("p", 80),
		})
		requireError(t, rec, http.StatusBadRequest, apperr.InvalidInput)
	})

	t.Run("wrong password", func(t *testing.T) {
		rec := env.do(http.MethodPost, "/api/auth/login", "", map[string]string{
			"email": "alice@example.com", "password": "nope-nope",
		})
		requireError(t, rec, http.StatusUnauthorized, apperr.Unauthenticated)
	})

	t.Run("profile", func(t *testing.T) {
		rec := env.do(http.MethodGet, "/api/auth/profile", token, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		assert.Equal(t, "alice@example.com", body["email"])
		assert.Equal(t, "user", body["role"])
		assert.NotContains(t, rec.Body.String(), "password")
	})

	t.Run("missing token", func(t *testing.T) {
		requireError(t, env.do(http.MethodGet, "/api/auth/profile", "", nil), http.StatusUnauthorized, apperr.Unauthenticated)
	})

	t.Run("bad scheme", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/auth/profile", nil)
		req.Header.Set("Authorization", "Basic "+token)
		requireError(t, env.send(req, ""), http.StatusUnauthorized, apperr.Unauthenticated)
	})

	t.Run("malformed body", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader("{"))
		requireError(t, env.send(req, ""), http.StatusBadRequest, apperr.InvalidInput)
	})
}

func TestProducts(t *testing.T) {
	env := newTestEnv(t)
	_, userToken := env.signup("bob", auth.RoleUser)
	_, adminToken := env.signup("root", auth.RoleAdmin)
	env.seedProduct("p-basic", "Basic Tee", "tshirts", 100, 0)
	env.seedProduct("p-hood", "Zip Hoodie", "hoodies", 800, 25)

	t.Run("list with filters", func(t *testing.T) {
		rec := env.do(http.MethodGet, "/api/products?category=tshirts&min_price=50&search=basic", "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		assert.EqualValues(t, 1, body["total"])
		items := body["items"].([]any)
		require.Len(t, items, 1)
		assert.Equal(t, "p-basic", items[0].(map[string]any)["id"])
	})

	t.Run("effective price", func(t *testing.T) {
		rec := env.do(http.MethodGet, "/api/products/p-hood", "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		assert.EqualValues(t, 800, body["price"])
		assert.EqualValues(t, 600, body["effectivePrice"])
	})

	t.Run("invalid price filter", func(t *testing.T) {
		requireError(t, env.do(http.MethodGet, "/api/products?max_price=cheap", "", nil), http.StatusBadRequest, apperr.InvalidInput)
	})

	t.Run("missing product", func(t *testing.T) {
		requireError(t, env.do(http.MethodGet, "/api/products/nope", "", nil), http.StatusNotFound, apperr.NotFound)
	})

	t.Run("create requires admin", func(t *testing.T) {
		body := map[string]any{"name": "Tank", "price": 10}
		requireError(t, env.do(http.MethodPost, "/api/products", userToken, body), http.StatusForbidden, apperr.Forbidden)
		requireError(t, env.do(http.MethodPost, "/api/products", "", body), http.StatusUnauthorized, apperr.Unauthenticated)
	})

	t.Run("create update delete", func(t *testing.T) {
		rec := env.do(http.MethodPost, "/api/products", adminToken, map[string]any{
			"name":     "Tank",
			"price":    19.99,
			"discount": 10,
			"category": "tops",
			"variants": `[{"sizes":["S"],"colors":["red"]}]`,
		})
		require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
		created := decodeBody(t, rec)
		id := created["id"].(string)
		assert.EqualValues(t, 17.99, created["effectivePrice"])
		assert.Len(t, created["variants"].([]any), 1)

		rec = env.do(http.MethodPut, "/api/products/"+id, adminToken, map[string]any{"featured": true})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		updated := decodeBody(t, rec)
		assert.Equal(t, true, updated["featured"])
		assert.Equal(t, "Tank", updated["name"])

		rec = env.do(http.MethodDelete, "/api/products/"+id, adminToken, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		requireError(t, env.do(http.MethodGet, "/api/products/"+id, "", nil), http.StatusNotFound, apperr.NotFound)
	})

	t.Run("variants with unknown fields", func(t *testing.T) {
		rec := env.do(http.MethodPost, "/api/products", adminToken, map[string]any{
			"name":     "Bad",
			"price":    1,
			"variants": []map[string]any{{"sizes": []string{"S"}, "exec": "x"}},
		})
		requireError(t, rec, http.StatusBadRequest, apperr.InvalidInput)
	})
}

func multipartRequest(t *testing.T, method, path string, fields map[string]string, files map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	for name, content := range files {
		fw, err := mw.CreateFormFile("images", name)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestProductUploads(t *testing.T) {
	env := newTestEnv(t)
	_, adminToken := env.signup("root", auth.RoleAdmin)

	req := multipartRequest(t, http.MethodPost, "/api/products", map[string]string{
		"name":     "Graphic Tee",
		"price":    "499.00",
		"category": "tshirts",
		"featured": "on",
		"variants": `[{"sizes":["M"],"colors":["white"]}]`,
	}, map[string]string{"front view.PNG": "png-bytes"})
	rec := env.send(req, adminToken)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	body := decodeBody(t, rec)
	id := body["id"].(string)
	assert.Equal(t, true, body["featured"])
	images := body["images"].([]any)
	require.Len(t, images, 1)
	assert.True(t, strings.HasPrefix(images[0].(string), "/uploads/"))

	t.Run("add images", func(t *testing.T) {
		req := multipartRequest(t, http.MethodPost, "/api/products/"+id+"/images", nil,
			map[string]string{"back.jpg": "jpg-bytes"})
		rec := env.send(req, adminToken)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Len(t, decodeBody(t, rec)["images"].([]any), 2)
	})

	t.Run("replace images", func(t *testing.T) {
		req := multipartRequest(t, http.MethodPut, "/api/products/"+id,
			map[string]string{"replaceImages": "true"},
			map[string]string{"new.gif": "gif-bytes"})
		rec := env.send(req, adminToken)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Len(t, decodeBody(t, rec)["images"].([]any), 1)
	})

	t.Run("rejected extension", func(t *testing.T) {
		req := multipartRequest(t, http.MethodPost, "/api/products/"+id+"/images", nil,
			map[string]string{"shell.php": "<?php"})
		requireError(t, env.send(req, adminToken), http.StatusBadRequest, apperr.InvalidInput)
	})

	t.Run("no files", func(t *testing.T) {
		req := multipartRequest(t, http.MethodPost, "/api/products/"+id+"/images", nil, nil)
		requireError(t, env.send(req, adminToken), http.StatusBadRequest, apperr.InvalidInput)
	})

	t.Run("bad price field", func(t *testing.T) {
		req := multipartRequest(t, http.MethodPost, "/api/products",
			map[string]string{"name": "X", "price": "free"}, nil)
		requireError(t, env.send(req, adminToken), http.StatusBadRequest, apperr.InvalidInput)
	})
}

func TestCart(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.signup("carol", auth.RoleUser)
	env.seedProduct("p1", "Tee", "tshirts", 100, 10)

	t.Run("empty cart", func(t *testing.T) {
		rec := env.do(http.MethodGet, "/api/cart", token, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		assert.Empty(t, body["items"])
		assert.EqualValues(t, 0, body["total"])
	})

	t.Run("add merges quantities", func(t *testing.T) {
		item := map[string]any{"productId": "p1", "quantity": 2, "size": "M", "color": "black"}
		require.Equal(t, http.StatusOK, env.do(http.MethodPost, "/api/cart", token, item).Code)
		item["quantity"] = 3
		rec := env.do(http.MethodPost, "/api/cart", token, item)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		body := decodeBody(t, rec)
		items := body["items"].([]any)
		require.Len(t, items, 1)
		line := items[0].(map[string]any)
		assert.EqualValues(t, 5, line["quantity"])
		assert.EqualValues(t, 90, line["unitPrice"])
		assert.EqualValues(t, 450, body["total"])
		assert.EqualValues(t, 5, body["itemCount"])
	})

	t.Run("invalid quantity", func(t *testing.T) {
		rec := env.do(http.MethodPost, "/api/cart", token, map[string]any{"productId": "p1", "quantity": -1})
		requireError(t, rec, http.StatusBadRequest, apperr.InvalidInput)
	})

	t.Run("unknown product", func(t *testing.T) {
		rec := env.do(http.MethodPost, "/api/cart", token, map[string]any{"productId": "ghost"})
		requireError(t, rec, http.StatusNotFound, apperr.NotFound)
	})

	t.Run("update quantity", func(t *testing.T) {
		rec := env.do(http.MethodPut, "/api/cart/update", token,
			map[string]any{"productId": "p1", "quantity": 1, "size": "M", "color": "black"})
		require.Equal(t, http.StatusOK, rec.Code)
		assert.EqualValues(t, 90, decodeBody(t, rec)["total"])
	})

	t.Run("remove by query", func(t *testing.T) {
		rec := env.do(http.MethodDelete, "/api/cart/remove?productId=p1&size=M&color=black", token, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, decodeBody(t, rec)["items"])
	})

	t.Run("clear", func(t *testing.T) {
		env.do(http.MethodPost, "/api/cart", token, map[string]any{"productId": "p1"})
		rec := env.do(http.MethodDelete, "/api/cart/clear", token, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, decodeBody(t, rec)["items"])
	})

	t.Run("requires auth", func(t *testing.T) {
		requireError(t, env.do(http.MethodGet, "/api/cart", "", nil), http.StatusUnauthorized, apperr.Unauthenticated)
	})
}

func TestCartQuantityLimit(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.signup("quinn", auth.RoleUser)
	env.seedProduct("p1", "Tee", "tshirts", 100, 10)
	item := map[string]any{"productId": "p1", "quantity": int64(math.MaxInt64), "size": "M", "color": "black"}

	for range 2 {
		requireError(t, env.do(http.MethodPost, "/api/cart", token, item), http.StatusBadRequest, apperr.InvalidInput)
	}

	item["quantity"] = cart.MaxQuantity
	require.Equal(t, http.StatusOK, env.do(http.MethodPost, "/api/cart", token, item).Code)
	item["quantity"] = 1
	requireError(t, env.do(http.MethodPost, "/api/cart", token, item), http.StatusBadRequest, apperr.InvalidInput)
	item["quantity"] = cart.MaxQuantity + 1
	requireError(t, env.do(http.MethodPut, "/api/cart/update", token, item), http.StatusBadRequest, apperr.InvalidInput)

	rec := env.do(http.MethodGet, "/api/cart", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, cart.MaxQuantity, decodeBody(t, rec)["itemCount"])

	rec = env.do(http.MethodPost, "/api/orders/create", token, testAddress)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.EqualValues(t, 90*cart.MaxQuantity*100, decodeBody(t, rec)["amountMinor"])
}

func TestCheckout(t *testing.T) {
	env := newTestEnv(t)
	ownerID, token := env.signup("dave", auth.RoleUser)
	env.seedProduct("p", "Premium Tee", "tshirts", 100, 10)
	env.seedProduct("q", "Plain Tee", "tshirts", 50, 0)

	t.Run("empty cart", func(t *testing.T) {
		requireError(t, env.do(http.MethodPost, "/api/orders/create", token, testAddress), http.StatusBadRequest, apperr.InvalidState)
	})

	env.do(http.MethodPost, "/api/cart", token, map[string]any{"productId": "p", "quantity": 2})
	env.do(http.MethodPost, "/api/cart", token, map[string]any{"productId": "q", "quantity": 1})

	rec := env.do(http.MethodGet, "/api/cart", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 230, decodeBody(t, rec)["total"])

	rec = env.do(http.MethodPost, "/api/orders/create", token, testAddress)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeBody(t, rec)
	assert.EqualValues(t, 230, created["amount"])
	assert.EqualValues(t, 23000, created["amountMinor"])
	assert.Equal(t, "INR", created["currency"])
	assert.Equal(t, "rzp_test_key", created["key"])
	intentID := created["razorpayOrderId"].(string)
	orderID := created["orderId"].(string)

	rec = env.do(http.MethodGet, "/api/cart", token, nil)
	assert.Len(t, decodeBody(t, rec)["items"], 2, "cart is kept until payment is verified")

	t.Run("tampered signature", func(t *testing.T) {
		rec := env.do(http.MethodPost, "/api/orders/verify", token, map[string]string{
			"razorpay_order_id":   intentID,
			"razorpay_payment_id": "pay_1",
			"razorpay_signature":  payment.Sign(gatewaySecret, intentID, "pay_other"),
		})
		requireError(t, rec, http.StatusBadRequest, apperr.InvalidSignature)

		o, err := env.store.Orders.GetByID(context.Background(), orderID)
		require.NoError(t, err)
		assert.Equal(t, order.StatusCreated, o.Status)
	})

	verify := map[string]string{
		"razorpay_order_id":   intentID,
		"razorpay_payment_id": "pay_1",
		"razorpay_signature":  payment.Sign(gatewaySecret, intentID, "pay_1"),
	}
	for i := range 2 {
		rec := env.do(http.MethodPost, "/api/orders/verify", token, verify)
		require.Equal(t, http.StatusOK, rec.Code, "attempt %d: %s", i, rec.Body.String())
		o := decodeBody(t, rec)["order"].(map[string]any)
		assert.Equal(t, "paid", o["status"])
		assert.Equal(t, "pay_1", o["paymentReceiptId"])
	}

	rec = env.do(http.MethodGet, "/api/cart", token, nil)
	assert.Empty(t, decodeBody(t, rec)["items"])

	t.Run("snapshot survives price change", func(t *testing.T) {
		p, err := env.store.Products.GetByID(context.Background(), "p")
		require.NoError(t, err)
		p.Price = decimal.NewFromInt(1000)
		require.NoError(t, env.store.Products.Update(context.Background(), p))

		rec := env.do(http.MethodGet, "/api/orders/"+orderID, token, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		assert.EqualValues(t, 230, body["totalAmount"])
		assert.Equal(t, ownerID, body["userId"])
	})
}

func TestCreateOrderGatewayDown(t *testing.T) {
	env := newTestEnv(t)
	_, token := env.signup("erin", auth.RoleUser)
	env.seedProduct("p", "Tee", "tshirts", 100, 0)
	env.do(http.MethodPost, "/api/cart", token, map[string]any{"productId": "p"})

	env.gateway.fail = errors.New("dial tcp: connection refused")
	requireError(t, env.do(http.MethodPost, "/api/orders/create", token, testAddress),
		http.StatusServiceUnavailable, apperr.GatewayUnavailable)

	total, err := env.store.Orders.CountByStatus(context.Background())
	require.NoError(t, err)
	assert.Zero(t, total[order.StatusCreated])
}

func TestOrderAccess(t *testing.T) {
	env := newTestEnv(t)
	_, ownerToken := env.signup("frank", auth.RoleUser)
	_, otherToken := env.signup("grace", auth.RoleUser)
	_, adminToken := env.signup("root", auth.RoleAdmin)
	env.seedProduct("p", "Tee", "tshirts", 100, 0)
	env.do(http.MethodPost, "/api/cart", ownerToken, map[string]any{"productId": "p"})

	rec := env.do(http.MethodPost, "/api/orders/create", ownerToken, testAddress)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodeBody(t, rec)
	orderID := created["orderId"].(string)
	intentID := created["razorpayOrderId"].(string)

	requireError(t, env.do(http.MethodGet, "/api/orders/"+orderID, otherToken, nil), http.StatusForbidden, apperr.Forbidden)
	assert.Equal(t, http.StatusOK, env.do(http.MethodGet, "/api/orders/"+orderID, ownerToken, nil).Code)
	assert.Equal(t, http.StatusOK, env.do(http.MethodGet, "/api/orders/"+orderID, adminToken, nil).Code)
	requireError(t, env.do(http.MethodGet, "/api/orders/missing", ownerToken, nil), http.StatusNotFound, apperr.NotFound)

	rec = env.do(http.MethodPost, "/api/orders/verify", otherToken, map[string]string{
		"razorpay_order_id":   intentID,
		"razorpay_payment_id": "pay_x",
		"razorpay_signature":  payment.Sign(gatewaySecret, intentID, "pay_x"),
	})
	requireError(t, rec, http.StatusForbidden, apperr.Forbidden)
}

func TestOrderPagination(t *testing.T) {
	env := newTestEnv(t)
	ownerID, token := env.signup("heidi", auth.RoleUser)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range 25 {
		require.NoError(t, env.store.Orders.Create(context.Background(), &order.Order{
			ID:              fmt.Sprintf("o-%02d", i),
			OwnerID:         ownerID,
			Total:           decimal.NewFromInt(10),
			Currency:        "INR",
			PaymentIntentID: fmt.Sprintf("order_%02d", i),
			Status:          order.StatusCreated,
			CreatedAt:       base.Add(time.Duration(i) * time.Minute),
			UpdatedAt:       base.Add(time.Duration(i) * time.Minute),
		}))
	}

	rec := env.do(http.MethodGet, "/api/orders?page=2&limit=10", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeBody(t, rec)
	assert.Len(t, body["items"], 10)
	assert.EqualValues(t, 25, body["total"])
	assert.EqualValues(t, 2, body["page"])
	assert.EqualValues(t, 10, body["pageSize"])
	assert.EqualValues(t, 3, body["totalPages"])

	requireError(t, env.do(http.MethodGet, "/api/orders?page=two", token, nil), http.StatusBadRequest, apperr.InvalidInput)
}

func TestAdmin(t *testing.T) {
	env := newTestEnv(t)
	ownerID, ownerToken := env.signup("ivan", auth.RoleUser)
	_, adminToken := env.signup("root", auth.RoleAdmin)
	env.seedProduct("p", "Tee", "tshirts", 100, 0)

	now := time.Now().UTC()
	for _, o := range []order.Order{
		{ID: "o-paid", Status: order.StatusPaid, Total: decimal.NewFromInt(300), PaymentIntentID: "order_a"},
		{ID: "o-new", Status: order.StatusCreated, Total: decimal.NewFromInt(50), PaymentIntentID: "order_b"},
	} {
		o.OwnerID = ownerID
		o.Currency = "INR"
		o.CreatedAt, o.UpdatedAt = now, now
		require.NoError(t, env.store.Orders.Create(context.Background(), &o))
	}

	t.Run("forbidden for users", func(t *testing.T) {
		requireError(t, env.do(http.MethodGet, "/api/admin/dashboard", ownerToken, nil), http.StatusForbidden, apperr.Forbidden)
	})

	t.Run("list by status", func(t *testing.T) {
		rec := env.do(http.MethodGet, "/api/admin/orders?status=paid", adminToken, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		assert.EqualValues(t, 1, body["total"])
	})

	t.Run("status transitions", func(t *testing.T) {
		rec := env.do(http.MethodPut, "/api/admin/orders/o-paid/status", adminToken, map[string]string{"status": "shipped"})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, "shipped", decodeBody(t, rec)["status"])

		rec = env.do(http.MethodPut, "/api/admin/orders/o-new/status", adminToken, map[string]string{"status": "delivered"})
		requireError(t, rec, http.StatusConflict, apperr.InvalidState)

		rec = env.do(http.MethodPut, "/api/admin/orders/o-new/status", adminToken, map[string]string{"status": "lost"})
		requireError(t, rec, http.StatusBadRequest, apperr.InvalidInput)

		rec = env.do(http.MethodPut, "/api/admin/orders/nope/status", adminToken, map[string]string{"status": "cancelled"})
		requireError(t, rec, http.StatusNotFound, apperr.NotFound)
	})

	t.Run("dashboard", func(t *testing.T) {
		rec := env.do(http.MethodGet, "/api/admin/dashboard", adminToken, nil)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		body := decodeBody(t, rec)
		assert.EqualValues(t, 1, body["totalProducts"])
		assert.EqualValues(t, 2, body["totalUsers"])
		assert.EqualValues(t, 2, body["totalOrders"])
		// o-paid moved to shipped above, so no order is in the paid status.
		assert.EqualValues(t, 0, body["totalRevenue"])
		counts := body["statusCounts"].(map[string]any)
		assert.Len(t, counts, len(order.Statuses))
		assert.EqualValues(t, 1, counts["shipped"])
		assert.EqualValues(t, 0, counts["delivered"])
	})

	t.Run("users and roles", func(t *testing.T) {
		rec := env.do(http.MethodGet, "/api/admin/users?limit=1", adminToken, nil)
		require.Equal(t, http.StatusOK, rec.Code)
		body := decodeBody(t, rec)
		assert.EqualValues(t, 2, body["total"])
		assert.EqualValues(t, 2, body["totalPages"])
		assert.NotContains(t, rec.Body.String(), "$2a$")

		rec = env.do(http.MethodPut, "/api/admin/users/"+ownerID+"/role", adminToken, map[string]string{"role": "owner"})
		requireError(t, rec, http.StatusBadRequest, apperr.InvalidInput)

		rec = env.do(http.MethodPut, "/api/admin/users/"+ownerID+"/role", adminToken, map[string]string{"role": "admin"})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, http.StatusOK, env.do(http.MethodGet, "/api/admin/dashboard", ownerToken, nil).Code)
	})
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{auth.ErrTokenMissing, http.StatusUnauthorized},
		{auth.ErrAdminRequired, http.StatusForbidden},
		{product.ErrNotFound, http.StatusNotFound},
		{errors.Wrap(cart.ErrInvalidQuantity, "add"), http.StatusBadRequest},
		{payment.ErrInvalidSignature, http.StatusBadRequest},
		{order.ErrEmptyCart, http.StatusBadRequest},
		{order.ErrInvalidTransition, http.StatusConflict},
		{auth.ErrEmailTaken, http.StatusConflict},
		{payment.ErrGatewayUnavailable, http.StatusServiceUnavailable},
		{errMethodNotAllowed, http.StatusMethodNotAllowed},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, statusOf(tt.err))
		})
	}
}

func TestInternalErrorIsGeneric(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	writeError(rec, req, errors.New("pq: relation users does not exist"))

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	body := decodeBody(t, rec)
	assert.Equal(t, "internal", body["error"])
	assert.NotContains(t, body["message"], "relation")
}

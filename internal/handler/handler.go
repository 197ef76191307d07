// Package handler exposes the storefront services over HTTP.
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/tshirt-store/internal/domain/admin"
	"github.com/xenking/tshirt-store/internal/domain/auth"
	"github.com/xenking/tshirt-store/internal/domain/cart"
	"github.com/xenking/tshirt-store/internal/domain/order"
	"github.com/xenking/tshirt-store/internal/domain/product"
)

// DefaultMaxUploadBytes caps multipart product requests.
const DefaultMaxUploadBytes = 16 << 20

// Config holds non-dependency configuration for the Handler.
type Config struct {
	// ImageBaseURL is prepended to image references in product responses.
	// When empty, references are returned as stored.
	ImageBaseURL string
	// MaxUploadBytes limits the size of multipart requests.
	MaxUploadBytes int64
}

// Services are the domain services the Handler delegates to.
type Services struct {
	Accounts  *auth.Service
	Gate      *auth.Gate
	Catalog   *product.Service
	Carts     *cart.Service
	Orders    *order.Service
	Dashboard *admin.Service
}

// Handler translates HTTP requests into service calls and maps results and
// errors back to JSON responses.
type Handler struct {
	accounts  *auth.Service
	gate      *auth.Gate
	catalog   *product.Service
	carts     *cart.Service
	orders    *order.Service
	dashboard *admin.Service

	imageBaseURL   string
	maxUploadBytes int64
}

// New constructs a Handler.
func New(cfg Config, s Services) *Handler {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = DefaultMaxUploadBytes
	}
	return &Handler{
		accounts:       s.Accounts,
		gate:           s.Gate,
		catalog:        s.Catalog,
		carts:          s.Carts,
		orders:         s.Orders,
		dashboard:      s.Dashboard,
		imageBaseURL:   cfg.ImageBaseURL,
		maxUploadBytes: cfg.MaxUploadBytes,
	}
}

// Routes returns the API router. The app mounts it under /api.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, errRouteNotFound)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, errMethodNotAllowed)
	})

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", h.register)
		r.Post("/login", h.login)
		r.With(h.authenticate).Get("/profile", h.profile)
	})

	r.Route("/products", func(r chi.Router) {
		r.Get("/", h.listProducts)
		r.Get("/{id}", h.getProduct)
		r.Group(func(r chi.Router) {
			r.Use(h.authenticate, requireAdmin)
			r.Post("/", h.createProduct)
			r.Put("/{id}", h.updateProduct)
			r.Delete("/{id}", h.deleteProduct)
			r.Post("/{id}/images", h.addProductImages)
		})
	})

	r.Route("/cart", func(r chi.Router) {
		r.Use(h.authenticate)
		r.Get("/", h.getCart)
		r.Post("/", h.addCartItem)
		r.Put("/update", h.updateCartItem)
		r.Delete("/remove", h.removeCartItem)
		r.Delete("/clear", h.clearCart)
	})

	r.Route("/orders", func(r chi.Router) {
		r.Use(h.authenticate)
		r.Post("/create", h.createOrder)
		r.Post("/verify", h.verifyPayment)
		r.Get("/", h.listOrders)
		r.Get("/{id}", h.getOrder)
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(h.authenticate, requireAdmin)
		r.Get("/orders", h.adminListOrders)
		r.Put("/orders/{id}/status", h.setOrderStatus)
		r.Get("/users", h.listUsers)
		r.Put("/users/{id}/role", h.setUserRole)
		r.Get("/dashboard", h.getDashboard)
	})

	return r
}

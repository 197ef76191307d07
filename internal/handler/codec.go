package handler

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/tshirt-store/internal/domain/admin"
	"github.com/xenking/tshirt-store/internal/domain/auth"
	"github.com/xenking/tshirt-store/internal/domain/cart"
	"github.com/xenking/tshirt-store/internal/domain/order"
	"github.com/xenking/tshirt-store/internal/domain/page"
	"github.com/xenking/tshirt-store/internal/domain/product"
)

const maxJSONBody = 1 << 20

func decodeJSON(r *http.Request, dst any) error {
	err := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody)).Decode(dst)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, io.EOF):
		return invalidInput(err, "request body is required")
	default:
		return invalidInput(err, "invalid request body")
	}
}

// pageRequest reads the page and limit query parameters. Absent values
// fall back to the pagination defaults.
func pageRequest(r *http.Request) (page.Request, error) {
	q := r.URL.Query()
	var req page.Request
	for _, p := range []struct {
		name string
		dst  *int
	}{
		{"page", &req.Page},
		{"limit", &req.Size},
	} {
		raw := strings.TrimSpace(q.Get(p.name))
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil {
			return page.Request{}, invalidInput(err, p.name+" must be an integer")
		}
		*p.dst = n
	}
	return req.Normalize(), nil
}

func writeJSON(w http.ResponseWriter, status int, encode func(e *jx.Encoder)) {
	var e jx.Encoder
	encode(&e)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(e.Bytes())
}

func writeMessage(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("message", func(e *jx.Encoder) { e.Str(msg) })
		})
	})
}

func encodeMoney(e *jx.Encoder, d decimal.Decimal) {
	e.Float64(d.InexactFloat64())
}

func encodeTime(e *jx.Encoder, t time.Time) {
	e.Str(t.UTC().Format(time.RFC3339))
}

func encodeStrings(e *jx.Encoder, ss []string) {
	e.Arr(func(e *jx.Encoder) {
		for _, s := range ss {
			e.Str(s)
		}
	})
}

func encodePage[T any](e *jx.Encoder, res page.Result[T], item func(e *jx.Encoder, v *T)) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("items", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for i := range res.Items {
					item(e, &res.Items[i])
				}
			})
		})
		e.Field("total", func(e *jx.Encoder) { e.Int(res.Total) })
		e.Field("page", func(e *jx.Encoder) { e.Int(res.Page) })
		e.Field("pageSize", func(e *jx.Encoder) { e.Int(res.Size) })
		e.Field("totalPages", func(e *jx.Encoder) { e.Int(res.TotalPages) })
	})
}

// encodePrincipal writes the public view of p. The password digest never
// leaves the service.
func encodePrincipal(e *jx.Encoder, p *auth.Principal) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(p.ID) })
		e.Field("username", func(e *jx.Encoder) { e.Str(p.Username) })
		e.Field("email", func(e *jx.Encoder) { e.Str(p.Email) })
		e.Field("role", func(e *jx.Encoder) { e.Str(string(p.Role)) })
		e.Field("createdAt", func(e *jx.Encoder) { encodeTime(e, p.CreatedAt) })
	})
}

// encodeProduct writes p with image references prefixed by the configured
// base URL.
func (h *Handler) encodeProduct(e *jx.Encoder, p *product.Product) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(p.ID) })
		e.Field("name", func(e *jx.Encoder) { e.Str(p.Name) })
		e.Field("description", func(e *jx.Encoder) { e.Str(p.Description) })
		e.Field("price", func(e *jx.Encoder) { encodeMoney(e, p.Price) })
		e.Field("discount", func(e *jx.Encoder) { encodeMoney(e, p.Discount) })
		e.Field("effectivePrice", func(e *jx.Encoder) { encodeMoney(e, p.EffectivePrice()) })
		e.Field("category", func(e *jx.Encoder) { e.Str(p.Category) })
		e.Field("variants", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, v := range p.Variants {
					e.Obj(func(e *jx.Encoder) {
						e.Field("sizes", func(e *jx.Encoder) { encodeStrings(e, v.Sizes) })
						e.Field("colors", func(e *jx.Encoder) { encodeStrings(e, v.Colors) })
					})
				}
			})
		})
		e.Field("featured", func(e *jx.Encoder) { e.Bool(p.Featured) })
		e.Field("images", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, img := range p.Images {
					e.Str(h.imageURL(img))
				}
			})
		})
		e.Field("createdAt", func(e *jx.Encoder) { encodeTime(e, p.CreatedAt) })
		e.Field("updatedAt", func(e *jx.Encoder) { encodeTime(e, p.UpdatedAt) })
	})
}

func (h *Handler) imageURL(ref string) string {
	if ref == "" || h.imageBaseURL == "" {
		return ref
	}
	return strings.TrimSuffix(h.imageBaseURL, "/") + "/" + strings.TrimPrefix(ref, "/")
}

func (h *Handler) encodeCart(e *jx.Encoder, v *cart.View) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(v.ID) })
		e.Field("items", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for i := range v.Lines {
					h.encodeCartLine(e, &v.Lines[i])
				}
			})
		})
		e.Field("total", func(e *jx.Encoder) { encodeMoney(e, v.Total) })
		e.Field("itemCount", func(e *jx.Encoder) { e.Int(v.ItemCount) })
	})
}

func (h *Handler) encodeCartLine(e *jx.Encoder, l *cart.Line) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("productId", func(e *jx.Encoder) { e.Str(l.ProductID) })
		e.Field("quantity", func(e *jx.Encoder) { e.Int(l.Quantity) })
		e.Field("size", func(e *jx.Encoder) { e.Str(l.Size) })
		e.Field("color", func(e *jx.Encoder) { e.Str(l.Color) })
		e.Field("product", func(e *jx.Encoder) {
			if l.Product == nil {
				e.Null()
				return
			}
			h.encodeProduct(e, l.Product)
		})
		e.Field("unitPrice", func(e *jx.Encoder) { encodeMoney(e, l.UnitPrice) })
		e.Field("lineTotal", func(e *jx.Encoder) { encodeMoney(e, l.LineTotal) })
	})
}

func (h *Handler) encodeOrder(e *jx.Encoder, o *order.Order) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("id", func(e *jx.Encoder) { e.Str(o.ID) })
		e.Field("userId", func(e *jx.Encoder) { e.Str(o.OwnerID) })
		e.Field("items", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, it := range o.Items {
					e.Obj(func(e *jx.Encoder) {
						e.Field("productId", func(e *jx.Encoder) { e.Str(it.ProductID) })
						e.Field("name", func(e *jx.Encoder) { e.Str(it.Name) })
						e.Field("price", func(e *jx.Encoder) { encodeMoney(e, it.UnitPrice) })
						e.Field("quantity", func(e *jx.Encoder) { e.Int(it.Quantity) })
						e.Field("size", func(e *jx.Encoder) { e.Str(it.Size) })
						e.Field("color", func(e *jx.Encoder) { e.Str(it.Color) })
						e.Field("image", func(e *jx.Encoder) { e.Str(h.imageURL(it.Image)) })
					})
				}
			})
		})
		e.Field("totalAmount", func(e *jx.Encoder) { encodeMoney(e, o.Total) })
		e.Field("currency", func(e *jx.Encoder) { e.Str(o.Currency) })
		e.Field("shippingAddress", func(e *jx.Encoder) { encodeAddress(e, o.ShippingAddress) })
		e.Field("paymentIntentId", func(e *jx.Encoder) { e.Str(o.PaymentIntentID) })
		if o.PaymentReceiptID != "" {
			e.Field("paymentReceiptId", func(e *jx.Encoder) { e.Str(o.PaymentReceiptID) })
		}
		e.Field("status", func(e *jx.Encoder) { e.Str(string(o.Status)) })
		e.Field("createdAt", func(e *jx.Encoder) { encodeTime(e, o.CreatedAt) })
		e.Field("updatedAt", func(e *jx.Encoder) { encodeTime(e, o.UpdatedAt) })
	})
}

func encodeAddress(e *jx.Encoder, a order.Address) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("name", func(e *jx.Encoder) { e.Str(a.Name) })
		e.Field("street", func(e *jx.Encoder) { e.Str(a.Street) })
		e.Field("city", func(e *jx.Encoder) { e.Str(a.City) })
		e.Field("state", func(e *jx.Encoder) { e.Str(a.State) })
		e.Field("postalCode", func(e *jx.Encoder) { e.Str(a.PostalCode) })
		e.Field("country", func(e *jx.Encoder) { e.Str(a.Country) })
		e.Field("phone", func(e *jx.Encoder) { e.Str(a.Phone) })
	})
}

func (h *Handler) encodeDashboard(e *jx.Encoder, d *admin.Dashboard) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("totalProducts", func(e *jx.Encoder) { e.Int(d.TotalProducts) })
		e.Field("totalUsers", func(e *jx.Encoder) { e.Int(d.TotalUsers) })
		e.Field("totalOrders", func(e *jx.Encoder) { e.Int(d.TotalOrders) })
		e.Field("totalRevenue", func(e *jx.Encoder) { encodeMoney(e, d.TotalRevenue) })
		e.Field("recentOrders", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for i := range d.RecentOrders {
					h.encodeOrder(e, &d.RecentOrders[i])
				}
			})
		})
		e.Field("statusCounts", func(e *jx.Encoder) {
			e.Obj(func(e *jx.Encoder) {
				for _, s := range order.Statuses {
					e.Field(string(s), func(e *jx.Encoder) { e.Int(d.StatusCounts[s]) })
				}
			})
		})
	})
}

package handler

import (
	"net/http"

	"github.com/go-faster/jx"

	"github.com/xenking/tshirt-store/internal/domain/cart"
)

type cartItemRequest struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
	Size      string `json:"size"`
	Color     string `json:"color"`
}

func (c cartItemRequest) item() cart.Item {
	return cart.Item{
		ProductID: c.ProductID,
		Quantity:  c.Quantity,
		Size:      c.Size,
		Color:     c.Color,
	}
}

// respondCart answers with the caller's cart after a mutation.
func (h *Handler) respondCart(w http.ResponseWriter, r *http.Request) {
	v, err := h.carts.GetCart(r.Context(), PrincipalFrom(r.Context()).ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { h.encodeCart(e, v) })
}

func (h *Handler) getCart(w http.ResponseWriter, r *http.Request) {
	h.respondCart(w, r)
}

func (h *Handler) addCartItem(w http.ResponseWriter, r *http.Request) {
	var req cartItemRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.carts.AddItem(r.Context(), PrincipalFrom(r.Context()).ID, req.item()); err != nil {
		writeError(w, r, err)
		return
	}
	h.respondCart(w, r)
}

func (h *Handler) updateCartItem(w http.ResponseWriter, r *http.Request) {
	var req cartItemRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.carts.UpdateItem(r.Context(), PrincipalFrom(r.Context()).ID, req.item()); err != nil {
		writeError(w, r, err)
		return
	}
	h.respondCart(w, r)
}

// removeCartItem takes the item key from the JSON body, or from the
// productId, size and color query parameters when the body is empty.
func (h *Handler) removeCartItem(w http.ResponseWriter, r *http.Request) {
	var req cartItemRequest
	if r.ContentLength != 0 && r.Body != nil && r.Body != http.NoBody {
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, r, err)
			return
		}
	} else {
		q := r.URL.Query()
		req = cartItemRequest{
			ProductID: q.Get("productId"),
			Size:      q.Get("size"),
			Color:     q.Get("color"),
		}
	}
	if err := h.carts.RemoveItem(r.Context(), PrincipalFrom(r.Context()).ID, req.item().Key()); err != nil {
		writeError(w, r, err)
		return
	}
	h.respondCart(w, r)
}

func (h *Handler) clearCart(w http.ResponseWriter, r *http.Request) {
	if err := h.carts.ClearCart(r.Context(), PrincipalFrom(r.Context()).ID); err != nil {
		writeError(w, r, err)
		return
	}
	h.respondCart(w, r)
}

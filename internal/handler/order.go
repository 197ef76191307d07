package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/jx"

	"github.com/xenking/tshirt-store/internal/domain/order"
)

type createOrderRequest struct {
	ShippingAddress order.Address `json:"shippingAddress"`
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	res, err := h.orders.CreateOrder(r.Context(), PrincipalFrom(r.Context()).ID, req.ShippingAddress)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("orderId", func(e *jx.Encoder) { e.Str(res.Order.ID) })
			e.Field("razorpayOrderId", func(e *jx.Encoder) { e.Str(res.IntentID) })
			e.Field("amount", func(e *jx.Encoder) { encodeMoney(e, res.Order.Total) })
			e.Field("amountMinor", func(e *jx.Encoder) { e.Int64(res.AmountMinor) })
			e.Field("currency", func(e *jx.Encoder) { e.Str(res.Order.Currency) })
			e.Field("key", func(e *jx.Encoder) { e.Str(res.GatewayKeyID) })
		})
	})
}

// verifyPaymentRequest mirrors the callback the gateway checkout hands to
// the client.
type verifyPaymentRequest struct {
	IntentID  string `json:"razorpay_order_id"`
	ReceiptID string `json:"razorpay_payment_id"`
	Signature string `json:"razorpay_signature"`
}

func (h *Handler) verifyPayment(w http.ResponseWriter, r *http.Request) {
	var req verifyPaymentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	o, err := h.orders.VerifyPayment(r.Context(), PrincipalFrom(r.Context()).ID, order.VerifyRequest{
		IntentID:  req.IntentID,
		ReceiptID: req.ReceiptID,
		Signature: req.Signature,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) {
		e.Obj(func(e *jx.Encoder) {
			e.Field("message", func(e *jx.Encoder) { e.Str("payment verified") })
			e.Field("order", func(e *jx.Encoder) { h.encodeOrder(e, o) })
		})
	})
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	req, err := pageRequest(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	res, err := h.orders.ListOrders(r.Context(), PrincipalFrom(r.Context()).ID, req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { encodePage(e, res, h.encodeOrder) })
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.orders.GetOrder(r.Context(), chi.URLParam(r, "id"), PrincipalFrom(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, func(e *jx.Encoder) { h.encodeOrder(e, o) })
}

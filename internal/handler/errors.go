package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/tshirt-store/internal/domain/apperr"
	"github.com/xenking/tshirt-store/internal/domain/order"
	"github.com/xenking/tshirt-store/pkg/httpmiddleware"
)

var (
	errRouteNotFound    = apperr.New(apperr.NotFound, "route not found")
	errMethodNotAllowed = apperr.New(apperr.InvalidInput, "method not allowed")
)

// statusOf maps an error to its HTTP status code.
func statusOf(err error) int {
	// Checkout on an empty cart is a client mistake, not a state conflict.
	if errors.Is(err, order.ErrEmptyCart) {
		return http.StatusBadRequest
	}
	if errors.Is(err, errMethodNotAllowed) {
		return http.StatusMethodNotAllowed
	}
	switch apperr.KindOf(err) {
	case apperr.Unauthenticated:
		return http.StatusUnauthorized
	case apperr.Forbidden:
		return http.StatusForbidden
	case apperr.NotFound:
		return http.StatusNotFound
	case apperr.InvalidInput, apperr.InvalidSignature:
		return http.StatusBadRequest
	case apperr.InvalidState, apperr.Conflict:
		return http.StatusConflict
	case apperr.GatewayUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError answers r with the error envelope. Unclassified errors are
// logged and answered with a generic message.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusOf(err)
	kind := apperr.KindOf(err)
	if status >= http.StatusInternalServerError {
		lg := zctx.From(r.Context())
		if kind == apperr.Internal {
			lg.Error("Request failed", zap.Error(err), zap.String("route", httpmiddleware.RoutePattern(r)))
		} else {
			lg.Warn("Request failed", zap.Error(err), zap.String("kind", string(kind)))
		}
	}
	httpmiddleware.WriteError(w, status, string(kind), apperr.MessageOf(err))
}

func invalidInput(err error, msg string) error {
	return apperr.Wrap(apperr.InvalidInput, err, msg)
}

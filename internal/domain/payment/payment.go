// Package payment describes the external payment gateway the checkout flow
// talks to.
package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"

	"github.com/xenking/tshirt-store/internal/domain/apperr"
)

var (
	ErrGatewayUnavailable = apperr.New(apperr.GatewayUnavailable, "payment gateway unavailable")
	ErrInvalidSignature   = apperr.New(apperr.InvalidSignature, "invalid payment signature")
)

// IntentRequest asks the gateway to prepare a payment.
type IntentRequest struct {
	AmountMinor int64
	Currency    string
	ReceiptRef  string
}

// Intent is a gateway-side payment awaiting completion by the customer.
type Intent struct {
	ID          string
	AmountMinor int64
	Currency    string
	Status      string
}

// Gateway creates payment intents and verifies completion callbacks.
type Gateway interface {
	// CreateIntent fails with an ErrGatewayUnavailable-classified error on
	// transport failures, timeouts and rejected requests.
	CreateIntent(ctx context.Context, req IntentRequest) (*Intent, error)
	// VerifySignature reports whether signature proves that receiptID paid
	// intentID.
	VerifySignature(intentID, receiptID, signature string) bool
}

// Sign computes the callback signature for an intent and receipt:
// hex(HMAC-SHA256(secret, intentID + "|" + receiptID)).
func Sign(secret, intentID, receiptID string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(intentID + "|" + receiptID))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySign checks a signature produced by Sign in constant time.
func VerifySign(secret, intentID, receiptID, signature string) bool {
	got, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(intentID + "|" + receiptID))
	return hmac.Equal(mac.Sum(nil), got)
}

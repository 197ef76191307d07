// Package razorpay is a payment.Gateway backed by the Razorpay orders API.
package razorpay

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/tshirt-store/internal/domain/apperr"
	"github.com/xenking/tshirt-store/internal/domain/payment"
)

const (
	DefaultBaseURL = "https://api.razorpay.com"
	DefaultTimeout = 10 * time.Second

	// maxResponseBytes bounds how much of a gateway reply is read.
	maxResponseBytes = 1 << 20
)

// Config holds gateway credentials and endpoint settings.
type Config struct {
	KeyID     string
	KeySecret string
	BaseURL   string
	Timeout   time.Duration
}

var _ payment.Gateway = (*Client)(nil)

// Client creates Razorpay orders (payment intents) and checks checkout
// callback signatures.
type Client struct {
	cfg  Config
	http *http.Client
	lg   *zap.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.http = c }
}

// WithLogger sets the logger for rejected requests.
func WithLogger(lg *zap.Logger) Option {
	return func(cl *Client) { cl.lg = lg }
}

// WithTracerProvider instruments outgoing requests.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(cl *Client) {
		cl.http.Transport = otelhttp.NewTransport(cl.http.Transport, otelhttp.WithTracerProvider(tp))
	}
}

func New(cfg Config, opts ...Option) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	c := &Client{
		cfg:  cfg,
		http: &http.Client{Transport: http.DefaultTransport},
		lg:   zap.NewNop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// CreateIntent posts a new order to the gateway. Every failure, including
// a rejected request, is classified as gateway unavailable.
func (c *Client) CreateIntent(ctx context.Context, req payment.IntentRequest) (*payment.Intent, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	var e jx.Encoder
	e.Obj(func(e *jx.Encoder) {
		e.Field("amount", func(e *jx.Encoder) { e.Int64(req.AmountMinor) })
		e.Field("currency", func(e *jx.Encoder) { e.Str(req.Currency) })
		e.Field("receipt", func(e *jx.Encoder) { e.Str(req.ReceiptRef) })
	})

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/v1/orders", bytes.NewReader(e.Bytes()))
	if err != nil {
		return nil, unavailable(err, "build request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.SetBasicAuth(c.cfg.KeyID, c.cfg.KeySecret)

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, unavailable(err, "send request")
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, unavailable(err, "read response")
	}

	if resp.StatusCode >= 400 {
		desc := errorDescription(body)
		c.lg.Warn("Gateway rejected order",
			zap.Int("status", resp.StatusCode),
			zap.String("description", desc),
			zap.String("receipt", req.ReceiptRef),
		)
		return nil, unavailable(errors.Errorf("status %d: %s", resp.StatusCode, desc), "create order")
	}

	intent, err := decodeIntent(body)
	if err != nil {
		return nil, unavailable(err, "decode response")
	}
	return intent, nil
}

// VerifySignature checks the checkout callback signature with the key
// secret.
func (c *Client) VerifySignature(intentID, receiptID, signature string) bool {
	return payment.VerifySign(c.cfg.KeySecret, intentID, receiptID, signature)
}

func unavailable(err error, msg string) error {
	return apperr.Wrap(apperr.GatewayUnavailable, errors.Wrap(err, msg), "payment gateway unavailable")
}

func decodeIntent(body []byte) (*payment.Intent, error) {
	var in payment.Intent
	d := jx.DecodeBytes(body)
	if err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		var err error
		switch string(key) {
		case "id":
			in.ID, err = d.Str()
		case "amount":
			in.AmountMinor, err = d.Int64()
		case "currency":
			in.Currency, err = d.Str()
		case "status":
			in.Status, err = d.Str()
		default:
			err = d.Skip()
		}
		return err
	}); err != nil {
		return nil, err
	}
	if in.ID == "" {
		return nil, errors.New("response has no order id")
	}
	return &in, nil
}

// errorDescription extracts error.description from a gateway error body.
func errorDescription(body []byte) string {
	var desc string
	d := jx.DecodeBytes(body)
	err := d.ObjBytes(func(d *jx.Decoder, key []byte) error {
		if string(key) != "error" {
			return d.Skip()
		}
		return d.ObjBytes(func(d *jx.Decoder, key []byte) error {
			if string(key) != "description" {
				return d.Skip()
			}
			var err error
			desc, err = d.Str()
			return err
		})
	})
	if err != nil || desc == "" {
		return strings.TrimSpace(string(body))
	}
	return desc
}

package order

import (
	"context"
	"strings"
	"time"

	"github.com/go-faster/errors"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/xenking/tshirt-store/internal/domain/apperr"
	"github.com/xenking/tshirt-store/internal/domain/auth"
	"github.com/xenking/tshirt-store/internal/domain/cart"
	"github.com/xenking/tshirt-store/internal/domain/page"
	"github.com/xenking/tshirt-store/internal/domain/payment"
	"github.com/xenking/tshirt-store/internal/domain/pricing"
)

const instrumentationName = "github.com/xenking/tshirt-store/internal/domain/order"

var (
	ErrNotFound          = apperr.New(apperr.NotFound, "order not found")
	ErrEmptyCart         = apperr.New(apperr.InvalidState, "cart is empty")
	ErrForbidden         = apperr.New(apperr.Forbidden, "order belongs to another user")
	ErrInvalidTransition = apperr.New(apperr.InvalidState, "order status does not allow this change")
	ErrReceiptConflict   = apperr.New(apperr.Conflict, "order already paid with a different receipt")
	ErrConcurrentUpdate  = apperr.New(apperr.Conflict, "order status changed concurrently")
	ErrPaymentFields     = apperr.New(apperr.InvalidInput, "payment intent id, receipt id and signature are required")
	ErrInvalidQuantity   = apperr.Newf(apperr.InvalidState, "cart line quantities must be between 1 and %d", cart.MaxQuantity)
)

// errTransitionLost signals that a compare-and-set on the order status
// matched no row.
var errTransitionLost = errors.New("status transition lost")

// Carts is the cart view the checkout flow snapshots and clears.
type Carts interface {
	GetCart(ctx context.Context, ownerID string) (*cart.View, error)
	ClearCart(ctx context.Context, ownerID string) error
}

// Config holds non-dependency settings of the checkout flow.
type Config struct {
	// Currency is the ISO code orders are charged in.
	Currency string
	// GatewayKeyID is the public gateway key returned to clients so they can
	// open the gateway checkout.
	GatewayKeyID string
}

// CreateResult is what a client needs to complete payment of a new order.
type CreateResult struct {
	Order        *Order
	IntentID     string
	AmountMinor  int64
	GatewayKeyID string
}

// VerifyRequest is the signed gateway callback relayed by the client.
type VerifyRequest struct {
	IntentID  string
	ReceiptID string
	Signature string
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(lg *zap.Logger) Option {
	return func(s *Service) { s.lg = lg }
}

// WithEvents sets the publisher for order lifecycle events.
func WithEvents(p EventPublisher) Option {
	return func(s *Service) { s.events = p }
}

// WithTelemetry sets the tracer and meter providers.
func WithTelemetry(tp trace.TracerProvider, mp metric.MeterProvider) Option {
	return func(s *Service) {
		s.tracerProvider = tp
		s.meterProvider = mp
	}
}

// Service implements checkout, payment verification and order queries.
type Service struct {
	cfg     Config
	orders  Repository
	carts   Carts
	gateway payment.Gateway
	tx      Transactor
	events  EventPublisher
	lg      *zap.Logger
	now     func() time.Time

	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
	tracer         trace.Tracer
	created        metric.Int64Counter
	paid           metric.Int64Counter
	gatewayErrors  metric.Int64Counter
}

// NewService creates the checkout Service.
func NewService(
	cfg Config,
	orders Repository,
	carts Carts,
	gateway payment.Gateway,
	tx Transactor,
	opts ...Option,
) (*Service, error) {
	s := &Service{
		cfg:            cfg,
		orders:         orders,
		carts:          carts,
		gateway:        gateway,
		tx:             tx,
		events:         NopPublisher{},
		lg:             zap.NewNop(),
		now:            time.Now,
		tracerProvider: otel.GetTracerProvider(),
		meterProvider:  otel.GetMeterProvider(),
	}
	for _, o := range opts {
		o(s)
	}
	if s.cfg.Currency == "" {
		s.cfg.Currency = "INR"
	}

	s.tracer = s.tracerProvider.Tracer(instrumentationName)
	meter := s.meterProvider.Meter(instrumentationName)
	var err error
	if s.created, err = meter.Int64Counter("store.orders.created",
		metric.WithDescription("Orders created at checkout"),
	); err != nil {
		return nil, errors.Wrap(err, "orders created counter")
	}
	if s.paid, err = meter.Int64Counter("store.orders.paid",
		metric.WithDescription("Orders whose payment was verified"),
	); err != nil {
		return nil, errors.Wrap(err, "orders paid counter")
	}
	if s.gatewayErrors, err = meter.Int64Counter("store.payment.gateway_errors",
		metric.WithDescription("Failed payment gateway calls"),
	); err != nil {
		return nil, errors.Wrap(err, "gateway errors counter")
	}
	return s, nil
}

// CreateOrder snapshots the owner's cart into a new order and opens a
// payment intent for its total. Nothing is persisted when the gateway call
// fails. The cart is left untouched until payment is verified.
func (s *Service) CreateOrder(ctx context.Context, ownerID string, addr Address) (*CreateResult, error) {
	view, err := s.carts.GetCart(ctx, ownerID)
	if err != nil {
		return nil, errors.Wrap(err, "get cart")
	}

	items := make([]Item, 0, len(view.Lines))
	lines := make([]pricing.Line, 0, len(view.Lines))
	for _, l := range view.Lines {
		if l.Product == nil {
			continue
		}
		if l.Quantity < 1 || l.Quantity > cart.MaxQuantity {
			return nil, ErrInvalidQuantity
		}
		items = append(items, Item{
			ProductID: l.ProductID,
			Name:      l.Product.Name,
			UnitPrice: l.UnitPrice,
			Quantity:  l.Quantity,
			Size:      l.Size,
			Color:     l.Color,
			Image:     l.Product.Thumbnail(),
		})
		lines = append(lines, pricing.Line{UnitPrice: l.UnitPrice, Quantity: l.Quantity})
	}
	if len(items) == 0 {
		return nil, ErrEmptyCart
	}
	if err := addr.Validate(); err != nil {
		return nil, err
	}

	id := uuid.New()
	total := pricing.Total(lines)
	intent, err := s.createIntent(ctx, payment.IntentRequest{
		AmountMinor: pricing.ToMinorUnits(total),
		Currency:    s.cfg.Currency,
		ReceiptRef:  "rcpt_" + strings.ReplaceAll(id.String(), "-", ""),
	})
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	o := &Order{
		ID:              id.String(),
		OwnerID:         ownerID,
		Items:           items,
		Total:           total,
		Currency:        s.cfg.Currency,
		ShippingAddress: addr,
		PaymentIntentID: intent.ID,
		Status:          StatusCreated,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.orders.Create(ctx, o); err != nil {
		return nil, errors.Wrap(err, "create order")
	}

	s.created.Add(ctx, 1)
	s.lg.Info("Order created",
		zap.String("order_id", o.ID),
		zap.String("owner_id", ownerID),
		zap.String("intent_id", intent.ID),
		zap.String("total", total.StringFixed(2)),
	)
	s.publish(ctx, newEvent(EventCreated, o))

	return &CreateResult{
		Order:        o,
		IntentID:     intent.ID,
		AmountMinor:  intent.AmountMinor,
		GatewayKeyID: s.cfg.GatewayKeyID,
	}, nil
}

func (s *Service) createIntent(ctx context.Context, req payment.IntentRequest) (*payment.Intent, error) {
	ctx, span := s.tracer.Start(ctx, "payment.CreateIntent", trace.WithAttributes(
		attribute.Int64("payment.amount_minor", req.AmountMinor),
		attribute.String("payment.currency", req.Currency),
	))
	defer span.End()

	intent, err := s.gateway.CreateIntent(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "create intent")
		s.gatewayErrors.Add(ctx, 1)
		s.lg.Warn("Payment gateway failed", zap.Error(err))
		if apperr.KindOf(err) != apperr.GatewayUnavailable {
			err = apperr.Wrap(apperr.GatewayUnavailable, err, payment.ErrGatewayUnavailable.Message)
		}
		return nil, err
	}
	if intent.AmountMinor == 0 {
		intent.AmountMinor = req.AmountMinor
	}
	return intent, nil
}

// VerifyPayment checks a gateway callback and marks the order paid,
// clearing the owner's cart in the same transaction. Repeating a successful
// verification is a no-op.
func (s *Service) VerifyPayment(ctx context.Context, ownerID string, req VerifyRequest) (*Order, error) {
	if req.IntentID == "" || req.ReceiptID == "" || req.Signature == "" {
		return nil, ErrPaymentFields
	}
	if !s.gateway.VerifySignature(req.IntentID, req.ReceiptID, req.Signature) {
		s.lg.Warn("Payment signature rejected", zap.String("intent_id", req.IntentID))
		return nil, payment.ErrInvalidSignature
	}

	o, err := s.orders.GetByPaymentIntent(ctx, req.IntentID)
	if err != nil {
		return nil, err
	}
	if o.OwnerID != ownerID {
		return nil, ErrForbidden
	}

	switch o.Status {
	case StatusPaid:
		return alreadyPaid(o, req.ReceiptID)
	case StatusCreated:
	default:
		return nil, ErrInvalidTransition
	}

	now := s.now().UTC()
	err = s.tx.WithinTx(ctx, func(ctx context.Context) error {
		ok, err := s.orders.TransitionStatus(ctx, o.ID, StatusCreated, StatusPaid, req.ReceiptID, now)
		if err != nil {
			return errors.Wrap(err, "mark paid")
		}
		if !ok {
			return errTransitionLost
		}
		return s.carts.ClearCart(ctx, ownerID)
	})
	if errors.Is(err, errTransitionLost) {
		// A concurrent verification won; report its outcome.
		cur, getErr := s.orders.GetByID(ctx, o.ID)
		if getErr != nil {
			return nil, getErr
		}
		if cur.Status == StatusPaid {
			return alreadyPaid(cur, req.ReceiptID)
		}
		return nil, ErrInvalidTransition
	}
	if err != nil {
		return nil, err
	}

	o.Status = StatusPaid
	o.PaymentReceiptID = req.ReceiptID
	o.UpdatedAt = now

	s.paid.Add(ctx, 1)
	s.lg.Info("Order paid",
		zap.String("order_id", o.ID),
		zap.String("receipt_id", req.ReceiptID),
	)
	s.publish(ctx, newEvent(EventPaid, o))
	return o, nil
}

func alreadyPaid(o *Order, receiptID string) (*Order, error) {
	if o.PaymentReceiptID != receiptID {
		return nil, ErrReceiptConflict
	}
	return o, nil
}

// ListOrders returns the owner's orders, newest first.
func (s *Service) ListOrders(ctx context.Context, ownerID string, req page.Request) (page.Result[Order], error) {
	req = req.Normalize()
	items, total, err := s.orders.ListByOwner(ctx, ownerID, req)
	if err != nil {
		return page.Result[Order]{}, errors.Wrap(err, "list orders")
	}
	return page.NewResult(items, total, req), nil
}

// GetOrder returns an order visible to caller: its owner or an admin.
func (s *Service) GetOrder(ctx context.Context, id string, caller *auth.Principal) (*Order, error) {
	if err := auth.RequireAuthenticated(caller); err != nil {
		return nil, err
	}
	o, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if o.OwnerID != caller.ID && !caller.IsAdmin() {
		return nil, ErrForbidden
	}
	return o, nil
}

// AdminListOrders lists all orders, optionally restricted to one status.
func (s *Service) AdminListOrders(ctx context.Context, status string, req page.Request) (page.Result[Order], error) {
	f := ListFilter{Page: req.Normalize()}
	if strings.TrimSpace(status) != "" {
		st, err := ParseStatus(status)
		if err != nil {
			return page.Result[Order]{}, err
		}
		f.Status = st
	}
	items, total, err := s.orders.List(ctx, f)
	if err != nil {
		return page.Result[Order]{}, errors.Wrap(err, "list orders")
	}
	return page.NewResult(items, total, f.Page), nil
}

// SetStatus moves an order along the admin transition table. Setting the
// current status again is a no-op.
func (s *Service) SetStatus(ctx context.Context, id, status string) (*Order, error) {
	next, err := ParseStatus(status)
	if err != nil {
		return nil, err
	}
	o, err := s.orders.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if o.Status == next {
		return o, nil
	}
	if !o.Status.CanTransitionTo(next) {
		return nil, apperr.Newf(apperr.InvalidState, "cannot change order status from %s to %s", o.Status, next)
	}

	now := s.now().UTC()
	ok, err := s.orders.TransitionStatus(ctx, id, o.Status, next, "", now)
	if err != nil {
		return nil, errors.Wrap(err, "set status")
	}
	if !ok {
		return nil, ErrConcurrentUpdate
	}

	prev := o.Status
	o.Status = next
	o.UpdatedAt = now
	s.lg.Info("Order status changed",
		zap.String("order_id", id),
		zap.String("from", string(prev)),
		zap.String("to", string(next)),
	)
	s.publish(ctx, newEvent(EventStatusChanged, o))
	return o, nil
}

func (s *Service) publish(ctx context.Context, e Event) {
	if err := s.events.Publish(ctx, e); err != nil {
		s.lg.Error("Publish order event",
			zap.String("type", e.Type),
			zap.String("order_id", e.OrderID),
			zap.Error(err),
		)
	}
}

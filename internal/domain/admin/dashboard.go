// Package admin aggregates store-wide figures for the admin dashboard.
package admin

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/xenking/tshirt-store/internal/domain/order"
)

// RecentOrdersLimit is how many recent orders the dashboard shows.
const RecentOrdersLimit = 5

// Counter counts stored entities.
type Counter interface {
	Count(ctx context.Context) (int, error)
}

// OrderStats is the slice of order.Repository the dashboard reads.
type OrderStats interface {
	CountByStatus(ctx context.Context) (map[order.Status]int, error)
	Revenue(ctx context.Context, status order.Status) (decimal.Decimal, error)
	Recent(ctx context.Context, limit int) ([]order.Order, error)
}

// Dashboard is the admin overview.
type Dashboard struct {
	TotalProducts int
	TotalUsers    int
	TotalOrders   int
	// TotalRevenue sums orders in the paid status only.
	TotalRevenue decimal.Decimal
	RecentOrders []order.Order
	// StatusCounts has an entry for every status, zero included.
	StatusCounts map[order.Status]int
}

// Service builds dashboards.
type Service struct {
	products Counter
	users    Counter
	orders   OrderStats
}

// NewService creates a dashboard Service.
func NewService(products, users Counter, orders OrderStats) *Service {
	return &Service{products: products, users: users, orders: orders}
}

// Dashboard runs the dashboard queries concurrently.
func (s *Service) Dashboard(ctx context.Context) (*Dashboard, error) {
	var (
		d      Dashboard
		counts map[order.Status]int
	)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := s.products.Count(ctx)
		if err != nil {
			return errors.Wrap(err, "count products")
		}
		d.TotalProducts = n
		return nil
	})
	g.Go(func() error {
		n, err := s.users.Count(ctx)
		if err != nil {
			return errors.Wrap(err, "count users")
		}
		d.TotalUsers = n
		return nil
	})
	g.Go(func() error {
		c, err := s.orders.CountByStatus(ctx)
		if err != nil {
			return errors.Wrap(err, "count orders")
		}
		counts = c
		return nil
	})
	g.Go(func() error {
		rev, err := s.orders.Revenue(ctx, order.StatusPaid)
		if err != nil {
			return errors.Wrap(err, "revenue")
		}
		d.TotalRevenue = rev
		return nil
	})
	g.Go(func() error {
		recent, err := s.orders.Recent(ctx, RecentOrdersLimit)
		if err != nil {
			return errors.Wrap(err, "recent orders")
		}
		d.RecentOrders = recent
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	d.StatusCounts = make(map[order.Status]int, len(order.Statuses))
	for _, st := range order.Statuses {
		d.StatusCounts[st] = counts[st]
	}
	for _, n := range counts {
		d.TotalOrders += n
	}
	if d.RecentOrders == nil {
		d.RecentOrders = []order.Order{}
	}
	return &d, nil
}

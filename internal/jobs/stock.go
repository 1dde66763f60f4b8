// Package jobs runs periodic background work next to the API.
package jobs

import (
	"context"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/food-checkout/internal/domain/stock"
	"github.com/xenking/food-checkout/internal/notify"
)

// StockSweep reports tracked items at or below their low-stock threshold.
// An item is reported again only after its quantity changes.
type StockSweep struct {
	repo    stock.Repository
	alerter notify.StockAlerter

	mu       sync.Mutex
	reported map[string]int
}

// NewStockSweep creates a StockSweep.
func NewStockSweep(repo stock.Repository, alerter notify.StockAlerter) *StockSweep {
	return &StockSweep{
		repo:     repo,
		alerter:  alerter,
		reported: make(map[string]int),
	}
}

// Run performs one sweep and returns the entries it alerted on.
func (s *StockSweep) Run(ctx context.Context) ([]stock.Entry, error) {
	low, err := s.repo.ListLow(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "list low stock")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current := make(map[string]int, len(low))
	var fresh []stock.Entry
	for _, e := range low {
		current[e.ItemID] = e.Quantity
		if q, ok := s.reported[e.ItemID]; ok && q == e.Quantity {
			continue
		}
		fresh = append(fresh, e)
	}
	if len(fresh) > 0 {
		if err := s.alerter.StockLow(ctx, fresh); err != nil {
			return nil, errors.Wrap(err, "alert low stock")
		}
	}
	// Restocked items drop out so a later shortage is reported again.
	s.reported = current
	return fresh, nil
}

// Scheduler wraps a gocron scheduler running the API's background jobs.
type Scheduler struct {
	s gocron.Scheduler
}

// Start schedules sweep every interval and starts the scheduler. Jobs log
// through the logger carried by ctx.
func Start(ctx context.Context, interval time.Duration, sweep *StockSweep) (*Scheduler, error) {
	s, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return nil, errors.Wrap(err, "create scheduler")
	}

	lg := zctx.From(ctx).Named("jobs")
	_, err = s.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			entries, err := sweep.Run(ctx)
			if err != nil {
				lg.Warn("Stock sweep failed", zap.Error(err))
				return
			}
			if len(entries) > 0 {
				lg.Info("Stock sweep reported items", zap.Int("count", len(entries)))
			}
		}),
		gocron.WithName("stock-sweep"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		_ = s.Shutdown()
		return nil, errors.Wrap(err, "schedule stock sweep")
	}

	s.Start()
	lg.Info("Scheduler started", zap.Duration("stock_sweep_interval", interval))
	return &Scheduler{s: s}, nil
}

// Shutdown stops the scheduler and waits for running jobs.
func (s *Scheduler) Shutdown() error {
	return s.s.Shutdown()
}

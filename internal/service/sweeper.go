package service

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go-storefront-ledger/internal/model"
	"go-storefront-ledger/internal/repository"

	"github.com/panjf2000/ants/v2"
	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

type SweeperOptions struct {
	// PendingTTL is how long an order may wait for payment before it fails.
	PendingTTL time.Duration
	// MinAge leaves recently requested payments to the request still waiting on them.
	MinAge    time.Duration
	BatchSize int
	Workers   int
}

type SweepReport struct {
	Checked   int64 `json:"checked"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Expired   int64 `json:"expired"`
}

// PaymentSweeper re-asks the gateway about orders stuck in payment_pending
// and fails the ones nobody confirmed within PendingTTL.
type PaymentSweeper struct {
	store      repository.Store
	lifecycle  OrderLifecycle
	reconciler PaymentReconciler
	opts       SweeperOptions
	pool       *ants.Pool
	sched      *cron.Cron
	now        func() time.Time
}

func NewPaymentSweeper(store repository.Store, lifecycle OrderLifecycle, reconciler PaymentReconciler, opts SweeperOptions) (*PaymentSweeper, error) {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	if opts.BatchSize < 1 {
		opts.BatchSize = 100
	}
	if opts.PendingTTL <= 0 {
		opts.PendingTTL = 48 * time.Hour
	}
	pool, err := ants.NewPool(opts.Workers)
	if err != nil {
		return nil, errors.Wrap(err, "sweeper pool")
	}
	return &PaymentSweeper{
		store:      store,
		lifecycle:  lifecycle,
		reconciler: reconciler,
		opts:       opts,
		pool:       pool,
		now:        time.Now,
	}, nil
}

// Start schedules Sweep. Overlapping runs are skipped.
func (s *PaymentSweeper) Start(schedule string) error {
	s.sched = cron.New(
		cron.WithParser(cronParser),
		cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)),
	)
	_, err := s.sched.AddFunc(schedule, func() {
		defer func() {
			if err := recover(); err != nil {
				zap.S().Error(err)
			}
		}()
		report, err := s.Sweep(context.Background())
		if err != nil {
			zap.L().Error("payment sweep failed", zap.Error(err))
			return
		}
		if report.Checked > 0 {
			zap.L().Info("payment sweep finished",
				zap.Int64("checked", report.Checked),
				zap.Int64("completed", report.Completed),
				zap.Int64("failed", report.Failed),
				zap.Int64("expired", report.Expired),
			)
		}
	})
	if err != nil {
		return errors.Wrapf(err, "schedule %q", schedule)
	}
	s.sched.Start()
	return nil
}

func (s *PaymentSweeper) Stop() {
	if s.sched != nil {
		<-s.sched.Stop().Done()
	}
	s.pool.Release()
}

func (s *PaymentSweeper) Sweep(ctx context.Context) (*SweepReport, error) {
	now := s.now()
	orders, err := s.store.ListAwaitingPayment(ctx, now.Add(-s.opts.MinAge), s.opts.BatchSize)
	if err != nil {
		return nil, err
	}

	report := &SweepReport{}
	var wg sync.WaitGroup
	for i := range orders {
		o := orders[i]
		wg.Add(1)
		err := s.pool.Submit(func() {
			defer wg.Done()
			s.reconcile(ctx, &o, now, report)
		})
		if err != nil {
			wg.Done()
			zap.L().Warn("sweep task not submitted", zap.String("order", o.ID.String()), zap.Error(err))
		}
	}
	wg.Wait()
	return report, nil
}

func (s *PaymentSweeper) reconcile(ctx context.Context, o *model.Order, now time.Time, report *SweepReport) {
	atomic.AddInt64(&report.Checked, 1)

	if o.PaymentReference != "" {
		settlement := s.reconciler.Recheck(ctx, o.PaymentReference)
		if settlement.Outcome != SettlementSilent {
			if _, err := s.lifecycle.ApplySettlement(ctx, o.ID, settlement); err != nil {
				zap.L().Warn("apply settlement failed", zap.String("order", o.ID.String()), zap.Error(err))
				return
			}
			if settlement.Outcome == SettlementCompleted {
				atomic.AddInt64(&report.Completed, 1)
			} else {
				atomic.AddInt64(&report.Failed, 1)
			}
			return
		}
	}

	if o.PaymentRequestedAt == nil || now.Sub(*o.PaymentRequestedAt) < s.opts.PendingTTL {
		return
	}
	if _, err := s.lifecycle.Expire(ctx, o.ID, "payment was not confirmed in time"); err != nil {
		zap.L().Warn("expire order failed", zap.String("order", o.ID.String()), zap.Error(err))
		return
	}
	atomic.AddInt64(&report.Expired, 1)
}

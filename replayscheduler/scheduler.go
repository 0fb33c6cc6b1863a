// Package replayscheduler drives a cron-scheduled catch-up pass over the
// outbox buffer, giving staged events a chance to reach handlers again
// without the eventsourcing core ever retrying on its own. Redelivery is
// not a second dispatch path of its own: every staged item is replayed
// through the same EventStore.ReplayEvents seam a full-stream catch-up
// would use, just fed one row at a time so Drain keeps its per-item
// retry bookkeeping.
package replayscheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/fastygo/eventcore/eventsourcing"
	"github.com/fastygo/eventcore/outbox"
	applogger "github.com/fastygo/eventcore/pkg/logger"
)

// Config controls how frequently the outbox is drained and how many
// attempts a single staged event gets before it is dropped.
type Config struct {
	Interval   time.Duration
	BatchSize  int
	MaxRetries int
	// Ordering is the ordering each redelivered item's supplier declares
	// to EventStore.ReplayEvents (REPLAY_ORDERING, resolved by
	// internal/config.ReplayConfig.ReplayOrdering).
	Ordering eventsourcing.ReplayOrdering
}

// Scheduler periodically redelivers staged outbox items through
// EventStore.ReplayEvents.
type Scheduler struct {
	outbox *outbox.Store
	store  eventsourcing.EventStore
	logger *zap.Logger
	cron   *cron.Cron
	cfg    Config
}

// New builds a Scheduler that redelivers items staged in outboxStore by
// replaying each one through store.
func New(outboxStore *outbox.Store, store eventsourcing.EventStore, logger *zap.Logger, cfg Config) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 50
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 5
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Scheduler{
		outbox: outboxStore,
		store:  store,
		logger: logger,
		cfg:    cfg,
		cron:   cron.New(cron.WithSeconds()),
	}

	schedule := fmt.Sprintf("@every %ds", int(cfg.Interval.Seconds()))
	_, _ = s.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Interval)
		defer cancel()
		if err := s.Drain(ctx); err != nil {
			s.logger.Error("outbox drain failed", zap.Error(err))
		}
	})

	return s
}

// Start launches the cron loop.
func (s *Scheduler) Start() {
	if s == nil || s.cron == nil {
		return
	}
	s.cron.Start()
	s.logger.Info("replay scheduler started")
}

// Stop gracefully stops the cron loop, waiting up to ctx's deadline.
func (s *Scheduler) Stop(ctx context.Context) {
	if s == nil || s.cron == nil {
		return
	}
	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
	}
	s.logger.Info("replay scheduler stopped")
}

// Drain pulls up to BatchSize staged items and replays each through
// EventStore.ReplayEvents; items that succeed are removed, items that
// fail are requeued with a bumped retry count, and items past
// MaxRetries are dropped with a warning.
func (s *Scheduler) Drain(ctx context.Context) error {
	if s == nil || s.outbox == nil {
		return nil
	}

	items, err := s.outbox.GetBatch(s.cfg.BatchSize)
	if err != nil {
		return err
	}

	for _, item := range items {
		itemCtx := applogger.ContextWithAggregateID(ctx, item.AggregateID)
		itemCtx = applogger.ContextWithEventType(itemCtx, item.EventType)
		log := applogger.WithFields(itemCtx, s.logger)

		if err := s.redeliver(itemCtx, item); err != nil {
			log.Error("failed to redeliver outbox item",
				zap.String("item_id", item.ID),
				zap.Error(err))

			if item.Retries+1 >= s.cfg.MaxRetries {
				log.Warn("dropping outbox item (max retries reached)",
					zap.String("item_id", item.ID))
				_ = s.outbox.Remove(item)
				continue
			}
			if err := s.outbox.Remove(item); err != nil {
				log.Warn("failed to remove outbox item before requeue", zap.Error(err))
			}
			if err := s.outbox.Requeue(item); err != nil {
				log.Error("failed to requeue outbox item", zap.Error(err))
			}
			continue
		}

		if err := s.outbox.Remove(item); err != nil {
			log.Warn("failed to purge redelivered outbox item", zap.Error(err))
		}
	}
	return nil
}

// redeliver wraps a single staged item as a one-row RawEventSupplier and
// hands it to the EventStore, so redelivery exercises exactly the same
// decode-and-dispatch path a full-stream replay would use (§4.D). The
// ordering the supplier declares comes from s.cfg.Ordering (REPLAY_ORDERING)
// rather than being assumed. EventStore.ReplayEvents checks it against
// what it's handed, but a single row satisfies either guarantee on its
// own, so that check never rejects a redelivery.
func (s *Scheduler) redeliver(ctx context.Context, item outbox.Item) error {
	return s.store.ReplayEvents(ctx, newItemSupplier(item, s.cfg.Ordering))
}

// itemSupplier is a RawEventSupplier over a single outbox item, exhausted
// after its one row is read.
type itemSupplier struct {
	row      eventsourcing.RawEventRow
	ordering eventsourcing.ReplayOrdering
	done     bool
}

func newItemSupplier(item outbox.Item, ordering eventsourcing.ReplayOrdering) *itemSupplier {
	return &itemSupplier{
		ordering: ordering,
		row: eventsourcing.RawEventRow{
			ID:             item.ID,
			AggregateID:    item.AggregateID,
			SequenceNumber: item.SequenceNumber,
			EventType:      item.EventType,
			EventJSON:      []byte(item.EventJSON),
			CreatedAt:      item.Timestamp.Format(time.RFC3339Nano),
		},
	}
}

// Ordering reports the scheduler's configured ordering (§9 open question:
// ordering is the supplier's own declaration, not guessed by the core).
func (s *itemSupplier) Ordering() eventsourcing.ReplayOrdering { return s.ordering }

func (s *itemSupplier) Next(ctx context.Context) (eventsourcing.RawEventRow, bool, error) {
	if s.done {
		return eventsourcing.RawEventRow{}, false, nil
	}
	s.done = true
	return s.row, true, nil
}

var _ eventsourcing.RawEventSupplier = (*itemSupplier)(nil)

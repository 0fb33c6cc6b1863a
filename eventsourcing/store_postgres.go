package eventsourcing

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// pgUniqueViolation is Postgres's SQLSTATE for a unique-constraint
// violation; see events' UNIQUE (aggregate_id, sequence_number).
const pgUniqueViolation = "23505"

// PostgresStore is the EventStore realization backed by jackc/pgx, per
// §4.D and the `commands`/`events` schema in §6.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
	cache  *decodeCache
	cfg    configHolder
}

// NewPostgresStore wires a PostgresStore to pool. Call Configure before
// issuing commits that should fan out to handlers.
func NewPostgresStore(pool *pgxpool.Pool, logger *zap.Logger) *PostgresStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &PostgresStore{pool: pool, logger: logger, cache: newDecodeCache()}
	s.Configure(StoreConfig{Registry: NewRegistry()})
	return s
}

// Configure atomically republishes this store's registry and handler set
// (§4.D/§4.F/§5).
func (s *PostgresStore) Configure(cfg StoreConfig) {
	if cfg.Registry == nil {
		cfg.Registry = NewRegistry()
	}
	s.cfg.store(cfg)
}

// CommitEvents persists one command row and one event row per event, all
// within a single DB transaction, then fans out to every registered
// handler in order. A handler failure after persistence does not roll
// back persistence (§4.D).
func (s *PostgresStore) CommitEvents(ctx context.Context, command Command, events []Event) error {
	if len(events) == 0 {
		return nil
	}

	cfg := s.cfg.load()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	commandID := uuid.NewString()
	payload, err := command.CommandPayload()
	if err != nil {
		return fmt.Errorf("eventsourcing: encode command payload: %w", err)
	}

	const insertCommand = `
		INSERT INTO commands (id, command_type, payload_json, created_at)
		VALUES ($1, $2, $3, NOW())
	`
	if _, err := tx.Exec(ctx, insertCommand, commandID, command.CommandType(), payload); err != nil {
		return fmt.Errorf("eventsourcing: insert command: %w", err)
	}

	const insertEvent = `
		INSERT INTO events (id, aggregate_id, sequence_number, command_id, event_type, event_json, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	for _, e := range events {
		meta := e.Meta()
		body, err := SerializeEvent(e)
		if err != nil {
			return fmt.Errorf("eventsourcing: serialize event: %w", err)
		}
		if _, err := tx.Exec(ctx, insertEvent,
			uuid.NewString(),
			meta.AggregateID,
			meta.SequenceNumber,
			commandID,
			e.EventType(),
			[]byte(body),
			meta.CreatedAt,
		); err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
				return fmt.Errorf("%w: %v", ErrConcurrencyConflict, err)
			}
			return fmt.Errorf("eventsourcing: insert event: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	if len(cfg.Handlers) == 0 {
		return nil
	}
	failed, err := fanOut(ctx, cfg.Handlers, events)
	if err != nil {
		s.logger.Error("handler fan-out failed after commit",
			zap.String("command_type", command.CommandType()),
			zap.Int("event_count", len(events)),
			zap.Error(err),
		)
		if cfg.Buffer != nil {
			for _, e := range failed {
				if stageErr := cfg.Buffer.Stage(ctx, e, err); stageErr != nil {
					s.logger.Error("failed to stage event to outbox buffer",
						zap.String("aggregate_id", e.Meta().AggregateID),
						zap.String("event_type", e.EventType()),
						zap.Error(stageErr),
					)
				}
			}
		}
		return err
	}
	return nil
}

// LoadEvents returns all events for aggregateID ordered by ascending
// sequence_number, decoding each row via the configured registry.
func (s *PostgresStore) LoadEvents(ctx context.Context, aggregateID string) ([]Event, error) {
	cfg := s.cfg.load()

	const query = `
		SELECT event_type, event_json
		FROM events
		WHERE aggregate_id = $1
		ORDER BY sequence_number ASC
	`
	rows, err := s.pool.Query(ctx, query, aggregateID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var eventType string
		var body []byte
		if err := rows.Scan(&eventType, &body); err != nil {
			return nil, err
		}

		ctor, err := s.cache.resolver(cfg.Registry, eventType)
		if err != nil {
			return nil, err
		}
		ev := ctor()

		tree, err := Unmarshal(body)
		if err != nil {
			return nil, err
		}
		if err := DeserializeEvent(ev, tree); err != nil {
			return nil, err
		}
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// ReplayEvents consumes supplier until exhausted, decoding each raw row
// and dispatching it to every registered handler (§4.D). Ordering
// guarantees come entirely from the supplier (§9 open question), but the
// store still checks the supplier's own declared Ordering() against what
// it actually delivers: a supplier that claims GlobalStreamOrder but hands
// rows back out of CreatedAt order, or any supplier that regresses a single
// aggregate's SequenceNumber, breaks its contract and aborts the replay
// rather than let handlers observe a corrupted history.
func (s *PostgresStore) ReplayEvents(ctx context.Context, supplier RawEventSupplier) error {
	cfg := s.cfg.load()
	ordering := supplier.Ordering()

	lastSeq := make(map[string]int)
	var lastCreatedAt string

	for {
		row, ok, err := supplier.Next(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}

		if last, seen := lastSeq[row.AggregateID]; seen && row.SequenceNumber <= last {
			return fmt.Errorf("%w: aggregate %s sequence %d did not advance past %d",
				ErrReplayOutOfOrder, row.AggregateID, row.SequenceNumber, last)
		}
		lastSeq[row.AggregateID] = row.SequenceNumber

		if ordering == GlobalStreamOrder {
			if lastCreatedAt != "" && row.CreatedAt < lastCreatedAt {
				return fmt.Errorf("%w: row for aggregate %s arrived at %s after %s",
					ErrReplayOutOfOrder, row.AggregateID, row.CreatedAt, lastCreatedAt)
			}
			lastCreatedAt = row.CreatedAt
		}

		ctor, err := s.cache.resolver(cfg.Registry, row.EventType)
		if err != nil {
			return err
		}
		ev := ctor()

		tree, err := Unmarshal(row.EventJSON)
		if err != nil {
			return err
		}
		if err := DeserializeEvent(ev, tree); err != nil {
			return err
		}

		if _, err := fanOut(ctx, cfg.Handlers, []Event{ev}); err != nil {
			return err
		}
	}
}

var _ EventStore = (*PostgresStore)(nil)

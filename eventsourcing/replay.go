package eventsourcing

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// IndexSpec is one declared composite index: an ordered tuple of column
// names (§4.E "indices: configuration — mapping from record-class to list
// of column tuples to index on").
type IndexSpec []string

func (s IndexSpec) key() string {
	return strings.Join([]string(s), "\x1f")
}

// SessionConfig configures a ReplaySession's indexing and bulk-flush
// behavior.
type SessionConfig struct {
	// Indices declares, per record class, which column tuples to
	// maintain composite indexes for.
	Indices map[string][]IndexSpec
	// Timestamped marks record classes that carry an updated_at column,
	// so create_record can default it to created_at (§4.E).
	Timestamped map[string]bool
	// TableNames overrides the destination table for a record class;
	// classes absent from this map flush to a table named after the
	// class itself.
	TableNames map[string]string
	// InsertWithCSVSize is the record-count threshold above which
	// commit uses the bulk COPY path instead of per-row INSERT (§4.E,
	// §8 S6).
	InsertWithCSVSize int
}

// UpdateOptions controls update_record's bookkeeping side effects.
type UpdateOptions struct {
	// UpdateSequenceNumber defaults to true; set false to skip stamping
	// record.sequence_number from the triggering event.
	UpdateSequenceNumber *bool
}

func (o UpdateOptions) updatesSequenceNumber() bool {
	return o.UpdateSequenceNumber == nil || *o.UpdateSequenceNumber
}

// ReplaySession is the in-memory staged record set used by read-model
// handlers during replay (§4.E). It owns its records exclusively until
// Commit flushes them and Clear releases them.
type ReplaySession struct {
	pool *pgxpool.Pool
	cfg  SessionConfig

	mu    sync.Mutex
	store map[string]map[*Record]struct{}
	index map[string]any // value is *Record or []*Record
}

// NewReplaySession builds a session backed by pool for Commit's bulk
// flush, configured per cfg.
func NewReplaySession(pool *pgxpool.Pool, cfg SessionConfig) *ReplaySession {
	if cfg.Indices == nil {
		cfg.Indices = map[string][]IndexSpec{}
	}
	if cfg.Timestamped == nil {
		cfg.Timestamped = map[string]bool{}
	}
	if cfg.TableNames == nil {
		cfg.TableNames = map[string]string{}
	}
	return &ReplaySession{
		pool:  pool,
		cfg:   cfg,
		store: make(map[string]map[*Record]struct{}),
		index: make(map[string]any),
	}
}

func (s *ReplaySession) tableName(class string) string {
	if name, ok := s.cfg.TableNames[class]; ok {
		return name
	}
	return class
}

func indexStorageKey(class string, cols []string, values []any) string {
	parts := make([]string, 0, len(cols)+1)
	parts = append(parts, class)
	for i, c := range cols {
		parts = append(parts, c+"="+stringifyForKey(values[i]))
	}
	return strings.Join(parts, "\x1f")
}

func stringifyForKey(v any) string {
	switch t := v.(type) {
	case nil:
		return "\x00nil"
	case string:
		return t
	case Symbol:
		return string(t)
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}

// CreateRecord builds a record from values, stages it in record_store,
// indexes it under (class, aggregate_id) when present and under every
// declared composite index, defaults updated_at to created_at when the
// class is marked Timestamped, and finally invokes customize for any
// additional setup (§4.E create_record).
func (s *ReplaySession) CreateRecord(class string, values map[string]any, customize func(*Record)) *Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := newRecord(class, values)

	if s.cfg.Timestamped[class] {
		if created, ok := rec.values["created_at"]; ok {
			if _, hasUpdated := rec.values["updated_at"]; !hasUpdated {
				rec.values["updated_at"] = created
			}
		}
	}

	if customize != nil {
		customize(rec)
	}

	if s.store[class] == nil {
		s.store[class] = make(map[*Record]struct{})
	}
	s.store[class][rec] = struct{}{}

	if aggID, ok := rec.values["aggregate_id"]; ok {
		key := indexStorageKey(class, []string{"aggregate_id"}, []any{aggID})
		s.index[key] = rec
	}

	for _, spec := range s.cfg.Indices[class] {
		vals := valuesFor(rec, spec)
		key := indexStorageKey(class, spec, vals)
		existing, _ := s.index[key].([]*Record)
		s.index[key] = append(existing, rec)
	}

	return rec
}

func valuesFor(rec *Record, cols []string) []any {
	out := make([]any, len(cols))
	for i, c := range cols {
		out[i] = rec.Get(c)
	}
	return out
}

// UpdateRecord locates exactly one record matching where, applies mutate,
// and — unless opts disables it — stamps record.sequence_number from
// event and record.updated_at from event.created_at when the class is
// Timestamped (§4.E update_record).
func (s *ReplaySession) UpdateRecord(class string, event Event, where map[string]any, opts UpdateOptions, mutate func(*Record)) error {
	matches := s.FindRecords(class, where)
	if len(matches) == 0 {
		return fmt.Errorf("%w: class=%s where=%v", ErrRecordNotFound, class, where)
	}
	rec := matches[0]

	if mutate != nil {
		mutate(rec)
	}

	if opts.updatesSequenceNumber() {
		rec.Set("sequence_number", event.Meta().SequenceNumber)
	}
	if s.cfg.Timestamped[class] {
		rec.Set("updated_at", event.Meta().CreatedAt)
	}
	return nil
}

// CreateOrUpdateRecord upserts a record by a where-clause made of every
// key and value in values: if a record already matches all of them,
// customize is applied to it, otherwise a fresh record is created with
// created_at stamped from createdAt (§4.E create_or_update_record).
func (s *ReplaySession) CreateOrUpdateRecord(class string, values map[string]any, createdAt any, customize func(*Record)) *Record {
	where := make(map[string]any, len(values))
	for k, v := range values {
		where[k] = v
	}

	if existing := s.FindRecords(class, where); len(existing) > 0 {
		rec := existing[0]
		for k, v := range values {
			rec.Set(k, v)
		}
		if customize != nil {
			customize(rec)
		}
		return rec
	}

	merged := make(map[string]any, len(values)+1)
	for k, v := range values {
		merged[k] = v
	}
	merged["created_at"] = createdAt
	return s.CreateRecord(class, merged, customize)
}

// DeleteRecord removes rec from its class's store and from every index
// entry that references it.
func (s *ReplaySession) DeleteRecord(class string, rec *Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleteLocked(class, rec)
}

func (s *ReplaySession) deleteLocked(class string, rec *Record) {
	if set, ok := s.store[class]; ok {
		delete(set, rec)
	}

	for key, v := range s.index {
		switch t := v.(type) {
		case *Record:
			if t == rec {
				delete(s.index, key)
			}
		case []*Record:
			filtered := t[:0:0]
			for _, r := range t {
				if r != rec {
					filtered = append(filtered, r)
				}
			}
			if len(filtered) == 0 {
				delete(s.index, key)
			} else {
				s.index[key] = filtered
			}
		}
	}
}

// DeleteAllRecords removes every record in records from class.
func (s *ReplaySession) DeleteAllRecords(class string, records []*Record) {
	for _, rec := range records {
		s.DeleteRecord(class, rec)
	}
}

// UpdateAllRecords mutates every record matching where in place by
// applying updates.
func (s *ReplaySession) UpdateAllRecords(class string, where map[string]any, updates map[string]any) {
	for _, rec := range s.FindRecords(class, where) {
		for k, v := range updates {
			rec.Set(k, v)
		}
	}
}

// FindRecords implements the three-branch query path from §4.E:
//  1. a single aggregate_id key hits the direct index;
//  2. a where-clause whose keys exactly match a declared index's column
//     tuple (same set, same arity) hits that composite index;
//  3. otherwise a linear scan matches every key by equality, comparing
//     Symbol/string values as their string form and treating slice
//     values in where as an "in" set.
//
// The returned slice is always a fresh copy; the *Record pointers inside
// it are the live, mutable records.
func (s *ReplaySession) FindRecords(class string, where map[string]any) []*Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(where) == 1 {
		if aggID, ok := where["aggregate_id"]; ok {
			key := indexStorageKey(class, []string{"aggregate_id"}, []any{aggID})
			if rec, ok := s.index[key].(*Record); ok {
				return []*Record{rec}
			}
			return nil
		}
	}

	if spec, vals, ok := s.matchDeclaredIndex(class, where); ok {
		key := indexStorageKey(class, spec, vals)
		if recs, ok := s.index[key].([]*Record); ok {
			out := make([]*Record, len(recs))
			copy(out, recs)
			return out
		}
		return nil
	}

	var out []*Record
	for rec := range s.store[class] {
		if recordMatches(rec, where) {
			out = append(out, rec)
		}
	}
	return out
}

func (s *ReplaySession) matchDeclaredIndex(class string, where map[string]any) (IndexSpec, []any, bool) {
	whereKeys := make(map[string]struct{}, len(where))
	for k := range where {
		whereKeys[k] = struct{}{}
	}

	for _, spec := range s.cfg.Indices[class] {
		if len(spec) != len(whereKeys) {
			continue
		}
		matchesAll := true
		for _, col := range spec {
			if _, ok := whereKeys[col]; !ok {
				matchesAll = false
				break
			}
		}
		if matchesAll {
			return spec, valuesForWhere(spec, where), true
		}
	}
	return nil, nil, false
}

func valuesForWhere(spec IndexSpec, where map[string]any) []any {
	out := make([]any, len(spec))
	for i, c := range spec {
		out[i] = where[c]
	}
	return out
}

func recordMatches(rec *Record, where map[string]any) bool {
	for col, want := range where {
		got := rec.Get(col)
		if !valueMatches(got, want) {
			return false
		}
	}
	return true
}

func valueMatches(got, want any) bool {
	if set, ok := asSlice(want); ok {
		for _, candidate := range set {
			if scalarEqual(got, candidate) {
				return true
			}
		}
		return false
	}
	return scalarEqual(got, want)
}

func asSlice(v any) ([]any, bool) {
	switch t := v.(type) {
	case []any:
		return t, true
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out, true
	default:
		return nil, false
	}
}

func scalarEqual(a, b any) bool {
	as, aok := stringForm(a)
	bs, bok := stringForm(b)
	if aok && bok {
		return as == bs
	}
	return a == b
}

func stringForm(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case Symbol:
		return string(t), true
	default:
		return "", false
	}
}

// LastRecord returns the last element of FindRecords, or nil if empty.
func (s *ReplaySession) LastRecord(class string, where map[string]any) *Record {
	matches := s.FindRecords(class, where)
	if len(matches) == 0 {
		return nil
	}
	return matches[len(matches)-1]
}

// DoWithRecords iterates every record of class and invokes fn.
func (s *ReplaySession) DoWithRecords(class string, fn func(*Record)) {
	s.mu.Lock()
	recs := make([]*Record, 0, len(s.store[class]))
	for rec := range s.store[class] {
		recs = append(recs, rec)
	}
	s.mu.Unlock()

	for _, rec := range recs {
		fn(rec)
	}
}

// Clear drops the entire store and every index, releasing the session's
// working set (§4.E).
func (s *ReplaySession) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.store = make(map[string]map[*Record]struct{})
	s.index = make(map[string]any)
}

// Commit flushes every staged record class to the database: classes with
// more records than InsertWithCSVSize stream through a native bulk COPY
// inside one transaction; smaller classes use per-row parameterized
// INSERTs. The "id" column, when present, is omitted from both paths.
// Commit always clears the session on exit, even on failure (§4.E, §5).
func (s *ReplaySession) Commit(ctx context.Context) error {
	defer s.Clear()

	s.mu.Lock()
	classes := make([]string, 0, len(s.store))
	snapshot := make(map[string][]*Record, len(s.store))
	for class, set := range s.store {
		recs := make([]*Record, 0, len(set))
		for rec := range set {
			recs = append(recs, rec)
		}
		classes = append(classes, class)
		snapshot[class] = recs
	}
	s.mu.Unlock()
	sort.Strings(classes)

	for _, class := range classes {
		recs := snapshot[class]
		if len(recs) == 0 {
			continue
		}
		if len(recs) > s.cfg.InsertWithCSVSize {
			if err := s.copyFlush(ctx, class, recs); err != nil {
				return err
			}
		} else {
			if err := s.insertFlush(ctx, class, recs); err != nil {
				return err
			}
		}
	}
	return nil
}

func columnsFor(recs []*Record) []string {
	seen := make(map[string]struct{})
	for _, r := range recs {
		for _, c := range r.Columns() {
			seen[c] = struct{}{}
		}
	}
	delete(seen, "id")
	cols := make([]string, 0, len(seen))
	for c := range seen {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	return cols
}

func (s *ReplaySession) insertFlush(ctx context.Context, class string, recs []*Record) error {
	cols := columnsFor(recs)
	table := s.tableName(class)

	placeholders := make([]string, len(cols))
	for i := range cols {
		placeholders[i] = "$" + strconv.Itoa(i+1)
	}
	query := fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(cols, ", "), strings.Join(placeholders, ", "),
	)

	for _, rec := range recs {
		args := make([]any, len(cols))
		for i, c := range cols {
			args[i] = rec.Get(c)
		}
		if _, err := s.pool.Exec(ctx, query, args...); err != nil {
			return fmt.Errorf("eventsourcing: insert into %s: %w", table, err)
		}
	}
	return nil
}

func (s *ReplaySession) copyFlush(ctx context.Context, class string, recs []*Record) error {
	cols := columnsFor(recs)
	table := s.tableName(class)

	src := newRecordCopySource(cols, recs)
	_, err := s.pool.CopyFrom(ctx, pgx.Identifier{table}, cols, src)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBulkCopy, err)
	}
	if src.err != nil {
		return fmt.Errorf("%w: %v", ErrBulkCopy, src.err)
	}
	return nil
}

// recordCopySource adapts a slice of staged records to pgx.CopyFromSource,
// so a single failure mid-stream can abort the COPY instead of silently
// truncating it.
type recordCopySource struct {
	cols []string
	recs []*Record
	idx  int
	err  error
}

func newRecordCopySource(cols []string, recs []*Record) *recordCopySource {
	return &recordCopySource{cols: cols, recs: recs, idx: -1}
}

func (s *recordCopySource) Next() bool {
	if s.err != nil {
		return false
	}
	s.idx++
	return s.idx < len(s.recs)
}

func (s *recordCopySource) Values() ([]any, error) {
	rec := s.recs[s.idx]
	values := make([]any, len(s.cols))
	for i, c := range s.cols {
		// cols is the union of every column any record in this flush
		// declared (columnsFor); a record missing one of them means the
		// batch mixed incompatible shapes under the same class, not that
		// the column is genuinely NULL for this row. Abort rather than
		// silently writing NULL for a column this record never declared.
		if !rec.Has(c) {
			s.err = fmt.Errorf("eventsourcing: record missing column %q declared by its batch", c)
			return nil, s.err
		}
		values[i] = rec.Get(c)
	}
	return values, nil
}

func (s *recordCopySource) Err() error { return s.err }

var _ pgx.CopyFromSource = (*recordCopySource)(nil)

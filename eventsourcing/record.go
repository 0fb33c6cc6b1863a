package eventsourcing

import "sort"

// Record is a single staged read-model row held by a ReplaySession. Its
// identity — for hashing and equality inside the session's sets and
// indexes — is the Go pointer itself, never its contents: mutating a
// record in place must not move it to a different bucket (§4.E).
type Record struct {
	class  string
	values map[string]any
}

func newRecord(class string, values map[string]any) *Record {
	copied := make(map[string]any, len(values))
	for k, v := range values {
		copied[k] = v
	}
	return &Record{class: class, values: copied}
}

// Get returns the value stored under col, or nil if unset.
func (r *Record) Get(col string) any { return r.values[col] }

// Has reports whether col was ever set on r, distinguishing a column
// that is genuinely absent from one explicitly set to nil.
func (r *Record) Has(col string) bool {
	_, ok := r.values[col]
	return ok
}

// Set mutates col in place. Because Record's identity is its address, this
// never invalidates any index or set the record is already a member of.
func (r *Record) Set(col string, v any) { r.values[col] = v }

// Columns returns the record's column names, sorted for deterministic
// COPY/INSERT column ordering.
func (r *Record) Columns() []string {
	cols := make([]string, 0, len(r.values))
	for k := range r.values {
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols
}

package eventsourcing_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fastygo/eventcore/eventsourcing"
)

type assigneeVO struct {
	UserID      string `es:"string"`
	DisplayName string `es:"string"`
}

// widget exercises every declared kind, plus a field declared as a plain
// value type and the same shape declared as a pointer, so setPointer's two
// branches both get walked by a single struct.
type widget struct {
	eventsourcing.EventMeta
	Name         string      `es:"string"`
	Quantity     int         `es:"integer"`
	Active       bool        `es:"boolean"`
	OptionalNote *string     `es:"string"`
	Owner        assigneeVO  `es:"object"`
	Tags         []string    `es:"array:string"`
	Secret       string      `es:"-"`
	TenantKey    string      `es:"string,tenant"`
}

func (widget) EventType() string                 { return "widget.declared" }
func (w *widget) Meta() *eventsourcing.EventMeta  { return &w.EventMeta }

// malformedTagEvent carries a tag parseTag can't resolve — neither a
// known kind nor "array:<elemKind>" — so ToTree/FromTree must fail
// rather than silently skip or zero the field.
type malformedTagEvent struct {
	eventsourcing.EventMeta
	Label string `es:"not-a-kind"`
}

func (malformedTagEvent) EventType() string                { return "malformed.declared" }
func (e *malformedTagEvent) Meta() *eventsourcing.EventMeta { return &e.EventMeta }

// colonQualifiedNonArrayEvent declares a `kind:elemKind` tag on a kind
// other than array — the ":elemKind" suffix only means something for
// array, so parseTag rejects it on any other kind.
type colonQualifiedNonArrayEvent struct {
	eventsourcing.EventMeta
	Label string `es:"string:integer"`
}

func (colonQualifiedNonArrayEvent) EventType() string { return "colon-qualified-non-array.declared" }
func (e *colonQualifiedNonArrayEvent) Meta() *eventsourcing.EventMeta { return &e.EventMeta }

// ToTree only ever emits declared fields; the skip tag removes a field
// from the tree entirely rather than serializing its zero value.
func TestToTree_SkipsUntaggedAndDashFields(t *testing.T) {
	w := &widget{Name: "bolt", Quantity: 3, Secret: "shh", TenantKey: "tenant-1"}
	tree, err := eventsourcing.ToTree(w)
	require.NoError(t, err)

	assert.Equal(t, "bolt", tree["Name"])
	assert.Equal(t, 3, tree["Quantity"])
	_, hasSecret := tree["Secret"]
	assert.False(t, hasSecret)
	assert.Equal(t, "tenant-1", tree["TenantKey"])
}

// Payload strips tenant-scoping fields but keeps them in the full tree —
// so replay/storage sees them, equality comparisons used for dedup don't.
func TestPayload_StripsTenantFields(t *testing.T) {
	w := &widget{Name: "bolt", TenantKey: "tenant-1"}
	payload, err := eventsourcing.Payload(w)
	require.NoError(t, err)
	_, hasTenant := payload["TenantKey"]
	assert.False(t, hasTenant)
	assert.Equal(t, "widget.declared", payload["event_type"])

	full, err := eventsourcing.ToTree(w)
	require.NoError(t, err)
	assert.Equal(t, "tenant-1", full["TenantKey"])
}

// A round trip through ToTree/FromTree reproduces every declared field,
// including a nested object value and a string array, whether or not the
// field is pointer-typed.
func TestToTreeFromTree_RoundTrip(t *testing.T) {
	note := "fragile"
	src := &widget{
		Name:         "bolt",
		Quantity:     7,
		Active:       true,
		OptionalNote: &note,
		Owner:        assigneeVO{UserID: "u-1", DisplayName: "Ada"},
		Tags:         []string{"a", "b"},
	}

	tree, err := eventsourcing.ToTree(src)
	require.NoError(t, err)

	dst := &widget{}
	require.NoError(t, eventsourcing.FromTree(dst, tree))

	assert.Equal(t, src.Name, dst.Name)
	assert.Equal(t, src.Quantity, dst.Quantity)
	assert.Equal(t, src.Active, dst.Active)
	require.NotNil(t, dst.OptionalNote)
	assert.Equal(t, note, *dst.OptionalNote)
	assert.Equal(t, src.Owner, dst.Owner)
	assert.Equal(t, src.Tags, dst.Tags)
}

// A field declared as a plain value type (not *T) lands at its zero value
// on a blank/nil input instead of erroring — declaring T instead of *T
// only opts out of the nil/blank distinction.
func TestFromTree_BlankValueFieldGoesToZero(t *testing.T) {
	dst := &widget{Name: "preexisting"}
	err := eventsourcing.FromTree(dst, map[string]any{"Name": ""})
	require.NoError(t, err)
	assert.Equal(t, "", dst.Name)
}

// A pointer-typed field is left nil when the source value is blank, unlike
// the value-typed case which zeroes instead.
func TestFromTree_BlankPointerFieldStaysNil(t *testing.T) {
	dst := &widget{}
	note := "will be cleared"
	dst.OptionalNote = &note

	err := eventsourcing.FromTree(dst, map[string]any{"OptionalNote": ""})
	require.NoError(t, err)
	assert.Nil(t, dst.OptionalNote)
}

// Integers decode from JSON numbers (float64), native ints, and numeric
// strings alike.
func TestCoerceInteger_AcceptsAllJSONShapes(t *testing.T) {
	dst := &widget{}
	require.NoError(t, eventsourcing.FromTree(dst, map[string]any{"Quantity": float64(5)}))
	assert.Equal(t, 5, dst.Quantity)

	require.NoError(t, eventsourcing.FromTree(dst, map[string]any{"Quantity": "9"}))
	assert.Equal(t, 9, dst.Quantity)

	err := eventsourcing.FromTree(dst, map[string]any{"Quantity": "not-a-number"})
	assert.Error(t, err)
}

// A tag parseTag can't resolve — neither a known kind, nor a ":elemKind"
// suffix on array — fails ToTree/FromTree with ErrUnknownFieldType
// instead of silently skipping or defaulting the field.
func TestToTreeFromTree_MalformedTagFailsWithErrUnknownFieldType(t *testing.T) {
	_, err := eventsourcing.ToTree(&malformedTagEvent{Label: "x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, eventsourcing.ErrUnknownFieldType)

	err = eventsourcing.FromTree(&malformedTagEvent{}, map[string]any{"Label": "x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, eventsourcing.ErrUnknownFieldType)

	_, err = eventsourcing.ToTree(&colonQualifiedNonArrayEvent{Label: "x"})
	require.Error(t, err)
	assert.ErrorIs(t, err, eventsourcing.ErrUnknownFieldType)
}

// Marshal/Unmarshal/FromTree compose into a full JSON round trip: nothing
// is lost or reordered going through the wire format and back.
func TestMarshalUnmarshal_RoundTripsThroughJSON(t *testing.T) {
	src := &widget{Name: "bolt", Quantity: 2, Tags: []string{"x"}}
	doc, err := eventsourcing.Marshal(src, map[string]any{"event_type": src.EventType()})
	require.NoError(t, err)

	tree, err := eventsourcing.Unmarshal([]byte(doc))
	require.NoError(t, err)

	dst := &widget{}
	require.NoError(t, eventsourcing.FromTree(dst, tree))
	assert.Equal(t, src.Name, dst.Name)
	assert.Equal(t, src.Tags, dst.Tags)
}

// Two events with identical declared attributes compare equal regardless
// of Go-level identity, matching the design's deserialize-then-compare
// equality contract.
func TestEventsEqual_StructuralNotIdentity(t *testing.T) {
	a := &widget{Name: "bolt", Quantity: 1}
	a.AggregateID, a.SequenceNumber = "agg-1", 1
	b := &widget{Name: "bolt", Quantity: 1}
	b.AggregateID, b.SequenceNumber = "agg-1", 1
	b.CreatedAt = a.CreatedAt

	assert.True(t, eventsourcing.EventsEqual(a, b))

	b.Quantity = 2
	assert.False(t, eventsourcing.EventsEqual(a, b))
}

package eventsourcing

// ValueObject is a nested, immutable attribute carrier (§3). It has no
// identity beyond its declared attributes: equality is purely structural,
// implemented by comparing the declared (`es`-tagged) fields only — any
// extra validation-support state on the concrete type is excluded
// automatically because it carries no `es` tag.
type ValueObject interface {
	// ValueObjectType optionally names the concrete variant for logging
	// and error messages; it plays no role in equality or serialization.
	ValueObjectType() string
}

// ValueObjectsEqual reports whether a and b have identical declared
// attributes.
func ValueObjectsEqual(a, b ValueObject) bool {
	if a == nil || b == nil {
		return a == b
	}
	return StructurallyEqual(a, b)
}

package compute

import (
	"cmp"
	"slices"
)

// Order compares two records. It returns a negative number when a sorts
// before b, a positive number when after, and zero when they are equal.
type Order func(a, b *ServiceRecord) int

// ByDowns orders records by down count, fewest first.
func ByDowns(a, b *ServiceRecord) int {
	return cmp.Compare(a.Downs(), b.Downs())
}

// Reverse flips an Order.
func Reverse(o Order) Order {
	return func(a, b *ServiceRecord) int { return o(b, a) }
}

// Sorted returns a sorted copy of records. Records that compare equal keep
// their relative order, so a fixed input always sorts the same way.
func Sorted(records []*ServiceRecord, o Order) []*ServiceRecord {
	out := slices.Clone(records)
	slices.SortStableFunc(out, o)
	return out
}

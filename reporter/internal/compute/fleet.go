package compute

// FailureEvent is one logged outage of a service. The fields are opaque text
// passed through from the data source.
type FailureEvent struct {
	Date         string
	Error        string
	ResponseTime string
}

// ServiceRecord is one monitored service and the failures observed for it.
type ServiceRecord struct {
	ID   int
	Name string

	failures []FailureEvent
}

// NewServiceRecord returns an empty record for the given service.
func NewServiceRecord(id int, name string) *ServiceRecord {
	return &ServiceRecord{ID: id, Name: name}
}

// AddFailure appends a failure in discovery order.
func (r *ServiceRecord) AddFailure(ev FailureEvent) {
	r.failures = append(r.failures, ev)
}

// Downs is the number of recorded failures.
func (r *ServiceRecord) Downs() int { return len(r.failures) }

// Failures returns a copy of the recorded failures in discovery order.
func (r *ServiceRecord) Failures() []FailureEvent {
	out := make([]FailureEvent, len(r.failures))
	copy(out, r.failures)
	return out
}

// Fleet is the working set of service records keyed by ID.
//
// Fleet is not safe for concurrent use.
type Fleet struct {
	byID  map[int]*ServiceRecord
	order []int
}

// NewFleet returns an empty Fleet.
func NewFleet() *Fleet {
	return &Fleet{byID: make(map[int]*ServiceRecord)}
}

// Add inserts r. It returns false and leaves the fleet unchanged when a record
// with the same ID is already present.
func (f *Fleet) Add(r *ServiceRecord) bool {
	if _, ok := f.byID[r.ID]; ok {
		return false
	}
	f.byID[r.ID] = r
	f.order = append(f.order, r.ID)
	return true
}

// Get returns the record for id.
func (f *Fleet) Get(id int) (*ServiceRecord, bool) {
	r, ok := f.byID[id]
	return r, ok
}

// Remove drops the given IDs from the working set. Unknown IDs are ignored.
// The records themselves are untouched.
func (f *Fleet) Remove(ids ...int) {
	if len(ids) == 0 {
		return
	}
	gone := make(map[int]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := f.byID[id]; ok {
			gone[id] = struct{}{}
			delete(f.byID, id)
		}
	}
	if len(gone) == 0 {
		return
	}
	kept := f.order[:0]
	for _, id := range f.order {
		if _, ok := gone[id]; !ok {
			kept = append(kept, id)
		}
	}
	f.order = kept
}

// Len is the number of records in the working set.
func (f *Fleet) Len() int { return len(f.order) }

// Records returns the records in insertion order.
func (f *Fleet) Records() []*ServiceRecord {
	out := make([]*ServiceRecord, 0, len(f.order))
	for _, id := range f.order {
		out = append(out, f.byID[id])
	}
	return out
}

// Clone returns a new working set over the same records. Removing from the
// clone does not affect f.
func (f *Fleet) Clone() *Fleet {
	c := &Fleet{
		byID:  make(map[int]*ServiceRecord, len(f.byID)),
		order: make([]int, len(f.order)),
	}
	copy(c.order, f.order)
	for id, r := range f.byID {
		c.byID[id] = r
	}
	return c
}

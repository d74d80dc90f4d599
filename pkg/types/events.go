package types

// Event is one item of the stream produced by a data source.
type Event interface {
	// ServiceID returns the monitored service the event belongs to.
	ServiceID() int
}

// ServiceDiscovered announces a monitored service. It is emitted at most once
// per ID, before any FailureObserved for that ID.
type ServiceDiscovered struct {
	ID   int
	Name string
}

// ServiceID implements Event.
func (e ServiceDiscovered) ServiceID() int { return e.ID }

// FailureObserved reports one logged outage of a service. Date, Error and
// ResponseTime are passed through exactly as the source reported them.
type FailureObserved struct {
	ID           int
	Date         string
	Error        string
	ResponseTime string
}

// ServiceID implements Event.
func (e FailureObserved) ServiceID() int { return e.ID }

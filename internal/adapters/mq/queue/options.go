package queue

// Policy decides what happens when the queue is full.
type Policy int

// Backpressure policies.
const (
	// RejectNew refuses the incoming task.
	RejectNew Policy = iota
	// DropOldest evicts the task at the head to make room.
	DropOldest
)

// ParsePolicy maps "reject_new" and "drop_oldest" to a Policy.
func ParsePolicy(s string) (Policy, bool) {
	switch s {
	case "reject_new", "":
		return RejectNew, true
	case "drop_oldest":
		return DropOldest, true
	default:
		return RejectNew, false
	}
}

// Option applies a configuration option to the InMemoryQueue.
type Option func(*InMemoryQueue)

// WithCapacity sets the maximum capacity of the queue.
func WithCapacity(capacity int) Option {
	return func(q *InMemoryQueue) {
		if capacity > 0 {
			q.capacity = capacity
		}
	}
}

// WithPolicy sets the backpressure policy.
func WithPolicy(p Policy) Option {
	return func(q *InMemoryQueue) {
		q.policy = p
	}
}

//go:generate go run go.uber.org/mock/mockgen -source=interfaces.go -destination=../mocks/mock_core.go -package=mocks

package core

import "github.com/dkeye/Relay/internal/domain"

// Frame is a raw text payload as it travels on the wire.
type Frame []byte

// Sender is the transport side of a member. Send must not block; a full
// queue is reported as domain.ErrBackpressure.
// Owned by the adapter; the adapter must close it.
type Sender interface {
	Send(Frame) error
}

// Deliverer resolves a member ref to its live Sender and queues a frame.
type Deliverer interface {
	Deliver(ref domain.MemberRef, f Frame) error
	// Online reports whether ref is still bound to an open connection.
	Online(ref domain.MemberRef) bool
}

// PublishResult reports delivery stats/backpressure to the registry.
type PublishResult struct {
	Delivered []domain.MemberRef
	Dropped   []domain.MemberRef
}

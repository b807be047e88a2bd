package engine

import (
	"time"

	"github.com/osusu/osusu/internal/services/circle/domain"
)

// Event describes one committed circle mutation for feed subscribers.
type Event struct {
	// Type is the operation name, e.g. "join" or "vote_dissolve".
	Type     string
	CircleID uint64
	// Actor is the caller identity behind the mutation.
	Actor string
	// Amount carries the moved or settled value for payout, withdraw, and
	// deposit events. Zero otherwise.
	Amount int64
	// Circle is a snapshot taken after the commit.
	Circle domain.Circle
	At     time.Time
}

// Publisher receives committed events. Implementations must not block; slow
// subscribers are the publisher's problem, not the engine's.
type Publisher interface {
	Publish(event Event)
}

// PublisherFunc adapts a function to the Publisher interface.
type PublisherFunc func(event Event)

// Publish implements Publisher.
func (f PublisherFunc) Publish(event Event) {
	f(event)
}

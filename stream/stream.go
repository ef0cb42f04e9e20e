// Package stream defines the vendor-neutral market-data streaming
// surface: a Client interface implemented per vendor and the
// subscription Ledger shared by those implementations.
package stream

import (
	"context"

	"github.com/tradetools/ttconnect/domain"
	"github.com/tradetools/ttconnect/store"
)

// TickHandler consumes normalized ticks. Handlers are invoked
// fire-and-forget on their own goroutine per tick; a slow handler never
// stalls the socket, and completion order across ticks is not defined.
type TickHandler func(domain.Tick)

// Subscription pairs a canonical instrument with its vendor identity.
// Callers resolve before subscribing so the stream layer never touches
// the instrument database.
type Subscription struct {
	Instrument domain.Instrument
	Resolved   *store.ResolvedInstrument
}

// Client is a vendor streaming connection. Implementations own the
// socket lifecycle: connect on first subscribe, resubscribe everything
// tracked after a reconnect, and heartbeat per the vendor's protocol.
type Client interface {
	// Subscribe tracks the subscriptions and starts (or extends) the
	// stream. The handler from the first call is used for the client's
	// lifetime.
	Subscribe(ctx context.Context, subs []Subscription, onTick TickHandler) error

	// Unsubscribe stops ticks for the given instruments.
	Unsubscribe(ctx context.Context, instruments []domain.Instrument) error

	// Close tears down the connection and stops the reconnect loop.
	Close() error
}

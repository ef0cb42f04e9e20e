// Package brokers defines the vendor adapter contract and the plumbing all
// adapters share: the constructor registry, the capability matrix, the
// retrying HTTP transport, and bounded fan-out for batch operations.
//
// Adapters own their vendor's wire formats end to end. They take canonical
// requests, emit vendor payloads through their Transformer, and normalize
// vendor responses back into canonical records, so nothing vendor-shaped
// leaks past this boundary.
package brokers

import (
	"context"

	"github.com/tradetools/ttconnect/auth"
	"github.com/tradetools/ttconnect/domain"
	"github.com/tradetools/ttconnect/store"
	"github.com/tradetools/ttconnect/stream"
)

// Payload is one decoded vendor JSON object.
type Payload = map[string]any

// Adapter is the surface every supported broker implements.
type Adapter interface {
	// BrokerID returns the registry id ("zerodha", "angelone").
	BrokerID() string
	// Capabilities describes what the venue supports.
	Capabilities() Capabilities

	// Login authenticates per the configured auth mode, preferring an
	// unexpired cached session.
	Login(ctx context.Context) error
	// RefreshSession renews the session per the configured auth mode.
	RefreshSession(ctx context.Context) error
	// Session returns a copy of the live session, or ok=false before login.
	Session() (auth.Session, bool)

	// FetchInstruments downloads and parses the vendor's instrument master.
	FetchInstruments(ctx context.Context) (*domain.ParsedInstruments, error)

	GetProfile(ctx context.Context) (*domain.Profile, error)
	GetFunds(ctx context.Context) (*domain.Fund, error)
	GetHoldings(ctx context.Context) ([]domain.Holding, error)
	GetPositions(ctx context.Context) ([]domain.Position, error)
	GetOrders(ctx context.Context) ([]domain.Order, error)
	GetTrades(ctx context.Context) ([]domain.Trade, error)
	GetOrder(ctx context.Context, orderID string) (*domain.Order, error)

	PlaceOrder(ctx context.Context, resolved *store.ResolvedInstrument, req domain.OrderRequest) (string, error)
	ModifyOrder(ctx context.Context, orderID string, req domain.ModifyRequest) error
	CancelOrder(ctx context.Context, orderID string) error

	// CancelAllOrders cancels every open or pending order concurrently and
	// partitions the outcomes. It never returns an error.
	CancelAllOrders(ctx context.Context) (cancelled, failed []string)
	// CloseAllPositions places offsetting market orders for every non-zero
	// position concurrently. Successes are placed order ids, failures are
	// position symbols. It never returns an error.
	CloseAllPositions(ctx context.Context) (placed, failedSymbols []string)

	GetMargin(ctx context.Context, resolved *store.ResolvedInstrument, req domain.MarginRequest) (*domain.Margin, error)

	// NewStreamClient returns a live streaming client, or an
	// UnsupportedFeature error for brokers without streaming.
	NewStreamClient() (stream.Client, error)

	Close() error
}

// Transformer normalizes one vendor's wire shapes into canonical records.
// Implementations are stateless and safe for concurrent use.
type Transformer interface {
	// ToOrderParams builds the vendor order payload from a resolved listing
	// and a canonical request.
	ToOrderParams(resolved *store.ResolvedInstrument, req domain.OrderRequest) Payload
	// ToOrderID extracts the vendor's order id from a placement response.
	ToOrderID(raw Payload) (string, error)
	// ToCloseParams builds a market-order payload offsetting a raw
	// position row.
	ToCloseParams(positionRaw Payload, qty int, side domain.Side) Payload

	ToProfile(raw Payload) (*domain.Profile, error)
	ToFund(raw Payload) (*domain.Fund, error)
	ToHolding(raw Payload) (domain.Holding, error)
	ToPosition(raw Payload) (domain.Position, error)
	// ToOrder normalizes an order row. The caller may supply the canonical
	// instrument when it knows it; vendor rows alone cannot reconstruct
	// expiry and strike.
	ToOrder(raw Payload, instrument domain.Instrument) (domain.Order, error)
	ToTrade(raw Payload) (domain.Trade, error)
	ToMargin(raw Payload) (*domain.Margin, error)

	// ParseError maps a vendor error envelope to the canonical taxonomy.
	ParseError(raw Payload) error
}

package ttconnect

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"

	"github.com/tradetools/ttconnect/auth"
	"github.com/tradetools/ttconnect/brokers"
	"github.com/tradetools/ttconnect/config"
	"github.com/tradetools/ttconnect/domain"
	"github.com/tradetools/ttconnect/store"
	"github.com/tradetools/ttconnect/stream"
)

// Config is the flat option map passed to New. See package config for the
// recognized keys.
type Config = config.Config

// ConfigFromEnv builds a Config for a broker from {BROKER}_* environment
// variables, loading .env first when present.
func ConfigFromEnv(brokerID string) Config {
	return config.FromEnv(brokerID)
}

// Option customizes client construction.
type Option func(*options)

type options struct {
	log zerolog.Logger
}

// WithLogger sets the client's logger. The default writes
// console-formatted output to stderr at info level.
func WithLogger(log zerolog.Logger) Option {
	return func(o *options) { o.log = log }
}

func defaultLogger() zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(zerolog.InfoLevel).
		With().Timestamp().Logger()
}

// Client is the unified brokerage surface for one account at one broker.
// Construction authenticates, opens the local instrument master, and
// refreshes it when stale; after New returns every operation is ready.
//
// A Client is safe for concurrent use.
type Client struct {
	brokerID string
	adapter  brokers.Adapter
	store    *store.Store
	log      zerolog.Logger

	// Refresh rebuilds the resolver (new refresh, new primary keys), so
	// reads go through the lock.
	mu       sync.RWMutex
	resolver *store.Resolver
	stream   stream.Client
}

// New constructs a client for the given broker. The broker must be one of
// the registered ids (importing this package registers all in-tree
// vendors); the config carries the vendor's credentials.
func New(ctx context.Context, brokerID string, cfg Config, opts ...Option) (*Client, error) {
	o := options{log: defaultLogger()}
	for _, opt := range opts {
		opt(&o)
	}
	log := o.log.With().Str("broker", brokerID).Logger()

	adapter, err := brokers.New(brokerID, cfg, log)
	if err != nil {
		return nil, err
	}

	if err := adapter.Login(ctx); err != nil {
		_ = adapter.Close()
		return nil, fmt.Errorf("failed to authenticate with %s: %w", brokerID, err)
	}

	cacheDir := cfg.CacheDir()
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		_ = adapter.Close()
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	st, err := store.Open(store.Options{
		Path:     filepath.Join(cacheDir, brokerID+"_instruments.db"),
		BrokerID: brokerID,
		OnStale:  cfg.OnStale(),
		Log:      log,
	})
	if err != nil {
		_ = adapter.Close()
		return nil, err
	}

	if err := st.EnsureFresh(ctx, adapter.FetchInstruments); err != nil {
		_ = st.Close()
		_ = adapter.Close()
		return nil, err
	}

	log.Info().Msg("Client ready")
	return &Client{
		brokerID: brokerID,
		adapter:  adapter,
		store:    st,
		log:      log,
		resolver: st.NewResolver(),
	}, nil
}

// BrokerID returns the broker this client is connected to.
func (c *Client) BrokerID() string { return c.brokerID }

// Capabilities returns the broker's support matrix.
func (c *Client) Capabilities() brokers.Capabilities { return c.adapter.Capabilities() }

// Session returns a copy of the live session, or ok=false before login.
func (c *Client) Session() (auth.Session, bool) { return c.adapter.Session() }

// RefreshSession renews the broker session per the configured auth mode.
func (c *Client) RefreshSession(ctx context.Context) error {
	return c.adapter.RefreshSession(ctx)
}

// Store exposes the instrument store (maintenance jobs checkpoint and
// back up through it).
func (c *Client) Store() *store.Store { return c.store }

func (c *Client) currentResolver() *store.Resolver {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.resolver
}

// Resolve translates a canonical instrument into the broker's identity
// for it. A miss is an InstrumentNotFound error.
func (c *Client) Resolve(ctx context.Context, instrument domain.Instrument) (*store.ResolvedInstrument, error) {
	return c.currentResolver().Resolve(ctx, instrument)
}

// RefreshInstruments force-rebuilds the local instrument master from the
// vendor and discards all memoized resolutions.
func (c *Client) RefreshInstruments(ctx context.Context) error {
	if err := c.store.Refresh(ctx, c.adapter.FetchInstruments); err != nil {
		return err
	}
	c.mu.Lock()
	c.resolver = c.store.NewResolver()
	c.mu.Unlock()
	return nil
}

// Profile returns the account holder's profile.
func (c *Client) Profile(ctx context.Context) (*domain.Profile, error) {
	return c.adapter.GetProfile(ctx)
}

// Funds returns the account's fund and margin summary.
func (c *Client) Funds(ctx context.Context) (*domain.Fund, error) {
	return c.adapter.GetFunds(ctx)
}

// Holdings returns the demat holdings.
func (c *Client) Holdings(ctx context.Context) ([]domain.Holding, error) {
	return c.adapter.GetHoldings(ctx)
}

// Positions returns the open (non-zero) positions.
func (c *Client) Positions(ctx context.Context) ([]domain.Position, error) {
	return c.adapter.GetPositions(ctx)
}

// Orders returns the day's order book.
func (c *Client) Orders(ctx context.Context) ([]domain.Order, error) {
	return c.adapter.GetOrders(ctx)
}

// Trades returns the day's executed trades.
func (c *Client) Trades(ctx context.Context) ([]domain.Trade, error) {
	return c.adapter.GetTrades(ctx)
}

// Order returns the current state of one order. Brokers without a
// per-order read return an UnsupportedFeature error.
func (c *Client) Order(ctx context.Context, orderID string) (*domain.Order, error) {
	return c.adapter.GetOrder(ctx, orderID)
}

// PlaceOrder verifies the request against the broker's capabilities,
// resolves the instrument, and places the order. Returns the broker's
// order id.
func (c *Client) PlaceOrder(ctx context.Context, req domain.OrderRequest) (string, error) {
	if err := c.adapter.Capabilities().Verify(req.Instrument, req.OrderType, req.Product); err != nil {
		return "", err
	}
	resolved, err := c.Resolve(ctx, req.Instrument)
	if err != nil {
		return "", err
	}
	return c.adapter.PlaceOrder(ctx, resolved, req)
}

// ModifyOrder changes a pending order. Nil fields are left untouched.
func (c *Client) ModifyOrder(ctx context.Context, orderID string, req domain.ModifyRequest) error {
	return c.adapter.ModifyOrder(ctx, orderID, req)
}

// CancelOrder cancels a pending order.
func (c *Client) CancelOrder(ctx context.Context, orderID string) error {
	return c.adapter.CancelOrder(ctx, orderID)
}

// CancelAllOrders cancels every open or pending order concurrently.
// Successes and failures are partitioned by order id; it never returns an
// error.
func (c *Client) CancelAllOrders(ctx context.Context) (cancelled, failed []string) {
	return c.adapter.CancelAllOrders(ctx)
}

// CloseAllPositions places offsetting market orders for every non-zero
// position concurrently. Successes are placed order ids, failures are
// position symbols; it never returns an error.
func (c *Client) CloseAllPositions(ctx context.Context) (placed, failedSymbols []string) {
	return c.adapter.CloseAllPositions(ctx)
}

// Margin asks the broker what margin a prospective order would block.
func (c *Client) Margin(ctx context.Context, req domain.MarginRequest) (*domain.Margin, error) {
	if err := c.adapter.Capabilities().Verify(req.Instrument, req.OrderType, req.Product); err != nil {
		return nil, err
	}
	resolved, err := c.Resolve(ctx, req.Instrument)
	if err != nil {
		return nil, err
	}
	return c.adapter.GetMargin(ctx, resolved, req)
}

// Subscribe resolves the instruments and streams ticks for them to
// onTick. The first call establishes the connection and fixes the
// handler; later calls extend the subscription. Brokers without streaming
// return an UnsupportedFeature error.
func (c *Client) Subscribe(ctx context.Context, instruments []domain.Instrument, onTick stream.TickHandler) error {
	subs := make([]stream.Subscription, 0, len(instruments))
	for _, instrument := range instruments {
		resolved, err := c.Resolve(ctx, instrument)
		if err != nil {
			return err
		}
		subs = append(subs, stream.Subscription{Instrument: instrument, Resolved: resolved})
	}

	c.mu.Lock()
	if c.stream == nil {
		sc, err := c.adapter.NewStreamClient()
		if err != nil {
			c.mu.Unlock()
			return err
		}
		c.stream = sc
	}
	sc := c.stream
	c.mu.Unlock()

	return sc.Subscribe(ctx, subs, onTick)
}

// Unsubscribe stops ticks for the given instruments.
func (c *Client) Unsubscribe(ctx context.Context, instruments []domain.Instrument) error {
	c.mu.RLock()
	sc := c.stream
	c.mu.RUnlock()
	if sc == nil {
		return nil
	}
	return sc.Unsubscribe(ctx, instruments)
}

// Close tears down the streaming connection, the broker adapter, and the
// instrument store. The client is unusable afterwards.
func (c *Client) Close() error {
	c.mu.Lock()
	sc := c.stream
	c.stream = nil
	c.mu.Unlock()

	var firstErr error
	if sc != nil {
		if err := sc.Close(); err != nil {
			firstErr = err
		}
	}
	if err := c.adapter.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := c.store.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	c.log.Info().Msg("Client closed")
	return firstErr
}

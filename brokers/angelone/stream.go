package angelone

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"nhooyr.io/websocket"

	"github.com/tradetools/ttconnect/auth"
	"github.com/tradetools/ttconnect/config"
	"github.com/tradetools/ttconnect/domain"
	"github.com/tradetools/ttconnect/stream"
)

const (
	pingInterval         = 10 * time.Second
	baseReconnectDelay   = 2 * time.Second
	maxReconnectDelay    = 60 * time.Second
	cleanSessionDuration = time.Minute
	readLimit            = 1 << 20

	actionSubscribe   = 1
	actionUnsubscribe = 0
)

// SmartAPI addresses venues by numeric exchange type on the socket.
var venueExchangeTypes = map[domain.Exchange]int{
	domain.ExchangeNSE: 1,
	domain.ExchangeNFO: 2,
	domain.ExchangeBSE: 3,
	domain.ExchangeBFO: 4,
	domain.ExchangeMCX: 5,
	domain.ExchangeCDS: 13,
}

func modeFromConfig(cfg config.Config) int {
	switch cfg.String("stream_mode") {
	case "ltp":
		return modeLTP
	case "quote":
		return modeQuote
	default:
		return modeSnapQuote
	}
}

type streamConfig struct {
	url      string
	apiKey   string
	clientID string
	mode     int
	session  *auth.Manager
	log      zerolog.Logger
}

// streamClient is the SmartAPI websocket client: one socket, a reconnect
// loop that resubscribes everything the ledger tracks, and a ping every
// ten seconds to keep the vendor from dropping the session.
type streamClient struct {
	cfg    streamConfig
	ledger *stream.Ledger
	log    zerolog.Logger

	runCtx context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu      sync.Mutex
	onTick  stream.TickHandler
	conn    *websocket.Conn
	started bool
	closed  bool
}

var _ stream.Client = (*streamClient)(nil)

func newStreamClient(cfg streamConfig) *streamClient {
	runCtx, cancel := context.WithCancel(context.Background())
	return &streamClient{
		cfg:    cfg,
		ledger: stream.NewLedger(),
		log:    cfg.log.With().Str("component", "stream").Logger(),
		runCtx: runCtx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// Subscribe tracks the subscriptions and starts the connection loop on
// first use. Later calls extend the live subscription.
func (c *streamClient) Subscribe(ctx context.Context, subs []stream.Subscription, onTick stream.TickHandler) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return context.Canceled
	}
	if c.onTick == nil {
		c.onTick = onTick
	}

	var added []string
	for _, sub := range subs {
		if sub.Resolved == nil {
			continue
		}
		if c.ledger.Add(sub.Resolved.Token, sub.Instrument, sub.Resolved.Exchange) {
			added = append(added, sub.Resolved.Token)
		}
	}

	if !c.started {
		c.started = true
		c.mu.Unlock()
		go c.run()
		return nil
	}
	conn := c.conn
	c.mu.Unlock()

	// Already connected: extend the live subscription with the new
	// tokens. The reconnect path covers them regardless.
	if conn != nil && len(added) > 0 {
		return c.send(ctx, conn, actionSubscribe, c.ledger.GroupByVenue(added))
	}
	return nil
}

// Unsubscribe stops ticks for the instruments and tells the vendor.
func (c *streamClient) Unsubscribe(ctx context.Context, instruments []domain.Instrument) error {
	tokens := c.ledger.TokensFor(instruments)
	if len(tokens) == 0 {
		return nil
	}
	groups := c.ledger.GroupByVenue(tokens)
	c.ledger.Remove(instruments)

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn != nil {
		return c.send(ctx, conn, actionUnsubscribe, groups)
	}
	return nil
}

// Close stops the reconnect loop and closes the socket.
func (c *streamClient) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	started := c.started
	c.mu.Unlock()

	c.cancel()
	if started {
		<-c.done
	} else {
		close(c.done)
	}
	return nil
}

// connectHeaders derives the handshake headers from the live session;
// AUTO mode rotates tokens, so these are never cached.
func (c *streamClient) connectHeaders() http.Header {
	session, _ := c.cfg.session.Session()
	header := http.Header{}
	header.Set("Authorization", "Bearer "+session.AccessToken)
	header.Set("x-api-key", c.cfg.apiKey)
	header.Set("x-client-code", c.cfg.clientID)
	header.Set("x-feed-token", session.FeedToken)
	return header
}

// run is the connection loop: dial, resubscribe everything tracked,
// pump frames until an I/O error, back off, repeat. The delay doubles
// from 2s to a 60s ceiling and resets after a session that held for a
// while.
func (c *streamClient) run() {
	defer close(c.done)

	schedule := backoff.NewExponentialBackOff()
	schedule.InitialInterval = baseReconnectDelay
	schedule.MaxInterval = maxReconnectDelay
	schedule.Multiplier = 2
	schedule.RandomizationFactor = 0

	for {
		select {
		case <-c.runCtx.Done():
			return
		default:
		}

		conn, _, err := websocket.Dial(c.runCtx, c.cfg.url, &websocket.DialOptions{
			HTTPHeader: c.connectHeaders(),
		})
		if err != nil {
			if c.runCtx.Err() != nil {
				return
			}
			delay := schedule.NextBackOff()
			if delay == backoff.Stop {
				delay = maxReconnectDelay
			}
			c.log.Warn().Err(err).Dur("retry_in", delay).Msg("Stream dial failed")
			select {
			case <-c.runCtx.Done():
				return
			case <-time.After(delay):
			}
			continue
		}
		conn.SetReadLimit(readLimit)

		c.mu.Lock()
		c.conn = conn
		c.mu.Unlock()

		connectedAt := time.Now()
		c.log.Info().Int("tokens", c.ledger.Len()).Msg("Stream connected")

		// One subscribe message covering everything currently tracked.
		if tokens := c.ledger.Tokens(); len(tokens) > 0 {
			if err := c.send(c.runCtx, conn, actionSubscribe, c.ledger.GroupByVenue(tokens)); err != nil {
				c.log.Warn().Err(err).Msg("Resubscribe failed")
			}
		}

		connCtx, connCancel := context.WithCancel(c.runCtx)
		errCh := make(chan error, 2)
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			errCh <- c.readLoop(connCtx, conn)
		}()
		go func() {
			defer wg.Done()
			errCh <- c.pingLoop(connCtx, conn)
		}()

		firstErr := <-errCh
		connCancel()
		_ = conn.Close(websocket.StatusNormalClosure, "reconnecting")
		wg.Wait()

		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()

		if c.runCtx.Err() != nil {
			return
		}
		if time.Since(connectedAt) >= cleanSessionDuration {
			schedule.Reset()
		}

		delay := schedule.NextBackOff()
		if delay == backoff.Stop {
			delay = maxReconnectDelay
		}
		c.log.Warn().Err(firstErr).Dur("retry_in", delay).Msg("Stream disconnected")
		select {
		case <-c.runCtx.Done():
			return
		case <-time.After(delay):
		}
	}
}

// readLoop decodes inbound binary frames and dispatches ticks. Each
// handler invocation runs on its own goroutine so one slow consumer
// cannot stall the socket; completion order across ticks is undefined.
func (c *streamClient) readLoop(ctx context.Context, conn *websocket.Conn) error {
	for {
		msgType, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		if msgType != websocket.MessageBinary {
			// Text frames are pong replies and error notices.
			continue
		}

		raw, err := decodeFrame(data)
		if err != nil {
			c.log.Debug().Err(err).Msg("Discarding malformed frame")
			continue
		}

		// Ticks for tokens we no longer track are stale leftovers from a
		// prior session.
		instrument, ok := c.ledger.Instrument(raw.Token)
		if !ok {
			continue
		}

		c.mu.Lock()
		handler := c.onTick
		c.mu.Unlock()
		if handler == nil {
			continue
		}

		tick := domain.Tick{
			Instrument: instrument,
			LTP:        raw.LTP,
			Volume:     raw.Volume,
			OI:         raw.OI,
			Bid:        raw.Bid,
			Ask:        raw.Ask,
			Timestamp:  raw.Timestamp,
		}
		go handler(tick)
	}
}

// pingLoop sends the vendor's text heartbeat every ten seconds.
func (c *streamClient) pingLoop(ctx context.Context, conn *websocket.Conn) error {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := conn.Write(ctx, websocket.MessageText, []byte("ping")); err != nil {
				return err
			}
		}
	}
}

// subscribeMessage is the vendor's subscription payload shape.
type subscribeMessage struct {
	CorrelationID string          `json:"correlationID"`
	Action        int             `json:"action"`
	Params        subscribeParams `json:"params"`
}

type subscribeParams struct {
	Mode      int         `json:"mode"`
	TokenList []tokenList `json:"tokenList"`
}

type tokenList struct {
	ExchangeType int      `json:"exchangeType"`
	Tokens       []string `json:"tokens"`
}

// send writes one subscribe/unsubscribe message covering the grouped
// tokens.
func (c *streamClient) send(ctx context.Context, conn *websocket.Conn, action int, groups map[domain.Exchange][]string) error {
	message := subscribeMessage{
		CorrelationID: uuid.NewString(),
		Action:        action,
		Params:        subscribeParams{Mode: c.cfg.mode},
	}
	for venue, tokens := range groups {
		exchangeType, ok := venueExchangeTypes[venue]
		if !ok {
			c.log.Warn().Str("venue", string(venue)).Msg("No exchange type for venue, skipping tokens")
			continue
		}
		message.Params.TokenList = append(message.Params.TokenList, tokenList{
			ExchangeType: exchangeType,
			Tokens:       tokens,
		})
	}
	if len(message.Params.TokenList) == 0 {
		return nil
	}

	encoded, err := json.Marshal(message)
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, encoded)
}

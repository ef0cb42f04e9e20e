package zerodha

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/tradetools/ttconnect/auth"
	"github.com/tradetools/ttconnect/brokers"
	"github.com/tradetools/ttconnect/config"
	"github.com/tradetools/ttconnect/domain"
	"github.com/tradetools/ttconnect/errs"
	"github.com/tradetools/ttconnect/store"
	"github.com/tradetools/ttconnect/stream"
)

// BrokerID is the registry id for Zerodha (Kite Connect).
const BrokerID = "zerodha"

const (
	baseURL     = "https://api.kite.trade"
	kiteVersion = "3"
)

func init() {
	brokers.Register(BrokerID, New)
}

// Capabilities describes what Kite Connect supports. Token acquisition
// requires an interactive browser login, so only manual auth is offered.
func Capabilities() brokers.Capabilities {
	return brokers.Capabilities{
		BrokerID: BrokerID,
		Segments: []domain.Exchange{
			domain.ExchangeNSE, domain.ExchangeBSE,
			domain.ExchangeNFO, domain.ExchangeBFO,
		},
		OrderTypes: []domain.OrderType{
			domain.OrderTypeMarket, domain.OrderTypeLimit,
			domain.OrderTypeSL, domain.OrderTypeSLM,
		},
		ProductTypes: []domain.ProductType{
			domain.ProductCNC, domain.ProductMIS, domain.ProductNRML,
		},
		AuthModes: []domain.AuthMode{domain.AuthManual},
		Streaming: false,
	}
}

// Adapter is the Zerodha implementation of brokers.Adapter.
type Adapter struct {
	cfg         config.Config
	log         zerolog.Logger
	http        *brokers.HTTPClient
	auth        *auth.Manager
	transformer Transformer
	caps        brokers.Capabilities
	apiKey      string
}

var (
	_ brokers.Adapter        = (*Adapter)(nil)
	_ brokers.PositionCloser = (*Adapter)(nil)
)

// New constructs the adapter from client configuration.
func New(cfg config.Config, log zerolog.Logger) (brokers.Adapter, error) {
	if err := cfg.Require("api_key"); err != nil {
		return nil, err
	}

	caps := Capabilities()
	if err := caps.VerifyAuthMode(cfg.AuthMode(domain.AuthManual)); err != nil {
		return nil, err
	}

	sessionStore, err := auth.StoreFromConfig(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to build session store: %w", err)
	}

	flows := auth.Flows{
		BrokerID:       BrokerID,
		DefaultMode:    domain.AuthManual,
		SupportedModes: caps.AuthModes,
		LoginManual: func(ctx context.Context) (*auth.Session, error) {
			if !cfg.Has("access_token") {
				return nil, errs.Authentication(
					"manual auth requires access_token in configuration")
			}
			return &auth.Session{
				AccessToken: cfg.String("access_token"),
				ObtainedAt:  time.Now().UTC(),
				ExpiresAt:   auth.NextMidnightIST(),
			}, nil
		},
	}

	adapterLog := log.With().Str("broker", BrokerID).Logger()
	manager, err := auth.NewManager(flows, cfg, sessionStore, adapterLog)
	if err != nil {
		return nil, err
	}

	return &Adapter{
		cfg:    cfg,
		log:    adapterLog,
		http:   brokers.NewHTTPClient(cfg.StringOr("base_url", baseURL), adapterLog),
		auth:   manager,
		caps:   caps,
		apiKey: cfg.String("api_key"),
	}, nil
}

func (a *Adapter) BrokerID() string { return BrokerID }

func (a *Adapter) Capabilities() brokers.Capabilities { return a.caps }

func (a *Adapter) Login(ctx context.Context) error          { return a.auth.Login(ctx) }
func (a *Adapter) RefreshSession(ctx context.Context) error { return a.auth.Refresh(ctx) }
func (a *Adapter) Session() (auth.Session, bool)            { return a.auth.Session() }

// headers snapshots the live token per request; sessions rotate.
func (a *Adapter) headers() map[string]string {
	return map[string]string{
		"X-Kite-Version": kiteVersion,
		"Authorization":  "token " + a.apiKey + ":" + a.auth.AccessToken(),
	}
}

// envelope is Kite's {status, data} reply shape.
type envelope struct {
	Status    string          `json:"status"`
	Message   string          `json:"message"`
	ErrorType string          `json:"error_type"`
	Data      json.RawMessage `json:"data"`
}

// call performs one REST request and unwraps the envelope. Vendor
// business errors map through the transformer; throttling maps to
// RateLimit regardless of envelope contents.
func (a *Adapter) call(ctx context.Context, method, path string, query, form url.Values) (any, error) {
	resp, err := a.http.Do(ctx, brokers.Request{
		Method:  method,
		Path:    path,
		Query:   query,
		Form:    form,
		Headers: a.headers,
	})
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, errs.RateLimit("broker throttled the request")
	}

	var env envelope
	if err := json.Unmarshal(resp.Body, &env); err != nil {
		return nil, errs.Broker(
			fmt.Sprintf("unparseable response from %s %s", method, path),
			errs.WithCause(err))
	}
	if env.Status != "success" {
		return nil, a.transformer.ParseError(brokers.Payload{
			"error_type": env.ErrorType,
			"message":    env.Message,
		})
	}

	if len(env.Data) == 0 {
		return nil, nil
	}
	var data any
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, errs.Broker("unparseable data in broker response", errs.WithCause(err))
	}
	return data, nil
}

// FetchInstruments downloads the CSV instrument dump. This endpoint
// answers raw CSV, not the JSON envelope.
func (a *Adapter) FetchInstruments(ctx context.Context) (*domain.ParsedInstruments, error) {
	resp, err := a.http.Do(ctx, brokers.Request{
		Method:  http.MethodGet,
		Path:    "/instruments",
		Headers: a.headers,
	})
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errs.Broker(fmt.Sprintf(
			"instrument dump request returned HTTP %d", resp.StatusCode))
	}
	return ParseInstruments(bytes.NewReader(resp.Body), a.log)
}

func (a *Adapter) GetProfile(ctx context.Context) (*domain.Profile, error) {
	data, err := a.call(ctx, http.MethodGet, "/user/profile", nil, nil)
	if err != nil {
		return nil, err
	}
	return a.transformer.ToProfile(asPayload(data))
}

func (a *Adapter) GetFunds(ctx context.Context) (*domain.Fund, error) {
	data, err := a.call(ctx, http.MethodGet, "/user/margins", nil, nil)
	if err != nil {
		return nil, err
	}
	return a.transformer.ToFund(asPayload(data))
}

func (a *Adapter) GetHoldings(ctx context.Context) ([]domain.Holding, error) {
	data, err := a.call(ctx, http.MethodGet, "/portfolio/holdings", nil, nil)
	if err != nil {
		return nil, err
	}
	rows := brokers.AsList(data)
	holdings := make([]domain.Holding, 0, len(rows))
	for _, row := range rows {
		holding, err := a.transformer.ToHolding(row)
		if err != nil {
			return nil, err
		}
		holdings = append(holdings, holding)
	}
	return holdings, nil
}

// RawPositions returns the net positions with non-zero quantity. Kite
// reports {net, day}; only net is exposed.
func (a *Adapter) RawPositions(ctx context.Context) ([]brokers.Payload, error) {
	data, err := a.call(ctx, http.MethodGet, "/portfolio/positions", nil, nil)
	if err != nil {
		return nil, err
	}
	var open []brokers.Payload
	for _, row := range brokers.List(asPayload(data), "net") {
		if brokers.IntOf(row, "quantity") != 0 {
			open = append(open, row)
		}
	}
	return open, nil
}

func (a *Adapter) GetPositions(ctx context.Context) ([]domain.Position, error) {
	rows, err := a.RawPositions(ctx)
	if err != nil {
		return nil, err
	}
	positions := make([]domain.Position, 0, len(rows))
	for _, row := range rows {
		position, err := a.transformer.ToPosition(row)
		if err != nil {
			return nil, err
		}
		positions = append(positions, position)
	}
	return positions, nil
}

func (a *Adapter) GetOrders(ctx context.Context) ([]domain.Order, error) {
	data, err := a.call(ctx, http.MethodGet, "/orders", nil, nil)
	if err != nil {
		return nil, err
	}
	rows := brokers.AsList(data)
	orders := make([]domain.Order, 0, len(rows))
	for _, row := range rows {
		order, err := a.transformer.ToOrder(row, nil)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	return orders, nil
}

func (a *Adapter) GetTrades(ctx context.Context) ([]domain.Trade, error) {
	data, err := a.call(ctx, http.MethodGet, "/trades", nil, nil)
	if err != nil {
		return nil, err
	}
	rows := brokers.AsList(data)
	trades := make([]domain.Trade, 0, len(rows))
	for _, row := range rows {
		trade, err := a.transformer.ToTrade(row)
		if err != nil {
			return nil, err
		}
		trades = append(trades, trade)
	}
	return trades, nil
}

// GetOrder fetches the order's history array and returns its last entry,
// which is the current state.
func (a *Adapter) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	data, err := a.call(ctx, http.MethodGet, "/orders/"+url.PathEscape(orderID), nil, nil)
	if err != nil {
		return nil, err
	}
	history := brokers.AsList(data)
	if len(history) == 0 {
		return nil, errs.OrderNotFound(fmt.Sprintf("order %s has no history", orderID))
	}
	order, err := a.transformer.ToOrder(history[len(history)-1], nil)
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (a *Adapter) PlaceOrder(ctx context.Context, resolved *store.ResolvedInstrument, req domain.OrderRequest) (string, error) {
	if err := a.caps.Verify(req.Instrument, req.OrderType, req.Product); err != nil {
		return "", err
	}
	return a.placeRaw(ctx, a.transformer.ToOrderParams(resolved, req))
}

func (a *Adapter) placeRaw(ctx context.Context, params brokers.Payload) (string, error) {
	data, err := a.call(ctx, http.MethodPost, "/orders/regular", nil, formFrom(params))
	if err != nil {
		return "", err
	}
	return a.transformer.ToOrderID(asPayload(data))
}

func (a *Adapter) ModifyOrder(ctx context.Context, orderID string, req domain.ModifyRequest) error {
	form := url.Values{}
	if req.Qty != nil {
		form.Set("quantity", fmt.Sprintf("%d", *req.Qty))
	}
	if req.Price != nil {
		form.Set("price", formatPrice(*req.Price))
	}
	if req.TriggerPrice != nil {
		form.Set("trigger_price", formatPrice(*req.TriggerPrice))
	}
	if req.OrderType != nil {
		form.Set("order_type", toKiteOrderType(*req.OrderType))
	}
	_, err := a.call(ctx, http.MethodPut, "/orders/regular/"+url.PathEscape(orderID), nil, form)
	return err
}

func (a *Adapter) CancelOrder(ctx context.Context, orderID string) error {
	_, err := a.call(ctx, http.MethodDelete, "/orders/regular/"+url.PathEscape(orderID), nil, nil)
	return err
}

func (a *Adapter) CancelAllOrders(ctx context.Context) (cancelled, failed []string) {
	return brokers.CancelAll(ctx, a, a.log)
}

func (a *Adapter) CloseAllPositions(ctx context.Context) (placed, failedSymbols []string) {
	return brokers.CloseAll(ctx, a, a.log)
}

// PositionCloser hooks for brokers.CloseAll.

func (a *Adapter) PositionQty(raw brokers.Payload) int {
	return brokers.IntOf(raw, "quantity")
}

func (a *Adapter) PositionSymbol(raw brokers.Payload) string {
	return brokers.Str(raw, "tradingsymbol")
}

func (a *Adapter) PlaceClose(ctx context.Context, raw brokers.Payload, qty int, side domain.Side) (string, error) {
	return a.placeRaw(ctx, a.transformer.ToCloseParams(raw, qty, side))
}

// GetMargin asks the basket-margin endpoint what the order would block.
func (a *Adapter) GetMargin(ctx context.Context, resolved *store.ResolvedInstrument, req domain.MarginRequest) (*domain.Margin, error) {
	item := brokers.Payload{
		"exchange":         string(resolved.Exchange),
		"tradingsymbol":    resolved.BrokerSymbol,
		"transaction_type": string(req.Side),
		"variety":          "regular",
		"product":          string(req.Product),
		"order_type":       toKiteOrderType(req.OrderType),
		"quantity":         req.Qty,
	}
	if req.Price != nil {
		item["price"] = *req.Price
	}

	query := url.Values{"consider_positions": []string{"true"}}
	resp, err := a.http.Do(ctx, brokers.Request{
		Method:  http.MethodPost,
		Path:    "/margins/basket",
		Query:   query,
		JSON:    []brokers.Payload{item},
		Headers: a.headers,
	})
	if err != nil {
		return nil, err
	}

	var env envelope
	if err := json.Unmarshal(resp.Body, &env); err != nil {
		return nil, errs.Broker("unparseable margin response", errs.WithCause(err))
	}
	if env.Status != "success" {
		return nil, a.transformer.ParseError(brokers.Payload{
			"error_type": env.ErrorType,
			"message":    env.Message,
		})
	}
	var data any
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, errs.Broker("unparseable margin data", errs.WithCause(err))
	}
	return a.transformer.ToMargin(asPayload(data))
}

// NewStreamClient reports streaming as unsupported for this vendor.
func (a *Adapter) NewStreamClient() (stream.Client, error) {
	return nil, errs.UnsupportedFeature("zerodha streaming is not supported")
}

func (a *Adapter) Close() error {
	a.http.Close()
	return nil
}

func asPayload(v any) brokers.Payload {
	if m, ok := v.(map[string]any); ok {
		return m
	}
	return brokers.Payload{}
}

func formFrom(params brokers.Payload) url.Values {
	form := url.Values{}
	for key, value := range params {
		form.Set(key, fmt.Sprintf("%v", value))
	}
	return form
}

package angelone

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/pquerna/otp/totp"
	"github.com/rs/zerolog"

	"github.com/tradetools/ttconnect/auth"
	"github.com/tradetools/ttconnect/brokers"
	"github.com/tradetools/ttconnect/config"
	"github.com/tradetools/ttconnect/domain"
	"github.com/tradetools/ttconnect/errs"
	"github.com/tradetools/ttconnect/store"
	"github.com/tradetools/ttconnect/stream"
)

// BrokerID is the registry id for AngelOne (SmartAPI).
const BrokerID = "angelone"

const (
	baseURL   = "https://apiconnect.angelbroking.com"
	masterURL = "https://margincalculator.angelbroking.com"

	securePrefix = "/rest/secure/angelbroking"
	authPrefix   = "/rest/auth/angelbroking"
	masterPath   = "/OpenAPI_File/files/OpenAPIScripMaster.json"

	streamURL = "wss://smartapisocket.angelone.in/smart-stream"
)

// SmartAPI demands client-environment headers on every request. The
// defaults are placeholders; operators can override via configuration.
const (
	defaultLocalIP  = "192.168.1.1"
	defaultPublicIP = "106.193.147.98"
	defaultMAC      = "00:0a:95:9d:68:16"
)

func init() {
	brokers.Register(BrokerID, New)
}

// Capabilities describes what SmartAPI supports.
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
		AuthModes: []domain.AuthMode{domain.AuthAuto, domain.AuthManual},
		Streaming: true,
	}
}

// Adapter is the AngelOne implementation of brokers.Adapter.
type Adapter struct {
	cfg         config.Config
	log         zerolog.Logger
	http        *brokers.HTTPClient
	master      *brokers.HTTPClient
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
	mode := cfg.AuthMode(domain.AuthAuto)
	if err := caps.VerifyAuthMode(mode); err != nil {
		return nil, err
	}
	if mode == domain.AuthAuto {
		if err := cfg.Require("client_id", "pin", "totp_secret"); err != nil {
			return nil, err
		}
	}

	sessionStore, err := auth.StoreFromConfig(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to build session store: %w", err)
	}

	adapterLog := log.With().Str("broker", BrokerID).Logger()
	adapter := &Adapter{
		cfg:    cfg,
		log:    adapterLog,
		http:   brokers.NewHTTPClient(cfg.StringOr("base_url", baseURL), adapterLog),
		master: brokers.NewHTTPClient(cfg.StringOr("master_url", masterURL), adapterLog),
		caps:   caps,
		apiKey: cfg.String("api_key"),
	}

	flows := auth.Flows{
		BrokerID:       BrokerID,
		DefaultMode:    domain.AuthAuto,
		SupportedModes: caps.AuthModes,
		LoginManual: func(ctx context.Context) (*auth.Session, error) {
			if !cfg.Has("access_token") {
				return nil, errs.Authentication(
					"manual auth requires access_token in configuration")
			}
			return &auth.Session{
				AccessToken:  cfg.String("access_token"),
				RefreshToken: cfg.String("refresh_token"),
				FeedToken:    cfg.String("feed_token"),
				ObtainedAt:   time.Now().UTC(),
				ExpiresAt:    auth.NextMidnightIST(),
			}, nil
		},
		LoginAuto:   adapter.loginAuto,
		RefreshAuto: adapter.refreshAuto,
	}

	manager, err := auth.NewManager(flows, cfg, sessionStore, adapterLog)
	if err != nil {
		return nil, err
	}
	adapter.auth = manager
	return adapter, nil
}

func (a *Adapter) BrokerID() string { return BrokerID }

func (a *Adapter) Capabilities() brokers.Capabilities { return a.caps }

func (a *Adapter) Login(ctx context.Context) error          { return a.auth.Login(ctx) }
func (a *Adapter) RefreshSession(ctx context.Context) error { return a.auth.Refresh(ctx) }
func (a *Adapter) Session() (auth.Session, bool)            { return a.auth.Session() }

// headers snapshots the live token per request.
func (a *Adapter) headers() map[string]string {
	return map[string]string{
		"Authorization":    "Bearer " + a.auth.AccessToken(),
		"X-UserType":       "USER",
		"X-SourceID":       "WEB",
		"X-ClientLocalIP":  a.cfg.StringOr("client_local_ip", defaultLocalIP),
		"X-ClientPublicIP": a.cfg.StringOr("client_public_ip", defaultPublicIP),
		"X-MACAddress":     a.cfg.StringOr("mac_address", defaultMAC),
		"X-PrivateKey":     a.apiKey,
	}
}

// envelope is SmartAPI's {status, message, errorcode, data} reply shape.
type envelope struct {
	Status    bool            `json:"status"`
	Message   string          `json:"message"`
	ErrorCode string          `json:"errorcode"`
	Data      json.RawMessage `json:"data"`
}

// call performs one REST request and unwraps the envelope. A null data
// field normalizes to nil, never an error; only the envelope's own
// status decides error-ness.
func (a *Adapter) call(ctx context.Context, method, path string, body any) (any, error) {
	resp, err := a.http.Do(ctx, brokers.Request{
		Method:  method,
		Path:    path,
		JSON:    body,
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
	if !env.Status {
		return nil, a.transformer.ParseError(brokers.Payload{
			"errorcode": env.ErrorCode,
			"message":   env.Message,
		})
	}

	if len(env.Data) == 0 || string(env.Data) == "null" {
		return nil, nil
	}
	var data any
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, errs.Broker("unparseable data in broker response", errs.WithCause(err))
	}
	return data, nil
}

// loginAuto performs the TOTP password login.
func (a *Adapter) loginAuto(ctx context.Context) (*auth.Session, error) {
	code, err := totp.GenerateCode(a.cfg.String("totp_secret"), time.Now())
	if err != nil {
		return nil, errs.Authentication("failed to generate TOTP code", errs.WithCause(err))
	}

	data, err := a.call(ctx, http.MethodPost, authPrefix+"/user/v1/loginByPassword", brokers.Payload{
		"clientcode": a.cfg.String("client_id"),
		"password":   a.cfg.String("pin"),
		"totp":       code,
	})
	if err != nil {
		return nil, err
	}
	return sessionFromTokens(asPayload(data))
}

// refreshAuto renews tokens via the renew endpoint, falling back to a
// full login when the refresh token is stale.
func (a *Adapter) refreshAuto(ctx context.Context, current *auth.Session) (*auth.Session, error) {
	if current == nil || current.RefreshToken == "" {
		return a.loginAuto(ctx)
	}

	data, err := a.call(ctx, http.MethodPost, authPrefix+"/jwt/v1/generateTokens", brokers.Payload{
		"refreshToken": current.RefreshToken,
	})
	if err != nil {
		a.log.Warn().Err(err).Msg("Token renewal failed, performing full login")
		return a.loginAuto(ctx)
	}
	return sessionFromTokens(asPayload(data))
}

func sessionFromTokens(data brokers.Payload) (*auth.Session, error) {
	jwt := brokers.Str(data, "jwtToken")
	if jwt == "" {
		return nil, errs.Authentication("login response carried no jwtToken")
	}
	return &auth.Session{
		AccessToken:  jwt,
		RefreshToken: brokers.Str(data, "refreshToken"),
		FeedToken:    brokers.Str(data, "feedToken"),
		ObtainedAt:   time.Now().UTC(),
		ExpiresAt:    auth.NextMidnightIST(),
	}, nil
}

// FetchInstruments downloads the scrip master JSON. The dump is hosted
// on a separate static host and carries no envelope.
func (a *Adapter) FetchInstruments(ctx context.Context) (*domain.ParsedInstruments, error) {
	resp, err := a.master.Do(ctx, brokers.Request{
		Method: http.MethodGet,
		Path:   masterPath,
	})
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errs.Broker(fmt.Sprintf(
			"scrip master request returned HTTP %d", resp.StatusCode))
	}
	return ParseInstruments(resp.Body, a.log)
}

func (a *Adapter) GetProfile(ctx context.Context) (*domain.Profile, error) {
	data, err := a.call(ctx, http.MethodGet, securePrefix+"/user/v1/getProfile", nil)
	if err != nil {
		return nil, err
	}
	return a.transformer.ToProfile(asPayload(data))
}

func (a *Adapter) GetFunds(ctx context.Context) (*domain.Fund, error) {
	data, err := a.call(ctx, http.MethodGet, securePrefix+"/user/v1/getRMS", nil)
	if err != nil {
		return nil, err
	}
	return a.transformer.ToFund(asPayload(data))
}

func (a *Adapter) GetHoldings(ctx context.Context) ([]domain.Holding, error) {
	data, err := a.call(ctx, http.MethodGet, securePrefix+"/portfolio/v1/getHolding", nil)
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

// RawPositions returns position rows with non-zero net quantity.
func (a *Adapter) RawPositions(ctx context.Context) ([]brokers.Payload, error) {
	data, err := a.call(ctx, http.MethodGet, securePrefix+"/order/v1/getPosition", nil)
	if err != nil {
		return nil, err
	}
	var open []brokers.Payload
	for _, row := range brokers.AsList(data) {
		if brokers.IntOf(row, "netqty") != 0 {
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

func (a *Adapter) rawOrders(ctx context.Context) ([]brokers.Payload, error) {
	data, err := a.call(ctx, http.MethodGet, securePrefix+"/order/v1/getOrderBook", nil)
	if err != nil {
		return nil, err
	}
	return brokers.AsList(data), nil
}

func (a *Adapter) GetOrders(ctx context.Context) ([]domain.Order, error) {
	rows, err := a.rawOrders(ctx)
	if err != nil {
		return nil, err
	}
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
	data, err := a.call(ctx, http.MethodGet, securePrefix+"/order/v1/getTradeBook", nil)
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

// GetOrder is unsupported: SmartAPI exposes no per-order read, only the
// full order book.
func (a *Adapter) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	return nil, errs.UnsupportedFeature("angelone does not support fetching a single order")
}

func (a *Adapter) PlaceOrder(ctx context.Context, resolved *store.ResolvedInstrument, req domain.OrderRequest) (string, error) {
	if err := a.caps.Verify(req.Instrument, req.OrderType, req.Product); err != nil {
		return "", err
	}
	return a.placeRaw(ctx, a.transformer.ToOrderParams(resolved, req))
}

func (a *Adapter) placeRaw(ctx context.Context, params brokers.Payload) (string, error) {
	data, err := a.call(ctx, http.MethodPost, securePrefix+"/order/v1/placeOrder", params)
	if err != nil {
		return "", err
	}
	return a.transformer.ToOrderID(asPayload(data))
}

// ModifyOrder rebuilds the vendor's full modify payload from the current
// order-book row, overlaying the requested changes. SmartAPI requires
// every field on modify, not just the deltas.
func (a *Adapter) ModifyOrder(ctx context.Context, orderID string, req domain.ModifyRequest) error {
	rows, err := a.rawOrders(ctx)
	if err != nil {
		return err
	}
	var current brokers.Payload
	for _, row := range rows {
		if brokers.Str(row, "orderid") == orderID {
			current = row
			break
		}
	}
	if current == nil {
		return errs.OrderNotFound(fmt.Sprintf("order %s not found in order book", orderID))
	}

	params := brokers.Payload{
		"variety":       "NORMAL",
		"orderid":       orderID,
		"tradingsymbol": brokers.Str(current, "tradingsymbol"),
		"symboltoken":   brokers.Str(current, "symboltoken"),
		"exchange":      brokers.Str(current, "exchange"),
		"producttype":   brokers.Str(current, "producttype"),
		"duration":      "DAY",
		"ordertype":     brokers.Str(current, "ordertype"),
		"quantity":      brokers.Str(current, "quantity"),
		"price":         brokers.Str(current, "price"),
	}
	if req.Qty != nil {
		params["quantity"] = fmt.Sprintf("%d", *req.Qty)
	}
	if req.Price != nil {
		params["price"] = formatPrice(*req.Price)
	}
	if req.TriggerPrice != nil {
		params["triggerprice"] = formatPrice(*req.TriggerPrice)
	}
	if req.OrderType != nil {
		params["ordertype"] = toVendorOrderType[*req.OrderType]
	}

	_, err = a.call(ctx, http.MethodPost, securePrefix+"/order/v1/modifyOrder", params)
	return err
}

func (a *Adapter) CancelOrder(ctx context.Context, orderID string) error {
	_, err := a.call(ctx, http.MethodPost, securePrefix+"/order/v1/cancelOrder", brokers.Payload{
		"variety": "NORMAL",
		"orderid": orderID,
	})
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
	return brokers.IntOf(raw, "netqty")
}

func (a *Adapter) PositionSymbol(raw brokers.Payload) string {
	return brokers.Str(raw, "tradingsymbol")
}

func (a *Adapter) PlaceClose(ctx context.Context, raw brokers.Payload, qty int, side domain.Side) (string, error) {
	return a.placeRaw(ctx, a.transformer.ToCloseParams(raw, qty, side))
}

// GetMargin asks the batch-margin endpoint what the order would block.
func (a *Adapter) GetMargin(ctx context.Context, resolved *store.ResolvedInstrument, req domain.MarginRequest) (*domain.Margin, error) {
	price := 0.0
	if req.Price != nil {
		price = *req.Price
	}
	data, err := a.call(ctx, http.MethodPost, securePrefix+"/margin/v1/batch", brokers.Payload{
		"positions": []brokers.Payload{{
			"exchange":    string(resolved.Exchange),
			"token":       resolved.Token,
			"tradeType":   string(req.Side),
			"productType": toVendorProduct[req.Product],
			"orderType":   toVendorOrderType[req.OrderType],
			"qty":         req.Qty,
			"price":       price,
		}},
	})
	if err != nil {
		return nil, err
	}
	return a.transformer.ToMargin(asPayload(data))
}

// NewStreamClient builds the binary tick streaming client from the live
// session.
func (a *Adapter) NewStreamClient() (stream.Client, error) {
	session, ok := a.auth.Session()
	if !ok {
		return nil, errs.Authentication("streaming requires a logged-in session")
	}
	if session.FeedToken == "" {
		return nil, errs.Authentication("session carries no feed token")
	}
	return newStreamClient(streamConfig{
		url:      a.cfg.StringOr("stream_url", streamURL),
		apiKey:   a.apiKey,
		clientID: a.cfg.String("client_id"),
		mode:     modeFromConfig(a.cfg),
		session:  a.auth,
		log:      a.log,
	}), nil
}

func (a *Adapter) Close() error {
	a.http.Close()
	a.master.Close()
	return nil
}

func asPayload(v any) brokers.Payload {
	if m, ok := v.(map[string]any); ok {
		return m
	}
	return brokers.Payload{}
}

package zerodha

import (
	"strconv"
	"time"

	"github.com/tradetools/ttconnect/brokers"
	"github.com/tradetools/ttconnect/domain"
	"github.com/tradetools/ttconnect/errs"
	"github.com/tradetools/ttconnect/store"
)

// Transformer maps Kite wire shapes to canonical records. Stateless.
type Transformer struct{}

var _ brokers.Transformer = Transformer{}

// Kite spells stop-loss market "SL-M"; everything else matches the
// canonical spelling.
func toKiteOrderType(t domain.OrderType) string {
	if t == domain.OrderTypeSLM {
		return "SL-M"
	}
	return string(t)
}

func fromKiteOrderType(s string) domain.OrderType {
	if s == "SL-M" {
		return domain.OrderTypeSLM
	}
	return domain.OrderType(s)
}

// ToOrderParams builds the form fields for POST /orders/regular.
func (Transformer) ToOrderParams(resolved *store.ResolvedInstrument, req domain.OrderRequest) brokers.Payload {
	params := brokers.Payload{
		"tradingsymbol":    resolved.BrokerSymbol,
		"exchange":         string(resolved.Exchange),
		"transaction_type": string(req.Side),
		"order_type":       toKiteOrderType(req.OrderType),
		"quantity":         strconv.Itoa(req.Qty),
		"product":          string(req.Product),
		"validity":         "DAY",
	}
	if req.Price != nil {
		params["price"] = formatPrice(*req.Price)
	}
	if req.TriggerPrice != nil {
		params["trigger_price"] = formatPrice(*req.TriggerPrice)
	}
	return params
}

// ToOrderID reads the order id from a placement response's data object.
func (Transformer) ToOrderID(raw brokers.Payload) (string, error) {
	id := brokers.Str(raw, "order_id")
	if id == "" {
		return "", errs.Broker("order response carried no order_id")
	}
	return id, nil
}

// ToCloseParams builds a market order offsetting a raw position row.
func (Transformer) ToCloseParams(positionRaw brokers.Payload, qty int, side domain.Side) brokers.Payload {
	return brokers.Payload{
		"tradingsymbol":    brokers.Str(positionRaw, "tradingsymbol"),
		"exchange":         brokers.Str(positionRaw, "exchange"),
		"transaction_type": string(side),
		"order_type":       string(domain.OrderTypeMarket),
		"quantity":         strconv.Itoa(qty),
		"product":          brokers.Str(positionRaw, "product"),
		"validity":         "DAY",
	}
}

func (Transformer) ToProfile(raw brokers.Payload) (*domain.Profile, error) {
	return &domain.Profile{
		ClientID: brokers.Str(raw, "user_id"),
		Name:     brokers.Str(raw, "user_name"),
		Email:    brokers.Str(raw, "email"),
		Phone:    brokers.Str(raw, "phone"),
	}, nil
}

// ToFund reads the equity segment of GET /user/margins.
func (Transformer) ToFund(raw brokers.Payload) (*domain.Fund, error) {
	equity := brokers.Sub(raw, "equity")
	available := brokers.Sub(equity, "available")
	utilised := brokers.Sub(equity, "utilised")

	fund := &domain.Fund{
		Available:     brokers.F64(available, "cash"),
		Used:          brokers.F64(utilised, "debits"),
		Collateral:    brokers.F64(available, "collateral"),
		M2MUnrealized: brokers.F64(utilised, "m2m_unrealised"),
		M2MRealized:   brokers.F64(utilised, "m2m_realised"),
	}
	fund.Total = fund.Available + fund.Used
	return fund, nil
}

func (Transformer) ToHolding(raw brokers.Payload) (domain.Holding, error) {
	holding := domain.Holding{
		Exchange: domain.Exchange(brokers.Str(raw, "exchange")),
		Symbol:   brokers.Str(raw, "tradingsymbol"),
		Qty:      brokers.IntOf(raw, "quantity"),
		AvgPrice: brokers.F64(raw, "average_price"),
		LTP:      brokers.F64(raw, "last_price"),
		PnL:      brokers.F64(raw, "pnl"),
	}
	if invested := holding.AvgPrice * float64(holding.Qty); invested != 0 {
		holding.PnLPercent = holding.PnL / invested * 100
	}
	return holding, nil
}

func (Transformer) ToPosition(raw brokers.Payload) (domain.Position, error) {
	return domain.Position{
		Exchange: domain.Exchange(brokers.Str(raw, "exchange")),
		Symbol:   brokers.Str(raw, "tradingsymbol"),
		Qty:      brokers.IntOf(raw, "quantity"),
		AvgPrice: brokers.F64(raw, "average_price"),
		LTP:      brokers.F64(raw, "last_price"),
		PnL:      brokers.F64(raw, "pnl"),
		Product:  domain.ProductType(brokers.Str(raw, "product")),
	}, nil
}

func (Transformer) ToOrder(raw brokers.Payload, instrument domain.Instrument) (domain.Order, error) {
	order := domain.Order{
		ID:           brokers.Str(raw, "order_id"),
		Instrument:   instrument,
		Exchange:     domain.Exchange(brokers.Str(raw, "exchange")),
		Symbol:       brokers.Str(raw, "tradingsymbol"),
		Side:         domain.Side(brokers.Str(raw, "transaction_type")),
		Qty:          brokers.IntOf(raw, "quantity"),
		FilledQty:    brokers.IntOf(raw, "filled_quantity"),
		Product:      domain.ProductType(brokers.Str(raw, "product")),
		OrderType:    fromKiteOrderType(brokers.Str(raw, "order_type")),
		Status:       brokers.NormalizeStatus(brokers.Str(raw, "status")),
		Price:        brokers.F64Ptr(raw, "price"),
		TriggerPrice: brokers.F64Ptr(raw, "trigger_price"),
		AvgPrice:     brokers.F64Ptr(raw, "average_price"),
	}
	if ts := parseKiteTime(brokers.Str(raw, "order_timestamp")); ts != nil {
		order.Timestamp = ts
	}
	return order, nil
}

func (Transformer) ToTrade(raw brokers.Payload) (domain.Trade, error) {
	trade := domain.Trade{
		OrderID:  brokers.Str(raw, "order_id"),
		Exchange: domain.Exchange(brokers.Str(raw, "exchange")),
		Symbol:   brokers.Str(raw, "tradingsymbol"),
		Side:     domain.Side(brokers.Str(raw, "transaction_type")),
		Qty:      brokers.IntOf(raw, "quantity"),
		AvgPrice: brokers.F64(raw, "average_price"),
		Product:  domain.ProductType(brokers.Str(raw, "product")),
	}
	trade.TradeValue = trade.AvgPrice * float64(trade.Qty)
	if ts := parseKiteTime(brokers.Str(raw, "fill_timestamp")); ts != nil {
		trade.Timestamp = ts
	}
	return trade, nil
}

// ToMargin reads the basket-margin response: initial is the requirement
// before hedging benefits, final after.
func (Transformer) ToMargin(raw brokers.Payload) (*domain.Margin, error) {
	initial := brokers.Sub(raw, "initial")
	final := brokers.Sub(raw, "final")

	margin := &domain.Margin{
		Total:         brokers.F64(initial, "total"),
		Span:          brokers.F64(initial, "span"),
		Exposure:      brokers.F64(initial, "exposure"),
		OptionPremium: brokers.F64(initial, "option_premium"),
		FinalTotal:    brokers.F64(final, "total"),
	}
	margin.Benefit = margin.Total - margin.FinalTotal
	return margin, nil
}

// ParseError maps Kite's error_type vocabulary to the canonical taxonomy.
func (Transformer) ParseError(raw brokers.Payload) error {
	errorType := brokers.Str(raw, "error_type")
	message := brokers.Str(raw, "message")
	if message == "" {
		message = "broker request failed"
	}

	switch errorType {
	case "TokenException", "PermissionException":
		return errs.Authentication(message, errs.WithCode(errorType))
	case "OrderException":
		return errs.Order(message, errs.WithCode(errorType))
	case "InputException":
		return errs.InvalidOrder(message, errs.WithCode(errorType))
	case "MarginException":
		return errs.InsufficientFunds(message, errs.WithCode(errorType))
	case "NetworkException":
		return errs.Broker(message, errs.WithCode(errorType))
	default:
		return errs.Broker(message, errs.WithCode(errorType))
	}
}

// parseKiteTime parses Kite's "2006-01-02 15:04:05" timestamps, which
// are wall-clock IST.
func parseKiteTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.ParseInLocation("2006-01-02 15:04:05", s, domain.IST)
	if err != nil {
		return nil
	}
	return &t
}

func formatPrice(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

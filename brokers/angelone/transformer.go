package angelone

import (
	"strconv"
	"strings"
	"time"

	"github.com/tradetools/ttconnect/brokers"
	"github.com/tradetools/ttconnect/domain"
	"github.com/tradetools/ttconnect/errs"
	"github.com/tradetools/ttconnect/store"
)

// Transformer maps SmartAPI wire shapes to canonical records. Stateless.
type Transformer struct{}

var _ brokers.Transformer = Transformer{}

var toVendorOrderType = map[domain.OrderType]string{
	domain.OrderTypeMarket: "MARKET",
	domain.OrderTypeLimit:  "LIMIT",
	domain.OrderTypeSL:     "STOPLOSS_LIMIT",
	domain.OrderTypeSLM:    "STOPLOSS_MARKET",
}

var fromVendorOrderType = map[string]domain.OrderType{
	"MARKET":          domain.OrderTypeMarket,
	"LIMIT":           domain.OrderTypeLimit,
	"STOPLOSS_LIMIT":  domain.OrderTypeSL,
	"STOPLOSS_MARKET": domain.OrderTypeSLM,
}

var toVendorProduct = map[domain.ProductType]string{
	domain.ProductCNC:  "DELIVERY",
	domain.ProductMIS:  "INTRADAY",
	domain.ProductNRML: "CARRYFORWARD",
}

var fromVendorProduct = map[string]domain.ProductType{
	"DELIVERY":     domain.ProductCNC,
	"INTRADAY":     domain.ProductMIS,
	"CARRYFORWARD": domain.ProductNRML,
	"MARGIN":       domain.ProductMIS,
}

// ToOrderParams builds the JSON body for placeOrder.
func (Transformer) ToOrderParams(resolved *store.ResolvedInstrument, req domain.OrderRequest) brokers.Payload {
	params := brokers.Payload{
		"variety":         "NORMAL",
		"tradingsymbol":   resolved.BrokerSymbol,
		"symboltoken":     resolved.Token,
		"exchange":        string(resolved.Exchange),
		"transactiontype": string(req.Side),
		"ordertype":       toVendorOrderType[req.OrderType],
		"producttype":     toVendorProduct[req.Product],
		"duration":        "DAY",
		"quantity":        strconv.Itoa(req.Qty),
	}
	if req.Price != nil {
		params["price"] = formatPrice(*req.Price)
	}
	if req.TriggerPrice != nil {
		params["triggerprice"] = formatPrice(*req.TriggerPrice)
	}
	return params
}

func (Transformer) ToOrderID(raw brokers.Payload) (string, error) {
	id := brokers.Str(raw, "orderid")
	if id == "" {
		return "", errs.Broker("order response carried no orderid")
	}
	return id, nil
}

func (Transformer) ToCloseParams(positionRaw brokers.Payload, qty int, side domain.Side) brokers.Payload {
	product := brokers.Str(positionRaw, "producttype")
	if product == "" {
		product = "CARRYFORWARD"
	}
	return brokers.Payload{
		"variety":         "NORMAL",
		"tradingsymbol":   brokers.Str(positionRaw, "tradingsymbol"),
		"symboltoken":     brokers.Str(positionRaw, "symboltoken"),
		"exchange":        brokers.Str(positionRaw, "exchange"),
		"transactiontype": string(side),
		"ordertype":       "MARKET",
		"producttype":     product,
		"duration":        "DAY",
		"quantity":        strconv.Itoa(qty),
	}
}

func (Transformer) ToProfile(raw brokers.Payload) (*domain.Profile, error) {
	return &domain.Profile{
		ClientID: brokers.Str(raw, "clientcode"),
		Name:     brokers.Str(raw, "name"),
		Email:    brokers.Str(raw, "email"),
		Phone:    brokers.Str(raw, "mobileno"),
	}, nil
}

// ToFund reads the RMS limits reply. Every numeric arrives as a string.
func (Transformer) ToFund(raw brokers.Payload) (*domain.Fund, error) {
	return &domain.Fund{
		Available:     brokers.F64(raw, "availablecash"),
		Used:          brokers.F64(raw, "utiliseddebits"),
		Total:         brokers.F64(raw, "net"),
		Collateral:    brokers.F64(raw, "collateral"),
		M2MUnrealized: brokers.F64(raw, "m2munrealized"),
		M2MRealized:   brokers.F64(raw, "m2mrealized"),
	}, nil
}

func (Transformer) ToHolding(raw brokers.Payload) (domain.Holding, error) {
	return domain.Holding{
		Exchange:   domain.Exchange(brokers.Str(raw, "exchange")),
		Symbol:     brokers.Str(raw, "tradingsymbol"),
		Qty:        brokers.IntOf(raw, "quantity"),
		AvgPrice:   brokers.F64(raw, "averageprice"),
		LTP:        brokers.F64(raw, "ltp"),
		PnL:        brokers.F64(raw, "profitandloss"),
		PnLPercent: brokers.F64(raw, "pnlpercentage"),
	}, nil
}

func (Transformer) ToPosition(raw brokers.Payload) (domain.Position, error) {
	avg := brokers.F64(raw, "avgnetprice")
	if avg == 0 {
		avg = brokers.F64(raw, "netprice")
	}
	return domain.Position{
		Exchange: domain.Exchange(brokers.Str(raw, "exchange")),
		Symbol:   brokers.Str(raw, "tradingsymbol"),
		Qty:      brokers.IntOf(raw, "netqty"),
		AvgPrice: avg,
		LTP:      brokers.F64(raw, "ltp"),
		PnL:      brokers.F64(raw, "pnl"),
		Product:  fromVendorProduct[brokers.Str(raw, "producttype")],
	}, nil
}

func (Transformer) ToOrder(raw brokers.Payload, instrument domain.Instrument) (domain.Order, error) {
	order := domain.Order{
		ID:           brokers.Str(raw, "orderid"),
		Instrument:   instrument,
		Exchange:     domain.Exchange(brokers.Str(raw, "exchange")),
		Symbol:       brokers.Str(raw, "tradingsymbol"),
		Side:         domain.Side(strings.ToUpper(brokers.Str(raw, "transactiontype"))),
		Qty:          brokers.IntOf(raw, "quantity"),
		FilledQty:    brokers.IntOf(raw, "filledshares"),
		Product:      fromVendorProduct[brokers.Str(raw, "producttype")],
		OrderType:    fromVendorOrderType[brokers.Str(raw, "ordertype")],
		Status:       brokers.NormalizeStatus(brokers.Str(raw, "status")),
		Price:        brokers.F64Ptr(raw, "price"),
		TriggerPrice: brokers.F64Ptr(raw, "triggerprice"),
		AvgPrice:     brokers.F64Ptr(raw, "averageprice"),
	}
	if ts := parseVendorTime(brokers.Str(raw, "updatetime")); ts != nil {
		order.Timestamp = ts
	}
	return order, nil
}

func (Transformer) ToTrade(raw brokers.Payload) (domain.Trade, error) {
	trade := domain.Trade{
		OrderID:  brokers.Str(raw, "orderid"),
		Exchange: domain.Exchange(brokers.Str(raw, "exchange")),
		Symbol:   brokers.Str(raw, "tradingsymbol"),
		Side:     domain.Side(strings.ToUpper(brokers.Str(raw, "transactiontype"))),
		Qty:      brokers.IntOf(raw, "fillsize"),
		AvgPrice: brokers.F64(raw, "fillprice"),
		Product:  fromVendorProduct[brokers.Str(raw, "producttype")],
	}
	trade.TradeValue = brokers.F64(raw, "tradevalue")
	if trade.TradeValue == 0 {
		trade.TradeValue = trade.AvgPrice * float64(trade.Qty)
	}
	return trade, nil
}

// ToMargin reads the batch-margin reply. totalMarginRequired is the
// post-benefit requirement; the components carry the breakdown.
func (Transformer) ToMargin(raw brokers.Payload) (*domain.Margin, error) {
	components := brokers.Sub(raw, "marginComponents")

	margin := &domain.Margin{
		Span:          brokers.F64(components, "spanMargin"),
		Exposure:      brokers.F64(components, "exposureMargin"),
		OptionPremium: brokers.F64(components, "netPremium"),
		Benefit:       brokers.F64(components, "marginBenefit"),
		FinalTotal:    brokers.F64(raw, "totalMarginRequired"),
	}
	margin.Total = margin.FinalTotal + margin.Benefit
	return margin, nil
}

// Error-code prefixes mapped to the canonical taxonomy; unknown codes are
// plain broker errors.
var errorKinds = map[string]func(string, ...errs.Option) *errs.Error{
	"AG8001": errs.Authentication,
	"AG8002": errs.Authentication,
	"AG8003": errs.Authentication,
	"AB8050": errs.Authentication,
	"AB8051": errs.Authentication,
	"AB1010": errs.Authentication,
	"AB1011": errs.Authentication,
	"AB1009": errs.InstrumentNotFound,
	"AB1018": errs.InstrumentNotFound,
	"AB1013": errs.OrderNotFound,
	"AB1008": errs.InvalidOrder,
	"AB1012": errs.InvalidOrder,
	"AB4008": errs.InvalidOrder,
	"AB1004": errs.InsufficientFunds,
}

// ParseError maps the {status, message, errorcode} envelope.
func (Transformer) ParseError(raw brokers.Payload) error {
	code := brokers.Str(raw, "errorcode")
	message := brokers.Str(raw, "message")
	if message == "" {
		message = "broker request failed"
	}
	if build, ok := errorKinds[code]; ok {
		return build(message, errs.WithCode(code))
	}
	return errs.Broker(message, errs.WithCode(code))
}

// parseVendorTime parses "09-Oct-2023 18:22:02" wall-clock IST stamps.
func parseVendorTime(s string) *time.Time {
	if s == "" {
		return nil
	}
	t, err := time.ParseInLocation("02-Jan-2006 15:04:05", s, domain.IST)
	if err != nil {
		return nil
	}
	return &t
}

func formatPrice(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

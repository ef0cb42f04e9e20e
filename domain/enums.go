package domain

// Exchange identifies an exchange/segment in canonical form.
type Exchange string

const (
	ExchangeNSE Exchange = "NSE"
	ExchangeBSE Exchange = "BSE"
	ExchangeNFO Exchange = "NFO" // NSE F&O
	ExchangeBFO Exchange = "BFO" // BSE F&O
	ExchangeCDS Exchange = "CDS" // Currency derivatives
	ExchangeMCX Exchange = "MCX" // Commodity
)

// Valid reports whether e is a known exchange.
func (e Exchange) Valid() bool {
	switch e {
	case ExchangeNSE, ExchangeBSE, ExchangeNFO, ExchangeBFO, ExchangeCDS, ExchangeMCX:
		return true
	}
	return false
}

// DerivativeExchange returns the F&O venue for a cash venue (NSE→NFO,
// BSE→BFO). The zero Exchange is returned for venues without an F&O
// segment in scope.
func DerivativeExchange(cash Exchange) Exchange {
	switch cash {
	case ExchangeNSE:
		return ExchangeNFO
	case ExchangeBSE:
		return ExchangeBFO
	}
	return ""
}

// UnderlyingExchange returns the cash venue whose instruments underlie a
// derivative venue (NFO→NSE, BFO→BSE).
func UnderlyingExchange(derivative Exchange) Exchange {
	switch derivative {
	case ExchangeNFO:
		return ExchangeNSE
	case ExchangeBFO:
		return ExchangeBSE
	}
	return ""
}

// OptionType is the option side.
type OptionType string

const (
	OptionCE OptionType = "CE"
	OptionPE OptionType = "PE"
)

func (o OptionType) Valid() bool {
	return o == OptionCE || o == OptionPE
}

// ProductType is the broker product/margin category.
type ProductType string

const (
	ProductCNC  ProductType = "CNC"  // Cash and carry (delivery)
	ProductMIS  ProductType = "MIS"  // Margin intraday
	ProductNRML ProductType = "NRML" // Normal (F&O carry forward)
)

func (p ProductType) Valid() bool {
	switch p {
	case ProductCNC, ProductMIS, ProductNRML:
		return true
	}
	return false
}

// OrderType is the order execution type.
type OrderType string

const (
	OrderTypeMarket OrderType = "MARKET"
	OrderTypeLimit  OrderType = "LIMIT"
	OrderTypeSL     OrderType = "SL"   // Stop-loss limit
	OrderTypeSLM    OrderType = "SL_M" // Stop-loss market
)

func (o OrderType) Valid() bool {
	switch o {
	case OrderTypeMarket, OrderTypeLimit, OrderTypeSL, OrderTypeSLM:
		return true
	}
	return false
}

// Side is the order direction.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

func (s Side) Valid() bool {
	return s == SideBuy || s == SideSell
}

// Opposite returns the offsetting direction.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}
	return SideBuy
}

// OrderStatus is the normalized order lifecycle status. Vendor statuses
// fold into these five; anything unrecognized normalizes to PENDING.
type OrderStatus string

const (
	StatusPending   OrderStatus = "PENDING"
	StatusOpen      OrderStatus = "OPEN"
	StatusComplete  OrderStatus = "COMPLETE"
	StatusCancelled OrderStatus = "CANCELLED"
	StatusRejected  OrderStatus = "REJECTED"
)

// Terminal reports whether the status is a terminal lifecycle state.
func (s OrderStatus) Terminal() bool {
	switch s {
	case StatusComplete, StatusCancelled, StatusRejected:
		return true
	}
	return false
}

// OnStale selects the refresh-failure policy for the instrument store.
type OnStale string

const (
	OnStaleFail OnStale = "fail" // propagate refresh errors
	OnStaleWarn OnStale = "warn" // log and serve existing data when present
)

func (o OnStale) Valid() bool {
	return o == OnStaleFail || o == OnStaleWarn
}

// AuthMode selects the authentication strategy.
type AuthMode string

const (
	AuthManual AuthMode = "manual" // user supplies access_token; library never logs in autonomously
	AuthAuto   AuthMode = "auto"   // library performs TOTP login + token refresh automatically
)

func (a AuthMode) Valid() bool {
	return a == AuthManual || a == AuthAuto
}

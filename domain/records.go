package domain

import "time"

// Records returned by adapter reads. Field sets are broker-agnostic;
// vendor payload shapes normalize into these via each broker's
// transformer. Holdings, positions and trades identify their instrument
// by the listing the vendor reported (venue + display symbol), since
// vendor payloads carry no canonical identity. Optional numerics are
// pointers.

// Profile identifies the account holder.
type Profile struct {
	ClientID string
	Name     string
	Email    string
	Phone    string
}

// Fund is the account's margin/cash summary.
type Fund struct {
	Available     float64 // cash available for new positions
	Used          float64 // margin currently blocked
	Total         float64 // Available + Used
	Collateral    float64 // pledged collateral value
	M2MUnrealized float64
	M2MRealized   float64
}

// Holding is a delivery (demat) holding.
type Holding struct {
	Exchange   Exchange
	Symbol     string
	Qty        int
	AvgPrice   float64
	LTP        float64
	PnL        float64
	PnLPercent float64
}

// Position is an open day/carry position. Qty is signed: positive long,
// negative short. Exchange is the listing venue as reported by the
// vendor (NFO/BFO for derivative positions).
type Position struct {
	Exchange Exchange
	Symbol   string
	Qty      int
	AvgPrice float64
	LTP      float64
	PnL      float64
	Product  ProductType
}

// Order is one row of the order book. Instrument is the canonical
// identity when the caller supplied one at normalization time; nil
// otherwise (vendor rows alone cannot reconstruct expiry and strike).
type Order struct {
	ID           string
	Instrument   Instrument
	Exchange     Exchange
	Symbol       string
	Side         Side
	Qty          int
	FilledQty    int
	Product      ProductType
	OrderType    OrderType
	Status       OrderStatus
	Price        *float64
	TriggerPrice *float64
	AvgPrice     *float64
	Timestamp    *time.Time
}

// Trade is one execution (fill).
type Trade struct {
	OrderID    string
	Exchange   Exchange
	Symbol     string
	Side       Side
	Qty        int
	AvgPrice   float64
	TradeValue float64
	Product    ProductType
	Timestamp  *time.Time
}

// Margin is the vendor's margin estimate for a prospective order.
type Margin struct {
	Total         float64 // margin required before benefits
	Span          float64
	Exposure      float64
	OptionPremium float64
	FinalTotal    float64 // margin required after benefits
	Benefit       float64 // Total - FinalTotal
}

// Tick is one normalized market-data update. Instrument is the canonical
// value the caller subscribed with.
type Tick struct {
	Instrument Instrument
	LTP        float64
	Volume     *int64
	OI         *int64
	Bid        *float64
	Ask        *float64
	Timestamp  *time.Time
}

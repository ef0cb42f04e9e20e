package domain

// OrderRequest describes a new order in canonical terms. Price is
// required for LIMIT/SL orders, TriggerPrice for SL/SL_M; adapters
// validate against their capability matrix before any HTTP.
type OrderRequest struct {
	Instrument   Instrument
	Qty          int
	Side         Side
	Product      ProductType
	OrderType    OrderType
	Price        *float64
	TriggerPrice *float64
}

// ModifyRequest carries the fields to change on a pending order. Nil
// fields are left untouched.
type ModifyRequest struct {
	Qty          *int
	Price        *float64
	TriggerPrice *float64
	OrderType    *OrderType
}

// MarginRequest asks the vendor for the margin a prospective order would
// block.
type MarginRequest struct {
	Instrument Instrument
	Qty        int
	Side       Side
	Product    ProductType
	OrderType  OrderType
	Price      *float64
}

// Float64 returns a pointer to v. Convenience for optional request
// fields.
func Float64(v float64) *float64 { return &v }

// Int returns a pointer to v.
func Int(v int) *int { return &v }

package brokers

import (
	"fmt"
	"sort"
	"strings"

	"github.com/tradetools/ttconnect/domain"
	"github.com/tradetools/ttconnect/errs"
)

// Capabilities is a vendor's declarative support matrix. Adapters expose
// it frozen; every order is verified against it before any HTTP leaves
// the process, so unsupported combinations fail locally with a precise
// message instead of a vendor rejection.
type Capabilities struct {
	BrokerID     string
	Segments     []domain.Exchange
	OrderTypes   []domain.OrderType
	ProductTypes []domain.ProductType
	AuthModes    []domain.AuthMode
	Streaming    bool
}

// Verify checks an order's instrument, order type and product type
// against the matrix. Indices reject unconditionally: they are
// subscribable, never tradeable.
func (c Capabilities) Verify(instrument domain.Instrument, orderType domain.OrderType, productType domain.ProductType) error {
	if instrument == nil {
		return errs.InvalidOrder("order has no instrument")
	}
	if !instrument.Tradeable() {
		return errs.UnsupportedFeature(fmt.Sprintf(
			"%s is an index and cannot be traded", instrument.Describe()))
	}

	venue := domain.RoutingVenue(instrument)
	if !contains(c.Segments, venue) {
		return errs.UnsupportedFeature(fmt.Sprintf(
			"%s does not support exchange %s, supported: %s",
			c.BrokerID, venue, joined(c.Segments)))
	}
	if !contains(c.OrderTypes, orderType) {
		return errs.UnsupportedFeature(fmt.Sprintf(
			"%s does not support order type %s, supported: %s",
			c.BrokerID, orderType, joined(c.OrderTypes)))
	}
	if !contains(c.ProductTypes, productType) {
		return errs.UnsupportedFeature(fmt.Sprintf(
			"%s does not support product type %s, supported: %s",
			c.BrokerID, productType, joined(c.ProductTypes)))
	}
	return nil
}

// VerifyAuthMode checks the configured auth mode at adapter construction.
func (c Capabilities) VerifyAuthMode(mode domain.AuthMode) error {
	if !mode.Valid() {
		return errs.UnsupportedFeature(fmt.Sprintf(
			"unknown auth_mode %q, valid values are %q and %q",
			mode, domain.AuthManual, domain.AuthAuto))
	}
	if !contains(c.AuthModes, mode) {
		return errs.UnsupportedFeature(fmt.Sprintf(
			"%s does not support auth_mode=%q, supported: %s",
			c.BrokerID, mode, joined(c.AuthModes)))
	}
	return nil
}

func contains[T ~string](values []T, v T) bool {
	for _, candidate := range values {
		if candidate == v {
			return true
		}
	}
	return false
}

func joined[T ~string](values []T) string {
	strs := make([]string, len(values))
	for i, v := range values {
		strs[i] = string(v)
	}
	sort.Strings(strs)
	return strings.Join(strs, ", ")
}

package brokers

import (
	"strings"

	"github.com/tradetools/ttconnect/domain"
)

// Vendor order statuses folded into the canonical five. Both supported
// vendors use the same English status vocabulary with minor variations,
// so the fold table is shared; vendor transformers call NormalizeStatus
// on the raw string.
var statusFold = map[string]domain.OrderStatus{
	"OPEN":                      domain.StatusOpen,
	"OPEN PENDING":              domain.StatusPending,
	"TRIGGER PENDING":           domain.StatusPending,
	"AMO REQ RECEIVED":          domain.StatusPending,
	"VALIDATION PENDING":        domain.StatusPending,
	"PUT ORDER REQ RECEIVED":    domain.StatusPending,
	"MODIFY VALIDATION PENDING": domain.StatusPending,
	"MODIFY PENDING":            domain.StatusOpen,
	"MODIFIED":                  domain.StatusOpen,
	"CANCEL PENDING":            domain.StatusOpen,
	"COMPLETE":                  domain.StatusComplete,
	"CANCELLED":                 domain.StatusCancelled,
	"CANCELLED AMO":             domain.StatusCancelled,
	"REJECTED":                  domain.StatusRejected,
}

// NormalizeStatus folds a vendor order status into the canonical set.
// Unknown statuses normalize to PENDING: an order whose state we cannot
// read is safer treated as still in flight than as terminal.
func NormalizeStatus(raw string) domain.OrderStatus {
	if canonical, ok := statusFold[strings.ToUpper(strings.TrimSpace(raw))]; ok {
		return canonical
	}
	return domain.StatusPending
}

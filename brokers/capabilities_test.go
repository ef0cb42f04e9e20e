package brokers

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/tradetools/ttconnect/domain"
	"github.com/tradetools/ttconnect/errs"
)

func testCaps() Capabilities {
	return Capabilities{
		BrokerID:     "testbroker",
		Segments:     []domain.Exchange{domain.ExchangeNSE, domain.ExchangeBSE, domain.ExchangeNFO},
		OrderTypes:   []domain.OrderType{domain.OrderTypeMarket, domain.OrderTypeLimit},
		ProductTypes: []domain.ProductType{domain.ProductCNC, domain.ProductMIS},
		AuthModes:    []domain.AuthMode{domain.AuthManual},
	}
}

func TestVerifyAcceptsSupportedOrder(t *testing.T) {
	caps := testCaps()
	sbin := domain.Equity{Exchange: domain.ExchangeNSE, Symbol: "SBIN"}

	assert.NoError(t, caps.Verify(sbin, domain.OrderTypeLimit, domain.ProductCNC))
}

func TestVerifyRejectsNilInstrument(t *testing.T) {
	err := testCaps().Verify(nil, domain.OrderTypeMarket, domain.ProductCNC)
	assert.True(t, errs.IsKind(err, errs.KindInvalidOrder))
}

func TestVerifyRejectsIndex(t *testing.T) {
	nifty := domain.Index{Exchange: domain.ExchangeNSE, Symbol: "NIFTY"}

	err := testCaps().Verify(nifty, domain.OrderTypeMarket, domain.ProductCNC)
	assert.True(t, errs.IsKind(err, errs.KindUnsupportedFeature))
	assert.Contains(t, err.Error(), "index")
}

func TestVerifyRejectsUnsupportedVenue(t *testing.T) {
	caps := testCaps()
	// BSE derivatives route to BFO, which the matrix omits.
	bfoFuture := domain.Future{
		Exchange: domain.ExchangeBSE,
		Symbol:   "SENSEX",
		Expiry:   domain.NewDate(2026, 9, 24),
	}

	err := caps.Verify(bfoFuture, domain.OrderTypeMarket, domain.ProductMIS)
	assert.True(t, errs.IsKind(err, errs.KindUnsupportedFeature))
	assert.Contains(t, err.Error(), "BFO")
}

func TestVerifyRejectsUnsupportedOrderType(t *testing.T) {
	sbin := domain.Equity{Exchange: domain.ExchangeNSE, Symbol: "SBIN"}

	err := testCaps().Verify(sbin, domain.OrderTypeSLM, domain.ProductCNC)
	assert.True(t, errs.IsKind(err, errs.KindUnsupportedFeature))
	assert.Contains(t, err.Error(), "order type")
}

func TestVerifyRejectsUnsupportedProduct(t *testing.T) {
	sbin := domain.Equity{Exchange: domain.ExchangeNSE, Symbol: "SBIN"}

	err := testCaps().Verify(sbin, domain.OrderTypeMarket, domain.ProductNRML)
	assert.True(t, errs.IsKind(err, errs.KindUnsupportedFeature))
	assert.Contains(t, err.Error(), "product type")
}

func TestVerifyAuthMode(t *testing.T) {
	caps := testCaps()

	assert.NoError(t, caps.VerifyAuthMode(domain.AuthManual))

	err := caps.VerifyAuthMode(domain.AuthAuto)
	assert.True(t, errs.IsKind(err, errs.KindUnsupportedFeature),
		"supported by the enum but not by this broker")

	err = caps.VerifyAuthMode(domain.AuthMode("oauth"))
	assert.True(t, errs.IsKind(err, errs.KindUnsupportedFeature))
	assert.Contains(t, err.Error(), "auth_mode")
}

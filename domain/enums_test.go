package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExchangeValid(t *testing.T) {
	for _, e := range []Exchange{ExchangeNSE, ExchangeBSE, ExchangeNFO, ExchangeBFO, ExchangeCDS, ExchangeMCX} {
		assert.True(t, e.Valid(), "exchange %s", e)
	}
	assert.False(t, Exchange("NYSE").Valid())
	assert.False(t, Exchange("").Valid())
}

func TestDerivativeExchangeMapping(t *testing.T) {
	assert.Equal(t, ExchangeNFO, DerivativeExchange(ExchangeNSE))
	assert.Equal(t, ExchangeBFO, DerivativeExchange(ExchangeBSE))
	assert.Equal(t, Exchange(""), DerivativeExchange(ExchangeMCX))

	assert.Equal(t, ExchangeNSE, UnderlyingExchange(ExchangeNFO))
	assert.Equal(t, ExchangeBSE, UnderlyingExchange(ExchangeBFO))
	assert.Equal(t, Exchange(""), UnderlyingExchange(ExchangeNSE))
}

func TestSideOpposite(t *testing.T) {
	assert.Equal(t, SideSell, SideBuy.Opposite())
	assert.Equal(t, SideBuy, SideSell.Opposite())
}

func TestOrderStatusTerminal(t *testing.T) {
	assert.True(t, StatusComplete.Terminal())
	assert.True(t, StatusCancelled.Terminal())
	assert.True(t, StatusRejected.Terminal())
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusOpen.Terminal())
}

func TestEnumValidity(t *testing.T) {
	assert.True(t, OptionCE.Valid())
	assert.False(t, OptionType("XX").Valid())

	assert.True(t, ProductNRML.Valid())
	assert.False(t, ProductType("BO").Valid())

	assert.True(t, OrderTypeSLM.Valid())
	assert.False(t, OrderType("AMO").Valid())

	assert.True(t, AuthManual.Valid())
	assert.True(t, AuthAuto.Valid())
	assert.False(t, AuthMode("oauth").Valid())

	assert.True(t, OnStaleFail.Valid())
	assert.True(t, OnStaleWarn.Valid())
	assert.False(t, OnStale("ignore").Valid())
}

package zerodha

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradetools/ttconnect/brokers"
	"github.com/tradetools/ttconnect/domain"
	"github.com/tradetools/ttconnect/errs"
	"github.com/tradetools/ttconnect/store"
)

func TestToOrderParams(t *testing.T) {
	tr := Transformer{}
	resolved := &store.ResolvedInstrument{
		Token:        "13127425",
		BrokerSymbol: "NIFTY26FEB23000CE",
		Exchange:     domain.ExchangeNFO,
	}
	req := domain.OrderRequest{
		Qty:          75,
		Side:         domain.SideBuy,
		Product:      domain.ProductNRML,
		OrderType:    domain.OrderTypeLimit,
		Price:        domain.Float64(142.50),
		TriggerPrice: domain.Float64(140),
	}

	params := tr.ToOrderParams(resolved, req)
	assert.Equal(t, "NIFTY26FEB23000CE", params["tradingsymbol"])
	assert.Equal(t, "NFO", params["exchange"])
	assert.Equal(t, "BUY", params["transaction_type"])
	assert.Equal(t, "LIMIT", params["order_type"])
	assert.Equal(t, "75", params["quantity"], "Kite takes form fields, so numerics are strings")
	assert.Equal(t, "NRML", params["product"])
	assert.Equal(t, "DAY", params["validity"])
	assert.Equal(t, "142.5", params["price"])
	assert.Equal(t, "140", params["trigger_price"])
}

func TestToOrderParamsStopLossMarketSpelling(t *testing.T) {
	tr := Transformer{}
	resolved := &store.ResolvedInstrument{BrokerSymbol: "SBIN-EQ", Exchange: domain.ExchangeNSE}
	req := domain.OrderRequest{
		Qty:       10,
		Side:      domain.SideSell,
		Product:   domain.ProductMIS,
		OrderType: domain.OrderTypeSLM,
	}

	params := tr.ToOrderParams(resolved, req)
	assert.Equal(t, "SL-M", params["order_type"], "Kite hyphenates stop-loss market")
	assert.NotContains(t, params, "price", "optional prices stay absent, never zero")
}

func TestToOrderID(t *testing.T) {
	tr := Transformer{}

	id, err := tr.ToOrderID(brokers.Payload{"order_id": "240826000123456"})
	require.NoError(t, err)
	assert.Equal(t, "240826000123456", id)

	_, err = tr.ToOrderID(brokers.Payload{})
	assert.True(t, errs.IsKind(err, errs.KindBroker))
}

func TestToFund(t *testing.T) {
	tr := Transformer{}
	raw := brokers.Payload{
		"equity": map[string]any{
			"available": map[string]any{
				"cash":       float64(50000),
				"collateral": float64(12000),
			},
			"utilised": map[string]any{
				"debits":         float64(8000),
				"m2m_unrealised": float64(-150.5),
				"m2m_realised":   float64(320),
			},
		},
	}

	fund, err := tr.ToFund(raw)
	require.NoError(t, err)
	assert.Equal(t, 50000.0, fund.Available)
	assert.Equal(t, 8000.0, fund.Used)
	assert.Equal(t, 58000.0, fund.Total)
	assert.Equal(t, 12000.0, fund.Collateral)
	assert.Equal(t, -150.5, fund.M2MUnrealized)
	assert.Equal(t, 320.0, fund.M2MRealized)
}

func TestToHoldingPnLPercent(t *testing.T) {
	tr := Transformer{}
	holding, err := tr.ToHolding(brokers.Payload{
		"exchange":      "NSE",
		"tradingsymbol": "SBIN",
		"quantity":      float64(100),
		"average_price": float64(500),
		"last_price":    float64(550),
		"pnl":           float64(5000),
	})
	require.NoError(t, err)
	assert.Equal(t, 100, holding.Qty)
	assert.Equal(t, 10.0, holding.PnLPercent)
}

func TestToOrderStatusAndTimestamp(t *testing.T) {
	tr := Transformer{}
	order, err := tr.ToOrder(brokers.Payload{
		"order_id":         "240826000123456",
		"exchange":         "NFO",
		"tradingsymbol":    "NIFTY26FEB23000CE",
		"transaction_type": "BUY",
		"quantity":         float64(75),
		"filled_quantity":  float64(0),
		"product":          "NRML",
		"order_type":       "SL-M",
		"status":           "TRIGGER PENDING",
		"trigger_price":    float64(140),
		"order_timestamp":  "2026-08-26 10:15:30",
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, domain.StatusPending, order.Status, "trigger-pending orders are not yet at the exchange")
	assert.Equal(t, domain.OrderTypeSLM, order.OrderType)
	require.NotNil(t, order.TriggerPrice)
	assert.Equal(t, 140.0, *order.TriggerPrice)
	assert.Nil(t, order.Price)

	require.NotNil(t, order.Timestamp)
	assert.Equal(t, "IST", order.Timestamp.Location().String())
	assert.Equal(t, 10, order.Timestamp.Hour())
}

func TestToMarginBenefit(t *testing.T) {
	tr := Transformer{}
	margin, err := tr.ToMargin(brokers.Payload{
		"initial": map[string]any{
			"total":          float64(120000),
			"span":           float64(90000),
			"exposure":       float64(25000),
			"option_premium": float64(5000),
		},
		"final": map[string]any{"total": float64(70000)},
	})
	require.NoError(t, err)

	assert.Equal(t, 120000.0, margin.Total)
	assert.Equal(t, 70000.0, margin.FinalTotal)
	assert.Equal(t, 50000.0, margin.Benefit, "benefit is the hedging offset")
}

func TestParseErrorTaxonomy(t *testing.T) {
	tr := Transformer{}
	cases := []struct {
		errorType string
		want      errs.Kind
	}{
		{"TokenException", errs.KindAuthentication},
		{"PermissionException", errs.KindAuthentication},
		{"OrderException", errs.KindOrder},
		{"InputException", errs.KindInvalidOrder},
		{"MarginException", errs.KindInsufficientFunds},
		{"NetworkException", errs.KindBroker},
		{"GeneralException", errs.KindBroker},
	}

	for _, tc := range cases {
		err := tr.ParseError(brokers.Payload{
			"error_type": tc.errorType,
			"message":    "something went wrong",
		})
		assert.True(t, errs.IsKind(err, tc.want), "error_type %s", tc.errorType)
		assert.Equal(t, tc.errorType, errs.CodeOf(err), "the raw vendor code must survive")
	}
}

package angelone

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/goccy/go-json"
	"github.com/pquerna/otp/totp"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradetools/ttconnect/brokers"
	"github.com/tradetools/ttconnect/config"
	"github.com/tradetools/ttconnect/domain"
	"github.com/tradetools/ttconnect/errs"
)

// A valid base32 seed so totp.GenerateCode succeeds.
const testTOTPSecret = "JBSWY3DPEHPK3PXP"

func autoConfig(baseURL string) config.Config {
	return config.Config{
		"api_key":     "test-key",
		"client_id":   "A123456",
		"pin":         "4321",
		"totp_secret": testTOTPSecret,
		"base_url":    baseURL,
	}
}

// loginHandler answers the password login with canned tokens and verifies
// the credentials made it over.
func loginHandler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/rest/auth/angelbroking/user/v1/loginByPassword", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		var creds map[string]string
		require.NoError(t, json.Unmarshal(body, &creds))
		assert.Equal(t, "A123456", creds["clientcode"])
		assert.Equal(t, "4321", creds["password"])

		assert.True(t, totp.Validate(creds["totp"], testTOTPSecret),
			"the login must carry a live TOTP code")

		_, _ = w.Write([]byte(`{"status":true,"message":"SUCCESS","errorcode":"","data":{
			"jwtToken":"jwt-abc","refreshToken":"refresh-abc","feedToken":"feed-abc"}}`))
	}
}

func newAutoAdapter(t *testing.T, handler http.Handler) brokers.Adapter {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	adapter, err := New(autoConfig(srv.URL), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = adapter.Close() })
	return adapter
}

func TestNewRequiresAutoCredentials(t *testing.T) {
	_, err := New(config.Config{"api_key": "test-key"}, zerolog.Nop())
	require.Error(t, err, "auto auth is the default and needs client_id/pin/totp_secret")
	assert.Contains(t, err.Error(), "client_id")

	// Manual mode only needs the token at login time.
	_, err = New(config.Config{
		"api_key":   "test-key",
		"auth_mode": "manual",
	}, zerolog.Nop())
	assert.NoError(t, err)
}

func TestAutoLogin(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/rest/auth/angelbroking/user/v1/loginByPassword", loginHandler(t))
	adapter := newAutoAdapter(t, mux)

	require.NoError(t, adapter.Login(context.Background()))

	session, ok := adapter.Session()
	require.True(t, ok)
	assert.Equal(t, "jwt-abc", session.AccessToken)
	assert.Equal(t, "refresh-abc", session.RefreshToken)
	assert.Equal(t, "feed-abc", session.FeedToken)
	assert.False(t, session.IsExpired(), "sessions live until IST midnight")
}

func TestAutoLoginRejectedCredentials(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/rest/auth/angelbroking/user/v1/loginByPassword", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":false,"message":"Invalid totp","errorcode":"AB1050","data":null}`))
	})
	adapter := newAutoAdapter(t, mux)

	err := adapter.Login(context.Background())
	require.Error(t, err)
	assert.Equal(t, "AB1050", errs.CodeOf(err))
}

func TestEnvelopeErrorMapsToTaxonomy(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/rest/auth/angelbroking/user/v1/loginByPassword", loginHandler(t))
	mux.HandleFunc("/rest/secure/angelbroking/user/v1/getRMS", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer jwt-abc", r.Header.Get("Authorization"))
		assert.Equal(t, "test-key", r.Header.Get("X-PrivateKey"))
		_, _ = w.Write([]byte(`{"status":false,"message":"Invalid Token","errorcode":"AG8001","data":null}`))
	})
	adapter := newAutoAdapter(t, mux)
	require.NoError(t, adapter.Login(context.Background()))

	_, err := adapter.GetFunds(context.Background())
	assert.True(t, errs.IsKind(err, errs.KindAuthentication))
	assert.Equal(t, "AG8001", errs.CodeOf(err))
}

func TestNullDataIsEmptyList(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/rest/auth/angelbroking/user/v1/loginByPassword", loginHandler(t))
	mux.HandleFunc("/rest/secure/angelbroking/portfolio/v1/getHolding", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":true,"message":"SUCCESS","errorcode":"","data":null}`))
	})
	adapter := newAutoAdapter(t, mux)
	require.NoError(t, adapter.Login(context.Background()))

	holdings, err := adapter.GetHoldings(context.Background())
	require.NoError(t, err, "an empty portfolio answers with null data, not an error")
	assert.Empty(t, holdings)
}

func TestGetPositionsFiltersFlat(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/rest/auth/angelbroking/user/v1/loginByPassword", loginHandler(t))
	mux.HandleFunc("/rest/secure/angelbroking/order/v1/getPosition", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":true,"message":"SUCCESS","errorcode":"","data":[
			{"tradingsymbol":"SBIN-EQ","exchange":"NSE","netqty":"10","producttype":"INTRADAY"},
			{"tradingsymbol":"INFY-EQ","exchange":"NSE","netqty":"0","producttype":"INTRADAY"}
		]}`))
	})
	adapter := newAutoAdapter(t, mux)
	require.NoError(t, adapter.Login(context.Background()))

	positions, err := adapter.GetPositions(context.Background())
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, "SBIN-EQ", positions[0].Symbol)
	assert.Equal(t, domain.ProductMIS, positions[0].Product)
}

func TestGetOrderUnsupported(t *testing.T) {
	adapter, err := New(config.Config{
		"api_key":   "test-key",
		"auth_mode": "manual",
	}, zerolog.Nop())
	require.NoError(t, err)
	defer adapter.Close()

	_, err = adapter.GetOrder(context.Background(), "any")
	assert.True(t, errs.IsKind(err, errs.KindUnsupportedFeature),
		"SmartAPI exposes no per-order read")
}

func TestModifyOrderUnknownID(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/rest/auth/angelbroking/user/v1/loginByPassword", loginHandler(t))
	mux.HandleFunc("/rest/secure/angelbroking/order/v1/getOrderBook", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":true,"message":"SUCCESS","errorcode":"","data":[
			{"orderid":"111","tradingsymbol":"SBIN-EQ","symboltoken":"3045","exchange":"NSE",
			 "producttype":"INTRADAY","ordertype":"LIMIT","quantity":"10","price":"500"}
		]}`))
	})
	adapter := newAutoAdapter(t, mux)
	require.NoError(t, adapter.Login(context.Background()))

	err := adapter.ModifyOrder(context.Background(), "999", domain.ModifyRequest{
		Qty: domain.Int(20),
	})
	assert.True(t, errs.IsKind(err, errs.KindOrderNotFound))
}

func TestModifyOrderOverlaysChanges(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/rest/auth/angelbroking/user/v1/loginByPassword", loginHandler(t))
	mux.HandleFunc("/rest/secure/angelbroking/order/v1/getOrderBook", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":true,"message":"SUCCESS","errorcode":"","data":[
			{"orderid":"111","tradingsymbol":"SBIN-EQ","symboltoken":"3045","exchange":"NSE",
			 "producttype":"INTRADAY","ordertype":"LIMIT","quantity":"10","price":"500"}
		]}`))
	})
	mux.HandleFunc("/rest/secure/angelbroking/order/v1/modifyOrder", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		var params map[string]any
		require.NoError(t, json.Unmarshal(body, &params))
		assert.Equal(t, "20", params["quantity"], "the requested change overlays")
		assert.Equal(t, "500", params["price"], "unchanged fields repeat from the order book")
		assert.Equal(t, "3045", params["symboltoken"])
		_, _ = w.Write([]byte(`{"status":true,"message":"SUCCESS","errorcode":"","data":{"orderid":"111"}}`))
	})
	adapter := newAutoAdapter(t, mux)
	require.NoError(t, adapter.Login(context.Background()))

	require.NoError(t, adapter.ModifyOrder(context.Background(), "111", domain.ModifyRequest{
		Qty: domain.Int(20),
	}))
}

func TestFetchInstrumentsUsesMasterHost(t *testing.T) {
	master := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/OpenAPI_File/files/OpenAPIScripMaster.json", r.URL.Path)
		_, _ = w.Write([]byte(scripMasterJSON))
	}))
	defer master.Close()

	cfg := autoConfig("http://unused.invalid")
	cfg["master_url"] = master.URL
	adapter, err := New(cfg, zerolog.Nop())
	require.NoError(t, err)
	defer adapter.Close()

	// The scrip master is public; no login needed.
	parsed, err := adapter.FetchInstruments(context.Background())
	require.NoError(t, err)
	assert.Len(t, parsed.Indices, 2)
}

func TestNewStreamClientRequiresSession(t *testing.T) {
	adapter, err := New(config.Config{
		"api_key":   "test-key",
		"auth_mode": "manual",
	}, zerolog.Nop())
	require.NoError(t, err)
	defer adapter.Close()

	_, err = adapter.NewStreamClient()
	assert.True(t, errs.IsKind(err, errs.KindAuthentication))
	assert.True(t, adapter.Capabilities().Streaming)
}

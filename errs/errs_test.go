package errs

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorMessageIncludesBrokerCode(t *testing.T) {
	err := Authentication("token expired", WithCode("TokenException"))
	assert.Equal(t, "authentication: token expired (broker code TokenException)", err.Error())

	bare := Broker("something broke")
	assert.Equal(t, "broker: something broke", bare.Error())
}

func TestOnlyRateLimitRetryableByDefault(t *testing.T) {
	kinds := []Kind{
		KindAuthentication,
		KindInsufficientFunds,
		KindInstrumentNotFound,
		KindUnsupportedFeature,
		KindOrder,
		KindInvalidOrder,
		KindOrderNotFound,
		KindBroker,
	}
	for _, kind := range kinds {
		assert.False(t, New(kind, "x").Retryable, "kind %s should not be retryable", kind)
	}
	assert.True(t, RateLimit("throttled").Retryable)
}

func TestRetryableOverride(t *testing.T) {
	err := Broker("gateway flapping", WithRetryable(true))
	assert.True(t, IsRetryable(err))
}

func TestIsKindThroughWrapping(t *testing.T) {
	inner := OrderNotFound("no such order", WithCode("AB1013"))
	wrapped := fmt.Errorf("cancel failed: %w", inner)

	assert.True(t, IsKind(wrapped, KindOrderNotFound))
	assert.False(t, IsKind(wrapped, KindAuthentication))
	assert.Equal(t, "AB1013", CodeOf(wrapped))
}

func TestUnwrapExposesCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := Broker("upstream unreachable", WithCause(cause))

	assert.True(t, errors.Is(err, cause))

	var e *Error
	assert.True(t, errors.As(err, &e))
	assert.Equal(t, KindBroker, e.Kind)
}

func TestIsRetryableOnPlainError(t *testing.T) {
	assert.False(t, IsRetryable(errors.New("plain")))
	assert.Equal(t, "", CodeOf(errors.New("plain")))
}

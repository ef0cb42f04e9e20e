package auth

import (
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradetools/ttconnect/domain"
)

func TestSessionIsExpired(t *testing.T) {
	assert.False(t, Session{AccessToken: "tok"}.IsExpired(),
		"session without expiry never expires")
	assert.False(t, Session{ExpiresAt: time.Now().Add(time.Hour)}.IsExpired())
	assert.True(t, Session{ExpiresAt: time.Now().Add(-time.Minute)}.IsExpired())
}

func TestNextMidnightIST(t *testing.T) {
	got := NextMidnightIST()

	ist := got.In(domain.IST)
	assert.Equal(t, 0, ist.Hour())
	assert.Equal(t, 0, ist.Minute())
	assert.Equal(t, 0, ist.Second())

	now := time.Now()
	assert.True(t, got.After(now), "expiry must be in the future")
	assert.LessOrEqual(t, got.Sub(now), 24*time.Hour)
}

func TestSessionFileShape(t *testing.T) {
	obtained := time.Date(2026, time.August, 24, 9, 30, 0, 0, time.UTC)
	expires := time.Date(2026, time.August, 24, 18, 30, 0, 0, time.UTC)

	data, err := marshalSession("zerodha", Session{
		AccessToken:  "tok",
		RefreshToken: "ref",
		FeedToken:    "feed",
		ObtainedAt:   obtained,
		ExpiresAt:    expires,
	})
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "zerodha", raw["broker"])
	assert.Equal(t, "tok", raw["access_token"])
	assert.Equal(t, "ref", raw["refresh_token"])
	assert.Equal(t, "feed", raw["feed_token"])
	assert.Contains(t, raw["obtained_at"], "2026-08-24")
	assert.Contains(t, raw["expires_at"], "2026-08-24")
}

func TestSessionFileOptionalFieldsAreNull(t *testing.T) {
	data, err := marshalSession("zerodha", Session{
		AccessToken: "tok",
		ObtainedAt:  time.Now().UTC(),
	})
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Nil(t, raw["refresh_token"])
	assert.Nil(t, raw["feed_token"])
	assert.Nil(t, raw["expires_at"])
}

func TestSessionRoundTrip(t *testing.T) {
	obtained := time.Date(2026, time.August, 24, 9, 30, 0, 0, time.UTC)
	expires := time.Date(2026, time.August, 24, 18, 30, 0, 0, time.UTC)

	data, err := marshalSession("angelone", Session{
		AccessToken:  "jwt",
		RefreshToken: "refresh",
		FeedToken:    "feed",
		ObtainedAt:   obtained,
		ExpiresAt:    expires,
	})
	require.NoError(t, err)

	got, err := unmarshalSession(data)
	require.NoError(t, err)
	assert.Equal(t, "jwt", got.AccessToken)
	assert.Equal(t, "refresh", got.RefreshToken)
	assert.Equal(t, "feed", got.FeedToken)
	assert.WithinDuration(t, obtained, got.ObtainedAt, time.Second)
	assert.WithinDuration(t, expires, got.ExpiresAt, time.Second)
}

func TestUnmarshalSessionRejectsMissingAccessToken(t *testing.T) {
	_, err := unmarshalSession([]byte(`{"broker": "zerodha"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access_token")
}

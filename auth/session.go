package auth

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"

	"github.com/tradetools/ttconnect/domain"
)

// Session holds the live auth state for one broker login.
type Session struct {
	AccessToken  string
	RefreshToken string
	FeedToken    string
	ObtainedAt   time.Time
	ExpiresAt    time.Time
}

// IsExpired reports whether the session has passed its expiry. Sessions
// without an expiry never expire.
func (s Session) IsExpired() bool {
	if s.ExpiresAt.IsZero() {
		return false
	}
	return !time.Now().Before(s.ExpiresAt)
}

// NextMidnightIST returns the coming midnight in IST as a UTC instant.
// Indian brokers invalidate tokens at the start of each trading day.
func NextMidnightIST() time.Time {
	now := time.Now().In(domain.IST)
	next := time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, domain.IST)
	return next.UTC()
}

// sessionFile is the persisted JSON shape, shared by the file and s3
// backends. Optional fields serialize as null so the files stay readable
// by anything expecting the documented layout.
type sessionFile struct {
	Broker       string     `json:"broker"`
	AccessToken  string     `json:"access_token"`
	RefreshToken *string    `json:"refresh_token"`
	FeedToken    *string    `json:"feed_token"`
	ObtainedAt   time.Time  `json:"obtained_at"`
	ExpiresAt    *time.Time `json:"expires_at"`
}

func marshalSession(brokerID string, s Session) ([]byte, error) {
	f := sessionFile{
		Broker:      brokerID,
		AccessToken: s.AccessToken,
		ObtainedAt:  s.ObtainedAt,
	}
	if s.RefreshToken != "" {
		f.RefreshToken = &s.RefreshToken
	}
	if s.FeedToken != "" {
		f.FeedToken = &s.FeedToken
	}
	if !s.ExpiresAt.IsZero() {
		f.ExpiresAt = &s.ExpiresAt
	}
	return json.MarshalIndent(f, "", "  ")
}

func unmarshalSession(data []byte) (*Session, error) {
	var f sessionFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	if f.AccessToken == "" {
		return nil, fmt.Errorf("session record has no access_token")
	}

	s := &Session{
		AccessToken: f.AccessToken,
		ObtainedAt:  f.ObtainedAt,
	}
	if f.RefreshToken != nil {
		s.RefreshToken = *f.RefreshToken
	}
	if f.FeedToken != nil {
		s.FeedToken = *f.FeedToken
	}
	if f.ExpiresAt != nil {
		s.ExpiresAt = *f.ExpiresAt
	}
	return s, nil
}

package auth

import (
	"bytes"
	"context"
	"io"

	"github.com/rs/zerolog"

	"github.com/tradetools/ttconnect/config"
	"github.com/tradetools/ttconnect/internal/objstore"
)

// ObjectClient is the object-store surface the s3 session backend needs.
// Download returns (nil, nil) for a missing key.
type ObjectClient interface {
	Upload(ctx context.Context, key string, body io.Reader, size int64) error
	Download(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// S3Store persists sessions under sessions/{broker_id}.json in an
// S3-compatible bucket.
type S3Store struct {
	client ObjectClient
	log    zerolog.Logger
}

func NewS3Store(client ObjectClient, log zerolog.Logger) *S3Store {
	return &S3Store{
		client: client,
		log:    log.With().Str("component", "session_store_s3").Logger(),
	}
}

// NewS3StoreFromConfig builds the backend from the s3_* config keys.
func NewS3StoreFromConfig(cfg config.Config, log zerolog.Logger) (*S3Store, error) {
	if err := cfg.Require("s3_bucket"); err != nil {
		return nil, err
	}

	client, err := objstore.New(
		cfg.String("s3_endpoint"),
		cfg.String("s3_access_key"),
		cfg.String("s3_secret_key"),
		cfg.String("s3_bucket"),
		log,
	)
	if err != nil {
		return nil, err
	}
	return NewS3Store(client, log), nil
}

func (s *S3Store) key(brokerID string) string {
	return "sessions/" + brokerID + ".json"
}

func (s *S3Store) Load(ctx context.Context, brokerID string) (*Session, error) {
	data, err := s.client.Download(ctx, s.key(brokerID))
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, nil
	}

	session, err := unmarshalSession(data)
	if err != nil {
		s.log.Warn().
			Str("broker", brokerID).
			Err(err).
			Msg("Failed to load cached session, re-login required")
		return nil, nil
	}
	return session, nil
}

func (s *S3Store) Save(ctx context.Context, brokerID string, session Session) error {
	data, err := marshalSession(brokerID, session)
	if err != nil {
		return err
	}
	return s.client.Upload(ctx, s.key(brokerID), bytes.NewReader(data), int64(len(data)))
}

func (s *S3Store) Clear(ctx context.Context, brokerID string) error {
	return s.client.Delete(ctx, s.key(brokerID))
}

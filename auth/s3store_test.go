package auth

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeObjectClient struct {
	mu          sync.Mutex
	objects     map[string][]byte
	downloadErr error
}

func newFakeObjectClient() *fakeObjectClient {
	return &fakeObjectClient{objects: make(map[string][]byte)}
}

func (f *fakeObjectClient) Upload(_ context.Context, key string, body io.Reader, _ int64) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[key] = data
	return nil
}

func (f *fakeObjectClient) Download(_ context.Context, key string) ([]byte, error) {
	if f.downloadErr != nil {
		return nil, f.downloadErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[key]
	if !ok {
		return nil, nil
	}
	return data, nil
}

func (f *fakeObjectClient) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, key)
	return nil
}

func TestS3StoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	objects := newFakeObjectClient()
	store := NewS3Store(objects, zerolog.Nop())

	session := Session{
		AccessToken:  "jwt",
		RefreshToken: "refresh",
		ObtainedAt:   time.Now().UTC(),
		ExpiresAt:    time.Now().Add(6 * time.Hour).UTC(),
	}
	require.NoError(t, store.Save(ctx, "angelone", session))
	assert.Contains(t, objects.objects, "sessions/angelone.json")

	loaded, err := store.Load(ctx, "angelone")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "jwt", loaded.AccessToken)
	assert.Equal(t, "refresh", loaded.RefreshToken)

	require.NoError(t, store.Clear(ctx, "angelone"))
	assert.NotContains(t, objects.objects, "sessions/angelone.json")
}

func TestS3StoreMissingObjectIsMiss(t *testing.T) {
	store := NewS3Store(newFakeObjectClient(), zerolog.Nop())

	loaded, err := store.Load(context.Background(), "zerodha")
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestS3StoreCorruptObjectIsMiss(t *testing.T) {
	objects := newFakeObjectClient()
	objects.objects["sessions/zerodha.json"] = []byte("boom")
	store := NewS3Store(objects, zerolog.Nop())

	loaded, err := store.Load(context.Background(), "zerodha")
	require.NoError(t, err, "a corrupt cache falls back to fresh login")
	assert.Nil(t, loaded)
}

func TestS3StoreDownloadErrorPropagates(t *testing.T) {
	objects := newFakeObjectClient()
	objects.downloadErr = errors.New("connection refused")
	store := NewS3Store(objects, zerolog.Nop())

	_, err := store.Load(context.Background(), "zerodha")
	require.Error(t, err)
}

package settings

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/devJinesh/DocuQuery/internal/kvstore"
	"github.com/devJinesh/DocuQuery/internal/model"
	appErr "github.com/devJinesh/DocuQuery/internal/pkg/errors"
)

type brokenStore struct{}

func (brokenStore) Get(ctx context.Context, key string) ([]byte, error) {
	return nil, errors.New("disk on fire")
}
func (brokenStore) Set(ctx context.Context, key string, value []byte) error {
	return errors.New("disk on fire")
}
func (brokenStore) Delete(ctx context.Context, key string) error { return nil }

func TestStoreGetEmptyWhenAbsent(t *testing.T) {
	s := NewStore(kvstore.NewMemory())
	require.Equal(t, model.Settings{}, s.Get(context.Background()))
}

func TestStoreSetTrimsAndReplaces(t *testing.T) {
	ctx := context.Background()
	kv := kvstore.NewMemory()
	s := NewStore(kv)

	require.NoError(t, s.Set(ctx, model.Settings{APIBaseURL: "  https://llm.example.com/v1 ", Model: "gpt-4o"}))
	require.Equal(t, model.Settings{APIBaseURL: "https://llm.example.com/v1", Model: "gpt-4o"}, s.Get(ctx))

	require.NoError(t, s.Set(ctx, model.Settings{APIKey: "k"}))
	require.Equal(t, model.Settings{APIKey: "k"}, s.Get(ctx))

	raw, err := kv.Get(ctx, SettingsKey)
	require.NoError(t, err)
	require.JSONEq(t, `{"api_key":"k"}`, string(raw))
}

func TestStoreSetBlankDeletesRecord(t *testing.T) {
	ctx := context.Background()
	kv := kvstore.NewMemory()
	s := NewStore(kv)

	require.NoError(t, s.Set(ctx, model.Settings{APIKey: "k"}))
	require.NoError(t, s.Set(ctx, model.Settings{APIBaseURL: "   ", APIKey: "\t", Model: ""}))
	_, err := kv.Get(ctx, SettingsKey)
	require.ErrorIs(t, err, appErr.ErrNotFound)
}

func TestStoreUpdateMergesInMemory(t *testing.T) {
	ctx := context.Background()
	s := NewStore(kvstore.NewMemory())
	require.NoError(t, s.Set(ctx, model.Settings{APIKey: "k"}))
	require.NoError(t, s.Update(ctx, model.Settings{Model: "m"}))
	require.Equal(t, model.Settings{APIKey: "k", Model: "m"}, s.Get(ctx))
}

func TestStoreClear(t *testing.T) {
	ctx := context.Background()
	s := NewStore(kvstore.NewMemory())
	require.NoError(t, s.Set(ctx, model.Settings{Model: "m"}))
	require.NoError(t, s.Clear(ctx))
	require.Equal(t, model.Settings{}, s.Get(ctx))
	require.NoError(t, s.Clear(ctx))
}

func TestStoreCorruptOrUnreadableReadsEmpty(t *testing.T) {
	ctx := context.Background()
	kv := kvstore.NewMemory()
	require.NoError(t, kv.Set(ctx, SettingsKey, []byte("{not json")))
	require.Equal(t, model.Settings{}, NewStore(kv).Get(ctx))
	require.Equal(t, model.Settings{}, NewStore(brokenStore{}).Get(ctx))
}

func TestPreference(t *testing.T) {
	ctx := context.Background()
	kv := kvstore.NewMemory()
	p := NewColorPreference(kv)
	require.True(t, p.Get(ctx))
	require.NoError(t, p.Set(ctx, false))
	require.False(t, p.Get(ctx))

	require.NoError(t, NewStore(kv).Set(ctx, model.Settings{Model: "m"}))
	require.False(t, p.Get(ctx))

	require.NoError(t, kv.Set(ctx, ColorKey, []byte("maybe")))
	require.True(t, p.Get(ctx))
}

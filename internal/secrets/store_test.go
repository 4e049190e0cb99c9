// ABOUTME: Tests for the SQLite and in-memory secret stores
// ABOUTME: Covers get/put/delete round trips and not-found behavior

package secrets

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// storeFactories lets every case run against both implementations.
var storeFactories = map[string]func(t *testing.T) Store{
	"sqlite": func(t *testing.T) Store {
		t.Helper()
		logger := slog.New(slog.NewTextHandler(io.Discard, nil))
		s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "secrets.db"), logger)
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		return s
	},
	"memory": func(t *testing.T) Store {
		t.Helper()
		return NewMemoryStore()
	},
}

func TestStore_PutGet(t *testing.T) {
	for name, factory := range storeFactories {
		t.Run(name, func(t *testing.T) {
			s := factory(t)
			ctx := context.Background()

			require.NoError(t, s.Put(ctx, KeyAdminToken, "token-1"))

			value, err := s.Get(ctx, KeyAdminToken)
			require.NoError(t, err)
			assert.Equal(t, "token-1", value)
		})
	}
}

func TestStore_GetMissing(t *testing.T) {
	for name, factory := range storeFactories {
		t.Run(name, func(t *testing.T) {
			s := factory(t)

			_, err := s.Get(context.Background(), "missing")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStore_PutOverwrites(t *testing.T) {
	for name, factory := range storeFactories {
		t.Run(name, func(t *testing.T) {
			s := factory(t)
			ctx := context.Background()

			require.NoError(t, s.Put(ctx, KeyBotToken, "first"))
			require.NoError(t, s.Put(ctx, KeyBotToken, "second"))

			value, err := s.Get(ctx, KeyBotToken)
			require.NoError(t, err)
			assert.Equal(t, "second", value)
		})
	}
}

func TestStore_Delete(t *testing.T) {
	for name, factory := range storeFactories {
		t.Run(name, func(t *testing.T) {
			s := factory(t)
			ctx := context.Background()

			require.NoError(t, s.Put(ctx, KeyAdminToken, "token"))
			require.NoError(t, s.Delete(ctx, KeyAdminToken))

			_, err := s.Get(ctx, KeyAdminToken)
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestStore_DeleteMissing(t *testing.T) {
	for name, factory := range storeFactories {
		t.Run(name, func(t *testing.T) {
			s := factory(t)

			err := s.Delete(context.Background(), "missing")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestSQLiteStore_Persistence(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	path := filepath.Join(t.TempDir(), "secrets.db")
	ctx := context.Background()

	s1, err := NewSQLiteStore(path, logger)
	require.NoError(t, err)
	require.NoError(t, s1.Put(ctx, KeyAdminToken, "persisted"))
	require.NoError(t, s1.Close())

	s2, err := NewSQLiteStore(path, logger)
	require.NoError(t, err)
	defer func() { _ = s2.Close() }()

	value, err := s2.Get(ctx, KeyAdminToken)
	require.NoError(t, err)
	assert.Equal(t, "persisted", value)
}

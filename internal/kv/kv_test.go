package kv

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stores(t *testing.T) map[string]Store {
	t.Helper()
	sq, err := OpenSQLite(filepath.Join(t.TempDir(), "nested", "reprise.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sq.Close() })

	return map[string]Store{
		"memory": NewMemory(),
		"sqlite": sq,
	}
}

func TestStoreContract(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			_, ok, err := s.Get(ctx, "missing")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, s.Set(ctx, "a", "1"))
			require.NoError(t, s.Set(ctx, "a", "2"))
			v, ok, err := s.Get(ctx, "a")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, "2", v)

			require.NoError(t, s.SetAll(ctx, map[string]string{"b": "x", "c": "y"}))
			for k, want := range map[string]string{"a": "2", "b": "x", "c": "y"} {
				got, ok, err := s.Get(ctx, k)
				require.NoError(t, err)
				assert.True(t, ok, k)
				assert.Equal(t, want, got, k)
			}

			require.NoError(t, s.Remove(ctx, "a", "b", "never-set"))
			_, ok, _ = s.Get(ctx, "a")
			assert.False(t, ok)
			_, ok, _ = s.Get(ctx, "b")
			assert.False(t, ok)
			v, ok, _ = s.Get(ctx, "c")
			assert.True(t, ok)
			assert.Equal(t, "y", v)

			require.NoError(t, s.Remove(ctx))
		})
	}
}

func TestSQLiteReopenKeepsData(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "reprise.db")

	first, err := OpenSQLite(path)
	require.NoError(t, err)
	require.NoError(t, first.Set(ctx, "spotify_playback_state", `{"is_playing":true}`))
	require.NoError(t, first.Close())

	second, err := OpenSQLite(path)
	require.NoError(t, err)
	defer second.Close()

	v, ok, err := second.Get(ctx, "spotify_playback_state")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `{"is_playing":true}`, v)
}

func TestSQLiteSetAllRollsBackOnFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO kv").WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	s := NewSQLite(sqlx.NewDb(db, "sqlmock"))
	err = s.SetAll(context.Background(), map[string]string{"only": "entry"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.NoError(t, mock.ExpectationsWereMet())
}

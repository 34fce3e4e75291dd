package storage

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"knowledge_backend/config"
)

func TestLocalStorageRoundTrip(t *testing.T) {
	ctx := context.Background()
	s, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, s.Save(ctx, "u1/a.txt", strings.NewReader("hello"), 5, "text/plain"))

	ok, err := s.Exists(ctx, "u1/a.txt")
	require.NoError(t, err)
	assert.True(t, ok)

	rc, err := s.Open(ctx, "u1/a.txt")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Equal(t, "hello", string(data))

	require.NoError(t, s.Remove(ctx, "u1/a.txt"))
	ok, err = s.Exists(ctx, "u1/a.txt")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.Open(ctx, "u1/a.txt")
	assert.ErrorIs(t, err, ErrNotExist)
	assert.ErrorIs(t, s.Remove(ctx, "u1/a.txt"), ErrNotExist)
}

func TestLocalStorageRejectsTraversal(t *testing.T) {
	s, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	err = s.Save(context.Background(), "../escape.txt", strings.NewReader("x"), 1, "")
	assert.Error(t, err)
}

func TestInitStorageServiceLocal(t *testing.T) {
	s, err := InitStorageService(&config.Config{StorageType: "local", StorageRoot: t.TempDir()})
	require.NoError(t, err)
	assert.IsType(t, &LocalStorage{}, s)

	_, err = InitStorageService(&config.Config{StorageType: "ftp"})
	assert.Error(t, err)
}

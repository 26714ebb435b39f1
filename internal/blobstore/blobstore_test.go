package blobstore

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStageAndReadRoundTrip(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	plain, err := store.Stage([]byte("hello world\n"), false)
	require.NoError(t, err)
	gz, err := store.Stage([]byte("compress me\n"), true)
	require.NoError(t, err)
	require.NotEqual(t, plain, gz)

	got, err := store.Read(plain)
	require.NoError(t, err)
	require.Equal(t, "hello world\n", string(got))

	got, err = store.Read(gz)
	require.NoError(t, err)
	require.Equal(t, "compress me\n", string(got))
}

func TestReleaseIsIdempotent(t *testing.T) {
	store, err := New(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	serial, err := store.Stage([]byte("data"), false)
	require.NoError(t, err)

	require.NoError(t, store.Release(serial))
	require.NoError(t, store.Release(serial))

	_, err = store.Read(serial)
	require.Error(t, err)
}

func TestCloseRemovesStagingDir(t *testing.T) {
	base := t.TempDir()
	store, err := New(base)
	require.NoError(t, err)

	_, err = store.Stage([]byte("data"), false)
	require.NoError(t, err)

	require.NoError(t, store.Close())
	_, err = os.Stat(store.root)
	require.True(t, os.IsNotExist(err))
}

func TestNewHonoursEmptyBaseFallsBackToTempDir(t *testing.T) {
	store, err := New("")
	require.NoError(t, err)
	defer store.Close()
	require.NotEmpty(t, store.root)
}

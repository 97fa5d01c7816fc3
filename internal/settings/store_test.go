package settings

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fruitsalade/studiokit/internal/config"
)

// exerciseStore runs the behaviour every backend must share.
func exerciseStore(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	_, err := s.Get(ctx, KeyFavourites)
	require.ErrorIs(t, err, ErrNotFound)

	v, err := GetOr(ctx, s, KeyRootDirectory, "fallback")
	require.NoError(t, err)
	assert.Equal(t, "fallback", v)

	require.NoError(t, s.Set(ctx, KeyFavourites, "a.jsx,b.jsx"))
	v, err = s.Get(ctx, KeyFavourites)
	require.NoError(t, err)
	assert.Equal(t, "a.jsx,b.jsx", v)

	require.NoError(t, s.Set(ctx, KeyFavourites, ""))
	v, err = s.Get(ctx, KeyFavourites)
	require.NoError(t, err)
	assert.Equal(t, "", v, "empty values are stored, not deleted")

	require.NoError(t, s.Delete(ctx, KeyFavourites))
	_, err = s.Get(ctx, KeyFavourites)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Delete(ctx, "never-set"))
}

func TestMemory(t *testing.T) {
	exerciseStore(t, NewMemory())
}

func TestFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "settings.json")
	f, err := OpenFile(path)
	require.NoError(t, err)
	exerciseStore(t, f)
}

func TestFilePersists(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "settings.json")

	f, err := OpenFile(path)
	require.NoError(t, err)
	require.NoError(t, f.Set(ctx, KeyRootDirectory, "C:/Scripts"))

	_, err = os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err), "temp file should be renamed away")

	reopened, err := OpenFile(path)
	require.NoError(t, err)
	v, err := reopened.Get(ctx, KeyRootDirectory)
	require.NoError(t, err)
	assert.Equal(t, "C:/Scripts", v)
}

func TestFileCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0644))
	_, err := OpenFile(path)
	assert.Error(t, err)
}

func TestSQLite(t *testing.T) {
	s, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "settings.db"))
	require.NoError(t, err)
	defer s.Close()
	exerciseStore(t, s)
}

func TestPostgres(t *testing.T) {
	url := os.Getenv("STUDIOKIT_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("STUDIOKIT_TEST_DATABASE_URL not set")
	}
	s, err := OpenPostgres(context.Background(), url)
	require.NoError(t, err)
	defer s.Close()
	exerciseStore(t, s)
}

func TestS3(t *testing.T) {
	endpoint := os.Getenv("STUDIOKIT_TEST_S3_ENDPOINT")
	if endpoint == "" {
		t.Skip("STUDIOKIT_TEST_S3_ENDPOINT not set")
	}
	s, err := NewS3(context.Background(), S3Config{
		Endpoint:  endpoint,
		Bucket:    os.Getenv("STUDIOKIT_TEST_S3_BUCKET"),
		Prefix:    "test/",
		AccessKey: os.Getenv("STUDIOKIT_TEST_S3_ACCESS_KEY"),
		SecretKey: os.Getenv("STUDIOKIT_TEST_S3_SECRET_KEY"),
		Region:    "us-east-1",
	})
	require.NoError(t, err)
	exerciseStore(t, s)
}

func TestNewFromConfig(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	for _, backend := range []string{"memory", "file", "sqlite"} {
		t.Run(backend, func(t *testing.T) {
			s, err := NewFromConfig(ctx, config.SettingsConfig{
				Backend: backend,
				Path:    filepath.Join(dir, backend+".store"),
			})
			require.NoError(t, err)
			defer s.Close()
			exerciseStore(t, s)
		})
	}

	_, err := NewFromConfig(ctx, config.SettingsConfig{Backend: "redis"})
	assert.Error(t, err)
}

type failingStore struct{ *Memory }

func (f *failingStore) Set(context.Context, string, string) error {
	return errors.New("disk full")
}

func TestInstrumentPassesErrors(t *testing.T) {
	s := Instrument("test", &failingStore{Memory: NewMemory()})
	err := s.Set(context.Background(), "k", "v")
	assert.EqualError(t, err, "disk full")
}

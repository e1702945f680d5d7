package blob

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenDrivers(t *testing.T) {
	ctx := context.Background()

	mem, err := Open(ctx, Config{Driver: "MEMORY"})
	require.NoError(t, err)
	assert.Equal(t, DriverMemory, mem.Driver())

	fs, err := Open(ctx, Config{Driver: DriverFilesystem, Root: t.TempDir()})
	require.NoError(t, err)
	assert.Equal(t, DriverFilesystem, fs.Driver())

	_, err = Open(ctx, Config{Driver: DriverS3})
	assert.Error(t, err, "s3 needs a bucket")

	_, err = Open(ctx, Config{Driver: "tape"})
	assert.ErrorContains(t, err, "unknown blob driver")
}

func TestConfigFromEnv(t *testing.T) {
	t.Setenv(EnvDriver, "")
	t.Setenv(EnvFSRoot, "/var/lib/cms")
	t.Setenv("CMSSTORE_BLOB_S3_BUCKET", "docs")
	t.Setenv("CMSSTORE_BLOB_S3_PATH_STYLE", "TRUE")

	cfg := ConfigFromEnv()
	assert.Equal(t, DriverFilesystem, cfg.Driver)
	assert.Equal(t, "/var/lib/cms", cfg.Root)
	assert.Equal(t, "docs", cfg.S3.Bucket)
	assert.True(t, cfg.S3.PathStyle)

	t.Setenv(EnvDriver, "S3")
	assert.Equal(t, DriverS3, ConfigFromEnv().Driver)
}

// Every driver reachable without network shares the same contract.
func TestStoreContract(t *testing.T) {
	ctx := context.Background()
	fs, err := Open(ctx, Config{Driver: DriverFilesystem, Root: t.TempDir()})
	require.NoError(t, err)

	for _, store := range []Store{NewMemory(), fs} {
		t.Run(string(store.Driver()), func(t *testing.T) {
			_, err := store.Put(ctx, "components/PSFolder/a.xml", bytes.NewBufferString("<a/>"), PutOptions{ContentType: "application/xml"})
			require.NoError(t, err)
			info, err := store.Put(ctx, "components/PSFolder/a.xml", bytes.NewBufferString("<a>2</a>"), PutOptions{ContentType: "application/xml", Metadata: map[string]string{"state": "unmodified"}})
			require.NoError(t, err, "put replaces")
			assert.Equal(t, int64(len("<a>2</a>")), info.Size)

			_, err = store.Put(ctx, "components/PSProperty/b.xml", bytes.NewBufferString("<b/>"), PutOptions{})
			require.NoError(t, err)

			got, rc, err := store.Get(ctx, "components/PSFolder/a.xml")
			require.NoError(t, err)
			body, err := io.ReadAll(rc)
			require.NoError(t, err)
			require.NoError(t, rc.Close())
			assert.Equal(t, "<a>2</a>", string(body))
			assert.Equal(t, "application/xml", got.ContentType)
			assert.Equal(t, "unmodified", got.Metadata["state"])

			list, err := store.List(ctx, "components/PSFolder/")
			require.NoError(t, err)
			require.Len(t, list, 1)
			assert.Equal(t, "components/PSFolder/a.xml", list[0].Key)

			all, err := store.List(ctx, "")
			require.NoError(t, err)
			assert.Len(t, all, 2)

			removed, err := store.Delete(ctx, "components/PSFolder/a.xml")
			require.NoError(t, err)
			assert.True(t, removed)
			removed, err = store.Delete(ctx, "components/PSFolder/a.xml")
			require.NoError(t, err)
			assert.False(t, removed)

			_, err = store.Head(ctx, "components/PSFolder/a.xml")
			assert.True(t, errors.Is(err, ErrNotFound))
			_, _, err = store.Get(ctx, "components/PSFolder/a.xml")
			assert.True(t, errors.Is(err, ErrNotFound))

			_, err = store.Put(ctx, "", bytes.NewBufferString("x"), PutOptions{})
			assert.True(t, errors.Is(err, ErrInvalidKey))
		})
	}
}

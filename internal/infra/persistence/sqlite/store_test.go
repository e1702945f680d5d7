package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cmsstore/internal/infra/processor/docproc"
	"cmsstore/pkg/domain"
)

func TestStorePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "cms.db")

	store, err := Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, docproc.Document{Type: domain.TypeFolder, ID: "contentid=b", Payload: []byte("<b/>")}))
	require.NoError(t, store.Put(ctx, docproc.Document{Type: domain.TypeFolder, ID: "contentid=a", Payload: []byte("<a/>")}))
	require.NoError(t, store.Put(ctx, docproc.Document{Type: domain.TypeFolder, ID: "contentid=a", Payload: []byte("<a2/>")}))
	require.NoError(t, store.Close())

	store, err = Open(ctx, path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	docs, err := store.List(ctx, domain.TypeFolder)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "contentid=a", docs[0].ID)
	assert.Equal(t, "<a2/>", string(docs[0].Payload))
	assert.Equal(t, "contentid=b", docs[1].ID)

	removed, err := store.Delete(ctx, domain.TypeFolder, "contentid=a")
	require.NoError(t, err)
	assert.True(t, removed)
	_, found, err := store.Get(ctx, domain.TypeFolder, "contentid=a")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestMemoryDatabaseBacksProcessor(t *testing.T) {
	ctx := context.Background()
	store, err := Open(ctx, MemoryPath)
	require.NoError(t, err)
	proc, err := docproc.New(store)
	require.NoError(t, err)
	t.Cleanup(func() { _ = proc.Close() })

	f, err := domain.NewFolder("inbox")
	require.NoError(t, err)
	require.NoError(t, f.SetProperty("color", "blue"))
	res, err := proc.Save(ctx, []domain.Component{f})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Stats.Inserted)

	loaded, err := proc.Load(ctx, domain.TypeFolder, []*domain.Key{f.Key()})
	require.NoError(t, err)
	require.Len(t, loaded, 1)
	assert.True(t, domain.EqualFull(f, loaded[0]))
}

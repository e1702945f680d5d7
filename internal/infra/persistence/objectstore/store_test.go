package objectstore

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cmsstore/internal/blob"
	"cmsstore/internal/infra/processor/docproc"
	"cmsstore/pkg/domain"
)

func TestObjectKeyEscapesIDs(t *testing.T) {
	assert.Equal(t, "components/psfolder/contentid=a%2Fb.xml", ObjectKey(domain.TypeFolder, "contentid=a/b"))
	assert.Equal(t, "components/psfolder/contentid=v1%2E%2E.xml", ObjectKey(domain.TypeFolder, "contentid=v1.."))
}

func TestDottedIDsOnFilesystemBlobs(t *testing.T) {
	ctx := context.Background()
	objects, err := blob.Open(ctx, blob.Config{Driver: blob.DriverFilesystem, Root: t.TempDir()})
	require.NoError(t, err)
	s, err := New(objects)
	require.NoError(t, err)

	ids := []string{"contentid=v1.", "contentid=../up", "contentid=a..b"}
	for _, id := range ids {
		require.NoError(t, s.Put(ctx, docproc.Document{Type: domain.TypeFolder, ID: id, Payload: []byte("<x/>")}), id)
	}
	docs, err := s.List(ctx, domain.TypeFolder)
	require.NoError(t, err)
	got := make([]string, 0, len(docs))
	for _, d := range docs {
		got = append(got, d.ID)
	}
	assert.ElementsMatch(t, ids, got)

	doc, found, err := s.Get(ctx, domain.TypeFolder, "contentid=v1.")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "contentid=v1.", doc.ID)
}

func TestStoreOnFilesystemBlobs(t *testing.T) {
	ctx := context.Background()
	objects, err := blob.Open(ctx, blob.Config{Driver: blob.DriverFilesystem, Root: t.TempDir()})
	require.NoError(t, err)
	s, err := New(objects)
	require.NoError(t, err)

	require.NoError(t, s.Put(ctx, docproc.Document{Type: domain.TypeFolder, ID: "contentid=a/b", Payload: []byte("<x/>")}))
	require.NoError(t, s.Put(ctx, docproc.Document{Type: domain.TypeFolder, ID: "contentid=c", Payload: []byte("<y/>")}))
	require.NoError(t, s.Put(ctx, docproc.Document{Type: domain.TypeProperty, ID: "propertyid=1", Payload: []byte("<p/>")}))

	info, err := objects.Head(ctx, ObjectKey(domain.TypeFolder, "contentid=c"))
	require.NoError(t, err)
	assert.Equal(t, "application/xml", info.ContentType)
	assert.Equal(t, string(domain.TypeFolder), info.Metadata[MetaType])

	docs, err := s.List(ctx, domain.TypeFolder)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "contentid=a/b", docs[0].ID)
	assert.Equal(t, "<x/>", string(docs[0].Payload))

	removed, err := s.Delete(ctx, domain.TypeFolder, "contentid=a/b")
	require.NoError(t, err)
	assert.True(t, removed)
	_, found, err := s.Get(ctx, domain.TypeFolder, "contentid=a/b")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestListSkipsForeignObjects(t *testing.T) {
	ctx := context.Background()
	objects := blob.NewMemory()
	s, err := New(objects)
	require.NoError(t, err)
	_, err = objects.Put(ctx, "components/psfolder/readme.txt", bytes.NewReader([]byte("hi")), blob.PutOptions{})
	require.NoError(t, err)
	_, err = objects.Put(ctx, "components/psfolder/nested/x.xml", bytes.NewReader([]byte("hi")), blob.PutOptions{})
	require.NoError(t, err)

	docs, err := s.List(ctx, domain.TypeFolder)
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestNewRequiresObjects(t *testing.T) {
	_, err := New(nil)
	require.Error(t, err)
}

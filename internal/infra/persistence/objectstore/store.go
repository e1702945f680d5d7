// Package objectstore keeps component documents as XML objects in a blob
// store, one object per component under components/<type>/<id>.xml.
package objectstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"cmsstore/internal/blob"
	"cmsstore/internal/infra/processor/docproc"
	"cmsstore/pkg/domain"
)

const (
	rootPrefix  = "components/"
	objectExt   = ".xml"
	contentType = "application/xml"
	// MetaType records the declared component type on each object.
	MetaType = "component-type"
)

var _ docproc.Store = (*Store)(nil)

// Store adapts a blob.Store to docproc.Store.
type Store struct {
	objects blob.Store
}

// New wraps objects.
func New(objects blob.Store) (*Store, error) {
	if objects == nil {
		return nil, errors.New("objectstore: blob store is nil")
	}
	return &Store{objects: objects}, nil
}

// Objects returns the underlying blob store.
func (s *Store) Objects() blob.Store { return s.objects }

func typePrefix(t domain.ComponentType) string {
	return rootPrefix + strings.ToLower(string(t)) + "/"
}

// ObjectKey returns the blob key a document is stored under. Dots in the id
// are escaped along with path separators, so no id yields a ".." segment.
func ObjectKey(t domain.ComponentType, id string) string {
	return typePrefix(t) + escapeID(id) + objectExt
}

func escapeID(id string) string {
	return strings.ReplaceAll(url.PathEscape(id), ".", "%2E")
}

// Get implements docproc.Store.
func (s *Store) Get(ctx context.Context, t domain.ComponentType, id string) (docproc.Document, bool, error) {
	_, rc, err := s.objects.Get(ctx, ObjectKey(t, id))
	if errors.Is(err, blob.ErrNotFound) {
		return docproc.Document{}, false, nil
	}
	if err != nil {
		return docproc.Document{}, false, err
	}
	defer func() { _ = rc.Close() }()
	payload, err := io.ReadAll(rc)
	if err != nil {
		return docproc.Document{}, false, fmt.Errorf("read %s %s: %w", t, id, err)
	}
	return docproc.Document{Type: t, ID: id, Payload: payload}, true, nil
}

// Put implements docproc.Store.
func (s *Store) Put(ctx context.Context, doc docproc.Document) error {
	_, err := s.objects.Put(ctx, ObjectKey(doc.Type, doc.ID), bytes.NewReader(doc.Payload), blob.PutOptions{
		ContentType: contentType,
		Metadata:    map[string]string{MetaType: string(doc.Type)},
	})
	return err
}

// Delete implements docproc.Store.
func (s *Store) Delete(ctx context.Context, t domain.ComponentType, id string) (bool, error) {
	return s.objects.Delete(ctx, ObjectKey(t, id))
}

// List implements docproc.Store. Objects that disappear between the listing
// and the read are skipped.
func (s *Store) List(ctx context.Context, t domain.ComponentType) ([]docproc.Document, error) {
	prefix := typePrefix(t)
	infos, err := s.objects.List(ctx, prefix)
	if err != nil {
		return nil, err
	}
	docs := make([]docproc.Document, 0, len(infos))
	for _, info := range infos {
		name := strings.TrimPrefix(info.Key, prefix)
		if !strings.HasSuffix(name, objectExt) || strings.Contains(name, "/") {
			continue
		}
		id, err := url.PathUnescape(strings.TrimSuffix(name, objectExt))
		if err != nil {
			continue
		}
		doc, found, err := s.Get(ctx, t, id)
		if err != nil {
			return nil, err
		}
		if found {
			docs = append(docs, doc)
		}
	}
	return docs, nil
}

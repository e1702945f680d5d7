package memory

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"cmsstore/internal/blob/core"
)

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("broken pipe") }

func TestStoreCopiesOnReadAndWrite(t *testing.T) {
	s := New()
	ctx := context.Background()
	md := map[string]string{"type": "PSFolder"}
	if _, err := s.Put(ctx, "k", bytes.NewReader([]byte("abc")), core.PutOptions{Metadata: md}); err != nil {
		t.Fatalf("put: %v", err)
	}
	md["type"] = "changed"

	info, rc, err := s.Get(ctx, "k")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if info.Metadata["type"] != "PSFolder" {
		t.Fatalf("metadata aliased caller map: %v", info.Metadata)
	}
	info.Metadata["type"] = "mutated"
	body, _ := io.ReadAll(rc)
	if string(body) != "abc" {
		t.Fatalf("body %q", body)
	}
	head, err := s.Head(ctx, "k")
	if err != nil || head.Metadata["type"] != "PSFolder" {
		t.Fatalf("head: %v %v", head, err)
	}
	if head.ETag == "" || head.Size != 3 {
		t.Fatalf("unexpected info %+v", head)
	}
}

func TestStorePutReadError(t *testing.T) {
	s := New()
	if _, err := s.Put(context.Background(), "k", failingReader{}, core.PutOptions{}); err == nil {
		t.Fatalf("expected read error")
	}
	if _, err := s.Head(context.Background(), "k"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("failed put must not store: %v", err)
	}
}

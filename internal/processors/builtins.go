// Package processors registers the built-in processor implementations that
// processor configurations refer to by impl id.
package processors

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"cmsstore/internal/blob"
	"cmsstore/internal/core"
	"cmsstore/internal/infra/persistence/memory"
	"cmsstore/internal/infra/persistence/objectstore"
	"cmsstore/internal/infra/persistence/postgres"
	"cmsstore/internal/infra/persistence/sqlite"
	"cmsstore/internal/infra/processor/docproc"
	"cmsstore/internal/infra/processor/remote"
)

// Built-in impl identifiers.
const (
	ImplMemory   = "memory"
	ImplSQLite   = "sqlite"
	ImplPostgres = "postgres"
	ImplBlob     = "blob"
	ImplRemote   = "remote"
)

// EnvPostgresDSN is consulted when a postgres processor has no dsn property.
const EnvPostgresDSN = "CMSSTORE_POSTGRES_DSN"

const (
	openTimeout       = 15 * time.Second
	defaultMemoryName = "default"
)

// Builtins returns a registry holding every built-in factory. In-memory
// stores live as long as the registry, so rebuilding processors after a
// context change keeps their data.
func Builtins() *core.Registry {
	b := &builtins{
		docs:  make(map[string]*memory.Store),
		blobs: make(map[string]blob.Store),
	}
	reg := core.NewRegistry()
	reg.MustRegister(ImplMemory, b.memory)
	reg.MustRegister(ImplSQLite, b.sqlite)
	reg.MustRegister(ImplPostgres, b.postgres)
	reg.MustRegister(ImplBlob, b.blob)
	reg.MustRegister(ImplRemote, b.remote)
	return reg
}

type builtins struct {
	mu    sync.Mutex
	docs  map[string]*memory.Store
	blobs map[string]blob.Store
}

func openContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), openTimeout)
}

func (b *builtins) memory(_ *core.ProcessorContext, props core.PropertyBag) (core.Processor, error) {
	name := strings.ToLower(props.String("name", defaultMemoryName))
	b.mu.Lock()
	store, ok := b.docs[name]
	if !ok {
		store = memory.NewStore()
		b.docs[name] = store
	}
	b.mu.Unlock()
	return newDocProcessor(store)
}

func (b *builtins) sqlite(_ *core.ProcessorContext, props core.PropertyBag) (core.Processor, error) {
	ctx, cancel := openContext()
	defer cancel()
	store, err := sqlite.Open(ctx, props.String("path", sqlite.DefaultPath))
	if err != nil {
		return nil, err
	}
	return newDocProcessor(store)
}

func (b *builtins) postgres(_ *core.ProcessorContext, props core.PropertyBag) (core.Processor, error) {
	ctx, cancel := openContext()
	defer cancel()
	store, err := postgres.Open(ctx, props.String("dsn", os.Getenv(EnvPostgresDSN)))
	if err != nil {
		return nil, err
	}
	return newDocProcessor(store)
}

// blobConfig reads driver settings, falling back to the CMSSTORE_BLOB_*
// environment for anything the properties leave out.
func blobConfig(props core.PropertyBag) blob.Config {
	cfg := blob.ConfigFromEnv()
	cfg.Driver = blob.Driver(strings.ToLower(props.String("driver", string(cfg.Driver))))
	cfg.Root = props.String("root", cfg.Root)
	cfg.S3.Bucket = props.String("bucket", cfg.S3.Bucket)
	cfg.S3.Region = props.String("region", cfg.S3.Region)
	cfg.S3.Endpoint = props.String("endpoint", cfg.S3.Endpoint)
	cfg.S3.Prefix = props.String("prefix", cfg.S3.Prefix)
	cfg.S3.PathStyle = props.Bool("pathStyle", cfg.S3.PathStyle)
	return cfg
}

func (b *builtins) blob(_ *core.ProcessorContext, props core.PropertyBag) (core.Processor, error) {
	cfg := blobConfig(props)
	if cfg.Driver == blob.DriverMemory {
		return newBlobProcessor(b.memoryBlobs(props.String("name", defaultMemoryName)))
	}
	ctx, cancel := openContext()
	defer cancel()
	objects, err := blob.Open(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open %s blob store: %w", cfg.Driver, err)
	}
	return newBlobProcessor(objects)
}

func (b *builtins) memoryBlobs(name string) blob.Store {
	name = strings.ToLower(name)
	b.mu.Lock()
	defer b.mu.Unlock()
	objects, ok := b.blobs[name]
	if !ok {
		objects = blob.NewMemory()
		b.blobs[name] = objects
	}
	return objects
}

func newBlobProcessor(objects blob.Store) (core.Processor, error) {
	store, err := objectstore.New(objects)
	if err != nil {
		return nil, err
	}
	return newDocProcessor(store)
}

func newDocProcessor(store docproc.Store) (core.Processor, error) {
	p, err := docproc.New(store)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (b *builtins) remote(_ *core.ProcessorContext, props core.PropertyBag) (core.Processor, error) {
	u, ok := props.Get("url")
	if !ok || strings.TrimSpace(u) == "" {
		return nil, fmt.Errorf("remote processor requires a url property")
	}
	timeout := 30 * time.Second
	if v := props.String("timeout", ""); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("remote timeout %q: %w", v, err)
		}
		timeout = d
	}
	p, err := remote.New(u, remote.WithHTTPClient(&http.Client{Timeout: timeout}))
	if err != nil {
		return nil, err
	}
	return p, nil
}

// Package blob selects and constructs object-store backends. It is the only
// package outside internal/infra that imports the concrete blob drivers.
package blob

import (
	"context"
	"fmt"
	"os"
	"strings"

	"cmsstore/internal/blob/core"
	fsstore "cmsstore/internal/infra/blob/fs"
	memorystore "cmsstore/internal/infra/blob/memory"
	s3store "cmsstore/internal/infra/blob/s3"
)

type (
	// Driver identifies a blob backend driver.
	Driver = core.Driver
	// PutOptions configures a write.
	PutOptions = core.PutOptions
	// Info describes stored object metadata.
	Info = core.Info
	// Store is the interface implemented by every backend.
	Store = core.Store
	// S3Config configures the S3 driver.
	S3Config = s3store.Config
)

const (
	DriverFilesystem = core.DriverFilesystem
	DriverS3         = core.DriverS3
	DriverMemory     = core.DriverMemory
)

// Errors shared by all backends.
var (
	ErrNotFound   = core.ErrNotFound
	ErrInvalidKey = core.ErrInvalidKey
)

// Environment variables read by ConfigFromEnv.
const (
	EnvDriver = "CMSSTORE_BLOB_DRIVER"
	EnvFSRoot = "CMSSTORE_BLOB_FS_ROOT"
)

// Config selects a driver and carries its settings.
type Config struct {
	Driver Driver
	Root   string
	S3     S3Config
}

// ConfigFromEnv reads CMSSTORE_BLOB_DRIVER (fs|s3|memory, default fs),
// CMSSTORE_BLOB_FS_ROOT and the S3 variables documented in the s3 driver.
func ConfigFromEnv() Config {
	d := Driver(strings.ToLower(os.Getenv(EnvDriver)))
	if d == "" {
		d = DriverFilesystem
	}
	return Config{Driver: d, Root: os.Getenv(EnvFSRoot), S3: s3store.ConfigFromEnv()}
}

// Open constructs the backend named by cfg.Driver.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch Driver(strings.ToLower(string(cfg.Driver))) {
	case DriverFilesystem, "":
		return fsstore.New(cfg.Root)
	case DriverS3:
		return s3store.New(ctx, cfg.S3)
	case DriverMemory:
		return memorystore.New(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %q", cfg.Driver)
	}
}

// NewMemory returns an empty in-memory store.
func NewMemory() Store { return memorystore.New() }

// Package blob selects and opens a concrete blob store backend.
package blob

import (
	"context"
	"fmt"
	"os"

	"deident/internal/blob/core"
	"deident/internal/infra/blob/fs"
	"deident/internal/infra/blob/memory"
	"deident/internal/infra/blob/s3"
)

// Store is the backend-agnostic blob contract.
type Store = core.Store

// PutOptions re-exports the core put options for callers of Open.
type PutOptions = core.PutOptions

// Open selects a blob store implementation using environment variables.
//
//	DEIDENT_BLOB_DRIVER: fs|s3|memory (default fs)
//	DEIDENT_BLOB_FS_ROOT: directory root when driver=fs (default ./blobdata)
//	(S3 specific variables documented in the s3 package)
func Open(ctx context.Context) (Store, error) {
	driver := os.Getenv("DEIDENT_BLOB_DRIVER")
	if driver == "" {
		driver = string(core.DriverFilesystem)
	}
	switch core.Driver(driver) {
	case core.DriverFilesystem:
		root := os.Getenv("DEIDENT_BLOB_FS_ROOT")
		if root == "" {
			root = "./blobdata"
		}
		return fs.New(root)
	case core.DriverS3:
		return s3.OpenFromEnv(ctx)
	case core.DriverMemory:
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %s", driver)
	}
}

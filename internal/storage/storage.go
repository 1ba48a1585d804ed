// Package storage provides the upload backends a finished session publishes
// its sealed parquet files to.
package storage

import "context"

// ObjectStorage is the destination for sealed dataset files. Object paths use
// forward slashes regardless of backend.
type ObjectStorage interface {
	// Upload copies a local file to objectPath, overwriting any existing
	// object.
	Upload(ctx context.Context, localPath, objectPath string) error

	// Exists reports whether an object is present.
	Exists(ctx context.Context, objectPath string) (bool, error)

	// ListObjects returns every object path under prefix. A prefix with no
	// objects yields an empty list.
	ListObjects(ctx context.Context, prefix string) ([]string, error)
}

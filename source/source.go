// Package source adapts the object-storage service the sync engine reads
// from. The production implementation targets S3-compatible storage (MinIO
// included) through aws-sdk-go-v2.
package source

import "context"

// Source exposes the two object-storage operations the sync engine needs.
type Source interface {
	// Download fetches the object's bytes into a scoped temporary file and
	// returns its path plus a cleanup func. The cleanup func is safe to call
	// on every exit path and removes the temporary file.
	Download(ctx context.Context, bucket, key string) (path string, cleanup func(), err error)

	// ListKeys enumerates every key currently in the bucket. Pagination is
	// handled internally; ordering is unspecified.
	ListKeys(ctx context.Context, bucket string) ([]string, error)
}

// Package storage defines Shoal's storage engine: the single abstraction
// that owns all bucket, object, and multipart-upload state. Implementations
// provide the underlying medium (local filesystem, in-memory, or a cloud
// gateway); all methods must be safe for concurrent use.
package storage

import (
	"context"
	"io"
)

// Engine is the storage engine contract. Handlers hold a shared read-only
// reference; the engine mediates its own internal locking. There is exactly
// one Engine mounted per running server, selected at startup by
// config.StorageConfig.Backend.
type Engine interface {
	// CreateBucket creates a new bucket. Fails with ErrInvalidBucketName if
	// name violates the naming invariants, or ErrBucketAlreadyExists if the
	// name is taken. On success the bucket is immediately visible to all
	// subsequent operations.
	CreateBucket(ctx context.Context, name string) error

	// DeleteBucket removes a bucket. Fails with ErrBucketNotFound or
	// ErrBucketNotEmpty. Emptiness is checked atomically with the deletion:
	// no object creation may intervene between the check and the delete.
	DeleteBucket(ctx context.Context, name string) error

	// BucketExists reports whether a bucket exists.
	BucketExists(ctx context.Context, name string) (bool, error)

	// GetBucketInfo returns a bucket's descriptor, or ErrBucketNotFound.
	GetBucketInfo(ctx context.Context, name string) (BucketInfo, error)

	// ListBuckets returns all buckets in unspecified order.
	ListBuckets(ctx context.Context) ([]BucketInfo, error)

	// PutObject writes data to bucket/key, computing
	// etag = quote(hex(MD5(data))), ContentLength = size, and a fresh
	// LastModified. Overwrite is atomic from a reader's perspective: a
	// concurrent GetObject/HeadObject observes either the prior object in
	// full or the new one in full, never a mix.
	PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64, contentType string, userMetadata map[string]string) (PutResult, error)

	// GetObject opens an object for reading, optionally restricted to a
	// byte range. The caller must close the returned ReadCloser. Fails with
	// ErrBucketNotFound, ErrObjectNotFound, or ErrInvalidRange.
	GetObject(ctx context.Context, bucket, key string, rng *Range) (io.ReadCloser, ObjectMetadata, error)

	// HeadObject returns an object's metadata without its body. Same error
	// cases as GetObject (Range excluded).
	HeadObject(ctx context.Context, bucket, key string) (ObjectMetadata, error)

	// DeleteObject removes an object. Fails with ErrObjectNotFound if
	// absent. The metadata descriptor is unlinked before the data blob, so a
	// racing HeadObject observes NotFound before the data disappears.
	DeleteObject(ctx context.Context, bucket, key string) error

	// CopyObject reads srcBucket/srcKey in full and writes it to
	// dstBucket/dstKey, preserving content and user metadata and assigning a
	// fresh LastModified. Source and destination may be identical.
	CopyObject(ctx context.Context, srcBucket, srcKey, dstBucket, dstKey string) (PutResult, error)

	// ListObjects enumerates a bucket's keys, partitioned by prefix and
	// delimiter into objects and common prefixes, sorted and truncated per
	// params.
	ListObjects(ctx context.Context, bucket string, params ListObjectsParams) (ListResult, error)

	// CreateMultipartUpload registers a new upload with a fresh UUIDv4 ID.
	// Requires the bucket to exist.
	CreateMultipartUpload(ctx context.Context, bucket, key, contentType string, userMetadata map[string]string) (uploadID string, err error)

	// UploadPart stores one part of an in-flight upload. partNumber must be
	// in [1, 10000]. Re-uploading a part number replaces its bytes.
	UploadPart(ctx context.Context, bucket, key, uploadID string, partNumber int, r io.Reader, size int64) (PartInfo, error)

	// CompleteMultipartUpload validates parts against the stored upload,
	// concatenates them in the given order, writes the result as a normal
	// object, and removes the multipart state. The result ETag is the MD5
	// of the final concatenated bytes, not AWS's composite-hash format.
	CompleteMultipartUpload(ctx context.Context, bucket, key, uploadID string, parts []PartRef) (CompleteResult, error)

	// AbortMultipartUpload discards all part state and files. Idempotent.
	AbortMultipartUpload(ctx context.Context, bucket, key, uploadID string) error

	// ListParts returns an upload's stored parts sorted ascending by part
	// number.
	ListParts(ctx context.Context, bucket, key, uploadID string) ([]PartInfo, error)

	// ListMultipartUploads returns in-flight uploads for a bucket.
	ListMultipartUploads(ctx context.Context, bucket string) ([]UploadInfo, error)

	// Stats returns an engine-wide aggregate for the admin façade.
	Stats(ctx context.Context) (StorageStats, error)

	// HealthCheck verifies the engine is operational.
	HealthCheck(ctx context.Context) error
}

package storage

import "time"

// BucketInfo describes a bucket's identity and creation time. Buckets are
// immutable after creation: the only mutations are existence (create/delete).
type BucketInfo struct {
	Name         string
	CreationDate time.Time
}

// ObjectMetadata describes an object's attributes as seen over the wire.
// ETag and LastModified are always assigned by the engine on a successful
// write; callers never set them directly.
type ObjectMetadata struct {
	ContentLength int64
	ETag          string
	ContentType   string
	LastModified  time.Time
	UserMetadata  map[string]string
}

// Range selects a half-open byte range [Start, End) of an object. EndSet
// distinguishes an explicit End of 0 from "End omitted, read to EOF".
type Range struct {
	Start  int64
	End    int64
	EndSet bool
}

// resolvedEnd returns the effective exclusive end for a range given the
// object's total length.
func (r *Range) resolvedEnd(length int64) int64 {
	if r == nil || !r.EndSet {
		return length
	}
	return r.End
}

// PutResult is returned by PutObject and CopyObject.
type PutResult struct {
	ETag         string
	LastModified time.Time
}

// GetResult holds an object's metadata. It has no body field; GetObject
// returns the body as a separate io.ReadCloser.
type GetResult struct {
	Metadata ObjectMetadata
}

// ListObjectsParams configures ListObjects.
type ListObjectsParams struct {
	Prefix            string
	Delimiter         string
	MaxKeys           int
	ContinuationToken string
}

// ObjectSummary is one entry in a ListResult.
type ObjectSummary struct {
	Key          string
	ETag         string
	Size         int64
	LastModified time.Time
}

// ListResult is returned by ListObjects.
type ListResult struct {
	Objects               []ObjectSummary
	CommonPrefixes        []string
	IsTruncated           bool
	NextContinuationToken string
}

// PartInfo describes one stored multipart part.
type PartInfo struct {
	PartNumber   int
	ETag         string
	Size         int64
	LastModified time.Time
}

// PartRef is a client-supplied (part_number, etag) pair used to validate and
// order a CompleteMultipartUpload request.
type PartRef struct {
	PartNumber int
	ETag       string
}

// UploadInfo describes an in-flight multipart upload, for
// ListMultipartUploads.
type UploadInfo struct {
	UploadID    string
	Key         string
	Initiated   time.Time
	ContentType string
}

// CompleteResult is returned by CompleteMultipartUpload.
type CompleteResult struct {
	ETag         string
	LastModified time.Time
	Size         int64
}

// StorageStats is an engine-wide aggregate, exposed by the admin façade.
type StorageStats struct {
	TotalBuckets   uint64
	TotalObjects   uint64
	TotalSizeBytes uint64
}

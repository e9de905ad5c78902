// Package storage provides the Azure Blob Storage gateway engine.
//
// The Azure gateway proxies every bucket/object operation onto a single
// upstream Azure Blob container, namespacing Shoal buckets by key prefix.
// Multipart uploads use Azure's native Block Blob staging primitives
// directly on the final blob name, so no temporary part objects exist:
//
//	UploadPart()              → StageBlock() on the final blob
//	CompleteMultipartUpload() → CommitBlockList() to finalize
//	AbortMultipartUpload()    → no-op; uncommitted blocks expire after 7 days
//
// Credentials are resolved via DefaultAzureCredential (environment, managed
// identity, Azure CLI).
package storage

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/shoalstore/shoal/internal/uid"
)

// AzureBlobAPI defines the subset of the Azure Blob Storage client that the
// gateway engine uses, so tests can substitute a fake.
type AzureBlobAPI interface {
	UploadBlob(ctx context.Context, containerName, blobName string, data []byte, contentType string, metadata map[string]string) error
	DownloadBlob(ctx context.Context, containerName, blobName string, offset, count int64) ([]byte, error)
	DeleteBlob(ctx context.Context, containerName, blobName string) error
	BlobProperties(ctx context.Context, containerName, blobName string) (*BlobProps, error)
	StartCopyFromURL(ctx context.Context, containerName, blobName, sourceURL string) error
	StageBlock(ctx context.Context, containerName, blobName, blockID string, data []byte) error
	CommitBlockList(ctx context.Context, containerName, blobName string, blockIDs []string, contentType string, metadata map[string]string) error
	ListBlobs(ctx context.Context, containerName, prefix string) ([]BlobProps, error)
}

// BlobProps holds the subset of Azure blob properties the gateway needs.
type BlobProps struct {
	Name         string
	Size         int64
	ContentType  string
	Metadata     map[string]string
	LastModified time.Time
}

// AzureGatewayEngine implements Engine by proxying to a single upstream
// Azure Blob container, namespacing Shoal buckets by key prefix.
type AzureGatewayEngine struct {
	Container  string
	AccountURL string
	Prefix     string
	client     AzureBlobAPI
}

// NewAzureGatewayEngine creates an AzureGatewayEngine using
// DefaultAzureCredential, verifying the upstream container is reachable.
func NewAzureGatewayEngine(ctx context.Context, container, accountURL, prefix string) (*AzureGatewayEngine, error) {
	client, err := newRealAzureClient(accountURL)
	if err != nil {
		return nil, fmt.Errorf("creating Azure client: %w", err)
	}
	e := &AzureGatewayEngine{Container: container, AccountURL: accountURL, Prefix: prefix, client: client}
	if _, err := e.client.ListBlobs(ctx, container, prefix); err != nil {
		return nil, fmt.Errorf("cannot access upstream Azure container %q: %w", container, err)
	}
	slog.Info("Azure gateway engine initialized", "container", container, "account", accountURL, "prefix", prefix)
	return e, nil
}

// NewAzureGatewayEngineWithClient creates an AzureGatewayEngine with a
// pre-configured client, for tests.
func NewAzureGatewayEngineWithClient(container, accountURL, prefix string, client AzureBlobAPI) *AzureGatewayEngine {
	return &AzureGatewayEngine{Container: container, AccountURL: accountURL, Prefix: prefix, client: client}
}

func (e *AzureGatewayEngine) bucketPrefix(bucket string) string { return e.Prefix + bucket + "/" }
func (e *AzureGatewayEngine) blobName(bucket, key string) string {
	return e.bucketPrefix(bucket) + key
}
func (e *AzureGatewayEngine) markerName(bucket string) string {
	return e.bucketPrefix(bucket) + ".shoal-bucket"
}

// blockID generates a base64 block ID for a staged block. Block IDs must be
// the same length for every block committed to one blob, so the upload ID
// and part number are both fixed-width before encoding.
func blockID(uploadID string, partNumber int) string {
	return base64.StdEncoding.EncodeToString([]byte(fmt.Sprintf("%s:%05d", uploadID, partNumber)))
}

func computeMD5ETag(data []byte) string {
	h := md5.Sum(data)
	return fmt.Sprintf(`"%x"`, h)
}

func (e *AzureGatewayEngine) CreateBucket(ctx context.Context, name string) error {
	if !validBucketName(name) {
		return ErrInvalidBucketName
	}
	if _, err := e.client.BlobProperties(ctx, e.Container, e.markerName(name)); err == nil {
		return ErrBucketAlreadyExists
	}
	marker := []byte(time.Now().UTC().Format(time.RFC3339Nano))
	return e.client.UploadBlob(ctx, e.Container, e.markerName(name), marker, "application/x-shoal-bucket-marker", nil)
}

func (e *AzureGatewayEngine) DeleteBucket(ctx context.Context, name string) error {
	if _, err := e.client.BlobProperties(ctx, e.Container, e.markerName(name)); err != nil {
		return ErrBucketNotFound
	}
	blobs, err := e.client.ListBlobs(ctx, e.Container, e.bucketPrefix(name))
	if err != nil {
		return fmt.Errorf("listing bucket contents: %w", err)
	}
	for _, b := range blobs {
		if b.Name != e.markerName(name) {
			return ErrBucketNotEmpty
		}
	}
	return e.client.DeleteBlob(ctx, e.Container, e.markerName(name))
}

func (e *AzureGatewayEngine) BucketExists(ctx context.Context, name string) (bool, error) {
	_, err := e.client.BlobProperties(ctx, e.Container, e.markerName(name))
	if err == nil {
		return true, nil
	}
	if isAzureNotFound(err) {
		return false, nil
	}
	return false, err
}

func (e *AzureGatewayEngine) GetBucketInfo(ctx context.Context, name string) (BucketInfo, error) {
	props, err := e.client.BlobProperties(ctx, e.Container, e.markerName(name))
	if err != nil {
		if isAzureNotFound(err) {
			return BucketInfo{}, ErrBucketNotFound
		}
		return BucketInfo{}, err
	}
	return BucketInfo{Name: name, CreationDate: props.LastModified}, nil
}

func (e *AzureGatewayEngine) ListBuckets(ctx context.Context) ([]BucketInfo, error) {
	blobs, err := e.client.ListBlobs(ctx, e.Container, e.Prefix)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var buckets []BucketInfo
	for _, b := range blobs {
		if !strings.HasSuffix(b.Name, "/.shoal-bucket") {
			continue
		}
		rest := strings.TrimPrefix(b.Name, e.Prefix)
		name := strings.TrimSuffix(rest, "/.shoal-bucket")
		if seen[name] {
			continue
		}
		seen[name] = true
		buckets = append(buckets, BucketInfo{Name: name, CreationDate: b.LastModified})
	}
	sort.Slice(buckets, func(i, j int) bool { return buckets[i].Name < buckets[j].Name })
	return buckets, nil
}

func (e *AzureGatewayEngine) PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64, contentType string, userMetadata map[string]string) (PutResult, error) {
	exists, err := e.BucketExists(ctx, bucket)
	if err != nil {
		return PutResult{}, err
	}
	if !exists {
		return PutResult{}, ErrBucketNotFound
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return PutResult{}, fmt.Errorf("reading object data: %w", err)
	}
	etag := computeMD5ETag(data)

	if err := e.client.UploadBlob(ctx, e.Container, e.blobName(bucket, key), data, contentType, userMetadata); err != nil {
		return PutResult{}, fmt.Errorf("uploading to Azure Blob: %w", err)
	}

	return PutResult{ETag: etag, LastModified: time.Now().UTC()}, nil
}

func (e *AzureGatewayEngine) GetObject(ctx context.Context, bucket, key string, rng *Range) (io.ReadCloser, ObjectMetadata, error) {
	props, err := e.client.BlobProperties(ctx, e.Container, e.blobName(bucket, key))
	if err != nil {
		if isAzureNotFound(err) {
			return nil, ObjectMetadata{}, ErrObjectNotFound
		}
		return nil, ObjectMetadata{}, err
	}
	md := ObjectMetadata{ContentLength: props.Size, ContentType: props.ContentType, LastModified: props.LastModified, UserMetadata: props.Metadata}

	var offset, count int64
	if rng != nil {
		end := rng.resolvedEnd(props.Size)
		if rng.Start < 0 || rng.Start >= props.Size || end > props.Size || rng.Start >= end {
			return nil, ObjectMetadata{}, ErrInvalidRange
		}
		offset, count = rng.Start, end-rng.Start
		md.ContentLength = count
	}

	data, err := e.client.DownloadBlob(ctx, e.Container, e.blobName(bucket, key), offset, count)
	if err != nil {
		return nil, ObjectMetadata{}, fmt.Errorf("getting object from Azure Blob: %w", err)
	}
	md.ETag = computeMD5ETag(data)
	return io.NopCloser(bytes.NewReader(data)), md, nil
}

func (e *AzureGatewayEngine) HeadObject(ctx context.Context, bucket, key string) (ObjectMetadata, error) {
	props, err := e.client.BlobProperties(ctx, e.Container, e.blobName(bucket, key))
	if err != nil {
		if isAzureNotFound(err) {
			return ObjectMetadata{}, ErrObjectNotFound
		}
		return ObjectMetadata{}, err
	}
	return ObjectMetadata{
		ContentLength: props.Size,
		ContentType:   props.ContentType,
		LastModified:  props.LastModified,
		UserMetadata:  props.Metadata,
	}, nil
}

func (e *AzureGatewayEngine) DeleteObject(ctx context.Context, bucket, key string) error {
	if _, err := e.client.BlobProperties(ctx, e.Container, e.blobName(bucket, key)); err != nil {
		if isAzureNotFound(err) {
			return ErrObjectNotFound
		}
		return err
	}
	if err := e.client.DeleteBlob(ctx, e.Container, e.blobName(bucket, key)); err != nil {
		return fmt.Errorf("deleting object from Azure Blob: %w", err)
	}
	return nil
}

func (e *AzureGatewayEngine) CopyObject(ctx context.Context, srcBucket, srcKey, dstBucket, dstKey string) (PutResult, error) {
	srcBlobName := e.blobName(srcBucket, srcKey)
	dstBlobName := e.blobName(dstBucket, dstKey)
	sourceURL := fmt.Sprintf("%s/%s/%s", strings.TrimSuffix(e.AccountURL, "/"), e.Container, srcBlobName)

	if err := e.client.StartCopyFromURL(ctx, e.Container, dstBlobName, sourceURL); err != nil {
		if isAzureNotFound(err) {
			return PutResult{}, ErrObjectNotFound
		}
		return PutResult{}, fmt.Errorf("copying object in Azure Blob: %w", err)
	}

	props, err := e.client.BlobProperties(ctx, e.Container, dstBlobName)
	if err != nil {
		return PutResult{}, fmt.Errorf("reading copied object properties: %w", err)
	}
	data, err := e.client.DownloadBlob(ctx, e.Container, dstBlobName, 0, 0)
	if err != nil {
		return PutResult{}, fmt.Errorf("reading copied object for ETag: %w", err)
	}
	return PutResult{ETag: computeMD5ETag(data), LastModified: props.LastModified}, nil
}

func (e *AzureGatewayEngine) ListObjects(ctx context.Context, bucket string, params ListObjectsParams) (ListResult, error) {
	exists, err := e.BucketExists(ctx, bucket)
	if err != nil {
		return ListResult{}, err
	}
	if !exists {
		return ListResult{}, ErrBucketNotFound
	}

	base := e.bucketPrefix(bucket)
	blobs, err := e.client.ListBlobs(ctx, e.Container, base+params.Prefix)
	if err != nil {
		return ListResult{}, fmt.Errorf("listing objects in Azure Blob: %w", err)
	}
	marker := e.markerName(bucket)
	bySummary := make(map[string]ObjectSummary, len(blobs))
	keys := make([]string, 0, len(blobs))
	for _, b := range blobs {
		if b.Name == marker {
			continue
		}
		key := strings.TrimPrefix(b.Name, base)
		keys = append(keys, key)
		bySummary[key] = ObjectSummary{Key: key, ETag: "", Size: b.Size, LastModified: b.LastModified}
	}
	sort.Strings(keys)

	return assembleListResult(keys, params, func(key string) (ObjectSummary, error) {
		return bySummary[key], nil
	}), nil
}

func (e *AzureGatewayEngine) CreateMultipartUpload(ctx context.Context, bucket, key, contentType string, userMetadata map[string]string) (string, error) {
	exists, err := e.BucketExists(ctx, bucket)
	if err != nil {
		return "", err
	}
	if !exists {
		return "", ErrBucketNotFound
	}
	// Azure has no explicit multipart-session registration: staged blocks
	// are scoped to (blob name, block ID), so the upload ID only needs to
	// keep this upload's blocks from colliding with any other concurrent
	// upload to the same key.
	return uid.NewUUID(), nil
}

func (e *AzureGatewayEngine) UploadPart(ctx context.Context, bucket, key, uploadID string, partNumber int, r io.Reader, size int64) (PartInfo, error) {
	if partNumber < 1 || partNumber > 10000 {
		return PartInfo{}, ErrInvalidPart
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return PartInfo{}, fmt.Errorf("reading part data: %w", err)
	}
	etag := computeMD5ETag(data)

	if err := e.client.StageBlock(ctx, e.Container, e.blobName(bucket, key), blockID(uploadID, partNumber), data); err != nil {
		return PartInfo{}, fmt.Errorf("staging block in Azure Blob: %w", err)
	}

	return PartInfo{PartNumber: partNumber, ETag: etag, Size: int64(len(data)), LastModified: time.Now().UTC()}, nil
}

func (e *AzureGatewayEngine) CompleteMultipartUpload(ctx context.Context, bucket, key, uploadID string, parts []PartRef) (CompleteResult, error) {
	for i := 1; i < len(parts); i++ {
		if parts[i].PartNumber <= parts[i-1].PartNumber {
			return CompleteResult{}, ErrInvalidPartOrder
		}
	}

	blockIDs := make([]string, len(parts))
	for i, p := range parts {
		blockIDs[i] = blockID(uploadID, p.PartNumber)
	}

	blobName := e.blobName(bucket, key)
	if err := e.client.CommitBlockList(ctx, e.Container, blobName, blockIDs, "", nil); err != nil {
		return CompleteResult{}, fmt.Errorf("committing block list in Azure Blob: %w", err)
	}

	props, err := e.client.BlobProperties(ctx, e.Container, blobName)
	if err != nil {
		return CompleteResult{}, fmt.Errorf("reading committed blob properties: %w", err)
	}
	data, err := e.client.DownloadBlob(ctx, e.Container, blobName, 0, 0)
	if err != nil {
		return CompleteResult{}, fmt.Errorf("reading assembled object for ETag: %w", err)
	}

	return CompleteResult{ETag: computeMD5ETag(data), LastModified: props.LastModified, Size: props.Size}, nil
}

// AbortMultipartUpload is a no-op: Azure automatically garbage-collects
// blocks that are never committed, typically after 7 days, and staged
// blocks are invisible until CommitBlockList runs.
func (e *AzureGatewayEngine) AbortMultipartUpload(ctx context.Context, bucket, key, uploadID string) error {
	return nil
}

// ListParts cannot be implemented against Azure's staging API: staged,
// uncommitted blocks are only enumerable relative to a specific commit
// attempt (GetBlockList requires the blob to already have at least one
// committed block), so the gateway reports none in flight rather than lie.
func (e *AzureGatewayEngine) ListParts(ctx context.Context, bucket, key, uploadID string) ([]PartInfo, error) {
	return nil, nil
}

// ListMultipartUploads has no backing registry on Azure: see ListParts.
func (e *AzureGatewayEngine) ListMultipartUploads(ctx context.Context, bucket string) ([]UploadInfo, error) {
	return nil, nil
}

func (e *AzureGatewayEngine) Stats(ctx context.Context) (StorageStats, error) {
	buckets, err := e.ListBuckets(ctx)
	if err != nil {
		return StorageStats{}, err
	}
	stats := StorageStats{TotalBuckets: uint64(len(buckets))}
	for _, b := range buckets {
		blobs, err := e.client.ListBlobs(ctx, e.Container, e.bucketPrefix(b.Name))
		if err != nil {
			continue
		}
		marker := e.markerName(b.Name)
		for _, blb := range blobs {
			if blb.Name == marker {
				continue
			}
			stats.TotalObjects++
			stats.TotalSizeBytes += uint64(blb.Size)
		}
	}
	return stats, nil
}

func (e *AzureGatewayEngine) HealthCheck(ctx context.Context) error {
	_, err := e.client.ListBlobs(ctx, e.Container, e.Prefix)
	return err
}

// isAzureNotFound checks if an Azure error is a not-found error.
func isAzureNotFound(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "not found") || strings.Contains(msg, "404") ||
		strings.Contains(msg, "blobnotfound") || strings.Contains(msg, "containernotfound") ||
		strings.Contains(msg, "the specified blob does not exist") ||
		strings.Contains(msg, "the specified container does not exist")
}

var _ Engine = (*AzureGatewayEngine)(nil)

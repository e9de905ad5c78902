// Package storage provides the AWS S3 gateway engine.
//
// The AWS gateway proxies every bucket/object operation onto a single
// upstream S3 bucket, namespacing Shoal buckets by key prefix. Unlike the
// GCP and Azure gateways, multipart uploads pass straight through to S3's
// own native multipart API on the final key, using S3's own upload ID as
// Shoal's: every Engine multipart method already receives
// (bucket, key, uploadID) on each call, so there is nothing to track
// locally beyond that ID.
//
// Key mapping:
//
//	Objects: {prefix}{bucket}/{key}
//	Bucket marker: {prefix}{bucket}/.shoal-bucket
//
// Credentials are resolved via the standard AWS credential chain
// (env vars, ~/.aws/credentials, IAM role, etc.), with optional overrides
// for a custom endpoint, path-style addressing, and static credentials.
package storage

import (
	"bytes"
	"context"
	"crypto/md5"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// S3API defines the subset of the AWS S3 client interface that the gateway
// engine uses, so tests can substitute a mock.
type S3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	CopyObject(ctx context.Context, params *s3.CopyObjectInput, optFns ...func(*s3.Options)) (*s3.CopyObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	HeadBucket(ctx context.Context, params *s3.HeadBucketInput, optFns ...func(*s3.Options)) (*s3.HeadBucketOutput, error)
	CreateMultipartUpload(ctx context.Context, params *s3.CreateMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error)
	UploadPart(ctx context.Context, params *s3.UploadPartInput, optFns ...func(*s3.Options)) (*s3.UploadPartOutput, error)
	CompleteMultipartUpload(ctx context.Context, params *s3.CompleteMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error)
	AbortMultipartUpload(ctx context.Context, params *s3.AbortMultipartUploadInput, optFns ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error)
	ListParts(ctx context.Context, params *s3.ListPartsInput, optFns ...func(*s3.Options)) (*s3.ListPartsOutput, error)
	ListMultipartUploads(ctx context.Context, params *s3.ListMultipartUploadsInput, optFns ...func(*s3.Options)) (*s3.ListMultipartUploadsOutput, error)
	ListObjectsV2(ctx context.Context, params *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// AWSGatewayEngine implements Engine by proxying to a single upstream S3
// bucket, namespacing Shoal buckets by key prefix.
type AWSGatewayEngine struct {
	Bucket string
	Region string
	Prefix string
	client S3API
}

// NewAWSGatewayEngine creates an AWSGatewayEngine configured to proxy to the
// given upstream S3 bucket/region, verifying it is reachable.
func NewAWSGatewayEngine(ctx context.Context, bucket, region, prefix, endpointURL string, usePathStyle bool, accessKeyID, secretAccessKey string) (*AWSGatewayEngine, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	loadOpts = append(loadOpts, awsconfig.WithRegion(region))

	if accessKeyID != "" && secretAccessKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKeyID, secretAccessKey, ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}

	var s3Opts []func(*s3.Options)
	if endpointURL != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) { o.BaseEndpoint = aws.String(endpointURL) })
	}
	if usePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) { o.UsePathStyle = true })
	}

	client := s3.NewFromConfig(cfg, s3Opts...)
	e := &AWSGatewayEngine{Bucket: bucket, Region: region, Prefix: prefix, client: client}

	if _, err := client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(bucket)}); err != nil {
		return nil, fmt.Errorf("cannot access upstream S3 bucket %q: %w", bucket, err)
	}

	slog.Info("AWS gateway engine initialized", "bucket", bucket, "region", region, "prefix", prefix)
	return e, nil
}

// NewAWSGatewayEngineWithClient creates an AWSGatewayEngine with a
// pre-configured S3 client, for tests.
func NewAWSGatewayEngineWithClient(bucket, region, prefix string, client S3API) *AWSGatewayEngine {
	return &AWSGatewayEngine{Bucket: bucket, Region: region, Prefix: prefix, client: client}
}

func (e *AWSGatewayEngine) bucketPrefix(bucket string) string { return e.Prefix + bucket + "/" }
func (e *AWSGatewayEngine) s3Key(bucket, key string) string   { return e.bucketPrefix(bucket) + key }
func (e *AWSGatewayEngine) markerKey(bucket string) string {
	return e.bucketPrefix(bucket) + ".shoal-bucket"
}

func computeS3ETag(data []byte) string {
	h := md5.Sum(data)
	return fmt.Sprintf(`"%x"`, h)
}

func userMetadataFromS3(m map[string]string) map[string]string {
	if len(m) == 0 {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (e *AWSGatewayEngine) CreateBucket(ctx context.Context, name string) error {
	if !validBucketName(name) {
		return ErrInvalidBucketName
	}
	if _, err := e.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(e.Bucket), Key: aws.String(e.markerKey(name))}); err == nil {
		return ErrBucketAlreadyExists
	}
	marker := []byte(time.Now().UTC().Format(time.RFC3339Nano))
	_, err := e.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(e.Bucket),
		Key:    aws.String(e.markerKey(name)),
		Body:   bytes.NewReader(marker),
	})
	if err != nil {
		return fmt.Errorf("writing bucket marker: %w", err)
	}
	return nil
}

func (e *AWSGatewayEngine) DeleteBucket(ctx context.Context, name string) error {
	if _, err := e.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(e.Bucket), Key: aws.String(e.markerKey(name))}); err != nil {
		return ErrBucketNotFound
	}
	listResp, err := e.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{Bucket: aws.String(e.Bucket), Prefix: aws.String(e.bucketPrefix(name))})
	if err != nil {
		return fmt.Errorf("listing bucket contents: %w", err)
	}
	for _, obj := range listResp.Contents {
		if aws.ToString(obj.Key) != e.markerKey(name) {
			return ErrBucketNotEmpty
		}
	}
	_, err = e.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(e.Bucket), Key: aws.String(e.markerKey(name))})
	return err
}

func (e *AWSGatewayEngine) BucketExists(ctx context.Context, name string) (bool, error) {
	_, err := e.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(e.Bucket), Key: aws.String(e.markerKey(name))})
	if err == nil {
		return true, nil
	}
	if isAWSNotFound(err) {
		return false, nil
	}
	return false, err
}

func (e *AWSGatewayEngine) GetBucketInfo(ctx context.Context, name string) (BucketInfo, error) {
	resp, err := e.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(e.Bucket), Key: aws.String(e.markerKey(name))})
	if err != nil {
		if isAWSNotFound(err) {
			return BucketInfo{}, ErrBucketNotFound
		}
		return BucketInfo{}, err
	}
	created := time.Now().UTC()
	if resp.LastModified != nil {
		created = *resp.LastModified
	}
	return BucketInfo{Name: name, CreationDate: created}, nil
}

func (e *AWSGatewayEngine) ListBuckets(ctx context.Context) ([]BucketInfo, error) {
	resp, err := e.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{Bucket: aws.String(e.Bucket), Prefix: aws.String(e.Prefix), Delimiter: aws.String("/")})
	if err != nil {
		return nil, err
	}
	buckets := make([]BucketInfo, 0, len(resp.CommonPrefixes))
	for _, p := range resp.CommonPrefixes {
		name := strings.TrimSuffix(strings.TrimPrefix(aws.ToString(p.Prefix), e.Prefix), "/")
		info, err := e.GetBucketInfo(ctx, name)
		if err != nil {
			continue
		}
		buckets = append(buckets, info)
	}
	sort.Slice(buckets, func(i, j int) bool { return buckets[i].Name < buckets[j].Name })
	return buckets, nil
}

func (e *AWSGatewayEngine) PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64, contentType string, userMetadata map[string]string) (PutResult, error) {
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
	etag := computeS3ETag(data)

	input := &s3.PutObjectInput{
		Bucket:        aws.String(e.Bucket),
		Key:           aws.String(e.s3Key(bucket, key)),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if len(userMetadata) > 0 {
		input.Metadata = userMetadata
	}

	if _, err := e.client.PutObject(ctx, input); err != nil {
		return PutResult{}, fmt.Errorf("uploading to S3: %w", err)
	}

	return PutResult{ETag: etag, LastModified: time.Now().UTC()}, nil
}

func (e *AWSGatewayEngine) GetObject(ctx context.Context, bucket, key string, rng *Range) (io.ReadCloser, ObjectMetadata, error) {
	input := &s3.GetObjectInput{Bucket: aws.String(e.Bucket), Key: aws.String(e.s3Key(bucket, key))}
	if rng != nil {
		head, err := e.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(e.Bucket), Key: aws.String(e.s3Key(bucket, key))})
		if err != nil {
			if isAWSNotFound(err) {
				return nil, ObjectMetadata{}, ErrObjectNotFound
			}
			return nil, ObjectMetadata{}, err
		}
		length := aws.ToInt64(head.ContentLength)
		end := rng.resolvedEnd(length)
		if rng.Start < 0 || rng.Start >= length || end > length || rng.Start >= end {
			return nil, ObjectMetadata{}, ErrInvalidRange
		}
		input.Range = aws.String(fmt.Sprintf("bytes=%d-%d", rng.Start, end-1))
	}

	resp, err := e.client.GetObject(ctx, input)
	if err != nil {
		if isAWSNotFound(err) {
			return nil, ObjectMetadata{}, ErrObjectNotFound
		}
		return nil, ObjectMetadata{}, fmt.Errorf("getting object from S3: %w", err)
	}

	md := ObjectMetadata{
		ContentLength: aws.ToInt64(resp.ContentLength),
		ETag:          aws.ToString(resp.ETag),
		ContentType:   aws.ToString(resp.ContentType),
		UserMetadata:  userMetadataFromS3(resp.Metadata),
	}
	if resp.LastModified != nil {
		md.LastModified = *resp.LastModified
	}
	return resp.Body, md, nil
}

func (e *AWSGatewayEngine) HeadObject(ctx context.Context, bucket, key string) (ObjectMetadata, error) {
	resp, err := e.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(e.Bucket), Key: aws.String(e.s3Key(bucket, key))})
	if err != nil {
		if isAWSNotFound(err) {
			return ObjectMetadata{}, ErrObjectNotFound
		}
		return ObjectMetadata{}, fmt.Errorf("checking object in S3: %w", err)
	}
	md := ObjectMetadata{
		ContentLength: aws.ToInt64(resp.ContentLength),
		ETag:          aws.ToString(resp.ETag),
		ContentType:   aws.ToString(resp.ContentType),
		UserMetadata:  userMetadataFromS3(resp.Metadata),
	}
	if resp.LastModified != nil {
		md.LastModified = *resp.LastModified
	}
	return md, nil
}

func (e *AWSGatewayEngine) DeleteObject(ctx context.Context, bucket, key string) error {
	if _, err := e.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(e.Bucket), Key: aws.String(e.s3Key(bucket, key))}); err != nil {
		if isAWSNotFound(err) {
			return ErrObjectNotFound
		}
		return err
	}
	_, err := e.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(e.Bucket), Key: aws.String(e.s3Key(bucket, key))})
	if err != nil {
		return fmt.Errorf("deleting object from S3: %w", err)
	}
	return nil
}

func (e *AWSGatewayEngine) CopyObject(ctx context.Context, srcBucket, srcKey, dstBucket, dstKey string) (PutResult, error) {
	copySource := e.Bucket + "/" + e.s3Key(srcBucket, srcKey)
	resp, err := e.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(e.Bucket),
		Key:        aws.String(e.s3Key(dstBucket, dstKey)),
		CopySource: aws.String(copySource),
	})
	if err != nil {
		if isAWSNotFound(err) {
			return PutResult{}, ErrObjectNotFound
		}
		return PutResult{}, fmt.Errorf("copying object in S3: %w", err)
	}
	var etag string
	var lastModified time.Time
	if resp.CopyObjectResult != nil {
		etag = aws.ToString(resp.CopyObjectResult.ETag)
		if resp.CopyObjectResult.LastModified != nil {
			lastModified = *resp.CopyObjectResult.LastModified
		}
	}
	return PutResult{ETag: etag, LastModified: lastModified}, nil
}

func (e *AWSGatewayEngine) ListObjects(ctx context.Context, bucket string, params ListObjectsParams) (ListResult, error) {
	exists, err := e.BucketExists(ctx, bucket)
	if err != nil {
		return ListResult{}, err
	}
	if !exists {
		return ListResult{}, ErrBucketNotFound
	}

	base := e.bucketPrefix(bucket)
	resp, err := e.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{Bucket: aws.String(e.Bucket), Prefix: aws.String(base + params.Prefix)})
	if err != nil {
		return ListResult{}, fmt.Errorf("listing objects in S3: %w", err)
	}

	marker := e.markerKey(bucket)
	bySummary := make(map[string]ObjectSummary, len(resp.Contents))
	keys := make([]string, 0, len(resp.Contents))
	for _, obj := range resp.Contents {
		name := aws.ToString(obj.Key)
		if name == marker {
			continue
		}
		key := strings.TrimPrefix(name, base)
		keys = append(keys, key)
		var lastModified time.Time
		if obj.LastModified != nil {
			lastModified = *obj.LastModified
		}
		bySummary[key] = ObjectSummary{Key: key, ETag: aws.ToString(obj.ETag), Size: aws.ToInt64(obj.Size), LastModified: lastModified}
	}
	sort.Strings(keys)

	return assembleListResult(keys, params, func(key string) (ObjectSummary, error) {
		return bySummary[key], nil
	}), nil
}

func (e *AWSGatewayEngine) CreateMultipartUpload(ctx context.Context, bucket, key, contentType string, userMetadata map[string]string) (string, error) {
	exists, err := e.BucketExists(ctx, bucket)
	if err != nil {
		return "", err
	}
	if !exists {
		return "", ErrBucketNotFound
	}

	input := &s3.CreateMultipartUploadInput{Bucket: aws.String(e.Bucket), Key: aws.String(e.s3Key(bucket, key))}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if len(userMetadata) > 0 {
		input.Metadata = userMetadata
	}
	resp, err := e.client.CreateMultipartUpload(ctx, input)
	if err != nil {
		return "", fmt.Errorf("creating S3 multipart upload: %w", err)
	}
	// AWS's own upload ID is used directly as Shoal's: every Engine
	// multipart method receives (bucket, key, uploadID), so S3 itself is
	// the only bookkeeping needed for an in-flight upload.
	return aws.ToString(resp.UploadId), nil
}

func (e *AWSGatewayEngine) UploadPart(ctx context.Context, bucket, key, uploadID string, partNumber int, r io.Reader, size int64) (PartInfo, error) {
	if partNumber < 1 || partNumber > 10000 {
		return PartInfo{}, ErrInvalidPart
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return PartInfo{}, fmt.Errorf("reading part data: %w", err)
	}

	resp, err := e.client.UploadPart(ctx, &s3.UploadPartInput{
		Bucket:     aws.String(e.Bucket),
		Key:        aws.String(e.s3Key(bucket, key)),
		UploadId:   aws.String(uploadID),
		PartNumber: aws.Int32(int32(partNumber)),
		Body:       bytes.NewReader(data),
	})
	if err != nil {
		if isAWSNotFound(err) {
			return PartInfo{}, ErrUploadNotFound
		}
		return PartInfo{}, fmt.Errorf("uploading part to S3: %w", err)
	}

	return PartInfo{PartNumber: partNumber, ETag: aws.ToString(resp.ETag), Size: int64(len(data)), LastModified: time.Now().UTC()}, nil
}

// CompleteMultipartUpload passes parts straight through to S3's own
// CompleteMultipartUpload. The resulting ETag follows AWS's composite
// multipart format rather than the plain-MD5-of-concatenation rule the
// local and memory engines use, since S3 itself computes it.
func (e *AWSGatewayEngine) CompleteMultipartUpload(ctx context.Context, bucket, key, uploadID string, parts []PartRef) (CompleteResult, error) {
	for i := 1; i < len(parts); i++ {
		if parts[i].PartNumber <= parts[i-1].PartNumber {
			return CompleteResult{}, ErrInvalidPartOrder
		}
	}

	completed := make([]types.CompletedPart, len(parts))
	for i, p := range parts {
		completed[i] = types.CompletedPart{ETag: aws.String(p.ETag), PartNumber: aws.Int32(int32(p.PartNumber))}
	}

	resp, err := e.client.CompleteMultipartUpload(ctx, &s3.CompleteMultipartUploadInput{
		Bucket:          aws.String(e.Bucket),
		Key:             aws.String(e.s3Key(bucket, key)),
		UploadId:        aws.String(uploadID),
		MultipartUpload: &types.CompletedMultipartUpload{Parts: completed},
	})
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && apiErr.ErrorCode() == "InvalidPart" {
			return CompleteResult{}, ErrInvalidPart
		}
		if isAWSNotFound(err) {
			return CompleteResult{}, ErrUploadNotFound
		}
		return CompleteResult{}, fmt.Errorf("completing S3 multipart upload: %w", err)
	}

	var size int64
	headResp, headErr := e.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(e.Bucket), Key: aws.String(e.s3Key(bucket, key))})
	lastModified := time.Now().UTC()
	if headErr == nil {
		size = aws.ToInt64(headResp.ContentLength)
		if headResp.LastModified != nil {
			lastModified = *headResp.LastModified
		}
	}

	return CompleteResult{ETag: aws.ToString(resp.ETag), LastModified: lastModified, Size: size}, nil
}

func (e *AWSGatewayEngine) AbortMultipartUpload(ctx context.Context, bucket, key, uploadID string) error {
	_, err := e.client.AbortMultipartUpload(ctx, &s3.AbortMultipartUploadInput{
		Bucket:   aws.String(e.Bucket),
		Key:      aws.String(e.s3Key(bucket, key)),
		UploadId: aws.String(uploadID),
	})
	if err != nil && !isAWSNotFound(err) {
		return fmt.Errorf("aborting S3 multipart upload: %w", err)
	}
	return nil
}

func (e *AWSGatewayEngine) ListParts(ctx context.Context, bucket, key, uploadID string) ([]PartInfo, error) {
	resp, err := e.client.ListParts(ctx, &s3.ListPartsInput{
		Bucket:   aws.String(e.Bucket),
		Key:      aws.String(e.s3Key(bucket, key)),
		UploadId: aws.String(uploadID),
	})
	if err != nil {
		if isAWSNotFound(err) {
			return nil, ErrUploadNotFound
		}
		return nil, fmt.Errorf("listing S3 multipart parts: %w", err)
	}
	parts := make([]PartInfo, 0, len(resp.Parts))
	for _, p := range resp.Parts {
		var lastModified time.Time
		if p.LastModified != nil {
			lastModified = *p.LastModified
		}
		parts = append(parts, PartInfo{PartNumber: int(aws.ToInt32(p.PartNumber)), ETag: aws.ToString(p.ETag), Size: aws.ToInt64(p.Size), LastModified: lastModified})
	}
	return parts, nil
}

func (e *AWSGatewayEngine) ListMultipartUploads(ctx context.Context, bucket string) ([]UploadInfo, error) {
	base := e.bucketPrefix(bucket)
	resp, err := e.client.ListMultipartUploads(ctx, &s3.ListMultipartUploadsInput{Bucket: aws.String(e.Bucket), Prefix: aws.String(base)})
	if err != nil {
		return nil, fmt.Errorf("listing S3 multipart uploads: %w", err)
	}
	uploads := make([]UploadInfo, 0, len(resp.Uploads))
	for _, u := range resp.Uploads {
		var initiated time.Time
		if u.Initiated != nil {
			initiated = *u.Initiated
		}
		uploads = append(uploads, UploadInfo{
			Key:       strings.TrimPrefix(aws.ToString(u.Key), base),
			UploadID:  aws.ToString(u.UploadId),
			Initiated: initiated,
		})
	}
	sort.Slice(uploads, func(i, j int) bool {
		if uploads[i].Key != uploads[j].Key {
			return uploads[i].Key < uploads[j].Key
		}
		return uploads[i].UploadID < uploads[j].UploadID
	})
	return uploads, nil
}

// Stats paginates the entire upstream bucket to count objects and sum
// sizes; S3 has no cheap aggregate stats endpoint, so this is a best-effort
// accounting suitable for the admin status page, not a hot path.
func (e *AWSGatewayEngine) Stats(ctx context.Context) (StorageStats, error) {
	buckets, err := e.ListBuckets(ctx)
	if err != nil {
		return StorageStats{}, err
	}
	stats := StorageStats{TotalBuckets: uint64(len(buckets))}
	for _, b := range buckets {
		var token *string
		for {
			resp, err := e.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
				Bucket:            aws.String(e.Bucket),
				Prefix:            aws.String(e.bucketPrefix(b.Name)),
				ContinuationToken: token,
			})
			if err != nil {
				break
			}
			marker := e.markerKey(b.Name)
			for _, obj := range resp.Contents {
				if aws.ToString(obj.Key) == marker {
					continue
				}
				stats.TotalObjects++
				stats.TotalSizeBytes += uint64(aws.ToInt64(obj.Size))
			}
			if !aws.ToBool(resp.IsTruncated) {
				break
			}
			token = resp.NextContinuationToken
		}
	}
	return stats, nil
}

func (e *AWSGatewayEngine) HealthCheck(ctx context.Context) error {
	_, err := e.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(e.Bucket)})
	return err
}

// isAWSNotFound checks if an AWS error is a 404/NoSuchKey/NotFound error.
func isAWSNotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		if code == "NoSuchKey" || code == "NotFound" || code == "404" || code == "NoSuchBucket" || code == "NoSuchUpload" {
			return true
		}
	}
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &noSuchKey) {
		return true
	}
	var respErr interface{ HTTPStatusCode() int }
	if errors.As(err, &respErr) && respErr.HTTPStatusCode() == 404 {
		return true
	}
	return false
}

var _ Engine = (*AWSGatewayEngine)(nil)

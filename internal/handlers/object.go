// Package handlers implements HTTP request handlers for S3-compatible API operations.
package handlers

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	s3err "github.com/shoalstore/shoal/internal/errors"
	"github.com/shoalstore/shoal/internal/storage"
	"github.com/shoalstore/shoal/internal/xmlutil"
)

// ObjectHandler contains handlers for S3 object-level operations.
type ObjectHandler struct {
	engine       storage.Engine
	ownerID      string
	ownerDisplay string
}

// NewObjectHandler creates a new ObjectHandler with the given dependencies.
func NewObjectHandler(engine storage.Engine, ownerID, ownerDisplay string) *ObjectHandler {
	return &ObjectHandler{
		engine:       engine,
		ownerID:      ownerID,
		ownerDisplay: ownerDisplay,
	}
}

// PutObject handles PUT /{bucket}/{object} and stores an object in the
// specified bucket.
func (h *ObjectHandler) PutObject(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	bucketName := extractBucketName(r)
	key := extractObjectKey(r)

	if key == "" {
		xmlutil.WriteErrorResponse(w, r, s3err.ErrInvalidArgument)
		return
	}
	if len(key) > 1024 {
		xmlutil.WriteErrorResponse(w, r, s3err.ErrKeyTooLongError)
		return
	}

	contentType := r.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	userMeta := extractUserMetadata(r)

	result, err := h.engine.PutObject(ctx, bucketName, key, r.Body, r.ContentLength, contentType, userMeta)
	switch {
	case err == nil:
		w.Header().Set("ETag", result.ETag)
		w.WriteHeader(http.StatusOK)
	case errors.Is(err, storage.ErrBucketNotFound):
		xmlutil.WriteErrorResponse(w, r, s3err.ErrNoSuchBucket)
	default:
		slog.Error("PutObject error", "bucket", bucketName, "key", key, "error", err)
		xmlutil.WriteErrorResponse(w, r, s3err.ErrInternalError)
	}
}

// GetObject handles GET /{bucket}/{object} and retrieves the object data
// and metadata. Supports range requests (Range header) and conditional
// requests (If-Match, If-None-Match, If-Modified-Since, If-Unmodified-Since).
func (h *ObjectHandler) GetObject(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	bucketName := extractBucketName(r)
	key := extractObjectKey(r)

	// HeadObject first to resolve size/etag for conditional and range
	// evaluation before opening the body.
	head, err := h.engine.HeadObject(ctx, bucketName, key)
	if err != nil {
		writeObjectError(w, r, err)
		return
	}

	if statusCode, skip := checkConditionalHeaders(r, head.ETag, head.LastModified); skip {
		w.Header().Set("ETag", head.ETag)
		w.Header().Set("Last-Modified", xmlutil.FormatTimeHTTP(head.LastModified))
		if statusCode == http.StatusNotModified {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		xmlutil.WriteErrorResponse(w, r, s3err.ErrPreconditionFailed)
		return
	}

	var rng *storage.Range
	rangeHeader := r.Header.Get("Range")
	if rangeHeader != "" {
		parsed, rangeErr := parseRange(rangeHeader, head.ContentLength)
		if rangeErr != nil {
			w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", head.ContentLength))
			xmlutil.WriteErrorResponse(w, r, s3err.ErrInvalidRange)
			return
		}
		rng = parsed
	}

	reader, md, err := h.engine.GetObject(ctx, bucketName, key, rng)
	if err != nil {
		writeObjectError(w, r, err)
		return
	}
	defer reader.Close()

	setObjectResponseHeaders(w, md)
	applyResponseOverrides(w, r)

	if rng != nil {
		end := head.ContentLength
		if rng.EndSet {
			end = rng.End
		}
		end--
		w.Header().Set("Content-Length", strconv.FormatInt(md.ContentLength, 10))
		w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", rng.Start, end, head.ContentLength))
		w.WriteHeader(http.StatusPartialContent)
		io.Copy(w, reader)
		return
	}

	w.WriteHeader(http.StatusOK)
	io.Copy(w, reader)
}

// HeadObject handles HEAD /{bucket}/{object} and returns the object metadata
// without the body.
func (h *ObjectHandler) HeadObject(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	bucketName := extractBucketName(r)
	key := extractObjectKey(r)

	md, err := h.engine.HeadObject(ctx, bucketName, key)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrBucketNotFound), errors.Is(err, storage.ErrObjectNotFound):
			w.WriteHeader(http.StatusNotFound)
		default:
			slog.Error("HeadObject error", "bucket", bucketName, "key", key, "error", err)
			w.WriteHeader(http.StatusInternalServerError)
		}
		return
	}

	if statusCode, skip := checkConditionalHeaders(r, md.ETag, md.LastModified); skip {
		w.Header().Set("ETag", md.ETag)
		w.Header().Set("Last-Modified", xmlutil.FormatTimeHTTP(md.LastModified))
		w.WriteHeader(statusCode)
		return
	}

	setObjectResponseHeaders(w, md)
	w.WriteHeader(http.StatusOK)
}

// DeleteObject handles DELETE /{bucket}/{object} and removes the specified
// object. Idempotent: deleting a non-existent object returns 204.
func (h *ObjectHandler) DeleteObject(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	bucketName := extractBucketName(r)
	key := extractObjectKey(r)

	err := h.engine.DeleteObject(ctx, bucketName, key)
	if err != nil && !errors.Is(err, storage.ErrObjectNotFound) {
		if errors.Is(err, storage.ErrBucketNotFound) {
			xmlutil.WriteErrorResponse(w, r, s3err.ErrNoSuchBucket)
			return
		}
		slog.Error("DeleteObject error", "bucket", bucketName, "key", key, "error", err)
		xmlutil.WriteErrorResponse(w, r, s3err.ErrInternalError)
		return
	}

	// S3 always returns 204 for DeleteObject, even if the key didn't exist.
	w.WriteHeader(http.StatusNoContent)
}

// DeleteObjects handles POST /{bucket}?delete and performs a multi-object
// delete operation.
func (h *ObjectHandler) DeleteObjects(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	bucketName := extractBucketName(r)

	deleteReq, err := parseDeleteRequest(r.Body)
	if err != nil {
		xmlutil.WriteErrorResponse(w, r, s3err.ErrMalformedXML)
		return
	}

	result := &xmlutil.DeleteResult{}

	for _, obj := range deleteReq.Objects {
		if err := h.engine.DeleteObject(ctx, bucketName, obj.Key); err != nil && !errors.Is(err, storage.ErrObjectNotFound) {
			slog.Error("DeleteObjects error", "bucket", bucketName, "key", obj.Key, "error", err)
			result.Errors = append(result.Errors, xmlutil.DeleteError{
				Key:     obj.Key,
				Code:    "InternalError",
				Message: "We encountered an internal error. Please try again.",
			})
			continue
		}
		if !deleteReq.Quiet {
			result.Deleted = append(result.Deleted, xmlutil.DeletedItem{Key: obj.Key})
		}
	}

	xmlutil.RenderDeleteResult(w, result)
}

// CopyObject handles PUT /{bucket}/{object} with an X-Amz-Copy-Source header,
// copying an object from one location to another.
func (h *ObjectHandler) CopyObject(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	dstBucket := extractBucketName(r)
	dstKey := extractObjectKey(r)

	if dstKey == "" {
		xmlutil.WriteErrorResponse(w, r, s3err.ErrInvalidArgument)
		return
	}

	copySource := r.Header.Get("X-Amz-Copy-Source")
	srcBucket, srcKey, ok := parseCopySource(copySource)
	if !ok {
		xmlutil.WriteErrorResponse(w, r, s3err.ErrInvalidArgument)
		return
	}

	srcMeta, err := h.engine.HeadObject(ctx, srcBucket, srcKey)
	if err != nil {
		writeObjectError(w, r, err)
		return
	}

	if proceed, condErr := checkCopySourceConditionals(r, srcMeta.ETag, srcMeta.LastModified); !proceed {
		xmlutil.WriteErrorResponse(w, r, condErr)
		return
	}

	result, err := h.engine.CopyObject(ctx, srcBucket, srcKey, dstBucket, dstKey)
	if err != nil {
		writeObjectError(w, r, err)
		return
	}

	// x-amz-metadata-directive: REPLACE overwrites content type and user
	// metadata on the destination with the request's own headers via a
	// follow-up PutObject; COPY (default) keeps what CopyObject already
	// duplicated from the source.
	directive := strings.ToUpper(r.Header.Get("x-amz-metadata-directive"))
	if directive == "REPLACE" {
		contentType := r.Header.Get("Content-Type")
		if contentType == "" {
			contentType = srcMeta.ContentType
		}
		userMeta := extractUserMetadata(r)

		reader, _, getErr := h.engine.GetObject(ctx, dstBucket, dstKey, nil)
		if getErr != nil {
			writeObjectError(w, r, getErr)
			return
		}
		putResult, putErr := h.engine.PutObject(ctx, dstBucket, dstKey, reader, srcMeta.ContentLength, contentType, userMeta)
		reader.Close()
		if putErr != nil {
			slog.Error("CopyObject REPLACE error", "bucket", dstBucket, "key", dstKey, "error", putErr)
			xmlutil.WriteErrorResponse(w, r, s3err.ErrInternalError)
			return
		}
		result = putResult
	}

	xmlutil.RenderCopyObject(w, &xmlutil.CopyObjectResult{
		LastModified: xmlutil.FormatTimeS3(result.LastModified),
		ETag:         result.ETag,
	})
}

// ListObjectsV2 handles GET /{bucket}?list-type=2 and returns a listing of
// objects in the bucket using the V2 API format.
func (h *ObjectHandler) ListObjectsV2(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	bucketName := extractBucketName(r)
	q := r.URL.Query()

	prefix := q.Get("prefix")
	delimiter := q.Get("delimiter")
	startAfter := q.Get("start-after")
	continuationToken := q.Get("continuation-token")
	encodingType := q.Get("encoding-type")

	maxKeys := 1000
	if mk := q.Get("max-keys"); mk != "" {
		if parsed, err := strconv.Atoi(mk); err == nil && parsed >= 0 {
			maxKeys = parsed
		}
	}

	token := continuationToken
	if token == "" {
		token = startAfter
	}

	listResult, err := h.engine.ListObjects(ctx, bucketName, storage.ListObjectsParams{
		Prefix:            prefix,
		Delimiter:         delimiter,
		MaxKeys:           maxKeys,
		ContinuationToken: token,
	})
	if err != nil {
		writeObjectError(w, r, err)
		return
	}

	result := &xmlutil.ListBucketV2Result{
		Name:         bucketName,
		Prefix:       prefix,
		Delimiter:    delimiter,
		MaxKeys:      maxKeys,
		KeyCount:     len(listResult.Objects),
		IsTruncated:  listResult.IsTruncated,
		EncodingType: encodingType,
		StartAfter:   startAfter,
	}
	if continuationToken != "" {
		result.ContinuationToken = continuationToken
	}
	if listResult.IsTruncated {
		result.NextContinuationToken = listResult.NextContinuationToken
	}
	for _, obj := range listResult.Objects {
		result.Contents = append(result.Contents, xmlutil.Object{
			Key:          xmlutil.EncodeKeyURL(obj.Key, encodingType),
			LastModified: xmlutil.FormatTimeS3(obj.LastModified),
			ETag:         obj.ETag,
			Size:         obj.Size,
			StorageClass: "STANDARD",
		})
	}
	for _, cp := range listResult.CommonPrefixes {
		result.CommonPrefixes = append(result.CommonPrefixes, xmlutil.CommonPrefix{Prefix: cp})
	}

	xmlutil.RenderListObjectsV2(w, result)
}

// ListObjects handles GET /{bucket} and returns a listing of objects in the
// bucket using the V1 API format.
func (h *ObjectHandler) ListObjects(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	bucketName := extractBucketName(r)
	q := r.URL.Query()

	prefix := q.Get("prefix")
	delimiter := q.Get("delimiter")
	marker := q.Get("marker")
	encodingType := q.Get("encoding-type")

	maxKeys := 1000
	if mk := q.Get("max-keys"); mk != "" {
		if parsed, err := strconv.Atoi(mk); err == nil && parsed >= 0 {
			maxKeys = parsed
		}
	}

	listResult, err := h.engine.ListObjects(ctx, bucketName, storage.ListObjectsParams{
		Prefix:            prefix,
		Delimiter:         delimiter,
		MaxKeys:           maxKeys,
		ContinuationToken: marker,
	})
	if err != nil {
		writeObjectError(w, r, err)
		return
	}

	result := &xmlutil.ListBucketResult{
		Name:         bucketName,
		Prefix:       prefix,
		Marker:       marker,
		Delimiter:    delimiter,
		MaxKeys:      maxKeys,
		IsTruncated:  listResult.IsTruncated,
		EncodingType: encodingType,
	}
	if listResult.IsTruncated {
		result.NextMarker = listResult.NextContinuationToken
	}
	for _, obj := range listResult.Objects {
		result.Contents = append(result.Contents, xmlutil.Object{
			Key:          xmlutil.EncodeKeyURL(obj.Key, encodingType),
			LastModified: xmlutil.FormatTimeS3(obj.LastModified),
			ETag:         obj.ETag,
			Size:         obj.Size,
			StorageClass: "STANDARD",
		})
	}
	for _, cp := range listResult.CommonPrefixes {
		result.CommonPrefixes = append(result.CommonPrefixes, xmlutil.CommonPrefix{Prefix: cp})
	}

	xmlutil.RenderListObjects(w, result)
}

// extractObjectKey extracts the object key from the request URL path.
// The key is everything after the bucket name in the path.
func extractObjectKey(r *http.Request) string {
	path := r.URL.Path
	if len(path) > 0 && path[0] == '/' {
		path = path[1:]
	}
	idx := strings.IndexByte(path, '/')
	if idx < 0 {
		return ""
	}
	return path[idx+1:]
}

// writeObjectError maps a storage engine error to the matching S3 XML
// error response.
func writeObjectError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, storage.ErrBucketNotFound):
		xmlutil.WriteErrorResponse(w, r, s3err.ErrNoSuchBucket)
	case errors.Is(err, storage.ErrObjectNotFound):
		xmlutil.WriteErrorResponse(w, r, s3err.ErrNoSuchKey)
	case errors.Is(err, storage.ErrInvalidRange):
		xmlutil.WriteErrorResponse(w, r, s3err.ErrInvalidRange)
	default:
		slog.Error("object handler error", "error", err)
		xmlutil.WriteErrorResponse(w, r, s3err.ErrInternalError)
	}
}

package handlers

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	s3err "github.com/shoalstore/shoal/internal/errors"
	"github.com/shoalstore/shoal/internal/storage"
	"github.com/shoalstore/shoal/internal/xmlutil"
)

// MultipartHandler contains handlers for S3 multipart upload operations.
type MultipartHandler struct {
	engine        storage.Engine
	ownerID       string
	ownerDisplay  string
	maxObjectSize int64
}

// NewMultipartHandler creates a new MultipartHandler with the given dependencies.
func NewMultipartHandler(engine storage.Engine, ownerID, ownerDisplay string, maxObjectSize int64) *MultipartHandler {
	return &MultipartHandler{
		engine:        engine,
		ownerID:       ownerID,
		ownerDisplay:  ownerDisplay,
		maxObjectSize: maxObjectSize,
	}
}

// CreateMultipartUpload handles POST /{bucket}/{object}?uploads and initiates
// a new multipart upload, returning an upload ID.
func (h *MultipartHandler) CreateMultipartUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	bucketName := extractBucketName(r)
	key := extractObjectKey(r)

	if key == "" {
		xmlutil.WriteErrorResponse(w, r, s3err.ErrInvalidArgument)
		return
	}

	contentType := r.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	userMeta := extractUserMetadata(r)

	uploadID, err := h.engine.CreateMultipartUpload(ctx, bucketName, key, contentType, userMeta)
	if err != nil {
		if errors.Is(err, storage.ErrBucketNotFound) {
			xmlutil.WriteErrorResponse(w, r, s3err.ErrNoSuchBucket)
			return
		}
		slog.Error("CreateMultipartUpload error", "bucket", bucketName, "key", key, "error", err)
		xmlutil.WriteErrorResponse(w, r, s3err.ErrInternalError)
		return
	}

	xmlutil.RenderInitiateMultipartUpload(w, &xmlutil.InitiateMultipartUploadResult{
		Bucket:   bucketName,
		Key:      key,
		UploadID: uploadID,
	})
}

// UploadPart handles PUT /{bucket}/{object}?partNumber=N&uploadId=ID and
// uploads a single part of a multipart upload.
func (h *MultipartHandler) UploadPart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	bucketName := extractBucketName(r)
	key := extractObjectKey(r)
	q := r.URL.Query()

	if copySource := r.Header.Get("X-Amz-Copy-Source"); copySource != "" {
		h.uploadPartCopy(w, r, bucketName, key, copySource, q)
		return
	}

	uploadID := q.Get("uploadId")
	if uploadID == "" {
		xmlutil.WriteErrorResponse(w, r, s3err.ErrInvalidArgument)
		return
	}

	partNumber, err := strconv.Atoi(q.Get("partNumber"))
	if err != nil || partNumber < 1 || partNumber > 10000 {
		xmlutil.WriteErrorResponse(w, r, s3err.ErrInvalidArgument)
		return
	}

	if h.maxObjectSize > 0 && r.ContentLength > 0 && r.ContentLength > h.maxObjectSize {
		xmlutil.WriteErrorResponse(w, r, s3err.ErrEntityTooLarge)
		return
	}

	part, err := h.engine.UploadPart(ctx, bucketName, key, uploadID, partNumber, r.Body, r.ContentLength)
	if err != nil {
		writeMultipartError(w, r, err)
		return
	}

	w.Header().Set("ETag", part.ETag)
	w.WriteHeader(http.StatusOK)
}

// uploadPartCopy handles PUT /{bucket}/{object}?partNumber=N&uploadId=ID with
// an X-Amz-Copy-Source header, copying data from an existing object into a
// part. The engine has no copy-into-part primitive, so the source is read
// (optionally range-limited) and streamed straight into UploadPart.
func (h *MultipartHandler) uploadPartCopy(w http.ResponseWriter, r *http.Request, bucketName, key, copySource string, q map[string][]string) {
	ctx := r.Context()

	uploadID := getQueryValue(q, "uploadId")
	if uploadID == "" {
		xmlutil.WriteErrorResponse(w, r, s3err.ErrInvalidArgument)
		return
	}

	partNumber, err := strconv.Atoi(getQueryValue(q, "partNumber"))
	if err != nil || partNumber < 1 || partNumber > 10000 {
		xmlutil.WriteErrorResponse(w, r, s3err.ErrInvalidArgument)
		return
	}

	srcBucket, srcKey, ok := parseCopySource(copySource)
	if !ok {
		xmlutil.WriteErrorResponse(w, r, s3err.ErrInvalidArgument)
		return
	}

	srcMeta, err := h.engine.HeadObject(ctx, srcBucket, srcKey)
	if err != nil {
		writeMultipartError(w, r, err)
		return
	}

	var rng *storage.Range
	copyRange := r.Header.Get("X-Amz-Copy-Source-Range")
	if copyRange != "" {
		parsed, rangeErr := parseRange(copyRange, srcMeta.ContentLength)
		if rangeErr != nil {
			xmlutil.WriteErrorResponse(w, r, s3err.ErrInvalidRange)
			return
		}
		rng = parsed
	}

	reader, srcData, err := h.engine.GetObject(ctx, srcBucket, srcKey, rng)
	if err != nil {
		writeMultipartError(w, r, err)
		return
	}
	defer reader.Close()

	var body io.Reader = reader
	size := srcData.ContentLength

	part, err := h.engine.UploadPart(ctx, bucketName, key, uploadID, partNumber, body, size)
	if err != nil {
		writeMultipartError(w, r, err)
		return
	}

	xmlutil.RenderCopyPartResult(w, &xmlutil.CopyPartResult{
		ETag:         part.ETag,
		LastModified: xmlutil.FormatTimeS3(part.LastModified),
	})
}

// CompleteMultipartUpload handles POST /{bucket}/{object}?uploadId=ID and
// assembles previously uploaded parts into a complete object.
func (h *MultipartHandler) CompleteMultipartUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	bucketName := extractBucketName(r)
	key := extractObjectKey(r)
	uploadID := r.URL.Query().Get("uploadId")

	if uploadID == "" {
		xmlutil.WriteErrorResponse(w, r, s3err.ErrInvalidArgument)
		return
	}

	parts, err := parseCompleteMultipartXML(r.Body)
	if err != nil {
		xmlutil.WriteErrorResponse(w, r, s3err.ErrMalformedXML)
		return
	}
	if len(parts) == 0 {
		xmlutil.WriteErrorResponse(w, r, s3err.ErrMalformedXML)
		return
	}

	for i := 1; i < len(parts); i++ {
		if parts[i].PartNumber <= parts[i-1].PartNumber {
			xmlutil.WriteErrorResponse(w, r, s3err.ErrInvalidPartOrder)
			return
		}
	}

	partRefs := make([]storage.PartRef, len(parts))
	for i, p := range parts {
		partRefs[i] = storage.PartRef{PartNumber: p.PartNumber, ETag: p.ETag}
	}

	result, err := h.engine.CompleteMultipartUpload(ctx, bucketName, key, uploadID, partRefs)
	if err != nil {
		writeMultipartError(w, r, err)
		return
	}

	xmlutil.RenderCompleteMultipartUpload(w, &xmlutil.CompleteMultipartUploadResult{
		Location: fmt.Sprintf("/%s/%s", bucketName, key),
		Bucket:   bucketName,
		Key:      key,
		ETag:     result.ETag,
	})
}

// AbortMultipartUpload handles DELETE /{bucket}/{object}?uploadId=ID and
// cancels an in-progress multipart upload, freeing associated resources.
func (h *MultipartHandler) AbortMultipartUpload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	bucketName := extractBucketName(r)
	key := extractObjectKey(r)
	uploadID := r.URL.Query().Get("uploadId")

	if uploadID == "" {
		xmlutil.WriteErrorResponse(w, r, s3err.ErrInvalidArgument)
		return
	}

	if err := h.engine.AbortMultipartUpload(ctx, bucketName, key, uploadID); err != nil {
		writeMultipartError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListMultipartUploads handles GET /{bucket}?uploads and returns a list of
// in-progress multipart uploads for the specified bucket.
func (h *MultipartHandler) ListMultipartUploads(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	bucketName := extractBucketName(r)
	q := r.URL.Query()

	uploads, err := h.engine.ListMultipartUploads(ctx, bucketName)
	if err != nil {
		writeMultipartError(w, r, err)
		return
	}

	keyMarker := q.Get("key-marker")
	uploadIDMarker := q.Get("upload-id-marker")
	maxUploads := 1000
	if mu := q.Get("max-uploads"); mu != "" {
		if parsed, parseErr := strconv.Atoi(mu); parseErr == nil && parsed >= 0 {
			maxUploads = parsed
		}
	}

	result := &xmlutil.ListMultipartUploadsResult{
		Bucket:         bucketName,
		KeyMarker:      keyMarker,
		UploadIDMarker: uploadIDMarker,
		MaxUploads:     maxUploads,
	}

	for _, u := range uploads {
		result.Uploads = append(result.Uploads, xmlutil.Upload{
			Key:      u.Key,
			UploadID: u.UploadID,
			Initiator: xmlutil.Owner{
				ID:          h.ownerID,
				DisplayName: h.ownerDisplay,
			},
			Owner: xmlutil.Owner{
				ID:          h.ownerID,
				DisplayName: h.ownerDisplay,
			},
			Initiated: xmlutil.FormatTimeS3(u.Initiated),
		})
	}

	xmlutil.RenderListMultipartUploads(w, result)
}

// ListParts handles GET /{bucket}/{object}?uploadId=ID and returns a list of
// parts that have been uploaded for the specified multipart upload.
func (h *MultipartHandler) ListParts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	bucketName := extractBucketName(r)
	key := extractObjectKey(r)
	q := r.URL.Query()

	uploadID := q.Get("uploadId")
	if uploadID == "" {
		xmlutil.WriteErrorResponse(w, r, s3err.ErrInvalidArgument)
		return
	}

	parts, err := h.engine.ListParts(ctx, bucketName, key, uploadID)
	if err != nil {
		writeMultipartError(w, r, err)
		return
	}

	maxParts := 1000
	if mp := q.Get("max-parts"); mp != "" {
		if parsed, parseErr := strconv.Atoi(mp); parseErr == nil && parsed >= 0 {
			maxParts = parsed
		}
	}
	partNumberMarker := 0
	if pm := q.Get("part-number-marker"); pm != "" {
		if parsed, parseErr := strconv.Atoi(pm); parseErr == nil {
			partNumberMarker = parsed
		}
	}

	result := &xmlutil.ListPartsResult{
		Bucket:           bucketName,
		Key:              key,
		UploadID:         uploadID,
		PartNumberMarker: partNumberMarker,
		MaxParts:         maxParts,
	}

	for _, p := range parts {
		if p.PartNumber <= partNumberMarker {
			continue
		}
		result.Parts = append(result.Parts, xmlutil.Part{
			PartNumber:   p.PartNumber,
			LastModified: xmlutil.FormatTimeS3(p.LastModified),
			ETag:         p.ETag,
			Size:         p.Size,
		})
	}

	xmlutil.RenderListParts(w, result)
}

// writeMultipartError maps a storage engine error to the matching S3 XML
// error response.
func writeMultipartError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, storage.ErrBucketNotFound):
		xmlutil.WriteErrorResponse(w, r, s3err.ErrNoSuchBucket)
	case errors.Is(err, storage.ErrObjectNotFound), errors.Is(err, storage.ErrUploadNotFound):
		xmlutil.WriteErrorResponse(w, r, s3err.ErrNoSuchUpload)
	case errors.Is(err, storage.ErrInvalidRange):
		xmlutil.WriteErrorResponse(w, r, s3err.ErrInvalidRange)
	case errors.Is(err, storage.ErrInvalidPart):
		xmlutil.WriteErrorResponse(w, r, s3err.ErrInvalidPart)
	case errors.Is(err, storage.ErrInvalidPartOrder):
		xmlutil.WriteErrorResponse(w, r, s3err.ErrInvalidPartOrder)
	default:
		slog.Error("multipart handler error", "error", err)
		xmlutil.WriteErrorResponse(w, r, s3err.ErrInternalError)
	}
}

// getQueryValue is a helper to get a value from a url.Values map (which is
// map[string][]string).
func getQueryValue(q map[string][]string, key string) string {
	if vals, ok := q[key]; ok && len(vals) > 0 {
		return vals[0]
	}
	return ""
}

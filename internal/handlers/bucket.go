// Package handlers implements HTTP request handlers for S3-compatible API operations.
package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	s3err "github.com/shoalstore/shoal/internal/errors"
	"github.com/shoalstore/shoal/internal/storage"
	"github.com/shoalstore/shoal/internal/xmlutil"
)

// BucketHandler contains handlers for S3 bucket-level operations.
type BucketHandler struct {
	engine       storage.Engine
	ownerID      string
	ownerDisplay string
	region       string
}

// NewBucketHandler creates a new BucketHandler with the given dependencies.
func NewBucketHandler(engine storage.Engine, ownerID, ownerDisplay, region string) *BucketHandler {
	return &BucketHandler{
		engine:       engine,
		ownerID:      ownerID,
		ownerDisplay: ownerDisplay,
		region:       region,
	}
}

// ListBuckets handles GET / and returns a list of all buckets.
func (h *BucketHandler) ListBuckets(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	buckets, err := h.engine.ListBuckets(ctx)
	if err != nil {
		slog.Error("ListBuckets error", "error", err)
		xmlutil.WriteErrorResponse(w, r, s3err.ErrInternalError)
		return
	}

	xmlBuckets := make([]xmlutil.Bucket, 0, len(buckets))
	for _, b := range buckets {
		xmlBuckets = append(xmlBuckets, xmlutil.Bucket{
			Name:         b.Name,
			CreationDate: xmlutil.FormatTimeS3(b.CreationDate),
		})
	}

	result := &xmlutil.ListAllMyBucketsResult{
		Owner: xmlutil.Owner{
			ID:          h.ownerID,
			DisplayName: h.ownerDisplay,
		},
		Buckets: xmlBuckets,
	}

	xmlutil.RenderListBuckets(w, result)
}

// CreateBucket handles PUT /{bucket} and creates a new bucket with the
// specified name. Matches us-east-1 behavior: recreating a bucket you
// already own returns 200 OK rather than an error.
func (h *BucketHandler) CreateBucket(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	bucketName := extractBucketName(r)

	err := h.engine.CreateBucket(ctx, bucketName)
	switch {
	case err == nil:
		w.Header().Set("Location", "/"+bucketName)
		w.WriteHeader(http.StatusOK)
	case errors.Is(err, storage.ErrInvalidBucketName):
		xmlutil.WriteErrorResponse(w, r, s3err.ErrInvalidBucketName)
	case errors.Is(err, storage.ErrBucketAlreadyExists):
		w.Header().Set("Location", "/"+bucketName)
		w.WriteHeader(http.StatusOK)
	default:
		slog.Error("CreateBucket error", "error", err)
		xmlutil.WriteErrorResponse(w, r, s3err.ErrInternalError)
	}
}

// DeleteBucket handles DELETE /{bucket} and removes the specified bucket.
// The bucket must be empty before it can be deleted.
func (h *BucketHandler) DeleteBucket(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	bucketName := extractBucketName(r)

	err := h.engine.DeleteBucket(ctx, bucketName)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusNoContent)
	case errors.Is(err, storage.ErrBucketNotFound):
		xmlutil.WriteErrorResponse(w, r, s3err.ErrNoSuchBucket)
	case errors.Is(err, storage.ErrBucketNotEmpty):
		xmlutil.WriteErrorResponse(w, r, s3err.ErrBucketNotEmpty)
	default:
		slog.Error("DeleteBucket error", "error", err)
		xmlutil.WriteErrorResponse(w, r, s3err.ErrInternalError)
	}
}

// HeadBucket handles HEAD /{bucket} and checks whether the specified bucket
// exists and is accessible.
func (h *BucketHandler) HeadBucket(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	bucketName := extractBucketName(r)

	exists, err := h.engine.BucketExists(ctx, bucketName)
	if err != nil {
		slog.Error("HeadBucket error", "error", err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	if !exists {
		w.WriteHeader(http.StatusNotFound)
		return
	}

	w.Header().Set("x-amz-bucket-region", h.region)
	w.WriteHeader(http.StatusOK)
}

// GetBucketLocation handles GET /{bucket}?location and returns the region
// constraint for the specified bucket. Shoal is single-region: every bucket
// reports the server's configured region.
func (h *BucketHandler) GetBucketLocation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	bucketName := extractBucketName(r)

	exists, err := h.engine.BucketExists(ctx, bucketName)
	if err != nil {
		slog.Error("GetBucketLocation error", "error", err)
		xmlutil.WriteErrorResponse(w, r, s3err.ErrInternalError)
		return
	}
	if !exists {
		xmlutil.WriteErrorResponse(w, r, s3err.ErrNoSuchBucket)
		return
	}

	// us-east-1 quirk: return empty LocationConstraint (effectively null).
	location := h.region
	if location == "us-east-1" {
		location = ""
	}

	xmlutil.RenderLocationConstraint(w, location)
}

package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/shoalstore/shoal/internal/storage"

	"github.com/danielgtaylor/huma/v2"
)

// adminVersion is the Shoal admin API version string, surfaced by
// GET /api/v1/status. It tracks the Huma API version declared in New().
const adminVersion = "1.0.0"

// startTime records process start for uptime reporting.
var startTime = time.Now()

// ServerStatusBody is the JSON body returned by GET /api/v1/status.
type ServerStatusBody struct {
	Version       string `json:"version" doc:"Shoal server version"`
	UptimeSeconds int64  `json:"uptimeSeconds" doc:"Seconds since the server process started"`
}

// ServerStatusOutput is the Huma output struct for GET /api/v1/status.
type ServerStatusOutput struct {
	Body ServerStatusBody
}

// StorageStatsBody is the JSON body returned by GET /api/v1/stats.
type StorageStatsBody struct {
	TotalBuckets   uint64 `json:"totalBuckets"`
	TotalObjects   uint64 `json:"totalObjects"`
	TotalSizeBytes uint64 `json:"totalSizeBytes"`
}

// StorageStatsOutput is the Huma output struct for GET /api/v1/stats.
type StorageStatsOutput struct {
	Body StorageStatsBody
}

// AdminBucket is one bucket entry as reported by the admin façade.
type AdminBucket struct {
	Name         string    `json:"name"`
	CreationDate time.Time `json:"creationDate"`
}

// ListBucketsBody is the JSON body returned by GET /api/v1/buckets.
type ListBucketsBody struct {
	Buckets []AdminBucket `json:"buckets"`
}

// ListBucketsOutput is the Huma output struct for GET /api/v1/buckets.
type ListBucketsOutput struct {
	Body ListBucketsBody
}

// CreateBucketInput is the Huma input struct for POST /api/v1/buckets.
type CreateBucketInput struct {
	Body struct {
		Name string `json:"name" doc:"Bucket name to create" minLength:"3" maxLength:"63"`
	}
}

// CreateBucketOutput is the Huma output struct for POST /api/v1/buckets.
type CreateBucketOutput struct {
	Body AdminBucket
}

// AdminObject is one object entry as reported by the admin façade.
type AdminObject struct {
	Key          string    `json:"key"`
	ETag         string    `json:"etag"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"lastModified"`
}

// ListObjectsInput is the Huma input struct for GET /api/v1/buckets/{bucket}/objects.
type ListObjectsInput struct {
	Bucket            string `path:"bucket"`
	Prefix            string `query:"prefix"`
	Delimiter         string `query:"delimiter"`
	MaxKeys           int    `query:"maxKeys" default:"1000"`
	ContinuationToken string `query:"continuationToken"`
}

// ListObjectsBody is the JSON body returned by GET /api/v1/buckets/{bucket}/objects.
type ListObjectsBody struct {
	Objects               []AdminObject `json:"objects"`
	CommonPrefixes        []string      `json:"commonPrefixes,omitempty"`
	IsTruncated           bool          `json:"isTruncated"`
	NextContinuationToken string        `json:"nextContinuationToken,omitempty"`
}

// ListObjectsOutput is the Huma output struct for GET /api/v1/buckets/{bucket}/objects.
type ListObjectsOutput struct {
	Body ListObjectsBody
}

// registerAdminRoutes wires the JSON admin/health façade under /api/v1. These
// are thin read-mostly wrappers over the same storage.Engine methods the S3
// surface uses; there is no alternate write path with different semantics.
func (s *Server) registerAdminRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "admin-get-status",
		Method:      http.MethodGet,
		Path:        "/api/v1/status",
		Summary:     "Server status",
		Description: "Returns version and uptime information for the running server.",
		Tags:        []string{"Admin"},
	}, func(ctx context.Context, input *struct{}) (*ServerStatusOutput, error) {
		return &ServerStatusOutput{Body: ServerStatusBody{
			Version:       adminVersion,
			UptimeSeconds: int64(time.Since(startTime).Seconds()),
		}}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "admin-get-stats",
		Method:      http.MethodGet,
		Path:        "/api/v1/stats",
		Summary:     "Storage statistics",
		Description: "Returns aggregate bucket, object, and byte counts across the engine.",
		Tags:        []string{"Admin"},
	}, func(ctx context.Context, input *struct{}) (*StorageStatsOutput, error) {
		stats, err := s.engine.Stats(ctx)
		if err != nil {
			slog.Error("admin Stats error", "error", err)
			return nil, huma.Error500InternalServerError("failed to gather storage statistics")
		}
		return &StorageStatsOutput{Body: StorageStatsBody{
			TotalBuckets:   stats.TotalBuckets,
			TotalObjects:   stats.TotalObjects,
			TotalSizeBytes: stats.TotalSizeBytes,
		}}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "admin-list-buckets",
		Method:      http.MethodGet,
		Path:        "/api/v1/buckets",
		Summary:     "List buckets",
		Description: "Returns every bucket known to the engine.",
		Tags:        []string{"Admin"},
	}, func(ctx context.Context, input *struct{}) (*ListBucketsOutput, error) {
		buckets, err := s.engine.ListBuckets(ctx)
		if err != nil {
			slog.Error("admin ListBuckets error", "error", err)
			return nil, huma.Error500InternalServerError("failed to list buckets")
		}
		out := make([]AdminBucket, 0, len(buckets))
		for _, b := range buckets {
			out = append(out, AdminBucket{Name: b.Name, CreationDate: b.CreationDate})
		}
		return &ListBucketsOutput{Body: ListBucketsBody{Buckets: out}}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "admin-create-bucket",
		Method:      http.MethodPost,
		Path:        "/api/v1/buckets",
		Summary:     "Create a bucket",
		Description: "Creates a bucket through the same engine path PUT /{bucket} uses.",
		Tags:        []string{"Admin"},
	}, func(ctx context.Context, input *CreateBucketInput) (*CreateBucketOutput, error) {
		name := input.Body.Name
		if err := s.engine.CreateBucket(ctx, name); err != nil {
			switch {
			case errors.Is(err, storage.ErrInvalidBucketName):
				return nil, huma.Error400BadRequest("invalid bucket name", err)
			case errors.Is(err, storage.ErrBucketAlreadyExists):
				// Idempotent create, mirroring the S3 surface's us-east-1 behavior.
			default:
				slog.Error("admin CreateBucket error", "error", err)
				return nil, huma.Error500InternalServerError("failed to create bucket")
			}
		}
		info, err := s.engine.GetBucketInfo(ctx, name)
		if err != nil {
			slog.Error("admin GetBucketInfo error", "error", err)
			return nil, huma.Error500InternalServerError("failed to read created bucket")
		}
		return &CreateBucketOutput{Body: AdminBucket{Name: info.Name, CreationDate: info.CreationDate}}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "admin-list-objects",
		Method:      http.MethodGet,
		Path:        "/api/v1/buckets/{bucket}/objects",
		Summary:     "List objects in a bucket",
		Description: "Returns objects in the given bucket, honoring prefix/delimiter/pagination the same way ListObjectsV2 does.",
		Tags:        []string{"Admin"},
	}, func(ctx context.Context, input *ListObjectsInput) (*ListObjectsOutput, error) {
		exists, err := s.engine.BucketExists(ctx, input.Bucket)
		if err != nil {
			slog.Error("admin BucketExists error", "error", err)
			return nil, huma.Error500InternalServerError("failed to check bucket")
		}
		if !exists {
			return nil, huma.Error404NotFound("no such bucket: " + input.Bucket)
		}

		result, err := s.engine.ListObjects(ctx, input.Bucket, storage.ListObjectsParams{
			Prefix:            input.Prefix,
			Delimiter:         input.Delimiter,
			MaxKeys:           input.MaxKeys,
			ContinuationToken: input.ContinuationToken,
		})
		if err != nil {
			slog.Error("admin ListObjects error", "error", err)
			return nil, huma.Error500InternalServerError("failed to list objects")
		}

		objects := make([]AdminObject, 0, len(result.Objects))
		for _, o := range result.Objects {
			objects = append(objects, AdminObject{
				Key:          o.Key,
				ETag:         o.ETag,
				Size:         o.Size,
				LastModified: o.LastModified,
			})
		}
		return &ListObjectsOutput{Body: ListObjectsBody{
			Objects:               objects,
			CommonPrefixes:        result.CommonPrefixes,
			IsTruncated:           result.IsTruncated,
			NextContinuationToken: result.NextContinuationToken,
		}}, nil
	})
}

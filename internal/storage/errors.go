package storage

import "errors"

// Sentinel errors returned by Engine implementations. Handlers translate
// these into S3 error codes; engines never construct S3-shaped errors
// themselves, so the same implementation can be exercised directly in tests
// without pulling in the wire layer.
var (
	ErrBucketNotFound      = errors.New("storage: bucket not found")
	ErrBucketAlreadyExists = errors.New("storage: bucket already exists")
	ErrBucketNotEmpty      = errors.New("storage: bucket not empty")
	ErrInvalidBucketName   = errors.New("storage: invalid bucket name")
	ErrObjectNotFound      = errors.New("storage: object not found")
	ErrInvalidRange        = errors.New("storage: range not satisfiable")
	ErrUploadNotFound      = errors.New("storage: multipart upload not found")
	ErrInvalidPart         = errors.New("storage: invalid part")
	ErrInvalidPartOrder    = errors.New("storage: parts not in ascending order")
)

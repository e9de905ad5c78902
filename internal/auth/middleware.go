package auth

import (
	"context"
	"net/http"
	"strings"

	s3err "github.com/shoalstore/shoal/internal/errors"
	"github.com/shoalstore/shoal/internal/xmlutil"
)

// skipPaths is the set of paths that never require authentication: the
// ambient admin/health façade, which is out of scope for the S3 wire
// contract (§1).
var skipPaths = map[string]bool{
	"/health":       true,
	"/healthz":      true,
	"/readyz":       true,
	"/metrics":      true,
	"/docs":         true,
	"/docs/":        true,
	"/openapi":      true,
	"/openapi.json": true,
}

type ownerKey struct{}

func contextWithOwner(ctx context.Context, accessKey string) context.Context {
	return context.WithValue(ctx, ownerKey{}, accessKey)
}

// OwnerFromContext returns the access key authenticated for this request, if
// any.
func OwnerFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(ownerKey{}).(string)
	return v, ok
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] > 127 {
			return false
		}
	}
	return true
}

// Middleware returns HTTP middleware implementing the §4.5 auth contract.
// When enabled is false, every request is forwarded unauthenticated — the
// core's "if auth disabled (configured), forward" step.
func Middleware(verifier *SigV4Verifier, enabled bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			path := r.URL.Path
			if !enabled || skipPaths[path] || strings.HasPrefix(path, "/docs") {
				next.ServeHTTP(w, r)
				return
			}

			header := r.Header.Get("Authorization")
			if header == "" {
				writeMissingAuthorization(w, r)
				return
			}
			if !isASCII(header) {
				xmlutil.WriteErrorResponse(w, r, s3err.ErrInvalidArgument)
				return
			}

			cred, err := verifier.VerifyRequest(r)
			if err != nil {
				writeAuthError(w, r, err)
				return
			}

			r = r.WithContext(contextWithOwner(r.Context(), cred.AccessKey))
			next.ServeHTTP(w, r)
		})
	}
}

// writeMissingAuthorization renders AccessDenied with HTTP 401, the status
// the auth error table in §7 assigns to a missing Authorization header.
func writeMissingAuthorization(w http.ResponseWriter, r *http.Request) {
	e := *s3err.ErrAccessDenied
	e.HTTPStatus = http.StatusUnauthorized
	xmlutil.WriteErrorResponse(w, r, &e)
}

// writeAuthError maps an AuthError to its S3 code and HTTP status, per the
// auth error table in §7.
func writeAuthError(w http.ResponseWriter, r *http.Request, err error) {
	authErr, ok := err.(*AuthError)
	if !ok {
		xmlutil.WriteErrorResponse(w, r, s3err.ErrInternalError)
		return
	}

	switch authErr.Code {
	case ErrMissingAuthorizationHeader.Code:
		writeMissingAuthorization(w, r)
	case ErrInvalidAuthorizationHeader.Code, ErrMissingCredential.Code, ErrInvalidCredentialFormat.Code:
		xmlutil.WriteErrorResponse(w, r, s3err.ErrInvalidArgument)
	case ErrUnknownAccessKey.Code:
		xmlutil.WriteErrorResponse(w, r, s3err.ErrInvalidAccessKeyId)
	case ErrSignatureVerificationFailed.Code:
		xmlutil.WriteErrorResponse(w, r, s3err.ErrSignatureDoesNotMatch)
	case ErrInvalidTimestamp.Code, ErrRequestTimeTooSkewed.Code:
		xmlutil.WriteErrorResponse(w, r, s3err.ErrRequestTimeTooSkewed)
	default:
		xmlutil.WriteErrorResponse(w, r, s3err.ErrInternalError)
	}
}

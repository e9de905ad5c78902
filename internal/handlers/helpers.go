// Package handlers provides shared helper utilities for S3 operation handlers.
package handlers

import (
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	s3err "github.com/shoalstore/shoal/internal/errors"
	"github.com/shoalstore/shoal/internal/storage"
	"github.com/shoalstore/shoal/internal/xmlutil"
)

// extractBucketName extracts the bucket name from the URL path.
func extractBucketName(r *http.Request) string {
	path := r.URL.Path
	if len(path) > 0 && path[0] == '/' {
		path = path[1:]
	}
	idx := strings.IndexByte(path, '/')
	if idx >= 0 {
		return path[:idx]
	}
	return path
}

// extractUserMetadata scans request headers for x-amz-meta-* prefixed headers
// and returns them as a map. The prefix is stripped and the key is lowercased.
func extractUserMetadata(r *http.Request) map[string]string {
	meta := make(map[string]string)
	for key, values := range r.Header {
		lower := strings.ToLower(key)
		if strings.HasPrefix(lower, "x-amz-meta-") {
			metaKey := lower[len("x-amz-meta-"):]
			if len(values) > 0 && metaKey != "" {
				meta[metaKey] = values[0]
			}
		}
	}
	if len(meta) == 0 {
		return nil
	}
	return meta
}

// parseDeleteRequest parses a DeleteObjects XML request body into a DeleteRequest struct.
func parseDeleteRequest(body io.Reader) (*xmlutil.DeleteRequest, error) {
	var req xmlutil.DeleteRequest
	if err := xml.NewDecoder(body).Decode(&req); err != nil {
		return nil, err
	}
	return &req, nil
}

// parseCopySource parses the X-Amz-Copy-Source header and returns the source
// bucket and key. The header value is URL-decoded and expected in the format
// "/bucket/key" or "bucket/key".
func parseCopySource(header string) (bucket, key string, ok bool) {
	decoded, err := url.PathUnescape(header)
	if err != nil {
		return "", "", false
	}

	decoded = strings.TrimPrefix(decoded, "/")
	if decoded == "" {
		return "", "", false
	}

	idx := strings.IndexByte(decoded, '/')
	if idx < 0 || idx == len(decoded)-1 {
		return "", "", false
	}

	return decoded[:idx], decoded[idx+1:], true
}

// parseRange parses an HTTP Range header value into a half-open byte range
// [start, end) against an object of the given length. Supports:
//   - bytes=0-4   (first 5 bytes)
//   - bytes=5-    (from byte 5 to end)
//   - bytes=-10   (last 10 bytes)
func parseRange(rangeHeader string, objectSize int64) (*storage.Range, error) {
	if !strings.HasPrefix(rangeHeader, "bytes=") {
		return nil, fmt.Errorf("invalid range header: missing bytes= prefix")
	}

	rangeSpec := strings.TrimPrefix(rangeHeader, "bytes=")
	if strings.Contains(rangeSpec, ",") {
		return nil, fmt.Errorf("multi-range not supported")
	}

	parts := strings.SplitN(rangeSpec, "-", 2)
	if len(parts) != 2 {
		return nil, fmt.Errorf("invalid range spec: %q", rangeSpec)
	}

	startStr := strings.TrimSpace(parts[0])
	endStr := strings.TrimSpace(parts[1])

	if startStr == "" && endStr == "" {
		return nil, fmt.Errorf("invalid range: both start and end are empty")
	}

	if startStr == "" {
		// Suffix range: bytes=-N (last N bytes).
		suffixLen, err := strconv.ParseInt(endStr, 10, 64)
		if err != nil || suffixLen <= 0 {
			return nil, fmt.Errorf("invalid suffix length: %q", endStr)
		}
		if suffixLen >= objectSize {
			return &storage.Range{Start: 0, End: objectSize, EndSet: true}, nil
		}
		return &storage.Range{Start: objectSize - suffixLen, End: objectSize, EndSet: true}, nil
	}

	start, err := strconv.ParseInt(startStr, 10, 64)
	if err != nil || start < 0 {
		return nil, fmt.Errorf("invalid range start: %q", startStr)
	}

	if endStr == "" {
		// Open-ended range: bytes=N- (from byte N to end).
		return &storage.Range{Start: start, EndSet: false}, nil
	}

	end, err := strconv.ParseInt(endStr, 10, 64)
	if err != nil || end < 0 {
		return nil, fmt.Errorf("invalid range end: %q", endStr)
	}

	// The header's end is inclusive; Range.End is exclusive.
	end++
	if end > objectSize {
		end = objectSize
	}

	return &storage.Range{Start: start, End: end, EndSet: true}, nil
}

// checkCopySourceConditionals evaluates x-amz-copy-source-if-* headers against
// the source object's ETag and LastModified time. Used by CopyObject;
// UploadPartCopy does not evaluate these headers.
// Returns true if the copy should proceed, false if a precondition failed.
func checkCopySourceConditionals(r *http.Request, etag string, lastModified time.Time) (proceed bool, err *s3err.S3Error) {
	normalizeETag := func(e string) string {
		return strings.Trim(e, `"`)
	}

	objectETag := normalizeETag(etag)

	ifMatch := r.Header.Get("x-amz-copy-source-if-match")
	if ifMatch != "" {
		matched := false
		if ifMatch == "*" {
			matched = true
		} else {
			tags := strings.Split(ifMatch, ",")
			for _, tag := range tags {
				if normalizeETag(strings.TrimSpace(tag)) == objectETag {
					matched = true
					break
				}
			}
		}
		if !matched {
			return false, s3err.ErrPreconditionFailed
		}
	}

	if ifMatch == "" {
		ifUnmodSince := r.Header.Get("x-amz-copy-source-if-unmodified-since")
		if ifUnmodSince != "" {
			t, parseErr := http.ParseTime(ifUnmodSince)
			if parseErr == nil {
				if lastModified.Truncate(time.Second).After(t.Truncate(time.Second)) {
					return false, s3err.ErrPreconditionFailed
				}
			}
		}
	}

	ifNoneMatch := r.Header.Get("x-amz-copy-source-if-none-match")
	if ifNoneMatch != "" {
		matched := false
		if ifNoneMatch == "*" {
			matched = true
		} else {
			tags := strings.Split(ifNoneMatch, ",")
			for _, tag := range tags {
				if normalizeETag(strings.TrimSpace(tag)) == objectETag {
					matched = true
					break
				}
			}
		}
		if matched {
			return false, s3err.ErrPreconditionFailed
		}
	}

	if ifNoneMatch == "" {
		ifModSince := r.Header.Get("x-amz-copy-source-if-modified-since")
		if ifModSince != "" {
			t, parseErr := http.ParseTime(ifModSince)
			if parseErr == nil {
				if !lastModified.Truncate(time.Second).After(t.Truncate(time.Second)) {
					return false, s3err.ErrPreconditionFailed
				}
			}
		}
	}

	return true, nil
}

// checkConditionalHeaders evaluates the conditional request headers against
// the object's ETag and LastModified time. Returns the appropriate HTTP status
// code and whether the response should be skipped (no body).
//
// Priority order per RFC 7232:
//  1. If-Match (412 on mismatch)
//  2. If-Unmodified-Since (412 if modified)
//  3. If-None-Match (304 for GET/HEAD, 412 for other methods)
//  4. If-Modified-Since (304 if not modified)
func checkConditionalHeaders(r *http.Request, etag string, lastModified time.Time) (statusCode int, skip bool) {
	normalizeETag := func(e string) string {
		return strings.Trim(e, `"`)
	}

	objectETag := normalizeETag(etag)

	ifMatch := r.Header.Get("If-Match")
	if ifMatch != "" {
		matched := false
		if ifMatch == "*" {
			matched = true
		} else {
			tags := strings.Split(ifMatch, ",")
			for _, tag := range tags {
				if normalizeETag(strings.TrimSpace(tag)) == objectETag {
					matched = true
					break
				}
			}
		}
		if !matched {
			return http.StatusPreconditionFailed, true
		}
	}

	if ifMatch == "" {
		ifUnmodSince := r.Header.Get("If-Unmodified-Since")
		if ifUnmodSince != "" {
			t, parseErr := http.ParseTime(ifUnmodSince)
			if parseErr == nil {
				if lastModified.Truncate(time.Second).After(t.Truncate(time.Second)) {
					return http.StatusPreconditionFailed, true
				}
			}
		}
	}

	ifNoneMatch := r.Header.Get("If-None-Match")
	if ifNoneMatch != "" {
		matched := false
		if ifNoneMatch == "*" {
			matched = true
		} else {
			tags := strings.Split(ifNoneMatch, ",")
			for _, tag := range tags {
				if normalizeETag(strings.TrimSpace(tag)) == objectETag {
					matched = true
					break
				}
			}
		}
		if matched {
			if r.Method == "GET" || r.Method == "HEAD" {
				return http.StatusNotModified, true
			}
			return http.StatusPreconditionFailed, true
		}
	}

	if ifNoneMatch == "" {
		ifModSince := r.Header.Get("If-Modified-Since")
		if ifModSince != "" {
			t, parseErr := http.ParseTime(ifModSince)
			if parseErr == nil {
				if !lastModified.Truncate(time.Second).After(t.Truncate(time.Second)) {
					if r.Method == "GET" || r.Method == "HEAD" {
						return http.StatusNotModified, true
					}
				}
			}
		}
	}

	return 0, false
}

// setObjectResponseHeaders sets standard S3 object response headers from an
// object's metadata. Used by GetObject and HeadObject.
func setObjectResponseHeaders(w http.ResponseWriter, md storage.ObjectMetadata) {
	w.Header().Set("Content-Type", md.ContentType)
	w.Header().Set("ETag", md.ETag)
	w.Header().Set("Last-Modified", xmlutil.FormatTimeHTTP(md.LastModified))
	w.Header().Set("Accept-Ranges", "bytes")

	for key, value := range md.UserMetadata {
		w.Header().Set("x-amz-meta-"+strings.ToLower(key), value)
	}

	w.Header().Set("Content-Length", strconv.FormatInt(md.ContentLength, 10))
}

// applyResponseOverrides applies response-* query parameter overrides to the
// response headers. These are used for presigned URLs to override content headers.
func applyResponseOverrides(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if v := q.Get("response-content-type"); v != "" {
		w.Header().Set("Content-Type", v)
	}
	if v := q.Get("response-content-language"); v != "" {
		w.Header().Set("Content-Language", v)
	}
	if v := q.Get("response-expires"); v != "" {
		w.Header().Set("Expires", v)
	}
	if v := q.Get("response-cache-control"); v != "" {
		w.Header().Set("Cache-Control", v)
	}
	if v := q.Get("response-content-disposition"); v != "" {
		w.Header().Set("Content-Disposition", v)
	}
	if v := q.Get("response-content-encoding"); v != "" {
		w.Header().Set("Content-Encoding", v)
	}
}

// CompletePart represents a single part entry in a CompleteMultipartUpload
// XML request body.
type CompletePart struct {
	PartNumber int    `xml:"PartNumber"`
	ETag       string `xml:"ETag"`
}

// CompleteMultipartUploadRequest is the XML structure for the
// CompleteMultipartUpload request body.
type CompleteMultipartUploadRequest struct {
	XMLName xml.Name       `xml:"CompleteMultipartUpload"`
	Parts   []CompletePart `xml:"Part"`
}

// parseCompleteMultipartXML parses the CompleteMultipartUpload XML request body
// and returns the list of parts. Returns an error if the XML is malformed.
func parseCompleteMultipartXML(body io.Reader) ([]CompletePart, error) {
	var req CompleteMultipartUploadRequest
	if err := xml.NewDecoder(body).Decode(&req); err != nil {
		return nil, fmt.Errorf("decoding CompleteMultipartUpload XML: %w", err)
	}
	return req.Parts, nil
}

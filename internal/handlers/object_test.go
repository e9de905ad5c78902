package handlers

import (
	"context"
	"encoding/xml"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/shoalstore/shoal/internal/storage"
	"github.com/shoalstore/shoal/internal/xmlutil"
)

// newTestObjectHandler creates an ObjectHandler backed by a fresh in-memory
// engine, with the named buckets already created.
func newTestObjectHandler(t *testing.T, buckets ...string) (*ObjectHandler, storage.Engine) {
	t.Helper()

	engine, err := storage.NewMemoryEngine()
	if err != nil {
		t.Fatalf("NewMemoryEngine failed: %v", err)
	}
	for _, b := range buckets {
		if err := engine.CreateBucket(context.Background(), b); err != nil {
			t.Fatalf("CreateBucket(%q) failed: %v", b, err)
		}
	}

	return NewObjectHandler(engine, "shoal", "shoal"), engine
}

func putTestObject(t *testing.T, h *ObjectHandler, bucket, key, body string) string {
	t.Helper()

	req := httptest.NewRequest("PUT", "/"+bucket+"/"+key, strings.NewReader(body))
	req.ContentLength = int64(len(body))
	rec := httptest.NewRecorder()
	h.PutObject(rec, req)
	if rec.Code != http.StatusOK {
		respBody, _ := io.ReadAll(rec.Body)
		t.Fatalf("PutObject status = %d, want %d; body: %s", rec.Code, http.StatusOK, respBody)
	}
	return rec.Header().Get("ETag")
}

func TestPutObject(t *testing.T) {
	h, _ := newTestObjectHandler(t, "my-bucket")

	etag := putTestObject(t, h, "my-bucket", "hello.txt", "hello world")
	if etag == "" {
		t.Error("PutObject returned empty ETag")
	}
}

func TestPutObjectEmptyKey(t *testing.T) {
	h, _ := newTestObjectHandler(t, "my-bucket")

	req := httptest.NewRequest("PUT", "/my-bucket/", strings.NewReader("x"))
	rec := httptest.NewRecorder()
	h.PutObject(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("PutObject with empty key status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestPutObjectKeyTooLong(t *testing.T) {
	h, _ := newTestObjectHandler(t, "my-bucket")

	longKey := strings.Repeat("a", 1025)
	req := httptest.NewRequest("PUT", "/my-bucket/"+longKey, strings.NewReader("x"))
	rec := httptest.NewRecorder()
	h.PutObject(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("PutObject with too-long key status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	if !strings.Contains(rec.Body.String(), "KeyTooLongError") {
		t.Errorf("expected KeyTooLongError, got: %s", rec.Body.String())
	}
}

func TestPutObjectBucketNotFound(t *testing.T) {
	h, _ := newTestObjectHandler(t)

	req := httptest.NewRequest("PUT", "/no-such-bucket/key.txt", strings.NewReader("x"))
	rec := httptest.NewRecorder()
	h.PutObject(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("PutObject into missing bucket status = %d, want %d", rec.Code, http.StatusNotFound)
	}
	if !strings.Contains(rec.Body.String(), "NoSuchBucket") {
		t.Errorf("expected NoSuchBucket, got: %s", rec.Body.String())
	}
}

func TestPutObjectDefaultContentType(t *testing.T) {
	h, _ := newTestObjectHandler(t, "my-bucket")
	putTestObject(t, h, "my-bucket", "blob.bin", "raw bytes")

	req := httptest.NewRequest("HEAD", "/my-bucket/blob.bin", nil)
	rec := httptest.NewRecorder()
	h.HeadObject(rec, req)

	if ct := rec.Header().Get("Content-Type"); ct != "application/octet-stream" {
		t.Errorf("Content-Type = %q, want application/octet-stream", ct)
	}
}

func TestPutObjectUserMetadata(t *testing.T) {
	h, _ := newTestObjectHandler(t, "my-bucket")

	req := httptest.NewRequest("PUT", "/my-bucket/meta.txt", strings.NewReader("v"))
	req.Header.Set("X-Amz-Meta-Owner", "alice")
	req.Header.Set("X-Amz-Meta-Project", "shoal")
	rec := httptest.NewRecorder()
	h.PutObject(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("PutObject status = %d", rec.Code)
	}

	req = httptest.NewRequest("HEAD", "/my-bucket/meta.txt", nil)
	rec = httptest.NewRecorder()
	h.HeadObject(rec, req)

	if got := rec.Header().Get("x-amz-meta-owner"); got != "alice" {
		t.Errorf("x-amz-meta-owner = %q, want alice", got)
	}
	if got := rec.Header().Get("x-amz-meta-project"); got != "shoal" {
		t.Errorf("x-amz-meta-project = %q, want shoal", got)
	}
}

func TestGetObject(t *testing.T) {
	h, _ := newTestObjectHandler(t, "my-bucket")
	putTestObject(t, h, "my-bucket", "hello.txt", "hello world")

	req := httptest.NewRequest("GET", "/my-bucket/hello.txt", nil)
	rec := httptest.NewRecorder()
	h.GetObject(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("GetObject status = %d, want %d", rec.Code, http.StatusOK)
	}
	if rec.Body.String() != "hello world" {
		t.Errorf("GetObject body = %q, want %q", rec.Body.String(), "hello world")
	}
	if rec.Header().Get("ETag") == "" {
		t.Error("GetObject missing ETag header")
	}
	if rec.Header().Get("Accept-Ranges") != "bytes" {
		t.Error("GetObject missing Accept-Ranges: bytes")
	}
}

func TestGetObjectNotFound(t *testing.T) {
	h, _ := newTestObjectHandler(t, "my-bucket")

	req := httptest.NewRequest("GET", "/my-bucket/missing.txt", nil)
	rec := httptest.NewRecorder()
	h.GetObject(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("GetObject status = %d, want %d", rec.Code, http.StatusNotFound)
	}
	if !strings.Contains(rec.Body.String(), "NoSuchKey") {
		t.Errorf("expected NoSuchKey, got: %s", rec.Body.String())
	}
}

func TestGetObjectRange(t *testing.T) {
	h, _ := newTestObjectHandler(t, "my-bucket")
	putTestObject(t, h, "my-bucket", "range.txt", "0123456789")

	req := httptest.NewRequest("GET", "/my-bucket/range.txt", nil)
	req.Header.Set("Range", "bytes=2-4")
	rec := httptest.NewRecorder()
	h.GetObject(rec, req)

	if rec.Code != http.StatusPartialContent {
		t.Fatalf("GetObject range status = %d, want %d", rec.Code, http.StatusPartialContent)
	}
	if rec.Body.String() != "234" {
		t.Errorf("GetObject range body = %q, want %q", rec.Body.String(), "234")
	}
	if cr := rec.Header().Get("Content-Range"); cr != "bytes 2-4/10" {
		t.Errorf("Content-Range = %q, want %q", cr, "bytes 2-4/10")
	}
}

func TestGetObjectInvalidRange(t *testing.T) {
	h, _ := newTestObjectHandler(t, "my-bucket")
	putTestObject(t, h, "my-bucket", "range.txt", "short")

	req := httptest.NewRequest("GET", "/my-bucket/range.txt", nil)
	req.Header.Set("Range", "bytes=abc-def")
	rec := httptest.NewRecorder()
	h.GetObject(rec, req)

	if !strings.Contains(rec.Body.String(), "InvalidRange") {
		t.Errorf("GetObject invalid range: status=%d body=%s", rec.Code, rec.Body.String())
	}
}

func TestGetObjectIfNoneMatch(t *testing.T) {
	h, _ := newTestObjectHandler(t, "my-bucket")
	etag := putTestObject(t, h, "my-bucket", "obj.txt", "data")

	req := httptest.NewRequest("GET", "/my-bucket/obj.txt", nil)
	req.Header.Set("If-None-Match", etag)
	rec := httptest.NewRecorder()
	h.GetObject(rec, req)

	if rec.Code != http.StatusNotModified {
		t.Errorf("GetObject If-None-Match status = %d, want %d", rec.Code, http.StatusNotModified)
	}
}

func TestGetObjectIfMatchMismatch(t *testing.T) {
	h, _ := newTestObjectHandler(t, "my-bucket")
	putTestObject(t, h, "my-bucket", "obj.txt", "data")

	req := httptest.NewRequest("GET", "/my-bucket/obj.txt", nil)
	req.Header.Set("If-Match", `"not-the-real-etag"`)
	rec := httptest.NewRecorder()
	h.GetObject(rec, req)

	if rec.Code != http.StatusPreconditionFailed {
		t.Errorf("GetObject If-Match mismatch status = %d, want %d", rec.Code, http.StatusPreconditionFailed)
	}
}

func TestGetObjectResponseOverrides(t *testing.T) {
	h, _ := newTestObjectHandler(t, "my-bucket")
	putTestObject(t, h, "my-bucket", "obj.txt", "data")

	req := httptest.NewRequest("GET", "/my-bucket/obj.txt?response-content-type=text/plain&response-content-disposition=attachment", nil)
	rec := httptest.NewRecorder()
	h.GetObject(rec, req)

	if ct := rec.Header().Get("Content-Type"); ct != "text/plain" {
		t.Errorf("Content-Type override = %q, want text/plain", ct)
	}
	if cd := rec.Header().Get("Content-Disposition"); cd != "attachment" {
		t.Errorf("Content-Disposition override = %q, want attachment", cd)
	}
}

func TestHeadObject(t *testing.T) {
	h, _ := newTestObjectHandler(t, "my-bucket")
	putTestObject(t, h, "my-bucket", "obj.txt", "hello")

	req := httptest.NewRequest("HEAD", "/my-bucket/obj.txt", nil)
	rec := httptest.NewRecorder()
	h.HeadObject(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("HeadObject status = %d, want %d", rec.Code, http.StatusOK)
	}
	if rec.Header().Get("Content-Length") != "5" {
		t.Errorf("Content-Length = %q, want 5", rec.Header().Get("Content-Length"))
	}
	if rec.Body.Len() != 0 {
		t.Error("HeadObject should not return a body")
	}
}

func TestHeadObjectNotFound(t *testing.T) {
	h, _ := newTestObjectHandler(t, "my-bucket")

	req := httptest.NewRequest("HEAD", "/my-bucket/missing.txt", nil)
	rec := httptest.NewRecorder()
	h.HeadObject(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("HeadObject status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestDeleteObject(t *testing.T) {
	h, _ := newTestObjectHandler(t, "my-bucket")
	putTestObject(t, h, "my-bucket", "obj.txt", "data")

	req := httptest.NewRequest("DELETE", "/my-bucket/obj.txt", nil)
	rec := httptest.NewRecorder()
	h.DeleteObject(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("DeleteObject status = %d, want %d", rec.Code, http.StatusNoContent)
	}

	req = httptest.NewRequest("HEAD", "/my-bucket/obj.txt", nil)
	rec = httptest.NewRecorder()
	h.HeadObject(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("object still present after delete: status = %d", rec.Code)
	}
}

func TestDeleteObjectIdempotent(t *testing.T) {
	h, _ := newTestObjectHandler(t, "my-bucket")

	req := httptest.NewRequest("DELETE", "/my-bucket/never-existed.txt", nil)
	rec := httptest.NewRecorder()
	h.DeleteObject(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("DeleteObject on missing key status = %d, want %d", rec.Code, http.StatusNoContent)
	}
}

func TestDeleteObjects(t *testing.T) {
	h, _ := newTestObjectHandler(t, "my-bucket")
	putTestObject(t, h, "my-bucket", "a.txt", "a")
	putTestObject(t, h, "my-bucket", "b.txt", "b")

	body := `<?xml version="1.0" encoding="UTF-8"?>
<Delete>
  <Object><Key>a.txt</Key></Object>
  <Object><Key>b.txt</Key></Object>
  <Object><Key>missing.txt</Key></Object>
</Delete>`
	req := httptest.NewRequest("POST", "/my-bucket?delete", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.DeleteObjects(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("DeleteObjects status = %d, want %d", rec.Code, http.StatusOK)
	}

	var result xmlutil.DeleteResult
	if err := xml.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse DeleteObjects response: %v", err)
	}
	if len(result.Deleted) != 3 {
		t.Errorf("len(Deleted) = %d, want 3", len(result.Deleted))
	}
}

func TestDeleteObjectsQuiet(t *testing.T) {
	h, _ := newTestObjectHandler(t, "my-bucket")
	putTestObject(t, h, "my-bucket", "a.txt", "a")

	body := `<?xml version="1.0" encoding="UTF-8"?>
<Delete>
  <Quiet>true</Quiet>
  <Object><Key>a.txt</Key></Object>
</Delete>`
	req := httptest.NewRequest("POST", "/my-bucket?delete", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.DeleteObjects(rec, req)

	var result xmlutil.DeleteResult
	if err := xml.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse DeleteObjects response: %v", err)
	}
	if len(result.Deleted) != 0 {
		t.Errorf("len(Deleted) = %d, want 0 in quiet mode", len(result.Deleted))
	}
}

func TestCopyObject(t *testing.T) {
	h, _ := newTestObjectHandler(t, "src-bucket", "dst-bucket")
	putTestObject(t, h, "src-bucket", "orig.txt", "copy me")

	req := httptest.NewRequest("PUT", "/dst-bucket/copy.txt", nil)
	req.Header.Set("X-Amz-Copy-Source", "/src-bucket/orig.txt")
	rec := httptest.NewRecorder()
	h.CopyObject(rec, req)

	if rec.Code != http.StatusOK {
		body, _ := io.ReadAll(rec.Body)
		t.Fatalf("CopyObject status = %d, want %d; body: %s", rec.Code, http.StatusOK, body)
	}

	var result xmlutil.CopyObjectResult
	if err := xml.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse CopyObject response: %v", err)
	}
	if result.ETag == "" {
		t.Error("CopyObject response missing ETag")
	}

	req = httptest.NewRequest("GET", "/dst-bucket/copy.txt", nil)
	rec = httptest.NewRecorder()
	h.GetObject(rec, req)
	if rec.Body.String() != "copy me" {
		t.Errorf("copied object body = %q, want %q", rec.Body.String(), "copy me")
	}
}

func TestCopyObjectSourceNotFound(t *testing.T) {
	h, _ := newTestObjectHandler(t, "src-bucket", "dst-bucket")

	req := httptest.NewRequest("PUT", "/dst-bucket/copy.txt", nil)
	req.Header.Set("X-Amz-Copy-Source", "/src-bucket/missing.txt")
	rec := httptest.NewRecorder()
	h.CopyObject(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("CopyObject missing source status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestCopyObjectInvalidCopySource(t *testing.T) {
	h, _ := newTestObjectHandler(t, "dst-bucket")

	req := httptest.NewRequest("PUT", "/dst-bucket/copy.txt", nil)
	req.Header.Set("X-Amz-Copy-Source", "")
	rec := httptest.NewRecorder()
	h.CopyObject(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("CopyObject empty copy-source status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestCopyObjectMetadataDirectiveReplace(t *testing.T) {
	h, _ := newTestObjectHandler(t, "src-bucket", "dst-bucket")
	putTestObject(t, h, "src-bucket", "orig.txt", "copy me")

	req := httptest.NewRequest("PUT", "/dst-bucket/copy.txt", nil)
	req.Header.Set("X-Amz-Copy-Source", "/src-bucket/orig.txt")
	req.Header.Set("x-amz-metadata-directive", "REPLACE")
	req.Header.Set("Content-Type", "text/custom")
	req.Header.Set("X-Amz-Meta-Tag", "replaced")
	rec := httptest.NewRecorder()
	h.CopyObject(rec, req)

	if rec.Code != http.StatusOK {
		body, _ := io.ReadAll(rec.Body)
		t.Fatalf("CopyObject REPLACE status = %d; body: %s", rec.Code, body)
	}

	req = httptest.NewRequest("HEAD", "/dst-bucket/copy.txt", nil)
	rec = httptest.NewRecorder()
	h.HeadObject(rec, req)
	if ct := rec.Header().Get("Content-Type"); ct != "text/custom" {
		t.Errorf("Content-Type after REPLACE = %q, want text/custom", ct)
	}
	if tag := rec.Header().Get("x-amz-meta-tag"); tag != "replaced" {
		t.Errorf("x-amz-meta-tag after REPLACE = %q, want replaced", tag)
	}
}

func TestListObjectsV2(t *testing.T) {
	h, _ := newTestObjectHandler(t, "my-bucket")
	putTestObject(t, h, "my-bucket", "a.txt", "a")
	putTestObject(t, h, "my-bucket", "b.txt", "b")
	putTestObject(t, h, "my-bucket", "dir/c.txt", "c")

	req := httptest.NewRequest("GET", "/my-bucket?list-type=2", nil)
	rec := httptest.NewRecorder()
	h.ListObjectsV2(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("ListObjectsV2 status = %d, want %d", rec.Code, http.StatusOK)
	}

	var result xmlutil.ListBucketV2Result
	if err := xml.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse ListObjectsV2 response: %v", err)
	}
	if result.Name != "my-bucket" {
		t.Errorf("Name = %q, want my-bucket", result.Name)
	}
	if len(result.Contents) != 3 {
		t.Errorf("len(Contents) = %d, want 3", len(result.Contents))
	}
}

func TestListObjectsV2WithDelimiter(t *testing.T) {
	h, _ := newTestObjectHandler(t, "my-bucket")
	putTestObject(t, h, "my-bucket", "a.txt", "a")
	putTestObject(t, h, "my-bucket", "dir/b.txt", "b")

	req := httptest.NewRequest("GET", "/my-bucket?list-type=2&delimiter=/", nil)
	rec := httptest.NewRecorder()
	h.ListObjectsV2(rec, req)

	var result xmlutil.ListBucketV2Result
	if err := xml.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse ListObjectsV2 response: %v", err)
	}
	if len(result.CommonPrefixes) != 1 || result.CommonPrefixes[0].Prefix != "dir/" {
		t.Errorf("CommonPrefixes = %v, want [dir/]", result.CommonPrefixes)
	}
}

func TestListObjectsV2Prefix(t *testing.T) {
	h, _ := newTestObjectHandler(t, "my-bucket")
	putTestObject(t, h, "my-bucket", "foo/a.txt", "a")
	putTestObject(t, h, "my-bucket", "bar/b.txt", "b")

	req := httptest.NewRequest("GET", "/my-bucket?list-type=2&prefix=foo/", nil)
	rec := httptest.NewRecorder()
	h.ListObjectsV2(rec, req)

	var result xmlutil.ListBucketV2Result
	if err := xml.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse ListObjectsV2 response: %v", err)
	}
	if len(result.Contents) != 1 || result.Contents[0].Key != "foo/a.txt" {
		t.Errorf("Contents = %v, want [foo/a.txt]", result.Contents)
	}
}

func TestListObjectsV1(t *testing.T) {
	h, _ := newTestObjectHandler(t, "my-bucket")
	putTestObject(t, h, "my-bucket", "a.txt", "a")

	req := httptest.NewRequest("GET", "/my-bucket", nil)
	rec := httptest.NewRecorder()
	h.ListObjects(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("ListObjects status = %d, want %d", rec.Code, http.StatusOK)
	}

	var result xmlutil.ListBucketResult
	if err := xml.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse ListObjects response: %v", err)
	}
	if len(result.Contents) != 1 {
		t.Errorf("len(Contents) = %d, want 1", len(result.Contents))
	}
}

func TestExtractObjectKey(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/bucket/key.txt", "key.txt"},
		{"/bucket/dir/nested/key.txt", "dir/nested/key.txt"},
		{"/bucket", ""},
		{"/bucket/", ""},
	}
	for _, tt := range tests {
		req := httptest.NewRequest("GET", tt.path, nil)
		if got := extractObjectKey(req); got != tt.want {
			t.Errorf("extractObjectKey(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

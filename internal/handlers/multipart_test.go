package handlers

import (
	"context"
	"encoding/xml"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/shoalstore/shoal/internal/storage"
	"github.com/shoalstore/shoal/internal/xmlutil"
)

// newTestMultipartHandler creates a MultipartHandler and ObjectHandler backed
// by a shared in-memory engine, with the named buckets already created.
func newTestMultipartHandler(t *testing.T, maxObjectSize int64, buckets ...string) (*MultipartHandler, *ObjectHandler, storage.Engine) {
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

	return NewMultipartHandler(engine, "shoal", "shoal", maxObjectSize),
		NewObjectHandler(engine, "shoal", "shoal"),
		engine
}

func createTestUpload(t *testing.T, h *MultipartHandler, bucket, key string) string {
	t.Helper()

	req := httptest.NewRequest("POST", "/"+bucket+"/"+key+"?uploads", nil)
	rec := httptest.NewRecorder()
	h.CreateMultipartUpload(rec, req)
	if rec.Code != http.StatusOK {
		body, _ := io.ReadAll(rec.Body)
		t.Fatalf("CreateMultipartUpload status = %d; body: %s", rec.Code, body)
	}

	var result xmlutil.InitiateMultipartUploadResult
	if err := xml.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse CreateMultipartUpload response: %v", err)
	}
	if result.UploadID == "" {
		t.Fatal("CreateMultipartUpload returned empty UploadID")
	}
	return result.UploadID
}

func uploadTestPart(t *testing.T, h *MultipartHandler, bucket, key, uploadID string, partNumber int, body string) string {
	t.Helper()

	url := "/" + bucket + "/" + key + "?partNumber=" + strconv.Itoa(partNumber) + "&uploadId=" + uploadID
	req := httptest.NewRequest("PUT", url, strings.NewReader(body))
	req.ContentLength = int64(len(body))
	rec := httptest.NewRecorder()
	h.UploadPart(rec, req)
	if rec.Code != http.StatusOK {
		respBody, _ := io.ReadAll(rec.Body)
		t.Fatalf("UploadPart status = %d; body: %s", rec.Code, respBody)
	}
	return rec.Header().Get("ETag")
}

func TestCreateMultipartUpload(t *testing.T) {
	h, _, _ := newTestMultipartHandler(t, 0, "my-bucket")

	uploadID := createTestUpload(t, h, "my-bucket", "big.bin")
	if uploadID == "" {
		t.Error("expected non-empty upload ID")
	}
}

func TestCreateMultipartUploadEmptyKey(t *testing.T) {
	h, _, _ := newTestMultipartHandler(t, 0, "my-bucket")

	req := httptest.NewRequest("POST", "/my-bucket/?uploads", nil)
	rec := httptest.NewRecorder()
	h.CreateMultipartUpload(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("CreateMultipartUpload empty key status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestCreateMultipartUploadBucketNotFound(t *testing.T) {
	h, _, _ := newTestMultipartHandler(t, 0)

	req := httptest.NewRequest("POST", "/no-such-bucket/big.bin?uploads", nil)
	rec := httptest.NewRecorder()
	h.CreateMultipartUpload(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("CreateMultipartUpload missing bucket status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestUploadPart(t *testing.T) {
	h, _, _ := newTestMultipartHandler(t, 0, "my-bucket")
	uploadID := createTestUpload(t, h, "my-bucket", "big.bin")

	etag := uploadTestPart(t, h, "my-bucket", "big.bin", uploadID, 1, "part-one-data")
	if etag == "" {
		t.Error("UploadPart returned empty ETag")
	}
}

func TestUploadPartInvalidPartNumber(t *testing.T) {
	h, _, _ := newTestMultipartHandler(t, 0, "my-bucket")
	uploadID := createTestUpload(t, h, "my-bucket", "big.bin")

	for _, pn := range []string{"0", "10001", "abc"} {
		req := httptest.NewRequest("PUT", "/my-bucket/big.bin?partNumber="+pn+"&uploadId="+uploadID, strings.NewReader("x"))
		rec := httptest.NewRecorder()
		h.UploadPart(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("UploadPart partNumber=%q status = %d, want %d", pn, rec.Code, http.StatusBadRequest)
		}
	}
}

func TestUploadPartMissingUploadID(t *testing.T) {
	h, _, _ := newTestMultipartHandler(t, 0, "my-bucket")

	req := httptest.NewRequest("PUT", "/my-bucket/big.bin?partNumber=1", strings.NewReader("x"))
	rec := httptest.NewRecorder()
	h.UploadPart(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("UploadPart missing uploadId status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestUploadPartExceedsMaxObjectSize(t *testing.T) {
	h, _, _ := newTestMultipartHandler(t, 10, "my-bucket")
	uploadID := createTestUpload(t, h, "my-bucket", "big.bin")

	body := strings.Repeat("x", 100)
	req := httptest.NewRequest("PUT", "/my-bucket/big.bin?partNumber=1&uploadId="+uploadID, strings.NewReader(body))
	req.ContentLength = int64(len(body))
	rec := httptest.NewRecorder()
	h.UploadPart(rec, req)

	if rec.Code != http.StatusBadRequest && !strings.Contains(rec.Body.String(), "EntityTooLarge") {
		t.Errorf("UploadPart over max size: status=%d body=%s", rec.Code, rec.Body.String())
	}
}

func TestCompleteMultipartUpload(t *testing.T) {
	h, obj, _ := newTestMultipartHandler(t, 0, "my-bucket")
	uploadID := createTestUpload(t, h, "my-bucket", "big.bin")

	etag1 := uploadTestPart(t, h, "my-bucket", "big.bin", uploadID, 1, "hello-")
	etag2 := uploadTestPart(t, h, "my-bucket", "big.bin", uploadID, 2, "world")

	body := `<?xml version="1.0" encoding="UTF-8"?>
<CompleteMultipartUpload>
  <Part><PartNumber>1</PartNumber><ETag>` + etag1 + `</ETag></Part>
  <Part><PartNumber>2</PartNumber><ETag>` + etag2 + `</ETag></Part>
</CompleteMultipartUpload>`
	req := httptest.NewRequest("POST", "/my-bucket/big.bin?uploadId="+uploadID, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.CompleteMultipartUpload(rec, req)

	if rec.Code != http.StatusOK {
		respBody, _ := io.ReadAll(rec.Body)
		t.Fatalf("CompleteMultipartUpload status = %d; body: %s", rec.Code, respBody)
	}

	var result xmlutil.CompleteMultipartUploadResult
	if err := xml.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse CompleteMultipartUpload response: %v", err)
	}
	if result.ETag == "" {
		t.Error("CompleteMultipartUpload response missing ETag")
	}

	req = httptest.NewRequest("GET", "/my-bucket/big.bin", nil)
	rec = httptest.NewRecorder()
	obj.GetObject(rec, req)
	if rec.Body.String() != "hello-world" {
		t.Errorf("assembled object body = %q, want %q", rec.Body.String(), "hello-world")
	}
}

func TestCompleteMultipartUploadEmptyParts(t *testing.T) {
	h, _, _ := newTestMultipartHandler(t, 0, "my-bucket")
	uploadID := createTestUpload(t, h, "my-bucket", "big.bin")

	body := `<?xml version="1.0" encoding="UTF-8"?><CompleteMultipartUpload></CompleteMultipartUpload>`
	req := httptest.NewRequest("POST", "/my-bucket/big.bin?uploadId="+uploadID, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.CompleteMultipartUpload(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("CompleteMultipartUpload empty parts status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestCompleteMultipartUploadOutOfOrderParts(t *testing.T) {
	h, _, _ := newTestMultipartHandler(t, 0, "my-bucket")
	uploadID := createTestUpload(t, h, "my-bucket", "big.bin")

	etag1 := uploadTestPart(t, h, "my-bucket", "big.bin", uploadID, 1, "a")
	etag2 := uploadTestPart(t, h, "my-bucket", "big.bin", uploadID, 2, "b")

	body := `<?xml version="1.0" encoding="UTF-8"?>
<CompleteMultipartUpload>
  <Part><PartNumber>2</PartNumber><ETag>` + etag2 + `</ETag></Part>
  <Part><PartNumber>1</PartNumber><ETag>` + etag1 + `</ETag></Part>
</CompleteMultipartUpload>`
	req := httptest.NewRequest("POST", "/my-bucket/big.bin?uploadId="+uploadID, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.CompleteMultipartUpload(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("CompleteMultipartUpload out-of-order status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
	if !strings.Contains(rec.Body.String(), "InvalidPartOrder") {
		t.Errorf("expected InvalidPartOrder, got: %s", rec.Body.String())
	}
}

func TestCompleteMultipartUploadMalformedXML(t *testing.T) {
	h, _, _ := newTestMultipartHandler(t, 0, "my-bucket")
	uploadID := createTestUpload(t, h, "my-bucket", "big.bin")

	req := httptest.NewRequest("POST", "/my-bucket/big.bin?uploadId="+uploadID, strings.NewReader("not xml"))
	rec := httptest.NewRecorder()
	h.CompleteMultipartUpload(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("CompleteMultipartUpload malformed XML status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestAbortMultipartUpload(t *testing.T) {
	h, _, _ := newTestMultipartHandler(t, 0, "my-bucket")
	uploadID := createTestUpload(t, h, "my-bucket", "big.bin")
	uploadTestPart(t, h, "my-bucket", "big.bin", uploadID, 1, "data")

	req := httptest.NewRequest("DELETE", "/my-bucket/big.bin?uploadId="+uploadID, nil)
	rec := httptest.NewRecorder()
	h.AbortMultipartUpload(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("AbortMultipartUpload status = %d, want %d", rec.Code, http.StatusNoContent)
	}

	req = httptest.NewRequest("GET", "/my-bucket/big.bin?uploadId="+uploadID, nil)
	rec = httptest.NewRecorder()
	h.ListParts(rec, req)
	if rec.Code == http.StatusOK {
		t.Error("expected ListParts to fail after abort")
	}
}

func TestAbortMultipartUploadMissingUploadID(t *testing.T) {
	h, _, _ := newTestMultipartHandler(t, 0, "my-bucket")

	req := httptest.NewRequest("DELETE", "/my-bucket/big.bin", nil)
	rec := httptest.NewRecorder()
	h.AbortMultipartUpload(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("AbortMultipartUpload missing uploadId status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestListParts(t *testing.T) {
	h, _, _ := newTestMultipartHandler(t, 0, "my-bucket")
	uploadID := createTestUpload(t, h, "my-bucket", "big.bin")
	uploadTestPart(t, h, "my-bucket", "big.bin", uploadID, 1, "aaaa")
	uploadTestPart(t, h, "my-bucket", "big.bin", uploadID, 2, "bbbbb")

	req := httptest.NewRequest("GET", "/my-bucket/big.bin?uploadId="+uploadID, nil)
	rec := httptest.NewRecorder()
	h.ListParts(rec, req)

	if rec.Code != http.StatusOK {
		body, _ := io.ReadAll(rec.Body)
		t.Fatalf("ListParts status = %d; body: %s", rec.Code, body)
	}

	var result xmlutil.ListPartsResult
	if err := xml.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse ListParts response: %v", err)
	}
	if len(result.Parts) != 2 {
		t.Fatalf("len(Parts) = %d, want 2", len(result.Parts))
	}
	if result.Parts[0].PartNumber != 1 || result.Parts[0].Size != 4 {
		t.Errorf("Parts[0] = %+v, want PartNumber=1 Size=4", result.Parts[0])
	}
	if result.Parts[1].PartNumber != 2 || result.Parts[1].Size != 5 {
		t.Errorf("Parts[1] = %+v, want PartNumber=2 Size=5", result.Parts[1])
	}
}

func TestListPartsMissingUploadID(t *testing.T) {
	h, _, _ := newTestMultipartHandler(t, 0, "my-bucket")

	req := httptest.NewRequest("GET", "/my-bucket/big.bin", nil)
	rec := httptest.NewRecorder()
	h.ListParts(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("ListParts missing uploadId status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestListMultipartUploads(t *testing.T) {
	h, _, _ := newTestMultipartHandler(t, 0, "my-bucket")
	createTestUpload(t, h, "my-bucket", "a.bin")
	createTestUpload(t, h, "my-bucket", "b.bin")

	req := httptest.NewRequest("GET", "/my-bucket?uploads", nil)
	rec := httptest.NewRecorder()
	h.ListMultipartUploads(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("ListMultipartUploads status = %d, want %d", rec.Code, http.StatusOK)
	}

	var result xmlutil.ListMultipartUploadsResult
	if err := xml.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse ListMultipartUploads response: %v", err)
	}
	if len(result.Uploads) != 2 {
		t.Errorf("len(Uploads) = %d, want 2", len(result.Uploads))
	}
}

func TestUploadPartCopy(t *testing.T) {
	h, obj, _ := newTestMultipartHandler(t, 0, "src-bucket", "dst-bucket")

	putReq := httptest.NewRequest("PUT", "/src-bucket/orig.bin", strings.NewReader("source-bytes"))
	putReq.ContentLength = int64(len("source-bytes"))
	putRec := httptest.NewRecorder()
	obj.PutObject(putRec, putReq)
	if putRec.Code != http.StatusOK {
		t.Fatalf("seed PutObject status = %d", putRec.Code)
	}

	uploadID := createTestUpload(t, h, "dst-bucket", "assembled.bin")

	req := httptest.NewRequest("PUT", "/dst-bucket/assembled.bin?partNumber=1&uploadId="+uploadID, nil)
	req.Header.Set("X-Amz-Copy-Source", "/src-bucket/orig.bin")
	rec := httptest.NewRecorder()
	h.UploadPart(rec, req)

	if rec.Code != http.StatusOK {
		body, _ := io.ReadAll(rec.Body)
		t.Fatalf("UploadPart copy status = %d; body: %s", rec.Code, body)
	}

	var result xmlutil.CopyPartResult
	if err := xml.Unmarshal(rec.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to parse UploadPartCopy response: %v", err)
	}
	if result.ETag == "" {
		t.Error("UploadPartCopy response missing ETag")
	}
}

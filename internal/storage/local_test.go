package storage

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newTestEngine(t *testing.T) *LocalEngine {
	t.Helper()
	rootDir := t.TempDir()
	engine, err := NewLocalEngine(rootDir)
	if err != nil {
		t.Fatalf("NewLocalEngine failed: %v", err)
	}
	return engine
}

func TestPutAndGetObject(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()

	if err := engine.CreateBucket(ctx, "test-bucket"); err != nil {
		t.Fatalf("CreateBucket failed: %v", err)
	}

	content := "Hello, Shoal!"
	result, err := engine.PutObject(ctx, "test-bucket", "hello.txt", strings.NewReader(content), int64(len(content)), "text/plain", nil)
	if err != nil {
		t.Fatalf("PutObject failed: %v", err)
	}

	if result.ETag == "" {
		t.Error("PutObject: etag is empty")
	}
	if !strings.HasPrefix(result.ETag, `"`) || !strings.HasSuffix(result.ETag, `"`) {
		t.Errorf("ETag not quoted: %q", result.ETag)
	}

	reader, md, err := engine.GetObject(ctx, "test-bucket", "hello.txt", nil)
	if err != nil {
		t.Fatalf("GetObject failed: %v", err)
	}
	defer reader.Close()

	if md.ContentLength != int64(len(content)) {
		t.Errorf("GetObject ContentLength = %d, want %d", md.ContentLength, len(content))
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if string(data) != content {
		t.Errorf("GetObject data = %q, want %q", string(data), content)
	}
}

func TestPutObjectNestedKey(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()

	if err := engine.CreateBucket(ctx, "test-bucket"); err != nil {
		t.Fatalf("CreateBucket failed: %v", err)
	}

	content := "nested content"
	if _, err := engine.PutObject(ctx, "test-bucket", "path/to/deep/file.txt", strings.NewReader(content), int64(len(content)), "text/plain", nil); err != nil {
		t.Fatalf("PutObject (nested) failed: %v", err)
	}

	reader, _, err := engine.GetObject(ctx, "test-bucket", "path/to/deep/file.txt", nil)
	if err != nil {
		t.Fatalf("GetObject (nested) failed: %v", err)
	}
	defer reader.Close()

	data, _ := io.ReadAll(reader)
	if string(data) != content {
		t.Errorf("nested data = %q, want %q", string(data), content)
	}
}

func TestPutObjectAtomicWrite(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()

	if err := engine.CreateBucket(ctx, "test-bucket"); err != nil {
		t.Fatalf("CreateBucket failed: %v", err)
	}

	content := "atomic write test"
	if _, err := engine.PutObject(ctx, "test-bucket", "atomic.txt", strings.NewReader(content), int64(len(content)), "text/plain", nil); err != nil {
		t.Fatalf("PutObject failed: %v", err)
	}

	tmpDir := filepath.Join(engine.rootDir, ".tmp")
	entries, err := os.ReadDir(tmpDir)
	if err != nil {
		t.Fatalf("ReadDir .tmp failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf(".tmp directory should be empty after PutObject, has %d entries", len(entries))
	}

	objPath := filepath.Join(engine.rootDir, "buckets", "test-bucket", "objects", "atomic.txt")
	if _, err := os.Stat(objPath); os.IsNotExist(err) {
		t.Error("Object file does not exist at expected path")
	}
}

func TestDeleteObject(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()

	if err := engine.CreateBucket(ctx, "test-bucket"); err != nil {
		t.Fatalf("CreateBucket failed: %v", err)
	}

	content := "delete me"
	if _, err := engine.PutObject(ctx, "test-bucket", "delete.txt", strings.NewReader(content), int64(len(content)), "text/plain", nil); err != nil {
		t.Fatalf("PutObject failed: %v", err)
	}

	if err := engine.DeleteObject(ctx, "test-bucket", "delete.txt"); err != nil {
		t.Fatalf("DeleteObject failed: %v", err)
	}

	if _, _, err := engine.GetObject(ctx, "test-bucket", "delete.txt", nil); !errors.Is(err, ErrObjectNotFound) {
		t.Errorf("expected ErrObjectNotFound after deletion, got %v", err)
	}
}

func TestDeleteObjectNotFound(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()

	if err := engine.CreateBucket(ctx, "test-bucket"); err != nil {
		t.Fatalf("CreateBucket failed: %v", err)
	}

	err := engine.DeleteObject(ctx, "test-bucket", "nonexistent.txt")
	if !errors.Is(err, ErrObjectNotFound) {
		t.Errorf("DeleteObject (non-existent) should return ErrObjectNotFound, got: %v", err)
	}
}

func TestDeleteObjectCleansEmptyDirs(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()

	if err := engine.CreateBucket(ctx, "test-bucket"); err != nil {
		t.Fatalf("CreateBucket failed: %v", err)
	}

	content := "nested delete"
	if _, err := engine.PutObject(ctx, "test-bucket", "a/b/c/file.txt", strings.NewReader(content), int64(len(content)), "text/plain", nil); err != nil {
		t.Fatalf("PutObject failed: %v", err)
	}

	if err := engine.DeleteObject(ctx, "test-bucket", "a/b/c/file.txt"); err != nil {
		t.Fatalf("DeleteObject failed: %v", err)
	}

	aDir := filepath.Join(engine.rootDir, "buckets", "test-bucket", "objects", "a")
	if _, err := os.Stat(aDir); !os.IsNotExist(err) {
		t.Errorf("Expected empty parent dir %q to be removed", aDir)
	}

	bucketDir := filepath.Join(engine.rootDir, "buckets", "test-bucket")
	if _, err := os.Stat(bucketDir); os.IsNotExist(err) {
		t.Error("Bucket directory should still exist")
	}
}

func TestCleanTempFilesOnStartup(t *testing.T) {
	rootDir := t.TempDir()
	tmpDir := filepath.Join(rootDir, ".tmp")
	if err := os.MkdirAll(tmpDir, 0o755); err != nil {
		t.Fatalf("MkdirAll failed: %v", err)
	}
	for _, name := range []string{"tmp-abc123", "tmp-def456"} {
		path := filepath.Join(tmpDir, name)
		if err := os.WriteFile(path, []byte("orphan"), 0o644); err != nil {
			t.Fatalf("WriteFile failed: %v", err)
		}
	}

	entries, _ := os.ReadDir(tmpDir)
	if len(entries) != 2 {
		t.Fatalf("Expected 2 temp files, got %d", len(entries))
	}

	// Re-opening the engine at the same root is a crash-only recovery: any
	// files left in .tmp from a previous run are swept on NewLocalEngine.
	if _, err := NewLocalEngine(rootDir); err != nil {
		t.Fatalf("NewLocalEngine failed: %v", err)
	}

	entries, _ = os.ReadDir(tmpDir)
	if len(entries) != 0 {
		t.Errorf("Expected 0 temp files after startup cleanup, got %d", len(entries))
	}
}

func TestCopyObject(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()

	if err := engine.CreateBucket(ctx, "src-bucket"); err != nil {
		t.Fatalf("CreateBucket src failed: %v", err)
	}
	if err := engine.CreateBucket(ctx, "dst-bucket"); err != nil {
		t.Fatalf("CreateBucket dst failed: %v", err)
	}

	content := "copy me"
	put, err := engine.PutObject(ctx, "src-bucket", "original.txt", strings.NewReader(content), int64(len(content)), "text/plain", nil)
	if err != nil {
		t.Fatalf("PutObject failed: %v", err)
	}

	copyResult, err := engine.CopyObject(ctx, "src-bucket", "original.txt", "dst-bucket", "copied.txt")
	if err != nil {
		t.Fatalf("CopyObject failed: %v", err)
	}

	if put.ETag != copyResult.ETag {
		t.Errorf("ETags should match: %q != %q", put.ETag, copyResult.ETag)
	}

	reader, _, err := engine.GetObject(ctx, "dst-bucket", "copied.txt", nil)
	if err != nil {
		t.Fatalf("GetObject (copy) failed: %v", err)
	}
	defer reader.Close()

	data, _ := io.ReadAll(reader)
	if string(data) != content {
		t.Errorf("Copied data = %q, want %q", string(data), content)
	}
}

func TestGetObjectNotFound(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()

	if err := engine.CreateBucket(ctx, "test-bucket"); err != nil {
		t.Fatalf("CreateBucket failed: %v", err)
	}

	_, _, err := engine.GetObject(ctx, "test-bucket", "nonexistent.txt", nil)
	if !errors.Is(err, ErrObjectNotFound) {
		t.Errorf("GetObject should return ErrObjectNotFound, got: %v", err)
	}
}

func TestPutObjectEmptyBody(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()

	if err := engine.CreateBucket(ctx, "test-bucket"); err != nil {
		t.Fatalf("CreateBucket failed: %v", err)
	}

	result, err := engine.PutObject(ctx, "test-bucket", "empty.txt", strings.NewReader(""), 0, "text/plain", nil)
	if err != nil {
		t.Fatalf("PutObject (empty) failed: %v", err)
	}
	if result.ETag == "" {
		t.Error("ETag should not be empty even for empty object")
	}

	reader, md, err := engine.GetObject(ctx, "test-bucket", "empty.txt", nil)
	if err != nil {
		t.Fatalf("GetObject (empty) failed: %v", err)
	}
	defer reader.Close()

	if md.ContentLength != 0 {
		t.Errorf("ContentLength = %d, want 0", md.ContentLength)
	}
}

func TestCreateAndDeleteBucket(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()

	if err := engine.CreateBucket(ctx, "my-bucket"); err != nil {
		t.Fatalf("CreateBucket failed: %v", err)
	}
	bucketDir := filepath.Join(engine.rootDir, "buckets", "my-bucket")
	if _, err := os.Stat(bucketDir); os.IsNotExist(err) {
		t.Error("Bucket directory should exist after creation")
	}

	if err := engine.DeleteBucket(ctx, "my-bucket"); err != nil {
		t.Fatalf("DeleteBucket failed: %v", err)
	}
	if _, err := os.Stat(bucketDir); !os.IsNotExist(err) {
		t.Error("Bucket directory should not exist after deletion")
	}
}

func TestDeleteBucketNotEmpty(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()

	if err := engine.CreateBucket(ctx, "my-bucket"); err != nil {
		t.Fatalf("CreateBucket failed: %v", err)
	}
	if _, err := engine.PutObject(ctx, "my-bucket", "key.txt", strings.NewReader("x"), 1, "text/plain", nil); err != nil {
		t.Fatalf("PutObject failed: %v", err)
	}

	if err := engine.DeleteBucket(ctx, "my-bucket"); !errors.Is(err, ErrBucketNotEmpty) {
		t.Errorf("DeleteBucket on non-empty bucket should return ErrBucketNotEmpty, got: %v", err)
	}
}

func TestPutObjectOverwrite(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()

	if err := engine.CreateBucket(ctx, "test-bucket"); err != nil {
		t.Fatalf("CreateBucket failed: %v", err)
	}

	v1, err := engine.PutObject(ctx, "test-bucket", "overwrite.txt", strings.NewReader("version 1"), 9, "text/plain", nil)
	if err != nil {
		t.Fatalf("PutObject v1 failed: %v", err)
	}

	v2, err := engine.PutObject(ctx, "test-bucket", "overwrite.txt", strings.NewReader("version 2!!"), 11, "text/plain", nil)
	if err != nil {
		t.Fatalf("PutObject v2 failed: %v", err)
	}

	if v1.ETag == v2.ETag {
		t.Error("ETags should differ for different content")
	}

	reader, _, err := engine.GetObject(ctx, "test-bucket", "overwrite.txt", nil)
	if err != nil {
		t.Fatalf("GetObject failed: %v", err)
	}
	defer reader.Close()

	data, _ := io.ReadAll(reader)
	if string(data) != "version 2!!" {
		t.Errorf("data = %q, want %q", string(data), "version 2!!")
	}
}

func TestPutObjectUserMetadataRoundTrip(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()

	if err := engine.CreateBucket(ctx, "test-bucket"); err != nil {
		t.Fatalf("CreateBucket failed: %v", err)
	}

	meta := map[string]string{"author": "shoal", "origin": "test"}
	if _, err := engine.PutObject(ctx, "test-bucket", "meta.txt", strings.NewReader("x"), 1, "text/plain", meta); err != nil {
		t.Fatalf("PutObject failed: %v", err)
	}

	md, err := engine.HeadObject(ctx, "test-bucket", "meta.txt")
	if err != nil {
		t.Fatalf("HeadObject failed: %v", err)
	}
	if md.UserMetadata["author"] != "shoal" || md.UserMetadata["origin"] != "test" {
		t.Errorf("UserMetadata = %v, want author=shoal origin=test", md.UserMetadata)
	}
}

func TestGetObjectRange(t *testing.T) {
	engine := newTestEngine(t)
	ctx := context.Background()

	if err := engine.CreateBucket(ctx, "test-bucket"); err != nil {
		t.Fatalf("CreateBucket failed: %v", err)
	}
	content := "0123456789"
	if _, err := engine.PutObject(ctx, "test-bucket", "range.txt", strings.NewReader(content), int64(len(content)), "text/plain", nil); err != nil {
		t.Fatalf("PutObject failed: %v", err)
	}

	reader, md, err := engine.GetObject(ctx, "test-bucket", "range.txt", &Range{Start: 2, End: 5, EndSet: true})
	if err != nil {
		t.Fatalf("GetObject (range) failed: %v", err)
	}
	defer reader.Close()

	data, _ := io.ReadAll(reader)
	if string(data) != "234" {
		t.Errorf("ranged data = %q, want %q", string(data), "234")
	}
	if md.ContentLength != int64(len("234")) {
		t.Errorf("ranged ContentLength = %d, want %d", md.ContentLength, len("234"))
	}
}

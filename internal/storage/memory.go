package storage

import (
	"bytes"
	"context"
	"crypto/md5"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shoalstore/shoal/internal/uid"
)

type memObject struct {
	data         []byte
	etag         string
	contentType  string
	lastModified time.Time
	userMetadata map[string]string
}

type memUpload struct {
	bucket       string
	key          string
	contentType  string
	userMetadata map[string]string
	initiated    time.Time
	parts        map[int]memPart
}

type memPart struct {
	data         []byte
	etag         string
	lastModified time.Time
}

// MemoryEngine implements Engine entirely in RAM: maps guarded by a single
// RWMutex. It optionally persists periodic snapshots to a SQLite file (via
// snapshotStore) so state survives a restart, trading a window of
// unpersisted writes for not needing a filesystem at all in the hot path.
type MemoryEngine struct {
	mu      sync.RWMutex
	buckets map[string]BucketInfo
	objects map[string]map[string]memObject // bucket -> key -> object
	uploads map[string]*memUpload

	maxSizeBytes int64
	currentSize  int64

	snapshots *snapshotStore
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

// MemoryEngineOption configures a MemoryEngine.
type MemoryEngineOption func(*MemoryEngine)

// WithMaxSize bounds the engine's total stored bytes; PutObject/UploadPart
// fail once the bound would be exceeded.
func WithMaxSize(maxSizeBytes int64) MemoryEngineOption {
	return func(e *MemoryEngine) { e.maxSizeBytes = maxSizeBytes }
}

// WithSnapshotPersistence enables periodic SQLite-backed snapshotting: any
// existing snapshot at path is loaded immediately, and a background
// goroutine writes a fresh one every interval until Close.
func WithSnapshotPersistence(path string, interval time.Duration) MemoryEngineOption {
	return func(e *MemoryEngine) {
		e.snapshots = &snapshotStore{path: path, interval: interval}
	}
}

// NewMemoryEngine creates an empty in-memory engine, applying any options
// and restoring from an existing snapshot if snapshot persistence is
// configured.
func NewMemoryEngine(opts ...MemoryEngineOption) (*MemoryEngine, error) {
	e := &MemoryEngine{
		buckets: make(map[string]BucketInfo),
		objects: make(map[string]map[string]memObject),
		uploads: make(map[string]*memUpload),
		stopCh:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.snapshots != nil {
		if err := e.snapshots.load(e); err != nil {
			return nil, fmt.Errorf("loading snapshot: %w", err)
		}
		if e.snapshots.interval > 0 {
			e.wg.Add(1)
			go e.snapshotLoop()
		}
	}

	return e, nil
}

func (e *MemoryEngine) snapshotLoop() {
	defer e.wg.Done()
	ticker := time.NewTicker(e.snapshots.interval)
	defer ticker.Stop()
	for {
		select {
		case <-e.stopCh:
			return
		case <-ticker.C:
			if err := e.snapshots.save(e); err != nil {
				slog.Error("memory engine snapshot failed", "error", err)
			}
		}
	}
}

// Close stops background snapshotting and, if enabled, writes one final
// snapshot.
func (e *MemoryEngine) Close() error {
	close(e.stopCh)
	e.wg.Wait()
	if e.snapshots != nil {
		return e.snapshots.save(e)
	}
	return nil
}

func computeETag(data []byte) string {
	h := md5.Sum(data)
	return fmt.Sprintf(`"%x"`, h[:])
}

func (e *MemoryEngine) CreateBucket(ctx context.Context, name string) error {
	if !validBucketName(name) {
		return ErrInvalidBucketName
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.buckets[name]; ok {
		return ErrBucketAlreadyExists
	}
	e.buckets[name] = BucketInfo{Name: name, CreationDate: time.Now().UTC()}
	e.objects[name] = make(map[string]memObject)
	return nil
}

func (e *MemoryEngine) DeleteBucket(ctx context.Context, name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.buckets[name]; !ok {
		return ErrBucketNotFound
	}
	if len(e.objects[name]) > 0 {
		return ErrBucketNotEmpty
	}
	delete(e.buckets, name)
	delete(e.objects, name)
	return nil
}

func (e *MemoryEngine) BucketExists(ctx context.Context, name string) (bool, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	_, ok := e.buckets[name]
	return ok, nil
}

func (e *MemoryEngine) GetBucketInfo(ctx context.Context, name string) (BucketInfo, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	info, ok := e.buckets[name]
	if !ok {
		return BucketInfo{}, ErrBucketNotFound
	}
	return info, nil
}

func (e *MemoryEngine) ListBuckets(ctx context.Context) ([]BucketInfo, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	buckets := make([]BucketInfo, 0, len(e.buckets))
	for _, b := range e.buckets {
		buckets = append(buckets, b)
	}
	sort.Slice(buckets, func(i, j int) bool { return buckets[i].Name < buckets[j].Name })
	return buckets, nil
}

func (e *MemoryEngine) PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64, contentType string, userMetadata map[string]string) (PutResult, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return PutResult{}, fmt.Errorf("reading object data: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	objs, ok := e.objects[bucket]
	if !ok {
		return PutResult{}, ErrBucketNotFound
	}

	delta := int64(len(data))
	if existing, ok := objs[key]; ok {
		delta -= int64(len(existing.data))
	}
	if e.maxSizeBytes > 0 && e.currentSize+delta > e.maxSizeBytes {
		return PutResult{}, fmt.Errorf("memory limit exceeded: current=%d delta=%d max=%d", e.currentSize, delta, e.maxSizeBytes)
	}

	lastModified := time.Now().UTC()
	etag := computeETag(data)
	objs[key] = memObject{
		data:         data,
		etag:         etag,
		contentType:  contentType,
		lastModified: lastModified,
		userMetadata: userMetadata,
	}
	e.currentSize += delta

	return PutResult{ETag: etag, LastModified: lastModified}, nil
}

func (e *MemoryEngine) GetObject(ctx context.Context, bucket, key string, rng *Range) (io.ReadCloser, ObjectMetadata, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	objs, ok := e.objects[bucket]
	if !ok {
		return nil, ObjectMetadata{}, ErrBucketNotFound
	}
	obj, ok := objs[key]
	if !ok {
		return nil, ObjectMetadata{}, ErrObjectNotFound
	}

	md := ObjectMetadata{
		ContentLength: int64(len(obj.data)),
		ETag:          obj.etag,
		ContentType:   obj.contentType,
		LastModified:  obj.lastModified,
		UserMetadata:  obj.userMetadata,
	}

	data := obj.data
	if rng != nil {
		length := int64(len(obj.data))
		end := rng.resolvedEnd(length)
		if rng.Start < 0 || rng.Start >= length || end > length || rng.Start >= end {
			return nil, ObjectMetadata{}, ErrInvalidRange
		}
		data = obj.data[rng.Start:end]
		md.ContentLength = end - rng.Start
	}

	dataCopy := make([]byte, len(data))
	copy(dataCopy, data)
	return io.NopCloser(bytes.NewReader(dataCopy)), md, nil
}

func (e *MemoryEngine) HeadObject(ctx context.Context, bucket, key string) (ObjectMetadata, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	objs, ok := e.objects[bucket]
	if !ok {
		return ObjectMetadata{}, ErrBucketNotFound
	}
	obj, ok := objs[key]
	if !ok {
		return ObjectMetadata{}, ErrObjectNotFound
	}
	return ObjectMetadata{
		ContentLength: int64(len(obj.data)),
		ETag:          obj.etag,
		ContentType:   obj.contentType,
		LastModified:  obj.lastModified,
		UserMetadata:  obj.userMetadata,
	}, nil
}

func (e *MemoryEngine) DeleteObject(ctx context.Context, bucket, key string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	objs, ok := e.objects[bucket]
	if !ok {
		return ErrBucketNotFound
	}
	obj, ok := objs[key]
	if !ok {
		return ErrObjectNotFound
	}
	e.currentSize -= int64(len(obj.data))
	delete(objs, key)
	return nil
}

func (e *MemoryEngine) CopyObject(ctx context.Context, srcBucket, srcKey, dstBucket, dstKey string) (PutResult, error) {
	e.mu.RLock()
	srcObjs, ok := e.objects[srcBucket]
	if !ok {
		e.mu.RUnlock()
		return PutResult{}, ErrBucketNotFound
	}
	src, ok := srcObjs[srcKey]
	if !ok {
		e.mu.RUnlock()
		return PutResult{}, ErrObjectNotFound
	}
	dataCopy := make([]byte, len(src.data))
	copy(dataCopy, src.data)
	contentType, userMetadata := src.contentType, src.userMetadata
	e.mu.RUnlock()

	return e.PutObject(ctx, dstBucket, dstKey, bytes.NewReader(dataCopy), int64(len(dataCopy)), contentType, userMetadata)
}

func (e *MemoryEngine) ListObjects(ctx context.Context, bucket string, params ListObjectsParams) (ListResult, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	objs, ok := e.objects[bucket]
	if !ok {
		return ListResult{}, ErrBucketNotFound
	}

	keys := make([]string, 0, len(objs))
	for k := range objs {
		if strings.HasPrefix(k, params.Prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	return assembleListResult(keys, params, func(key string) (ObjectSummary, error) {
		obj := objs[key]
		return ObjectSummary{Key: key, ETag: obj.etag, Size: int64(len(obj.data)), LastModified: obj.lastModified}, nil
	}), nil
}

func (e *MemoryEngine) CreateMultipartUpload(ctx context.Context, bucket, key, contentType string, userMetadata map[string]string) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.objects[bucket]; !ok {
		return "", ErrBucketNotFound
	}
	uploadID := uid.NewUUID()
	e.uploads[uploadID] = &memUpload{
		bucket:       bucket,
		key:          key,
		contentType:  contentType,
		userMetadata: userMetadata,
		initiated:    time.Now().UTC(),
		parts:        make(map[int]memPart),
	}
	return uploadID, nil
}

func (e *MemoryEngine) UploadPart(ctx context.Context, bucket, key, uploadID string, partNumber int, r io.Reader, size int64) (PartInfo, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return PartInfo{}, fmt.Errorf("reading part data: %w", err)
	}
	if partNumber < 1 || partNumber > 10000 {
		return PartInfo{}, ErrInvalidPart
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	upload, ok := e.uploads[uploadID]
	if !ok || upload.bucket != bucket || upload.key != key {
		return PartInfo{}, ErrUploadNotFound
	}

	delta := int64(len(data))
	if existing, ok := upload.parts[partNumber]; ok {
		delta -= int64(len(existing.data))
	}
	if e.maxSizeBytes > 0 && e.currentSize+delta > e.maxSizeBytes {
		return PartInfo{}, fmt.Errorf("memory limit exceeded: current=%d delta=%d max=%d", e.currentSize, delta, e.maxSizeBytes)
	}

	lastModified := time.Now().UTC()
	etag := computeETag(data)
	upload.parts[partNumber] = memPart{data: data, etag: etag, lastModified: lastModified}
	e.currentSize += delta

	return PartInfo{PartNumber: partNumber, ETag: etag, Size: int64(len(data)), LastModified: lastModified}, nil
}

func (e *MemoryEngine) CompleteMultipartUpload(ctx context.Context, bucket, key, uploadID string, parts []PartRef) (CompleteResult, error) {
	for i := 1; i < len(parts); i++ {
		if parts[i].PartNumber <= parts[i-1].PartNumber {
			return CompleteResult{}, ErrInvalidPartOrder
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	upload, ok := e.uploads[uploadID]
	if !ok || upload.bucket != bucket || upload.key != key {
		return CompleteResult{}, ErrUploadNotFound
	}
	objs, ok := e.objects[bucket]
	if !ok {
		return CompleteResult{}, ErrBucketNotFound
	}

	var assembled []byte
	for _, p := range parts {
		part, ok := upload.parts[p.PartNumber]
		if !ok || part.etag != p.ETag {
			return CompleteResult{}, ErrInvalidPart
		}
		assembled = append(assembled, part.data...)
	}

	etag := computeETag(assembled)
	lastModified := time.Now().UTC()

	delta := int64(len(assembled))
	if existing, ok := objs[key]; ok {
		delta -= int64(len(existing.data))
	}
	var partsTotal int64
	for _, part := range upload.parts {
		partsTotal += int64(len(part.data))
	}
	delta -= partsTotal

	objs[key] = memObject{
		data:         assembled,
		etag:         etag,
		contentType:  upload.contentType,
		lastModified: lastModified,
		userMetadata: upload.userMetadata,
	}
	e.currentSize += delta
	delete(e.uploads, uploadID)

	return CompleteResult{ETag: etag, LastModified: lastModified, Size: int64(len(assembled))}, nil
}

func (e *MemoryEngine) AbortMultipartUpload(ctx context.Context, bucket, key, uploadID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	upload, ok := e.uploads[uploadID]
	if !ok || upload.bucket != bucket || upload.key != key {
		return nil
	}
	var partsTotal int64
	for _, part := range upload.parts {
		partsTotal += int64(len(part.data))
	}
	e.currentSize -= partsTotal
	delete(e.uploads, uploadID)
	return nil
}

func (e *MemoryEngine) ListParts(ctx context.Context, bucket, key, uploadID string) ([]PartInfo, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	upload, ok := e.uploads[uploadID]
	if !ok || upload.bucket != bucket || upload.key != key {
		return nil, ErrUploadNotFound
	}
	parts := make([]PartInfo, 0, len(upload.parts))
	for n, p := range upload.parts {
		parts = append(parts, PartInfo{PartNumber: n, ETag: p.etag, Size: int64(len(p.data)), LastModified: p.lastModified})
	}
	sort.Slice(parts, func(i, j int) bool { return parts[i].PartNumber < parts[j].PartNumber })
	return parts, nil
}

func (e *MemoryEngine) ListMultipartUploads(ctx context.Context, bucket string) ([]UploadInfo, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var uploads []UploadInfo
	for id, u := range e.uploads {
		if u.bucket != bucket {
			continue
		}
		uploads = append(uploads, UploadInfo{UploadID: id, Key: u.key, Initiated: u.initiated, ContentType: u.contentType})
	}
	sort.Slice(uploads, func(i, j int) bool {
		if uploads[i].Key != uploads[j].Key {
			return uploads[i].Key < uploads[j].Key
		}
		return uploads[i].UploadID < uploads[j].UploadID
	})
	return uploads, nil
}

func (e *MemoryEngine) Stats(ctx context.Context) (StorageStats, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	stats := StorageStats{TotalBuckets: uint64(len(e.buckets))}
	for _, objs := range e.objects {
		stats.TotalObjects += uint64(len(objs))
		for _, obj := range objs {
			stats.TotalSizeBytes += uint64(len(obj.data))
		}
	}
	return stats, nil
}

func (e *MemoryEngine) HealthCheck(ctx context.Context) error {
	return nil
}

var _ Engine = (*MemoryEngine)(nil)

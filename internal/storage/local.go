package storage

import (
	"context"
	"crypto/md5"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shoalstore/shoal/internal/uid"
)

// LocalEngine implements Engine on the local filesystem. Each bucket is a
// directory under RootDir; each object is a data file plus a JSON metadata
// sidecar. Writes go through a temp-file-then-rename pattern so a crash mid
// write never leaves a partially-written file at the final path: the data
// file lands before its metadata sidecar, and a delete unlinks the sidecar
// before the data file, so a concurrent reader observes either the whole
// object or nothing — never a metadata-without-data state.
//
// Multipart upload state (which parts exist, their order) lives in memory
// only; the part bytes themselves are written to a per-upload directory
// under .multipart so a crash during upload leaves only orphaned part files,
// never a corrupted object.
type LocalEngine struct {
	rootDir string

	mu      sync.RWMutex
	uploads map[string]*localUpload
}

type localUpload struct {
	bucket       string
	key          string
	contentType  string
	userMetadata map[string]string
	initiated    time.Time
	parts        map[int]PartInfo
}

// NewLocalEngine creates a LocalEngine rooted at rootDir, creating the root
// and its temp directory if they do not exist, and clearing any temp files
// left behind by a previous crash.
func NewLocalEngine(rootDir string) (*LocalEngine, error) {
	if err := os.MkdirAll(rootDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating storage root directory %q: %w", rootDir, err)
	}
	tmpDir := filepath.Join(rootDir, ".tmp")
	if err := os.MkdirAll(tmpDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating temp directory %q: %w", tmpDir, err)
	}
	e := &LocalEngine{
		rootDir: rootDir,
		uploads: make(map[string]*localUpload),
	}
	if err := e.cleanTempFiles(); err != nil {
		return nil, fmt.Errorf("cleaning temp files: %w", err)
	}
	return e, nil
}

// cleanTempFiles removes every file left in .tmp. Called once at startup:
// every startup is a recovery from whatever the previous process left.
func (e *LocalEngine) cleanTempFiles() error {
	tmpDir := filepath.Join(e.rootDir, ".tmp")
	entries, err := os.ReadDir(tmpDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			os.Remove(filepath.Join(tmpDir, entry.Name()))
		}
	}
	return nil
}

func (e *LocalEngine) bucketDir(bucket string) string {
	return filepath.Join(e.rootDir, "buckets", bucket)
}

func (e *LocalEngine) dataPath(bucket, key string) string {
	return filepath.Join(e.bucketDir(bucket), "data", key)
}

func (e *LocalEngine) metaPath(bucket, key string) string {
	return filepath.Join(e.bucketDir(bucket), "meta", key+".json")
}

func (e *LocalEngine) tempPath() string {
	return filepath.Join(e.rootDir, ".tmp", "tmp-"+uid.New())
}

// objectMeta is the on-disk JSON sidecar format.
type objectMeta struct {
	ContentType   string            `json:"content_type"`
	ContentLength int64             `json:"content_length"`
	ETag          string            `json:"etag"`
	LastModified  time.Time         `json:"last_modified"`
	UserMetadata  map[string]string `json:"user_metadata,omitempty"`
}

func (e *LocalEngine) CreateBucket(ctx context.Context, name string) error {
	if !validBucketName(name) {
		return ErrInvalidBucketName
	}
	dir := e.bucketDir(name)
	if _, err := os.Stat(dir); err == nil {
		return ErrBucketAlreadyExists
	}
	if err := os.MkdirAll(filepath.Join(dir, "data"), 0o755); err != nil {
		return fmt.Errorf("creating bucket data directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(dir, "meta"), 0o755); err != nil {
		return fmt.Errorf("creating bucket meta directory: %w", err)
	}
	marker := filepath.Join(dir, ".created")
	if err := os.WriteFile(marker, []byte(time.Now().UTC().Format(time.RFC3339Nano)), 0o644); err != nil {
		return fmt.Errorf("writing bucket marker: %w", err)
	}
	return nil
}

func (e *LocalEngine) DeleteBucket(ctx context.Context, name string) error {
	dir := e.bucketDir(name)
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return ErrBucketNotFound
	}
	dataDir := filepath.Join(dir, "data")
	entries, err := os.ReadDir(dataDir)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("reading bucket data directory: %w", err)
	}
	if !isEmptyTree(dataDir, entries) {
		return ErrBucketNotEmpty
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("removing bucket directory: %w", err)
	}
	return nil
}

// isEmptyTree reports whether dataDir (whose top-level entries are given)
// contains no regular files anywhere beneath it.
func isEmptyTree(dataDir string, entries []os.DirEntry) bool {
	if len(entries) == 0 {
		return true
	}
	empty := true
	filepath.WalkDir(dataDir, func(path string, d os.DirEntry, err error) error {
		if err != nil || !empty {
			return nil
		}
		if !d.IsDir() {
			empty = false
		}
		return nil
	})
	return empty
}

func (e *LocalEngine) BucketExists(ctx context.Context, name string) (bool, error) {
	_, err := os.Stat(e.bucketDir(name))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

func (e *LocalEngine) GetBucketInfo(ctx context.Context, name string) (BucketInfo, error) {
	dir := e.bucketDir(name)
	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		return BucketInfo{}, ErrBucketNotFound
	}
	if err != nil {
		return BucketInfo{}, err
	}
	created := info.ModTime()
	if b, err := os.ReadFile(filepath.Join(dir, ".created")); err == nil {
		if t, err := time.Parse(time.RFC3339Nano, string(b)); err == nil {
			created = t
		}
	}
	return BucketInfo{Name: name, CreationDate: created}, nil
}

func (e *LocalEngine) ListBuckets(ctx context.Context) ([]BucketInfo, error) {
	root := filepath.Join(e.rootDir, "buckets")
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	buckets := make([]BucketInfo, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		info, err := e.GetBucketInfo(ctx, entry.Name())
		if err != nil {
			continue
		}
		buckets = append(buckets, info)
	}
	sort.Slice(buckets, func(i, j int) bool { return buckets[i].Name < buckets[j].Name })
	return buckets, nil
}

func (e *LocalEngine) PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64, contentType string, userMetadata map[string]string) (PutResult, error) {
	exists, err := e.BucketExists(ctx, bucket)
	if err != nil {
		return PutResult{}, err
	}
	if !exists {
		return PutResult{}, ErrBucketNotFound
	}

	dataPath := e.dataPath(bucket, key)
	if err := os.MkdirAll(filepath.Dir(dataPath), 0o755); err != nil {
		return PutResult{}, fmt.Errorf("creating parent directories: %w", err)
	}

	tmpPath := e.tempPath()
	tmpFile, err := os.Create(tmpPath)
	if err != nil {
		return PutResult{}, fmt.Errorf("creating temp file: %w", err)
	}

	h := md5.New()
	written, err := io.Copy(tmpFile, io.TeeReader(r, h))
	if err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return PutResult{}, fmt.Errorf("writing object data: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return PutResult{}, fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		os.Remove(tmpPath)
		return PutResult{}, fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, dataPath); err != nil {
		os.Remove(tmpPath)
		return PutResult{}, fmt.Errorf("renaming temp file to final path: %w", err)
	}

	etag := fmt.Sprintf(`"%x"`, h.Sum(nil))
	lastModified := time.Now().UTC()

	meta := objectMeta{
		ContentType:   contentType,
		ContentLength: written,
		ETag:          etag,
		LastModified:  lastModified,
		UserMetadata:  userMetadata,
	}
	if err := e.writeMeta(bucket, key, meta); err != nil {
		os.Remove(dataPath)
		return PutResult{}, err
	}

	return PutResult{ETag: etag, LastModified: lastModified}, nil
}

func (e *LocalEngine) writeMeta(bucket, key string, meta objectMeta) error {
	metaPath := e.metaPath(bucket, key)
	if err := os.MkdirAll(filepath.Dir(metaPath), 0o755); err != nil {
		return fmt.Errorf("creating meta parent directories: %w", err)
	}
	buf, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshaling metadata: %w", err)
	}
	tmpPath := e.tempPath()
	tmpFile, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("creating temp metadata file: %w", err)
	}
	if _, err := tmpFile.Write(buf); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("writing temp metadata file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("syncing temp metadata file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp metadata file: %w", err)
	}
	if err := os.Rename(tmpPath, metaPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming metadata file: %w", err)
	}
	return nil
}

func (e *LocalEngine) readMeta(bucket, key string) (objectMeta, error) {
	buf, err := os.ReadFile(e.metaPath(bucket, key))
	if err != nil {
		if os.IsNotExist(err) {
			return objectMeta{}, ErrObjectNotFound
		}
		return objectMeta{}, err
	}
	var meta objectMeta
	if err := json.Unmarshal(buf, &meta); err != nil {
		return objectMeta{}, fmt.Errorf("unmarshaling metadata: %w", err)
	}
	return meta, nil
}

func (e *LocalEngine) GetObject(ctx context.Context, bucket, key string, rng *Range) (io.ReadCloser, ObjectMetadata, error) {
	meta, err := e.readMeta(bucket, key)
	if err != nil {
		return nil, ObjectMetadata{}, err
	}

	file, err := os.Open(e.dataPath(bucket, key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ObjectMetadata{}, ErrObjectNotFound
		}
		return nil, ObjectMetadata{}, err
	}

	md := ObjectMetadata{
		ContentLength: meta.ContentLength,
		ETag:          meta.ETag,
		ContentType:   meta.ContentType,
		LastModified:  meta.LastModified,
		UserMetadata:  meta.UserMetadata,
	}

	if rng == nil {
		return file, md, nil
	}

	end := rng.resolvedEnd(meta.ContentLength)
	if rng.Start < 0 || rng.Start >= meta.ContentLength || end > meta.ContentLength || rng.Start >= end {
		file.Close()
		return nil, ObjectMetadata{}, ErrInvalidRange
	}
	if _, err := file.Seek(rng.Start, io.SeekStart); err != nil {
		file.Close()
		return nil, ObjectMetadata{}, fmt.Errorf("seeking to range start: %w", err)
	}
	md.ContentLength = end - rng.Start
	return &limitedReadCloser{r: io.LimitReader(file, md.ContentLength), c: file}, md, nil
}

// limitedReadCloser pairs an io.Reader bounded by io.LimitReader with the
// underlying file's Close, so range reads still release the descriptor.
type limitedReadCloser struct {
	r io.Reader
	c io.Closer
}

func (l *limitedReadCloser) Read(p []byte) (int, error) { return l.r.Read(p) }
func (l *limitedReadCloser) Close() error               { return l.c.Close() }

func (e *LocalEngine) HeadObject(ctx context.Context, bucket, key string) (ObjectMetadata, error) {
	meta, err := e.readMeta(bucket, key)
	if err != nil {
		return ObjectMetadata{}, err
	}
	return ObjectMetadata{
		ContentLength: meta.ContentLength,
		ETag:          meta.ETag,
		ContentType:   meta.ContentType,
		LastModified:  meta.LastModified,
		UserMetadata:  meta.UserMetadata,
	}, nil
}

func (e *LocalEngine) DeleteObject(ctx context.Context, bucket, key string) error {
	metaPath := e.metaPath(bucket, key)
	if _, err := os.Stat(metaPath); os.IsNotExist(err) {
		return ErrObjectNotFound
	}

	// Metadata unlinked before data: a racing Head/Get observes NotFound
	// before the bytes disappear, never a metadata-without-data state.
	if err := os.Remove(metaPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing metadata file: %w", err)
	}
	dataPath := e.dataPath(bucket, key)
	if err := os.Remove(dataPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing data file: %w", err)
	}

	e.cleanEmptyParents(filepath.Dir(dataPath), filepath.Join(e.bucketDir(bucket), "data"))
	e.cleanEmptyParents(filepath.Dir(metaPath), filepath.Join(e.bucketDir(bucket), "meta"))
	return nil
}

func (e *LocalEngine) cleanEmptyParents(dir, stopAt string) {
	dir = filepath.Clean(dir)
	stopAt = filepath.Clean(stopAt)
	for dir != stopAt && strings.HasPrefix(dir, stopAt) {
		if err := os.Remove(dir); err != nil {
			break
		}
		dir = filepath.Dir(dir)
	}
}

func (e *LocalEngine) CopyObject(ctx context.Context, srcBucket, srcKey, dstBucket, dstKey string) (PutResult, error) {
	srcMeta, err := e.readMeta(srcBucket, srcKey)
	if err != nil {
		return PutResult{}, err
	}
	srcFile, err := os.Open(e.dataPath(srcBucket, srcKey))
	if err != nil {
		if os.IsNotExist(err) {
			return PutResult{}, ErrObjectNotFound
		}
		return PutResult{}, err
	}
	defer srcFile.Close()

	return e.PutObject(ctx, dstBucket, dstKey, srcFile, srcMeta.ContentLength, srcMeta.ContentType, srcMeta.UserMetadata)
}

func (e *LocalEngine) ListObjects(ctx context.Context, bucket string, params ListObjectsParams) (ListResult, error) {
	exists, err := e.BucketExists(ctx, bucket)
	if err != nil {
		return ListResult{}, err
	}
	if !exists {
		return ListResult{}, ErrBucketNotFound
	}

	metaRoot := filepath.Join(e.bucketDir(bucket), "meta")
	var keys []string
	filepath.WalkDir(metaRoot, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(metaRoot, path)
		if err != nil {
			return nil
		}
		key := strings.TrimSuffix(filepath.ToSlash(rel), ".json")
		if strings.HasPrefix(key, params.Prefix) {
			keys = append(keys, key)
		}
		return nil
	})
	sort.Strings(keys)

	return assembleListResult(keys, params, func(key string) (ObjectSummary, error) {
		meta, err := e.readMeta(bucket, key)
		if err != nil {
			return ObjectSummary{}, err
		}
		return ObjectSummary{Key: key, ETag: meta.ETag, Size: meta.ContentLength, LastModified: meta.LastModified}, nil
	}), nil
}

// assembleListResult applies delimiter partitioning, continuation-token
// resumption, and max-keys truncation over a sorted key list shared by every
// Engine implementation's ListObjects.
func assembleListResult(keys []string, params ListObjectsParams, load func(key string) (ObjectSummary, error)) ListResult {
	maxKeys := params.MaxKeys
	if maxKeys <= 0 {
		maxKeys = 1000
	}

	start := 0
	if params.ContinuationToken != "" {
		idx := sort.SearchStrings(keys, params.ContinuationToken)
		start = idx
	}

	var result ListResult
	seenPrefixes := make(map[string]bool)

	i := start
	for ; i < len(keys); i++ {
		key := keys[i]
		if len(result.Objects)+len(seenPrefixes) >= maxKeys {
			break
		}

		if params.Delimiter != "" {
			rest := key[len(params.Prefix):]
			if idx := strings.Index(rest, params.Delimiter); idx >= 0 {
				prefix := params.Prefix + rest[:idx+len(params.Delimiter)]
				if !seenPrefixes[prefix] {
					seenPrefixes[prefix] = true
					result.CommonPrefixes = append(result.CommonPrefixes, prefix)
				}
				continue
			}
		}

		summary, err := load(key)
		if err != nil {
			continue
		}
		result.Objects = append(result.Objects, summary)
	}

	if i < len(keys) {
		result.IsTruncated = true
		result.NextContinuationToken = keys[i]
	}

	sort.Strings(result.CommonPrefixes)
	return result
}

func (e *LocalEngine) CreateMultipartUpload(ctx context.Context, bucket, key, contentType string, userMetadata map[string]string) (string, error) {
	exists, err := e.BucketExists(ctx, bucket)
	if err != nil {
		return "", err
	}
	if !exists {
		return "", ErrBucketNotFound
	}

	uploadID := uid.NewUUID()
	e.mu.Lock()
	e.uploads[uploadID] = &localUpload{
		bucket:       bucket,
		key:          key,
		contentType:  contentType,
		userMetadata: userMetadata,
		initiated:    time.Now().UTC(),
		parts:        make(map[int]PartInfo),
	}
	e.mu.Unlock()
	return uploadID, nil
}

func (e *LocalEngine) partPath(uploadID string, partNumber int) string {
	return filepath.Join(e.rootDir, ".multipart", uploadID, fmt.Sprintf("%05d", partNumber))
}

func (e *LocalEngine) UploadPart(ctx context.Context, bucket, key, uploadID string, partNumber int, r io.Reader, size int64) (PartInfo, error) {
	e.mu.Lock()
	upload, ok := e.uploads[uploadID]
	e.mu.Unlock()
	if !ok || upload.bucket != bucket || upload.key != key {
		return PartInfo{}, ErrUploadNotFound
	}
	if partNumber < 1 || partNumber > 10000 {
		return PartInfo{}, ErrInvalidPart
	}

	partPath := e.partPath(uploadID, partNumber)
	if err := os.MkdirAll(filepath.Dir(partPath), 0o755); err != nil {
		return PartInfo{}, fmt.Errorf("creating part directory: %w", err)
	}

	tmpPath := e.tempPath()
	tmpFile, err := os.Create(tmpPath)
	if err != nil {
		return PartInfo{}, fmt.Errorf("creating temp part file: %w", err)
	}
	h := md5.New()
	written, err := io.Copy(tmpFile, io.TeeReader(r, h))
	if err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return PartInfo{}, fmt.Errorf("writing part data: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return PartInfo{}, fmt.Errorf("syncing part file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		os.Remove(tmpPath)
		return PartInfo{}, fmt.Errorf("closing part temp file: %w", err)
	}
	if err := os.Rename(tmpPath, partPath); err != nil {
		os.Remove(tmpPath)
		return PartInfo{}, fmt.Errorf("renaming part temp file: %w", err)
	}

	info := PartInfo{
		PartNumber:   partNumber,
		ETag:         fmt.Sprintf(`"%x"`, h.Sum(nil)),
		Size:         written,
		LastModified: time.Now().UTC(),
	}

	e.mu.Lock()
	upload.parts[partNumber] = info
	e.mu.Unlock()

	return info, nil
}

func (e *LocalEngine) CompleteMultipartUpload(ctx context.Context, bucket, key, uploadID string, parts []PartRef) (CompleteResult, error) {
	e.mu.Lock()
	upload, ok := e.uploads[uploadID]
	e.mu.Unlock()
	if !ok || upload.bucket != bucket || upload.key != key {
		return CompleteResult{}, ErrUploadNotFound
	}

	for i := 1; i < len(parts); i++ {
		if parts[i].PartNumber <= parts[i-1].PartNumber {
			return CompleteResult{}, ErrInvalidPartOrder
		}
	}

	e.mu.Lock()
	stored := make([]PartInfo, 0, len(parts))
	for _, p := range parts {
		info, ok := upload.parts[p.PartNumber]
		if !ok || info.ETag != p.ETag {
			e.mu.Unlock()
			return CompleteResult{}, ErrInvalidPart
		}
		stored = append(stored, info)
	}
	e.mu.Unlock()

	dataPath := e.dataPath(bucket, key)
	if err := os.MkdirAll(filepath.Dir(dataPath), 0o755); err != nil {
		return CompleteResult{}, fmt.Errorf("creating parent directories: %w", err)
	}

	tmpPath := e.tempPath()
	tmpFile, err := os.Create(tmpPath)
	if err != nil {
		return CompleteResult{}, fmt.Errorf("creating temp file for assembly: %w", err)
	}

	h := md5.New()
	var total int64
	for _, p := range stored {
		partFile, err := os.Open(e.partPath(uploadID, p.PartNumber))
		if err != nil {
			tmpFile.Close()
			os.Remove(tmpPath)
			return CompleteResult{}, fmt.Errorf("opening part %d: %w", p.PartNumber, err)
		}
		n, err := io.Copy(tmpFile, io.TeeReader(partFile, h))
		partFile.Close()
		if err != nil {
			tmpFile.Close()
			os.Remove(tmpPath)
			return CompleteResult{}, fmt.Errorf("copying part %d: %w", p.PartNumber, err)
		}
		total += n
	}

	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return CompleteResult{}, fmt.Errorf("syncing assembled file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		os.Remove(tmpPath)
		return CompleteResult{}, fmt.Errorf("closing assembled temp file: %w", err)
	}
	if err := os.Rename(tmpPath, dataPath); err != nil {
		os.Remove(tmpPath)
		return CompleteResult{}, fmt.Errorf("renaming assembled file: %w", err)
	}

	etag := fmt.Sprintf(`"%x"`, h.Sum(nil))
	lastModified := time.Now().UTC()
	meta := objectMeta{
		ContentType:   upload.contentType,
		ContentLength: total,
		ETag:          etag,
		LastModified:  lastModified,
		UserMetadata:  upload.userMetadata,
	}
	if err := e.writeMeta(bucket, key, meta); err != nil {
		os.Remove(dataPath)
		return CompleteResult{}, err
	}

	e.discardUpload(uploadID)

	return CompleteResult{ETag: etag, LastModified: lastModified, Size: total}, nil
}

func (e *LocalEngine) discardUpload(uploadID string) {
	e.mu.Lock()
	delete(e.uploads, uploadID)
	e.mu.Unlock()
	os.RemoveAll(filepath.Join(e.rootDir, ".multipart", uploadID))
}

func (e *LocalEngine) AbortMultipartUpload(ctx context.Context, bucket, key, uploadID string) error {
	e.mu.Lock()
	upload, ok := e.uploads[uploadID]
	e.mu.Unlock()
	if !ok || upload.bucket != bucket || upload.key != key {
		return nil
	}
	e.discardUpload(uploadID)
	return nil
}

func (e *LocalEngine) ListParts(ctx context.Context, bucket, key, uploadID string) ([]PartInfo, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	upload, ok := e.uploads[uploadID]
	if !ok || upload.bucket != bucket || upload.key != key {
		return nil, ErrUploadNotFound
	}
	parts := make([]PartInfo, 0, len(upload.parts))
	for _, p := range upload.parts {
		parts = append(parts, p)
	}
	sort.Slice(parts, func(i, j int) bool { return parts[i].PartNumber < parts[j].PartNumber })
	return parts, nil
}

func (e *LocalEngine) ListMultipartUploads(ctx context.Context, bucket string) ([]UploadInfo, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var uploads []UploadInfo
	for id, u := range e.uploads {
		if u.bucket != bucket {
			continue
		}
		uploads = append(uploads, UploadInfo{
			UploadID:    id,
			Key:         u.key,
			Initiated:   u.initiated,
			ContentType: u.contentType,
		})
	}
	sort.Slice(uploads, func(i, j int) bool {
		if uploads[i].Key != uploads[j].Key {
			return uploads[i].Key < uploads[j].Key
		}
		return uploads[i].UploadID < uploads[j].UploadID
	})
	return uploads, nil
}

func (e *LocalEngine) Stats(ctx context.Context) (StorageStats, error) {
	buckets, err := e.ListBuckets(ctx)
	if err != nil {
		return StorageStats{}, err
	}
	stats := StorageStats{TotalBuckets: uint64(len(buckets))}
	for _, b := range buckets {
		metaRoot := filepath.Join(e.bucketDir(b.Name), "meta")
		filepath.WalkDir(metaRoot, func(path string, d os.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return nil
			}
			stats.TotalObjects++
			if info, err := d.Info(); err == nil {
				stats.TotalSizeBytes += uint64(info.Size())
			}
			return nil
		})
	}
	return stats, nil
}

func (e *LocalEngine) HealthCheck(ctx context.Context) error {
	_, err := os.Stat(e.rootDir)
	return err
}

var _ Engine = (*LocalEngine)(nil)

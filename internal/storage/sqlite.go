package storage

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	_ "modernc.org/sqlite" // pure-Go driver, no cgo
)

// snapshotStore persists a MemoryEngine's state to a SQLite file, so an
// in-memory deployment can still survive a restart. It is not itself an
// Engine: it only knows how to serialize and restore one.
type snapshotStore struct {
	path     string
	interval time.Duration
}

const snapshotSchema = `
CREATE TABLE IF NOT EXISTS buckets (
	name          TEXT PRIMARY KEY,
	creation_date TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS objects (
	bucket        TEXT NOT NULL,
	key           TEXT NOT NULL,
	data          BLOB NOT NULL,
	etag          TEXT NOT NULL,
	content_type  TEXT NOT NULL,
	last_modified TEXT NOT NULL,
	PRIMARY KEY (bucket, key)
);
`

// load restores e's buckets and objects from the snapshot file at s.path.
// A missing file is a fresh start, not an error.
func (s *snapshotStore) load(e *MemoryEngine) error {
	if _, err := os.Stat(s.path); os.IsNotExist(err) {
		return nil
	}

	db, err := sql.Open("sqlite", s.path)
	if err != nil {
		return fmt.Errorf("opening snapshot database: %w", err)
	}
	defer db.Close()

	e.mu.Lock()
	defer e.mu.Unlock()

	bucketRows, err := db.Query(`SELECT name, creation_date FROM buckets`)
	if err != nil {
		// No tables yet: nothing to restore.
		return nil
	}
	defer bucketRows.Close()
	for bucketRows.Next() {
		var name, created string
		if err := bucketRows.Scan(&name, &created); err != nil {
			return fmt.Errorf("scanning bucket snapshot row: %w", err)
		}
		t, _ := time.Parse(time.RFC3339Nano, created)
		e.buckets[name] = BucketInfo{Name: name, CreationDate: t}
		e.objects[name] = make(map[string]memObject)
	}

	objRows, err := db.Query(`SELECT bucket, key, data, etag, content_type, last_modified FROM objects`)
	if err != nil {
		return nil
	}
	defer objRows.Close()
	for objRows.Next() {
		var bucket, key, etag, contentType, lastModified string
		var data []byte
		if err := objRows.Scan(&bucket, &key, &data, &etag, &contentType, &lastModified); err != nil {
			return fmt.Errorf("scanning object snapshot row: %w", err)
		}
		t, _ := time.Parse(time.RFC3339Nano, lastModified)
		if _, ok := e.objects[bucket]; !ok {
			e.objects[bucket] = make(map[string]memObject)
		}
		e.objects[bucket][key] = memObject{data: data, etag: etag, contentType: contentType, lastModified: t}
		e.currentSize += int64(len(data))
	}

	return nil
}

// save writes e's current buckets and objects to a fresh snapshot file,
// using the same temp-then-rename pattern the local engine uses for object
// writes so a crash mid-snapshot never corrupts the previous one.
func (s *snapshotStore) save(e *MemoryEngine) error {
	e.mu.RLock()
	buckets := make(map[string]BucketInfo, len(e.buckets))
	for k, v := range e.buckets {
		buckets[k] = v
	}
	type objRow struct {
		bucket, key string
		obj         memObject
	}
	var rows []objRow
	for bucket, objs := range e.objects {
		for key, obj := range objs {
			rows = append(rows, objRow{bucket, key, obj})
		}
	}
	e.mu.RUnlock()

	sort.Slice(rows, func(i, j int) bool {
		if rows[i].bucket != rows[j].bucket {
			return rows[i].bucket < rows[j].bucket
		}
		return rows[i].key < rows[j].key
	})

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating snapshot directory: %w", err)
		}
	}

	tmpPath := s.path + ".tmp"
	os.Remove(tmpPath)

	db, err := sql.Open("sqlite", tmpPath)
	if err != nil {
		return fmt.Errorf("creating temp snapshot database: %w", err)
	}
	if _, err := db.Exec(snapshotSchema); err != nil {
		db.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("creating snapshot schema: %w", err)
	}

	tx, err := db.Begin()
	if err != nil {
		db.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("beginning snapshot transaction: %w", err)
	}

	for name, b := range buckets {
		if _, err := tx.Exec(`INSERT INTO buckets (name, creation_date) VALUES (?, ?)`, name, b.CreationDate.Format(time.RFC3339Nano)); err != nil {
			tx.Rollback()
			db.Close()
			os.Remove(tmpPath)
			return fmt.Errorf("inserting bucket snapshot for %q: %w", name, err)
		}
	}
	for _, r := range rows {
		if _, err := tx.Exec(
			`INSERT INTO objects (bucket, key, data, etag, content_type, last_modified) VALUES (?, ?, ?, ?, ?, ?)`,
			r.bucket, r.key, r.obj.data, r.obj.etag, r.obj.contentType, r.obj.lastModified.Format(time.RFC3339Nano),
		); err != nil {
			tx.Rollback()
			db.Close()
			os.Remove(tmpPath)
			return fmt.Errorf("inserting object snapshot for %q/%q: %w", r.bucket, r.key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		db.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("committing snapshot transaction: %w", err)
	}
	if err := db.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp snapshot database: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming snapshot file: %w", err)
	}
	os.Remove(tmpPath + "-wal")
	os.Remove(tmpPath + "-shm")

	return nil
}

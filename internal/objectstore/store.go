package objectstore

import (
	"errors"
	"io"
	"io/fs"
	"mime"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/arencloud/stratus/internal/protocol"
)

var (
	ErrNoBucket       = errors.New("bucket does not exist")
	ErrBucketNotEmpty = errors.New("bucket is not empty")
	ErrNoObject       = errors.New("object does not exist")
	ErrInvalidKey     = errors.New("key resolves outside its bucket")
	ErrReservedName   = errors.New("bucket name is reserved")
)

// BucketInfo describes one bucket directory. Created is best-effort (directory
// mtime); the filesystem does not keep a true creation time everywhere.
type BucketInfo struct {
	Name    string
	Created time.Time
}

// ObjectInfo describes one stored object.
type ObjectInfo struct {
	Key     string
	Size    int64
	ModTime time.Time
}

// Store is the filesystem-backed object engine: buckets are directories under
// the root, objects are files under their bucket. All operations hit the
// filesystem synchronously; the OS's per-file atomicity is the only locking.
type Store struct {
	root string
}

func New(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	return &Store{root: abs}, nil
}

// bucketPath maps a bucket name onto its directory, refusing names that carry
// path segments or shadow routed paths.
func (s *Store) bucketPath(bucket string) (string, error) {
	if bucket == "" || bucket == "." || bucket == ".." || bucket != filepath.Base(bucket) {
		return "", ErrInvalidKey
	}
	if protocol.Reserved(bucket) {
		return "", ErrReservedName
	}
	return filepath.Join(s.root, bucket), nil
}

// objectPath resolves a key under its bucket and re-verifies containment;
// a key must never escape its bucket's directory.
func (s *Store) objectPath(bucket, key string) (string, error) {
	bp, err := s.bucketPath(bucket)
	if err != nil {
		return "", err
	}
	clean := filepath.Clean(filepath.FromSlash(key))
	if clean == "." || clean == ".." || filepath.IsAbs(clean) || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", ErrInvalidKey
	}
	full := filepath.Join(bp, clean)
	if !strings.HasPrefix(full, bp+string(filepath.Separator)) {
		return "", ErrInvalidKey
	}
	return full, nil
}

// CreateBucket makes the bucket directory; creating an existing bucket succeeds.
func (s *Store) CreateBucket(bucket string) error {
	bp, err := s.bucketPath(bucket)
	if err != nil {
		return err
	}
	return os.MkdirAll(bp, 0o755)
}

// DeleteBucket removes an empty bucket. A bucket holding any object refuses
// deletion; everything else about deletes here is idempotent, this is not.
func (s *Store) DeleteBucket(bucket string) error {
	bp, err := s.bucketPath(bucket)
	if err != nil {
		return err
	}
	entries, err := os.ReadDir(bp)
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNoBucket
		}
		return err
	}
	if len(entries) > 0 {
		return ErrBucketNotEmpty
	}
	return os.Remove(bp)
}

// ListBuckets enumerates top-level directories under the storage root.
func (s *Store) ListBuckets() ([]BucketInfo, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, err
	}
	out := make([]BucketInfo, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		b := BucketInfo{Name: e.Name(), Created: time.Now()}
		if info, err := e.Info(); err == nil {
			b.Created = info.ModTime()
		}
		out = append(out, b)
	}
	return out, nil
}

// Put writes the full body to the resolved path, creating parent directories
// (and the bucket itself) as needed.
func (s *Store) Put(bucket, key string, r io.Reader) error {
	p, err := s.objectPath(bucket, key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	f, err := os.Create(p)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Get opens an object for streaming.
func (s *Store) Get(bucket, key string) (io.ReadCloser, ObjectInfo, error) {
	p, err := s.objectPath(bucket, key)
	if err != nil {
		return nil, ObjectInfo{}, err
	}
	info, err := os.Stat(p)
	if err != nil || info.IsDir() {
		return nil, ObjectInfo{}, ErrNoObject
	}
	f, err := os.Open(p)
	if err != nil {
		return nil, ObjectInfo{}, err
	}
	return f, ObjectInfo{Key: key, Size: info.Size(), ModTime: info.ModTime()}, nil
}

// Head is the existence probe behind HEAD requests.
func (s *Store) Head(bucket, key string) (ObjectInfo, error) {
	p, err := s.objectPath(bucket, key)
	if err != nil {
		return ObjectInfo{}, err
	}
	info, err := os.Stat(p)
	if err != nil || info.IsDir() {
		return ObjectInfo{}, ErrNoObject
	}
	return ObjectInfo{Key: key, Size: info.Size(), ModTime: info.ModTime()}, nil
}

// Delete removes an object; a missing object still reports success.
func (s *Store) Delete(bucket, key string) error {
	p, err := s.objectPath(bucket, key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// List walks a bucket recursively and reports keys relative to the bucket
// root with forward slashes, optionally filtered by prefix. Results are
// sorted by key and never truncated.
func (s *Store) List(bucket, prefix string) ([]ObjectInfo, error) {
	bp, err := s.bucketPath(bucket)
	if err != nil {
		return nil, err
	}
	if info, err := os.Stat(bp); err != nil || !info.IsDir() {
		return nil, ErrNoBucket
	}
	var out []ObjectInfo
	err = filepath.WalkDir(bp, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(bp, p)
		if err != nil {
			return nil
		}
		key := filepath.ToSlash(rel)
		if prefix != "" && !strings.HasPrefix(key, prefix) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		out = append(out, ObjectInfo{Key: key, Size: info.Size(), ModTime: info.ModTime()})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// ContentType infers a response content type from the key's extension.
func ContentType(key string) string {
	if ct := mime.TypeByExtension(filepath.Ext(key)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

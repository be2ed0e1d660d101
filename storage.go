package quizforge

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
)

// ErrObjectNotFound is returned when a stored path does not exist
var ErrObjectNotFound = errors.New("object not found")

// KnowledgePrefix is the storage prefix for uploaded knowledge files
const KnowledgePrefix = "knowledge/"

// ObjectStore reads and writes raw objects by path
type ObjectStore interface {
	Get(ctx context.Context, path string) ([]byte, error)
	Put(ctx context.Context, path string, data []byte) (string, error)
	List(ctx context.Context, prefix string) ([]string, error)
}

// KnowledgePath builds knowledge/<owner>/<filename>
func KnowledgePath(owner, filename string) (string, error) {
	name := strings.TrimSpace(filename)
	if owner == "" {
		return "", fmt.Errorf("owner is required")
	}
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("invalid file name %q", filename)
	}
	return KnowledgePrefix + owner + "/" + name, nil
}

// GCSStore keeps objects in a Google Cloud Storage bucket
type GCSStore struct {
	client *storage.Client
	bucket string
	region string
}

// NewGCSStore opens a client for bucket. region is compared against the bucket
// location when the credentials allow reading bucket attributes.
func NewGCSStore(ctx context.Context, bucket, region string) (*GCSStore, error) {
	if bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	gs := &GCSStore{client: client, bucket: bucket, region: region}

	attrsCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	attrs, err := client.Bucket(bucket).Attrs(attrsCtx)
	switch {
	case err != nil:
		logger.Warnw("could not read bucket attributes", "bucket", bucket, "error", err)
	case region != "" && !strings.EqualFold(attrs.Location, region):
		logger.Warnw("bucket location differs from configured region", "bucket", bucket, "location", attrs.Location, "region", region)
	}
	return gs, nil
}

// Get downloads the object at p
func (gs *GCSStore) Get(ctx context.Context, p string) ([]byte, error) {
	rc, err := gs.client.Bucket(gs.bucket).Object(p).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, p)
		}
		return nil, fmt.Errorf("failed to open object %s: %w", p, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("failed to read object %s: %w", p, err)
	}
	return data, nil
}

// Put uploads data to p and returns the stored path
func (gs *GCSStore) Put(ctx context.Context, p string, data []byte) (string, error) {
	w := gs.client.Bucket(gs.bucket).Object(p).NewWriter(ctx)
	if ct := contentTypeForPath(p); ct != "" {
		w.ContentType = ct
	}
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("failed to write object %s: %w", p, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to close writer for %s: %w", p, err)
	}
	return p, nil
}

// List returns object paths under prefix, sorted
func (gs *GCSStore) List(ctx context.Context, prefix string) ([]string, error) {
	it := gs.client.Bucket(gs.bucket).Objects(ctx, &storage.Query{Prefix: prefix})
	var paths []string
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list %s: %w", prefix, err)
		}
		paths = append(paths, attrs.Name)
	}
	sort.Strings(paths)
	return paths, nil
}

// Close releases the storage client
func (gs *GCSStore) Close() error {
	return gs.client.Close()
}

func contentTypeForPath(p string) string {
	switch KindFromPath(p) {
	case KindPDF:
		return "application/pdf"
	case KindJSON:
		return "application/json"
	}
	switch strings.ToLower(path.Ext(p)) {
	case ".txt", ".md":
		return "text/plain; charset=utf-8"
	}
	return ""
}

// FileStore keeps objects under a local directory, for development and the CLI
type FileStore struct {
	root string
}

// NewFileStore creates root if needed
func NewFileStore(root string) (*FileStore, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}
	return &FileStore{root: root}, nil
}

func (s *FileStore) resolve(p string) (string, error) {
	clean := path.Clean("/" + p)
	if clean == "/" {
		return "", fmt.Errorf("invalid object path %q", p)
	}
	return filepath.Join(s.root, filepath.FromSlash(strings.TrimPrefix(clean, "/"))), nil
}

// Get reads the object at p
func (s *FileStore) Get(_ context.Context, p string) ([]byte, error) {
	full, err := s.resolve(p)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(full)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrObjectNotFound, p)
		}
		return nil, fmt.Errorf("failed to read %s: %w", p, err)
	}
	return data, nil
}

// Put writes data to p and returns p
func (s *FileStore) Put(_ context.Context, p string, data []byte) (string, error) {
	full, err := s.resolve(p)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return "", fmt.Errorf("failed to create directory for %s: %w", p, err)
	}
	if err := os.WriteFile(full, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", p, err)
	}
	return p, nil
}

// List returns stored paths starting with prefix, sorted
func (s *FileStore) List(_ context.Context, prefix string) ([]string, error) {
	var paths []string
	err := filepath.WalkDir(s.root, func(full string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(s.root, full)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if strings.HasPrefix(rel, prefix) {
			paths = append(paths, rel)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", prefix, err)
	}
	sort.Strings(paths)
	return paths, nil
}

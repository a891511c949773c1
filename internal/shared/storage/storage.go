package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nextconvert/cutstudio/internal/shared/config"
)

// Zone represents a storage zone
type Zone string

const (
	ZoneUpload  Zone = "upload"
	ZoneWorking Zone = "working"
	ZoneOutput  Zone = "output"
)

var (
	ErrOutsideBase        = errors.New("path is outside the storage directory")
	ErrPublishingDisabled = errors.New("object storage is not configured")
	ErrObjectMissing      = errors.New("published object no longer exists")
)

// FileInfo represents metadata about a stored file
type FileInfo struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Path      string    `json:"path"`
	Zone      Zone      `json:"zone"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"createdAt"`
}

// Service keeps media on the local disk, where ffmpeg can read it, and
// optionally publishes finished artifacts to object storage.
type Service struct {
	local     *LocalBackend
	objects   *ObjectStore
	basePath  string
}

// NewService creates a new storage service
func NewService(cfg config.StorageConfig) (*Service, error) {
	base, err := filepath.Abs(cfg.BasePath)
	if err != nil {
		return nil, fmt.Errorf("resolve storage path: %w", err)
	}

	local, err := NewLocalBackend(base)
	if err != nil {
		return nil, err
	}

	svc := &Service{local: local, basePath: base}
	if cfg.Backend == "s3" {
		if svc.objects, err = NewObjectStore(cfg); err != nil {
			return nil, err
		}
	}
	return svc, nil
}

// Store saves a file to the specified zone under a generated name
func (s *Service) Store(ctx context.Context, zone Zone, originalName string, reader io.Reader) (*FileInfo, error) {
	fileID := uuid.New().String()
	filename := fileID + strings.ToLower(filepath.Ext(originalName))

	path, err := s.local.Store(ctx, zone, filename, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to store file: %w", err)
	}

	size, err := s.local.GetSize(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to get file size: %w", err)
	}

	return &FileInfo{
		ID:        fileID,
		Name:      originalName,
		Path:      path,
		Zone:      zone,
		Size:      size,
		CreatedAt: time.Now(),
	}, nil
}

// Resolve turns a client supplied path into an absolute path that must lie
// inside the storage directory. Relative paths are taken relative to it.
func (s *Service) Resolve(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("%w: empty path", ErrOutsideBase)
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(s.basePath, path)
	}
	clean := filepath.Clean(path)

	rel, err := filepath.Rel(s.basePath, clean)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrOutsideBase, path)
	}
	return clean, nil
}

// Exists checks if a local file exists
func (s *Service) Exists(ctx context.Context, path string) (bool, error) {
	return s.local.Exists(ctx, path)
}

// Publishing reports whether finished artifacts are copied to object storage
func (s *Service) Publishing() bool {
	return s.objects != nil
}

// Publish uploads a local file to the object store and returns its key.
// Keys are unique per call, so equally named outputs of different jobs
// never overwrite each other.
func (s *Service) Publish(ctx context.Context, localPath string) (string, error) {
	if s.objects == nil {
		return "", ErrPublishingDisabled
	}

	key := objectKey(ZoneOutput, uuid.NewString(), filepath.Base(localPath))
	if err := s.objects.Put(ctx, key, localPath); err != nil {
		return "", err
	}
	return key, nil
}

// DownloadURL returns a presigned GET URL for a published key
func (s *Service) DownloadURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	if s.objects == nil {
		return "", ErrPublishingDisabled
	}

	ok, err := s.objects.Has(ctx, key)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrObjectMissing, key)
	}
	return s.objects.PresignGet(ctx, key, expiry)
}

func objectKey(zone Zone, parts ...string) string {
	return path.Join(append([]string{string(zone)}, parts...)...)
}

// BasePath returns the absolute storage directory
func (s *Service) BasePath() string {
	return s.basePath
}

// LocalBackend implements local filesystem storage
type LocalBackend struct {
	basePath string
}

// NewLocalBackend creates a new local storage backend
func NewLocalBackend(basePath string) (*LocalBackend, error) {
	// Ensure base directories exist
	for _, zone := range []Zone{ZoneUpload, ZoneWorking, ZoneOutput} {
		path := filepath.Join(basePath, string(zone))
		if err := os.MkdirAll(path, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", path, err)
		}
	}

	return &LocalBackend{basePath: basePath}, nil
}

func (b *LocalBackend) Store(ctx context.Context, zone Zone, filename string, reader io.Reader) (string, error) {
	path := filepath.Join(b.basePath, string(zone), filename)

	file, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	if _, err := io.Copy(file, reader); err != nil {
		os.Remove(path)
		return "", err
	}

	return path, nil
}

func (b *LocalBackend) Exists(ctx context.Context, path string) (bool, error) {
	_, err := os.Stat(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	return err == nil, err
}

func (b *LocalBackend) GetSize(ctx context.Context, path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

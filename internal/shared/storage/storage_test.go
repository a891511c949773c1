package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nextconvert/cutstudio/internal/shared/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	svc, err := NewService(config.StorageConfig{Backend: "local", BasePath: t.TempDir()})
	require.NoError(t, err)
	return svc
}

func TestNewServiceCreatesZones(t *testing.T) {
	svc := newTestService(t)
	for _, zone := range []Zone{ZoneUpload, ZoneWorking, ZoneOutput} {
		assert.DirExists(t, filepath.Join(svc.BasePath(), string(zone)))
	}
	assert.False(t, svc.Publishing())
}

func TestNewServiceRequiresBucketForS3(t *testing.T) {
	_, err := NewService(config.StorageConfig{Backend: "s3", BasePath: t.TempDir()})
	assert.Error(t, err)
}

func TestStore(t *testing.T) {
	svc := newTestService(t)

	info, err := svc.Store(context.Background(), ZoneUpload, "Holiday.MP4", strings.NewReader("video bytes"))
	require.NoError(t, err)

	assert.Equal(t, "Holiday.MP4", info.Name)
	assert.Equal(t, int64(len("video bytes")), info.Size)
	assert.Equal(t, filepath.Join(svc.BasePath(), "upload", info.ID+".mp4"), info.Path)
	assert.FileExists(t, info.Path)
}

func TestResolve(t *testing.T) {
	svc := newTestService(t)
	base := svc.BasePath()

	tests := []struct {
		name    string
		path    string
		want    string
		wantErr bool
	}{
		{"relative path", "upload/a.mp4", filepath.Join(base, "upload", "a.mp4"), false},
		{"absolute inside", filepath.Join(base, "output", "b.mp4"), filepath.Join(base, "output", "b.mp4"), false},
		{"cleans dots", filepath.Join(base, "upload", "..", "output", "c.mp4"), filepath.Join(base, "output", "c.mp4"), false},
		{"escapes with dots", "../etc/passwd", "", true},
		{"absolute outside", "/etc/passwd", "", true},
		{"base itself", base, "", true},
		{"empty", "  ", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := svc.Resolve(tt.path)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrOutsideBase)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExists(t *testing.T) {
	svc := newTestService(t)
	path := filepath.Join(svc.BasePath(), "working", "tmp.mp4")

	ok, err := svc.Exists(context.Background(), path)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	ok, err = svc.Exists(context.Background(), path)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestPublishWithoutObjectStorage(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.Publish(context.Background(), "/does/not/matter.mp4")
	assert.ErrorIs(t, err, ErrPublishingDisabled)

	_, err = svc.DownloadURL(context.Background(), "output/a.mp4", 0)
	assert.ErrorIs(t, err, ErrPublishingDisabled)
}

func TestObjectKey(t *testing.T) {
	assert.Equal(t, "output/abc/merged_1700000000.mp4", objectKey(ZoneOutput, "abc", "merged_1700000000.mp4"))
}

package handlers

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestUpload(t *testing.T) {
	dir := t.TempDir()
	h := NewFileHandler(diskStore{dir: dir}, zap.NewNop())

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", "Talk.MP4")
	require.NoError(t, err)
	content := append([]byte{0, 0, 0, 0x18, 'f', 't', 'y', 'p', 'm', 'p', '4', '2'}, make([]byte, 100)...)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/files/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	h.Upload(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code)
	var resp UploadResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "f1", resp.FileID)
	assert.Equal(t, "Talk.MP4", resp.Name)
	assert.Equal(t, int64(len(content)), resp.Size)
	assert.Equal(t, "video/mp4", resp.MimeType)
	assert.Equal(t, "upload/f1.MP4", resp.Path)

	stored, err := os.ReadFile(filepath.Join(dir, "upload", "f1.MP4"))
	require.NoError(t, err)
	assert.Equal(t, content, stored, "sniffing must not consume the upload")
}

func TestUploadWithoutFile(t *testing.T) {
	h := NewFileHandler(diskStore{dir: t.TempDir()}, zap.NewNop())

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("name", "x"))
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/files/upload", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	h.Upload(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

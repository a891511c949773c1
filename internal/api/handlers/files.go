package handlers

import (
	"context"
	"io"
	"net/http"
	"path/filepath"

	"github.com/nextconvert/cutstudio/internal/api/middleware"
	"github.com/nextconvert/cutstudio/internal/shared/storage"
	"go.uber.org/zap"
)

// FileStore keeps uploaded media. *storage.Service satisfies it.
type FileStore interface {
	Store(ctx context.Context, zone storage.Zone, originalName string, reader io.Reader) (*storage.FileInfo, error)
	BasePath() string
}

// FileHandler handles file operations
type FileHandler struct {
	storage FileStore
	logger  *zap.Logger
}

// NewFileHandler creates a new file handler
func NewFileHandler(storage FileStore, logger *zap.Logger) *FileHandler {
	return &FileHandler{
		storage: storage,
		logger:  logger,
	}
}

// UploadResponse describes a stored upload. Path is relative to the storage
// directory and is what job requests refer to.
type UploadResponse struct {
	FileID   string `json:"fileId"`
	Name     string `json:"name"`
	Size     int64  `json:"size"`
	MimeType string `json:"mimeType"`
	Path     string `json:"path"`
}

// Upload stores a multipart "file" field in the upload zone. Size and type
// limits are enforced by middleware.ValidateFileUpload.
func (h *FileHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "failed to parse form")
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "BAD_REQUEST", "missing file field")
		return
	}
	defer file.Close()

	buffer := make([]byte, 512)
	n, _ := io.ReadFull(file, buffer)
	mimeType := http.DetectContentType(buffer[:n])
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		writeError(w, http.StatusInternalServerError, "INTERNAL", "failed to read file")
		return
	}

	info, err := h.storage.Store(r.Context(), storage.ZoneUpload, header.Filename, file)
	if err != nil {
		h.logger.Error("Failed to store file", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "INTERNAL", "failed to store file")
		return
	}

	rel, err := filepath.Rel(h.storage.BasePath(), info.Path)
	if err != nil {
		rel = info.Path
	}

	h.logger.Info("File uploaded",
		zap.String("file_id", info.ID),
		zap.String("session_id", middleware.SessionID(r.Context())),
		zap.String("filename", header.Filename),
		zap.Int64("size", info.Size),
		zap.String("mime_type", mimeType),
	)

	writeJSON(w, http.StatusCreated, UploadResponse{
		FileID:   info.ID,
		Name:     header.Filename,
		Size:     info.Size,
		MimeType: mimeType,
		Path:     filepath.ToSlash(rel),
	})
}

package middleware

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strings"
)

// FileValidationConfig defines file validation rules
type FileValidationConfig struct {
	MaxSize      int64    // Maximum file size in bytes
	AllowedTypes []string // Allowed MIME types (e.g., "video/mp4", "video/*")
	AllowedExts  []string // Allowed file extensions (e.g., ".mp4")
}

// VideoUpload accepts the containers the editor can trim and merge
func VideoUpload(maxSize int64) FileValidationConfig {
	return FileValidationConfig{
		MaxSize: maxSize,
		AllowedTypes: []string{
			"video/*",
			// http.DetectContentType does not know every container
			"application/octet-stream",
		},
		AllowedExts: []string{".mp4", ".m4v", ".mov", ".mkv", ".webm", ".avi", ".mpeg", ".mpg"},
	}
}

// ValidateFileUpload rejects multipart uploads that break config
func ValidateFileUpload(config FileValidationConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !strings.Contains(r.Header.Get("Content-Type"), "multipart/form-data") {
				http.Error(w, "multipart/form-data required", http.StatusUnsupportedMediaType)
				return
			}

			if config.MaxSize > 0 {
				// leave room for the multipart framing
				r.Body = http.MaxBytesReader(w, r.Body, config.MaxSize+1<<20)
			}
			if err := r.ParseMultipartForm(32 << 20); err != nil {
				var tooLarge *http.MaxBytesError
				if errors.As(err, &tooLarge) {
					http.Error(w, "file too large", http.StatusRequestEntityTooLarge)
					return
				}
				http.Error(w, "failed to parse form", http.StatusBadRequest)
				return
			}

			if r.MultipartForm != nil {
				for _, fileHeaders := range r.MultipartForm.File {
					for _, fileHeader := range fileHeaders {
						if err := validateFile(fileHeader, config); err != nil {
							http.Error(w, err.Error(), http.StatusUnprocessableEntity)
							return
						}
					}
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

func validateFile(fileHeader *multipart.FileHeader, config FileValidationConfig) error {
	if config.MaxSize > 0 && fileHeader.Size > config.MaxSize {
		return fmt.Errorf("file size %d exceeds maximum allowed size %d", fileHeader.Size, config.MaxSize)
	}

	if len(config.AllowedExts) > 0 {
		ext := strings.ToLower(filepath.Ext(fileHeader.Filename))
		if !contains(config.AllowedExts, ext) {
			return fmt.Errorf("file extension %q is not allowed", ext)
		}
	}

	if len(config.AllowedTypes) > 0 {
		file, err := fileHeader.Open()
		if err != nil {
			return fmt.Errorf("failed to open file: %w", err)
		}
		defer file.Close()

		// magic bytes
		buffer := make([]byte, 512)
		n, err := io.ReadFull(file, buffer)
		if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
			return fmt.Errorf("failed to read file: %w", err)
		}

		contentType := http.DetectContentType(buffer[:n])
		allowed := false
		for _, pattern := range config.AllowedTypes {
			if matchMIMEType(contentType, pattern) {
				allowed = true
				break
			}
		}
		if !allowed {
			return fmt.Errorf("file type %s is not allowed", contentType)
		}
	}

	return nil
}

func contains(list []string, value string) bool {
	for _, v := range list {
		if strings.EqualFold(v, value) {
			return true
		}
	}
	return false
}

// matchMIMEType checks if a MIME type matches a pattern (supports wildcards)
func matchMIMEType(contentType, pattern string) bool {
	if contentType == pattern {
		return true
	}
	if strings.HasSuffix(pattern, "/*") {
		return strings.HasPrefix(contentType, strings.TrimSuffix(pattern, "/*")+"/")
	}
	return false
}

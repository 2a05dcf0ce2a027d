package service

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/google/uuid"
	"github.com/stemsi/ieltsmock-backend/internal/config"
)

// Sentinel errors for media uploads.
var (
	ErrUnsupportedFileType = errors.New("unsupported file type")
	ErrFileTooLarge        = errors.New("file too large")
)

// MediaKind groups the MIME types accepted for one kind of upload.
type MediaKind string

const (
	// MediaAudio covers listening tracks and speaking recordings.
	MediaAudio MediaKind = "audio"
	// MediaDocument covers reading/listening source files for variants.
	MediaDocument MediaKind = "document"
)

var allowedMIMETypes = map[MediaKind]map[string]string{
	MediaAudio: {
		"audio/mpeg":  ".mp3",
		"audio/mp3":   ".mp3",
		"audio/wav":   ".wav",
		"audio/x-wav": ".wav",
		"audio/ogg":   ".ogg",
		"audio/webm":  ".webm",
		"audio/mp4":   ".m4a",
		"video/webm":  ".webm",
	},
	MediaDocument: {
		"application/json": ".json",
		"application/pdf":  ".pdf",
		"text/plain":       ".txt",
	},
}

// MediaService handles file upload operations.
type MediaService struct {
	cfg *config.Config
}

// NewMediaService creates a new MediaService.
func NewMediaService(cfg *config.Config) *MediaService {
	return &MediaService{cfg: cfg}
}

// SaveUpload saves an uploaded file to local storage with a UUID filename.
// Returns the relative URL path to the saved file.
func (s *MediaService) SaveUpload(kind MediaKind, file multipart.File, header *multipart.FileHeader) (string, error) {
	contentType := header.Header.Get("Content-Type")
	// Browsers send "audio/webm;codecs=opus" for MediaRecorder output.
	if mt, _, err := mime.ParseMediaType(contentType); err == nil {
		contentType = mt
	}
	ext, ok := allowedMIMETypes[kind][contentType]
	if !ok {
		return "", fmt.Errorf("%w: %s (allowed: %s)",
			ErrUnsupportedFileType, contentType, strings.Join(allowedTypes(kind), ", "))
	}

	if header.Size > s.cfg.MaxUploadBytes {
		return "", fmt.Errorf("%w: %d bytes (max: %d)", ErrFileTooLarge, header.Size, s.cfg.MaxUploadBytes)
	}

	dir := filepath.Join(s.cfg.UploadDir, string(kind))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create upload dir: %w", err)
	}

	filename := uuid.New().String() + ext
	dst, err := os.Create(filepath.Join(dir, filename))
	if err != nil {
		return "", fmt.Errorf("create file: %w", err)
	}
	defer dst.Close()

	if _, err := io.Copy(dst, io.LimitReader(file, s.cfg.MaxUploadBytes+1)); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}

	return "/uploads/" + string(kind) + "/" + filename, nil
}

func allowedTypes(kind MediaKind) []string {
	types := make([]string, 0, len(allowedMIMETypes[kind]))
	for t := range allowedMIMETypes[kind] {
		types = append(types, t)
	}
	slices.Sort(types)
	return types
}

package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"support-chat-backend/internal/env"

	"github.com/google/uuid"
)

const PublicPrefix = "/api/uploads/files/"

var (
	ErrTooLarge        = errors.New("storage: file too large")
	ErrUnsupportedType = errors.New("storage: unsupported file type")
	ErrNotFound        = errors.New("storage: file not found")
	ErrInvalidName     = errors.New("storage: invalid file name")
)

// allowedTypes maps each accepted MIME type to the extension stored files
// carry. Served files take their Content-Type back from that extension.
var allowedTypes = map[string]string{
	"image/jpeg":         ".jpg",
	"image/jpg":          ".jpg",
	"image/png":          ".png",
	"image/gif":          ".gif",
	"video/mp4":          ".mp4",
	"video/quicktime":    ".mov",
	"audio/mpeg":         ".mp3",
	"audio/wav":          ".wav",
	"audio/ogg":          ".ogg",
	"application/pdf":    ".pdf",
	"application/msword": ".doc",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": ".docx",
}

var extensionTypes = map[string]string{
	".jpg":  "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".mp4":  "video/mp4",
	".mov":  "video/quicktime",
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".ogg":  "audio/ogg",
	".pdf":  "application/pdf",
	".doc":  "application/msword",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
}

func normalizeType(mimeType string) string {
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = strings.TrimSpace(mimeType[:i])
	}
	return mimeType
}

// Allowed reports whether uploads of the MIME type are accepted.
func Allowed(mimeType string) bool {
	_, ok := allowedTypes[normalizeType(mimeType)]
	return ok
}

// TypeForName returns the MIME type a stored object is served with, or ""
// when the name carries no known extension.
func TypeForName(name string) string {
	return extensionTypes[strings.ToLower(filepath.Ext(name))]
}

type Object struct {
	Name        string
	Size        int64
	ContentType string
}

type FileStore interface {
	// Save stores at most maxBytes from r. A larger stream fails with
	// ErrTooLarge and leaves nothing behind.
	Save(ctx context.Context, name, contentType string, r io.Reader, maxBytes int64) (Object, error)
	Open(ctx context.Context, name string) (io.ReadCloser, Object, error)
	Remove(ctx context.Context, name string) error
}

// New builds the store selected by UPLOAD_DRIVER.
func New(ctx context.Context) (FileStore, error) {
	switch driver := env.Get(env.UploadDriver); driver {
	case "", "disk":
		return NewDiskStore(env.GetOrDefault(env.UploadDir, "uploads"))
	case "minio":
		return NewMinioStore(ctx)
	default:
		return nil, fmt.Errorf("storage: unknown upload driver %q", driver)
	}
}

// ObjectName derives a unique stored name whose extension follows the
// checked MIME type, never the client's file name.
func ObjectName(contentType string) string {
	return fmt.Sprintf("file-%d-%s%s", time.Now().UnixMilli(), uuid.NewString()[:8], allowedTypes[normalizeType(contentType)])
}

func PublicURL(name string) string {
	return PublicPrefix + name
}

func validName(name string) bool {
	return name != "" && name == filepath.Base(name) && name != "." && name != ".." && !strings.ContainsAny(name, `/\`)
}

// capReader fails once more than limit bytes have been read.
type capReader struct {
	r        io.Reader
	limit    int64
	read     int64
	exceeded bool
}

func (c *capReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.read += int64(n)
	if c.limit > 0 && c.read > c.limit {
		c.exceeded = true
		return n, ErrTooLarge
	}
	return n, err
}

// Package photostore persists swafoto images. The default backend writes
// to a local uploads directory; a Cloudinary backend is available when
// credentials are configured.
package photostore

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Allowed image content types for swafoto uploads.
var allowedTypes = map[string]bool{
	"image/jpeg": true,
	"image/jpg":  true,
	"image/png":  true,
	"image/gif":  true,
}

// AllowedType reports whether the content type is an accepted image format.
func AllowedType(contentType string) bool {
	return allowedTypes[strings.ToLower(strings.TrimSpace(contentType))]
}

// Store saves an image and returns the URL it will be served from.
type Store interface {
	Save(data []byte, originalName string) (string, error)
}

// Disk writes files into a local directory, served under /uploads.
type Disk struct {
	Dir string
}

// NewDisk ensures the upload directory exists.
func NewDisk(dir string) (*Disk, error) {
	if dir == "" {
		dir = "uploads"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("photostore: create upload dir: %w", err)
	}
	return &Disk{Dir: dir}, nil
}

// Save writes the image under a timestamp-prefixed name and returns the
// public path.
func (d *Disk) Save(data []byte, originalName string) (string, error) {
	name := fmt.Sprintf("%d-%s", time.Now().UnixMilli(), sanitize(originalName))
	if err := os.WriteFile(filepath.Join(d.Dir, name), data, 0o644); err != nil {
		return "", fmt.Errorf("photostore: write file: %w", err)
	}
	return "/uploads/" + name, nil
}

// sanitize strips path separators and blanks from a client filename.
func sanitize(name string) string {
	name = filepath.Base(name)
	name = strings.ReplaceAll(name, " ", "_")
	if name == "" || name == "." || name == string(filepath.Separator) {
		name = "swafoto.jpg"
	}
	return name
}

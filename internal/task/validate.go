package task

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// MaxFileSize is the largest accepted upload, enforced before any network
// call is made.
const MaxFileSize = 50 << 20 // 50 MB

// allowedExtensions is the set of audio formats the inference backend
// accepts.
var allowedExtensions = map[string]bool{
	".wav":  true,
	".mp3":  true,
	".flac": true,
	".ogg":  true,
	".m4a":  true,
}

// ErrFileTooLarge is returned for uploads above MaxFileSize.
var ErrFileTooLarge = errors.Errorf("file exceeds the %d MB limit", MaxFileSize>>20)

// ErrUnsupportedType is returned for extensions outside the allowed set.
var ErrUnsupportedType = errors.Errorf("unsupported file type, allowed: %s", strings.Join(AllowedExtensions(), ", "))

// AllowedExtensions lists the accepted extensions in stable order.
func AllowedExtensions() []string {
	exts := make([]string, 0, len(allowedExtensions))
	for ext := range allowedExtensions {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// ValidateFile checks extension and size limits. It never touches the
// payload itself, only metadata.
func ValidateFile(filename string, size int64) error {
	ext := strings.ToLower(filepath.Ext(filename))
	if ext == "" || !allowedExtensions[ext] {
		return fmt.Errorf("%q: %w", filename, ErrUnsupportedType)
	}
	if size > MaxFileSize {
		return fmt.Errorf("%q (%d bytes): %w", filename, size, ErrFileTooLarge)
	}
	if size <= 0 {
		return errors.Errorf("%q: empty upload", filename)
	}
	return nil
}

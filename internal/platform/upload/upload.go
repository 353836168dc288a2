// Package upload validates files before they are sent to the backend.
// Rejections happen locally; a rejected file never causes a network call.
package upload

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// ErrUnsupportedType is returned for files the backend would not accept.
var ErrUnsupportedType = errors.New("unsupported file type")

// DocumentExtensions lists the extensions accepted by the document workflow.
var DocumentExtensions = []string{".pdf", ".docx", ".doc", ".txt"}

// File is an in-memory upload.
type File struct {
	Name        string
	Data        []byte
	ContentType string
}

// Extension returns the lower-cased extension of name including the dot.
func Extension(name string) string {
	return strings.ToLower(filepath.Ext(name))
}

// ValidateDocument accepts PDF, DOCX, DOC and TXT files by extension.
func ValidateDocument(name string) error {
	ext := Extension(name)
	for _, allowed := range DocumentExtensions {
		if ext == allowed {
			return nil
		}
	}
	return fmt.Errorf("%w: %q, please select a PDF, DOCX, DOC, or TXT file", ErrUnsupportedType, name)
}

// ValidateImage sniffs data and accepts any image/* content. The detected
// MIME type is returned so callers can forward it.
func ValidateImage(name string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("%w: %q is empty", ErrUnsupportedType, name)
	}
	mt := mimetype.Detect(data)
	if !strings.HasPrefix(mt.String(), "image/") {
		return "", fmt.Errorf("%w: %q is %s, an image is required", ErrUnsupportedType, name, mt.String())
	}
	return mt.String(), nil
}

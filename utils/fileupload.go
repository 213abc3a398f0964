package utils

import (
	"fmt"
	"mime/multipart"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

const (
	// MaxArtworkSize is 20MB in bytes
	MaxArtworkSize = 20 * 1024 * 1024
)

// artworkContentTypes maps the accepted artwork extensions to their MIME type
var artworkContentTypes = map[string]string{
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".svg":  "image/svg+xml",
	".pdf":  "application/pdf",
}

// AllowedArtworkFormats lists the accepted extensions in display order
var AllowedArtworkFormats = []string{".png", ".jpg", ".jpeg", ".svg", ".pdf"}

// FileUploadError represents a file upload validation error
type FileUploadError struct {
	Code    string
	Message string
}

func (e *FileUploadError) Error() string {
	return e.Message
}

// ValidateArtworkFile validates the uploaded file format and size
func ValidateArtworkFile(fileHeader *multipart.FileHeader) error {
	if fileHeader == nil {
		return &FileUploadError{Code: "NO_FILE", Message: "No file provided"}
	}

	if fileHeader.Size > MaxArtworkSize {
		return &FileUploadError{
			Code:    "FILE_TOO_LARGE",
			Message: fmt.Sprintf("File size exceeds maximum allowed size of %d MB", MaxArtworkSize/(1024*1024)),
		}
	}
	if fileHeader.Size == 0 {
		return &FileUploadError{Code: "EMPTY_FILE", Message: "File is empty"}
	}

	if _, ok := ArtworkContentType(fileHeader.Filename); !ok {
		return &FileUploadError{
			Code:    "INVALID_FILE_FORMAT",
			Message: fmt.Sprintf("Only %s files are allowed", strings.Join(AllowedArtworkFormats, ", ")),
		}
	}

	return nil
}

// ArtworkContentType returns the MIME type for an artwork filename
func ArtworkContentType(filename string) (string, bool) {
	ct, ok := artworkContentTypes[strings.ToLower(filepath.Ext(filename))]
	return ct, ok
}

// CheckArtworkContent sniffs content and rejects files whose bytes do not match
// the type their extension claims, e.g. an executable renamed to .png.
func CheckArtworkContent(filename string, content []byte) error {
	want, ok := ArtworkContentType(filename)
	if !ok {
		return &FileUploadError{
			Code:    "INVALID_FILE_FORMAT",
			Message: fmt.Sprintf("Only %s files are allowed", strings.Join(AllowedArtworkFormats, ", ")),
		}
	}
	if got := mimetype.Detect(content); !got.Is(want) {
		return &FileUploadError{
			Code:    "CONTENT_MISMATCH",
			Message: fmt.Sprintf("File content is %s, not %s", got.String(), want),
		}
	}
	return nil
}

package evidence

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"rental_inspections_backend/platform/apperr"
)

// DefaultMaxFileSize applies when no per-file limit is configured.
const DefaultMaxFileSize int64 = 20 << 20

// AllowedContentTypes defines the MIME types accepted as evidence.
var AllowedContentTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
	"image/heic": true,
	"image/heif": true,
}

// ValidateContentType checks if the content type is allowed.
func (g *Gateway) ValidateContentType(contentType string) error {
	// Normalize content type (remove parameters like charset)
	normalized := normalizeContentType(contentType)
	if !AllowedContentTypes[normalized] {
		return fmt.Errorf("content type %q is not allowed", contentType)
	}
	return nil
}

// ValidateFileSize checks if the file size is within limits.
func (g *Gateway) ValidateFileSize(sizeBytes int64) error {
	if sizeBytes <= 0 {
		return fmt.Errorf("file size must be greater than 0")
	}
	if sizeBytes > g.maxFileSize {
		return fmt.Errorf("file size %d bytes exceeds maximum allowed size of %d bytes", sizeBytes, g.maxFileSize)
	}
	return nil
}

// validate checks every file before anything is written, so a batch with
// one bad file uploads nothing.
func (g *Gateway) validate(files []File) error {
	details := map[string]string{}
	for i := range files {
		f := &files[i]
		if f.Content == nil {
			continue
		}
		ct, err := sniffContentType(f)
		if err != nil {
			return apperr.Upload("failed to read evidence", err)
		}
		f.ContentType = ct
		if err := g.ValidateContentType(ct); err != nil {
			details[f.Name] = err.Error()
			continue
		}
		if err := g.ValidateFileSize(f.Size); err != nil {
			details[f.Name] = err.Error()
		}
	}
	if len(details) > 0 {
		return apperr.Validation("invalid evidence file").WithDetails(details)
	}
	return nil
}

// sniffContentType keeps a declared type and only inspects the bytes when
// the client sent none or a generic one.
func sniffContentType(f *File) (string, error) {
	declared := normalizeContentType(f.ContentType)
	if declared != "" && declared != "application/octet-stream" {
		return f.ContentType, nil
	}
	head := make([]byte, 512)
	n, err := io.ReadFull(f.Content, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return "", err
	}
	if _, err := f.Content.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	return http.DetectContentType(head[:n]), nil
}

func normalizeContentType(contentType string) string {
	return strings.TrimSpace(strings.ToLower(strings.Split(contentType, ";")[0]))
}

package gcs

import (
	"fmt"
	"path"
	"strings"
)

// ParseURI splits gs://bucket/path/to/object into bucket and object.
func ParseURI(uri string) (bucket, object string, err error) {
	if !strings.HasPrefix(uri, "gs://") {
		return "", "", fmt.Errorf("invalid GCS URI: %s", uri)
	}
	bucket, object, ok := strings.Cut(strings.TrimPrefix(uri, "gs://"), "/")
	if !ok || bucket == "" || object == "" {
		return "", "", fmt.Errorf("invalid GCS URI (no object path): %s", uri)
	}
	return bucket, object, nil
}

// FileTypeFromKey derives the upload fileType from an object key suffix.
// Unknown suffixes are treated as PDF.
func FileTypeFromKey(key string) string {
	switch strings.ToLower(path.Ext(key)) {
	case ".png":
		return "png"
	case ".jpg", ".jpeg":
		return "jpeg"
	default:
		return "pdf"
	}
}

// ContentTypeFor is the MIME type stored with an uploaded object.
func ContentTypeFor(key string) string {
	switch FileTypeFromKey(key) {
	case "png":
		return "image/png"
	case "jpeg":
		return "image/jpeg"
	default:
		return "application/pdf"
	}
}

// ObjectName builds the staging object name for a local file.
// e.g. ("statements", "/tmp/Jan 2024.pdf") → "statements/Jan 2024.pdf"
func ObjectName(prefix, filePath string) string {
	name := path.Base(strings.ReplaceAll(filePath, "\\", "/"))
	if prefix = strings.Trim(prefix, "/"); prefix == "" {
		return name
	}
	return prefix + "/" + name
}

package storage

import (
	"mime"
	"path/filepath"
	"strings"
)

// contentTypeForKey guesses a MIME type from the key's extension. Keys in
// this archive are always photos or thumbnails, so unknown extensions fall
// back to a generic binary type.
func contentTypeForKey(key string) string {
	ext := strings.ToLower(filepath.Ext(key))
	if ct := mime.TypeByExtension(ext); ct != "" {
		return ct
	}
	return "application/octet-stream"
}

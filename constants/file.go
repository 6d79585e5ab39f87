package constants

import (
	"path"
	"strings"
)

// Extraction methods reported in text extraction metadata.
const (
	MethodText = "text"
	MethodOCR  = "ocr"
)

// AllowedExtensions holds the file extensions picked up by both phases.
var AllowedExtensions = map[string]struct{}{
	"pdf": {},
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// IsAllowed reports whether p has one of the allowed extensions.
func IsAllowed(p string) bool {
	_, ok := AllowedExtensions[NormalizeExt(path.Ext(p))]
	return ok
}

package constants

import "strings"

// MediaTypePDF is sent with uploaded documents.
const MediaTypePDF = "application/pdf"

// MaxUploadBytes is the default upload limit (10 MiB).
const MaxUploadBytes int64 = 10 << 20

// PDFMagic is the header every accepted upload must start with.
var PDFMagic = []byte("%PDF")

// AllowedExtensions holds the accepted upload extensions.
var AllowedExtensions = map[string]struct{}{
	"pdf": {},
}

// AllowedMediaTypes holds the accepted declared content types. An empty
// declared type is tolerated by the upload gate.
var AllowedMediaTypes = map[string]struct{}{
	"application/pdf":   {},
	"application/x-pdf": {},
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// IsAllowedExt reports whether ext (with or without dot) is accepted.
func IsAllowedExt(ext string) bool {
	_, ok := AllowedExtensions[NormalizeExt(ext)]
	return ok
}

// IsAllowedMediaType reports whether the declared media type is accepted.
// Parameters such as "; charset=binary" are ignored.
func IsAllowedMediaType(mt string) bool {
	mt = strings.TrimSpace(strings.ToLower(mt))
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	_, ok := AllowedMediaTypes[mt]
	return ok
}

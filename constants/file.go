package constants

import "strings"

// FileKind is the declared kind of an uploaded file, resolved from its MIME
// type or file-name suffix.
type FileKind string

const (
	KindJSON FileKind = "json"
	KindPDF  FileKind = "pdf"
	KindPNG  FileKind = "png"
	KindJPEG FileKind = "jpeg"
	KindJPG  FileKind = "jpg"
)

// AllowedKinds is the fixed allow-list of supported upload kinds.
var AllowedKinds = []FileKind{KindJSON, KindPDF, KindPNG, KindJPEG, KindJPG}

// ResolveKind maps a declared MIME type or file-name suffix onto the
// allow-list. It returns false when neither matches a supported kind.
func ResolveKind(fileName, mimeType string) (FileKind, bool) {
	for _, k := range AllowedKinds {
		if mimeType == "application/"+string(k) || mimeType == "image/"+string(k) {
			return k, true
		}
		if strings.HasSuffix(strings.ToLower(fileName), "."+string(k)) {
			return k, true
		}
	}
	return "", false
}

// IsImageKind reports whether the kind goes through the OCR path.
func IsImageKind(k FileKind) bool {
	switch k {
	case KindPNG, KindJPEG, KindJPG:
		return true
	default:
		return false
	}
}

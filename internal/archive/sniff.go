package archive

import (
	"bytes"
	"path"
	"strings"

	"github.com/palashjain21/calo-balance-sync-analyzer/internal/models"
)

var (
	zipMagic  = []byte("PK\x03\x04")
	gzipMagic = []byte{0x1f, 0x8b}
	pdfMagic  = []byte("%PDF")
	oleMagic  = []byte{0xd0, 0xcf, 0x11, 0xe0} // legacy .doc
)

// IsZip reports whether data starts with a zip local file header.
func IsZip(data []byte) bool { return bytes.HasPrefix(data, zipMagic) }

// IsGzip reports whether data starts with the gzip signature.
func IsGzip(data []byte) bool { return bytes.HasPrefix(data, gzipMagic) }

// IsPDF reports whether data starts with a PDF header.
func IsPDF(data []byte) bool { return bytes.HasPrefix(data, pdfMagic) }

// IsOLE reports whether data is an OLE compound file (legacy Word).
func IsOLE(data []byte) bool { return bytes.HasPrefix(data, oleMagic) }

// IsDocx reports whether a zip payload is an Office Open XML document by
// looking for the main part name among its entry names.
func IsDocx(data []byte) bool {
	return IsZip(data) && bytes.Contains(data, []byte("word/document.xml"))
}

// SniffKind decides the container kind of an artifact. A known declared hint
// wins, then magic bytes, then the file extension.
func SniffKind(name string, data []byte, hint string) models.ContainerKind {
	if kind, ok := kindFromHint(hint); ok {
		return kind
	}

	switch {
	case IsDocx(data), IsPDF(data), IsOLE(data):
		return models.ContainerDocument
	case IsZip(data):
		return models.ContainerZip
	case IsGzip(data):
		return models.ContainerGzip
	}

	switch ext(name) {
	case ".zip":
		return models.ContainerZip
	case ".gz":
		return models.ContainerGzip
	case ".docx", ".doc", ".pdf":
		return models.ContainerDocument
	}
	return models.ContainerSingle
}

func kindFromHint(hint string) (models.ContainerKind, bool) {
	h := strings.ToLower(strings.TrimSpace(hint))
	switch h {
	case "":
		return "", false
	case "single", "gzip", "zip", "document":
		return models.ContainerKind(h), true
	case "application/zip", "application/x-zip-compressed", ".zip", "zip-archive":
		return models.ContainerZip, true
	case "application/gzip", "application/x-gzip", ".gz":
		return models.ContainerGzip, true
	case "application/pdf", ".pdf", "application/msword", ".doc", ".docx",
		"application/vnd.openxmlformats-officedocument.wordprocessingml.document":
		return models.ContainerDocument, true
	case "text/plain", ".log", ".txt", ".csv", ".json":
		return models.ContainerSingle, true
	}
	return "", false
}

var nestedExts = []string{".zip", ".jar", ".tar", ".tgz", ".tar.gz", ".7z", ".rar"}

// isNestedArchive reports whether a zip member is an archive itself. Word
// documents are zips too but are allowed through as documents.
func isNestedArchive(name string, data []byte) bool {
	lower := strings.ToLower(name)
	for _, e := range nestedExts {
		if strings.HasSuffix(lower, e) {
			return true
		}
	}
	return IsZip(data) && !IsDocx(data)
}

func ext(name string) string {
	return strings.ToLower(path.Ext(name))
}

// Package extractor decodes archive members into text streams and decides
// whether they hold balance-sync logs.
package extractor

import (
	"errors"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/palashjain21/calo-balance-sync-analyzer/internal/archive"
	"github.com/palashjain21/calo-balance-sync-analyzer/internal/models"
)

// ErrUnsupportedFormat marks a member that is not a recognizable log.
var ErrUnsupportedFormat = errors.New("unsupported format")

// UnsupportedFormatError reports why a member was rejected.
type UnsupportedFormatError struct {
	Name   string
	Reason string
	Err    error
}

func (e *UnsupportedFormatError) Error() string {
	msg := fmt.Sprintf("unsupported format for %q: %s", e.Name, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *UnsupportedFormatError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrUnsupportedFormat}
	}
	return []error{ErrUnsupportedFormat, e.Err}
}

// maxGzipLayers bounds x.log.gz.gz style nesting.
const maxGzipLayers = 3

// Extensions accepted as text without content sniffing.
var textExts = map[string]bool{
	".log": true, ".txt": true, ".csv": true, ".json": true, ".out": true,
}

// Detector turns raw member bytes into a SourceStream.
type Detector struct {
	sniffBytes int
	maxBytes   int64
	logger     *slog.Logger
}

// NewDetector returns a Detector that sniffs the first sniffBytes of text and
// refuses to decompress beyond maxBytes.
func NewDetector(sniffBytes int, maxBytes int64, logger *slog.Logger) *Detector {
	if sniffBytes <= 0 {
		sniffBytes = 4096
	}
	return &Detector{
		sniffBytes: sniffBytes,
		maxBytes:   maxBytes,
		logger:     logger.With("component", "detector"),
	}
}

// Detect decodes m. Compression is sniffed first, then documents are
// converted to text, then the extension is checked, and finally the leading
// bytes are searched for log lines.
func (d *Detector) Detect(m models.Member) (models.SourceStream, error) {
	name, data := m.Name, m.Data
	reject := func(reason string, err error) (models.SourceStream, error) {
		return models.SourceStream{}, &UnsupportedFormatError{Name: m.Name, Reason: reason, Err: err}
	}

	var layers []string
	for archive.IsGzip(data) {
		if len(layers) == maxGzipLayers {
			return reject("too many gzip layers", nil)
		}
		inner, err := gunzip(data, d.maxBytes)
		if err != nil {
			return reject("corrupt gzip stream", err)
		}
		data = inner
		name = trimExt(name, ".gz")
		layers = append(layers, "gzip")
	}

	stream := models.SourceStream{Name: m.Name, Folder: m.Folder}
	needSniff := false

	switch {
	case archive.IsDocx(data):
		text, err := docxText(data)
		if err != nil {
			return reject("unreadable docx", err)
		}
		stream.Text, stream.Format, stream.Encoding = text, "docx", "utf-8"
	case archive.IsZip(data):
		return reject("archive content", nil)
	case archive.IsPDF(data):
		pages, err := pdfText(data)
		if err != nil {
			return reject("unreadable pdf", err)
		}
		stream.Text, stream.Format, stream.Encoding = strings.Join(pages, "\n"), "pdf", "utf-8"
	case archive.IsOLE(data) || ext(name) == ".doc":
		// legacy Word: keep the printable runs and insist on log content
		stream.Text, stream.Encoding = decodeText(data)
		stream.Text = printableLines(stream.Text)
		stream.Format = "doc"
		needSniff = true
	default:
		stream.Text, stream.Encoding = decodeText(data)
		stream.Format = "text"
		needSniff = !textExts[ext(name)]
	}
	if len(layers) > 0 {
		stream.Format = strings.Join(layers, "+") + "+" + stream.Format
	}

	stream.Dialect = classifyDialect(head(stream.Text, d.sniffBytes))
	if stream.Dialect == "" {
		if needSniff {
			return reject(fmt.Sprintf("no log lines in first %d bytes", d.sniffBytes), nil)
		}
		stream.Dialect = models.DialectPlain
	}

	d.logger.Debug("detected stream",
		"source", stream.Name,
		"format", stream.Format,
		"encoding", stream.Encoding,
		"dialect", stream.Dialect,
	)
	return stream, nil
}

func head(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func ext(name string) string {
	return strings.ToLower(path.Ext(name))
}

func trimExt(name, e string) string {
	if strings.EqualFold(path.Ext(name), e) {
		return name[:len(name)-len(e)]
	}
	return name
}

// Package extract turns raw source files into table batches.
package extract

import (
	"path"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/cognicore/medallion/pkg/medallion/table"
)

// Format identifies how a source file encodes its table.
type Format string

const (
	CSV  Format = "csv"
	JSON Format = "json"
	PDF  Format = "pdf"
	HTML Format = "html"
)

// DefaultHeaderToken marks the start of the table inside PDF text.
const DefaultHeaderToken = "provider_name"

// FormatFromName maps a file name to its format by extension.
func FormatFromName(name string) (Format, bool) {
	switch strings.ToLower(path.Ext(name)) {
	case ".csv":
		return CSV, true
	case ".json", ".jsonl", ".ndjson":
		return JSON, true
	case ".pdf":
		return PDF, true
	case ".html", ".htm":
		return HTML, true
	}
	return "", false
}

// IsPlaceholder reports whether an object key is a folder marker rather than a file.
func IsPlaceholder(key string) bool {
	if key == "" || strings.HasSuffix(key, "/") {
		return true
	}
	return path.Base(key) == ".emptyFolderPlaceholder"
}

var dateStamp = regexp.MustCompile(`_\d{4}(_|$)`)

// StagingTableName derives the staging table for a source file:
// "assets_2024_01_15.csv" lands in "assets".
func StagingTableName(key string) string {
	base := path.Base(key)
	stem := strings.TrimSuffix(base, path.Ext(base))
	if loc := dateStamp.FindStringIndex(stem); loc != nil && loc[0] > 0 {
		stem = stem[:loc[0]]
	}
	return table.NormalizeColumn(stem)
}

// Extractor parses source files. It holds no per-file state and is safe for
// concurrent use.
type Extractor struct {
	HeaderToken string

	log     *zap.Logger
	pdfText func([]byte) (string, error)
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithPDFText replaces the PDF text decoder.
func WithPDFText(fn func([]byte) (string, error)) Option {
	return func(e *Extractor) { e.pdfText = fn }
}

// New creates an extractor. An empty header token means DefaultHeaderToken.
func New(log *zap.Logger, headerToken string, opts ...Option) *Extractor {
	if log == nil {
		log = zap.NewNop()
	}
	if headerToken == "" {
		headerToken = DefaultHeaderToken
	}
	e := &Extractor{HeaderToken: headerToken, log: log.Named("extract"), pdfText: PDFText}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract parses data in the given format. Unrecoverable input yields an
// empty batch and a warning; it never fails.
func (e *Extractor) Extract(name string, data []byte, format Format) *table.Batch {
	var (
		b   *table.Batch
		err error
	)
	switch format {
	case CSV:
		b, err = ReadCSV(strings.NewReader(string(data)))
	case JSON:
		b, err = ReadJSON(data)
	case HTML:
		b, err = ReadHTMLTable(strings.NewReader(string(data)))
	case PDF:
		var text string
		text, err = e.pdfText(data)
		if err == nil {
			b, err = TextToBatch(text, e.HeaderToken)
		}
	default:
		e.log.Warn("unsupported format", zap.String("file", name), zap.String("format", string(format)))
		return table.New()
	}
	if err != nil {
		e.log.Warn("unreadable source file", zap.String("file", name), zap.Error(err))
		return table.New()
	}
	if b.Empty() {
		e.log.Warn("no tabular content", zap.String("file", name))
		return table.New()
	}
	b.NormalizeColumns()
	return b
}

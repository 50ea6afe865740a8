package jobs

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Kind partitions jobs by document type.
type Kind string

const (
	KindPDF         Kind = "pdf"
	KindSlideDeck   Kind = "slidedeck"
	KindSpreadsheet Kind = "spreadsheet"
)

// Kinds lists every supported kind in a stable order.
var Kinds = []Kind{KindPDF, KindSlideDeck, KindSpreadsheet}

const (
	mimePDF  = "application/pdf"
	mimePPTX = "application/vnd.openxmlformats-officedocument.presentationml.presentation"
	mimeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	mimeCSV  = "text/csv"
)

var extensionKinds = map[string]Kind{
	".pdf":  KindPDF,
	".pptx": KindSlideDeck,
	".xlsx": KindSpreadsheet,
	".csv":  KindSpreadsheet,
}

var mimeKinds = map[string]Kind{
	mimePDF:                    KindPDF,
	mimePPTX:                   KindSlideDeck,
	mimeXLSX:                   KindSpreadsheet,
	mimeCSV:                    KindSpreadsheet,
	"application/csv":          KindSpreadsheet,
	"application/vnd.ms-excel": KindSpreadsheet,
}

// generic MIME types carry no information about the format, so the extension decides.
var genericMimes = map[string]struct{}{
	"":                         {},
	"application/octet-stream": {},
	"binary/octet-stream":      {},
	"application/zip":          {},
}

// ParseKind validates a kind name.
func ParseKind(raw string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(raw)))
	switch k {
	case KindPDF, KindSlideDeck, KindSpreadsheet:
		return k, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedType, raw)
	}
}

// ResolveKind maps a declared content type and filename onto a Kind using the extension
// allow-list. A specific declared type must agree with the extension.
func ResolveKind(contentType, filename string) (Kind, error) {
	ext := strings.ToLower(filepath.Ext(strings.TrimSpace(filename)))
	kind, ok := extensionKinds[ext]
	if !ok {
		return "", fmt.Errorf("%w: extension %q", ErrUnsupportedType, ext)
	}

	declared := normalizeMime(contentType)
	if _, generic := genericMimes[declared]; generic {
		return kind, nil
	}
	declaredKind, known := mimeKinds[declared]
	if !known || declaredKind != kind {
		return "", fmt.Errorf("%w: content type %q does not match %q", ErrUnsupportedType, declared, ext)
	}
	return kind, nil
}

// IsCSV reports whether the filename names a comma-separated spreadsheet.
func IsCSV(filename string) bool {
	return strings.EqualFold(filepath.Ext(strings.TrimSpace(filename)), ".csv")
}

func normalizeMime(raw string) string {
	return strings.ToLower(strings.TrimSpace(strings.Split(raw, ";")[0]))
}

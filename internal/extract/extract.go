// Package extract turns raw document bytes into structured content. Extractors never
// keep a reference to the input slice after returning.
package extract

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"studykit-backend/internal/jobs"
)

// ErrMalformed marks input an extractor could not parse. Callers never receive partial
// content alongside it.
var ErrMalformed = errors.New("malformed document")

// ErrOverLimit is returned when a structural count passes the Bounds carried by the
// context. Only Metadata is populated alongside it.
var ErrOverLimit = errors.New("structural bound exceeded")

// Bounds are structural ceilings an extractor checks as soon as the count is known, before
// parsing page or sheet bodies. Zero fields are unbounded.
type Bounds struct {
	MaxPages      int
	MaxSlides     int
	MaxWorksheets int
	MaxCells      int
}

type boundsKey struct{}

// WithBounds attaches b to ctx for the extractors called with it.
func WithBounds(ctx context.Context, b Bounds) context.Context {
	return context.WithValue(ctx, boundsKey{}, b)
}

// BoundsFrom returns the Bounds attached to ctx, or the zero value.
func BoundsFrom(ctx context.Context) Bounds {
	b, _ := ctx.Value(boundsKey{}).(Bounds)
	return b
}

func overLimit(md Metadata, what string, got, ceiling int) (ParsedContent, error) {
	return ParsedContent{Metadata: md}, fmt.Errorf("%w: %d %ss, max %d", ErrOverLimit, got, what, ceiling)
}

// TextBlock is a run of prose under an optional heading.
type TextBlock struct {
	Heading string `json:"heading,omitempty"`
	Content string `json:"content"`
}

// Table is a titled grid of cell values.
type Table struct {
	Title string     `json:"title,omitempty"`
	Rows  [][]string `json:"rows"`
}

// Equation holds one LaTeX fragment found in the document text.
type Equation struct {
	Latex string `json:"latex"`
}

// Heading is one entry of the document outline.
type Heading struct {
	Level int    `json:"level"`
	Title string `json:"title"`
}

// Metadata carries document properties and the structural counts limits are checked
// against.
type Metadata struct {
	Title          string `json:"title,omitempty"`
	Author         string `json:"author,omitempty"`
	PageCount      int    `json:"pageCount,omitempty"`
	SlideCount     int    `json:"slideCount,omitempty"`
	WorksheetCount int    `json:"worksheetCount,omitempty"`
	CellCount      int    `json:"cellCount,omitempty"`
}

// ParsedContent is the structured result of one extraction.
type ParsedContent struct {
	TextBlocks []TextBlock `json:"textBlocks"`
	Tables     []Table     `json:"tables"`
	Equations  []Equation  `json:"equations"`
	Hierarchy  []Heading   `json:"hierarchy"`
	Metadata   Metadata    `json:"metadata"`
}

// Extractor parses one document format.
type Extractor interface {
	Extract(ctx context.Context, data []byte) (ParsedContent, error)
}

// ExtractorFunc adapts a function to Extractor.
type ExtractorFunc func(ctx context.Context, data []byte) (ParsedContent, error)

func (f ExtractorFunc) Extract(ctx context.Context, data []byte) (ParsedContent, error) {
	return f(ctx, data)
}

// Registry maps each kind to its extractor.
type Registry map[jobs.Kind]Extractor

// DefaultRegistry returns the built-in extractors for every supported kind.
func DefaultRegistry() Registry {
	return Registry{
		jobs.KindPDF:         PDF{},
		jobs.KindSlideDeck:   SlideDeck{},
		jobs.KindSpreadsheet: Spreadsheet{},
	}
}

// Extract runs the extractor registered for kind. Parser panics are converted into
// ErrMalformed.
func (r Registry) Extract(ctx context.Context, kind jobs.Kind, data []byte) (content ParsedContent, err error) {
	ex, ok := r[kind]
	if !ok || ex == nil {
		return ParsedContent{}, fmt.Errorf("%w: no extractor for %s", jobs.ErrUnsupportedType, kind)
	}
	if err := ctx.Err(); err != nil {
		return ParsedContent{}, err
	}
	defer func() {
		if rec := recover(); rec != nil {
			content = ParsedContent{}
			err = fmt.Errorf("%w: %s parser panic: %v", ErrMalformed, kind, rec)
		}
	}()
	content, err = ex.Extract(ctx, data)
	if errors.Is(err, ErrOverLimit) {
		return ParsedContent{Metadata: content.Metadata}, err
	}
	if err != nil {
		return ParsedContent{}, err
	}
	return content, nil
}

func malformed(format string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrMalformed, format, err)
}

var equationPattern = regexp.MustCompile(`\$\$([^$]+)\$\$|\$([^$\n]+)\$|\\\((.+?)\\\)|\\\[(.+?)\\\]`)

// findEquations collects inline and display LaTeX fragments from text.
func findEquations(text string) []Equation {
	var out []Equation
	for _, m := range equationPattern.FindAllStringSubmatch(text, -1) {
		for _, group := range m[1:] {
			if latex := strings.TrimSpace(group); latex != "" {
				out = append(out, Equation{Latex: latex})
				break
			}
		}
	}
	return out
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

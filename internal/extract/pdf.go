package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"
)

// PDF extracts per-page text, outline and document info from PDF files.
type PDF struct{}

func (PDF) Extract(ctx context.Context, data []byte) (ParsedContent, error) {
	if len(data) == 0 {
		return ParsedContent{}, malformed("pdf", errors.New("empty input"))
	}
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return ParsedContent{}, malformed("pdf", err)
	}

	out := ParsedContent{}
	out.Metadata.PageCount = reader.NumPage()
	if out.Metadata.PageCount == 0 {
		return ParsedContent{}, malformed("pdf", errors.New("document has no pages"))
	}
	if ceiling := BoundsFrom(ctx).MaxPages; ceiling > 0 && out.Metadata.PageCount > ceiling {
		return overLimit(out.Metadata, "page", out.Metadata.PageCount, ceiling)
	}

	info := reader.Trailer().Key("Info")
	out.Metadata.Title = strings.TrimSpace(info.Key("Title").Text())
	out.Metadata.Author = strings.TrimSpace(info.Key("Author").Text())

	for i := 1; i <= out.Metadata.PageCount; i++ {
		if err := ctx.Err(); err != nil {
			return ParsedContent{}, err
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return ParsedContent{}, malformed("pdf", fmt.Errorf("page %d: %w", i, err))
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}
		out.TextBlocks = append(out.TextBlocks, TextBlock{
			Heading: fmt.Sprintf("Page %d", i),
			Content: text,
		})
		out.Equations = append(out.Equations, findEquations(text)...)
	}

	walkOutline(reader.Outline(), 0, &out.Hierarchy)
	return out, nil
}

func walkOutline(node pdf.Outline, depth int, dst *[]Heading) {
	if title := strings.TrimSpace(node.Title); title != "" && depth > 0 {
		*dst = append(*dst, Heading{Level: depth, Title: title})
	}
	for _, child := range node.Child {
		walkOutline(child, depth+1, dst)
	}
}

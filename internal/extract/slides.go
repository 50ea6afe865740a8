package extract

import (
	"bytes"
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

// SlideDeck extracts per-slide text and tables from PowerPoint (.pptx) packages.
type SlideDeck struct{}

type presentation struct {
	Slides []struct {
		RID string `xml:"http://schemas.openxmlformats.org/officeDocument/2006/relationships id,attr"`
	} `xml:"sldIdLst>sldId"`
}

func (SlideDeck) Extract(ctx context.Context, data []byte) (ParsedContent, error) {
	pkg, err := openPackage(data)
	if err != nil {
		return ParsedContent{}, malformed("pptx", err)
	}
	if !pkg.has("ppt/presentation.xml") {
		return ParsedContent{}, malformed("pptx", errors.New("ppt/presentation.xml not found"))
	}

	var pres presentation
	if err := pkg.decode("ppt/presentation.xml", &pres); err != nil {
		return ParsedContent{}, malformed("pptx", err)
	}
	targets, err := pkg.relTargets("ppt/_rels/presentation.xml.rels", "ppt")
	if err != nil {
		return ParsedContent{}, malformed("pptx", err)
	}

	out := ParsedContent{}
	props := pkg.coreProps()
	out.Metadata.Title = props.Title
	out.Metadata.Author = props.Creator
	out.Metadata.SlideCount = len(pres.Slides)
	if ceiling := BoundsFrom(ctx).MaxSlides; ceiling > 0 && out.Metadata.SlideCount > ceiling {
		return overLimit(out.Metadata, "slide", out.Metadata.SlideCount, ceiling)
	}

	for i, ref := range pres.Slides {
		if err := ctx.Err(); err != nil {
			return ParsedContent{}, err
		}
		target, ok := targets[ref.RID]
		if !ok {
			return ParsedContent{}, malformed("pptx", fmt.Errorf("slide %d: relationship %q not found", i+1, ref.RID))
		}
		raw, err := pkg.read(target)
		if err != nil {
			return ParsedContent{}, malformed("pptx", err)
		}
		slide, err := parseSlide(raw)
		if err != nil {
			return ParsedContent{}, malformed("pptx", fmt.Errorf("slide %d: %w", i+1, err))
		}

		heading := fmt.Sprintf("Slide %d", i+1)
		if slide.title != "" {
			heading = slide.title
			out.Hierarchy = append(out.Hierarchy, Heading{Level: 1, Title: slide.title})
		}
		body := strings.Join(slide.paragraphs, "\n")
		if body != "" || slide.title != "" {
			out.TextBlocks = append(out.TextBlocks, TextBlock{Heading: heading, Content: body})
			out.Equations = append(out.Equations, findEquations(body)...)
		}
		for j, rows := range slide.tables {
			out.Tables = append(out.Tables, Table{
				Title: fmt.Sprintf("%s, table %d", heading, j+1),
				Rows:  rows,
			})
		}
	}
	if out.Metadata.Title == "" && len(out.Hierarchy) > 0 {
		out.Metadata.Title = out.Hierarchy[0].Title
	}
	return out, nil
}

type slideText struct {
	title      string
	paragraphs []string
	tables     [][][]string
}

// parseSlide walks DrawingML text runs. Paragraphs inside title placeholders become the
// slide title; paragraphs inside tables become cells.
func parseSlide(raw []byte) (slideText, error) {
	var (
		out      slideText
		para     strings.Builder
		cell     strings.Builder
		table    [][]string
		row      []string
		inPara   bool
		inTitle  bool
		inText   bool
		tblDepth int
	)
	dec := xml.NewDecoder(bytes.NewReader(raw))
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return slideText{}, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "sp":
				inTitle = false
			case "ph":
				for _, a := range t.Attr {
					if a.Name.Local == "type" && (a.Value == "title" || a.Value == "ctrTitle") {
						inTitle = true
					}
				}
			case "tbl":
				tblDepth++
				table = nil
			case "tr":
				row = nil
			case "tc":
				cell.Reset()
			case "p":
				inPara = true
				para.Reset()
			case "t":
				inText = true
			}
		case xml.CharData:
			if !inText {
				continue
			}
			if tblDepth > 0 {
				cell.Write(t)
			} else if inPara {
				para.Write(t)
			}
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "br":
				if inPara && tblDepth == 0 {
					para.WriteString(" ")
				}
			case "p":
				inPara = false
				if tblDepth > 0 {
					cell.WriteString(" ")
					continue
				}
				text := collapseSpace(para.String())
				if text == "" {
					continue
				}
				if inTitle && out.title == "" {
					out.title = text
				} else {
					out.paragraphs = append(out.paragraphs, text)
				}
			case "tc":
				row = append(row, collapseSpace(cell.String()))
			case "tr":
				table = append(table, row)
			case "tbl":
				tblDepth--
				if len(table) > 0 {
					out.tables = append(out.tables, table)
				}
			case "sp":
				inTitle = false
			}
		}
	}
	return out, nil
}

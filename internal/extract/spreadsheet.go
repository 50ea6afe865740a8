package extract

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"
)

var zipMagic = []byte("PK\x03\x04")

// Worksheet bounds match Excel's own: columns A..XFD and 1,048,576 rows. maxGridCells caps
// the padded rows-by-columns area of a sheet so a sparse far-away cell cannot inflate it.
const (
	maxColumns   = 16384
	maxSheetRows = 1 << 20
	maxGridCells = 4 << 20
)

// Spreadsheet extracts worksheets from Excel (.xlsx) workbooks and CSV files. Input that
// starts with a zip header is treated as a workbook, anything else as CSV.
type Spreadsheet struct{}

func (Spreadsheet) Extract(ctx context.Context, data []byte) (ParsedContent, error) {
	if len(data) == 0 {
		return ParsedContent{}, malformed("spreadsheet", errors.New("empty input"))
	}
	if bytes.HasPrefix(data, zipMagic) {
		return extractWorkbook(ctx, data)
	}
	return extractCSV(data, BoundsFrom(ctx))
}

func extractCSV(data []byte, bounds Bounds) (ParsedContent, error) {
	if !utf8.Valid(data) {
		return ParsedContent{}, malformed("csv", errors.New("input is not valid UTF-8 text"))
	}
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true

	var rows [][]string
	cells := 0
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return ParsedContent{}, malformed("csv", err)
		}
		for _, v := range rec {
			if strings.TrimSpace(v) != "" {
				cells++
			}
		}
		if bounds.MaxCells > 0 && cells > bounds.MaxCells {
			return overLimit(Metadata{WorksheetCount: 1, CellCount: cells}, "cell", cells, bounds.MaxCells)
		}
		rows = append(rows, rec)
	}
	if len(rows) == 0 {
		return ParsedContent{}, malformed("csv", errors.New("no rows"))
	}

	return ParsedContent{
		Tables: []Table{{Title: "Sheet1", Rows: rows}},
		Metadata: Metadata{
			WorksheetCount: 1,
			CellCount:      cells,
		},
	}, nil
}

type workbook struct {
	Sheets []struct {
		Name string `xml:"name,attr"`
		RID  string `xml:"http://schemas.openxmlformats.org/officeDocument/2006/relationships id,attr"`
	} `xml:"sheets>sheet"`
}

type sharedStrings struct {
	Items []richString `xml:"si"`
}

type richString struct {
	T    string `xml:"t"`
	Runs []struct {
		T string `xml:"t"`
	} `xml:"r"`
}

func (s richString) text() string {
	if len(s.Runs) == 0 {
		return s.T
	}
	var b strings.Builder
	for _, r := range s.Runs {
		b.WriteString(r.T)
	}
	return b.String()
}

type worksheet struct {
	Rows []struct {
		Cells []struct {
			Ref    string      `xml:"r,attr"`
			Type   string      `xml:"t,attr"`
			Value  string      `xml:"v"`
			Inline *richString `xml:"is"`
		} `xml:"c"`
	} `xml:"sheetData>row"`
}

func extractWorkbook(ctx context.Context, data []byte) (ParsedContent, error) {
	pkg, err := openPackage(data)
	if err != nil {
		return ParsedContent{}, malformed("xlsx", err)
	}
	var wb workbook
	if err := pkg.decode("xl/workbook.xml", &wb); err != nil {
		return ParsedContent{}, malformed("xlsx", err)
	}
	targets, err := pkg.relTargets("xl/_rels/workbook.xml.rels", "xl")
	if err != nil {
		return ParsedContent{}, malformed("xlsx", err)
	}

	var shared sharedStrings
	if pkg.has("xl/sharedStrings.xml") {
		if err := pkg.decode("xl/sharedStrings.xml", &shared); err != nil {
			return ParsedContent{}, malformed("xlsx", err)
		}
	}

	out := ParsedContent{}
	props := pkg.coreProps()
	out.Metadata.Title = props.Title
	out.Metadata.Author = props.Creator
	out.Metadata.WorksheetCount = len(wb.Sheets)
	bounds := BoundsFrom(ctx)
	if bounds.MaxWorksheets > 0 && out.Metadata.WorksheetCount > bounds.MaxWorksheets {
		return overLimit(out.Metadata, "worksheet", out.Metadata.WorksheetCount, bounds.MaxWorksheets)
	}

	for _, sheet := range wb.Sheets {
		if err := ctx.Err(); err != nil {
			return ParsedContent{}, err
		}
		target, ok := targets[sheet.RID]
		if !ok {
			return ParsedContent{}, malformed("xlsx", fmt.Errorf("sheet %q: relationship %q not found", sheet.Name, sheet.RID))
		}
		var ws worksheet
		if err := pkg.decode(target, &ws); err != nil {
			return ParsedContent{}, malformed("xlsx", err)
		}

		if len(ws.Rows) > maxSheetRows {
			return ParsedContent{}, malformed("xlsx", fmt.Errorf("sheet %q: %d rows exceeds %d", sheet.Name, len(ws.Rows), maxSheetRows))
		}
		rows := make([][]string, 0, len(ws.Rows))
		width := 0
		for _, r := range ws.Rows {
			var row []string
			for i, c := range r.Cells {
				col := i
				if idx, ok, err := columnIndex(c.Ref); err != nil {
					return ParsedContent{}, malformed("xlsx", fmt.Errorf("sheet %q: %w", sheet.Name, err))
				} else if ok {
					col = idx
				}
				if col >= maxColumns {
					return ParsedContent{}, malformed("xlsx", fmt.Errorf("sheet %q: too many cells in row", sheet.Name))
				}
				value, err := cellValue(c.Type, c.Value, c.Inline, shared.Items)
				if err != nil {
					return ParsedContent{}, malformed("xlsx", fmt.Errorf("sheet %q cell %s: %w", sheet.Name, c.Ref, err))
				}
				if value == "" {
					continue
				}
				if col >= len(row) {
					row = append(row, make([]string, col+1-len(row))...)
				}
				row[col] = value
				out.Metadata.CellCount++
				if bounds.MaxCells > 0 && out.Metadata.CellCount > bounds.MaxCells {
					return overLimit(out.Metadata, "cell", out.Metadata.CellCount, bounds.MaxCells)
				}
			}
			if len(row) > width {
				width = len(row)
			}
			if width*(len(rows)+1) > maxGridCells {
				return ParsedContent{}, malformed("xlsx", fmt.Errorf("sheet %q: grid exceeds %d cells", sheet.Name, maxGridCells))
			}
			rows = append(rows, row)
		}
		out.Tables = append(out.Tables, Table{Title: sheet.Name, Rows: rows})
		out.Hierarchy = append(out.Hierarchy, Heading{Level: 1, Title: sheet.Name})
	}
	return out, nil
}

func cellValue(typ, raw string, inline *richString, shared []richString) (string, error) {
	switch typ {
	case "s":
		idx, err := strconv.Atoi(strings.TrimSpace(raw))
		if err != nil || idx < 0 || idx >= len(shared) {
			return "", fmt.Errorf("bad shared string index %q", raw)
		}
		return shared[idx].text(), nil
	case "inlineStr":
		if inline == nil {
			return "", nil
		}
		return inline.text(), nil
	case "b":
		if raw == "1" {
			return "TRUE", nil
		}
		if raw == "0" {
			return "FALSE", nil
		}
		return raw, nil
	default:
		return raw, nil
	}
}

// columnIndex converts the letters of an A1-style reference into a zero-based column.
// ok is false when the reference has no column letters; columns past XFD are an error.
func columnIndex(ref string) (int, bool, error) {
	col := 0
	n := 0
	for _, r := range ref {
		if r < 'A' || r > 'Z' {
			break
		}
		col = col*26 + int(r-'A'+1)
		n++
		if col > maxColumns {
			return 0, false, fmt.Errorf("cell %q: column out of range", ref)
		}
	}
	if n == 0 {
		return 0, false, nil
	}
	return col - 1, true, nil
}

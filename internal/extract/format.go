package extract

import (
	"fmt"
	"strings"
)

// Format renders content as Markdown. The output is what clients receive from the
// content endpoint.
func Format(c ParsedContent) string {
	var b strings.Builder
	if c.Metadata.Title != "" {
		fmt.Fprintf(&b, "# %s\n\n", c.Metadata.Title)
	}
	if c.Metadata.Author != "" {
		fmt.Fprintf(&b, "_%s_\n\n", c.Metadata.Author)
	}

	if len(c.Hierarchy) > 1 {
		b.WriteString("## Outline\n\n")
		for _, h := range c.Hierarchy {
			level := h.Level
			if level < 1 {
				level = 1
			}
			fmt.Fprintf(&b, "%s- %s\n", strings.Repeat("  ", level-1), h.Title)
		}
		b.WriteString("\n")
	}

	for _, block := range c.TextBlocks {
		if block.Heading != "" {
			fmt.Fprintf(&b, "## %s\n\n", block.Heading)
		}
		if block.Content != "" {
			b.WriteString(block.Content)
			b.WriteString("\n\n")
		}
	}

	for _, t := range c.Tables {
		writeTable(&b, t)
	}

	if len(c.Equations) > 0 {
		b.WriteString("## Equations\n\n")
		for _, eq := range c.Equations {
			fmt.Fprintf(&b, "$$%s$$\n\n", eq.Latex)
		}
	}
	return strings.TrimRight(b.String(), "\n") + "\n"
}

func writeTable(b *strings.Builder, t Table) {
	width := 0
	for _, row := range t.Rows {
		if len(row) > width {
			width = len(row)
		}
	}
	if width == 0 {
		return
	}
	if t.Title != "" {
		fmt.Fprintf(b, "### %s\n\n", t.Title)
	}
	for i, row := range t.Rows {
		b.WriteString("|")
		for col := 0; col < width; col++ {
			cell := ""
			if col < len(row) {
				cell = strings.ReplaceAll(strings.TrimSpace(row[col]), "|", `\|`)
				cell = strings.ReplaceAll(cell, "\n", " ")
			}
			fmt.Fprintf(b, " %s |", cell)
		}
		b.WriteString("\n")
		if i == 0 {
			b.WriteString("|" + strings.Repeat(" --- |", width) + "\n")
		}
	}
	b.WriteString("\n")
}

// Stats summarises extracted content without interpreting it.
type Stats struct {
	Words          int `json:"words"`
	TextBlocks     int `json:"textBlocks"`
	Tables         int `json:"tables"`
	Equations      int `json:"equations"`
	ReadingMinutes int `json:"readingMinutes"`
}

const wordsPerMinute = 200

// Analyze counts words and structures in c.
func Analyze(c ParsedContent) Stats {
	s := Stats{
		TextBlocks: len(c.TextBlocks),
		Tables:     len(c.Tables),
		Equations:  len(c.Equations),
	}
	for _, block := range c.TextBlocks {
		s.Words += len(strings.Fields(block.Content))
	}
	for _, t := range c.Tables {
		for _, row := range t.Rows {
			for _, cell := range row {
				s.Words += len(strings.Fields(cell))
			}
		}
	}
	if s.Words > 0 {
		s.ReadingMinutes = (s.Words + wordsPerMinute - 1) / wordsPerMinute
	}
	return s
}

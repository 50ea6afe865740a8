package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/pelletier/go-toml/v2"

	"studykit-backend/internal/jobs"
)

// KindLimits are the admission and structural ceilings for one document kind. Zero
// structural fields mean "not checked".
type KindLimits struct {
	MaxBytes      int64
	MaxPages      int
	MaxSlides     int
	MaxWorksheets int
	MaxCells      int
}

// Limits holds ceilings for every kind.
type Limits struct {
	PDF         KindLimits
	SlideDeck   KindLimits
	Spreadsheet KindLimits
}

// DefaultLimits returns the built-in ceilings.
func DefaultLimits() Limits {
	return Limits{
		PDF:         KindLimits{MaxBytes: 25 * humanize.MiByte, MaxPages: 25},
		SlideDeck:   KindLimits{MaxBytes: 40 * humanize.MiByte, MaxSlides: 75},
		Spreadsheet: KindLimits{MaxBytes: 30 * humanize.MiByte, MaxWorksheets: 20, MaxCells: 50000},
	}
}

// For returns the ceilings for kind.
func (l Limits) For(kind jobs.Kind) KindLimits {
	switch kind {
	case jobs.KindPDF:
		return l.PDF
	case jobs.KindSlideDeck:
		return l.SlideDeck
	case jobs.KindSpreadsheet:
		return l.Spreadsheet
	default:
		return KindLimits{}
	}
}

type limitsFile struct {
	PDF         *kindLimitsFile `toml:"pdf"`
	SlideDeck   *kindLimitsFile `toml:"slidedeck"`
	Spreadsheet *kindLimitsFile `toml:"spreadsheet"`
}

type kindLimitsFile struct {
	MaxSize       string `toml:"max_size"`
	MaxPages      *int   `toml:"max_pages"`
	MaxSlides     *int   `toml:"max_slides"`
	MaxWorksheets *int   `toml:"max_worksheets"`
	MaxCells      *int   `toml:"max_cells"`
}

// LoadLimits reads a TOML limits file. An empty path returns the defaults; fields absent
// from the file keep their default values.
//
//	[pdf]
//	max_size = "25 MiB"
//	max_pages = 25
func LoadLimits(path string) (Limits, error) {
	limits := DefaultLimits()
	if strings.TrimSpace(path) == "" {
		return limits, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return Limits{}, fmt.Errorf("read limits file: %w", err)
	}
	return ParseLimits(raw)
}

// ParseLimits decodes TOML limits on top of the defaults.
func ParseLimits(raw []byte) (Limits, error) {
	limits := DefaultLimits()
	var file limitsFile
	if err := toml.Unmarshal(raw, &file); err != nil {
		return Limits{}, fmt.Errorf("parse limits: %w", err)
	}
	if err := file.PDF.apply("pdf", &limits.PDF); err != nil {
		return Limits{}, err
	}
	if err := file.SlideDeck.apply("slidedeck", &limits.SlideDeck); err != nil {
		return Limits{}, err
	}
	if err := file.Spreadsheet.apply("spreadsheet", &limits.Spreadsheet); err != nil {
		return Limits{}, err
	}
	return limits, nil
}

func (f *kindLimitsFile) apply(section string, dst *KindLimits) error {
	if f == nil {
		return nil
	}
	if s := strings.TrimSpace(f.MaxSize); s != "" {
		n, err := humanize.ParseBytes(s)
		if err != nil || n == 0 {
			return fmt.Errorf("limits [%s] max_size %q: invalid size", section, s)
		}
		dst.MaxBytes = int64(n)
	}
	for _, field := range []struct {
		name string
		src  *int
		dst  *int
	}{
		{"max_pages", f.MaxPages, &dst.MaxPages},
		{"max_slides", f.MaxSlides, &dst.MaxSlides},
		{"max_worksheets", f.MaxWorksheets, &dst.MaxWorksheets},
		{"max_cells", f.MaxCells, &dst.MaxCells},
	} {
		if field.src == nil {
			continue
		}
		if *field.src < 0 {
			return fmt.Errorf("limits [%s] %s must not be negative", section, field.name)
		}
		*field.dst = *field.src
	}
	return nil
}

package extract

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
)

// maxPartSize bounds how much of a single archive entry is decompressed.
const maxPartSize = 64 << 20

type ooxmlPackage struct {
	files map[string]*zip.File
}

func openPackage(data []byte) (*ooxmlPackage, error) {
	if len(data) == 0 {
		return nil, errors.New("empty input")
	}
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}
	pkg := &ooxmlPackage{files: make(map[string]*zip.File, len(zr.File))}
	for _, f := range zr.File {
		pkg.files[strings.ReplaceAll(f.Name, "\\", "/")] = f
	}
	return pkg, nil
}

func (p *ooxmlPackage) has(name string) bool {
	_, ok := p.files[name]
	return ok
}

func (p *ooxmlPackage) read(name string) ([]byte, error) {
	f, ok := p.files[name]
	if !ok {
		return nil, fmt.Errorf("%s not found", name)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	raw, err := io.ReadAll(io.LimitReader(rc, maxPartSize+1))
	if err != nil {
		return nil, err
	}
	if len(raw) > maxPartSize {
		return nil, fmt.Errorf("%s exceeds %d bytes", name, maxPartSize)
	}
	return raw, nil
}

func (p *ooxmlPackage) decode(name string, v any) error {
	raw, err := p.read(name)
	if err != nil {
		return err
	}
	if err := xml.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

type coreProperties struct {
	Title   string `xml:"title"`
	Creator string `xml:"creator"`
}

// coreProps reads docProps/core.xml when present. A missing part is not an error.
func (p *ooxmlPackage) coreProps() coreProperties {
	var props coreProperties
	if !p.has("docProps/core.xml") {
		return props
	}
	_ = p.decode("docProps/core.xml", &props)
	props.Title = strings.TrimSpace(props.Title)
	props.Creator = strings.TrimSpace(props.Creator)
	return props
}

type relationships struct {
	Items []struct {
		ID     string `xml:"Id,attr"`
		Target string `xml:"Target,attr"`
	} `xml:"Relationship"`
}

// relTargets resolves a part's relationships to absolute package paths.
func (p *ooxmlPackage) relTargets(relsPath, baseDir string) (map[string]string, error) {
	var rels relationships
	if err := p.decode(relsPath, &rels); err != nil {
		return nil, err
	}
	out := make(map[string]string, len(rels.Items))
	for _, r := range rels.Items {
		target := r.Target
		if strings.HasPrefix(target, "/") {
			target = strings.TrimPrefix(target, "/")
		} else {
			target = path.Join(baseDir, target)
		}
		out[r.ID] = target
	}
	return out, nil
}

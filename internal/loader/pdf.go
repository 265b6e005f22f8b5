package loader

import (
	"fmt"

	"github.com/ledongthuc/pdf"
)

// loadPDF extracts the plain text of every page. The pdf package panics on
// many malformed files; those panics come back as errors.
func loadPDF(path string) (segs []Segment, err error) {
	defer func() {
		if r := recover(); r != nil {
			segs = nil
			err = fmt.Errorf("loader: pdf %s: %v", path, r)
		}
	}()

	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("loader: open pdf %s: %w", path, err)
	}
	defer f.Close()

	fonts := make(map[string]*pdf.Font)
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		for _, name := range p.Fonts() {
			if _, ok := fonts[name]; !ok {
				font := p.Font(name)
				fonts[name] = &font
			}
		}
		text, err := p.GetPlainText(fonts)
		if err != nil {
			return nil, fmt.Errorf("loader: pdf %s page %d: %w", path, i, err)
		}
		segs = append(segs, Segment{Page: i, Text: text})
	}
	return segs, nil
}

// Package loader extracts plain text from uploaded documents.
package loader

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Supported extensions, lower-cased with the leading dot.
const (
	ExtPDF  = ".pdf"
	ExtDOCX = ".docx"
	ExtTXT  = ".txt"
)

// UnsupportedTypeError is returned for files whose extension has no loader.
type UnsupportedTypeError struct {
	Path string
	Ext  string
}

func (e *UnsupportedTypeError) Error() string {
	if e.Ext == "" {
		return fmt.Sprintf("loader: %s: file has no extension (supported: .pdf, .docx, .txt)", e.Path)
	}
	return fmt.Sprintf("loader: %s: unsupported file type %q (supported: .pdf, .docx, .txt)", e.Path, e.Ext)
}

// Segment is a contiguous run of text. PDFs produce one segment per page;
// other formats produce a single segment with Page 0.
type Segment struct {
	Page int
	Text string
}

// Document is the extracted content of one file.
type Document struct {
	Path     string
	Ext      string
	Segments []Segment
}

// Name returns the file's base name.
func (d Document) Name() string { return filepath.Base(d.Path) }

// Text joins all segments with a blank line.
func (d Document) Text() string {
	parts := make([]string, 0, len(d.Segments))
	for _, s := range d.Segments {
		if strings.TrimSpace(s.Text) != "" {
			parts = append(parts, s.Text)
		}
	}
	return strings.Join(parts, "\n\n")
}

// Ext returns the lower-cased extension of path.
func Ext(path string) string {
	return strings.ToLower(filepath.Ext(path))
}

// Supported reports whether path has a loadable extension.
func Supported(path string) bool {
	switch Ext(path) {
	case ExtPDF, ExtDOCX, ExtTXT:
		return true
	}
	return false
}

// Check returns an *UnsupportedTypeError when path cannot be loaded. It does
// not touch the filesystem.
func Check(path string) error {
	if !Supported(path) {
		return &UnsupportedTypeError{Path: path, Ext: Ext(path)}
	}
	return nil
}

// Load extracts the text of the file at path, dispatching on its extension.
func Load(path string) (Document, error) {
	if err := Check(path); err != nil {
		return Document{}, err
	}

	ext := Ext(path)
	var (
		segs []Segment
		err  error
	)
	switch ext {
	case ExtPDF:
		segs, err = loadPDF(path)
	case ExtDOCX:
		segs, err = loadDOCX(path)
	case ExtTXT:
		segs, err = loadText(path)
	}
	if err != nil {
		return Document{}, err
	}
	return Document{Path: path, Ext: ext, Segments: segs}, nil
}

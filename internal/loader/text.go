package loader

import (
	"fmt"
	"os"
	"strings"
	"unicode/utf8"
)

func loadText(path string) ([]Segment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("loader: read %s: %w", path, err)
	}
	if !utf8.Valid(data) {
		data = []byte(strings.ToValidUTF8(string(data), "�"))
	}
	return []Segment{{Text: string(data)}}, nil
}

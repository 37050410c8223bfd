package input

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

const previewLines = 5

// FilePreview summarises an input file before a run.
type FilePreview struct {
	Name      string   `json:"name"`
	Size      int64    `json:"size"`
	LineCount int      `json:"line_count"`
	Lines     []string `json:"preview"`
}

// Preview reports the file name, size in bytes, number of non-blank lines and the first
// few non-blank lines.
func Preview(path string) (*FilePreview, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.Wrap(err, "file not found")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read file")
	}

	var lines []string
	for _, line := range strings.Split(string(stripBOM(data)), "\n") {
		line = strings.TrimRight(line, "\r")
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}

	p := &FilePreview{
		Name:      filepath.Base(path),
		Size:      info.Size(),
		LineCount: len(lines),
		Lines:     lines,
	}
	if len(p.Lines) > previewLines {
		p.Lines = p.Lines[:previewLines]
	}
	return p, nil
}

package capture

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// FrameSource produces raw JPEG frames for upstream streaming.
type FrameSource interface {
	Next(ctx context.Context) ([]byte, error)
}

// DirSource cycles through the JPEG files of a directory in name order.
// It stands in for a live camera when the client runs headless.
type DirSource struct {
	files []string
	idx   int
}

// NewDirSource scans dir for .jpg/.jpeg files.
func NewDirSource(dir string) (*DirSource, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read frame directory: %w", err)
	}

	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext == ".jpg" || ext == ".jpeg" {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("no JPEG frames in %s", dir)
	}
	sort.Strings(files)

	return &DirSource{files: files}, nil
}

// Next returns the next frame, wrapping around at the end.
func (s *DirSource) Next(ctx context.Context) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.files[s.idx])
	if err != nil {
		return nil, fmt.Errorf("read frame %s: %w", s.files[s.idx], err)
	}
	s.idx = (s.idx + 1) % len(s.files)
	return data, nil
}

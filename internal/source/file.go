package source

import (
	"context"
	"fmt"
	"os"

	"spxreplay/internal/model"
)

// File replays a batch captured on disk in the wire format.
type File struct {
	path string
}

// NewFile constructs a file-backed source.
func NewFile(path string) *File {
	return &File{path: path}
}

func (f *File) Name() string { return "file" }

// Fetch reads and decodes the file on every call so edits are picked up.
func (f *File) Fetch(ctx context.Context) (model.Batch, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("read batch file: %w", err)
	}
	return DecodeBatch(data)
}

var _ Source = (*File)(nil)

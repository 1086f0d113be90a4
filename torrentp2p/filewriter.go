package torrentp2p

import (
	"fmt"
	"os"
	"path/filepath"
)

// FileWriter is the output file of a download. Pieces are written at
// their offset, so they may arrive in any order.
type FileWriter struct {
	file   *os.File
	length int64
}

// CreateFile creates path, with any missing parent directories, sized to
// length bytes.
func CreateFile(path string, length int64) (*FileWriter, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
	if err != nil {
		return nil, err
	}
	if err := f.Truncate(length); err != nil {
		f.Close()
		return nil, err
	}
	return &FileWriter{file: f, length: length}, nil
}

func (fw *FileWriter) WriteAt(data []byte, offset int64) (int, error) {
	if offset < 0 || offset+int64(len(data)) > fw.length {
		return 0, fmt.Errorf("write of %d bytes at offset %d past the end of a %d byte file", len(data), offset, fw.length)
	}
	return fw.file.WriteAt(data, offset)
}

func (fw *FileWriter) Close() error {
	return fw.file.Close()
}

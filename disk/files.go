package disk

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/zeebo/xxh3"
)

// contentFilename derives the data/ filename of a key: hex of its 128-bit xxh3 hash.
func contentFilename(key string) string {
	sum := xxh3.HashString128(key).Bytes()
	return hex.EncodeToString(sum[:])
}

// writeFile writes the content file through a temporary file and a rename,
// so a reader never sees a partially written value.
func (s *storage) writeFile(name string, data []byte) error {
	path := filepath.Join(s.dataPath, name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write content file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("rename content file: %w", err)
	}
	return nil
}

func (s *storage) readFile(name string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(s.dataPath, name))
	if err != nil {
		return nil, fmt.Errorf("read content file: %w", err)
	}
	return data, nil
}

// deleteFile removes a content file. A missing file is not an error.
func (s *storage) deleteFile(name string) error {
	if name == "" {
		return nil
	}
	if err := os.Remove(filepath.Join(s.dataPath, name)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("delete content file: %w", err)
	}
	return nil
}

func (s *storage) deleteFiles(names []string) {
	for _, name := range names {
		_ = s.deleteFile(name)
	}
}

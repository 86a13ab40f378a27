// Package selfie persists captured selfies on local disk so queued
// notifications can reference them by path at dispatch time.
package selfie

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

var ErrInvalidDataURL = errors.New("invalid data URL provided for selfie")

// Store writes selfies into a single directory.
type Store struct {
	dir string
}

func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Ensure creates the selfie directory. Safe to call any number of times.
func (s *Store) Ensure() error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create selfie directory: %w", err)
	}
	return nil
}

// SaveDataURL decodes a base64 data URL and persists it, returning the
// file path. The extension is sniffed from the data URL header.
func (s *Store) SaveDataURL(dataURL string) (string, error) {
	header, encoded, ok := strings.Cut(dataURL, ",")
	if !ok || encoded == "" {
		return "", ErrInvalidDataURL
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidDataURL, err)
	}

	ext := "jpeg"
	if strings.Contains(header, "png") {
		ext = "png"
	}

	return s.SaveBytes(data, ext)
}

// SaveBytes persists raw selfie bytes under a timestamped filename.
func (s *Store) SaveBytes(data []byte, ext string) (string, error) {
	if len(data) == 0 {
		return "", errors.New("no selfie data provided")
	}
	if err := s.Ensure(); err != nil {
		return "", err
	}

	path := filepath.Join(s.dir, filename(time.Now().UTC(), ext))
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("write selfie: %w", err)
	}

	return path, nil
}

func filename(t time.Time, ext string) string {
	return fmt.Sprintf("selfie_%s_%06d.%s", t.Format("20060102_150405"), t.Nanosecond()/1000, ext)
}

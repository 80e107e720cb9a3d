package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/ruteri/blobstore-resolver/common"
	"github.com/ruteri/blobstore-resolver/interfaces"
)

// FileSink stores settings as a JSON object in a single file. Each Upsert
// reads the file, merges and atomically replaces it.
type FileSink struct {
	mu          sync.Mutex
	path        string
	log         *slog.Logger
	locationURI string
}

// NewFileSink creates the parent directory of path if needed. The file itself
// is created on the first Upsert.
func NewFileSink(path string, log *slog.Logger) (*FileSink, error) {
	if log == nil {
		log = common.DiscardLogger()
	}
	if path == "" {
		return nil, errors.New("empty settings file path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create settings directory: %w", err)
	}

	return &FileSink{
		path:        path,
		log:         log,
		locationURI: fmt.Sprintf("file://%s", path),
	}, nil
}

func (s *FileSink) Upsert(_ context.Context, cfg interfaces.ResolvedStorageConfig, policy interfaces.MergePolicy) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.read()
	if err != nil {
		return err
	}

	merged, err := Merge(existing, cfg, policy)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(merged, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode settings: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".settings-*")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write settings: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write settings: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to replace settings file: %w", err)
	}

	s.log.Debug("Stored settings in file",
		slog.String("path", s.path),
		slog.Int("settings", len(merged)))
	return nil
}

// Load returns the settings currently stored in the file.
func (s *FileSink) Load() (interfaces.ResolvedStorageConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.read()
}

func (s *FileSink) read() (interfaces.ResolvedStorageConfig, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return interfaces.ResolvedStorageConfig{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read settings file: %w", err)
	}
	if len(data) == 0 {
		return interfaces.ResolvedStorageConfig{}, nil
	}

	var existing interfaces.ResolvedStorageConfig
	if err := json.Unmarshal(data, &existing); err != nil {
		return nil, fmt.Errorf("failed to parse settings file %s: %w", s.path, err)
	}
	if existing == nil {
		existing = interfaces.ResolvedStorageConfig{}
	}
	return existing, nil
}

// Available checks that the settings directory exists.
func (s *FileSink) Available(context.Context) bool {
	_, err := os.Stat(filepath.Dir(s.path))
	if err != nil {
		s.log.Debug("Settings file unavailable", "err", err)
		return false
	}
	return true
}

func (s *FileSink) Name() string {
	return fmt.Sprintf("file-%s", filepath.Base(s.path))
}

func (s *FileSink) LocationURI() string {
	return s.locationURI
}

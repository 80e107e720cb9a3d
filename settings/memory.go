package settings

import (
	"context"
	"log/slog"
	"sync"

	"github.com/ruteri/blobstore-resolver/common"
	"github.com/ruteri/blobstore-resolver/interfaces"
)

// MemorySink keeps settings in process memory. It is safe for concurrent use.
type MemorySink struct {
	mu       sync.RWMutex
	settings interfaces.ResolvedStorageConfig
	log      *slog.Logger
}

// NewMemorySink returns a sink seeded with a copy of initial, which may be nil.
func NewMemorySink(initial interfaces.ResolvedStorageConfig, log *slog.Logger) *MemorySink {
	if log == nil {
		log = common.DiscardLogger()
	}
	settings := Clone(initial)
	if settings == nil {
		settings = interfaces.ResolvedStorageConfig{}
	}
	return &MemorySink{settings: settings, log: log}
}

func (s *MemorySink) Upsert(_ context.Context, cfg interfaces.ResolvedStorageConfig, policy interfaces.MergePolicy) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	merged, err := Merge(s.settings, cfg, policy)
	if err != nil {
		return err
	}
	s.settings = merged

	s.log.Debug("Updated in-memory settings", slog.Int("settings", len(merged)))
	return nil
}

// Settings returns a copy of the current settings.
func (s *MemorySink) Settings() interfaces.ResolvedStorageConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Clone(s.settings)
}

func (s *MemorySink) Available(context.Context) bool {
	return true
}

func (s *MemorySink) Name() string {
	return "memory"
}

func (s *MemorySink) LocationURI() string {
	return "memory://"
}

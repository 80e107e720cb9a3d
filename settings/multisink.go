package settings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ruteri/blobstore-resolver/common"
	"github.com/ruteri/blobstore-resolver/interfaces"
)

// MultiSink writes settings to every available sink. Upsert succeeds if at
// least one sink accepted the settings.
type MultiSink struct {
	sinks []Sink
	log   *slog.Logger
}

func NewMultiSink(sinks []Sink, log *slog.Logger) *MultiSink {
	if log == nil {
		log = common.DiscardLogger()
	}
	return &MultiSink{
		sinks: sinks,
		log:   log,
	}
}

func (m *MultiSink) Upsert(ctx context.Context, cfg interfaces.ResolvedStorageConfig, policy interfaces.MergePolicy) error {
	start := time.Now()
	var errs []error
	stored := 0

	for _, sink := range m.sinks {
		if !sink.Available(ctx) {
			m.log.Debug("Sink unavailable", slog.String("sink_name", sink.Name()))
			errs = append(errs, fmt.Errorf("%s: unavailable", sink.Name()))
			continue
		}

		if err := sink.Upsert(ctx, cfg, policy); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", sink.Name(), err))
			m.log.Warn("Failed to store settings",
				slog.String("sink_name", sink.Name()),
				"err", err)
			continue
		}
		stored++
	}

	if stored == 0 {
		m.log.Error("All sinks failed to store settings",
			slog.Int("failed_sinks", len(errs)),
			slog.Duration("duration", time.Since(start)))
		return fmt.Errorf("all sinks failed to store settings: %w", errors.Join(errs...))
	}

	m.log.Info("Stored settings",
		slog.Int("sinks", stored),
		slog.Int("failed_sinks", len(errs)),
		slog.Duration("duration", time.Since(start)))
	return nil
}

// Available reports whether any sink is available.
func (m *MultiSink) Available(ctx context.Context) bool {
	for _, sink := range m.sinks {
		if sink.Available(ctx) {
			return true
		}
	}
	return false
}

func (m *MultiSink) Name() string {
	return "multi-sink"
}

func (m *MultiSink) LocationURI() string {
	var locations []string
	for _, sink := range m.sinks {
		locations = append(locations, sink.LocationURI())
	}
	return "multi:[" + strings.Join(locations, ",") + "]"
}

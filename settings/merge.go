package settings

import (
	"context"
	"maps"
	"slices"

	"github.com/ruteri/blobstore-resolver/interfaces"
)

// Sink is a SettingsSink that can be health-checked and named, so it can take part
// in a MultiSink and be built from a location URI.
type Sink interface {
	interfaces.SettingsSink
	Available(ctx context.Context) bool
	Name() string
	LocationURI() string
}

// Merge folds src into dst according to policy and returns a new config.
// Neither argument is modified. Settings are merged per top-level key: an
// existing value, including false, "" and a nested block, is kept whole unless
// policy.Overwrite is set, and keys missing from dst are added only with
// policy.Append.
func Merge(dst, src interfaces.ResolvedStorageConfig, policy interfaces.MergePolicy) (interfaces.ResolvedStorageConfig, error) {
	merged := Clone(dst)
	if merged == nil {
		merged = interfaces.ResolvedStorageConfig{}
	}

	for key, value := range src {
		_, exists := merged[key]
		if exists && !policy.Overwrite || !exists && !policy.Append {
			continue
		}
		merged[key] = cloneValue(value)
	}
	return merged, nil
}

// Clone deep-copies cfg, including nested maps and slices.
func Clone(cfg interfaces.ResolvedStorageConfig) interfaces.ResolvedStorageConfig {
	if cfg == nil {
		return nil
	}
	out := make(interfaces.ResolvedStorageConfig, len(cfg))
	for k, v := range cfg {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = cloneValue(e)
		}
		return out
	case interfaces.ResolvedStorageConfig:
		return Clone(t)
	case map[string]string:
		return maps.Clone(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = cloneValue(e)
		}
		return out
	case []string:
		return slices.Clone(t)
	default:
		return v
	}
}

package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ruteri/blobstore-resolver/common"
	"github.com/ruteri/blobstore-resolver/interfaces"
	"github.com/ruteri/blobstore-resolver/metrics"
)

// NotConfiguredWarning is reported when no provider matched.
const NotConfiguredWarning = "External file store not configured, uploaded files in the app " +
	"will not persist across restarts."

// Request carries the three inputs of a resolution. All are read-only.
type Request struct {
	Services interfaces.CredentialSource
	Env      interfaces.EnvironmentOverrides
	Runtime  interfaces.RuntimeVersion
}

// ProviderResolver turns a request into one provider's Resolution.
// A provider that is not configured returns NoMatch and a nil error.
type ProviderResolver interface {
	Name() string
	Resolve(ctx context.Context, req Request) (Resolution, error)
}

// Outcome is the result of Resolver.Resolve.
type Outcome struct {
	// Config is empty when no provider matched.
	Config interfaces.ResolvedStorageConfig
	// Resolution is the winning result, or the last NoMatch.
	Resolution Resolution
	// Warnings lists non-fatal problems, including NotConfiguredWarning.
	Warnings []string
}

// Configured reports whether a provider matched.
func (o Outcome) Configured() bool {
	_, noMatch := o.Resolution.(NoMatch)
	return o.Resolution != nil && !noMatch
}

type ResolverConfig struct {
	// Exchanger is used by the S3 resolver for runtimes without token service support.
	Exchanger interfaces.CredentialExchanger
	Log       *slog.Logger
	Metrics   *metrics.Metrics
}

// Resolver tries S3, Swift and Azure in that order and keeps the first match.
// Providers are mutually exclusive because resolution stops at the first match.
type Resolver struct {
	resolvers []ProviderResolver
	log       *slog.Logger
	metrics   *metrics.Metrics
}

func NewResolver(cfg ResolverConfig) *Resolver {
	log := cfg.Log
	if log == nil {
		log = common.DiscardLogger()
	}
	return NewResolverWith(log, cfg.Metrics,
		NewS3Resolver(cfg.Exchanger, log),
		NewSwiftResolver(log),
		NewAzureResolver(log),
	)
}

// NewResolverWith builds a Resolver over an explicit resolver chain.
func NewResolverWith(log *slog.Logger, m *metrics.Metrics, resolvers ...ProviderResolver) *Resolver {
	if log == nil {
		log = common.DiscardLogger()
	}
	return &Resolver{
		resolvers: resolvers,
		log:       log,
		metrics:   m,
	}
}

// Resolve returns the configuration of the first matching provider. An empty
// configuration is not an error; it is reported through Outcome.Warnings.
// Exchange failures and ambiguous bindings abort resolution.
func (r *Resolver) Resolve(ctx context.Context, req Request) (Outcome, error) {
	start := time.Now()
	outcome := Outcome{Config: interfaces.ResolvedStorageConfig{}}

	for _, resolver := range r.resolvers {
		result, err := resolver.Resolve(ctx, req)
		if err != nil {
			r.metrics.ResolutionError()
			r.log.Error("Storage resolution failed",
				slog.String("provider", resolver.Name()),
				"err", err)
			return Outcome{}, fmt.Errorf("resolve %s: %w", resolver.Name(), err)
		}

		outcome.Resolution = result
		switch res := result.(type) {
		case NoMatch:
			if res.Warn {
				r.log.Warn("Can not configure storage provider", slog.String("provider", res.Provider), slog.String("reason", res.Reason))
				outcome.Warnings = append(outcome.Warnings, res.Reason)
			} else {
				r.log.Debug("Storage provider not configured", slog.String("provider", res.Provider), slog.String("reason", res.Reason))
			}
			continue
		case DirectCredentials, TvmDelegated, SwiftContainer, AzureContainer:
			outcome.Config = res.Settings()
		default:
			return Outcome{}, fmt.Errorf("resolve %s: unexpected resolution %T", resolver.Name(), result)
		}

		r.metrics.Resolution(outcome.Config.Provider())
		r.log.Debug("Storage resolved",
			slog.String("provider", resolver.Name()),
			slog.Int("settings", len(outcome.Config)),
			slog.Duration("duration", time.Since(start)))
		return outcome, nil
	}

	r.metrics.Resolution("")
	r.log.Warn(NotConfiguredWarning)
	outcome.Warnings = append(outcome.Warnings, NotConfiguredWarning)
	return outcome, nil
}

// Update resolves and merges the result into sink without overwriting
// existing settings.
func (r *Resolver) Update(ctx context.Context, sink interfaces.SettingsSink, req Request) (Outcome, error) {
	outcome, err := r.Resolve(ctx, req)
	if err != nil {
		return Outcome{}, err
	}
	if err := sink.Upsert(ctx, outcome.Config, interfaces.DefaultMergePolicy); err != nil {
		return outcome, fmt.Errorf("failed to store runtime settings: %w", err)
	}
	return outcome, nil
}

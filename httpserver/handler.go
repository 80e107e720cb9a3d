package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/ruteri/blobstore-resolver/interfaces"
	"github.com/ruteri/blobstore-resolver/storage"
)

// maxBodySize is the maximum allowed request body size (1MB).
const maxBodySize = 1024 * 1024

// RequestError provides structured error information for HTTP responses.
type RequestError struct {
	StatusCode int
	Err        error
}

func (e *RequestError) Error() string {
	return e.Err.Error()
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// InputsFunc snapshots the process inputs of a resolution: service bindings,
// environment overrides and runtime version.
type InputsFunc func(ctx context.Context) (storage.Request, error)

// ResolveRequest is the optional body of POST /api/storage/resolve. Any field
// set replaces the corresponding process input, and the resolution becomes a
// dry run: the result is returned but neither kept nor persisted.
type ResolveRequest struct {
	Services       interfaces.CredentialSource     `json:"services,omitempty"`
	Env            interfaces.EnvironmentOverrides `json:"env,omitempty"`
	RuntimeVersion string                          `json:"runtime_version,omitempty"`
}

// ConfigResponse describes a resolution. Secret settings are redacted.
type ConfigResponse struct {
	Provider   string                           `json:"provider"`
	Configured bool                             `json:"configured"`
	Settings   interfaces.ResolvedStorageConfig `json:"settings"`
	Warnings   []string                         `json:"warnings"`
	ResolvedAt time.Time                        `json:"resolved_at"`
	DryRun     bool                             `json:"dry_run,omitempty"`
}

// Handler serves the resolved storage configuration.
type Handler struct {
	resolver *storage.Resolver
	inputs   InputsFunc
	sink     interfaces.SettingsSink
	log      *slog.Logger

	mu         sync.RWMutex
	last       *storage.Outcome
	resolvedAt time.Time
}

// NewHandler creates a handler. sink may be nil, in which case resolutions
// are only kept in memory.
func NewHandler(resolver *storage.Resolver, inputs InputsFunc, sink interfaces.SettingsSink, log *slog.Logger) *Handler {
	return &Handler{
		resolver: resolver,
		inputs:   inputs,
		sink:     sink,
		log:      log,
	}
}

// Refresh resolves from the process inputs, persists the result into the sink
// and keeps it for HandleConfig.
func (h *Handler) Refresh(ctx context.Context) (storage.Outcome, error) {
	req, err := h.inputs(ctx)
	if err != nil {
		return storage.Outcome{}, &RequestError{StatusCode: http.StatusInternalServerError, Err: fmt.Errorf("failed to read inputs: %w", err)}
	}

	var outcome storage.Outcome
	if h.sink != nil {
		outcome, err = h.resolver.Update(ctx, h.sink, req)
	} else {
		outcome, err = h.resolver.Resolve(ctx, req)
	}
	if err != nil {
		return storage.Outcome{}, err
	}

	h.mu.Lock()
	h.last = &outcome
	h.resolvedAt = time.Now().UTC()
	h.mu.Unlock()

	return outcome, nil
}

// HandleConfig returns the last resolution.
//
// URL: GET /api/storage/config
func (h *Handler) HandleConfig(w http.ResponseWriter, _ *http.Request) {
	h.mu.RLock()
	last, resolvedAt := h.last, h.resolvedAt
	h.mu.RUnlock()

	if last == nil {
		http.Error(w, "No resolution available", http.StatusNotFound)
		return
	}

	h.writeJSON(w, configResponse(*last, resolvedAt, false))
}

// HandleResolve runs a resolution and returns it.
//
// URL: POST /api/storage/resolve
//
// Without a body the process inputs are re-read and the result replaces the
// last resolution. With a ResolveRequest body it is a dry run, and one that
// would need a credential exchange is rejected with 422.
func (h *Handler) HandleResolve(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodySize))
	if err != nil {
		http.Error(w, "Failed to read request body", http.StatusBadRequest)
		return
	}

	if len(body) == 0 {
		outcome, err := h.Refresh(r.Context())
		if err != nil {
			h.writeError(w, err)
			return
		}
		h.mu.RLock()
		resolvedAt := h.resolvedAt
		h.mu.RUnlock()
		h.writeJSON(w, configResponse(outcome, resolvedAt, false))
		return
	}

	var dryRun ResolveRequest
	if err := json.Unmarshal(body, &dryRun); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	req, err := h.inputs(r.Context())
	if err != nil {
		h.writeError(w, fmt.Errorf("failed to read inputs: %w", err))
		return
	}
	if dryRun.Services != nil {
		req.Services = dryRun.Services
	}
	if dryRun.Env != nil {
		req.Env = dryRun.Env
	}
	if dryRun.RuntimeVersion != "" {
		rv, err := interfaces.NewRuntimeVersion(dryRun.RuntimeVersion)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		req.Runtime = rv
	}

	// Request bodies are untrusted, so a dry run never contacts a token
	// vending machine on their behalf.
	outcome, err := h.resolver.Resolve(storage.WithoutExchange(r.Context()), req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, configResponse(outcome, time.Now().UTC(), true))
}

// Ready reports whether a resolution succeeded and the sink, if it can tell,
// is reachable.
func (h *Handler) Ready(ctx context.Context) bool {
	h.mu.RLock()
	resolved := h.last != nil
	h.mu.RUnlock()
	if !resolved {
		return false
	}

	if checker, ok := h.sink.(interface{ Available(context.Context) bool }); ok {
		return checker.Available(ctx)
	}
	return true
}

func configResponse(outcome storage.Outcome, resolvedAt time.Time, dryRun bool) ConfigResponse {
	warnings := outcome.Warnings
	if warnings == nil {
		warnings = []string{}
	}
	return ConfigResponse{
		Provider:   outcome.Config.Provider(),
		Configured: outcome.Configured(),
		Settings:   storage.Redact(outcome.Config),
		Warnings:   warnings,
		ResolvedAt: resolvedAt,
		DryRun:     dryRun,
	}
}

// statusFor maps resolution errors to HTTP status codes.
func statusFor(err error) int {
	var reqErr *RequestError
	switch {
	case errors.As(err, &reqErr):
		return reqErr.StatusCode
	case errors.Is(err, interfaces.ErrExchange):
		return http.StatusBadGateway
	case errors.Is(err, interfaces.ErrAmbiguousConfiguration),
		errors.Is(err, interfaces.ErrInvalidOverride),
		errors.Is(err, interfaces.ErrInvalidBindings),
		errors.Is(err, interfaces.ErrInvalidRuntimeVersion),
		errors.Is(err, storage.ErrExchangeDisabled):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	h.log.Error("Storage resolution request failed", slog.Int("status", status), "err", err)
	http.Error(w, err.Error(), status)
}

func (h *Handler) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.log.Error("Failed to encode response", "err", err)
	}
}

package settings

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/ruteri/blobstore-resolver/common"
)

// SinkFactory creates sinks from location URIs.
type SinkFactory struct {
	log *slog.Logger
	// VaultToken is used by vault:// sinks. Empty falls back to VAULT_TOKEN.
	VaultToken string
}

func NewSinkFactory(log *slog.Logger) *SinkFactory {
	if log == nil {
		log = common.DiscardLogger()
	}
	return &SinkFactory{log: log}
}

// SinkFor creates a sink from a location URI.
//
// Supported schemes:
//   - memory:// - process memory, mostly for tests and dry runs
//   - file:///absolute/path.json or file://./relative/path.json
//   - vault://host:port/mount/path/to/secret?scheme=http
func (f *SinkFactory) SinkFor(locationURI string) (Sink, error) {
	u, err := url.Parse(locationURI)
	if err != nil {
		return nil, fmt.Errorf("invalid sink location %q: %w", locationURI, err)
	}

	switch strings.ToLower(u.Scheme) {
	case "memory":
		return NewMemorySink(nil, f.log), nil
	case "file":
		return f.createFileSink(u)
	case "vault":
		return f.createVaultSink(u)
	default:
		return nil, fmt.Errorf("unsupported sink scheme: %q", u.Scheme)
	}
}

// CreateMultiSink creates a sink writing to every valid location. Invalid
// locations are logged and skipped.
func (f *SinkFactory) CreateMultiSink(locationURIs []string) (*MultiSink, error) {
	sinks := make([]Sink, 0, len(locationURIs))

	for _, uri := range locationURIs {
		sink, err := f.SinkFor(uri)
		if err != nil {
			f.log.Warn("Failed to create settings sink",
				"err", err,
				slog.String("locationURI", uri))
			continue
		}
		sinks = append(sinks, sink)
	}

	if len(sinks) == 0 {
		return nil, fmt.Errorf("no valid settings sinks created")
	}

	return NewMultiSink(sinks, f.log), nil
}

func (f *SinkFactory) createFileSink(u *url.URL) (Sink, error) {
	f.log.Debug("Creating file sink", slog.String("uri", u.String()))

	path := u.Path
	if u.Host != "" {
		path = u.Host + "/" + strings.TrimPrefix(path, "/")
	}
	if path == "" {
		return nil, fmt.Errorf("empty path in file URI: %s", u.String())
	}

	return NewFileSink(path, f.log)
}

// createVaultSink expects vault://host:port/mount/data/path. The first path
// segment is the KV v2 mount, the rest is the secret path.
func (f *SinkFactory) createVaultSink(u *url.URL) (Sink, error) {
	f.log.Debug("Creating vault sink", slog.String("host", u.Host))

	mount, dataPath, ok := strings.Cut(strings.Trim(u.Path, "/"), "/")
	if !ok || mount == "" || dataPath == "" {
		return nil, fmt.Errorf("invalid vault URI, expected vault://host:port/mount/path")
	}

	scheme := u.Query().Get("scheme")
	if scheme == "" {
		scheme = "https"
	}

	return NewVaultSink(VaultConfig{
		Address:   fmt.Sprintf("%s://%s", scheme, u.Host),
		Token:     f.VaultToken,
		MountPath: mount,
		DataPath:  dataPath,
		Log:       f.log,
	})
}

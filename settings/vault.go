package settings

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"dario.cat/mergo"
	"github.com/hashicorp/go-cleanhttp"
	"github.com/hashicorp/vault/api"
	"github.com/ruteri/blobstore-resolver/common"
	"github.com/ruteri/blobstore-resolver/interfaces"
)

// VaultConfig configures a VaultSink.
type VaultConfig struct {
	// Address of the Vault server, e.g. https://vault.example.com:8200
	Address string
	// Token authenticates requests. Empty falls back to VAULT_TOKEN.
	Token string
	// MountPath of the KV v2 engine, e.g. "secret".
	MountPath string
	// DataPath of the settings secret within the mount, e.g. "apps/myapp/runtime".
	DataPath string
	// ClientCert enables TLS client certificate authentication.
	ClientCert *tls.Certificate
	// Timeout defaults to DefaultVaultTimeout.
	Timeout time.Duration
	Log     *slog.Logger
}

const DefaultVaultTimeout = 30 * time.Second

// withDefaults fills the zero fields of cfg.
func (cfg VaultConfig) withDefaults() (VaultConfig, error) {
	defaults := VaultConfig{
		Timeout: DefaultVaultTimeout,
		Log:     common.DiscardLogger(),
	}
	if err := mergo.Merge(&cfg, defaults, mergo.WithoutDereference); err != nil {
		return VaultConfig{}, fmt.Errorf("failed to apply Vault defaults: %w", err)
	}
	return cfg, nil
}

// VaultSink stores settings as the fields of one HashiCorp Vault KV v2 secret.
type VaultSink struct {
	client      *api.Client
	mountPath   string
	dataPath    string
	log         *slog.Logger
	locationURI string
}

func NewVaultSink(cfg VaultConfig) (*VaultSink, error) {
	cfg, err := cfg.withDefaults()
	if err != nil {
		return nil, err
	}

	transport := cleanhttp.DefaultPooledTransport()
	if cfg.ClientCert != nil {
		transport.TLSClientConfig = &tls.Config{
			Certificates: []tls.Certificate{*cfg.ClientCert},
		}
	}

	config := api.DefaultConfig()
	config.Address = cfg.Address
	config.HttpClient = &http.Client{
		Transport: transport,
		Timeout:   cfg.Timeout,
	}

	client, err := api.NewClient(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create Vault client: %w", err)
	}
	if cfg.Token != "" {
		client.SetToken(cfg.Token)
	}

	mountPath := strings.Trim(cfg.MountPath, "/")
	dataPath := strings.Trim(cfg.DataPath, "/")
	if mountPath == "" || dataPath == "" {
		return nil, fmt.Errorf("vault mount and data path are required")
	}

	return &VaultSink{
		client:      client,
		mountPath:   mountPath,
		dataPath:    dataPath,
		log:         cfg.Log,
		locationURI: fmt.Sprintf("vault://%s/%s/%s", cfg.Address, mountPath, dataPath),
	}, nil
}

// secretPath is the KV v2 data path of the settings secret.
func (s *VaultSink) secretPath() string {
	return fmt.Sprintf("%s/data/%s", s.mountPath, s.dataPath)
}

func (s *VaultSink) Upsert(ctx context.Context, cfg interfaces.ResolvedStorageConfig, policy interfaces.MergePolicy) error {
	start := time.Now()

	existing, err := s.Load(ctx)
	if err != nil {
		return err
	}

	merged, err := Merge(existing, cfg, policy)
	if err != nil {
		return err
	}

	path := s.secretPath()
	_, err = s.client.Logical().WriteWithContext(ctx, path, map[string]interface{}{
		"data": map[string]interface{}(merged),
	})
	if err != nil {
		s.log.Error("Failed to write to Vault",
			slog.String("path", path),
			"err", err)
		return fmt.Errorf("failed to write settings to Vault: %w", err)
	}

	s.log.Info("Stored settings in Vault",
		slog.String("path", path),
		slog.Int("settings", len(merged)),
		slog.Duration("duration", time.Since(start)))
	return nil
}

// Load reads the current settings. A missing secret yields an empty config.
func (s *VaultSink) Load(ctx context.Context) (interfaces.ResolvedStorageConfig, error) {
	path := s.secretPath()

	secret, err := s.client.Logical().ReadWithContext(ctx, path)
	if err != nil {
		s.log.Error("Failed to read from Vault",
			slog.String("path", path),
			"err", err)
		return nil, fmt.Errorf("failed to read settings from Vault: %w", err)
	}

	if secret == nil || secret.Data == nil || secret.Data["data"] == nil {
		s.log.Debug("No settings stored in Vault yet", slog.String("path", path))
		return interfaces.ResolvedStorageConfig{}, nil
	}

	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("invalid data format in Vault response")
	}
	return interfaces.ResolvedStorageConfig(data), nil
}

// Available checks that Vault is initialized and unsealed.
func (s *VaultSink) Available(ctx context.Context) bool {
	healthCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	health, err := s.client.Sys().HealthWithContext(healthCtx)
	if err != nil {
		s.log.Debug("Vault health check failed", "err", err)
		return false
	}

	if !health.Initialized || health.Sealed {
		s.log.Debug("Vault is not available",
			slog.Bool("initialized", health.Initialized),
			slog.Bool("sealed", health.Sealed))
		return false
	}
	return true
}

func (s *VaultSink) Name() string {
	return fmt.Sprintf("vault-%s-%s", s.mountPath, s.dataPath)
}

func (s *VaultSink) LocationURI() string {
	return s.locationURI
}

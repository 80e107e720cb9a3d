package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/ruteri/blobstore-resolver/bindings"
	"github.com/ruteri/blobstore-resolver/common"
	"github.com/ruteri/blobstore-resolver/interfaces"
)

const (
	// S3ServicePrefix matches amazon-s3, amazon-s3-dev and similar service keys.
	S3ServicePrefix = "amazon-s3"
	// RiakCSServiceKey is the legacy S3-compatible binding with credentials in a URI.
	RiakCSServiceKey = "p-riakcs"
)

// ErrExchangeDisabled is returned when a resolution would need a credential
// exchange but the context was marked with WithoutExchange.
var ErrExchangeDisabled = errors.New("credential exchange disabled for this resolution")

type noExchangeKey struct{}

// WithoutExchange marks ctx so that S3 resolution fails with
// ErrExchangeDisabled instead of contacting a token vending machine.
func WithoutExchange(ctx context.Context) context.Context {
	return context.WithValue(ctx, noExchangeKey{}, true)
}

func exchangeDisabled(ctx context.Context) bool {
	disabled, _ := ctx.Value(noExchangeKey{}).(bool)
	return disabled
}

var riakURIPattern = regexp.MustCompile(`https://(([^:]+):([^@]+)@)?([^/]+)/(.*)`)

// s3Credentials mirrors the credentials of an amazon-s3 or objectstore binding.
// Pointers distinguish absent fields from empty ones.
type s3Credentials struct {
	Bucket          *string `mapstructure:"bucket"`
	AccessKeyID     *string `mapstructure:"access_key_id"`
	SecretAccessKey *string `mapstructure:"secret_access_key"`
	TVMEndpoint     *string `mapstructure:"tvm_endpoint"`
	TVMUsername     *string `mapstructure:"tvm_username"`
	TVMPassword     *string `mapstructure:"tvm_password"`
	EncryptionKeys  any     `mapstructure:"encryption_keys"`
	KeySuffix       *string `mapstructure:"key_suffix"`
	Host            *string `mapstructure:"host"`
	Endpoint        *string `mapstructure:"endpoint"`
	KeyPrefix       *string `mapstructure:"key_prefix"`
}

type riakCredentials struct {
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	URI             string `mapstructure:"uri"`
}

// s3Fields is the provider-neutral view after bindings and overrides are combined.
type s3Fields struct {
	source          string
	accessKeyID     string
	secretAccessKey string
	tvm             interfaces.TVMCredentials
	bucket          string
	encryptionKeys  any
	keySuffix       string
	endpoint        string
	v2Auth          string
}

// S3Resolver resolves S3-compatible storage from amazon-s3*, objectstore or
// p-riakcs bindings plus S3_* overrides.
type S3Resolver struct {
	exchanger interfaces.CredentialExchanger
	selector  bindingSelector
	log       *slog.Logger
}

// NewS3Resolver returns a resolver that uses exchanger when the runtime cannot
// talk to the token vending machine itself. exchanger may be nil if TVM
// bindings are never expected; such bindings then fail the resolution.
func NewS3Resolver(exchanger interfaces.CredentialExchanger, log *slog.Logger) *S3Resolver {
	if log == nil {
		log = common.DiscardLogger()
	}
	return &S3Resolver{
		exchanger: exchanger,
		selector: bindingSelector{
			prefix:           S3ServicePrefix,
			blobstoreType:    BlobstoreTypeS3,
			genericWhenUnset: true,
		},
		log: log,
	}
}

func (r *S3Resolver) Name() string {
	return S3Service
}

func (r *S3Resolver) Resolve(ctx context.Context, req Request) (Resolution, error) {
	fields, err := r.bindingFields(req.Services, req.Env)
	if err != nil {
		return nil, err
	}

	if err := applyS3Overrides(&fields, req.Env); err != nil {
		return nil, err
	}

	if fields.bucket == "" {
		return NoMatch{Provider: S3Service, Reason: "no bucket configured"}, nil
	}

	opts := S3Options{
		Bucket:              fields.bucket,
		Endpoint:            fields.endpoint,
		KeySuffix:           fields.keySuffix,
		UseV2Auth:           req.Env.IsTrue(interfaces.EnvS3UseV2Auth, fields.v2Auth),
		DisableDeletes:      strings.EqualFold(req.Env.Get(interfaces.EnvS3PerformDeletes, "true"), "false"),
		LegacyDeleteSetting: req.Runtime.Below(storageWideDeleteVersion),
	}
	if req.Runtime.AtLeast(minEncryptionVersion) {
		opts.EncryptionKeys = fields.encryptionKeys
		opts.UseSSE = req.Env.IsTrue(interfaces.EnvS3UseSSE, "")
	}

	log := r.log.With(slog.String("bucket", opts.Bucket), slog.String("source", fields.source))
	customCAs := req.Env.Get(interfaces.EnvCertificateAuthorities, "") != ""

	switch {
	case fields.accessKeyID != "" && fields.secretAccessKey != "":
		log.Info("S3 config detected, activating external file store")
		return DirectCredentials{
			S3Options:       opts,
			AccessKeyID:     fields.accessKeyID,
			SecretAccessKey: fields.secretAccessKey,
		}, nil

	case fields.tvm.Complete() && supportsTokenService(req.Runtime) && !customCAs:
		log.Info("S3 TVM config detected, activating external file store",
			slog.String("tvm_endpoint", fields.tvm.Endpoint))
		return TvmDelegated{S3Options: opts, TVM: fields.tvm}, nil

	case fields.tvm.Complete():
		log.Info("S3 TVM config detected, fetching IAM credentials from TVM",
			slog.String("tvm_endpoint", fields.tvm.Endpoint),
			slog.Bool("custom_cas", customCAs),
			slog.String("runtime_version", req.Runtime.String()))
		if exchangeDisabled(ctx) {
			return nil, fmt.Errorf("%w: tvm endpoint %s", ErrExchangeDisabled, fields.tvm.Endpoint)
		}
		if r.exchanger == nil {
			return nil, fmt.Errorf("%w: no credential exchanger configured", interfaces.ErrExchange)
		}
		pair, err := r.exchanger.Exchange(ctx, fields.tvm)
		if err != nil {
			return nil, err
		}
		return DirectCredentials{
			S3Options:       opts,
			AccessKeyID:     pair.AccessKeyID,
			SecretAccessKey: pair.SecretAccessKey,
			Exchanged:       true,
		}, nil

	default:
		return NoMatch{Provider: S3Service, Reason: "bucket configured without credentials"}, nil
	}
}

// bindingFields reads the S3 binding, falling back to the legacy p-riakcs form.
func (r *S3Resolver) bindingFields(services interfaces.CredentialSource, env interfaces.EnvironmentOverrides) (s3Fields, error) {
	selected, ok, err := r.selector.selectBinding(services, env)
	if err != nil {
		return s3Fields{}, err
	}
	if ok {
		return s3FieldsFromBinding(selected)
	}

	if riak, ok := services.First(RiakCSServiceKey); ok {
		return r.riakFields(riak)
	}
	return s3Fields{}, nil
}

func s3FieldsFromBinding(selected selectedBinding) (s3Fields, error) {
	var creds s3Credentials
	if err := bindings.DecodeCredentials(selected.Binding, &creds); err != nil {
		return s3Fields{}, err
	}

	fields := s3Fields{
		source:          selected.Key,
		bucket:          deref(creds.Bucket),
		accessKeyID:     deref(creds.AccessKeyID),
		secretAccessKey: deref(creds.SecretAccessKey),
		tvm: interfaces.TVMCredentials{
			Endpoint: deref(creds.TVMEndpoint),
			Username: deref(creds.TVMUsername),
			Password: deref(creds.TVMPassword),
		},
		encryptionKeys: creds.EncryptionKeys,
		keySuffix:      deref(creds.KeySuffix),
	}
	if creds.Host != nil {
		fields.endpoint = *creds.Host
	}
	if creds.Endpoint != nil {
		fields.endpoint = *creds.Endpoint
	}

	// Bindings with a key prefix address objects as endpoint/bucket/prefix-key:
	// the prefix becomes the bucket and the real bucket moves into the endpoint path.
	if creds.KeyPrefix != nil && creds.Endpoint != nil {
		fields.bucket = strings.ReplaceAll(*creds.KeyPrefix, "/", "")
		fields.endpoint = *creds.Endpoint + "/" + deref(creds.Bucket)
		fields.keySuffix = ""
	}

	return fields, nil
}

func (r *S3Resolver) riakFields(binding interfaces.ServiceBinding) (s3Fields, error) {
	var creds riakCredentials
	if err := bindings.DecodeCredentials(binding, &creds); err != nil {
		return s3Fields{}, err
	}

	match := riakURIPattern.FindStringSubmatch(creds.URI)
	if match == nil {
		r.log.Warn("Ignoring p-riakcs binding with unrecognized uri")
		return s3Fields{}, nil
	}

	return s3Fields{
		source:          RiakCSServiceKey,
		accessKeyID:     creds.AccessKeyID,
		secretAccessKey: creds.SecretAccessKey,
		endpoint:        "https://" + match[4],
		bucket:          match[5],
		v2Auth:          "true",
	}, nil
}

// applyS3Overrides lets every set S3_* variable replace the binding value.
func applyS3Overrides(fields *s3Fields, env interfaces.EnvironmentOverrides) error {
	overrides := []struct {
		key    string
		target *string
	}{
		{interfaces.EnvS3AccessKeyID, &fields.accessKeyID},
		{interfaces.EnvS3SecretAccessKey, &fields.secretAccessKey},
		{interfaces.EnvS3TVMEndpoint, &fields.tvm.Endpoint},
		{interfaces.EnvS3TVMUsername, &fields.tvm.Username},
		{interfaces.EnvS3TVMPassword, &fields.tvm.Password},
		{interfaces.EnvS3BucketName, &fields.bucket},
		{interfaces.EnvS3KeySuffix, &fields.keySuffix},
		{interfaces.EnvS3Endpoint, &fields.endpoint},
	}
	for _, o := range overrides {
		if v, ok := env.Lookup(o.key); ok {
			*o.target = v
		}
	}

	if raw, ok := env.Lookup(interfaces.EnvS3EncryptionKeys); ok {
		var keys any
		if err := json.Unmarshal([]byte(raw), &keys); err != nil {
			return fmt.Errorf("%w: %s: %v", interfaces.ErrInvalidOverride, interfaces.EnvS3EncryptionKeys, err)
		}
		fields.encryptionKeys = keys
	}
	return nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

package flags

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/ruteri/blobstore-resolver/bindings"
	"github.com/ruteri/blobstore-resolver/common"
	"github.com/ruteri/blobstore-resolver/httpserver"
	"github.com/ruteri/blobstore-resolver/interfaces"
	"github.com/ruteri/blobstore-resolver/metrics"
	"github.com/ruteri/blobstore-resolver/settings"
	"github.com/ruteri/blobstore-resolver/storage"
	"github.com/ruteri/blobstore-resolver/tvm"
	"github.com/urfave/cli/v2"
)

// SetupLogger logs to stderr so that command output on stdout stays parseable.
func SetupLogger(cCtx *cli.Context) (log *slog.Logger) {
	logJSON := cCtx.Bool(LogJsonFlag.Name)
	logDebug := cCtx.Bool(LogDebugFlag.Name)
	logUID := cCtx.Bool(LogUidFlag.Name)
	logService := cCtx.String(LogServiceFlag.Name)

	logger := common.SetupLogger(&common.LoggingOpts{
		Debug:   logDebug,
		JSON:    logJSON,
		Service: logService,
		Version: common.Version,
		Output:  os.Stderr,
	})

	if logUID {
		id := uuid.Must(uuid.NewRandom())
		logger = logger.With("uid", id.String())
	}
	return logger
}

func ConfigureServer(cCtx *cli.Context, logger *slog.Logger, metricsSrv *metrics.MetricsServer) *httpserver.HTTPServerConfig {
	listenAddr := cCtx.String(ListenAddrFlag.Name)
	metricsAddr := cCtx.String(MetricsAddrFlag.Name)
	enablePprof := cCtx.Bool(PprofFlag.Name)
	drainDuration := time.Duration(cCtx.Int64(DrainSecondsFlag.Name)) * time.Second

	return &httpserver.HTTPServerConfig{
		ListenAddr:               listenAddr,
		MetricsAddr:              metricsAddr,
		Log:                      logger,
		Metrics:                  metricsSrv,
		EnablePprof:              enablePprof,
		DrainDuration:            drainDuration,
		GracefulShutdownDuration: 30 * time.Second,
		ReadTimeout:              60 * time.Second,
		WriteTimeout:             WriteTimeout(ExchangerConfig(cCtx)),
	}
}

// RuntimeVersion parses the runtime-version flag.
func RuntimeVersion(cCtx *cli.Context) (interfaces.RuntimeVersion, error) {
	return interfaces.NewRuntimeVersion(cCtx.String(RuntimeVersionFlag.Name))
}

// Inputs returns a function that snapshots bindings, environment and runtime
// version each time it is called.
func Inputs(cCtx *cli.Context) func(context.Context) (storage.Request, error) {
	servicesFile := cCtx.String(ServicesFileFlag.Name)
	return func(context.Context) (storage.Request, error) {
		rv, err := RuntimeVersion(cCtx)
		if err != nil {
			return storage.Request{}, err
		}

		var services interfaces.CredentialSource
		if servicesFile != "" {
			services, err = bindings.ServicesFromFile(servicesFile)
		} else {
			services, err = bindings.ServicesFromOS()
		}
		if err != nil {
			return storage.Request{}, err
		}

		return storage.Request{
			Services: services,
			Env:      bindings.EnvironmentFromOS(),
			Runtime:  rv,
		}, nil
	}
}

// minWriteTimeout is the API write timeout when exchanges are quick.
const minWriteTimeout = 90 * time.Second

// WriteTimeout lets POST /api/storage/resolve outlast the slowest exchange
// cfg allows, with room left to write the sink and the response.
func WriteTimeout(cfg tvm.ClientConfig) time.Duration {
	return max(minWriteTimeout, cfg.MaxExchangeDuration()+30*time.Second)
}

// ExchangerConfig reads the tvm-* flags.
func ExchangerConfig(cCtx *cli.Context) tvm.ClientConfig {
	return tvm.ClientConfig{
		Retries:        cCtx.Int(TVMRetriesFlag.Name),
		RetryInterval:  cCtx.Duration(TVMRetryIntervalFlag.Name),
		RequestTimeout: cCtx.Duration(TVMTimeoutFlag.Name),
	}
}

// Exchanger builds the token vending machine client from the tvm-* flags.
func Exchanger(cCtx *cli.Context, rv interfaces.RuntimeVersion, logger *slog.Logger, m *metrics.Metrics) *tvm.Client {
	cfg := ExchangerConfig(cCtx)
	cfg.RuntimeVersion = rv
	cfg.Log = logger
	cfg.Metrics = m
	return tvm.NewClient(cfg)
}

// Sink builds the settings sink from the sink flags, or returns nil if none is set.
func Sink(cCtx *cli.Context, logger *slog.Logger) (interfaces.SettingsSink, error) {
	locations := cCtx.StringSlice(SinkFlag.Name)
	if len(locations) == 0 {
		return nil, nil
	}

	factory := settings.NewSinkFactory(logger)
	factory.VaultToken = cCtx.String(VaultTokenFlag.Name)

	if len(locations) == 1 {
		sink, err := factory.SinkFor(locations[0])
		if err != nil {
			return nil, fmt.Errorf("invalid sink: %w", err)
		}
		return sink, nil
	}

	multi, err := factory.CreateMultiSink(locations)
	if err != nil {
		return nil, err
	}
	return multi, nil
}

var RuntimeVersionFlag = &cli.StringFlag{
	Name:     "runtime-version",
	EnvVars:  []string{"RUNTIME_VERSION"},
	Required: true,
	Usage:    "version of the runtime to configure, e.g. 9.24.0",
}

var ServicesFileFlag = &cli.StringFlag{
	Name:  "services-file",
	Usage: "read service bindings from this JSON file instead of VCAP_SERVICES",
}

var SinkFlag = &cli.StringSliceFlag{
	Name:    "sink",
	EnvVars: []string{"SETTINGS_SINK"},
	Usage:   "where to merge resolved settings: memory://, file:///path.json or vault://host:port/mount/path (repeatable)",
}

var VaultTokenFlag = &cli.StringFlag{
	Name:    "vault-token",
	EnvVars: []string{"VAULT_TOKEN"},
	Usage:   "token for vault:// sinks",
}

var TVMRetriesFlag = &cli.IntFlag{
	Name:  "tvm-retries",
	Value: tvm.DefaultRetries,
	Usage: "retries after a failed token vending machine request, negative disables retries",
}

var TVMRetryIntervalFlag = &cli.DurationFlag{
	Name:  "tvm-retry-interval",
	Value: tvm.DefaultRetryInterval,
	Usage: "delay between token vending machine retries",
}

var TVMTimeoutFlag = &cli.DurationFlag{
	Name:  "tvm-timeout",
	Value: tvm.DefaultRequestTimeout,
	Usage: "timeout of a single token vending machine request",
}

var ListenAddrFlag = &cli.StringFlag{
	Name:  "listen-addr",
	Value: "127.0.0.1:8080",
	Usage: "address to listen on for API",
}

var LogJsonFlag = &cli.BoolFlag{
	Name:  "log-json",
	Value: false,
	Usage: "log in JSON format",
}
var LogDebugFlag = &cli.BoolFlag{
	Name:  "log-debug",
	Value: false,
	Usage: "log debug messages",
}
var LogUidFlag = &cli.BoolFlag{
	Name:  "log-uid",
	Value: false,
	Usage: "generate a uuid and add to all log messages",
}
var LogServiceFlag = &cli.StringFlag{
	Name:  "log-service",
	Value: common.PackageName,
	Usage: "add 'service' tag to logs",
}

var PprofFlag = &cli.BoolFlag{
	Name:  "pprof",
	Value: false,
	Usage: "enable pprof debug endpoint",
}
var DrainSecondsFlag = &cli.Int64Flag{
	Name:  "drain-seconds",
	Value: 45,
	Usage: "seconds to wait in drain HTTP request",
}
var MetricsAddrFlag = &cli.StringFlag{
	Name:  "metrics-addr",
	Value: "127.0.0.1:8090",
	Usage: "address to listen on for Prometheus metrics",
}

var CommonFlags = []cli.Flag{
	LogJsonFlag,
	LogDebugFlag,
	LogUidFlag,
	LogServiceFlag,
}

var ResolveFlags = []cli.Flag{
	RuntimeVersionFlag,
	ServicesFileFlag,
	SinkFlag,
	VaultTokenFlag,
	TVMRetriesFlag,
	TVMRetryIntervalFlag,
	TVMTimeoutFlag,
}

var ServerFlags = []cli.Flag{
	ListenAddrFlag,
	PprofFlag,
	DrainSecondsFlag,
	MetricsAddrFlag,
}

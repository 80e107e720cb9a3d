package main

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ruteri/blobstore-resolver/cmd/flags"
	"github.com/ruteri/blobstore-resolver/common"
	"github.com/ruteri/blobstore-resolver/httpserver"
	"github.com/ruteri/blobstore-resolver/interfaces"
	"github.com/ruteri/blobstore-resolver/metrics"
	"github.com/ruteri/blobstore-resolver/storage"
	"github.com/ruteri/blobstore-resolver/tvm"
	"github.com/urfave/cli/v2"
)

var redactFlag = &cli.BoolFlag{
	Name:  "redact",
	Value: false,
	Usage: "mask secrets in the printed settings",
}

var tvmFlags = []cli.Flag{
	&cli.StringFlag{
		Name:     "tvm-endpoint",
		EnvVars:  []string{interfaces.EnvS3TVMEndpoint},
		Required: true,
		Usage:    "token vending machine host, without scheme",
	},
	&cli.StringFlag{
		Name:     "tvm-username",
		EnvVars:  []string{interfaces.EnvS3TVMUsername},
		Required: true,
		Usage:    "token vending machine username",
	},
	&cli.StringFlag{
		Name:     "tvm-password",
		EnvVars:  []string{interfaces.EnvS3TVMPassword},
		Required: true,
		Usage:    "token vending machine password",
	},
	&cli.StringFlag{
		Name:    "runtime-version",
		EnvVars: []string{"RUNTIME_VERSION"},
		Value:   "9.24.0",
		Usage:   "runtime version reported to the token vending machine",
	},
	flags.TVMRetriesFlag,
	flags.TVMRetryIntervalFlag,
	flags.TVMTimeoutFlag,
}

func main() {
	app := &cli.App{
		Name:    common.PackageName,
		Usage:   "Resolve external file store settings from service bindings",
		Version: common.Version,
		Flags:   flags.CommonFlags,
		Commands: []*cli.Command{
			{
				Name:   "resolve",
				Usage:  "resolve once, print the settings as JSON and merge them into the configured sinks",
				Flags:  append(append([]cli.Flag{}, flags.ResolveFlags...), redactFlag),
				Action: runResolve,
			},
			{
				Name:   "serve",
				Usage:  "resolve at startup and serve the result over HTTP",
				Flags:  append(append([]cli.Flag{}, flags.ResolveFlags...), flags.ServerFlags...),
				Action: runServe,
			},
			{
				Name:   "exchange",
				Usage:  "exchange token vending machine credentials for an access key and print its id",
				Flags:  tvmFlags,
				Action: runExchange,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func runResolve(cCtx *cli.Context) error {
	logger := flags.SetupLogger(cCtx)

	rv, err := flags.RuntimeVersion(cCtx)
	if err != nil {
		return err
	}

	sink, err := flags.Sink(cCtx, logger)
	if err != nil {
		return err
	}

	req, err := flags.Inputs(cCtx)(cCtx.Context)
	if err != nil {
		logger.Error("Failed to read resolution inputs", "err", err)
		return err
	}

	resolver := storage.NewResolver(storage.ResolverConfig{
		Exchanger: flags.Exchanger(cCtx, rv, logger, nil),
		Log:       logger,
	})

	var outcome storage.Outcome
	if sink != nil {
		outcome, err = resolver.Update(cCtx.Context, sink, req)
	} else {
		outcome, err = resolver.Resolve(cCtx.Context, req)
	}
	if err != nil {
		return err
	}

	cfg := outcome.Config
	if cCtx.Bool(redactFlag.Name) {
		cfg = storage.Redact(cfg)
	}
	return printJSON(cCtx.App.Writer, cfg)
}

func runServe(cCtx *cli.Context) error {
	logger := flags.SetupLogger(cCtx)

	rv, err := flags.RuntimeVersion(cCtx)
	if err != nil {
		return err
	}

	sink, err := flags.Sink(cCtx, logger)
	if err != nil {
		return err
	}

	metricsSrv, err := metrics.New(common.PackageName, cCtx.String(flags.MetricsAddrFlag.Name))
	if err != nil {
		return err
	}

	resolver := storage.NewResolver(storage.ResolverConfig{
		Exchanger: flags.Exchanger(cCtx, rv, logger, metricsSrv.Metrics),
		Log:       logger,
		Metrics:   metricsSrv.Metrics,
	})
	handler := httpserver.NewHandler(resolver, flags.Inputs(cCtx), sink, logger)

	// A failed startup resolution leaves the server running but not ready,
	// so it can be retried through POST /api/storage/resolve.
	if _, err := handler.Refresh(cCtx.Context); err != nil {
		logger.Error("Initial storage resolution failed", "err", err)
	}

	server, err := httpserver.New(flags.ConfigureServer(cCtx, logger, metricsSrv), handler)
	if err != nil {
		logger.Error("Failed to create server", "err", err)
		return err
	}

	logger.Info("Starting server")
	server.RunInBackground()

	exit := make(chan os.Signal, 1)
	signal.Notify(exit, os.Interrupt, syscall.SIGTERM)

	logger.Info("Server is running, press Ctrl+C to stop")
	<-exit
	logger.Info("Shutdown signal received")

	server.Shutdown()
	logger.Info("Server shutdown complete")
	return nil
}

type exchangeOutput struct {
	Provider    string    `json:"provider"`
	AccessKeyID string    `json:"access_key_id"`
	ExpiresAt   time.Time `json:"expires_at"`
}

func runExchange(cCtx *cli.Context) error {
	logger := flags.SetupLogger(cCtx)

	rv, err := interfaces.NewRuntimeVersion(cCtx.String("runtime-version"))
	if err != nil {
		return err
	}

	creds := tvm.NewCredentials(flags.Exchanger(cCtx, rv, logger, nil), interfaces.TVMCredentials{
		Endpoint: cCtx.String("tvm-endpoint"),
		Username: cCtx.String("tvm-username"),
		Password: cCtx.String("tvm-password"),
	})

	value, err := creds.GetWithContext(cCtx.Context)
	if err != nil {
		var exchangeErr *tvm.ExchangeError
		if errors.As(err, &exchangeErr) {
			logger.Error("Credential exchange failed",
				slog.Int("status", exchangeErr.StatusCode),
				slog.Int("attempts", exchangeErr.Attempts))
		}
		return err
	}

	expiresAt, err := creds.ExpiresAt()
	if err != nil {
		return err
	}

	return printJSON(cCtx.App.Writer, exchangeOutput{
		Provider:    value.ProviderName,
		AccessKeyID: value.AccessKeyID,
		ExpiresAt:   expiresAt.UTC(),
	})
}

func printJSON(w io.Writer, v any) error {
	if w == nil {
		w = os.Stdout
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

package tvm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hashicorp/go-cleanhttp"
	"github.com/ruteri/blobstore-resolver/common"
	"github.com/ruteri/blobstore-resolver/interfaces"
	"github.com/ruteri/blobstore-resolver/metrics"
	"github.com/tidwall/gjson"
)

const (
	DefaultRetries        = 3
	DefaultRetryInterval  = 5 * time.Second
	DefaultRequestTimeout = 30 * time.Second

	credentialsPath      = "/v1/getcredentials"
	maxResponseBodyBytes = 1 << 20
)

type ClientConfig struct {
	// HTTPClient defaults to a pooled client with RequestTimeout.
	HTTPClient *http.Client

	// RuntimeVersion is reported in the User-Agent header.
	RuntimeVersion interfaces.RuntimeVersion

	// Retries after the first attempt. Zero means DefaultRetries, negative disables retries.
	Retries       int
	RetryInterval time.Duration

	RequestTimeout time.Duration

	// NewTimer replaces the wall clock between retries. Tests pass an immediate timer.
	NewTimer func() backoff.Timer

	Log     *slog.Logger
	Metrics *metrics.Metrics
}

// Client exchanges token vending machine credentials for an access key pair.
// It retries non-2xx responses with a fixed delay: no jitter, no growth.
type Client struct {
	httpClient    *http.Client
	userAgent     string
	retries       uint64
	retryInterval time.Duration
	newTimer      func() backoff.Timer
	log           *slog.Logger
	metrics       *metrics.Metrics
}

func NewClient(cfg ClientConfig) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = cleanhttp.DefaultPooledClient()
		httpClient.Timeout = cfg.requestTimeout()
	}

	log := cfg.Log
	if log == nil {
		log = common.DiscardLogger()
	}

	return &Client{
		httpClient:    httpClient,
		userAgent:     UserAgent(cfg.RuntimeVersion),
		retries:       cfg.retryCount(),
		retryInterval: cfg.retryInterval(),
		newTimer:      cfg.NewTimer,
		log:           log,
		metrics:       cfg.Metrics,
	}
}

func (cfg ClientConfig) retryCount() uint64 {
	switch {
	case cfg.Retries == 0:
		return DefaultRetries
	case cfg.Retries > 0:
		return uint64(cfg.Retries)
	default:
		return 0
	}
}

func (cfg ClientConfig) retryInterval() time.Duration {
	if cfg.RetryInterval <= 0 {
		return DefaultRetryInterval
	}
	return cfg.RetryInterval
}

func (cfg ClientConfig) requestTimeout() time.Duration {
	if cfg.RequestTimeout <= 0 {
		return DefaultRequestTimeout
	}
	return cfg.RequestTimeout
}

// MaxExchangeDuration bounds one Exchange made with cfg: every attempt
// running into the request timeout plus the sleeps between them.
func (cfg ClientConfig) MaxExchangeDuration() time.Duration {
	retries := time.Duration(cfg.retryCount())
	return (retries+1)*cfg.requestTimeout() + retries*cfg.retryInterval()
}

// UserAgent identifies this resolver and the runtime it configures.
func UserAgent(rv interfaces.RuntimeVersion) string {
	return fmt.Sprintf("%s/%s (for runtime %s)", common.PackageName, common.Version, rv)
}

// CredentialsURL returns https://{endpoint}/v1/getcredentials.
func CredentialsURL(endpoint string) string {
	return (&url.URL{Scheme: "https", Host: endpoint, Path: credentialsPath}).String()
}

// Exchange implements interfaces.CredentialExchanger.
func (c *Client) Exchange(ctx context.Context, creds interfaces.TVMCredentials) (interfaces.AccessKeyPair, error) {
	if !creds.Complete() {
		return interfaces.AccessKeyPair{}, &ExchangeError{
			Username: creds.Username,
			Message:  "endpoint, username and password are required",
		}
	}

	target := CredentialsURL(creds.Endpoint)
	log := c.log.With(slog.String("tvm_endpoint", creds.Endpoint), slog.String("tvm_user", creds.Username))

	var (
		pair       interfaces.AccessKeyPair
		attempts   int
		lastStatus int
	)

	operation := func() error {
		attempts++
		p, err := c.fetch(ctx, target, creds)
		if err == nil {
			pair = p
			c.metrics.ExchangeAttempt(metrics.ExchangeResultSuccess)
			return nil
		}

		var exchangeErr *ExchangeError
		if errors.As(err, &exchangeErr) {
			c.metrics.ExchangeAttempt(metrics.ExchangeResultMalformed)
			exchangeErr.Attempts = attempts
			return backoff.Permanent(exchangeErr)
		}

		var se *statusError
		if errors.As(err, &se) {
			lastStatus = se.StatusCode
		}
		c.metrics.ExchangeAttempt(metrics.ExchangeResultFailed)
		return err
	}

	notify := func(err error, next time.Duration) {
		log.Error("Failed to get credentials from token vending machine, retrying",
			"err", err,
			slog.Int("attempt", attempts),
			slog.Int("retries_left", int(c.retries)-attempts),
			slog.Duration("retry_in", next))
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(c.retryInterval), c.retries),
		ctx,
	)

	var timer backoff.Timer
	if c.newTimer != nil {
		timer = c.newTimer()
	}

	err := backoff.RetryNotifyWithTimer(operation, policy, notify, timer)
	if err == nil {
		log.Debug("Obtained credentials from token vending machine", slog.Int("attempts", attempts))
		return pair, nil
	}

	var exchangeErr *ExchangeError
	if errors.As(err, &exchangeErr) {
		log.Error("Token vending machine returned an unusable response", "err", err)
		return interfaces.AccessKeyPair{}, exchangeErr
	}

	c.metrics.ExchangeAttempt(metrics.ExchangeResultExhausted)
	message := "exchange failed after retries"
	if ctxErr := ctx.Err(); ctxErr != nil {
		message = "exchange cancelled"
		err = ctxErr
	}
	log.Error("Failed to get credentials from token vending machine", "err", err, slog.Int("attempts", attempts))
	return interfaces.AccessKeyPair{}, &ExchangeError{
		Username:   creds.Username,
		StatusCode: lastStatus,
		Attempts:   attempts,
		Message:    message,
		Cause:      err,
	}
}

// fetch performs one request. Non-2xx and transport errors are returned as
// plain errors, unusable 2xx bodies as *ExchangeError.
func (c *Client) fetch(ctx context.Context, target string, creds interfaces.TVMCredentials) (interfaces.AccessKeyPair, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return interfaces.AccessKeyPair{}, &ExchangeError{
			Username: creds.Username,
			Message:  "build request",
			Cause:    err,
		}
	}
	req.SetBasicAuth(creds.Username, creds.Password)
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return interfaces.AccessKeyPair{}, fmt.Errorf("could not request token vending machine: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBodyBytes))
		return interfaces.AccessKeyPair{}, &statusError{StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodyBytes))
	if err != nil {
		return interfaces.AccessKeyPair{}, fmt.Errorf("could not read token vending machine response: %w", err)
	}

	return parseCredentials(body, creds.Username, resp.StatusCode)
}

func parseCredentials(body []byte, username string, status int) (interfaces.AccessKeyPair, error) {
	if !gjson.ValidBytes(body) {
		return interfaces.AccessKeyPair{}, &ExchangeError{
			Username:   username,
			StatusCode: status,
			Message:    "response is not valid JSON",
		}
	}

	accessKey := gjson.GetBytes(body, "AccessKeyId")
	if !accessKey.Exists() {
		return interfaces.AccessKeyPair{}, &ExchangeError{
			Username:   username,
			StatusCode: status,
			Message:    "missing AccessKeyId",
		}
	}
	secretKey := gjson.GetBytes(body, "SecretAccessKey")
	if !secretKey.Exists() {
		return interfaces.AccessKeyPair{}, &ExchangeError{
			Username:   username,
			StatusCode: status,
			Message:    "missing SecretAccessKey",
		}
	}

	return interfaces.AccessKeyPair{
		AccessKeyID:     accessKey.String(),
		SecretAccessKey: secretKey.String(),
	}, nil
}

package flags

import (
	"testing"
	"time"

	"github.com/ruteri/blobstore-resolver/tvm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

func TestWriteTimeout(t *testing.T) {
	tests := []struct {
		name     string
		cfg      tvm.ClientConfig
		expected time.Duration
	}{
		{
			name:     "default exchange",
			cfg:      tvm.ClientConfig{},
			expected: 4*tvm.DefaultRequestTimeout + 3*tvm.DefaultRetryInterval + 30*time.Second,
		},
		{
			name:     "quick exchange keeps the minimum",
			cfg:      tvm.ClientConfig{Retries: -1, RequestTimeout: 5 * time.Second},
			expected: minWriteTimeout,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, WriteTimeout(tt.cfg))
		})
	}
}

func TestConfigureServer_WriteTimeoutFollowsExchangeFlags(t *testing.T) {
	var cfg tvm.ClientConfig
	var writeTimeout time.Duration

	app := &cli.App{
		Flags: append(append([]cli.Flag{}, ResolveFlags...), ServerFlags...),
		Action: func(cCtx *cli.Context) error {
			cfg = ExchangerConfig(cCtx)
			writeTimeout = ConfigureServer(cCtx, nil, nil).WriteTimeout
			return nil
		},
	}
	require.NoError(t, app.Run([]string{
		"resolver",
		"--runtime-version", "9.0",
		"--tvm-retries", "5",
		"--tvm-retry-interval", "10s",
		"--tvm-timeout", "1m",
	}))

	assert.Equal(t, 5, cfg.Retries)
	assert.Equal(t, 10*time.Second, cfg.RetryInterval)
	assert.Equal(t, time.Minute, cfg.RequestTimeout)
	assert.Equal(t, 6*time.Minute+50*time.Second+30*time.Second, writeTimeout)
}

package tvm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/ruteri/blobstore-resolver/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockExchanger struct {
	mock.Mock
}

func (m *MockExchanger) Exchange(ctx context.Context, creds interfaces.TVMCredentials) (interfaces.AccessKeyPair, error) {
	args := m.Called(ctx, creds)
	return args.Get(0).(interfaces.AccessKeyPair), args.Error(1)
}

func TestProvider_Retrieve(t *testing.T) {
	creds := interfaces.TVMCredentials{Endpoint: "tvm.example.com", Username: "u", Password: "p"}
	exchanger := new(MockExchanger)
	exchanger.On("Exchange", mock.Anything, creds).
		Return(interfaces.AccessKeyPair{AccessKeyID: "AKIA1", SecretAccessKey: "s1"}, nil).Once()

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	provider := &Provider{Exchanger: exchanger, Credentials: creds, Duration: time.Minute}
	provider.CurrentTime = func() time.Time { return now }

	sdkCreds := credentials.NewCredentials(provider)
	value, err := sdkCreds.Get()
	require.NoError(t, err)
	assert.Equal(t, "AKIA1", value.AccessKeyID)
	assert.Equal(t, "s1", value.SecretAccessKey)
	assert.Equal(t, ProviderName, value.ProviderName)

	// cached until expiry
	_, err = sdkCreds.Get()
	require.NoError(t, err)
	assert.False(t, provider.IsExpired())

	now = now.Add(2 * time.Minute)
	assert.True(t, provider.IsExpired())

	exchanger.AssertExpectations(t)
}

func TestProvider_RetrieveError(t *testing.T) {
	exchanger := new(MockExchanger)
	exchangeErr := &ExchangeError{Message: "exchange failed after retries", Attempts: 4}
	exchanger.On("Exchange", mock.Anything, mock.Anything).
		Return(interfaces.AccessKeyPair{}, exchangeErr)

	_, err := NewCredentials(exchanger, interfaces.TVMCredentials{}).Get()
	require.Error(t, err)
	assert.True(t, errors.Is(err, interfaces.ErrExchange))
}

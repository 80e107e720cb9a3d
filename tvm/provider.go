package tvm

import (
	"context"
	"time"

	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/ruteri/blobstore-resolver/interfaces"
)

// ProviderName is reported in credentials.Value.ProviderName.
const ProviderName = "TokenVendingMachineProvider"

// DefaultCredentialDuration is how long an exchanged pair is considered valid
// when the token vending machine does not say.
const DefaultCredentialDuration = 15 * time.Minute

// Provider adapts a CredentialExchanger to the AWS SDK credentials.Provider
// interface, so tooling built on the SDK can use exchanged keys directly.
type Provider struct {
	credentials.Expiry

	Exchanger   interfaces.CredentialExchanger
	Credentials interfaces.TVMCredentials

	// Duration defaults to DefaultCredentialDuration.
	Duration time.Duration
	// ExpiryWindow refreshes credentials this long before they expire.
	ExpiryWindow time.Duration
}

// NewCredentials returns SDK credentials backed by a Provider.
func NewCredentials(exchanger interfaces.CredentialExchanger, creds interfaces.TVMCredentials) *credentials.Credentials {
	return credentials.NewCredentials(&Provider{
		Exchanger:   exchanger,
		Credentials: creds,
	})
}

func (p *Provider) Retrieve() (credentials.Value, error) {
	return p.RetrieveWithContext(context.Background())
}

func (p *Provider) RetrieveWithContext(ctx credentials.Context) (credentials.Value, error) {
	pair, err := p.Exchanger.Exchange(ctx, p.Credentials)
	if err != nil {
		return credentials.Value{ProviderName: ProviderName}, err
	}

	duration := p.Duration
	if duration <= 0 {
		duration = DefaultCredentialDuration
	}
	now := time.Now
	if p.CurrentTime != nil {
		now = p.CurrentTime
	}
	p.SetExpiration(now().Add(duration), p.ExpiryWindow)

	return credentials.Value{
		AccessKeyID:     pair.AccessKeyID,
		SecretAccessKey: pair.SecretAccessKey,
		ProviderName:    ProviderName,
	}, nil
}

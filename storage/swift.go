package storage

import (
	"context"
	"log/slog"

	"github.com/ruteri/blobstore-resolver/bindings"
	"github.com/ruteri/blobstore-resolver/common"
	"github.com/ruteri/blobstore-resolver/interfaces"
)

// SwiftServiceKey is the service binding name of OpenStack object storage.
const SwiftServiceKey = "Object-Storage"

const defaultContainerName = "mendix"

type swiftCredentials struct {
	DomainID *string `mapstructure:"domainId"`
	AuthURL  *string `mapstructure:"auth_url"`
	Username *string `mapstructure:"username"`
	Password *string `mapstructure:"password"`
	Region   *string `mapstructure:"region"`
}

func (c swiftCredentials) complete() bool {
	return c.DomainID != nil && c.AuthURL != nil && c.Username != nil && c.Password != nil && c.Region != nil
}

// SwiftResolver resolves an Object-Storage binding for runtimes 6.7 and newer.
type SwiftResolver struct {
	log *slog.Logger
}

func NewSwiftResolver(log *slog.Logger) *SwiftResolver {
	if log == nil {
		log = common.DiscardLogger()
	}
	return &SwiftResolver{log: log}
}

func (r *SwiftResolver) Name() string {
	return SwiftService
}

func (r *SwiftResolver) Resolve(_ context.Context, req Request) (Resolution, error) {
	binding, ok := req.Services.First(SwiftServiceKey)
	if !ok {
		return NoMatch{Provider: SwiftService, Reason: "no Object-Storage binding"}, nil
	}

	if req.Runtime.Below(minSwiftVersion) {
		return NoMatch{
			Provider: SwiftService,
			Reason:   "Object Storage requires runtime " + minSwiftVersion.String() + " or newer",
			Warn:     true,
		}, nil
	}

	var creds swiftCredentials
	if err := bindings.DecodeCredentials(binding, &creds); err != nil {
		return nil, err
	}
	if !creds.complete() {
		return NoMatch{
			Provider: SwiftService,
			Reason:   "Object-Storage binding lacks domainId, auth_url, username, password or region",
			Warn:     true,
		}, nil
	}

	r.log.Info("Swift config detected, activating external file store",
		slog.String("region", *creds.Region))

	return SwiftContainer{
		Container: req.Env.Get(interfaces.EnvSwiftContainerName, defaultContainerName),
		DomainID:  *creds.DomainID,
		AuthURL:   *creds.AuthURL,
		Username:  *creds.Username,
		Password:  *creds.Password,
		Region:    *creds.Region,
	}, nil
}

package kms

import (
	"fmt"

	"github.com/pulumi/pulumi-gcp/sdk/v9/go/gcp"
	"github.com/pulumi/pulumi-gcp/sdk/v9/go/gcp/kms"
	"github.com/pulumi/pulumi-gcp/sdk/v9/go/gcp/projects"
	"github.com/pulumi/pulumi-gcp/sdk/v9/go/gcp/serviceaccount"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"

	"github.com/GregMSThompson/finance-sync/infra/provider"
)

// SetupConfigKey creates the key that encrypts connection config blobs and
// lets sa use it. It returns the key name for KMSKEYNAME.
func SetupConfigKey(ctx *pulumi.Context, prov *gcp.Provider, s provider.Settings, sa *serviceaccount.Account) (pulumi.StringOutput, error) {
	empty := pulumi.String("").ToStringOutput()

	svc, err := projects.NewService(ctx, "kmsService", &projects.ServiceArgs{
		Service: pulumi.String("cloudkms.googleapis.com"),
	}, pulumi.Provider(prov))
	if err != nil {
		return empty, err
	}

	ring, err := kms.NewKeyRing(ctx, "finance-sync-ring", &kms.KeyRingArgs{
		Location: pulumi.String(s.Region),
		Name:     pulumi.String("finance-sync"),
	},
		pulumi.Provider(prov),
		pulumi.DependsOn([]pulumi.Resource{svc}),
	)
	if err != nil {
		return empty, err
	}

	key, err := kms.NewCryptoKey(ctx, "connection-config-key", &kms.CryptoKeyArgs{
		KeyRing:        ring.ID(),
		Name:           pulumi.String("connection-config"),
		Purpose:        pulumi.String("ENCRYPT_DECRYPT"),
		RotationPeriod: pulumi.String("7776000s"), // 90 days
	},
		pulumi.Provider(prov),
	)
	if err != nil {
		return empty, err
	}

	_, err = kms.NewCryptoKeyIAMMember(ctx, "connectionConfigKeyUser", &kms.CryptoKeyIAMMemberArgs{
		CryptoKeyId: key.ID(),
		Role:        pulumi.String("roles/cloudkms.cryptoKeyEncrypterDecrypter"),
		Member:      provider.ServiceAccountMember(sa),
	},
		pulumi.Provider(prov),
	)
	if err != nil {
		return empty, fmt.Errorf("grant key access: %w", err)
	}

	return key.ID().ToStringOutput(), nil
}

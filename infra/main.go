package main

import (
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"

	"github.com/GregMSThompson/finance-sync/infra/cloudrun"
	"github.com/GregMSThompson/finance-sync/infra/docker"
	"github.com/GregMSThompson/finance-sync/infra/firestore"
	"github.com/GregMSThompson/finance-sync/infra/identity"
	"github.com/GregMSThompson/finance-sync/infra/kms"
	"github.com/GregMSThompson/finance-sync/infra/provider"
	"github.com/GregMSThompson/finance-sync/infra/secret"
	"github.com/GregMSThompson/finance-sync/infra/vertex"
)

func main() {
	pulumi.Run(func(ctx *pulumi.Context) error {
		s := provider.Load(ctx)

		// set default provider with the correct project
		prov, err := provider.SetupDefaultProvider(ctx, s)
		if err != nil {
			return err
		}

		// enable identity service to allow using firebase
		ident, err := identity.SetupIdentity(ctx, prov)
		if err != nil {
			return err
		}

		// enable firestore, create the database and the scheduler indexes
		if err := firestore.SetupFirestore(ctx, prov, s); err != nil {
			return err
		}

		sa, err := cloudrun.CreateServiceAccount(ctx, prov, s)
		if err != nil {
			return err
		}

		keyName, err := kms.SetupConfigKey(ctx, prov, s, sa)
		if err != nil {
			return err
		}

		secrets, err := secret.SetupSecretManager(ctx, prov, s, sa)
		if err != nil {
			return err
		}

		if err := vertex.SetupVertex(ctx, prov, s, sa); err != nil {
			return err
		}

		repo, err := docker.CreateImageRepo(ctx, prov, s)
		if err != nil {
			return err
		}

		return cloudrun.SetupCloudRun(ctx, prov, cloudrun.Inputs{
			Settings:   s,
			Account:    sa,
			Secrets:    secrets,
			KMSKeyName: keyName,
			DependsOn:  []pulumi.Resource{ident, repo},
		})
	})
}

package docker

import (
	"github.com/pulumi/pulumi-gcp/sdk/v9/go/gcp"
	"github.com/pulumi/pulumi-gcp/sdk/v9/go/gcp/artifactregistry"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"

	"github.com/GregMSThompson/finance-sync/infra/provider"
)

const RepositoryID = "finance-sync"

// CreateImageRepo holds the api and scheduler images.
func CreateImageRepo(ctx *pulumi.Context, prov *gcp.Provider, s provider.Settings) (*artifactregistry.Repository, error) {
	return artifactregistry.NewRepository(ctx, "imageRepository", &artifactregistry.RepositoryArgs{
		Format:       pulumi.String("DOCKER"),
		RepositoryId: pulumi.String(RepositoryID),
		Location:     pulumi.String(s.Region),
		Description:  pulumi.String("Images for the finance-sync api and scheduler"),
	},
		pulumi.Provider(prov),
	)
}

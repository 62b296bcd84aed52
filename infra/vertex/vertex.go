package vertex

import (
	"github.com/pulumi/pulumi-gcp/sdk/v9/go/gcp"
	"github.com/pulumi/pulumi-gcp/sdk/v9/go/gcp/projects"
	"github.com/pulumi/pulumi-gcp/sdk/v9/go/gcp/serviceaccount"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"

	"github.com/GregMSThompson/finance-sync/infra/provider"
)

// SetupVertex enables the Vertex AI API and lets the runtime account call
// the Gemini models used for transaction classification.
func SetupVertex(ctx *pulumi.Context, prov *gcp.Provider, s provider.Settings, sa *serviceaccount.Account) error {
	svc, err := projects.NewService(ctx, "vertex", &projects.ServiceArgs{
		Service: pulumi.String("aiplatform.googleapis.com"),
	},
		pulumi.Provider(prov),
	)
	if err != nil {
		return err
	}

	_, err = projects.NewIAMMember(ctx, "vertexUser", &projects.IAMMemberArgs{
		Project: pulumi.String(s.ProjectID),
		Role:    pulumi.String("roles/aiplatform.user"),
		Member:  provider.ServiceAccountMember(sa),
	},
		pulumi.Provider(prov),
		pulumi.DependsOn([]pulumi.Resource{svc}),
	)
	return err
}

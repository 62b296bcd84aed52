package cloudrun

import (
	"fmt"
	"strconv"

	"github.com/pulumi/pulumi-docker/sdk/v4/go/docker"
	"github.com/pulumi/pulumi-gcp/sdk/v9/go/gcp"
	"github.com/pulumi/pulumi-gcp/sdk/v9/go/gcp/cloudrun"
	"github.com/pulumi/pulumi-gcp/sdk/v9/go/gcp/projects"
	"github.com/pulumi/pulumi-gcp/sdk/v9/go/gcp/serviceaccount"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi/config"

	"github.com/GregMSThompson/finance-sync/infra/common"
	dockerrepo "github.com/GregMSThompson/finance-sync/infra/docker"
	"github.com/GregMSThompson/finance-sync/infra/provider"
	"github.com/GregMSThompson/finance-sync/infra/secret"
)

// Inputs are produced by the other modules of the stack.
type Inputs struct {
	Settings   provider.Settings
	Account    *serviceaccount.Account
	Secrets    *secret.Manager
	KMSKeyName pulumi.StringOutput
	DependsOn  []pulumi.Resource
}

// process is one binary of the repo deployed as its own service.
type process struct {
	name        string
	cmd         string
	minScale    string
	maxScale    string
	throttleCPU bool
	public      bool
	extraEnv    map[string]string
}

type secretRefs struct {
	plaidClientIDName pulumi.StringOutput
	plaidSecretName   pulumi.StringOutput
}

// CreateServiceAccount is the runtime identity shared by api and scheduler.
func CreateServiceAccount(ctx *pulumi.Context, prov *gcp.Provider, s provider.Settings) (*serviceaccount.Account, error) {
	sa, err := serviceaccount.NewAccount(ctx, "runtimeServiceAccount", &serviceaccount.AccountArgs{
		AccountId:   pulumi.String("finance-sync"),
		DisplayName: pulumi.String("Finance Sync runtime"),
	},
		pulumi.Provider(prov),
	)
	if err != nil {
		return nil, err
	}

	_, err = projects.NewIAMMember(ctx, "firestoreAccess", &projects.IAMMemberArgs{
		Role:    pulumi.String("roles/datastore.user"), // Firestore read/write
		Member:  provider.ServiceAccountMember(sa),
		Project: pulumi.String(s.ProjectID),
	},
		pulumi.Provider(prov),
	)
	if err != nil {
		return nil, err
	}
	return sa, nil
}

// SetupCloudRun builds the image once and deploys the api and the scheduler.
// Only the api is reachable from outside; the scheduler keeps one warm
// instance with unthrottled CPU so the cron poll keeps running.
func SetupCloudRun(ctx *pulumi.Context, prov *gcp.Provider, in Inputs) error {
	crCfg := config.New(ctx, "cloudrun")

	srv, err := projects.NewService(ctx, "cloudRunService", &projects.ServiceArgs{
		Service: pulumi.String("run.googleapis.com"),
	},
		pulumi.Provider(prov),
	)
	if err != nil {
		return err
	}

	sr, err := createSecrets(ctx, in.Secrets)
	if err != nil {
		return err
	}

	processes := []process{
		{
			name:        "api",
			cmd:         "api",
			minScale:    crCfg.Require("minScale"),
			maxScale:    crCfg.Require("maxScale"),
			throttleCPU: false, // dispatcher workers run after the response is sent
			public:      true,
			extraEnv:    map[string]string{"SYNC_SCHEDULERINAPI": "false"},
		},
		{
			name:        "scheduler",
			cmd:         "scheduler",
			minScale:    "1",
			maxScale:    "1",
			throttleCPU: false,
			extraEnv: map[string]string{
				"SYNC_POLLINTERVAL": crCfg.Get("syncPollInterval"),
				"SYNC_WORKERS":      crCfg.Get("syncWorkers"),
			},
		},
	}

	for _, p := range processes {
		img, err := buildImage(ctx, in.Settings, p, in.DependsOn...)
		if err != nil {
			return err
		}
		svc, err := createService(ctx, prov, in, p, img, sr, srv)
		if err != nil {
			return err
		}
		if p.public {
			if err := allowInvoke(ctx, prov, in.Settings, svc); err != nil {
				return err
			}
		}
	}
	return nil
}

func buildImage(ctx *pulumi.Context, s provider.Settings, p process, res ...pulumi.Resource) (*docker.Image, error) {
	hash, err := common.GenerateHash("../")
	if err != nil {
		return nil, err
	}

	return docker.NewImage(ctx, p.name+"Image", &docker.ImageArgs{
		Build: docker.DockerBuildArgs{
			Platform:   pulumi.String("linux/amd64"),
			Context:    pulumi.String(".."),
			Dockerfile: pulumi.String("../Dockerfile"),
			Args: pulumi.StringMap{
				"CMD": pulumi.String(p.cmd),
			},
		},
		ImageName: pulumi.String(fmt.Sprintf("%s-docker.pkg.dev/%s/%s/%s:%s", s.Region, s.ProjectID, dockerrepo.RepositoryID, p.name, hash)),
	},
		pulumi.DependsOn(res),
	)
}

func createService(ctx *pulumi.Context,
	prov *gcp.Provider,
	in Inputs,
	p process,
	img *docker.Image,
	sr *secretRefs,
	res ...pulumi.Resource) (*cloudrun.Service, error) {
	crCfg := config.New(ctx, "cloudrun")
	plaidCfg := config.New(ctx, "plaid")

	timeout, _ := strconv.Atoi(crCfg.Require("timeout"))

	annotations := pulumi.StringMap{
		"autoscaling.knative.dev/minScale":         pulumi.String(p.minScale),
		"autoscaling.knative.dev/maxScale":         pulumi.String(p.maxScale),
		"run.googleapis.com/cpu":                   pulumi.String(crCfg.Require("cpu")),
		"run.googleapis.com/memory":                pulumi.String(crCfg.Require("memory")),
		"run.googleapis.com/cpu-throttling":        pulumi.String(strconv.FormatBool(p.throttleCPU)),
		"run.googleapis.com/container-concurrency": pulumi.String(crCfg.Require("concurrency")),
	}

	env := cloudrun.ServiceTemplateSpecContainerEnvArray{
		plainEnv("PROJECTID", pulumi.String(in.Settings.ProjectID)),
		plainEnv("REGION", pulumi.String(in.Settings.Region)),
		plainEnv("LOGLEVEL", pulumi.String(crCfg.Require("logLevel"))),
		plainEnv("PLAIDENVIRONMENT", pulumi.String(plaidCfg.Require("environment"))),
		plainEnv("KMSKEYNAME", in.KMSKeyName),
		secretEnv("PLAIDCLIENTID", sr.plaidClientIDName),
		secretEnv("PLAIDSECRET", sr.plaidSecretName),
	}
	for k, v := range p.extraEnv {
		if v == "" {
			continue
		}
		env = append(env, plainEnv(k, pulumi.String(v)))
	}

	return cloudrun.NewService(ctx, p.name+"Service", &cloudrun.ServiceArgs{
		Name:     pulumi.String("finance-sync-" + p.name),
		Location: pulumi.String(in.Settings.Region),

		Template: &cloudrun.ServiceTemplateArgs{
			Metadata: &cloudrun.ServiceTemplateMetadataArgs{
				Annotations: annotations,
			},
			Spec: &cloudrun.ServiceTemplateSpecArgs{
				ServiceAccountName: in.Account.Email,
				TimeoutSeconds:     pulumi.Int(timeout),
				Containers: cloudrun.ServiceTemplateSpecContainerArray{
					&cloudrun.ServiceTemplateSpecContainerArgs{
						Image: img.ImageName,
						Ports: cloudrun.ServiceTemplateSpecContainerPortArray{
							&cloudrun.ServiceTemplateSpecContainerPortArgs{
								ContainerPort: pulumi.Int(8080),
							},
						},
						Envs: env,
					},
				},
			},
		},
	},
		pulumi.Provider(prov),
		pulumi.DependsOn(res),
	)
}

func plainEnv(name string, value pulumi.StringInput) *cloudrun.ServiceTemplateSpecContainerEnvArgs {
	return &cloudrun.ServiceTemplateSpecContainerEnvArgs{
		Name:  pulumi.String(name),
		Value: value,
	}
}

func secretEnv(name string, secretName pulumi.StringOutput) *cloudrun.ServiceTemplateSpecContainerEnvArgs {
	return &cloudrun.ServiceTemplateSpecContainerEnvArgs{
		Name: pulumi.String(name),
		ValueFrom: &cloudrun.ServiceTemplateSpecContainerEnvValueFromArgs{
			SecretKeyRef: &cloudrun.ServiceTemplateSpecContainerEnvValueFromSecretKeyRefArgs{
				Name: secretName,
				Key:  pulumi.String("latest"),
			},
		},
	}
}

// allowInvoke opens the api to the internet; requests are authenticated by
// the Firebase ID token check in the service itself.
func allowInvoke(ctx *pulumi.Context, prov *gcp.Provider, s provider.Settings, svc *cloudrun.Service) error {
	_, err := cloudrun.NewIamMember(ctx, "apiPublicInvoker", &cloudrun.IamMemberArgs{
		Service:  svc.Name,
		Location: pulumi.String(s.Region),
		Role:     pulumi.String("roles/run.invoker"),
		Member:   pulumi.String("allUsers"),
	},
		pulumi.Provider(prov),
	)
	return err
}

func createSecrets(ctx *pulumi.Context, m *secret.Manager) (*secretRefs, error) {
	var err error
	sr := new(secretRefs)

	plaidCfg := config.New(ctx, "plaid")

	sr.plaidClientIDName, err = m.AddSecret(ctx, "plaidClientIdSecret", "plaidClientId", plaidCfg.RequireSecret("clientId"))
	if err != nil {
		return nil, err
	}

	sr.plaidSecretName, err = m.AddSecret(ctx, "plaidSecretSecret", "plaidSecret", plaidCfg.RequireSecret("secret"))
	if err != nil {
		return nil, err
	}

	return sr, nil
}

package firestore

import (
	"github.com/pulumi/pulumi-gcp/sdk/v9/go/gcp"
	"github.com/pulumi/pulumi-gcp/sdk/v9/go/gcp/firestore"
	"github.com/pulumi/pulumi-gcp/sdk/v9/go/gcp/projects"
	"github.com/pulumi/pulumi/sdk/v3/go/pulumi"

	"github.com/GregMSThompson/finance-sync/infra/provider"
)

const database = "(default)"

type indexField struct {
	path  string
	order string
}

// composite indexes behind the store queries
var indexes = []struct {
	name       string
	collection string
	scope      string
	fields     []indexField
}{
	{"schedulableConnections", "connections", "COLLECTION_GROUP", []indexField{{"autoSync", "ASCENDING"}, {"status", "ASCENDING"}}},
	{"transactionsByAccount", "transactions", "COLLECTION", []indexField{{"accountId", "ASCENDING"}, {"bookingDate", "DESCENDING"}}},
	{"transactionsByCategory", "transactions", "COLLECTION", []indexField{{"category", "ASCENDING"}, {"bookingDate", "DESCENDING"}}},
}

func SetupFirestore(ctx *pulumi.Context, prov *gcp.Provider, s provider.Settings) error {
	svc, err := projects.NewService(ctx, "firestore", &projects.ServiceArgs{
		Service: pulumi.String("firestore.googleapis.com"),
	},
		pulumi.Provider(prov),
	)
	if err != nil {
		return err
	}

	db, err := firestore.NewDatabase(ctx, "firestoreDatabase", &firestore.DatabaseArgs{
		Project:    pulumi.String(s.ProjectID),
		Name:       pulumi.String(database),
		LocationId: pulumi.String(s.Region),
		Type:       pulumi.String("FIRESTORE_NATIVE"),
	},
		pulumi.Provider(prov),
		pulumi.DependsOn([]pulumi.Resource{svc}),
	)
	if err != nil {
		return err
	}

	for _, idx := range indexes {
		fields := firestore.IndexFieldArray{}
		for _, f := range idx.fields {
			fields = append(fields, &firestore.IndexFieldArgs{
				FieldPath: pulumi.String(f.path),
				Order:     pulumi.String(f.order),
			})
		}
		_, err := firestore.NewIndex(ctx, idx.name, &firestore.IndexArgs{
			Database:   pulumi.String(database),
			Collection: pulumi.String(idx.collection),
			QueryScope: pulumi.String(idx.scope),
			Fields:     fields,
		},
			pulumi.Provider(prov),
			pulumi.DependsOn([]pulumi.Resource{db}),
		)
		if err != nil {
			return err
		}
	}

	// stale run recovery queries syncStatus across all users
	_, err = firestore.NewField(ctx, "runningConnections", &firestore.FieldArgs{
		Database:   pulumi.String(database),
		Collection: pulumi.String("connections"),
		Field:      pulumi.String("syncStatus"),
		IndexConfig: &firestore.FieldIndexConfigArgs{
			Indexes: firestore.FieldIndexConfigIndexArray{
				&firestore.FieldIndexConfigIndexArgs{
					Order:      pulumi.String("ASCENDING"),
					QueryScope: pulumi.String("COLLECTION_GROUP"),
				},
			},
		},
	},
		pulumi.Provider(prov),
		pulumi.DependsOn([]pulumi.Resource{db}),
	)
	return err
}

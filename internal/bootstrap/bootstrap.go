package bootstrap

import (
	"context"
	"errors"
	"log/slog"

	"cloud.google.com/go/firestore"
	kms "cloud.google.com/go/kms/apiv1"
	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"firebase.google.com/go/v4/auth"

	plaidclient "github.com/GregMSThompson/finance-sync/internal/client/plaid"
	vertexclient "github.com/GregMSThompson/finance-sync/internal/client/vertex"
	"github.com/GregMSThompson/finance-sync/internal/config"
	"github.com/GregMSThompson/finance-sync/pkg/logger"
)

type Bootstrap struct {
	Log       *slog.Logger
	Firestore *firestore.Client
	Firebase  *auth.Client
	KMS       *kms.KeyManagementClient
	Secrets   *secretmanager.Client
	Plaid     *plaidclient.Adapter
	Vertex    *vertexclient.Adapter
}

// Run builds every client the processes need. The returned Bootstrap is
// never nil so callers can log and Close even when an init step failed.
func Run(ctx context.Context, cfg *config.Config) (*Bootstrap, error) {
	var err error
	bs := new(Bootstrap)

	bs.Log = logger.New(cfg.LogLevel, logger.NewCloudRunHandler)
	bs.Firestore, err = InitFirestore(ctx, cfg.ProjectID)
	if err != nil {
		return bs, err
	}
	bs.Firebase, err = InitFirebase(ctx)
	if err != nil {
		return bs, err
	}
	bs.KMS, err = kms.NewKeyManagementClient(ctx)
	if err != nil {
		return bs, err
	}
	bs.Secrets, err = secretmanager.NewClient(ctx)
	if err != nil {
		return bs, err
	}
	bs.Plaid = plaidclient.NewAdapter(cfg.PlaidClientID, cfg.PlaidSecret, cfg.PlaidEnvironment, cfg.Notify.AppName, cfg.PlaidCountryCodes)
	bs.Vertex, err = vertexclient.NewAdapter(ctx, bs.Log, cfg.ProjectID, cfg.Region, cfg.AI.Model)
	if err != nil {
		return bs, err
	}

	bs.Log.Info("bootstrap complete",
		"project_id", cfg.ProjectID,
		"plaid_environment", cfg.PlaidEnvironment,
		"ai_model", cfg.AI.Model)
	return bs, nil
}

// Close releases every client that was opened.
func (bs *Bootstrap) Close() error {
	var errList []error
	if bs.Vertex != nil {
		errList = append(errList, bs.Vertex.Close())
	}
	if bs.Secrets != nil {
		errList = append(errList, bs.Secrets.Close())
	}
	if bs.KMS != nil {
		errList = append(errList, bs.KMS.Close())
	}
	if bs.Firestore != nil {
		errList = append(errList, bs.Firestore.Close())
	}
	return errors.Join(errList...)
}

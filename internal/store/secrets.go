package store

import (
	"context"
	"fmt"
	"strings"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/GregMSThompson/finance-sync/internal/errs"
)

// Provider access tokens live in Secret Manager, one secret per
// (provider, user, external id):
// projects/{project}/secrets/provider-access-token-{provider}-{uid}-{externalId}

type tokenStore struct {
	client    *secretmanager.Client
	projectID string
	prefix    string
}

func NewTokenStore(client *secretmanager.Client, projectID string) *tokenStore {
	return &tokenStore{
		client:    client,
		projectID: projectID,
		prefix:    "provider-access-token",
	}
}

func (s *tokenStore) secretID(providerID, uid, externalID string) string {
	id := fmt.Sprintf("%s-%s-%s-%s", s.prefix, providerID, uid, externalID)
	// secret ids allow [A-Za-z0-9_-]
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, id)
}

func (s *tokenStore) secretName(providerID, uid, externalID string) string {
	return fmt.Sprintf("projects/%s/secrets/%s", s.projectID, s.secretID(providerID, uid, externalID))
}

func (s *tokenStore) ensureSecret(ctx context.Context, providerID, uid, externalID string) error {
	_, err := s.client.GetSecret(ctx, &secretmanagerpb.GetSecretRequest{Name: s.secretName(providerID, uid, externalID)})
	if status.Code(err) == codes.NotFound {
		_, err = s.client.CreateSecret(ctx, &secretmanagerpb.CreateSecretRequest{
			Parent:   fmt.Sprintf("projects/%s", s.projectID),
			SecretId: s.secretID(providerID, uid, externalID),
			Secret: &secretmanagerpb.Secret{
				Replication: &secretmanagerpb.Replication{
					Replication: &secretmanagerpb.Replication_Automatic_{Automatic: &secretmanagerpb.Replication_Automatic{}},
				},
				Labels: map[string]string{"provider": providerID},
			},
		})
	}
	return err
}

func (s *tokenStore) StoreToken(ctx context.Context, providerID, uid, externalID, token string) error {
	if err := s.ensureSecret(ctx, providerID, uid, externalID); err != nil {
		return errs.NewEncryptionError("failed to prepare access token secret", err)
	}
	_, err := s.client.AddSecretVersion(ctx, &secretmanagerpb.AddSecretVersionRequest{
		Parent:  s.secretName(providerID, uid, externalID),
		Payload: &secretmanagerpb.SecretPayload{Data: []byte(token)},
	})
	if err != nil {
		return errs.NewEncryptionError("failed to store access token", err)
	}
	return nil
}

// GetToken returns a ConfigurationError when no token was ever stored, since
// the connection then needs to be linked again.
func (s *tokenStore) GetToken(ctx context.Context, providerID, uid, externalID string) (string, error) {
	res, err := s.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: s.secretName(providerID, uid, externalID) + "/versions/latest",
	})
	if status.Code(err) == codes.NotFound {
		return "", errs.NewConfigurationError(providerID + " access token missing, relink the connection")
	}
	if err != nil {
		return "", errs.NewEncryptionError("failed to read access token", err)
	}
	return string(res.Payload.Data), nil
}

func (s *tokenStore) DeleteToken(ctx context.Context, providerID, uid, externalID string) error {
	err := s.client.DeleteSecret(ctx, &secretmanagerpb.DeleteSecretRequest{
		Name: s.secretName(providerID, uid, externalID),
	})
	if status.Code(err) == codes.NotFound {
		return nil
	}
	if err != nil {
		return errs.NewEncryptionError("failed to delete access token", err)
	}
	return nil
}

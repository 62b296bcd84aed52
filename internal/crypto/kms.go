package crypto

import (
	"context"
	"encoding/base64"
	"encoding/json"

	"cloud.google.com/go/kms/apiv1/kmspb"
	"github.com/googleapis/gax-go/v2"

	"github.com/GregMSThompson/finance-sync/internal/errs"
)

// kmsClient is the subset of *kms.KeyManagementClient used here.
type kmsClient interface {
	Encrypt(ctx context.Context, req *kmspb.EncryptRequest, opts ...gax.CallOption) (*kmspb.EncryptResponse, error)
	Decrypt(ctx context.Context, req *kmspb.DecryptRequest, opts ...gax.CallOption) (*kmspb.DecryptResponse, error)
}

type kms struct {
	client  kmsClient
	keyName string
}

func NewKMS(client kmsClient, keyName string) *kms {
	return &kms{client: client, keyName: keyName}
}

// KmsEncrypt encrypts plaintext with the configured key and returns base64 text.
func (k *kms) KmsEncrypt(ctx context.Context, plaintext string) (string, error) {
	resp, err := k.client.Encrypt(ctx, &kmspb.EncryptRequest{
		Name:      k.keyName,
		Plaintext: []byte(plaintext),
	})
	if err != nil {
		return "", errs.NewEncryptionError("kms encrypt failed", err)
	}
	return base64.StdEncoding.EncodeToString(resp.Ciphertext), nil
}

// KmsDecrypt decrypts base64 ciphertext produced by KmsEncrypt.
func (k *kms) KmsDecrypt(ctx context.Context, ciphertext string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", errs.NewEncryptionError("ciphertext is not base64", err)
	}
	resp, err := k.client.Decrypt(ctx, &kmspb.DecryptRequest{
		Name:       k.keyName,
		Ciphertext: raw,
	})
	if err != nil {
		return "", errs.NewEncryptionError("kms decrypt failed", err)
	}
	return string(resp.Plaintext), nil
}

// EncryptConfig seals a provider config map. An empty map is stored as "".
func (k *kms) EncryptConfig(ctx context.Context, cfg map[string]string) (string, error) {
	if len(cfg) == 0 {
		return "", nil
	}
	b, err := json.Marshal(cfg)
	if err != nil {
		return "", errs.NewEncryptionError("marshal connection config", err)
	}
	return k.KmsEncrypt(ctx, string(b))
}

// DecryptConfig opens a blob written by EncryptConfig. "" yields an empty map.
func (k *kms) DecryptConfig(ctx context.Context, blob string) (map[string]string, error) {
	cfg := map[string]string{}
	if blob == "" {
		return cfg, nil
	}
	plain, err := k.KmsDecrypt(ctx, blob)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(plain), &cfg); err != nil {
		return nil, errs.NewEncryptionError("unmarshal connection config", err)
	}
	return cfg, nil
}

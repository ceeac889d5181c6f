package storage

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"

	vaultApi "github.com/hashicorp/vault/api"
	"github.com/mirzahilmi/sealedreport/internal/common/config"
)

// KeyWrapper wraps the data keys used for server-side object encryption.
// These keys protect stored envelopes at rest; they cannot open sealed
// report content.
type KeyWrapper interface {
	Wrap(ctx context.Context, dek []byte) (string, error)
	Unwrap(ctx context.Context, edek string) ([]byte, error)
}

type VaultTransit struct {
	client   *vaultApi.Client
	basePath string
	key      string
}

func NewVaultTransit(client *vaultApi.Client, cfg config.Vault) *VaultTransit {
	basePath := strings.Trim(cfg.TransitBasePath, "/")
	if basePath == "" {
		basePath = "transit"
	}
	return &VaultTransit{client: client, basePath: basePath, key: cfg.TransitKey}
}

func (v *VaultTransit) Wrap(ctx context.Context, dek []byte) (string, error) {
	secret, err := v.client.Logical().WriteWithContext(ctx,
		fmt.Sprintf("%s/encrypt/%s", v.basePath, v.key),
		map[string]interface{}{"plaintext": base64.StdEncoding.EncodeToString(dek)},
	)
	if err != nil {
		return "", fmt.Errorf("storage: transit encrypt: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return "", fmt.Errorf("storage: transit encrypt: empty response")
	}
	ciphertext, ok := secret.Data["ciphertext"].(string)
	if !ok || ciphertext == "" {
		return "", fmt.Errorf("storage: transit encrypt: missing ciphertext")
	}
	return ciphertext, nil
}

func (v *VaultTransit) Unwrap(ctx context.Context, edek string) ([]byte, error) {
	secret, err := v.client.Logical().WriteWithContext(ctx,
		fmt.Sprintf("%s/decrypt/%s", v.basePath, v.key),
		map[string]interface{}{"ciphertext": edek},
	)
	if err != nil {
		return nil, fmt.Errorf("storage: transit decrypt: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("storage: transit decrypt: empty response")
	}
	encoded, ok := secret.Data["plaintext"].(string)
	if !ok {
		return nil, fmt.Errorf("storage: transit decrypt: missing plaintext")
	}
	return base64.StdEncoding.DecodeString(encoded)
}

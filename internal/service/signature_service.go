package service

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"

	"order-intake-gateway/internal/core/domain"
	"order-intake-gateway/internal/core/ports"
	"order-intake-gateway/internal/platform"

	"github.com/google/uuid"
	"golang.org/x/crypto/hkdf"
)

const webhookSecretInfo = "order-intake-gateway/webhook-secret/v1"

// WebhookSecretResolver implements ports.SecretResolver.
// OAuth platforms sign with the app client secret. Manually linked
// connections sign with a secret derived from the master key and the
// connection id, so it never has to be stored.
type WebhookSecretResolver struct {
	appSecrets map[domain.PlatformType]string
	masterKey  []byte
}

// NewWebhookSecretResolver creates a resolver. masterKeyHex must decode to at least 32 bytes.
func NewWebhookSecretResolver(appSecrets map[domain.PlatformType]string, masterKeyHex string) (*WebhookSecretResolver, error) {
	key, err := hex.DecodeString(masterKeyHex)
	if err != nil {
		return nil, fmt.Errorf("decoding webhook master key: %w", err)
	}
	if len(key) < 32 {
		return nil, fmt.Errorf("webhook master key must be at least 32 bytes, got %d", len(key))
	}
	return &WebhookSecretResolver{appSecrets: appSecrets, masterKey: key}, nil
}

// WebhookSecret returns the secret conn's notifications are signed with.
func (r *WebhookSecretResolver) WebhookSecret(conn *domain.Connection) (string, error) {
	if conn.Method == domain.ConnectionMethodManual {
		return DeriveWebhookSecret(r.masterKey, conn.ID)
	}
	secret := r.appSecrets[conn.Platform]
	if secret == "" {
		return "", fmt.Errorf("no app secret configured for %s", conn.Platform)
	}
	return secret, nil
}

// DeriveWebhookSecret computes HKDF-SHA256(masterKey, info=connection id) as hex.
func DeriveWebhookSecret(masterKey []byte, connectionID uuid.UUID) (string, error) {
	r := hkdf.New(sha256.New, masterKey, nil, []byte(webhookSecretInfo+":"+connectionID.String()))
	out := make([]byte, 32)
	if _, err := io.ReadFull(r, out); err != nil {
		return "", fmt.Errorf("deriving webhook secret: %w", err)
	}
	return hex.EncodeToString(out), nil
}

// SignatureVerifier dispatches signature checks to the platform strategy.
type SignatureVerifier struct {
	registry *platform.Registry
	secrets  ports.SecretResolver
}

// NewSignatureVerifier creates a verifier over the given platforms.
func NewSignatureVerifier(registry *platform.Registry, secrets ports.SecretResolver) *SignatureVerifier {
	return &SignatureVerifier{registry: registry, secrets: secrets}
}

// Verify checks body against conn's webhook secret. The error is only for a
// secret that cannot be resolved; a bad signature is reported in the result.
func (v *SignatureVerifier) Verify(conn *domain.Connection, body []byte, headers map[string]string) (platform.Verification, error) {
	p, ok := v.registry.Get(conn.Platform)
	if !ok {
		return platform.Verification{}, fmt.Errorf("unsupported platform %q", conn.Platform)
	}
	secret, err := v.secrets.WebhookSecret(conn)
	if err != nil {
		return platform.Verification{}, err
	}
	return p.Verify(body, headers, secret), nil
}

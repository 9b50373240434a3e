package service

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"strings"
	"testing"

	"order-intake-gateway/internal/core/domain"
	"order-intake-gateway/internal/platform"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testMasterKey = strings.Repeat("ab", 32)

func newTestResolver(t *testing.T) *WebhookSecretResolver {
	t.Helper()
	r, err := NewWebhookSecretResolver(map[domain.PlatformType]string{
		domain.PlatformShopify: "shopify-app-secret",
		domain.PlatformYouCan:  "youcan-app-secret",
	}, testMasterKey)
	require.NoError(t, err)
	return r
}

func hmacBase64(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func TestNewWebhookSecretResolver_InvalidKey(t *testing.T) {
	_, err := NewWebhookSecretResolver(nil, "zz")
	assert.Error(t, err)

	_, err = NewWebhookSecretResolver(nil, "abcd")
	assert.Error(t, err)
}

func TestWebhookSecretResolver_OAuthUsesAppSecret(t *testing.T) {
	r := newTestResolver(t)

	secret, err := r.WebhookSecret(&domain.Connection{Platform: domain.PlatformShopify, Method: domain.ConnectionMethodOAuth})
	require.NoError(t, err)
	assert.Equal(t, "shopify-app-secret", secret)

	_, err = r.WebhookSecret(&domain.Connection{Platform: domain.PlatformWooCommerce, Method: domain.ConnectionMethodOAuth})
	assert.Error(t, err)
}

func TestWebhookSecretResolver_ManualIsDerivedPerConnection(t *testing.T) {
	r := newTestResolver(t)
	a := &domain.Connection{ID: uuid.New(), Platform: domain.PlatformWooCommerce, Method: domain.ConnectionMethodManual}
	b := &domain.Connection{ID: uuid.New(), Platform: domain.PlatformWooCommerce, Method: domain.ConnectionMethodManual}

	sa1, err := r.WebhookSecret(a)
	require.NoError(t, err)
	sa2, err := r.WebhookSecret(a)
	require.NoError(t, err)
	sb, err := r.WebhookSecret(b)
	require.NoError(t, err)

	assert.Equal(t, sa1, sa2, "derivation must be deterministic")
	assert.NotEqual(t, sa1, sb)
	assert.Regexp(t, `^[0-9a-f]{64}$`, sa1)
}

func TestDeriveWebhookSecret_DependsOnMasterKey(t *testing.T) {
	id := uuid.New()
	k1, _ := hex.DecodeString(testMasterKey)
	k2, _ := hex.DecodeString(strings.Repeat("cd", 32))

	s1, err := DeriveWebhookSecret(k1, id)
	require.NoError(t, err)
	s2, err := DeriveWebhookSecret(k2, id)
	require.NoError(t, err)
	assert.NotEqual(t, s1, s2)
}

func TestSignatureVerifier_Verify(t *testing.T) {
	r := newTestResolver(t)
	v := NewSignatureVerifier(platform.Default(), r)
	body := []byte(`{"id":1}`)

	shop := &domain.Connection{ID: uuid.New(), Platform: domain.PlatformShopify, Method: domain.ConnectionMethodOAuth}
	res, err := v.Verify(shop, body, map[string]string{
		platform.ShopifySignatureHeader: hmacBase64("shopify-app-secret", body),
	})
	require.NoError(t, err)
	assert.True(t, res.Valid)

	woo := &domain.Connection{ID: uuid.New(), Platform: domain.PlatformWooCommerce, Method: domain.ConnectionMethodManual}
	secret, err := r.WebhookSecret(woo)
	require.NoError(t, err)
	res, err = v.Verify(woo, body, map[string]string{
		platform.WooCommerceSignatureHeader: hmacBase64(secret, body),
	})
	require.NoError(t, err)
	assert.True(t, res.Valid)

	// another connection's secret does not verify
	other := &domain.Connection{ID: uuid.New(), Platform: domain.PlatformWooCommerce, Method: domain.ConnectionMethodManual}
	res, err = v.Verify(other, body, map[string]string{
		platform.WooCommerceSignatureHeader: hmacBase64(secret, body),
	})
	require.NoError(t, err)
	assert.False(t, res.Valid)
}

func TestSignatureVerifier_UnknownPlatform(t *testing.T) {
	v := NewSignatureVerifier(platform.NewRegistry(platform.Shopify{}), newTestResolver(t))

	_, err := v.Verify(&domain.Connection{Platform: domain.PlatformYouCan}, nil, nil)
	assert.Error(t, err)
}

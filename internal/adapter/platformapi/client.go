package platformapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"order-intake-gateway/config"
	"order-intake-gateway/internal/core/domain"
	"order-intake-gateway/internal/core/ports"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
)

const maxResponseBytes = 1 << 20

// ErrPlatformNotConfigured is returned for platforms without app credentials.
var ErrPlatformNotConfigured = errors.New("platform not configured")

// Token endpoint error codes that mean the grant or the app credentials are
// no longer accepted. Platforms report these with a 400.
var unauthorizedGrantErrors = map[string]bool{
	"invalid_grant":       true,
	"invalid_client":      true,
	"unauthorized_client": true,
}

// Client implements ports.PlatformClient. OAuth flows go through
// golang.org/x/oauth2; catalog reads are plain REST calls. Configured URLs
// may contain {shop}.
type Client struct {
	platforms  map[domain.PlatformType]config.PlatformConfig
	httpClient *http.Client
	log        zerolog.Logger
}

// NewClient creates a platform API client. A nil httpClient uses a 10s timeout client.
func NewClient(platforms map[string]config.PlatformConfig, httpClient *http.Client, log zerolog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	ps := make(map[domain.PlatformType]config.PlatformConfig, len(platforms))
	for name, cfg := range platforms {
		ps[domain.PlatformType(strings.ToLower(name))] = cfg
	}
	return &Client{
		platforms:  ps,
		httpClient: httpClient,
		log:        log.With().Str("component", "platformapi").Logger(),
	}
}

func (c *Client) config(p domain.PlatformType) (config.PlatformConfig, error) {
	cfg, ok := c.platforms[p]
	if !ok || cfg.ClientID == "" {
		return config.PlatformConfig{}, fmt.Errorf("%s: %w", p, ErrPlatformNotConfigured)
	}
	return cfg, nil
}

func expand(raw, shop string) string {
	return strings.ReplaceAll(raw, "{shop}", url.PathEscape(shop))
}

// oauthConfig builds the per-shop OAuth2 config. Credentials travel in the
// form body, which every supported platform accepts.
func (c *Client) oauthConfig(platform domain.PlatformType, shop string) (*oauth2.Config, config.PlatformConfig, error) {
	cfg, err := c.config(platform)
	if err != nil {
		return nil, cfg, err
	}
	return &oauth2.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		RedirectURL:  cfg.RedirectURL,
		Scopes:       cfg.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   expand(cfg.AuthorizeURL, shop),
			TokenURL:  expand(cfg.TokenURL, shop),
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}, cfg, nil
}

// AuthorizeURL builds the platform consent URL carrying the signed state.
func (c *Client) AuthorizeURL(platform domain.PlatformType, state, shop string) (string, error) {
	oc, cfg, err := c.oauthConfig(platform, shop)
	if err != nil {
		return "", err
	}
	if _, err := url.Parse(oc.Endpoint.AuthURL); err != nil {
		return "", fmt.Errorf("parse authorize url: %w", err)
	}

	opts := make([]oauth2.AuthCodeOption, 0, len(cfg.AuthParams))
	for k, v := range cfg.AuthParams {
		opts = append(opts, oauth2.SetAuthURLParam(k, v))
	}
	return oc.AuthCodeURL(state, opts...), nil
}

// ExchangeCode trades an authorization code for tokens.
func (c *Client) ExchangeCode(ctx context.Context, platform domain.PlatformType, code, shop string) (*ports.TokenSet, error) {
	oc, _, err := c.oauthConfig(platform, shop)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	tok, err := oc.Exchange(c.withHTTPClient(ctx), code)
	c.logTokenCall(platform, "authorization_code", start, err)
	if err != nil {
		return nil, tokenError(platform, err)
	}

	ts := tokenSet(tok)
	ts.StoreIdentifier = shop
	return ts, nil
}

// Refresh obtains a new access token. ErrPlatformUnauthorized means the
// refresh token itself was rejected.
func (c *Client) Refresh(ctx context.Context, platform domain.PlatformType, storeIdentifier, refreshToken string) (*ports.TokenSet, error) {
	oc, _, err := c.oauthConfig(platform, storeIdentifier)
	if err != nil {
		return nil, err
	}

	// A token without an access token is never valid, so Token always refreshes.
	start := time.Now()
	tok, err := oc.TokenSource(c.withHTTPClient(ctx), &oauth2.Token{RefreshToken: refreshToken}).Token()
	c.logTokenCall(platform, "refresh_token", start, err)
	if err != nil {
		return nil, tokenError(platform, err)
	}

	ts := tokenSet(tok)
	if ts.RefreshToken == "" {
		ts.RefreshToken = refreshToken
	}
	ts.StoreIdentifier = storeIdentifier
	return ts, nil
}

func (c *Client) withHTTPClient(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, c.httpClient)
}

func (c *Client) logTokenCall(platform domain.PlatformType, grant string, start time.Time, err error) {
	ev := c.log.Debug().
		Str("platform", string(platform)).
		Str("grant_type", grant).
		Dur("latency", time.Since(start))
	var re *oauth2.RetrieveError
	if errors.As(err, &re) && re.Response != nil {
		ev = ev.Int("status", re.Response.StatusCode).Str("error_code", re.ErrorCode)
	}
	ev.Msg("platform token call")
}

func tokenSet(tok *oauth2.Token) *ports.TokenSet {
	ts := &ports.TokenSet{AccessToken: tok.AccessToken, RefreshToken: tok.RefreshToken}
	if !tok.Expiry.IsZero() {
		exp := tok.Expiry.UTC()
		ts.ExpiresAt = &exp
	}
	return ts
}

// tokenError classifies a token endpoint failure. Rejected grants and
// credentials become ErrPlatformUnauthorized; everything else stays transient.
func tokenError(platform domain.PlatformType, err error) error {
	var re *oauth2.RetrieveError
	if !errors.As(err, &re) {
		return fmt.Errorf("%s token: %w", platform, err)
	}
	if unauthorizedGrantErrors[re.ErrorCode] {
		return fmt.Errorf("%s token: %s: %w", platform, re.ErrorCode, ports.ErrPlatformUnauthorized)
	}
	status := 0
	if re.Response != nil {
		status = re.Response.StatusCode
	}
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return fmt.Errorf("%s token: %w", platform, ports.ErrPlatformUnauthorized)
	}
	snippet := re.Body
	if len(snippet) > 512 {
		snippet = snippet[:512]
	}
	return fmt.Errorf("%s token: unexpected status %d: %s", platform, status, strings.TrimSpace(string(snippet)))
}

// productResponse accepts both a bare product and one wrapped in "product",
// with the name under "name" or "title".
type productResponse struct {
	Product *productBody `json:"product"`
	productBody
}

type productBody struct {
	ID       json.RawMessage `json:"id"`
	Name     string          `json:"name"`
	Title    string          `json:"title"`
	SKU      string          `json:"sku"`
	Variants []struct {
		SKU string `json:"sku"`
	} `json:"variants"`
}

func (b productBody) toCatalog(fallbackID string) *ports.CatalogProduct {
	p := &ports.CatalogProduct{
		ID:   strings.Trim(string(b.ID), `"`),
		Name: b.Name,
		SKU:  b.SKU,
	}
	if p.ID == "" || p.ID == "null" {
		p.ID = fallbackID
	}
	if p.Name == "" {
		p.Name = b.Title
	}
	if p.SKU == "" && len(b.Variants) > 0 {
		p.SKU = b.Variants[0].SKU
	}
	return p
}

// FetchProduct reads one product from the store's catalog.
func (c *Client) FetchProduct(ctx context.Context, platform domain.PlatformType, storeIdentifier, accessToken, productID string) (*ports.CatalogProduct, error) {
	cfg, err := c.config(platform)
	if err != nil {
		return nil, err
	}
	endpoint := strings.TrimRight(expand(cfg.APIBaseURL, storeIdentifier), "/") + "/products/" + url.PathEscape(productID)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create product request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	var body productResponse
	if err := c.do(req, &body, ports.ErrProductNotFound); err != nil {
		return nil, err
	}
	if body.Product != nil {
		return body.Product.toCatalog(productID), nil
	}
	return body.productBody.toCatalog(productID), nil
}

// do sends req and decodes a 2xx JSON body into out. A 404 maps to notFound when set.
func (c *Client) do(req *http.Request, out any, notFound error) error {
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	defer resp.Body.Close()

	c.log.Debug().
		Str("method", req.Method).
		Str("host", req.URL.Host).
		Str("path", req.URL.Path).
		Int("status", resp.StatusCode).
		Dur("latency", time.Since(start)).
		Msg("platform api call")

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return ports.ErrPlatformUnauthorized
	case resp.StatusCode == http.StatusNotFound && notFound != nil:
		return notFound
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s %s: unexpected status %d: %s", req.Method, req.URL.Path, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", req.URL.Path, err)
	}
	return nil
}

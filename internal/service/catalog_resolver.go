package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"order-intake-gateway/internal/core/domain"
	"order-intake-gateway/internal/core/ports"
	"order-intake-gateway/pkg/apperror"

	"github.com/rs/zerolog"
)

// CatalogResult tells the pipeline what the lookup did.
type CatalogResult struct {
	Lookups   int
	Refreshed bool
}

// CatalogResolver completes line items that arrive with only a product id.
// The access token is refreshed lazily: once before the first call when it
// has expired, or once after the platform rejects it.
type CatalogResolver struct {
	client ports.PlatformClient
	conns  ports.ConnectionRepository
	enc    ports.EncryptionService
	log    zerolog.Logger
	now    func() time.Time
}

// NewCatalogResolver creates a catalog resolver.
func NewCatalogResolver(client ports.PlatformClient, conns ports.ConnectionRepository, enc ports.EncryptionService, log zerolog.Logger) *CatalogResolver {
	return &CatalogResolver{
		client: client,
		conns:  conns,
		enc:    enc,
		log:    log,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Resolve fills ProductName and SKU on items missing both. Errors are
// *apperror.AppError: VAL_003 product missing, CFG_002 token unusable,
// SYS_004 platform unreachable.
func (r *CatalogResolver) Resolve(ctx context.Context, conn *domain.Connection, c *domain.CandidateOrder) (*CatalogResult, error) {
	res := &CatalogResult{}

	token, err := r.enc.Decrypt(conn.AccessTokenEnc)
	if err != nil {
		return res, apperror.ErrEncryptionFailure(err)
	}
	if token == "" || conn.TokenExpired(r.now()) {
		if token, err = r.refresh(ctx, conn); err != nil {
			return res, err
		}
		res.Refreshed = true
	}

	for i := range c.Items {
		it := &c.Items[i]
		if it.ProductName != "" || it.SKU != "" {
			continue
		}

		product, err := r.client.FetchProduct(ctx, conn.Platform, conn.StoreIdentifier, token, it.ProductID)
		res.Lookups++
		if errors.Is(err, ports.ErrPlatformUnauthorized) && !res.Refreshed {
			if token, err = r.refresh(ctx, conn); err != nil {
				return res, err
			}
			res.Refreshed = true
			product, err = r.client.FetchProduct(ctx, conn.Platform, conn.StoreIdentifier, token, it.ProductID)
			res.Lookups++
		}

		switch {
		case errors.Is(err, ports.ErrProductNotFound):
			return res, apperror.ErrProductNotFound(fmt.Errorf("product %s: %w", it.ProductID, err))
		case errors.Is(err, ports.ErrPlatformUnauthorized):
			return res, r.markUnusable(ctx, conn, err)
		case err != nil:
			return res, apperror.ErrPlatformUnavailable(err)
		}

		it.ProductName = product.Name
		it.SKU = product.SKU
	}
	return res, nil
}

// refresh exchanges the refresh token and persists the new pair.
func (r *CatalogResolver) refresh(ctx context.Context, conn *domain.Connection) (string, error) {
	refreshToken, err := r.enc.Decrypt(conn.RefreshTokenEnc)
	if err != nil {
		return "", apperror.ErrEncryptionFailure(err)
	}
	if refreshToken == "" {
		return "", r.markUnusable(ctx, conn, errors.New("no refresh token stored"))
	}

	ts, err := r.client.Refresh(ctx, conn.Platform, conn.StoreIdentifier, refreshToken)
	if errors.Is(err, ports.ErrPlatformUnauthorized) {
		return "", r.markUnusable(ctx, conn, err)
	}
	if err != nil {
		return "", apperror.ErrPlatformUnavailable(fmt.Errorf("refreshing token: %w", err))
	}

	if ts.RefreshToken == "" {
		ts.RefreshToken = refreshToken
	}
	accessEnc, err := r.enc.Encrypt(ts.AccessToken)
	if err != nil {
		return "", apperror.ErrEncryptionFailure(err)
	}
	refreshEnc, err := r.enc.Encrypt(ts.RefreshToken)
	if err != nil {
		return "", apperror.ErrEncryptionFailure(err)
	}
	if err := r.conns.UpdateTokens(ctx, conn.ID, accessEnc, refreshEnc, ts.ExpiresAt); err != nil {
		return "", apperror.ErrDatabaseError(err)
	}

	conn.AccessTokenEnc, conn.RefreshTokenEnc, conn.TokenExpiresAt = accessEnc, refreshEnc, ts.ExpiresAt
	r.log.Info().Str("connection_id", conn.ID.String()).Msg("platform token refreshed")
	return ts.AccessToken, nil
}

// markUnusable flips the connection to error; the tenant must reconnect.
func (r *CatalogResolver) markUnusable(ctx context.Context, conn *domain.Connection, cause error) error {
	msg := "token refresh failed: " + cause.Error()
	uctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), followUpTimeout)
	defer cancel()
	if err := r.conns.UpdateStatus(uctx, conn.ID, domain.ConnectionStatusError, &msg); err != nil {
		r.log.Warn().Err(err).Str("connection_id", conn.ID.String()).Msg("failed to mark connection as error")
	}
	conn.Status = domain.ConnectionStatusError
	conn.LastError = &msg
	return apperror.ErrTokenRefreshFailed(cause)
}

package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"order-intake-gateway/internal/core/domain"
	"order-intake-gateway/internal/core/ports"
	"order-intake-gateway/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const oauthNonceScope = "oauth-state"

// ConnectionOptions configures connection management.
type ConnectionOptions struct {
	PublicBaseURL string
	StateTTL      time.Duration
}

// ConnectionService implements ports.ConnectionService.
type ConnectionService struct {
	conns   ports.ConnectionRepository
	client  ports.PlatformClient
	signer  ports.StateSigner
	nonces  ports.NonceStore
	enc     ports.EncryptionService
	secrets ports.SecretResolver
	opts    ConnectionOptions
	log     zerolog.Logger
	now     func() time.Time
}

// NewConnectionService creates a new connection service.
func NewConnectionService(
	conns ports.ConnectionRepository,
	client ports.PlatformClient,
	signer ports.StateSigner,
	nonces ports.NonceStore,
	enc ports.EncryptionService,
	secrets ports.SecretResolver,
	opts ConnectionOptions,
	log zerolog.Logger,
) *ConnectionService {
	return &ConnectionService{
		conns:   conns,
		client:  client,
		signer:  signer,
		nonces:  nonces,
		enc:     enc,
		secrets: secrets,
		opts:    opts,
		log:     log,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// List returns every connection of the tenant.
func (s *ConnectionService) List(ctx context.Context, tenantID uuid.UUID) ([]domain.Connection, error) {
	conns, err := s.conns.ListByTenant(ctx, tenantID)
	if err != nil {
		return nil, apperror.ErrDatabaseError(err)
	}
	return conns, nil
}

// WebhookURL is the endpoint a platform must push notifications for conn to.
func (s *ConnectionService) WebhookURL(conn *domain.Connection) string {
	return fmt.Sprintf("%s/webhooks/%s/%s", strings.TrimRight(s.opts.PublicBaseURL, "/"), conn.Platform, conn.WebhookKey)
}

// Authorize records a pending connection and returns the platform consent URL.
// Re-authorizing a connected integration keeps it connected until the
// callback replaces its tokens.
func (s *ConnectionService) Authorize(ctx context.Context, req ports.AuthorizeRequest) (string, error) {
	if !req.Platform.IsValid() {
		return "", apperror.ErrUnsupportedPlatform(string(req.Platform))
	}
	if req.Platform.DefaultMethod() != domain.ConnectionMethodOAuth {
		return "", apperror.ErrMethodNotSupported(string(req.Platform), string(domain.ConnectionMethodOAuth))
	}

	conn, err := s.prepare(ctx, req.TenantID, req.LocationID, req.Platform, domain.ConnectionMethodOAuth)
	if err != nil {
		return "", err
	}
	if conn.Status != domain.ConnectionStatusConnected {
		conn.Status = domain.ConnectionStatusPending
	}
	if req.Shop != "" {
		conn.StoreIdentifier = req.Shop
	}
	if err := s.conns.Upsert(ctx, conn); err != nil {
		return "", apperror.ErrDatabaseError(err)
	}

	state, err := s.signer.Sign(ports.OAuthState{
		TenantID:     req.TenantID,
		LocationID:   req.LocationID,
		ConnectionID: conn.ID,
		Platform:     req.Platform,
		Nonce:        uuid.NewString(),
		ExpiresAt:    s.now().Add(s.opts.StateTTL),
	})
	if err != nil {
		return "", apperror.InternalError(fmt.Errorf("signing oauth state: %w", err))
	}

	url, err := s.client.AuthorizeURL(req.Platform, state, req.Shop)
	if err != nil {
		var appErr *apperror.AppError
		if errors.As(err, &appErr) {
			return "", appErr
		}
		return "", apperror.ErrPlatformNotConfigured(string(req.Platform))
	}

	s.log.Info().
		Str("tenant_id", req.TenantID.String()).
		Str("connection_id", conn.ID.String()).
		Str("platform", string(req.Platform)).
		Msg("oauth authorization started")
	return url, nil
}

// CompleteOAuth handles the platform redirect: the state must verify, be
// unexpired and unused before the code is exchanged.
func (s *ConnectionService) CompleteOAuth(ctx context.Context, req ports.CallbackRequest) (*domain.Connection, error) {
	st, err := s.signer.Parse(req.State)
	if err != nil || st.Platform != req.Platform {
		return nil, apperror.ErrInvalidState()
	}

	fresh, err := s.nonces.Consume(ctx, oauthNonceScope, st.Nonce, s.opts.StateTTL)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("checking oauth nonce: %w", err))
	}
	if !fresh {
		return nil, apperror.ErrStateReplayed()
	}

	conn, err := s.conns.GetByID(ctx, st.ConnectionID)
	if err != nil {
		return nil, apperror.ErrDatabaseError(err)
	}
	if conn == nil || conn.TenantID != st.TenantID || conn.LocationID != st.LocationID {
		return nil, apperror.ErrInvalidState()
	}

	shop := req.Shop
	if shop == "" {
		shop = conn.StoreIdentifier
	}
	ts, err := s.client.ExchangeCode(ctx, req.Platform, req.Code, shop)
	if err != nil {
		msg := "oauth code exchange failed: " + err.Error()
		if uerr := s.conns.UpdateStatus(ctx, conn.ID, domain.ConnectionStatusError, &msg); uerr != nil {
			s.log.Error().Err(uerr).Str("connection_id", conn.ID.String()).Msg("failed to flag connection")
		}
		return nil, apperror.ErrPlatformUnavailable(err)
	}

	accessEnc, err := s.enc.Encrypt(ts.AccessToken)
	if err != nil {
		return nil, apperror.ErrEncryptionFailure(err)
	}
	refreshEnc, err := s.enc.Encrypt(ts.RefreshToken)
	if err != nil {
		return nil, apperror.ErrEncryptionFailure(err)
	}

	conn.Status = domain.ConnectionStatusConnected
	conn.AccessTokenEnc = accessEnc
	conn.RefreshTokenEnc = refreshEnc
	conn.TokenExpiresAt = ts.ExpiresAt
	conn.StoreIdentifier = firstNonBlank(ts.StoreIdentifier, shop)
	conn.ConsecutiveErrs = 0
	conn.LastError = nil
	conn.UpdatedAt = s.now()
	if err := s.conns.Upsert(ctx, conn); err != nil {
		return nil, apperror.ErrDatabaseError(err)
	}

	s.log.Info().
		Str("tenant_id", conn.TenantID.String()).
		Str("connection_id", conn.ID.String()).
		Str("platform", string(conn.Platform)).
		Msg("integration connected")
	return conn, nil
}

// Link connects a manual-method platform and returns its webhook secret.
func (s *ConnectionService) Link(ctx context.Context, req ports.LinkRequest) (*ports.LinkResult, error) {
	if !req.Platform.IsValid() {
		return nil, apperror.ErrUnsupportedPlatform(string(req.Platform))
	}
	if req.Platform.DefaultMethod() != domain.ConnectionMethodManual {
		return nil, apperror.ErrMethodNotSupported(string(req.Platform), string(domain.ConnectionMethodManual))
	}

	conn, err := s.prepare(ctx, req.TenantID, req.LocationID, req.Platform, domain.ConnectionMethodManual)
	if err != nil {
		return nil, err
	}
	conn.Status = domain.ConnectionStatusConnected
	conn.StoreIdentifier = req.StoreIdentifier
	conn.ConsecutiveErrs = 0
	conn.LastError = nil
	if err := s.conns.Upsert(ctx, conn); err != nil {
		return nil, apperror.ErrDatabaseError(err)
	}

	secret, err := s.secrets.WebhookSecret(conn)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("deriving webhook secret: %w", err))
	}

	s.log.Info().
		Str("tenant_id", conn.TenantID.String()).
		Str("connection_id", conn.ID.String()).
		Str("platform", string(conn.Platform)).
		Msg("integration linked")
	return &ports.LinkResult{
		Connection:    conn,
		WebhookURL:    s.WebhookURL(conn),
		WebhookSecret: secret,
	}, nil
}

// Disconnect clears stored credentials. The row is kept.
func (s *ConnectionService) Disconnect(ctx context.Context, tenantID, connectionID uuid.UUID) error {
	conn, err := s.conns.GetByID(ctx, connectionID)
	if err != nil {
		return apperror.ErrDatabaseError(err)
	}
	if conn == nil || conn.TenantID != tenantID {
		return apperror.ErrNotFound("Connection")
	}

	if err := s.conns.UpdateTokens(ctx, conn.ID, "", "", nil); err != nil {
		return apperror.ErrDatabaseError(err)
	}
	if err := s.conns.UpdateStatus(ctx, conn.ID, domain.ConnectionStatusDisconnected, nil); err != nil {
		return apperror.ErrDatabaseError(err)
	}

	s.log.Info().
		Str("tenant_id", tenantID.String()).
		Str("connection_id", conn.ID.String()).
		Msg("integration disconnected")
	return nil
}

// prepare loads the connection of a triple or builds a new one.
func (s *ConnectionService) prepare(ctx context.Context, tenantID, locationID uuid.UUID, p domain.PlatformType, method domain.ConnectionMethod) (*domain.Connection, error) {
	conn, err := s.conns.GetByTriple(ctx, tenantID, locationID, p)
	if err != nil {
		return nil, apperror.ErrDatabaseError(err)
	}
	now := s.now()
	if conn == nil {
		conn = &domain.Connection{
			ID:         uuid.New(),
			TenantID:   tenantID,
			LocationID: locationID,
			Platform:   p,
			WebhookKey: newWebhookKey(),
			CreatedAt:  now,
		}
	}
	conn.Method = method
	conn.UpdatedAt = now
	return conn, nil
}

// newWebhookKey returns the opaque discriminator used in webhook URLs.
func newWebhookKey() string {
	return "wh_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

func firstNonBlank(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

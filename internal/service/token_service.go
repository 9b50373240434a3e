package service

import (
	"fmt"
	"time"

	"order-intake-gateway/internal/core/domain"
	"order-intake-gateway/internal/core/ports"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// JWTTokenService implements ports.TokenService using HS256 JWT.
// Tenant tokens carry the tenant id in the subject claim.
type JWTTokenService struct {
	secret []byte
	expiry time.Duration
	issuer string
}

// NewJWTTokenService creates a new JWT token service.
func NewJWTTokenService(secret string, expiry time.Duration, issuer string) *JWTTokenService {
	return &JWTTokenService{
		secret: []byte(secret),
		expiry: expiry,
		issuer: issuer,
	}
}

// Generate creates a signed tenant API token.
func (s *JWTTokenService) Generate(tenantID uuid.UUID) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(s.expiry)

	claims := jwt.RegisteredClaims{
		Subject:   tenantID.String(),
		Issuer:    s.issuer,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}

	tokenString, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing token: %w", err)
	}

	return tokenString, expiresAt, nil
}

// Validate parses and validates a tenant token, returning the claims.
func (s *JWTTokenService) Validate(tokenString string) (*ports.TokenClaims, error) {
	var claims jwt.RegisteredClaims
	_, err := jwt.ParseWithClaims(tokenString, &claims, s.keyFunc,
		jwt.WithIssuer(s.issuer),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		return nil, fmt.Errorf("parsing token: %w", err)
	}

	tenantID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("invalid tenant ID in token: %w", err)
	}

	return &ports.TokenClaims{TenantID: tenantID}, nil
}

func (s *JWTTokenService) keyFunc(token *jwt.Token) (interface{}, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
	}
	return s.secret, nil
}

// stateClaims is the signed OAuth state payload.
type stateClaims struct {
	LocationID   string `json:"loc"`
	ConnectionID string `json:"cid"`
	Platform     string `json:"plt"`
	jwt.RegisteredClaims
}

// JWTStateSigner implements ports.StateSigner. The nonce travels as the jti
// claim so the callback can enforce single use.
type JWTStateSigner struct {
	secret []byte
	issuer string
}

// NewJWTStateSigner creates a state signer.
func NewJWTStateSigner(secret string, issuer string) *JWTStateSigner {
	return &JWTStateSigner{secret: []byte(secret), issuer: issuer}
}

// Sign encodes state as a compact HS256 JWT.
func (s *JWTStateSigner) Sign(state ports.OAuthState) (string, error) {
	claims := stateClaims{
		LocationID:   state.LocationID.String(),
		ConnectionID: state.ConnectionID.String(),
		Platform:     string(state.Platform),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   state.TenantID.String(),
			Issuer:    s.issuer,
			ID:        state.Nonce,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(state.ExpiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("signing state: %w", err)
	}
	return signed, nil
}

// Parse verifies signature and expiry and returns the decoded state.
func (s *JWTStateSigner) Parse(signed string) (*ports.OAuthState, error) {
	var claims stateClaims
	_, err := jwt.ParseWithClaims(signed, &claims, func(token *jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithIssuer(s.issuer),
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("parsing state: %w", err)
	}
	if claims.ID == "" {
		return nil, fmt.Errorf("state has no nonce")
	}

	tenantID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("invalid tenant in state: %w", err)
	}
	locationID, err := uuid.Parse(claims.LocationID)
	if err != nil {
		return nil, fmt.Errorf("invalid location in state: %w", err)
	}
	connectionID, err := uuid.Parse(claims.ConnectionID)
	if err != nil {
		return nil, fmt.Errorf("invalid connection in state: %w", err)
	}
	p := domain.PlatformType(claims.Platform)
	if !p.IsValid() {
		return nil, fmt.Errorf("invalid platform in state: %q", claims.Platform)
	}

	return &ports.OAuthState{
		TenantID:     tenantID,
		LocationID:   locationID,
		ConnectionID: connectionID,
		Platform:     p,
		Nonce:        claims.ID,
		ExpiresAt:    claims.ExpiresAt.Time,
	}, nil
}

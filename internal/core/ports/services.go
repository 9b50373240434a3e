package ports

import (
	"context"
	"errors"
	"time"

	"order-intake-gateway/internal/core/domain"

	"github.com/google/uuid"
)

// EncryptionService handles AES-256-GCM encryption/decryption of stored tokens.
type EncryptionService interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// TokenService validates tenant API bearer tokens.
type TokenService interface {
	Generate(tenantID uuid.UUID) (string, time.Time, error)
	Validate(tokenString string) (*TokenClaims, error)
}

// TokenClaims holds the parsed tenant token claims.
type TokenClaims struct {
	TenantID uuid.UUID
}

// OAuthState is the payload carried through a platform's OAuth redirect.
type OAuthState struct {
	TenantID     uuid.UUID
	LocationID   uuid.UUID
	ConnectionID uuid.UUID
	Platform     domain.PlatformType
	Nonce        string
	ExpiresAt    time.Time
}

// StateSigner signs and resolves OAuth state values.
type StateSigner interface {
	Sign(state OAuthState) (string, error)
	Parse(signed string) (*OAuthState, error)
}

// NonceStore marks OAuth state nonces as used.
type NonceStore interface {
	// Consume returns true on first use of nonce within scope and false on
	// any later use until ttl has passed.
	Consume(ctx context.Context, scope string, nonce string, ttl time.Duration) (bool, error)
}

// IdempotencyCache is the Redis fast path for already admitted orders.
type IdempotencyCache interface {
	Get(ctx context.Context, key string) ([]byte, error) // nil when absent
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// EventPublisher announces admitted orders to downstream consumers.
type EventPublisher interface {
	PublishOrderAdmitted(ctx context.Context, order *domain.Order) error
}

// SecretResolver returns the secret a connection's webhooks are signed with.
type SecretResolver interface {
	WebhookSecret(conn *domain.Connection) (string, error)
}

// Platform API errors.
var (
	ErrPlatformUnauthorized = errors.New("platform rejected access token")
	ErrProductNotFound      = errors.New("product not found on platform")
)

// TokenSet is the result of an OAuth code exchange or refresh.
type TokenSet struct {
	AccessToken     string
	RefreshToken    string
	ExpiresAt       *time.Time
	StoreIdentifier string
}

// CatalogProduct is the product detail a platform API returns.
type CatalogProduct struct {
	ID   string
	Name string
	SKU  string
}

// PlatformClient talks to a platform's OAuth and catalog endpoints.
type PlatformClient interface {
	AuthorizeURL(platform domain.PlatformType, state, shop string) (string, error)
	ExchangeCode(ctx context.Context, platform domain.PlatformType, code, shop string) (*TokenSet, error)
	Refresh(ctx context.Context, platform domain.PlatformType, storeIdentifier, refreshToken string) (*TokenSet, error)
	FetchProduct(ctx context.Context, platform domain.PlatformType, storeIdentifier, accessToken, productID string) (*CatalogProduct, error)
}

// --- Service Ports (Business Logic) ---

// WebhookRequest is an inbound notification as received over HTTP.
type WebhookRequest struct {
	Platform      domain.PlatformType
	Discriminator string
	Headers       map[string]string
	Body          []byte
	ReceivedAt    time.Time
}

// WebhookResult is the response returned to the platform.
type WebhookResult struct {
	HTTPStatus int
	Status     string
	AttemptID  uuid.UUID
	Retryable  bool
}

// WebhookRejection classifies a notification refused before the pipeline
// could run: malformed discriminator, unreadable body, or rate limiting.
type WebhookRejection struct {
	Status     domain.AttemptStatus
	HTTPStatus int
	Retryable  bool
	Detail     string
}

// IngestService runs the webhook ingestion pipeline.
type IngestService interface {
	Ingest(ctx context.Context, req WebhookRequest) WebhookResult
	// Reject records a refused notification in the ledger and returns the
	// response for it.
	Reject(ctx context.Context, req WebhookRequest, rej WebhookRejection) WebhookResult
}

// DuplicateDecision is the Duplicate Evaluator's verdict.
type DuplicateDecision struct {
	IsDuplicate  bool
	MatchedRule  *domain.DedupRule
	MatchedOrder *domain.Order
	Skipped      []string // invalid rules skipped with a warning
	Scanned      int      // prior orders compared across all rules
}

// DuplicateEvaluator decides admit vs. reject-as-duplicate.
type DuplicateEvaluator interface {
	Evaluate(ctx context.Context, conn *domain.Connection, candidate *domain.CandidateOrder, now time.Time) (*DuplicateDecision, error)
}

// AdmissionReason explains why no order was created.
type AdmissionReason string

const (
	AdmissionDuplicateOfSelf AdmissionReason = "duplicate-of-self"
	AdmissionError           AdmissionReason = "error"
)

// AdmissionResult is the Admission Coordinator's outcome.
type AdmissionResult struct {
	Created bool
	Order   *domain.Order
	Reason  AdmissionReason
	Detail  string
}

// AdmissionCoordinator commits each external order at most once.
type AdmissionCoordinator interface {
	// Existing returns the already admitted order for the candidate, if any.
	Existing(ctx context.Context, candidate *domain.CandidateOrder, conn *domain.Connection) (*domain.Order, error)
	Admit(ctx context.Context, candidate *domain.CandidateOrder, conn *domain.Connection) (*AdmissionResult, error)
	RecordFailure(ctx context.Context, conn *domain.Connection, cause string)
}

// RuleService manages tenant dedup rules.
type RuleService interface {
	Get(ctx context.Context, tenantID uuid.UUID) (*domain.RuleSet, error)
	Replace(ctx context.Context, set *domain.RuleSet) (*domain.RuleSet, error)
}

// AuthorizeRequest starts an OAuth handshake for a location.
type AuthorizeRequest struct {
	TenantID   uuid.UUID
	LocationID uuid.UUID
	Platform   domain.PlatformType
	Shop       string
}

// LinkRequest links a manual-method platform.
type LinkRequest struct {
	TenantID        uuid.UUID
	LocationID      uuid.UUID
	Platform        domain.PlatformType
	StoreIdentifier string
}

// LinkResult is shown once to the tenant after a manual link.
type LinkResult struct {
	Connection    *domain.Connection
	WebhookURL    string
	WebhookSecret string
}

// CallbackRequest is the OAuth redirect back from a platform.
type CallbackRequest struct {
	Platform domain.PlatformType
	Code     string
	State    string
	Shop     string
}

// ConnectionService manages integration connections.
type ConnectionService interface {
	List(ctx context.Context, tenantID uuid.UUID) ([]domain.Connection, error)
	Authorize(ctx context.Context, req AuthorizeRequest) (string, error)
	CompleteOAuth(ctx context.Context, req CallbackRequest) (*domain.Connection, error)
	Link(ctx context.Context, req LinkRequest) (*LinkResult, error)
	Disconnect(ctx context.Context, tenantID, connectionID uuid.UUID) error
	WebhookURL(conn *domain.Connection) string
}

// AuditService records tenant configuration changes.
type AuditService interface {
	Log(ctx context.Context, entry *domain.AuditLog)
}

// PipelineMetrics records ingestion outcomes.
type PipelineMetrics interface {
	ObserveAttempt(platform domain.PlatformType, status domain.AttemptStatus, elapsed time.Duration)
	ObserveStep(step string, status domain.StepStatus, elapsed time.Duration)
}

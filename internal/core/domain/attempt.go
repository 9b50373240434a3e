package domain

import (
	"time"

	"github.com/google/uuid"
)

// AttemptStatus is the outcome classification of a webhook attempt.
type AttemptStatus string

const (
	AttemptStatusProcessing          AttemptStatus = "processing"
	AttemptStatusSuccess             AttemptStatus = "success"
	AttemptStatusFailed              AttemptStatus = "failed"
	AttemptStatusSignatureInvalid    AttemptStatus = "signature-invalid"
	AttemptStatusConnectionNotFound  AttemptStatus = "connection-not-found"
	AttemptStatusValidationFailed    AttemptStatus = "validation-failed"
	AttemptStatusProductNotFound     AttemptStatus = "product-not-found"
	AttemptStatusOrderCreationFailed AttemptStatus = "order-creation-failed"
	AttemptStatusRejectedDuplicate   AttemptStatus = "rejected-duplicate"
)

// IsTerminal returns true once the attempt has a final outcome.
func (s AttemptStatus) IsTerminal() bool {
	return s != AttemptStatusProcessing && s != ""
}

// StepStatus is the result of a single pipeline step.
type StepStatus string

const (
	StepStatusOK      StepStatus = "ok"
	StepStatusFailed  StepStatus = "failed"
	StepStatusSkipped StepStatus = "skipped"
)

// AttemptStep is one timed step of the ingestion pipeline.
type AttemptStep struct {
	Name       string     `json:"name"`
	Status     StepStatus `json:"status"`
	DurationMS int64      `json:"duration_ms"`
	Detail     string     `json:"detail,omitempty"`
	At         time.Time  `json:"at"`
}

// SignatureCheck records how the notification was authenticated.
type SignatureCheck struct {
	Method   string `json:"method"`
	Provided string `json:"provided,omitempty"`
	Valid    bool   `json:"valid"`
}

// AttemptResponse is the HTTP response returned to the platform.
type AttemptResponse struct {
	HTTPStatus int    `json:"http_status"`
	Body       string `json:"body"`
}

// Attempt is one ledger entry: a single inbound webhook and its outcome.
type Attempt struct {
	ID              uuid.UUID         `json:"id"`
	Platform        PlatformType      `json:"platform"`
	Discriminator   string            `json:"discriminator"`
	ConnectionID    *uuid.UUID        `json:"connection_id,omitempty"`
	TenantID        *uuid.UUID        `json:"tenant_id,omitempty"`
	Headers         map[string]string `json:"headers,omitempty"`
	Payload         string            `json:"payload,omitempty"`
	Status          AttemptStatus     `json:"status"`
	State           PipelineState     `json:"state"`
	OrderSummary    *OrderSummary     `json:"order_summary,omitempty"`
	Signature       *SignatureCheck   `json:"signature,omitempty"`
	Steps           []AttemptStep     `json:"steps"`
	MatchedRule     string            `json:"matched_rule,omitempty"`
	ResolvedOrderID *uuid.UUID        `json:"resolved_order_id,omitempty"`
	Detail          string            `json:"detail,omitempty"`
	ProcessingMS    int64             `json:"processing_ms"`
	Response        *AttemptResponse  `json:"response,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	CompletedAt     *time.Time        `json:"completed_at,omitempty"`
	ExpiresAt       time.Time         `json:"expires_at"`
}

// NewAttempt creates a ledger entry whose expiry is fixed at creation.
func NewAttempt(platform PlatformType, discriminator string, now time.Time, retention time.Duration) *Attempt {
	return &Attempt{
		ID:            uuid.New(),
		Platform:      platform,
		Discriminator: discriminator,
		Status:        AttemptStatusProcessing,
		State:         StateReceived,
		CreatedAt:     now,
		ExpiresAt:     now.Add(retention),
	}
}

// AttemptPatch carries fields learned mid-pipeline.
type AttemptPatch struct {
	ConnectionID *uuid.UUID
	TenantID     *uuid.UUID
	State        PipelineState
	Signature    *SignatureCheck
	OrderSummary *OrderSummary
}

// AttemptOutcome finalizes an attempt.
type AttemptOutcome struct {
	Status          AttemptStatus
	State           PipelineState
	Detail          string
	MatchedRule     string
	ResolvedOrderID *uuid.UUID
	Response        AttemptResponse
	CompletedAt     time.Time
	ProcessingMS    int64
}

// AttemptFilter selects ledger entries for the attempt history.
type AttemptFilter struct {
	TenantID     uuid.UUID
	ConnectionID *uuid.UUID
	Platform     *PlatformType
	Status       *AttemptStatus
	Limit        int
}

package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"order-intake-gateway/internal/core/domain"
	"order-intake-gateway/internal/core/ports"
	"order-intake-gateway/internal/platform"
	"order-intake-gateway/pkg/apperror"
	"order-intake-gateway/pkg/logger"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const ledgerWriteTimeout = 2 * time.Second

// Step names recorded in the attempt ledger.
const (
	StepResolveConnection = "resolve-connection"
	StepVerifySignature   = "verify-signature"
	StepNormalize         = "normalize"
	StepResolveCatalog    = "resolve-catalog"
	StepTokenRefresh      = "token-refresh"
	StepIdempotencyCheck  = "idempotency-check"
	StepEvaluateDuplicate = "evaluate-duplicate"
	StepAdmit             = "admit"
)

// Webhook response statuses that are not attempt statuses.
const (
	ResponseSuccess         = "success"
	ResponseDuplicateOfSelf = "duplicate-of-self"
)

// IngestOptions tunes the pipeline.
type IngestOptions struct {
	StageTimeout       time.Duration
	LedgerRetention    time.Duration
	LedgerPayloadLimit int
}

// IngestService implements ports.IngestService: one inbound notification,
// start to finish, with every branch ending in exactly one completed
// ledger entry.
type IngestService struct {
	registry  *platform.Registry
	conns     ports.ConnectionRepository
	verifier  *SignatureVerifier
	catalog   *CatalogResolver
	dedup     ports.DuplicateEvaluator
	admission ports.AdmissionCoordinator
	ledger    ports.AttemptLedger
	metrics   ports.PipelineMetrics
	opts      IngestOptions
	log       zerolog.Logger
	now       func() time.Time
}

// NewIngestService creates the ingestion pipeline. catalog and metrics may be nil.
func NewIngestService(
	registry *platform.Registry,
	conns ports.ConnectionRepository,
	verifier *SignatureVerifier,
	catalog *CatalogResolver,
	dedup ports.DuplicateEvaluator,
	admission ports.AdmissionCoordinator,
	ledger ports.AttemptLedger,
	metrics ports.PipelineMetrics,
	opts IngestOptions,
	log zerolog.Logger,
) *IngestService {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &IngestService{
		registry:  registry,
		conns:     conns,
		verifier:  verifier,
		catalog:   catalog,
		dedup:     dedup,
		admission: admission,
		ledger:    ledger,
		metrics:   metrics,
		opts:      opts,
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Ingest runs the pipeline. It never returns an error: every failure is
// classified into the result and the ledger.
func (s *IngestService) Ingest(ctx context.Context, req ports.WebhookRequest) ports.WebhookResult {
	return s.begin(ctx, req).execute(ctx, req)
}

// Reject records a notification refused before the pipeline ran. It gets a
// ledger entry like any other attempt and goes straight to failed.
func (s *IngestService) Reject(ctx context.Context, req ports.WebhookRequest, rej ports.WebhookRejection) ports.WebhookResult {
	return s.begin(ctx, req).reject(ctx, &failure{
		status:    rej.Status,
		http:      rej.HTTPStatus,
		retryable: rej.Retryable,
		detail:    rej.Detail,
	})
}

func (s *IngestService) begin(ctx context.Context, req ports.WebhookRequest) *attemptRun {
	start := req.ReceivedAt
	if start.IsZero() {
		start = s.now()
	}

	attempt := domain.NewAttempt(req.Platform, req.Discriminator, start, s.opts.LedgerRetention)
	attempt.Headers = ledgerHeaders(req.Headers)
	attempt.Payload = truncatePayload(req.Body, s.opts.LedgerPayloadLimit)

	run := &attemptRun{
		svc:     s,
		attempt: attempt,
		sm:      domain.NewStateMachine(),
		log:     logger.ForAttempt(s.log, attempt.ID.String(), string(req.Platform)),
		start:   start,
	}
	s.writeLedger(ctx, run.log, "begin", func(lctx context.Context) error {
		return s.ledger.Begin(lctx, attempt)
	})
	return run
}

// failure is a classified pipeline outcome other than success.
type failure struct {
	status    domain.AttemptStatus
	http      int
	retryable bool
	detail    string
}

func (f *failure) Error() string { return f.detail }

// attemptRun carries the state of one notification through the pipeline.
type attemptRun struct {
	svc     *IngestService
	attempt *domain.Attempt
	sm      *domain.StateMachine
	conn    *domain.Connection
	log     zerolog.Logger
	start   time.Time
}

func (r *attemptRun) execute(ctx context.Context, req ports.WebhookRequest) ports.WebhookResult {
	s := r.svc

	if f := r.advance(ctx, domain.StateAuthenticating); f != nil {
		return r.reject(ctx, f)
	}
	p, ok := s.registry.Get(req.Platform)
	if !ok {
		return r.reject(ctx, &failure{
			status: domain.AttemptStatusConnectionNotFound,
			http:   http.StatusNotFound,
			detail: fmt.Sprintf("unsupported platform %q", req.Platform),
		})
	}

	if f := r.step(ctx, StepResolveConnection, func(sctx context.Context) (string, error) {
		conn, err := s.conns.GetByWebhookKey(sctx, req.Platform, req.Discriminator)
		if err != nil {
			return "", err
		}
		if conn == nil || !conn.IsConnected() {
			return "", &failure{
				status: domain.AttemptStatusConnectionNotFound,
				http:   http.StatusNotFound,
				detail: "no connected integration for discriminator",
			}
		}
		r.conn = conn
		return "connection " + conn.ID.String(), nil
	}); f != nil {
		return r.reject(ctx, f)
	}
	r.log = r.log.With().Str("tenant_id", r.conn.TenantID.String()).Logger()
	r.attach(ctx, domain.AttemptPatch{ConnectionID: &r.conn.ID, TenantID: &r.conn.TenantID})

	if f := r.step(ctx, StepVerifySignature, func(context.Context) (string, error) {
		v, err := s.verifier.Verify(r.conn, req.Body, req.Headers)
		if err != nil {
			return "", &failure{
				status: domain.AttemptStatusFailed,
				http:   http.StatusInternalServerError,
				detail: "webhook secret unavailable: " + err.Error(),
			}
		}
		r.attach(ctx, domain.AttemptPatch{Signature: &domain.SignatureCheck{
			Method:   v.Method,
			Provided: v.Provided,
			Valid:    v.Valid,
		}})
		if !v.Valid {
			return v.Method, &failure{
				status: domain.AttemptStatusSignatureInvalid,
				http:   http.StatusUnauthorized,
				detail: "signature mismatch",
			}
		}
		return v.Method, nil
	}); f != nil {
		return r.reject(ctx, f)
	}

	if f := r.advance(ctx, domain.StateNormalizing); f != nil {
		return r.reject(ctx, f)
	}
	var cand *domain.CandidateOrder
	if f := r.step(ctx, StepNormalize, func(context.Context) (string, error) {
		c, err := p.Normalize(req.Body)
		if err != nil {
			return "", &failure{
				status: domain.AttemptStatusValidationFailed,
				http:   http.StatusUnprocessableEntity,
				detail: err.Error(),
			}
		}
		cand = c
		return fmt.Sprintf("external order %s, %d items", c.ExternalOrderID, len(c.Items)), nil
	}); f != nil {
		return r.reject(ctx, f)
	}
	r.attach(ctx, domain.AttemptPatch{OrderSummary: cand.Summary()})

	if cand.NeedsCatalog() && s.catalog != nil {
		var refreshed bool
		f := r.step(ctx, StepResolveCatalog, func(sctx context.Context) (string, error) {
			res, err := s.catalog.Resolve(sctx, r.conn, cand)
			refreshed = res != nil && res.Refreshed
			if err != nil {
				return "", classifyAppError(err)
			}
			return fmt.Sprintf("%d lookups", res.Lookups), nil
		})
		if refreshed {
			r.appendStep(ctx, domain.AttemptStep{
				Name:   StepTokenRefresh,
				Status: domain.StepStatusOK,
				Detail: "access token refreshed",
				At:     r.svc.now(),
			})
		}
		if f != nil {
			return r.reject(ctx, f)
		}
		r.attach(ctx, domain.AttemptPatch{OrderSummary: cand.Summary()})
	}

	if f := r.advance(ctx, domain.StateEvaluatingDuplicate); f != nil {
		return r.reject(ctx, f)
	}

	var existing *domain.Order
	if f := r.step(ctx, StepIdempotencyCheck, func(sctx context.Context) (string, error) {
		o, err := s.admission.Existing(sctx, cand, r.conn)
		if err != nil {
			return "", err
		}
		existing = o
		if o != nil {
			return "already admitted as " + o.ID.String(), nil
		}
		return "new external order", nil
	}); f != nil {
		return r.reject(ctx, f)
	}
	if existing != nil {
		return r.finish(ctx, completion{
			status:  domain.AttemptStatusSuccess,
			state:   domain.StateAdmitted,
			http:    http.StatusOK,
			body:    ResponseDuplicateOfSelf,
			detail:  "duplicate-of-self: resolved to existing order " + existing.ID.String(),
			orderID: &existing.ID,
		})
	}

	var decision *ports.DuplicateDecision
	if f := r.step(ctx, StepEvaluateDuplicate, func(sctx context.Context) (string, error) {
		d, err := s.dedup.Evaluate(sctx, r.conn, cand, s.now())
		if err != nil {
			return "", err
		}
		decision = d
		detail := fmt.Sprintf("no matching rule, %d prior orders compared", d.Scanned)
		if d.IsDuplicate {
			detail = fmt.Sprintf("matched rule %s, %d prior orders compared", d.MatchedRule.Name, d.Scanned)
		}
		if len(d.Skipped) > 0 {
			detail += "; skipped invalid rules: " + strings.Join(d.Skipped, ", ")
		}
		return detail, nil
	}); f != nil {
		return r.reject(ctx, f)
	}
	if decision.IsDuplicate {
		return r.finish(ctx, completion{
			status:      domain.AttemptStatusRejectedDuplicate,
			state:       domain.StateRejectedDuplicate,
			http:        http.StatusOK,
			body:        string(domain.AttemptStatusRejectedDuplicate),
			detail:      "duplicate of order " + decision.MatchedOrder.ID.String(),
			matchedRule: decision.MatchedRule.Name,
			orderID:     &decision.MatchedOrder.ID,
		})
	}

	if f := r.advance(ctx, domain.StateAdmitting); f != nil {
		return r.reject(ctx, f)
	}
	var result *ports.AdmissionResult
	if f := r.step(ctx, StepAdmit, func(sctx context.Context) (string, error) {
		res, err := s.admission.Admit(sctx, cand, r.conn)
		if err != nil {
			if errors.Is(sctx.Err(), context.DeadlineExceeded) {
				return "", err
			}
			if errors.Is(err, ports.ErrOrderInvalid) {
				return "", &failure{
					status: domain.AttemptStatusValidationFailed,
					http:   http.StatusUnprocessableEntity,
					detail: err.Error(),
				}
			}
			return "", &failure{
				status:    domain.AttemptStatusOrderCreationFailed,
				http:      http.StatusInternalServerError,
				retryable: true,
				detail:    err.Error(),
			}
		}
		result = res
		if !res.Created {
			return string(res.Reason), nil
		}
		return "order " + res.Order.ID.String(), nil
	}); f != nil {
		s.admission.RecordFailure(ctx, r.conn, f.detail)
		return r.reject(ctx, f)
	}

	if !result.Created {
		return r.finish(ctx, completion{
			status:  domain.AttemptStatusSuccess,
			state:   domain.StateAdmitted,
			http:    http.StatusOK,
			body:    ResponseDuplicateOfSelf,
			detail:  "duplicate-of-self: " + result.Detail,
			orderID: &result.Order.ID,
		})
	}
	return r.finish(ctx, completion{
		status:  domain.AttemptStatusSuccess,
		state:   domain.StateAdmitted,
		http:    http.StatusOK,
		body:    ResponseSuccess,
		detail:  "order admitted",
		orderID: &result.Order.ID,
	})
}

// step runs fn under the stage timeout and records it in the ledger.
func (r *attemptRun) step(ctx context.Context, name string, fn func(context.Context) (string, error)) *failure {
	sctx, cancel := context.WithTimeout(ctx, r.svc.opts.StageTimeout)
	defer cancel()

	t0 := time.Now()
	detail, err := fn(sctx)
	elapsed := time.Since(t0)

	var f *failure
	switch {
	case err == nil:
	case errors.Is(sctx.Err(), context.DeadlineExceeded):
		f = &failure{
			status:    domain.AttemptStatusFailed,
			http:      http.StatusInternalServerError,
			retryable: true,
			detail:    "timeout during " + name,
		}
	case errors.As(err, &f):
	default:
		f = &failure{
			status:    domain.AttemptStatusFailed,
			http:      http.StatusInternalServerError,
			retryable: true,
			detail:    err.Error(),
		}
	}

	status := domain.StepStatusOK
	if f != nil {
		status = domain.StepStatusFailed
		if detail == "" {
			detail = f.detail
		} else {
			detail += ": " + f.detail
		}
	}
	r.svc.metrics.ObserveStep(name, status, elapsed)
	r.appendStep(ctx, domain.AttemptStep{
		Name:       name,
		Status:     status,
		DurationMS: elapsed.Milliseconds(),
		Detail:     detail,
		At:         r.svc.now(),
	})
	return f
}

func (r *attemptRun) advance(ctx context.Context, next domain.PipelineState) *failure {
	if err := r.sm.Advance(next); err != nil {
		r.log.Error().Err(err).Msg("pipeline state violation")
		return &failure{
			status: domain.AttemptStatusFailed,
			http:   http.StatusInternalServerError,
			detail: err.Error(),
		}
	}
	r.attach(ctx, domain.AttemptPatch{State: next})
	return nil
}

func (r *attemptRun) attach(ctx context.Context, patch domain.AttemptPatch) {
	r.svc.writeLedger(ctx, r.log, "attach", func(lctx context.Context) error {
		return r.svc.ledger.Attach(lctx, r.attempt.ID, patch)
	})
}

func (r *attemptRun) appendStep(ctx context.Context, step domain.AttemptStep) {
	r.svc.writeLedger(ctx, r.log, "append-step", func(lctx context.Context) error {
		return r.svc.ledger.AppendStep(lctx, r.attempt.ID, step)
	})
}

// completion is a terminal outcome.
type completion struct {
	status      domain.AttemptStatus
	state       domain.PipelineState
	http        int
	body        string
	retryable   bool
	detail      string
	matchedRule string
	orderID     *uuid.UUID
}

func (r *attemptRun) reject(ctx context.Context, f *failure) ports.WebhookResult {
	return r.finish(ctx, completion{
		status:    f.status,
		state:     domain.StateFailed,
		http:      f.http,
		body:      string(f.status),
		retryable: f.retryable,
		detail:    f.detail,
	})
}

func (r *attemptRun) finish(ctx context.Context, c completion) ports.WebhookResult {
	if err := r.sm.Advance(c.state); err != nil {
		r.log.Error().Err(err).Msg("pipeline state violation on completion")
	}

	completedAt := r.svc.now()
	elapsed := completedAt.Sub(r.start)
	if elapsed < 0 {
		elapsed = 0
	}

	body, _ := json.Marshal(webhookBody{Status: c.body, AttemptID: r.attempt.ID.String(), Retryable: c.retryable})
	outcome := domain.AttemptOutcome{
		Status:          c.status,
		State:           r.sm.State(),
		Detail:          c.detail,
		MatchedRule:     c.matchedRule,
		ResolvedOrderID: c.orderID,
		Response:        domain.AttemptResponse{HTTPStatus: c.http, Body: string(body)},
		CompletedAt:     completedAt,
		ProcessingMS:    elapsed.Milliseconds(),
	}
	r.svc.writeLedger(ctx, r.log, "complete", func(lctx context.Context) error {
		return r.svc.ledger.Complete(lctx, r.attempt.ID, outcome)
	})
	r.svc.metrics.ObserveAttempt(r.attempt.Platform, c.status, elapsed)

	ev := r.log.Info()
	if c.http >= http.StatusInternalServerError {
		ev = r.log.Error()
	} else if c.http >= http.StatusBadRequest {
		ev = r.log.Warn()
	}
	ev.Str("status", string(c.status)).
		Int("http_status", c.http).
		Str("detail", c.detail).
		Dur("elapsed", elapsed).
		Msg("webhook attempt completed")

	return ports.WebhookResult{
		HTTPStatus: c.http,
		Status:     c.body,
		AttemptID:  r.attempt.ID,
		Retryable:  c.retryable,
	}
}

// writeLedger runs a ledger write detached from request cancellation.
// A ledger outage is logged and never changes the pipeline outcome.
func (s *IngestService) writeLedger(ctx context.Context, log zerolog.Logger, op string, fn func(context.Context) error) {
	lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), ledgerWriteTimeout)
	defer cancel()
	if err := fn(lctx); err != nil {
		log.Warn().Err(err).Str("op", op).Msg("attempt ledger write failed")
	}
}

type webhookBody struct {
	Status    string `json:"status"`
	AttemptID string `json:"attempt_id"`
	Retryable bool   `json:"retryable,omitempty"`
}

// classifyAppError maps catalog errors to pipeline outcomes.
func classifyAppError(err error) error {
	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		return err
	}
	if appErr.Code == "VAL_003" {
		return &failure{
			status: domain.AttemptStatusProductNotFound,
			http:   http.StatusUnprocessableEntity,
			detail: appErr.Error(),
		}
	}
	return &failure{
		status:    domain.AttemptStatusFailed,
		http:      http.StatusInternalServerError,
		retryable: appErr.Retryable,
		detail:    appErr.Error(),
	}
}

var ledgerHeaderPrefixes = []string{"x-shopify-", "x-wc-", "x-youcan-"}

// ledgerHeaders keeps content headers and platform webhook headers only.
func ledgerHeaders(headers map[string]string) map[string]string {
	out := make(map[string]string, len(headers))
	for k, v := range headers {
		lk := strings.ToLower(k)
		keep := lk == "content-type" || lk == "user-agent" || lk == "content-length"
		for _, p := range ledgerHeaderPrefixes {
			if strings.HasPrefix(lk, p) {
				keep = true
				break
			}
		}
		if keep {
			out[k] = v
		}
	}
	return out
}

func truncatePayload(body []byte, limit int) string {
	if limit > 0 && len(body) > limit {
		return strings.ToValidUTF8(string(body[:limit]), "")
	}
	return string(body)
}

type noopMetrics struct{}

func (noopMetrics) ObserveAttempt(domain.PlatformType, domain.AttemptStatus, time.Duration) {}
func (noopMetrics) ObserveStep(string, domain.StepStatus, time.Duration)                  {}

// Package orchestrator coordinates a payment across the money
// normalizer, the idempotency ledger, the provider adapters and the
// transaction lifecycle. It is the only package that mutates
// transactions in response to caller operations.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/yourorg/payment-core/internal/adapter"
	"github.com/yourorg/payment-core/internal/audit"
	"github.com/yourorg/payment-core/internal/circuitbreaker"
	"github.com/yourorg/payment-core/internal/domain"
	"github.com/yourorg/payment-core/internal/ledger"
	"github.com/yourorg/payment-core/internal/metrics"
	"github.com/yourorg/payment-core/internal/money"
	"github.com/yourorg/payment-core/internal/policy"
	"github.com/yourorg/payment-core/internal/transaction"
	"github.com/yourorg/payment-core/internal/webhook"
)

// Config tunes the orchestrator's retry behavior and per-provider
// settlement currencies.
type Config struct {
	// MaxAttempts bounds initiate calls per payment, including the first.
	MaxAttempts int
	Backoff     time.Duration

	// SettlementCurrencies maps providers that settle in a fixed currency
	// (e.g. a stablecoin) to that currency. Intents in other currencies
	// are converted through the normalizer's rate lookup.
	SettlementCurrencies map[domain.Provider]string
}

// Orchestrator is the façade over the payment core.
type Orchestrator struct {
	registry   adapter.Registry
	normalizer *money.Normalizer
	repo       *transaction.Repository
	ledger     *ledger.Ledger
	breaker    *circuitbreaker.Breaker
	enforcer   *policy.Enforcer
	dispatcher *webhook.Dispatcher
	metrics    *metrics.Metrics
	auditLog   *audit.Log
	tracer     trace.Tracer
	cfg        Config
	now        func() time.Time
}

// New creates an Orchestrator. All dependencies are mandatory.
func New(
	registry adapter.Registry,
	normalizer *money.Normalizer,
	repo *transaction.Repository,
	led *ledger.Ledger,
	breaker *circuitbreaker.Breaker,
	enforcer *policy.Enforcer,
	dispatcher *webhook.Dispatcher,
	m *metrics.Metrics,
	auditLog *audit.Log,
	cfg Config,
) *Orchestrator {
	if registry == nil {
		panic("adapter registry cannot be nil")
	}
	if normalizer == nil {
		panic("normalizer cannot be nil")
	}
	if repo == nil {
		panic("repository cannot be nil")
	}
	if led == nil {
		panic("ledger cannot be nil")
	}
	if breaker == nil {
		panic("circuit breaker cannot be nil")
	}
	if enforcer == nil {
		panic("policy enforcer cannot be nil")
	}
	if dispatcher == nil {
		panic("webhook dispatcher cannot be nil")
	}
	if m == nil {
		panic("metrics cannot be nil")
	}
	if auditLog == nil {
		panic("audit log cannot be nil")
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	return &Orchestrator{
		registry:   registry,
		normalizer: normalizer,
		repo:       repo,
		ledger:     led,
		breaker:    breaker,
		enforcer:   enforcer,
		dispatcher: dispatcher,
		metrics:    m,
		auditLog:   auditLog,
		tracer:     otel.Tracer("payment-core/orchestrator"),
		cfg:        cfg,
		now:        time.Now,
	}
}

// CreateResult is the outcome of CreatePayment.
type CreateResult struct {
	Transaction *transaction.Transaction
	Action      domain.Action
}

// CreatePayment runs the full create flow: normalize the amount, reserve
// the external reference, call the provider, and record the accepted
// transaction.
//
// A reference that is already bound returns the existing transaction
// together with domain.ErrAlreadyExists; no second provider call is made.
func (o *Orchestrator) CreatePayment(ctx context.Context, intent domain.PaymentIntent) (*CreateResult, error) {
	ctx, span := o.tracer.Start(ctx, "CreatePayment",
		trace.WithAttributes(attribute.String("payment.provider", string(intent.Provider))))
	defer span.End()

	adp, ok := o.registry.Get(intent.Provider)
	if !ok {
		return nil, fmt.Errorf("orchestrator: unknown provider %q: %w", intent.Provider, domain.ErrValidationFailed)
	}

	if intent.ExternalReference == "" {
		intent.ExternalReference = uuid.NewString()
	}
	span.SetAttributes(attribute.String("payment.reference", intent.ExternalReference))

	amount, err := o.normalizer.NormalizeString(intent.Amount, intent.Currency, o.cfg.SettlementCurrencies[intent.Provider])
	if err != nil {
		return nil, err
	}

	txnID := uuid.NewString()
	lease, err := o.ledger.Reserve(ctx, intent.ExternalReference, txnID)
	if errors.Is(err, domain.ErrAlreadyExists) {
		existing, lookupErr := o.existingTransaction(ctx, intent.ExternalReference)
		if lookupErr != nil {
			return nil, lookupErr
		}
		return &CreateResult{Transaction: existing, Action: domain.Action{Kind: domain.ActionNone}}, err
	}
	if err != nil {
		return nil, err
	}
	defer lease.Release()

	if !o.breaker.Allow(intent.Provider) {
		o.metrics.PaymentsTotal.WithLabelValues(string(intent.Provider), "circuit_open").Inc()
		return nil, fmt.Errorf("orchestrator: circuit open for %s: %w", intent.Provider, domain.ErrProviderUnavailable)
	}

	// The record is saved in CREATED before the provider call, so a
	// concurrent duplicate for the same reference can read the current
	// state while the initiate is still in flight.
	tx := transaction.New(txnID, intent.ExternalReference, string(intent.Provider),
		amount.MinorUnits, amount.Currency, intent.Metadata, o.now().UTC())
	if err := o.repo.Save(ctx, tx); err != nil {
		return nil, err
	}

	res, err := o.initiateWithRetry(ctx, adp, intent, amount)
	if err != nil {
		o.metrics.PaymentsTotal.WithLabelValues(string(intent.Provider), outcomeLabel(err)).Inc()
		return nil, err
	}

	requiresAction := res.RedirectURL != "" || res.ClientActionToken != ""
	if _, err := transaction.Apply(tx, transaction.Change{
		Event:                 transaction.EventProviderAccepted,
		RequiresAction:        requiresAction,
		ProviderTransactionID: res.ProviderTransactionID,
	}); err != nil {
		return nil, err
	}

	if qc, ok := adp.(adapter.QuoteCommitter); ok {
		if err := o.driveQuoteCommit(ctx, qc, tx, res.ProviderTransactionID); err != nil {
			return nil, err
		}
	}

	if err := o.repo.Save(ctx, tx); err != nil {
		return nil, err
	}
	if err := lease.Commit(ctx); err != nil {
		return nil, err
	}

	o.metrics.PaymentsTotal.WithLabelValues(string(intent.Provider), "created").Inc()
	log.Printf("orchestrator: created transaction %s for %s via %s (%s)",
		tx.ID, intent.ExternalReference, intent.Provider, tx.Status)
	return &CreateResult{Transaction: tx, Action: actionFor(res)}, nil
}

// A duplicate can land in the instant between the winner's reservation
// and its first save. The lookup retries briefly before giving up.
const (
	existingLookupAttempts = 5
	existingLookupDelay    = 10 * time.Millisecond
)

func (o *Orchestrator) existingTransaction(ctx context.Context, externalReference string) (*transaction.Transaction, error) {
	id, err := o.ledger.Lookup(ctx, externalReference)
	if err != nil {
		return nil, err
	}
	for attempt := 1; ; attempt++ {
		tx, err := o.repo.FindByID(ctx, id)
		if err == nil {
			return tx, nil
		}
		if !errors.Is(err, domain.ErrUnknownTransaction) || attempt >= existingLookupAttempts {
			return nil, err
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(existingLookupDelay):
		}
	}
}

func (o *Orchestrator) initiateWithRetry(ctx context.Context, adp adapter.Adapter, intent domain.PaymentIntent, amount money.Normalized) (domain.ProviderResult, error) {
	provider := adp.Name()
	for attempt := 1; ; attempt++ {
		start := o.now()
		res, err := adp.Initiate(ctx, intent, amount)
		o.metrics.ObserveInitiate(string(provider), start)
		if err == nil {
			o.breaker.RecordSuccess(provider)
			return res, nil
		}
		o.breaker.RecordFailure(provider)

		if attempt >= o.cfg.MaxAttempts || !o.enforcer.AllowRetry(policy.Outcome{
			Provider:      provider,
			AttemptNumber: attempt,
			Err:           err,
		}) {
			return domain.ProviderResult{}, err
		}
		o.metrics.RetriesTotal.WithLabelValues(string(provider)).Inc()
		log.Printf("orchestrator: retrying %s initiate, attempt %d failed: %v", provider, attempt, err)

		select {
		case <-ctx.Done():
			return domain.ProviderResult{}, fmt.Errorf("orchestrator: %v: %w", ctx.Err(), domain.ErrProviderUnavailable)
		case <-time.After(o.cfg.Backoff):
		}
	}
}

// driveQuoteCommit runs the update and commit steps of a quote-then-commit
// flow. The quote was already recorded on the transaction; a failure here
// leaves the reference free for a fresh attempt.
func (o *Orchestrator) driveQuoteCommit(ctx context.Context, qc adapter.QuoteCommitter, tx *transaction.Transaction, providerTransactionID string) error {
	if _, err := qc.Update(ctx, providerTransactionID); err != nil {
		return fmt.Errorf("orchestrator: update transfer %s: %w", providerTransactionID, err)
	}
	res, err := qc.Commit(ctx, providerTransactionID)
	if err != nil {
		return fmt.Errorf("orchestrator: commit transfer %s: %w", providerTransactionID, err)
	}
	if res.Status == domain.ReportedPaid {
		if _, err := transaction.Apply(tx, transaction.Change{Event: transaction.EventStatusPaid}); err != nil {
			return err
		}
	}
	return nil
}

func actionFor(res domain.ProviderResult) domain.Action {
	switch {
	case res.RedirectURL != "":
		return domain.Action{Kind: domain.ActionRedirect, URL: res.RedirectURL}
	case res.ClientActionToken != "":
		return domain.Action{Kind: domain.ActionClientAction, Token: res.ClientActionToken}
	default:
		return domain.Action{Kind: domain.ActionNone}
	}
}

func outcomeLabel(err error) string {
	var rejected *domain.ProviderRejectedError
	switch {
	case errors.As(err, &rejected):
		return "rejected"
	case errors.Is(err, domain.ErrProviderUnavailable):
		return "unavailable"
	case errors.Is(err, domain.ErrValidationFailed), errors.Is(err, domain.ErrInvalidAmount):
		return "invalid"
	default:
		return "error"
	}
}

// GetPayment loads a transaction by id.
func (o *Orchestrator) GetPayment(ctx context.Context, id string) (*transaction.Transaction, error) {
	return o.repo.FindByID(ctx, id)
}

// HandleWebhook verifies and applies one raw webhook delivery.
func (o *Orchestrator) HandleWebhook(ctx context.Context, provider domain.Provider, header http.Header, body []byte) error {
	ctx, span := o.tracer.Start(ctx, "HandleWebhook",
		trace.WithAttributes(attribute.String("payment.provider", string(provider))))
	defer span.End()

	err := o.dispatcher.Handle(ctx, provider, header, body)
	o.metrics.WebhookEventsTotal.WithLabelValues(string(provider), webhookResult(err)).Inc()
	return err
}

func webhookResult(err error) string {
	switch {
	case err == nil:
		return "applied"
	case errors.Is(err, domain.ErrSignatureInvalid):
		return "rejected"
	default:
		return "error"
	}
}

// PollStatus refreshes a transaction from its provider. Only poll-mode
// providers are queried; for the others the stored record is already
// authoritative. A provider timeout leaves the stored state untouched.
func (o *Orchestrator) PollStatus(ctx context.Context, id string) (*transaction.Transaction, error) {
	ctx, span := o.tracer.Start(ctx, "PollStatus")
	defer span.End()

	tx, err := o.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if tx.Status.IsTerminal() {
		return tx, nil
	}

	adp, ok := o.registry.Get(domain.Provider(tx.Provider))
	if !ok || adp.SettlementMode() != domain.SettlePoll || tx.ProviderTransactionID == "" {
		return tx, nil
	}

	status, err := adp.QueryStatus(ctx, tx.ProviderTransactionID)
	if err != nil {
		return nil, err
	}
	return o.applyReported(ctx, tx, status, 0)
}

// Capture runs the second phase of a two-phase flow and, for providers
// that settle synchronously, records the final status in the same call.
func (o *Orchestrator) Capture(ctx context.Context, id string) (*transaction.Transaction, error) {
	ctx, span := o.tracer.Start(ctx, "Capture")
	defer span.End()

	tx, err := o.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	adp, ok := o.registry.Get(domain.Provider(tx.Provider))
	if !ok {
		return nil, fmt.Errorf("orchestrator: no adapter for %s: %w", tx.Provider, domain.ErrValidationFailed)
	}
	capturer, ok := adp.(adapter.Capturer)
	if !ok {
		return nil, fmt.Errorf("orchestrator: provider %s does not support capture: %w", tx.Provider, domain.ErrValidationFailed)
	}

	res, err := capturer.Capture(ctx, tx.ProviderTransactionID)
	if err != nil {
		return nil, err
	}

	tx, _, err = o.repo.Mutate(ctx, tx.ID, func(tx *transaction.Transaction) (bool, error) {
		return transaction.Apply(tx, transaction.Change{Event: transaction.EventCaptureConfirmed})
	})
	if err != nil {
		return nil, err
	}
	return o.applyReported(ctx, tx, res.Status, 0)
}

// Cancel records a user-initiated abandonment. Only transactions still
// awaiting buyer action can be cancelled.
func (o *Orchestrator) Cancel(ctx context.Context, id string) (*transaction.Transaction, error) {
	ctx, span := o.tracer.Start(ctx, "Cancel")
	defer span.End()

	tx, changed, err := o.repo.Mutate(ctx, id, func(tx *transaction.Transaction) (bool, error) {
		return transaction.Apply(tx, transaction.Change{Event: transaction.EventUserCancelled})
	})
	if err != nil {
		return nil, err
	}
	if !changed {
		return nil, fmt.Errorf("orchestrator: transaction %s is %s and cannot be cancelled: %w",
			tx.ID, tx.Status, domain.ErrIllegalTransition)
	}
	log.Printf("orchestrator: transaction %s cancelled by user", tx.ID)
	return tx, nil
}

// applyReported folds a provider-reported status into the transaction and
// persists the result. Interim statuses save nothing.
func (o *Orchestrator) applyReported(ctx context.Context, tx *transaction.Transaction, status domain.ReportedStatus, amountMinorUnits int64) (*transaction.Transaction, error) {
	event, ok := statusEvent(status)
	if !ok {
		return tx, nil
	}
	updated, _, err := o.repo.Mutate(ctx, tx.ID, func(tx *transaction.Transaction) (bool, error) {
		return transaction.Apply(tx, transaction.Change{
			Event:            event,
			AmountMinorUnits: amountMinorUnits,
		})
	})
	var inconsistent *domain.InconsistentError
	if errors.As(err, &inconsistent) {
		o.auditLog.Record(audit.Entry{
			Kind:          audit.KindInconsistent,
			Provider:      tx.Provider,
			TransactionID: tx.ID,
			Detail:        inconsistent.Error(),
		})
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func statusEvent(s domain.ReportedStatus) (transaction.Event, bool) {
	switch s {
	case domain.ReportedPaid:
		return transaction.EventStatusPaid, true
	case domain.ReportedAuthorized:
		return transaction.EventStatusAuthorized, true
	case domain.ReportedFailed:
		return transaction.EventStatusFailed, true
	case domain.ReportedExpired:
		return transaction.EventStatusExpired, true
	}
	return "", false
}

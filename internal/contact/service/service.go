package service

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"reconcile/internal/contact/events"
	contactmetrics "reconcile/internal/contact/metrics"
	"reconcile/internal/contact/models"
	dErrors "reconcile/pkg/domain-errors"
	"reconcile/pkg/platform/pii"
	platformstrings "reconcile/pkg/platform/strings"
	"reconcile/pkg/requestcontext"
)

const tracerName = "reconcile/internal/contact/service"

// Service reconciles incoming contact details into identity chains.
type Service struct {
	store   Store
	tx      ContactStoreTx
	cache   ViewCache
	events  EventQueue
	pii     *pii.Fingerprinter
	metrics *contactmetrics.Metrics
	logger  *slog.Logger
	tracer  trace.Tracer
}

// Option configures a Service.
type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithMetrics(m *contactmetrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithCache(c ViewCache) Option {
	return func(s *Service) {
		s.cache = c
	}
}

func WithEvents(q EventQueue) Option {
	return func(s *Service) {
		s.events = q
	}
}

func WithFingerprinter(f *pii.Fingerprinter) Option {
	return func(s *Service) {
		s.pii = f
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(s *Service) {
		if t != nil {
			s.tracer = t
		}
	}
}

// New builds a Service over store. tx scopes each resolution.
func New(store Store, tx ContactStoreTx, opts ...Option) *Service {
	s := &Service{
		store:  store,
		tx:     tx,
		logger: slog.Default(),
		tracer: otel.Tracer(tracerName),
		pii:    pii.NewFingerprinter(""),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IdentifyResult is the consolidated identity plus the branch that produced it.
type IdentifyResult struct {
	Identity *models.Identity
	Outcome  models.Outcome
}

// Identify finds the contacts matching req, resolves them into a single
// chain and returns that chain's consolidated view. Matching, resolution and
// consolidation share one transaction.
func (s *Service) Identify(ctx context.Context, req models.IdentifyRequest) (*IdentifyResult, error) {
	start := time.Now()
	defer s.metrics.ObserveIdentify(start)

	ctx, span := s.tracer.Start(ctx, "contact.Identify")
	defer span.End()

	if err := req.Validate(); err != nil {
		return nil, s.fail(span, err)
	}
	now := requestcontext.Now(ctx)

	var result IdentifyResult
	err := s.tx.RunInTx(ctx, func(txCtx context.Context, store Store) error {
		matches, err := traced(txCtx, s, "contact.FindMatches", func(c context.Context) ([]*models.Contact, error) {
			return lockMatches(c, store, req.Email, req.PhoneNumber)
		})
		if err != nil {
			return err
		}
		result.Outcome, err = traced(txCtx, s, "contact.Resolve", func(c context.Context) (models.Outcome, error) {
			return resolve(c, store, req.Email, req.PhoneNumber, matches, now)
		})
		if err != nil {
			return err
		}
		result.Identity, err = traced(txCtx, s, "contact.Assemble", func(c context.Context) (*models.Identity, error) {
			return assemble(c, store, result.Outcome.PrimaryID)
		})
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			return dErrors.Wrap(err, dErrors.CodeInternal, "resolved primary vanished before consolidation")
		}
		return err
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "identify failed",
			"request_id", requestcontext.RequestID(ctx),
			"email_token", s.pii.Token(req.Email),
			"phone_token", s.pii.Token(req.PhoneNumber),
			"error", err,
		)
		return nil, s.fail(span, translateStoreError(err, "identify failed"))
	}

	s.afterCommit(ctx, req, result, now)
	span.SetAttributes(
		attribute.String("contact.outcome", string(result.Outcome.Kind)),
		attribute.Int64("contact.primary_id", result.Outcome.PrimaryID),
		attribute.Int("contact.demoted", len(result.Outcome.DemotedIDs)),
	)
	return &result, nil
}

func (s *Service) afterCommit(ctx context.Context, req models.IdentifyRequest, result IdentifyResult, now time.Time) {
	o := result.Outcome
	s.metrics.IncResolution(o.Kind)
	s.metrics.AddChainsMerged(len(o.DemotedIDs))

	if s.cache != nil {
		if touched := o.TouchedChains(); len(touched) > 0 {
			s.cache.Invalidate(ctx, touched...)
		}
	}

	if s.events != nil {
		if evt, ok := events.FromOutcome(o, now); ok {
			evt.RequestID = requestcontext.RequestID(ctx)
			evt.EmailToken = s.pii.Token(req.Email)
			evt.PhoneToken = s.pii.Token(req.PhoneNumber)
			s.events.Enqueue(ctx, evt)
		}
	}

	s.logger.InfoContext(ctx, "contact resolved",
		"request_id", requestcontext.RequestID(ctx),
		"client_ip", requestcontext.ClientIP(ctx),
		"outcome", string(o.Kind),
		"primary_contact_id", o.PrimaryID,
		"created_contact_id", o.CreatedID,
		"demoted_primary_ids", o.DemotedIDs,
		"email_token", s.pii.Token(req.Email),
		"phone_token", s.pii.Token(req.PhoneNumber),
	)
}

// FindMatches returns every live contact sharing the email or the phone,
// oldest first.
func (s *Service) FindMatches(ctx context.Context, email, phone *string) ([]*models.Contact, error) {
	ctx, span := s.tracer.Start(ctx, "contact.FindMatches")
	defer span.End()
	matches, err := findMatches(ctx, s.store, platformstrings.TrimOptional(email), platformstrings.TrimOptional(phone))
	if err != nil {
		return nil, s.fail(span, err)
	}
	return matches, nil
}

// Resolve runs matching and resolution in one transaction without
// consolidating, returning which branch fired.
func (s *Service) Resolve(ctx context.Context, email, phone *string) (models.Outcome, error) {
	ctx, span := s.tracer.Start(ctx, "contact.Resolve")
	defer span.End()

	email, phone = platformstrings.TrimOptional(email), platformstrings.TrimOptional(phone)
	if email == nil && phone == nil {
		return models.Outcome{}, s.fail(span, dErrors.New(dErrors.CodeValidation, "email or phoneNumber is required"))
	}
	now := requestcontext.Now(ctx)
	var outcome models.Outcome
	err := s.tx.RunInTx(ctx, func(txCtx context.Context, store Store) error {
		matches, err := lockMatches(txCtx, store, email, phone)
		if err != nil {
			return err
		}
		outcome, err = resolve(txCtx, store, email, phone, matches, now)
		return err
	})
	if err != nil {
		return models.Outcome{}, s.fail(span, translateStoreError(err, "resolve failed"))
	}
	if s.cache != nil {
		if touched := outcome.TouchedChains(); len(touched) > 0 {
			s.cache.Invalidate(ctx, touched...)
		}
	}
	return outcome, nil
}

// Assemble returns the consolidated view of the chain headed by primaryID.
func (s *Service) Assemble(ctx context.Context, primaryID int64) (*models.Identity, error) {
	ctx, span := s.tracer.Start(ctx, "contact.Assemble")
	defer span.End()
	identity, err := assemble(ctx, s.store, primaryID)
	if err != nil {
		return nil, s.fail(span, err)
	}
	return identity, nil
}

// Lookup returns the consolidated view of the chain containing contactID.
// Secondary ids resolve to their primary.
func (s *Service) Lookup(ctx context.Context, contactID int64) (*models.Identity, error) {
	ctx, span := s.tracer.Start(ctx, "contact.Lookup")
	defer span.End()

	if contactID <= 0 {
		return nil, s.fail(span, dErrors.New(dErrors.CodeValidation, "contact id must be a positive integer"))
	}
	contact, err := s.store.FindByID(ctx, contactID)
	if err != nil {
		return nil, s.fail(span, translateStoreError(err, "contact not found"))
	}
	primaryID := contact.ChainID()

	if s.cache != nil {
		if identity, ok := s.cache.Get(ctx, primaryID); ok {
			return identity, nil
		}
	}
	identity, err := assemble(ctx, s.store, primaryID)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			err = dErrors.Wrap(err, dErrors.CodeInternal, "contact links to a missing primary")
		}
		return nil, s.fail(span, err)
	}
	if s.cache != nil {
		s.cache.Set(ctx, identity)
	}
	return identity, nil
}

// Ready reports whether the store is reachable.
func (s *Service) Ready(ctx context.Context) error {
	if err := s.store.Ping(ctx); err != nil {
		return translateStoreError(err, "contact store unavailable")
	}
	return nil
}

// traced runs fn in a child span of ctx.
func traced[T any](ctx context.Context, s *Service, name string, fn func(context.Context) (T, error)) (T, error) {
	ctx, span := s.tracer.Start(ctx, name)
	defer span.End()
	v, err := fn(ctx)
	if err != nil {
		var zero T
		return zero, s.fail(span, err)
	}
	return v, nil
}

func (s *Service) fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
	return err
}

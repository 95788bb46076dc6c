package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"kasirkas/backend/internal/cache"
	"kasirkas/backend/internal/cart"
	"kasirkas/backend/internal/domain"
	"kasirkas/backend/internal/lock"
	"kasirkas/backend/internal/metrics"
	"kasirkas/backend/internal/pricing"
	"kasirkas/backend/internal/sale"
	"kasirkas/backend/internal/store"
	"kasirkas/backend/internal/workflow"
	"kasirkas/backend/internal/xid"
)

var ErrForbidden = errors.New("forbidden")

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Options struct {
	Logger                  *zap.Logger
	Metrics                 *metrics.Metrics
	Locker                  lock.Locker
	Catalog                 cache.CatalogCache
	CatalogTTL              time.Duration
	LockTTL                 time.Duration
	Location                *time.Location
	StaffMaxDiscountPercent float64
	Now                     func() time.Time
}

type Service struct {
	repo             store.Repository
	log              *zap.Logger
	metrics          *metrics.Metrics
	locker           lock.Locker
	catalog          cache.CatalogCache
	catalogTTL       time.Duration
	lockTTL          time.Duration
	loc              *time.Location
	staffMaxDiscount float64
	now              func() time.Time
	validate         *validator.Validate
}

func New(repo store.Repository, opts Options) *Service {
	s := &Service{
		repo:             repo,
		log:              opts.Logger,
		metrics:          opts.Metrics,
		locker:           opts.Locker,
		catalog:          opts.Catalog,
		catalogTTL:       opts.CatalogTTL,
		lockTTL:          opts.LockTTL,
		loc:              opts.Location,
		staffMaxDiscount: opts.StaffMaxDiscountPercent,
		now:              opts.Now,
		validate:         validator.New(validator.WithRequiredStructEnabled()),
	}
	if s.log == nil {
		s.log = zap.NewNop()
	}
	s.log = s.log.Named("service")
	if s.locker == nil {
		s.locker = lock.NewLocal()
	}
	if s.catalog == nil {
		s.catalog = cache.NoopCatalogCache{}
	}
	if s.catalogTTL <= 0 {
		s.catalogTTL = 30 * time.Second
	}
	if s.lockTTL <= 0 {
		s.lockTTL = 10 * time.Second
	}
	if s.loc == nil {
		s.loc = time.UTC
	}
	if s.staffMaxDiscount < 0 {
		s.staffMaxDiscount = 10
	}
	if s.now == nil {
		s.now = func() time.Time { return time.Now().UTC() }
	}
	return s
}

// ErrorCode maps an error returned by the service to a stable machine code.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, store.ErrNotFound):
		return "not_found"
	case errors.Is(err, workflow.ErrStaleState), errors.Is(err, store.ErrVersionConflict):
		return "stale_state"
	case errors.Is(err, workflow.ErrInvalidStateTransition):
		return "invalid_state_transition"
	case errors.Is(err, cart.ErrInsufficientStock), errors.Is(err, store.ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, sale.ErrNegativeTotal):
		return "negative_total"
	case errors.Is(err, sale.ErrInsufficientCash):
		return "insufficient_cash"
	case errors.Is(err, workflow.ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, workflow.ErrInvalidInput),
		errors.Is(err, pricing.ErrInvalidLineItem),
		errors.Is(err, pricing.ErrInvalidAdjustment),
		errors.Is(err, sale.ErrEmptyCart),
		errors.Is(err, sale.ErrInvalidStatus),
		errors.Is(err, sale.ErrInvalidPaymentMethod),
		errors.Is(err, store.ErrInvalidTransaction):
		return "invalid_input"
	default:
		return "internal"
	}
}

func (s *Service) check(req any) error {
	if err := s.validate.Struct(req); err != nil {
		return fmt.Errorf("%w: %s", workflow.ErrInvalidInput, err.Error())
	}
	return nil
}

func requireActor(ctx context.Context) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.ID == "" {
		return domain.Actor{}, ErrForbidden
	}
	return actor, nil
}

func requireSupervisor(ctx context.Context) (domain.Actor, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.Actor{}, err
	}
	if !actor.IsSupervisor() {
		return domain.Actor{}, fmt.Errorf("%w: owner or manager role required", ErrForbidden)
	}
	return actor, nil
}

func requireOwner(ctx context.Context) (domain.Actor, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.Actor{}, err
	}
	if !actor.IsOwner() {
		return domain.Actor{}, fmt.Errorf("%w: owner role required", ErrForbidden)
	}
	return actor, nil
}

// transition runs fn under the record lock and records the outcome. A lost
// compare-and-swap surfaces as workflow.ErrStaleState.
func (s *Service) transition(ctx context.Context, entity string, id string, event string, fn func(context.Context) error) error {
	err := s.locker.WithLock(ctx, lock.Key(entity, id), s.lockTTL, fn)
	if errors.Is(err, store.ErrVersionConflict) {
		err = fmt.Errorf("%w: %s %s changed concurrently", workflow.ErrStaleState, entity, id)
	}
	code := ErrorCode(err)
	s.metrics.ObserveTransition(entity, event, code)
	if err != nil {
		s.log.Debug("transition refused",
			zap.String("entity", entity),
			zap.String("id", id),
			zap.String("event", event),
			zap.String("code", code),
			zap.Error(err))
	}
	return err
}

func (s *Service) logAudit(ctx context.Context, action string, entityType string, entityID string, detail string) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{ID: "system", Role: domain.RoleSystem}
	}

	if err := s.repo.CreateAuditLog(ctx, domain.AuditLog{
		ID:         xid.New("audit"),
		ActorID:    actor.ID,
		ActorRole:  actor.Role,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Detail:     detail,
		CreatedAt:  s.now(),
	}); err != nil {
		s.log.Warn("audit log write failed",
			zap.String("action", action),
			zap.String("entity", entityType+"/"+entityID),
			zap.Error(err))
	}
}

// ListAuditLogs returns the entries of one business day, newest first.
// An empty date means the last 24 hours.
func (s *Service) ListAuditLogs(ctx context.Context, date string, limit int) ([]domain.AuditLog, error) {
	if _, err := requireOwner(ctx); err != nil {
		return nil, err
	}
	if limit < 1 {
		limit = 100
	}

	var from time.Time
	if date == "" {
		from = s.now().Add(-24 * time.Hour)
	} else {
		parsed, err := time.ParseInLocation(domain.DateLayout, date, s.loc)
		if err != nil {
			return nil, fmt.Errorf("%w: date must be YYYY-MM-DD", workflow.ErrInvalidInput)
		}
		from = parsed
	}
	return s.repo.ListAuditLogs(ctx, from, from.Add(24*time.Hour), limit)
}

func (s *Service) logTransition(workflowName string, recordID string, from string, to string, actor domain.Actor) {
	s.log.Info("workflow transition",
		zap.String("workflow", workflowName),
		zap.String("record_id", recordID),
		zap.String("from", from),
		zap.String("to", to),
		zap.String("actor_id", actor.ID))
}

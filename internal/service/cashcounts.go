package service

import (
	"context"
	"fmt"

	"kasirkas/backend/internal/domain"
	"kasirkas/backend/internal/workflow"
	"kasirkas/backend/internal/xid"
)

// SystemCashTotal sums the completed cash sales of one business day.
func (s *Service) SystemCashTotal(ctx context.Context, date string) (domain.SystemCashTotal, error) {
	if _, err := requireActor(ctx); err != nil {
		return domain.SystemCashTotal{}, err
	}
	if date == "" {
		date = s.now().In(s.loc).Format(domain.DateLayout)
	}
	if err := validateDate(date); err != nil {
		return domain.SystemCashTotal{}, err
	}
	sales, err := s.repo.ListSales(ctx, domain.SalesFilter{
		Date:          date,
		Location:      s.loc,
		Status:        domain.SaleStatusCompleted,
		PaymentMethod: domain.PaymentCash,
	})
	if err != nil {
		return domain.SystemCashTotal{}, err
	}
	return workflow.SystemCashTotal(date, s.loc, sales), nil
}

func (s *Service) CreateCashCount(ctx context.Context, req domain.CashCountCreateRequest) (domain.CashCount, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.CashCount{}, err
	}
	if err := s.check(req); err != nil {
		return domain.CashCount{}, err
	}
	system, err := s.SystemCashTotal(ctx, req.Date)
	if err != nil {
		return domain.CashCount{}, err
	}

	cc, err := workflow.NewCashCount(workflow.CashCountInput{
		ID:                xid.New("cc"),
		Date:              req.Date,
		CountedTotalCents: req.CountedTotalCents,
		SystemTotalCents:  system.TotalCents,
		Notes:             req.Notes,
	}, actor, s.now())
	if err != nil {
		return domain.CashCount{}, err
	}
	if err := s.repo.CreateCashCount(ctx, cc); err != nil {
		return domain.CashCount{}, err
	}

	s.metrics.ObserveTransition(workflow.CashCounts.Name(), "create", "ok")
	s.logTransition(workflow.CashCounts.Name(), cc.ID, "", cc.Status, actor)
	s.logAudit(ctx, "cash_count_create", "cash_count", cc.ID,
		fmt.Sprintf("date=%s,counted=%d,system=%d,difference=%d", cc.Date, cc.CountedTotalCents, cc.SystemTotalCents, cc.DifferenceCents))
	return cc, nil
}

func (s *Service) SecondSignCashCount(ctx context.Context, id string, req domain.TransitionRequest) (domain.CashCount, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.CashCount{}, err
	}
	return s.advanceCashCount(ctx, id, workflow.CashCountSecondSign, actor, func(cc domain.CashCount) (domain.CashCount, error) {
		return workflow.SecondSign(cc, actor, req.Expectation, req.Note, s.now())
	})
}

// OwnerReviewCashCount closes a second-signed count as accepted or rejected.
func (s *Service) OwnerReviewCashCount(ctx context.Context, id string, req domain.CashCountReviewRequest) (domain.CashCount, error) {
	actor, err := requireOwner(ctx)
	if err != nil {
		return domain.CashCount{}, err
	}
	if err := s.check(req); err != nil {
		return domain.CashCount{}, err
	}
	return s.advanceCashCount(ctx, id, "review_"+req.Decision, actor, func(cc domain.CashCount) (domain.CashCount, error) {
		return workflow.OwnerReview(cc, actor, req.Decision, req.Expectation, req.Note, s.now())
	})
}

func (s *Service) advanceCashCount(ctx context.Context, id string, event string, actor domain.Actor, step func(domain.CashCount) (domain.CashCount, error)) (domain.CashCount, error) {
	var next domain.CashCount
	var from string
	err := s.transition(ctx, workflow.CashCounts.Name(), id, event, func(ctx context.Context) error {
		current, err := s.repo.GetCashCount(ctx, id)
		if err != nil {
			return err
		}
		from = current.Status
		next, err = step(*current)
		if err != nil {
			return err
		}
		return s.repo.UpdateCashCount(ctx, next, current.Version)
	})
	if err != nil {
		return domain.CashCount{}, err
	}

	s.logTransition(workflow.CashCounts.Name(), id, from, next.Status, actor)
	s.logAudit(ctx, "cash_count_"+event, "cash_count", id, fmt.Sprintf("status=%s,version=%d", next.Status, next.Version))
	return next, nil
}

func (s *Service) GetCashCount(ctx context.Context, id string) (domain.CashCount, error) {
	if _, err := requireActor(ctx); err != nil {
		return domain.CashCount{}, err
	}
	cc, err := s.repo.GetCashCount(ctx, id)
	if err != nil {
		return domain.CashCount{}, err
	}
	return *cc, nil
}

func (s *Service) ListCashCounts(ctx context.Context, status string) ([]domain.CashCount, error) {
	if _, err := requireActor(ctx); err != nil {
		return nil, err
	}
	return s.repo.ListCashCounts(ctx, status)
}

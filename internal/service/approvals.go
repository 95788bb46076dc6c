package service

import (
	"context"
	"fmt"

	"kasirkas/backend/internal/domain"
	"kasirkas/backend/internal/lock"
	"kasirkas/backend/internal/workflow"
	"kasirkas/backend/internal/xid"
)

// Balance recomputes a user's commission balance from the full history.
// Users may read their own balance; supervisors may read anyone's.
func (s *Service) Balance(ctx context.Context, userID string) (domain.Balance, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.Balance{}, err
	}
	if actor.ID != userID && !actor.IsSupervisor() {
		return domain.Balance{}, fmt.Errorf("%w: balance of another user", ErrForbidden)
	}
	if _, err := s.repo.GetUser(ctx, userID); err != nil {
		return domain.Balance{}, err
	}
	return s.computeBalance(ctx, userID)
}

func (s *Service) computeBalance(ctx context.Context, userID string) (domain.Balance, error) {
	sales, err := s.repo.ListSales(ctx, domain.SalesFilter{Status: domain.SaleStatusCompleted, SellerID: userID})
	if err != nil {
		return domain.Balance{}, err
	}
	withdrawals, err := s.repo.ListWithdrawals(ctx, domain.RecordFilter{UserID: userID})
	if err != nil {
		return domain.Balance{}, err
	}
	payments, err := s.repo.ListCustomPayments(ctx, domain.RecordFilter{UserID: userID})
	if err != nil {
		return domain.Balance{}, err
	}
	return workflow.ComputeBalance(userID, sales, withdrawals, payments, s.now()), nil
}

// withBalanceLock serialises every operation that commits money against
// userID's balance.
func (s *Service) withBalanceLock(ctx context.Context, userID string, fn func(context.Context) error) error {
	return s.locker.WithLock(ctx, lock.Key("balance", userID), s.lockTTL, fn)
}

func (s *Service) RequestWithdrawal(ctx context.Context, req domain.WithdrawalCreateRequest) (domain.Withdrawal, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.Withdrawal{}, err
	}
	if err := s.check(req); err != nil {
		return domain.Withdrawal{}, err
	}

	var created domain.Withdrawal
	err = s.withBalanceLock(ctx, actor.ID, func(ctx context.Context) error {
		balance, err := s.computeBalance(ctx, actor.ID)
		if err != nil {
			return err
		}
		if err := workflow.CheckWithdrawal(balance, req.AmountCents); err != nil {
			return err
		}
		w, err := workflow.NewWithdrawal(xid.New("wd"), actor, req.AmountCents, req.Notes, s.now())
		if err != nil {
			return err
		}
		if err := s.repo.CreateWithdrawal(ctx, w); err != nil {
			return err
		}
		created = w
		return nil
	})
	s.metrics.ObserveTransition(workflow.Withdrawals.Name(), "create", ErrorCode(err))
	if err != nil {
		return domain.Withdrawal{}, err
	}

	s.logTransition(workflow.Withdrawals.Name(), created.ID, "", created.Status, actor)
	s.logAudit(ctx, "withdrawal_request", "withdrawal", created.ID, fmt.Sprintf("amount=%d", created.AmountCents))
	return created, nil
}

// ApproveWithdrawal re-checks the requester's balance, since other
// withdrawals may have been committed after this one was requested.
func (s *Service) ApproveWithdrawal(ctx context.Context, id string, req domain.TransitionRequest) (domain.Withdrawal, error) {
	return s.advanceWithdrawal(ctx, id, workflow.EventApprove, req)
}

func (s *Service) RejectWithdrawal(ctx context.Context, id string, req domain.TransitionRequest) (domain.Withdrawal, error) {
	return s.advanceWithdrawal(ctx, id, workflow.EventReject, req)
}

func (s *Service) MarkWithdrawalPaid(ctx context.Context, id string, req domain.TransitionRequest) (domain.Withdrawal, error) {
	return s.advanceWithdrawal(ctx, id, workflow.EventPay, req)
}

func (s *Service) ConfirmWithdrawal(ctx context.Context, id string, req domain.TransitionRequest) (domain.Withdrawal, error) {
	return s.advanceWithdrawal(ctx, id, workflow.EventConfirm, req)
}

func (s *Service) advanceWithdrawal(ctx context.Context, id string, event string, req domain.TransitionRequest) (domain.Withdrawal, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.Withdrawal{}, err
	}
	if err := s.check(req); err != nil {
		return domain.Withdrawal{}, err
	}

	var next domain.Withdrawal
	var from string
	err = s.transition(ctx, workflow.Withdrawals.Name(), id, event, func(ctx context.Context) error {
		current, err := s.repo.GetWithdrawal(ctx, id)
		if err != nil {
			return err
		}
		from = current.Status
		next, err = workflow.TransitionWithdrawal(*current, event, actor, req.Expectation, req.Note, s.now())
		if err != nil {
			return err
		}
		if event != workflow.EventApprove {
			return s.repo.UpdateWithdrawal(ctx, next, current.Version)
		}
		return s.withBalanceLock(ctx, current.UserID, func(ctx context.Context) error {
			balance, err := s.computeBalance(ctx, current.UserID)
			if err != nil {
				return err
			}
			if err := workflow.CheckWithdrawal(balance, current.AmountCents); err != nil {
				return err
			}
			return s.repo.UpdateWithdrawal(ctx, next, current.Version)
		})
	})
	if err != nil {
		return domain.Withdrawal{}, err
	}

	s.logTransition(workflow.Withdrawals.Name(), id, from, next.Status, actor)
	s.logAudit(ctx, "withdrawal_"+event, "withdrawal", id, fmt.Sprintf("status=%s,amount=%d", next.Status, next.AmountCents))
	return next, nil
}

// ListWithdrawals shows staff only their own requests.
func (s *Service) ListWithdrawals(ctx context.Context, filter domain.RecordFilter) ([]domain.Withdrawal, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}
	if !actor.IsSupervisor() {
		filter.UserID = actor.ID
	}
	return s.repo.ListWithdrawals(ctx, filter)
}

func (s *Service) GetWithdrawal(ctx context.Context, id string) (domain.Withdrawal, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.Withdrawal{}, err
	}
	w, err := s.repo.GetWithdrawal(ctx, id)
	if err != nil {
		return domain.Withdrawal{}, err
	}
	if !actor.IsSupervisor() && w.UserID != actor.ID {
		return domain.Withdrawal{}, fmt.Errorf("%w: withdrawal of another user", ErrForbidden)
	}
	return *w, nil
}

// CreateCustomPayment raises a payment for a payee, who must accept it
// before it counts against their balance.
func (s *Service) CreateCustomPayment(ctx context.Context, req domain.CustomPaymentCreateRequest) (domain.CustomPayment, error) {
	actor, err := requireSupervisor(ctx)
	if err != nil {
		return domain.CustomPayment{}, err
	}
	if err := s.check(req); err != nil {
		return domain.CustomPayment{}, err
	}
	payee, err := s.repo.GetUser(ctx, req.PayeeID)
	if err != nil {
		return domain.CustomPayment{}, err
	}

	p, err := workflow.NewCustomPayment(xid.New("cp"), actor, workflow.Payee{ID: payee.ID, Name: payee.Name}, req.AmountCents, req.Description, s.now())
	if err != nil {
		return domain.CustomPayment{}, err
	}
	if err := s.repo.CreateCustomPayment(ctx, p); err != nil {
		return domain.CustomPayment{}, err
	}

	s.metrics.ObserveTransition(workflow.CustomPayments.Name(), "create", "ok")
	s.logTransition(workflow.CustomPayments.Name(), p.ID, "", p.Status, actor)
	s.logAudit(ctx, "custom_payment_create", "custom_payment", p.ID, fmt.Sprintf("payee=%s,amount=%d", p.PayeeID, p.AmountCents))
	return p, nil
}

// RespondCustomPayment records the payee's answer. Accepting is not
// balance-checked and may leave the balance negative.
func (s *Service) RespondCustomPayment(ctx context.Context, id string, accept bool, req domain.TransitionRequest) (domain.CustomPayment, error) {
	event := workflow.EventDecline
	if accept {
		event = workflow.EventAccept
	}
	return s.advanceCustomPayment(ctx, id, event, req)
}

func (s *Service) MarkCustomPaymentPaid(ctx context.Context, id string, req domain.TransitionRequest) (domain.CustomPayment, error) {
	return s.advanceCustomPayment(ctx, id, workflow.EventPay, req)
}

func (s *Service) ConfirmCustomPayment(ctx context.Context, id string, req domain.TransitionRequest) (domain.CustomPayment, error) {
	return s.advanceCustomPayment(ctx, id, workflow.EventConfirm, req)
}

func (s *Service) advanceCustomPayment(ctx context.Context, id string, event string, req domain.TransitionRequest) (domain.CustomPayment, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.CustomPayment{}, err
	}
	if err := s.check(req); err != nil {
		return domain.CustomPayment{}, err
	}

	var next domain.CustomPayment
	var from string
	err = s.transition(ctx, workflow.CustomPayments.Name(), id, event, func(ctx context.Context) error {
		current, err := s.repo.GetCustomPayment(ctx, id)
		if err != nil {
			return err
		}
		from = current.Status
		next, err = workflow.TransitionCustomPayment(*current, event, actor, req.Expectation, req.Note, s.now())
		if err != nil {
			return err
		}
		return s.repo.UpdateCustomPayment(ctx, next, current.Version)
	})
	if err != nil {
		return domain.CustomPayment{}, err
	}

	s.logTransition(workflow.CustomPayments.Name(), id, from, next.Status, actor)
	s.logAudit(ctx, "custom_payment_"+event, "custom_payment", id, fmt.Sprintf("status=%s,amount=%d", next.Status, next.AmountCents))
	return next, nil
}

// ListCustomPayments shows staff only the payments addressed to them.
func (s *Service) ListCustomPayments(ctx context.Context, filter domain.RecordFilter) ([]domain.CustomPayment, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}
	if !actor.IsSupervisor() {
		filter.UserID = actor.ID
	}
	return s.repo.ListCustomPayments(ctx, filter)
}

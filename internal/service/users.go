package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"kasirkas/backend/internal/domain"
	"kasirkas/backend/internal/store"
	"kasirkas/backend/internal/workflow"
)

func (s *Service) ListUsers(ctx context.Context) ([]domain.UserAccount, error) {
	if _, err := requireSupervisor(ctx); err != nil {
		return nil, err
	}
	return s.repo.ListUsers(ctx)
}

// CreateUser adds a manager or staff account. The username becomes the
// user id and is stored lowercased.
func (s *Service) CreateUser(ctx context.Context, req domain.UserCreateRequest) (domain.UserAccount, error) {
	if _, err := requireOwner(ctx); err != nil {
		return domain.UserAccount{}, err
	}
	if err := s.check(req); err != nil {
		return domain.UserAccount{}, err
	}

	id := strings.ToLower(strings.TrimSpace(req.Username))
	if _, err := s.repo.GetUser(ctx, id); err == nil {
		return domain.UserAccount{}, fmt.Errorf("%w: username already exists", workflow.ErrInvalidInput)
	} else if !errors.Is(err, store.ErrNotFound) {
		return domain.UserAccount{}, err
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return domain.UserAccount{}, fmt.Errorf("hash password: %w", err)
	}
	user := domain.UserAccount{
		ID:        id,
		Name:      strings.TrimSpace(req.Name),
		Password:  string(hashed),
		Role:      req.Role,
		Active:    true,
		CreatedAt: s.now(),
	}
	if err := s.repo.CreateUser(ctx, user); err != nil {
		return domain.UserAccount{}, err
	}

	s.logAudit(ctx, "user_create", "user", user.ID, "role="+user.Role)
	user.Password = ""
	return user, nil
}

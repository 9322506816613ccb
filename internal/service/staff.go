package service

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"gomhangpro/backend/internal/domain"
	"gomhangpro/backend/internal/store"
)

func validRole(role string) bool {
	switch role {
	case domain.RoleWorker, domain.RoleManager, domain.RoleAdmin:
		return true
	}
	return false
}

func (s *Service) ListStaff(ctx context.Context) ([]domain.UserAccount, error) {
	if _, err := requireRole(ctx, domain.RoleManager); err != nil {
		return nil, err
	}
	return s.repo.ListUsers(ctx)
}

func (s *Service) GetStaff(ctx context.Context, id string) (domain.UserAccount, error) {
	if _, err := requireRole(ctx, domain.RoleManager); err != nil {
		return domain.UserAccount{}, err
	}
	user, err := s.repo.GetUserByID(ctx, id)
	if err != nil {
		return domain.UserAccount{}, err
	}
	return *user, nil
}

func (s *Service) CreateStaff(ctx context.Context, req domain.StaffCreateRequest) (domain.UserAccount, error) {
	if _, err := requireRole(ctx, domain.RoleAdmin); err != nil {
		return domain.UserAccount{}, err
	}

	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Role = strings.TrimSpace(req.Role)
	if req.Name == "" || req.Email == "" {
		return domain.UserAccount{}, fmt.Errorf("%w: name and email required", store.ErrInvalid)
	}
	if !validRole(req.Role) {
		return domain.UserAccount{}, fmt.Errorf("%w: unknown role %q", store.ErrInvalid, req.Role)
	}
	if len(req.Password) < 8 {
		return domain.UserAccount{}, fmt.Errorf("%w: password must be at least 8 characters", store.ErrInvalid)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return domain.UserAccount{}, fmt.Errorf("hash password: %w", err)
	}
	created, err := s.repo.CreateUser(ctx, domain.UserAccount{
		Name:         req.Name,
		Email:        req.Email,
		Phone:        strings.TrimSpace(req.Phone),
		Role:         req.Role,
		Active:       true,
		PasswordHash: string(hash),
		CreatedAt:    s.now(),
	})
	if err != nil {
		return domain.UserAccount{}, err
	}
	return *created, nil
}

func (s *Service) UpdateStaff(ctx context.Context, id string, req domain.StaffUpdateRequest) (domain.UserAccount, error) {
	if _, err := requireRole(ctx, domain.RoleAdmin); err != nil {
		return domain.UserAccount{}, err
	}

	existing, err := s.repo.GetUserByID(ctx, id)
	if err != nil {
		return domain.UserAccount{}, err
	}
	updated := *existing
	if req.Name != nil {
		name := strings.TrimSpace(*req.Name)
		if name == "" {
			return domain.UserAccount{}, fmt.Errorf("%w: name must not be empty", store.ErrInvalid)
		}
		updated.Name = name
	}
	if req.Phone != nil {
		updated.Phone = strings.TrimSpace(*req.Phone)
	}
	if req.Role != nil {
		if !validRole(*req.Role) {
			return domain.UserAccount{}, fmt.Errorf("%w: unknown role %q", store.ErrInvalid, *req.Role)
		}
		updated.Role = *req.Role
	}
	if req.Active != nil {
		updated.Active = *req.Active
	}
	if req.Password != nil {
		if len(*req.Password) < 8 {
			return domain.UserAccount{}, fmt.Errorf("%w: password must be at least 8 characters", store.ErrInvalid)
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(*req.Password), bcrypt.DefaultCost)
		if err != nil {
			return domain.UserAccount{}, fmt.Errorf("hash password: %w", err)
		}
		updated.PasswordHash = string(hash)
	}

	saved, err := s.repo.UpdateUser(ctx, updated)
	if err != nil {
		return domain.UserAccount{}, err
	}
	return *saved, nil
}

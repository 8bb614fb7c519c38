package user

import (
	"context"
	"errors"
	"log/slog"

	"github.com/frahmantamala/authcore/internal"
	"github.com/frahmantamala/authcore/internal/auth"
	userDatamodel "github.com/frahmantamala/authcore/internal/core/datamodel/user"
)

type Service struct {
	repo     Repository
	hasher   auth.PasswordHasher
	resolver *auth.PermissionResolver
	logger   *slog.Logger
}

func NewService(repo Repository, hasher auth.PasswordHasher, resolver *auth.PermissionResolver, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:     repo,
		hasher:   hasher,
		resolver: resolver,
		logger:   logger,
	}
}

func (s *Service) GetByID(ctx context.Context, id int64) (*User, error) {
	u, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, s.mapError("get user", err)
	}
	return FromDataModel(u, s.resolver), nil
}

func (s *Service) Create(ctx context.Context, dto CreateUserDTO) (*User, error) {
	dto.Normalize()
	if appErr := dto.Validate(); appErr != nil {
		return nil, appErr
	}

	hash, err := s.hasher.Hash(dto.Password)
	if err != nil {
		return nil, err
	}

	u := &userDatamodel.User{
		Username:     dto.Username,
		FullName:     dto.FullName,
		PasswordHash: hash,
		IsActive:     !dto.Inactive,
	}
	if dto.Email != "" {
		email := dto.Email
		u.Email = &email
	}

	if err := s.repo.Create(ctx, u, dto.Roles); err != nil {
		return nil, s.mapError("create user", err)
	}
	s.logger.Info("user created", "user_id", u.ID, "username", u.Username, "roles", dto.Roles)

	return s.GetByID(ctx, u.ID)
}

func (s *Service) Activate(ctx context.Context, id int64) (*User, error) {
	return s.setActive(ctx, id, true)
}

func (s *Service) Deactivate(ctx context.Context, id int64) (*User, error) {
	return s.setActive(ctx, id, false)
}

func (s *Service) setActive(ctx context.Context, id int64, active bool) (*User, error) {
	if err := s.repo.SetActive(ctx, id, active); err != nil {
		return nil, s.mapError("set active", err)
	}
	s.logger.Info("user active flag changed", "user_id", id, "is_active", active)
	return s.GetByID(ctx, id)
}

func (s *Service) AssignRole(ctx context.Context, id int64, roleName string) (*User, error) {
	if err := s.repo.AssignRole(ctx, id, roleName); err != nil {
		return nil, s.mapError("assign role", err)
	}
	s.logger.Info("role assigned", "user_id", id, "role", roleName)
	return s.GetByID(ctx, id)
}

func (s *Service) RemoveRole(ctx context.Context, id int64, roleName string) (*User, error) {
	if err := s.repo.RemoveRole(ctx, id, roleName); err != nil {
		return nil, s.mapError("remove role", err)
	}
	s.logger.Info("role removed", "user_id", id, "role", roleName)
	return s.GetByID(ctx, id)
}

// mapError passes domain errors through and wraps everything else as internal.
func (s *Service) mapError(op string, err error) error {
	if _, ok := internal.IsAppError(err); ok {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return internal.NewInternalError("request cancelled", err)
	}
	s.logger.Error("user store failure", "op", op, "error", err)
	return internal.NewInternalError("failed to "+op, err)
}

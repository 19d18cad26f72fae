package service

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"budgetflow/internal/apperrors"
	"budgetflow/internal/model"
	"budgetflow/internal/policy"
	"budgetflow/internal/repository"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// DTOs for Request validation
type CreateUserRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required,min=6"`
	Role     string `json:"role" binding:"required,oneof=admin employee"`
}

type UpdateUserRequest struct {
	Username string `json:"username"`
	Password string `json:"password" binding:"omitempty,min=6"` // empty keeps the current password
	Role     string `json:"role" binding:"omitempty,oneof=admin employee"`
}

type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type TokenResponse struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refresh_token"`
}

// DTO for returning User without exposing sensitive data (e.g. password hash)
type UserResponse struct {
	ID        uuid.UUID `json:"id"`
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	CreatedAt string    `json:"created_at"`
	UpdatedAt string    `json:"updated_at"`
}

// UserService is the account registry: login/session issuance plus admin-only
// account management under the "at least one admin" invariant.
type UserService interface {
	Login(ctx context.Context, req LoginRequest) (*TokenResponse, error)
	Refresh(ctx context.Context, refreshToken string) (*TokenResponse, error)
	Logout(ctx context.Context, refreshToken string) error
	GetUserByID(ctx context.Context, id uuid.UUID) (*UserResponse, error)

	CreateUser(ctx context.Context, actor policy.Identity, req CreateUserRequest) (*UserResponse, error)
	ListUsers(ctx context.Context, actor policy.Identity) ([]UserResponse, error)
	UpdateUser(ctx context.Context, actor policy.Identity, id uuid.UUID, req UpdateUserRequest) (*UserResponse, error)
	DeleteUser(ctx context.Context, actor policy.Identity, id uuid.UUID) error

	// EnsureAdmin seeds an admin account when none exists, so the system
	// never starts without one.
	EnsureAdmin(ctx context.Context, username, password string) error
}

type userService struct {
	repo      repository.UserRepository
	txManager repository.TransactionManager
}

// NewUserService returns a new instance of UserService
func NewUserService(repo repository.UserRepository, txManager repository.TransactionManager) UserService {
	return &userService{repo: repo, txManager: txManager}
}

// Helper: parse model to standard json API response
func mapToUserResponse(user *model.User) *UserResponse {
	return &UserResponse{
		ID:        user.ID,
		Username:  user.Username,
		Role:      user.Role,
		CreatedAt: user.CreatedAt.Format(time.RFC3339),
		UpdatedAt: user.UpdatedAt.Format(time.RFC3339),
	}
}

func jwtSecret() []byte {
	// Same fallback strategy as the auth middleware
	secret := os.Getenv("JWT_SECRET")
	if secret == "" {
		secret = "default_super_secret_key"
	}
	return []byte(secret)
}

func (s *userService) issueTokens(ctx context.Context, user *model.User) (*TokenResponse, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":  user.ID.String(),
		"role": user.Role,
		"exp":  time.Now().Add(24 * time.Hour).Unix(),
	})
	tokenString, err := token.SignedString(jwtSecret())
	if err != nil {
		return nil, fmt.Errorf("failed to sign access token: %w", err)
	}

	refresh := &model.RefreshToken{
		UserID:    user.ID,
		Token:     uuid.NewString(),
		ExpiresAt: time.Now().Add(7 * 24 * time.Hour),
	}
	if err := s.repo.SaveRefreshToken(ctx, refresh); err != nil {
		return nil, fmt.Errorf("failed to store refresh token: %w", err)
	}

	return &TokenResponse{Token: tokenString, RefreshToken: refresh.Token}, nil
}

func (s *userService) Login(ctx context.Context, req LoginRequest) (*TokenResponse, error) {
	user, err := s.repo.GetByUsername(ctx, req.Username)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid username or password", apperrors.ErrUnauthorized)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		return nil, fmt.Errorf("%w: invalid username or password", apperrors.ErrUnauthorized)
	}
	return s.issueTokens(ctx, user)
}

func (s *userService) Refresh(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	stored, err := s.repo.GetRefreshToken(ctx, refreshToken)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid refresh token", apperrors.ErrUnauthorized)
	}

	user, err := s.repo.GetByID(ctx, stored.UserID)
	if err != nil {
		return nil, fmt.Errorf("%w: account no longer exists", apperrors.ErrUnauthorized)
	}

	// Rotate: revoke the presented token before issuing a new pair
	if err := s.repo.DeleteRefreshToken(ctx, refreshToken); err != nil {
		return nil, fmt.Errorf("failed to rotate refresh token: %w", err)
	}
	return s.issueTokens(ctx, user)
}

func (s *userService) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	return s.repo.DeleteRefreshToken(ctx, refreshToken)
}

func (s *userService) GetUserByID(ctx context.Context, id uuid.UUID) (*UserResponse, error) {
	user, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return mapToUserResponse(user), nil
}

func (s *userService) CreateUser(ctx context.Context, actor policy.Identity, req CreateUserRequest) (*UserResponse, error) {
	if !policy.Allow(actor.Role, policy.ActionManageAccounts) {
		return nil, fmt.Errorf("%w: only admins manage accounts", apperrors.ErrForbidden)
	}

	username := strings.TrimSpace(req.Username)
	if username == "" {
		return nil, fmt.Errorf("%w: username must not be empty", apperrors.ErrValidation)
	}
	if !model.ValidRole(req.Role) {
		return nil, fmt.Errorf("%w: role must be admin or employee", apperrors.ErrValidation)
	}

	if _, err := s.repo.GetByUsername(ctx, username); err == nil {
		return nil, fmt.Errorf("%w: username %q", apperrors.ErrDuplicate, username)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &model.User{
		Username: username,
		Password: string(hashed),
		Role:     req.Role,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, err
	}

	return mapToUserResponse(user), nil
}

func (s *userService) ListUsers(ctx context.Context, actor policy.Identity) ([]UserResponse, error) {
	if !policy.Allow(actor.Role, policy.ActionManageAccounts) {
		return nil, fmt.Errorf("%w: only admins manage accounts", apperrors.ErrForbidden)
	}

	users, err := s.repo.List(ctx)
	if err != nil {
		return nil, err
	}

	responses := make([]UserResponse, 0, len(users))
	for _, u := range users {
		responses = append(responses, *mapToUserResponse(&u))
	}
	return responses, nil
}

func (s *userService) UpdateUser(ctx context.Context, actor policy.Identity, id uuid.UUID, req UpdateUserRequest) (*UserResponse, error) {
	if !policy.Allow(actor.Role, policy.ActionManageAccounts) {
		return nil, fmt.Errorf("%w: only admins manage accounts", apperrors.ErrForbidden)
	}
	if req.Role != "" && !model.ValidRole(req.Role) {
		return nil, fmt.Errorf("%w: role must be admin or employee", apperrors.ErrValidation)
	}

	var user *model.User
	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.repo.LockRegistry(txCtx); err != nil {
			return err
		}

		var err error
		user, err = s.repo.GetByID(txCtx, id)
		if err != nil {
			return err
		}

		if req.Role != "" && req.Role != user.Role {
			if user.Role == model.RoleAdmin {
				remaining, countErr := s.repo.CountAdmins(txCtx, user.ID)
				if countErr != nil {
					return countErr
				}
				if remaining == 0 {
					return fmt.Errorf("%w: cannot demote the sole admin", apperrors.ErrLastAdmin)
				}
			}
			user.Role = req.Role
		}

		if username := strings.TrimSpace(req.Username); username != "" && username != user.Username {
			if _, err := s.repo.GetByUsername(txCtx, username); err == nil {
				return fmt.Errorf("%w: username %q", apperrors.ErrDuplicate, username)
			}
			user.Username = username
		}

		if req.Password != "" {
			hashed, hashErr := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
			if hashErr != nil {
				return fmt.Errorf("failed to hash password: %w", hashErr)
			}
			user.Password = string(hashed)
		}

		return s.repo.Update(txCtx, user)
	})
	if err != nil {
		return nil, err
	}

	return mapToUserResponse(user), nil
}

func (s *userService) DeleteUser(ctx context.Context, actor policy.Identity, id uuid.UUID) error {
	if !policy.Allow(actor.Role, policy.ActionManageAccounts) {
		return fmt.Errorf("%w: only admins manage accounts", apperrors.ErrForbidden)
	}
	if actor.UserID == id {
		return fmt.Errorf("%w: cannot delete your own account", apperrors.ErrForbidden)
	}

	return s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.repo.LockRegistry(txCtx); err != nil {
			return err
		}

		target, err := s.repo.GetByID(txCtx, id)
		if err != nil {
			return err
		}

		if target.Role == model.RoleAdmin {
			remaining, countErr := s.repo.CountAdmins(txCtx, target.ID)
			if countErr != nil {
				return countErr
			}
			if remaining == 0 {
				return fmt.Errorf("%w: cannot delete the sole admin", apperrors.ErrLastAdmin)
			}
		}

		return s.repo.Delete(txCtx, target.ID)
	})
}

func (s *userService) EnsureAdmin(ctx context.Context, username, password string) error {
	return s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.repo.LockRegistry(txCtx); err != nil {
			return err
		}

		count, err := s.repo.CountAdmins(txCtx, uuid.Nil)
		if err != nil {
			return err
		}
		if count > 0 {
			return nil
		}

		hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("failed to hash password: %w", err)
		}
		return s.repo.Create(txCtx, &model.User{
			Username: username,
			Password: string(hashed),
			Role:     model.RoleAdmin,
		})
	})
}

package service_test

import (
	"context"
	"fmt"
	"testing"

	"budgetflow/internal/apperrors"
	"budgetflow/internal/model"
	"budgetflow/internal/policy"
	"budgetflow/internal/service"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// --- Fake UserRepository (based on UserService usage) ---

type fakeUserRepo struct {
	CreateFn             func(ctx context.Context, user *model.User) error
	GetByIDFn            func(ctx context.Context, id uuid.UUID) (*model.User, error)
	GetByUsernameFn      func(ctx context.Context, username string) (*model.User, error)
	ListFn               func(ctx context.Context) ([]model.User, error)
	UpdateFn             func(ctx context.Context, user *model.User) error
	DeleteFn             func(ctx context.Context, id uuid.UUID) error
	CountAdminsFn        func(ctx context.Context, exclude uuid.UUID) (int64, error)
	SaveRefreshTokenFn   func(ctx context.Context, token *model.RefreshToken) error
	GetRefreshTokenFn    func(ctx context.Context, token string) (*model.RefreshToken, error)
	DeleteRefreshTokenFn func(ctx context.Context, token string) error
}

func (f *fakeUserRepo) Create(ctx context.Context, user *model.User) error {
	if f.CreateFn != nil {
		return f.CreateFn(ctx, user)
	}
	return nil
}

func (f *fakeUserRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	if f.GetByIDFn != nil {
		return f.GetByIDFn(ctx, id)
	}
	return nil, fmt.Errorf("user %s: %w", id, apperrors.ErrNotFound)
}

func (f *fakeUserRepo) GetByUsername(ctx context.Context, username string) (*model.User, error) {
	if f.GetByUsernameFn != nil {
		return f.GetByUsernameFn(ctx, username)
	}
	return nil, fmt.Errorf("user %q: %w", username, apperrors.ErrNotFound)
}

func (f *fakeUserRepo) List(ctx context.Context) ([]model.User, error) {
	if f.ListFn != nil {
		return f.ListFn(ctx)
	}
	return nil, nil
}

func (f *fakeUserRepo) Update(ctx context.Context, user *model.User) error {
	if f.UpdateFn != nil {
		return f.UpdateFn(ctx, user)
	}
	return nil
}

func (f *fakeUserRepo) Delete(ctx context.Context, id uuid.UUID) error {
	if f.DeleteFn != nil {
		return f.DeleteFn(ctx, id)
	}
	return nil
}

func (f *fakeUserRepo) CountAdmins(ctx context.Context, exclude uuid.UUID) (int64, error) {
	if f.CountAdminsFn != nil {
		return f.CountAdminsFn(ctx, exclude)
	}
	return 0, nil
}

func (f *fakeUserRepo) LockRegistry(ctx context.Context) error { return nil }

func (f *fakeUserRepo) SaveRefreshToken(ctx context.Context, token *model.RefreshToken) error {
	if f.SaveRefreshTokenFn != nil {
		return f.SaveRefreshTokenFn(ctx, token)
	}
	return nil
}

func (f *fakeUserRepo) GetRefreshToken(ctx context.Context, token string) (*model.RefreshToken, error) {
	if f.GetRefreshTokenFn != nil {
		return f.GetRefreshTokenFn(ctx, token)
	}
	return nil, fmt.Errorf("refresh token: %w", apperrors.ErrNotFound)
}

func (f *fakeUserRepo) DeleteRefreshToken(ctx context.Context, token string) error {
	if f.DeleteRefreshTokenFn != nil {
		return f.DeleteRefreshTokenFn(ctx, token)
	}
	return nil
}

type fakeTxManager struct{}

func (fakeTxManager) RunInTx(ctx context.Context, fn func(txCtx context.Context) error) error {
	return fn(ctx)
}

func adminIdentity() policy.Identity {
	return policy.Identity{UserID: uuid.New(), Role: model.RoleAdmin}
}

func employeeIdentity() policy.Identity {
	return policy.Identity{UserID: uuid.New(), Role: model.RoleEmployee}
}

// --- Tests ---

func TestCreateUser(t *testing.T) {
	t.Run("admin creates an employee with hashed password", func(t *testing.T) {
		var created *model.User
		repo := &fakeUserRepo{
			CreateFn: func(ctx context.Context, user *model.User) error {
				created = user
				return nil
			},
		}
		svc := service.NewUserService(repo, fakeTxManager{})

		resp, err := svc.CreateUser(context.Background(), adminIdentity(), service.CreateUserRequest{
			Username: "bob",
			Password: "secret123",
			Role:     model.RoleEmployee,
		})
		require.NoError(t, err)
		require.NotNil(t, created)

		assert.Equal(t, "bob", resp.Username)
		assert.Equal(t, model.RoleEmployee, resp.Role)
		assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(created.Password), []byte("secret123")))
		assert.NotEqual(t, "secret123", created.Password)
	})

	t.Run("duplicate username conflicts", func(t *testing.T) {
		repo := &fakeUserRepo{
			GetByUsernameFn: func(ctx context.Context, username string) (*model.User, error) {
				return &model.User{ID: uuid.New(), Username: username}, nil
			},
		}
		svc := service.NewUserService(repo, fakeTxManager{})

		_, err := svc.CreateUser(context.Background(), adminIdentity(), service.CreateUserRequest{
			Username: "bob", Password: "secret123", Role: model.RoleEmployee,
		})
		assert.ErrorIs(t, err, apperrors.ErrDuplicate)
	})

	t.Run("employee is forbidden", func(t *testing.T) {
		svc := service.NewUserService(&fakeUserRepo{}, fakeTxManager{})

		_, err := svc.CreateUser(context.Background(), employeeIdentity(), service.CreateUserRequest{
			Username: "eve", Password: "secret123", Role: model.RoleEmployee,
		})
		assert.ErrorIs(t, err, apperrors.ErrForbidden)
	})

	t.Run("unknown role is rejected", func(t *testing.T) {
		svc := service.NewUserService(&fakeUserRepo{}, fakeTxManager{})

		_, err := svc.CreateUser(context.Background(), adminIdentity(), service.CreateUserRequest{
			Username: "eve", Password: "secret123", Role: "superuser",
		})
		assert.ErrorIs(t, err, apperrors.ErrValidation)
	})
}

func TestLogin(t *testing.T) {
	hashed, err := bcrypt.GenerateFromPassword([]byte("secret123"), bcrypt.DefaultCost)
	require.NoError(t, err)
	alice := &model.User{ID: uuid.New(), Username: "alice", Password: string(hashed), Role: model.RoleAdmin}

	repo := &fakeUserRepo{
		GetByUsernameFn: func(ctx context.Context, username string) (*model.User, error) {
			if username == "alice" {
				return alice, nil
			}
			return nil, fmt.Errorf("user %q: %w", username, apperrors.ErrNotFound)
		},
	}
	svc := service.NewUserService(repo, fakeTxManager{})

	t.Run("valid credentials issue tokens", func(t *testing.T) {
		tokens, err := svc.Login(context.Background(), service.LoginRequest{Username: "alice", Password: "secret123"})
		require.NoError(t, err)
		assert.NotEmpty(t, tokens.Token)
		assert.NotEmpty(t, tokens.RefreshToken)
	})

	t.Run("wrong password is unauthorized", func(t *testing.T) {
		_, err := svc.Login(context.Background(), service.LoginRequest{Username: "alice", Password: "nope"})
		assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
	})

	t.Run("unknown user is unauthorized", func(t *testing.T) {
		_, err := svc.Login(context.Background(), service.LoginRequest{Username: "mallory", Password: "secret123"})
		assert.ErrorIs(t, err, apperrors.ErrUnauthorized)
	})
}

func TestDeleteUser(t *testing.T) {
	t.Run("self deletion is forbidden even for the sole admin", func(t *testing.T) {
		actor := adminIdentity()
		deleted := false
		repo := &fakeUserRepo{
			DeleteFn: func(ctx context.Context, id uuid.UUID) error {
				deleted = true
				return nil
			},
		}
		svc := service.NewUserService(repo, fakeTxManager{})

		err := svc.DeleteUser(context.Background(), actor, actor.UserID)
		assert.ErrorIs(t, err, apperrors.ErrForbidden)
		assert.False(t, deleted)
	})

	t.Run("deleting the last admin violates the invariant", func(t *testing.T) {
		target := &model.User{ID: uuid.New(), Username: "carol", Role: model.RoleAdmin}
		deleted := false
		repo := &fakeUserRepo{
			GetByIDFn: func(ctx context.Context, id uuid.UUID) (*model.User, error) {
				return target, nil
			},
			CountAdminsFn: func(ctx context.Context, exclude uuid.UUID) (int64, error) {
				assert.Equal(t, target.ID, exclude)
				return 0, nil
			},
			DeleteFn: func(ctx context.Context, id uuid.UUID) error {
				deleted = true
				return nil
			},
		}
		svc := service.NewUserService(repo, fakeTxManager{})

		err := svc.DeleteUser(context.Background(), adminIdentity(), target.ID)
		assert.ErrorIs(t, err, apperrors.ErrLastAdmin)
		assert.False(t, deleted)
	})

	t.Run("deleting an admin succeeds while another remains", func(t *testing.T) {
		target := &model.User{ID: uuid.New(), Username: "alice", Role: model.RoleAdmin}
		deleted := false
		repo := &fakeUserRepo{
			GetByIDFn: func(ctx context.Context, id uuid.UUID) (*model.User, error) {
				return target, nil
			},
			CountAdminsFn: func(ctx context.Context, exclude uuid.UUID) (int64, error) {
				return 1, nil
			},
			DeleteFn: func(ctx context.Context, id uuid.UUID) error {
				deleted = true
				return nil
			},
		}
		svc := service.NewUserService(repo, fakeTxManager{})

		require.NoError(t, svc.DeleteUser(context.Background(), adminIdentity(), target.ID))
		assert.True(t, deleted)
	})

	t.Run("a deletion sequence never empties the admin set", func(t *testing.T) {
		// Stateful fake: two admins, delete one, then try the other
		actor := adminIdentity()
		users := map[uuid.UUID]*model.User{}
		alice := &model.User{ID: uuid.New(), Username: "alice", Role: model.RoleAdmin}
		carol := &model.User{ID: uuid.New(), Username: "carol", Role: model.RoleAdmin}
		users[alice.ID] = alice
		users[carol.ID] = carol

		repo := &fakeUserRepo{
			GetByIDFn: func(ctx context.Context, id uuid.UUID) (*model.User, error) {
				if u, ok := users[id]; ok {
					return u, nil
				}
				return nil, fmt.Errorf("user %s: %w", id, apperrors.ErrNotFound)
			},
			CountAdminsFn: func(ctx context.Context, exclude uuid.UUID) (int64, error) {
				var n int64
				for id, u := range users {
					if u.Role == model.RoleAdmin && id != exclude {
						n++
					}
				}
				return n, nil
			},
			DeleteFn: func(ctx context.Context, id uuid.UUID) error {
				delete(users, id)
				return nil
			},
		}
		svc := service.NewUserService(repo, fakeTxManager{})

		require.NoError(t, svc.DeleteUser(context.Background(), actor, alice.ID))
		assert.NotContains(t, users, alice.ID)

		err := svc.DeleteUser(context.Background(), actor, carol.ID)
		assert.ErrorIs(t, err, apperrors.ErrLastAdmin)
		assert.Contains(t, users, carol.ID)
	})
}

func TestUpdateUser(t *testing.T) {
	t.Run("demoting the sole admin violates the invariant", func(t *testing.T) {
		target := &model.User{ID: uuid.New(), Username: "alice", Role: model.RoleAdmin}
		repo := &fakeUserRepo{
			GetByIDFn: func(ctx context.Context, id uuid.UUID) (*model.User, error) {
				return target, nil
			},
			CountAdminsFn: func(ctx context.Context, exclude uuid.UUID) (int64, error) {
				return 0, nil
			},
		}
		svc := service.NewUserService(repo, fakeTxManager{})

		_, err := svc.UpdateUser(context.Background(), adminIdentity(), target.ID, service.UpdateUserRequest{
			Role: model.RoleEmployee,
		})
		assert.ErrorIs(t, err, apperrors.ErrLastAdmin)
	})

	t.Run("renaming to a taken username conflicts", func(t *testing.T) {
		target := &model.User{ID: uuid.New(), Username: "bob", Role: model.RoleEmployee}
		repo := &fakeUserRepo{
			GetByIDFn: func(ctx context.Context, id uuid.UUID) (*model.User, error) {
				return target, nil
			},
			GetByUsernameFn: func(ctx context.Context, username string) (*model.User, error) {
				return &model.User{ID: uuid.New(), Username: username}, nil
			},
		}
		svc := service.NewUserService(repo, fakeTxManager{})

		_, err := svc.UpdateUser(context.Background(), adminIdentity(), target.ID, service.UpdateUserRequest{
			Username: "alice",
		})
		assert.ErrorIs(t, err, apperrors.ErrDuplicate)
	})

	t.Run("password change rehashes", func(t *testing.T) {
		target := &model.User{ID: uuid.New(), Username: "bob", Role: model.RoleEmployee, Password: "old-hash"}
		var saved *model.User
		repo := &fakeUserRepo{
			GetByIDFn: func(ctx context.Context, id uuid.UUID) (*model.User, error) {
				return target, nil
			},
			UpdateFn: func(ctx context.Context, user *model.User) error {
				saved = user
				return nil
			},
		}
		svc := service.NewUserService(repo, fakeTxManager{})

		_, err := svc.UpdateUser(context.Background(), adminIdentity(), target.ID, service.UpdateUserRequest{
			Password: "brand-new-pass",
		})
		require.NoError(t, err)
		require.NotNil(t, saved)
		assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(saved.Password), []byte("brand-new-pass")))
	})
}

func TestEnsureAdmin(t *testing.T) {
	t.Run("seeds an admin when none exists", func(t *testing.T) {
		var created *model.User
		repo := &fakeUserRepo{
			CountAdminsFn: func(ctx context.Context, exclude uuid.UUID) (int64, error) {
				return 0, nil
			},
			CreateFn: func(ctx context.Context, user *model.User) error {
				created = user
				return nil
			},
		}
		svc := service.NewUserService(repo, fakeTxManager{})

		require.NoError(t, svc.EnsureAdmin(context.Background(), "admin", "admin123"))
		require.NotNil(t, created)
		assert.Equal(t, model.RoleAdmin, created.Role)
		assert.Equal(t, "admin", created.Username)
	})

	t.Run("does nothing when an admin exists", func(t *testing.T) {
		created := false
		repo := &fakeUserRepo{
			CountAdminsFn: func(ctx context.Context, exclude uuid.UUID) (int64, error) {
				return 1, nil
			},
			CreateFn: func(ctx context.Context, user *model.User) error {
				created = true
				return nil
			},
		}
		svc := service.NewUserService(repo, fakeTxManager{})

		require.NoError(t, svc.EnsureAdmin(context.Background(), "admin", "admin123"))
		assert.False(t, created)
	})
}

package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"budgetflow/internal/apperrors"
	"budgetflow/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RequestRepository defines the interface for data access of BudgetRequest
// entities.
type RequestRepository interface {
	Create(ctx context.Context, req *model.BudgetRequest) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.BudgetRequest, error)
	FindByIDWithRelations(ctx context.Context, id uuid.UUID) (*model.BudgetRequest, error)
	ListAll(ctx context.Context) ([]model.BudgetRequest, error)
	ListByOwner(ctx context.Context, owner uuid.UUID) ([]model.BudgetRequest, error)

	// SetStatusIfPending atomically moves a request out of PENDING, stamping
	// who decided and when. Returns false when the request was not pending
	// (or does not exist); the caller disambiguates.
	SetStatusIfPending(ctx context.Context, id uuid.UUID, status string, decidedBy uuid.UUID, decidedAt time.Time) (bool, error)
	SetTransferProof(ctx context.Context, id uuid.UUID, ref string) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type requestRepository struct {
	db *gorm.DB
}

func NewRequestRepository(db *gorm.DB) RequestRepository {
	return &requestRepository{db: db}
}

func (r *requestRepository) Create(ctx context.Context, req *model.BudgetRequest) error {
	return GetDB(ctx, r.db).Create(req).Error
}

func (r *requestRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.BudgetRequest, error) {
	var req model.BudgetRequest
	if err := GetDB(ctx, r.db).First(&req, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("request %s: %w", id, apperrors.ErrNotFound)
		}
		return nil, err
	}
	return &req, nil
}

func (r *requestRepository) FindByIDWithRelations(ctx context.Context, id uuid.UUID) (*model.BudgetRequest, error) {
	var req model.BudgetRequest
	err := GetDB(ctx, r.db).Preload("Owner").Preload("Decider").First(&req, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("request %s: %w", id, apperrors.ErrNotFound)
		}
		return nil, err
	}
	return &req, nil
}

func (r *requestRepository) ListAll(ctx context.Context) ([]model.BudgetRequest, error) {
	var requests []model.BudgetRequest
	// Newest first; ties broken by id for a deterministic order
	err := GetDB(ctx, r.db).Preload("Owner").Preload("Decider").
		Order("created_at DESC, id ASC").
		Find(&requests).Error
	if err != nil {
		return nil, err
	}
	return requests, nil
}

func (r *requestRepository) ListByOwner(ctx context.Context, owner uuid.UUID) ([]model.BudgetRequest, error) {
	var requests []model.BudgetRequest
	err := GetDB(ctx, r.db).Preload("Decider").
		Where("user_id = ?", owner).
		Order("created_at DESC, id ASC").
		Find(&requests).Error
	if err != nil {
		return nil, err
	}
	return requests, nil
}

func (r *requestRepository) SetStatusIfPending(ctx context.Context, id uuid.UUID, status string, decidedBy uuid.UUID, decidedAt time.Time) (bool, error) {
	res := GetDB(ctx, r.db).Model(&model.BudgetRequest{}).
		Where("id = ? AND status = ?", id, model.StatusPending).
		Updates(map[string]interface{}{
			"status":     status,
			"decided_by": decidedBy,
			"decided_at": decidedAt,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *requestRepository) SetTransferProof(ctx context.Context, id uuid.UUID, ref string) error {
	res := GetDB(ctx, r.db).Model(&model.BudgetRequest{}).
		Where("id = ?", id).
		Update("transfer_proof_path", ref)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("request %s: %w", id, apperrors.ErrNotFound)
	}
	return nil
}

func (r *requestRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res := GetDB(ctx, r.db).Where("id = ?", id).Delete(&model.BudgetRequest{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("request %s: %w", id, apperrors.ErrNotFound)
	}
	return nil
}

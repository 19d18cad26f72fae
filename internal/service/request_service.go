package service

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"budgetflow/internal/apperrors"
	"budgetflow/internal/model"
	"budgetflow/internal/policy"
	"budgetflow/internal/repository"
	"budgetflow/internal/storage"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AttachmentStore is the file storage capability the engine depends on.
// *storage.Store satisfies it.
type AttachmentStore interface {
	Save(area, originalName string, r io.Reader) (string, error)
	Remove(ref string) error
}

// --- DTOs ---

type CreateRequestInput struct {
	Title       string
	Description string
	Amount      string // decimal string from the form
}

type RequestResponse struct {
	ID                string  `json:"id"`
	OwnerID           string  `json:"owner_id"`
	OwnerName         string  `json:"owner_name"`
	Title             string  `json:"title"`
	Description       string  `json:"description"`
	Amount            string  `json:"amount"`
	Status            string  `json:"status"`
	DocumentPath      string  `json:"document_path"`
	TransferProofPath string  `json:"transfer_proof_path"`
	DecidedBy         *string `json:"decided_by"`
	DeciderName       string  `json:"decider_name"`
	DecidedAt         *string `json:"decided_at"`
	CreatedAt         string  `json:"created_at"`
}

// RequestService owns the budget request lifecycle: creation by employees,
// decisions and deletion by admins, and the attachments tied to both.
type RequestService interface {
	Create(ctx context.Context, actor policy.Identity, in CreateRequestInput, fileName string, file io.Reader) (*RequestResponse, error)
	List(ctx context.Context, actor policy.Identity) ([]RequestResponse, error)
	Approve(ctx context.Context, actor policy.Identity, id uuid.UUID) (*RequestResponse, error)
	Reject(ctx context.Context, actor policy.Identity, id uuid.UUID) (*RequestResponse, error)
	Delete(ctx context.Context, actor policy.Identity, id uuid.UUID) error
	AttachTransferProof(ctx context.Context, actor policy.Identity, id uuid.UUID, fileName string, file io.Reader) (*RequestResponse, error)
}

type requestService struct {
	repo  repository.RequestRepository
	store AttachmentStore
}

func NewRequestService(repo repository.RequestRepository, store AttachmentStore) RequestService {
	return &requestService{repo: repo, store: store}
}

// --- Implementation ---

func (s *requestService) Create(ctx context.Context, actor policy.Identity, in CreateRequestInput, fileName string, file io.Reader) (*RequestResponse, error) {
	if !policy.Allow(actor.Role, policy.ActionCreateRequest) {
		return nil, fmt.Errorf("%w: cannot submit requests", apperrors.ErrForbidden)
	}

	title := strings.TrimSpace(in.Title)
	description := strings.TrimSpace(in.Description)
	if title == "" {
		return nil, fmt.Errorf("%w: title must not be empty", apperrors.ErrValidation)
	}
	if description == "" {
		return nil, fmt.Errorf("%w: description must not be empty", apperrors.ErrValidation)
	}

	amount, err := decimal.NewFromString(in.Amount)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid amount %q", apperrors.ErrValidation, in.Amount)
	}
	if amount.IsNegative() {
		return nil, fmt.Errorf("%w: amount must not be negative", apperrors.ErrValidation)
	}

	// The file is persisted before the record commits; a reference to a file
	// that failed to write must never reach the database.
	documentPath := ""
	if file != nil {
		ref, saveErr := s.store.Save(storage.AreaDocuments, fileName, file)
		if saveErr != nil {
			return nil, saveErr
		}
		documentPath = ref
	}

	req := &model.BudgetRequest{
		UserID:       actor.UserID,
		Title:        title,
		Description:  description,
		Amount:       amount,
		DocumentPath: documentPath,
		Status:       model.StatusPending,
	}
	if err := s.repo.Create(ctx, req); err != nil {
		if documentPath != "" {
			_ = s.store.Remove(documentPath) // best effort, orphan is cleanable
		}
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	return toRequestResponse(*req), nil
}

func (s *requestService) List(ctx context.Context, actor policy.Identity) ([]RequestResponse, error) {
	var (
		requests []model.BudgetRequest
		err      error
	)
	if policy.Allow(actor.Role, policy.ActionListAllRequests) {
		requests, err = s.repo.ListAll(ctx)
	} else {
		requests, err = s.repo.ListByOwner(ctx, actor.UserID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list requests: %w", err)
	}

	result := make([]RequestResponse, 0, len(requests))
	for _, r := range requests {
		result = append(result, *toRequestResponse(r))
	}
	return result, nil
}

func (s *requestService) Approve(ctx context.Context, actor policy.Identity, id uuid.UUID) (*RequestResponse, error) {
	return s.decide(ctx, actor, id, model.StatusApproved)
}

func (s *requestService) Reject(ctx context.Context, actor policy.Identity, id uuid.UUID) (*RequestResponse, error) {
	return s.decide(ctx, actor, id, model.StatusRejected)
}

// decide applies the PENDING -> APPROVED/REJECTED transition. The status
// guard lives in a single compare-and-set UPDATE, so of two concurrent
// decisions exactly one wins; the loser falls through to the idempotent
// no-op path below.
func (s *requestService) decide(ctx context.Context, actor policy.Identity, id uuid.UUID, status string) (*RequestResponse, error) {
	if !policy.Allow(actor.Role, policy.ActionDecideRequest) {
		return nil, fmt.Errorf("%w: only admins decide requests", apperrors.ErrForbidden)
	}

	if _, err := s.repo.SetStatusIfPending(ctx, id, status, actor.UserID, time.Now()); err != nil {
		return nil, fmt.Errorf("failed to update request status: %w", err)
	}

	// Reload regardless of whether the CAS won: an already-decided request
	// is returned unchanged, a missing one surfaces as not found.
	req, err := s.repo.FindByIDWithRelations(ctx, id)
	if err != nil {
		return nil, err
	}
	return toRequestResponse(*req), nil
}

func (s *requestService) Delete(ctx context.Context, actor policy.Identity, id uuid.UUID) error {
	if !policy.Allow(actor.Role, policy.ActionDecideRequest) {
		return fmt.Errorf("%w: only admins delete requests", apperrors.ErrForbidden)
	}

	req, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}

	// Release both attachments; Remove is idempotent so a retry after a
	// partial failure is safe.
	if req.DocumentPath != "" {
		if err := s.store.Remove(req.DocumentPath); err != nil {
			return err
		}
	}
	if req.TransferProofPath != "" {
		if err := s.store.Remove(req.TransferProofPath); err != nil {
			return err
		}
	}
	return nil
}

func (s *requestService) AttachTransferProof(ctx context.Context, actor policy.Identity, id uuid.UUID, fileName string, file io.Reader) (*RequestResponse, error) {
	if !policy.Allow(actor.Role, policy.ActionDecideRequest) {
		return nil, fmt.Errorf("%w: only admins upload transfer proofs", apperrors.ErrForbidden)
	}
	if file == nil {
		return nil, fmt.Errorf("%w: transfer proof file is required", apperrors.ErrValidation)
	}

	req, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	ref, err := s.store.Save(storage.AreaTransferProofs, fileName, file)
	if err != nil {
		return nil, err
	}

	if err := s.repo.SetTransferProof(ctx, id, ref); err != nil {
		_ = s.store.Remove(ref)
		return nil, err
	}

	// A replaced proof is released only after the new reference committed
	if old := req.TransferProofPath; old != "" && old != ref {
		_ = s.store.Remove(old)
	}

	updated, err := s.repo.FindByIDWithRelations(ctx, id)
	if err != nil {
		return nil, err
	}
	return toRequestResponse(*updated), nil
}

// --- Helpers ---

func toRequestResponse(r model.BudgetRequest) *RequestResponse {
	resp := &RequestResponse{
		ID:                r.ID.String(),
		OwnerID:           r.UserID.String(),
		Title:             r.Title,
		Description:       r.Description,
		Amount:            r.Amount.StringFixed(2),
		Status:            r.Status,
		DocumentPath:      r.DocumentPath,
		TransferProofPath: r.TransferProofPath,
		CreatedAt:         r.CreatedAt.Format(time.RFC3339),
	}

	if r.Owner != nil {
		resp.OwnerName = r.Owner.Username
	}
	if r.DecidedBy != nil {
		s := r.DecidedBy.String()
		resp.DecidedBy = &s
	}
	if r.Decider != nil {
		resp.DeciderName = r.Decider.Username
	}
	if r.DecidedAt != nil {
		s := r.DecidedAt.Format(time.RFC3339)
		resp.DecidedAt = &s
	}

	return resp
}

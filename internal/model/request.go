package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status enum constants. PENDING is the initial state; APPROVED and
// REJECTED are terminal for the status field (deletion stays possible).
const (
	StatusPending  = "PENDING"
	StatusApproved = "APPROVED"
	StatusRejected = "REJECTED"
)

// BudgetRequest represents an employee's expenditure ask with its lifecycle
// status. The supporting document reference is immutable after creation; the
// transfer proof is attached later by an admin.
type BudgetRequest struct {
	ID                uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	UserID            uuid.UUID       `gorm:"type:uuid;not null;index" json:"user_id"`
	Owner             *User           `gorm:"foreignKey:UserID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"owner,omitempty"`
	Title             string          `gorm:"type:varchar(255);not null" json:"title"`
	Description       string          `gorm:"type:text;not null" json:"description"`
	Amount            decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"amount"`
	DocumentPath      string          `gorm:"type:varchar(255)" json:"document_path"`       // supporting document, relative to the upload root
	TransferProofPath string          `gorm:"type:varchar(255)" json:"transfer_proof_path"` // admin's proof of transfer
	Status            string          `gorm:"type:varchar(20);not null;default:'PENDING';index" json:"status"`
	DecidedBy         *uuid.UUID      `gorm:"type:uuid" json:"decided_by"`
	Decider           *User           `gorm:"foreignKey:DecidedBy" json:"decider,omitempty"`
	DecidedAt         *time.Time      `json:"decided_at"`
	CreatedAt         time.Time       `gorm:"index" json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type VisitMethod string

type VisitStatus string

const (
	VisitMethodQR     VisitMethod = "qr"
	VisitMethodManual VisitMethod = "manual"
)

const (
	VisitStatusPending  VisitStatus = "pending"
	VisitStatusApproved VisitStatus = "approved"
	VisitStatusRejected VisitStatus = "rejected"
)

type Visit struct {
	ID           uuid.UUID       `db:"id" json:"id"`
	UserID       uuid.UUID       `db:"user_id" json:"user_id"`
	StoreID      uuid.UUID       `db:"store_id" json:"store_id"`
	Method       VisitMethod     `db:"method" json:"method"`
	Status       VisitStatus     `db:"status" json:"status"`
	Points       int64           `db:"points" json:"points"`
	Spend        decimal.Decimal `db:"spend" json:"spend"`
	ApprovedBy   *uuid.UUID      `db:"approved_by" json:"approved_by,omitempty"`
	ApprovedAt   *time.Time      `db:"approved_at" json:"approved_at,omitempty"`
	RejectedBy   *uuid.UUID      `db:"rejected_by" json:"rejected_by,omitempty"`
	RejectedAt   *time.Time      `db:"rejected_at" json:"rejected_at,omitempty"`
	RejectReason *string         `db:"reject_reason" json:"reject_reason,omitempty"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updated_at"`
}

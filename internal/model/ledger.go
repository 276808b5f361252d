package model

import (
	"time"

	"github.com/google/uuid"
)

type LedgerReason string

const (
	LedgerReasonVisitApproved LedgerReason = "visit_approved"
	LedgerReasonRedemption    LedgerReason = "redemption"
	LedgerReasonAdjustment    LedgerReason = "adjustment"
)

// LedgerBalance is the points a user holds at one store.
type LedgerBalance struct {
	UserID    uuid.UUID `db:"user_id" json:"user_id"`
	StoreID   uuid.UUID `db:"store_id" json:"store_id"`
	Balance   int64     `db:"balance" json:"balance"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

type LedgerTransaction struct {
	ID           int64        `db:"id" json:"id"`
	UserID       uuid.UUID    `db:"user_id" json:"user_id"`
	StoreID      uuid.UUID    `db:"store_id" json:"store_id"`
	Delta        int64        `db:"delta" json:"delta"`
	BalanceAfter int64        `db:"balance_after" json:"balance_after"`
	Reason       LedgerReason `db:"reason" json:"reason"`
	ReferenceID  *uuid.UUID   `db:"reference_id" json:"reference_id,omitempty"`
	CreatedAt    time.Time    `db:"created_at" json:"created_at"`
}

package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Redemption struct {
	ID            uuid.UUID       `db:"id" json:"id"`
	UserID        uuid.UUID       `db:"user_id" json:"user_id"`
	StoreID       uuid.UUID       `db:"store_id" json:"store_id"`
	PointsUsed    int64           `db:"points_used" json:"points_used"`
	RewardValue   decimal.Decimal `db:"reward_value" json:"reward_value"`
	Code          string          `db:"code" json:"code"`
	AutoTriggered bool            `db:"auto_triggered" json:"auto_triggered"`
	Used          bool            `db:"used" json:"used"`
	UsedAt        *time.Time      `db:"used_at" json:"used_at,omitempty"`
	UsedBy        *uuid.UUID      `db:"used_by" json:"used_by,omitempty"`
	CreatedAt     time.Time       `db:"created_at" json:"created_at"`
}

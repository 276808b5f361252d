package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type PolicyType string

const (
	PolicyTypeVisit  PolicyType = "visit"
	PolicyTypeSpend  PolicyType = "spend"
	PolicyTypeHybrid PolicyType = "hybrid"
)

// RewardPolicy maps a visit and its spend to points. ConversionRate is the
// number of points that buy one unit of redeemable value.
type RewardPolicy struct {
	Type                  PolicyType      `db:"policy_type" json:"type"`
	PointsPerCurrencyUnit decimal.Decimal `db:"points_per_currency_unit" json:"points_per_currency_unit"`
	PointsPerVisit        int64           `db:"points_per_visit" json:"points_per_visit"`
	ConversionRate        decimal.Decimal `db:"conversion_rate" json:"conversion_rate"`
}

type Store struct {
	ID        uuid.UUID    `db:"id" json:"id"`
	Name      string       `db:"name" json:"name"`
	Policy    RewardPolicy `json:"reward_config"`
	CreatedAt time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt time.Time    `db:"updated_at" json:"updated_at"`
}

type StoreConnection struct {
	UserID      uuid.UUID `db:"user_id" json:"user_id"`
	StoreID     uuid.UUID `db:"store_id" json:"store_id"`
	ConnectedAt time.Time `db:"connected_at" json:"connected_at"`
}

type Tier string

const (
	TierSilver   Tier = "silver"
	TierGold     Tier = "gold"
	TierPlatinum Tier = "platinum"
)

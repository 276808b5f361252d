package service

import (
	"github.com/shopspring/decimal"

	"loyalty-hub/internal/model"
)

// ComputePoints returns the points a visit with the given spend earns under
// policy. Unknown policy types earn nothing.
func ComputePoints(policy model.RewardPolicy, spend decimal.Decimal) int64 {
	var points int64
	switch policy.Type {
	case model.PolicyTypeVisit:
		points = policy.PointsPerVisit
	case model.PolicyTypeSpend:
		points = spendPoints(policy, spend)
	case model.PolicyTypeHybrid:
		points = policy.PointsPerVisit + spendPoints(policy, spend)
	default:
		return 0
	}

	if points < 0 {
		return 0
	}
	return points
}

func spendPoints(policy model.RewardPolicy, spend decimal.Decimal) int64 {
	if spend.IsNegative() || policy.PointsPerCurrencyUnit.IsNegative() {
		return 0
	}
	return spend.Mul(policy.PointsPerCurrencyUnit).Floor().IntPart()
}

// ValidatePolicy checks the invariants the ledger relies on.
func ValidatePolicy(policy model.RewardPolicy) error {
	switch policy.Type {
	case model.PolicyTypeVisit, model.PolicyTypeSpend, model.PolicyTypeHybrid:
	default:
		return ErrInvalidPolicy
	}
	if policy.PointsPerVisit < 0 || policy.PointsPerCurrencyUnit.IsNegative() {
		return ErrInvalidPolicy
	}
	if !policy.ConversionRate.IsPositive() {
		return ErrInvalidPolicy
	}
	return nil
}

// redeemableUnits splits balance into whole reward units and the points those
// units cost. The cost is rounded up so fractional rates never over-credit.
func redeemableUnits(balance int64, conversionRate decimal.Decimal) (decimal.Decimal, int64, error) {
	if !conversionRate.IsPositive() {
		return decimal.Zero, 0, ErrInvalidPolicy
	}
	if balance <= 0 {
		return decimal.Zero, 0, nil
	}

	units, _ := decimal.NewFromInt(balance).QuoRem(conversionRate, 0)
	if !units.IsPositive() {
		return decimal.Zero, 0, nil
	}

	cost := units.Mul(conversionRate).Ceil().IntPart()
	return units, cost, nil
}

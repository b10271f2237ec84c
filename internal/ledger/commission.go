package ledger

import "github.com/shopspring/decimal"

// SplitCommission returns the payee's share and the platform commission.
// Commission is floor(amount * rate) so the payee never receives a fractional point.
func SplitCommission(amount int64, rate decimal.Decimal) (payee, commission int64) {
	commission = floorMul(amount, rate)
	return amount - commission, commission
}

// SplitFee returns the inspector's share floor(fee * share) and the platform remainder
func SplitFee(fee int64, share decimal.Decimal) (inspector, platform int64) {
	inspector = floorMul(fee, share)
	return inspector, fee - inspector
}

func floorMul(amount int64, rate decimal.Decimal) int64 {
	v := decimal.NewFromInt(amount).Mul(rate).Floor().IntPart()
	if v < 0 {
		return 0
	}
	if v > amount {
		return amount
	}
	return v
}

package fees

import (
	"errors"
	"math/big"
)

// DefaultDenominator matches the proportional cut applied by the original
// settlement flow: feePoints points of value per 100 settled.
const DefaultDenominator uint64 = 100

// ListingFeeDenominator fixes the basis of the creation-time listing fee.
const ListingFeeDenominator uint64 = 10_000

var (
	errNilAmount        = errors.New("fees: amount must not be nil")
	errNegativeAmount   = errors.New("fees: amount must be non-negative")
	errZeroDenominator  = errors.New("fees: denominator must be positive")
	errPointsOutOfRange = errors.New("fees: fee points exceed denominator")
)

// Split divides a settlement amount between the listing creator and the fee
// beneficiary. The invariant toCreator + toBeneficiary == amount holds exactly;
// any rounding remainder stays with the creator.
func Split(amount *big.Int, feePoints uint32, denominator uint64) (toCreator, toBeneficiary *big.Int, err error) {
	if amount == nil {
		return nil, nil, errNilAmount
	}
	if amount.Sign() < 0 {
		return nil, nil, errNegativeAmount
	}
	if denominator == 0 {
		return nil, nil, errZeroDenominator
	}
	if uint64(feePoints) > denominator {
		return nil, nil, errPointsOutOfRange
	}
	fee := new(big.Int).Mul(amount, new(big.Int).SetUint64(uint64(feePoints)))
	fee.Div(fee, new(big.Int).SetUint64(denominator))
	return new(big.Int).Sub(amount, fee), fee, nil
}

// ListingFee computes the creation-time fee owed to the treasury for listing
// an asset at the given price. A zero bps configuration disables the fee.
func ListingFee(price *big.Int, bps uint32) *big.Int {
	if price == nil || price.Sign() <= 0 || bps == 0 {
		return big.NewInt(0)
	}
	fee := new(big.Int).Mul(price, new(big.Int).SetUint64(uint64(bps)))
	return fee.Div(fee, new(big.Int).SetUint64(ListingFeeDenominator))
}

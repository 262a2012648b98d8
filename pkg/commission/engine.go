package commission

import (
	"github.com/mcclellann/agencyCRM/pkg/crmerr"
	"github.com/mcclellann/agencyCRM/pkg/models"
	"github.com/shopspring/decimal"
)

var (
	// DefaultBonusPercentage is applied to new sales unless the agency configures another value.
	DefaultBonusPercentage = decimal.NewFromInt(125)

	// MinBonusPercentage means "no bonus": total equals base.
	MinBonusPercentage = decimal.NewFromInt(100)

	baseRate = decimal.NewFromFloat(0.5)
	hundred  = decimal.NewFromInt(100)
)

// Breakdown is the result of a commission calculation.
type Breakdown struct {
	BaseCommission  decimal.Decimal `json:"base_commission"`
	TotalCommission decimal.Decimal `json:"total_commission"`
}

// Calculate converts a policy sale into base and total commission.
// Base is half the annual premium; total is base scaled by bonusPercentage/100.
func Calculate(annualPremium, bonusPercentage decimal.Decimal) (Breakdown, error) {
	if err := ValidatePremium(annualPremium); err != nil {
		return Breakdown{}, err
	}
	if err := ValidateBonus(bonusPercentage); err != nil {
		return Breakdown{}, err
	}

	base := annualPremium.Mul(baseRate)
	return Breakdown{
		BaseCommission:  base,
		TotalCommission: base.Mul(bonusPercentage).Div(hundred),
	}, nil
}

// ValidatePremium rejects a negative annual premium.
func ValidatePremium(annualPremium decimal.Decimal) error {
	if annualPremium.IsNegative() {
		return crmerr.Validation("annual_premium", "must not be negative")
	}
	return nil
}

// ValidateBonus rejects a bonus percentage below MinBonusPercentage.
func ValidateBonus(bonusPercentage decimal.Decimal) error {
	if bonusPercentage.LessThan(MinBonusPercentage) {
		return crmerr.Validation("bonus_percentage", "must be at least 100")
	}
	return nil
}

// Apply recomputes the derived commission fields of e from its premium and bonus.
func Apply(e *models.CommissionEntry) error {
	b, err := Calculate(e.AnnualPremium, e.BonusPercentage)
	if err != nil {
		return err
	}
	e.BaseCommission = b.BaseCommission
	e.TotalCommission = b.TotalCommission
	return nil
}

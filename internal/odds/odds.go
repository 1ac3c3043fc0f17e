// Package odds holds the pure back/lay arithmetic the rest of the service is
// built on. All prices are decimal odds >= 1.01 and commission is a fraction
// of 1; callers are responsible for validating venue data before calling in.
package odds

import "github.com/shopspring/decimal"

// ImpliedProb converts a decimal price to its implied probability.
func ImpliedProb(price float64) float64 {
	if price <= 0 {
		return 0
	}
	return 1 / price
}

// NetMargin is the net arbitrage margin per unit of lay stake for backing at
// backPrice and laying at layPrice, after lay-venue commission. Positive
// means profitable.
func NetMargin(backPrice, layPrice, commission float64) float64 {
	return ((1-commission)*(backPrice-1) - (layPrice - 1)) / backPrice
}

// HedgeStake is the lay stake that produces equal net profit whether the
// back leg wins or loses, with commission charged on the lay side's payout.
func HedgeStake(backStake, backPrice, layPrice, commission float64) float64 {
	return backStake * backPrice / (layPrice - commission*(layPrice-1))
}

// StakePlan is the sized pair of stakes for one execution.
type StakePlan struct {
	BackStake float64
	LayStake  float64
	// Reduced is set when the back stake was scaled down because the lay
	// side could not absorb the full hedge.
	Reduced bool
}

// PlanStakes sizes both legs. The target back stake is clamped to the back
// venue's bounds; if the required hedge exceeds the lay liquidity the back
// stake is scaled down proportionally with a safety buffer below the
// ceiling, then re-clamped to the venue minimum.
func PlanStakes(target, venueMin, venueMax, backPrice, layPrice, layAvailable, commission, buffer float64) StakePlan {
	stake := target
	if stake < venueMin {
		stake = venueMin
	}
	if venueMax > 0 && stake > venueMax {
		stake = venueMax
	}

	lay := HedgeStake(stake, backPrice, layPrice, commission)
	reduced := false
	if lay > layAvailable {
		ratio := layAvailable / lay
		stake = stake * ratio * (1 - buffer)
		if stake < venueMin {
			stake = venueMin
		}
		lay = HedgeStake(stake, backPrice, layPrice, commission)
		reduced = true
	}

	return StakePlan{BackStake: stake, LayStake: lay, Reduced: reduced}
}

// RoundStake rounds a stake to the two decimal places venues accept.
func RoundStake(v float64) float64 {
	f, _ := decimal.NewFromFloat(v).Round(2).Float64()
	return f
}

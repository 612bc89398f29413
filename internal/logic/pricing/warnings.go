package pricing

import (
	"fmt"

	"github.com/patrickwarner/esimplanner/internal/models"
)

// LowSpeedThresholdKbps is the speed below which caps and throttling are flagged.
const LowSpeedThresholdKbps = 1000

// Warnings returns the traveler-facing caveats of buying qty units of p.
func Warnings(p models.Plan, qty int, lq LineQuote) []string {
	var w []string

	if p.NewUserOnly && qty > 1 {
		if p.RequiresPhoneForAccount {
			w = append(w, fmt.Sprintf("Need %d accounts (phone number required, IMEI/EID may be flagged)", qty))
		} else {
			w = append(w, fmt.Sprintf("Need %d accounts", qty))
		}
	}
	if lq.PromoForfeited {
		w = append(w, "Promo already used for this provider, paying full price")
	}
	if qty > 1 && !p.CanTopUp && !p.NewUserOnly {
		w = append(w, "No top-up: new eSIM needed each time")
	}
	if p.SpeedLimitKbps > 0 && p.SpeedLimitKbps < LowSpeedThresholdKbps {
		w = append(w, fmt.Sprintf("Speed capped at %.0fkbps", p.SpeedLimitKbps))
	}
	if p.ReducedSpeedKbps > 0 && p.ReducedSpeedKbps < LowSpeedThresholdKbps && p.DataMB > 0 {
		w = append(w, fmt.Sprintf("Throttled to %.0fkbps after data limit", p.ReducedSpeedKbps))
	}
	if p.PossibleThrottling {
		w = append(w, "Possible throttling")
	}
	if p.Tethering != nil && !*p.Tethering {
		w = append(w, "No hotspot/tethering")
	}
	if p.EKYC {
		w = append(w, "Requires ID verification (eKYC)")
	}
	if p.Subscription {
		w = append(w, "Subscription: cancel after trip")
	}
	if p.PayAsYouGo {
		w = append(w, "Pay-as-you-go pricing")
	}
	if p.HasAds {
		w = append(w, "Has ads")
	}
	if p.OverrideNote != "" {
		w = append(w, p.OverrideNote)
	}
	return w
}

// Package quota decides whether an account may spend another generation.
package quota

import (
	"fmt"

	"memodraft/internal/models"
)

// Unlimited marks a tier without a generation cap.
const Unlimited = -1

var limits = map[models.Tier]int{
	models.TierFree:       10,
	models.TierPro:        100,
	models.TierEnterprise: Unlimited,
}

// LimitFor returns the generation limit of a tier. Unknown tiers get the Free limit.
func LimitFor(tier models.Tier) int {
	if limit, ok := limits[tier]; ok {
		return limit
	}
	return limits[models.TierFree]
}

// Decision is the outcome of Authorize. A denied decision keeps the usage numbers
// so the caller can show them next to the upgrade prompt.
type Decision struct {
	Allowed bool
	Tier    models.Tier
	Used    int
	Limit   int
	Reason  string
}

// Remaining reports generations left, or Unlimited.
func (d Decision) Remaining() int {
	if d.Limit == Unlimited {
		return Unlimited
	}
	if d.Used >= d.Limit {
		return 0
	}
	return d.Limit - d.Used
}

// Message is the user-facing text for a denied decision.
func (d Decision) Message() string {
	if d.Allowed {
		return ""
	}
	if d.Limit == Unlimited || d.Reason == reasonNoAccount {
		return d.Reason
	}
	return fmt.Sprintf("You've reached your monthly limit of %d generations. Please upgrade your plan.", d.Limit)
}

const (
	reasonNoAccount = "no account"
	reasonExhausted = "generation limit reached"
)

// Authorize is a pure check of account usage against its tier limit. It never
// charges the account; callers increment GenerationsUsed after a successful call.
func Authorize(account *models.Account) Decision {
	if account == nil {
		return Decision{Reason: reasonNoAccount}
	}
	limit := LimitFor(account.Tier)
	d := Decision{
		Tier:  account.Tier,
		Used:  account.GenerationsUsed,
		Limit: limit,
	}
	if limit == Unlimited || account.GenerationsUsed < limit {
		d.Allowed = true
		return d
	}
	d.Reason = reasonExhausted
	return d
}

// Usage summarises an account for display.
type Usage struct {
	Used         int  `json:"used"`
	Limit        int  `json:"limit"`
	Remaining    int  `json:"remaining"`
	LimitReached bool `json:"limit_reached"`
	Percent      int  `json:"usage_percent"`
}

// UsageOf computes the usage summary shown next to the account.
func UsageOf(account *models.Account) Usage {
	d := Authorize(account)
	u := Usage{
		Used:         d.Used,
		Limit:        d.Limit,
		Remaining:    d.Remaining(),
		LimitReached: !d.Allowed,
	}
	if d.Limit > 0 {
		u.Percent = d.Used * 100 / d.Limit
		if u.Percent > 100 {
			u.Percent = 100
		}
	}
	return u
}

package models

// Tier is the subscription level of an account.
type Tier string

const (
	TierFree       Tier = "Free"
	TierPro        Tier = "Pro"
	TierEnterprise Tier = "Enterprise"
)

// Valid reports whether t is a known tier.
func (t Tier) Valid() bool {
	switch t {
	case TierFree, TierPro, TierEnterprise:
		return true
	default:
		return false
	}
}

// Account is the logged-in identity of a session. It lives only as long as the session.
type Account struct {
	DisplayName     string `json:"display_name"`
	Tier            Tier   `json:"tier"`
	GenerationsUsed int    `json:"generations_used"`
}

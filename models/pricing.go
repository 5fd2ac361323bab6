package models

import "strings"

// Pricing models shared by bots and components.
const (
	PricingFree             = "free"
	PricingPayPerUse        = "pay_per_use"
	PricingPayPerMonth      = "pay_per_month"
	PricingPayPerUseOrMonth = "pay_per_use_or_month"
)

// SubscriptionType is how a party pays for a bot or for a component it
// integrates.
type SubscriptionType string

const (
	SubscriptionFree  SubscriptionType = "free"
	SubscriptionMonth SubscriptionType = "month"
	SubscriptionUse   SubscriptionType = "use"
)

// NormalizePrices zeroes the price fields a pricing model does not use.
func NormalizePrices(model string, perUse, perMonth *float64) {
	switch model {
	case PricingFree:
		*perUse = 0
		*perMonth = 0
	case PricingPayPerUse:
		*perMonth = 0
	case PricingPayPerMonth:
		*perUse = 0
	}
}

// DefaultSubscriptionType derives the subscription a bot's owner gets when
// the bot is created. Bots payable either way default to per-use.
func DefaultSubscriptionType(pricingModel string) SubscriptionType {
	switch pricingModel {
	case PricingPayPerMonth:
		return SubscriptionMonth
	case PricingPayPerUse, PricingPayPerUseOrMonth:
		return SubscriptionUse
	default:
		return SubscriptionFree
	}
}

// AllowsSubscription reports whether a bot priced with pricingModel can be
// subscribed to with t.
func AllowsSubscription(pricingModel string, t SubscriptionType) bool {
	switch pricingModel {
	case PricingFree:
		return t == SubscriptionFree
	case PricingPayPerUse:
		return t == SubscriptionUse
	case PricingPayPerMonth:
		return t == SubscriptionMonth
	case PricingPayPerUseOrMonth:
		return t == SubscriptionUse || t == SubscriptionMonth
	}
	return false
}

// Categories is the marketplace category vocabulary.
var Categories = []string{
	"coaching_and_training",
	"communication",
	"cryptocurrency",
	"customer_service",
	"design",
	"education",
	"entertainment",
	"events",
	"finance",
	"games",
	"general",
	"health_and_fitness",
	"healthcare",
	"marketing",
	"news",
	"personal",
	"security",
	"real_estate",
	"research",
	"retail",
	"support",
	"travel",
	"utilities",
	"weather",
}

// Status values for bots and components.
const (
	StatusEnabled  = "enabled"
	StatusDisabled = "disabled"
)

// NameKey is the normalized form of a display name used to enforce
// case-insensitive uniqueness.
func NameKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

func trim(s string) string {
	return strings.TrimSpace(s)
}

package model

import "time"

// Tier is the subscription level of an account. The back-office billing
// system owns tier transitions; this core only reads them.
type Tier string

const (
	TierFree     Tier = "free"
	TierStarter  Tier = "starter"
	TierPro      Tier = "pro"
	TierBusiness Tier = "business"
)

type Account struct {
	ID        string
	Tier      Tier
	CreatedAt time.Time
}

// FeatureLimit bounds usage of one feature for one tier within a billing
// period. MonthlyCount == 0 is a hard deny regardless of usage history.
type FeatureLimit struct {
	MonthlyCount            int64
	DailyCount              int64
	PerRequest              int
	MonthlyCostCeilingCents int64
}

// limitTable is the static tier x feature entitlement table.
var limitTable = map[Tier]map[Feature]FeatureLimit{
	TierFree: {
		FeatureImage:        {MonthlyCount: 10, DailyCount: 3, PerRequest: 1, MonthlyCostCeilingCents: 50},
		FeatureVoice:        {MonthlyCount: 0},
		FeatureVideo:        {MonthlyCount: 0},
		FeatureAdvancedEdit: {MonthlyCount: 0},
	},
	TierStarter: {
		FeatureImage:        {MonthlyCount: 100, DailyCount: 20, PerRequest: 2, MonthlyCostCeilingCents: 500},
		FeatureVoice:        {MonthlyCount: 50, DailyCount: 10, PerRequest: 1, MonthlyCostCeilingCents: 300},
		FeatureVideo:        {MonthlyCount: 0},
		FeatureAdvancedEdit: {MonthlyCount: 20, DailyCount: 5, PerRequest: 1, MonthlyCostCeilingCents: 200},
	},
	TierPro: {
		FeatureImage:        {MonthlyCount: 500, DailyCount: 60, PerRequest: 4, MonthlyCostCeilingCents: 2500},
		FeatureVoice:        {MonthlyCount: 300, DailyCount: 40, PerRequest: 1, MonthlyCostCeilingCents: 1500},
		FeatureVideo:        {MonthlyCount: 20, DailyCount: 4, PerRequest: 1, MonthlyCostCeilingCents: 2000},
		FeatureAdvancedEdit: {MonthlyCount: 150, DailyCount: 25, PerRequest: 2, MonthlyCostCeilingCents: 1000},
	},
	TierBusiness: {
		FeatureImage:        {MonthlyCount: 2000, DailyCount: 200, PerRequest: 8, MonthlyCostCeilingCents: 10000},
		FeatureVoice:        {MonthlyCount: 1500, DailyCount: 150, PerRequest: 1, MonthlyCostCeilingCents: 8000},
		FeatureVideo:        {MonthlyCount: 100, DailyCount: 15, PerRequest: 1, MonthlyCostCeilingCents: 10000},
		FeatureAdvancedEdit: {MonthlyCount: 800, DailyCount: 80, PerRequest: 4, MonthlyCostCeilingCents: 5000},
	},
}

// LimitFor returns the entitlement for a tier/feature pair. Unknown tiers
// fall back to free; a missing feature entry means hard deny.
func LimitFor(tier Tier, feature Feature) FeatureLimit {
	t, ok := limitTable[tier]
	if !ok {
		t = limitTable[TierFree]
	}
	return t[feature]
}

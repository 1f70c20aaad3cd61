package services

import model "github.com/glkeru/gamification/internal/models"

// Validation policy per action kind, evaluated once per award. Unlisted
// actions get the default: no zero amounts, no negative totals.
type actionPolicy struct {
	allowZero          bool
	allowNegativeTotal bool
	trusted            bool // internal callers, exempt from the abuse window
}

var actionPolicies = map[string]actionPolicy{
	model.ActionAdminAdjustment:   {allowZero: true, allowNegativeTotal: true, trusted: true},
	model.ActionAchievementReward: {allowZero: true, trusted: true},
}

func policyFor(actionType string) actionPolicy {
	return actionPolicies[actionType]
}

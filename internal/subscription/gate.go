// Package subscription decides whether a company may start another generation cycle on its
// current plan.
package subscription

import "strings"

// Plan is the closed set of subscription tiers. PlanNone stands for no subscription and
// ranks below the lowest paid tier.
type Plan int

const (
	PlanNone Plan = iota
	PlanBasic
	PlanGrowth
	PlanCorporate

	planCount
)

type tier struct {
	name      string
	limit     int
	unlimited bool
	next      Plan
	hasNext   bool
}

// tiers is indexed by Plan and lists every tier in declaration order.
var tiers = [...]tier{
	{name: "", limit: 0, next: PlanBasic, hasNext: true},
	{name: "basic", limit: 1, next: PlanGrowth, hasNext: true},
	{name: "growth", limit: 5, next: PlanCorporate, hasNext: true},
	{name: "corporate", unlimited: true},
}

// Fails to compile when a Plan is added without a tiers entry.
var _ = [1]struct{}{}[len(tiers)-int(planCount)]

// ParsePlan maps a stored plan name to a Plan. Empty and unknown names are PlanNone.
func ParsePlan(name string) Plan {
	name = strings.ToLower(strings.TrimSpace(name))
	for p := PlanBasic; p < planCount; p++ {
		if tiers[p].name == name {
			return p
		}
	}
	return PlanNone
}

func (p Plan) valid() bool {
	return p >= PlanNone && p < planCount
}

func (p Plan) String() string {
	if !p.valid() || p == PlanNone {
		return "none"
	}
	return tiers[p].name
}

// Limit returns the generation limit and false when the plan is unlimited.
func (p Plan) Limit() (int, bool) {
	if !p.valid() {
		p = PlanNone
	}
	t := tiers[p]
	return t.limit, !t.unlimited
}

// Next returns the tier to upgrade to, or false at the top tier.
func (p Plan) Next() (Plan, bool) {
	if !p.valid() {
		p = PlanNone
	}
	t := tiers[p]
	return t.next, t.hasNext
}

// AttemptGeneration reports whether a generation may start with count generations used.
func AttemptGeneration(plan Plan, count int) bool {
	limit, limited := plan.Limit()
	return !limited || count < limit
}

// Decision is the gate result shown to the UI.
type Decision struct {
	Allowed     bool   `json:"allowed"`
	Plan        string `json:"plan"`
	Limit       *int   `json:"limit"`
	Used        int    `json:"used"`
	UpgradeTo   string `json:"upgradeTo,omitempty"`
	ShowUpgrade bool   `json:"showUpgrade"`
}

// Evaluate runs the gate. The upgrade prompt is only shown once the user has attempted a
// generation and the gate denied it.
func Evaluate(plan Plan, count int, attempted bool) Decision {
	d := Decision{
		Allowed: AttemptGeneration(plan, count),
		Plan:    plan.String(),
		Used:    count,
	}
	if limit, limited := plan.Limit(); limited {
		d.Limit = &limit
	}
	if !d.Allowed {
		if next, ok := plan.Next(); ok {
			d.UpgradeTo = next.String()
		}
		d.ShowUpgrade = attempted && d.UpgradeTo != ""
	}
	return d
}

package state

import (
	"sort"
	"strings"
)

// BusinessProfile maps attribute name to value. Attributes are added incrementally by extraction.
type BusinessProfile map[string]string

const (
	AttrBusinessName = "business_name"
	AttrIndustry     = "industry"
	AttrPrimaryGoal  = "primary_goal"

	AttrLocation         = "location"
	AttrDescription      = "description"
	AttrProductsServices = "products_services"
	AttrMainChallenges   = "main_challenges"
	AttrYearsOperating   = "years_operating"
	AttrEmployees        = "employees"
	AttrTargetMarket     = "target_market"
	AttrTimeline         = "timeline"
)

var requiredAttributes = []string{AttrBusinessName, AttrIndustry, AttrPrimaryGoal}

// RequiredAttributes returns the attributes a profile needs before consultation.
func RequiredAttributes() []string {
	return append([]string(nil), requiredAttributes...)
}

// KnownAttributes lists every attribute extraction is asked to fill.
func KnownAttributes() []string {
	return []string{
		AttrBusinessName, AttrIndustry, AttrPrimaryGoal,
		AttrLocation, AttrDescription, AttrProductsServices, AttrMainChallenges,
		AttrYearsOperating, AttrEmployees, AttrTargetMarket, AttrTimeline,
	}
}

func IsComplete(p BusinessProfile) bool {
	return len(MissingAttributes(p)) == 0
}

// MissingAttributes returns required attributes without a non-empty value, in policy order.
func MissingAttributes(p BusinessProfile) []string {
	var missing []string
	for _, attr := range requiredAttributes {
		if strings.TrimSpace(p[attr]) == "" {
			missing = append(missing, attr)
		}
	}
	return missing
}

// Merge returns a new profile with fields applied on top of p.
// Empty incoming values are ignored so a known attribute is never cleared.
func Merge(p BusinessProfile, fields map[string]string) BusinessProfile {
	out := make(BusinessProfile, len(p)+len(fields))
	for k, v := range p {
		out[k] = v
	}
	for k, v := range fields {
		key := NormalizeAttribute(k)
		val := strings.TrimSpace(v)
		if key == "" || val == "" {
			continue
		}
		out[key] = val
	}
	return out
}

func NormalizeAttribute(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.ReplaceAll(name, " ", "_")
	return strings.ReplaceAll(name, "-", "_")
}

func (p BusinessProfile) Clone() BusinessProfile {
	out := make(BusinessProfile, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Keys returns attribute names in stable order.
func (p BusinessProfile) Keys() []string {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

package models

import (
	"fmt"
	"strconv"
	"strings"
)

// TimelineRule holds the per-category thresholds, in days, driving automatic
// status advancement after a notice is issued.
type TimelineRule struct {
	EscalationDays  int
	TowEligibleDays int
}

// RuleSet maps categories to their timeline rules.
type RuleSet map[ViolationCategory]TimelineRule

// ParseRuleSet parses the TIMELINE_RULES encoding:
// "CATEGORY=escalation:tow,CATEGORY=escalation:tow".
func ParseRuleSet(raw string) (RuleSet, error) {
	rules := make(RuleSet)
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		name, value, ok := strings.Cut(entry, "=")
		if !ok {
			return nil, fmt.Errorf("timeline rule %q: expected CATEGORY=escalation:tow", entry)
		}
		escRaw, towRaw, ok := strings.Cut(value, ":")
		if !ok {
			return nil, fmt.Errorf("timeline rule %q: expected escalation:tow days", entry)
		}
		esc, err := strconv.Atoi(strings.TrimSpace(escRaw))
		if err != nil {
			return nil, fmt.Errorf("timeline rule %q: invalid escalation days: %w", entry, err)
		}
		tow, err := strconv.Atoi(strings.TrimSpace(towRaw))
		if err != nil {
			return nil, fmt.Errorf("timeline rule %q: invalid tow days: %w", entry, err)
		}
		if esc < 0 || tow < 0 || tow < esc {
			return nil, fmt.Errorf("timeline rule %q: days must be non-negative with tow >= escalation", entry)
		}
		rules[ViolationCategory(strings.ToUpper(strings.TrimSpace(name)))] = TimelineRule{
			EscalationDays:  esc,
			TowEligibleDays: tow,
		}
	}
	return rules, nil
}

// Validate requires a rule for every known category. A category without a rule
// would otherwise silently never escalate, so startup fails instead.
func (r RuleSet) Validate() error {
	var missing []string
	for _, category := range AllCategories {
		if _, ok := r[category]; !ok {
			missing = append(missing, string(category))
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("timeline rules missing for categories: %s", strings.Join(missing, ", "))
	}
	return nil
}

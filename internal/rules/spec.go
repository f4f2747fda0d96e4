package rules

import "fmt"

// RuleSpec is the declarative form of a rule.
type RuleSpec struct {
	Name       string          `json:"name"`
	Weight     float64         `json:"weight"`
	Conditions []ConditionSpec `json:"conditions"`
}

// RuleSetSpec is the declarative form of an influence rule set.
type RuleSetSpec struct {
	Name  string     `json:"name"`
	Rules []RuleSpec `json:"rules"`
}

// BuildRuleSet decodes a rule set spec. A rule without conditions is rejected
// here rather than at evaluation time.
func BuildRuleSet(spec RuleSetSpec) (*InfluenceRuleSet, error) {
	irs := NewInfluenceRuleSet(spec.Name)
	for i, rs := range spec.Rules {
		if len(rs.Conditions) == 0 {
			return nil, fmt.Errorf("rule set %q rule %d (%q): %w", spec.Name, i, rs.Name, ErrNoConditions)
		}
		rule := &Rule{Name: rs.Name, Weight: rs.Weight}
		for j, cs := range rs.Conditions {
			c, err := Decode(cs)
			if err != nil {
				return nil, fmt.Errorf("rule set %q rule %q condition %d: %w", spec.Name, rs.Name, j, err)
			}
			rule.Conditions = append(rule.Conditions, c)
		}
		irs.Add(rule)
	}
	return irs, nil
}

// DescribeRuleSet renders an influence rule set as a spec.
func DescribeRuleSet(irs *InfluenceRuleSet) (RuleSetSpec, error) {
	spec := RuleSetSpec{Name: irs.Name}
	for _, r := range irs.Rules {
		rs := RuleSpec{Name: r.Name, Weight: r.Weight}
		for _, c := range r.Conditions {
			cs, err := Describe(c)
			if err != nil {
				return RuleSetSpec{}, fmt.Errorf("rule %q: %w", r.Name, err)
			}
			rs.Conditions = append(rs.Conditions, cs)
		}
		spec.Rules = append(spec.Rules, rs)
	}
	return spec, nil
}

// DescribeConditions renders a condition list as specs.
func DescribeConditions(conds []Condition) ([]ConditionSpec, error) {
	out := make([]ConditionSpec, 0, len(conds))
	for _, c := range conds {
		cs, err := Describe(c)
		if err != nil {
			return nil, err
		}
		out = append(out, cs)
	}
	return out, nil
}

// DecodeConditions decodes a condition spec list.
func DecodeConditions(specs []ConditionSpec) ([]Condition, error) {
	out := make([]Condition, 0, len(specs))
	for i, cs := range specs {
		c, err := Decode(cs)
		if err != nil {
			return nil, fmt.Errorf("condition %d: %w", i, err)
		}
		out = append(out, c)
	}
	return out, nil
}

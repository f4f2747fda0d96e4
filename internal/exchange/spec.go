package exchange

import (
	"fmt"

	"github.com/talgya/npc-cif/internal/predicate"
	"github.com/talgya/npc-cif/internal/rules"
)

// Spec is the declarative, serialisable form of a Template. The YAML loader
// and the snapshot codec both go through it.
type Spec struct {
	Name          string                `json:"name"`
	Text          string                `json:"text,omitempty"`
	Intent        predicate.Template    `json:"intent"`
	Preconditions []rules.ConditionSpec `json:"preconditions"`
	Initiator     rules.RuleSetSpec     `json:"initiator_irs"`
	Responder     rules.RuleSetSpec     `json:"responder_irs"`
	Accept        []EffectSpec          `json:"accept"`
	Reject        []EffectSpec          `json:"reject"`
}

// FromSpec builds a template from its spec.
func FromSpec(spec Spec) (*Template, error) {
	if spec.Name == "" {
		return nil, fmt.Errorf("exchange template: missing name")
	}
	pre, err := rules.DecodeConditions(spec.Preconditions)
	if err != nil {
		return nil, fmt.Errorf("exchange %q preconditions: %w", spec.Name, err)
	}
	ini, err := rules.BuildRuleSet(spec.Initiator)
	if err != nil {
		return nil, fmt.Errorf("exchange %q initiator: %w", spec.Name, err)
	}
	res, err := rules.BuildRuleSet(spec.Responder)
	if err != nil {
		return nil, fmt.Errorf("exchange %q responder: %w", spec.Name, err)
	}
	accept, err := decodeEffects(spec.Accept)
	if err != nil {
		return nil, fmt.Errorf("exchange %q accept: %w", spec.Name, err)
	}
	reject, err := decodeEffects(spec.Reject)
	if err != nil {
		return nil, fmt.Errorf("exchange %q reject: %w", spec.Name, err)
	}
	return &Template{
		Name:          spec.Name,
		Text:          spec.Text,
		Preconditions: pre,
		Intent:        spec.Intent,
		Initiator:     ini,
		Responder:     res,
		Effects:       Effects{Accept: accept, Reject: reject},
	}, nil
}

// Describe renders a template as a spec.
func Describe(t *Template) (Spec, error) {
	pre, err := rules.DescribeConditions(t.Preconditions)
	if err != nil {
		return Spec{}, fmt.Errorf("exchange %q preconditions: %w", t.Name, err)
	}
	ini, err := rules.DescribeRuleSet(t.Initiator)
	if err != nil {
		return Spec{}, fmt.Errorf("exchange %q initiator: %w", t.Name, err)
	}
	res, err := rules.DescribeRuleSet(t.Responder)
	if err != nil {
		return Spec{}, fmt.Errorf("exchange %q responder: %w", t.Name, err)
	}
	spec := Spec{
		Name:          t.Name,
		Text:          t.Text,
		Intent:        t.Intent,
		Preconditions: pre,
		Initiator:     ini,
		Responder:     res,
	}
	for _, e := range t.Effects.Accept {
		spec.Accept = append(spec.Accept, e.Spec())
	}
	for _, e := range t.Effects.Reject {
		spec.Reject = append(spec.Reject, e.Spec())
	}
	return spec, nil
}

func decodeEffects(specs []EffectSpec) ([]Effect, error) {
	var out []Effect
	for i, s := range specs {
		e, err := DecodeEffect(s)
		if err != nil {
			return nil, fmt.Errorf("effect %d: %w", i, err)
		}
		out = append(out, e)
	}
	return out, nil
}

package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/talgya/npc-cif/internal/exchange"
	"github.com/talgya/npc-cif/internal/predicate"
	"github.com/talgya/npc-cif/internal/rules"
)

// predicateDesc is the YAML form of a predicate template. Probability is
// read only by add effects.
type predicateDesc struct {
	PredType    string   `yaml:"pred_type"`
	Subtype     string   `yaml:"subtype"`
	IsSingle    bool     `yaml:"is_single"`
	Probability *float64 `yaml:"probability,omitempty"`
}

func (p *predicateDesc) template() (predicate.Template, error) {
	if p.PredType == "" || p.Subtype == "" {
		return predicate.Template{}, errors.New("predicate needs pred_type and subtype")
	}
	arity := predicate.Relational
	if p.IsSingle {
		arity = predicate.Single
	}
	return predicate.Template{Kind: p.PredType, Subtype: p.Subtype, Arity: arity}, nil
}

// conditionDesc holds exactly one of its fields.
type conditionDesc struct {
	Constant *float64       `yaml:"constant,omitempty"`
	Has      *predicateDesc `yaml:"has,omitempty"`
	HasNot   *predicateDesc `yaml:"has_not,omitempty"`
}

func (c conditionDesc) spec() (rules.ConditionSpec, error) {
	switch {
	case c.Constant != nil:
		return rules.ConditionSpec{Kind: rules.KindConstant, Value: *c.Constant}, nil
	case c.Has != nil:
		t, err := c.Has.template()
		return rules.ConditionSpec{Kind: rules.KindHas, Predicate: &t}, err
	case c.HasNot != nil:
		t, err := c.HasNot.template()
		return rules.ConditionSpec{Kind: rules.KindHasNot, Predicate: &t}, err
	default:
		return rules.ConditionSpec{}, errors.New("unknown condition type")
	}
}

type ruleDesc struct {
	Name       string          `yaml:"name"`
	Weight     float64         `yaml:"weight"`
	Conditions []conditionDesc `yaml:"conditions"`
}

type irsDesc struct {
	Name  string     `yaml:"name"`
	Rules []ruleDesc `yaml:"rules"`
}

func (d irsDesc) spec() (rules.RuleSetSpec, error) {
	out := rules.RuleSetSpec{Name: d.Name}
	for _, r := range d.Rules {
		rs := rules.RuleSpec{Name: r.Name, Weight: r.Weight}
		for j, c := range r.Conditions {
			cs, err := c.spec()
			if err != nil {
				return out, fmt.Errorf("rule %q condition %d: %w", r.Name, j, err)
			}
			rs.Conditions = append(rs.Conditions, cs)
		}
		out.Rules = append(out.Rules, rs)
	}
	return out, nil
}

// effectDesc holds exactly one of its fields.
type effectDesc struct {
	Add    *predicateDesc `yaml:"add,omitempty"`
	Remove *predicateDesc `yaml:"remove,omitempty"`
}

func (e effectDesc) spec() (exchange.EffectSpec, error) {
	switch {
	case e.Add != nil:
		t, err := e.Add.template()
		p := 1.0
		if e.Add.Probability != nil {
			p = *e.Add.Probability
		}
		return exchange.EffectSpec{Kind: exchange.EffectAdd, Predicate: t, Probability: p}, err
	case e.Remove != nil:
		t, err := e.Remove.template()
		p := 0.0
		if e.Remove.Probability != nil {
			p = *e.Remove.Probability
		}
		return exchange.EffectSpec{Kind: exchange.EffectRemove, Predicate: t, Probability: p}, err
	default:
		return exchange.EffectSpec{}, errors.New("unknown effect type")
	}
}

type exchangeDesc struct {
	Name          string          `yaml:"name"`
	Text          string          `yaml:"text"`
	Intent        predicateDesc   `yaml:"intent"`
	Preconditions []conditionDesc `yaml:"preconditions"`
	InitiatorIRS  irsDesc         `yaml:"initiator_irs"`
	ResponderIRS  irsDesc         `yaml:"responder_irs"`
	Effects       struct {
		Accept []effectDesc `yaml:"accept"`
		Reject []effectDesc `yaml:"reject"`
	} `yaml:"effects"`
}

func (d exchangeDesc) spec() (exchange.Spec, error) {
	spec := exchange.Spec{Name: d.Name, Text: d.Text}

	intent, err := d.Intent.template()
	if err != nil {
		return spec, fmt.Errorf("intent: %w", err)
	}
	spec.Intent = intent

	for i, c := range d.Preconditions {
		cs, err := c.spec()
		if err != nil {
			return spec, fmt.Errorf("precondition %d: %w", i, err)
		}
		spec.Preconditions = append(spec.Preconditions, cs)
	}
	if spec.Initiator, err = d.InitiatorIRS.spec(); err != nil {
		return spec, fmt.Errorf("initiator_irs: %w", err)
	}
	if spec.Responder, err = d.ResponderIRS.spec(); err != nil {
		return spec, fmt.Errorf("responder_irs: %w", err)
	}
	for i, e := range d.Effects.Accept {
		es, err := e.spec()
		if err != nil {
			return spec, fmt.Errorf("accept effect %d: %w", i, err)
		}
		spec.Accept = append(spec.Accept, es)
	}
	for i, e := range d.Effects.Reject {
		es, err := e.spec()
		if err != nil {
			return spec, fmt.Errorf("reject effect %d: %w", i, err)
		}
		spec.Reject = append(spec.Reject, es)
	}
	return spec, nil
}

// LoadExchanges reads a YAML list of exchange descriptors.
func LoadExchanges(path string) ([]*exchange.Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading exchanges: %w", err)
	}
	return ParseExchanges(data)
}

// ParseExchanges decodes a YAML list of exchange descriptors into templates.
func ParseExchanges(data []byte) ([]*exchange.Template, error) {
	var descs []exchangeDesc
	if err := yaml.Unmarshal(data, &descs); err != nil {
		return nil, fmt.Errorf("%w: exchanges must be a list: %v", ErrInvalid, err)
	}

	templates := make([]*exchange.Template, 0, len(descs))
	seen := make(map[string]bool, len(descs))
	for i, d := range descs {
		if d.Name == "" {
			return nil, fmt.Errorf("%w: exchange %d has no name", ErrInvalid, i)
		}
		if seen[d.Name] {
			return nil, fmt.Errorf("%w: duplicate exchange %q", ErrInvalid, d.Name)
		}
		seen[d.Name] = true

		spec, err := d.spec()
		if err != nil {
			return nil, fmt.Errorf("%w: exchange %q: %v", ErrInvalid, d.Name, err)
		}
		t, err := exchange.FromSpec(spec)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
		}
		templates = append(templates, t)
	}
	return templates, nil
}

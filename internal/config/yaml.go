package config

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/talgya/npc-cif/internal/engine"
)

// Weights is an ordered name → probability mapping. YAML mapping order is
// kept so that builds are reproducible for a given seed.
type Weights []engine.Weighted

// UnmarshalYAML decodes a mapping node in document order.
func (w *Weights) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: probabilities must be a mapping", node.Line)
	}
	out := make(Weights, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		var p float64
		if err := node.Content[i+1].Decode(&p); err != nil {
			return fmt.Errorf("line %d: %q: %w", node.Content[i+1].Line, node.Content[i].Value, err)
		}
		out = append(out, engine.Weighted{Name: node.Content[i].Value, Probability: p})
	}
	*w = out
	return nil
}

// Has reports whether name has an entry.
func (w Weights) Has(name string) bool {
	for _, e := range w {
		if e.Name == name {
			return true
		}
	}
	return false
}

// NameList accepts either a single name or a list of names.
type NameList []string

// UnmarshalYAML decodes a scalar or a sequence of scalars.
func (n *NameList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		*n = NameList{node.Value}
		return nil
	case yaml.SequenceNode:
		var list []string
		if err := node.Decode(&list); err != nil {
			return err
		}
		*n = list
		return nil
	default:
		return fmt.Errorf("line %d: expected a name or a list of names", node.Line)
	}
}

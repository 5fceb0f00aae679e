package snapshot

import (
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

type yamlElement struct {
	Role     string         `yaml:"role"`
	Ref      string         `yaml:"ref"`
	Name     *string        `yaml:"name,omitempty"`
	Children []*yamlElement `yaml:"children,omitempty"`
}

func toYAML(els []*Element) []*yamlElement {
	out := make([]*yamlElement, 0, len(els))
	for _, el := range els {
		if el == nil {
			continue
		}
		out = append(out, &yamlElement{
			Role:     el.Role,
			Ref:      el.Ref,
			Name:     el.Name,
			Children: toYAML(el.Children),
		})
	}
	return out
}

// Encode writes tree in the document format read by Parse.
func Encode(w io.Writer, tree *Tree) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(toYAML(tree.Roots)); err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return enc.Close()
}

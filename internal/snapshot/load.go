package snapshot

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"gopkg.in/yaml.v3"
)

const (
	tagNull  = "!!null"
	tagStr   = "!!str"
	tagInt   = "!!int"
	tagFloat = "!!float"
	tagBool  = "!!bool"
)

// Load reads and validates the snapshot at path.
func Load(path string) (*Tree, error) {
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &LoadError{Path: path, Err: ErrNotFound}
		}
		return nil, &LoadError{Path: path, Err: err}
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, &LoadError{Path: path, Err: fmt.Errorf("read: %w", err)}
	}

	tree, err := Parse(data)
	if err != nil {
		var le *LoadError
		if errors.As(err, &le) {
			le.Path = path
			return nil, le
		}
		return nil, &LoadError{Path: path, Err: err}
	}
	return tree, nil
}

// Parse decodes a YAML snapshot document: a list of records with required
// role and ref strings, an optional scalar name and optional children.
// An empty document yields an empty tree.
func Parse(data []byte) (*Tree, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &LoadError{Err: fmt.Errorf("%w: %v", ErrInvalidDocument, err)}
	}

	if doc.Kind == 0 || len(doc.Content) == 0 {
		return NewTree(), nil
	}

	root := resolve(doc.Content[0])
	if root.Kind == yaml.ScalarNode && root.Tag == tagNull {
		return NewTree(), nil
	}
	if root.Kind != yaml.SequenceNode {
		return nil, invalidf(root.Line, "document must be a list of elements")
	}

	roots, err := decodeElements(root)
	if err != nil {
		return nil, err
	}
	return NewTree(roots...), nil
}

func decodeElements(seq *yaml.Node) ([]*Element, error) {
	out := make([]*Element, 0, len(seq.Content))
	for _, item := range seq.Content {
		el, err := decodeElement(resolve(item))
		if err != nil {
			return nil, err
		}
		out = append(out, el)
	}
	return out, nil
}

func decodeElement(n *yaml.Node) (*Element, error) {
	if n.Kind != yaml.MappingNode {
		return nil, invalidf(n.Line, "element must be a mapping")
	}

	el := &Element{}
	var hasRole, hasRef bool
	for i := 0; i+1 < len(n.Content); i += 2 {
		key := n.Content[i].Value
		val := resolve(n.Content[i+1])

		switch key {
		case "role":
			s, err := requiredString(val, "role")
			if err != nil {
				return nil, err
			}
			el.Role, hasRole = s, true
		case "ref":
			s, err := requiredString(val, "ref")
			if err != nil {
				return nil, err
			}
			el.Ref, hasRef = s, true
		case "name":
			name, err := optionalText(val)
			if err != nil {
				return nil, err
			}
			el.Name = name
		case "children":
			if val.Kind == yaml.ScalarNode && val.Tag == tagNull {
				continue
			}
			if val.Kind != yaml.SequenceNode {
				return nil, invalidf(val.Line, "children must be a list")
			}
			children, err := decodeElements(val)
			if err != nil {
				return nil, err
			}
			if len(children) > 0 {
				el.Children = children
			}
		}
	}

	if !hasRole {
		return nil, invalidf(n.Line, "element is missing required field 'role'")
	}
	if !hasRef {
		return nil, invalidf(n.Line, "element %q is missing required field 'ref'", el.Role)
	}
	return el, nil
}

func requiredString(n *yaml.Node, field string) (string, error) {
	if n.Kind != yaml.ScalarNode || n.Tag == tagNull {
		return "", invalidf(n.Line, "field '%s' is required", field)
	}
	if n.Tag != tagStr {
		return "", invalidf(n.Line, "field '%s' must be a string, got %s", field, n.Tag)
	}
	return n.Value, nil
}

// optionalText accepts string, number and boolean scalars. Numbers keep
// their literal text; booleans read "True" or "False".
func optionalText(n *yaml.Node) (*string, error) {
	if n.Kind != yaml.ScalarNode {
		return nil, invalidf(n.Line, "field 'name' must be a scalar")
	}
	switch n.Tag {
	case tagNull:
		return nil, nil
	case tagStr, tagInt, tagFloat:
		return StringPtr(n.Value), nil
	case tagBool:
		var b bool
		if err := n.Decode(&b); err != nil {
			return nil, invalidf(n.Line, "field 'name': %v", err)
		}
		if b {
			return StringPtr("True"), nil
		}
		return StringPtr("False"), nil
	default:
		return nil, invalidf(n.Line, "field 'name' has unsupported type %s", n.Tag)
	}
}

func resolve(n *yaml.Node) *yaml.Node {
	for n.Kind == yaml.AliasNode && n.Alias != nil {
		n = n.Alias
	}
	return n
}

package snapshot

import "fmt"

// Field selects which element attribute a regular expression is applied to.
type Field int

const (
	FieldName Field = iota
	FieldRole
	FieldRef
)

var fieldNames = [...]string{
	FieldName: "name",
	FieldRole: "role",
	FieldRef:  "ref",
}

// ParseField maps "name", "role" or "ref" to a Field. Anything else,
// including the empty string, is ErrInvalidField.
func ParseField(s string) (Field, error) {
	for f, name := range fieldNames {
		if name == s {
			return Field(f), nil
		}
	}
	return FieldName, fmt.Errorf("%w: field must be 'name', 'role' or 'ref', got %q", ErrInvalidField, s)
}

func (f Field) String() string {
	if f < 0 || int(f) >= len(fieldNames) {
		return fmt.Sprintf("Field(%d)", int(f))
	}
	return fieldNames[f]
}

// Value returns the field's text for el. A missing name reads as "".
func (f Field) Value(el *Element) string {
	switch f {
	case FieldRole:
		return el.Role
	case FieldRef:
		return el.Ref
	default:
		return el.DisplayName()
	}
}

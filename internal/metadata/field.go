package metadata

// Semantic property types.
const (
	TypeString  = "string"
	TypeInteger = "integer"
	TypeFloat   = "float"
	TypeBoolean = "boolean"
	TypeEnum    = "enum"
	TypeMapping = "mapping"
	TypeList    = "list"
)

var validFieldTypes = map[string]bool{
	TypeString: true, TypeInteger: true, TypeFloat: true, TypeBoolean: true,
	TypeEnum: true, TypeMapping: true, TypeList: true,
}

type Field struct {
	Name    string   `yaml:"name" json:"name"`
	Type    string   `yaml:"type" json:"type"`
	Private bool     `yaml:"private,omitempty" json:"private,omitempty"`
	Values  []string `yaml:"values,omitempty" json:"values,omitempty"` // allowed enum values
	Default any      `yaml:"default,omitempty" json:"default,omitempty"`
}

// IsText reports whether values are stored as plain text and can be matched
// without a cast.
func (f Field) IsText() bool {
	return f.Type == TypeString || f.Type == TypeEnum
}

// IsStructured reports whether values are JSON-encoded in storage.
func (f Field) IsStructured() bool {
	return f.Type == TypeMapping || f.Type == TypeList
}

// Allows checks an enum value. Enums without a value list accept anything.
func (f Field) Allows(v string) bool {
	if f.Type != TypeEnum || len(f.Values) == 0 {
		return true
	}
	for _, allowed := range f.Values {
		if allowed == v {
			return true
		}
	}
	return false
}

package metadata

// Fields every entity carries regardless of the schema file.
const (
	FieldID           = "id"
	FieldName         = "name"
	FieldLastModified = "last_modified"
)

type Entity struct {
	Name   string  `yaml:"name" json:"name"`
	Table  string  `yaml:"table" json:"table"`
	Fields []Field `yaml:"fields" json:"fields"`

	Grouping  *Grouping       `yaml:"grouping,omitempty" json:"grouping,omitempty"`
	Principal *Principal      `yaml:"principal,omitempty" json:"principal,omitempty"`
	Computed  []ComputedField `yaml:"computed,omitempty" json:"computed,omitempty"`
	Scope     *Scope          `yaml:"scope,omitempty" json:"scope,omitempty"`
	Unit      *Unit           `yaml:"unit,omitempty" json:"unit,omitempty"`

	// Relationships is populated by the registry on Load.
	Relationships []*Relationship `yaml:"-" json:"relationships"`
}

// Grouping marks an entity as a dynamically computed collection. Each member
// relationship is filled with the target instances matching the criteria
// stored in the grouping's own fields under Prefix, e.g. device_name and
// device_name_filter for Prefix "device_". When ManualField is true on an
// instance its membership is edited by hand instead.
type Grouping struct {
	ManualField string           `yaml:"manual_field" json:"manual_field"`
	Members     []GroupingMember `yaml:"members" json:"members"`
}

type GroupingMember struct {
	Relationship string `yaml:"relationship" json:"relationship"`
	Prefix       string `yaml:"prefix" json:"prefix"`
}

// Principal marks the user entity. Its AccessField is recomputed as the union
// of SourceField over every instance reached through Sources.
type Principal struct {
	Sources     []string `yaml:"sources" json:"sources"`
	SourceField string   `yaml:"source_field" json:"source_field"`
	AccessField string   `yaml:"access_field" json:"access_field"`
	AdminField  string   `yaml:"admin_field,omitempty" json:"admin_field,omitempty"`
}

// ComputedField is derived state evaluated with expr against
// {record: row, related: {relationship: name(s)}}.
type ComputedField struct {
	Field      string `yaml:"field" json:"field"`
	Expression string `yaml:"expression" json:"expression"`
}

// Scope restricts non-admin visibility to instances related through
// Relationship to something the principal is related to.
type Scope struct {
	Relationship string `yaml:"relationship" json:"relationship"`
}

// Unit lists relationships followed when exporting one instance as a
// self-contained package.
type Unit struct {
	Traverse []string `yaml:"traverse" json:"traverse"`
}

// GetField returns a pointer to the field with the given name, or nil.
func (e *Entity) GetField(name string) *Field {
	for i := range e.Fields {
		if e.Fields[i].Name == name {
			return &e.Fields[i]
		}
	}
	return nil
}

// HasField returns true if the entity has a field with the given name.
func (e *Entity) HasField(name string) bool {
	return e.GetField(name) != nil
}

// FieldNames returns all field names.
func (e *Entity) FieldNames() []string {
	names := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		names[i] = f.Name
	}
	return names
}

// Relationship returns the relationship with the given name, or nil.
func (e *Entity) Relationship(name string) *Relationship {
	for _, rel := range e.Relationships {
		if rel.Name == name {
			return rel
		}
	}
	return nil
}

// PrivateFields returns the names of fields holding secrets.
func (e *Entity) PrivateFields() []string {
	var names []string
	for _, f := range e.Fields {
		if f.Private {
			names = append(names, f.Name)
		}
	}
	return names
}

// BooleanFields returns the names of boolean fields.
func (e *Entity) BooleanFields() []string {
	var names []string
	for _, f := range e.Fields {
		if f.Type == TypeBoolean {
			names = append(names, f.Name)
		}
	}
	return names
}

// LocalKeys returns the relationships stored as a column on this table.
func (e *Entity) LocalKeys() []*Relationship {
	var rels []*Relationship
	for _, rel := range e.Relationships {
		if rel.Kind == LocalKey {
			rels = append(rels, rel)
		}
	}
	return rels
}

// IsDynamic reports whether the given instance row is a computed grouping.
func (e *Entity) IsDynamic(row map[string]any) bool {
	if e.Grouping == nil {
		return false
	}
	if e.Grouping.ManualField == "" {
		return true
	}
	manual, _ := row[e.Grouping.ManualField].(bool)
	return !manual
}

// withBuiltins prepends id and name and appends last_modified if absent.
func (e *Entity) withBuiltins() {
	var fields []Field
	if !e.HasField(FieldID) {
		fields = append(fields, Field{Name: FieldID, Type: TypeInteger})
	}
	if !e.HasField(FieldName) {
		fields = append(fields, Field{Name: FieldName, Type: TypeString})
	}
	fields = append(fields, e.Fields...)
	e.Fields = fields
	if !e.HasField(FieldLastModified) {
		e.Fields = append(e.Fields, Field{Name: FieldLastModified, Type: TypeString})
	}
}

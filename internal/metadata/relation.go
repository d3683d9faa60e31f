package metadata

// Relation types.
const (
	ManyToOne  = "many_to_one"
	OneToOne   = "one_to_one"
	ManyToMany = "many_to_many"
)

// Relation is an association declared once in the schema. Property names the
// relationship on the source entity, Inverse names it on the target.
type Relation struct {
	Source    string `yaml:"source" json:"source"`
	Property  string `yaml:"property" json:"property"`
	Target    string `yaml:"target" json:"target"`
	Inverse   string `yaml:"inverse" json:"inverse"`
	Type      string `yaml:"type" json:"type"`
	JoinTable string `yaml:"join_table,omitempty" json:"join_table,omitempty"`
	SourceKey string `yaml:"source_key,omitempty" json:"source_key,omitempty"`
	TargetKey string `yaml:"target_key,omitempty" json:"target_key,omitempty"`
}

func (r *Relation) IsManyToMany() bool {
	return r.Type == ManyToMany
}

func (r *Relation) IsOneToOne() bool {
	return r.Type == OneToOne
}

// Key returns the registry-wide identifier "source.property".
func (r *Relation) Key() string {
	return r.Source + "." + r.Property
}

// applyDefaults fills storage names left out of the schema file.
func (r *Relation) applyDefaults() {
	if r.Type == "" {
		r.Type = ManyToOne
	}
	if !r.IsManyToMany() {
		if r.SourceKey == "" {
			r.SourceKey = r.Property + "_id"
		}
		return
	}
	if r.JoinTable == "" {
		r.JoinTable = r.Source + "_" + r.Property
	}
	if r.SourceKey == "" || r.TargetKey == "" {
		src, tgt := r.Source+"_id", r.Target+"_id"
		if r.Source == r.Target {
			src, tgt = "source_id", "target_id"
		}
		if r.SourceKey == "" {
			r.SourceKey = src
		}
		if r.TargetKey == "" {
			r.TargetKey = tgt
		}
	}
}

// Storage kinds of a relationship as seen from one side.
const (
	// LocalKey: foreign key column on the owning entity's table.
	LocalKey = "local_key"
	// RemoteKey: foreign key column on the target table pointing back.
	RemoteKey = "remote_key"
	// JoinRows: rows in a join table.
	JoinRows = "join_table"
)

// Relationship is one side of a Relation, resolved for a specific entity.
type Relationship struct {
	Name     string `json:"name"`
	Entity   string `json:"entity"`
	Target   string `json:"target"`
	List     bool   `json:"list"`
	Inverse  string `json:"inverse"`
	Kind     string `json:"kind"`
	Column   string `json:"column,omitempty"` // LocalKey and RemoteKey
	Table    string `json:"join_table,omitempty"`
	SelfKey  string `json:"self_key,omitempty"`
	OtherKey string `json:"other_key,omitempty"`

	Relation *Relation `json:"-"`
}

// sides expands a relation into the relationship seen from the source and
// the one seen from the target.
func (r *Relation) sides() (*Relationship, *Relationship) {
	fwd := &Relationship{Name: r.Property, Entity: r.Source, Target: r.Target, Inverse: r.Inverse, Relation: r}
	back := &Relationship{Name: r.Inverse, Entity: r.Target, Target: r.Source, Inverse: r.Property, Relation: r}
	switch r.Type {
	case ManyToMany:
		fwd.List, back.List = true, true
		fwd.Kind, back.Kind = JoinRows, JoinRows
		fwd.Table, back.Table = r.JoinTable, r.JoinTable
		fwd.SelfKey, fwd.OtherKey = r.SourceKey, r.TargetKey
		back.SelfKey, back.OtherKey = r.TargetKey, r.SourceKey
	default:
		fwd.Kind, back.Kind = LocalKey, RemoteKey
		fwd.Column, back.Column = r.SourceKey, r.SourceKey
		back.List = r.Type == ManyToOne
	}
	return fwd, back
}

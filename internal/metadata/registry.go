package metadata

import (
	"fmt"
	"sync"
)

type Registry struct {
	mu        sync.RWMutex
	entities  map[string]*Entity
	order     []string             // schema declaration order
	relations map[string]*Relation // keyed by Relation.Key()
}

func NewRegistry() *Registry {
	return &Registry{
		entities:  make(map[string]*Entity),
		relations: make(map[string]*Relation),
	}
}

// GetEntity returns the entity with the given name, or nil.
func (r *Registry) GetEntity(name string) *Entity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.entities[name]
}

// AllEntities returns all registered entities in declaration order.
func (r *Registry) AllEntities() []*Entity {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entities := make([]*Entity, 0, len(r.order))
	for _, name := range r.order {
		entities = append(entities, r.entities[name])
	}
	return entities
}

// AllRelations returns all registered relations.
func (r *Registry) AllRelations() []*Relation {
	r.mu.RLock()
	defer r.mu.RUnlock()
	relations := make([]*Relation, 0, len(r.relations))
	for _, rel := range r.relations {
		relations = append(relations, rel)
	}
	return relations
}

// Principals returns the entities carrying access-control state.
func (r *Registry) Principals() []*Entity {
	var out []*Entity
	for _, e := range r.AllEntities() {
		if e.Principal != nil {
			out = append(out, e)
		}
	}
	return out
}

// Groupings returns every dynamically computable grouping entity.
func (r *Registry) Groupings() []*Entity {
	var out []*Entity
	for _, e := range r.AllEntities() {
		if e.Grouping != nil {
			out = append(out, e)
		}
	}
	return out
}

// GroupingsOver returns grouping entities with at least one member
// relationship targeting the given entity.
func (r *Registry) GroupingsOver(entityName string) []*Entity {
	var out []*Entity
	for _, e := range r.Groupings() {
		for _, m := range e.Grouping.Members {
			if rel := e.Relationship(m.Relationship); rel != nil && rel.Target == entityName {
				out = append(out, e)
				break
			}
		}
	}
	return out
}

// Load replaces all entities and relations in the registry. Built-in fields
// are injected, relation defaults applied and both sides of every relation
// attached to their entities. The registry is left untouched on error.
func (r *Registry) Load(entities []*Entity, relations []*Relation) error {
	byName := make(map[string]*Entity, len(entities))
	order := make([]string, 0, len(entities))
	for _, e := range entities {
		if e.Name == "" {
			return fmt.Errorf("entity without name")
		}
		if _, dup := byName[e.Name]; dup {
			return fmt.Errorf("duplicate entity %s", e.Name)
		}
		if e.Table == "" {
			e.Table = e.Name
		}
		e.withBuiltins()
		e.Relationships = nil
		seen := make(map[string]bool, len(e.Fields))
		for _, f := range e.Fields {
			if !validFieldTypes[f.Type] {
				return fmt.Errorf("entity %s: field %s has unknown type %q", e.Name, f.Name, f.Type)
			}
			if seen[f.Name] {
				return fmt.Errorf("entity %s: duplicate field %s", e.Name, f.Name)
			}
			seen[f.Name] = true
		}
		byName[e.Name] = e
		order = append(order, e.Name)
	}

	relsByKey := make(map[string]*Relation, len(relations))
	for _, rel := range relations {
		src, tgt := byName[rel.Source], byName[rel.Target]
		if src == nil || tgt == nil {
			return fmt.Errorf("relation %s: unknown entity %s -> %s", rel.Key(), rel.Source, rel.Target)
		}
		if rel.Property == "" || rel.Inverse == "" {
			return fmt.Errorf("relation %s -> %s: property and inverse are required", rel.Source, rel.Target)
		}
		switch rel.Type {
		case "", ManyToOne, OneToOne, ManyToMany:
		default:
			return fmt.Errorf("relation %s: unknown type %q", rel.Key(), rel.Type)
		}
		rel.applyDefaults()
		fwd, back := rel.sides()
		for _, side := range []*Relationship{fwd, back} {
			owner := byName[side.Entity]
			if owner.HasField(side.Name) || owner.Relationship(side.Name) != nil {
				return fmt.Errorf("entity %s: relationship %s collides with an existing property", owner.Name, side.Name)
			}
			owner.Relationships = append(owner.Relationships, side)
		}
		relsByKey[rel.Key()] = rel
	}

	for _, e := range entities {
		if err := validateCapabilities(e); err != nil {
			return err
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.entities = byName
	r.order = order
	r.relations = relsByKey
	return nil
}

func validateCapabilities(e *Entity) error {
	if g := e.Grouping; g != nil {
		if g.ManualField != "" && e.GetField(g.ManualField) == nil {
			return fmt.Errorf("entity %s: grouping manual field %s not declared", e.Name, g.ManualField)
		}
		for _, m := range g.Members {
			if e.Relationship(m.Relationship) == nil {
				return fmt.Errorf("entity %s: grouping member %s is not a relationship", e.Name, m.Relationship)
			}
		}
	}
	if p := e.Principal; p != nil {
		for _, s := range p.Sources {
			if e.Relationship(s) == nil {
				return fmt.Errorf("entity %s: principal source %s is not a relationship", e.Name, s)
			}
		}
		if f := e.GetField(p.AccessField); f == nil || f.Type != TypeList {
			return fmt.Errorf("entity %s: access field %s must be a list field", e.Name, p.AccessField)
		}
	}
	for _, c := range e.Computed {
		if e.GetField(c.Field) == nil {
			return fmt.Errorf("entity %s: computed field %s not declared", e.Name, c.Field)
		}
	}
	if e.Scope != nil && e.Relationship(e.Scope.Relationship) == nil {
		return fmt.Errorf("entity %s: scope relationship %s not declared", e.Name, e.Scope.Relationship)
	}
	if e.Unit != nil {
		for _, name := range e.Unit.Traverse {
			if e.Relationship(name) == nil {
				return fmt.Errorf("entity %s: unit relationship %s not declared", e.Name, name)
			}
		}
	}
	return nil
}

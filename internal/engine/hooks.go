package engine

import "nms-backend/internal/metadata"

// ConstraintHook contributes type-specific predicates to every filter over
// the entity it is registered for.
type ConstraintHook func(entity *metadata.Entity, criteria Criteria) ([]Predicate, error)

// RegisterConstraintHook attaches hook to entityName. Hooks run after the
// generic constraints, in registration order.
func (e *Engine) RegisterConstraintHook(entityName string, hook ConstraintHook) {
	e.hooks[entityName] = append(e.hooks[entityName], hook)
}

// Capabilities is the per-type view callers dispatch on.
type Capabilities struct {
	Entity        *metadata.Entity
	Properties    []metadata.Field
	Relationships []*metadata.Relationship
	Hooks         []ConstraintHook
}

// Capabilities looks up what the engine can do with entityName.
func (e *Engine) Capabilities(entityName string) (*Capabilities, error) {
	entity, err := e.entity(entityName)
	if err != nil {
		return nil, err
	}
	return &Capabilities{
		Entity:        entity,
		Properties:    entity.Fields,
		Relationships: entity.Relationships,
		Hooks:         e.hooks[entity.Name],
	}, nil
}

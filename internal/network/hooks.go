// Package network holds the filter constraints specific to the network
// inventory schema.
package network

import (
	"fmt"
	"strings"

	"nms-backend/internal/engine"
	"nms-backend/internal/metadata"
)

// Register attaches the inventory constraint hooks to e.
func Register(e *engine.Engine) {
	e.RegisterConstraintHook("service", TopLevelServices)
	e.RegisterConstraintHook("link", LinkEndpoint)
}

// TopLevelServices restricts services to those outside any workflow when
// "parent-filtering" is set.
func TopLevelServices(entity *metadata.Entity, criteria engine.Criteria) ([]engine.Predicate, error) {
	if !isSet(criteria["parent-filtering"]) {
		return nil, nil
	}
	rel := entity.Relationship("workflows")
	if rel == nil {
		return nil, fmt.Errorf("%s has no workflows relationship", entity.Name)
	}
	return []engine.Predicate{engine.PredicateFunc(func(b *engine.SQLBuilder) string {
		return b.Empty(rel)
	})}, nil
}

// LinkEndpoint matches links whose source or destination device name
// contains criteria["device"].
func LinkEndpoint(entity *metadata.Entity, criteria engine.Criteria) ([]engine.Predicate, error) {
	name, _ := criteria["device"].(string)
	if name = strings.TrimSpace(name); name == "" {
		return nil, nil
	}
	source, destination := entity.Relationship("source"), entity.Relationship("destination")
	if source == nil || destination == nil {
		return nil, fmt.Errorf("%s has no source and destination", entity.Name)
	}
	return []engine.Predicate{engine.PredicateFunc(func(b *engine.SQLBuilder) string {
		return "(" + b.RelatedNameContains(source, name) + " OR " + b.RelatedNameContains(destination, name) + ")"
	})}, nil
}

func isSet(v any) bool {
	switch val := v.(type) {
	case bool:
		return val
	case string:
		return val == "true" || val == "on"
	}
	return false
}

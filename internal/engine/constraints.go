package engine

import (
	"fmt"
	"regexp"
	"strings"

	"nms-backend/internal/metadata"
	"nms-backend/internal/store"
)

// Comparison modes selected with "<property>_filter".
const (
	ModeEquality  = "equality"
	ModeInclusion = "inclusion"
	ModeRegex     = "regex"
	ModeBoolean   = "boolean"
	ModeEmpty     = "empty"
)

// Sentinel tokens the table forms send for boolean properties.
const (
	BoolTrue  = "bool-true"
	BoolFalse = "bool-false"
)

// Constraint is one test of a scalar property.
type Constraint struct {
	Property string
	Mode     string
	Value    any
	Invert   bool

	field *metadata.Field
}

// SQL renders the constraint against alias t.
func (c Constraint) SQL(b *SQLBuilder) string {
	column := b.Column(c.Property)
	text := column
	if c.field != nil && !c.field.IsText() {
		text = b.dialect.TextExpr(column)
	}
	var term string
	switch c.Mode {
	case ModeBoolean:
		term = column + " = " + b.Param(c.Value)
	case ModeEquality:
		term = text + " = " + b.Param(fmt.Sprint(c.Value))
	case ModeRegex:
		term = b.dialect.RegexExpr(text, b.Param(fmt.Sprint(c.Value)))
	default:
		term = b.dialect.ContainsExpr(text, b.Param(store.EscapeLike(fmt.Sprint(c.Value))))
	}
	if c.Invert {
		return "NOT (" + term + ")"
	}
	return term
}

// BuildConstraints turns the criteria for entity's scalar properties into
// constraints, in property order. Properties with no value are skipped. A
// malformed regular expression fails the whole call.
func BuildConstraints(entity *metadata.Entity, criteria Criteria) ([]Constraint, error) {
	var out []Constraint
	for i := range entity.Fields {
		f := &entity.Fields[i]
		if f.Private || isModifier(entity, f.Name) {
			continue
		}
		value, ok := criteria[f.Name]
		if !ok || isEmpty(value) {
			continue
		}
		c := Constraint{
			Property: f.Name,
			Value:    value,
			Invert:   truthy(criteria[f.Name+"_invert"]),
			field:    f,
		}
		mode, _ := criteria[f.Name+"_filter"].(string)
		switch {
		case f.Type == metadata.TypeBoolean && isBoolSentinel(value):
			c.Mode = ModeBoolean
			c.Value = value == BoolTrue || value == true
		case mode == ModeEquality:
			c.Mode = ModeEquality
		case mode == ModeRegex:
			if _, err := regexp.Compile(fmt.Sprint(value)); err != nil {
				return nil, InvalidFilterError()
			}
			c.Mode = ModeRegex
		default:
			c.Mode = ModeInclusion
		}
		out = append(out, c)
	}
	return out, nil
}

// isModifier reports whether name is the "_filter" or "_invert" key of
// another property of entity. Such keys only select how that property is
// compared, even when entity stores a column of the same name.
func isModifier(entity *metadata.Entity, name string) bool {
	for _, suffix := range []string{"_filter", "_invert"} {
		base, ok := strings.CutSuffix(name, suffix)
		if ok && (entity.HasField(base) || entity.Relationship(base) != nil) {
			return true
		}
	}
	return false
}

func isBoolSentinel(v any) bool {
	switch v {
	case BoolTrue, BoolFalse, true:
		return true
	}
	return false
}

// relationFilter is the parsed criterion for one relationship.
type relationFilter struct {
	rel   *metadata.Relationship
	empty bool
	ids   []int64
}

// buildRelationFilters reads "<relationship>" and "<relationship>_filter"
// keys. Relationships without criteria are ignored.
func buildRelationFilters(entity *metadata.Entity, criteria Criteria) ([]relationFilter, error) {
	var out []relationFilter
	for _, rel := range entity.Relationships {
		if mode, _ := criteria[rel.Name+"_filter"].(string); mode == ModeEmpty {
			out = append(out, relationFilter{rel: rel, empty: true})
			continue
		}
		raw, ok := criteria[rel.Name]
		if !ok || isEmpty(raw) {
			continue
		}
		ids, err := toIDs(raw)
		if err != nil {
			return nil, fieldError(rel.Name, err.Error())
		}
		if len(ids) > 0 {
			out = append(out, relationFilter{rel: rel, ids: ids})
		}
	}
	return out, nil
}

package engine

import (
	"fmt"
	"strings"

	"nms-backend/internal/metadata"
	"nms-backend/internal/store"
)

// Predicate renders one boolean SQL term against the base table alias "t".
type Predicate interface {
	SQL(b *SQLBuilder) string
}

// PredicateFunc adapts a plain function to Predicate.
type PredicateFunc func(b *SQLBuilder) string

func (f PredicateFunc) SQL(b *SQLBuilder) string { return f(b) }

// SQLBuilder accumulates joins, terms and parameters for one statement over
// one entity table. Terms must be added in the order they appear in the
// final SQL so positional placeholders line up.
type SQLBuilder struct {
	dialect  store.Dialect
	registry *metadata.Registry
	entity   *metadata.Entity
	pb       store.ParamBuilder
	joins    []string
	where    []string
	grouped  bool
	aliases  int
}

type QueryResult struct {
	SQL    string
	Params []any
}

func (e *Engine) newBuilder(entity *metadata.Entity) *SQLBuilder {
	return &SQLBuilder{
		dialect:  e.store.Dialect,
		registry: e.registry,
		entity:   entity,
		pb:       e.store.Dialect.NewParamBuilder(),
	}
}

func (b *SQLBuilder) Dialect() store.Dialect { return b.dialect }

// Param adds a bound value and returns its placeholder.
func (b *SQLBuilder) Param(v any) string { return b.pb.Add(v) }

// Column qualifies a column of the base table.
func (b *SQLBuilder) Column(name string) string { return "t." + name }

// Where appends a rendered term.
func (b *SQLBuilder) Where(term string) {
	if term != "" {
		b.where = append(b.where, term)
	}
}

func (b *SQLBuilder) Add(p Predicate) {
	b.Where(p.SQL(b))
}

func (b *SQLBuilder) alias() string {
	b.aliases++
	return fmt.Sprintf("r%d", b.aliases)
}

func (b *SQLBuilder) table(entityName string) string {
	if e := b.registry.GetEntity(entityName); e != nil {
		return e.Table
	}
	return entityName
}

// Empty matches base rows with no related instance through rel.
func (b *SQLBuilder) Empty(rel *metadata.Relationship) string {
	a := b.alias()
	switch rel.Kind {
	case metadata.LocalKey:
		return b.Column(rel.Column) + " IS NULL"
	case metadata.RemoteKey:
		return fmt.Sprintf("NOT EXISTS (SELECT 1 FROM %s %s WHERE %s.%s = t.id)",
			b.table(rel.Target), a, a, rel.Column)
	default:
		return fmt.Sprintf("NOT EXISTS (SELECT 1 FROM %s %s WHERE %s.%s = t.id)",
			rel.Table, a, a, rel.SelfKey)
	}
}

// In matches base rows related through rel to at least one of ids.
func (b *SQLBuilder) In(rel *metadata.Relationship, ids []int64) string {
	if rel.Kind == metadata.LocalKey {
		return b.dialect.InExpr(b.Column(rel.Column), b.pb, int64Args(ids))
	}
	a := b.alias()
	var from, self, other string
	if rel.Kind == metadata.RemoteKey {
		from, self, other = b.table(rel.Target), rel.Column, "id"
	} else {
		from, self, other = rel.Table, rel.SelfKey, rel.OtherKey
	}
	in := b.dialect.InExpr(a+"."+other, b.pb, int64Args(ids))
	return fmt.Sprintf("EXISTS (SELECT 1 FROM %s %s WHERE %s.%s = t.id AND %s)", from, a, a, self, in)
}

// RelatedNameContains matches base rows with a related instance whose name
// contains term.
func (b *SQLBuilder) RelatedNameContains(rel *metadata.Relationship, term string) string {
	target := b.table(rel.Target)
	a := b.alias()
	switch rel.Kind {
	case metadata.LocalKey:
		match := b.dialect.ContainsExpr(a+".name", b.pb.Add(store.EscapeLike(term)))
		return fmt.Sprintf("EXISTS (SELECT 1 FROM %s %s WHERE %s.id = t.%s AND %s)", target, a, a, rel.Column, match)
	case metadata.RemoteKey:
		match := b.dialect.ContainsExpr(a+".name", b.pb.Add(store.EscapeLike(term)))
		return fmt.Sprintf("EXISTS (SELECT 1 FROM %s %s WHERE %s.%s = t.id AND %s)", target, a, a, rel.Column, match)
	default:
		n := b.alias()
		match := b.dialect.ContainsExpr(n+".name", b.pb.Add(store.EscapeLike(term)))
		return fmt.Sprintf("EXISTS (SELECT 1 FROM %s %s JOIN %s %s ON %s.id = %s.%s WHERE %s.%s = t.id AND %s)",
			rel.Table, a, target, n, n, a, rel.OtherKey, a, rel.SelfKey, match)
	}
}

// JoinIn joins rel and restricts the joined side to ids. A to-many join can
// repeat base rows, so the statement is grouped by t.id afterwards.
func (b *SQLBuilder) JoinIn(rel *metadata.Relationship, ids []int64) {
	switch rel.Kind {
	case metadata.LocalKey:
		b.Where(b.dialect.InExpr(b.Column(rel.Column), b.pb, int64Args(ids)))
	case metadata.RemoteKey:
		a := b.alias()
		b.joins = append(b.joins, fmt.Sprintf("JOIN %s %s ON %s.%s = t.id", b.table(rel.Target), a, a, rel.Column))
		b.Where(b.dialect.InExpr(a+".id", b.pb, int64Args(ids)))
		b.grouped = true
	default:
		a := b.alias()
		b.joins = append(b.joins, fmt.Sprintf("JOIN %s %s ON %s.%s = t.id", rel.Table, a, a, rel.SelfKey))
		b.Where(b.dialect.InExpr(a+"."+rel.OtherKey, b.pb, int64Args(ids)))
		b.grouped = true
	}
}

func (b *SQLBuilder) fromClause() string {
	sql := fmt.Sprintf(" FROM %s t", b.entity.Table)
	for _, j := range b.joins {
		sql += " " + j
	}
	if len(b.where) > 0 {
		sql += " WHERE " + strings.Join(b.where, " AND ")
	}
	if b.grouped {
		sql += " GROUP BY t.id"
	}
	return sql
}

// Select renders SELECT columns plus the accumulated clauses, then order and
// limit.
func (b *SQLBuilder) Select(columns, orderBy string, limit, offset int) QueryResult {
	sql := "SELECT " + columns + b.fromClause()
	if orderBy != "" {
		sql += " ORDER BY " + orderBy
	}
	sql += b.dialect.LimitOffset(b.pb, limit, offset)
	return QueryResult{SQL: sql, Params: b.pb.Params()}
}

// Count renders a COUNT over the distinct base rows.
func (b *SQLBuilder) Count() QueryResult {
	if b.grouped {
		return QueryResult{
			SQL:    "SELECT COUNT(*) FROM (SELECT t.id" + b.fromClause() + ") matched",
			Params: b.pb.Params(),
		}
	}
	return QueryResult{SQL: "SELECT COUNT(*)" + b.fromClause(), Params: b.pb.Params()}
}

package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// Dialect abstracts database-specific SQL generation and behavior.
type Dialect interface {
	// Name returns "postgres", "sqlite" or "mysql".
	Name() string

	// DriverName returns the database/sql driver name.
	DriverName() string

	// NewParamBuilder creates a dialect-aware parameter builder.
	NewParamBuilder() ParamBuilder

	// ColumnType maps a metadata field type to the database DDL type.
	ColumnType(fieldType string) string

	// KeyColumnType is the DDL type of indexed text columns such as name.
	KeyColumnType() string

	// IDColumnType is the DDL type of foreign keys and join table keys.
	IDColumnType() string

	// PrimaryKeySQL returns the full column definition of an auto-increment id.
	PrimaryKeySQL() string

	// TableExists checks whether a table exists.
	TableExists(ctx context.Context, db *sql.DB, tableName string) (bool, error)

	// GetColumns returns existing column names and types for a table.
	GetColumns(ctx context.Context, db *sql.DB, tableName string) (map[string]string, error)

	// InExpr builds "field IN (...)", or an always-false term for no values.
	InExpr(field string, pb ParamBuilder, values []any) string

	// ContainsExpr builds a case-insensitive LIKE test of expr against a
	// placeholder holding a pattern escaped with EscapeLike.
	ContainsExpr(expr, placeholder string) string

	// TextExpr casts expr to text for pattern matching on non-text columns.
	TextExpr(expr string) string

	// RegexExpr builds a regular expression match of expr against a placeholder.
	RegexExpr(expr, placeholder string) string

	// LimitOffset renders a LIMIT/OFFSET clause.
	LimitOffset(pb ParamBuilder, limit, offset int) string

	// InsertReturningID runs an INSERT and returns the generated id.
	InsertReturningID(ctx context.Context, q Querier, sqlStr string, args ...any) (int64, error)

	// MapError inspects a driver error and returns a well-known sentinel error if applicable.
	MapError(err error) error

	// NeedsBoolFix returns true if boolean columns come back as integers.
	NeedsBoolFix() bool
}

// ParamBuilder accumulates query parameters and generates dialect-specific placeholders.
type ParamBuilder interface {
	// Add appends a value and returns the placeholder string.
	Add(v any) string

	// Params returns all accumulated parameter values.
	Params() []any

	// Count returns the number of parameters added so far.
	Count() int
}

// NewDialect creates a Dialect for the given driver name.
func NewDialect(driver string) Dialect {
	switch driver {
	case "sqlite":
		return &SQLiteDialect{}
	case "mysql":
		return &MySQLDialect{}
	default:
		return &PostgresDialect{}
	}
}

// LikeEscape is the escape character used by ContainsExpr patterns.
const LikeEscape = "!"

// EscapeLike escapes LIKE wildcards so s matches literally, then wraps it in
// % for a substring match.
func EscapeLike(s string) string {
	r := strings.NewReplacer(LikeEscape, LikeEscape+LikeEscape, "%", LikeEscape+"%", "_", LikeEscape+"_")
	return "%" + r.Replace(s) + "%"
}

func inList(field string, pb ParamBuilder, values []any) string {
	if len(values) == 0 {
		return "1=0" // always false
	}
	phs := make([]string, len(values))
	for i, v := range values {
		phs[i] = pb.Add(v)
	}
	return fmt.Sprintf("%s IN (%s)", field, strings.Join(phs, ", "))
}

func limitOffset(pb ParamBuilder, limit, offset int) string {
	if limit <= 0 {
		return ""
	}
	clause := " LIMIT " + pb.Add(limit)
	if offset > 0 {
		clause += " OFFSET " + pb.Add(offset)
	}
	return clause
}

// insertLastID runs an INSERT and reads the id from the driver result.
func insertLastID(ctx context.Context, q Querier, sqlStr string, args ...any) (int64, error) {
	result, err := q.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return 0, err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	return id, nil
}

// --- PostgreSQL ParamBuilder ---

type pgParamBuilder struct {
	params []any
	n      int
}

func (p *pgParamBuilder) Add(v any) string {
	p.n++
	p.params = append(p.params, v)
	return fmt.Sprintf("$%d", p.n)
}

func (p *pgParamBuilder) Params() []any { return p.params }
func (p *pgParamBuilder) Count() int    { return p.n }

// --- SQLite ParamBuilder ---

type sqliteParamBuilder struct {
	params []any
	n      int
}

func (p *sqliteParamBuilder) Add(v any) string {
	p.n++
	p.params = append(p.params, v)
	return fmt.Sprintf("?%d", p.n)
}

func (p *sqliteParamBuilder) Params() []any { return p.params }
func (p *sqliteParamBuilder) Count() int    { return p.n }

// --- MySQL ParamBuilder ---

type mysqlParamBuilder struct {
	params []any
}

func (p *mysqlParamBuilder) Add(v any) string {
	p.params = append(p.params, v)
	return "?"
}

func (p *mysqlParamBuilder) Params() []any { return p.params }
func (p *mysqlParamBuilder) Count() int    { return len(p.params) }

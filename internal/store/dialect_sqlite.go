package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"modernc.org/sqlite" // Register sqlite as database/sql driver
)

// SQLiteDialect implements Dialect for SQLite via modernc.org/sqlite.
type SQLiteDialect struct{}

var regexCache sync.Map // pattern -> *regexp.Regexp

func init() {
	// "x REGEXP y" calls regexp(y, x)
	sqlite.MustRegisterDeterministicScalarFunction("regexp", 2,
		func(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
			pattern, ok := args[0].(string)
			if !ok || args[1] == nil {
				return int64(0), nil
			}
			var re *regexp.Regexp
			if cached, ok := regexCache.Load(pattern); ok {
				re = cached.(*regexp.Regexp)
			} else {
				compiled, err := regexp.Compile(pattern)
				if err != nil {
					return nil, err
				}
				regexCache.Store(pattern, compiled)
				re = compiled
			}
			var matched bool
			switch v := args[1].(type) {
			case string:
				matched = re.MatchString(v)
			case []byte:
				matched = re.Match(v)
			default:
				matched = re.MatchString(fmt.Sprint(v))
			}
			if matched {
				return int64(1), nil
			}
			return int64(0), nil
		})
}

func (d *SQLiteDialect) Name() string       { return "sqlite" }
func (d *SQLiteDialect) DriverName() string { return "sqlite" }

func (d *SQLiteDialect) NewParamBuilder() ParamBuilder {
	return &sqliteParamBuilder{}
}

func (d *SQLiteDialect) NeedsBoolFix() bool    { return true }
func (d *SQLiteDialect) KeyColumnType() string { return "TEXT" }
func (d *SQLiteDialect) IDColumnType() string  { return "INTEGER" }
func (d *SQLiteDialect) PrimaryKeySQL() string { return "id INTEGER PRIMARY KEY AUTOINCREMENT" }

func (d *SQLiteDialect) ColumnType(fieldType string) string {
	switch fieldType {
	case "integer", "boolean":
		return "INTEGER"
	case "float":
		return "REAL"
	default:
		return "TEXT"
	}
}

func (d *SQLiteDialect) TableExists(ctx context.Context, db *sql.DB, tableName string) (bool, error) {
	var name string
	err := db.QueryRowContext(ctx,
		"SELECT name FROM sqlite_master WHERE type='table' AND name=?1",
		tableName,
	).Scan(&name)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (d *SQLiteDialect) GetColumns(ctx context.Context, db *sql.DB, tableName string) (map[string]string, error) {
	rows, err := db.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", tableName))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols := make(map[string]string)
	for rows.Next() {
		var cid int
		var name, colType string
		var notNull int
		var dfltValue any
		var pk int
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dfltValue, &pk); err != nil {
			return nil, err
		}
		cols[name] = colType
	}
	return cols, rows.Err()
}

func (d *SQLiteDialect) InExpr(field string, pb ParamBuilder, values []any) string {
	return inList(field, pb, values)
}

// ContainsExpr relies on SQLite LIKE being case-insensitive for ASCII.
func (d *SQLiteDialect) ContainsExpr(expr, placeholder string) string {
	return fmt.Sprintf("%s LIKE %s ESCAPE '%s'", expr, placeholder, LikeEscape)
}

func (d *SQLiteDialect) TextExpr(expr string) string {
	return fmt.Sprintf("CAST(%s AS TEXT)", expr)
}

func (d *SQLiteDialect) RegexExpr(expr, placeholder string) string {
	return fmt.Sprintf("%s REGEXP %s", expr, placeholder)
}

func (d *SQLiteDialect) LimitOffset(pb ParamBuilder, limit, offset int) string {
	return limitOffset(pb, limit, offset)
}

func (d *SQLiteDialect) InsertReturningID(ctx context.Context, q Querier, sqlStr string, args ...any) (int64, error) {
	return insertLastID(ctx, q, sqlStr, args...)
}

func (d *SQLiteDialect) MapError(err error) error {
	if err == nil {
		return nil
	}
	errStr := err.Error()
	if strings.Contains(errStr, "UNIQUE constraint failed") || strings.Contains(errStr, "constraint failed: UNIQUE") {
		return fmt.Errorf("%w: %w", ErrUniqueViolation, err)
	}
	return err
}

// Compile-time check
var _ Dialect = (*SQLiteDialect)(nil)

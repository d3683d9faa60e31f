package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // Register pgx as database/sql driver
)

// PostgresDialect implements Dialect for PostgreSQL via pgx/stdlib.
type PostgresDialect struct{}

func (d *PostgresDialect) Name() string       { return "postgres" }
func (d *PostgresDialect) DriverName() string { return "pgx" }

func (d *PostgresDialect) NewParamBuilder() ParamBuilder {
	return &pgParamBuilder{}
}

func (d *PostgresDialect) NeedsBoolFix() bool    { return false }
func (d *PostgresDialect) KeyColumnType() string { return "TEXT" }
func (d *PostgresDialect) IDColumnType() string  { return "BIGINT" }
func (d *PostgresDialect) PrimaryKeySQL() string { return "id BIGSERIAL PRIMARY KEY" }

func (d *PostgresDialect) ColumnType(fieldType string) string {
	switch fieldType {
	case "integer":
		return "BIGINT"
	case "float":
		return "DOUBLE PRECISION"
	case "boolean":
		return "BOOLEAN"
	default:
		// string, enum, and JSON-encoded mapping/list
		return "TEXT"
	}
}

func (d *PostgresDialect) TableExists(ctx context.Context, db *sql.DB, tableName string) (bool, error) {
	var exists bool
	err := db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM information_schema.tables WHERE table_name = $1 AND table_schema = current_schema())`,
		tableName,
	).Scan(&exists)
	return exists, err
}

func (d *PostgresDialect) GetColumns(ctx context.Context, db *sql.DB, tableName string) (map[string]string, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT column_name, data_type FROM information_schema.columns WHERE table_name = $1 AND table_schema = current_schema()`,
		tableName,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols := make(map[string]string)
	for rows.Next() {
		var name, dataType string
		if err := rows.Scan(&name, &dataType); err != nil {
			return nil, err
		}
		cols[name] = dataType
	}
	return cols, rows.Err()
}

func (d *PostgresDialect) InExpr(field string, pb ParamBuilder, values []any) string {
	return inList(field, pb, values)
}

func (d *PostgresDialect) ContainsExpr(expr, placeholder string) string {
	return fmt.Sprintf("%s ILIKE %s ESCAPE '%s'", expr, placeholder, LikeEscape)
}

func (d *PostgresDialect) TextExpr(expr string) string {
	return fmt.Sprintf("CAST(%s AS TEXT)", expr)
}

func (d *PostgresDialect) RegexExpr(expr, placeholder string) string {
	return fmt.Sprintf("%s ~ %s", expr, placeholder)
}

func (d *PostgresDialect) LimitOffset(pb ParamBuilder, limit, offset int) string {
	return limitOffset(pb, limit, offset)
}

func (d *PostgresDialect) InsertReturningID(ctx context.Context, q Querier, sqlStr string, args ...any) (int64, error) {
	var id int64
	if err := q.QueryRowContext(ctx, sqlStr+" RETURNING id", args...).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

func (d *PostgresDialect) MapError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: %w", ErrUniqueViolation, err)
	}
	return err
}

// Compile-time check
var _ Dialect = (*PostgresDialect)(nil)

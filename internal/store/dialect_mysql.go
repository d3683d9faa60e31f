package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	"github.com/go-sql-driver/mysql"

	"nms-backend/internal/config"
)

// MySQLDialect implements Dialect for MySQL 8 via go-sql-driver/mysql.
type MySQLDialect struct{}

const mysqlDuplicateEntry = 1062

func mysqlDSN(cfg config.DatabaseConfig) string {
	mc := mysql.NewConfig()
	mc.User = cfg.User
	mc.Passwd = cfg.Password
	mc.Net = "tcp"
	mc.Addr = cfg.Host + ":" + strconv.Itoa(cfg.Port)
	mc.DBName = cfg.Name
	return mc.FormatDSN()
}

func (d *MySQLDialect) Name() string       { return "mysql" }
func (d *MySQLDialect) DriverName() string { return "mysql" }

func (d *MySQLDialect) NewParamBuilder() ParamBuilder {
	return &mysqlParamBuilder{}
}

func (d *MySQLDialect) NeedsBoolFix() bool    { return true }
func (d *MySQLDialect) KeyColumnType() string { return "VARCHAR(255)" }
func (d *MySQLDialect) IDColumnType() string  { return "BIGINT" }
func (d *MySQLDialect) PrimaryKeySQL() string { return "id BIGINT AUTO_INCREMENT PRIMARY KEY" }

func (d *MySQLDialect) ColumnType(fieldType string) string {
	switch fieldType {
	case "integer":
		return "BIGINT"
	case "float":
		return "DOUBLE"
	case "boolean":
		return "BOOLEAN"
	default:
		return "TEXT"
	}
}

func (d *MySQLDialect) TableExists(ctx context.Context, db *sql.DB, tableName string) (bool, error) {
	var n int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = DATABASE() AND table_name = ?`,
		tableName,
	).Scan(&n)
	return n > 0, err
}

func (d *MySQLDialect) GetColumns(ctx context.Context, db *sql.DB, tableName string) (map[string]string, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT column_name, data_type FROM information_schema.columns WHERE table_schema = DATABASE() AND table_name = ?`,
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

func (d *MySQLDialect) InExpr(field string, pb ParamBuilder, values []any) string {
	return inList(field, pb, values)
}

// ContainsExpr relies on the default case-insensitive collation.
func (d *MySQLDialect) ContainsExpr(expr, placeholder string) string {
	return fmt.Sprintf("%s LIKE %s ESCAPE '%s'", expr, placeholder, LikeEscape)
}

func (d *MySQLDialect) TextExpr(expr string) string {
	return fmt.Sprintf("CAST(%s AS CHAR)", expr)
}

func (d *MySQLDialect) RegexExpr(expr, placeholder string) string {
	return fmt.Sprintf("%s REGEXP %s", expr, placeholder)
}

func (d *MySQLDialect) LimitOffset(pb ParamBuilder, limit, offset int) string {
	return limitOffset(pb, limit, offset)
}

func (d *MySQLDialect) InsertReturningID(ctx context.Context, q Querier, sqlStr string, args ...any) (int64, error) {
	return insertLastID(ctx, q, sqlStr, args...)
}

func (d *MySQLDialect) MapError(err error) error {
	if err == nil {
		return nil
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && myErr.Number == mysqlDuplicateEntry {
		return fmt.Errorf("%w: %w", ErrUniqueViolation, err)
	}
	return err
}

// Compile-time check
var _ Dialect = (*MySQLDialect)(nil)

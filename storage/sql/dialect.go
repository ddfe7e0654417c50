package sql

import (
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"

	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/poiesic/vectorload/storage"
)

// dialect holds the SQL that differs between servers.
type dialect interface {
	name() string
	dialector(dsn string) gorm.Dialector
	quote(ident string) string

	// session returns statements applied to each acquired connection.
	session(timeout time.Duration) []string

	// preserve renders the assignment value keeping the stored column when
	// the incoming one is NULL.
	preserve(table, column string) string

	// excluded renders a reference to the incoming value of column.
	excluded(column string) string

	columnType(t storage.ColumnType, key bool, dims int) string
	autoID() string
	setup() []string
}

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,63}$`)

func validIdent(s string) error {
	if !identRe.MatchString(s) {
		return fmt.Errorf("%w: invalid identifier %q", storage.ErrInvalidTable, s)
	}
	return nil
}

func dialectFor(name string) (dialect, error) {
	switch name {
	case DialectMySQL:
		return mysqlDialect{}, nil
	case DialectPostgres:
		return postgresDialect{}, nil
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownDialect, name)
	}
}

// onConflict builds the conflict clause for t. Key columns are never assigned.
func onConflict(d dialect, t storage.Table) clause.OnConflict {
	keys := make([]clause.Column, 0, len(t.KeyColumns))
	for _, k := range t.KeyColumns {
		keys = append(keys, clause.Column{Name: k})
	}

	if t.Policy == storage.OverwriteAlways {
		return clause.OnConflict{
			Columns:   keys,
			DoUpdates: clause.AssignmentColumns(t.EnrichColumns),
		}
	}

	updates := make([]clause.Assignment, 0, len(t.EnrichColumns))
	for _, col := range t.EnrichColumns {
		updates = append(updates, clause.Assignment{
			Column: clause.Column{Name: col},
			Value:  gorm.Expr(d.preserve(t.Name, col)),
		})
	}
	return clause.OnConflict{Columns: keys, DoUpdates: updates}
}

type mysqlDialect struct{}

func (mysqlDialect) name() string { return DialectMySQL }

func (mysqlDialect) dialector(dsn string) gorm.Dialector {
	return mysql.New(mysql.Config{DSN: dsn})
}

func (mysqlDialect) quote(ident string) string { return "`" + ident + "`" }

func (mysqlDialect) session(timeout time.Duration) []string {
	secs := max(int(timeout.Seconds()), 1)
	return []string{
		fmt.Sprintf("SET SESSION wait_timeout = %d", secs),
		fmt.Sprintf("SET SESSION net_read_timeout = %d", secs),
		fmt.Sprintf("SET SESSION net_write_timeout = %d", secs),
	}
}

func (d mysqlDialect) preserve(_, column string) string {
	return fmt.Sprintf("COALESCE(%s,%s)", d.excluded(column), d.quote(column))
}

func (d mysqlDialect) excluded(column string) string {
	return "VALUES(" + d.quote(column) + ")"
}

func (mysqlDialect) columnType(t storage.ColumnType, key bool, dims int) string {
	switch t {
	case storage.TypeText:
		if key {
			return "VARCHAR(512)"
		}
		return "VARCHAR(1024)"
	case storage.TypeLongText:
		return "TEXT"
	case storage.TypeInt:
		return "INT"
	case storage.TypeBigInt:
		return "BIGINT"
	case storage.TypeBool:
		return "BOOLEAN"
	case storage.TypeJSON:
		return "JSON"
	case storage.TypeVector:
		return fmt.Sprintf("VECTOR(%d)", dims)
	default:
		return "TEXT"
	}
}

func (mysqlDialect) autoID() string { return "BIGINT AUTO_INCREMENT PRIMARY KEY" }

func (mysqlDialect) setup() []string { return nil }

type postgresDialect struct{}

func (postgresDialect) name() string { return DialectPostgres }

func (postgresDialect) dialector(dsn string) gorm.Dialector {
	return postgres.New(postgres.Config{DSN: dsn})
}

func (postgresDialect) quote(ident string) string { return `"` + ident + `"` }

func (postgresDialect) session(timeout time.Duration) []string {
	ms := max(timeout.Milliseconds(), 1)
	return []string{
		fmt.Sprintf("SET statement_timeout = %d", ms),
		fmt.Sprintf("SET idle_in_transaction_session_timeout = %d", ms),
	}
}

func (d postgresDialect) preserve(table, column string) string {
	return fmt.Sprintf("COALESCE(%s,%s.%s)", d.excluded(column), d.quote(table), d.quote(column))
}

func (d postgresDialect) excluded(column string) string {
	return "EXCLUDED." + d.quote(column)
}

func (postgresDialect) columnType(t storage.ColumnType, _ bool, dims int) string {
	switch t {
	case storage.TypeText, storage.TypeLongText:
		return "TEXT"
	case storage.TypeInt:
		return "INTEGER"
	case storage.TypeBigInt:
		return "BIGINT"
	case storage.TypeBool:
		return "BOOLEAN"
	case storage.TypeJSON:
		return "JSONB"
	case storage.TypeVector:
		return fmt.Sprintf("vector(%d)", dims)
	default:
		return "TEXT"
	}
}

func (postgresDialect) autoID() string { return "BIGSERIAL PRIMARY KEY" }

func (postgresDialect) setup() []string {
	return []string{"CREATE EXTENSION IF NOT EXISTS vector"}
}

// createTable renders CREATE TABLE IF NOT EXISTS for t. Columns in t.Types
// that are neither key nor enrichment columns follow in sorted order.
func createTable(d dialect, t storage.Table, dims int) (string, error) {
	if err := t.Validate(); err != nil {
		return "", err
	}
	cols := t.Columns()
	for name := range t.Types {
		if !slices.Contains(cols, name) {
			cols = append(cols, name)
		}
	}
	slices.Sort(cols[len(t.KeyColumns)+len(t.EnrichColumns):])

	if err := validIdent(t.Name); err != nil {
		return "", err
	}
	lines := []string{"  " + d.quote("id") + " " + d.autoID()}
	for _, col := range cols {
		if err := validIdent(col); err != nil {
			return "", err
		}
		key := slices.Contains(t.KeyColumns, col)
		typ, ok := t.Types[col]
		if !ok {
			typ = storage.TypeLongText
			if key {
				typ = storage.TypeText
			}
		}
		line := "  " + d.quote(col) + " " + d.columnType(typ, key, dims)
		if key {
			line += " NOT NULL"
		}
		lines = append(lines, line)
	}

	quoted := make([]string, len(t.KeyColumns))
	for i, k := range t.KeyColumns {
		quoted[i] = d.quote(k)
	}
	lines = append(lines, fmt.Sprintf("  CONSTRAINT %s UNIQUE (%s)",
		d.quote("uk_"+t.Name+"_"+strings.Join(t.KeyColumns, "_")), strings.Join(quoted, ", ")))

	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n%s\n)", d.quote(t.Name), strings.Join(lines, ",\n")), nil
}

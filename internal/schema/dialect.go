package schema

import (
	"fmt"
	"strconv"
	"strings"
)

// Dialect names a SQL flavor. The values double as database/sql driver kinds
// in configuration.
type Dialect string

const (
	Postgres  Dialect = "postgres"
	SQLite    Dialect = "sqlite"
	SQLServer Dialect = "sqlserver"
	MySQL     Dialect = "mysql"
)

// Dialects lists every supported dialect.
func Dialects() []Dialect { return []Dialect{Postgres, SQLite, SQLServer, MySQL} }

type renderer interface {
	quote(ident string) string
	placeholder(n int) string
	sqlType(c Column) string
	createTable(t Table) string
	dropTable(t Table) string
	insert(t Table) string
}

func rendererFor(d Dialect) (renderer, error) {
	switch d {
	case Postgres:
		return postgresRenderer{}, nil
	case SQLite:
		return sqliteRenderer{}, nil
	case SQLServer:
		return sqlserverRenderer{}, nil
	case MySQL:
		return mysqlRenderer{}, nil
	default:
		return nil, fmt.Errorf("schema: unsupported dialect %q", d)
	}
}

// columnDefs renders the column and constraint lines of a CREATE TABLE body.
func columnDefs(r renderer, t Table) string {
	lines := make([]string, 0, len(t.Columns)+2)
	for _, c := range t.Columns {
		def := r.quote(c.Name) + " " + r.sqlType(c)
		if c.NotNull {
			def += " NOT NULL"
		}
		lines = append(lines, def)
	}
	if len(t.PrimaryKey) > 0 {
		lines = append(lines, "PRIMARY KEY ("+strings.Join(quoteAll(r, t.PrimaryKey), ", ")+")")
	}
	if len(t.Unique) > 0 {
		lines = append(lines, "UNIQUE ("+strings.Join(quoteAll(r, t.Unique), ", ")+")")
	}
	return "(\n  " + strings.Join(lines, ",\n  ") + "\n)"
}

func plainInsert(r renderer, t Table) string {
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		r.quote(t.Name),
		strings.Join(quoteAll(r, t.Insert), ", "),
		placeholders(r, len(t.Insert)),
	)
}

// onConflict renders the ON CONFLICT clause shared by Postgres and SQLite.
func onConflict(r renderer, t Table) string {
	target := strings.Join(quoteAll(r, t.Conflict.Target), ", ")
	if t.Conflict.Action == DoNothing {
		return fmt.Sprintf(" ON CONFLICT (%s) DO NOTHING", target)
	}
	set := make([]string, len(t.Conflict.Set))
	for i, c := range t.Conflict.Set {
		set[i] = fmt.Sprintf("%s = EXCLUDED.%s", r.quote(c), r.quote(c))
	}
	return fmt.Sprintf(" ON CONFLICT (%s) DO UPDATE SET %s", target, strings.Join(set, ", "))
}

func doubleQuote(id string) string { return `"` + strings.ReplaceAll(id, `"`, `""`) + `"` }

/*
	Postgres
*/

type postgresRenderer struct{}

func (postgresRenderer) quote(id string) string   { return doubleQuote(id) }
func (postgresRenderer) placeholder(n int) string { return "$" + strconv.Itoa(n) }

func (postgresRenderer) sqlType(c Column) string {
	switch c.Kind {
	case Int:
		return "INT"
	case Float:
		return "DOUBLE PRECISION"
	case Timestamp:
		return "TIMESTAMP"
	case Serial:
		return "SERIAL"
	default:
		return "VARCHAR"
	}
}

func (p postgresRenderer) createTable(t Table) string {
	return "CREATE TABLE IF NOT EXISTS " + p.quote(t.Name) + " " + columnDefs(p, t)
}

func (p postgresRenderer) dropTable(t Table) string {
	return "DROP TABLE IF EXISTS " + p.quote(t.Name)
}

func (p postgresRenderer) insert(t Table) string {
	return plainInsert(p, t) + onConflict(p, t)
}

/*
	SQLite
*/

type sqliteRenderer struct{}

func (sqliteRenderer) quote(id string) string { return doubleQuote(id) }
func (sqliteRenderer) placeholder(int) string { return "?" }

func (sqliteRenderer) sqlType(c Column) string {
	switch c.Kind {
	case Int, Serial:
		// A single-column INTEGER primary key becomes the rowid alias, which
		// gives Serial its auto-assigned values.
		return "INTEGER"
	case Float:
		return "REAL"
	case Timestamp:
		return "TIMESTAMP"
	default:
		return "TEXT"
	}
}

func (s sqliteRenderer) createTable(t Table) string {
	return "CREATE TABLE IF NOT EXISTS " + s.quote(t.Name) + " " + columnDefs(s, t)
}

func (s sqliteRenderer) dropTable(t Table) string {
	return "DROP TABLE IF EXISTS " + s.quote(t.Name)
}

func (s sqliteRenderer) insert(t Table) string {
	return plainInsert(s, t) + onConflict(s, t)
}

/*
	SQL Server
*/

type sqlserverRenderer struct{}

func (sqlserverRenderer) quote(id string) string {
	return "[" + strings.ReplaceAll(id, "]", "]]") + "]"
}
func (sqlserverRenderer) placeholder(n int) string { return "@p" + strconv.Itoa(n) }

func (sqlserverRenderer) sqlType(c Column) string {
	switch c.Kind {
	case KeyText:
		return "NVARCHAR(256)"
	case Int:
		return "INT"
	case Float:
		return "FLOAT"
	case Timestamp:
		return "DATETIME2(3)"
	case Serial:
		return "INT IDENTITY(1,1)"
	default:
		return "NVARCHAR(MAX)"
	}
}

func (s sqlserverRenderer) createTable(t Table) string {
	return fmt.Sprintf("IF OBJECT_ID(N'%s', N'U') IS NULL CREATE TABLE %s %s",
		strings.ReplaceAll(t.Name, "'", "''"), s.quote(t.Name), columnDefs(s, t))
}

func (s sqlserverRenderer) dropTable(t Table) string {
	return "DROP TABLE IF EXISTS " + s.quote(t.Name)
}

// insert renders a MERGE keyed on the conflict target. When the target is
// not among the inserted columns (the serial songplay key) no conflict is
// possible and a plain INSERT is emitted.
func (s sqlserverRenderer) insert(t Table) string {
	if !targetInserted(t) {
		return plainInsert(s, t)
	}
	cols := quoteAll(s, t.Insert)

	on := make([]string, len(t.Conflict.Target))
	for i, c := range t.Conflict.Target {
		on[i] = fmt.Sprintf("t.%s = s.%s", s.quote(c), s.quote(c))
	}
	src := make([]string, len(cols))
	for i, c := range cols {
		src[i] = "s." + c
	}

	var b strings.Builder
	fmt.Fprintf(&b, "MERGE INTO %s WITH (HOLDLOCK) AS t USING (VALUES (%s)) AS s (%s) ON %s",
		s.quote(t.Name), placeholders(s, len(cols)), strings.Join(cols, ", "), strings.Join(on, " AND "))
	if t.Conflict.Action == DoUpdate {
		set := make([]string, len(t.Conflict.Set))
		for i, c := range t.Conflict.Set {
			set[i] = fmt.Sprintf("t.%s = s.%s", s.quote(c), s.quote(c))
		}
		fmt.Fprintf(&b, " WHEN MATCHED THEN UPDATE SET %s", strings.Join(set, ", "))
	}
	fmt.Fprintf(&b, " WHEN NOT MATCHED THEN INSERT (%s) VALUES (%s);",
		strings.Join(cols, ", "), strings.Join(src, ", "))
	return b.String()
}

/*
	MySQL
*/

type mysqlRenderer struct{}

func (mysqlRenderer) quote(id string) string {
	return "`" + strings.ReplaceAll(id, "`", "``") + "`"
}
func (mysqlRenderer) placeholder(int) string { return "?" }

func (mysqlRenderer) sqlType(c Column) string {
	switch c.Kind {
	case KeyText:
		return "VARCHAR(255)"
	case Int:
		return "INT"
	case Float:
		return "DOUBLE"
	case Timestamp:
		return "DATETIME(3)"
	case Serial:
		return "BIGINT AUTO_INCREMENT"
	default:
		return "TEXT"
	}
}

func (m mysqlRenderer) createTable(t Table) string {
	return "CREATE TABLE IF NOT EXISTS " + m.quote(t.Name) + " " + columnDefs(m, t)
}

func (m mysqlRenderer) dropTable(t Table) string {
	return "DROP TABLE IF EXISTS " + m.quote(t.Name)
}

// insert uses ON DUPLICATE KEY UPDATE. Ignore is a self-assignment of the
// first target column; INSERT IGNORE would also downgrade NOT NULL errors.
func (m mysqlRenderer) insert(t Table) string {
	if !targetInserted(t) {
		return plainInsert(m, t)
	}
	var set []string
	if t.Conflict.Action == DoUpdate {
		for _, c := range t.Conflict.Set {
			set = append(set, fmt.Sprintf("%s = VALUES(%s)", m.quote(c), m.quote(c)))
		}
	} else {
		k := m.quote(t.Conflict.Target[0])
		set = []string{k + " = " + k}
	}
	return plainInsert(m, t) + " ON DUPLICATE KEY UPDATE " + strings.Join(set, ", ")
}

package bunsql

import (
	"fmt"
	"strings"

	"github.com/uptrace/bun/dialect"

	"github.com/custodia-labs/authcore/internal/core/domain"
	"github.com/custodia-labs/authcore/internal/core/ports/driven"
)

func (d *Driver) createTableSQL(t driven.Table) string {
	name := d.root.Dialect().Name()
	cols := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		def := c.Name + " " + columnType(name, c)
		if c.Name == t.IDColumn {
			def += " PRIMARY KEY"
		} else if c.Unique {
			def += " UNIQUE"
		}
		cols = append(cols, def)
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", t.Name, strings.Join(cols, ", "))
}

func columnType(name dialect.Name, c driven.Column) string {
	switch name {
	case dialect.MySQL:
		switch c.Type {
		case domain.FieldNumber:
			return "DOUBLE"
		case domain.FieldBoolean:
			return "TINYINT"
		case domain.FieldDate:
			return "DATETIME(6)"
		case domain.FieldJSON:
			return "TEXT"
		default:
			// TEXT cannot back a primary key or unique index in MySQL.
			if c.Unique {
				return "VARCHAR(255)"
			}
			return "TEXT"
		}
	case dialect.PG:
		switch c.Type {
		case domain.FieldNumber:
			return "DOUBLE PRECISION"
		case domain.FieldBoolean:
			return "BOOLEAN"
		case domain.FieldDate:
			return "TIMESTAMPTZ"
		case domain.FieldJSON:
			return "JSONB"
		default:
			return "TEXT"
		}
	default: // SQLite stores everything as NUMERIC/TEXT anyway
		switch c.Type {
		case domain.FieldNumber:
			return "NUMERIC"
		case domain.FieldBoolean:
			return "INTEGER"
		default:
			return "TEXT"
		}
	}
}

package bunsql

import (
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver via pgx
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/mysqldialect"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"github.com/custodia-labs/authcore/internal/core/ports/driven"
)

// OpenSQLite opens a SQLite database. SQLite stores booleans, timestamps and
// structured values as plain numbers/text, so the adapter compensates for
// all three.
func OpenSQLite(dsn string) (*Driver, error) {
	sqldb, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	db := bun.NewDB(sqldb, sqlitedialect.New())
	return newDriver(db, driven.Capabilities{Transactions: true}), nil
}

// OpenMySQL opens a MySQL database.
func OpenMySQL(dsn string) (*Driver, error) {
	sqldb, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open mysql database: %w", err)
	}
	db := bun.NewDB(sqldb, mysqldialect.New())
	return newDriver(db, driven.Capabilities{Dates: true, Transactions: true}), nil
}

// OpenPostgres opens a PostgreSQL database through the pgx stdlib driver.
func OpenPostgres(dsn string) (*Driver, error) {
	sqldb, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres database: %w", err)
	}
	db := bun.NewDB(sqldb, pgdialect.New())
	return newDriver(db, driven.Capabilities{Booleans: true, Dates: true, Transactions: true}), nil
}

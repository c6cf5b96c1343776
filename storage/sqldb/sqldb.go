// Package sqldb holds the database handle shared by every SQL backed store:
// driver dialect, placeholder rebinding, upserts, transactions and duplicate key detection.
package sqldb

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/pkg/errors"
	"modernc.org/sqlite"
)

const (
	MySQLDriver  Driver = "mysql"
	PGDriver     Driver = "pg"
	SQLiteDriver Driver = "sqlite"
)

// Driver is a dialect name. Required because database/sql can't tell which database is behind *sql.DB,
// see https://github.com/golang/go/issues/3602
type Driver string

func ParseDriver(name string) (Driver, error) {
	switch Driver(name) {
	case MySQLDriver, PGDriver, SQLiteDriver:
		return Driver(name), nil
	case "postgres", "pgx":
		return PGDriver, nil
	}

	return "", errors.Errorf("unsupported sql driver '%s'", name)
}

// driverName is the name registered in database/sql by the driver package
func (d Driver) driverName() string {
	switch d {
	case PGDriver:
		return "pgx"
	default:
		return string(d)
	}
}

type DB struct {
	*sql.DB
	driver Driver
}

func New(db *sql.DB, driver Driver) *DB {
	return &DB{DB: db, driver: driver}
}

// Open opens a database of the driver. The driver package must be imported by the caller.
// In-memory sqlite lives within one connection, so the pool is limited to a single one.
func Open(driver Driver, dsn string) (*DB, error) {
	db, err := sql.Open(driver.driverName(), dsn)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %s database", driver)
	}

	if driver == SQLiteDriver {
		db.SetMaxOpenConns(1)
	}

	return New(db, driver), nil
}

func (d *DB) Driver() Driver {
	return d.driver
}

// Rebind replaces wildcard params to specific driver. Standard wildcard is '?'
func (d *DB) Rebind(query string) string {
	if d.driver != PGDriver {
		return query
	}

	var res []byte

	counter := 1

	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			res = append(append(res, '$'), []byte(strconv.Itoa(counter))...)
			counter++

			continue
		}
		res = append(res, query[i])
	}

	return string(res)
}

// Upsert builds a rebound insert of columns which overwrites all non key columns on a key conflict
func (d *DB) Upsert(table string, keys []string, columns []string) string {
	var updates []string

	for _, c := range columns {
		if contains(keys, c) {
			continue
		}

		if d.driver == MySQLDriver {
			updates = append(updates, c+"=VALUES("+c+")")
		} else {
			updates = append(updates, c+"=excluded."+c)
		}
	}

	query := insert("INSERT INTO", table, columns)

	if d.driver == MySQLDriver {
		query += " ON DUPLICATE KEY UPDATE " + strings.Join(updates, ", ")
	} else {
		query += " ON CONFLICT (" + strings.Join(keys, ", ") + ") DO UPDATE SET " + strings.Join(updates, ", ")
	}

	return d.Rebind(query + ";")
}

// InsertIgnore builds a rebound insert which leaves an existing row with the same keys untouched
func (d *DB) InsertIgnore(table string, keys []string, columns []string) string {
	if d.driver == MySQLDriver {
		return insert("INSERT IGNORE INTO", table, columns) + ";"
	}

	return d.Rebind(insert("INSERT INTO", table, columns) + " ON CONFLICT (" + strings.Join(keys, ", ") + ") DO NOTHING;")
}

func insert(verb, table string, columns []string) string {
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(columns)), ", ")

	return verb + " " + table + " (" + strings.Join(columns, ", ") + ") VALUES (" + placeholders + ")"
}

// WithTx runs fn in a transaction. The transaction is committed if fn returns nil and rolled back otherwise.
func (d *DB) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := d.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "beginning a transaction")
	}

	if err := fn(tx); err != nil {
		if rErr := tx.Rollback(); rErr != nil {
			return errors.Wrapf(rErr, "rollback when %s", err)
		}

		return err
	}

	if err := tx.Commit(); err != nil {
		return errors.WithStack(err)
	}

	return nil
}

// InitTables executes create statements in one transaction
func (d *DB) InitTables(ctx context.Context, statements ...string) error {
	return d.WithTx(ctx, func(tx *sql.Tx) error {
		for _, stmt := range statements {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return errors.WithStack(err)
			}
		}

		return nil
	})
}

type sqlStateErr interface {
	SQLState() string
}

const (
	mysqlDuplicateEntry        = 1062
	pgUniqueViolation          = "23505"
	sqliteConstraint           = 19
	sqliteConstraintPrimaryKey = 1555
	sqliteConstraintUnique     = 2067
)

// IsDuplicateKey reports whether err is a primary key or unique constraint violation of any supported driver
func IsDuplicateKey(err error) bool {
	if err == nil {
		return false
	}

	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == mysqlDuplicateEntry
	}

	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		// extended result codes may be disabled, then only the primary one is known
		switch sqliteErr.Code() {
		case sqliteConstraintPrimaryKey, sqliteConstraintUnique, sqliteConstraint:
			return true
		}

		return false
	}

	var pgErr sqlStateErr
	if errors.As(err, &pgErr) {
		return pgErr.SQLState() == pgUniqueViolation
	}

	return false
}

// Timestamp stores time as unix nanoseconds, zero time is stored as 0
func Timestamp(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}

	return t.UnixNano()
}

// Time restores a time stored by Timestamp
func Time(nanos int64) time.Time {
	if nanos == 0 {
		return time.Time{}
	}

	return time.Unix(0, nanos).UTC()
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}

	return false
}

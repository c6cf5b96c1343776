package idempotency

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"

	"github.com/go-foreman/orderflow/storage/sqldb"
)

const processedEventTableName = "processed_event"

type sqlLedger struct {
	db  *sqldb.DB
	now func() time.Time
}

// NewSQLLedger creates a ledger backed by processed_event table, the table is created if it doesn't exist
func NewSQLLedger(db *sqldb.DB) (Ledger, error) {
	l := &sqlLedger{db: db, now: time.Now}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*30)
	defer cancel()

	if err := db.InitTables(ctx, fmt.Sprintf(`create table if not exists %s
	(
		event_id varchar(255) not null primary key,
		processed_at bigint not null
	);`, processedEventTableName)); err != nil {
		return nil, errors.Wrapf(err, "initializing tables for SQLLedger, driver %s", db.Driver())
	}

	return l, nil
}

func (l *sqlLedger) IsDuplicate(ctx context.Context, eventID string) (bool, error) {
	var count int

	if err := l.db.QueryRowContext(ctx, l.db.Rebind(fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE event_id=?;", processedEventTableName)), eventID).Scan(&count); err != nil {
		return false, errors.Wrapf(err, "checking processed event %s", eventID)
	}

	return count > 0, nil
}

func (l *sqlLedger) MarkProcessed(ctx context.Context, eventID string) error {
	query := l.db.InsertIgnore(processedEventTableName, []string{"event_id"}, []string{"event_id", "processed_at"})

	if _, err := l.db.ExecContext(ctx, query, eventID, sqldb.Timestamp(l.now())); err != nil {
		// a concurrent delivery of the same event has won the race
		if sqldb.IsDuplicateKey(err) {
			return nil
		}

		return errors.Wrapf(err, "marking event %s as processed", eventID)
	}

	return nil
}

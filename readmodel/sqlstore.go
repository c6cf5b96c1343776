package readmodel

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/go-foreman/orderflow/storage/sqldb"
)

const (
	orderReadTableName  = "order_read"
	syncStatusTableName = "sync_status"
)

var (
	orderReadColumns  = []string{"order_id", "customer_id", "status", "status_text", "item_count", "item_names", "total", "last_event_id", "source_updated_at", "synced_at"}
	syncStatusColumns = []string{"order_id", "event_id", "event_type", "event", "status", "retry_count", "last_error", "updated_at"}
)

type sqlStore struct {
	db *sqldb.DB
}

// NewSQLStore creates order_read table if it doesn't exist
func NewSQLStore(db *sqldb.DB) (Store, error) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*30)
	defer cancel()

	err := db.InitTables(ctx, fmt.Sprintf(`create table if not exists %s
	(
		order_id varchar(255) not null primary key,
		customer_id varchar(255) not null,
		status varchar(255) not null,
		status_text varchar(255) not null,
		item_count int not null,
		item_names text not null,
		total bigint not null,
		last_event_id varchar(255) not null,
		source_updated_at bigint not null,
		synced_at bigint not null
	);`, orderReadTableName))
	if err != nil {
		return nil, errors.Wrapf(err, "initializing tables for read model SQLStore, driver %s", db.Driver())
	}

	return &sqlStore{db: db}, nil
}

func (s *sqlStore) Get(ctx context.Context, orderID string) (*OrderRead, error) {
	row, err := scanOrderRead(s.db.QueryRowContext(ctx, s.db.Rebind(fmt.Sprintf("SELECT %s FROM %s WHERE order_id=?;", strings.Join(orderReadColumns, ", "), orderReadTableName)), orderID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.Wrapf(ErrOrderNotFound, "order %s", orderID)
		}

		return nil, errors.Wrapf(err, "querying read model of order %s", orderID)
	}

	return row, nil
}

func (s *sqlStore) Upsert(ctx context.Context, row OrderRead) error {
	itemNames, err := json.Marshal(row.ItemNames)
	if err != nil {
		return errors.Wrapf(err, "marshalling item names of order %s", row.OrderID)
	}

	_, err = s.db.ExecContext(ctx, s.db.Upsert(orderReadTableName, []string{"order_id"}, orderReadColumns),
		row.OrderID,
		row.CustomerID,
		row.Status,
		row.StatusText,
		row.ItemCount,
		string(itemNames),
		row.Total,
		row.LastEventID,
		sqldb.Timestamp(row.SourceUpdatedAt),
		sqldb.Timestamp(row.SyncedAt),
	)
	if err != nil {
		return errors.Wrapf(err, "upserting read model of order %s", row.OrderID)
	}

	return nil
}

func (s *sqlStore) List(ctx context.Context, afterID string, limit int) ([]OrderRead, error) {
	rows, err := s.db.QueryContext(ctx, s.db.Rebind(fmt.Sprintf("SELECT %s FROM %s WHERE order_id > ? ORDER BY order_id LIMIT ?;", strings.Join(orderReadColumns, ", "), orderReadTableName)), afterID, rowLimit(limit))
	if err != nil {
		return nil, errors.Wrap(err, "listing read models")
	}

	defer rows.Close()

	var res []OrderRead

	for rows.Next() {
		row, err := scanOrderRead(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scanning read model")
		}

		res = append(res, *row)
	}

	return res, errors.WithStack(rows.Err())
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanOrderRead(row scanner) (*OrderRead, error) {
	var (
		res                       = &OrderRead{}
		itemNames                 string
		sourceUpdatedAt, syncedAt int64
	)

	err := row.Scan(
		&res.OrderID,
		&res.CustomerID,
		&res.Status,
		&res.StatusText,
		&res.ItemCount,
		&itemNames,
		&res.Total,
		&res.LastEventID,
		&sourceUpdatedAt,
		&syncedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(itemNames), &res.ItemNames); err != nil {
		return nil, errors.Wrapf(err, "unmarshalling item names of order %s", res.OrderID)
	}

	res.SourceUpdatedAt = sqldb.Time(sourceUpdatedAt)
	res.SyncedAt = sqldb.Time(syncedAt)

	return res, nil
}

type sqlSyncStatusStore struct {
	db *sqldb.DB
}

// NewSQLSyncStatusStore creates sync_status table if it doesn't exist
func NewSQLSyncStatusStore(db *sqldb.DB) (SyncStatusStore, error) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*30)
	defer cancel()

	err := db.InitTables(ctx, fmt.Sprintf(`create table if not exists %s
	(
		order_id varchar(255) not null,
		event_id varchar(255) not null,
		event_type varchar(255) not null,
		event text not null,
		status varchar(255) not null,
		retry_count int not null,
		last_error text not null,
		updated_at bigint not null,
		primary key (order_id, event_id)
	);`, syncStatusTableName))
	if err != nil {
		return nil, errors.Wrapf(err, "initializing tables for sync status SQLStore, driver %s", db.Driver())
	}

	return &sqlSyncStatusStore{db: db}, nil
}

func (s *sqlSyncStatusStore) Save(ctx context.Context, status SyncStatus) error {
	_, err := s.db.ExecContext(ctx, s.db.Upsert(syncStatusTableName, []string{"order_id", "event_id"}, syncStatusColumns),
		status.OrderID,
		status.EventID,
		status.EventType,
		string(status.Event),
		status.Status.String(),
		status.RetryCount,
		status.LastError,
		sqldb.Timestamp(status.UpdatedAt),
	)
	if err != nil {
		return errors.Wrapf(err, "saving sync status of event %s of order %s", status.EventID, status.OrderID)
	}

	return nil
}

func (s *sqlSyncStatusStore) Get(ctx context.Context, orderID, eventID string) (*SyncStatus, error) {
	status, err := scanSyncStatus(s.db.QueryRowContext(ctx, s.db.Rebind(fmt.Sprintf("SELECT %s FROM %s WHERE order_id=? AND event_id=?;", strings.Join(syncStatusColumns, ", "), syncStatusTableName)), orderID, eventID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, errors.Wrapf(err, "querying sync status of event %s of order %s", eventID, orderID)
	}

	return status, nil
}

func (s *sqlSyncStatusStore) ListFailed(ctx context.Context, maxRetries, limit int) ([]SyncStatus, error) {
	return s.list(ctx,
		fmt.Sprintf("SELECT %s FROM %s WHERE status=? AND retry_count < ? ORDER BY updated_at, order_id, event_id LIMIT ?;", strings.Join(syncStatusColumns, ", "), syncStatusTableName),
		SyncFailed.String(), maxRetries, rowLimit(limit),
	)
}

func (s *sqlSyncStatusStore) ListUnresolved(ctx context.Context, limit int) ([]SyncStatus, error) {
	return s.list(ctx,
		fmt.Sprintf("SELECT %s FROM %s WHERE status <> ? ORDER BY updated_at, order_id, event_id LIMIT ?;", strings.Join(syncStatusColumns, ", "), syncStatusTableName),
		SyncSucceeded.String(), rowLimit(limit),
	)
}

func (s *sqlSyncStatusStore) CountByStatus(ctx context.Context) (map[SyncState]int, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("SELECT status, COUNT(*) FROM %s GROUP BY status;", syncStatusTableName))
	if err != nil {
		return nil, errors.Wrap(err, "counting sync statuses")
	}

	defer rows.Close()

	counts := make(map[SyncState]int)

	for rows.Next() {
		var (
			status string
			count  int
		)

		if err := rows.Scan(&status, &count); err != nil {
			return nil, errors.WithStack(err)
		}

		state, err := ParseSyncState(status)
		if err != nil {
			return nil, err
		}

		counts[state] = count
	}

	return counts, errors.WithStack(rows.Err())
}

func (s *sqlSyncStatusStore) list(ctx context.Context, query string, args ...interface{}) ([]SyncStatus, error) {
	rows, err := s.db.QueryContext(ctx, s.db.Rebind(query), args...)
	if err != nil {
		return nil, errors.Wrap(err, "listing sync statuses")
	}

	defer rows.Close()

	var res []SyncStatus

	for rows.Next() {
		status, err := scanSyncStatus(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scanning sync status")
		}

		res = append(res, *status)
	}

	return res, errors.WithStack(rows.Err())
}

func scanSyncStatus(row scanner) (*SyncStatus, error) {
	var (
		res       = &SyncStatus{}
		event     string
		status    string
		updatedAt int64
	)

	err := row.Scan(&res.OrderID, &res.EventID, &res.EventType, &event, &status, &res.RetryCount, &res.LastError, &updatedAt)
	if err != nil {
		return nil, err
	}

	if res.Status, err = ParseSyncState(status); err != nil {
		return nil, err
	}

	res.Event = []byte(event)
	res.UpdatedAt = sqldb.Time(updatedAt)

	return res, nil
}

func rowLimit(limit int) int {
	if limit <= 0 {
		return math.MaxInt32
	}

	return limit
}

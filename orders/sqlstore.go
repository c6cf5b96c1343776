package orders

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/go-foreman/orderflow/storage/sqldb"
)

const (
	orderTableName     = "orders"
	orderItemTableName = "order_item"
)

var (
	orderColumns = []string{"id", "customer_id", "status", "total", "created_at", "updated_at"}
	itemColumns  = []string{"order_id", "line", "sku", "name", "quantity", "unit_price"}
)

type sqlStore struct {
	db *sqldb.DB
}

// NewSQLStore creates orders and order_item tables if they don't exist
func NewSQLStore(db *sqldb.DB) (WriteStore, error) {
	s := &sqlStore{db: db}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second*30)
	defer cancel()

	err := db.InitTables(ctx,
		fmt.Sprintf(`create table if not exists %s
	(
		id varchar(255) not null primary key,
		customer_id varchar(255) not null,
		status varchar(255) not null,
		total bigint not null,
		created_at bigint not null,
		updated_at bigint not null
	);`, orderTableName),
		fmt.Sprintf(`create table if not exists %s
	(
		order_id varchar(255) not null,
		line int not null,
		sku varchar(255) not null,
		name varchar(255) not null,
		quantity int not null,
		unit_price bigint not null,
		primary key (order_id, line)
	);`, orderItemTableName),
	)
	if err != nil {
		return nil, errors.Wrapf(err, "initializing tables for orders SQLStore, driver %s", db.Driver())
	}

	return s, nil
}

func (s *sqlStore) Get(ctx context.Context, orderID string) (*Order, error) {
	var (
		order                = &Order{}
		status               string
		createdAt, updatedAt int64
	)

	err := s.db.QueryRowContext(ctx, s.db.Rebind(fmt.Sprintf("SELECT %s FROM %s WHERE id=?;", strings.Join(orderColumns, ", "), orderTableName)), orderID).
		Scan(&order.ID, &order.CustomerID, &status, &order.Total, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.Wrapf(ErrNotFound, "order %s", orderID)
		}

		return nil, errors.Wrapf(err, "querying order %s", orderID)
	}

	if order.Status, err = ParseStatus(status); err != nil {
		return nil, errors.Wrapf(err, "order %s", orderID)
	}

	order.CreatedAt = sqldb.Time(createdAt)
	order.UpdatedAt = sqldb.Time(updatedAt)

	rows, err := s.db.QueryContext(ctx, s.db.Rebind(fmt.Sprintf("SELECT sku, name, quantity, unit_price FROM %s WHERE order_id=? ORDER BY line;", orderItemTableName)), orderID)
	if err != nil {
		return nil, errors.Wrapf(err, "querying items of order %s", orderID)
	}

	defer rows.Close()

	for rows.Next() {
		item := Item{}
		if err := rows.Scan(&item.SKU, &item.Name, &item.Quantity, &item.UnitPrice); err != nil {
			return nil, errors.Wrapf(err, "scanning item of order %s", orderID)
		}

		order.Items = append(order.Items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.WithStack(err)
	}

	return order, nil
}

func (s *sqlStore) Save(ctx context.Context, order *Order) error {
	return s.db.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, s.db.Upsert(orderTableName, []string{"id"}, orderColumns),
			order.ID,
			order.CustomerID,
			order.Status.String(),
			order.Total,
			sqldb.Timestamp(order.CreatedAt),
			sqldb.Timestamp(order.UpdatedAt),
		)
		if err != nil {
			return errors.Wrapf(err, "saving order %s", order.ID)
		}

		if _, err := tx.ExecContext(ctx, s.db.Rebind(fmt.Sprintf("DELETE FROM %s WHERE order_id=?;", orderItemTableName)), order.ID); err != nil {
			return errors.Wrapf(err, "deleting items of order %s", order.ID)
		}

		query := s.db.Rebind(fmt.Sprintf("INSERT INTO %s (%s) VALUES (?, ?, ?, ?, ?, ?);", orderItemTableName, strings.Join(itemColumns, ", ")))

		for i, item := range order.Items {
			if _, err := tx.ExecContext(ctx, query, order.ID, i+1, item.SKU, item.Name, item.Quantity, item.UnitPrice); err != nil {
				return errors.Wrapf(err, "inserting item %d of order %s", i+1, order.ID)
			}
		}

		return nil
	})
}

func (s *sqlStore) UpdateStatus(ctx context.Context, orderID string, status Status, at time.Time) error {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(fmt.Sprintf("UPDATE %s SET status=?, updated_at=? WHERE id=?;", orderTableName)),
		status.String(),
		sqldb.Timestamp(at),
		orderID,
	)
	if err != nil {
		return errors.Wrapf(err, "updating status of order %s", orderID)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return errors.Wrapf(err, "getting affected rows of order %s update", orderID)
	}

	if affected == 0 {
		return errors.Wrapf(ErrNotFound, "order %s", orderID)
	}

	return nil
}

func (s *sqlStore) ListIDs(ctx context.Context, afterID string, limit int) ([]string, error) {
	if limit <= 0 {
		limit = math.MaxInt32
	}

	rows, err := s.db.QueryContext(ctx, s.db.Rebind(fmt.Sprintf("SELECT id FROM %s WHERE id > ? ORDER BY id LIMIT ?;", orderTableName)), afterID, limit)
	if err != nil {
		return nil, errors.Wrap(err, "listing order ids")
	}

	defer rows.Close()

	var ids []string

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.WithStack(err)
		}

		ids = append(ids, id)
	}

	return ids, errors.WithStack(rows.Err())
}

package mutex

import (
	"context"
	"crypto/sha1"
	"database/sql"
	"encoding/hex"
	"fmt"

	"github.com/pkg/errors"

	"github.com/go-foreman/orderflow/log"
	"github.com/go-foreman/orderflow/storage/sqldb"
)

// NewSqlMutex creates a mutex shared by all the processes working with db.
// MySQL uses GET_LOCK, postgres uses session advisory locks, both held on a dedicated connection.
// SQLite has a single writer process, so an in process mutex is returned.
func NewSqlMutex(db *sqldb.DB, logger log.Logger) Mutex {
	switch db.Driver() {
	case sqldb.MySQLDriver:
		return &mysqlMutex{db: db.DB, logger: logger}
	case sqldb.PGDriver:
		return &pgsqlMutex{db: db.DB, logger: logger}
	default:
		return NewInProcessMutex()
	}
}

// mysql lock names are limited to 64 characters
const mysqlMaxLockName = 64

func mysqlLockName(key string) string {
	if len(key) <= mysqlMaxLockName {
		return key
	}

	sum := sha1.Sum([]byte(key))

	return hex.EncodeToString(sum[:])
}

type mysqlMutex struct {
	db     *sql.DB
	logger log.Logger
}

func (m *mysqlMutex) Lock(ctx context.Context, key string) (Lock, error) {
	conn, err := m.db.Conn(ctx)

	if err != nil {
		return nil, WithMutexErr(errors.Wrapf(err, "obtaining a connection from pool for %s", key))
	}

	name := mysqlLockName(key)

	r := sql.NullInt64{}
	if err := conn.QueryRowContext(ctx, "SELECT GET_LOCK(?, -1);", name).Scan(&r); err != nil {
		closingErr := conn.Close()
		return nil, WithMutexErr(errors.Wrapf(err, "acquiring lock for %s. %s", key, closingErr))
	}

	/*
		Returns 1 if the lock was obtained successfully,
		0 if the attempt timed out (for example, because another client has previously locked the name),
		or NULL if an error occurred (such as running out of memory or the thread was killed with mysqladmin kill).
	*/
	if r.Int64 != 1 {
		closingErr := conn.Close()
		return nil, WithMutexErr(errors.Errorf("got error status %d when acquiring lock for %s. %v", r.Int64, key, closingErr))
	}

	return &mysqlLock{conn: conn, key: key, name: name}, nil
}

type mysqlLock struct {
	conn *sql.Conn
	key  string
	name string
}

func (l *mysqlLock) Release(ctx context.Context) error {
	r := sql.NullInt64{}
	if err := l.conn.QueryRowContext(ctx, "SELECT RELEASE_LOCK(?);", l.name).Scan(&r); err != nil {
		closingErr := l.conn.Close()
		return WithMutexErr(errors.Wrapf(err, "releasing lock for %s. %v", l.key, closingErr))
	}

	if r.Int64 != 1 {
		closingErr := l.conn.Close()
		return WithMutexErr(errors.Errorf("lock was not established by this thread for %s. %v", l.key, closingErr))
	}

	if err := l.conn.Close(); err != nil {
		return WithMutexErr(errors.Wrapf(err, "closing connection of %s mutex", l.key))
	}

	return nil
}

type pgsqlMutex struct {
	db     *sql.DB
	logger log.Logger
}

func (p *pgsqlMutex) Lock(ctx context.Context, key string) (Lock, error) {
	var (
		conn *sql.Conn
		err  error
	)

	retries := 3

	// database/sql with pg may hand out a connection which is closed already
	// https://github.com/golang/go/issues/39449
	for i := 0; i < retries; i++ {
		conn, err = p.db.Conn(ctx)

		if err != nil {
			return nil, WithMutexErr(errors.Wrapf(err, "obtaining a connection from pool for %s", key))
		}

		if err := conn.PingContext(ctx); err != nil && i < retries-1 {
			p.logger.Logf(log.WarnLevel, "mutex connection for %s is dead, retrying. %s", key, err)
			_ = conn.Close()
			continue
		}

		break
	}

	if _, err := conn.ExecContext(ctx, "SELECT pg_advisory_lock(hashtext($1));", key); err != nil {
		errMsg := fmt.Sprintf("acquiring lock for %s. %s", key, err)

		if closingErr := conn.Close(); closingErr != nil {
			errMsg = fmt.Sprintf("%s. also failed to close connection %s", errMsg, closingErr.Error())
		}
		return nil, WithMutexErr(errors.New(errMsg))
	}

	return &pgsqlLock{conn: conn, key: key}, nil
}

type pgsqlLock struct {
	conn *sql.Conn
	key  string
}

func (l *pgsqlLock) Release(ctx context.Context) error {
	if _, err := l.conn.ExecContext(ctx, "SELECT pg_advisory_unlock(hashtext($1));", l.key); err != nil {
		closingErr := l.conn.Close()
		return WithMutexErr(errors.Wrapf(err, "releasing lock for %s. %v", l.key, closingErr))
	}

	if err := l.conn.Close(); err != nil {
		return WithMutexErr(errors.Wrapf(err, "closing mutex connection of %s", l.key))
	}

	return nil
}

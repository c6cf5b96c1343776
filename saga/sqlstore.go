package saga

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
	sagaTableName           = "saga_instance"
	sagaStepTableName       = "saga_step"
	sagaTransitionTableName = "saga_transition"
)

var (
	instanceColumns = []string{"id", "saga_type", "correlation_key", "status", "payload", "failure_reason", "version", "created_at", "updated_at", "timeout_at"}
	stepColumns     = []string{"saga_id", "name", "step_order", "status", "started_at", "completed_at", "compensated_at", "result", "failure_reason"}
	stepKeys        = []string{"saga_id", "name"}
)

type sqlStore struct {
	db *sqldb.DB
}

// NewSQLSagaStore creates sql saga store, it supports mysql, postgres and sqlite drivers.
func NewSQLSagaStore(db *sqldb.DB) (Store, error) {
	s := &sqlStore{db: db}
	if err := s.initTables(); err != nil {
		return nil, errors.Wrapf(err, "initializing tables for SQLSagaStore, driver %s", db.Driver())
	}

	return s, nil
}

// Create saves the instance with its steps and history in one transaction
func (s *sqlStore) Create(ctx context.Context, inst *Instance) error {
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, s.db.Rebind(fmt.Sprintf("INSERT INTO %s (%s) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?);", sagaTableName, strings.Join(instanceColumns, ", "))),
			inst.ID,
			inst.Type,
			inst.CorrelationKey,
			inst.Status.String(),
			string(inst.Payload),
			inst.FailureReason,
			1,
			sqldb.Timestamp(inst.CreatedAt),
			sqldb.Timestamp(inst.UpdatedAt),
			sqldb.Timestamp(inst.TimeoutAt),
		)
		if err != nil {
			if sqldb.IsDuplicateKey(err) {
				return errors.Wrapf(ErrAlreadyExists, "saga %s with correlation key %s", inst.ID, inst.CorrelationKey)
			}

			return errors.Wrapf(err, "inserting saga instance %s", inst.ID)
		}

		if err := s.saveSteps(ctx, tx, inst); err != nil {
			return err
		}

		return s.saveHistory(ctx, tx, inst, 0)
	})
	if err != nil {
		return err
	}

	inst.Version = 1
	inst.persistedHistory = len(inst.History)

	return nil
}

func (s *sqlStore) Update(ctx context.Context, inst *Instance) error {
	err := s.db.WithTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, s.db.Rebind(fmt.Sprintf("UPDATE %s SET status=?, payload=?, failure_reason=?, version=?, updated_at=?, timeout_at=? WHERE id=? AND version=?;", sagaTableName)),
			inst.Status.String(),
			string(inst.Payload),
			inst.FailureReason,
			inst.Version+1,
			sqldb.Timestamp(inst.UpdatedAt),
			sqldb.Timestamp(inst.TimeoutAt),
			inst.ID,
			inst.Version,
		)
		if err != nil {
			return errors.Wrapf(err, "updating saga instance %s", inst.ID)
		}

		affected, err := res.RowsAffected()
		if err != nil {
			return errors.Wrapf(err, "getting affected rows of saga instance %s update", inst.ID)
		}

		if affected == 0 {
			return errors.Wrapf(ErrConcurrentUpdate, "saga %s of version %d", inst.ID, inst.Version)
		}

		if err := s.saveSteps(ctx, tx, inst); err != nil {
			return err
		}

		return s.saveHistory(ctx, tx, inst, inst.persistedHistory)
	})
	if err != nil {
		return err
	}

	inst.Version++
	inst.persistedHistory = len(inst.History)

	return nil
}

func (s *sqlStore) saveSteps(ctx context.Context, tx *sql.Tx, inst *Instance) error {
	query := s.db.Upsert(sagaStepTableName, stepKeys, stepColumns)

	for _, step := range inst.Steps {
		_, err := tx.ExecContext(ctx, query,
			inst.ID,
			step.Name,
			step.Order,
			step.Status.String(),
			sqldb.Timestamp(step.StartedAt),
			sqldb.Timestamp(step.CompletedAt),
			sqldb.Timestamp(step.CompensatedAt),
			string(step.Result),
			step.FailureReason,
		)
		if err != nil {
			return errors.Wrapf(err, "saving step %s of saga %s", step.Name, inst.ID)
		}
	}

	return nil
}

// saveHistory inserts transitions starting from index from, history entries are never updated
func (s *sqlStore) saveHistory(ctx context.Context, tx *sql.Tx, inst *Instance, from int) error {
	query := s.db.Rebind(fmt.Sprintf("INSERT INTO %s (saga_id, seq, from_status, to_status, step_name, reason, occurred_at) VALUES (?, ?, ?, ?, ?, ?, ?);", sagaTransitionTableName))

	for seq := from; seq < len(inst.History); seq++ {
		t := inst.History[seq]

		if _, err := tx.ExecContext(ctx, query, inst.ID, seq, t.From.String(), t.To.String(), t.Step, t.Reason, sqldb.Timestamp(t.At)); err != nil {
			return errors.Wrapf(err, "inserting transition %d of saga %s", seq, inst.ID)
		}
	}

	return nil
}

func (s *sqlStore) Get(ctx context.Context, id string) (*Instance, error) {
	var (
		inst                            Instance
		status, payload                 string
		createdAt, updatedAt, timeoutAt int64
	)

	err := s.db.QueryRowContext(ctx, s.db.Rebind(fmt.Sprintf("SELECT %s FROM %s WHERE id=?;", strings.Join(instanceColumns, ", "), sagaTableName)), id).Scan(
		&inst.ID,
		&inst.Type,
		&inst.CorrelationKey,
		&status,
		&payload,
		&inst.FailureReason,
		&inst.Version,
		&createdAt,
		&updatedAt,
		&timeoutAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.Wrapf(ErrNotFound, "saga %s", id)
		}

		return nil, errors.Wrapf(err, "querying saga instance %s", id)
	}

	if inst.Status, err = ParseStatus(status); err != nil {
		return nil, errors.Wrapf(err, "saga instance %s", id)
	}

	if payload != "" {
		inst.Payload = json.RawMessage(payload)
	}

	inst.CreatedAt = sqldb.Time(createdAt)
	inst.UpdatedAt = sqldb.Time(updatedAt)
	inst.TimeoutAt = sqldb.Time(timeoutAt)

	if inst.Steps, err = s.loadSteps(ctx, id); err != nil {
		return nil, err
	}

	if inst.History, err = s.loadHistory(ctx, id); err != nil {
		return nil, err
	}

	inst.persistedHistory = len(inst.History)

	return &inst, nil
}

func (s *sqlStore) loadSteps(ctx context.Context, sagaID string) ([]*StepExecution, error) {
	rows, err := s.db.QueryContext(ctx, s.db.Rebind(fmt.Sprintf("SELECT name, step_order, status, started_at, completed_at, compensated_at, result, failure_reason FROM %s WHERE saga_id=? ORDER BY step_order;", sagaStepTableName)), sagaID)
	if err != nil {
		return nil, errors.Wrapf(err, "querying steps of saga %s", sagaID)
	}

	defer rows.Close()

	var steps []*StepExecution

	for rows.Next() {
		var (
			step                                 StepExecution
			status, result                       string
			startedAt, completedAt, compensateAt int64
		)

		if err := rows.Scan(&step.Name, &step.Order, &status, &startedAt, &completedAt, &compensateAt, &result, &step.FailureReason); err != nil {
			return nil, errors.Wrapf(err, "scanning step of saga %s", sagaID)
		}

		if step.Status, err = ParseStepStatus(status); err != nil {
			return nil, errors.Wrapf(err, "step %s of saga %s", step.Name, sagaID)
		}

		if result != "" {
			step.Result = json.RawMessage(result)
		}

		step.StartedAt = sqldb.Time(startedAt)
		step.CompletedAt = sqldb.Time(completedAt)
		step.CompensatedAt = sqldb.Time(compensateAt)

		steps = append(steps, &step)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.WithStack(err)
	}

	return steps, nil
}

func (s *sqlStore) loadHistory(ctx context.Context, sagaID string) ([]Transition, error) {
	rows, err := s.db.QueryContext(ctx, s.db.Rebind(fmt.Sprintf("SELECT from_status, to_status, step_name, reason, occurred_at FROM %s WHERE saga_id=? ORDER BY seq;", sagaTransitionTableName)), sagaID)
	if err != nil {
		return nil, errors.Wrapf(err, "querying history of saga %s", sagaID)
	}

	defer rows.Close()

	var history []Transition

	for rows.Next() {
		var (
			t        Transition
			from, to string
			at       int64
		)

		if err := rows.Scan(&from, &to, &t.Step, &t.Reason, &at); err != nil {
			return nil, errors.Wrapf(err, "scanning history of saga %s", sagaID)
		}

		// the initial entry has no source status
		if from != "" {
			if t.From, err = ParseStatus(from); err != nil {
				return nil, errors.Wrapf(err, "history of saga %s", sagaID)
			}
		}

		if t.To, err = ParseStatus(to); err != nil {
			return nil, errors.Wrapf(err, "history of saga %s", sagaID)
		}

		t.At = sqldb.Time(at)
		history = append(history, t)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.WithStack(err)
	}

	return history, nil
}

func (s *sqlStore) FindByCorrelationKey(ctx context.Context, sagaType, correlationKey string) (*Instance, error) {
	var id string

	err := s.db.QueryRowContext(ctx, s.db.Rebind(fmt.Sprintf("SELECT id FROM %s WHERE saga_type=? AND correlation_key=?;", sagaTableName)), sagaType, correlationKey).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.Wrapf(ErrNotFound, "saga %s with correlation key %s", sagaType, correlationKey)
		}

		return nil, errors.Wrapf(err, "querying saga %s by correlation key %s", sagaType, correlationKey)
	}

	return s.Get(ctx, id)
}

func (s *sqlStore) ListExpired(ctx context.Context, now time.Time, limit int) ([]string, error) {
	return s.queryIDs(ctx,
		fmt.Sprintf("SELECT id FROM %s WHERE status IN (?, ?) AND timeout_at > 0 AND timeout_at < ? ORDER BY timeout_at LIMIT ?;", sagaTableName),
		expirable[0].String(), expirable[1].String(), sqldb.Timestamp(now), rowLimit(limit),
	)
}

func (s *sqlStore) ListByStatus(ctx context.Context, status Status, limit int) ([]*Instance, error) {
	ids, err := s.queryIDs(ctx, fmt.Sprintf("SELECT id FROM %s WHERE status=? ORDER BY updated_at LIMIT ?;", sagaTableName), status.String(), rowLimit(limit))
	if err != nil {
		return nil, err
	}

	res := make([]*Instance, 0, len(ids))

	for _, id := range ids {
		inst, err := s.Get(ctx, id)
		if err != nil {
			return nil, err
		}

		res = append(res, inst)
	}

	return res, nil
}

// queryIDs reads all ids before returning, so the rows are closed before any following query
func (s *sqlStore) queryIDs(ctx context.Context, query string, args ...interface{}) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, s.db.Rebind(query), args...)
	if err != nil {
		return nil, errors.Wrap(err, "querying saga ids")
	}

	defer rows.Close()

	var ids []string

	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, errors.Wrap(err, "scanning saga id")
		}

		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, errors.WithStack(err)
	}

	return ids, nil
}

// rowLimit treats non positive limit as no limit
func rowLimit(limit int) int {
	if limit <= 0 {
		return math.MaxInt32
	}

	return limit
}

func (s *sqlStore) initTables() error {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second*30)
	defer cancel()

	return s.db.InitTables(ctx,
		fmt.Sprintf(`create table if not exists %s
	(
		id varchar(255) not null primary key,
		saga_type varchar(255) not null,
		correlation_key varchar(255) not null,
		status varchar(50) not null,
		payload text not null,
		failure_reason text not null,
		version int not null,
		created_at bigint not null,
		updated_at bigint not null,
		timeout_at bigint not null,
		unique (saga_type, correlation_key)
	);`, sagaTableName),
		fmt.Sprintf(`create table if not exists %s
	(
		saga_id varchar(255) not null,
		name varchar(255) not null,
		step_order int not null,
		status varchar(50) not null,
		started_at bigint not null,
		completed_at bigint not null,
		compensated_at bigint not null,
		result text not null,
		failure_reason text not null,
		primary key (saga_id, name)
	);`, sagaStepTableName),
		fmt.Sprintf(`create table if not exists %s
	(
		saga_id varchar(255) not null,
		seq int not null,
		from_status varchar(50) not null,
		to_status varchar(50) not null,
		step_name varchar(255) not null,
		reason text not null,
		occurred_at bigint not null,
		primary key (saga_id, seq)
	);`, sagaTransitionTableName),
	)
}

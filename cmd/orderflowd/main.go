package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v4/stdlib"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/go-foreman/orderflow"
	"github.com/go-foreman/orderflow/config"
	"github.com/go-foreman/orderflow/consumer"
	"github.com/go-foreman/orderflow/idempotency"
	"github.com/go-foreman/orderflow/log"
	"github.com/go-foreman/orderflow/metrics"
	"github.com/go-foreman/orderflow/mutex"
	"github.com/go-foreman/orderflow/operator"
	"github.com/go-foreman/orderflow/orders"
	"github.com/go-foreman/orderflow/pubsub/subscriber"
	"github.com/go-foreman/orderflow/pubsub/transport"
	"github.com/go-foreman/orderflow/pubsub/transport/amqp"
	"github.com/go-foreman/orderflow/pubsub/transport/kafka"
	"github.com/go-foreman/orderflow/pubsub/transport/memory"
	"github.com/go-foreman/orderflow/readmodel"
	"github.com/go-foreman/orderflow/repair"
	"github.com/go-foreman/orderflow/runtime/scheme"
	"github.com/go-foreman/orderflow/saga"
	"github.com/go-foreman/orderflow/saga/component"
	"github.com/go-foreman/orderflow/saga/contracts"
	"github.com/go-foreman/orderflow/scheduler"
	"github.com/go-foreman/orderflow/storage/sqldb"
)

func main() {
	configPath := flag.String("config", "", "path to yaml config, defaults are used if empty")
	flag.Parse()

	logger := log.DefaultLogger(os.Stdout)

	conf := config.Default()
	if *configPath != "" {
		var err error
		if conf, err = config.FromFile(*configPath); err != nil {
			logger.Logf(log.FatalLevel, "loading config. %s", err)
		}
	}

	level, err := log.ParseLevel(conf.Log.Level)
	if err != nil {
		logger.Logf(log.WarnLevel, "%s, falling back to %s", err, level)
	}
	logger.SetLevel(level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, conf, logger); err != nil {
		logger.Logf(log.FatalLevel, "orderflowd stopped. %s", err)
	}

	logger.Log(log.InfoLevel, "orderflowd stopped")
}

func run(ctx context.Context, conf config.Config, logger log.Logger) error {
	driver, err := sqldb.ParseDriver(conf.Database.Driver)
	if err != nil {
		return errors.WithStack(err)
	}

	db, err := sqldb.Open(driver, conf.Database.DSN)
	if err != nil {
		return errors.WithStack(err)
	}

	defer db.Close()

	orderStore, err := orders.NewSQLStore(db)
	if err != nil {
		return errors.WithStack(err)
	}

	sagaStore, err := saga.NewSQLSagaStore(db)
	if err != nil {
		return errors.WithStack(err)
	}

	reads, err := readmodel.NewSQLStore(db)
	if err != nil {
		return errors.WithStack(err)
	}

	statuses, err := readmodel.NewSQLSyncStatusStore(db)
	if err != nil {
		return errors.WithStack(err)
	}

	ledger, err := newLedger(conf.Idempotency, db)
	if err != nil {
		return errors.WithStack(err)
	}

	sqlMutex := mutex.NewSqlMutex(db, logger)
	recorder := metrics.NewGlobalRecorder(logger)

	t, consumeOpts, err := newTransport(conf.Transport, logger)
	if err != nil {
		return errors.WithStack(err)
	}

	if err := t.Connect(ctx); err != nil {
		return errors.Wrapf(err, "connecting %s transport", conf.Transport.Kind)
	}

	registry := scheme.NewKnownTypesRegistry()
	orders.RegisterTypes(registry)

	mBus, err := orderflow.NewMessageBus(logger, t,
		orderflow.WithSchemeRegistry(registry),
		orderflow.WithLedger(ledger),
		orderflow.WithMutex(sqlMutex),
		orderflow.WithRetryPolicy(consumer.Policy{
			MaxAttempts:  conf.Retry.MaxAttempts,
			InitialDelay: conf.Retry.InitialDelay,
			Multiplier:   conf.Retry.Multiplier,
			MaxDelay:     conf.Retry.MaxDelay,
		}),
		orderflow.WithDeadLetterTopic(conf.Transport.DeadLetterTopic),
		orderflow.WithRecorder(recorder),
		orderflow.WithSubscriberOpts(
			subscriber.WithConfig(&subscriber.Config{
				WorkersCount:             conf.Subscriber.Workers,
				WorkerQueueSize:          subscriber.DefaultConfig.WorkerQueueSize,
				PackageProcessingMaxTime: conf.Subscriber.ProcessingTimeout,
				GracefulShutdownTimeout:  conf.Subscriber.GracefulShutdownTimeout,
			}),
			subscriber.WithConsumeOpts(consumeOpts...),
		),
	)
	if err != nil {
		return errors.Wrap(err, "creating message bus")
	}

	for _, routes := range []map[string]string{orders.CommandTopics, orders.EventTopics, orders.ReplyTopics} {
		for eventType, topic := range routes {
			mBus.RouteToTopic(topic, eventType)
		}
	}
	mBus.RouteToTopic(orders.OrdersTopic, contracts.SagaCompletedType, contracts.SagaCompensatedType, contracts.SagaFailedType)

	definitions, err := saga.NewDefinitions(orders.PlacementDefinition(conf.Saga.Timeout))
	if err != nil {
		return errors.WithStack(err)
	}

	orchestrator := saga.NewOrchestrator(
		sagaStore,
		definitions,
		saga.NewPublisherDispatcher(mBus.Publisher(), conf.Saga.CallTimeout),
		sqlMutex,
		logger,
		saga.WithRecorder(recorder),
		saga.WithScanLimit(conf.Saga.ScanLimit),
		saga.WithObservers(
			orders.NewStatusUpdater(orderStore, mBus.Publisher(), logger),
			contracts.NewLifecyclePublisher(mBus.Publisher()),
		),
	)

	sagaComponent := component.NewSagaComponent(orders.PlacementSagaType, orchestrator, orders.Replies(), component.WithStartEvents(orders.OrderCreatedType))
	if err := sagaComponent.Init(mBus); err != nil {
		return errors.Wrap(err, "initializing placement saga")
	}

	mBus.Subscribe("orders.confirm", orders.ConfirmOrderCmdType, orders.NewConfirmHandler(orderStore, mBus.Publisher(), logger).Handle)

	synchronizer := readmodel.NewSynchronizer(orderStore, reads, statuses, mBus.Marshaller(), logger,
		readmodel.WithRecorder(recorder),
		readmodel.WithMutex(sqlMutex),
		readmodel.WithMaxRetries(conf.Sync.MaxRetries),
		readmodel.WithBatchSize(conf.Sync.BatchSize),
	)

	for _, eventType := range readmodel.TriggerEventTypes() {
		mBus.Subscribe("readmodel", eventType, synchronizer.Handler())
	}

	job := repair.NewJob(orderStore, reads, statuses, synchronizer, orchestrator, logger,
		repair.WithRecorder(recorder),
		repair.WithMutex(sqlMutex),
	)

	sched, err := newScheduler(conf.Scheduler, orchestrator, synchronizer, job, logger)
	if err != nil {
		return errors.WithStack(err)
	}

	server := operator.NewServer(
		conf.Operator.Addr,
		operator.NewRouter(operator.NewHandler(operator.NewService(job, orchestrator), logger)),
		logger,
	)

	topics := conf.Transport.Topics
	if len(topics) == 0 {
		topics = orders.ConsumedTopics()
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg       sync.WaitGroup
		errMutex sync.Mutex
		runErr   error
	)

	start := func(name string, fn func(ctx context.Context) error) {
		wg.Add(1)

		go func() {
			defer wg.Done()
			// one stopped part stops the rest
			defer cancel()

			if err := fn(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errMutex.Lock()
				if runErr == nil {
					runErr = errors.Wrapf(err, "running %s", name)
				}
				errMutex.Unlock()
			}
		}()
	}

	start("message bus", func(ctx context.Context) error {
		return mBus.Run(ctx, topics...)
	})
	start("scheduler", sched.Run)
	start("operator server", server.Run)

	logger.Logf(log.InfoLevel, "orderflowd is running. Transport %s, topics %v, operator on %s", conf.Transport.Kind, topics, conf.Operator.Addr)

	wg.Wait()

	return runErr
}

func newLedger(conf config.IdempotencyConfig, db *sqldb.DB) (idempotency.Ledger, error) {
	switch conf.Backend {
	case "redis":
		client := redis.NewClient(&redis.Options{
			Addr:     conf.Redis.Addr,
			Password: conf.Redis.Password,
			DB:       conf.Redis.DB,
		})

		return idempotency.NewRedisLedger(client, conf.Redis.Prefix), nil
	case "memory":
		return idempotency.NewMemoryLedger(), nil
	default:
		return idempotency.NewSQLLedger(db)
	}
}

func newTransport(conf config.TransportConfig, logger log.Logger) (transport.Transport, []transport.ConsumeOpt, error) {
	switch conf.Kind {
	case "amqp":
		return amqp.NewTransport(conf.AMQP.URL, logger, amqp.WithQueuePrefix(conf.AMQP.QueuePrefix)),
			[]transport.ConsumeOpt{amqp.WithQosPrefetchCount(10)},
			nil
	case "kafka":
		return kafka.NewTransport(conf.Kafka.Brokers, conf.Kafka.GroupID, logger),
			[]transport.ConsumeOpt{kafka.WithMaxWait(time.Second)},
			nil
	case "memory":
		return memory.NewTransport(), nil, nil
	}

	return nil, nil, errors.Errorf("unsupported transport '%s'", conf.Kind)
}

func newScheduler(conf config.SchedulerConfig, orchestrator saga.Orchestrator, synchronizer *readmodel.Synchronizer, job *repair.Job, logger log.Logger) (*scheduler.Scheduler, error) {
	sched := scheduler.NewScheduler(logger)

	jobs := []scheduler.Job{
		{
			Name:     "saga-timeouts",
			Interval: conf.TimeoutScanInterval,
			Run: func(ctx context.Context) error {
				moved, err := orchestrator.ScanTimeouts(ctx, time.Now())
				if len(moved) > 0 {
					logger.Logf(log.InfoLevel, "sagas %v timed out and are compensating", moved)
				}

				return err
			},
		},
		{
			Name:     "sync-retry",
			Interval: conf.SyncRetryInterval,
			Run: func(ctx context.Context) error {
				report, err := synchronizer.RetryFailedSync(ctx)
				if report.Retried > 0 {
					logger.Logf(log.InfoLevel, "retried %d failed syncs, %d succeeded, %d failed", report.Retried, report.Succeeded, report.Failed)
				}

				return err
			},
		},
	}

	if conf.RepairInterval > 0 {
		jobs = append(jobs, scheduler.Job{
			Name:     "repair",
			Interval: conf.RepairInterval,
			Run: func(ctx context.Context) error {
				_, err := job.RepairInconsistentData(ctx)
				return err
			},
		})
	}

	for _, j := range jobs {
		if err := sched.Add(j); err != nil {
			return nil, err
		}
	}

	return sched, nil
}

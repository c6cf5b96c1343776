package subscriber

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pkg/errors"

	"github.com/go-foreman/orderflow/log"
	"github.com/go-foreman/orderflow/pubsub/transport"
)

// Subscriber starts listening for topics and processes packages
type Subscriber interface {
	// Run listens topics for packages and processes them. Gracefully shuts down either on os.Signal or ctx.Done() or Stop()
	Run(ctx context.Context, topics ...string) error
	// Stop gracefully stops subscriber and calls transport.Disconnect().
	Stop(ctx context.Context) error
}

// Config allows to configure subscriber workflow
type Config struct {
	// WorkersCount specifies a number workers that process packages
	WorkersCount uint
	// WorkerQueueSize number of packages a worker holds on top of the one in progress
	WorkerQueueSize int
	// PackageProcessingMaxTime amount of time for a package to be processed
	PackageProcessingMaxTime time.Duration
	// GracefulShutdownTimeout amount of time for graceful shutdown
	GracefulShutdownTimeout time.Duration
}

var DefaultConfig = Config{
	WorkersCount:             10,
	WorkerQueueSize:          1,
	PackageProcessingMaxTime: time.Second * 60,
	GracefulShutdownTimeout:  time.Second * 61,
}

type subscriberOpts struct {
	config      *Config
	consumeOpts []transport.ConsumeOpt
}

type Opt func(o *subscriberOpts)

func WithConfig(c *Config) Opt {
	return func(o *subscriberOpts) {
		o.config = c
	}
}

// WithConsumeOpts passes transport specific options to transport.Consume
func WithConsumeOpts(opts ...transport.ConsumeOpt) Opt {
	return func(o *subscriberOpts) {
		o.consumeOpts = append(o.consumeOpts, opts...)
	}
}

// NewSubscriber creates default subscriber implementation
func NewSubscriber(transport transport.Transport, processor Processor, logger log.Logger, opts ...Opt) Subscriber {
	sOpts := &subscriberOpts{}

	for _, o := range opts {
		o(sOpts)
	}

	var config *Config

	if sOpts.config != nil {
		config = sOpts.config
	} else {
		config = &DefaultConfig
	}

	return &subscriber{
		transport:   transport,
		logger:      logger,
		processor:   processor,
		workers:     newWorkerPool(config.WorkersCount, config.WorkerQueueSize),
		config:      config,
		consumeOpts: sOpts.consumeOpts,
	}
}

type subscriber struct {
	transport   transport.Transport
	logger      log.Logger
	processor   Processor
	workers     *workerPool
	config      *Config
	consumeOpts []transport.ConsumeOpt
}

func (s *subscriber) Run(ctx context.Context, topics ...string) error {
	s.logger.Logf(log.InfoLevel, "Started subscriber. Listening to topics: %v", topics)

	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(signalChan)

	consumerCtx, cancelConsumerCtx := context.WithCancel(ctx)
	defer cancelConsumerCtx()

	consumedPkgs, err := s.transport.Consume(consumerCtx, topics, s.consumeOpts...)

	if err != nil {
		return errors.WithStack(err)
	}

	s.workers.start()

	for {
		select {
		case incomingPkg, open := <-consumedPkgs:
			if !open {
				s.logger.Logf(log.InfoLevel, "transport stopped delivering packages")
				s.workers.stop()
				s.workers.wait()
				return nil
			}

			// packages of one key are kept in order, the transport key is the correlation id of an order
			if err := s.workers.submit(consumerCtx, incomingPkg.Origin().Key, newTaskProcessPkg(ctx, incomingPkg, s)); err != nil {
				s.logger.Logf(log.WarnLevel, "package %s wasn't scheduled. %s", incomingPkg.UID(), err)
				return s.shutdown()
			}
		case <-ctx.Done():
			s.logger.Logf(log.InfoLevel, "Subscriber's context was canceled")
			return s.shutdown()
		case <-signalChan:
			s.logger.Logf(log.InfoLevel, "Received kill signal")
			cancelConsumerCtx()
			return s.shutdown()
		}
	}
}

func (s *subscriber) shutdown() error {
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), s.config.GracefulShutdownTimeout)
	defer shutdownCancel()

	if err := s.Stop(shutdownCtx); err != nil {
		s.logger.Logf(log.ErrorLevel, "error stopping subscriber gracefully %s", err)
		return errors.Wrapf(err, "stopping subscriber gracefully")
	}

	return nil
}

func (s *subscriber) processPackage(ctx context.Context, inPkg transport.IncomingPkg) {
	processorCtx, processorCancel := context.WithTimeout(ctx, s.config.PackageProcessingMaxTime)
	defer processorCancel()

	s.logger.Logf(log.DebugLevel, "started processing package id %s", inPkg.UID())

	if err := s.processor.Process(processorCtx, inPkg); err != nil {
		if IsNoHandlersDefined(err) {
			s.logger.Logf(log.WarnLevel, "%s. acking package %s", err, inPkg.UID())
			s.ack(inPkg)
			return
		}

		s.logger.Logf(log.ErrorLevel, "error happened while processing pkg %s from %s. %s", inPkg.UID(), inPkg.Origin(), err)

		if err := inPkg.Nack(transport.WithRequeue()); err != nil {
			s.logger.Logf(log.ErrorLevel, "error nacking package %s. %s", inPkg.UID(), err)
		}

		return
	}

	s.ack(inPkg)
}

func (s *subscriber) ack(inPkg transport.IncomingPkg) {
	if err := inPkg.Ack(); err != nil {
		s.logger.Logf(log.ErrorLevel, "error acking package %s. %s", inPkg.UID(), err)
		return
	}

	s.logger.Logf(log.DebugLevel, "acked package id %s", inPkg.UID())
}

func (s *subscriber) Stop(ctx context.Context) error {
	s.workers.stop()

	if s.workers.busyWorkers() > 0 {
		s.logger.Logf(log.InfoLevel, "Graceful shutdown. Waiting subscriber for finishing %d tasks in progress", s.workers.busyWorkers())
	}

	waitingTicker := time.NewTicker(time.Second)
	defer waitingTicker.Stop()

	for s.workers.busyWorkers() > 0 {
		select {
		case <-ctx.Done():
			s.logger.Logf(log.WarnLevel, "Stopped subscriber because of canceled parent ctx")
			return nil
		case <-waitingTicker.C:
			s.logger.Logf(log.InfoLevel, "Waiting for processor to finish all remaining tasks in a queue. Tasks in progress: %d", s.workers.busyWorkers())
		}
	}

	s.logger.Logf(log.InfoLevel, "All tasks are finished. Disconnecting from transport.")

	return s.transport.Disconnect(ctx)
}

type processPkg struct {
	ctx        context.Context
	pkg        transport.IncomingPkg
	subscriber *subscriber
}

func newTaskProcessPkg(ctx context.Context, pkg transport.IncomingPkg, subscriber *subscriber) *processPkg {
	return &processPkg{
		ctx:        ctx,
		pkg:        pkg,
		subscriber: subscriber,
	}
}

func (p *processPkg) do() {
	defer func() {
		if r := recover(); r != nil {
			p.subscriber.logger.Logf(log.ErrorLevel, "panic while processing pkg %s: %v", p.pkg.UID(), r)
			if err := p.pkg.Nack(transport.WithRequeue()); err != nil {
				p.subscriber.logger.Logf(log.ErrorLevel, "error nacking package %s. %s", p.pkg.UID(), err)
			}
		}
	}()

	p.subscriber.processPackage(p.ctx, p.pkg)
}

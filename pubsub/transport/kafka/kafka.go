package kafka

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/segmentio/kafka-go"

	"github.com/go-foreman/orderflow/log"
	"github.com/go-foreman/orderflow/pubsub/transport"
)

// Reader is a part of kafka.Reader used by the transport. Offsets are committed manually on Ack.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Writer is a part of kafka.Writer used by the transport
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type ReaderFactory func(config kafka.ReaderConfig) Reader
type WriterFactory func(brokers []string) Writer

func newReader(config kafka.ReaderConfig) Reader {
	return kafka.NewReader(config)
}

// newWriter creates a writer without a fixed topic, every message carries own topic.
// Hash balancer keeps messages with the same key in the same partition.
func newWriter(brokers []string) Writer {
	return &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: true,
	}
}

const fetchErrDelay = time.Second

type Option func(t *kafkaTransport)

func WithReaderFactory(factory ReaderFactory) Option {
	return func(t *kafkaTransport) {
		t.readerFactory = factory
	}
}

func WithWriterFactory(factory WriterFactory) Option {
	return func(t *kafkaTransport) {
		t.writerFactory = factory
	}
}

// NewTransport creates kafka transport. Consumers join groupID, so partitions of consumed topics are shared between instances.
func NewTransport(brokers []string, groupID string, logger log.Logger, opts ...Option) transport.Transport {
	t := &kafkaTransport{
		brokers:       brokers,
		groupID:       groupID,
		logger:        logger,
		readerFactory: newReader,
		writerFactory: newWriter,
	}

	for _, o := range opts {
		o(t)
	}

	return t
}

type kafkaTransport struct {
	brokers       []string
	groupID       string
	logger        log.Logger
	readerFactory ReaderFactory
	writerFactory WriterFactory

	mutex  sync.RWMutex
	writer Writer
}

func (t *kafkaTransport) Connect(ctx context.Context) error {
	if len(t.brokers) == 0 {
		return errors.New("no kafka brokers specified")
	}

	t.mutex.Lock()
	defer t.mutex.Unlock()

	if t.writer == nil {
		t.writer = t.writerFactory(t.brokers)
	}

	return nil
}

func (t *kafkaTransport) Disconnect(ctx context.Context) error {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if t.writer == nil {
		return nil
	}

	if err := t.writer.Close(); err != nil {
		return errors.Wrap(err, "closing kafka writer")
	}

	t.writer = nil

	return nil
}

func (t *kafkaTransport) currentWriter() (Writer, error) {
	t.mutex.RLock()
	defer t.mutex.RUnlock()

	if t.writer == nil {
		return nil, errors.New("connection wasn't established. Use transport.Connect first")
	}

	return t.writer, nil
}

func (t *kafkaTransport) Send(ctx context.Context, outboundPkg transport.OutboundPkg, options ...transport.SendOpt) error {
	writer, err := t.currentWriter()
	if err != nil {
		return errors.WithStack(err)
	}

	sendOpts := &sendOptions{}

	for _, opt := range options {
		if err := opt(sendOpts); err != nil {
			return errors.WithStack(err)
		}
	}

	destination := outboundPkg.Destination()

	msg := kafka.Message{
		Topic:   destination.DestinationTopic,
		Value:   outboundPkg.Payload(),
		Headers: toKafkaHeaders(outboundPkg.Headers()),
	}

	if destination.Key != "" {
		msg.Key = []byte(destination.Key)
	}

	if outboundPkg.ContentType() != "" {
		msg.Headers = append(msg.Headers, kafka.Header{Key: contentTypeHeader, Value: []byte(outboundPkg.ContentType())})
	}

	if err := writer.WriteMessages(ctx, msg); err != nil {
		return errors.Wrapf(err, "sending out pkg to %s", destination.DestinationTopic)
	}

	return nil
}

func (t *kafkaTransport) Consume(ctx context.Context, topics []string, options ...transport.ConsumeOpt) (<-chan transport.IncomingPkg, error) {
	if _, err := t.currentWriter(); err != nil {
		return nil, errors.WithStack(err)
	}

	if len(topics) == 0 {
		return nil, errors.New("no topics to consume")
	}

	consumeOpts := &consumeOptions{StartOffset: kafka.FirstOffset, MaxBytes: 10e6, MaxWait: time.Second}

	for _, opt := range options {
		if err := opt(consumeOpts); err != nil {
			return nil, errors.WithStack(err)
		}
	}

	reader := t.readerFactory(kafka.ReaderConfig{
		Brokers:     t.brokers,
		GroupID:     t.groupID,
		GroupTopics: topics,
		StartOffset: consumeOpts.StartOffset,
		MinBytes:    1,
		MaxBytes:    consumeOpts.MaxBytes,
		MaxWait:     consumeOpts.MaxWait,
	})

	income := make(chan transport.IncomingPkg)

	go func() {
		defer func() {
			close(income)

			if err := reader.Close(); err != nil {
				t.logger.Logf(log.ErrorLevel, "error closing kafka reader. %s", err)
			} else {
				t.logger.Logf(log.InfoLevel, "closed kafka reader of %v", topics)
			}
		}()

		for {
			msg, err := reader.FetchMessage(ctx)
			if err != nil {
				if ctx.Err() != nil {
					t.logger.Logf(log.InfoLevel, "canceled context. Stopped consuming %v", topics)
					return
				}

				t.logger.Logf(log.ErrorLevel, "fetching kafka message. %s", err)

				select {
				case <-time.After(fetchErrDelay):
					continue
				case <-ctx.Done():
					return
				}
			}

			select {
			case income <- &inKafkaPkg{msg: msg, reader: reader, receivedAt: time.Now(), logger: t.logger}:
			case <-ctx.Done():
				return
			}
		}
	}()

	return income, nil
}

const contentTypeHeader = "contentType"

func toKafkaHeaders(headers map[string]interface{}) []kafka.Header {
	res := make([]kafka.Header, 0, len(headers))

	for k, v := range headers {
		switch val := v.(type) {
		case string:
			res = append(res, kafka.Header{Key: k, Value: []byte(val)})
		case []byte:
			res = append(res, kafka.Header{Key: k, Value: val})
		case nil:
			continue
		default:
			res = append(res, kafka.Header{Key: k, Value: []byte(fmt.Sprint(val))})
		}
	}

	return res
}

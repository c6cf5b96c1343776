package amqp

import (
	"strconv"
	"time"

	"github.com/pkg/errors"

	"github.com/go-foreman/orderflow/pubsub/transport"
)

type consumeOptions struct {
	Exclusive     bool
	NoWait        bool
	PrefetchCount uint
	// ConsumerTag prefixes tags of queue consumers, the queue name is used if empty
	ConsumerTag string
}

func (o consumeOptions) tag(queue string) string {
	if o.ConsumerTag == "" {
		return queue
	}

	return o.ConsumerTag + "." + queue
}

type sendOptions struct {
	Mandatory  bool
	Priority   uint8
	Expiration string
}

func consumeOpt(name string, apply func(opts *consumeOptions)) transport.ConsumeOpt {
	return func(options interface{}) error {
		opts, ok := options.(*consumeOptions)
		if !ok {
			return errors.Errorf("calling %s opt: this option must be called on amqp.consumeOptions type", name)
		}

		apply(opts)

		return nil
	}
}

func sendOpt(name string, apply func(opts *sendOptions)) transport.SendOpt {
	return func(options interface{}) error {
		opts, ok := options.(*sendOptions)
		if !ok {
			return errors.Errorf("calling %s opt: this option must be called on amqp.sendOptions type", name)
		}

		apply(opts)

		return nil
	}
}

// WithQosPrefetchCount limits unacknowledged deliveries per consuming channel
func WithQosPrefetchCount(limit uint) transport.ConsumeOpt {
	return consumeOpt("WithQosPrefetchCount", func(opts *consumeOptions) {
		opts.PrefetchCount = limit
	})
}

func WithExclusive() transport.ConsumeOpt {
	return consumeOpt("WithExclusive", func(opts *consumeOptions) {
		opts.Exclusive = true
	})
}

func WithNoWait() transport.ConsumeOpt {
	return consumeOpt("WithNoWait", func(opts *consumeOptions) {
		opts.NoWait = true
	})
}

func WithConsumerTag(tag string) transport.ConsumeOpt {
	return consumeOpt("WithConsumerTag", func(opts *consumeOptions) {
		opts.ConsumerTag = tag
	})
}

// WithMandatory makes the broker return a publishing which can't be routed to any queue
func WithMandatory() transport.SendOpt {
	return sendOpt("WithMandatory", func(opts *sendOptions) {
		opts.Mandatory = true
	})
}

// WithPriority is honoured by queues declared with x-max-priority only
func WithPriority(priority uint8) transport.SendOpt {
	return sendOpt("WithPriority", func(opts *sendOptions) {
		opts.Priority = priority
	})
}

// WithExpiration drops the publishing if it isn't consumed within ttl
func WithExpiration(ttl time.Duration) transport.SendOpt {
	return sendOpt("WithExpiration", func(opts *sendOptions) {
		opts.Expiration = strconv.FormatInt(ttl.Milliseconds(), 10)
	})
}

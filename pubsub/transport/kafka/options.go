package kafka

import (
	"time"

	"github.com/pkg/errors"

	"github.com/go-foreman/orderflow/pubsub/transport"
)

type consumeOptions struct {
	StartOffset int64
	MaxBytes    int
	MaxWait     time.Duration
}

type sendOptions struct{}

func convertConsumeOptsType(options interface{}) (*consumeOptions, error) {
	opts, ok := options.(*consumeOptions)

	if !ok {
		return nil, errors.Errorf("this option must be called on kafka.consumeOptions type")
	}

	return opts, nil
}

// WithStartOffset is used when the group has no committed offset, kafka.FirstOffset by default
func WithStartOffset(offset int64) transport.ConsumeOpt {
	return func(options interface{}) error {
		opts, err := convertConsumeOptsType(options)
		if err != nil {
			return errors.Wrap(err, "calling WithStartOffset opt")
		}

		opts.StartOffset = offset

		return nil
	}
}

func WithMaxBytes(maxBytes int) transport.ConsumeOpt {
	return func(options interface{}) error {
		opts, err := convertConsumeOptsType(options)
		if err != nil {
			return errors.Wrap(err, "calling WithMaxBytes opt")
		}

		opts.MaxBytes = maxBytes

		return nil
	}
}

func WithMaxWait(wait time.Duration) transport.ConsumeOpt {
	return func(options interface{}) error {
		opts, err := convertConsumeOptsType(options)
		if err != nil {
			return errors.Wrap(err, "calling WithMaxWait opt")
		}

		opts.MaxWait = wait

		return nil
	}
}

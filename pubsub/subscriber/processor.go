package subscriber

import (
	"context"

	"github.com/pkg/errors"

	"github.com/go-foreman/orderflow/consumer"
	"github.com/go-foreman/orderflow/log"
	msgDispatcher "github.com/go-foreman/orderflow/pubsub/dispatcher"
	"github.com/go-foreman/orderflow/pubsub/message"
	"github.com/go-foreman/orderflow/pubsub/transport"
)

//go:generate mockgen --build_flags=--mod=mod -destination ../../testing/mocks/pubsub/subscriber/processor.go -package subscriber . Processor

type Processor interface {
	Process(ctx context.Context, inPkg transport.IncomingPkg) error
}

type processor struct {
	logger       log.Logger
	marshaller   message.Marshaller
	dispatcher   msgDispatcher.Dispatcher
	deadLetterer consumer.DeadLetterer
}

// NewMessageProcessor creates a processor that decodes packages and runs matched handlers one by one.
// A package that can't be decoded goes straight to deadLetterer, redelivering it won't help.
func NewMessageProcessor(marshaller message.Marshaller, msgDispatcher msgDispatcher.Dispatcher, deadLetterer consumer.DeadLetterer, logger log.Logger) Processor {
	return &processor{marshaller: marshaller, dispatcher: msgDispatcher, deadLetterer: deadLetterer, logger: logger}
}

func (p *processor) Process(ctx context.Context, inPkg transport.IncomingPkg) error {
	env, err := p.marshaller.Unmarshal(inPkg.Payload())
	if err != nil {
		p.logger.Logf(log.ErrorLevel, "Failed to decode IncomingPkg %s from %s into Envelope. %s", inPkg.UID(), inPkg.Origin(), err)
		return p.deadLetterUndecodable(ctx, inPkg, err)
	}

	msg := &message.ReceivedMessage{
		Envelope:   env,
		Origin:     inPkg.Origin(),
		ReceivedAt: inPkg.ReceivedAt(),
		Raw:        inPkg.Payload(),
	}

	handlers := p.dispatcher.Match(env.EventType)

	if len(handlers) == 0 {
		return WithNoHandlersDefinedErr(errors.Errorf("no handlers defined for event %s of type %s", env.EventID, env.EventType))
	}

	for _, handle := range handlers {
		if err := handle(ctx, msg); err != nil {
			return errors.Wrapf(err, "handling event %s of type %s", env.EventID, env.EventType)
		}
	}

	return nil
}

func (p *processor) deadLetterUndecodable(ctx context.Context, inPkg transport.IncomingPkg, decodeErr error) error {
	msg := &message.ReceivedMessage{Origin: inPkg.Origin(), ReceivedAt: inPkg.ReceivedAt(), Raw: inPkg.Payload()}

	if err := p.deadLetterer.DeadLetter(ctx, message.NewDeadLetter(msg, decodeErr.Error(), 1)); err != nil {
		return errors.Wrapf(err, "dead lettering undecodable package %s", inPkg.UID())
	}

	return nil
}

type NoHandlersDefinedErr struct {
	error
}

func WithNoHandlersDefinedErr(err error) error {
	return NoHandlersDefinedErr{err}
}

func IsNoHandlersDefined(err error) bool {
	var noHandlers NoHandlersDefinedErr
	return errors.As(err, &noHandlers)
}

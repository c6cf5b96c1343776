// Package memory is a channel backed transport. It keeps per key ordering by using one partition per topic
// and supports redelivery of nacked packages. Used for local runs and tests.
package memory

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/go-foreman/orderflow/pubsub/transport"
)

const defaultBufferSize = 1024

func NewTransport() *Transport {
	return &Transport{topics: map[string]*topic{}}
}

type Transport struct {
	mutex     sync.Mutex
	topics    map[string]*topic
	sent      []transport.OutboundPkg
	acked     []transport.IncomingPkg
	nacked    []transport.IncomingPkg
	connected bool
}

type topic struct {
	name   string
	offset int64
	queue  chan *inPkg
}

func (t *Transport) Connect(ctx context.Context) error {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	t.connected = true

	return nil
}

func (t *Transport) Disconnect(ctx context.Context) error {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	t.connected = false

	return nil
}

func (t *Transport) Consume(ctx context.Context, topics []string, options ...transport.ConsumeOpt) (<-chan transport.IncomingPkg, error) {
	if err := t.checkConnection(); err != nil {
		return nil, err
	}

	income := make(chan transport.IncomingPkg)
	consumersWait := &sync.WaitGroup{}

	for _, name := range topics {
		tp := t.topic(name)
		consumersWait.Add(1)

		go func(tp *topic) {
			defer consumersWait.Done()

			for {
				select {
				case pkg := <-tp.queue:
					pkg.receivedAt = time.Now()
					select {
					case income <- pkg:
					case <-ctx.Done():
						return
					}
				case <-ctx.Done():
					return
				}
			}
		}(tp)
	}

	go func() {
		consumersWait.Wait()
		close(income)
	}()

	return income, nil
}

func (t *Transport) Send(ctx context.Context, outboundPkg transport.OutboundPkg, options ...transport.SendOpt) error {
	if err := t.checkConnection(); err != nil {
		return err
	}

	tp := t.topic(outboundPkg.Destination().DestinationTopic)

	t.mutex.Lock()
	tp.offset++
	headers := make(map[string]interface{}, len(outboundPkg.Headers()))
	for k, v := range outboundPkg.Headers() {
		headers[k] = v
	}
	pkg := &inPkg{
		owner:   t,
		origin:  transport.Origin{Topic: tp.name, Partition: 0, Offset: tp.offset, Key: outboundPkg.Destination().Key},
		payload: outboundPkg.Payload(),
		headers: headers,
	}
	t.sent = append(t.sent, outboundPkg)
	t.mutex.Unlock()

	select {
	case tp.queue <- pkg:
		return nil
	case <-ctx.Done():
		return errors.Wrapf(ctx.Err(), "sending package to topic %s", tp.name)
	}
}

// Sent returns all packages sent so far, optionally filtered by topic
func (t *Transport) Sent(topics ...string) []transport.OutboundPkg {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	var res []transport.OutboundPkg

	for _, pkg := range t.sent {
		if len(topics) == 0 || contains(topics, pkg.Destination().DestinationTopic) {
			res = append(res, pkg)
		}
	}

	return res
}

func (t *Transport) Acked() []transport.IncomingPkg {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	return append([]transport.IncomingPkg(nil), t.acked...)
}

func (t *Transport) Nacked() []transport.IncomingPkg {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	return append([]transport.IncomingPkg(nil), t.nacked...)
}

func (t *Transport) topic(name string) *topic {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	tp, exists := t.topics[name]
	if !exists {
		tp = &topic{name: name, queue: make(chan *inPkg, defaultBufferSize)}
		t.topics[name] = tp
	}

	return tp
}

func (t *Transport) checkConnection() error {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if !t.connected {
		return errors.New("connection wasn't established. Use transport.Connect first")
	}

	return nil
}

func (t *Transport) ack(pkg *inPkg) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	t.acked = append(t.acked, pkg)
}

func (t *Transport) nack(pkg *inPkg, requeue bool) {
	t.mutex.Lock()
	t.nacked = append(t.nacked, pkg)
	tp := t.topics[pkg.origin.Topic]
	t.mutex.Unlock()

	if requeue && tp != nil {
		redelivered := &inPkg{owner: t, origin: pkg.origin, payload: pkg.payload, headers: pkg.headers, redeliveries: pkg.redeliveries + 1}
		go func() {
			tp.queue <- redelivered
		}()
	}
}

type inPkg struct {
	owner        *Transport
	origin       transport.Origin
	payload      []byte
	headers      map[string]interface{}
	receivedAt   time.Time
	redeliveries int
	settled      bool
	mutex        sync.Mutex
}

func (i *inPkg) UID() string {
	return i.origin.Topic + "-" + strconv.FormatInt(i.origin.Offset, 10) + "-" + strconv.Itoa(i.redeliveries)
}

func (i *inPkg) Origin() transport.Origin {
	return i.origin
}

func (i *inPkg) Payload() []byte {
	return i.payload
}

func (i *inPkg) Headers() map[string]interface{} {
	return i.headers
}

func (i *inPkg) ReceivedAt() time.Time {
	return i.receivedAt
}

// Redeliveries returns how many times this package was requeued before
func (i *inPkg) Redeliveries() int {
	return i.redeliveries
}

func (i *inPkg) Ack(options ...transport.AcknowledgmentOption) error {
	if err := i.settle(); err != nil {
		return err
	}

	i.owner.ack(i)

	return nil
}

func (i *inPkg) Nack(options ...transport.AcknowledgmentOption) error {
	if err := i.settle(); err != nil {
		return err
	}

	i.owner.nack(i, transport.CollectAckOpts(options...).Requeue)

	return nil
}

func (i *inPkg) settle() error {
	i.mutex.Lock()
	defer i.mutex.Unlock()

	if i.settled {
		return errors.Errorf("package %s is already acknowledged", i.UID())
	}

	i.settled = true

	return nil
}

func contains(items []string, item string) bool {
	for _, i := range items {
		if i == item {
			return true
		}
	}

	return false
}

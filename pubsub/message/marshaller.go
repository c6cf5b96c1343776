package message

import (
	"encoding/json"
	"reflect"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"

	"github.com/go-foreman/orderflow/runtime/scheme"
)

const ContentType = "application/json"

//go:generate mockgen --build_flags=--mod=mod -destination ../../testing/mocks/pubsub/message/marshaller.go -package message . Marshaller

type Marshaller interface {
	Marshal(env *Envelope) ([]byte, error)
	Unmarshal(b []byte) (*Envelope, error)
}

// NewJsonMarshaller creates Marshaller which decodes payloads into types registered in knownTypes.
// Payloads of unregistered event types stay map[string]interface{}.
func NewJsonMarshaller(knownTypes scheme.KnownTypesRegistry) Marshaller {
	return &jsonMarshaller{knownTypes: knownTypes}
}

type DecoderErr struct {
	error
}

func WithDecoderErr(err error) error {
	return DecoderErr{err}
}

type jsonMarshaller struct {
	knownTypes scheme.KnownTypesRegistry
}

func (j jsonMarshaller) Marshal(env *Envelope) ([]byte, error) {
	if env == nil {
		return nil, errors.New("envelope is nil")
	}

	res, err := json.Marshal(env)
	if err != nil {
		return nil, errors.Wrapf(err, "marshaling envelope %s of type %s", env.EventID, env.EventType)
	}

	return res, nil
}

func (j jsonMarshaller) Unmarshal(b []byte) (*Envelope, error) {
	var decoded Envelope

	if err := json.Unmarshal(b, &decoded); err != nil {
		return nil, WithDecoderErr(errors.Wrap(err, "decoding envelope"))
	}

	if decoded.EventID == "" {
		return nil, WithDecoderErr(errors.New("envelope has no eventId"))
	}

	if decoded.EventType == "" {
		return nil, WithDecoderErr(errors.Errorf("envelope %s has no eventType", decoded.EventID))
	}

	if decoded.Headers == nil {
		decoded.Headers = make(Headers)
	}

	if j.knownTypes == nil || !j.knownTypes.Known(decoded.EventType) || decoded.Payload == nil {
		return &decoded, nil
	}

	// decoded.Payload is map[string]interface{} now, fill it into the registered type
	// so a handler is able to do payload, ok := env.Payload.(*MyType)
	payload, err := j.knownTypes.NewObject(decoded.EventType)
	if err != nil {
		return nil, WithDecoderErr(errors.WithStack(err))
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Squash:     true,
		TagName:    "json",
		Result:     payload,
		DecodeHook: mapstructure.StringToTimeHookFunc(time.RFC3339Nano),
	})

	if err != nil {
		return nil, WithDecoderErr(errors.Wrap(err, "creating payload decoder"))
	}

	if err := decoder.Decode(decoded.Payload); err != nil {
		return nil, WithDecoderErr(errors.Wrapf(err, "decoding payload of %s into %T", decoded.EventType, payload))
	}

	decoded.Payload = payload

	return &decoded, nil
}

// DecodePayload converts already decoded payload into target. Used when a payload arrived as a map
// because its type wasn't known at the moment of decoding.
func DecodePayload(payload interface{}, target interface{}) error {
	targetVal := reflect.ValueOf(target)
	if targetVal.Kind() != reflect.Ptr || targetVal.IsNil() {
		return errors.Errorf("target must be a non nil pointer, got %T", target)
	}

	if payload == nil {
		return errors.New("payload is nil")
	}

	payloadVal := reflect.ValueOf(payload)

	switch {
	case payloadVal.Type() == targetVal.Type():
		if payloadVal.IsNil() {
			return errors.New("payload is nil")
		}
		targetVal.Elem().Set(payloadVal.Elem())
		return nil
	case payloadVal.Type() == targetVal.Elem().Type():
		targetVal.Elem().Set(payloadVal)
		return nil
	}

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Squash:     true,
		TagName:    "json",
		Result:     target,
		DecodeHook: mapstructure.StringToTimeHookFunc(time.RFC3339Nano),
	})

	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(decoder.Decode(payload))
}

package protocol

import (
	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/pkg/errors"
)

var (
	ErrUnknownKind = errors.New("unknown message type")
	ErrMalformed   = errors.New("malformed message")
	ErrInvalid     = errors.New("invalid message")
)

var validate = validator.New()

type envelope struct {
	Type    Kind            `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Encode wraps m into its envelope.
func Encode(m Message) ([]byte, error) {
	payload, err := json.Marshal(m)
	if err != nil {
		return nil, errors.Wrapf(err, "encode %s", m.Kind())
	}
	return json.Marshal(envelope{Type: m.Kind(), Payload: payload})
}

// Decode reads an envelope and returns the typed, validated message.
// The kind is returned even when the payload is rejected so callers can reference it.
func Decode(data []byte) (Message, Kind, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, "", errors.Wrap(ErrMalformed, err.Error())
	}
	newMsg, ok := registry[env.Type]
	if !ok {
		return nil, env.Type, errors.Wrapf(ErrUnknownKind, "%q", env.Type)
	}
	m := newMsg()
	if len(env.Payload) > 0 && string(env.Payload) != "null" {
		if err := json.Unmarshal(env.Payload, m); err != nil {
			return nil, env.Type, errors.Wrap(ErrMalformed, err.Error())
		}
	}
	if err := validate.Struct(m); err != nil {
		return nil, env.Type, errors.Wrap(ErrInvalid, err.Error())
	}
	return m, env.Type, nil
}

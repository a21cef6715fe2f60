package protocol

import (
	"encoding/json"
	"fmt"
)

func Encode(kind Kind, payload any) ([]byte, error) {
	if kind == "" {
		return nil, fmt.Errorf("encode: empty message kind")
	}
	env := Envelope{Type: kind}
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s payload: %w", kind, err)
		}
		env.Data = b
	}
	return json.Marshal(env)
}

func DecodeEnvelope(b []byte) (Envelope, error) {
	if len(b) == 0 {
		return Envelope{}, fmt.Errorf("decode: empty frame")
	}
	var env Envelope
	if err := json.Unmarshal(b, &env); err != nil {
		return Envelope{}, err
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("decode: missing message kind")
	}
	return env, nil
}

func DecodePayload[T any](env Envelope) (T, error) {
	var out T
	if len(env.Data) == 0 {
		return out, fmt.Errorf("empty payload for %q", env.Type)
	}
	err := json.Unmarshal(env.Data, &out)
	return out, err
}

package redis

import (
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"loadboard/notify"
)

const envelopeField = "data"

var ErrInvalidEnvelope = errors.New("invalid envelope")

// EncodeEnvelope 以 msgpack 序列化後 base64 編碼，放入 stream 的 data 欄位
func EncodeEnvelope(env notify.Envelope) (map[string]any, error) {
	if len(env.Destinations) == 0 || len(env.Frame) == 0 {
		return nil, fmt.Errorf("%w: destinations and frame are required", ErrInvalidEnvelope)
	}

	bytes, err := msgpack.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("msgpack marshal error: %w", err)
	}

	return map[string]any{
		envelopeField: base64.StdEncoding.EncodeToString(bytes),
	}, nil
}

// DecodeEnvelope 是 EncodeEnvelope 的反向操作
func DecodeEnvelope(values map[string]any) (notify.Envelope, error) {
	var env notify.Envelope

	encoded, ok := values[envelopeField].(string)
	if !ok {
		return env, fmt.Errorf("%w: data field not found or invalid type", ErrInvalidEnvelope)
	}

	bytes, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return env, fmt.Errorf("base64 decode error: %w", err)
	}

	if err := msgpack.Unmarshal(bytes, &env); err != nil {
		return env, fmt.Errorf("msgpack unmarshal error: %w", err)
	}
	return env, nil
}

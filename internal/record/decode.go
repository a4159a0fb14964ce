package record

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/danmuck/dmapctl/internal/protocol"
)

// Decode parses a list payload for key into typed records.
// Any shape divergence is reported as a *DecodeError matching ErrSchemaMismatch.
func Decode(key protocol.Key, raw []byte) ([]NodeRecord, error) {
	desc, err := protocol.Lookup(string(key))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, key)
	}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '[' {
		return nil, &DecodeError{Protocol: desc.Key, Index: -1, Reason: "payload is not a JSON array"}
	}
	var items []json.RawMessage
	if err := json.Unmarshal(trimmed, &items); err != nil {
		return nil, &DecodeError{Protocol: desc.Key, Index: -1, Reason: err.Error()}
	}
	out := make([]NodeRecord, 0, len(items))
	for i, item := range items {
		rec, err := decodeItem(desc, i, item)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// DecodeOne parses a single record object, as produced by Encode.
func DecodeOne(key protocol.Key, raw []byte) (NodeRecord, error) {
	desc, err := protocol.Lookup(string(key))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, key)
	}
	return decodeItem(desc, 0, raw)
}

func decodeItem(desc protocol.Descriptor, index int, raw json.RawMessage) (NodeRecord, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, &DecodeError{Protocol: desc.Key, Index: index, Reason: "record is not a JSON object"}
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return nil, &DecodeError{Protocol: desc.Key, Index: index, Reason: err.Error()}
	}
	r := &fieldReader{key: desc.Key, index: index, fields: fields}

	var rec NodeRecord
	switch desc.Kind {
	case protocol.KindGeneric:
		rec = Generic{
			UID:        r.str("node_uid"),
			Value:      r.str("node_val"),
			LastUpdate: r.timestamp("node_last_update"),
			Name:       r.str("node_name"),
			RW:         RWDirection(r.str("node_rw_direction")),
		}
	case protocol.KindModbus:
		rec = ModbusMapping{
			LockedToUID: r.str("mb_lock_to_uid"),
			IP:          r.str("mb_ip"),
			Port:        r.num("mb_port"),
			Register:    r.num("mb_register"),
			RW:          RWDirection(r.str("mb_rw")),
		}
	case protocol.KindMqtt:
		rec = MqttMapping{
			LockedToUID:   r.str("mqtt_lock_to_uid"),
			IP:            r.str("mqtt_ip"),
			Topic:         r.str("mqtt_topic"),
			TopicModifier: r.num("mqtt_topic_modif"),
			RW:            RWDirection(r.str("mqtt_rw")),
		}
	case protocol.KindUnsupported:
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, desc.Key)
	}
	if r.err != nil {
		return nil, r.err
	}
	return rec, nil
}

// fieldReader pulls typed fields out of one record object; the first failure sticks.
type fieldReader struct {
	key    protocol.Key
	index  int
	fields map[string]json.RawMessage
	err    error
}

func (r *fieldReader) fail(field string, reason string) {
	if r.err == nil {
		r.err = &DecodeError{Protocol: r.key, Index: r.index, Field: field, Reason: reason}
	}
}

func (r *fieldReader) required(field string) (json.RawMessage, bool) {
	raw, ok := r.fields[field]
	if !ok {
		r.fail(field, "missing field")
		return nil, false
	}
	return raw, true
}

func (r *fieldReader) str(field string) string {
	raw, ok := r.required(field)
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		r.fail(field, "expected string")
		return ""
	}
	return s
}

func (r *fieldReader) num(field string) int {
	raw, ok := r.required(field)
	if !ok {
		return 0
	}
	v, err := ParseInt(raw)
	if err != nil {
		r.fail(field, unwrapReason(err))
		return 0
	}
	return v
}

func (r *fieldReader) timestamp(field string) time.Time {
	raw, ok := r.fields[field]
	if !ok {
		return time.Time{}
	}
	ts, err := ParseTimestamp(raw)
	if err != nil {
		r.fail(field, unwrapReason(err))
		return time.Time{}
	}
	return ts
}

func unwrapReason(err error) string {
	msg := err.Error()
	prefix := ErrInvalidField.Error() + ": "
	if errors.Is(err, ErrInvalidField) && len(msg) > len(prefix) {
		return msg[len(prefix):]
	}
	return msg
}

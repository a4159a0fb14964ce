package record

import (
	"fmt"
	"strings"

	"github.com/danmuck/dmapctl/internal/protocol"
)

// Build turns operator form values (keyed by wire field name) into a record.
// Stamped identifier fields are left for Gate submission to fill in.
func Build(key protocol.Key, values map[string]string) (NodeRecord, error) {
	desc, err := protocol.Lookup(string(key))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, key)
	}
	f := formReader{values: values}

	var rec NodeRecord
	switch desc.Kind {
	case protocol.KindGeneric:
		rec = Generic{
			Name:  f.text("node_name", true),
			Value: f.text("node_val", false),
			RW:    f.rw("node_rw_direction"),
		}
	case protocol.KindModbus:
		rec = ModbusMapping{
			LockedToUID: f.text("mb_lock_to_uid", false),
			IP:          f.text("mb_ip", true),
			Port:        f.num("mb_port"),
			Register:    f.num("mb_register"),
			RW:          f.rw("mb_rw"),
		}
	case protocol.KindMqtt:
		rec = MqttMapping{
			LockedToUID:   f.text("mqtt_lock_to_uid", false),
			IP:            f.text("mqtt_ip", true),
			Topic:         f.text("mqtt_topic", true),
			TopicModifier: f.num("mqtt_topic_modif"),
			RW:            f.rw("mqtt_rw"),
		}
	case protocol.KindUnsupported:
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, key)
	}
	if f.err != nil {
		return nil, f.err
	}
	return rec, nil
}

// Values flattens a record back into form values for re-display.
func Values(rec NodeRecord) map[string]string {
	switch r := rec.(type) {
	case Generic:
		return map[string]string{
			"node_uid":          r.UID,
			"node_val":          r.Value,
			"node_name":         r.Name,
			"node_rw_direction": string(r.RW),
		}
	case ModbusMapping:
		return map[string]string{
			"mb_lock_to_uid": r.LockedToUID,
			"mb_ip":          r.IP,
			"mb_port":        fmt.Sprint(r.Port),
			"mb_register":    fmt.Sprint(r.Register),
			"mb_rw":          string(r.RW),
		}
	case MqttMapping:
		return map[string]string{
			"mqtt_lock_to_uid": r.LockedToUID,
			"mqtt_ip":          r.IP,
			"mqtt_topic":       r.Topic,
			"mqtt_topic_modif": fmt.Sprint(r.TopicModifier),
			"mqtt_rw":          string(r.RW),
		}
	}
	return map[string]string{}
}

type formReader struct {
	values map[string]string
	err    error
}

func (f *formReader) fail(err error) {
	if f.err == nil {
		f.err = err
	}
}

func (f *formReader) text(field string, required bool) string {
	v := strings.TrimSpace(f.values[field])
	if required && v == "" {
		f.fail(fmt.Errorf("%w: %s is required", ErrInvalidField, field))
	}
	return v
}

func (f *formReader) num(field string) int {
	v, err := ParseNumeral(f.values[field])
	if err != nil {
		f.fail(fmt.Errorf("%s: %w", field, err))
	}
	return v
}

func (f *formReader) rw(field string) RWDirection {
	v, err := ParseRWDirection(f.values[field])
	if err != nil {
		f.fail(fmt.Errorf("%s: %w", field, err))
	}
	return v
}

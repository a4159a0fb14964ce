package record

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/danmuck/dmapctl/internal/protocol"
)

type genericWire struct {
	NodeVal         string `json:"node_val"`
	NodeName        string `json:"node_name"`
	NodeRWDirection string `json:"node_rw_direction"`
	NodeUID         string `json:"node_uid"`
}

type modbusWire struct {
	LockToUID string `json:"mb_lock_to_uid"`
	IP        string `json:"mb_ip"`
	Port      string `json:"mb_port"`
	Register  string `json:"mb_register"`
	RW        string `json:"mb_rw"`
}

type mqttWire struct {
	LockToUID  string `json:"mqtt_lock_to_uid"`
	IP         string `json:"mqtt_ip"`
	Topic      string `json:"mqtt_topic"`
	TopicModif int    `json:"mqtt_topic_modif"`
	RW         string `json:"mqtt_rw"`
}

// Encode builds the create/update body for rec under key.
// Generic records omit node_last_update; the backend owns that field.
func Encode(key protocol.Key, rec NodeRecord) ([]byte, error) {
	desc, err := protocol.Lookup(string(key))
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrUnsupported, key)
	}
	if rec == nil || rec.Kind() != desc.Kind {
		return nil, fmt.Errorf("%w: protocol=%s", ErrKindMismatch, key)
	}

	var wire any
	switch r := rec.(type) {
	case Generic:
		wire = genericWire{
			NodeVal:         r.Value,
			NodeName:        r.Name,
			NodeRWDirection: string(r.RW),
			NodeUID:         r.UID,
		}
	case ModbusMapping:
		wire = modbusWire{
			LockToUID: r.LockedToUID,
			IP:        r.IP,
			Port:      strconv.Itoa(r.Port),
			Register:  strconv.Itoa(r.Register),
			RW:        string(r.RW),
		}
	case MqttMapping:
		wire = mqttWire{
			LockToUID:  r.LockedToUID,
			IP:         r.IP,
			Topic:      r.Topic,
			TopicModif: r.TopicModifier,
			RW:         string(r.RW),
		}
	default:
		return nil, fmt.Errorf("%w: %T", ErrKindMismatch, rec)
	}
	return json.Marshal(wire)
}

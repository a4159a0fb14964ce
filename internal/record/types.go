package record

import (
	"fmt"
	"strings"
	"time"

	"github.com/danmuck/dmapctl/internal/protocol"
)

// RWDirection is the read/write role of a node or mapping.
type RWDirection string

const (
	RWRead      RWDirection = "r"
	RWWrite     RWDirection = "w"
	RWReadWrite RWDirection = "rw"
)

// ParseRWDirection normalizes operator input into a direction.
func ParseRWDirection(raw string) (RWDirection, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "r", "read":
		return RWRead, nil
	case "w", "write":
		return RWWrite, nil
	case "rw", "read-write", "readwrite", "read/write":
		return RWReadWrite, nil
	default:
		return "", fmt.Errorf("%w: rw direction %q (expected r, w or rw)", ErrInvalidField, raw)
	}
}

// NodeRecord is one decoded record of any protocol variant.
type NodeRecord interface {
	Kind() protocol.Kind
	// WithAllocatedID returns a copy stamped with a server-issued identifier.
	WithAllocatedID(id string) NodeRecord
	// Identity is the uid a record is keyed or locked to.
	Identity() string
	nodeRecord()
}

// Generic is an rAPI key/value node.
type Generic struct {
	UID        string
	Name       string
	Value      string
	RW         RWDirection
	LastUpdate time.Time
}

func (Generic) Kind() protocol.Kind { return protocol.KindGeneric }
func (g Generic) Identity() string  { return g.UID }
func (Generic) nodeRecord()         {}

func (g Generic) WithAllocatedID(id string) NodeRecord {
	g.UID = strings.TrimSpace(id)
	return g
}

// ModbusMapping binds a generic node to a Modbus-TCP register.
type ModbusMapping struct {
	LockedToUID string
	IP          string
	Port        int
	Register    int
	RW          RWDirection
}

func (ModbusMapping) Kind() protocol.Kind { return protocol.KindModbus }
func (m ModbusMapping) Identity() string  { return m.LockedToUID }
func (ModbusMapping) nodeRecord()         {}

// WithAllocatedID locks the mapping to id unless the operator already chose a node.
func (m ModbusMapping) WithAllocatedID(id string) NodeRecord {
	if strings.TrimSpace(m.LockedToUID) == "" {
		m.LockedToUID = strings.TrimSpace(id)
	}
	return m
}

// MqttMapping binds a generic node to an MQTT topic.
type MqttMapping struct {
	LockedToUID   string
	IP            string
	Topic         string
	TopicModifier int
	RW            RWDirection
}

func (MqttMapping) Kind() protocol.Kind { return protocol.KindMqtt }
func (m MqttMapping) Identity() string  { return m.LockedToUID }
func (MqttMapping) nodeRecord()         {}

// WithAllocatedID locks the mapping to id unless the operator already chose a node.
func (m MqttMapping) WithAllocatedID(id string) NodeRecord {
	if strings.TrimSpace(m.LockedToUID) == "" {
		m.LockedToUID = strings.TrimSpace(id)
	}
	return m
}

package protocol

import (
	"fmt"
	"strings"
)

const (
	unsupportedName        = "Data protocol not found!"
	unsupportedDescription = "No description for this data node"
)

// Registry stores protocol descriptors by key, preserving registration order.
type Registry struct {
	items map[Key]Descriptor
	order []Key
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{items: make(map[Key]Descriptor)}
}

var defaultRegistry = mustBuiltin()

// Default returns the process-wide registry of the three known protocols.
func Default() *Registry {
	return defaultRegistry
}

// Lookup resolves key against the default registry.
func Lookup(key string) (Descriptor, error) {
	return defaultRegistry.Lookup(key)
}

// Resolve returns the descriptor for key, or the unsupported descriptor.
func Resolve(key string) Descriptor {
	return defaultRegistry.Resolve(key)
}

// ValidateDescriptor checks required descriptor fields.
func ValidateDescriptor(d Descriptor) error {
	if strings.TrimSpace(string(d.Key)) == "" {
		return fmt.Errorf("%w: key is required", ErrInvalidDescriptor)
	}
	if d.Kind == KindUnsupported {
		return fmt.Errorf("%w: %s has no kind", ErrInvalidDescriptor, d.Key)
	}
	if strings.TrimSpace(d.Collection) == "" || !strings.HasPrefix(d.ListPath, "/") || !strings.HasPrefix(d.CreatePath, "/") {
		return fmt.Errorf("%w: %s paths are incomplete", ErrInvalidDescriptor, d.Key)
	}
	if len(d.Fields) == 0 {
		return fmt.Errorf("%w: %s has no fields", ErrInvalidDescriptor, d.Key)
	}
	return nil
}

// Register adds a descriptor to the registry.
func (r *Registry) Register(d Descriptor) error {
	if err := ValidateDescriptor(d); err != nil {
		return err
	}
	if _, ok := r.items[d.Key]; ok {
		return fmt.Errorf("%w: %s", ErrDescriptorExists, d.Key)
	}
	r.items[d.Key] = d
	r.order = append(r.order, d.Key)
	return nil
}

// Lookup returns the descriptor for key or ErrNotFound.
func (r *Registry) Lookup(key string) (Descriptor, error) {
	d, ok := r.items[Key(strings.TrimSpace(key))]
	if !ok {
		return Descriptor{}, fmt.Errorf("%w: %q", ErrNotFound, key)
	}
	return d, nil
}

// Resolve is Lookup without an error: unknown keys map to the unsupported variant.
func (r *Registry) Resolve(key string) Descriptor {
	d, err := r.Lookup(key)
	if err != nil {
		return Unsupported(key)
	}
	return d
}

// List returns descriptors in registration order.
func (r *Registry) List() []Descriptor {
	out := make([]Descriptor, 0, len(r.order))
	for _, key := range r.order {
		out = append(out, r.items[key])
	}
	return out
}

// Unsupported builds the neutral descriptor used for unknown keys.
func Unsupported(key string) Descriptor {
	return Descriptor{
		Key:         Key(strings.TrimSpace(key)),
		Kind:        KindUnsupported,
		DisplayName: unsupportedName,
		NavLabel:    strings.TrimSpace(key),
		Description: unsupportedDescription,
	}
}

func mustBuiltin() *Registry {
	r := NewRegistry()
	for _, d := range builtinDescriptors() {
		if err := r.Register(d); err != nil {
			panic(err)
		}
	}
	return r
}

func builtinDescriptors() []Descriptor {
	return []Descriptor{
		{
			Key:         KeyRapi,
			Kind:        KindGeneric,
			DisplayName: "REST API",
			NavLabel:    "rAPI",
			Description: "rAPI is the foundation for the communications of this software!",
			Collection:  "bucket",
			ListPath:    "/getall/bucket",
			CreatePath:  "/u",
			Fields: []FieldSpec{
				{Name: "node_uid", Label: "Data node uid", Stamped: true},
				{Name: "node_val", Label: "Data node value", Operator: true},
				{Name: "node_last_update", Label: "Data node last updated"},
				{Name: "node_name", Label: "Data node name", Operator: true},
				{Name: "node_rw_direction", Label: "Data node read/write ?", Operator: true},
			},
		},
		{
			Key:         KeyModbus,
			Kind:        KindModbus,
			DisplayName: "Modbus TCP",
			NavLabel:    "Modbus TCP",
			Description: "Modbus TCP \"mapper\", you can bind MB registers to the rAPI data nodes!",
			Collection:  "mbstuff",
			ListPath:    "/getall/mbstuff",
			CreatePath:  "/cmbtcp",
			Fields: []FieldSpec{
				{Name: "mb_lock_to_uid", Label: "locked to data node", Operator: true, Stamped: true},
				{Name: "mb_ip", Label: "mb ip", Operator: true},
				{Name: "mb_port", Label: "mb port", Operator: true, Numeric: true},
				{Name: "mb_register", Label: "mb register", Operator: true, Numeric: true},
				{Name: "mb_rw", Label: "mb read/write", Operator: true},
			},
		},
		{
			Key:         KeyMqtt,
			Kind:        KindMqtt,
			DisplayName: "MQTT",
			NavLabel:    "MQTT",
			Description: "MQTT \"mapper\", you can bind MQTT values to the rAPI data nodes!",
			Collection:  "mqttstuff",
			ListPath:    "/getall/mqttstuff",
			CreatePath:  "/cmqtt",
			Fields: []FieldSpec{
				{Name: "mqtt_lock_to_uid", Label: "locked to data node", Operator: true, Stamped: true},
				{Name: "mqtt_ip", Label: "mqtt ip", Operator: true},
				{Name: "mqtt_topic", Label: "mqtt topic", Operator: true},
				{Name: "mqtt_topic_modif", Label: "mqtt topic modifier", Operator: true, Numeric: true},
				{Name: "mqtt_rw", Label: "mqtt read/write", Operator: true},
			},
		},
	}
}

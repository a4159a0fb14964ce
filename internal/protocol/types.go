package protocol

// Key is the route-level protocol identifier.
type Key string

const (
	KeyRapi   Key = "rapi"
	KeyModbus Key = "mbtcp"
	KeyMqtt   Key = "mqtt"
)

func (k Key) String() string {
	return string(k)
}

// Kind is the tagged-union discriminator for protocol dispatch.
// Every switch over Kind must handle KindUnsupported.
type Kind int

const (
	KindUnsupported Kind = iota
	KindGeneric
	KindModbus
	KindMqtt
)

func (k Kind) String() string {
	switch k {
	case KindGeneric:
		return "generic"
	case KindModbus:
		return "modbus"
	case KindMqtt:
		return "mqtt"
	default:
		return "unsupported"
	}
}

// FieldSpec describes one wire field of a protocol record.
type FieldSpec struct {
	Name     string
	Label    string
	Numeric  bool
	Operator bool // supplied by the operator on the create form
	Stamped  bool // filled from the allocated identifier on submit
}

// Descriptor is the immutable registry entry for one protocol.
type Descriptor struct {
	Key         Key
	Kind        Kind
	DisplayName string
	NavLabel    string
	Description string
	Collection  string
	ListPath    string
	CreatePath  string
	Fields      []FieldSpec
}

// Supported reports whether the descriptor names a known protocol.
func (d Descriptor) Supported() bool {
	return d.Kind != KindUnsupported
}

// OperatorFields returns the fields an operator fills on the create form.
func (d Descriptor) OperatorFields() []FieldSpec {
	out := make([]FieldSpec, 0, len(d.Fields))
	for _, f := range d.Fields {
		if f.Operator {
			out = append(out, f)
		}
	}
	return out
}

package record

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/danmuck/dmapctl/internal/protocol"
	"github.com/danmuck/dmapctl/internal/testutil/testlog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestModbusEncodeDecodeRoundTrip(t *testing.T) {
	testlog.Start(t)

	in := ModbusMapping{
		LockedToUID: "abc123",
		IP:          "10.0.0.7",
		Port:        502,
		Register:    40001,
		RW:          RWReadWrite,
	}
	payload, err := Encode(protocol.KeyModbus, in)
	require.NoError(t, err)

	out, err := DecodeOne(protocol.KeyModbus, payload)
	require.NoError(t, err)
	assert.Equal(t, in, out)

	list, err := Decode(protocol.KeyModbus, []byte("["+string(payload)+"]"))
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, in, list[0])
}

func TestNumericFieldsAcceptNumberOrNumeral(t *testing.T) {
	testlog.Start(t)

	asString := `[{"mqtt_lock_to_uid":"u1","mqtt_ip":"h","mqtt_topic":"t","mqtt_topic_modif":"3","mqtt_rw":"r"}]`
	asNumber := `[{"mqtt_lock_to_uid":"u1","mqtt_ip":"h","mqtt_topic":"t","mqtt_topic_modif":3,"mqtt_rw":"r"}]`

	a, err := Decode(protocol.KeyMqtt, []byte(asString))
	require.NoError(t, err)
	b, err := Decode(protocol.KeyMqtt, []byte(asNumber))
	require.NoError(t, err)
	assert.Equal(t, a, b)
	assert.Equal(t, 3, a[0].(MqttMapping).TopicModifier)
}

func TestNumericFieldRejectsNonNumeral(t *testing.T) {
	testlog.Start(t)

	payload := `[{"mb_lock_to_uid":"u1","mb_ip":"h","mb_port":"five-oh-two","mb_register":"1","mb_rw":"r"}]`
	_, err := Decode(protocol.KeyModbus, []byte(payload))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSchemaMismatch))

	var decErr *DecodeError
	require.True(t, errors.As(err, &decErr))
	assert.Equal(t, "mb_port", decErr.Field)
	assert.Equal(t, 0, decErr.Index)

	for _, raw := range []string{`true`, `1.5`, `null`, `{}`, `1e400`, `2.5e-1`} {
		_, err := ParseInt(json.RawMessage(raw))
		assert.ErrorIs(t, err, ErrInvalidField, raw)
	}
}

func TestNumericFieldsAcceptIntegralNumberForms(t *testing.T) {
	testlog.Start(t)

	cases := map[string]int{`3`: 3, `3.0`: 3, `5e2`: 500, `-4.00`: -4, `1.2E1`: 12, `"502"`: 502}
	for raw, want := range cases {
		got, err := ParseInt(json.RawMessage(raw))
		require.NoError(t, err, raw)
		assert.Equal(t, want, got, raw)
	}

	payload := `[{"mb_lock_to_uid":"u1","mb_ip":"h","mb_port":502.0,"mb_register":4e4,"mb_rw":"r"}]`
	list, err := Decode(protocol.KeyModbus, []byte(payload))
	require.NoError(t, err)
	m := list[0].(ModbusMapping)
	assert.Equal(t, 502, m.Port)
	assert.Equal(t, 40000, m.Register)
}

func TestDecodeEmptyArrayIsEmptyCollection(t *testing.T) {
	testlog.Start(t)

	list, err := Decode(protocol.KeyModbus, []byte(" [] "))
	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)
}

func TestDecodeSchemaMismatch(t *testing.T) {
	testlog.Start(t)

	cases := map[string]string{
		"object not array":   `{"mqtt_ip":"h"}`,
		"null payload":       `null`,
		"garbage":            `not json`,
		"array of strings":   `["a","b"]`,
		"missing field":      `[{"mqtt_lock_to_uid":"u1","mqtt_ip":"h","mqtt_topic_modif":1,"mqtt_rw":"r"}]`,
		"wrong string type":  `[{"mqtt_lock_to_uid":7,"mqtt_ip":"h","mqtt_topic":"t","mqtt_topic_modif":1,"mqtt_rw":"r"}]`,
		"truncated document": `[{"mqtt_lock_to_uid":"u1"`,
	}
	for name, payload := range cases {
		_, err := Decode(protocol.KeyMqtt, []byte(payload))
		assert.ErrorIs(t, err, ErrSchemaMismatch, name)
	}
}

func TestDecodeGenericTimestampForms(t *testing.T) {
	testlog.Start(t)

	want := time.Date(2023, 4, 1, 12, 30, 0, 0, time.UTC)
	forms := []string{
		`{"$date":{"$numberLong":"1680352200000"}}`,
		`{"$date":"2023-04-01T12:30:00Z"}`,
		`"2023-04-01T12:30:00Z"`,
		`1680352200000`,
	}
	for _, form := range forms {
		payload := `[{"node_val":"1","node_last_update":` + form + `,"node_name":"temp1","node_rw_direction":"r","node_uid":"u1"}]`
		list, err := Decode(protocol.KeyRapi, []byte(payload))
		require.NoError(t, err, form)
		require.Len(t, list, 1)
		g := list[0].(Generic)
		assert.True(t, want.Equal(g.LastUpdate), "form %s decoded to %s", form, g.LastUpdate)
		assert.Equal(t, "2023-04-01T12:30:00Z", FormatTimestamp(g.LastUpdate))
	}

	_, err := Decode(protocol.KeyRapi, []byte(`[{"node_val":"1","node_last_update":"yesterday","node_name":"n","node_rw_direction":"r","node_uid":"u"}]`))
	assert.ErrorIs(t, err, ErrSchemaMismatch)
}

func TestEncodeGenericOmitsLastUpdate(t *testing.T) {
	testlog.Start(t)

	payload, err := Encode(protocol.KeyRapi, Generic{
		UID:        "abc123",
		Name:       "temp1",
		Value:      "0",
		RW:         RWRead,
		LastUpdate: time.Now(),
	})
	require.NoError(t, err)

	var body map[string]any
	require.NoError(t, json.Unmarshal(payload, &body))
	assert.Equal(t, map[string]any{
		"node_uid":          "abc123",
		"node_name":         "temp1",
		"node_val":          "0",
		"node_rw_direction": "r",
	}, body)
}

func TestEncodeMqttKeepsNumericModifier(t *testing.T) {
	testlog.Start(t)

	payload, err := Encode(protocol.KeyMqtt, MqttMapping{LockedToUID: "u", IP: "h", Topic: "t", TopicModifier: 4, RW: RWWrite})
	require.NoError(t, err)
	assert.JSONEq(t, `{"mqtt_lock_to_uid":"u","mqtt_ip":"h","mqtt_topic":"t","mqtt_topic_modif":4,"mqtt_rw":"w"}`, string(payload))
}

func TestEncodeRejectsKindMismatchAndUnknownProtocol(t *testing.T) {
	testlog.Start(t)

	_, err := Encode(protocol.KeyRapi, ModbusMapping{})
	assert.ErrorIs(t, err, ErrKindMismatch)

	_, err = Encode("opcua", Generic{})
	assert.ErrorIs(t, err, ErrUnsupported)

	_, err = Decode("opcua", []byte(`[]`))
	assert.ErrorIs(t, err, ErrUnsupported)
	assert.False(t, errors.Is(err, ErrSchemaMismatch))
}

func TestBuildFromFormValues(t *testing.T) {
	testlog.Start(t)

	rec, err := Build(protocol.KeyRapi, map[string]string{
		"node_name":         " temp1 ",
		"node_val":          "0",
		"node_rw_direction": "R",
	})
	require.NoError(t, err)
	assert.Equal(t, Generic{Name: "temp1", Value: "0", RW: RWRead}, rec)

	stamped := rec.WithAllocatedID("abc123")
	assert.Equal(t, "abc123", stamped.Identity())

	_, err = Build(protocol.KeyModbus, map[string]string{"mb_ip": "h", "mb_port": "x", "mb_register": "1", "mb_rw": "r"})
	assert.ErrorIs(t, err, ErrInvalidField)

	_, err = Build(protocol.KeyMqtt, map[string]string{"mqtt_ip": "h", "mqtt_topic": "t", "mqtt_topic_modif": "1", "mqtt_rw": "sideways"})
	assert.ErrorIs(t, err, ErrInvalidField)
}

func TestMappingStampKeepsOperatorLockTarget(t *testing.T) {
	testlog.Start(t)

	chosen := ModbusMapping{LockedToUID: "existing"}.WithAllocatedID("fresh")
	assert.Equal(t, "existing", chosen.Identity())

	blank := MqttMapping{}.WithAllocatedID("fresh")
	assert.Equal(t, "fresh", blank.Identity())
}

func TestValuesMirrorsBuild(t *testing.T) {
	testlog.Start(t)

	values := map[string]string{
		"mqtt_lock_to_uid": "u1",
		"mqtt_ip":          "broker",
		"mqtt_topic":       "plant/temp",
		"mqtt_topic_modif": "2",
		"mqtt_rw":          "rw",
	}
	rec, err := Build(protocol.KeyMqtt, values)
	require.NoError(t, err)
	assert.Equal(t, values, Values(rec))
}

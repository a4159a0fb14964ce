// Package record owns the typed data-node records and their wire codec.
//
// Ownership boundary:
// - Generic, ModbusMapping and MqttMapping record shapes
// - tolerant decoding of list payloads (numeric drift, timestamp forms)
// - encoding of create/update bodies
//
// Timestamps are decoded for display only; they are never encoded.
package record

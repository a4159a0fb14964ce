// Package protocol owns the closed set of data-node protocol families.
//
// Ownership boundary:
// - protocol key classification (rapi, mbtcp, mqtt, unsupported)
// - display metadata and record schema per protocol
// - backend collection and creation paths per protocol
//
// The registry is built once and is read-only afterwards.
package protocol

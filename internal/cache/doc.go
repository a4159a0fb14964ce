// Package cache owns keyed fetch slots for list views.
//
// Ownership boundary:
// - one slot per trigger key
//
// - at most one outstanding fetch per slot
//
// - fetch failures recorded as slot state
//
// Lifecycle order:
// - absent -> pending -> ready | failed
//
// - invalidate or a newer revision returns the slot to pending on next observation.
//
// Cache does not retry, expire entries, or cancel in-flight fetches.
// Responses for superseded generations are discarded.
package cache

// Package creation owns the create-record flow for one mounted form.
//
// Ownership boundary:
// - identifier allocation
//
// - record stamping and submission
//
// - single-flight rejection while a request is outstanding
//
// Lifecycle order:
// - idle -> allocating -> allocated -> submitting -> idle
//
// - allocating and submitting may fall to failed; failed after submit keeps the identifier.
//
// A closed gate discards late responses and rejects every action.
package creation

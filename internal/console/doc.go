// Package console serves render plans and create sessions over HTTP.
//
// Ownership boundary:
// - route registration
//
// - create session lifetime (mount on POST, unmount on DELETE or Close)
//
// Console does not own plan resolution or gate sequencing.
package console

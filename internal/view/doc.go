// Package view resolves a protocol key and route segment into a render plan.
//
// Ownership boundary:
// - route segment parsing
//
// - list plans backed by the record cache
//
// - create mounts, one gate per mount
//
// View does not own transport or presentation. Terminal and web surfaces
// consume RenderPlan values.
package view

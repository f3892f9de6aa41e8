// Package control
// Author: momentics <momentics@gmail.com>
//
// Runtime metrics and debug introspection for the handle layer.
//
// Metrics are prometheus collectors registered on a package registry
// (Registry) so embedding programs can expose them with Handler without
// touching the global default registerer. Debug probes let live server
// handles publish their accept-loop state for inspection.
package control

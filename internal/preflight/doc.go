// Package preflight checks the filesystem paths and upload endpoint the
// supervisor depends on. The CLI status command renders the results.
//
// Checks for optional features only run when the feature is configured.
package preflight

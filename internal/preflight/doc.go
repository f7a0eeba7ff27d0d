// Package preflight provides readiness checks for the filesystem paths and
// database that LSM depends on.
//
// These checks run in two contexts:
//   - "lsm serve" calls RunAll before binding the listener and refuses to
//     start when a check fails.
//   - "lsm status" prints every result as a table.
package preflight

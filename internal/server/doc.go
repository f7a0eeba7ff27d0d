// Package server runs the admin panel over HTTP.
//
// It wraps the web application with recovery, request ids, access logging
// and Prometheus metrics, serves static assets and uploaded images, and runs
// the session sweeper beside the listener. A file lock in the data
// directory keeps a second server from sharing the same database and
// upload tree.
package server

// Package main hosts the lsm CLI entrypoint and command graph.
//
// The Cobra command tree starts the admin panel server and covers the chores
// that happen outside the browser: applying migrations, managing accounts,
// loading fixtures, scaffolding configuration and checking readiness. Config
// resolution and store wiring live in commandContext so subcommands stay
// declarative; the heavy lifting belongs in the internal packages.
package main

// Package health holds the liveness and readiness probes served on both
// listeners. Probes compose with All and Any; ShutdownGate fails readiness
// while the server drains, and Settings fails it until ad settings are
// active.
package health

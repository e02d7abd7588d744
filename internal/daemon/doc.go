// Package daemon wires the queue store, worker pool, and retention sweeper
// into a single lifecycle with flock-based locking to prevent multiple
// instances from running on the same host.
package daemon

// Package queue persists stem-separation jobs and coordinates their
// dispatch.
//
// Jobs are JSON records keyed by id in a Redis-compatible store, with a FIFO
// list ordering dispatch and a set tracking jobs currently held by workers.
// All record mutations go through a compare-and-swap loop, so concurrent
// writers never silently overwrite each other, and the status state machine
// is enforced on every transition. Workers that stop heartbeating have their
// jobs reclaimed back onto the queue tail.
package queue

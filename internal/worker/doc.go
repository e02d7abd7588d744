// Package worker runs the queue consumer loop: dequeue a job, hand it to the
// pipeline, and keep its heartbeat lease fresh while it runs. An idle queue
// is polled on a short interval; repository failures back off on a longer
// one. One worker per pool additionally sweeps for jobs whose lease expired
// and requeues them.
package worker

// Package api is the producer-facing facade over the job queue: submitting
// file and remote-URL jobs, reading job projections, deleting jobs with
// their artifacts, queue counters, retention cleanup, and health. Transport
// layers are expected to wrap this service rather than reach into the store.
package api

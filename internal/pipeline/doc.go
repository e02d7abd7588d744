// Package pipeline sequences a job through its processing stages: acquiring
// the input (downloading it for remote sources), validating it against the
// configured limits, running stem separation, and finalizing the result.
//
// Progress follows a fixed checkpoint schedule, with the separation engine's
// raw percent compressed into the 40-90 band. Stage failures are recorded on
// the job and never crash the worker; downloaded inputs are removed on every
// exit path.
package pipeline

// Package services defines shared utilities consumed by the pipeline
// orchestrator and external tool clients.
//
// Key responsibilities:
//   - Context helpers that stamp job IDs, stage names, and correlation
//     identifiers for logging.
//   - Structured error markers plus the Wrap helper that keep failure
//     classification (validation vs download vs processing) intact as
//     errors cross component boundaries.
package services

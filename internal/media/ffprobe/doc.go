// Package ffprobe wraps the ffprobe command-line tool for inspecting audio
// inputs before processing. Validation uses the parsed duration, size,
// sample rate, and stream counts.
package ffprobe

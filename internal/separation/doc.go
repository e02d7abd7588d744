// Package separation wraps the demucs command-line engine that splits an
// audio track into vocals, drums, bass, and other stems. It reports raw
// engine progress from the percent markers demucs prints and collects the
// produced stem files from the output tree.
package separation
